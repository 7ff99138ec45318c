package engine

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sort"
	"time"
)

var (
	ErrNoEligibleItems    = errors.New("no eligible items")
	ErrSelectionUnbounded = errors.New("no valid outfit found within selection budget")
)

const (
	// MaxFreshnessWindow caps how many recent outfits block a top
	MaxFreshnessWindow = 14

	DefaultMaxAttempts     = 1000
	DefaultExhaustiveLimit = 4096
)

// Rand is the randomness used by the selector
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// SelectOptions bounds the sampling loop
type SelectOptions struct {
	MaxAttempts     int           // draws before giving up on sampling; 0 = DefaultMaxAttempts
	Budget          time.Duration // wall-clock limit for sampling; 0 = none
	ExhaustiveLimit int           // max combinations enumerated after sampling fails; negative disables
	Rand            Rand          // nil = auto-seeded global source
}

func (o SelectOptions) withDefaults() SelectOptions {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.ExhaustiveLimit == 0 {
		o.ExhaustiveLimit = DefaultExhaustiveLimit
	}
	if o.Rand == nil {
		o.Rand = globalRand{}
	}
	return o
}

// FreshnessWindow returns how many recent outfits are checked for repeated tops
func FreshnessWindow(topCount int) int {
	return min(topCount, MaxFreshnessWindow)
}

// RecentTopIDs returns the top ids of the n most recent records
func RecentTopIDs(records []OutfitRecord, n int) map[string]struct{} {
	sorted := slices.Clone(records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	if len(sorted) > n {
		sorted = sorted[:max(n, 0)]
	}

	ids := make(map[string]struct{}, len(sorted))
	for _, r := range sorted {
		ids[r.TopID] = struct{}{}
	}
	return ids
}

// SelectOutfit picks a random valid outfit. Tops listed in recentTopIDs are
// not eligible. An empty shoes slice means shoes are not tracked.
func SelectOutfit(tops, bottoms, shoes []Item, recentTopIDs map[string]struct{}, pairs []UnallowedPair, opts SelectOptions) (*Outfit, error) {
	opts = opts.withDefaults()

	eligible := make([]Item, 0, len(tops))
	for _, t := range tops {
		if _, recent := recentTopIDs[t.ID]; !recent {
			eligible = append(eligible, t)
		}
	}
	if len(eligible) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoEligibleItems, CategoryTop)
	}
	if len(bottoms) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoEligibleItems, CategoryBottom)
	}

	var deadline time.Time
	if opts.Budget > 0 {
		deadline = time.Now().Add(opts.Budget)
	}

	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		if !deadline.IsZero() && time.Now().After(deadline) {
			break
		}

		candidate := &Outfit{
			Top:    eligible[opts.Rand.IntN(len(eligible))],
			Bottom: bottoms[opts.Rand.IntN(len(bottoms))],
		}
		if len(shoes) > 0 {
			shoe := shoes[opts.Rand.IntN(len(shoes))]
			candidate.Shoe = &shoe
		}

		if candidate.Valid(pairs) {
			return candidate, nil
		}
	}

	return exhaustiveSelect(eligible, bottoms, shoes, pairs, opts)
}

// exhaustiveSelect enumerates the whole product space and picks uniformly
// among the valid combinations.
func exhaustiveSelect(tops, bottoms, shoes []Item, pairs []UnallowedPair, opts SelectOptions) (*Outfit, error) {
	shoeSlots := max(len(shoes), 1)
	space := len(tops) * len(bottoms) * shoeSlots
	if opts.ExhaustiveLimit < 0 || space > opts.ExhaustiveLimit {
		return nil, fmt.Errorf("%w: %d attempts", ErrSelectionUnbounded, opts.MaxAttempts)
	}

	valid := []*Outfit{}
	for _, t := range tops {
		for _, b := range bottoms {
			for s := 0; s < shoeSlots; s++ {
				candidate := &Outfit{Top: t, Bottom: b}
				if len(shoes) > 0 {
					shoe := shoes[s]
					candidate.Shoe = &shoe
				}
				if candidate.Valid(pairs) {
					valid = append(valid, candidate)
				}
			}
		}
	}

	if len(valid) == 0 {
		return nil, fmt.Errorf("%w: all %d combinations are unallowed", ErrSelectionUnbounded, space)
	}
	return valid[opts.Rand.IntN(len(valid))], nil
}

// Valid reports whether no unallowed pair has both sides present
func (o *Outfit) Valid(pairs []UnallowedPair) bool {
	for _, p := range pairs {
		// Directional on purpose: (Category1, ID1) and (Category2, ID2) only.
		if o.Has(p.Category1, p.ID1) && o.Has(p.Category2, p.ID2) {
			return false
		}
	}
	return true
}

// Has reports whether the outfit wears item id in category c
func (o *Outfit) Has(c Category, id string) bool {
	switch c {
	case CategoryTop:
		return o.Top.ID == id
	case CategoryBottom:
		return o.Bottom.ID == id
	case CategoryShoe:
		return o.Shoe != nil && o.Shoe.ID == id
	}
	return false
}

// Message renders the SMS text for an outfit
func (o *Outfit) Message() string {
	msg := fmt.Sprintf("Today's outfit: %s, %s", o.Top.Description, o.Bottom.Description)
	if o.Shoe != nil {
		msg += ", " + o.Shoe.Description
	}
	return msg + ". Reply NO if you don't like it."
}

// Record converts the outfit into an unsaved record
func (o *Outfit) Record(userID string) *OutfitRecord {
	rec := &OutfitRecord{
		UserID:   userID,
		TopID:    o.Top.ID,
		BottomID: o.Bottom.ID,
	}
	if o.Shoe != nil {
		rec.ShoeID = o.Shoe.ID
	}
	return rec
}
