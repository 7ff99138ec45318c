package engine

import (
	"errors"
	"fmt"
	"sort"
)

var ErrDanglingReference = errors.New("outfit record references unknown item")

// DanglingReferenceError names the record field that could not be resolved
type DanglingReferenceError struct {
	Category Category
	ItemID   string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("%s: %s %q", ErrDanglingReference, e.Category, e.ItemID)
}

func (e *DanglingReferenceError) Unwrap() error {
	return ErrDanglingReference
}

// counter keeps counts in first-encounter order
type counter struct {
	order  []string
	counts map[string]int
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(id string) {
	if _, seen := c.counts[id]; !seen {
		c.order = append(c.order, id)
	}
	c.counts[id]++
}

// AggregateUsage counts how often each item was worn across records and
// returns per-category rankings sorted by count descending. Ties keep the
// order in which items were first seen.
func AggregateUsage(w Wardrobe, records []OutfitRecord) (*UsageSummary, error) {
	byCategory := map[Category]*counter{
		CategoryTop:    newCounter(),
		CategoryBottom: newCounter(),
		CategoryShoe:   newCounter(),
	}

	for _, r := range records {
		byCategory[CategoryTop].add(r.TopID)
		byCategory[CategoryBottom].add(r.BottomID)
		if r.ShoeID != "" {
			byCategory[CategoryShoe].add(r.ShoeID)
		}
	}

	summary := &UsageSummary{}
	for _, cat := range Categories {
		ranking, err := rank(cat, byCategory[cat], w.Index(cat))
		if err != nil {
			return nil, err
		}
		switch cat {
		case CategoryTop:
			summary.Tops = ranking
		case CategoryBottom:
			summary.Bottoms = ranking
		case CategoryShoe:
			summary.Shoes = ranking
		}
	}

	return summary, nil
}

func rank(cat Category, c *counter, items map[string]Item) ([]UsageCount, error) {
	ranking := make([]UsageCount, 0, len(c.order))
	for _, id := range c.order {
		item, ok := items[id]
		if !ok {
			return nil, &DanglingReferenceError{Category: cat, ItemID: id}
		}
		ranking = append(ranking, UsageCount{
			ItemID:      id,
			Description: item.Description,
			Count:       c.counts[id],
		})
	}

	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].Count > ranking[j].Count
	})

	return ranking, nil
}
