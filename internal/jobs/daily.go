package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/awaistahir/what-to-wear/internal/engine"
	"github.com/awaistahir/what-to-wear/internal/logger"
	"github.com/awaistahir/what-to-wear/internal/notify"
	"golang.org/x/sync/errgroup"
)

var errNoPhone = errors.New("user has no phone number")

// Pick is the outfit chosen for one user
type Pick struct {
	UserID string               `json:"user_id"`
	Outfit *engine.Outfit       `json:"outfit"`
	Record *engine.OutfitRecord `json:"record,omitempty"` // nil on dry runs
}

// DailyJob picks, stores and texts today's outfit to every scheduled user
type DailyJob struct {
	Store       Store
	SMS         SMSSender
	Log         *logger.Logger
	Selector    engine.SelectOptions
	Retry       notify.Policy
	Concurrency int
	DryRun      bool
	Now         func() time.Time
}

// DailyReport is a RunReport plus the picks made
type DailyReport struct {
	RunReport
	Picks []Pick `json:"picks"`
}

func (j *DailyJob) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now()
}

// Run processes every enabled user scheduled today. Per-user failures are
// recorded in the report; only a failure to list users aborts the run.
func (j *DailyJob) Run(ctx context.Context) (*DailyReport, error) {
	today := j.now()

	users, err := j.Store.EnabledUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	opts := j.Selector
	if opts.Rand != nil {
		opts.Rand = &lockedRand{r: opts.Rand}
	}

	report := &DailyReport{}
	var picksMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(j.Concurrency, 1))

	for _, u := range users {
		if !u.ScheduledOn(today) {
			continue
		}
		g.Go(func() error {
			log := j.Log.With("user_id", u.ID)
			report.processed()

			pick, err := j.runUser(gctx, u, today, opts)
			if err != nil {
				log.Warn("Skipping user", "error", err)
				report.skip(u.ID, err)
				return nil
			}

			picksMu.Lock()
			report.Picks = append(report.Picks, *pick)
			picksMu.Unlock()

			if j.DryRun {
				log.Info("Dry run pick", "message", pick.Outfit.Message())
				return nil
			}

			if err := j.notify(gctx, u, pick.Outfit); err != nil {
				log.Error("Notification failed", "error", err, "outfit_id", pick.Record.ID)
				report.skip(u.ID, err)
				return nil
			}
			report.notified()
			log.Info("Outfit sent", "outfit_id", pick.Record.ID)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, ctx.Err()
}

// historyCutoff is midnight n calendar days before today. A record from any
// time on that day is recent no matter when today's run fires.
func historyCutoff(today time.Time, n int) time.Time {
	y, m, d := today.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, today.Location()).AddDate(0, 0, -n)
}

func (j *DailyJob) runUser(ctx context.Context, u *engine.User, today time.Time, opts engine.SelectOptions) (*Pick, error) {
	if !j.DryRun && u.Phone == "" {
		return nil, errNoPhone
	}

	w, err := fetchWardrobe(ctx, j.Store, u.ID, false)
	if err != nil {
		return nil, fmt.Errorf("fetching wardrobe: %w", err)
	}

	n := engine.FreshnessWindow(len(w.Tops))
	history, err := j.Store.OutfitsSince(ctx, u.ID, historyCutoff(today, n))
	if err != nil {
		return nil, fmt.Errorf("fetching recent outfits: %w", err)
	}
	recent := engine.RecentTopIDs(history, n)

	pairs, err := j.Store.UnallowedPairs(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("fetching unallowed pairs: %w", err)
	}

	outfit, err := engine.SelectOutfit(w.Tops, w.Bottoms, w.Shoes, recent, pairs, opts)
	if err != nil {
		return nil, err
	}

	pick := &Pick{UserID: u.ID, Outfit: outfit}
	if j.DryRun {
		return pick, nil
	}

	pick.Record, err = j.Store.SaveOutfit(ctx, u.ID, outfit)
	if err != nil {
		return nil, fmt.Errorf("saving outfit: %w", err)
	}
	return pick, nil
}

func (j *DailyJob) notify(ctx context.Context, u *engine.User, o *engine.Outfit) error {
	return j.Retry.Do(ctx, func() error {
		_, err := j.SMS.SendSMS(ctx, u.Phone, o.Message())
		return err
	})
}

// lockedRand lets one seeded source serve concurrent users
type lockedRand struct {
	mu sync.Mutex
	r  engine.Rand
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}
