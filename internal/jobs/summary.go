package jobs

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/awaistahir/what-to-wear/internal/engine"
	"github.com/awaistahir/what-to-wear/internal/logger"
	"github.com/awaistahir/what-to-wear/internal/notify"
	"golang.org/x/sync/errgroup"
)

const DefaultSummaryWindow = 90 * 24 * time.Hour

// SummaryJob emails every enabled user a ranked usage report
type SummaryJob struct {
	Store       Store
	Mail        Mailer // nil prints only
	Log         *logger.Logger
	Retry       notify.Policy
	Window      time.Duration
	Subject     string
	Concurrency int
	Now         func() time.Time

	// OnSummary, when set, receives every computed summary
	OnSummary func(u *engine.User, s *engine.UsageSummary)
}

// Summarize computes one user's report over the job window
func (j *SummaryJob) Summarize(ctx context.Context, userID string) (*engine.UsageSummary, error) {
	now := time.Now()
	if j.Now != nil {
		now = j.Now()
	}
	window := j.Window
	if window <= 0 {
		window = DefaultSummaryWindow
	}

	// disabled items stay resolvable for historic records
	w, err := fetchWardrobe(ctx, j.Store, userID, true)
	if err != nil {
		return nil, fmt.Errorf("fetching wardrobe: %w", err)
	}
	records, err := j.Store.OutfitsSince(ctx, userID, now.Add(-window))
	if err != nil {
		return nil, fmt.Errorf("fetching outfits: %w", err)
	}
	return engine.AggregateUsage(w, records)
}

// Run summarises every enabled user. Per-user failures are recorded and skipped.
func (j *SummaryJob) Run(ctx context.Context) (*RunReport, error) {
	users, err := j.Store.EnabledUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	report := &RunReport{}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(j.Concurrency, 1))

	for _, u := range users {
		g.Go(func() error {
			log := j.Log.With("user_id", u.ID)
			report.processed()

			summary, err := j.Summarize(gctx, u.ID)
			if err != nil {
				log.Warn("Skipping user", "error", err)
				report.skip(u.ID, err)
				return nil
			}
			if j.OnSummary != nil {
				j.OnSummary(u, summary)
			}
			if j.Mail == nil {
				return nil
			}

			if u.Email == "" {
				log.Info("No email address, not sending summary")
				report.skip(u.ID, fmt.Errorf("user has no email address"))
				return nil
			}
			if err := j.send(gctx, u, summary); err != nil {
				log.Error("Summary email failed", "error", err)
				report.skip(u.ID, err)
				return nil
			}
			report.notified()
			log.Info("Summary sent", "tops", len(summary.Tops), "bottoms", len(summary.Bottoms), "shoes", len(summary.Shoes))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, ctx.Err()
}

func (j *SummaryJob) send(ctx context.Context, u *engine.User, s *engine.UsageSummary) error {
	var html bytes.Buffer
	if err := engine.RenderHTML(&html, s); err != nil {
		return fmt.Errorf("rendering summary: %w", err)
	}
	text, err := engine.TextReport(s)
	if err != nil {
		return fmt.Errorf("rendering summary: %w", err)
	}
	subject := j.Subject
	if subject == "" {
		subject = "Your wardrobe summary"
	}

	email := notify.Email{
		To:      u.Email,
		Subject: subject,
		Text:    text,
		HTML:    html.String(),
	}
	return j.Retry.Do(ctx, func() error {
		return j.Mail.SendEmail(ctx, email)
	})
}
