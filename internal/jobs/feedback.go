package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/awaistahir/what-to-wear/internal/engine"
	"github.com/awaistahir/what-to-wear/internal/logger"
	"github.com/awaistahir/what-to-wear/internal/store"
)

var (
	ErrUnknownSender  = errors.New("no enabled user with that phone number")
	ErrNoRecentOutfit = errors.New("user has no outfit to reject")
)

// Feedback turns a "no" reply into an unallowed pair
type Feedback struct {
	Store Store
	Log   *logger.Logger
}

// RecordNegative blocks the top and bottom of the sender's most recent
// outfit from being picked together again.
func (f *Feedback) RecordNegative(ctx context.Context, phone string) (*engine.UnallowedPair, error) {
	u, err := f.Store.UserByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownSender
		}
		return nil, fmt.Errorf("looking up sender: %w", err)
	}

	last, err := f.Store.LatestOutfit(ctx, u.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoRecentOutfit
		}
		return nil, fmt.Errorf("loading latest outfit: %w", err)
	}

	pair := engine.UnallowedPair{
		UserID:    u.ID,
		Category1: engine.CategoryTop,
		ID1:       last.TopID,
		Category2: engine.CategoryBottom,
		ID2:       last.BottomID,
	}
	if err := f.Store.AddUnallowedPair(ctx, pair); err != nil {
		return nil, fmt.Errorf("saving unallowed pair: %w", err)
	}

	f.Log.Info("Recorded unallowed pair", "user_id", u.ID, "outfit_id", last.ID, "top_id", last.TopID, "bottom_id", last.BottomID)
	return &pair, nil
}
