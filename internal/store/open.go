package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/awaistahir/what-to-wear/internal/config"
	"github.com/awaistahir/what-to-wear/internal/engine"
)

// Backend is implemented by both the SQLite and the Firestore store
type Backend interface {
	SaveUser(ctx context.Context, u *engine.User) error
	Users(ctx context.Context) ([]*engine.User, error)
	EnabledUsers(ctx context.Context) ([]*engine.User, error)
	UserByPhone(ctx context.Context, phone string) (*engine.User, error)

	SaveItem(ctx context.Context, it *engine.Item) error
	SetItemEnabled(ctx context.Context, id string, enabled bool) error
	Items(ctx context.Context, userID string, cat engine.Category, includeDisabled bool) ([]engine.Item, error)

	SaveOutfit(ctx context.Context, userID string, o *engine.Outfit) (*engine.OutfitRecord, error)
	OutfitsSince(ctx context.Context, userID string, since time.Time) ([]engine.OutfitRecord, error)
	LatestOutfit(ctx context.Context, userID string) (*engine.OutfitRecord, error)

	UnallowedPairs(ctx context.Context, userID string) ([]engine.UnallowedPair, error)
	AddUnallowedPair(ctx context.Context, p engine.UnallowedPair) error

	Close() error
}

var (
	_ Backend = (*Store)(nil)
	_ Backend = (*FirestoreStore)(nil)
)

// Open returns the backend selected by store.driver
func Open(ctx context.Context, cfg config.StoreSettings) (Backend, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		st, err := NewStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.DriverFirestore:
		st, err := NewFirestoreStore(ctx, cfg.ProjectID)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
