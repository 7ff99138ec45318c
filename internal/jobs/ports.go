package jobs

import (
	"context"
	"time"

	"github.com/awaistahir/what-to-wear/internal/engine"
	"github.com/awaistahir/what-to-wear/internal/notify"
)

// Store is the document store the jobs read from and append to
type Store interface {
	EnabledUsers(ctx context.Context) ([]*engine.User, error)
	UserByPhone(ctx context.Context, phone string) (*engine.User, error)
	Items(ctx context.Context, userID string, cat engine.Category, includeDisabled bool) ([]engine.Item, error)
	OutfitsSince(ctx context.Context, userID string, since time.Time) ([]engine.OutfitRecord, error)
	LatestOutfit(ctx context.Context, userID string) (*engine.OutfitRecord, error)
	SaveOutfit(ctx context.Context, userID string, o *engine.Outfit) (*engine.OutfitRecord, error)
	UnallowedPairs(ctx context.Context, userID string) ([]engine.UnallowedPair, error)
	AddUnallowedPair(ctx context.Context, p engine.UnallowedPair) error
}

// SMSSender delivers text messages
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) (*notify.Message, error)
}

// Mailer delivers email
type Mailer interface {
	SendEmail(ctx context.Context, e notify.Email) error
}

func fetchWardrobe(ctx context.Context, st Store, userID string, includeDisabled bool) (engine.Wardrobe, error) {
	var w engine.Wardrobe
	for _, cat := range engine.Categories {
		items, err := st.Items(ctx, userID, cat, includeDisabled)
		if err != nil {
			return w, err
		}
		switch cat {
		case engine.CategoryTop:
			w.Tops = items
		case engine.CategoryBottom:
			w.Bottoms = items
		case engine.CategoryShoe:
			w.Shoes = items
		}
	}
	return w, nil
}
