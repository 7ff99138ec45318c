package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/awaistahir/what-to-wear/internal/engine"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Collection names match the documents written by the mobile app
const (
	usersCollection   = "users"
	outfitsCollection = "outfits"
	pairsCollection   = "unallowed_pairs"
)

var itemCollections = map[engine.Category]string{
	engine.CategoryTop:    "tops",
	engine.CategoryBottom: "bottoms",
	engine.CategoryShoe:   "shoes",
}

// pairNamespace derives stable pair document ids so re-adding a pair is a no-op
var pairNamespace = uuid.MustParse("5b0c9a4e-3f43-4a8e-9a55-6f1f0c2d7e11")

// FirestoreStore reads and writes the Cloud Firestore collections
type FirestoreStore struct {
	client *firestore.Client
	now    func() time.Time
}

type userDoc struct {
	Phone   string `firestore:"phone"`
	Email   string `firestore:"email,omitempty"`
	Days    []bool `firestore:"days"`
	Enabled bool   `firestore:"enabled"`
}

type itemDoc struct {
	User        string `firestore:"user"`
	Description string `firestore:"description"`
	Enabled     bool   `firestore:"enabled"`
}

type outfitDoc struct {
	User   string    `firestore:"user"`
	Top    string    `firestore:"top"`
	Bottom string    `firestore:"bottom"`
	Shoe   string    `firestore:"shoe,omitempty"`
	TS     time.Time `firestore:"ts"`
}

type pairDoc struct {
	User      string `firestore:"user"`
	Category1 string `firestore:"category_1"`
	ID1       string `firestore:"id_1"`
	Category2 string `firestore:"category_2"`
	ID2       string `firestore:"id_2"`
}

// NewFirestoreStore connects with application default credentials
func NewFirestoreStore(ctx context.Context, projectID string) (*FirestoreStore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("connecting to firestore: %w", err)
	}
	return &FirestoreStore{client: client, now: time.Now}, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func toUser(doc *firestore.DocumentSnapshot) (*engine.User, error) {
	var d userDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, fmt.Errorf("decoding user %s: %w", doc.Ref.ID, err)
	}
	u := &engine.User{ID: doc.Ref.ID, Phone: d.Phone, Email: d.Email, Enabled: d.Enabled}
	copy(u.Days[:], d.Days)
	return u, nil
}

func (s *FirestoreStore) queryUsers(ctx context.Context, q firestore.Query) ([]*engine.User, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	users := []*engine.User{}
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		u, err := toUser(doc)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

func (s *FirestoreStore) EnabledUsers(ctx context.Context) ([]*engine.User, error) {
	return s.queryUsers(ctx, s.client.Collection(usersCollection).Where("enabled", "==", true))
}

func (s *FirestoreStore) Users(ctx context.Context) ([]*engine.User, error) {
	return s.queryUsers(ctx, s.client.Collection(usersCollection).Query)
}

func (s *FirestoreStore) UserByPhone(ctx context.Context, phone string) (*engine.User, error) {
	users, err := s.queryUsers(ctx, s.client.Collection(usersCollection).
		Where("phone", "==", phone).
		Where("enabled", "==", true).
		Limit(1))
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, ErrNotFound
	}
	return users[0], nil
}

func (s *FirestoreStore) SaveUser(ctx context.Context, u *engine.User) error {
	doc := userDoc{Phone: u.Phone, Email: u.Email, Days: u.Days[:], Enabled: u.Enabled}
	if u.ID == "" {
		ref, _, err := s.client.Collection(usersCollection).Add(ctx, doc)
		if err != nil {
			return err
		}
		u.ID = ref.ID
		return nil
	}
	_, err := s.client.Collection(usersCollection).Doc(u.ID).Set(ctx, doc)
	return err
}

func (s *FirestoreStore) SaveItem(ctx context.Context, it *engine.Item) error {
	coll, ok := itemCollections[it.Category]
	if !ok {
		return fmt.Errorf("unknown category %q", it.Category)
	}
	doc := itemDoc{User: it.UserID, Description: it.Description, Enabled: it.Enabled}
	if it.ID == "" {
		ref, _, err := s.client.Collection(coll).Add(ctx, doc)
		if err != nil {
			return err
		}
		it.ID = ref.ID
		return nil
	}
	_, err := s.client.Collection(coll).Doc(it.ID).Set(ctx, doc)
	return err
}

// SetItemEnabled looks the id up in every item collection
func (s *FirestoreStore) SetItemEnabled(ctx context.Context, id string, enabled bool) error {
	for _, cat := range engine.Categories {
		ref := s.client.Collection(itemCollections[cat]).Doc(id)
		_, err := ref.Update(ctx, []firestore.Update{{Path: "enabled", Value: enabled}})
		if err == nil {
			return nil
		}
		if status.Code(err) != codes.NotFound {
			return err
		}
	}
	return ErrNotFound
}

func (s *FirestoreStore) Items(ctx context.Context, userID string, cat engine.Category, includeDisabled bool) ([]engine.Item, error) {
	coll, ok := itemCollections[cat]
	if !ok {
		return nil, fmt.Errorf("unknown category %q", cat)
	}
	q := s.client.Collection(coll).Where("user", "==", userID)
	if !includeDisabled {
		q = q.Where("enabled", "==", true)
	}

	docs, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}

	items := make([]engine.Item, 0, len(docs))
	for _, doc := range docs {
		var d itemDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decoding %s %s: %w", cat, doc.Ref.ID, err)
		}
		items = append(items, engine.Item{
			ID:          doc.Ref.ID,
			UserID:      d.User,
			Description: d.Description,
			Category:    cat,
			Enabled:     d.Enabled,
		})
	}
	return items, nil
}

func (s *FirestoreStore) SaveOutfit(ctx context.Context, userID string, o *engine.Outfit) (*engine.OutfitRecord, error) {
	rec := o.Record(userID)
	rec.CreatedAt = s.now().UTC()

	ref, _, err := s.client.Collection(outfitsCollection).Add(ctx, outfitDoc{
		User:   rec.UserID,
		Top:    rec.TopID,
		Bottom: rec.BottomID,
		Shoe:   rec.ShoeID,
		TS:     rec.CreatedAt,
	})
	if err != nil {
		return nil, err
	}
	rec.ID = ref.ID
	return rec, nil
}

func toOutfit(doc *firestore.DocumentSnapshot) (engine.OutfitRecord, error) {
	var d outfitDoc
	if err := doc.DataTo(&d); err != nil {
		return engine.OutfitRecord{}, fmt.Errorf("decoding outfit %s: %w", doc.Ref.ID, err)
	}
	return engine.OutfitRecord{
		ID:        doc.Ref.ID,
		UserID:    d.User,
		TopID:     d.Top,
		BottomID:  d.Bottom,
		ShoeID:    d.Shoe,
		CreatedAt: d.TS.UTC(),
	}, nil
}

func (s *FirestoreStore) OutfitsSince(ctx context.Context, userID string, since time.Time) ([]engine.OutfitRecord, error) {
	docs, err := s.client.Collection(outfitsCollection).
		Where("user", "==", userID).
		Where("ts", ">", since).
		OrderBy("ts", firestore.Desc).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}

	records := make([]engine.OutfitRecord, 0, len(docs))
	for _, doc := range docs {
		rec, err := toOutfit(doc)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *FirestoreStore) LatestOutfit(ctx context.Context, userID string) (*engine.OutfitRecord, error) {
	docs, err := s.client.Collection(outfitsCollection).
		Where("user", "==", userID).
		OrderBy("ts", firestore.Desc).
		Limit(1).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	rec, err := toOutfit(docs[0])
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *FirestoreStore) UnallowedPairs(ctx context.Context, userID string) ([]engine.UnallowedPair, error) {
	docs, err := s.client.Collection(pairsCollection).Where("user", "==", userID).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}

	pairs := make([]engine.UnallowedPair, 0, len(docs))
	for _, doc := range docs {
		var d pairDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decoding unallowed pair %s: %w", doc.Ref.ID, err)
		}
		pairs = append(pairs, engine.UnallowedPair{
			UserID:    d.User,
			Category1: engine.Category(d.Category1),
			ID1:       d.ID1,
			Category2: engine.Category(d.Category2),
			ID2:       d.ID2,
		})
	}
	return pairs, nil
}

func (s *FirestoreStore) AddUnallowedPair(ctx context.Context, p engine.UnallowedPair) error {
	_, err := s.client.Collection(pairsCollection).Doc(pairDocID(p)).Set(ctx, pairDoc{
		User:      p.UserID,
		Category1: string(p.Category1),
		ID1:       p.ID1,
		Category2: string(p.Category2),
		ID2:       p.ID2,
	})
	return err
}

func pairDocID(p engine.UnallowedPair) string {
	key := strings.Join([]string{p.UserID, string(p.Category1), p.ID1, string(p.Category2), p.ID2}, "\x00")
	return uuid.NewSHA1(pairNamespace, []byte(key)).String()
}
