package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/awaistahir/what-to-wear/internal/engine"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup matches nothing
var ErrNotFound = errors.New("not found")

// Store handles persistent storage using SQLite
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a new store and initializes the database
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// single writer; the batch job fans out over users
	db.SetMaxOpenConns(1)

	store := &Store{db: db, now: time.Now}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// initialize creates the database schema
func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		phone TEXT NOT NULL,
		email TEXT,
		days TEXT NOT NULL,
		enabled INTEGER DEFAULT 1,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		category TEXT NOT NULL,
		description TEXT NOT NULL,
		enabled INTEGER DEFAULT 1,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS outfits (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		top_id TEXT NOT NULL,
		bottom_id TEXT NOT NULL,
		shoe_id TEXT,
		ts INTEGER NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS unallowed_pairs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		category_1 TEXT NOT NULL,
		id_1 TEXT NOT NULL,
		category_2 TEXT NOT NULL,
		id_2 TEXT NOT NULL,
		UNIQUE(user_id, category_1, id_1, category_2, id_2)
	);

	CREATE INDEX IF NOT EXISTS idx_users_phone ON users(phone);
	CREATE INDEX IF NOT EXISTS idx_items_user ON items(user_id, category);
	CREATE INDEX IF NOT EXISTS idx_outfits_user_ts ON outfits(user_id, ts);
	CREATE INDEX IF NOT EXISTS idx_pairs_user ON unallowed_pairs(user_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveUser inserts or replaces a user, assigning an id when empty
func (s *Store) SaveUser(ctx context.Context, u *engine.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	daysJSON, err := json.Marshal(u.Days)
	if err != nil {
		return err
	}

	query := `INSERT OR REPLACE INTO users (id, phone, email, days, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query, u.ID, u.Phone, nullString(u.Email), string(daysJSON),
		boolToInt(u.Enabled), s.now().UnixNano())
	return err
}

const userColumns = `id, phone, email, days, enabled`

func scanUser(row interface{ Scan(...any) error }) (*engine.User, error) {
	var u engine.User
	var email sql.NullString
	var daysJSON string
	var enabledInt int

	if err := row.Scan(&u.ID, &u.Phone, &email, &daysJSON, &enabledInt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(daysJSON), &u.Days); err != nil {
		return nil, fmt.Errorf("decoding days of user %s: %w", u.ID, err)
	}
	u.Email = email.String
	u.Enabled = enabledInt == 1
	return &u, nil
}

// EnabledUsers returns all enabled users
func (s *Store) EnabledUsers(ctx context.Context) ([]*engine.User, error) {
	return s.listUsers(ctx, true)
}

// Users returns every user, enabled or not
func (s *Store) Users(ctx context.Context) ([]*engine.User, error) {
	return s.listUsers(ctx, false)
}

func (s *Store) listUsers(ctx context.Context, enabledOnly bool) ([]*engine.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []*engine.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UserByPhone returns the first enabled user with the given phone number
func (s *Store) UserByPhone(ctx context.Context, phone string) (*engine.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE phone = ? AND enabled = 1 ORDER BY created_at LIMIT 1`, phone)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// SaveItem inserts or replaces a wardrobe item, assigning an id when empty
func (s *Store) SaveItem(ctx context.Context, it *engine.Item) error {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	query := `INSERT OR REPLACE INTO items (id, user_id, category, description, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query, it.ID, it.UserID, string(it.Category), it.Description,
		boolToInt(it.Enabled), s.now().UnixNano())
	return err
}

// SetItemEnabled toggles whether an item can be picked
func (s *Store) SetItemEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE items SET enabled = ? WHERE id = ?`, boolToInt(enabled), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Items returns a user's items in one category
func (s *Store) Items(ctx context.Context, userID string, cat engine.Category, includeDisabled bool) ([]engine.Item, error) {
	query := `SELECT id, user_id, category, description, enabled FROM items
		WHERE user_id = ? AND category = ?`
	if !includeDisabled {
		query += ` AND enabled = 1`
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, userID, string(cat))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []engine.Item{}
	for rows.Next() {
		var it engine.Item
		var category string
		var enabledInt int
		if err := rows.Scan(&it.ID, &it.UserID, &category, &it.Description, &enabledInt); err != nil {
			return nil, err
		}
		it.Category = engine.Category(category)
		it.Enabled = enabledInt == 1
		items = append(items, it)
	}
	return items, rows.Err()
}

// SaveOutfit appends an outfit record stamped with the current time
func (s *Store) SaveOutfit(ctx context.Context, userID string, o *engine.Outfit) (*engine.OutfitRecord, error) {
	rec := o.Record(userID)
	rec.ID = uuid.NewString()
	rec.CreatedAt = s.now().UTC()

	query := `INSERT INTO outfits (id, user_id, top_id, bottom_id, shoe_id, ts) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, rec.ID, rec.UserID, rec.TopID, rec.BottomID,
		nullString(rec.ShoeID), rec.CreatedAt.UnixNano())
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// OutfitsSince returns a user's outfits newer than since, newest first
func (s *Store) OutfitsSince(ctx context.Context, userID string, since time.Time) ([]engine.OutfitRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, top_id, bottom_id, shoe_id, ts FROM outfits
		WHERE user_id = ? AND ts > ? ORDER BY ts DESC`, userID, since.UnixNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []engine.OutfitRecord{}
	for rows.Next() {
		rec, err := scanOutfit(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// LatestOutfit returns the most recent outfit of a user
func (s *Store) LatestOutfit(ctx context.Context, userID string) (*engine.OutfitRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, user_id, top_id, bottom_id, shoe_id, ts FROM outfits
		WHERE user_id = ? ORDER BY ts DESC LIMIT 1`, userID)
	rec, err := scanOutfit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func scanOutfit(row interface{ Scan(...any) error }) (*engine.OutfitRecord, error) {
	var rec engine.OutfitRecord
	var shoe sql.NullString
	var ts int64
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.TopID, &rec.BottomID, &shoe, &ts); err != nil {
		return nil, err
	}
	rec.ShoeID = shoe.String
	rec.CreatedAt = time.Unix(0, ts).UTC()
	return &rec, nil
}

// UnallowedPairs returns a user's full constraint set
func (s *Store) UnallowedPairs(ctx context.Context, userID string) ([]engine.UnallowedPair, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, category_1, id_1, category_2, id_2
		FROM unallowed_pairs WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pairs := []engine.UnallowedPair{}
	for rows.Next() {
		var p engine.UnallowedPair
		var c1, c2 string
		if err := rows.Scan(&p.UserID, &c1, &p.ID1, &c2, &p.ID2); err != nil {
			return nil, err
		}
		p.Category1 = engine.Category(c1)
		p.Category2 = engine.Category(c2)
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// AddUnallowedPair stores a pair; an identical existing pair is kept as is
func (s *Store) AddUnallowedPair(ctx context.Context, p engine.UnallowedPair) error {
	query := `INSERT OR IGNORE INTO unallowed_pairs (id, user_id, category_1, id_1, category_2, id_2)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, uuid.NewString(), p.UserID, string(p.Category1), p.ID1,
		string(p.Category2), p.ID2)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
