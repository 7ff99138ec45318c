package engine

import "time"

// Category is a tracked clothing category
type Category string

const (
	CategoryTop    Category = "top"
	CategoryBottom Category = "bottom"
	CategoryShoe   Category = "shoe"
)

// Categories lists the tracked categories in report order
var Categories = []Category{CategoryTop, CategoryBottom, CategoryShoe}

// ParseCategory accepts singular or plural category names
func ParseCategory(s string) (Category, bool) {
	switch s {
	case "top", "tops":
		return CategoryTop, true
	case "bottom", "bottoms":
		return CategoryBottom, true
	case "shoe", "shoes":
		return CategoryShoe, true
	}
	return "", false
}

// Item is a single wardrobe item owned by one user
type Item struct {
	ID          string   `json:"id"`
	UserID      string   `json:"user_id"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	Enabled     bool     `json:"enabled"`
}

// Outfit is the selection result: one item per tracked category
type Outfit struct {
	Top    Item  `json:"top"`
	Bottom Item  `json:"bottom"`
	Shoe   *Item `json:"shoe,omitempty"` // nil when the user does not track shoes
}

// OutfitRecord is a persisted outfit. Records are append-only.
type OutfitRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TopID     string    `json:"top_id"`
	BottomID  string    `json:"bottom_id"`
	ShoeID    string    `json:"shoe_id,omitempty"` // empty = no shoe
	CreatedAt time.Time `json:"created_at"`
}

// UnallowedPair forbids an item of Category1/ID1 from appearing together
// with an item of Category2/ID2.
type UnallowedPair struct {
	UserID    string   `json:"user_id"`
	Category1 Category `json:"category_1"`
	ID1       string   `json:"id_1"`
	Category2 Category `json:"category_2"`
	ID2       string   `json:"id_2"`
}

// User is a registered recipient
type User struct {
	ID      string  `json:"id"`
	Phone   string  `json:"phone"`
	Email   string  `json:"email,omitempty"`
	Days    [7]bool `json:"days"` // Monday first
	Enabled bool    `json:"enabled"`
}

// ScheduledOn reports whether the user receives a pick on t's weekday
func (u *User) ScheduledOn(t time.Time) bool {
	// time.Weekday starts on Sunday
	idx := (int(t.Weekday()) + 6) % 7
	return u.Days[idx]
}

// Wardrobe holds a user's items split by category
type Wardrobe struct {
	Tops    []Item
	Bottoms []Item
	Shoes   []Item
}

// Items returns the slice for a category
func (w Wardrobe) Items(c Category) []Item {
	switch c {
	case CategoryTop:
		return w.Tops
	case CategoryBottom:
		return w.Bottoms
	case CategoryShoe:
		return w.Shoes
	}
	return nil
}

// Index maps item id to item for a category
func (w Wardrobe) Index(c Category) map[string]Item {
	items := w.Items(c)
	idx := make(map[string]Item, len(items))
	for _, it := range items {
		idx[it.ID] = it
	}
	return idx
}

// UsageCount is one line of the usage report
type UsageCount struct {
	ItemID      string `json:"item_id"`
	Description string `json:"description"`
	Count       int    `json:"count"`
}

// UsageSummary bundles the per-category rankings
type UsageSummary struct {
	Tops    []UsageCount `json:"tops"`
	Bottoms []UsageCount `json:"bottoms"`
	Shoes   []UsageCount `json:"shoes"`
}

// Ranking returns the sequence for a category
func (s *UsageSummary) Ranking(c Category) []UsageCount {
	switch c {
	case CategoryTop:
		return s.Tops
	case CategoryBottom:
		return s.Bottoms
	case CategoryShoe:
		return s.Shoes
	}
	return nil
}
