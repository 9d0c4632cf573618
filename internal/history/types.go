package history

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/msourial/platefull/pkg/db/models"
	"github.com/msourial/platefull/pkg/enums"
)

// Favorite is a menu item the user keeps coming back to.
type Favorite struct {
	MenuItemID    uint      `json:"menu_item_id"`
	Name          string    `json:"name"`
	CategoryID    uint      `json:"category_id"`
	OrderCount    int       `json:"order_count"`
	LastOrderedAt time.Time `json:"last_ordered_at"`
}

// CategoryAffinity counts ordered lines per category.
type CategoryAffinity struct {
	CategoryID uint   `json:"category_id"`
	Name       string `json:"name"`
	Count      int    `json:"count"`
}

// Profile is derived from completed orders on demand and never stored.
type Profile struct {
	UserID                   string             `json:"user_id"`
	CompletedOrders          int                `json:"completed_orders"`
	Favorites                []Favorite         `json:"favorites"`
	FrequentCategories       []CategoryAffinity `json:"frequent_categories"`
	TypicalTime              enums.TimeOfDay    `json:"typical_time,omitempty"`
	CustomizationPreferences map[string]string  `json:"customization_preferences"`
	AverageItemsPerOrder     float64            `json:"average_items_per_order"`
	HasMealPatterns          bool               `json:"has_meal_patterns"`
	LastOrderAt              *time.Time         `json:"last_order_at,omitempty"`
}

// TopFavorite returns the highest ranked favorite.
func (p *Profile) TopFavorite() (Favorite, bool) {
	if p == nil || len(p.Favorites) == 0 {
		return Favorite{}, false
	}
	return p.Favorites[0], true
}

// Preferences carries what the conversation has learned about the user this session.
type Preferences struct {
	Dietary string
	Spice   string
}

// RecommendationSource names the rule that produced a recommendation.
type RecommendationSource string

const (
	SourceFavorite   RecommendationSource = "favorite"
	SourceCategory   RecommendationSource = "category"
	SourcePreference RecommendationSource = "preference"
	SourceOrderSize  RecommendationSource = "order_size"
	SourcePopular    RecommendationSource = "popular"
)

// Recommendation is one suggested menu item and why it was picked.
type Recommendation struct {
	MenuItemID uint                 `json:"menu_item_id"`
	Name       string               `json:"name"`
	Price      decimal.Decimal      `json:"price"`
	Reason     string               `json:"reason"`
	Source     RecommendationSource `json:"source"`
}

// ReorderSuggestion proposes repeating the most recent completed order.
type ReorderSuggestion struct {
	ShouldSuggest bool               `json:"should_suggest"`
	OrderID       uint               `json:"order_id,omitempty"`
	PlacedAt      time.Time          `json:"placed_at,omitempty"`
	Timeframe     string             `json:"timeframe,omitempty"`
	Items         []models.OrderItem `json:"-"`
}
