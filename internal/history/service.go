// Package history mines a user's completed orders into favorites, category
// affinities and time-of-day habits, and turns them into suggestions.
package history

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/msourial/platefull/internal/catalog"
	"github.com/msourial/platefull/pkg/db/models"
	"github.com/msourial/platefull/pkg/enums"
)

const (
	favoriteLimit         = 3
	frequentCategoryLimit = 2
	reorderWindow         = 30 * 24 * time.Hour
)

// OrderReader lists a user's orders newest first.
type OrderReader interface {
	GetOrdersByUser(ctx context.Context, userID string, statuses []enums.OrderStatus, limit int) ([]models.Order, error)
}

// Catalog is the read surface used to resolve and pad recommendations.
type Catalog interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	ListMenuItems(ctx context.Context, categoryID *uint) ([]models.MenuItem, error)
	GetPopularMenuItems(ctx context.Context, limit int) ([]models.MenuItem, error)
}

// Options tune the analyzer.
type Options struct {
	RecommendationCount int
	Location            *time.Location
}

// Service exposes the analytics operations.
type Service interface {
	AnalyzeOrderHistory(ctx context.Context, userID string) (*Profile, error)
	GenerateRecommendations(ctx context.Context, userID string, prefs Preferences) ([]Recommendation, error)
	CheckForReorderSuggestion(ctx context.Context, userID string) (*ReorderSuggestion, error)
}

type service struct {
	orders  OrderReader
	catalog Catalog
	count   int
	loc     *time.Location
	now     func() time.Time
}

// NewService builds an analytics service over the order and catalog repositories.
func NewService(orders OrderReader, cat Catalog, opts Options) (Service, error) {
	if orders == nil {
		return nil, fmt.Errorf("order reader required")
	}
	if cat == nil {
		return nil, fmt.Errorf("catalog required")
	}
	count := opts.RecommendationCount
	if count <= 0 {
		count = 4
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	return &service{orders: orders, catalog: cat, count: count, loc: loc, now: time.Now}, nil
}

func (s *service) completedOrders(ctx context.Context, userID string) ([]models.Order, error) {
	return s.orders.GetOrdersByUser(ctx, userID, enums.CompletedOrderStatuses, 0)
}

// AnalyzeOrderHistory builds the profile. A user without completed orders
// gets an empty profile rather than an error.
func (s *service) AnalyzeOrderHistory(ctx context.Context, userID string) (*Profile, error) {
	orders, err := s.completedOrders(ctx, userID)
	if err != nil {
		return nil, err
	}
	var categoryNames catalog.CategoryIndex
	if len(orders) > 0 {
		categoryNames, err = catalog.IndexCategories(ctx, s.catalog)
		if err != nil {
			return nil, err
		}
	}
	return buildProfile(userID, orders, categoryNames, s.loc), nil
}

func buildProfile(userID string, orders []models.Order, categories catalog.CategoryIndex, loc *time.Location) *Profile {
	profile := &Profile{
		UserID:                   userID,
		CompletedOrders:          len(orders),
		Favorites:                []Favorite{},
		FrequentCategories:       []CategoryAffinity{},
		CustomizationPreferences: map[string]string{},
	}
	if len(orders) == 0 {
		return profile
	}

	favorites := map[uint]*Favorite{}
	categoryCounts := map[uint]int{}
	buckets := map[enums.TimeOfDay]int{}
	choices := map[string]map[string]int{}
	lines := 0
	var latest time.Time

	for _, order := range orders {
		placed := placedAt(order)
		if placed.After(latest) {
			latest = placed
		}
		buckets[enums.TimeOfDayForHour(placed.In(loc).Hour())]++

		for _, item := range order.Items {
			lines++
			fav, ok := favorites[item.MenuItemID]
			if !ok {
				fav = &Favorite{MenuItemID: item.MenuItemID, Name: item.Name, CategoryID: item.CategoryID}
				favorites[item.MenuItemID] = fav
			}
			fav.OrderCount++
			if placed.After(fav.LastOrderedAt) {
				fav.LastOrderedAt = placed
			}
			if item.CategoryID != 0 {
				categoryCounts[item.CategoryID]++
			}
			for option, choice := range item.Customizations {
				if choices[option] == nil {
					choices[option] = map[string]int{}
				}
				choices[option][choice]++
			}
		}
	}

	profile.Favorites = rankFavorites(favorites)
	profile.FrequentCategories = rankCategories(categoryCounts, categories)
	profile.TypicalTime = typicalTime(buckets)
	profile.CustomizationPreferences = modalChoices(choices)
	profile.AverageItemsPerOrder = float64(lines) / float64(len(orders))
	profile.HasMealPatterns = len(profile.Favorites) > 0 && profile.Favorites[0].OrderCount >= 2 && len(orders) >= 3
	profile.LastOrderAt = &latest
	return profile
}

// placedAt is the confirmation time when known, otherwise the creation time.
func placedAt(order models.Order) time.Time {
	if order.ConfirmedAt != nil {
		return *order.ConfirmedAt
	}
	return order.CreatedAt
}

func rankFavorites(counts map[uint]*Favorite) []Favorite {
	out := make([]Favorite, 0, len(counts))
	for _, fav := range counts {
		out = append(out, *fav)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderCount != out[j].OrderCount {
			return out[i].OrderCount > out[j].OrderCount
		}
		if !out[i].LastOrderedAt.Equal(out[j].LastOrderedAt) {
			return out[i].LastOrderedAt.After(out[j].LastOrderedAt)
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].MenuItemID < out[j].MenuItemID
	})
	if len(out) > favoriteLimit {
		out = out[:favoriteLimit]
	}
	return out
}

func rankCategories(counts map[uint]int, names catalog.CategoryIndex) []CategoryAffinity {
	out := make([]CategoryAffinity, 0, len(counts))
	for id, count := range counts {
		out = append(out, CategoryAffinity{CategoryID: id, Name: names.Name(id), Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].CategoryID < out[j].CategoryID
	})
	if len(out) > frequentCategoryLimit {
		out = out[:frequentCategoryLimit]
	}
	return out
}

// typicalTime picks the busiest bucket; ties go to the earliest bucket in
// morning, afternoon, evening, night order.
func typicalTime(buckets map[enums.TimeOfDay]int) enums.TimeOfDay {
	var best enums.TimeOfDay
	bestCount := 0
	for _, bucket := range enums.TimeOfDayOrder {
		if buckets[bucket] > bestCount {
			best = bucket
			bestCount = buckets[bucket]
		}
	}
	return best
}

// modalChoices keeps the most frequent choice per option; ties go to the
// lexically smallest choice.
func modalChoices(choices map[string]map[string]int) map[string]string {
	out := make(map[string]string, len(choices))
	for option, counts := range choices {
		best, bestCount := "", 0
		for choice, count := range counts {
			if count > bestCount || (count == bestCount && choice < best) {
				best, bestCount = choice, count
			}
		}
		out[option] = best
	}
	return out
}

// CheckForReorderSuggestion proposes the latest completed order when it is at
// most 30 days old.
func (s *service) CheckForReorderSuggestion(ctx context.Context, userID string) (*ReorderSuggestion, error) {
	orders, err := s.orders.GetOrdersByUser(ctx, userID, enums.CompletedOrderStatuses, 1)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return &ReorderSuggestion{}, nil
	}
	last := orders[0]
	placed := placedAt(last)
	timeframe, ok := Timeframe(s.now().Sub(placed))
	if !ok {
		return &ReorderSuggestion{}, nil
	}
	return &ReorderSuggestion{
		ShouldSuggest: true,
		OrderID:       last.ID,
		PlacedAt:      placed,
		Timeframe:     timeframe,
		Items:         last.Items,
	}, nil
}

// Timeframe phrases how long ago an order was placed. Orders older than 30
// days, or from the future, are not phrased.
func Timeframe(elapsed time.Duration) (string, bool) {
	if elapsed < 0 || elapsed > reorderWindow {
		return "", false
	}
	day := 24 * time.Hour
	switch {
	case elapsed < day:
		return "earlier today", true
	case elapsed < 2*day:
		return "yesterday", true
	case elapsed < 7*day:
		return "earlier this week", true
	case elapsed < 14*day:
		return "last week", true
	default:
		return "a few weeks ago", true
	}
}
