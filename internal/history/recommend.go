package history

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/msourial/platefull/pkg/db/models"
	"github.com/msourial/platefull/pkg/enums"
)

var (
	smallOrderTags = []string{"wrap", "sandwich"}
	largeOrderTags = []string{"platter", "combo"}
)

// spiceTags maps a stated spice preference onto catalog tags.
var spiceTags = map[string][]string{
	"spicy":  {"spicy", "hot"},
	"hot":    {"spicy", "hot"},
	"medium": {"medium"},
	"mild":   {"mild"},
}

type picker struct {
	items  map[uint]models.MenuItem
	chosen map[uint]struct{}
	out    []Recommendation
	limit  int
}

func (p *picker) full() bool { return len(p.out) >= p.limit }

func (p *picker) add(item models.MenuItem, source RecommendationSource, reason string) bool {
	if p.full() {
		return false
	}
	if _, dup := p.chosen[item.ID]; dup {
		return false
	}
	p.chosen[item.ID] = struct{}{}
	p.out = append(p.out, Recommendation{
		MenuItemID: item.ID,
		Name:       item.Name,
		Price:      item.Price,
		Reason:     reason,
		Source:     source,
	})
	return true
}

// byPopularity returns available items matching keep, most popular first.
func (p *picker) byPopularity(keep func(models.MenuItem) bool) []models.MenuItem {
	var out []models.MenuItem
	for _, item := range p.items {
		if keep(item) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Popularity != out[j].Popularity {
			return out[i].Popularity > out[j].Popularity
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (p *picker) addFirst(candidates []models.MenuItem, source RecommendationSource, reason string) {
	for _, item := range candidates {
		if p.add(item, source, reason) {
			return
		}
	}
}

// GenerateRecommendations combines, in priority order, a favorite not
// ordered in the last day, a new item from the top category, an item matching
// the session preferences, an item sized to the usual order, and popular
// items as padding. No item appears twice.
func (s *service) GenerateRecommendations(ctx context.Context, userID string, prefs Preferences) ([]Recommendation, error) {
	profile, err := s.AnalyzeOrderHistory(ctx, userID)
	if err != nil {
		return nil, err
	}
	available, err := s.catalog.ListMenuItems(ctx, nil)
	if err != nil {
		return nil, err
	}
	p := &picker{
		items:  make(map[uint]models.MenuItem, len(available)),
		chosen: map[uint]struct{}{},
		limit:  s.count,
	}
	for _, item := range available {
		p.items[item.ID] = item
	}
	now := s.now()

	for _, fav := range profile.Favorites {
		if now.Sub(fav.LastOrderedAt) < 24*time.Hour {
			continue
		}
		item, ok := p.items[fav.MenuItemID]
		if !ok {
			continue
		}
		if p.add(item, SourceFavorite, fmt.Sprintf("One of your favorites, ordered %d times", fav.OrderCount)) {
			break
		}
	}

	if len(profile.FrequentCategories) > 0 {
		top := profile.FrequentCategories[0]
		favored := map[uint]struct{}{}
		for _, fav := range profile.Favorites {
			favored[fav.MenuItemID] = struct{}{}
		}
		reason := "Something new from a category you love"
		if top.Name != "" {
			reason = fmt.Sprintf("Something new from %s, a category you order often", top.Name)
		}
		p.addFirst(p.byPopularity(func(item models.MenuItem) bool {
			_, fav := favored[item.ID]
			return item.CategoryID == top.CategoryID && !fav
		}), SourceCategory, reason)
	}

	if tags := preferenceTags(prefs); len(tags) > 0 {
		p.addFirst(p.byPopularity(func(item models.MenuItem) bool {
			return hasAnyTag(item, tags)
		}), SourcePreference, fmt.Sprintf("Matches your %s preference", strings.Join(prefLabels(prefs), " and ")))
	}

	if profile.CompletedOrders > 0 {
		var tags []string
		var reason string
		switch {
		case profile.AverageItemsPerOrder <= 1.5:
			tags, reason = smallOrderTags, "A great size for a quick meal"
		case profile.AverageItemsPerOrder >= 3:
			tags, reason = largeOrderTags, "Sized for the bigger orders you usually place"
		}
		if len(tags) > 0 {
			p.addFirst(p.byPopularity(func(item models.MenuItem) bool {
				return hasAnyTag(item, tags)
			}), SourceOrderSize, reason)
		}
	}

	if !p.full() {
		popular, err := s.catalog.GetPopularMenuItems(ctx, p.limit+len(p.out))
		if err != nil {
			return nil, err
		}
		for _, item := range popular {
			if p.full() {
				break
			}
			p.add(item, SourcePopular, "Popular with other customers")
		}
	}
	return p.out, nil
}

func preferenceTags(prefs Preferences) []string {
	var tags []string
	if d := normalizeTag(prefs.Dietary); d != "" {
		tags = append(tags, d)
	}
	if sp := strings.ToLower(strings.TrimSpace(prefs.Spice)); sp != "" {
		if mapped, ok := spiceTags[sp]; ok {
			tags = append(tags, mapped...)
		} else {
			tags = append(tags, sp)
		}
	}
	return tags
}

func prefLabels(prefs Preferences) []string {
	var out []string
	if prefs.Dietary != "" {
		out = append(out, prefs.Dietary)
	}
	if prefs.Spice != "" {
		out = append(out, prefs.Spice)
	}
	return out
}

func normalizeTag(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "-")
}

func hasAnyTag(item models.MenuItem, tags []string) bool {
	for _, t := range tags {
		if item.HasTag(t) {
			return true
		}
	}
	return false
}

// PersonalizedGreeting welcomes the user, calling out their usual time of day
// and favorite when the history supports it.
func PersonalizedGreeting(profile *Profile, name string, now time.Time) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "there"
	}
	bucket := enums.TimeOfDayForHour(now.Hour())
	if profile == nil || profile.CompletedOrders == 0 {
		return fmt.Sprintf("%s, %s! Welcome to PlateFull. What can I get started for you?", salutation(bucket), name)
	}

	var b strings.Builder
	if profile.TypicalTime != "" && profile.TypicalTime == bucket {
		fmt.Fprintf(&b, "%s, %s! Right on time for your usual %s order.", salutation(bucket), name, bucket)
	} else {
		fmt.Fprintf(&b, "Welcome back, %s!", name)
	}
	if fav, ok := profile.TopFavorite(); ok && profile.HasMealPatterns {
		fmt.Fprintf(&b, " Craving your %s again?", fav.Name)
	}
	return b.String()
}

func salutation(bucket enums.TimeOfDay) string {
	if bucket == enums.TimeOfDayNight {
		return "Hi"
	}
	return "Good " + string(bucket)
}
