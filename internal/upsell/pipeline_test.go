package upsell

import (
	"context"
	"testing"

	"github.com/msourial/platefull/pkg/config"
	"github.com/msourial/platefull/pkg/db/models"
	"github.com/msourial/platefull/pkg/enums"
)

type stubCatalog struct {
	categories []models.Category
	items      []models.MenuItem
}

func (s stubCatalog) ListCategories(ctx context.Context) ([]models.Category, error) {
	return s.categories, nil
}

func (s stubCatalog) ListMenuItems(ctx context.Context, categoryID *uint) ([]models.MenuItem, error) {
	var out []models.MenuItem
	for _, item := range s.items {
		if categoryID == nil || item.CategoryID == *categoryID {
			out = append(out, item)
		}
	}
	return out, nil
}

const (
	catWraps uint = iota + 1
	catSides
	catDrinks
	catDesserts
)

func testConfig() config.UpsellConfig {
	return config.UpsellConfig{
		MainCategories:    []string{"Pitas", "Wraps", "Platters", "Main Dishes"},
		SidesCategories:   []string{"Sides", "Salads"},
		DrinksCategories:  []string{"Drinks", "Beverages"},
		DessertCategories: []string{"Desserts"},
		SidesLimit:        3,
		DrinksLimit:       3,
		DessertsLimit:     2,
	}
}

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	cat := stubCatalog{
		categories: []models.Category{
			{ID: catWraps, Name: "Wraps"},
			{ID: catSides, Name: "Sides"},
			{ID: catDrinks, Name: "Drinks"},
			{ID: catDesserts, Name: "Desserts"},
		},
		items: []models.MenuItem{
			{ID: 1, CategoryID: catWraps, Name: "Falafel Wrap"},
			{ID: 10, CategoryID: catSides, Name: "Fries", Popularity: 50},
			{ID: 11, CategoryID: catSides, Name: "Hummus", Popularity: 80},
			{ID: 12, CategoryID: catSides, Name: "Tabbouleh", Popularity: 30},
			{ID: 13, CategoryID: catSides, Name: "Pickles", Popularity: 10},
			{ID: 20, CategoryID: catDrinks, Name: "Mint Lemonade"},
			{ID: 30, CategoryID: catDesserts, Name: "Baklava", Popularity: 5},
			{ID: 31, CategoryID: catDesserts, Name: "Kunafa", Popularity: 9},
			{ID: 32, CategoryID: catDesserts, Name: "Halva", Popularity: 1},
		},
	}
	p, err := NewPipeline(cat, testConfig())
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p
}

func TestMainDishEntersSidesStage(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	flags, err := p.AfterAdd(ctx, catWraps, Flags{})
	if err != nil {
		t.Fatalf("after add: %v", err)
	}
	if flags != (Flags{Sides: true}) {
		t.Fatalf("expected sides flag, got %+v", flags)
	}

	offer, err := p.Offer(ctx, flags, &models.Order{})
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if offer.Stage != enums.UpsellStageSides || offer.BrowseCategoryID != catSides {
		t.Fatalf("unexpected offer %+v", offer)
	}
	if len(offer.Items) != 3 || offer.Items[0].Name != "Hummus" {
		t.Fatalf("expected 3 sides led by the most popular, got %+v", offer.Items)
	}
}

func TestSkipSidesMovesToDrinks(t *testing.T) {
	p := newTestPipeline(t)

	flags := Skip(enums.UpsellStageSides)
	if flags != (Flags{Drinks: true}) {
		t.Fatalf("expected drinks flag only, got %+v", flags)
	}
	offer, err := p.Offer(context.Background(), flags, &models.Order{})
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if offer.Stage != enums.UpsellStageDrinks || offer.Flags != (Flags{Drinks: true}) {
		t.Fatalf("unexpected offer %+v", offer)
	}
}

func TestDrinksSkippedWhenCartHasDrink(t *testing.T) {
	p := newTestPipeline(t)
	cart := &models.Order{Items: []models.OrderItem{
		{MenuItemID: 1, CategoryID: catWraps},
		{MenuItemID: 20, CategoryID: catDrinks},
	}}

	offer, err := p.Offer(context.Background(), Skip(enums.UpsellStageSides), cart)
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if offer.Stage != enums.UpsellStageDesserts || offer.Flags != (Flags{Desserts: true}) {
		t.Fatalf("expected desserts offered directly, got %+v", offer)
	}
	if len(offer.Items) != 2 || offer.Items[0].Name != "Kunafa" {
		t.Fatalf("expected 2 desserts, got %+v", offer.Items)
	}
}

func TestDessertsInCartEndsChain(t *testing.T) {
	p := newTestPipeline(t)
	cart := &models.Order{Items: []models.OrderItem{{CategoryID: catDesserts}}}

	offer, err := p.Offer(context.Background(), Flags{Desserts: true}, cart)
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if !offer.Terminal || offer.Flags.Active() {
		t.Fatalf("expected terminal offer, got %+v", offer)
	}
}

func TestAddingDuringStageAdvances(t *testing.T) {
	p := newTestPipeline(t)

	flags, err := p.AfterAdd(context.Background(), catSides, Flags{Sides: true})
	if err != nil {
		t.Fatalf("after add: %v", err)
	}
	if flags != (Flags{Drinks: true}) {
		t.Fatalf("expected drinks after accepting a side, got %+v", flags)
	}

	flags, err = p.AfterAdd(context.Background(), catDrinks, Flags{})
	if err != nil {
		t.Fatalf("after add: %v", err)
	}
	if flags.Active() {
		t.Fatalf("expected idle chain for a non-main item, got %+v", flags)
	}
}

func TestSkipDessertsIsTerminal(t *testing.T) {
	if Skip(enums.UpsellStageDesserts).Active() {
		t.Fatalf("skipping desserts should end the chain")
	}
	if Advance(Flags{}).Active() {
		t.Fatalf("advancing an idle chain stays idle")
	}
}

func TestMissingCategoryIsPassedOver(t *testing.T) {
	cat := stubCatalog{
		categories: []models.Category{{ID: catWraps, Name: "Wraps"}, {ID: catDesserts, Name: "Desserts"}},
		items:      []models.MenuItem{{ID: 30, CategoryID: catDesserts, Name: "Baklava"}},
	}
	p, err := NewPipeline(cat, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	offer, err := p.Offer(context.Background(), Flags{Sides: true}, nil)
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if offer.Stage != enums.UpsellStageDesserts {
		t.Fatalf("expected desserts when sides and drinks are absent, got %+v", offer)
	}
}
