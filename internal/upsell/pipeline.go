// Package upsell decides which follow-up items to suggest after something
// lands in the cart. The position in the chain lives entirely in Flags so a
// turn can resume it from any entry point.
package upsell

import (
	"context"
	"fmt"
	"sort"

	"github.com/msourial/platefull/internal/catalog"
	"github.com/msourial/platefull/pkg/config"
	"github.com/msourial/platefull/pkg/db/models"
	"github.com/msourial/platefull/pkg/enums"
)

// Catalog is the read surface the pipeline needs.
type Catalog interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	ListMenuItems(ctx context.Context, categoryID *uint) ([]models.MenuItem, error)
}

// Flags mirror the pending-suggestion flags stored in the session context.
// At most one is set at a time.
type Flags struct {
	Sides    bool
	Drinks   bool
	Desserts bool
}

// Stage reports the stage the flags point at, or false when the chain is idle.
func (f Flags) Stage() (enums.UpsellStage, bool) {
	switch {
	case f.Sides:
		return enums.UpsellStageSides, true
	case f.Drinks:
		return enums.UpsellStageDrinks, true
	case f.Desserts:
		return enums.UpsellStageDesserts, true
	}
	return "", false
}

// Active reports whether any stage is pending.
func (f Flags) Active() bool {
	_, ok := f.Stage()
	return ok
}

func flagsFor(stage enums.UpsellStage) Flags {
	switch stage {
	case enums.UpsellStageSides:
		return Flags{Sides: true}
	case enums.UpsellStageDrinks:
		return Flags{Drinks: true}
	case enums.UpsellStageDesserts:
		return Flags{Desserts: true}
	}
	return Flags{}
}

func nextStage(stage enums.UpsellStage) (enums.UpsellStage, bool) {
	switch stage {
	case enums.UpsellStageSides:
		return enums.UpsellStageDrinks, true
	case enums.UpsellStageDrinks:
		return enums.UpsellStageDesserts, true
	}
	return "", false
}

// Offer is what the pipeline wants shown after the current turn. Terminal
// offers carry no items; the caller shows the "anything else?" prompt.
type Offer struct {
	Stage            enums.UpsellStage
	Items            []models.MenuItem
	BrowseCategoryID uint
	Terminal         bool
	Flags            Flags
}

// Pipeline resolves stage category names against the live catalog.
type Pipeline struct {
	catalog Catalog
	cfg     config.UpsellConfig
}

// NewPipeline builds an upsell pipeline.
func NewPipeline(cat Catalog, cfg config.UpsellConfig) (*Pipeline, error) {
	if cat == nil {
		return nil, fmt.Errorf("catalog required")
	}
	if len(cfg.MainCategories) == 0 {
		return nil, fmt.Errorf("main categories required")
	}
	return &Pipeline{catalog: cat, cfg: cfg}, nil
}

// AfterAdd computes the flags once an item from categoryID is fully in the
// cart (added without options, or its customization finished). A main dish
// restarts the chain at sides; anything else added mid-chain counts as
// accepting the current stage.
func (p *Pipeline) AfterAdd(ctx context.Context, categoryID uint, flags Flags) (Flags, error) {
	idx, err := catalog.IndexCategories(ctx, p.catalog)
	if err != nil {
		return flags, err
	}
	if containsID(idx.IDsNamed(p.cfg.MainCategories), categoryID) {
		return Flags{Sides: true}, nil
	}
	return Advance(flags), nil
}

// Advance moves past the current stage.
func Advance(flags Flags) Flags {
	stage, ok := flags.Stage()
	if !ok {
		return Flags{}
	}
	next, ok := nextStage(stage)
	if !ok {
		return Flags{}
	}
	return flagsFor(next)
}

// Skip declines stage. Skipping always lands on the stage after the one
// named, whatever the flags were.
func Skip(stage enums.UpsellStage) Flags {
	next, ok := nextStage(stage)
	if !ok {
		return Flags{}
	}
	return flagsFor(next)
}

// Offer builds the suggestion for the stage flags point at. Stages whose
// category is already in the cart, or that have nothing to offer, are passed
// over until a stage yields items or the chain ends.
func (p *Pipeline) Offer(ctx context.Context, flags Flags, cart *models.Order) (*Offer, error) {
	stage, ok := flags.Stage()
	if !ok {
		return &Offer{Terminal: true}, nil
	}
	idx, err := catalog.IndexCategories(ctx, p.catalog)
	if err != nil {
		return nil, err
	}

	for {
		categoryIDs := idx.IDsNamed(p.categoriesFor(stage))
		alreadyInCart := stage != enums.UpsellStageSides && cartHasCategory(cart, categoryIDs)
		if len(categoryIDs) > 0 && !alreadyInCart {
			items, err := p.itemsFor(ctx, categoryIDs, p.limitFor(stage))
			if err != nil {
				return nil, err
			}
			if len(items) > 0 {
				return &Offer{
					Stage:            stage,
					Items:            items,
					BrowseCategoryID: categoryIDs[0],
					Flags:            flagsFor(stage),
				}, nil
			}
		}
		next, ok := nextStage(stage)
		if !ok {
			return &Offer{Terminal: true}, nil
		}
		stage = next
	}
}

func (p *Pipeline) categoriesFor(stage enums.UpsellStage) []string {
	switch stage {
	case enums.UpsellStageSides:
		return p.cfg.SidesCategories
	case enums.UpsellStageDrinks:
		return p.cfg.DrinksCategories
	case enums.UpsellStageDesserts:
		return p.cfg.DessertCategories
	}
	return nil
}

func (p *Pipeline) limitFor(stage enums.UpsellStage) int {
	switch stage {
	case enums.UpsellStageSides:
		return p.cfg.SidesLimit
	case enums.UpsellStageDrinks:
		return p.cfg.DrinksLimit
	case enums.UpsellStageDesserts:
		return p.cfg.DessertsLimit
	}
	return 0
}

func (p *Pipeline) itemsFor(ctx context.Context, categoryIDs []uint, limit int) ([]models.MenuItem, error) {
	if limit <= 0 {
		return nil, nil
	}
	var items []models.MenuItem
	for _, id := range categoryIDs {
		id := id
		rows, err := p.catalog.ListMenuItems(ctx, &id)
		if err != nil {
			return nil, err
		}
		items = append(items, rows...)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Popularity != items[j].Popularity {
			return items[i].Popularity > items[j].Popularity
		}
		return items[i].Name < items[j].Name
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func cartHasCategory(cart *models.Order, categoryIDs []uint) bool {
	if cart == nil {
		return false
	}
	for _, item := range cart.Items {
		if containsID(categoryIDs, item.CategoryID) {
			return true
		}
	}
	return false
}

func containsID(ids []uint, id uint) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
