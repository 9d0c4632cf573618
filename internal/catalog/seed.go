package catalog

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/msourial/platefull/pkg/db/models"
)

// MenuFile is the YAML layout accepted by the seeder.
type MenuFile struct {
	Categories []CategorySeed `yaml:"categories"`
}

// CategorySeed describes one category and its items.
type CategorySeed struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	SortOrder   int        `yaml:"sort_order"`
	Items       []ItemSeed `yaml:"items"`
}

// ItemSeed describes one menu item. Price is kept as a string so YAML floats
// never round.
type ItemSeed struct {
	Name        string                       `yaml:"name"`
	Description string                       `yaml:"description"`
	Price       string                       `yaml:"price"`
	Available   *bool                        `yaml:"available"`
	Popularity  int                          `yaml:"popularity"`
	Tags        []string                     `yaml:"tags"`
	Options     []models.CustomizationOption `yaml:"options"`
}

// SeedResult counts the rows written.
type SeedResult struct {
	Categories int
	Items      int
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// LoadMenu parses and validates a YAML menu document.
func LoadMenu(r io.Reader) (*MenuFile, error) {
	var menu MenuFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&menu); err != nil {
		return nil, fmt.Errorf("decode menu: %w", err)
	}
	if err := menu.Validate(); err != nil {
		return nil, err
	}
	return &menu, nil
}

// Validate checks names, prices and option choices.
func (m MenuFile) Validate() error {
	if len(m.Categories) == 0 {
		return fmt.Errorf("menu has no categories")
	}
	seen := map[string]struct{}{}
	for ci, cat := range m.Categories {
		name := strings.TrimSpace(cat.Name)
		if name == "" {
			return fmt.Errorf("category %d: name required", ci)
		}
		if _, dup := seen[strings.ToLower(name)]; dup {
			return fmt.Errorf("category %q declared twice", name)
		}
		seen[strings.ToLower(name)] = struct{}{}
		for ii, item := range cat.Items {
			if strings.TrimSpace(item.Name) == "" {
				return fmt.Errorf("category %q item %d: name required", name, ii)
			}
			price, err := decimal.NewFromString(item.Price)
			if err != nil {
				return fmt.Errorf("item %q: invalid price %q", item.Name, item.Price)
			}
			if price.IsNegative() {
				return fmt.Errorf("item %q: price must not be negative", item.Name)
			}
			for _, opt := range item.Options {
				if strings.TrimSpace(opt.Name) == "" {
					return fmt.Errorf("item %q: option name required", item.Name)
				}
				if len(opt.Choices) == 0 {
					return fmt.Errorf("item %q option %q: choices required", item.Name, opt.Name)
				}
			}
		}
	}
	return nil
}

// Seeder writes a menu file into the catalog tables.
type Seeder struct {
	repo Repository
	tx   txRunner
}

// NewSeeder builds a seeder.
func NewSeeder(repo Repository, tx txRunner) (*Seeder, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &Seeder{repo: repo, tx: tx}, nil
}

// Seed upserts every category and item in one transaction. Running it twice
// with the same file leaves the catalog unchanged.
func (s *Seeder) Seed(ctx context.Context, menu *MenuFile) (SeedResult, error) {
	var res SeedResult
	if menu == nil {
		return res, fmt.Errorf("menu required")
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for i, cat := range menu.Categories {
			sortOrder := cat.SortOrder
			if sortOrder == 0 {
				sortOrder = i + 1
			}
			row := &models.Category{
				Name:        strings.TrimSpace(cat.Name),
				Description: cat.Description,
				SortOrder:   sortOrder,
			}
			if err := repo.UpsertCategory(ctx, row); err != nil {
				return err
			}
			res.Categories++

			for _, item := range cat.Items {
				available := true
				if item.Available != nil {
					available = *item.Available
				}
				entry := &models.MenuItem{
					CategoryID:  row.ID,
					Name:        strings.TrimSpace(item.Name),
					Description: item.Description,
					Price:       decimal.RequireFromString(item.Price),
					Available:   available,
					Popularity:  item.Popularity,
					Tags:        normalizeTags(item.Tags),
					Options:     models.CustomizationOptions(item.Options),
				}
				if err := repo.UpsertMenuItem(ctx, entry); err != nil {
					return err
				}
				res.Items++
			}
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, err
	}
	return res, nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
