package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Category groups menu items (Pitas, Sides, Drinks...).
type Category struct {
	ID          uint      `gorm:"column:id;primaryKey"`
	Name        string    `gorm:"column:name;not null;uniqueIndex"`
	Description string    `gorm:"column:description;not null;default:''"`
	SortOrder   int       `gorm:"column:sort_order;not null;default:0"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// CustomizationOption declares one configurable aspect of a menu item and
// its allowed choices.
type CustomizationOption struct {
	Name    string   `json:"name" yaml:"name"`
	Prompt  string   `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Choices []string `json:"choices" yaml:"choices"`
}

// HasChoice reports whether choice is one of the declared values.
func (o CustomizationOption) HasChoice(choice string) bool {
	for _, c := range o.Choices {
		if c == choice {
			return true
		}
	}
	return false
}

// CustomizationOptions is stored as a JSON document on the menu item row.
type CustomizationOptions []CustomizationOption

// Find returns the option with the given name.
func (o CustomizationOptions) Find(name string) (CustomizationOption, bool) {
	for _, opt := range o {
		if opt.Name == name {
			return opt, true
		}
	}
	return CustomizationOption{}, false
}

// MenuItem is a purchasable catalog entry.
type MenuItem struct {
	ID          uint                 `gorm:"column:id;primaryKey"`
	CategoryID  uint                 `gorm:"column:category_id;not null;index"`
	Name        string               `gorm:"column:name;not null"`
	Description string               `gorm:"column:description;not null;default:''"`
	Price       decimal.Decimal      `gorm:"column:price;type:numeric(10,2);not null"`
	Available   bool                 `gorm:"column:available;not null"`
	Popularity  int                  `gorm:"column:popularity;not null;default:0"`
	Tags        pq.StringArray       `gorm:"column:tags;type:text[]"`
	Options     CustomizationOptions `gorm:"column:options;type:jsonb;serializer:json"`
	CreatedAt   time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// HasTag reports whether the item carries the tag, case-sensitively.
func (m MenuItem) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
