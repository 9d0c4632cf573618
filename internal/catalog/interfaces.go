package catalog

import (
	"context"

	"gorm.io/gorm"

	"github.com/msourial/platefull/pkg/db/models"
)

// Repository exposes read access to categories and menu items plus the upserts
// used by seeding. Lookups that miss return a CodeNotFound error.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListCategories(ctx context.Context) ([]models.Category, error)
	GetCategory(ctx context.Context, id uint) (*models.Category, error)
	FindCategoryByName(ctx context.Context, name string) (*models.Category, error)
	ListMenuItems(ctx context.Context, categoryID *uint) ([]models.MenuItem, error)
	GetMenuItem(ctx context.Context, id uint) (*models.MenuItem, error)
	FindMenuItemsByName(ctx context.Context, name string) ([]models.MenuItem, error)
	GetPopularMenuItems(ctx context.Context, limit int) ([]models.MenuItem, error)
	UpsertCategory(ctx context.Context, category *models.Category) error
	UpsertMenuItem(ctx context.Context, item *models.MenuItem) error
}
