package catalog

import (
	"context"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/msourial/platefull/pkg/db"
	"github.com/msourial/platefull/pkg/db/models"
	pkgerrors "github.com/msourial/platefull/pkg/errors"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a catalog repository bound to the provided DB.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ListCategories(ctx context.Context) ([]models.Category, error) {
	var rows []models.Category
	err := r.db.WithContext(ctx).
		Order("sort_order ASC").
		Order("name ASC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list categories")
	}
	return rows, nil
}

func (r *repository) GetCategory(ctx context.Context, id uint) (*models.Category, error) {
	var row models.Category
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, lookupError(err, "category not found", "load category")
	}
	return &row, nil
}

func (r *repository) FindCategoryByName(ctx context.Context, name string) (*models.Category, error) {
	var row models.Category
	err := r.db.WithContext(ctx).
		Where("LOWER(name) = ?", strings.ToLower(strings.TrimSpace(name))).
		First(&row).Error
	if err != nil {
		return nil, lookupError(err, "category not found", "find category")
	}
	return &row, nil
}

// ListMenuItems returns available items, optionally restricted to one category.
func (r *repository) ListMenuItems(ctx context.Context, categoryID *uint) ([]models.MenuItem, error) {
	q := r.db.WithContext(ctx).Where("available = ?", true)
	if categoryID != nil {
		q = q.Where("category_id = ?", *categoryID)
	}
	var rows []models.MenuItem
	if err := q.Order("name ASC").Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list menu items")
	}
	return rows, nil
}

func (r *repository) GetMenuItem(ctx context.Context, id uint) (*models.MenuItem, error) {
	var row models.MenuItem
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, lookupError(err, "menu item not found", "load menu item")
	}
	return &row, nil
}

// FindMenuItemsByName does a case-insensitive substring match. Exact name
// matches sort first, then more popular items.
func (r *repository) FindMenuItemsByName(ctx context.Context, name string) ([]models.MenuItem, error) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil, nil
	}
	var rows []models.MenuItem
	err := r.db.WithContext(ctx).
		Where("available = ?", true).
		Where("LOWER(name) LIKE ?", "%"+escapeLike(needle)+"%").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "search menu items")
	}
	sort.SliceStable(rows, func(i, j int) bool {
		ei := strings.ToLower(rows[i].Name) == needle
		ej := strings.ToLower(rows[j].Name) == needle
		if ei != ej {
			return ei
		}
		if rows[i].Popularity != rows[j].Popularity {
			return rows[i].Popularity > rows[j].Popularity
		}
		return rows[i].Name < rows[j].Name
	})
	return rows, nil
}

func (r *repository) GetPopularMenuItems(ctx context.Context, limit int) ([]models.MenuItem, error) {
	if limit <= 0 {
		return nil, nil
	}
	var rows []models.MenuItem
	err := r.db.WithContext(ctx).
		Where("available = ?", true).
		Order("popularity DESC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list popular items")
	}
	return rows, nil
}

// UpsertCategory inserts the category or refreshes the row with the same name.
func (r *repository) UpsertCategory(ctx context.Context, category *models.Category) error {
	if category == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "category required")
	}
	var existing models.Category
	err := r.db.WithContext(ctx).Where("name = ?", category.Name).First(&existing).Error
	switch {
	case err == nil:
		category.ID = existing.ID
		category.CreatedAt = existing.CreatedAt
		if err := r.db.WithContext(ctx).Save(category).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update category")
		}
		return nil
	case db.IsNotFound(err):
		if err := r.db.WithContext(ctx).Create(category).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create category")
		}
		return nil
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find category")
	}
}

// UpsertMenuItem inserts the item or refreshes the row with the same name in the same category.
func (r *repository) UpsertMenuItem(ctx context.Context, item *models.MenuItem) error {
	if item == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "menu item required")
	}
	var existing models.MenuItem
	err := r.db.WithContext(ctx).
		Where("category_id = ? AND name = ?", item.CategoryID, item.Name).
		First(&existing).Error
	switch {
	case err == nil:
		item.ID = existing.ID
		item.CreatedAt = existing.CreatedAt
		if err := r.db.WithContext(ctx).Save(item).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update menu item")
		}
		return nil
	case db.IsNotFound(err):
		if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create menu item")
		}
		return nil
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find menu item")
	}
}

func lookupError(err error, notFound, op string) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}

func escapeLike(s string) string {
	return strings.NewReplacer("%", "", "_", "").Replace(s)
}

// CategoryIndex maps category ids to rows for quick name lookups.
type CategoryIndex map[uint]models.Category

// CategoryLister is the subset of Repository needed to build a CategoryIndex.
type CategoryLister interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
}

// IndexCategories loads every category keyed by id.
func IndexCategories(ctx context.Context, repo CategoryLister) (CategoryIndex, error) {
	rows, err := repo.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	idx := make(CategoryIndex, len(rows))
	for _, row := range rows {
		idx[row.ID] = row
	}
	return idx, nil
}

// Name returns the category name or an empty string.
func (c CategoryIndex) Name(id uint) string {
	return c[id].Name
}

// IDsNamed returns the ids of categories whose names match any of names, case-insensitively.
func (c CategoryIndex) IDsNamed(names []string) []uint {
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[strings.ToLower(strings.TrimSpace(n))] = struct{}{}
	}
	var ids []uint
	for id, row := range c {
		if _, ok := want[strings.ToLower(row.Name)]; ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
