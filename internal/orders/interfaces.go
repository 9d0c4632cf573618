package orders

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/msourial/platefull/pkg/db/models"
	"github.com/msourial/platefull/pkg/enums"
)

// Repository captures the persistence operations behind carts and past orders.
// Lookups that miss return a CodeNotFound error.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetActiveOrder(ctx context.Context, userID string) (*models.Order, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, orderID uint) (*models.Order, error)
	UpdateOrder(ctx context.Context, orderID uint, updates map[string]any) error
	TransitionStatus(ctx context.Context, orderID uint, from, to enums.OrderStatus, updates map[string]any) (bool, error)
	DeleteOrder(ctx context.Context, orderID uint) error
	GetOrdersByUser(ctx context.Context, userID string, statuses []enums.OrderStatus, limit int) ([]models.Order, error)
	FindPendingOrdersBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)

	AddOrderItem(ctx context.Context, item *models.OrderItem) error
	GetOrderItem(ctx context.Context, orderItemID uint) (*models.OrderItem, error)
	UpdateOrderItem(ctx context.Context, item *models.OrderItem) error
	RemoveOrderItem(ctx context.Context, orderItemID uint) error
	ListOrderItems(ctx context.Context, orderID uint) ([]models.OrderItem, error)
	ClearOrderItems(ctx context.Context, orderID uint) (int64, error)
}

// MenuReader resolves catalog items when lines are added.
type MenuReader interface {
	GetMenuItem(ctx context.Context, id uint) (*models.MenuItem, error)
}
