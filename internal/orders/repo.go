package orders

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/msourial/platefull/pkg/db"
	"github.com/msourial/platefull/pkg/db/models"
	"github.com/msourial/platefull/pkg/enums"
	pkgerrors "github.com/msourial/platefull/pkg/errors"
)

// pendingOrderConstraint is the partial unique index allowing one pending order per user.
const pendingOrderConstraint = "uq_orders_pending_user"

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func preloadItems(q *gorm.DB) *gorm.DB {
	return q.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC")
	})
}

func (r *repository) GetActiveOrder(ctx context.Context, userID string) (*models.Order, error) {
	var order models.Order
	err := preloadItems(r.db.WithContext(ctx)).
		Where("user_id = ? AND status = ?", userID, enums.OrderStatusPending).
		First(&order).Error
	if err != nil {
		return nil, lookupError(err, "no active order", "load active order")
	}
	return &order, nil
}

// CreateOrder inserts a new order. A second pending order for the same user
// surfaces as CodeConflict.
func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		if db.IsUniqueViolation(err, pendingOrderConstraint) {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "pending order already exists")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	return nil
}

func (r *repository) GetOrder(ctx context.Context, orderID uint) (*models.Order, error) {
	var order models.Order
	err := preloadItems(r.db.WithContext(ctx)).Where("id = ?", orderID).First(&order).Error
	if err != nil {
		return nil, lookupError(err, "order not found", "load order")
	}
	return &order, nil
}

func (r *repository) UpdateOrder(ctx context.Context, orderID uint, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", orderID).Updates(updates)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update order")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return nil
}

// TransitionStatus moves the order from one status to another and reports
// whether the row was still in the expected status.
func (r *repository) TransitionStatus(ctx context.Context, orderID uint, from, to enums.OrderStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Updates(values)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "transition order status")
	}
	return res.RowsAffected > 0, nil
}

// DeleteOrder removes the order and its lines.
func (r *repository) DeleteOrder(ctx context.Context, orderID uint) error {
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Delete(&models.OrderItem{}).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete order items")
	}
	res := r.db.WithContext(ctx).Where("id = ?", orderID).Delete(&models.Order{})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "delete order")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return nil
}

// GetOrdersByUser lists a user's orders newest first by placement time
// (confirmed_at, or created_at for unconfirmed carts). Empty statuses means any
// status; limit <= 0 means no limit.
func (r *repository) GetOrdersByUser(ctx context.Context, userID string, statuses []enums.OrderStatus, limit int) ([]models.Order, error) {
	q := preloadItems(r.db.WithContext(ctx)).Where("user_id = ?", userID)
	if len(statuses) > 0 {
		values := make([]string, len(statuses))
		for i, s := range statuses {
			values[i] = string(s)
		}
		q = q.Where("status IN ?", values)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.Order
	if err := q.Order("COALESCE(confirmed_at, created_at) DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list user orders")
	}
	return rows, nil
}

// FindPendingOrdersBefore returns pending orders last touched before cutoff, oldest first.
func (r *repository) FindPendingOrdersBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	q := preloadItems(r.db.WithContext(ctx)).
		Where("status = ? AND updated_at < ?", enums.OrderStatusPending, cutoff).
		Order("updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.Order
	if err := q.Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find stale pending orders")
	}
	return rows, nil
}

func (r *repository) AddOrderItem(ctx context.Context, item *models.OrderItem) error {
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add order item")
	}
	return nil
}

func (r *repository) GetOrderItem(ctx context.Context, orderItemID uint) (*models.OrderItem, error) {
	var item models.OrderItem
	if err := r.db.WithContext(ctx).Where("id = ?", orderItemID).First(&item).Error; err != nil {
		return nil, lookupError(err, "order item not found", "load order item")
	}
	return &item, nil
}

func (r *repository) UpdateOrderItem(ctx context.Context, item *models.OrderItem) error {
	res := r.db.WithContext(ctx).Save(item)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update order item")
	}
	return nil
}

func (r *repository) RemoveOrderItem(ctx context.Context, orderItemID uint) error {
	res := r.db.WithContext(ctx).Where("id = ?", orderItemID).Delete(&models.OrderItem{})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "remove order item")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
	}
	return nil
}

func (r *repository) ListOrderItems(ctx context.Context, orderID uint) ([]models.OrderItem, error) {
	var rows []models.OrderItem
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order items")
	}
	return rows, nil
}

func (r *repository) ClearOrderItems(ctx context.Context, orderID uint) (int64, error) {
	res := r.db.WithContext(ctx).Where("order_id = ?", orderID).Delete(&models.OrderItem{})
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "clear order items")
	}
	return res.RowsAffected, nil
}

func lookupError(err error, notFound, op string) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
