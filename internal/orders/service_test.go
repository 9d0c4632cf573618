package orders

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/msourial/platefull/internal/catalog"
	"github.com/msourial/platefull/pkg/db"
	"github.com/msourial/platefull/pkg/db/dbtest"
	"github.com/msourial/platefull/pkg/db/models"
	"github.com/msourial/platefull/pkg/enums"
	pkgerrors "github.com/msourial/platefull/pkg/errors"
	"github.com/msourial/platefull/pkg/logger"
	"github.com/msourial/platefull/pkg/outbox"
	"github.com/msourial/platefull/pkg/outbox/payloads"
)

type fixture struct {
	client  *db.Client
	svc     Service
	wrap    models.MenuItem
	fries   models.MenuItem
	retired models.MenuItem
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Client(t)
	conn := client.DB()

	cat := models.Category{Name: "Wraps"}
	require.NoError(t, conn.Create(&cat).Error)
	wrap := models.MenuItem{
		CategoryID: cat.ID,
		Name:       "Falafel Wrap",
		Price:      decimal.RequireFromString("8.50"),
		Available:  true,
		Options: models.CustomizationOptions{
			{Name: "spice", Choices: []string{"mild", "hot"}},
			{Name: "sauce", Choices: []string{"tahini", "garlic"}},
		},
	}
	fries := models.MenuItem{CategoryID: cat.ID, Name: "Fries", Price: decimal.RequireFromString("3.25"), Available: true}
	retired := models.MenuItem{CategoryID: cat.ID, Name: "Old Special", Price: decimal.RequireFromString("5"), Available: true}
	require.NoError(t, conn.Create(&wrap).Error)
	require.NoError(t, conn.Create(&fries).Error)
	require.NoError(t, conn.Create(&retired).Error)

	emitter := outbox.NewService(outbox.NewRepository(conn), logger.Nop())
	svc, err := NewService(NewRepository(conn), catalog.NewRepository(conn), client, emitter, decimal.RequireFromString("2.99"))
	require.NoError(t, err)
	return &fixture{client: client, svc: svc, wrap: wrap, fries: fries, retired: retired}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, nil, nil, nil, decimal.Zero)
	require.EqualError(t, err, "orders repository required")
}

func TestGetOrCreateActiveOrderIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.GetOrCreateActiveOrder(ctx, "telegram:1")
	require.NoError(t, err)
	second, err := f.svc.GetOrCreateActiveOrder(ctx, "telegram:1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, first.DeliveryFee.IsZero())
}

func TestGetOrCreateActiveOrderConcurrentCallersShareOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const callers = 8
	ids := make([]uint, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			order, err := f.svc.GetOrCreateActiveOrder(ctx, "telegram:race")
			errs[i] = err
			if order != nil {
				ids[i] = order.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	var pending int64
	require.NoError(t, f.client.DB().Model(&models.Order{}).
		Where("user_id = ? AND status = ?", "telegram:race", enums.OrderStatusPending).
		Count(&pending).Error)
	assert.Equal(t, int64(1), pending)
}

type raceRepo struct {
	Repository
	winner  *models.Order
	lookups int
}

func (r *raceRepo) GetActiveOrder(ctx context.Context, userID string) (*models.Order, error) {
	r.lookups++
	if r.lookups == 1 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active order")
	}
	return r.winner, nil
}

func (r *raceRepo) CreateOrder(ctx context.Context, order *models.Order) error {
	return pkgerrors.Wrap(pkgerrors.CodeConflict, gorm.ErrDuplicatedKey, "pending order already exists")
}

func TestGetOrCreateActiveOrderRereadsWinnerOnConflict(t *testing.T) {
	repo := &raceRepo{winner: &models.Order{ID: 42, UserID: "u1", Status: enums.OrderStatusPending}}
	svc, err := NewService(repo, stubMenu{}, stubTx{}, stubEmitter{}, decimal.Zero)
	require.NoError(t, err)

	order, err := svc.GetOrCreateActiveOrder(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, uint(42), order.ID)
	assert.Equal(t, 2, repo.lookups)
}

type stubMenu struct{}

func (stubMenu) GetMenuItem(ctx context.Context, id uint) (*models.MenuItem, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "menu item not found")
}

type stubTx struct{}

func (stubTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

type stubEmitter struct{}

func (stubEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error { return nil }

func TestAddItemSnapshotsPriceAndClampsQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, err := f.svc.GetOrCreateActiveOrder(ctx, "u1")
	require.NoError(t, err)

	item, err := f.svc.AddItem(ctx, AddItemInput{OrderID: order.ID, MenuItemID: f.wrap.ID, Quantity: 0, SpecialInstructions: " no onions "})
	require.NoError(t, err)
	assert.Equal(t, 1, item.Quantity)
	assert.Equal(t, "no onions", item.SpecialInstructions)

	// later price changes do not touch the line
	require.NoError(t, f.client.DB().Model(&models.MenuItem{}).Where("id = ?", f.wrap.ID).Update("price", decimal.RequireFromString("12")).Error)

	loaded, err := f.svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Items, 1)
	assert.True(t, loaded.Items[0].UnitPrice.Equal(decimal.RequireFromString("8.50")))
}

func TestAddItemUnknownMenuItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, err := f.svc.GetOrCreateActiveOrder(ctx, "u1")
	require.NoError(t, err)

	_, err = f.svc.AddItem(ctx, AddItemInput{OrderID: order.ID, MenuItemID: 999})
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
	assert.Equal(t, "menu item not found", pkgerrors.As(err).Message())
}

func TestAddThenRemoveRestoresTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, err := f.svc.GetOrCreateActiveOrder(ctx, "u1")
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, AddItemInput{OrderID: order.ID, MenuItemID: f.wrap.ID, Quantity: 2})
	require.NoError(t, err)

	before, err := f.svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	totalBefore := Summarize(before).Total

	added, err := f.svc.AddItem(ctx, AddItemInput{OrderID: order.ID, MenuItemID: f.fries.ID, Quantity: 1})
	require.NoError(t, err)
	require.NoError(t, f.svc.RemoveItem(ctx, added.ID))

	after, err := f.svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, Summarize(after).Total.Equal(totalBefore))
	assert.True(t, totalBefore.Equal(decimal.RequireFromString("17")))

	err = f.svc.RemoveItem(ctx, added.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestUpdateCustomizationLastWriteWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, err := f.svc.GetOrCreateActiveOrder(ctx, "u1")
	require.NoError(t, err)
	item, err := f.svc.AddItem(ctx, AddItemInput{OrderID: order.ID, MenuItemID: f.wrap.ID})
	require.NoError(t, err)

	_, err = f.svc.UpdateCustomization(ctx, item.ID, "spice", "mild")
	require.NoError(t, err)
	_, err = f.svc.UpdateCustomization(ctx, item.ID, "sauce", "garlic")
	require.NoError(t, err)
	_, err = f.svc.UpdateCustomization(ctx, item.ID, "spice", "hot")
	require.NoError(t, err)

	loaded, err := f.svc.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Customizations{"spice": "hot", "sauce": "garlic"}, loaded.Customizations)

	_, err = f.svc.UpdateCustomization(ctx, 9999, "spice", "hot")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestSetDeliveryAppliesFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, err := f.svc.GetOrCreateActiveOrder(ctx, "u1")
	require.NoError(t, err)

	updated, err := f.svc.SetDelivery(ctx, order.ID, DeliveryInput{Method: enums.DeliveryMethodDelivery, Address: "12 Elm St"})
	require.NoError(t, err)
	assert.True(t, updated.DeliveryFee.Equal(decimal.RequireFromString("2.99")))
	assert.Equal(t, "12 Elm St", updated.DeliveryAddress)

	updated, err = f.svc.SetDelivery(ctx, order.ID, DeliveryInput{Method: enums.DeliveryMethodPickup})
	require.NoError(t, err)
	assert.True(t, updated.DeliveryFee.IsZero())
	assert.Empty(t, updated.DeliveryAddress)

	_, err = f.svc.SetDelivery(ctx, order.ID, DeliveryInput{Method: "drone"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func checkoutReady(t *testing.T, f *fixture, userID string) *models.Order {
	t.Helper()
	ctx := context.Background()
	order, err := f.svc.GetOrCreateActiveOrder(ctx, userID)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, AddItemInput{OrderID: order.ID, MenuItemID: f.wrap.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = f.svc.SetDelivery(ctx, order.ID, DeliveryInput{Method: enums.DeliveryMethodDelivery, Address: "12 Elm St"})
	require.NoError(t, err)
	_, err = f.svc.SetPaymentMethod(ctx, order.ID, enums.PaymentMethodCash, "")
	require.NoError(t, err)
	require.NoError(t, f.svc.RecordSettlement(ctx, order.ID, enums.PaymentStatusPending, "cash-1"))
	return order
}

func TestConfirmEmitsEventAndFreezesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := checkoutReady(t, f, "u1")

	confirmed, err := f.svc.Confirm(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedAt)

	var events []models.OutboxEvent
	require.NoError(t, f.client.DB().Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderConfirmed, events[0].EventType)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(events[0].Payload, &envelope))
	var payload payloads.OrderConfirmedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	assert.Equal(t, "19.99", payload.Total)
	assert.Equal(t, "cash-1", payload.PaymentReference)

	_, err = f.svc.AddItem(ctx, AddItemInput{OrderID: order.ID, MenuItemID: f.fries.ID})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))
	err = f.svc.RemoveItem(ctx, confirmed.Items[0].ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))
	_, err = f.svc.UpdateCustomization(ctx, confirmed.Items[0].ID, "spice", "hot")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))
	err = f.svc.ClearOrder(ctx, order.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))
	_, err = f.svc.Confirm(ctx, order.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))

	// the user gets a fresh cart afterwards
	next, err := f.svc.GetOrCreateActiveOrder(ctx, "u1")
	require.NoError(t, err)
	assert.NotEqual(t, order.ID, next.ID)
}

func TestConfirmRequiresCheckoutDetails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, err := f.svc.GetOrCreateActiveOrder(ctx, "u1")
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, order.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	assert.Equal(t, "your order is empty", pkgerrors.As(err).Message())
}

func TestSetPaymentMethodStablecoinNeedsWallet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, err := f.svc.GetOrCreateActiveOrder(ctx, "u1")
	require.NoError(t, err)

	_, err = f.svc.SetPaymentMethod(ctx, order.ID, enums.PaymentMethodStablecoin, "")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestClearAndDeleteActiveOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, err := f.svc.GetOrCreateActiveOrder(ctx, "u1")
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, AddItemInput{OrderID: order.ID, MenuItemID: f.fries.ID})
	require.NoError(t, err)

	require.NoError(t, f.svc.ClearOrder(ctx, order.ID))
	loaded, err := f.svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Empty(t, loaded.Items)

	deleted, err := f.svc.DeleteActiveOrder(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = f.svc.DeleteActiveOrder(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestExpiredOrderReportsExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, err := f.svc.GetOrCreateActiveOrder(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, f.client.DB().Model(&models.Order{}).Where("id = ?", order.ID).Update("status", enums.OrderStatusExpired).Error)

	_, err = f.svc.AddItem(ctx, AddItemInput{OrderID: order.ID, MenuItemID: f.fries.ID})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeExpired))
}

func TestReorderCopiesAvailableLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conn := f.client.DB()

	past := &models.Order{UserID: "u1", Status: enums.OrderStatusCompleted, PaymentStatus: enums.PaymentStatusSettled, CreatedAt: time.Now().Add(-48 * time.Hour)}
	require.NoError(t, conn.Create(past).Error)
	require.NoError(t, conn.Create(&models.OrderItem{
		OrderID: past.ID, MenuItemID: f.wrap.ID, Name: f.wrap.Name, Quantity: 2,
		UnitPrice: decimal.RequireFromString("7.00"), Customizations: models.Customizations{"spice": "hot", "size": "xl"},
	}).Error)
	require.NoError(t, conn.Create(&models.OrderItem{
		OrderID: past.ID, MenuItemID: f.retired.ID, Name: f.retired.Name, Quantity: 1, UnitPrice: decimal.RequireFromString("5"),
	}).Error)
	require.NoError(t, conn.Model(&models.MenuItem{}).Where("id = ?", f.retired.ID).Update("available", false).Error)

	res, err := f.svc.Reorder(ctx, "u1", past.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, []string{"Old Special"}, res.Skipped)
	require.Len(t, res.Order.Items, 1)
	line := res.Order.Items[0]
	assert.Equal(t, 2, line.Quantity)
	assert.True(t, line.UnitPrice.Equal(decimal.RequireFromString("8.50")))
	assert.Equal(t, models.Customizations{"spice": "hot"}, line.Customizations)

	_, err = f.svc.Reorder(ctx, "someone-else", past.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestSummarize(t *testing.T) {
	order := &models.Order{
		DeliveryFee: decimal.RequireFromString("2.99"),
		Items: []models.OrderItem{
			{Name: "A", Quantity: 2, UnitPrice: decimal.RequireFromString("4.50")},
			{Name: "B", Quantity: 1, UnitPrice: decimal.RequireFromString("1.25")},
		},
	}
	sum := Summarize(order)
	assert.Equal(t, 3, sum.ItemCount)
	assert.Equal(t, "10.25", sum.Subtotal.StringFixed(2))
	assert.Equal(t, "13.24", sum.Total.StringFixed(2))
	assert.True(t, Summarize(nil).Total.IsZero())
}
