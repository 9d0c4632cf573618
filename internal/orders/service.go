package orders

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/msourial/platefull/pkg/db/models"
	"github.com/msourial/platefull/pkg/enums"
	pkgerrors "github.com/msourial/platefull/pkg/errors"
	"github.com/msourial/platefull/pkg/outbox"
	"github.com/msourial/platefull/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service builds and checks out a user's cart.
type Service interface {
	GetOrCreateActiveOrder(ctx context.Context, userID string) (*models.Order, error)
	GetActiveOrder(ctx context.Context, userID string) (*models.Order, error)
	GetOrder(ctx context.Context, orderID uint) (*models.Order, error)
	GetItem(ctx context.Context, orderItemID uint) (*models.OrderItem, error)
	AddItem(ctx context.Context, input AddItemInput) (*models.OrderItem, error)
	UpdateCustomization(ctx context.Context, orderItemID uint, option, choice string) (*models.OrderItem, error)
	SetSpecialInstructions(ctx context.Context, orderItemID uint, text string) (*models.OrderItem, error)
	RemoveItem(ctx context.Context, orderItemID uint) error
	ClearOrder(ctx context.Context, orderID uint) error
	SetDelivery(ctx context.Context, orderID uint, input DeliveryInput) (*models.Order, error)
	SetPaymentMethod(ctx context.Context, orderID uint, method enums.PaymentMethod, walletAddress string) (*models.Order, error)
	RecordSettlement(ctx context.Context, orderID uint, status enums.PaymentStatus, reference string) error
	Confirm(ctx context.Context, orderID uint) (*models.Order, error)
	DeleteActiveOrder(ctx context.Context, userID string) (bool, error)
	Reorder(ctx context.Context, userID string, sourceOrderID uint) (*ReorderResult, error)
}

// AddItemInput describes one line to append to a cart.
type AddItemInput struct {
	OrderID             uint
	MenuItemID          uint
	Quantity            int
	SpecialInstructions string
}

// DeliveryInput updates fulfilment details. Empty address or instructions
// leave the stored values untouched.
type DeliveryInput struct {
	Method       enums.DeliveryMethod
	Address      string
	Instructions string
}

// ReorderResult reports what a reorder copied into the cart.
type ReorderResult struct {
	Order   *models.Order
	Added   int
	Skipped []string
}

type service struct {
	repo        Repository
	menu        MenuReader
	tx          txRunner
	outbox      outboxPublisher
	deliveryFee decimal.Decimal
	now         func() time.Time
}

// NewService builds a cart service with the required dependencies.
func NewService(repo Repository, menu MenuReader, tx txRunner, outbox outboxPublisher, deliveryFee decimal.Decimal) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if menu == nil {
		return nil, fmt.Errorf("menu reader required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if deliveryFee.IsNegative() {
		return nil, fmt.Errorf("delivery fee must not be negative")
	}
	return &service{
		repo:        repo,
		menu:        menu,
		tx:          tx,
		outbox:      outbox,
		deliveryFee: deliveryFee,
		now:         time.Now,
	}, nil
}

// GetOrCreateActiveOrder returns the user's pending order, creating it when
// none exists. A concurrent creator that wins the unique index is re-read.
func (s *service) GetOrCreateActiveOrder(ctx context.Context, userID string) (*models.Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	order, err := s.repo.GetActiveOrder(ctx, userID)
	if err == nil {
		return order, nil
	}
	if !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		return nil, err
	}

	order = &models.Order{
		UserID:        userID,
		Status:        enums.OrderStatusPending,
		PaymentStatus: enums.PaymentStatusUnpaid,
		DeliveryFee:   decimal.Zero,
	}
	if err := s.repo.CreateOrder(ctx, order); err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeConflict) {
			return s.repo.GetActiveOrder(ctx, userID)
		}
		return nil, err
	}
	return order, nil
}

func (s *service) GetActiveOrder(ctx context.Context, userID string) (*models.Order, error) {
	return s.repo.GetActiveOrder(ctx, userID)
}

func (s *service) GetOrder(ctx context.Context, orderID uint) (*models.Order, error) {
	return s.repo.GetOrder(ctx, orderID)
}

func (s *service) GetItem(ctx context.Context, orderItemID uint) (*models.OrderItem, error) {
	return s.repo.GetOrderItem(ctx, orderItemID)
}

// AddItem appends a line priced at the current catalog price.
func (s *service) AddItem(ctx context.Context, input AddItemInput) (*models.OrderItem, error) {
	menuItem, err := s.menu.GetMenuItem(ctx, input.MenuItemID)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "menu item not found")
		}
		return nil, err
	}
	if !menuItem.Available {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s is not available right now", menuItem.Name))
	}
	qty := input.Quantity
	if qty < 1 {
		qty = 1
	}

	item := &models.OrderItem{
		OrderID:             input.OrderID,
		MenuItemID:          menuItem.ID,
		CategoryID:          menuItem.CategoryID,
		Name:                menuItem.Name,
		Quantity:            qty,
		UnitPrice:           menuItem.Price,
		Customizations:      models.Customizations{},
		SpecialInstructions: strings.TrimSpace(input.SpecialInstructions),
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := s.mutableOrder(ctx, repo, input.OrderID); err != nil {
			return err
		}
		if err := repo.AddOrderItem(ctx, item); err != nil {
			return err
		}
		return s.touch(ctx, repo, input.OrderID)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// UpdateCustomization sets one option on a line. A repeated option overwrites the earlier choice.
func (s *service) UpdateCustomization(ctx context.Context, orderItemID uint, option, choice string) (*models.OrderItem, error) {
	option = strings.TrimSpace(option)
	if option == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customization option required")
	}
	return s.mutateItem(ctx, orderItemID, func(item *models.OrderItem) {
		if item.Customizations == nil {
			item.Customizations = models.Customizations{}
		}
		item.Customizations[option] = choice
	})
}

func (s *service) SetSpecialInstructions(ctx context.Context, orderItemID uint, text string) (*models.OrderItem, error) {
	return s.mutateItem(ctx, orderItemID, func(item *models.OrderItem) {
		item.SpecialInstructions = strings.TrimSpace(text)
	})
}

func (s *service) mutateItem(ctx context.Context, orderItemID uint, apply func(item *models.OrderItem)) (*models.OrderItem, error) {
	var out *models.OrderItem
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		item, err := repo.GetOrderItem(ctx, orderItemID)
		if err != nil {
			return err
		}
		if _, err := s.mutableOrder(ctx, repo, item.OrderID); err != nil {
			return err
		}
		apply(item)
		if err := repo.UpdateOrderItem(ctx, item); err != nil {
			return err
		}
		out = item
		return s.touch(ctx, repo, item.OrderID)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) RemoveItem(ctx context.Context, orderItemID uint) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		item, err := repo.GetOrderItem(ctx, orderItemID)
		if err != nil {
			return err
		}
		if _, err := s.mutableOrder(ctx, repo, item.OrderID); err != nil {
			return err
		}
		if err := repo.RemoveOrderItem(ctx, orderItemID); err != nil {
			return err
		}
		return s.touch(ctx, repo, item.OrderID)
	})
}

// ClearOrder removes every line but keeps the order itself.
func (s *service) ClearOrder(ctx context.Context, orderID uint) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := s.mutableOrder(ctx, repo, orderID); err != nil {
			return err
		}
		if _, err := repo.ClearOrderItems(ctx, orderID); err != nil {
			return err
		}
		return s.touch(ctx, repo, orderID)
	})
}

func (s *service) SetDelivery(ctx context.Context, orderID uint, input DeliveryInput) (*models.Order, error) {
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery method must be delivery or pickup")
	}
	updates := map[string]any{"delivery_method": input.Method}
	switch input.Method {
	case enums.DeliveryMethodPickup:
		updates["delivery_fee"] = decimal.Zero
		updates["delivery_address"] = ""
		updates["delivery_instructions"] = ""
	case enums.DeliveryMethodDelivery:
		updates["delivery_fee"] = s.deliveryFee
		if addr := strings.TrimSpace(input.Address); addr != "" {
			updates["delivery_address"] = addr
		}
		if notes := strings.TrimSpace(input.Instructions); notes != "" {
			updates["delivery_instructions"] = notes
		}
	}
	return s.updateMutableOrder(ctx, orderID, updates)
}

func (s *service) SetPaymentMethod(ctx context.Context, orderID uint, method enums.PaymentMethod, walletAddress string) (*models.Order, error) {
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method must be cash or stablecoin")
	}
	walletAddress = strings.TrimSpace(walletAddress)
	if method.RequiresWallet() && walletAddress == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet address required for stablecoin payments")
	}
	if !method.RequiresWallet() {
		walletAddress = ""
	}
	return s.updateMutableOrder(ctx, orderID, map[string]any{
		"payment_method": method,
		"wallet_address": walletAddress,
	})
}

// RecordSettlement stores the outcome of a settlement attempt on a pending order.
func (s *service) RecordSettlement(ctx context.Context, orderID uint, status enums.PaymentStatus, reference string) error {
	if !status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid payment status")
	}
	_, err := s.updateMutableOrder(ctx, orderID, map[string]any{
		"payment_status":    status,
		"payment_reference": reference,
	})
	return err
}

func (s *service) updateMutableOrder(ctx context.Context, orderID uint, updates map[string]any) (*models.Order, error) {
	var out *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := s.mutableOrder(ctx, repo, orderID); err != nil {
			return err
		}
		updates["updated_at"] = s.now().UTC()
		if err := repo.UpdateOrder(ctx, orderID, updates); err != nil {
			return err
		}
		order, err := repo.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		out = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Confirm moves a complete pending order to confirmed and queues the
// order_confirmed event in the same transaction.
func (s *service) Confirm(ctx context.Context, orderID uint) (*models.Order, error) {
	var out *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.mutableOrder(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if err := readyForConfirmation(order); err != nil {
			return err
		}

		confirmedAt := s.now().UTC()
		ok, err := repo.TransitionStatus(ctx, orderID, enums.OrderStatusPending, enums.OrderStatusConfirmed, map[string]any{
			"confirmed_at": confirmedAt,
			"updated_at":   confirmedAt,
		})
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer pending")
		}
		order.Status = enums.OrderStatusConfirmed
		order.ConfirmedAt = &confirmedAt

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderConfirmed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   strconv.FormatUint(uint64(order.ID), 10),
			Actor:         &outbox.ActorRef{UserID: order.UserID, Source: "conversation"},
			Data:          confirmedPayload(order),
			OccurredAt:    confirmedAt,
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order confirmed event")
		}
		out = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func readyForConfirmation(order *models.Order) error {
	if len(order.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "your order is empty")
	}
	if !order.DeliveryMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "choose delivery or pickup first")
	}
	if order.DeliveryMethod == enums.DeliveryMethodDelivery && strings.TrimSpace(order.DeliveryAddress) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "a delivery address is required")
	}
	if !order.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "choose a payment method first")
	}
	if order.PaymentMethod.RequiresWallet() && order.WalletAddress == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "a wallet address is required")
	}
	return nil
}

func confirmedPayload(order *models.Order) payloads.OrderConfirmedEvent {
	summary := Summarize(order)
	lines := make([]payloads.OrderLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, payloads.OrderLine{
			MenuItemID:     item.MenuItemID,
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice.StringFixed(2),
			Customizations: item.Customizations,
		})
	}
	return payloads.OrderConfirmedEvent{
		OrderID:          order.ID,
		UserID:           order.UserID,
		Lines:            lines,
		Subtotal:         summary.Subtotal.StringFixed(2),
		DeliveryFee:      summary.DeliveryFee.StringFixed(2),
		Total:            summary.Total.StringFixed(2),
		DeliveryMethod:   order.DeliveryMethod,
		PaymentMethod:    order.PaymentMethod,
		PaymentStatus:    order.PaymentStatus,
		PaymentReference: order.PaymentReference,
		ConfirmedAt:      *order.ConfirmedAt,
	}
}

// DeleteActiveOrder drops the user's pending order if there is one and
// reports whether anything was deleted.
func (s *service) DeleteActiveOrder(ctx context.Context, userID string) (bool, error) {
	deleted := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.GetActiveOrder(ctx, userID)
		if err != nil {
			if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
				return nil
			}
			return err
		}
		if err := repo.DeleteOrder(ctx, order.ID); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

// Reorder copies the lines of one of the user's completed orders into the
// cart at today's prices. Items no longer on the menu are skipped.
func (s *service) Reorder(ctx context.Context, userID string, sourceOrderID uint) (*ReorderResult, error) {
	source, err := s.repo.GetOrder(ctx, sourceOrderID)
	if err != nil {
		return nil, err
	}
	if source.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if !source.Status.IsCompleted() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "only completed orders can be reordered")
	}

	res := &ReorderResult{}
	lines := make([]models.OrderItem, 0, len(source.Items))
	for _, line := range source.Items {
		menuItem, err := s.menu.GetMenuItem(ctx, line.MenuItemID)
		if err != nil {
			if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
				res.Skipped = append(res.Skipped, line.Name)
				continue
			}
			return nil, err
		}
		if !menuItem.Available {
			res.Skipped = append(res.Skipped, line.Name)
			continue
		}
		custom := models.Customizations{}
		for k, v := range line.Customizations {
			if opt, ok := menuItem.Options.Find(k); ok && opt.HasChoice(v) {
				custom[k] = v
			}
		}
		lines = append(lines, models.OrderItem{
			MenuItemID:          menuItem.ID,
			CategoryID:          menuItem.CategoryID,
			Name:                menuItem.Name,
			Quantity:            line.Quantity,
			UnitPrice:           menuItem.Price,
			Customizations:      custom,
			SpecialInstructions: line.SpecialInstructions,
		})
	}

	active, err := s.GetOrCreateActiveOrder(ctx, userID)
	if err != nil {
		return nil, err
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := s.mutableOrder(ctx, repo, active.ID); err != nil {
			return err
		}
		for i := range lines {
			lines[i].OrderID = active.ID
			if err := repo.AddOrderItem(ctx, &lines[i]); err != nil {
				return err
			}
		}
		if err := s.touch(ctx, repo, active.ID); err != nil {
			return err
		}
		order, err := repo.GetOrder(ctx, active.ID)
		if err != nil {
			return err
		}
		res.Order = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Added = len(lines)
	return res, nil
}

// mutableOrder loads the order and rejects anything that left the pending status.
func (s *service) mutableOrder(ctx context.Context, repo Repository, orderID uint) (*models.Order, error) {
	order, err := repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Status.IsMutable() {
		if order.Status == enums.OrderStatusExpired {
			return nil, pkgerrors.New(pkgerrors.CodeExpired, "order expired")
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order is %s and can no longer change", order.Status))
	}
	return order, nil
}

func (s *service) touch(ctx context.Context, repo Repository, orderID uint) error {
	return repo.UpdateOrder(ctx, orderID, map[string]any{"updated_at": s.now().UTC()})
}
