package cron

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/msourial/platefull/internal/orders"
	"github.com/msourial/platefull/pkg/db/models"
	"github.com/msourial/platefull/pkg/enums"
	"github.com/msourial/platefull/pkg/logger"
	"github.com/msourial/platefull/pkg/outbox"
	"github.com/msourial/platefull/pkg/outbox/payloads"
)

const (
	defaultAbandonedCartTTL = 48 * time.Hour
	abandonedCartBatchSize  = 200
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type staleOrderReader interface {
	FindPendingOrdersBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type transactionalOrderRepo interface {
	GetOrder(ctx context.Context, orderID uint) (*models.Order, error)
	TransitionStatus(ctx context.Context, orderID uint, from, to enums.OrderStatus, updates map[string]any) (bool, error)
}

type transactionalRepoFactory func(tx *gorm.DB) transactionalOrderRepo

func defaultTransactionalRepo(tx *gorm.DB) transactionalOrderRepo {
	return orders.NewRepository(tx)
}

// AbandonedCartJobParams configure the abandoned cart expiry.
type AbandonedCartJobParams struct {
	Logger                   *logger.Logger
	DB                       txRunner
	Orders                   staleOrderReader
	Outbox                   outboxEmitter
	TTL                      time.Duration
	BatchSize                int
	TransactionalRepoFactory transactionalRepoFactory
}

// NewAbandonedCartJob builds the job that expires pending orders nobody has
// touched within the TTL.
func NewAbandonedCartJob(params AbandonedCartJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("pending orders reader required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultAbandonedCartTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = abandonedCartBatchSize
	}
	repoFactory := params.TransactionalRepoFactory
	if repoFactory == nil {
		repoFactory = defaultTransactionalRepo
	}
	return &abandonedCartJob{
		logg:        params.Logger,
		db:          params.DB,
		orders:      params.Orders,
		outbox:      params.Outbox,
		ttl:         ttl,
		batch:       batch,
		repoFactory: repoFactory,
		now:         time.Now,
	}, nil
}

type abandonedCartJob struct {
	logg        *logger.Logger
	db          txRunner
	orders      staleOrderReader
	outbox      outboxEmitter
	ttl         time.Duration
	batch       int
	repoFactory transactionalRepoFactory
	now         func() time.Time
}

func (j *abandonedCartJob) Name() string { return "abandoned-cart" }

// Run expires one batch. Per-order failures are collected and the rest of the
// batch still runs.
func (j *abandonedCartJob) Run(ctx context.Context) (int, error) {
	cutoff := j.now().UTC().Add(-j.ttl)
	stale, err := j.orders.FindPendingOrdersBefore(ctx, cutoff, j.batch)
	if err != nil {
		return 0, fmt.Errorf("query abandoned carts: %w", err)
	}

	var (
		errs    error
		expired int
	)
	for _, order := range stale {
		ok, err := j.expireOrder(ctx, order.ID, cutoff)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire order %d: %w", order.ID, err))
			continue
		}
		if ok {
			expired++
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":     cutoff,
		"candidates": len(stale),
		"expired":    expired,
		"failed":     len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "abandoned cart expiry complete")
	return expired, errs
}

// expireOrder re-reads the order inside the transaction so a cart touched
// or confirmed since the scan is left alone.
func (j *abandonedCartJob) expireOrder(ctx context.Context, orderID uint, cutoff time.Time) (bool, error) {
	var expired bool
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := j.repoFactory(tx)
		current, err := repo.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if current.Status != enums.OrderStatusPending || !current.UpdatedAt.Before(cutoff) {
			return nil
		}
		ok, err := repo.TransitionStatus(ctx, orderID, enums.OrderStatusPending, enums.OrderStatusExpired, nil)
		if err != nil || !ok {
			return err
		}

		now := j.now().UTC()
		itemCount := 0
		for _, item := range current.Items {
			itemCount += item.Quantity
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventOrderExpired,
			AggregateType: enums.AggregateOrder,
			AggregateID:   strconv.FormatUint(uint64(orderID), 10),
			Version:       1,
			OccurredAt:    now,
			Data: payloads.OrderExpiredEvent{
				OrderID:        orderID,
				UserID:         current.UserID,
				ItemCount:      itemCount,
				LastActivityAt: current.UpdatedAt,
				ExpiredAt:      now,
			},
		}
		if err := j.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}
		expired = true
		return nil
	})
	return expired, err
}
