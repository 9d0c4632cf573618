// Package settlement collects payment for confirmed orders. Each payment method
// has a Settler; Service retries transient failures and falls back to manual
// payment when the provider stays unavailable.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/msourial/platefull/pkg/config"
	"github.com/msourial/platefull/pkg/enums"
	pkgerrors "github.com/msourial/platefull/pkg/errors"
	"github.com/msourial/platefull/pkg/logger"
)

// Request describes one payment to collect.
type Request struct {
	OrderID  uint
	Amount   decimal.Decimal
	PayerRef string
}

// Settler collects a payment and returns the provider's reference.
type Settler interface {
	Settle(ctx context.Context, req Request) (string, error)
}

// RetryPolicy bounds how often a transient settlement failure is retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy is three attempts backing off from 200ms up to 2s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialBackoff: 200 * time.Millisecond, MaxBackoff: 2 * time.Second}
}

// PolicyFromConfig reads the policy from configuration, filling gaps with defaults.
func PolicyFromConfig(cfg config.SettlementConfig) RetryPolicy {
	policy := DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialBackoff > 0 {
		policy.InitialBackoff = cfg.InitialBackoff
	}
	if cfg.MaxBackoff > 0 {
		policy.MaxBackoff = cfg.MaxBackoff
	}
	return policy
}

func (p RetryPolicy) backoff() retry.Backoff {
	b := retry.NewExponential(p.InitialBackoff)
	if p.MaxBackoff > 0 {
		b = retry.WithCappedDuration(p.MaxBackoff, b)
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return retry.WithMaxRetries(uint64(attempts-1), b)
}

// Outcome is what the order should record after settlement.
type Outcome struct {
	Status    enums.PaymentStatus
	Reference string
	Attempts  int
	// Manual is set when the provider was exhausted and the customer pays by hand.
	Manual bool
}

type recorder interface {
	IncSettlement(method, result string)
}

// Service routes requests to the settler for a payment method under a retry policy.
type Service struct {
	settlers map[enums.PaymentMethod]Settler
	policy   RetryPolicy
	metrics  recorder
	logg     *logger.Logger
}

// NewService builds the settlement service. metrics may be nil.
func NewService(settlers map[enums.PaymentMethod]Settler, policy RetryPolicy, metrics recorder, logg *logger.Logger) (*Service, error) {
	if len(settlers) == 0 {
		return nil, fmt.Errorf("at least one settler required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{settlers: settlers, policy: policy, metrics: metrics, logg: logg}, nil
}

// Settle collects payment for req using method. Retryable failures (per the
// error code metadata) are retried; exhausting the policy yields a manual
// Outcome with a nil error. Non-retryable failures are returned as is.
func (s *Service) Settle(ctx context.Context, method enums.PaymentMethod, req Request) (*Outcome, error) {
	settler, ok := s.settlers[method]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("payment method %q not supported", method))
	}

	var (
		ref      string
		attempts int
	)
	err := retry.Do(ctx, s.policy.backoff(), func(ctx context.Context) error {
		attempts++
		var err error
		ref, err = settler.Settle(ctx, req)
		if err == nil {
			s.record(method, "ok")
			return nil
		}
		if !retryable(err) {
			s.record(method, "failed")
			return err
		}
		s.record(method, "retry")
		return retry.RetryableError(err)
	})
	if err == nil {
		return &Outcome{Status: enums.PaymentStatusSettled, Reference: ref, Attempts: attempts}, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if !retryable(err) {
		return nil, err
	}

	ctx = s.logg.WithOrderID(ctx, req.OrderID)
	ctx = s.logg.WithFields(ctx, map[string]any{"payment_method": string(method), "attempts": attempts})
	s.logg.Error(ctx, "settlement exhausted, falling back to manual payment", err)
	s.record(method, "fallback")
	return &Outcome{Status: enums.PaymentStatusManual, Attempts: attempts, Manual: true}, nil
}

func (s *Service) record(method enums.PaymentMethod, result string) {
	if s.metrics != nil {
		s.metrics.IncSettlement(string(method), result)
	}
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if typed := pkgerrors.As(err); typed != nil {
		return pkgerrors.MetadataFor(typed.Code()).Retryable
	}
	return true
}
