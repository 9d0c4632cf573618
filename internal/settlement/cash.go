package settlement

import (
	"context"
	"fmt"

	pkgerrors "github.com/msourial/platefull/pkg/errors"
)

// CashSettler records a cash-on-delivery promise; nothing is collected up front.
type CashSettler struct{}

// Settle implements Settler.
func (CashSettler) Settle(_ context.Context, req Request) (string, error) {
	return fmt.Sprintf("cash-%d", req.OrderID), nil
}

// Unconfigured stands in for a payment method without a provider. Every
// attempt fails as a dependency error, so Service falls back to manual payment.
type Unconfigured struct {
	Method string
}

// Settle implements Settler.
func (u Unconfigured) Settle(context.Context, Request) (string, error) {
	return "", pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("no %s settlement provider configured", u.Method))
}
