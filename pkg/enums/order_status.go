package enums

import "fmt"

// OrderStatus tracks an order from open cart to fulfilment.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusExpired   OrderStatus = "expired"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusDelivered,
	OrderStatusCompleted,
	OrderStatusCancelled,
	OrderStatusExpired,
}

// CompletedOrderStatuses are the statuses order-history analytics treat as a finished purchase.
var CompletedOrderStatuses = []OrderStatus{
	OrderStatusConfirmed,
	OrderStatusDelivered,
	OrderStatusCompleted,
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// IsCompleted reports whether the status counts as a completed purchase.
func (o OrderStatus) IsCompleted() bool {
	for _, candidate := range CompletedOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// IsMutable reports whether line items and checkout details may still change.
func (o OrderStatus) IsMutable() bool {
	return o == OrderStatusPending
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
