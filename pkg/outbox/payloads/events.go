package payloads

import (
	"time"

	"github.com/msourial/platefull/pkg/enums"
)

// OrderLine is the minimal line snapshot carried by order events.
type OrderLine struct {
	MenuItemID     uint              `json:"menu_item_id"`
	Name           string            `json:"name"`
	Quantity       int               `json:"quantity"`
	UnitPrice      string            `json:"unit_price"`
	Customizations map[string]string `json:"customizations,omitempty"`
}

// OrderConfirmedEvent is emitted when a customer confirms checkout.
type OrderConfirmedEvent struct {
	OrderID          uint                 `json:"order_id"`
	UserID           string               `json:"user_id"`
	Lines            []OrderLine          `json:"lines"`
	Subtotal         string               `json:"subtotal"`
	DeliveryFee      string               `json:"delivery_fee"`
	Total            string               `json:"total"`
	DeliveryMethod   enums.DeliveryMethod `json:"delivery_method"`
	PaymentMethod    enums.PaymentMethod  `json:"payment_method"`
	PaymentStatus    enums.PaymentStatus  `json:"payment_status"`
	PaymentReference string               `json:"payment_reference,omitempty"`
	ConfirmedAt      time.Time            `json:"confirmed_at"`
}

// OrderExpiredEvent is emitted when an abandoned cart is expired by the cron worker.
type OrderExpiredEvent struct {
	OrderID        uint      `json:"order_id"`
	UserID         string    `json:"user_id"`
	ItemCount      int       `json:"item_count"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiredAt      time.Time `json:"expired_at"`
}
