package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/msourial/platefull/pkg/enums"
)

// Order is a customer's cart while pending and an immutable record afterwards.
type Order struct {
	ID                   uint                 `gorm:"column:id;primaryKey"`
	UserID               string               `gorm:"column:user_id;not null;index"`
	Status               enums.OrderStatus    `gorm:"column:status;not null;default:'pending'"`
	DeliveryMethod       enums.DeliveryMethod `gorm:"column:delivery_method;not null;default:''"`
	DeliveryAddress      string               `gorm:"column:delivery_address;not null;default:''"`
	DeliveryInstructions string               `gorm:"column:delivery_instructions;not null;default:''"`
	PaymentMethod        enums.PaymentMethod  `gorm:"column:payment_method;not null;default:''"`
	PaymentStatus        enums.PaymentStatus  `gorm:"column:payment_status;not null;default:'unpaid'"`
	PaymentReference     string               `gorm:"column:payment_reference;not null;default:''"`
	WalletAddress        string               `gorm:"column:wallet_address;not null;default:''"`
	DeliveryFee          decimal.Decimal      `gorm:"column:delivery_fee;type:numeric(10,2);not null;default:0"`
	ConfirmedAt          *time.Time           `gorm:"column:confirmed_at"`
	CreatedAt            time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time            `gorm:"column:updated_at;autoUpdateTime"`
	Items                []OrderItem          `gorm:"foreignKey:OrderID"`
}

// Customizations maps option name to the chosen value.
type Customizations map[string]string

// OrderItem is one cart line. Name and UnitPrice are snapshots taken when the
// line was added.
type OrderItem struct {
	ID                  uint            `gorm:"column:id;primaryKey"`
	OrderID             uint            `gorm:"column:order_id;not null;index"`
	MenuItemID          uint            `gorm:"column:menu_item_id;not null"`
	CategoryID          uint            `gorm:"column:category_id;not null;default:0"`
	Name                string          `gorm:"column:name;not null"`
	Quantity            int             `gorm:"column:quantity;not null;default:1"`
	UnitPrice           decimal.Decimal `gorm:"column:unit_price;type:numeric(10,2);not null"`
	Customizations      Customizations  `gorm:"column:customizations;type:jsonb;serializer:json"`
	SpecialInstructions string          `gorm:"column:special_instructions;not null;default:''"`
	CreatedAt           time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// LineTotal is unit price times quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
