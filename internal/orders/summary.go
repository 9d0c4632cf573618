package orders

import (
	"github.com/shopspring/decimal"

	"github.com/msourial/platefull/pkg/db/models"
)

// Line is one rendered cart line.
type Line struct {
	OrderItemID    uint
	Name           string
	Quantity       int
	UnitPrice      decimal.Decimal
	LineTotal      decimal.Decimal
	Customizations models.Customizations
	Instructions   string
}

// Summary is the derived view of an order. Totals are always recomputed from
// the stored lines.
type Summary struct {
	OrderID     uint
	Lines       []Line
	ItemCount   int
	Subtotal    decimal.Decimal
	DeliveryFee decimal.Decimal
	Total       decimal.Decimal
}

// Summarize computes Σ unit price × quantity plus the delivery fee.
func Summarize(order *models.Order) Summary {
	sum := Summary{Subtotal: decimal.Zero, DeliveryFee: decimal.Zero, Total: decimal.Zero}
	if order == nil {
		return sum
	}
	sum.OrderID = order.ID
	sum.DeliveryFee = order.DeliveryFee
	for _, item := range order.Items {
		line := Line{
			OrderItemID:    item.ID,
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			LineTotal:      item.LineTotal(),
			Customizations: item.Customizations,
			Instructions:   item.SpecialInstructions,
		}
		sum.Lines = append(sum.Lines, line)
		sum.ItemCount += item.Quantity
		sum.Subtotal = sum.Subtotal.Add(line.LineTotal)
	}
	sum.Total = sum.Subtotal.Add(sum.DeliveryFee)
	return sum
}
