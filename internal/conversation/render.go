package conversation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/msourial/platefull/internal/customization"
	"github.com/msourial/platefull/internal/orders"
	"github.com/msourial/platefull/pkg/db/models"
	"github.com/msourial/platefull/pkg/enums"
)

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func itemLabel(item models.MenuItem) string {
	return fmt.Sprintf("%s - %s", item.Name, money(item.Price))
}

func itemButtons(items []models.MenuItem) [][]Button {
	rows := make([][]Button, 0, len(items))
	for _, item := range items {
		rows = append(rows, row(button(itemLabel(item), AddItem{MenuItemID: item.ID})))
	}
	return rows
}

// describeCustomizations renders options in a stable order.
func describeCustomizations(c models.Customizations) string {
	if len(c) == 0 {
		return ""
	}
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, c[k]))
	}
	return strings.Join(parts, ", ")
}

func renderSummary(sum orders.Summary) string {
	var b strings.Builder
	b.WriteString("Your order:\n")
	for _, line := range sum.Lines {
		fmt.Fprintf(&b, "%d x %s - %s", line.Quantity, line.Name, money(line.LineTotal))
		if desc := describeCustomizations(line.Customizations); desc != "" {
			fmt.Fprintf(&b, " (%s)", desc)
		}
		if line.Instructions != "" {
			fmt.Fprintf(&b, "\n   note: %s", line.Instructions)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Subtotal: %s\n", money(sum.Subtotal))
	if !sum.DeliveryFee.IsZero() {
		fmt.Fprintf(&b, "Delivery fee: %s\n", money(sum.DeliveryFee))
	}
	fmt.Fprintf(&b, "Total: %s", money(sum.Total))
	return b.String()
}

func promptMessage(p *customization.Prompt, lead string) Message {
	text := p.Question()
	if lead != "" {
		text = lead + "\n" + text
	}
	buttons := make([][]Button, 0, len(p.Option.Choices))
	for _, choice := range p.Option.Choices {
		buttons = append(buttons, row(button(choice, Customize{
			OrderItemID: p.OrderItemID,
			Option:      p.Option.Name,
			Choice:      choice,
		})))
	}
	return Message{Text: text, Buttons: buttons}
}

func stageQuestion(stage enums.UpsellStage) string {
	switch stage {
	case enums.UpsellStageSides:
		return "Would you like a side with that?"
	case enums.UpsellStageDrinks:
		return "Something to drink?"
	case enums.UpsellStageDesserts:
		return "Room for dessert?"
	}
	return "Anything else?"
}

func anythingElse() Message {
	return Message{
		Text: "Anything else?",
		Buttons: [][]Button{
			row(button("View order", ViewOrder{}), button("Continue shopping", ContinueShopping{})),
			row(button("Checkout", Checkout{})),
		},
	}
}

func menuButton() [][]Button {
	return [][]Button{row(button("Show menu", ShowMenu{}))}
}

func paymentPrompt() Message {
	return Message{
		Text: "How would you like to pay?",
		Buttons: [][]Button{
			row(button("Cash", ChoosePayment{Method: enums.PaymentMethodCash})),
			row(button("Stablecoin", ChoosePayment{Method: enums.PaymentMethodStablecoin})),
		},
	}
}

func deliveryPrompt(preferred string) Message {
	delivery := button("Delivery", ChooseDelivery{Method: enums.DeliveryMethodDelivery})
	pickup := button("Pickup", ChooseDelivery{Method: enums.DeliveryMethodPickup})
	first, second := delivery, pickup
	if preferred == string(enums.DeliveryMethodPickup) {
		first, second = pickup, delivery
	}
	return Message{Text: "Delivery or pickup?", Buttons: [][]Button{row(first, second)}}
}
