package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/msourial/platefull/internal/customization"
	"github.com/msourial/platefull/internal/orders"
	"github.com/msourial/platefull/internal/upsell"
	"github.com/msourial/platefull/pkg/db/models"
	"github.com/msourial/platefull/pkg/enums"
	pkgerrors "github.com/msourial/platefull/pkg/errors"
)

func (e *Engine) showMenu(ctx context.Context, t *turnState, lead string) ([]Message, error) {
	categories, err := e.catalog.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	text := "Here's our menu. Pick a category:"
	if lead != "" {
		text = lead + "\n" + text
	}
	if len(categories) == 0 {
		return []Message{{Text: "Our menu is being updated. Please check back soon."}}, nil
	}
	buttons := make([][]Button, 0, len(categories)+1)
	for _, c := range categories {
		buttons = append(buttons, row(button(c.Name, BrowseCategory{CategoryID: c.ID})))
	}
	buttons = append(buttons, row(button("View order", ViewOrder{})))
	t.ctx().AwaitingField = AwaitingNone
	e.moveTo(ctx, t, enums.ConversationStateMenuSelection)
	return []Message{{Text: text, Buttons: buttons}}, nil
}

func (e *Engine) browseCategory(ctx context.Context, t *turnState, categoryID uint) ([]Message, error) {
	category, err := e.catalog.GetCategory(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	items, err := e.catalog.ListMenuItems(ctx, &category.ID)
	if err != nil {
		return nil, err
	}
	t.ctx().LastCategoryID = category.ID
	t.ctx().AwaitingField = AwaitingNone
	if len(items) == 0 {
		return []Message{{
			Text:    fmt.Sprintf("Nothing from %s is available right now.", category.Name),
			Buttons: [][]Button{row(button("Back to menu", ShowMenu{}))},
		}}, nil
	}
	buttons := itemButtons(items)
	buttons = append(buttons, row(button("Back to menu", ShowMenu{}), button("View order", ViewOrder{})))
	e.moveTo(ctx, t, enums.ConversationStateItemSelection)
	return []Message{{Text: fmt.Sprintf("%s:", category.Name), Buttons: buttons}}, nil
}

// addItem puts a line in the cart, then either starts customization or
// continues the upsell chain.
func (e *Engine) addItem(ctx context.Context, t *turnState, menuItemID uint, quantity int, instructions string) ([]Message, error) {
	order, err := e.orders.GetOrCreateActiveOrder(ctx, t.userID())
	if err != nil {
		return nil, err
	}
	line, err := e.orders.AddItem(ctx, orders.AddItemInput{
		OrderID:             order.ID,
		MenuItemID:          menuItemID,
		Quantity:            quantity,
		SpecialInstructions: instructions,
	})
	if err != nil {
		return nil, err
	}

	sc := t.ctx()
	sc.AwaitingField = AwaitingNone
	e.moveTo(ctx, t, enums.ConversationStateItemSelection)

	added := fmt.Sprintf("Added %s to your order.", line.Name)
	if line.Quantity > 1 {
		added = fmt.Sprintf("Added %d x %s to your order.", line.Quantity, line.Name)
	}

	step, err := e.customizer.Next(ctx, line.ID)
	if err != nil {
		return nil, err
	}
	if step.Prompt != nil {
		sc.CurrentOrderItemID = line.ID
		return []Message{promptMessage(step.Prompt, added)}, nil
	}
	return e.itemComplete(ctx, t, line, added)
}

// itemComplete runs once a line needs no more answers: offer a note and
// advance the upsell chain.
func (e *Engine) itemComplete(ctx context.Context, t *turnState, line *models.OrderItem, lead string) ([]Message, error) {
	sc := t.ctx()
	sc.CurrentOrderItemID = 0
	flags, err := e.upsell.AfterAdd(ctx, line.CategoryID, sc.UpsellFlags())
	if err != nil {
		return nil, err
	}
	confirm := Message{Text: lead, Buttons: [][]Button{row(button("Add a note", AddNote{OrderItemID: line.ID}))}}
	return e.offerUpsell(ctx, t, flags, []Message{confirm})
}

func (e *Engine) offerUpsell(ctx context.Context, t *turnState, flags upsell.Flags, lead []Message) ([]Message, error) {
	cart, err := e.activeOrderOrNil(ctx, t.userID())
	if err != nil {
		return nil, err
	}
	offer, err := e.upsell.Offer(ctx, flags, cart)
	if err != nil {
		return nil, err
	}
	sc := t.ctx()
	sc.SetUpsellFlags(offer.Flags)
	if offer.Terminal {
		return append(lead, anythingElse()), nil
	}

	e.metrics.IncUpsellOffer(string(offer.Stage))
	buttons := itemButtons(offer.Items)
	buttons = append(buttons,
		row(button("Browse all", BrowseCategory{CategoryID: offer.BrowseCategoryID})),
		row(button("No thanks", SkipUpsell{Stage: offer.Stage})),
	)
	return append(lead, Message{Text: stageQuestion(offer.Stage), Buttons: buttons}), nil
}

func (e *Engine) customize(ctx context.Context, t *turnState, a Customize) ([]Message, error) {
	if _, err := e.ownedItem(ctx, t.userID(), a.OrderItemID); err != nil {
		return nil, err
	}
	step, err := e.customizer.Apply(ctx, a.OrderItemID, a.Option, a.Choice)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeValidation {
			prompt, ok := typed.Details().(customization.Prompt)
			if !ok {
				step, nextErr := e.customizer.Next(ctx, a.OrderItemID)
				if nextErr != nil || step.Prompt == nil {
					return nil, err
				}
				prompt = *step.Prompt
			}
			t.ctx().CurrentOrderItemID = a.OrderItemID
			return []Message{promptMessage(&prompt, "That's not one of the options.")}, nil
		}
		return nil, err
	}
	if step.Prompt != nil {
		t.ctx().CurrentOrderItemID = a.OrderItemID
		return []Message{promptMessage(step.Prompt, "")}, nil
	}

	lead := fmt.Sprintf("Your %s is all set.", step.Item.Name)
	if desc := describeCustomizations(step.Item.Customizations); desc != "" {
		lead = fmt.Sprintf("Your %s is all set (%s).", step.Item.Name, desc)
	}
	return e.itemComplete(ctx, t, step.Item, lead)
}

func (e *Engine) askNote(ctx context.Context, t *turnState, orderItemID uint) ([]Message, error) {
	item, err := e.ownedItem(ctx, t.userID(), orderItemID)
	if err != nil {
		return nil, err
	}
	sc := t.ctx()
	sc.CurrentOrderItemID = item.ID
	sc.AwaitingField = AwaitingSpecialInstructions
	return []Message{{Text: fmt.Sprintf("What should the kitchen know about your %s?", item.Name)}}, nil
}

func (e *Engine) saveNote(ctx context.Context, t *turnState, note string) ([]Message, error) {
	sc := t.ctx()
	item, err := e.orders.SetSpecialInstructions(ctx, sc.CurrentOrderItemID, strings.TrimSpace(note))
	if err != nil {
		return nil, err
	}
	sc.AwaitingField = AwaitingNone
	sc.CurrentOrderItemID = 0
	lead := []Message{{Text: fmt.Sprintf("Noted for your %s.", item.Name)}}
	if flags := sc.UpsellFlags(); flags.Active() {
		return e.offerUpsell(ctx, t, flags, lead)
	}
	return append(lead, anythingElse()), nil
}

func (e *Engine) viewOrder(ctx context.Context, t *turnState, lead string) ([]Message, error) {
	order, err := e.activeOrderOrNil(ctx, t.userID())
	if err != nil {
		return nil, err
	}
	if order == nil || len(order.Items) == 0 {
		text := "Your cart is empty."
		if lead != "" {
			text = lead + "\n" + text
		}
		return []Message{{Text: text, Buttons: menuButton()}}, nil
	}

	text := renderSummary(orders.Summarize(order))
	if lead != "" {
		text = lead + "\n" + text
	}
	buttons := make([][]Button, 0, len(order.Items)+2)
	for _, item := range order.Items {
		buttons = append(buttons, row(button("Remove "+item.Name, RemoveItem{OrderItemID: item.ID})))
	}
	buttons = append(buttons,
		row(button("Clear order", ClearOrder{}), button("Continue shopping", ContinueShopping{})),
		row(button("Checkout", Checkout{})),
	)
	return []Message{{Text: text, Buttons: buttons}}, nil
}

func (e *Engine) removeItem(ctx context.Context, t *turnState, orderItemID uint) ([]Message, error) {
	item, err := e.ownedItem(ctx, t.userID(), orderItemID)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			return e.viewOrder(ctx, t, "That item is no longer in your cart.")
		}
		return nil, err
	}
	if err := e.orders.RemoveItem(ctx, item.ID); err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			return e.viewOrder(ctx, t, "That item is no longer in your cart.")
		}
		return nil, err
	}
	if t.ctx().CurrentOrderItemID == item.ID {
		t.ctx().CurrentOrderItemID = 0
		t.ctx().AwaitingField = AwaitingNone
	}
	return e.viewOrder(ctx, t, fmt.Sprintf("Removed %s.", item.Name))
}

func (e *Engine) clearOrder(ctx context.Context, t *turnState) ([]Message, error) {
	order, err := e.activeOrderOrNil(ctx, t.userID())
	if err != nil {
		return nil, err
	}
	if order != nil {
		if err := e.orders.ClearOrder(ctx, order.ID); err != nil {
			return nil, err
		}
	}
	sc := t.ctx()
	sc.SetUpsellFlags(upsell.Flags{})
	sc.CurrentOrderItemID = 0
	sc.AwaitingField = AwaitingNone
	e.moveTo(ctx, t, enums.ConversationStateMenuSelection)
	return []Message{{Text: "Your cart is now empty.", Buttons: menuButton()}}, nil
}

// activeOrderOrNil returns the pending order, or nil when there is none.
func (e *Engine) activeOrderOrNil(ctx context.Context, userID string) (*models.Order, error) {
	order, err := e.orders.GetActiveOrder(ctx, userID)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return order, nil
}

// activeOrderMidFlow treats a vanished cart during checkout as expired.
func (e *Engine) activeOrderMidFlow(ctx context.Context, userID string) (*models.Order, error) {
	order, err := e.orders.GetActiveOrder(ctx, userID)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeExpired, "active order no longer pending")
		}
		return nil, err
	}
	return order, nil
}

// ownedItem loads a cart line and checks it belongs to the user's order.
func (e *Engine) ownedItem(ctx context.Context, userID string, orderItemID uint) (*models.OrderItem, error) {
	item, err := e.orders.GetItem(ctx, orderItemID)
	if err != nil {
		return nil, err
	}
	order, err := e.orders.GetOrder(ctx, item.OrderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
	}
	return item, nil
}
