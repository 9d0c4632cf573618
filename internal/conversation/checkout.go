package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/msourial/platefull/internal/orders"
	"github.com/msourial/platefull/internal/settlement"
	"github.com/msourial/platefull/internal/upsell"
	"github.com/msourial/platefull/pkg/db/models"
	"github.com/msourial/platefull/pkg/enums"
	pkgerrors "github.com/msourial/platefull/pkg/errors"
)

func (e *Engine) checkout(ctx context.Context, t *turnState) ([]Message, error) {
	order, err := e.activeOrderOrNil(ctx, t.userID())
	if err != nil {
		return nil, err
	}
	if order == nil || len(order.Items) == 0 {
		return []Message{{Text: "Your cart is empty. Add something first!", Buttons: menuButton()}}, nil
	}
	sc := t.ctx()
	sc.SetUpsellFlags(upsell.Flags{})
	sc.AwaitingField = AwaitingNone
	sc.CurrentOrderItemID = 0
	e.moveTo(ctx, t, enums.ConversationStateDeliveryInfo)
	return []Message{deliveryPrompt(sc.ServicePreference)}, nil
}

func (e *Engine) chooseDelivery(ctx context.Context, t *turnState, method enums.DeliveryMethod) ([]Message, error) {
	order, err := e.activeOrderMidFlow(ctx, t.userID())
	if err != nil {
		return nil, err
	}
	if _, err := e.orders.SetDelivery(ctx, order.ID, orders.DeliveryInput{Method: method}); err != nil {
		return nil, err
	}
	sc := t.ctx()
	sc.ServicePreference = string(method)
	e.moveTo(ctx, t, enums.ConversationStateDeliveryInfo)
	if method == enums.DeliveryMethodDelivery {
		sc.AwaitingField = AwaitingDeliveryAddress
		return []Message{{Text: "What's the delivery address?"}}, nil
	}
	sc.AwaitingField = AwaitingNone
	e.moveTo(ctx, t, enums.ConversationStatePaymentSelection)
	return []Message{{Text: "Pickup it is."}, paymentPrompt()}, nil
}

var noInstructions = map[string]bool{"no": true, "none": true, "nope": true, "nothing": true, "n/a": true, "skip": true}

// captureDelivery stores the address, then the optional instructions.
func (e *Engine) captureDelivery(ctx context.Context, t *turnState, input string) ([]Message, error) {
	input = strings.TrimSpace(input)
	order, err := e.activeOrderMidFlow(ctx, t.userID())
	if err != nil {
		return nil, err
	}
	sc := t.ctx()
	switch sc.AwaitingField {
	case AwaitingDeliveryAddress:
		if len(input) < 5 {
			return []Message{{Text: "That address looks too short. What's the full delivery address?"}}, nil
		}
		if _, err := e.orders.SetDelivery(ctx, order.ID, orders.DeliveryInput{Method: enums.DeliveryMethodDelivery, Address: input}); err != nil {
			return nil, err
		}
		sc.AwaitingField = AwaitingDeliveryInstructions
		return []Message{{Text: "Any delivery instructions? Reply \"none\" to skip."}}, nil
	case AwaitingDeliveryInstructions:
		if !noInstructions[strings.ToLower(strings.Trim(input, ".! "))] {
			if _, err := e.orders.SetDelivery(ctx, order.ID, orders.DeliveryInput{Method: enums.DeliveryMethodDelivery, Instructions: input}); err != nil {
				return nil, err
			}
		}
		sc.AwaitingField = AwaitingNone
		e.moveTo(ctx, t, enums.ConversationStatePaymentSelection)
		return []Message{paymentPrompt()}, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("not collecting delivery details (%s)", sc.AwaitingField))
}

func (e *Engine) choosePayment(ctx context.Context, t *turnState, method enums.PaymentMethod) ([]Message, error) {
	order, err := e.activeOrderMidFlow(ctx, t.userID())
	if err != nil {
		return nil, err
	}
	sc := t.ctx()
	if order.DeliveryMethod == "" {
		sc.AwaitingField = AwaitingNone
		e.moveTo(ctx, t, enums.ConversationStateDeliveryInfo)
		return []Message{deliveryPrompt(sc.ServicePreference)}, nil
	}
	if order.DeliveryMethod == enums.DeliveryMethodDelivery && strings.TrimSpace(order.DeliveryAddress) == "" {
		e.moveTo(ctx, t, enums.ConversationStateDeliveryInfo)
		sc.AwaitingField = AwaitingDeliveryAddress
		return []Message{{Text: "What's the delivery address?"}}, nil
	}
	sc.AwaitingField = AwaitingNone
	if method.RequiresWallet() {
		if sc.AuthorizedWallet != "" {
			sc.PendingWalletAddress = sc.AuthorizedWallet
			e.moveTo(ctx, t, enums.ConversationStateWalletConfirmation)
			return []Message{walletConfirmPrompt(sc.PendingWalletAddress)}, nil
		}
		sc.PendingWalletAddress = ""
		e.moveTo(ctx, t, enums.ConversationStateWalletAddressInput)
		return []Message{{Text: "Please send the wallet address you'll pay from (0x...)."}}, nil
	}

	updated, err := e.orders.SetPaymentMethod(ctx, order.ID, method, "")
	if err != nil {
		return nil, err
	}
	e.moveTo(ctx, t, enums.ConversationStateOrderConfirmation)
	return []Message{confirmationPrompt(updated.DeliveryMethod, method, orders.Summarize(updated))}, nil
}

func walletConfirmPrompt(addr string) Message {
	return Message{
		Text: fmt.Sprintf("Pay from wallet %s?", addr),
		Buttons: [][]Button{row(
			button("Confirm wallet", WalletDecision{Confirm: true}),
			button("Use another", WalletDecision{}),
		)},
	}
}

func confirmationPrompt(delivery enums.DeliveryMethod, method enums.PaymentMethod, sum orders.Summary) Message {
	fulfil := "Pickup"
	if delivery == enums.DeliveryMethodDelivery {
		fulfil = "Delivery"
	}
	text := fmt.Sprintf("%s\n%s, paying by %s. Shall I place the order?", renderSummary(sum), fulfil, method)
	return Message{
		Text: text,
		Buttons: [][]Button{
			row(button("Confirm order", ConfirmOrder{})),
			row(button("Cancel order", CancelOrder{})),
		},
	}
}

func (e *Engine) captureWallet(ctx context.Context, t *turnState, input string) ([]Message, error) {
	if err := settlement.ValidateWalletAddress(input); err != nil {
		return []Message{{Text: "That doesn't look like a valid wallet address. It should start with 0x followed by 40 hex characters."}}, nil
	}
	sc := t.ctx()
	sc.PendingWalletAddress = settlement.ChecksumAddress(input)
	e.moveTo(ctx, t, enums.ConversationStateWalletConfirmation)
	return []Message{walletConfirmPrompt(sc.PendingWalletAddress)}, nil
}

func (e *Engine) walletDecision(ctx context.Context, t *turnState, confirm bool) ([]Message, error) {
	sc := t.ctx()
	if !confirm || sc.PendingWalletAddress == "" {
		sc.PendingWalletAddress = ""
		e.moveTo(ctx, t, enums.ConversationStateWalletAddressInput)
		return []Message{{Text: "Please send the wallet address you'll pay from (0x...)."}}, nil
	}

	order, err := e.activeOrderMidFlow(ctx, t.userID())
	if err != nil {
		return nil, err
	}
	updated, err := e.orders.SetPaymentMethod(ctx, order.ID, enums.PaymentMethodStablecoin, sc.PendingWalletAddress)
	if err != nil {
		return nil, err
	}
	sc.AuthorizedWallet = sc.PendingWalletAddress
	sc.PendingWalletAddress = ""
	e.moveTo(ctx, t, enums.ConversationStateOrderConfirmation)
	return []Message{confirmationPrompt(updated.DeliveryMethod, enums.PaymentMethodStablecoin, orders.Summarize(updated))}, nil
}

// confirmOrder settles payment, confirms the order and completes the conversation.
func (e *Engine) confirmOrder(ctx context.Context, t *turnState) ([]Message, error) {
	order, err := e.activeOrderMidFlow(ctx, t.userID())
	if err != nil {
		return nil, err
	}
	ctx = e.logg.WithOrderID(ctx, order.ID)
	if len(order.Items) == 0 {
		return []Message{{Text: "Your cart is empty. Add something first!", Buttons: menuButton()}}, nil
	}
	if order.DeliveryMethod == enums.DeliveryMethodDelivery && strings.TrimSpace(order.DeliveryAddress) == "" {
		e.moveTo(ctx, t, enums.ConversationStateDeliveryInfo)
		t.ctx().AwaitingField = AwaitingDeliveryAddress
		return []Message{{Text: "What's the delivery address?"}}, nil
	}
	if order.PaymentMethod == "" {
		e.moveTo(ctx, t, enums.ConversationStatePaymentSelection)
		return []Message{paymentPrompt()}, nil
	}

	if err := e.noteAllergy(ctx, order, t.ctx().AllergyInfo); err != nil {
		return nil, err
	}

	outcome, msgs, err := e.settle(ctx, t, order)
	if err != nil || msgs != nil {
		return msgs, err
	}

	confirmed, err := e.orders.Confirm(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	e.logg.Info(ctx, "order.confirmed")

	sc := t.ctx()
	sc.SetUpsellFlags(upsell.Flags{})
	sc.AwaitingField = AwaitingNone
	sc.CurrentOrderItemID = 0
	sc.LastCategoryID = 0
	e.moveTo(ctx, t, enums.ConversationStateOrderCompleted)

	text := fmt.Sprintf("Order #%d is confirmed! Total %s.", confirmed.ID, money(orders.Summarize(confirmed).Total))
	if outcome.Manual {
		text += "\nWe couldn't process the payment automatically, so please pay when you receive your order."
	}
	switch confirmed.DeliveryMethod {
	case enums.DeliveryMethodDelivery:
		text += "\nWe'll deliver it to " + confirmed.DeliveryAddress + "."
	case enums.DeliveryMethodPickup:
		text += "\nWe'll let you know when it's ready for pickup."
	}
	return []Message{{Text: text, Buttons: [][]Button{row(button("Start a new order", Restart{}))}}}, nil
}

// noteAllergy copies the customer's allergy onto every line so the kitchen
// sees it with the order.
func (e *Engine) noteAllergy(ctx context.Context, order *models.Order, allergy string) error {
	allergy = strings.TrimSpace(allergy)
	if allergy == "" || allergy == "none" {
		return nil
	}
	note := "Allergy: " + allergy
	for _, item := range order.Items {
		if strings.Contains(item.SpecialInstructions, note) {
			continue
		}
		text := note
		if existing := strings.TrimSpace(item.SpecialInstructions); existing != "" {
			text = existing + "; " + note
		}
		if _, err := e.orders.SetSpecialInstructions(ctx, item.ID, text); err != nil {
			return err
		}
	}
	return nil
}

// settle collects payment unless an earlier confirm attempt already recorded
// an outcome. A rejected payment returns the prompt to pick another method.
func (e *Engine) settle(ctx context.Context, t *turnState, order *models.Order) (*settlement.Outcome, []Message, error) {
	switch order.PaymentStatus {
	case enums.PaymentStatusSettled, enums.PaymentStatusManual:
		e.logg.Info(e.logg.WithField(ctx, "payment_status", string(order.PaymentStatus)), "order.settlement_reused")
		return &settlement.Outcome{
			Status:    order.PaymentStatus,
			Reference: order.PaymentReference,
			Manual:    order.PaymentStatus == enums.PaymentStatusManual,
		}, nil, nil
	}

	outcome, err := e.settlement.Settle(ctx, order.PaymentMethod, settlement.Request{
		OrderID:  order.ID,
		Amount:   orders.Summarize(order).Total,
		PayerRef: order.WalletAddress,
	})
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeValidation) {
			if recErr := e.orders.RecordSettlement(ctx, order.ID, enums.PaymentStatusFailed, ""); recErr != nil {
				return nil, nil, recErr
			}
			e.moveTo(ctx, t, enums.ConversationStatePaymentSelection)
			return nil, []Message{{Text: "The payment didn't go through. Please choose another way to pay."}, paymentPrompt()}, nil
		}
		return nil, nil, err
	}
	if err := e.orders.RecordSettlement(ctx, order.ID, outcome.Status, outcome.Reference); err != nil {
		return nil, nil, err
	}
	return outcome, nil, nil
}

func (e *Engine) cancelOrder(ctx context.Context, t *turnState) ([]Message, error) {
	if _, err := e.orders.DeleteActiveOrder(ctx, t.userID()); err != nil {
		return nil, err
	}
	t.sess.Reset()
	return []Message{{Text: "Your order has been cancelled.", Buttons: menuButton()}}, nil
}
