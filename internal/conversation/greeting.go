package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/msourial/platefull/internal/history"
	"github.com/msourial/platefull/internal/upsell"
	"github.com/msourial/platefull/pkg/enums"
)

// restart drops the pending order and starts over from initial.
func (e *Engine) restart(ctx context.Context, t *turnState) ([]Message, error) {
	deleted, err := e.orders.DeleteActiveOrder(ctx, t.userID())
	if err != nil {
		return nil, err
	}
	if deleted {
		e.logg.Info(ctx, "order.discarded_on_restart")
	}
	t.sess.Reset()
	return e.welcome(ctx, t)
}

// welcome greets the user by history. Analytics failures only cost the
// personal touch.
func (e *Engine) welcome(ctx context.Context, t *turnState) ([]Message, error) {
	profile, err := e.history.AnalyzeOrderHistory(ctx, t.userID())
	if err != nil {
		e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), "history.profile_unavailable")
		profile = nil
	}
	greeting := history.PersonalizedGreeting(profile, t.sess.DisplayName, e.now().In(e.loc))
	msgs := []Message{{
		Text: greeting,
		Buttons: [][]Button{
			row(button("Show menu", ShowMenu{}), button("Recommendations", ShowRecommendations{})),
		},
	}}

	suggestion, err := e.history.CheckForReorderSuggestion(ctx, t.userID())
	if err != nil {
		e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), "history.reorder_unavailable")
		return msgs, nil
	}
	if suggestion == nil || !suggestion.ShouldSuggest {
		return msgs, nil
	}
	names := make([]string, 0, len(suggestion.Items))
	for _, item := range suggestion.Items {
		names = append(names, fmt.Sprintf("%d x %s", item.Quantity, item.Name))
	}
	msgs = append(msgs, Message{
		Text:    fmt.Sprintf("Want the same as %s? (%s)", suggestion.Timeframe, strings.Join(names, ", ")),
		Buttons: [][]Button{row(button("Reorder", Reorder{OrderID: suggestion.OrderID}))},
	})
	return msgs, nil
}

func (e *Engine) recommendations(ctx context.Context, t *turnState, lead string) ([]Message, error) {
	sc := t.ctx()
	recs, err := e.history.GenerateRecommendations(ctx, t.userID(), history.Preferences{
		Dietary: sc.DietaryPreference,
		Spice:   sc.SpicePreference,
	})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return []Message{{Text: "I don't have any suggestions yet. Have a look at the menu!", Buttons: menuButton()}}, nil
	}

	var b strings.Builder
	if lead == "" {
		lead = "Picked for you:"
	}
	b.WriteString(lead)
	buttons := make([][]Button, 0, len(recs)+1)
	for _, rec := range recs {
		fmt.Fprintf(&b, "\n- %s (%s): %s", rec.Name, money(rec.Price), rec.Reason)
		buttons = append(buttons, row(button(fmt.Sprintf("%s - %s", rec.Name, money(rec.Price)), AddItem{MenuItemID: rec.MenuItemID})))
	}
	buttons = append(buttons, row(button("Show full menu", ShowMenu{})))
	if t.sess.State == enums.ConversationStateInitial {
		e.moveTo(ctx, t, enums.ConversationStateMenuSelection)
	}
	return []Message{{Text: b.String(), Buttons: buttons}}, nil
}

func (e *Engine) reorder(ctx context.Context, t *turnState, orderID uint) ([]Message, error) {
	res, err := e.orders.Reorder(ctx, t.userID(), orderID)
	if err != nil {
		return nil, err
	}
	if res.Added == 0 {
		return []Message{{Text: "None of those dishes are available right now.", Buttons: menuButton()}}, nil
	}
	lead := fmt.Sprintf("Added %d item(s) from your previous order.", res.Added)
	if len(res.Skipped) > 0 {
		lead += fmt.Sprintf(" Not available anymore: %s.", strings.Join(res.Skipped, ", "))
	}
	sc := t.ctx()
	sc.SetUpsellFlags(upsell.Flags{})
	sc.AwaitingField = AwaitingNone
	sc.CurrentOrderItemID = 0
	e.moveTo(ctx, t, enums.ConversationStateItemSelection)
	return e.viewOrder(ctx, t, lead)
}
