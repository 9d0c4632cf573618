package conversation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/msourial/platefull/internal/intent"
	"github.com/msourial/platefull/pkg/db/models"
	"github.com/msourial/platefull/pkg/enums"
)

const (
	maxDietItems      = 5
	maxTextCandidates = 5
)

// handleText routes free text. Pending free-form answers (notes, address,
// wallet) are captured first unless the text is a command.
func (e *Engine) handleText(ctx context.Context, t *turnState, raw string) ([]Message, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return e.help(), nil
	}
	sc := t.ctx()
	if _, isCommand := intent.Command(raw); !isCommand {
		switch {
		case sc.AwaitingField == AwaitingSpecialInstructions:
			return e.saveNote(ctx, t, raw)
		case sc.AwaitingField == AwaitingDeliveryAddress, sc.AwaitingField == AwaitingDeliveryInstructions:
			return e.captureDelivery(ctx, t, raw)
		case t.sess.State == enums.ConversationStateWalletAddressInput:
			return e.captureWallet(ctx, t, raw)
		}
	}

	convo := e.intentContext(t)
	res, err := e.intents.Resolve(ctx, raw, convo)
	if err != nil {
		return nil, err
	}
	e.metrics.IncIntent(string(res.Source), string(res.Intent))
	return e.handleIntent(ctx, t, res)
}

// intentContext carries the session view; cart and menu names are loaded
// only if the pipeline reaches the external resolver.
func (e *Engine) intentContext(t *turnState) intent.Context {
	sc := t.ctx()
	convo := intent.Context{
		State:          string(t.sess.State),
		LastBotMessage: t.sess.LastBotMessage,
		Preferences:    map[string]string{},
	}
	for key, value := range map[string]string{
		"spice":   sc.SpicePreference,
		"allergy": sc.AllergyInfo,
		"service": sc.ServicePreference,
		"dietary": sc.DietaryPreference,
	} {
		if value != "" {
			convo.Preferences[key] = value
		}
	}
	userID := t.userID()
	convo.Enrich = func(ctx context.Context, c *intent.Context) error {
		cart, err := e.activeOrderOrNil(ctx, userID)
		if err != nil {
			return err
		}
		if cart != nil {
			for _, item := range cart.Items {
				c.CartItems = append(c.CartItems, item.Name)
			}
		}
		menu, err := e.catalog.ListMenuItems(ctx, nil)
		if err != nil {
			return err
		}
		for _, item := range menu {
			c.MenuItems = append(c.MenuItems, item.Name)
		}
		return nil
	}
	return convo
}

func (e *Engine) handleIntent(ctx context.Context, t *turnState, res *intent.Result) ([]Message, error) {
	switch res.Intent {
	case enums.IntentRestart:
		return e.restart(ctx, t)
	case enums.IntentShowMenu:
		if res.Category != "" {
			if category, err := e.catalog.FindCategoryByName(ctx, res.Category); err == nil {
				return e.browseCategory(ctx, t, category.ID)
			}
		}
		return e.showMenu(ctx, t, "")
	case enums.IntentViewOrder:
		return e.viewOrder(ctx, t, "")
	case enums.IntentCheckout:
		return e.checkout(ctx, t)
	case enums.IntentHelp:
		return e.help(), nil
	case enums.IntentRecommendation:
		return e.recommendations(ctx, t, res.Message)
	case enums.IntentPreference:
		return e.applyPreference(ctx, t, res.Preference)
	case enums.IntentDietaryRecommendation:
		return e.dietary(ctx, t, res)
	case enums.IntentOrderItem:
		return e.orderFromText(ctx, t, res)
	}

	if t.sess.State == enums.ConversationStateInitial {
		return e.welcome(ctx, t)
	}
	reply := res.Message
	if reply == "" {
		reply = "Sorry, I didn't quite get that. You can browse the menu or check your order."
	}
	if len(res.FollowUpQuestions) > 0 {
		reply += "\n" + res.FollowUpQuestions[0]
	}
	return []Message{{
		Text:    reply,
		Buttons: [][]Button{row(button("Show menu", ShowMenu{}), button("View order", ViewOrder{}))},
	}}, nil
}

func (e *Engine) help() []Message {
	return []Message{{
		Text: "You can tell me what you'd like (\"two falafel wraps\"), or use:\n" +
			"menu - browse the menu\n" +
			"cart - see your order\n" +
			"checkout - place your order\n" +
			"recommendations - dishes picked for you\n" +
			"start over - begin a new order",
		Buttons: menuButton(),
	}}
}

func (e *Engine) applyPreference(ctx context.Context, t *turnState, pref *intent.Preference) ([]Message, error) {
	if pref == nil {
		return e.help(), nil
	}
	sc := t.ctx()
	switch pref.Field {
	case intent.PreferenceSpice:
		sc.SpicePreference = pref.Value
		if sc.CurrentOrderItemID != 0 {
			if msgs, ok, err := e.answerPromptWith(ctx, t, pref.Value); err != nil || ok {
				return msgs, err
			}
		}
		return []Message{{Text: fmt.Sprintf("Got it, %s it is.", pref.Value), Buttons: menuButton()}}, nil
	case intent.PreferenceAllergy:
		sc.AllergyInfo = pref.Value
		if pref.Value == "none" {
			return []Message{{Text: "Great, no allergies noted.", Buttons: menuButton()}}, nil
		}
		return []Message{{Text: fmt.Sprintf("Thanks, I'll let the kitchen know about: %s.", pref.Value), Buttons: menuButton()}}, nil
	case intent.PreferenceService:
		sc.ServicePreference = pref.Value
		if t.sess.State == enums.ConversationStateDeliveryInfo {
			return e.chooseDelivery(ctx, t, enums.DeliveryMethod(pref.Value))
		}
		return []Message{{Text: fmt.Sprintf("Noted, you prefer %s.", pref.Value), Buttons: menuButton()}}, nil
	}
	return e.help(), nil
}

// answerPromptWith applies value to the open customization question when it
// matches one of its choices.
func (e *Engine) answerPromptWith(ctx context.Context, t *turnState, value string) ([]Message, bool, error) {
	itemID := t.ctx().CurrentOrderItemID
	step, err := e.customizer.Next(ctx, itemID)
	if err != nil || step.Prompt == nil {
		return nil, false, nil
	}
	for _, choice := range step.Prompt.Option.Choices {
		if strings.EqualFold(choice, value) {
			msgs, err := e.customize(ctx, t, Customize{OrderItemID: itemID, Option: step.Prompt.Option.Name, Choice: choice})
			return msgs, true, err
		}
	}
	return nil, false, nil
}

func (e *Engine) dietary(ctx context.Context, t *turnState, res *intent.Result) ([]Message, error) {
	if res.Diet == nil {
		return e.recommendations(ctx, t, res.Message)
	}
	t.ctx().DietaryPreference = res.Diet.Name

	menu, err := e.catalog.ListMenuItems(ctx, nil)
	if err != nil {
		return nil, err
	}
	var matches []models.MenuItem
	for _, item := range menu {
		for _, tag := range res.Diet.Tags {
			if item.HasTag(tag) {
				matches = append(matches, item)
				break
			}
		}
	}
	if len(matches) == 0 {
		return []Message{{
			Text:    fmt.Sprintf("We don't have dishes marked %s yet, but the menu might still have something for you.", res.Diet.Name),
			Buttons: menuButton(),
		}}, nil
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Popularity != matches[j].Popularity {
			return matches[i].Popularity > matches[j].Popularity
		}
		return matches[i].Name < matches[j].Name
	})
	if len(matches) > maxDietItems {
		matches = matches[:maxDietItems]
	}
	buttons := itemButtons(matches)
	buttons = append(buttons, row(button("Show full menu", ShowMenu{})))
	return []Message{{Text: res.Message, Buttons: buttons}}, nil
}

func (e *Engine) orderFromText(ctx context.Context, t *turnState, res *intent.Result) ([]Message, error) {
	switch {
	case res.FallbackToMenu:
		return e.showMenu(ctx, t, "I found a few possible matches.")
	case res.Ambiguous():
		return e.offerCandidates(ctx, t, res.Candidates)
	case res.Item == "":
		if res.Category != "" {
			if category, err := e.catalog.FindCategoryByName(ctx, res.Category); err == nil {
				return e.browseCategory(ctx, t, category.ID)
			}
		}
		return e.showMenu(ctx, t, "What would you like to order?")
	}

	matches, err := e.catalog.FindMenuItemsByName(ctx, res.Item)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return e.showMenu(ctx, t, fmt.Sprintf("Sorry, we don't have %q.", res.Item))
	}
	if len(matches) == 1 || strings.EqualFold(matches[0].Name, res.Item) {
		return e.addItem(ctx, t, matches[0].ID, res.Quantity, res.SpecialInstructions)
	}
	if len(matches) > maxTextCandidates {
		matches = matches[:maxTextCandidates]
	}
	buttons := itemButtons(matches)
	buttons = append(buttons, row(button("Show full menu", ShowMenu{})))
	return []Message{{Text: "Which one did you mean?", Buttons: buttons}}, nil
}

// offerCandidates presents every candidate the resolver proposed that exists on the menu.
func (e *Engine) offerCandidates(ctx context.Context, t *turnState, candidates []string) ([]Message, error) {
	seen := map[uint]bool{}
	var items []models.MenuItem
	for _, name := range candidates {
		matches, err := e.catalog.FindMenuItemsByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 || seen[matches[0].ID] {
			continue
		}
		seen[matches[0].ID] = true
		items = append(items, matches[0])
	}
	if len(items) == 0 {
		return e.showMenu(ctx, t, "I couldn't find that exactly.")
	}
	buttons := itemButtons(items)
	buttons = append(buttons, row(button("Show full menu", ShowMenu{})))
	return []Message{{Text: "Which one would you like?", Buttons: buttons}}, nil
}
