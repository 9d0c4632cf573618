package conversation

import (
	"fmt"

	"github.com/msourial/platefull/internal/upsell"
	"github.com/msourial/platefull/pkg/enums"
	pkgerrors "github.com/msourial/platefull/pkg/errors"
)

// AwaitingField names the free-text answer the bot is waiting for.
type AwaitingField string

const (
	AwaitingNone                 AwaitingField = ""
	AwaitingDeliveryAddress      AwaitingField = "delivery_address"
	AwaitingDeliveryInstructions AwaitingField = "delivery_instructions"
	AwaitingSpecialInstructions  AwaitingField = "special_instructions"
)

// SessionContext is the typed, persisted scratchpad of a conversation.
type SessionContext struct {
	PendingSuggestSides    bool          `json:"pending_suggest_sides,omitempty"`
	PendingSuggestDrinks   bool          `json:"pending_suggest_drinks,omitempty"`
	PendingSuggestDesserts bool          `json:"pending_suggest_desserts,omitempty"`
	SpicePreference        string        `json:"spice_preference,omitempty"`
	AllergyInfo            string        `json:"allergy_info,omitempty"`
	ServicePreference      string        `json:"service_preference,omitempty"`
	DietaryPreference      string        `json:"dietary_preference,omitempty"`
	AwaitingField          AwaitingField `json:"awaiting_field,omitempty"`
	CurrentOrderItemID     uint          `json:"current_order_item_id,omitempty"`
	PendingWalletAddress   string        `json:"pending_wallet_address,omitempty"`
	AuthorizedWallet       string        `json:"authorized_wallet,omitempty"`
	LastCategoryID         uint          `json:"last_category_id,omitempty"`
}

// UpsellFlags reads the upsell position.
func (c SessionContext) UpsellFlags() upsell.Flags {
	return upsell.Flags{
		Sides:    c.PendingSuggestSides,
		Drinks:   c.PendingSuggestDrinks,
		Desserts: c.PendingSuggestDesserts,
	}
}

// SetUpsellFlags stores the upsell position.
func (c *SessionContext) SetUpsellFlags(f upsell.Flags) {
	c.PendingSuggestSides = f.Sides
	c.PendingSuggestDrinks = f.Drinks
	c.PendingSuggestDesserts = f.Desserts
}

// Validate checks that the context is consistent with state.
func (c SessionContext) Validate(state enums.ConversationState) error {
	if !state.IsValid() {
		return invalidSession(fmt.Sprintf("unknown state %q", state))
	}
	set := 0
	for _, on := range []bool{c.PendingSuggestSides, c.PendingSuggestDrinks, c.PendingSuggestDesserts} {
		if on {
			set++
		}
	}
	if set > 1 {
		return invalidSession("more than one upsell stage pending")
	}

	switch c.AwaitingField {
	case AwaitingNone:
	case AwaitingDeliveryAddress, AwaitingDeliveryInstructions:
		if state != enums.ConversationStateDeliveryInfo {
			return invalidSession(fmt.Sprintf("awaiting %s outside delivery_info", c.AwaitingField))
		}
	case AwaitingSpecialInstructions:
		if c.CurrentOrderItemID == 0 {
			return invalidSession("awaiting special instructions without an order item")
		}
	default:
		return invalidSession(fmt.Sprintf("unknown awaiting field %q", c.AwaitingField))
	}

	if state == enums.ConversationStateWalletConfirmation && c.PendingWalletAddress == "" {
		return invalidSession("wallet_confirmation requires a pending wallet address")
	}
	return nil
}

func invalidSession(msg string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "invalid session: "+msg)
}

// Session is one user's conversation position.
type Session struct {
	UserID         string
	DisplayName    string
	State          enums.ConversationState
	Context        SessionContext
	LastBotMessage string
}

func newSession(userID string) *Session {
	return &Session{UserID: userID, State: enums.ConversationStateInitial}
}

// Reset returns the session to initial with an empty context.
func (s *Session) Reset() {
	s.State = enums.ConversationStateInitial
	s.Context = SessionContext{}
}

// Transition moves to state. A context that does not fit the new state
// resets the session and the error is returned for logging.
func (s *Session) Transition(state enums.ConversationState) error {
	if err := s.Context.Validate(state); err != nil {
		s.Reset()
		return err
	}
	s.State = state
	return nil
}
