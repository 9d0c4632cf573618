package enums

import "fmt"

// ConversationState is the closed set of states a customer session can be in.
type ConversationState string

const (
	ConversationStateInitial            ConversationState = "initial"
	ConversationStateMenuSelection      ConversationState = "menu_selection"
	ConversationStateItemSelection      ConversationState = "item_selection"
	ConversationStateDeliveryInfo       ConversationState = "delivery_info"
	ConversationStatePaymentSelection   ConversationState = "payment_selection"
	ConversationStateWalletAddressInput ConversationState = "wallet_address_input"
	ConversationStateWalletConfirmation ConversationState = "wallet_confirmation"
	ConversationStateOrderConfirmation  ConversationState = "order_confirmation"
	ConversationStateOrderCompleted     ConversationState = "order_completed"
)

var validConversationStates = []ConversationState{
	ConversationStateInitial,
	ConversationStateMenuSelection,
	ConversationStateItemSelection,
	ConversationStateDeliveryInfo,
	ConversationStatePaymentSelection,
	ConversationStateWalletAddressInput,
	ConversationStateWalletConfirmation,
	ConversationStateOrderConfirmation,
	ConversationStateOrderCompleted,
}

// String implements fmt.Stringer.
func (c ConversationState) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ConversationState.
func (c ConversationState) IsValid() bool {
	for _, candidate := range validConversationStates {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseConversationState converts raw input into a ConversationState.
func ParseConversationState(value string) (ConversationState, error) {
	for _, candidate := range validConversationStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid conversation state %q", value)
}
