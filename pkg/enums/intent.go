package enums

import "fmt"

// Intent is the structured classification of a customer's free-text input.
type Intent string

const (
	IntentOrderItem             Intent = "order_item"
	IntentShowMenu              Intent = "show_menu"
	IntentViewOrder             Intent = "view_order"
	IntentCheckout              Intent = "checkout"
	IntentDietaryRecommendation Intent = "dietary_recommendation"
	IntentRecommendation        Intent = "recommendation"
	IntentRestart               Intent = "restart"
	IntentHelp                  Intent = "help"
	IntentPreference            Intent = "preference"
	IntentUnknown               Intent = "unknown"
)

var validIntents = []Intent{
	IntentOrderItem,
	IntentShowMenu,
	IntentViewOrder,
	IntentCheckout,
	IntentDietaryRecommendation,
	IntentRecommendation,
	IntentRestart,
	IntentHelp,
	IntentPreference,
	IntentUnknown,
}

// String implements fmt.Stringer.
func (i Intent) String() string {
	return string(i)
}

// IsValid reports whether the value is a known Intent.
func (i Intent) IsValid() bool {
	for _, candidate := range validIntents {
		if candidate == i {
			return true
		}
	}
	return false
}

// ParseIntent converts raw input into an Intent. Unknown labels map to IntentUnknown
// alongside the error so callers can degrade without branching.
func ParseIntent(value string) (Intent, error) {
	for _, candidate := range validIntents {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return IntentUnknown, fmt.Errorf("invalid intent %q", value)
}
