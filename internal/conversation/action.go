package conversation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/msourial/platefull/pkg/enums"
	pkgerrors "github.com/msourial/platefull/pkg/errors"
)

// Action is a structured button press. Each variant encodes to the compact
// token carried in button payloads.
type Action interface {
	Token() string
	action()
}

type (
	ShowMenu            struct{}
	BrowseCategory      struct{ CategoryID uint }
	AddItem             struct{ MenuItemID uint }
	SkipUpsell          struct{ Stage enums.UpsellStage }
	AddNote             struct{ OrderItemID uint }
	ViewOrder           struct{}
	RemoveItem          struct{ OrderItemID uint }
	ClearOrder          struct{}
	ContinueShopping    struct{}
	Checkout            struct{}
	ChooseDelivery      struct{ Method enums.DeliveryMethod }
	ChoosePayment       struct{ Method enums.PaymentMethod }
	WalletDecision      struct{ Confirm bool }
	ConfirmOrder        struct{}
	CancelOrder         struct{}
	Reorder             struct{ OrderID uint }
	ShowRecommendations struct{}
	Restart             struct{}
)

// Customize answers one customization option of a cart line.
type Customize struct {
	OrderItemID uint
	Option      string
	Choice      string
}

func (ShowMenu) Token() string { return "show_menu" }
func (a BrowseCategory) Token() string { return fmt.Sprintf("category:%d", a.CategoryID) }
func (a AddItem) Token() string { return fmt.Sprintf("add_item:%d", a.MenuItemID) }
func (a Customize) Token() string {
	return fmt.Sprintf("customization:%d:%s:%s", a.OrderItemID, a.Option, a.Choice)
}
func (a SkipUpsell) Token() string { return "skip_upsell:" + string(a.Stage) }
func (a AddNote) Token() string { return fmt.Sprintf("note:%d", a.OrderItemID) }
func (ViewOrder) Token() string { return "view_order" }
func (a RemoveItem) Token() string { return fmt.Sprintf("remove_item:%d", a.OrderItemID) }
func (ClearOrder) Token() string { return "clear_order" }
func (ContinueShopping) Token() string { return "continue_shopping" }
func (Checkout) Token() string { return "checkout" }
func (a ChooseDelivery) Token() string { return "delivery_method:" + string(a.Method) }
func (a ChoosePayment) Token() string { return "payment_method:" + string(a.Method) }
func (ConfirmOrder) Token() string { return "confirm_order" }
func (CancelOrder) Token() string { return "cancel_order" }
func (a Reorder) Token() string { return fmt.Sprintf("reorder:%d", a.OrderID) }
func (ShowRecommendations) Token() string { return "recommendations" }
func (Restart) Token() string { return "restart" }

func (a WalletDecision) Token() string {
	if a.Confirm {
		return "wallet:confirm"
	}
	return "wallet:change"
}

func (ShowMenu) action() {}
func (BrowseCategory) action() {}
func (AddItem) action() {}
func (Customize) action() {}
func (SkipUpsell) action() {}
func (AddNote) action() {}
func (ViewOrder) action() {}
func (RemoveItem) action() {}
func (ClearOrder) action() {}
func (ContinueShopping) action() {}
func (Checkout) action() {}
func (ChooseDelivery) action() {}
func (ChoosePayment) action() {}
func (WalletDecision) action() {}
func (ConfirmOrder) action() {}
func (CancelOrder) action() {}
func (Reorder) action() {}
func (ShowRecommendations) action() {}
func (Restart) action() {}

// ParseAction decodes a button token. Malformed tokens are CodeValidation.
func ParseAction(raw string) (Action, error) {
	raw = strings.TrimSpace(raw)
	name, rest, _ := strings.Cut(raw, ":")
	switch name {
	case "show_menu":
		return ShowMenu{}, nil
	case "category":
		id, err := parseID(rest)
		if err != nil {
			return nil, invalidAction(raw)
		}
		return BrowseCategory{CategoryID: id}, nil
	case "add_item":
		id, err := parseID(rest)
		if err != nil {
			return nil, invalidAction(raw)
		}
		return AddItem{MenuItemID: id}, nil
	case "customization":
		parts := strings.SplitN(rest, ":", 3)
		if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
			return nil, invalidAction(raw)
		}
		id, err := parseID(parts[0])
		if err != nil {
			return nil, invalidAction(raw)
		}
		return Customize{OrderItemID: id, Option: parts[1], Choice: parts[2]}, nil
	case "skip_upsell":
		stage, err := enums.ParseUpsellStage(rest)
		if err != nil {
			return nil, invalidAction(raw)
		}
		return SkipUpsell{Stage: stage}, nil
	case "note":
		id, err := parseID(rest)
		if err != nil {
			return nil, invalidAction(raw)
		}
		return AddNote{OrderItemID: id}, nil
	case "view_order":
		return ViewOrder{}, nil
	case "remove_item":
		id, err := parseID(rest)
		if err != nil {
			return nil, invalidAction(raw)
		}
		return RemoveItem{OrderItemID: id}, nil
	case "clear_order":
		return ClearOrder{}, nil
	case "continue_shopping":
		return ContinueShopping{}, nil
	case "checkout":
		return Checkout{}, nil
	case "delivery_method":
		method, err := enums.ParseDeliveryMethod(rest)
		if err != nil {
			return nil, invalidAction(raw)
		}
		return ChooseDelivery{Method: method}, nil
	case "payment_method":
		method, err := enums.ParsePaymentMethod(rest)
		if err != nil {
			return nil, invalidAction(raw)
		}
		return ChoosePayment{Method: method}, nil
	case "wallet":
		switch rest {
		case "confirm":
			return WalletDecision{Confirm: true}, nil
		case "change":
			return WalletDecision{}, nil
		}
		return nil, invalidAction(raw)
	case "confirm_order":
		return ConfirmOrder{}, nil
	case "cancel_order":
		return CancelOrder{}, nil
	case "reorder":
		id, err := parseID(rest)
		if err != nil {
			return nil, invalidAction(raw)
		}
		return Reorder{OrderID: id}, nil
	case "recommendations":
		return ShowRecommendations{}, nil
	case "restart":
		return Restart{}, nil
	}
	return nil, invalidAction(raw)
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return uint(id), nil
}

func invalidAction(raw string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unrecognized action %q", raw))
}
