package conversation

import (
	"context"
	"strings"
)

// Turn is one inbound user message: free text or a button action token.
type Turn struct {
	ID          string
	UserID      string
	DisplayName string
	Text        string
	Action      string
}

// Channel is the gateway prefix of the user id (telegram, http...).
func (t Turn) Channel() string {
	if prefix, _, ok := strings.Cut(t.UserID, ":"); ok && prefix != "" {
		return prefix
	}
	return "unknown"
}

// Button is a quick reply carrying an encoded Action.
type Button struct {
	Label  string `json:"label"`
	Action string `json:"action"`
}

// Message is one outbound reply. Buttons are laid out in rows.
type Message struct {
	Text    string     `json:"text"`
	Buttons [][]Button `json:"buttons,omitempty"`
}

// Gateway delivers replies to a messaging platform.
type Gateway interface {
	Send(ctx context.Context, userID string, msgs []Message) error
}

// TurnHandler processes turns; the Engine implements it.
type TurnHandler interface {
	HandleTurn(ctx context.Context, turn Turn) ([]Message, error)
}

func button(label string, a Action) Button {
	return Button{Label: label, Action: a.Token()}
}

func row(buttons ...Button) []Button {
	return buttons
}
