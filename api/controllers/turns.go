package controllers

import (
	"net/http"
	"strings"

	"github.com/msourial/platefull/api/responses"
	"github.com/msourial/platefull/api/validators"
	"github.com/msourial/platefull/internal/conversation"
	pkgerrors "github.com/msourial/platefull/pkg/errors"
	"github.com/msourial/platefull/pkg/logger"
)

// HTTPUserPrefix namespaces user ids that arrive through the HTTP gateway.
const HTTPUserPrefix = "http:"

type turnRequest struct {
	TurnID      string `json:"turn_id" validate:"required,max=128"`
	UserID      string `json:"user_id" validate:"required,max=64,excludes=:"`
	DisplayName string `json:"display_name" validate:"max=64"`
	Text        string `json:"text" validate:"required_without=Action,max=1000"`
	Action      string `json:"action" validate:"max=64"`
}

type turnResponse struct {
	TurnID   string                 `json:"turn_id"`
	UserID   string                 `json:"user_id"`
	Messages []conversation.Message `json:"messages"`
}

// PostTurn feeds one HTTP turn through the engine and returns the replies
// inline. A rejected turn surfaces as an error envelope.
func PostTurn(handler conversation.TurnHandler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if handler == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "turn handler unavailable"))
			return
		}

		var payload turnRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		turn := conversation.Turn{
			ID:          strings.TrimSpace(payload.TurnID),
			UserID:      HTTPUserPrefix + strings.TrimSpace(payload.UserID),
			DisplayName: validators.SanitizeString(payload.DisplayName, 64),
			Text:        validators.SanitizeString(payload.Text, 1000),
			Action:      strings.TrimSpace(payload.Action),
		}
		msgs, err := handler.HandleTurn(r.Context(), turn)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if msgs == nil {
			msgs = []conversation.Message{}
		}
		responses.WriteSuccess(w, turnResponse{TurnID: turn.ID, UserID: turn.UserID, Messages: msgs})
	}
}
