// Package telegram adapts the conversation engine to the Telegram Bot API:
// a long-polling receiver that turns updates into conversation turns and a
// Gateway that renders replies with inline keyboards.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/msourial/platefull/internal/conversation"
	pkgerrors "github.com/msourial/platefull/pkg/errors"
	"github.com/msourial/platefull/pkg/logger"
)

// UserPrefix namespaces Telegram user ids inside the engine.
const UserPrefix = "telegram:"

// maxCallbackData is the Bot API limit on inline button payloads, in bytes.
const maxCallbackData = 64

// BotAPI is the subset of *tgbotapi.BotAPI the adapter uses.
type BotAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Gateway sends conversation replies to Telegram chats.
type Gateway struct {
	api  BotAPI
	logg *logger.Logger
}

var _ conversation.Gateway = (*Gateway)(nil)

// NewGateway builds a Gateway over an authorized bot client.
func NewGateway(api BotAPI, logg *logger.Logger) (*Gateway, error) {
	if api == nil {
		return nil, fmt.Errorf("telegram bot api required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Gateway{api: api, logg: logg}, nil
}

// UserID maps a Telegram user to the engine's user id.
func UserID(telegramID int64) string {
	return UserPrefix + strconv.FormatInt(telegramID, 10)
}

// ChatID recovers the private chat id from an engine user id.
func ChatID(userID string) (int64, error) {
	raw, ok := strings.CutPrefix(userID, UserPrefix)
	if !ok {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%q is not a telegram user", userID))
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("%q is not a telegram user", userID))
	}
	return id, nil
}

// Send delivers msgs in order and stops at the first failure.
func (g *Gateway) Send(ctx context.Context, userID string, msgs []conversation.Message) error {
	chatID, err := ChatID(userID)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return err
		}
		out := tgbotapi.NewMessage(chatID, msg.Text)
		if markup, ok := g.keyboard(ctx, msg.Buttons); ok {
			out.ReplyMarkup = markup
		}
		if _, err := g.api.Send(out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send telegram message")
		}
	}
	return nil
}

// keyboard lays buttons out as an inline keyboard. Buttons whose action does
// not fit in callback data are dropped.
func (g *Gateway) keyboard(ctx context.Context, rows [][]conversation.Button) (tgbotapi.InlineKeyboardMarkup, bool) {
	var out [][]tgbotapi.InlineKeyboardButton
	for _, r := range rows {
		var buttons []tgbotapi.InlineKeyboardButton
		for _, b := range r {
			if len(b.Action) > maxCallbackData {
				g.logg.Warn(g.logg.WithField(ctx, "action", b.Action), "telegram.button_dropped")
				continue
			}
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Action))
		}
		if len(buttons) > 0 {
			out = append(out, tgbotapi.NewInlineKeyboardRow(buttons...))
		}
	}
	if len(out) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(out...), true
}
