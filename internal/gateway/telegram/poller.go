package telegram

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"github.com/msourial/platefull/internal/conversation"
	pkgerrors "github.com/msourial/platefull/pkg/errors"
	"github.com/msourial/platefull/pkg/logger"
)

const (
	defaultWorkers = 8
	shardBuffer    = 16
)

// PollerParams wires a Poller.
type PollerParams struct {
	API            BotAPI
	Handler        conversation.TurnHandler
	Gateway        conversation.Gateway
	Logger         *logger.Logger
	PollTimeoutSec int
	Workers        int
}

// Poller long-polls Telegram and feeds updates to the engine. Each user is
// pinned to one worker, so a user's turns run in arrival order while
// different users run concurrently.
type Poller struct {
	api     BotAPI
	handler conversation.TurnHandler
	gateway conversation.Gateway
	logg    *logger.Logger
	timeout int
	workers int
}

// NewPoller validates params and builds a Poller.
func NewPoller(p PollerParams) (*Poller, error) {
	switch {
	case p.API == nil:
		return nil, fmt.Errorf("telegram bot api required")
	case p.Handler == nil:
		return nil, fmt.Errorf("turn handler required")
	case p.Gateway == nil:
		return nil, fmt.Errorf("gateway required")
	}
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	workers := p.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Poller{
		api:     p.API,
		handler: p.Handler,
		gateway: p.Gateway,
		logg:    logg,
		timeout: p.PollTimeoutSec,
		workers: workers,
	}, nil
}

// Run receives updates until ctx is cancelled, then waits for in-flight turns.
func (p *Poller) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = p.timeout
	cfg.AllowedUpdates = []string{"message", "callback_query"}
	updates := p.api.GetUpdatesChan(cfg)
	defer p.api.StopReceivingUpdates()

	shards := make([]chan tgbotapi.Update, p.workers)
	var group errgroup.Group
	for i := range shards {
		ch := make(chan tgbotapi.Update, shardBuffer)
		shards[i] = ch
		group.Go(func() error {
			for update := range ch {
				p.HandleUpdate(ctx, update)
			}
			return nil
		})
	}
	drain := func() {
		for _, ch := range shards {
			close(ch)
		}
		_ = group.Wait()
	}

	p.logg.Info(ctx, "telegram.poller_started")
	for {
		select {
		case <-ctx.Done():
			drain()
			p.logg.Info(ctx, "telegram.poller_stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				drain()
				return nil
			}
			turn, ok := TurnFromUpdate(update)
			if !ok {
				continue
			}
			select {
			case shards[shardFor(turn.UserID, len(shards))] <- update:
			case <-ctx.Done():
			}
		}
	}
}

func shardFor(userID string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % uint32(n))
}

// HandleUpdate runs one update through the engine and sends the replies.
func (p *Poller) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	turn, ok := TurnFromUpdate(update)
	if !ok {
		return
	}
	ctx = p.logg.WithFields(ctx, map[string]any{"user_id": turn.UserID, "turn_id": turn.ID})

	if cb := update.CallbackQuery; cb != nil {
		if _, err := p.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
			p.logg.Warn(p.logg.WithField(ctx, "error", err.Error()), "telegram.callback_ack_failed")
		}
	}

	msgs, err := p.handler.HandleTurn(ctx, turn)
	if err != nil {
		p.logg.Error(ctx, "telegram.turn_rejected", err)
		msgs = []conversation.Message{{Text: pkgerrors.MetadataFor(pkgerrors.CodeOf(err)).UserMessage}}
	}
	if len(msgs) == 0 {
		return
	}
	if err := p.gateway.Send(ctx, turn.UserID, msgs); err != nil {
		p.logg.Error(ctx, "telegram.send_failed", err)
	}
}

// TurnFromUpdate converts private-chat messages and button presses into
// turns. Anything else is ignored.
func TurnFromUpdate(update tgbotapi.Update) (conversation.Turn, bool) {
	id := strconv.Itoa(update.UpdateID)
	switch {
	case update.CallbackQuery != nil:
		cb := update.CallbackQuery
		if cb.From == nil || strings.TrimSpace(cb.Data) == "" {
			return conversation.Turn{}, false
		}
		return conversation.Turn{
			ID:          id,
			UserID:      UserID(cb.From.ID),
			DisplayName: cb.From.FirstName,
			Action:      cb.Data,
		}, true
	case update.Message != nil:
		msg := update.Message
		if msg.From == nil || msg.Chat == nil || !msg.Chat.IsPrivate() || strings.TrimSpace(msg.Text) == "" {
			return conversation.Turn{}, false
		}
		return conversation.Turn{
			ID:          id,
			UserID:      UserID(msg.From.ID),
			DisplayName: msg.From.FirstName,
			Text:        msg.Text,
		}, true
	}
	return conversation.Turn{}, false
}
