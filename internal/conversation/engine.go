// Package conversation runs the per-user ordering state machine. Each turn is
// handled under a per-user lock, and the session is persisted only after a
// handler succeeds.
package conversation

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/msourial/platefull/internal/customization"
	"github.com/msourial/platefull/internal/history"
	"github.com/msourial/platefull/internal/intent"
	"github.com/msourial/platefull/internal/orders"
	"github.com/msourial/platefull/internal/settlement"
	"github.com/msourial/platefull/internal/upsell"
	"github.com/msourial/platefull/pkg/db/models"
	"github.com/msourial/platefull/pkg/enums"
	pkgerrors "github.com/msourial/platefull/pkg/errors"
	"github.com/msourial/platefull/pkg/logger"
	"github.com/msourial/platefull/pkg/metrics"
)

// Catalog is the menu surface the engine browses.
type Catalog interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	GetCategory(ctx context.Context, id uint) (*models.Category, error)
	FindCategoryByName(ctx context.Context, name string) (*models.Category, error)
	ListMenuItems(ctx context.Context, categoryID *uint) ([]models.MenuItem, error)
	GetMenuItem(ctx context.Context, id uint) (*models.MenuItem, error)
	FindMenuItemsByName(ctx context.Context, name string) ([]models.MenuItem, error)
}

// Customizer walks cart lines through their options.
type Customizer interface {
	Next(ctx context.Context, orderItemID uint) (*customization.Step, error)
	Apply(ctx context.Context, orderItemID uint, option, choice string) (*customization.Step, error)
}

// Upseller decides which suggestion follows an add.
type Upseller interface {
	AfterAdd(ctx context.Context, categoryID uint, flags upsell.Flags) (upsell.Flags, error)
	Offer(ctx context.Context, flags upsell.Flags, cart *models.Order) (*upsell.Offer, error)
}

// IntentResolver classifies free text.
type IntentResolver interface {
	Resolve(ctx context.Context, text string, convo intent.Context) (*intent.Result, error)
}

// Settler collects payment for an order.
type Settler interface {
	Settle(ctx context.Context, method enums.PaymentMethod, req settlement.Request) (*settlement.Outcome, error)
}

// Deduper drops redelivered turns.
type Deduper interface {
	CheckAndMark(ctx context.Context, scope, id string) (bool, error)
}

// Deps wires the engine. Dedupe and Metrics are optional.
type Deps struct {
	Catalog    Catalog
	Orders     orders.Service
	Customizer Customizer
	Upsell     Upseller
	History    history.Service
	Intents    IntentResolver
	Settlement Settler
	Sessions   SessionStore
	Locker     Locker
	Dedupe     Deduper
	Metrics    *metrics.ConversationMetrics
	Logger     *logger.Logger
	LockWait   time.Duration
	Location   *time.Location
}

// Engine is the conversational ordering state machine.
type Engine struct {
	catalog    Catalog
	orders     orders.Service
	customizer Customizer
	upsell     Upseller
	history    history.Service
	intents    IntentResolver
	settlement Settler
	sessions   SessionStore
	locker     Locker
	dedupe     Deduper
	metrics    *metrics.ConversationMetrics
	logg       *logger.Logger
	lockWait   time.Duration
	loc        *time.Location
	now        func() time.Time
}

const (
	outcomeOK        = "ok"
	outcomeError     = "error"
	outcomePanic     = "panic"
	outcomeDuplicate = "duplicate"
	outcomeRejected  = "rejected"

	dedupeScope = "turn"
)

// NewEngine validates the dependencies and builds an engine.
func NewEngine(deps Deps) (*Engine, error) {
	switch {
	case deps.Catalog == nil:
		return nil, fmt.Errorf("catalog required")
	case deps.Orders == nil:
		return nil, fmt.Errorf("orders service required")
	case deps.Customizer == nil:
		return nil, fmt.Errorf("customizer required")
	case deps.Upsell == nil:
		return nil, fmt.Errorf("upsell pipeline required")
	case deps.History == nil:
		return nil, fmt.Errorf("history service required")
	case deps.Intents == nil:
		return nil, fmt.Errorf("intent resolver required")
	case deps.Settlement == nil:
		return nil, fmt.Errorf("settlement required")
	case deps.Sessions == nil:
		return nil, fmt.Errorf("session store required")
	case deps.Locker == nil:
		return nil, fmt.Errorf("locker required")
	}
	logg := deps.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	wait := deps.LockWait
	if wait <= 0 {
		wait = 10 * time.Second
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{
		catalog:    deps.Catalog,
		orders:     deps.Orders,
		customizer: deps.Customizer,
		upsell:     deps.Upsell,
		history:    deps.History,
		intents:    deps.Intents,
		settlement: deps.Settlement,
		sessions:   deps.Sessions,
		locker:     deps.Locker,
		dedupe:     deps.Dedupe,
		metrics:    deps.Metrics,
		logg:       logg,
		lockWait:   wait,
		loc:        loc,
		now:        time.Now,
	}, nil
}

// HandleTurn processes one turn and returns the replies. A non-nil error means
// the turn was rejected before processing; domain failures become messages.
func (e *Engine) HandleTurn(ctx context.Context, turn Turn) ([]Message, error) {
	started := e.now()
	turn.UserID = strings.TrimSpace(turn.UserID)
	if turn.UserID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx = e.logg.WithUserID(ctx, turn.UserID)
	if turn.ID != "" {
		ctx = e.logg.WithTurnID(ctx, turn.ID)
	}

	lockCtx, cancel := context.WithTimeout(ctx, e.lockWait)
	unlock, err := e.locker.Lock(lockCtx, turn.UserID)
	cancel()
	if err != nil {
		e.metrics.ObserveTurn(turn.Channel(), outcomeRejected, e.now().Sub(started))
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "another turn for this user is still running")
	}
	defer unlock()

	// Marked only once the lock is held, so a turn rejected above can be redelivered.
	if e.dedupe != nil && turn.ID != "" {
		seen, err := e.dedupe.CheckAndMark(ctx, dedupeScope, turn.UserID+":"+turn.ID)
		if err != nil {
			e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), "turn.dedupe_unavailable")
		} else if seen {
			e.logg.Info(ctx, "turn.duplicate_dropped")
			e.metrics.ObserveTurn(turn.Channel(), outcomeDuplicate, e.now().Sub(started))
			return nil, nil
		}
	}

	e.logg.Info(e.logg.WithFields(ctx, map[string]any{"has_action": turn.Action != ""}), "turn.start")
	msgs, state, outcome := e.process(ctx, turn)
	took := e.now().Sub(started)
	e.metrics.ObserveTurn(turn.Channel(), outcome, took)
	e.logg.Info(e.logg.WithFields(ctx, map[string]any{
		"state":       string(state),
		"outcome":     outcome,
		"duration_ms": took.Milliseconds(),
		"messages":    len(msgs),
	}), "turn.complete")
	return msgs, nil
}

// process runs the handler with panic recovery and persists the session on success.
func (e *Engine) process(ctx context.Context, turn Turn) (msgs []Message, state enums.ConversationState, outcome string) {
	defer func() {
		if r := recover(); r != nil {
			panicCtx := e.logg.WithField(ctx, "stack", string(debug.Stack()))
			e.logg.Error(panicCtx, "turn.panic", fmt.Errorf("panic: %v", r))
			msgs = failureMessages(pkgerrors.New(pkgerrors.CodeInternal, "panic"))
			outcome = outcomePanic
		}
	}()

	sess, err := e.sessions.Load(ctx, turn.UserID)
	if err != nil {
		return e.fail(ctx, err), "", outcomeError
	}
	if err := sess.Context.Validate(sess.State); err != nil {
		e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), "session.reset_invalid")
		sess.Reset()
	}
	if name := strings.TrimSpace(turn.DisplayName); name != "" {
		sess.DisplayName = name
	}

	t := &turnState{sess: sess}
	if strings.TrimSpace(turn.Action) != "" {
		msgs, err = e.dispatchToken(ctx, t, turn.Action)
	} else {
		msgs, err = e.handleText(ctx, t, turn.Text)
	}
	if err != nil {
		return e.fail(ctx, err), sess.State, outcomeError
	}

	if len(msgs) > 0 {
		sess.LastBotMessage = msgs[len(msgs)-1].Text
	}
	if err := sess.Context.Validate(sess.State); err != nil {
		e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), "session.reset_invalid")
		sess.Reset()
	}
	if err := e.sessions.Save(ctx, sess); err != nil {
		return e.fail(ctx, err), sess.State, outcomeError
	}
	return msgs, sess.State, outcomeOK
}

// turnState is the working copy a handler mutates.
type turnState struct {
	sess *Session
}

func (t *turnState) userID() string { return t.sess.UserID }

func (t *turnState) ctx() *SessionContext { return &t.sess.Context }

// moveTo changes state; an inconsistent context resets the session.
func (e *Engine) moveTo(ctx context.Context, t *turnState, state enums.ConversationState) {
	if err := t.sess.Transition(state); err != nil {
		e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), "session.reset_invalid")
	}
}

func (e *Engine) dispatchToken(ctx context.Context, t *turnState, token string) ([]Message, error) {
	a, err := ParseAction(token)
	if err != nil {
		return nil, err
	}
	return e.dispatch(ctx, t, a)
}

func (e *Engine) dispatch(ctx context.Context, t *turnState, a Action) ([]Message, error) {
	switch a := a.(type) {
	case ShowMenu:
		return e.showMenu(ctx, t, "")
	case BrowseCategory:
		return e.browseCategory(ctx, t, a.CategoryID)
	case AddItem:
		return e.addItem(ctx, t, a.MenuItemID, 1, "")
	case Customize:
		return e.customize(ctx, t, a)
	case SkipUpsell:
		return e.offerUpsell(ctx, t, upsell.Skip(a.Stage), nil)
	case AddNote:
		return e.askNote(ctx, t, a.OrderItemID)
	case ViewOrder:
		return e.viewOrder(ctx, t, "")
	case RemoveItem:
		return e.removeItem(ctx, t, a.OrderItemID)
	case ClearOrder:
		return e.clearOrder(ctx, t)
	case ContinueShopping:
		t.ctx().SetUpsellFlags(upsell.Flags{})
		return e.showMenu(ctx, t, "")
	case Checkout:
		return e.checkout(ctx, t)
	case ChooseDelivery:
		return e.chooseDelivery(ctx, t, a.Method)
	case ChoosePayment:
		return e.choosePayment(ctx, t, a.Method)
	case WalletDecision:
		return e.walletDecision(ctx, t, a.Confirm)
	case ConfirmOrder:
		return e.confirmOrder(ctx, t)
	case CancelOrder:
		return e.cancelOrder(ctx, t)
	case Reorder:
		return e.reorder(ctx, t, a.OrderID)
	case ShowRecommendations:
		return e.recommendations(ctx, t, "")
	case Restart:
		return e.restart(ctx, t)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("unhandled action %T", a))
	}
}

// fail logs err and converts it into the user-facing reply.
func (e *Engine) fail(ctx context.Context, err error) []Message {
	dumpCtx := e.logg.WithFields(ctx, pkgerrors.Dump(err).Fields())
	if pkgerrors.MetadataFor(pkgerrors.CodeOf(err)).Retryable {
		e.logg.Error(dumpCtx, "turn.failed", err)
	} else {
		e.logg.Warn(dumpCtx, "turn.rejected")
	}
	return failureMessages(err)
}

// failureMessages maps an error code to a single reply with a recovery button.
func failureMessages(err error) []Message {
	code := pkgerrors.CodeOf(err)
	msg := Message{Text: pkgerrors.MetadataFor(code).UserMessage}
	switch code {
	case pkgerrors.CodeExpired, pkgerrors.CodeStateConflict:
		msg.Buttons = [][]Button{row(button("Start a new order", Restart{}))}
	default:
		msg.Buttons = [][]Button{row(button("Show menu", ShowMenu{}))}
	}
	return []Message{msg}
}
