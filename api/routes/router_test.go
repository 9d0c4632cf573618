package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/msourial/platefull/internal/conversation"
	"github.com/msourial/platefull/internal/history"
	"github.com/msourial/platefull/pkg/config"
	pkgerrors "github.com/msourial/platefull/pkg/errors"
	"github.com/msourial/platefull/pkg/logger"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubTurnHandler struct {
	turns []conversation.Turn
	err   error
}

func (s *stubTurnHandler) HandleTurn(ctx context.Context, turn conversation.Turn) ([]conversation.Message, error) {
	s.turns = append(s.turns, turn)
	if s.err != nil {
		return nil, s.err
	}
	return []conversation.Message{{
		Text:    "What would you like?",
		Buttons: [][]conversation.Button{{{Label: "Menu", Action: "menu"}}},
	}}, nil
}

type stubHistory struct {
	userID string
	prefs  history.Preferences
}

func (s *stubHistory) AnalyzeOrderHistory(ctx context.Context, userID string) (*history.Profile, error) {
	s.userID = userID
	return &history.Profile{UserID: userID, CompletedOrders: 3}, nil
}

func (s *stubHistory) GenerateRecommendations(ctx context.Context, userID string, prefs history.Preferences) ([]history.Recommendation, error) {
	s.prefs = prefs
	return []history.Recommendation{
		{MenuItemID: 1, Name: "Falafel Wrap", Price: decimal.RequireFromString("8.50"), Source: history.SourceFavorite},
		{MenuItemID: 2, Name: "Hummus", Price: decimal.RequireFromString("3.50"), Source: history.SourcePopular},
	}, nil
}

func (s *stubHistory) CheckForReorderSuggestion(ctx context.Context, userID string) (*history.ReorderSuggestion, error) {
	return &history.ReorderSuggestion{ShouldSuggest: false}, nil
}

func newTestRouter(t *testing.T, db stubPinger, turns *stubTurnHandler, hist *stubHistory) http.Handler {
	t.Helper()
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	return NewRouter(cfg, logger.Nop(), db, nil, nil, turns, hist, metricsHandler)
}

func TestHealthEndpoints(t *testing.T) {
	router := newTestRouter(t, stubPinger{}, &stubTurnHandler{}, &stubHistory{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("live: expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ready: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"redis":"disabled"`) {
		t.Fatalf("expected redis reported as disabled, got %s", rec.Body.String())
	}
}

func TestReadyFailsWhenDatabaseDown(t *testing.T) {
	router := newTestRouter(t, stubPinger{err: errors.New("connection refused")}, &stubTurnHandler{}, &stubHistory{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestMetricsMounted(t *testing.T) {
	router := newTestRouter(t, stubPinger{}, &stubTurnHandler{}, &stubHistory{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "# metrics" {
		t.Fatalf("unexpected metrics response %d %q", rec.Code, rec.Body.String())
	}
}

func TestPostTurnReturnsReplies(t *testing.T) {
	turns := &stubTurnHandler{}
	router := newTestRouter(t, stubPinger{}, turns, &stubHistory{})

	body := `{"turn_id":"t-1","user_id":"42","display_name":"Sam","text":"  hi  "}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/turns", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(turns.turns) != 1 {
		t.Fatalf("expected one turn handled")
	}
	got := turns.turns[0]
	if got.UserID != "http:42" || got.ID != "t-1" || got.Text != "hi" {
		t.Fatalf("unexpected turn %+v", got)
	}

	var payload struct {
		Data struct {
			UserID   string                 `json:"user_id"`
			Messages []conversation.Message `json:"messages"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Data.UserID != "http:42" || len(payload.Data.Messages) != 1 {
		t.Fatalf("unexpected payload %+v", payload.Data)
	}
	if payload.Data.Messages[0].Buttons[0][0].Action != "menu" {
		t.Fatalf("expected button action to round trip")
	}
}

func TestPostTurnValidation(t *testing.T) {
	cases := map[string]string{
		"missing turn id":     `{"user_id":"42","text":"hi"}`,
		"prefixed user id":    `{"turn_id":"t","user_id":"telegram:1","text":"hi"}`,
		"no text or action":   `{"turn_id":"t","user_id":"42"}`,
		"unknown field":       `{"turn_id":"t","user_id":"42","text":"hi","chat":1}`,
		"malformed json body": `{"turn_id":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			turns := &stubTurnHandler{}
			router := newTestRouter(t, stubPinger{}, turns, &stubHistory{})
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/turns", strings.NewReader(body)))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if len(turns.turns) != 0 {
				t.Fatalf("invalid body reached the engine")
			}
		})
	}
}

func TestPostTurnRejectedMapsToConflict(t *testing.T) {
	turns := &stubTurnHandler{err: pkgerrors.New(pkgerrors.CodeConflict, "another message from this user is still being handled")}
	router := newTestRouter(t, stubPinger{}, turns, &stubHistory{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/turns", strings.NewReader(`{"turn_id":"t","user_id":"42","action":"menu"}`)))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestUserProfile(t *testing.T) {
	hist := &stubHistory{}
	router := newTestRouter(t, stubPinger{}, &stubTurnHandler{}, hist)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/users/telegram:7/profile?limit=1&dietary=vegan", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if hist.userID != "telegram:7" || hist.prefs.Dietary != "vegan" {
		t.Fatalf("unexpected lookup %q %+v", hist.userID, hist.prefs)
	}
	var payload struct {
		Data struct {
			Profile         history.Profile          `json:"profile"`
			Recommendations []history.Recommendation `json:"recommendations"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Data.Profile.CompletedOrders != 3 || len(payload.Data.Recommendations) != 1 {
		t.Fatalf("unexpected payload %+v", payload.Data)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/users/42/profile", nil))
	if rec.Code != http.StatusOK || hist.userID != "http:42" {
		t.Fatalf("bare ids should resolve to http users, got %d %q", rec.Code, hist.userID)
	}
}
