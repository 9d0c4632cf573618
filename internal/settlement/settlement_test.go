package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/msourial/platefull/pkg/config"
	"github.com/msourial/platefull/pkg/enums"
	pkgerrors "github.com/msourial/platefull/pkg/errors"
)

const validWallet = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

var fastPolicy = RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

type flakySettler struct {
	failures int
	err      error
	calls    int
}

func (f *flakySettler) Settle(ctx context.Context, req Request) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", f.err
	}
	return "ref-42", nil
}

type countingMetrics struct {
	results map[string]int
}

func (c *countingMetrics) IncSettlement(method, result string) {
	if c.results == nil {
		c.results = map[string]int{}
	}
	c.results[method+"/"+result]++
}

func newService(t *testing.T, s Settler, m recorder) *Service {
	t.Helper()
	svc, err := NewService(map[enums.PaymentMethod]Settler{
		enums.PaymentMethodStablecoin: s,
		enums.PaymentMethodCash:       CashSettler{},
	}, fastPolicy, m, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestSettleRetriesTransientFailures(t *testing.T) {
	settler := &flakySettler{failures: 2, err: pkgerrors.New(pkgerrors.CodeDependency, "gateway timeout")}
	metrics := &countingMetrics{}
	out, err := newService(t, settler, metrics).Settle(context.Background(), enums.PaymentMethodStablecoin, Request{OrderID: 7, Amount: decimal.RequireFromString("12.50"), PayerRef: validWallet})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if out.Status != enums.PaymentStatusSettled || out.Reference != "ref-42" || out.Attempts != 3 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if metrics.results["stablecoin/retry"] != 2 || metrics.results["stablecoin/ok"] != 1 {
		t.Fatalf("unexpected metrics %+v", metrics.results)
	}
}

func TestSettleFallsBackToManualWhenExhausted(t *testing.T) {
	settler := &flakySettler{failures: 10, err: errors.New("connection refused")}
	metrics := &countingMetrics{}
	out, err := newService(t, settler, metrics).Settle(context.Background(), enums.PaymentMethodStablecoin, Request{OrderID: 7, PayerRef: validWallet})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !out.Manual || out.Status != enums.PaymentStatusManual {
		t.Fatalf("expected manual fallback, got %+v", out)
	}
	if settler.calls != fastPolicy.MaxAttempts {
		t.Fatalf("expected %d attempts, got %d", fastPolicy.MaxAttempts, settler.calls)
	}
	if metrics.results["stablecoin/fallback"] != 1 {
		t.Fatalf("fallback not recorded: %+v", metrics.results)
	}
}

func TestUnconfiguredProviderFallsBackToManual(t *testing.T) {
	out, err := newService(t, Unconfigured{Method: "stablecoin"}, nil).Settle(context.Background(), enums.PaymentMethodStablecoin, Request{OrderID: 3, PayerRef: validWallet})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !out.Manual || out.Attempts != fastPolicy.MaxAttempts {
		t.Fatalf("expected manual fallback after %d attempts, got %+v", fastPolicy.MaxAttempts, out)
	}
}

func TestSettleDoesNotRetryRejections(t *testing.T) {
	settler := &flakySettler{failures: 10, err: pkgerrors.New(pkgerrors.CodeValidation, "insufficient funds")}
	_, err := newService(t, settler, nil).Settle(context.Background(), enums.PaymentMethodStablecoin, Request{OrderID: 7})
	if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if settler.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", settler.calls)
	}
}

func TestSettleCash(t *testing.T) {
	out, err := newService(t, &flakySettler{}, nil).Settle(context.Background(), enums.PaymentMethodCash, Request{OrderID: 9})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if out.Reference != "cash-9" || out.Status != enums.PaymentStatusSettled {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestSettleUnknownMethod(t *testing.T) {
	svc, err := NewService(map[enums.PaymentMethod]Settler{enums.PaymentMethodCash: CashSettler{}}, fastPolicy, nil, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := svc.Settle(context.Background(), enums.PaymentMethodStablecoin, Request{}); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPolicyFromConfigDefaults(t *testing.T) {
	got := PolicyFromConfig(config.SettlementConfig{MaxAttempts: 5})
	want := RetryPolicy{MaxAttempts: 5, InitialBackoff: 200 * time.Millisecond, MaxBackoff: 2 * time.Second}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestHTTPSettler(t *testing.T) {
	var got settleBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"reference":"tx-abc"}`))
	}))
	defer srv.Close()

	s, err := NewHTTPSettler(srv.URL, time.Second, WithAPIKey("secret"))
	if err != nil {
		t.Fatalf("new settler: %v", err)
	}
	ref, err := s.Settle(context.Background(), Request{OrderID: 3, Amount: decimal.RequireFromString("19.9"), PayerRef: validWallet})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if ref != "tx-abc" || got.Amount != "19.90" || got.OrderID != 3 || got.Payer != validWallet {
		t.Fatalf("unexpected exchange ref=%q body=%+v", ref, got)
	}
}

func TestHTTPSettlerErrorCodes(t *testing.T) {
	cases := map[int]pkgerrors.Code{
		http.StatusBadGateway:          pkgerrors.CodeDependency,
		http.StatusTooManyRequests:     pkgerrors.CodeDependency,
		http.StatusUnprocessableEntity: pkgerrors.CodeValidation,
	}
	for status, want := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		s, err := NewHTTPSettler(srv.URL, time.Second)
		if err != nil {
			t.Fatalf("new settler: %v", err)
		}
		_, err = s.Settle(context.Background(), Request{OrderID: 1, PayerRef: validWallet})
		srv.Close()
		if !pkgerrors.Is(err, want) {
			t.Errorf("status %d: expected %s, got %v", status, want, err)
		}
	}
}

func TestHTTPSettlerRejectsBadWallet(t *testing.T) {
	s, err := NewHTTPSettler("http://127.0.0.1:1", time.Second)
	if err != nil {
		t.Fatalf("new settler: %v", err)
	}
	if _, err := s.Settle(context.Background(), Request{OrderID: 1, PayerRef: "not-a-wallet"}); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNewHTTPSettlerRequiresEndpoint(t *testing.T) {
	if _, err := NewHTTPSettler(" ", 0); err == nil {
		t.Fatal("expected error")
	}
}

func TestHTTPSettlerIdempotencyKeyFollowsRequest(t *testing.T) {
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		_, _ = w.Write([]byte(`{"reference":"tx-abc"}`))
	}))
	defer srv.Close()

	s, err := NewHTTPSettler(srv.URL, time.Second)
	if err != nil {
		t.Fatalf("new settler: %v", err)
	}
	other := "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
	reqs := []Request{
		{OrderID: 3, Amount: decimal.RequireFromString("19.90"), PayerRef: validWallet},
		{OrderID: 3, Amount: decimal.RequireFromString("19.90"), PayerRef: validWallet},
		{OrderID: 3, Amount: decimal.RequireFromString("19.90"), PayerRef: other},
		{OrderID: 3, Amount: decimal.RequireFromString("23.40"), PayerRef: validWallet},
	}
	for _, req := range reqs {
		if _, err := s.Settle(context.Background(), req); err != nil {
			t.Fatalf("settle: %v", err)
		}
	}
	if keys[0] != keys[1] {
		t.Fatalf("same request should reuse its key: %q vs %q", keys[0], keys[1])
	}
	if keys[2] == keys[0] || keys[3] == keys[0] || keys[2] == keys[3] {
		t.Fatalf("changed payer or amount must change the key: %v", keys)
	}
	if !strings.HasPrefix(keys[0], "order-3-") {
		t.Fatalf("unexpected key %q", keys[0])
	}
}
