package settlement

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"

	pkgerrors "github.com/msourial/platefull/pkg/errors"
)

const errorBodyReadLimit int64 = 1024

var errEndpointRequired = errors.New("settlement endpoint is required")

// HTTPSettler posts payments to an external settlement endpoint.
type HTTPSettler struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
}

// HTTPOption configures optional HTTPSettler behavior.
type HTTPOption func(*HTTPSettler)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(s *HTTPSettler) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// WithAPIKey sends the key as a bearer token.
func WithAPIKey(key string) HTTPOption {
	return func(s *HTTPSettler) {
		s.apiKey = strings.TrimSpace(key)
	}
}

// NewHTTPSettler builds a settler for the given endpoint.
func NewHTTPSettler(endpoint string, timeout time.Duration, opts ...HTTPOption) (*HTTPSettler, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errEndpointRequired
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := &HTTPSettler{endpoint: endpoint, httpClient: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

type settleBody struct {
	OrderID uint   `json:"order_id"`
	Amount  string `json:"amount"`
	Payer   string `json:"payer"`
}

// Settle implements Settler. 5xx and transport failures are CodeDependency
// (retried); other non-2xx answers are CodeValidation.
func (s *HTTPSettler) Settle(ctx context.Context, req Request) (string, error) {
	if err := ValidateWalletAddress(req.PayerRef); err != nil {
		return "", err
	}
	payload, err := json.Marshal(settleBody{OrderID: req.OrderID, Amount: req.Amount.StringFixed(2), Payer: req.PayerRef})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal settlement request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build settlement request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", idempotencyKey(req, payload))
	if s.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute settlement request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		cause := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "settlement provider unavailable")
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, cause, "settlement rejected")
	}

	var out struct {
		Reference string `json:"reference"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode settlement response")
	}
	if strings.TrimSpace(out.Reference) == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "settlement response missing reference")
	}
	return out.Reference, nil
}

// idempotencyKey is stable across retries of one request and changes when the
// payer or amount for the order changes.
func idempotencyKey(req Request, body []byte) string {
	sum := sha3.Sum256(body)
	return fmt.Sprintf("order-%d-%s", req.OrderID, hex.EncodeToString(sum[:8]))
}
