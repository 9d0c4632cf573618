package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/msourial/platefull/pkg/errors"
)

type sampleBody struct {
	TurnID string `json:"turn_id" validate:"required,max=8"`
	Text   string `json:"text" validate:"required_without=Action"`
	Action string `json:"action"`
}

func TestDecodeJSONBodyReportsFieldsByJSONName(t *testing.T) {
	req := httptest.NewRequest("POST", "/v1/turns", strings.NewReader(`{"turn_id":"123456789"}`))
	var body sampleBody
	err := DecodeJSONBody(req, &body)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("expected field details, got %#v", typed.Details())
	}
	if details["turn_id"] != "must be at most 8" {
		t.Fatalf("unexpected turn_id message %q", details["turn_id"])
	}
	if details["text"] != "is required when Action is empty" {
		t.Fatalf("unexpected text message %q", details["text"])
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest("POST", "/v1/turns", strings.NewReader(`{"turn_id":"1","text":"hi","extra":true}`))
	var body sampleBody
	if err := DecodeJSONBody(req, &body); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseQueryIntBounds(t *testing.T) {
	req := httptest.NewRequest("GET", "/v1/users/telegram:1/profile?limit=50", nil)
	if _, err := ParseQueryInt(req, "limit", 4, 1, 10); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected out of range error, got %v", err)
	}
	req = httptest.NewRequest("GET", "/v1/users/telegram:1/profile", nil)
	got, err := ParseQueryInt(req, "limit", 4, 1, 10)
	if err != nil || got != 4 {
		t.Fatalf("expected default 4, got %d, %v", got, err)
	}
}

func TestSanitizeStringTrimsAndCaps(t *testing.T) {
	if got := SanitizeString("  vegetarian please  ", 10); got != "vegetarian" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestDecodeJSONBodyRejectsOversizedAndTrailingData(t *testing.T) {
	big := `{"turn_id":"1","text":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	var body sampleBody
	err := DecodeJSONBody(httptest.NewRequest("POST", "/v1/turns", strings.NewReader(big)), &body)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Message() != "request body too large" {
		t.Fatalf("expected size error, got %v", err)
	}

	twice := `{"turn_id":"1","text":"hi"}{"turn_id":"2","text":"hi"}`
	err = DecodeJSONBody(httptest.NewRequest("POST", "/v1/turns", strings.NewReader(twice)), &body)
	if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected trailing data to be rejected, got %v", err)
	}
}
