package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeExpired, status: http.StatusGone, publicMsg: "order expired"},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
		if meta.UserMessage == "" {
			t.Fatalf("code %s missing user message", tt.code)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stdErrors.New("connection refused")
	err := Wrap(CodeDependency, cause, "load menu")
	if !stdErrors.Is(err, cause) {
		t.Fatalf("expected wrapped cause to be reachable")
	}
	if CodeOf(err) != CodeDependency {
		t.Fatalf("expected dependency code, got %s", CodeOf(err))
	}
	if Wrap(CodeValidation, nil, "bad").Unwrap() != nil {
		t.Fatalf("wrap of nil should not carry a cause")
	}
}

func TestIsWalksNestedCodes(t *testing.T) {
	inner := New(CodeNotFound, "order item not found")
	outer := Wrap(CodeDependency, fmt.Errorf("apply: %w", inner), "customize")

	if !Is(outer, CodeDependency) {
		t.Fatalf("expected outer code match")
	}
	if !Is(outer, CodeNotFound) {
		t.Fatalf("expected nested code match")
	}
	if Is(outer, CodeExpired) {
		t.Fatalf("unexpected expired match")
	}
	if CodeOf(stdErrors.New("plain")) != CodeInternal {
		t.Fatalf("plain errors should default to internal")
	}
}

func TestDumpCollectsChain(t *testing.T) {
	err := Wrap(CodeInternal, stdErrors.New("boom"), "turn failed")
	d := Dump(err)
	if d.Code != CodeInternal {
		t.Fatalf("expected internal code, got %s", d.Code)
	}
	if len(d.Chain) != 2 {
		t.Fatalf("expected chain of 2, got %d", len(d.Chain))
	}
}

func TestDumpCapturesDriverDetails(t *testing.T) {
	pgErr := fmt.Errorf("insert order: %w", &pgconn.PgError{Code: "23505", ConstraintName: "uq_orders_pending_user"})
	d := Dump(pgErr)
	if d.PGCode != "23505" || d.PGConstraint != "uq_orders_pending_user" {
		t.Fatalf("pg details missing: %+v", d)
	}
	if _, ok := d.Fields()["sqlite_code"]; ok {
		t.Fatalf("sqlite fields should be omitted for postgres errors")
	}

	liteErr := fmt.Errorf("insert order: %w", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique})
	fields := Dump(liteErr).Fields()
	if fields["sqlite_code"] != int(sqlite3.ErrConstraint) {
		t.Fatalf("sqlite code missing: %+v", fields)
	}
	if _, ok := fields["pg_code"]; ok {
		t.Fatalf("empty pg fields should be omitted")
	}
}
