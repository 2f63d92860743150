package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"famledger/internal/core"
)

func TestParseTransactionFilter(t *testing.T) {
	q := url.Values{
		"startDate": {"2024-01-01"},
		"endDate":   {"2024-01-31"},
		"category":  {" c1 "},
		"user":      {"alice"},
		"account":   {"a1"},
	}
	f, err := ParseTransactionFilter(q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.CategoryID != "c1" || f.UserID != "alice" || f.AccountID != "a1" {
		t.Fatalf("unexpected ids %+v", f)
	}
	if !f.From.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("from = %v", f.From)
	}
	if !f.To.Equal(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("to = %v", f.To)
	}
}

func TestParseTransactionFilterErrors(t *testing.T) {
	tests := []struct {
		name string
		q    url.Values
		kind error
	}{
		{"bad start", url.Values{"startDate": {"yesterday"}}, core.ErrValidation},
		{"bad end", url.Values{"endDate": {"2024-13-45"}}, core.ErrValidation},
		{"reversed range", url.Values{"startDate": {"2024-02-01"}, "endDate": {"2024-01-01"}}, core.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTransactionFilter(tt.q)
			if !errors.Is(err, tt.kind) {
				t.Fatalf("err = %v, want %v", err, tt.kind)
			}
		})
	}
}

func TestParseTransactionFilterEmpty(t *testing.T) {
	f, err := ParseTransactionFilter(url.Values{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.From.IsZero() || !f.To.IsZero() || f.UserID != "" {
		t.Fatalf("expected empty filter, got %+v", f)
	}
}

func TestParseDebtFilter(t *testing.T) {
	f, err := ParseDebtFilter(url.Values{"user": {"bob"}, "includeInactive": {"true"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.UserID != "bob" || !f.IncludeInactive {
		t.Fatalf("unexpected filter %+v", f)
	}

	if _, err := ParseDebtFilter(url.Values{"includeInactive": {"maybe"}}); !errors.Is(err, core.ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Amount core.Money `json:"amount"`
	}

	tests := []struct {
		name    string
		payload string
		kind    error
	}{
		{"empty", "", core.ErrInvalidRequest},
		{"whitespace", "   ", core.ErrInvalidRequest},
		{"malformed", `{"amount":`, core.ErrInvalidRequest},
		{"bad amount", `{"amount":"12,5x"}`, core.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.payload))
			var dst body
			if err := decodeJSON(rr, req, &dst); !errors.Is(err, tt.kind) {
				t.Fatalf("err = %v, want %v", err, tt.kind)
			}
		})
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":12.5}`))
	var dst body
	if err := decodeJSON(rr, req, &dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dst.Amount.Cents != 1250 {
		t.Fatalf("cents = %d", dst.Amount.Cents)
	}
}

func TestDecodeJSONTooLarge(t *testing.T) {
	payload := `{"title":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
	var dst map[string]any
	if err := decodeJSON(rr, req, &dst); !errors.Is(err, core.ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct{ in, want string }{
		{"  Groceries  ", "Groceries"},
		{"Line\x00Break\x07", "LineBreak"},
		{"tab\there", "tab\there"},
		{"multi\nline", "multi\nline"},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if sanitizePtr(nil) != nil {
		t.Fatalf("nil pointer should stay nil")
	}
	s := " x "
	if got := sanitizePtr(&s); *got != "x" {
		t.Fatalf("sanitizePtr = %q", *got)
	}
}
