package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"famledger/internal/core"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestIssueAndParse(t *testing.T) {
	tokens := NewTokens(secret, "famledger")

	tok, err := tokens.Issue(core.Caller{UserID: "alice", Role: core.RoleAdmin}, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	caller, err := tokens.Parse(tok)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if caller.UserID != "alice" || caller.Role != core.RoleAdmin {
		t.Errorf("Parse() = %+v", caller)
	}

	tok, _ = tokens.Issue(core.Caller{UserID: "bob"}, 0)
	if caller, _ := tokens.Parse(tok); caller.Role != core.RoleMember {
		t.Errorf("default role = %q, want member", caller.Role)
	}

	if _, err := tokens.Issue(core.Caller{}, time.Hour); !errors.Is(err, core.ErrValidation) {
		t.Errorf("Issue() without user = %v", err)
	}
}

func TestParseRejects(t *testing.T) {
	tokens := NewTokens(secret, "famledger")
	now := time.Now()

	sign := func(method jwt.SigningMethod, key any, claims Claims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}
	valid := func() Claims {
		return Claims{
			UserID: "alice",
			Role:   core.RoleMember,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "famledger",
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
		}
	}

	expired := valid()
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))
	otherIssuer := valid()
	otherIssuer.Issuer = "someone-else"
	noUser := valid()
	noUser.UserID = ""
	badRole := valid()
	badRole.Role = "owner"
	noExpiry := valid()
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", sign(jwt.SigningMethodHS256, []byte("another-secret-another-secret!!"), valid())},
		{"none algorithm", sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid())},
		{"expired", sign(jwt.SigningMethodHS256, []byte(secret), expired)},
		{"other issuer", sign(jwt.SigningMethodHS256, []byte(secret), otherIssuer)},
		{"missing user", sign(jwt.SigningMethodHS256, []byte(secret), noUser)},
		{"unknown role", sign(jwt.SigningMethodHS256, []byte(secret), badRole)},
		{"no expiry", sign(jwt.SigningMethodHS256, []byte(secret), noExpiry)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tokens.Parse(tt.token); !errors.Is(err, ErrUnauthorized) {
				t.Errorf("Parse() error = %v, want ErrUnauthorized", err)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	tokens := NewTokens(secret, "famledger")
	var seen core.Caller
	h := tokens.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := CallerFrom(r.Context())
		if err != nil {
			t.Errorf("CallerFrom() error = %v", err)
		}
		seen = c
		w.WriteHeader(http.StatusNoContent)
	}))

	good, _ := tokens.Issue(core.Caller{UserID: "alice", Role: core.RoleMember}, time.Hour)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer " + good, http.StatusNoContent},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + good, http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized && !strings.Contains(rec.Body.String(), `"success":false`) {
				t.Errorf("body = %s", rec.Body.String())
			}
		})
	}

	if seen.UserID != "alice" {
		t.Errorf("handler saw caller %+v", seen)
	}
}

func TestCallerFromEmptyContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := CallerFrom(req.Context()); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("CallerFrom() error = %v", err)
	}
}
