// Package auth verifies bearer tokens and carries the caller through the
// request context. Sessions are issued elsewhere; Issue exists for tooling
// and tests.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"

	"famledger/internal/core"
)

type ctxKey string

const callerKey ctxKey = "caller"

var ErrUnauthorized = errors.New("unauthorized")

// Claims is the token payload: the ledger user id and role.
type Claims struct {
	UserID string    `json:"user_id"`
	Role   core.Role `json:"role"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 tokens with a shared secret.
type Tokens struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewTokens(secret, issuer string) *Tokens {
	return &Tokens{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Issue signs a token for caller valid for ttl (default 24h).
func (t *Tokens) Issue(caller core.Caller, ttl time.Duration) (string, error) {
	if caller.UserID == "" {
		return "", fmt.Errorf("%w: user id required", core.ErrValidation)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	role := caller.Role
	if role == "" {
		role = core.RoleMember
	}
	now := t.now()
	claims := &Claims{
		UserID: caller.UserID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   caller.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse verifies tokenStr and returns the caller it names.
func (t *Tokens) Parse(tokenStr string) (core.Caller, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return t.secret, nil
	}, opts...)
	if err != nil {
		return core.Caller{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return core.Caller{}, fmt.Errorf("%w: %v", ErrUnauthorized, jwt.ErrTokenInvalidClaims)
	}
	if claims.UserID == "" {
		return core.Caller{}, fmt.Errorf("%w: user_id missing", ErrUnauthorized)
	}
	switch claims.Role {
	case core.RoleAdmin, core.RoleMember:
	case "":
		claims.Role = core.RoleMember
	default:
		return core.Caller{}, fmt.Errorf("%w: unknown role %q", ErrUnauthorized, claims.Role)
	}
	return core.Caller{UserID: claims.UserID, Role: claims.Role}, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// caller in the request context.
func (t *Tokens) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if h == "" || !strings.HasPrefix(h, "Bearer ") {
			writeUnauthorized(w, "missing auth token")
			return
		}

		caller, err := t.Parse(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			slog.DebugContext(r.Context(), "Rejected bearer token", "error", err, "path", r.URL.Path)
			writeUnauthorized(w, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="famledger"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   msg,
		"kind":    "unauthorized",
	})
}

func WithCaller(ctx context.Context, c core.Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

// CallerFrom returns the authenticated caller stored by Middleware.
func CallerFrom(ctx context.Context) (core.Caller, error) {
	c, ok := ctx.Value(callerKey).(core.Caller)
	if !ok || c.UserID == "" {
		return core.Caller{}, ErrUnauthorized
	}
	return c, nil
}
