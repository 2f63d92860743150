package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"famledger/internal/auth"
	"famledger/internal/core"
	"famledger/internal/ledger"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads a single JSON document from the request body into dst.
// Malformed bodies are invalid requests; field level validation errors keep
// their kind.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return core.InvalidRequestf("request body exceeds %d bytes", maxBodyBytes)
		}
		return core.InvalidRequestf("read body: %v", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return core.InvalidRequestf("request body is empty")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		if errors.Is(err, core.ErrValidation) {
			return err
		}
		return core.InvalidRequestf("malformed JSON body: %v", err)
	}
	return nil
}

// callerFrom returns the authenticated caller for the request.
func callerFrom(r *http.Request) (core.Caller, error) {
	return auth.CallerFrom(r.Context())
}

// pathID returns the {id} path segment.
func pathID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		return "", core.InvalidRequestf("missing id")
	}
	return id, nil
}

// ParseTransactionFilter reads startDate, endDate, category, user and account
// from the query string.
func ParseTransactionFilter(q url.Values) (ledger.TransactionFilter, error) {
	f := ledger.TransactionFilter{
		UserID:     strings.TrimSpace(q.Get("user")),
		AccountID:  strings.TrimSpace(q.Get("account")),
		CategoryID: strings.TrimSpace(q.Get("category")),
	}
	if v := strings.TrimSpace(q.Get("startDate")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return f, fmt.Errorf("startDate: %w", err)
		}
		f.From = d.Time
	}
	if v := strings.TrimSpace(q.Get("endDate")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return f, fmt.Errorf("endDate: %w", err)
		}
		f.To = d.Time
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return f, core.InvalidRequestf("endDate is before startDate")
	}
	return f, nil
}

// ParseDebtFilter reads user and includeInactive from the query string.
func ParseDebtFilter(q url.Values) (ledger.DebtFilter, error) {
	f := ledger.DebtFilter{UserID: strings.TrimSpace(q.Get("user"))}
	inactive, err := parseBoolQuery(q, "includeInactive")
	if err != nil {
		return f, err
	}
	f.IncludeInactive = inactive
	return f, nil
}

// parseBoolQuery reads an optional boolean query parameter.
func parseBoolQuery(q url.Values, key string) (bool, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, core.InvalidRequestf("%s must be a boolean", key)
	}
	return b, nil
}

// sanitizeInput removes control characters except tab and newlines, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

func sanitizePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := sanitizeInput(*s)
	return &v
}
