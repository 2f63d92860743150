package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	ports "famledger/internal/sheets"
)

var _ ports.RowAppender = (*Client)(nil)

const defaultRowCacheTTL = 5 * time.Minute

// Options configure the spreadsheet mirror. OAuth credentials come from
// cmd/oauth-init; without them a service account is used.
type Options struct {
	SpreadsheetID   string
	SheetName       string
	OAuthClientFile string
	OAuthTokenFile  string
	OAuthClientJSON string
	OAuthTokenJSON  string
}

// Client appends ledger rows to a yearly sheet ("2024 Ledger").
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
	now           func() time.Time

	// Row index of the last sheet written: event ids already present and
	// the number of used rows. Appends are serialized by mu.
	mu                 sync.Mutex
	cachedSheet        string
	cachedRowCount     int
	cachedIDs          map[string]int
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
}

func New(ctx context.Context, opts Options) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	sheetBase := strings.TrimSpace(opts.SheetName)
	if sheetBase == "" {
		sheetBase = "Ledger"
	}

	svc, err := newSheetsService(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return newClient(svc, spreadsheetID, sheetBase), nil
}

func newClient(svc *gsheet.Service, spreadsheetID, sheetBase string) *Client {
	return &Client{
		svc:                svc,
		spreadsheetID:      spreadsheetID,
		sheetBase:          sheetBase,
		now:                time.Now,
		cacheValidDuration: defaultRowCacheTTL,
	}
}

// newSheetsService prefers the OAuth token written by oauth-init and falls
// back to service account credentials from the environment.
func newSheetsService(ctx context.Context, opts Options) (*gsheet.Service, error) {
	hasClient := opts.OAuthClientJSON != "" || opts.OAuthClientFile != ""
	hasToken := opts.OAuthTokenJSON != "" || opts.OAuthTokenFile != ""

	if hasClient && hasToken {
		httpClient, err := oauthHTTPClient(ctx, opts)
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "Creating Google Sheets service with OAuth token")
		return gsheet.NewService(ctx, goption.WithHTTPClient(httpClient))
	}

	credentialsJSON, err := serviceAccountCredentials(ctx)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func oauthHTTPClient(ctx context.Context, opts Options) (*http.Client, error) {
	clientJSON, err := readCredential(opts.OAuthClientJSON, opts.OAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client: %w", err)
	}
	cfg, err := googleoauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}

	tokenJSON, err := readCredential(opts.OAuthTokenJSON, opts.OAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("oauth token: %w", err)
	}

	// The token source refreshes through the pooled client.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
	return cfg.Client(ctx, &tok), nil
}

func readCredential(inline, file string) ([]byte, error) {
	if inline != "" {
		return []byte(inline), nil
	}
	return os.ReadFile(file)
}

// serviceAccountCredentials reads GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS.
func serviceAccountCredentials(ctx context.Context) ([]byte, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		return []byte(serviceAccountJSON), nil
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing credentials (set OAuth client and token, or GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// newHTTPClientWithPooling creates an HTTP client tuned for the Sheets API
// with connection pooling and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// AppendRow writes row to the sheet for the year it was recorded in. A row
// whose event id is already in column A is not written again.
func (c *Client) AppendRow(ctx context.Context, row ports.LedgerRow) (string, error) {
	if row.EventID == "" {
		return "", errors.New("row has no event id")
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	sheet := c.sheetFor(row.OccurredAt)

	c.mu.Lock()
	defer c.mu.Unlock()

	ids, used, err := c.rowIndex(ctx, sheet)
	if err != nil {
		return "", err
	}
	if existing, ok := ids[row.EventID]; ok {
		slog.DebugContext(ctx, "Row already mirrored", "event_id", row.EventID, "row", existing)
		return rowRef(sheet, existing), nil
	}

	if used == 0 {
		if err := c.writeRow(ctx, sheet, 1, ports.Header); err != nil {
			c.invalidateLocked()
			return "", fmt.Errorf("write header: %w", err)
		}
		used = 1
	}

	next := used + 1
	if err := c.writeRow(ctx, sheet, next, row.Values()); err != nil {
		c.invalidateLocked()
		return "", err
	}

	ids[row.EventID] = next
	c.cachedRowCount = next
	c.cacheExpiresAt = c.now().Add(c.cacheValidDuration)

	return rowRef(sheet, next), nil
}

func (c *Client) writeRow(ctx context.Context, sheet string, n int, values []any) error {
	rng := fmt.Sprintf("%s!A%d:%s%d", sheet, n, columnLetter(len(values)), n)
	vr := &gsheet.ValueRange{Values: [][]any{values}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

// rowIndex returns the event id to row map and used row count of sheet,
// reading column A when the cached copy is stale or for another sheet.
// Callers hold mu.
func (c *Client) rowIndex(ctx context.Context, sheet string) (map[string]int, int, error) {
	if c.cachedSheet == sheet && c.now().Before(c.cacheExpiresAt) {
		return c.cachedIDs, c.cachedRowCount, nil
	}

	rng := fmt.Sprintf("%s!A:A", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", rng, err)
	}

	ids := indexColumn(resp.Values)
	c.cachedSheet = sheet
	c.cachedIDs = ids
	c.cachedRowCount = len(resp.Values)
	c.cacheExpiresAt = c.now().Add(c.cacheValidDuration)
	return ids, c.cachedRowCount, nil
}

// InvalidateRowCache forces the next append to re-read the sheet.
func (c *Client) InvalidateRowCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked()
}

func (c *Client) invalidateLocked() {
	c.cachedSheet = ""
	c.cachedIDs = nil
	c.cachedRowCount = 0
	c.cacheExpiresAt = time.Time{}
}

func (c *Client) sheetFor(t time.Time) string {
	if t.IsZero() {
		t = c.now()
	}
	return yearPrefixedName(c.sheetBase, t.UTC().Year())
}

// indexColumn maps the non-empty cells of a single column to their
// 1-based row numbers. The header cell is skipped.
func indexColumn(values [][]any) map[string]int {
	ids := make(map[string]int, len(values))
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		v := strings.TrimSpace(fmt.Sprint(row[0]))
		if v == "" || v == ports.Header[0] {
			continue
		}
		if _, seen := ids[v]; !seen {
			ids[v] = i + 1
		}
	}
	return ids
}

func rowRef(sheet string, n int) string {
	return fmt.Sprintf("%s!A%d", sheet, n)
}

// columnLetter returns the A1 column name for a 1-based index.
func columnLetter(n int) string {
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
