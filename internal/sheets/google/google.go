package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	ports "leasedash/internal/sheets"

	"golang.org/x/oauth2"
	googleauth "golang.org/x/oauth2/google"
	gdrive "google.golang.org/api/drive/v3"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Scopes requested for either credential kind. The dashboard never writes.
var Scopes = []string{
	gsheet.SpreadsheetsReadonlyScope,
	gdrive.DriveReadonlyScope,
}

// Config selects the spreadsheet and the credentials used to read it: a
// service account, or a user token saved by leasedash-oauth-init when
// OAuthTokenFile is set.
type Config struct {
	// SpreadsheetID accepts either a bare ID or a full spreadsheet URL.
	SpreadsheetID   string
	CredentialsJSON []byte
	CredentialsFile string

	OAuthClientJSON []byte
	OAuthClientFile string
	OAuthTokenFile  string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
}

// Ensure interface conformance
var (
	_ ports.TableFetcher = (*Client)(nil)
	_ ports.Pinger       = (*Client)(nil)
)

// New creates a client for cfg.SpreadsheetID.
func New(ctx context.Context, cfg Config) (*Client, error) {
	id, err := ParseSpreadsheetID(cfg.SpreadsheetID)
	if err != nil {
		return nil, err
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newClient(svc, id), nil
}

func newClient(svc *gsheet.Service, spreadsheetID string) *Client {
	return &Client{svc: svc, spreadsheetID: spreadsheetID}
}

// newSheetsService builds the service on top of a pooled HTTP client that
// carries the token source.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	// oauth2 picks the base transport from the context.
	base := context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())

	var (
		ts  oauth2.TokenSource
		err error
	)
	if cfg.usesOAuth() {
		slog.InfoContext(ctx, "Using saved OAuth user token", "path", cfg.OAuthTokenFile)
		ts, err = oauthTokenSource(base, cfg)
	} else {
		ts, err = serviceAccountTokenSource(ctx, cfg)
	}
	if err != nil {
		return nil, err
	}

	service, err := gsheet.NewService(ctx, goption.WithHTTPClient(oauth2.NewClient(base, ts)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created", "scopes", strings.Join(Scopes, " "))
	return service, nil
}

func serviceAccountTokenSource(ctx context.Context, cfg Config) (oauth2.TokenSource, error) {
	credentialsJSON := cfg.CredentialsJSON
	switch {
	case len(credentialsJSON) > 0:
		slog.InfoContext(ctx, "Using inline service account credentials", "json_length", len(credentialsJSON))
	case cfg.CredentialsFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", cfg.CredentialsFile)
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = data
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	creds, err := googleauth.CredentialsFromJSON(ctx, credentialsJSON, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}
	return creds.TokenSource, nil
}

// newHTTPClientWithPooling creates an HTTP client for the Sheets API with
// connection pooling and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   5,
		MaxConnsPerHost:       10,
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

// FetchTable reads every populated cell of the named worksheet. Values are
// returned as displayed in the sheet (FORMATTED_VALUE), row 0 being the header.
func (c *Client) FetchTable(ctx context.Context, name string) ([][]string, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := quoteSheetName(name)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("FORMATTED_VALUE").
		MajorDimension("ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return toGrid(resp.Values), nil
}

// Ping reads the spreadsheet metadata to confirm that it is reachable with
// the configured credentials.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.SheetTitles(ctx)
	return err
}

// SheetTitles lists the worksheet names of the spreadsheet in tab order.
func (c *Client) SheetTitles(ctx context.Context) ([]string, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("get spreadsheet %s: %w", c.spreadsheetID, err)
	}
	titles := make([]string, 0, len(ss.Sheets))
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			titles = append(titles, s.Properties.Title)
		}
	}
	return titles, nil
}
