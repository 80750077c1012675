// Command leasedash-oauth-init authorizes read-only access to the
// spreadsheet with a Google user account and saves the resulting token to
// GOOGLE_OAUTH_TOKEN_FILE, for setups where no service account is available.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/oauth2"

	"leasedash/internal/cli"
	applog "leasedash/internal/log"
	gsheet "leasedash/internal/sheets/google"
)

const authTimeout = 5 * time.Minute

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLoggerTo(os.Stderr, os.Getenv("LOG_LEVEL"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("Authorization failed", applog.FieldError, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *applog.Logger) error {
	clientJSON, err := gsheet.ReadClientJSON(
		[]byte(strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_JSON"))),
		strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_FILE")))
	if err != nil {
		return err
	}
	cfg, err := gsheet.OAuthConfig(clientJSON)
	if err != nil {
		return err
	}

	// The redirect URI must be listed on the OAuth client.
	port := envOr("OAUTH_REDIRECT_PORT", "8085")
	cfg.RedirectURL = "http://localhost:" + port + "/callback"
	outFile := envOr("GOOGLE_OAUTH_TOKEN_FILE", "token.json")

	state, err := newState()
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", "localhost:"+port)
	if err != nil {
		return fmt.Errorf("listen for callback: %w", err)
	}
	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.Handle("GET /callback", callbackHandler(state, results))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	fmt.Fprintf(os.Stdout, "Open this URL to authorize read-only access:\n%s\n",
		cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce))
	logger.Info("Waiting for authorization", "redirect_url", cfg.RedirectURL, "timeout", authTimeout)

	var res callbackResult
	select {
	case res = <-results:
	case <-time.After(authTimeout):
		return errors.New("authorization timed out")
	case <-ctx.Done():
		return ctx.Err()
	}
	if res.err != nil {
		return res.err
	}

	tok, err := cfg.Exchange(ctx, res.code)
	if err != nil {
		return fmt.Errorf("token exchange: %w", err)
	}
	if tok.RefreshToken == "" {
		logger.Warn("Token has no refresh token; access stops when it expires", "expiry", tok.Expiry)
	}
	if err := gsheet.SaveToken(outFile, tok); err != nil {
		return err
	}
	logger.Info("Token saved", "path", outFile)
	fmt.Fprintf(os.Stdout, "Saved token to %s. Set GOOGLE_OAUTH_TOKEN_FILE=%s for the sheets backend.\n", outFile, outFile)
	return nil
}

type callbackResult struct {
	code string
	err  error
}

// callbackHandler reports the first authorization response on results.
func callbackHandler(state string, results chan<- callbackResult) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res callbackResult
		switch {
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		case q.Get("error") != "":
			res.err = fmt.Errorf("authorization denied: %s", q.Get("error"))
			http.Error(w, "OAuth error: "+q.Get("error"), http.StatusBadRequest)
		case q.Get("code") == "":
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		default:
			res.code = q.Get("code")
			fmt.Fprintln(w, "You may close this window and return to the terminal.")
		}
		select {
		case results <- res:
		default:
		}
	})
}

func newState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
