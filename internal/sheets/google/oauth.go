package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	googleauth "golang.org/x/oauth2/google"
)

// OAuthConfig loads an installed-app OAuth client (the JSON downloaded from
// the Cloud console) with the read-only scopes.
func OAuthConfig(clientJSON []byte) (*oauth2.Config, error) {
	cfg, err := googleauth.ConfigFromJSON(clientJSON, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse oauth client: %w", err)
	}
	return cfg, nil
}

// ReadClientJSON returns the inline client JSON, or the content of file.
func ReadClientJSON(inline []byte, file string) ([]byte, error) {
	if len(inline) > 0 {
		return inline, nil
	}
	if file == "" {
		return nil, errors.New("missing oauth client (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)")
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read oauth client file: %w", err)
	}
	return data, nil
}

// ReadToken loads a token saved by SaveToken.
func ReadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse oauth token %s: %w", path, err)
	}
	if tok.RefreshToken == "" && tok.AccessToken == "" {
		return nil, fmt.Errorf("oauth token %s holds no credentials", path)
	}
	return &tok, nil
}

// SaveToken writes tok to path, readable by the owner only.
func SaveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		_ = f.Close()
		return fmt.Errorf("write token: %w", err)
	}
	return f.Close()
}

// usesOAuth reports whether cfg selects a user token over a service account.
func (cfg Config) usesOAuth() bool {
	return strings.TrimSpace(cfg.OAuthTokenFile) != ""
}

// oauthTokenSource refreshes the saved user token as needed.
func oauthTokenSource(ctx context.Context, cfg Config) (oauth2.TokenSource, error) {
	clientJSON, err := ReadClientJSON(cfg.OAuthClientJSON, cfg.OAuthClientFile)
	if err != nil {
		return nil, err
	}
	oc, err := OAuthConfig(clientJSON)
	if err != nil {
		return nil, err
	}
	tok, err := ReadToken(cfg.OAuthTokenFile)
	if err != nil {
		return nil, err
	}
	return oc.TokenSource(ctx, tok), nil
}
