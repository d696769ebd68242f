// Package auth runs the Google OAuth2 authorization flow for the Sheets
// source and keeps the resulting token on disk.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"collection-sync/internal/infra/logx"
)

// SheetsReadonlyScope is the only scope the sync needs.
const SheetsReadonlyScope = "https://www.googleapis.com/auth/spreadsheets.readonly"

// ErrNoToken is returned when no token has been stored yet.
var ErrNoToken = errors.New("auth: no stored token, run the authorize command first")

// OAuthConfig holds the client registration of the installed app.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// NewGoogleProvider returns an oauth2.Config for read-only Sheets access.
func NewGoogleProvider(cfg OAuthConfig) *oauth2.Config {
	redirect := cfg.RedirectURL
	if redirect == "" {
		redirect = "http://127.0.0.1:8085/callback"
	}
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  redirect,
		Scopes:       []string{SheetsReadonlyScope},
		Endpoint:     google.Endpoint,
	}
}

// FileStore persists one token as JSON.
type FileStore struct {
	Path string
}

func (s FileStore) Load() (*oauth2.Token, error) {
	b, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	var t oauth2.Token
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", s.Path, err)
	}
	return &t, nil
}

func (s FileStore) Save(t *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.Path, b, 0o600)
}

// Prompt shows the consent URL to the user and returns what they pasted
// back: either the bare code or the full redirect URL.
type Prompt func(authURL string) (string, error)

// Authorize runs the authorization code flow with PKCE. ctx cancels the
// token exchange; the prompt itself is not interruptible.
func Authorize(ctx context.Context, cfg *oauth2.Config, prompt Prompt) (*oauth2.Token, error) {
	state, err := randomState()
	if err != nil {
		return nil, err
	}
	verifier := oauth2.GenerateVerifier()
	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))

	answer, err := prompt(authURL)
	if err != nil {
		return nil, fmt.Errorf("authorization prompt: %w", err)
	}
	code, gotState := parseAnswer(answer)
	if gotState != "" && gotState != state {
		return nil, errors.New("auth: state mismatch in redirect")
	}
	if code == "" {
		return nil, errors.New("auth: empty authorization code")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("oauth exchange: %w", err)
	}
	logx.Infow("auth: authorization completed", "expiry", tok.Expiry)
	return tok, nil
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// parseAnswer accepts a bare code or a redirect URL carrying code and state.
func parseAnswer(s string) (code, state string) {
	u, err := url.Parse(s)
	if err != nil || u.RawQuery == "" {
		return s, ""
	}
	q := u.Query()
	return q.Get("code"), q.Get("state")
}

// TokenSource loads the stored token and returns a source that refreshes it
// and writes refreshed tokens back to the store.
func TokenSource(ctx context.Context, cfg *oauth2.Config, store FileStore) (oauth2.TokenSource, error) {
	tok, err := store.Load()
	if err != nil {
		return nil, err
	}
	logx.RegisterSecret(tok.AccessToken)
	logx.RegisterSecret(tok.RefreshToken)
	return &savingSource{base: cfg.TokenSource(ctx, tok), store: store, last: tok.AccessToken}, nil
}

type savingSource struct {
	base  oauth2.TokenSource
	store FileStore

	mu   sync.Mutex
	last string
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	t, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.AccessToken != s.last {
		s.last = t.AccessToken
		logx.RegisterSecret(t.AccessToken)
		if err := s.store.Save(t); err != nil {
			logx.Warnw("auth: could not persist refreshed token", "path", s.store.Path, "err", err)
		}
	}
	return t, nil
}
