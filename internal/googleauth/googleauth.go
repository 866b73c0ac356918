// Package googleauth builds OAuth clients for the Gmail and Calendar APIs
// from a client secret file and a token kept in the keyring.
package googleauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"

	"github.com/nhle/chocosync/internal/credential"
)

// Scopes covers reading and labelling mail and editing calendar events.
var Scopes = []string{
	gcal.CalendarEventsScope,
	gmail.GmailModifyScope,
}

// ErrNotAuthorized means no token has been stored yet.
var ErrNotAuthorized = errors.New("google account not authorized; run `chocosync auth google`")

// TokenStore persists the OAuth token between runs.
type TokenStore interface {
	Token() (*oauth2.Token, error)
	SetToken(tok *oauth2.Token) error
}

// LoadConfig reads an OAuth client secret file downloaded from the Google
// Cloud console.
func LoadConfig(credentialsFile string) (*oauth2.Config, error) {
	if credentialsFile == "" {
		return nil, errors.New("google.credentials_file is not set")
	}
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("reading google credentials: %w", err)
	}
	cfg, err := google.ConfigFromJSON(b, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parsing google credentials: %w", err)
	}
	return cfg, nil
}

// AuthURL returns the consent page URL. Offline access and forced consent
// make Google return a refresh token.
func AuthURL(cfg *oauth2.Config, state string) string {
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token and stores it.
func Exchange(ctx context.Context, cfg *oauth2.Config, store TokenStore, code string) error {
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchanging authorization code: %w", err)
	}
	if err := store.SetToken(tok); err != nil {
		return err
	}
	return nil
}

// Client returns an HTTP client authorized with the stored token. Refreshed
// tokens are written back to store.
func Client(ctx context.Context, cfg *oauth2.Config, store TokenStore) (*http.Client, error) {
	tok, err := store.Token()
	if errors.Is(err, credential.ErrNotFound) {
		return nil, ErrNotAuthorized
	}
	if err != nil {
		return nil, err
	}

	src := &persistingSource{
		src:   cfg.TokenSource(ctx, tok),
		store: store,
		last:  tok.AccessToken,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

// persistingSource saves every new access token it sees.
type persistingSource struct {
	src   oauth2.TokenSource
	store TokenStore

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken == p.last {
		return tok, nil
	}
	if err := p.store.SetToken(tok); err != nil {
		return nil, fmt.Errorf("saving refreshed token: %w", err)
	}
	p.last = tok.AccessToken
	return tok, nil
}
