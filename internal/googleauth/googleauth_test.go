package googleauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/nhle/chocosync/internal/credential"
)

func tokenServer(t *testing.T, access string) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"` + access + `","token_type":"Bearer","expires_in":3600,"refresh_token":"refresh-2"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func testConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.example.com/auth",
			TokenURL: tokenURL,
		},
		RedirectURL: "http://localhost",
		Scopes:      Scopes,
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client_secret.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"installed": {
			"client_id": "id.apps.googleusercontent.com",
			"client_secret": "secret",
			"auth_uri": "https://accounts.google.com/o/oauth2/auth",
			"token_uri": "https://oauth2.googleapis.com/token",
			"redirect_uris": ["http://localhost"]
		}
	}`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "id.apps.googleusercontent.com", cfg.ClientID)
	assert.Equal(t, Scopes, cfg.Scopes)
	assert.Equal(t, "http://localhost", cfg.RedirectURL)

	_, err = LoadConfig("")
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "reading google credentials")
}

func TestAuthURLRequestsOfflineAccess(t *testing.T) {
	u := AuthURL(testConfig("https://example.com/token"), "state-1")
	assert.Contains(t, u, "access_type=offline")
	assert.Contains(t, u, "prompt=consent")
	assert.Contains(t, u, "state=state-1")
}

func TestExchangeStoresToken(t *testing.T) {
	srv, _ := tokenServer(t, "access-1")
	store := credential.NewStore(keyring.NewArrayKeyring(nil))

	require.NoError(t, Exchange(context.Background(), testConfig(srv.URL), store, "code"))

	tok, err := store.Token()
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok.AccessToken)
	assert.Equal(t, "refresh-2", tok.RefreshToken)
}

func TestClientWithoutToken(t *testing.T) {
	store := credential.NewStore(keyring.NewArrayKeyring(nil))

	_, err := Client(context.Background(), testConfig("https://example.com/token"), store)
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestClientPersistsRefreshedToken(t *testing.T) {
	tokenSrv, calls := tokenServer(t, "fresh")
	store := credential.NewStore(keyring.NewArrayKeyring(nil))
	require.NoError(t, store.SetToken(&oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(-time.Hour),
	}))

	var gotAuth string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer api.Close()

	client, err := Client(context.Background(), testConfig(tokenSrv.URL), store)
	require.NoError(t, err)

	resp, err := client.Get(api.URL)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, "Bearer fresh", gotAuth)
	assert.Equal(t, 1, *calls)

	tok, err := store.Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)
	assert.Equal(t, "refresh-2", tok.RefreshToken)
}

func TestClientKeepsValidToken(t *testing.T) {
	tokenSrv, calls := tokenServer(t, "unused")
	store := credential.NewStore(keyring.NewArrayKeyring(nil))
	require.NoError(t, store.SetToken(&oauth2.Token{
		AccessToken: "valid",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	}))

	var gotAuth string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer api.Close()

	client, err := Client(context.Background(), testConfig(tokenSrv.URL), store)
	require.NoError(t, err)
	resp, err := client.Get(api.URL)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, "Bearer valid", gotAuth)
	assert.Zero(t, *calls)
}
