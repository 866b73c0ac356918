package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/chocosync/internal/calendar"
	"github.com/nhle/chocosync/internal/credential"
	"github.com/nhle/chocosync/internal/googleauth"
	"github.com/nhle/chocosync/internal/logging"
	"github.com/nhle/chocosync/internal/mailbox"
	"github.com/nhle/chocosync/internal/model"
)

func TestAuthCode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr string
	}{
		{name: "bare code", input: "4/abc", want: "4/abc"},
		{name: "redirect url", input: "http://localhost/?state=s1&code=4/xyz&scope=email", want: "4/xyz"},
		{name: "empty", input: "", wantErr: "no authorization code"},
		{name: "state mismatch", input: "http://localhost/?state=other&code=4/xyz", wantErr: "state mismatch"},
		{name: "denied", input: "http://localhost/?error=access_denied&state=s1", wantErr: "access_denied"},
		{name: "no code", input: "http://localhost/?state=s1", wantErr: "no code"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := authCode(tt.input, "s1")
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSaveSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	creds := credential.NewStore(keyring.NewArrayKeyring(nil))

	cfg := model.DefaultAppConfig()
	cfg.Mailbox.IMAPHost = "imap.example.com"
	cfg.Mailbox.Username = "me@example.com"

	require.NoError(t, saveSettings(path, cfg, creds, "secret"))

	got, err := creds.Get(credential.IMAPPasswordKey("me@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "secret", got)

	loaded, err := model.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "imap.example.com", loaded.Mailbox.IMAPHost)

	// An empty password keeps the stored one.
	require.NoError(t, saveSettings(path, cfg, creds, ""))
	got, err = creds.Get(credential.IMAPPasswordKey("me@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "secret", got)
}

func TestOpenBackendsIMAPAndLocal(t *testing.T) {
	creds := credential.NewStore(keyring.NewArrayKeyring(nil))
	require.NoError(t, creds.Set(credential.IMAPPasswordKey("me@example.com"), "secret"))

	cfg := model.DefaultAppConfig()
	cfg.Mailbox.IMAPHost = "imap.example.com"
	cfg.Mailbox.Username = "me@example.com"
	cfg.Calendar.Backend = model.CalendarLocal
	cfg.Calendar.LocalPath = filepath.Join(t.TempDir(), "calendar.db")
	cfg.Extraction.Timezone = "Asia/Tokyo"

	b, err := openBackends(context.Background(), cfg, creds, logging.Nop(), nil, true)
	require.NoError(t, err)

	assert.IsType(t, &mailbox.IMAPMailbox{}, b.deps.Mailbox)
	assert.IsType(t, &calendar.Local{}, b.deps.Calendar)
	assert.Equal(t, "Asia/Tokyo", b.deps.Extractor.Location.String())
	assert.Equal(t, cfg.Extraction.SessionLength(), b.deps.Extractor.SessionLength)
	assert.True(t, b.deps.DryRun)

	assert.NoError(t, b.Close())
}

func TestOpenBackendsMissingPassword(t *testing.T) {
	creds := credential.NewStore(keyring.NewArrayKeyring(nil))
	cfg := model.DefaultAppConfig()
	cfg.Mailbox.Username = "me@example.com"
	cfg.Calendar.Backend = model.CalendarLocal
	cfg.Calendar.LocalPath = filepath.Join(t.TempDir(), "calendar.db")

	_, err := openBackends(context.Background(), cfg, creds, logging.Nop(), nil, false)
	assert.ErrorIs(t, err, credential.ErrNotFound)
}

func TestOpenBackendsGoogleNeedsAuthorization(t *testing.T) {
	creds := credential.NewStore(keyring.NewArrayKeyring(nil))
	secret := filepath.Join(t.TempDir(), "client_secret.json")
	require.NoError(t, writeFile(secret, `{"installed":{"client_id":"id","client_secret":"s","auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token","redirect_uris":["http://localhost"]}}`))

	cfg := model.DefaultAppConfig()
	cfg.Mailbox.Backend = model.MailboxGmail
	cfg.Google.CredentialsFile = secret

	_, err := openBackends(context.Background(), cfg, creds, logging.Nop(), nil, false)
	assert.ErrorIs(t, err, googleauth.ErrNotAuthorized)
}

func TestVersionCmd(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "chocosync dev")
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
