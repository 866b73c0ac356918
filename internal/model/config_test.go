package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	want := DefaultAppConfig()
	assert.Equal(t, want.Sender, cfg.Sender)
	assert.Equal(t, want.Subjects, cfg.Subjects)
	assert.Equal(t, 50*time.Minute, cfg.Extraction.SessionLength())
	assert.Equal(t, time.Minute, cfg.Extraction.CancelMargin())
	assert.Equal(t, "*/15 * * * *", cfg.Watch.Schedule)
}

func TestLoadConfigPartialFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mailbox:
  backend: gmail
extraction:
  timezone: Asia/Tokyo
  session_minutes: 30
`), 0o600))
	t.Setenv("CHOCOSYNC_CALENDAR_BACKEND", "local")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, MailboxGmail, cfg.Mailbox.Backend)
	assert.Equal(t, CalendarLocal, cfg.Calendar.Backend)
	assert.Equal(t, 30*time.Minute, cfg.Extraction.SessionLength())
	assert.Equal(t, 60, cfg.Extraction.CancelMarginSec)
	assert.Equal(t, "【予約確定】", cfg.Subjects.Confirmation)

	loc, err := cfg.Extraction.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", loc.String())
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultAppConfig()
	cfg.Mailbox.IMAPHost = "imap.example.com"
	cfg.Mailbox.Username = "me@example.com"
	cfg.Calendar.CalendarID = "chocozap@group.calendar.google.com"
	cfg.Extraction.CancelMarginSec = 90
	cfg.Watch.MetricsAddr = "127.0.0.1:9464"

	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Mailbox, loaded.Mailbox)
	assert.Equal(t, cfg.Calendar, loaded.Calendar)
	assert.Equal(t, cfg.Extraction, loaded.Extraction)
	assert.Equal(t, cfg.Watch, loaded.Watch)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{name: "defaults", mutate: func(*AppConfig) {}},
		{name: "unknown mailbox", mutate: func(c *AppConfig) { c.Mailbox.Backend = "pop3" }, wantErr: "unknown mailbox backend"},
		{name: "unknown calendar", mutate: func(c *AppConfig) { c.Calendar.Backend = "ical" }, wantErr: "unknown calendar backend"},
		{name: "blank sender", mutate: func(c *AppConfig) { c.Sender = " " }, wantErr: "sender is required"},
		{name: "zero session", mutate: func(c *AppConfig) { c.Extraction.SessionMinutes = 0 }, wantErr: "session_minutes"},
		{name: "zero margin", mutate: func(c *AppConfig) { c.Extraction.CancelMarginSec = 0 }, wantErr: "cancel_margin_sec"},
		{name: "bad timezone", mutate: func(c *AppConfig) { c.Extraction.Timezone = "Nowhere/Place" }, wantErr: "loading timezone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultAppConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadConfigRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mailbox:\n  backend: pop3\n"), 0o600))

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "invalid config")
}
