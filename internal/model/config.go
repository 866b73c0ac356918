package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Mailbox backends.
const (
	MailboxIMAP  = "imap"
	MailboxGmail = "gmail"
)

// Calendar backends.
const (
	CalendarGoogle = "google"
	CalendarLocal  = "local"
)

// SubjectsConfig holds the subject phrases that select each workflow's mail.
type SubjectsConfig struct {
	Confirmation string `mapstructure:"confirmation" yaml:"confirmation"`
	Cancellation string `mapstructure:"cancellation" yaml:"cancellation"`
	Notice       string `mapstructure:"notice" yaml:"notice"`
}

// MailboxConfig selects and configures the mailbox backend.
type MailboxConfig struct {
	// Backend is "imap" or "gmail".
	Backend string `mapstructure:"backend" yaml:"backend"`

	IMAPHost string `mapstructure:"imap_host" yaml:"imap_host"`
	IMAPPort string `mapstructure:"imap_port" yaml:"imap_port"`
	Username string `mapstructure:"username" yaml:"username"`
	TLS      bool   `mapstructure:"tls" yaml:"tls"`

	// Folder is the IMAP mailbox searched for notifications.
	Folder string `mapstructure:"folder" yaml:"folder"`

	// GmailUser is the Gmail API user id, normally "me".
	GmailUser string `mapstructure:"gmail_user" yaml:"gmail_user"`
}

// CalendarConfig selects and configures the calendar backend.
type CalendarConfig struct {
	// Backend is "google" or "local".
	Backend string `mapstructure:"backend" yaml:"backend"`

	// CalendarID is the Google calendar id; "primary" is the default calendar.
	CalendarID string `mapstructure:"calendar_id" yaml:"calendar_id"`

	// LocalPath is the SQLite file used by the local backend.
	LocalPath string `mapstructure:"local_path" yaml:"local_path"`
}

// GoogleConfig points at the OAuth client secret downloaded from the
// Google Cloud console.
type GoogleConfig struct {
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`
}

// ExtractionConfig tunes the extractor and the cancellation lookup.
type ExtractionConfig struct {
	// Timezone is an IANA name or "Local".
	Timezone        string `mapstructure:"timezone" yaml:"timezone"`
	SessionMinutes  int    `mapstructure:"session_minutes" yaml:"session_minutes"`
	CancelMarginSec int    `mapstructure:"cancel_margin_sec" yaml:"cancel_margin_sec"`
}

// Location resolves Timezone, defaulting to the process local zone.
func (c ExtractionConfig) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", tz, err)
	}
	return loc, nil
}

// SessionLength is the assumed duration of a reservation whose notice
// carries no end time.
func (c ExtractionConfig) SessionLength() time.Duration {
	return time.Duration(c.SessionMinutes) * time.Minute
}

// CancelMargin is how far the calendar search window extends on either side
// of a cancelled reservation's start time.
func (c ExtractionConfig) CancelMargin() time.Duration {
	return time.Duration(c.CancelMarginSec) * time.Second
}

// LogConfig controls structured log output.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// WatchConfig controls scheduled runs.
type WatchConfig struct {
	// Schedule is a five-field cron expression.
	Schedule string `mapstructure:"schedule" yaml:"schedule"`

	// MetricsAddr, when set, serves Prometheus metrics at /metrics.
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Sender     string           `mapstructure:"sender" yaml:"sender"`
	Subjects   SubjectsConfig   `mapstructure:"subjects" yaml:"subjects"`
	Mailbox    MailboxConfig    `mapstructure:"mailbox" yaml:"mailbox"`
	Calendar   CalendarConfig   `mapstructure:"calendar" yaml:"calendar"`
	Google     GoogleConfig     `mapstructure:"google" yaml:"google"`
	Extraction ExtractionConfig `mapstructure:"extraction" yaml:"extraction"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Watch      WatchConfig      `mapstructure:"watch" yaml:"watch"`
}

// ConfigDir returns ~/.config/chocosync.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "chocosync")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/chocosync/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DefaultAppConfig returns the configuration used when no file exists.
func DefaultAppConfig() *AppConfig {
	dir := ConfigDir()
	return &AppConfig{
		Sender: "no-reply@sys.chocozap.jp",
		Subjects: SubjectsConfig{
			Confirmation: "【予約確定】",
			Cancellation: "キャンセル",
			Notice:       "【前日確認】",
		},
		Mailbox: MailboxConfig{
			Backend:   MailboxIMAP,
			IMAPPort:  "993",
			TLS:       true,
			Folder:    "INBOX",
			GmailUser: "me",
		},
		Calendar: CalendarConfig{
			Backend:    CalendarGoogle,
			CalendarID: "primary",
			LocalPath:  filepath.Join(dir, "calendar.db"),
		},
		Google: GoogleConfig{
			CredentialsFile: filepath.Join(dir, "client_secret.json"),
		},
		Extraction: ExtractionConfig{
			Timezone:        "Local",
			SessionMinutes:  50,
			CancelMarginSec: 60,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Watch: WatchConfig{
			Schedule: "*/15 * * * *",
		},
	}
}

// setDefaults mirrors DefaultAppConfig into viper so that partially written
// files and environment overrides resolve every key.
func setDefaults(v *viper.Viper) {
	d := DefaultAppConfig()
	v.SetDefault("sender", d.Sender)
	v.SetDefault("subjects.confirmation", d.Subjects.Confirmation)
	v.SetDefault("subjects.cancellation", d.Subjects.Cancellation)
	v.SetDefault("subjects.notice", d.Subjects.Notice)
	v.SetDefault("mailbox.backend", d.Mailbox.Backend)
	v.SetDefault("mailbox.imap_host", d.Mailbox.IMAPHost)
	v.SetDefault("mailbox.imap_port", d.Mailbox.IMAPPort)
	v.SetDefault("mailbox.username", d.Mailbox.Username)
	v.SetDefault("mailbox.tls", d.Mailbox.TLS)
	v.SetDefault("mailbox.folder", d.Mailbox.Folder)
	v.SetDefault("mailbox.gmail_user", d.Mailbox.GmailUser)
	v.SetDefault("calendar.backend", d.Calendar.Backend)
	v.SetDefault("calendar.calendar_id", d.Calendar.CalendarID)
	v.SetDefault("calendar.local_path", d.Calendar.LocalPath)
	v.SetDefault("google.credentials_file", d.Google.CredentialsFile)
	v.SetDefault("extraction.timezone", d.Extraction.Timezone)
	v.SetDefault("extraction.session_minutes", d.Extraction.SessionMinutes)
	v.SetDefault("extraction.cancel_margin_sec", d.Extraction.CancelMarginSec)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("watch.schedule", d.Watch.Schedule)
	v.SetDefault("watch.metrics_addr", d.Watch.MetricsAddr)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed CHOCOSYNC_ override file values
// (e.g. CHOCOSYNC_MAILBOX_USERNAME). A missing file yields defaults.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("chocosync")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		_, missing := err.(*os.PathError)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !missing && !notFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the settings the workflows cannot run without.
func (c *AppConfig) Validate() error {
	switch c.Mailbox.Backend {
	case MailboxIMAP, MailboxGmail:
	default:
		return fmt.Errorf("unknown mailbox backend %q", c.Mailbox.Backend)
	}
	switch c.Calendar.Backend {
	case CalendarGoogle, CalendarLocal:
	default:
		return fmt.Errorf("unknown calendar backend %q", c.Calendar.Backend)
	}
	if strings.TrimSpace(c.Sender) == "" {
		return fmt.Errorf("sender is required")
	}
	if c.Extraction.SessionMinutes <= 0 {
		return fmt.Errorf("extraction.session_minutes must be positive")
	}
	if c.Extraction.CancelMarginSec <= 0 {
		return fmt.Errorf("extraction.cancel_margin_sec must be positive")
	}
	if _, err := c.Extraction.Location(); err != nil {
		return err
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("sender", cfg.Sender)
	v.Set("subjects", cfg.Subjects)
	v.Set("mailbox", cfg.Mailbox)
	v.Set("calendar", cfg.Calendar)
	v.Set("google", cfg.Google)
	v.Set("extraction", cfg.Extraction)
	v.Set("log", cfg.Log)
	v.Set("watch", cfg.Watch)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
