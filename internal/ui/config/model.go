package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/robfig/cron/v3"

	"github.com/nhle/chocosync/internal/model"
	"github.com/nhle/chocosync/internal/theme"
)

// ConfigMode represents the current state of the configuration view.
type ConfigMode int

const (
	ModeForm           ConfigMode = iota // Editing settings
	ModeValidating                       // Testing connection
	ModeValidateResult                   // Show validation result
	ModeSaved                            // Settings written
)

// ValidateFunc tests the settings before they are saved.
type ValidateFunc func(ctx context.Context, cfg *model.AppConfig, password string) error

// SaveFunc persists the settings and the IMAP password.
type SaveFunc func(cfg *model.AppConfig, password string) error

// ValidateResultMsg carries the result of a connection validation attempt.
type ValidateResultMsg struct {
	Err error
}

// savedMsg is sent after the settings are persisted.
type savedMsg struct {
	err error
}

// validateTimeout bounds a connection test.
const validateTimeout = 30 * time.Second

// Model is the Bubble Tea model for the settings editor.
type Model struct {
	mode ConfigMode
	base *model.AppConfig
	form *huh.Form

	validate ValidateFunc
	save     SaveFunc

	// Form field values (huh binds to these)
	formMailbox   string
	formIMAPHost  string
	formIMAPPort  string
	formUsername  string
	formPassword  string
	formTLS       bool
	formFolder    string
	formGmailUser string

	formCalendar   string
	formCalendarID string
	formLocalPath  string
	formCredFile   string

	formTimezone string
	formSession  string
	formMargin   string
	formSchedule string
	formMetrics  string

	validError error
	statusMsg  string
	spinner    spinner.Model

	width, height int
}

// New creates a settings editor seeded from cfg.
func New(cfg *model.AppConfig, validate ValidateFunc, save SaveFunc) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		mode:     ModeForm,
		base:     cfg,
		validate: validate,
		save:     save,
		spinner:  sp,
		width:    80,
		height:   24,
	}
	m.loadFields(cfg)
	return m
}

// Init starts the form.
func (m *Model) Init() tea.Cmd {
	m.form = m.buildForm()
	return m.form.Init()
}

// Update handles messages and dispatches based on current mode.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case ValidateResultMsg:
		m.validError = msg.Err
		m.mode = ModeValidateResult
		return m, nil

	case savedMsg:
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("Error saving settings: %v", msg.err)
			m.mode = ModeValidateResult
			return m, nil
		}
		m.mode = ModeSaved
		return m, tea.Quit

	case spinner.TickMsg:
		if m.mode == ModeValidating {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.mode {
		case ModeValidateResult:
			return m.handleValidateResultKeys(msg)
		case ModeValidating:
			if msg.String() == "esc" {
				m.mode = ModeForm
				m.form = m.buildForm()
				return m, m.form.Init()
			}
			return m, nil
		}
	}

	return m.updateForm(msg)
}

func (m *Model) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.mode != ModeForm || m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.mode = ModeValidating
		m.statusMsg = ""
		return m, tea.Batch(m.spinner.Tick, m.runValidate())
	case huh.StateAborted:
		return m, tea.Quit
	}
	return m, cmd
}

// handleValidateResultKeys processes key events on the validation result screen.
func (m *Model) handleValidateResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "s":
		if m.validError != nil && msg.String() == "enter" {
			return m, nil
		}
		return m, m.runSave()
	case "r":
		m.mode = ModeValidating
		return m, tea.Batch(m.spinner.Tick, m.runValidate())
	case "esc", "e":
		m.mode = ModeForm
		m.form = m.buildForm()
		return m, m.form.Init()
	}
	return m, nil
}

// Config returns the settings as currently entered.
func (m *Model) Config() (*model.AppConfig, error) {
	cfg := *m.base

	cfg.Mailbox.Backend = m.formMailbox
	cfg.Mailbox.IMAPHost = strings.TrimSpace(m.formIMAPHost)
	cfg.Mailbox.IMAPPort = strings.TrimSpace(m.formIMAPPort)
	cfg.Mailbox.Username = strings.TrimSpace(m.formUsername)
	cfg.Mailbox.TLS = m.formTLS
	cfg.Mailbox.Folder = strings.TrimSpace(m.formFolder)
	cfg.Mailbox.GmailUser = strings.TrimSpace(m.formGmailUser)

	cfg.Calendar.Backend = m.formCalendar
	cfg.Calendar.CalendarID = strings.TrimSpace(m.formCalendarID)
	cfg.Calendar.LocalPath = strings.TrimSpace(m.formLocalPath)
	cfg.Google.CredentialsFile = strings.TrimSpace(m.formCredFile)

	cfg.Extraction.Timezone = strings.TrimSpace(m.formTimezone)
	session, err := strconv.Atoi(strings.TrimSpace(m.formSession))
	if err != nil {
		return nil, fmt.Errorf("session length: %w", err)
	}
	cfg.Extraction.SessionMinutes = session
	margin, err := strconv.Atoi(strings.TrimSpace(m.formMargin))
	if err != nil {
		return nil, fmt.Errorf("cancel margin: %w", err)
	}
	cfg.Extraction.CancelMarginSec = margin

	cfg.Watch.Schedule = strings.TrimSpace(m.formSchedule)
	cfg.Watch.MetricsAddr = strings.TrimSpace(m.formMetrics)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Saved reports whether the settings were written.
func (m *Model) Saved() bool {
	return m.mode == ModeSaved
}

// Password returns the IMAP password entered in the form.
func (m *Model) Password() string {
	return m.formPassword
}

func (m *Model) runValidate() tea.Cmd {
	cfg, err := m.Config()
	if err != nil {
		return func() tea.Msg { return ValidateResultMsg{Err: err} }
	}
	password := m.formPassword
	validate := m.validate
	return func() tea.Msg {
		if validate == nil {
			return ValidateResultMsg{}
		}
		ctx, cancel := context.WithTimeout(context.Background(), validateTimeout)
		defer cancel()
		return ValidateResultMsg{Err: validate(ctx, cfg, password)}
	}
}

func (m *Model) runSave() tea.Cmd {
	cfg, err := m.Config()
	if err != nil {
		return func() tea.Msg { return savedMsg{err: err} }
	}
	password := m.formPassword
	save := m.save
	return func() tea.Msg {
		if save == nil {
			return savedMsg{}
		}
		return savedMsg{err: save(cfg, password)}
	}
}

// View renders the current mode.
func (m *Model) View() string {
	style := lipgloss.NewStyle().Padding(1, 2).Width(m.width)

	switch m.mode {
	case ModeValidating:
		return style.Render(fmt.Sprintf(
			"%s Testing connection...\n\nPress esc to cancel.",
			m.spinner.View(),
		))

	case ModeValidateResult:
		var content string
		if m.validError != nil {
			content = theme.ErrorStyle.Render("Connection failed") + "\n\n" +
				m.validError.Error() + "\n\n" +
				theme.HelpStyle.Render("r retry | e edit | s save anyway")
		} else {
			content = lipgloss.NewStyle().Bold(true).Foreground(theme.ColorGreen).
				Render("Connection successful") + "\n\n" +
				theme.HelpStyle.Render("enter save | e edit")
		}
		if m.statusMsg != "" {
			content += "\n\n" + theme.ErrorStyle.Render(m.statusMsg)
		}
		return style.Render(content)

	case ModeSaved:
		return style.Render("Settings saved.") + "\n"
	}

	if m.form == nil {
		return ""
	}
	return style.Render(theme.HeaderStyle.Render("chocosync settings") + "\n\n" + m.form.View())
}

func (m *Model) loadFields(cfg *model.AppConfig) {
	m.formMailbox = cfg.Mailbox.Backend
	m.formIMAPHost = cfg.Mailbox.IMAPHost
	m.formIMAPPort = cfg.Mailbox.IMAPPort
	m.formUsername = cfg.Mailbox.Username
	m.formTLS = cfg.Mailbox.TLS
	m.formFolder = cfg.Mailbox.Folder
	m.formGmailUser = cfg.Mailbox.GmailUser

	m.formCalendar = cfg.Calendar.Backend
	m.formCalendarID = cfg.Calendar.CalendarID
	m.formLocalPath = cfg.Calendar.LocalPath
	m.formCredFile = cfg.Google.CredentialsFile

	m.formTimezone = cfg.Extraction.Timezone
	m.formSession = strconv.Itoa(cfg.Extraction.SessionMinutes)
	m.formMargin = strconv.Itoa(cfg.Extraction.CancelMarginSec)
	m.formSchedule = cfg.Watch.Schedule
	m.formMetrics = cfg.Watch.MetricsAddr
}

func (m *Model) usesGoogle() bool {
	return m.formMailbox == model.MailboxGmail || m.formCalendar == model.CalendarGoogle
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Mailbox").
				Description("Where chocoZAP notifications arrive").
				Options(
					huh.NewOption("IMAP - any mail server", model.MailboxIMAP),
					huh.NewOption("Gmail API", model.MailboxGmail),
				).
				Value(&m.formMailbox),
			huh.NewSelect[string]().
				Title("Calendar").
				Description("Where reservations are written").
				Options(
					huh.NewOption("Google Calendar", model.CalendarGoogle),
					huh.NewOption("Local SQLite calendar", model.CalendarLocal),
				).
				Value(&m.formCalendar),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("IMAP Host").
				Placeholder("imap.gmail.com").
				Value(&m.formIMAPHost).
				Validate(validateRequired("IMAP Host")),
			huh.NewInput().
				Title("IMAP Port").
				Placeholder("993").
				Value(&m.formIMAPPort).
				Validate(validatePort),
			huh.NewInput().
				Title("Username").
				Placeholder("user@example.com").
				Value(&m.formUsername).
				Validate(validateRequired("Username")),
			huh.NewInput().
				Title("Password").
				Description("Leave empty to keep the stored password").
				EchoMode(huh.EchoModePassword).
				Value(&m.formPassword),
			huh.NewInput().
				Title("Folder").
				Placeholder("INBOX").
				Value(&m.formFolder),
			huh.NewConfirm().
				Title("Use TLS").
				Affirmative("Yes").
				Negative("No").
				Value(&m.formTLS),
		).WithHideFunc(func() bool { return m.formMailbox != model.MailboxIMAP }),
		huh.NewGroup(
			huh.NewInput().
				Title("Client secret file").
				Description("OAuth client JSON downloaded from the Google Cloud console").
				Placeholder("~/.config/chocosync/client_secret.json").
				Value(&m.formCredFile).
				Validate(validateRequired("Client secret file")),
			huh.NewInput().
				Title("Gmail user").
				Placeholder("me").
				Value(&m.formGmailUser),
			huh.NewInput().
				Title("Calendar ID").
				Placeholder("primary").
				Value(&m.formCalendarID),
		).WithHideFunc(func() bool { return !m.usesGoogle() }),
		huh.NewGroup(
			huh.NewInput().
				Title("Local calendar file").
				Value(&m.formLocalPath).
				Validate(validateRequired("Local calendar file")),
		).WithHideFunc(func() bool { return m.formCalendar != model.CalendarLocal }),
		huh.NewGroup(
			huh.NewInput().
				Title("Timezone").
				Description("IANA name or Local").
				Placeholder("Asia/Tokyo").
				Value(&m.formTimezone).
				Validate(validateTimezone),
			huh.NewInput().
				Title("Session length (minutes)").
				Value(&m.formSession).
				Validate(validatePositive("Session length")),
			huh.NewInput().
				Title("Cancellation margin (seconds)").
				Value(&m.formMargin).
				Validate(validatePositive("Cancellation margin")),
			huh.NewInput().
				Title("Watch schedule").
				Description("Cron expression used by `chocosync watch`").
				Placeholder("*/15 * * * *").
				Value(&m.formSchedule).
				Validate(validateSchedule),
			huh.NewInput().
				Title("Metrics address").
				Description("Optional listen address for /metrics").
				Placeholder("127.0.0.1:9464").
				Value(&m.formMetrics),
		),
	).WithWidth(m.formWidth())
}

func (m *Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

// --- Validators ---

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validatePort(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("port is required")
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("port must be a number between 1 and 65535")
	}
	return nil
}

func validatePositive(fieldName string) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil || n <= 0 {
			return fmt.Errorf("%s must be a positive number", fieldName)
		}
		return nil
	}
}

func validateTimezone(s string) error {
	_, err := model.ExtractionConfig{Timezone: s}.Location()
	return err
}

func validateSchedule(s string) error {
	if _, err := cron.ParseStandard(strings.TrimSpace(s)); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}
	return nil
}
