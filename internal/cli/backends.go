package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nhle/chocosync/internal/calendar"
	"github.com/nhle/chocosync/internal/credential"
	"github.com/nhle/chocosync/internal/extract"
	"github.com/nhle/chocosync/internal/googleauth"
	"github.com/nhle/chocosync/internal/logging"
	"github.com/nhle/chocosync/internal/mailbox"
	"github.com/nhle/chocosync/internal/metrics"
	"github.com/nhle/chocosync/internal/model"
	"github.com/nhle/chocosync/internal/workflow"
)

// backends holds the opened collaborators of a batch and how to release them.
type backends struct {
	deps    workflow.Deps
	closers []func() error
}

func (b *backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

// openBackends builds the mailbox, calendar and extractor named by cfg.
func openBackends(
	ctx context.Context,
	cfg *model.AppConfig,
	creds *credential.Store,
	logger *logging.Logger,
	m *metrics.Metrics,
	dryRun bool,
) (*backends, error) {
	loc, err := cfg.Extraction.Location()
	if err != nil {
		return nil, err
	}

	b := &backends{}
	b.deps = workflow.Deps{
		Extractor: &extract.Extractor{Location: loc, SessionLength: cfg.Extraction.SessionLength()},
		Logger:    logger,
		Metrics:   m,
		DryRun:    dryRun,
	}

	var google *http.Client
	if cfg.Mailbox.Backend == model.MailboxGmail || cfg.Calendar.Backend == model.CalendarGoogle {
		google, err = googleClient(ctx, cfg, creds)
		if err != nil {
			return nil, err
		}
	}

	b.deps.Mailbox, err = openMailbox(ctx, cfg, creds, google)
	if err != nil {
		return nil, err
	}

	switch cfg.Calendar.Backend {
	case model.CalendarGoogle:
		b.deps.Calendar, err = calendar.NewGoogle(ctx, google, cfg.Calendar.CalendarID, loc)
		if err != nil {
			return nil, err
		}
	case model.CalendarLocal:
		local, err := calendar.NewLocal(cfg.Calendar.LocalPath, loc)
		if err != nil {
			return nil, err
		}
		b.deps.Calendar = local
		b.closers = append(b.closers, local.Close)
	default:
		return nil, fmt.Errorf("unknown calendar backend %q", cfg.Calendar.Backend)
	}

	return b, nil
}

func openMailbox(
	ctx context.Context, cfg *model.AppConfig, creds *credential.Store, google *http.Client,
) (mailbox.Mailbox, error) {
	switch cfg.Mailbox.Backend {
	case model.MailboxIMAP:
		password, err := creds.Get(credential.IMAPPasswordKey(cfg.Mailbox.Username))
		if err != nil {
			return nil, fmt.Errorf("imap password: %w (run `chocosync configure`)", err)
		}
		return mailbox.NewIMAPMailbox(
			cfg.Mailbox.IMAPHost,
			cfg.Mailbox.IMAPPort,
			cfg.Mailbox.Username,
			password,
			cfg.Mailbox.TLS,
			cfg.Mailbox.Folder,
		), nil
	case model.MailboxGmail:
		return mailbox.NewGmailMailbox(ctx, google, cfg.Mailbox.GmailUser)
	default:
		return nil, fmt.Errorf("unknown mailbox backend %q", cfg.Mailbox.Backend)
	}
}

func googleClient(ctx context.Context, cfg *model.AppConfig, creds *credential.Store) (*http.Client, error) {
	oc, err := googleauth.LoadConfig(cfg.Google.CredentialsFile)
	if err != nil {
		return nil, err
	}
	return googleauth.Client(ctx, oc, creds)
}

// checkConnection logs in to the configured mailbox and, for Google, lists
// one Gmail thread and one day of events. password overrides the stored IMAP password when set.
func checkConnection(ctx context.Context, cfg *model.AppConfig, creds *credential.Store, password string) error {
	if cfg.Mailbox.Backend == model.MailboxIMAP {
		if password == "" {
			stored, err := creds.Get(credential.IMAPPasswordKey(cfg.Mailbox.Username))
			if err != nil {
				return err
			}
			password = stored
		}
		m := mailbox.NewIMAPMailbox(
			cfg.Mailbox.IMAPHost, cfg.Mailbox.IMAPPort, cfg.Mailbox.Username,
			password, cfg.Mailbox.TLS, cfg.Mailbox.Folder,
		)
		client, err := m.Connect(ctx)
		if err != nil {
			return err
		}
		_ = client.Logout().Wait()
	}

	if cfg.Mailbox.Backend != model.MailboxGmail && cfg.Calendar.Backend != model.CalendarGoogle {
		return nil
	}

	google, err := googleClient(ctx, cfg, creds)
	if err != nil {
		return err
	}
	if cfg.Mailbox.Backend == model.MailboxGmail {
		gm, err := mailbox.NewGmailMailbox(ctx, google, cfg.Mailbox.GmailUser)
		if err != nil {
			return err
		}
		if err := gm.Ping(ctx, mailbox.Query{From: cfg.Sender, UnreadOnly: true}); err != nil {
			return err
		}
	}
	if cfg.Calendar.Backend == model.CalendarGoogle {
		gc, err := calendar.NewGoogle(ctx, google, cfg.Calendar.CalendarID, nil)
		if err != nil {
			return err
		}
		now := time.Now()
		if _, err := gc.Events(ctx, now, now.Add(24*time.Hour), ""); err != nil {
			return err
		}
	}
	return nil
}
