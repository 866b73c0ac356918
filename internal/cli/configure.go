package cli

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nhle/chocosync/internal/credential"
	"github.com/nhle/chocosync/internal/model"
	configview "github.com/nhle/chocosync/internal/ui/config"
)

func newConfigureCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Edit settings and store the IMAP password in the keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := model.LoadConfig(opts.configPath)
			if err != nil {
				// A broken file is replaced by whatever the form produces.
				cfg = model.DefaultAppConfig()
			}

			creds, err := opts.openCredentials()
			if err != nil {
				return err
			}

			validate := func(ctx context.Context, c *model.AppConfig, password string) error {
				return checkConnection(ctx, c, creds, password)
			}
			save := func(c *model.AppConfig, password string) error {
				return saveSettings(opts.configPath, c, creds, password)
			}

			m := configview.New(cfg, validate, save)
			final, err := tea.NewProgram(&m).Run()
			if err != nil {
				return err
			}
			if fm, ok := final.(*configview.Model); ok && fm.Saved() {
				fmt.Fprintf(cmd.OutOrStdout(), "Settings written to %s\n", opts.configPath)
			}
			return nil
		},
	}
}

// saveSettings writes the config file and, when one was entered, the IMAP
// password.
func saveSettings(path string, cfg *model.AppConfig, creds *credential.Store, password string) error {
	if password != "" && cfg.Mailbox.Backend == model.MailboxIMAP {
		if err := creds.Set(credential.IMAPPasswordKey(cfg.Mailbox.Username), password); err != nil {
			return err
		}
	}
	return model.SaveConfig(path, cfg)
}
