package cli

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nhle/chocosync/internal/googleauth"
)

func newAuthCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage account authorization",
	}
	cmd.AddCommand(newAuthGoogleCmd(opts))
	return cmd
}

func newAuthGoogleCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "google",
		Short: "Authorize Gmail and Google Calendar access",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			oc, err := googleauth.LoadConfig(cfg.Google.CredentialsFile)
			if err != nil {
				return err
			}
			creds, err := opts.openCredentials()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			state := uuid.NewString()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Open this URL in a browser and approve access:\n\n  %s\n\n", googleauth.AuthURL(oc, state))
			fmt.Fprint(out, "Paste the code (or the full redirect URL): ")

			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("reading authorization code: %w", err)
			}
			code, err := authCode(strings.TrimSpace(line), state)
			if err != nil {
				return err
			}

			if err := googleauth.Exchange(ctx, oc, creds, code); err != nil {
				return err
			}
			fmt.Fprintln(out, "Google account authorized.")
			return nil
		},
	}
}

// authCode accepts either a bare code or the redirect URL the browser landed
// on, in which case the state must match.
func authCode(input, state string) (string, error) {
	if input == "" {
		return "", fmt.Errorf("no authorization code entered")
	}
	if !strings.Contains(input, "://") {
		return input, nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("parsing redirect URL: %w", err)
	}
	q := u.Query()
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("authorization denied: %s", e)
	}
	if got := q.Get("state"); got != state {
		return "", fmt.Errorf("state mismatch in redirect URL")
	}
	code := q.Get("code")
	if code == "" {
		return "", fmt.Errorf("redirect URL has no code")
	}
	return code, nil
}
