package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nhle/chocosync/internal/ui/report"
	"github.com/nhle/chocosync/internal/workflow"
)

func newRunCmd(opts *options) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the confirmation, cancellation and notice workflows once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger := opts.logger(cfg, cmd.ErrOrStderr())

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			creds, err := opts.openCredentials()
			if err != nil {
				return err
			}

			b, err := openBackends(ctx, cfg, creds, logger, nil, dryRun)
			if err != nil {
				return err
			}
			defer func() {
				if err := b.Close(); err != nil {
					logger.Warn("closing backends failed", "error", err)
				}
			}()

			rep := workflow.NewBatch(cfg, b.deps).Run(ctx)
			fmt.Fprint(cmd.OutOrStdout(), report.Render(rep))
			return rep.Err()
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "extract and log without changing the calendar or mailbox")
	return cmd
}
