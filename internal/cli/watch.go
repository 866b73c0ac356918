package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/nhle/chocosync/internal/app"
	"github.com/nhle/chocosync/internal/logging"
	"github.com/nhle/chocosync/internal/metrics"
	"github.com/nhle/chocosync/internal/model"
	appsync "github.com/nhle/chocosync/internal/sync"
	"github.com/nhle/chocosync/internal/workflow"
)

func newWatchCmd(opts *options) *cobra.Command {
	var (
		headless bool
		logFile  string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the workflows on the configured schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			var out io.Writer = cmd.ErrOrStderr()
			if !headless {
				f, err := openLogFile(logFile)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			logger := opts.logger(cfg, out)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			m := metrics.New(reg)

			if cfg.Watch.MetricsAddr != "" {
				stop := serveMetrics(cfg.Watch.MetricsAddr, reg, logger)
				defer stop()
			}

			creds, err := opts.openCredentials()
			if err != nil {
				return err
			}
			b, err := openBackends(ctx, cfg, creds, logger, m, false)
			if err != nil {
				return err
			}
			defer func() {
				if err := b.Close(); err != nil {
					logger.Warn("closing backends failed", "error", err)
				}
			}()

			p, err := appsync.New(workflow.NewBatch(cfg, b.deps), cfg.Watch.Schedule, logger)
			if err != nil {
				return err
			}

			if headless {
				return watchHeadless(ctx, p, logger)
			}

			prog := tea.NewProgram(app.New(p), tea.WithAltScreen(), tea.WithContext(ctx))
			_, err = prog.Run()
			p.Stop()
			if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&headless, "headless", false, "log to stderr instead of showing the dashboard")
	cmd.Flags().StringVar(&logFile, "log-file", filepath.Join(model.ConfigDir(), "chocosync.log"), "log file used while the dashboard is shown")
	return cmd
}

// watchHeadless logs each run until ctx is cancelled.
func watchHeadless(ctx context.Context, p *appsync.Poller, logger *logging.Logger) error {
	p.Start()
	defer p.Stop()

	logger.Info("watching", "schedule", p.Status().Schedule)
	for {
		select {
		case <-ctx.Done():
			logger.Info("stopping")
			return nil
		case res := <-p.Results():
			if res.AuthError != nil {
				logger.Error(res.AuthError.Message)
			}
			st := p.Status()
			logger.Info("next run", "at", st.NextRun.Format(time.RFC3339))
		}
	}
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}

// serveMetrics exposes reg at /metrics and returns a function that shuts the
// server down.
func serveMetrics(addr string, reg *prometheus.Registry, logger *logging.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
