package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nholik/backend-sentinel/internal/config"
	"github.com/nholik/backend-sentinel/internal/coordinator"
	"github.com/nholik/backend-sentinel/internal/healthcheck"
	"github.com/nholik/backend-sentinel/internal/logging"
	"github.com/nholik/backend-sentinel/internal/metrics"
	"github.com/nholik/backend-sentinel/internal/notify"
	"github.com/nholik/backend-sentinel/internal/runner"
	"github.com/nholik/backend-sentinel/internal/server"
	"github.com/nholik/backend-sentinel/internal/state"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newWatchCmd(a *app) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Probe backends every poll interval and serve health and metrics",
		Long: "Run probe rounds with fallbacks every BS_POLL_INTERVAL, persist results, notify on " +
			"status transitions and serve /healthz, /readyz, /status and /metrics. SIGHUP reloads the registry.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}

			logger := logging.NewWithWriter(cmd.OutOrStdout(), cfg.LogLevel).With().
				Str("environment", cfg.Environment).
				Logger()
			logger.Info().Str("version", version).Msg("backend-sentinel starting")

			collector := metrics.New()
			mgr, err := a.newManager(logger, cfg, collector)
			if err != nil {
				return err
			}

			notifier, err := buildNotifier(logger, cfg)
			if err != nil {
				return err
			}

			tracker := healthcheck.NewTracker()
			opts := []runner.Option{
				runner.WithChecker(mgr),
				runner.WithEnvironment(cfg.Environment),
				runner.WithNotifier(notifier),
				runner.WithMetrics(collector),
				runner.WithTracker(tracker),
			}
			if cfg.StatePath != "" {
				opts = append(opts, runner.WithStateStore(state.NewFileStore(cfg.StatePath, logger), nil))
			}
			r := runner.New(logger, cfg.PollInterval, opts...)

			ctx := cmd.Context()
			if once {
				return r.RunOnce(ctx)
			}

			server.Start(ctx, logger, server.Options{
				HealthPort:   cfg.HealthPort,
				MetricsPort:  cfg.MetricsPort,
				PollInterval: cfg.PollInterval,
				Tracker:      tracker,
				Metrics:      collector,
				Summary:      mgr.Aggregator().Summarize,
			})

			coord := coordinator.New(logger)
			coord.Add("runner", r)
			coord.Add("reloader", coordinator.ReloadOn(logger, mgr, hangupTrigger(ctx)))
			return coord.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run a single round and exit")
	return cmd
}

// buildNotifier fans out to every configured target. Without targets it
// returns a noop notifier; dry run wraps whatever is configured.
func buildNotifier(logger zerolog.Logger, cfg config.Config) (notify.Notifier, error) {
	var targets []notify.Notifier
	if cfg.SlackWebhookURL != "" {
		targets = append(targets, notify.NewSlackNotifier(logger, cfg.SlackWebhookURL))
	}
	if cfg.WebhookURL != "" {
		webhook, err := notify.NewWebhookNotifier(logger, cfg.WebhookURL, cfg.WebhookTemplate)
		if err != nil {
			return nil, err
		}
		targets = append(targets, webhook)
	}

	var notifier notify.Notifier
	switch len(targets) {
	case 0:
		notifier = notify.NewNoop(logger, "no notification targets configured; notifications disabled")
	case 1:
		notifier = targets[0]
	default:
		notifier = notify.NewMultiNotifier(targets...)
	}

	if cfg.DryRun {
		return notify.NewDryRunNotifier(logger, notifier), nil
	}
	return notifier, nil
}

// hangupTrigger forwards SIGHUP until ctx is done. Signals arriving while a
// reload is pending are coalesced.
func hangupTrigger(ctx context.Context) <-chan struct{} {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP)

	trigger := make(chan struct{}, 1)
	go func() {
		defer signal.Stop(signals)
		for {
			select {
			case <-ctx.Done():
				return
			case <-signals:
				select {
				case trigger <- struct{}{}:
				default:
				}
			}
		}
	}()
	return trigger
}
