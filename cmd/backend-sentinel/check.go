package main

import (
	"errors"
	"fmt"

	"github.com/nholik/backend-sentinel/internal/config"
	"github.com/nholik/backend-sentinel/internal/logging"
	"github.com/nholik/backend-sentinel/internal/probe"
	"github.com/nholik/backend-sentinel/internal/report"
	"github.com/spf13/cobra"
)

func newCheckCmd(a *app) *cobra.Command {
	var (
		noFallbacks bool
		details     bool
		format      string
		require     string
		only        []string
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Probe every backend once and report the results",
		Long: "Probe every configured backend once, substituting fallbacks for failed primaries, " +
			"and exit with status 1 when a required category has no connected service.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "text" && format != "json" {
				return fmt.Errorf("unknown format %q: want text or json", format)
			}
			if noFallbacks && len(only) > 0 {
				return errors.New("--only cannot be combined with --no-fallbacks")
			}

			cfg, err := a.config()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("require") {
				if cfg.RequiredCategories, err = config.ParseCategories(require); err != nil {
					return fmt.Errorf("invalid --require: %w", err)
				}
			}

			logger := logging.NewConsole(cmd.ErrOrStderr(), cfg.LogLevel)
			mgr, err := a.newManager(logger, cfg, nil)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			var outcomes map[string]probe.Outcome
			if noFallbacks {
				outcomes = mgr.TestAll(ctx)
			} else {
				outcomes = mgr.TestWithFallbacks(ctx, only)
			}
			defer func() {
				if err := probe.CloseHandles(outcomes); err != nil {
					logger.Warn().Err(err).Msg("failed to close probe handles")
				}
			}()

			summary := mgr.Summary(ctx)
			out := cmd.OutOrStdout()
			if format == "json" {
				err = report.JSON(out, summary)
			} else {
				err = report.Text(out, summary, report.Options{Details: details, Required: cfg.RequiredCategories})
			}
			if err != nil {
				return err
			}

			if !mgr.IsReady(cfg.RequiredCategories) {
				return &exitError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noFallbacks, "no-fallbacks", false, "probe each service directly without substituting fallbacks")
	cmd.Flags().BoolVar(&details, "details", false, "show the endpoint of every connected service")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text|json")
	cmd.Flags().StringVar(&require, "require", "", "comma separated categories that must be connected (default: BS_REQUIRED_CATEGORIES)")
	cmd.Flags().StringSliceVar(&only, "only", nil, "check only these services")
	return cmd
}
