package main

import (
	"fmt"

	"github.com/nholik/backend-sentinel/internal/backends"
	"github.com/nholik/backend-sentinel/internal/config"
	"github.com/nholik/backend-sentinel/internal/manager"
	"github.com/nholik/backend-sentinel/internal/metrics"
	"github.com/nholik/backend-sentinel/internal/probe"
	"github.com/nholik/backend-sentinel/internal/registry"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var version = "dev"

// exitError carries a process exit code without an error message.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// app holds the seams commands are built from.
type app struct {
	loadConfig func() (config.Config, error)
	probers    func(zerolog.Logger) map[registry.Backend]probe.Prober

	servicesFile string
	logLevel     string
}

func defaultApp() *app {
	return &app{
		loadConfig: config.Load,
		probers:    backends.Default,
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "backend-sentinel",
		Short:         "Connectivity checks and fallbacks for vector, graph, storage and cache backends",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&a.servicesFile, "services", "", "registry file (default: BS_REGISTRY_FILE, else backend environment variables)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (default: BS_LOG_LEVEL or info)")

	rootCmd.AddCommand(newCheckCmd(a))
	rootCmd.AddCommand(newWatchCmd(a))
	rootCmd.AddCommand(newValidateCmd(a))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "backend-sentinel version %s\n", version)
		},
	}
}

// config loads the environment configuration with flag overrides applied.
func (a *app) config() (config.Config, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return config.Config{}, err
	}
	if a.servicesFile != "" {
		cfg.RegistryFile = a.servicesFile
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	return cfg, nil
}

// newManager loads the registry and wires the dispatcher and manager.
// m may be nil.
func (a *app) newManager(logger zerolog.Logger, cfg config.Config, m *metrics.Metrics) (*manager.Manager, error) {
	reg, err := config.LoadServices(cfg.RegistryFile)
	if err != nil {
		return nil, err
	}
	for _, warning := range reg.Validate() {
		logger.Warn().Str("warning", warning).Msg("registry validation")
	}

	opts := []probe.Option{probe.WithProbers(a.probers(logger))}
	if m != nil {
		opts = append(opts, probe.WithObserver(m.ObserveProbe))
	}
	dispatcher := probe.NewDispatcher(logger, opts...)

	return manager.New(logger, reg, dispatcher,
		manager.WithLoader(config.RegistryLoader(cfg.RegistryFile)),
		manager.WithMaxConcurrency(cfg.MaxConcurrency),
		manager.WithRequired(cfg.RequiredCategories),
	), nil
}
