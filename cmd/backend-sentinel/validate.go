package main

import (
	"fmt"
	"strings"

	"github.com/nholik/backend-sentinel/internal/config"
	"github.com/spf13/cobra"
)

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the registry and print services, fallbacks and warnings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			reg, err := config.LoadServices(cfg.RegistryFile)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			source := cfg.RegistryFile
			if source == "" {
				source = "environment"
			}
			fmt.Fprintf(out, "Registry (%s): %d services\n", source, reg.Len())
			for _, d := range reg.Descriptors() {
				fmt.Fprintf(out, "  %s [%s/%s] %s", d.Name, d.Category, d.Backend, d.Endpoint())
				if names := d.FallbackNames(); len(names) > 0 {
					fmt.Fprintf(out, " -> %s", strings.Join(names, ", "))
				}
				fmt.Fprintln(out)
			}

			warnings := reg.Validate()
			for _, warning := range warnings {
				fmt.Fprintf(out, "warning: %s\n", warning)
			}
			if len(warnings) == 0 {
				fmt.Fprintln(out, "Configuration is valid.")
			}
			return nil
		},
	}
}
