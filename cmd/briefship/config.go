package main

import (
	"github.com/spf13/cobra"

	"github.com/gorewood/briefship/internal/config"
	"github.com/gorewood/briefship/internal/output"
)

// redacted replaces secrets in printed config.
const redacted = "<redacted>"

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
		Long: `Inspect the configuration briefship would deploy with: briefship.yaml
merged over the defaults, with BRIEFSHIP_* and AWS_* overrides applied.`,
	}
	cmd.AddCommand(newConfigShowCmd(), newConfigPathCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printer := newPrinter(cmd)
			cfg, err := loadConfig(cmd, false)
			if err != nil {
				return fail(printer, err)
			}
			shown := *cfg
			if shown.SentryDSN != "" {
				shown.SentryDSN = redacted
			}
			cfg = &shown

			if printer.IsJSON() {
				return printer.WriteJSON(map[string]any{
					"path":   cfg.Path,
					"config": cfg,
				})
			}
			data, err := cfg.Marshal()
			if err != nil {
				return fail(printer, output.NewSystemErrorWithCause(err.Error(), err))
			}
			if cfg.Path == "" {
				printer.Print("# no %s found; defaults and environment\n", config.FileName)
			} else {
				printer.Print("# %s\n", cfg.Path)
			}
			printer.Print("%s", data)
			return nil
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file and global config directory paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printer := newPrinter(cmd)
			path := configPath(cmd)
			dir := config.Dir()
			if printer.IsJSON() {
				return printer.WriteJSON(map[string]any{
					"config":     path,
					"config_dir": dir,
				})
			}
			printer.KeyValue("Project", path)
			printer.KeyValue("Global", dir)
			return nil
		},
	}
}
