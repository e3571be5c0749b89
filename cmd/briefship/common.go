package main

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/gorewood/briefship/internal/config"
	"github.com/gorewood/briefship/internal/git"
	"github.com/gorewood/briefship/internal/logging"
	"github.com/gorewood/briefship/internal/output"
	"github.com/gorewood/briefship/internal/ship"
)

// cloudFactory builds the AWS client. Tests replace it with a fake.
var cloudFactory ship.CloudFactory = ship.NewAWSClient

// isJSONMode reads the --json persistent flag from the command hierarchy.
func isJSONMode(cmd *cobra.Command) bool {
	return boolFlag(cmd, "json")
}

func boolFlag(cmd *cobra.Command, name string) bool {
	flag := cmd.Flags().Lookup(name)
	if flag == nil {
		flag = cmd.Root().PersistentFlags().Lookup(name)
	}
	return flag != nil && flag.Value.String() == "true"
}

func stringFlag(cmd *cobra.Command, name string) string {
	flag := cmd.Flags().Lookup(name)
	if flag == nil {
		flag = cmd.Root().PersistentFlags().Lookup(name)
	}
	if flag == nil {
		return ""
	}
	return flag.Value.String()
}

// useColor combines --color with TTY detection on stdout.
func useColor(cmd *cobra.Command) bool {
	return output.ResolveColorMode(stringFlag(cmd, "color"), output.IsTTY(cmd.OutOrStdout()))
}

// newPrinter returns a printer whose progress and errors go to stderr.
func newPrinter(cmd *cobra.Command) *output.Printer {
	return output.NewPrinter(cmd.OutOrStdout(), isJSONMode(cmd), useColor(cmd)).WithStderr(cmd.ErrOrStderr())
}

// newLogger returns the stderr logger for cmd's --verbose and --json flags.
func newLogger(cmd *cobra.Command) *log.Logger {
	return logging.New(cmd.ErrOrStderr(), logging.Options{
		Verbose: boolFlag(cmd, "verbose"),
		JSON:    isJSONMode(cmd),
	})
}

// projectRoot returns the git repository root, or the working directory
// outside a repository.
func projectRoot() string {
	if root, err := git.RepoRoot(); err == nil {
		return root
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// configPath returns --config or briefship.yaml at the project root.
func configPath(cmd *cobra.Command) string {
	if path := stringFlag(cmd, "config"); path != "" {
		return path
	}
	return config.PathIn(projectRoot())
}

// loadConfig reads the project config. A missing file is only an error
// when required is set; env overrides can supply everything else.
func loadConfig(cmd *cobra.Command, required bool) (*config.Config, error) {
	path := configPath(cmd)
	cfg, err := config.Load(path)
	if errors.Is(err, config.ErrNotFound) {
		if required {
			return nil, output.NewUserError("no " + config.FileName + " at " + path + ": run 'briefship init' first")
		}
		return cfg, nil
	}
	if err != nil {
		return nil, output.NewUserErrorWithCause(err.Error(), err)
	}
	return cfg, nil
}

// newService loads the config and builds a ship.Service rooted next to it.
func newService(cmd *cobra.Command) (*ship.Service, error) {
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return nil, err
	}
	root := projectRoot()
	if cfg.Path != "" {
		root = filepath.Dir(cfg.Path)
	}
	return ship.New(ship.Options{
		Config:   cfg,
		Root:     root,
		Logger:   newLogger(cmd),
		Version:  version,
		NewCloud: cloudFactory,
	})
}

// fail prints err and returns it, so RunE can `return fail(printer, err)`.
func fail(printer *output.Printer, err error) error {
	printer.Error(err)
	return err
}

// shortSHA abbreviates a commit for tables.
func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
