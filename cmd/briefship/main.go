// Package main provides the entry point for the briefship CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/gorewood/briefship/internal/config"
	"github.com/gorewood/briefship/internal/envfile"
	"github.com/gorewood/briefship/internal/output"
)

// Build info set via ldflags at build time by goreleaser.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// buildVersion returns the full version string including commit and date.
func buildVersion() string {
	if commit == "none" && date == "unknown" {
		return version
	}
	shortCommit := commit
	if len(commit) > 7 {
		shortCommit = commit[:7]
	}
	return fmt.Sprintf("%s (%s, %s)", version, shortCommit, date)
}

func main() {
	os.Exit(run())
}

func run() int {
	cmd := newRootCmd()
	err := fang.Execute(context.Background(), cmd, fang.WithVersion(buildVersion()))
	return output.GetExitCode(err)
}

// newRootCmd creates the root command for the briefship CLI.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "briefship",
		Short: "Deploy the briefing bot to its EC2 instance",
		Long: `Briefship - push, rebuild and watch the Telegram briefing bot on EC2.

A deploy pushes the current branch, then runs one script on the instance
through SSM Run Command: sync the checkout, check the bot's .env, rebuild
the docker compose project and print its state and recent logs.

Every deploy is recorded under .briefship/history and can be announced in
a Telegram chat. All commands support --json for structured output.`,
		Version:       buildVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if isJSONMode(cmd) {
				printer := output.NewPrinter(cmd.OutOrStdout(), true, false)
				err := output.NewUserError("no command specified. Run 'briefship --help' for usage")
				printer.Error(err)
				return err
			}
			return cmd.Help()
		},
	}

	// Environment variables always take precedence over file values.
	cmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		loadEnvFiles()
		return nil
	}

	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().String("config", "", "Path to "+config.FileName+" (default: repository root)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug detail to stderr")
	cmd.PersistentFlags().String("color", "auto", "Color output: auto, always or never")

	lipgloss.SetHasDarkBackground(true)

	addCommandGroups(cmd)
	addCommands(cmd)

	return cmd
}

// loadEnvFiles loads env files in priority order. First match for each
// variable wins.
//
// Resolution order:
//  1. $CWD/.env.local          (per-repo override, gitignored)
//  2. ~/.config/briefship/env  (AWS profile, Telegram token, Sentry DSN)
//
// The repo's .env belongs to the bot and is deliberately not loaded.
func loadEnvFiles() {
	_ = envfile.Load(".env.local")

	if dir := config.Dir(); dir != "" {
		_ = envfile.Load(filepath.Join(dir, "env"))
	}
}

func addCommandGroups(cmd *cobra.Command) {
	cmd.AddGroup(&cobra.Group{ID: "core", Title: "Core Commands:"})
	cmd.AddGroup(&cobra.Group{ID: "history", Title: "History Commands:"})
	cmd.AddGroup(&cobra.Group{ID: "agent", Title: "Agent Commands:"})
	cmd.AddGroup(&cobra.Group{ID: "admin", Title: "Admin Commands:"})
}

func addCommands(cmd *cobra.Command) {
	addGroupedCommand(cmd, newDeployCmd(), "core")
	addGroupedCommand(cmd, newStatusCmd(), "core")
	addGroupedCommand(cmd, newLogsCmd(), "core")
	addGroupedCommand(cmd, newExecCmd(), "core")

	addGroupedCommand(cmd, newHistoryCmd(), "history")
	addGroupedCommand(cmd, newShowCmd(), "history")

	addGroupedCommand(cmd, newServeCmd(), "agent")

	addGroupedCommand(cmd, newInitCmd(), "admin")
	addGroupedCommand(cmd, newDoctorCmd(), "admin")
	addGroupedCommand(cmd, newConfigCmd(), "admin")
}

func addGroupedCommand(parent *cobra.Command, child *cobra.Command, groupID string) {
	child.GroupID = groupID
	parent.AddCommand(child)
}
