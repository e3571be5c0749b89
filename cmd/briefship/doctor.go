package main

import (
	"github.com/spf13/cobra"

	"github.com/gorewood/briefship/internal/output"
)

// checkStatus represents the result of a health check.
type checkStatus string

const (
	checkPass checkStatus = "pass"
	checkWarn checkStatus = "warn"
	checkFail checkStatus = "fail"
)

// checkResult holds the result of a single health check.
type checkResult struct {
	Name    string      `json:"name"`
	Status  checkStatus `json:"status"`
	Message string      `json:"message"`
	Hint    string      `json:"hint,omitempty"`
}

// doctorResult holds all check results organized by category.
type doctorResult struct {
	Version string         `json:"version"`
	Local   []checkResult  `json:"local"`
	Config  []checkResult  `json:"config"`
	Remote  []checkResult  `json:"remote"`
	Summary *doctorSummary `json:"summary"`
}

// doctorSummary holds the counts of check results.
type doctorSummary struct {
	Passed   int `json:"passed"`
	Warnings int `json:"warnings"`
	Failed   int `json:"failed"`
}

type doctorFlags struct {
	offline bool
	quiet   bool
}

func newDoctorCmd() *cobra.Command {
	flags := &doctorFlags{}

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that a deploy can succeed",
		Long: `Check everything a deploy depends on and suggest fixes.

Runs health checks in three groups:
  LOCAL   - git, working tree, remote, compose file
  CONFIG  - briefship.yaml, the bot's env file, notifications
  REMOTE  - AWS credentials, instance state, SSM agent

Each check reports:
  ok  - Check passed
  !!  - Non-critical issue found
  XX  - A deploy would fail

Exits 1 when any check fails.

Examples:
  briefship doctor              # Run all health checks
  briefship doctor --offline    # Skip AWS calls
  briefship doctor --quiet      # Only show failures and warnings
  briefship doctor --json       # Output results as JSON`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.offline, "offline", false, "Skip checks that call AWS")
	cmd.Flags().BoolVar(&flags.quiet, "quiet", false, "Only show failures and warnings")

	return cmd
}

func runDoctor(cmd *cobra.Command, flags *doctorFlags) error {
	printer := newPrinter(cmd)

	result := gatherDoctorChecks(cmd, flags)

	if printer.IsJSON() {
		if err := printer.WriteJSON(result); err != nil {
			return err
		}
	} else {
		outputDoctorHuman(printer, result, flags.quiet)
	}

	if result.Summary.Failed > 0 {
		return output.NewUserError("doctor found failing checks")
	}
	return nil
}

func gatherDoctorChecks(cmd *cobra.Command, flags *doctorFlags) *doctorResult {
	env := newDoctorEnv(cmd)
	result := &doctorResult{
		Version: version,
		Local:   runLocalChecks(env),
		Config:  runConfigChecks(env),
		Remote:  runRemoteChecks(cmd, env, flags),
		Summary: &doctorSummary{},
	}

	all := append(append(append([]checkResult{}, result.Local...), result.Config...), result.Remote...)
	for _, check := range all {
		switch check.Status {
		case checkPass:
			result.Summary.Passed++
		case checkWarn:
			result.Summary.Warnings++
		case checkFail:
			result.Summary.Failed++
		}
	}
	return result
}

func outputDoctorHuman(printer *output.Printer, result *doctorResult, quiet bool) {
	printer.Println()
	printer.Print("briefship doctor %s\n", result.Version)

	printCheckSection(printer, "LOCAL", result.Local, quiet)
	printCheckSection(printer, "CONFIG", result.Config, quiet)
	printCheckSection(printer, "REMOTE", result.Remote, quiet)

	printer.Println()
	printer.Print("%s %d passed  %s %d warnings  %s %d failed\n",
		statusIcon(checkPass), result.Summary.Passed,
		statusIcon(checkWarn), result.Summary.Warnings,
		statusIcon(checkFail), result.Summary.Failed,
	)
}

func printCheckSection(printer *output.Printer, title string, checks []checkResult, quiet bool) {
	if quiet {
		hasNonPass := false
		for _, check := range checks {
			if check.Status != checkPass {
				hasNonPass = true
				break
			}
		}
		if !hasNonPass {
			return
		}
	}

	printer.Println()
	printer.Println(title)

	for _, check := range checks {
		if quiet && check.Status == checkPass {
			continue
		}
		printer.Print("  %s  %s %s\n", statusIcon(check.Status), check.Name, check.Message)
		if check.Hint != "" {
			printer.Print("     -> %s\n", check.Hint)
		}
	}
}

func statusIcon(status checkStatus) string {
	switch status {
	case checkPass:
		return "ok"
	case checkWarn:
		return "!!"
	case checkFail:
		return "XX"
	default:
		return "??"
	}
}
