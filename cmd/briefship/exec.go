package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/gorewood/briefship/internal/ship"
)

func newExecCmd() *cobra.Command {
	var workDir string
	cmd := &cobra.Command{
		Use:   "exec -- <command>...",
		Short: "Run a shell command on the instance",
		Long: `Run a shell command on the bot's instance through SSM and print its output.

Each argument after -- becomes one line of the remote script. The command runs
in app_dir unless --workdir is given; --workdir - uses the SSM default.

Examples:
  briefship exec -- docker compose ps
  briefship exec -- 'df -h /' 'free -m'
  briefship exec --workdir /tmp -- ls`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(cmd, args, workDir)
		},
	}
	cmd.Flags().StringVar(&workDir, "workdir", "", "Remote working directory (default: app_dir)")
	return cmd
}

func runExec(cmd *cobra.Command, lines []string, workDir string) error {
	printer := newPrinter(cmd)

	svc, err := newService(cmd)
	if err != nil {
		return fail(printer, err)
	}
	defer svc.Close()

	inv, err := svc.Exec(cmd.Context(), ship.ExecRequest{Lines: lines, WorkDir: workDir}, nil)

	if printer.IsJSON() {
		if inv.CommandID == "" {
			return fail(printer, err)
		}
		data := map[string]any{
			"command_id":    inv.CommandID,
			"status":        inv.Status,
			"response_code": inv.ResponseCode,
			"stdout":        inv.Stdout,
			"stderr":        inv.Stderr,
		}
		if err != nil {
			data["error"] = err.Error()
		}
		if writeErr := printer.WriteJSON(data); writeErr != nil {
			return writeErr
		}
		return err
	}

	if inv.CommandID != "" {
		printer.Print("%s", inv.Stdout)
		if stderr := strings.TrimRight(inv.Stderr, "\n"); stderr != "" {
			printer.Block("stderr", stderr)
		}
	}
	if err != nil {
		return fail(printer, err)
	}
	return nil
}
