package main

import (
	"github.com/spf13/cobra"

	"github.com/gorewood/briefship/internal/ship"
)

func newLogsCmd() *cobra.Command {
	var (
		tail     int
		services []string
	)
	cmd := &cobra.Command{
		Use:   "logs [service...]",
		Short: "Show recent docker compose logs from the instance",
		Long: `Fetch the last lines of the bot's docker compose logs through SSM.

Examples:
  briefship logs               # Last log_tail lines of every service
  briefship logs bot -n 200    # Last 200 lines of the bot service
  briefship logs --json        # Logs wrapped in JSON`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogs(cmd, tail, append(services, args...))
		},
	}
	cmd.Flags().IntVarP(&tail, "tail", "n", 0, "Lines per service (default: log_tail from config)")
	cmd.Flags().StringSliceVarP(&services, "service", "s", nil, "Compose service (repeatable)")
	return cmd
}

func runLogs(cmd *cobra.Command, tail int, services []string) error {
	printer := newPrinter(cmd)

	svc, err := newService(cmd)
	if err != nil {
		return fail(printer, err)
	}
	defer svc.Close()

	logs, err := svc.Logs(cmd.Context(), ship.LogsRequest{Tail: tail, Services: services})
	if err != nil {
		return fail(printer, err)
	}

	if printer.IsJSON() {
		return printer.Success(map[string]any{
			"instance_id": svc.Config().InstanceID,
			"logs":        logs,
		})
	}
	printer.Print("%s", logs)
	return nil
}
