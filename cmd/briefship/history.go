package main

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/gorewood/briefship/internal/history"
	"github.com/gorewood/briefship/internal/output"
	"github.com/gorewood/briefship/internal/ship"
)

type historyFlags struct {
	last   int
	failed bool
	branch string
}

func newHistoryCmd() *cobra.Command {
	flags := &historyFlags{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded deploys",
		Long: `List deploy records from the history directory, newest first.

Examples:
  briefship history                # Last 20 deploys
  briefship history --failed       # Only failed deploys
  briefship history --branch main  # Deploys of one branch
  briefship history --last 0       # Everything
  briefship history --json         # Records as JSON`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd, flags)
		},
	}
	cmd.Flags().IntVarP(&flags.last, "last", "n", 20, "Show at most N records (0 for all)")
	cmd.Flags().BoolVar(&flags.failed, "failed", false, "Only show failed deploys")
	cmd.Flags().StringVarP(&flags.branch, "branch", "b", "", "Only show deploys of this branch")
	return cmd
}

func runHistory(cmd *cobra.Command, flags *historyFlags) error {
	printer := newPrinter(cmd)

	if flags.last < 0 {
		return fail(printer, output.NewUserError("--last must not be negative"))
	}

	svc, err := newService(cmd)
	if err != nil {
		return fail(printer, err)
	}
	defer svc.Close()

	recs, stats, err := svc.ListHistory(ship.HistoryQuery{
		Last:   flags.last,
		Failed: flags.failed,
		Branch: flags.branch,
	})
	if err != nil {
		return fail(printer, err)
	}

	if printer.IsJSON() {
		if recs == nil {
			recs = []*history.Record{}
		}
		return printer.WriteJSON(recs)
	}

	if stats.Skipped > 0 {
		printer.Warn("skipped %d unreadable files in %s (%d not briefship records)",
			stats.Skipped, svc.History().Dir(), stats.Foreign)
	}
	if len(recs) == 0 {
		printer.Println("No deploys recorded.")
		return nil
	}

	rows := make([][]string, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, historyRow(rec))
	}
	printer.Table([]string{"ID", "WHEN", "BRANCH", "COMMIT", "OUTCOME", "TOOK"}, rows)
	if boolFlag(cmd, "verbose") {
		printer.Println()
		printer.Print("%d records, %d parsed, %d skipped\n", stats.Total, stats.Parsed, stats.Skipped)
	}
	return nil
}

func historyRow(rec *history.Record) []string {
	return []string{
		rec.ID,
		rec.StartedAt.Local().Format("2006-01-02 15:04"),
		rec.Branch,
		shortSHA(rec.Commit),
		rec.Outcome(),
		rec.Duration().Round(time.Second).String(),
	}
}

func newShowCmd() *cobra.Command {
	var latest bool
	cmd := &cobra.Command{
		Use:   "show [id]",
		Short: "Show one deploy record",
		Long: `Show a deploy record with its steps and the tail of its remote output.

Examples:
  briefship show dp_20261015T091500Z_0123456
  briefship show --latest
  briefship show --latest --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			printer := newPrinter(cmd)
			if len(args) == 0 && !latest {
				return fail(printer, output.NewUserError("give a record id or --latest"))
			}
			if len(args) == 1 && latest {
				return fail(printer, output.NewUserError("give either a record id or --latest, not both"))
			}
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return runShow(cmd, printer, id)
		},
	}
	cmd.Flags().BoolVar(&latest, "latest", false, "Show the most recent deploy")
	return cmd
}

func runShow(cmd *cobra.Command, printer *output.Printer, id string) error {
	svc, err := newService(cmd)
	if err != nil {
		return fail(printer, err)
	}
	defer svc.Close()

	rec, err := svc.Show(id)
	if err != nil {
		return fail(printer, err)
	}
	if printer.IsJSON() {
		return printer.WriteJSON(rec)
	}
	printRecord(printer, rec)
	return nil
}

func printRecord(printer *output.Printer, rec *history.Record) {
	printer.Section(rec.ID)
	printer.KeyValue("Outcome", rec.Outcome())
	printer.KeyValue("Instance", rec.InstanceID)
	printer.KeyValue("Branch", rec.Remote+"/"+rec.Branch)
	printer.KeyValue("Commit", rec.Commit)
	printer.KeyValue("Started", rec.StartedAt.Local().Format(time.DateTime))
	printer.KeyValue("Took", rec.Duration().Round(time.Second).String())
	if rec.CommandID != "" {
		printer.KeyValue("Command", rec.CommandID)
		printer.KeyValue("Status", printer.Status(string(rec.Status))+" (exit "+strconv.Itoa(rec.ResponseCode)+")")
	}
	if rec.Error != "" {
		printer.KeyValue("Error", rec.Error)
	}

	if len(rec.Pushed) > 0 {
		printer.Section("Pushed")
		for _, c := range rec.Pushed {
			printer.Print("  %s %s\n", shortSHA(c.SHA), c.Subject)
		}
		printer.Print("  %d files (+%d -%d)\n", rec.Changes.Files, rec.Changes.Insertions, rec.Changes.Deletions)
	}

	if len(rec.Steps) > 0 {
		rows := make([][]string, 0, len(rec.Steps))
		for _, st := range rec.Steps {
			state := "ok"
			switch {
			case st.Skipped:
				state = "skipped"
			case st.Error != "":
				state = "failed"
			}
			rows = append(rows, []string{string(st.Step), state, st.Duration.Round(time.Millisecond).String()})
		}
		printer.Section("Steps")
		printer.Table([]string{"STEP", "RESULT", "TOOK"}, rows)
	}

	if rec.StdoutTail != "" {
		printer.Println()
		printer.Block("stdout (tail)", rec.StdoutTail)
	}
	if rec.StderrTail != "" {
		printer.Println()
		printer.Block("stderr (tail)", rec.StderrTail)
	}
}
