package main

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/gorewood/briefship/internal/git"
	"github.com/gorewood/briefship/internal/output"
	"github.com/gorewood/briefship/internal/ship"
)

// localState is the repository half of status.
type localState struct {
	Branch   string `json:"branch,omitempty"`
	Head     string `json:"head,omitempty"`
	Dirty    bool   `json:"dirty"`
	Unpushed int    `json:"unpushed"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the instance state and the last deploy",
		Long: `Show the bot instance's EC2 state and SSM agent status, the local
branch, and the most recent recorded deploy.

Examples:
  briefship status          # Human-readable status
  briefship status --json   # Output status as JSON for scripting`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	printer := newPrinter(cmd)

	svc, err := newService(cmd)
	if err != nil {
		return fail(printer, err)
	}
	defer svc.Close()

	st, err := svc.Status(cmd.Context())
	if err != nil {
		return fail(printer, err)
	}
	local := gatherLocal(cmd, svc)

	if printer.IsJSON() {
		data := map[string]any{
			"instance":   st.Instance,
			"deployable": st.Instance.Deployable(),
			"local":      local,
		}
		if reason := st.Instance.Reason(); reason != "" {
			data["reason"] = reason
		}
		if st.Latest != nil {
			data["latest"] = st.Latest
		}
		return printer.Success(data)
	}

	printHumanStatus(printer, st, local)
	return nil
}

// gatherLocal collects repository state; outside a repository it is empty.
func gatherLocal(cmd *cobra.Command, svc *ship.Service) localState {
	var local localState
	if !git.IsRepo() {
		return local
	}
	local.Branch, _ = git.CurrentBranch()
	local.Head, _ = git.HEAD()
	local.Dirty = git.HasUncommittedChanges()
	branch := svc.Config().Branch
	if branch == "" {
		branch = local.Branch
	}
	if branch != "" {
		if commits, err := git.UnpushedCommits(cmd.Context(), svc.Config().Remote, branch); err == nil {
			local.Unpushed = len(commits)
		}
	}
	return local
}

func printHumanStatus(printer *output.Printer, st *ship.Status, local localState) {
	inst := st.Instance
	printer.Section("Instance")
	printer.KeyValue("ID", inst.ID)
	if inst.Name != "" {
		printer.KeyValue("Name", inst.Name)
	}
	printer.KeyValue("State", printer.Status(inst.State))
	printer.KeyValue("SSM Agent", printer.Status(inst.PingStatus))
	if inst.PublicIP != "" {
		printer.KeyValue("Public IP", inst.PublicIP)
	}
	if !inst.LastPingAt.IsZero() {
		printer.KeyValue("Last Ping", inst.LastPingAt.Local().Format(time.DateTime))
	}
	if reason := inst.Reason(); reason != "" {
		printer.KeyValue("Not Deployable", reason)
	}

	if local.Head != "" {
		printer.Section("Local")
		printer.KeyValue("Branch", local.Branch)
		printer.KeyValue("HEAD", shortSHA(local.Head))
		printer.KeyValue("Dirty", formatBool(local.Dirty))
		printer.KeyValue("Unpushed", strconv.Itoa(local.Unpushed))
	}

	printer.Section("Last Deploy")
	if st.Latest == nil {
		printer.Println("none recorded")
		return
	}
	rec := st.Latest
	printer.KeyValue("Record", rec.ID)
	printer.KeyValue("Outcome", rec.Outcome())
	printer.KeyValue("Commit", rec.Branch+" @ "+shortSHA(rec.Commit))
	printer.KeyValue("When", rec.StartedAt.Local().Format(time.DateTime))
}

func formatBool(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
