package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/gorewood/briefship/internal/cloud"
	"github.com/gorewood/briefship/internal/deploy"
	"github.com/gorewood/briefship/internal/history"
	"github.com/gorewood/briefship/internal/output"
	"github.com/gorewood/briefship/internal/ship"
)

type deployFlags struct {
	branch     string
	services   []string
	skipPush   bool
	allowDirty bool
	start      bool
	dryRun     bool
}

func newDeployCmd() *cobra.Command {
	flags := &deployFlags{}
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Push the branch and rebuild the bot on its instance",
		Long: `Push the current branch and rebuild the bot on its EC2 instance.

Steps:
  preflight       clean working tree, HEAD resolved
  check_instance  EC2 running and SSM agent online (--start wakes a stopped one)
  push            push unpushed commits to the remote branch
  send            run the deploy script through SSM Run Command
  poll            wait for the script at a fixed interval until done or timeout

The remote script checks out the pushed commit, verifies the bot's .env has
every required key, runs docker compose up --build and prints recent logs.

Exit codes: 0 deployed, 1 usage/config, 2 AWS/git failure,
3 dirty tree/instance not ready/push rejected, 4 remote script failed.

Examples:
  briefship deploy                   # Deploy the current branch
  briefship deploy --dry-run         # Check everything, print the script
  briefship deploy --start           # Start a stopped instance first
  briefship deploy --service bot     # Rebuild only the bot service
  briefship deploy --json            # Machine-readable result`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDeploy(cmd, flags)
		},
	}
	cmd.Flags().StringVarP(&flags.branch, "branch", "b", "", "Branch to deploy (default: config branch, then current branch)")
	cmd.Flags().StringSliceVarP(&flags.services, "service", "s", nil, "Compose service to rebuild (repeatable; default all)")
	cmd.Flags().BoolVar(&flags.skipPush, "skip-push", false, "Deploy what the remote branch already holds")
	cmd.Flags().BoolVar(&flags.allowDirty, "allow-dirty", false, "Deploy despite uncommitted changes")
	cmd.Flags().BoolVar(&flags.start, "start", false, "Start the instance if it is stopped")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Run checks and print the remote script without pushing or sending")
	return cmd
}

func runDeploy(cmd *cobra.Command, flags *deployFlags) error {
	printer := newPrinter(cmd)

	svc, err := newService(cmd)
	if err != nil {
		return fail(printer, err)
	}
	defer svc.Close()

	res, rec, err := svc.Deploy(cmd.Context(), ship.DeployRequest{
		Branch:     flags.branch,
		Services:   flags.services,
		SkipPush:   flags.skipPush,
		AllowDirty: flags.allowDirty,
		Start:      flags.start,
		DryRun:     flags.dryRun,
	}, &progressObserver{printer: printer})

	if printer.IsJSON() {
		if res == nil {
			return fail(printer, err)
		}
		data := deployJSON(res, rec, err)
		if writeErr := printer.WriteJSON(data); writeErr != nil {
			return writeErr
		}
		return err
	}

	if res == nil {
		return fail(printer, err)
	}
	printDeployHuman(printer, res, rec)
	if err != nil {
		printer.Error(err)
	}
	return err
}

func deployJSON(res *deploy.Result, rec *history.Record, err error) map[string]any {
	data := map[string]any{
		"status":      "ok",
		"instance_id": res.InstanceID,
		"branch":      res.Branch,
		"commit":      res.Commit,
		"pushed":      res.Pushed,
		"changes":     res.Changes,
		"steps":       res.Steps,
		"duration_ms": res.Duration().Milliseconds(),
	}
	if res.DryRun {
		data["dry_run"] = true
		data["script"] = res.Script
	} else {
		data["command_id"] = res.CommandID
		data["remote_status"] = res.Status
		data["response_code"] = res.ResponseCode
		data["stdout"] = res.Stdout
		data["stderr"] = res.Stderr
	}
	if rec != nil {
		data["record_id"] = rec.ID
	}
	if err != nil {
		data["status"] = "error"
		data["error"] = err.Error()
		data["code"] = output.GetExitCode(err)
		if res.FailedStep != "" {
			data["failed_step"] = res.FailedStep
		}
	}
	return data
}

func printDeployHuman(printer *output.Printer, res *deploy.Result, rec *history.Record) {
	if res.DryRun {
		printer.Section("Dry run: remote script")
		for _, line := range res.Script {
			printer.Println(line)
		}
		return
	}

	if res.CommandID != "" {
		printer.Block("stdout", res.Stdout)
		if res.Stderr != "" {
			printer.Block("stderr", res.Stderr)
		}
	}

	printer.Section("Deploy")
	printer.KeyValue("Instance", res.InstanceID)
	printer.KeyValue("Branch", res.Remote+"/"+res.Branch)
	printer.KeyValue("Commit", shortSHA(res.Commit))
	if len(res.Pushed) > 0 {
		printer.KeyValue("Pushed", fmt.Sprintf("%d commits, %d files (+%d -%d)",
			len(res.Pushed), res.Changes.Files, res.Changes.Insertions, res.Changes.Deletions))
	}
	if res.Status != "" {
		printer.KeyValue("Status", printer.Status(string(res.Status))+" (exit "+strconv.Itoa(res.ResponseCode)+")")
	}
	printer.KeyValue("Took", res.Duration().Round(time.Second).String())
	if rec != nil {
		printer.KeyValue("Record", rec.ID)
	}
}

// progressObserver prints deploy steps to stderr. Poll results are shown
// only when the status changes.
type progressObserver struct {
	printer *output.Printer
	last    cloud.Status
}

func (o *progressObserver) StepStarted(step deploy.Step, detail string) {
	o.printer.Step(string(step), detail)
}

func (o *progressObserver) StepFinished(step deploy.Step, err error) {
	o.printer.StepDone(string(step), err)
}

func (o *progressObserver) Polled(inv cloud.Invocation, elapsed time.Duration) {
	if inv.Status == o.last {
		return
	}
	o.last = inv.Status
	o.printer.Step("    "+o.printer.Status(string(inv.Status)), elapsed.Round(time.Second).String())
}
