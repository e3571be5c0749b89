package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gorewood/briefship/internal/cloud"
	"github.com/gorewood/briefship/internal/history"
	"github.com/gorewood/briefship/internal/ship"
)

// defaultHistoryLimit caps history output when no limit is given.
const defaultHistoryLimit = 10

// RecordSummary is a one-line view of a deploy record.
type RecordSummary struct {
	ID         string `json:"id"                    jsonschema:"deploy record ID"`
	Branch     string `json:"branch"                jsonschema:"deployed branch"`
	Commit     string `json:"commit"                jsonschema:"deployed commit SHA"`
	Outcome    string `json:"outcome"               jsonschema:"ok, failed:<step> or the remote status"`
	Status     string `json:"status,omitempty"      jsonschema:"SSM command status"`
	Pushed     int    `json:"pushed"                jsonschema:"number of commits pushed"`
	StartedAt  string `json:"started_at"            jsonschema:"start time (RFC3339)"`
	DurationMS int64  `json:"duration_ms"           jsonschema:"wall time in milliseconds"`
	Error      string `json:"error,omitempty"       jsonschema:"error message for failed deploys"`
}

func summarize(rec *history.Record) RecordSummary {
	return RecordSummary{
		ID:         rec.ID,
		Branch:     rec.Branch,
		Commit:     rec.Commit,
		Outcome:    rec.Outcome(),
		Status:     string(rec.Status),
		Pushed:     len(rec.Pushed),
		StartedAt:  rec.StartedAt.Format(time.RFC3339),
		DurationMS: rec.Duration().Milliseconds(),
		Error:      rec.Error,
	}
}

// --- Status tool ---

// StatusInput is the input for the status tool (no parameters).
type StatusInput struct{}

// StatusOutput is the output for the status tool.
type StatusOutput struct {
	Instance   cloud.Instance `json:"instance"              jsonschema:"EC2 and SSM state of the bot instance"`
	Deployable bool           `json:"deployable"            jsonschema:"whether a deploy can be sent now"`
	Reason     string         `json:"reason,omitempty"      jsonschema:"why the instance is not deployable"`
	Latest     *RecordSummary `json:"latest,omitempty"      jsonschema:"most recent recorded deploy"`
}

func handleStatus(svc *ship.Service) mcp.ToolHandlerFor[StatusInput, StatusOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ StatusInput) (*mcp.CallToolResult, StatusOutput, error) {
		st, err := svc.Status(ctx)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("getting status: %w", err)
		}
		out := StatusOutput{
			Instance:   st.Instance,
			Deployable: st.Instance.Deployable(),
			Reason:     st.Instance.Reason(),
		}
		if st.Latest != nil {
			summary := summarize(st.Latest)
			out.Latest = &summary
		}
		return nil, out, nil
	}
}

// --- History tool ---

// HistoryInput is the input for the history tool.
type HistoryInput struct {
	Last   int    `json:"last,omitempty"   jsonschema:"maximum number of records (default 10)"`
	Failed bool   `json:"failed,omitempty" jsonschema:"only failed deploys"`
	Branch string `json:"branch,omitempty" jsonschema:"only deploys of this branch"`
}

// HistoryOutput is the output for the history tool.
type HistoryOutput struct {
	Count   int             `json:"count"   jsonschema:"number of records returned"`
	Records []RecordSummary `json:"records" jsonschema:"deploy records, newest first"`
	Skipped int             `json:"skipped" jsonschema:"unreadable files in the history directory"`
}

func handleHistory(svc *ship.Service) mcp.ToolHandlerFor[HistoryInput, HistoryOutput] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input HistoryInput) (*mcp.CallToolResult, HistoryOutput, error) {
		last := input.Last
		if last <= 0 {
			last = defaultHistoryLimit
		}
		recs, stats, err := svc.ListHistory(ship.HistoryQuery{Last: last, Failed: input.Failed, Branch: input.Branch})
		if err != nil {
			return nil, HistoryOutput{}, fmt.Errorf("listing history: %w", err)
		}
		out := HistoryOutput{Count: len(recs), Records: make([]RecordSummary, 0, len(recs)), Skipped: stats.Skipped}
		for _, rec := range recs {
			out.Records = append(out.Records, summarize(rec))
		}
		return nil, out, nil
	}
}

// --- Show tool ---

// ShowInput is the input for the show tool.
type ShowInput struct {
	ID string `json:"id,omitempty" jsonschema:"deploy record ID; omit for the latest deploy"`
}

// ShowOutput is the output for the show tool.
type ShowOutput struct {
	Record *history.Record `json:"record" jsonschema:"the full deploy record"`
}

func handleShow(svc *ship.Service) mcp.ToolHandlerFor[ShowInput, ShowOutput] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input ShowInput) (*mcp.CallToolResult, ShowOutput, error) {
		rec, err := svc.Show(input.ID)
		if err != nil {
			return nil, ShowOutput{}, err
		}
		return nil, ShowOutput{Record: rec}, nil
	}
}

// --- Logs tool ---

// LogsInput is the input for the logs tool.
type LogsInput struct {
	Tail     int      `json:"tail,omitempty"     jsonschema:"number of log lines per service (default from config)"`
	Services []string `json:"services,omitempty" jsonschema:"compose services to include (default all)"`
}

// LogsOutput is the output for the logs tool.
type LogsOutput struct {
	Logs string `json:"logs" jsonschema:"docker compose logs output"`
}

func handleLogs(svc *ship.Service) mcp.ToolHandlerFor[LogsInput, LogsOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input LogsInput) (*mcp.CallToolResult, LogsOutput, error) {
		if input.Tail < 0 {
			return nil, LogsOutput{}, fmt.Errorf("tail must not be negative, got %d", input.Tail)
		}
		logs, err := svc.Logs(ctx, ship.LogsRequest{Tail: input.Tail, Services: input.Services})
		if err != nil {
			return nil, LogsOutput{}, fmt.Errorf("fetching logs: %w", err)
		}
		return nil, LogsOutput{Logs: logs}, nil
	}
}

// --- Deploy tool ---

// DeployInput is the input for the deploy tool.
type DeployInput struct {
	Branch   string   `json:"branch,omitempty"    jsonschema:"branch to deploy (default: config branch or current branch)"`
	Services []string `json:"services,omitempty"  jsonschema:"compose services to rebuild (default all)"`
	SkipPush bool     `json:"skip_push,omitempty" jsonschema:"deploy what the remote branch already has"`
	Start    bool     `json:"start,omitempty"     jsonschema:"start the instance if it is stopped"`
	DryRun   bool     `json:"dry_run,omitempty"   jsonschema:"check everything and return the script without pushing or sending"`
}

// DeployOutput is the output for the deploy tool.
type DeployOutput struct {
	Succeeded bool           `json:"succeeded"           jsonschema:"whether the remote command finished with Success"`
	DryRun    bool           `json:"dry_run,omitempty"   jsonschema:"true when nothing was pushed or sent"`
	Record    *RecordSummary `json:"record,omitempty"    jsonschema:"the recorded deploy"`
	Script    []string       `json:"script,omitempty"    jsonschema:"remote script (dry runs only)"`
	Stdout    string         `json:"stdout,omitempty"    jsonschema:"remote stdout"`
	Stderr    string         `json:"stderr,omitempty"    jsonschema:"remote stderr"`
}

func handleDeploy(svc *ship.Service) mcp.ToolHandlerFor[DeployInput, DeployOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input DeployInput) (*mcp.CallToolResult, DeployOutput, error) {
		res, rec, err := svc.Deploy(ctx, ship.DeployRequest{
			Branch:   input.Branch,
			Services: input.Services,
			SkipPush: input.SkipPush,
			Start:    input.Start,
			DryRun:   input.DryRun,
		}, nil)
		if err != nil {
			return nil, DeployOutput{}, deployError(err, rec)
		}

		out := DeployOutput{Succeeded: res.Succeeded(), DryRun: res.DryRun, Stdout: res.Stdout, Stderr: res.Stderr}
		if res.DryRun {
			out.Script = res.Script
		}
		if rec != nil {
			summary := summarize(rec)
			out.Record = &summary
		}
		return nil, out, nil
	}
}

// deployError points the agent at the record so it can call show.
func deployError(err error, rec *history.Record) error {
	if rec == nil {
		return fmt.Errorf("deploy failed: %w", err)
	}
	return fmt.Errorf("deploy failed (record %s): %w", rec.ID, err)
}
