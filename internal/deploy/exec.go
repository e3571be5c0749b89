package deploy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gorewood/briefship/internal/cloud"
	"github.com/gorewood/briefship/internal/output"
)

// ExecOptions describes an ad-hoc remote command.
type ExecOptions struct {
	InstanceID   string
	Lines        []string
	Comment      string
	WorkDir      string
	PollInterval time.Duration
	Timeout      time.Duration
}

// Exec runs lines on the instance and waits for the result. Unlike Run it
// never touches the local repository. The invocation is returned with any
// error; a non-Success status is an ExitRemoteFailure error.
func (d *Deployer) Exec(ctx context.Context, opts ExecOptions, obs Observer) (cloud.Invocation, error) {
	if obs == nil {
		obs = NopObserver{}
	}
	if len(opts.Lines) == 0 {
		return cloud.Invocation{}, output.NewUserError("no command given")
	}

	inst, err := d.Cloud.DescribeInstance(ctx, opts.InstanceID)
	if err != nil {
		return cloud.Invocation{}, err
	}
	if !inst.Deployable() {
		return cloud.Invocation{}, output.NewConflictError(inst.Reason())
	}

	lines := opts.Lines
	if opts.WorkDir != "" {
		lines = append([]string{"cd " + Quote(opts.WorkDir)}, lines...)
	}
	comment := opts.Comment
	if comment == "" {
		comment = "briefship exec: " + strings.Join(opts.Lines, "; ")
	}

	obs.StepStarted(StepSend, "")
	id, err := d.Cloud.SendCommand(ctx, cloud.Command{
		InstanceID: opts.InstanceID,
		Lines:      lines,
		Comment:    comment,
		Timeout:    opts.Timeout,
	})
	obs.StepFinished(StepSend, err)
	if err != nil {
		return cloud.Invocation{}, err
	}
	d.Logger.Debug("command sent", "command_id", id)

	obs.StepStarted(StepPoll, id)
	inv, err := d.wait(ctx, id, opts.InstanceID, opts.PollInterval, opts.Timeout, obs)
	obs.StepFinished(StepPoll, err)
	if err != nil {
		return inv, err
	}
	if !inv.Status.Succeeded() {
		return inv, output.NewRemoteError(fmt.Sprintf("remote command %s ended %s (exit %d)", id, inv.Status, inv.ResponseCode))
	}
	return inv, nil
}

// LogsOptions selects which compose logs to fetch.
type LogsOptions struct {
	InstanceID   string
	AppDir       string
	ComposeFile  string
	Services     []string
	Tail         int
	PollInterval time.Duration
	Timeout      time.Duration
}

// Logs returns the last Tail lines of the compose project's logs.
func (d *Deployer) Logs(ctx context.Context, opts LogsOptions) (string, error) {
	if opts.Tail <= 0 {
		return "", output.NewUserError(fmt.Sprintf("tail must be positive, got %d", opts.Tail))
	}
	cmd := joinNonEmpty(ComposeCommand(opts.ComposeFile),
		fmt.Sprintf("logs --no-color --tail %d", opts.Tail), quoteAll(opts.Services))

	inv, err := d.Exec(ctx, ExecOptions{
		InstanceID:   opts.InstanceID,
		Lines:        []string{cmd},
		Comment:      fmt.Sprintf("briefship logs --tail %d", opts.Tail),
		WorkDir:      opts.AppDir,
		PollInterval: opts.PollInterval,
		Timeout:      opts.Timeout,
	}, nil)
	if err != nil {
		if inv.Stderr != "" {
			return inv.Stdout, fmt.Errorf("%w: %s", err, strings.TrimSpace(inv.Stderr))
		}
		return inv.Stdout, err
	}
	return inv.Stdout, nil
}
