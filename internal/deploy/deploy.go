// Package deploy ships the local branch to the bot's EC2 instance: it checks
// the instance, pushes commits, runs one composite script over SSM and polls
// it to completion.
package deploy

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gorewood/briefship/internal/cloud"
	"github.com/gorewood/briefship/internal/git"
	"github.com/gorewood/briefship/internal/output"
)

// Step names a phase of a deploy run.
type Step string

// Deploy steps, in execution order.
const (
	StepPreflight     Step = "preflight"
	StepCheckInstance Step = "check_instance"
	StepPush          Step = "push"
	StepSend          Step = "send"
	StepPoll          Step = "poll"
)

// Options controls a single deploy.
type Options struct {
	InstanceID   string
	Remote       string
	Branch       string
	AppDir       string
	RunAs        string
	ComposeFile  string
	Services     []string
	RequiredEnv  []string
	PollInterval time.Duration
	Timeout      time.Duration
	LogTail      int

	SkipPush       bool
	AllowDirty     bool
	StartIfStopped bool
	DryRun         bool
}

// CommitRef is the part of a pushed commit kept in results.
type CommitRef struct {
	SHA     string `json:"sha"`
	Short   string `json:"short"`
	Subject string `json:"subject"`
}

// StepTiming records how long a step took and how it ended.
type StepTiming struct {
	Step     Step          `json:"step"`
	Duration time.Duration `json:"duration_ns"`
	Skipped  bool          `json:"skipped,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Result describes a deploy run. It is returned alongside any error so
// callers can record partial runs.
type Result struct {
	InstanceID   string         `json:"instance_id"`
	Remote       string         `json:"remote"`
	Branch       string         `json:"branch"`
	Commit       string         `json:"commit"`
	Pushed       []CommitRef    `json:"pushed,omitempty"`
	Changes      git.Diffstat   `json:"changes"`
	Instance     cloud.Instance `json:"instance"`
	CommandID    string         `json:"command_id,omitempty"`
	Status       cloud.Status   `json:"status,omitempty"`
	ResponseCode int            `json:"response_code"`
	Stdout       string         `json:"stdout,omitempty"`
	Stderr       string         `json:"stderr,omitempty"`
	Script       []string       `json:"script,omitempty"`
	DryRun       bool           `json:"dry_run,omitempty"`
	FailedStep   Step           `json:"failed_step,omitempty"`
	Steps        []StepTiming   `json:"steps"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
}

// Succeeded reports whether the remote command finished with Success.
func (r *Result) Succeeded() bool {
	return r.Status.Succeeded() && r.FailedStep == ""
}

func (r *Result) applyInvocation(inv cloud.Invocation) {
	r.Status = inv.Status
	r.ResponseCode = inv.ResponseCode
	r.Stdout = inv.Stdout
	r.Stderr = inv.Stderr
}

// Duration is the wall time of the run.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// GitOps is the local repository surface a deploy needs.
type GitOps interface {
	HEAD() (string, error)
	HasUncommittedChanges() bool
	UnpushedCommits(ctx context.Context, remote, branch string) ([]git.Commit, error)
	Diffstat(ctx context.Context, remote, branch string) (git.Diffstat, error)
	Push(ctx context.Context, remote, branch string) error
}

type realGit struct{}

func (realGit) HEAD() (string, error)       { return git.HEAD() }
func (realGit) HasUncommittedChanges() bool { return git.HasUncommittedChanges() }

func (realGit) UnpushedCommits(ctx context.Context, remote, branch string) ([]git.Commit, error) {
	return git.UnpushedCommits(ctx, remote, branch)
}

func (realGit) Diffstat(ctx context.Context, remote, branch string) (git.Diffstat, error) {
	return git.GetDiffstat(ctx, git.TrackingRef(remote, branch), "HEAD")
}

func (realGit) Push(ctx context.Context, remote, branch string) error {
	return git.Push(ctx, remote, branch)
}

// Observer receives progress callbacks. Implementations must not block.
type Observer interface {
	StepStarted(step Step, detail string)
	StepFinished(step Step, err error)
	Polled(inv cloud.Invocation, elapsed time.Duration)
}

// NopObserver ignores all progress.
type NopObserver struct{}

func (NopObserver) StepStarted(Step, string)                {}
func (NopObserver) StepFinished(Step, error)                {}
func (NopObserver) Polled(cloud.Invocation, time.Duration) {}

// Deployer runs deploys against one cloud client and local repository.
type Deployer struct {
	Cloud  cloud.Client
	Git    GitOps
	Logger *log.Logger
	// Sleep and Now are replaceable for tests.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// New returns a Deployer using the real git binary and wall clock.
func New(client cloud.Client, logger *log.Logger) *Deployer {
	return &Deployer{Cloud: client, Git: realGit{}, Logger: logger, Sleep: sleepContext, Now: time.Now}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// run tracks the step timings of one Result.
type run struct {
	d   *Deployer
	res *Result
	obs Observer
}

func (r *run) step(step Step, detail string, fn func() (skipped bool, err error)) error {
	r.obs.StepStarted(step, detail)
	started := r.d.Now()
	skipped, err := fn()
	timing := StepTiming{Step: step, Duration: r.d.Now().Sub(started), Skipped: skipped}
	if err != nil {
		timing.Error = err.Error()
		r.res.FailedStep = step
		r.d.Logger.Error("step failed", "step", step, "err", err)
	} else {
		r.d.Logger.Debug("step done", "step", step, "skipped", skipped, "took", timing.Duration)
	}
	r.res.Steps = append(r.res.Steps, timing)
	r.obs.StepFinished(step, err)
	return err
}

// Run executes a deploy. The returned Result is never nil; on error it
// holds everything gathered up to the failing step. A remote command that
// ends in any status but Success yields an ExitRemoteFailure error.
func (d *Deployer) Run(ctx context.Context, opts Options, obs Observer) (*Result, error) {
	if obs == nil {
		obs = NopObserver{}
	}
	res := &Result{
		InstanceID: opts.InstanceID,
		Remote:     opts.Remote,
		Branch:     opts.Branch,
		DryRun:     opts.DryRun,
		StartedAt:  d.Now(),
	}
	r := &run{d: d, res: res, obs: obs}
	defer func() { res.FinishedAt = d.Now() }()

	d.Logger.Info("deploy starting", "instance", opts.InstanceID, "branch", opts.Remote+"/"+opts.Branch)

	if err := r.step(StepPreflight, "", func() (bool, error) { return false, d.preflight(opts, res) }); err != nil {
		return res, err
	}
	if err := r.step(StepCheckInstance, opts.InstanceID, func() (bool, error) {
		return false, d.checkInstance(ctx, opts, res)
	}); err != nil {
		return res, err
	}

	// Skipping the push deploys whatever the remote branch already holds,
	// so the checkout is only pinned to HEAD when HEAD gets pushed.
	expect := res.Commit
	if opts.SkipPush {
		expect = ""
	}
	res.Script = BuildScript(scriptParams(opts, expect))
	if opts.DryRun {
		d.Logger.Info("dry run: nothing pushed or sent")
		return res, nil
	}

	if err := r.step(StepPush, opts.Remote+"/"+opts.Branch, func() (bool, error) {
		return d.push(ctx, opts, res)
	}); err != nil {
		return res, err
	}

	if err := r.step(StepSend, "", func() (bool, error) {
		id, err := d.Cloud.SendCommand(ctx, cloud.Command{
			InstanceID: opts.InstanceID,
			Lines:      res.Script,
			Comment:    fmt.Sprintf("briefship deploy %s@%s", opts.Branch, shortSHA(res.Commit)),
			Timeout:    opts.Timeout,
		})
		res.CommandID = id
		return false, err
	}); err != nil {
		return res, err
	}
	d.Logger.Info("command sent", "command_id", res.CommandID)

	var inv cloud.Invocation
	if err := r.step(StepPoll, res.CommandID, func() (bool, error) {
		var err error
		inv, err = d.wait(ctx, res.CommandID, opts.InstanceID, opts.PollInterval, opts.Timeout, obs)
		return false, err
	}); err != nil {
		res.applyInvocation(inv)
		return res, err
	}

	res.applyInvocation(inv)
	d.Logger.Info("deploy finished", "status", inv.Status, "response_code", inv.ResponseCode)

	if !inv.Status.Succeeded() {
		return res, output.NewRemoteError(fmt.Sprintf(
			"remote command %s ended %s (exit %d)", res.CommandID, inv.Status, inv.ResponseCode))
	}
	return res, nil
}

func scriptParams(opts Options, expect string) ScriptParams {
	return ScriptParams{
		AppDir:       opts.AppDir,
		RunAs:        opts.RunAs,
		Remote:       opts.Remote,
		Branch:       opts.Branch,
		ComposeFile:  opts.ComposeFile,
		Services:     opts.Services,
		LogTail:      opts.LogTail,
		ExpectCommit: expect,
		RequiredEnv:  opts.RequiredEnv,
	}
}

func (d *Deployer) preflight(opts Options, res *Result) error {
	if opts.InstanceID == "" {
		return output.NewUserError("no instance configured: set instance_id in briefship.yaml")
	}
	if opts.Branch == "" {
		return output.NewUserError("no branch to deploy")
	}
	if !opts.AllowDirty && d.Git.HasUncommittedChanges() {
		return output.NewConflictError("working tree has uncommitted changes: commit them or pass --allow-dirty")
	}
	head, err := d.Git.HEAD()
	if err != nil {
		return err
	}
	res.Commit = head
	return nil
}

func (d *Deployer) checkInstance(ctx context.Context, opts Options, res *Result) error {
	inst, err := d.Cloud.DescribeInstance(ctx, opts.InstanceID)
	if err != nil {
		return err
	}
	res.Instance = inst
	d.Logger.Debug("instance state", "instance", inst.ID, "state", inst.State, "ping", inst.PingStatus)
	if inst.Deployable() {
		return nil
	}

	if inst.State != cloud.StateStopped || !opts.StartIfStopped {
		hint := ""
		if inst.State == cloud.StateStopped {
			hint = " (pass --start to start it)"
		}
		return output.NewConflictError(inst.Reason() + hint)
	}

	d.Logger.Info("starting stopped instance", "instance", inst.ID)
	if err := d.Cloud.StartInstance(ctx, opts.InstanceID, opts.Timeout); err != nil {
		return err
	}
	inst, err = d.awaitOnline(ctx, opts)
	res.Instance = inst
	return err
}

// awaitOnline polls until the SSM agent of a freshly started instance
// checks in or the timeout elapses.
func (d *Deployer) awaitOnline(ctx context.Context, opts Options) (cloud.Instance, error) {
	deadline := d.Now().Add(opts.Timeout)
	for {
		inst, err := d.Cloud.DescribeInstance(ctx, opts.InstanceID)
		if err != nil {
			return inst, err
		}
		if inst.Deployable() {
			return inst, nil
		}
		if !d.Now().Before(deadline) {
			return inst, output.NewConflictError(inst.Reason() + " after start")
		}
		if err := d.Sleep(ctx, opts.PollInterval); err != nil {
			return inst, output.NewSystemErrorWithCause("interrupted waiting for instance", err)
		}
	}
}

func (d *Deployer) push(ctx context.Context, opts Options, res *Result) (bool, error) {
	commits, err := d.Git.UnpushedCommits(ctx, opts.Remote, opts.Branch)
	if err != nil {
		return false, err
	}

	if opts.SkipPush {
		if len(commits) > 0 {
			d.Logger.Warn("skipping push: remote branch is behind local HEAD", "unpushed", len(commits))
		}
		return true, nil
	}
	if len(commits) == 0 {
		d.Logger.Info("nothing to push", "branch", opts.Remote+"/"+opts.Branch)
		return true, nil
	}

	stat, err := d.Git.Diffstat(ctx, opts.Remote, opts.Branch)
	if err != nil {
		return false, err
	}
	res.Changes = stat

	if err := d.Git.Push(ctx, opts.Remote, opts.Branch); err != nil {
		return false, err
	}
	for _, c := range commits {
		res.Pushed = append(res.Pushed, CommitRef{SHA: c.SHA, Short: c.Short, Subject: c.Subject})
	}
	d.Logger.Info("pushed", "commits", len(commits), "files", stat.Files)
	return false, nil
}

// wait polls the invocation at a fixed interval until it reaches a
// terminal status or timeout elapses. The last seen invocation is returned
// with any error.
func (d *Deployer) wait(ctx context.Context, commandID, instanceID string, interval, timeout time.Duration, obs Observer) (cloud.Invocation, error) {
	started := d.Now()
	deadline := started.Add(timeout)
	last := cloud.Invocation{CommandID: commandID, InstanceID: instanceID, Status: cloud.StatusPending}

	for {
		if err := d.Sleep(ctx, interval); err != nil {
			return last, output.NewSystemErrorWithCause("interrupted while waiting for command "+commandID, err)
		}

		inv, err := d.Cloud.GetInvocation(ctx, commandID, instanceID)
		if err != nil {
			return last, err
		}
		last = inv
		elapsed := d.Now().Sub(started)
		obs.Polled(inv, elapsed)
		d.Logger.Debug("polled", "command_id", commandID, "status", inv.Status, "elapsed", elapsed.Round(time.Second))

		if inv.Status.Terminal() {
			return inv, nil
		}
		if !d.Now().Before(deadline) {
			return last, output.NewSystemError(fmt.Sprintf(
				"timed out after %s waiting for command %s (last status %s)", timeout, commandID, inv.Status))
		}
	}
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
