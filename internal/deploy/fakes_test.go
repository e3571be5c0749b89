package deploy

import (
	"context"
	"errors"
	"time"

	"github.com/gorewood/briefship/internal/cloud"
	"github.com/gorewood/briefship/internal/git"
	"github.com/gorewood/briefship/internal/logging"
)

// fakeCloud replays scripted instance states and invocation statuses.
type fakeCloud struct {
	instances   []cloud.Instance // returned in order; the last one repeats
	describeErr error
	started     []string

	sent    []cloud.Command
	sendErr error

	invocations []cloud.Invocation // returned in order; the last one repeats
	invErr      error
	polls       int
}

func (f *fakeCloud) DescribeInstance(_ context.Context, id string) (cloud.Instance, error) {
	if f.describeErr != nil {
		return cloud.Instance{}, f.describeErr
	}
	inst := f.instances[0]
	if len(f.instances) > 1 {
		f.instances = f.instances[1:]
	}
	inst.ID = id
	return inst, nil
}

func (f *fakeCloud) StartInstance(_ context.Context, id string, _ time.Duration) error {
	f.started = append(f.started, id)
	return nil
}

func (f *fakeCloud) SendCommand(_ context.Context, cmd cloud.Command) (string, error) {
	f.sent = append(f.sent, cmd)
	if f.sendErr != nil {
		return "", f.sendErr
	}
	return "cmd-42", nil
}

func (f *fakeCloud) GetInvocation(_ context.Context, commandID, instanceID string) (cloud.Invocation, error) {
	f.polls++
	if f.invErr != nil {
		return cloud.Invocation{}, f.invErr
	}
	inv := f.invocations[0]
	if len(f.invocations) > 1 {
		f.invocations = f.invocations[1:]
	}
	inv.CommandID = commandID
	inv.InstanceID = instanceID
	return inv, nil
}

func online() cloud.Instance {
	return cloud.Instance{State: cloud.StateRunning, PingStatus: cloud.PingOnline}
}

func stopped() cloud.Instance {
	return cloud.Instance{State: cloud.StateStopped, PingStatus: "ConnectionLost"}
}

func status(s cloud.Status) cloud.Invocation {
	return cloud.Invocation{Status: s}
}

// fakeGit is an in-memory repository.
type fakeGit struct {
	head     string
	dirty    bool
	unpushed []git.Commit
	stat     git.Diffstat
	pushErr  error
	pushes   int
}

func (f *fakeGit) HEAD() (string, error)       { return f.head, nil }
func (f *fakeGit) HasUncommittedChanges() bool { return f.dirty }

func (f *fakeGit) UnpushedCommits(context.Context, string, string) ([]git.Commit, error) {
	return f.unpushed, nil
}

func (f *fakeGit) Diffstat(context.Context, string, string) (git.Diffstat, error) {
	return f.stat, nil
}

func (f *fakeGit) Push(context.Context, string, string) error {
	f.pushes++
	if f.pushErr != nil {
		return f.pushErr
	}
	f.unpushed = nil
	return nil
}

// fakeClock advances only when the deployer sleeps.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func newTestDeployer(c *fakeCloud, g *fakeGit, clock *fakeClock) *Deployer {
	return &Deployer{
		Cloud:  c,
		Git:    g,
		Logger: logging.Discard(),
		Sleep:  clock.Sleep,
		Now:    clock.Now,
	}
}

func testOptions() Options {
	return Options{
		InstanceID:   "i-0abc",
		Remote:       "origin",
		Branch:       "main",
		AppDir:       "/home/ec2-user/app",
		RunAs:        "ec2-user",
		ComposeFile:  "docker-compose.yml",
		RequiredEnv:  []string{"TELEGRAM_BOT_TOKEN"},
		PollInterval: 5 * time.Second,
		Timeout:      time.Minute,
		LogTail:      20,
	}
}

// recorder is an Observer that remembers what it saw.
type recorder struct {
	started  []Step
	finished map[Step]error
	polled   []cloud.Status
}

func newRecorder() *recorder { return &recorder{finished: map[Step]error{}} }

func (r *recorder) StepStarted(step Step, _ string) { r.started = append(r.started, step) }
func (r *recorder) StepFinished(step Step, err error) {
	r.finished[step] = err
}
func (r *recorder) Polled(inv cloud.Invocation, _ time.Duration) { r.polled = append(r.polled, inv.Status) }

var errBoom = errors.New("boom")
