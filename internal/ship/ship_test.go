package ship

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorewood/briefship/internal/cloud"
	"github.com/gorewood/briefship/internal/cloud/cloudtest"
	"github.com/gorewood/briefship/internal/config"
	"github.com/gorewood/briefship/internal/git"
	"github.com/gorewood/briefship/internal/notify"
	"github.com/gorewood/briefship/internal/output"
)

const headSHA = "0123456789abcdef0123456789abcdef01234567"

type stubGit struct {
	dirty    bool
	unpushed []git.Commit
}

func (g *stubGit) HEAD() (string, error)       { return headSHA, nil }
func (g *stubGit) HasUncommittedChanges() bool { return g.dirty }
func (g *stubGit) UnpushedCommits(context.Context, string, string) ([]git.Commit, error) {
	return g.unpushed, nil
}
func (g *stubGit) Diffstat(context.Context, string, string) (git.Diffstat, error) {
	return git.Diffstat{Files: 1, Insertions: 2}, nil
}
func (g *stubGit) Push(context.Context, string, string) error {
	g.unpushed = nil
	return nil
}

type recordingNotifier struct {
	msgs []notify.Message
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg notify.Message) error {
	n.msgs = append(n.msgs, msg)
	return n.err
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.InstanceID = "i-0abc"
	cfg.Region = "eu-central-1"
	cfg.Branch = "main"
	cfg.PollInterval = time.Second
	cfg.Timeout = time.Minute
	cfg.Notify.When = config.NotifyAlways
	return cfg
}

type fixture struct {
	svc      *Service
	cloud    *cloudtest.Fake
	git      *stubGit
	notifier *recordingNotifier
	root     string
}

func newFixture(t *testing.T, cfg *config.Config, fake *cloudtest.Fake) *fixture {
	t.Helper()
	f := &fixture{
		cloud:    fake,
		git:      &stubGit{unpushed: []git.Commit{{SHA: headSHA, Short: "0123456", Subject: "Add digest"}}},
		notifier: &recordingNotifier{},
		root:     t.TempDir(),
	}
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	svc, err := New(Options{
		Config:   cfg,
		Root:     f.root,
		Version:  "test",
		NewCloud: func(context.Context, *config.Config) (cloud.Client, error) { return fake, nil },
		Git:      f.git,
		Notifier: f.notifier,
		Sleep: func(_ context.Context, d time.Duration) error {
			now = now.Add(d)
			return nil
		},
		Now: func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.svc = svc
	return f
}

func TestDeploy_RecordsAndNotifies(t *testing.T) {
	f := newFixture(t, testConfig(), cloudtest.Online(
		cloud.Invocation{Status: cloud.StatusInProgress},
		cloud.Invocation{Status: cloud.StatusSuccess, Stdout: "bot  Up\n"},
	))

	res, rec, err := f.svc.Deploy(context.Background(), DeployRequest{}, nil)
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	if !res.Succeeded() || rec == nil || !rec.Succeeded() {
		t.Fatalf("res = %+v rec = %+v", res, rec)
	}
	if res.Branch != "main" {
		t.Errorf("Branch = %q", res.Branch)
	}

	wantDir := filepath.Join(f.root, ".briefship", "history", "2026", "10", "15")
	if _, err := os.Stat(filepath.Join(wantDir, rec.ID+".json")); err != nil {
		t.Errorf("record not written under %s: %v", wantDir, err)
	}

	if len(f.notifier.msgs) != 1 || !f.notifier.msgs[0].Success {
		t.Errorf("notifications = %+v", f.notifier.msgs)
	}
}

func TestDeploy_FailureIsRecorded(t *testing.T) {
	cfg := testConfig()
	cfg.Notify.When = config.NotifyFailure
	f := newFixture(t, cfg, cloudtest.Online(cloud.Invocation{Status: cloud.StatusFailed, ResponseCode: 1, Stderr: "build failed\n"}))

	_, rec, err := f.svc.Deploy(context.Background(), DeployRequest{}, nil)
	if !output.IsCode(err, output.ExitRemoteFailure) {
		t.Fatalf("Deploy() error = %v, want remote failure", err)
	}
	if rec == nil || rec.Succeeded() || rec.StderrTail != "build failed\n" {
		t.Fatalf("rec = %+v", rec)
	}

	recs, _, err := f.svc.ListHistory(HistoryQuery{Failed: true})
	if err != nil || len(recs) != 1 {
		t.Fatalf("ListHistory(failed) = %d records, %v", len(recs), err)
	}
	if len(f.notifier.msgs) != 1 || f.notifier.msgs[0].Success {
		t.Errorf("failure notification = %+v", f.notifier.msgs)
	}
}

func TestDeploy_SuccessNotNotifiedInFailureMode(t *testing.T) {
	cfg := testConfig()
	cfg.Notify.When = config.NotifyFailure
	f := newFixture(t, cfg, cloudtest.Online())

	if _, _, err := f.svc.Deploy(context.Background(), DeployRequest{}, nil); err != nil {
		t.Fatal(err)
	}
	if len(f.notifier.msgs) != 0 {
		t.Errorf("sent %d notifications for a success in failure mode", len(f.notifier.msgs))
	}
}

func TestDeploy_NotifierErrorDoesNotFailDeploy(t *testing.T) {
	f := newFixture(t, testConfig(), cloudtest.Online())
	f.notifier.err = errors.New("telegram down")

	if _, _, err := f.svc.Deploy(context.Background(), DeployRequest{}, nil); err != nil {
		t.Fatalf("Deploy() error = %v, want nil despite notifier failure", err)
	}
}

func TestDeploy_DryRunWritesNothing(t *testing.T) {
	f := newFixture(t, testConfig(), cloudtest.Online())

	res, rec, err := f.svc.Deploy(context.Background(), DeployRequest{DryRun: true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if rec != nil || !res.DryRun || len(res.Script) == 0 {
		t.Errorf("dry run: rec = %v, res = %+v", rec, res)
	}
	if len(f.cloud.Sent) != 0 || len(f.notifier.msgs) != 0 {
		t.Error("dry run sent a command or a notification")
	}
	if recs, _ := f.svc.History().List(); len(recs) != 0 {
		t.Errorf("dry run recorded %d deploys", len(recs))
	}
}

func TestDeploy_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.InstanceID = ""
	f := newFixture(t, cfg, cloudtest.Online())

	_, _, err := f.svc.Deploy(context.Background(), DeployRequest{}, nil)
	if !output.IsCode(err, output.ExitUserError) || !strings.Contains(err.Error(), "instance_id") {
		t.Errorf("Deploy() error = %v, want user error about instance_id", err)
	}
}

func TestDeploy_BranchAndServicesOverride(t *testing.T) {
	f := newFixture(t, testConfig(), cloudtest.Online())

	res, _, err := f.svc.Deploy(context.Background(), DeployRequest{Branch: "release", Services: []string{"worker"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Branch != "release" {
		t.Errorf("Branch = %q", res.Branch)
	}
	script := strings.Join(f.cloud.LastScript(), "\n")
	if !strings.Contains(script, "origin/release") || !strings.Contains(script, "--remove-orphans worker") {
		t.Errorf("overrides not in script:\n%s", script)
	}
}

func TestDeploy_SameSecondCollision(t *testing.T) {
	f := newFixture(t, testConfig(), cloudtest.Online())
	// Freeze the clock so both runs share an ID.
	f.svc.now = func() time.Time { return time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC) }

	_, first, err := f.svc.Deploy(context.Background(), DeployRequest{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, second, err := f.svc.Deploy(context.Background(), DeployRequest{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID == second.ID || second.ID != first.ID+"-2" {
		t.Errorf("IDs = %q, %q", first.ID, second.ID)
	}
	if recs, _ := f.svc.History().List(); len(recs) != 2 {
		t.Errorf("recorded %d deploys, want 2", len(recs))
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t, testConfig(), cloudtest.Online())

	st, err := f.svc.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Instance.ID != "i-0abc" || !st.Instance.Deployable() || st.Latest != nil {
		t.Errorf("Status() = %+v", st)
	}

	if _, _, err := f.svc.Deploy(context.Background(), DeployRequest{}, nil); err != nil {
		t.Fatal(err)
	}
	st, err = f.svc.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Latest == nil || st.Latest.Commit != headSHA {
		t.Errorf("Latest = %+v", st.Latest)
	}
}

func TestLogsAndExec(t *testing.T) {
	cfg := testConfig()
	cfg.Services = []string{"bot"}
	f := newFixture(t, cfg, cloudtest.Online(cloud.Invocation{Status: cloud.StatusSuccess, Stdout: "hello\n"}))

	out, err := f.svc.Logs(context.Background(), LogsRequest{})
	if err != nil || out != "hello\n" {
		t.Fatalf("Logs() = %q, %v", out, err)
	}
	want := "docker compose -f docker-compose.yml logs --no-color --tail 50 bot"
	if got := f.cloud.LastScript(); got[0] != "cd /home/ec2-user/app" || got[1] != want {
		t.Errorf("logs script = %q", got)
	}

	if _, err := f.svc.Exec(context.Background(), ExecRequest{Lines: []string{"uptime"}, WorkDir: "-"}, nil); err != nil {
		t.Fatal(err)
	}
	if got := f.cloud.LastScript(); len(got) != 1 || got[0] != "uptime" {
		t.Errorf("exec script = %q", got)
	}
}

func TestLogsAndExec_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{name: "zero poll interval", mutate: func(c *config.Config) { c.PollInterval = 0 }, wantErr: "poll_interval"},
		{name: "zero timeout", mutate: func(c *config.Config) { c.Timeout = 0 }, wantErr: "timeout"},
		{name: "no instance", mutate: func(c *config.Config) { c.InstanceID = "" }, wantErr: "instance_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			f := newFixture(t, cfg, cloudtest.Online(cloud.Invocation{Status: cloud.StatusSuccess}))

			_, err := f.svc.Logs(context.Background(), LogsRequest{})
			if output.GetExitCode(err) != output.ExitUserError || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Logs() error = %v, want user error about %s", err, tt.wantErr)
			}
			_, err = f.svc.Exec(context.Background(), ExecRequest{Lines: []string{"uptime"}}, nil)
			if output.GetExitCode(err) != output.ExitUserError || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Exec() error = %v, want user error about %s", err, tt.wantErr)
			}
			if len(f.cloud.Sent) != 0 {
				t.Errorf("sent %d commands with an invalid config", len(f.cloud.Sent))
			}
		})
	}
}

func TestShow(t *testing.T) {
	f := newFixture(t, testConfig(), cloudtest.Online())

	if _, err := f.svc.Show(""); !output.IsCode(err, output.ExitUserError) {
		t.Errorf("Show(latest) on empty history = %v, want user error", err)
	}

	_, rec, err := f.svc.Deploy(context.Background(), DeployRequest{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"", rec.ID} {
		got, err := f.svc.Show(id)
		if err != nil || got.ID != rec.ID {
			t.Errorf("Show(%q) = %v, %v", id, got, err)
		}
	}
}

func TestNotifyMode(t *testing.T) {
	cfg := testConfig()
	if got := NotifyMode(cfg); got != config.NotifyNever {
		t.Errorf("NotifyMode() without telegram = %q", got)
	}
	cfg.Notify.Telegram.ChatID = 42
	t.Setenv(cfg.Notify.Telegram.TokenEnv, "123:abc")
	if got := NotifyMode(cfg); got != config.NotifyAlways {
		t.Errorf("NotifyMode() = %q", got)
	}
}

func TestGetNotifier_DefaultsToNop(t *testing.T) {
	svc, err := New(Options{Config: testConfig()})
	if err != nil {
		t.Fatal(err)
	}
	n, err := svc.getNotifier()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := n.(notify.Nop); !ok {
		t.Errorf("notifier = %T, want notify.Nop", n)
	}
}
