package history

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gorewood/briefship/internal/cloud"
	"github.com/gorewood/briefship/internal/deploy"
	"github.com/gorewood/briefship/internal/output"
)

func TestNewID(t *testing.T) {
	at := time.Date(2026, 10, 15, 9, 4, 5, 0, time.FixedZone("CEST", 2*60*60))

	tests := []struct {
		name   string
		commit string
		want   string
	}{
		{"full sha", "0123456789abcdef", "dp_20261015T070405Z_0123456"},
		{"short sha", "abc", "dp_20261015T070405Z_abc"},
		{"no commit", "", "dp_20261015T070405Z_nohead"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewID(tt.commit, at); got != tt.want {
				t.Errorf("NewID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDateDir(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"dp_20261015T070405Z_0123456", "2026/10/15"},
		{"dp_20261399T000000Z_x", ""},
		{"tb_2026-01-15T10:00:00Z_abc", ""},
		{"dp_2026", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := DateDir(tt.id); got != tt.want {
				t.Errorf("DateDir(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestFromResult(t *testing.T) {
	started := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	res := &deploy.Result{
		InstanceID: "i-0abc",
		Remote:     "origin",
		Branch:     "main",
		Commit:     "0123456789abcdef",
		Pushed:     []deploy.CommitRef{{SHA: "0123456789abcdef", Subject: "Fix digest"}},
		CommandID:  "cmd-1",
		Status:     cloud.StatusFailed,
		Stdout:     strings.Repeat("line\n", 100),
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
	}
	runErr := output.NewRemoteError("remote command cmd-1 ended Failed (exit 1)")

	rec := FromResult(res, runErr)

	if rec.ID != "dp_20261015T090000Z_0123456" || rec.Schema != Schema {
		t.Errorf("ID = %q schema = %q", rec.ID, rec.Schema)
	}
	if rec.ExitCode != output.ExitRemoteFailure || rec.Error == "" {
		t.Errorf("ExitCode = %d, Error = %q", rec.ExitCode, rec.Error)
	}
	if rec.Succeeded() {
		t.Error("Succeeded() = true for a failed run")
	}
	if rec.Outcome() != "failed" {
		t.Errorf("Outcome() = %q", rec.Outcome())
	}
	if got := strings.Count(rec.StdoutTail, "\n"); got != outputTailLines {
		t.Errorf("stdout tail has %d lines, want %d", got, outputTailLines)
	}
	if rec.Duration() != 90*time.Second {
		t.Errorf("Duration() = %s", rec.Duration())
	}
	if err := rec.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestRecord_Outcome(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want string
	}{
		{"success", Record{Status: cloud.StatusSuccess}, "ok"},
		{"local step", Record{FailedStep: deploy.StepPush, ExitCode: output.ExitConflict}, "failed:push"},
		{"remote timeout", Record{Status: cloud.StatusTimedOut, ExitCode: output.ExitRemoteFailure}, "timedout"},
		{"unknown", Record{ExitCode: output.ExitSystemError}, "failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.Outcome(); got != tt.want {
				t.Errorf("Outcome() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRecord_Validate(t *testing.T) {
	err := (&Record{ID: "bogus"}).Validate()
	if err == nil {
		t.Fatal("Validate() = nil for an empty record")
	}
	for _, field := range []string{"schema", "id", "instance_id", "started_at"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q does not mention %s", err, field)
		}
	}
}

func TestUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{"record", `{"schema":"briefship.deploy/v1","id":"dp_20261015T090000Z_abc"}`, nil},
		{"foreign schema", `{"schema":"other.tool/v1"}`, ErrNotRecord},
		{"no schema", `{"id":"x"}`, ErrNotRecord},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.data))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Unmarshal() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := Unmarshal(nil); err == nil {
		t.Error("Unmarshal(nil) should fail")
	}
	if _, err := Unmarshal([]byte("{")); err == nil || errors.Is(err, ErrNotRecord) {
		t.Errorf("Unmarshal(bad json) = %v, want parse error", err)
	}
}

func TestTail(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"a\nb\nc\n", 2, "b\nc\n"},
		{"a\nb", 5, "a\nb\n"},
		{"", 3, ""},
		{"\n\n", 3, ""},
		{"a\n", 0, ""},
	}
	for _, tt := range tests {
		if got := Tail(tt.in, tt.n); got != tt.want {
			t.Errorf("Tail(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
