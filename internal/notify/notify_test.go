package notify

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gorewood/briefship/internal/cloud"
	"github.com/gorewood/briefship/internal/config"
	"github.com/gorewood/briefship/internal/deploy"
	"github.com/gorewood/briefship/internal/git"
	"github.com/gorewood/briefship/internal/history"
	"github.com/gorewood/briefship/internal/output"
)

func TestShouldNotify(t *testing.T) {
	tests := []struct {
		mode    string
		success bool
		want    bool
	}{
		{config.NotifyAlways, true, true},
		{config.NotifyAlways, false, true},
		{config.NotifyFailure, true, false},
		{config.NotifyFailure, false, true},
		{config.NotifyNever, false, false},
		{"", false, false},
	}
	for _, tt := range tests {
		if got := ShouldNotify(tt.mode, tt.success); got != tt.want {
			t.Errorf("ShouldNotify(%q, %v) = %v, want %v", tt.mode, tt.success, got, tt.want)
		}
	}
}

func sampleRecord() *history.Record {
	started := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	return &history.Record{
		Schema:     history.Schema,
		ID:         history.NewID("0123456789abcdef", started),
		InstanceID: "i-0abc",
		Remote:     "origin",
		Branch:     "main",
		Commit:     "0123456789abcdef",
		Pushed: []deploy.CommitRef{
			{SHA: "0123456789abcdef", Subject: "Add /topics command"},
			{SHA: "fedcba9876543210", Subject: "Fix digest schedule"},
		},
		Changes:    git.Diffstat{Files: 3, Insertions: 40, Deletions: 2},
		Status:     cloud.StatusSuccess,
		StartedAt:  started,
		FinishedAt: started.Add(95 * time.Second),
	}
}

func TestFormatDeploy_Success(t *testing.T) {
	msg := FormatDeploy(sampleRecord())

	if !msg.Success {
		t.Error("Success = false")
	}
	for _, want := range []string{
		"deploy ok: i-0abc",
		"origin/main @ 0123456",
		"pushed 2 commits, 3 files (+40 -2)",
		"fedcba9 Fix digest schedule",
		"status Success, exit 0, took 1m35s",
		"record dp_20261015T090000Z_0123456",
	} {
		if !strings.Contains(msg.Text, want) {
			t.Errorf("message missing %q:\n%s", want, msg.Text)
		}
	}
}

func TestFormatDeploy_Failure(t *testing.T) {
	rec := sampleRecord()
	rec.Pushed = nil
	rec.Status = cloud.StatusFailed
	rec.ResponseCode = 3
	rec.ExitCode = output.ExitRemoteFailure
	rec.Error = "remote command cmd-1 ended Failed (exit 3)"
	rec.StderrTail = "TELEGRAM_BOT_TOKEN is not set in .env\n"

	msg := FormatDeploy(rec)

	if msg.Success {
		t.Error("Success = true")
	}
	for _, want := range []string{"deploy failed (failed)", "status Failed, exit 3", rec.Error, "TELEGRAM_BOT_TOKEN is not set"} {
		if !strings.Contains(msg.Text, want) {
			t.Errorf("message missing %q:\n%s", want, msg.Text)
		}
	}
	if strings.Contains(msg.Text, "pushed") {
		t.Errorf("nothing was pushed:\n%s", msg.Text)
	}
}

func TestFormatDeploy_NotSent(t *testing.T) {
	rec := sampleRecord()
	rec.Status = ""
	rec.FailedStep = deploy.StepPreflight
	rec.ExitCode = output.ExitConflict

	msg := FormatDeploy(rec)
	if !strings.Contains(msg.Text, "failed (failed:preflight)") || !strings.Contains(msg.Text, "not sent") {
		t.Errorf("unexpected text:\n%s", msg.Text)
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("é", 3000) // 6000 bytes
	got := truncate(long, maxMessageLen)
	if len(got) > maxMessageLen {
		t.Errorf("len = %d, want <= %d", len(got), maxMessageLen)
	}
	if !utf8.ValidString(got) {
		t.Error("truncate split a rune")
	}
	if truncate("short", 10) != "short" {
		t.Error("short strings must be unchanged")
	}
}
