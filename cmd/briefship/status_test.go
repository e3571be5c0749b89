package main

import (
	"strings"
	"testing"

	"github.com/gorewood/briefship/internal/cloud"
	"github.com/gorewood/briefship/internal/cloud/cloudtest"
	"github.com/gorewood/briefship/internal/output"
)

func TestStatusCommand_JSON(t *testing.T) {
	dir := newTestRepo(t)
	commitFile(t, dir, "bot.py", "x\n", "Unpushed")
	fake := cloudtest.Online()
	fake.Instance.Name = "briefing-bot"
	useFakeCloud(t, fake)

	stdout, _, err := executeCmd(t, dir, "status", "--json")
	if err != nil {
		t.Fatalf("status failed: %v\n%s", err, stdout)
	}
	result := decodeJSON(t, stdout)

	inst, _ := result["instance"].(map[string]any)
	if inst["id"] != "i-0test" || inst["name"] != "briefing-bot" {
		t.Errorf("instance = %v", inst)
	}
	if result["deployable"] != true {
		t.Errorf("deployable = %v, want true", result["deployable"])
	}
	local, _ := result["local"].(map[string]any)
	if local["branch"] != "main" {
		t.Errorf("local.branch = %v", local["branch"])
	}
	if local["unpushed"] != float64(1) {
		t.Errorf("local.unpushed = %v, want 1", local["unpushed"])
	}
	if _, ok := result["latest"]; ok {
		t.Error("latest should be absent before any deploy")
	}
}

func TestStatusCommand_HumanAfterDeploy(t *testing.T) {
	dir := newTestRepo(t)
	fake := cloudtest.Online()
	useFakeCloud(t, fake)

	if _, _, err := executeCmd(t, dir, "deploy"); err != nil {
		t.Fatalf("deploy failed: %v", err)
	}
	fake.Instance.PingStatus = "ConnectionLost"

	stdout, _, err := executeCmd(t, dir, "status")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	for _, want := range []string{"Instance", "ConnectionLost", "Not Deployable", "Last Deploy", "Outcome: ok"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("status output missing %q:\n%s", want, stdout)
		}
	}
}

func TestLogsCommand(t *testing.T) {
	dir := newTestRepo(t)
	fake := cloudtest.Online(cloud.Invocation{Status: cloud.StatusSuccess, Stdout: "bot-1  | polling\n"})
	useFakeCloud(t, fake)

	stdout, _, err := executeCmd(t, dir, "logs", "bot", "-n", "200")
	if err != nil {
		t.Fatalf("logs failed: %v", err)
	}
	if stdout != "bot-1  | polling\n" {
		t.Errorf("stdout = %q", stdout)
	}
	script := strings.Join(fake.LastScript(), "\n")
	if !strings.Contains(script, "logs --no-color --tail 200 bot") {
		t.Errorf("script = %s", script)
	}
}

func TestLogsCommand_DefaultsToConfigTail(t *testing.T) {
	dir := newTestRepo(t)
	fake := cloudtest.Online()
	useFakeCloud(t, fake)

	stdout, _, err := executeCmd(t, dir, "logs", "--json")
	if err != nil {
		t.Fatalf("logs failed: %v", err)
	}
	if result := decodeJSON(t, stdout); result["instance_id"] != "i-0test" {
		t.Errorf("instance_id = %v", result["instance_id"])
	}
	if script := strings.Join(fake.LastScript(), "\n"); !strings.Contains(script, "--tail 5") {
		t.Errorf("log_tail from config not used: %s", script)
	}
}

func TestExecCommand(t *testing.T) {
	dir := newTestRepo(t)
	fake := cloudtest.Online(cloud.Invocation{Status: cloud.StatusSuccess, Stdout: "/dev/root 8G\n"})
	useFakeCloud(t, fake)

	stdout, _, err := executeCmd(t, dir, "exec", "--", "df -h /")
	if err != nil {
		t.Fatalf("exec failed: %v", err)
	}
	if stdout != "/dev/root 8G\n" {
		t.Errorf("stdout = %q", stdout)
	}
	lines := fake.LastScript()
	if len(lines) != 2 || lines[0] != "cd /srv/bot" || lines[1] != "df -h /" {
		t.Errorf("script = %q", lines)
	}
}

func TestExecCommand_RemoteFailureJSON(t *testing.T) {
	dir := newTestRepo(t)
	fake := cloudtest.Online(cloud.Invocation{Status: cloud.StatusFailed, ResponseCode: 127, Stderr: "nope: not found\n"})
	useFakeCloud(t, fake)

	stdout, _, err := executeCmd(t, dir, "exec", "--json", "--workdir", "-", "--", "nope")
	if code := output.GetExitCode(err); code != 4 {
		t.Fatalf("exit code = %d, want 4", code)
	}
	result := decodeJSON(t, stdout)
	if result["response_code"] != float64(127) || result["stderr"] != "nope: not found\n" {
		t.Errorf("result = %v", result)
	}
	if lines := fake.LastScript(); len(lines) != 1 {
		t.Errorf("--workdir - should not cd: %q", lines)
	}
}
