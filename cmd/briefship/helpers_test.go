package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorewood/briefship/internal/cloud"
	"github.com/gorewood/briefship/internal/cloud/cloudtest"
	"github.com/gorewood/briefship/internal/config"
)

// testConfig polls fast so deploys against the fake finish immediately.
const testConfig = `instance_id: i-0test
remote: origin
app_dir: /srv/bot
poll_interval: 1ms
timeout: 1s
log_tail: 5
required_env:
  - TELEGRAM_BOT_TOKEN
notify:
  when: always
`

// isolateEnv clears every variable that would leak the developer's setup
// into a test.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"BRIEFSHIP_INSTANCE_ID", "BRIEFSHIP_REGION", "BRIEFSHIP_PROFILE",
		"BRIEFSHIP_TELEGRAM_TOKEN", "BRIEFSHIP_TELEGRAM_CHAT_ID",
		"AWS_REGION", "AWS_PROFILE", "SENTRY_DSN",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("BRIEFSHIP_CONFIG_HOME", t.TempDir())
}

// useFakeCloud routes every AWS client through fake for the test.
func useFakeCloud(t *testing.T, fake *cloudtest.Fake) {
	t.Helper()
	orig := cloudFactory
	cloudFactory = func(context.Context, *config.Config) (cloud.Client, error) {
		return fake, nil
	}
	t.Cleanup(func() { cloudFactory = orig })
}

// newTestRepo creates a repository on main with an origin remote, a
// committed briefship.yaml and .gitignore, everything pushed.
func newTestRepo(t *testing.T) string {
	t.Helper()
	isolateEnv(t)

	bare := t.TempDir()
	runGit(t, bare, "init", "--bare")

	dir := t.TempDir()
	runGit(t, dir, "init")
	runGit(t, dir, "symbolic-ref", "HEAD", "refs/heads/main")
	runGit(t, dir, "config", "user.email", "test@test.com")
	runGit(t, dir, "config", "user.name", "Test User")
	runGit(t, dir, "remote", "add", "origin", bare)

	writeFile(t, filepath.Join(dir, config.FileName), testConfig)
	writeFile(t, filepath.Join(dir, ".gitignore"), ".briefship/\n")
	writeFile(t, filepath.Join(dir, "docker-compose.yml"), "services:\n  bot:\n    build: .\n")
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-m", "Initial commit")
	runGit(t, dir, "push", "-u", "origin", "main")
	return dir
}

// commitFile adds a commit that has not been pushed yet.
func commitFile(t *testing.T, dir, name, content, message string) {
	t.Helper()
	writeFile(t, filepath.Join(dir, name), content)
	runGit(t, dir, "add", name)
	runGit(t, dir, "commit", "-m", message)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// executeCmd runs the root command with args inside dir and returns what
// it wrote to stdout and stderr.
func executeCmd(t *testing.T, dir string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var outBuf, errBuf bytes.Buffer
	runInDir(t, dir, func() {
		cmd := newRootCmd()
		cmd.SetOut(&outBuf)
		cmd.SetErr(&errBuf)
		cmd.SetArgs(args)
		err = cmd.Execute()
	})
	return outBuf.String(), errBuf.String(), err
}

// decodeJSON parses a JSON object from command output.
func decodeJSON(t *testing.T, out string) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("output should be valid JSON: %v\nOutput: %s", err, out)
	}
	return result
}

// runInDir runs testFunc with the working directory set to dir.
func runInDir(t *testing.T, dir string, testFunc func()) {
	t.Helper()
	oldDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working dir: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("failed to chdir to %s: %v", dir, err)
	}
	defer func() {
		if err := os.Chdir(oldDir); err != nil {
			t.Errorf("failed to restore dir: %v", err)
		}
	}()
	testFunc()
}

// runGit runs a git command in the given directory.
func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.CommandContext(context.Background(), "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %v\nOutput: %s", args, err, out)
	}
	return strings.TrimSpace(string(out))
}
