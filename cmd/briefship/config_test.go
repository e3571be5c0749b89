package main

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorewood/briefship/internal/config"
)

func TestConfigShow(t *testing.T) {
	dir := newTestRepo(t)
	t.Setenv("SENTRY_DSN", "https://key@sentry.example.com/1")
	t.Setenv("BRIEFSHIP_REGION", "eu-west-1")

	stdout, _, err := executeCmd(t, dir, "config", "show", "--json")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	result := decodeJSON(t, stdout)
	cfg, _ := result["config"].(map[string]any)
	if cfg["instance_id"] != "i-0test" || cfg["region"] != "eu-west-1" {
		t.Errorf("config = %v", cfg)
	}
	if cfg["sentry_dsn"] != redacted {
		t.Errorf("sentry_dsn = %v, want it redacted", cfg["sentry_dsn"])
	}

	stdout, _, err = executeCmd(t, dir, "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	if !strings.Contains(stdout, "app_dir: /srv/bot") || strings.Contains(stdout, "key@sentry") {
		t.Errorf("yaml output:\n%s", stdout)
	}
}

func TestConfigShow_NoFile(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	runGit(t, dir, "init")

	stdout, _, err := executeCmd(t, dir, "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	if !strings.Contains(stdout, "no "+config.FileName+" found") {
		t.Errorf("output should note the missing file:\n%s", stdout)
	}
	if !strings.Contains(stdout, "poll_interval: 5s") {
		t.Errorf("defaults not shown:\n%s", stdout)
	}
}

func TestConfigPath(t *testing.T) {
	dir := newTestRepo(t)
	custom := filepath.Join(dir, "other.yaml")

	stdout, _, err := executeCmd(t, dir, "config", "path", "--json", "--config", custom)
	if err != nil {
		t.Fatalf("config path failed: %v", err)
	}
	result := decodeJSON(t, stdout)
	if result["config"] != custom {
		t.Errorf("config = %v, want %s", result["config"], custom)
	}
	if result["config_dir"] == "" {
		t.Error("config_dir should not be empty")
	}
}
