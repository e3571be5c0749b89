package deploy

import (
	"fmt"
	"strings"
)

// ScriptParams describes the remote side of a deploy.
type ScriptParams struct {
	AppDir      string
	RunAs       string
	Remote      string
	Branch      string
	ComposeFile string
	Services    []string
	LogTail     int
	// ExpectCommit, when set, fails the script unless the checkout lands on it.
	ExpectCommit string
	// RequiredEnv keys must be set in the app's .env before containers start.
	RequiredEnv []string
}

// exitMisconfigured is the script's exit code for a checkout or env
// problem, as opposed to a failing docker build.
const exitMisconfigured = 3

// BuildScript renders the composite command sent to the instance: sync the
// checkout to remote/branch, verify it, rebuild the compose project and
// print its state and recent logs. Every interpolated value is quoted.
func BuildScript(p ScriptParams) []string {
	git := "git"
	if p.RunAs != "" {
		git = "sudo -u " + Quote(p.RunAs) + " git"
	}
	ref := p.Remote + "/" + p.Branch

	lines := []string{
		"set -eu",
		"cd " + Quote(p.AppDir),
		"echo " + Quote("==> syncing "+ref),
		git + " fetch --prune " + Quote(p.Remote),
		git + " checkout --force " + Quote(p.Branch),
		git + " reset --hard " + Quote(ref),
	}

	if p.ExpectCommit != "" {
		lines = append(lines, fmt.Sprintf(
			`test "$(%s rev-parse HEAD)" = %s || { echo %s >&2; exit %d; }`,
			git, Quote(p.ExpectCommit),
			Quote("checkout is not at "+p.ExpectCommit+": was the push accepted?"),
			exitMisconfigured,
		))
	}
	lines = append(lines, fmt.Sprintf(`echo "==> checked out $(%s log -1 --format='%%h %%s')"`, git))

	if len(p.RequiredEnv) > 0 {
		lines = append(lines, fmt.Sprintf("test -f .env || { echo %s >&2; exit %d; }",
			Quote("missing .env in "+p.AppDir), exitMisconfigured))
		for _, key := range p.RequiredEnv {
			lines = append(lines, fmt.Sprintf("grep -Eq %s .env || { echo %s >&2; exit %d; }",
				Quote("^(export )?"+key+"=.+"), Quote(key+" is not set in .env"), exitMisconfigured))
		}
	}

	compose := ComposeCommand(p.ComposeFile)
	services := quoteAll(p.Services)
	lines = append(lines,
		"echo "+Quote("==> building and starting containers"),
		joinNonEmpty(compose, "up -d --build --remove-orphans", services),
		compose+" ps",
	)
	if p.LogTail > 0 {
		lines = append(lines, LogLines(p.ComposeFile, p.LogTail, p.Services)...)
	}
	return lines
}

// LogLines renders the commands that print the last tail log lines of the
// compose project, optionally limited to services.
func LogLines(composeFile string, tail int, services []string) []string {
	return []string{
		"echo " + Quote(fmt.Sprintf("==> last %d log lines", tail)),
		joinNonEmpty(ComposeCommand(composeFile), fmt.Sprintf("logs --no-color --tail %d", tail), quoteAll(services)),
	}
}

// ComposeCommand returns the docker compose invocation for composeFile.
func ComposeCommand(composeFile string) string {
	if composeFile == "" {
		return "docker compose"
	}
	return "docker compose -f " + Quote(composeFile)
}

// Quote wraps s in single quotes for a POSIX shell.
func Quote(s string) string {
	if s != "" && strings.IndexFunc(s, needsQuoting) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func needsQuoting(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case strings.ContainsRune("-_./:@%+=,", r):
		return false
	default:
		return true
	}
}

func quoteAll(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = Quote(v)
	}
	return strings.Join(quoted, " ")
}

func joinNonEmpty(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
