// Package git provides Git operations via exec for the briefship CLI.
package git

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/gorewood/briefship/internal/output"
)

// Run executes a git command in the current directory and returns its
// trimmed stdout. Failures are *output.ExitError system errors carrying
// git's stderr.
func Run(args ...string) (string, error) {
	return RunContext(context.Background(), args...)
}

// RunContext is Run with a context that kills git when cancelled.
func RunContext(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return "", output.NewSystemError("git not found: ensure git is installed and in PATH")
		}

		errMsg := strings.TrimSpace(stderr.String())
		if errMsg == "" {
			errMsg = err.Error()
		}
		return "", output.NewSystemErrorWithCause("git command failed: "+errMsg, err)
	}

	return strings.TrimSpace(stdout.String()), nil
}

// Available reports whether a git binary is on PATH.
func Available() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

// IsRepo checks if the current directory is inside a git repository.
func IsRepo() bool {
	_, err := Run("rev-parse", "--git-dir")
	return err == nil
}

// RepoRoot returns the top-level directory of the current repository.
func RepoRoot() (string, error) {
	root, err := Run("rev-parse", "--show-toplevel")
	if err != nil {
		return "", output.NewSystemErrorWithCause("not in a git repository", err)
	}
	return root, nil
}

// CurrentBranch returns the checked-out branch name.
// A detached HEAD is a user error since there is nothing to push.
func CurrentBranch() (string, error) {
	branch, err := Run("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", output.NewSystemErrorWithCause("failed to get current branch", err)
	}
	if branch == "HEAD" {
		return "", output.NewUserError("HEAD is detached: check out a branch or set branch in briefship.yaml")
	}
	return branch, nil
}

// HEAD returns the full SHA of the current HEAD commit.
func HEAD() (string, error) {
	sha, err := Run("rev-parse", "HEAD")
	if err != nil {
		return "", output.NewSystemErrorWithCause("failed to get HEAD", err)
	}
	return sha, nil
}

// RefExists reports whether ref resolves to a commit.
func RefExists(ref string) bool {
	if ref == "" {
		return false
	}
	_, err := Run("rev-parse", "--verify", "--quiet", ref+"^{commit}")
	return err == nil
}

// HasUncommittedChanges returns true if the working tree has staged or unstaged changes.
func HasUncommittedChanges() bool {
	out, err := Run("status", "--porcelain")
	if err != nil {
		return false
	}
	return out != ""
}

// RemoteURL returns the fetch URL configured for remote.
func RemoteURL(remote string) (string, error) {
	url, err := Run("remote", "get-url", remote)
	if err != nil {
		return "", output.NewUserError("git remote " + remote + " is not configured")
	}
	return url, nil
}

// TrackingRef returns the remote-tracking ref for remote/branch.
func TrackingRef(remote, branch string) string {
	return "refs/remotes/" + remote + "/" + branch
}
