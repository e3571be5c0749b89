package git

import (
	"context"
	"strings"

	"github.com/gorewood/briefship/internal/output"
)

// UnpushedCommits returns the commits on HEAD that remote/branch does not
// have yet, according to the local remote-tracking ref. When the tracking
// ref does not exist the branch has never been pushed and every reachable
// commit is returned.
func UnpushedCommits(ctx context.Context, remote, branch string) ([]Commit, error) {
	tracking := TrackingRef(remote, branch)
	if !RefExists(tracking) {
		return CommitsReachableFrom(ctx, "HEAD")
	}
	return Log(ctx, tracking, "HEAD")
}

// Push pushes HEAD to refs/heads/<branch> on remote. A rejected push
// (the remote has commits HEAD lacks) is a conflict error.
func Push(ctx context.Context, remote, branch string) error {
	_, err := RunContext(ctx, "push", remote, "HEAD:refs/heads/"+branch)
	if err == nil {
		// Keep the tracking ref current so the next UnpushedCommits is accurate.
		_, _ = RunContext(ctx, "update-ref", TrackingRef(remote, branch), "HEAD")
		return nil
	}
	if isRejected(err.Error()) {
		return output.NewConflictError("push to " + remote + "/" + branch + " rejected: pull and rebase before deploying")
	}
	return output.NewSystemErrorWithCause("failed to push to "+remote+"/"+branch, err)
}

func isRejected(msg string) bool {
	for _, marker := range []string{"[rejected]", "non-fast-forward", "fetch first"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
