// Package git shells out to the git executable for the briefship CLI.
//
// Everything runs in the current working directory, mirroring what a
// developer would type before a deploy:
//
//	branch, err := git.CurrentBranch()
//	commits, err := git.UnpushedCommits(ctx, "origin", branch)
//	err = git.Push(ctx, "origin", branch)
//
// Failures come back as *output.ExitError: system errors (exit 2) for git
// failures, a conflict (exit 3) for a rejected push, and a user error
// (exit 1) for a detached HEAD or an unknown remote.
package git
