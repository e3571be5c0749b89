package git

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gorewood/briefship/internal/output"
)

// Commit is a git commit with the metadata a deploy record keeps.
type Commit struct {
	SHA     string    // Full 40-character SHA
	Short   string    // Abbreviated SHA
	Subject string    // First line of the message
	Author  string    // Author name
	Date    time.Time // Author date
}

// Diffstat holds change statistics for a commit range.
type Diffstat struct {
	Files      int `json:"files"`
	Insertions int `json:"insertions"`
	Deletions  int `json:"deletions"`
}

const (
	commitSeparator = "---COMMIT-BOUNDARY---"
	fieldSeparator  = "---FIELD---"
)

var logFormat = "--pretty=format:" + strings.Join([]string{
	"%H",  // full SHA
	"%h",  // short SHA
	"%s",  // subject
	"%an", // author name
	"%at", // unix timestamp
}, fieldSeparator) + commitSeparator

// Log returns commits in fromRef..toRef, newest first.
func Log(ctx context.Context, fromRef, toRef string) ([]Commit, error) {
	rangeSpec := fromRef + ".." + toRef
	out, err := RunContext(ctx, "log", logFormat, rangeSpec)
	if err != nil {
		return nil, output.NewSystemErrorWithCause("failed to get git log for range "+rangeSpec, err)
	}
	return parseCommits(out), nil
}

// CommitsReachableFrom returns every commit reachable from ref, newest first.
func CommitsReachableFrom(ctx context.Context, ref string) ([]Commit, error) {
	out, err := RunContext(ctx, "log", logFormat, ref)
	if err != nil {
		return nil, output.NewSystemErrorWithCause("failed to get commits from "+ref, err)
	}
	return parseCommits(out), nil
}

func parseCommits(out string) []Commit {
	if out == "" {
		return nil
	}

	var commits []Commit
	for _, chunk := range strings.Split(out, commitSeparator) {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		if commit, ok := parseCommitFields(chunk); ok {
			commits = append(commits, commit)
		}
	}
	return commits
}

func parseCommitFields(chunk string) (Commit, bool) {
	fields := strings.Split(chunk, fieldSeparator)
	if len(fields) < 5 {
		return Commit{}, false
	}

	timestamp, err := strconv.ParseInt(strings.TrimSpace(fields[4]), 10, 64)
	if err != nil {
		timestamp = 0
	}

	return Commit{
		SHA:     strings.TrimSpace(fields[0]),
		Short:   strings.TrimSpace(fields[1]),
		Subject: strings.TrimSpace(fields[2]),
		Author:  strings.TrimSpace(fields[3]),
		Date:    time.Unix(timestamp, 0),
	}, true
}

// Summary line of git diff --stat, e.g.
// " 3 files changed, 45 insertions(+), 12 deletions(-)".
var diffstatLineRegex = regexp.MustCompile(`(\d+)\s+files?\s+changed(?:,\s+(\d+)\s+insertions?\(\+\))?(?:,\s+(\d+)\s+deletions?\(-\))?`)

// emptyTreeSHA is git's empty tree; diffs from it cover a whole history.
const emptyTreeSHA = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// GetDiffstat returns change statistics for fromRef..toRef. A fromRef that
// does not resolve (first push of a branch) diffs against the empty tree.
func GetDiffstat(ctx context.Context, fromRef, toRef string) (Diffstat, error) {
	if !RefExists(fromRef) {
		fromRef = emptyTreeSHA
	}
	out, err := RunContext(ctx, "diff", "--shortstat", fromRef, toRef)
	if err != nil {
		return Diffstat{}, output.NewSystemErrorWithCause("failed to get diffstat for "+fromRef+".."+toRef, err)
	}
	return parseDiffstat(out), nil
}

func parseDiffstat(out string) Diffstat {
	matches := diffstatLineRegex.FindStringSubmatch(out)
	if matches == nil {
		return Diffstat{}
	}
	return Diffstat{
		Files:      matchInt(matches, 1),
		Insertions: matchInt(matches, 2),
		Deletions:  matchInt(matches, 3),
	}
}

func matchInt(matches []string, idx int) int {
	if idx >= len(matches) || matches[idx] == "" {
		return 0
	}
	val, err := strconv.Atoi(matches[idx])
	if err != nil {
		return 0
	}
	return val
}
