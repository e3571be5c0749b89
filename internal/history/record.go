// Package history stores one JSON record per deploy run under the project's
// history directory, laid out as YYYY/MM/DD/<id>.json.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorewood/briefship/internal/cloud"
	"github.com/gorewood/briefship/internal/deploy"
	"github.com/gorewood/briefship/internal/git"
	"github.com/gorewood/briefship/internal/output"
)

// Schema identifies briefship deploy records.
const Schema = "briefship.deploy/v1"

const (
	idPrefix     = "dp_"
	idTimeLayout = "20060102T150405Z"
	shortSHALen  = 7
	// outputTailLines bounds the stdout/stderr kept per record.
	outputTailLines = 40
)

// ErrNotRecord is returned for JSON files that are not briefship records.
var ErrNotRecord = errors.New("not a briefship deploy record")

// Record is the stored outcome of one deploy.
type Record struct {
	Schema       string              `json:"schema"`
	ID           string              `json:"id"`
	InstanceID   string              `json:"instance_id"`
	Remote       string              `json:"remote"`
	Branch       string              `json:"branch"`
	Commit       string              `json:"commit"`
	Pushed       []deploy.CommitRef  `json:"pushed,omitempty"`
	Changes      git.Diffstat        `json:"changes"`
	CommandID    string              `json:"command_id,omitempty"`
	Status       cloud.Status        `json:"status,omitempty"`
	ResponseCode int                 `json:"response_code"`
	FailedStep   deploy.Step         `json:"failed_step,omitempty"`
	Error        string              `json:"error,omitempty"`
	ExitCode     int                 `json:"exit_code"`
	Steps        []deploy.StepTiming `json:"steps,omitempty"`
	StdoutTail   string              `json:"stdout_tail,omitempty"`
	StderrTail   string              `json:"stderr_tail,omitempty"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   time.Time           `json:"finished_at"`
}

// NewID builds a record ID: dp_<UTC compact timestamp>_<short commit>.
func NewID(commit string, at time.Time) string {
	short := commit
	if len(short) > shortSHALen {
		short = short[:shortSHALen]
	}
	if short == "" {
		short = "nohead"
	}
	return idPrefix + at.UTC().Format(idTimeLayout) + "_" + short
}

// DateDir returns the YYYY/MM/DD directory for id, or "" if id is not a
// record ID.
func DateDir(id string) string {
	if !strings.HasPrefix(id, idPrefix) || len(id) < len(idPrefix)+8 {
		return ""
	}
	day := id[len(idPrefix) : len(idPrefix)+8]
	if _, err := time.Parse("20060102", day); err != nil {
		return ""
	}
	return day[:4] + "/" + day[4:6] + "/" + day[6:]
}

// FromResult converts a deploy result and its error into a record.
func FromResult(res *deploy.Result, runErr error) *Record {
	rec := &Record{
		Schema:       Schema,
		ID:           NewID(res.Commit, res.StartedAt),
		InstanceID:   res.InstanceID,
		Remote:       res.Remote,
		Branch:       res.Branch,
		Commit:       res.Commit,
		Pushed:       res.Pushed,
		Changes:      res.Changes,
		CommandID:    res.CommandID,
		Status:       res.Status,
		ResponseCode: res.ResponseCode,
		FailedStep:   res.FailedStep,
		ExitCode:     output.GetExitCode(runErr),
		Steps:        res.Steps,
		StdoutTail:   Tail(res.Stdout, outputTailLines),
		StderrTail:   Tail(res.Stderr, outputTailLines),
		StartedAt:    res.StartedAt,
		FinishedAt:   res.FinishedAt,
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	return rec
}

// Succeeded reports whether the deploy ran to a successful remote status.
func (r *Record) Succeeded() bool {
	return r.ExitCode == output.ExitSuccess && r.Status.Succeeded()
}

// Outcome is a one-word summary for listings.
func (r *Record) Outcome() string {
	switch {
	case r.Succeeded():
		return "ok"
	case r.FailedStep != "":
		return "failed:" + string(r.FailedStep)
	case r.Status != "":
		return strings.ToLower(string(r.Status))
	default:
		return "failed"
	}
}

// Duration is the wall time of the deploy.
func (r *Record) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Validate checks the fields every stored record carries.
func (r *Record) Validate() error {
	var missing []string
	if r.Schema == "" {
		missing = append(missing, "schema")
	}
	if DateDir(r.ID) == "" {
		missing = append(missing, "id")
	}
	if r.InstanceID == "" {
		missing = append(missing, "instance_id")
	}
	if r.StartedAt.IsZero() {
		missing = append(missing, "started_at")
	}
	if len(missing) > 0 {
		return fmt.Errorf("invalid record: missing or malformed %s", strings.Join(missing, ", "))
	}
	return nil
}

// Marshal renders the record as indented JSON.
func (r *Record) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return append(data, '\n'), nil
}

// Unmarshal parses a record, returning ErrNotRecord for foreign JSON.
func Unmarshal(data []byte) (*Record, error) {
	if len(data) == 0 {
		return nil, errors.New("empty record file")
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing record: %w", err)
	}
	if rec.Schema != Schema {
		return nil, ErrNotRecord
	}
	return &rec, nil
}

// Tail returns the last n lines of s.
func Tail(s string, n int) string {
	trimmed := strings.TrimRight(s, "\n")
	if trimmed == "" || n <= 0 {
		return ""
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n") + "\n"
}
