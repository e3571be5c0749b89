// Package cloud talks to the AWS control plane for a single deploy target:
// EC2 for instance state and SSM Run Command for remote execution.
package cloud

import (
	"context"
	"time"
)

// EC2 instance states as reported by DescribeInstances.
const (
	StatePending  = "pending"
	StateRunning  = "running"
	StateStopping = "stopping"
	StateStopped  = "stopped"
)

// PingOnline is the SSM agent ping status of a reachable instance.
const PingOnline = "Online"

// Instance merges EC2 state with SSM agent registration.
type Instance struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	State        string    `json:"state"`
	PingStatus   string    `json:"ping_status,omitempty"`
	AgentVersion string    `json:"agent_version,omitempty"`
	Platform     string    `json:"platform,omitempty"`
	PublicIP     string    `json:"public_ip,omitempty"`
	LaunchedAt   time.Time `json:"launched_at,omitzero"`
	LastPingAt   time.Time `json:"last_ping_at,omitzero"`
}

// Running reports whether EC2 says the instance is running.
func (i Instance) Running() bool { return i.State == StateRunning }

// Online reports whether the SSM agent is checking in.
func (i Instance) Online() bool { return i.PingStatus == PingOnline }

// Deployable reports whether a command sent now would be delivered.
func (i Instance) Deployable() bool { return i.Running() && i.Online() }

// Reason explains why the instance is not deployable, or "" if it is.
func (i Instance) Reason() string {
	switch {
	case !i.Running():
		return "instance " + i.ID + " is " + i.State
	case i.PingStatus == "":
		return "instance " + i.ID + " is not registered with SSM"
	case !i.Online():
		return "SSM agent on " + i.ID + " is " + i.PingStatus
	default:
		return ""
	}
}

// Status is an SSM command invocation status.
type Status string

// Invocation statuses. Pending, InProgress and Delayed are transient.
const (
	StatusPending    Status = "Pending"
	StatusInProgress Status = "InProgress"
	StatusDelayed    Status = "Delayed"
	StatusSuccess    Status = "Success"
	StatusCancelled  Status = "Cancelled"
	StatusCancelling Status = "Cancelling"
	StatusTimedOut   Status = "TimedOut"
	StatusFailed     Status = "Failed"
)

// Terminal reports whether polling can stop. Cancelling counts as
// terminal: the command will not succeed from there.
func (s Status) Terminal() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusDelayed, "":
		return false
	default:
		return true
	}
}

// Succeeded reports whether the command finished successfully.
func (s Status) Succeeded() bool { return s == StatusSuccess }

// Invocation is the state and captured output of a command on one instance.
type Invocation struct {
	CommandID     string `json:"command_id"`
	InstanceID    string `json:"instance_id"`
	Status        Status `json:"status"`
	StatusDetails string `json:"status_details,omitempty"`
	ResponseCode  int    `json:"response_code"`
	Stdout        string `json:"stdout,omitempty"`
	Stderr        string `json:"stderr,omitempty"`
}

// Command is a shell script to run on one instance.
type Command struct {
	InstanceID string
	Lines      []string
	Comment    string
	// Timeout bounds execution on the instance; zero uses the SSM default.
	Timeout time.Duration
}

// Client is the control-plane surface a deploy needs.
type Client interface {
	DescribeInstance(ctx context.Context, id string) (Instance, error)
	StartInstance(ctx context.Context, id string, wait time.Duration) error
	SendCommand(ctx context.Context, cmd Command) (string, error)
	GetInvocation(ctx context.Context, commandID, instanceID string) (Invocation, error)
}
