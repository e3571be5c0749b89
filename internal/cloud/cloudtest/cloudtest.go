// Package cloudtest provides an in-memory cloud.Client for tests.
package cloudtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorewood/briefship/internal/cloud"
	"github.com/gorewood/briefship/internal/output"
)

// Fake is a scripted cloud.Client. Instance is returned by every
// DescribeInstance; Invocations are replayed in order and the last one
// repeats. The zero value describes a running, online instance whose
// commands succeed immediately.
type Fake struct {
	mu sync.Mutex

	Instance    cloud.Instance
	Invocations []cloud.Invocation
	DescribeErr error
	SendErr     error

	Sent    []cloud.Command
	Started []string
	nextID  int
}

// Online returns a Fake for a running instance with an online SSM agent.
func Online(invocations ...cloud.Invocation) *Fake {
	return &Fake{
		Instance:    cloud.Instance{State: cloud.StateRunning, PingStatus: cloud.PingOnline},
		Invocations: invocations,
	}
}

// DescribeInstance implements cloud.Client.
func (f *Fake) DescribeInstance(_ context.Context, id string) (cloud.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DescribeErr != nil {
		return cloud.Instance{}, f.DescribeErr
	}
	inst := f.Instance
	if inst.State == "" {
		inst.State = cloud.StateRunning
		inst.PingStatus = cloud.PingOnline
	}
	inst.ID = id
	return inst, nil
}

// StartInstance implements cloud.Client and marks the instance online.
func (f *Fake) StartInstance(_ context.Context, id string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Started = append(f.Started, id)
	f.Instance.State = cloud.StateRunning
	f.Instance.PingStatus = cloud.PingOnline
	return nil
}

// SendCommand implements cloud.Client.
func (f *Fake) SendCommand(_ context.Context, cmd cloud.Command) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return "", f.SendErr
	}
	if cmd.InstanceID == "" {
		return "", output.NewSystemError("no instance id")
	}
	f.Sent = append(f.Sent, cmd)
	f.nextID++
	return fmt.Sprintf("cmd-%d", f.nextID), nil
}

// GetInvocation implements cloud.Client.
func (f *Fake) GetInvocation(_ context.Context, commandID, instanceID string) (cloud.Invocation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv := cloud.Invocation{Status: cloud.StatusSuccess}
	if len(f.Invocations) > 0 {
		inv = f.Invocations[0]
		if len(f.Invocations) > 1 {
			f.Invocations = f.Invocations[1:]
		}
	}
	inv.CommandID = commandID
	inv.InstanceID = instanceID
	return inv, nil
}

// LastScript returns the lines of the most recent command, or nil.
func (f *Fake) LastScript() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Sent) == 0 {
		return nil
	}
	return f.Sent[len(f.Sent)-1].Lines
}
