// Package events publishes step lifecycle events of a run to interested
// listeners, such as a dashboard connected over socket.io.
package events

import (
	"context"
	"time"
)

// Type names a lifecycle transition.
type Type string

const (
	RunStarted   Type = "run_started"
	StepStarted  Type = "step_started"
	StepFinished Type = "step_finished"
	RunFinished  Type = "run_finished"
)

// Event is one lifecycle transition.
type Event struct {
	Type    Type      `json:"type"`
	StepID  string    `json:"stepId,omitempty"`
	Status  string    `json:"status,omitempty"`
	ErrorID string    `json:"errorId,omitempty"`
	Time    time.Time `json:"time"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
