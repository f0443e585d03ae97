// Package activity turns marketplace events into a human-readable activity
// log. The Pipeline subscribes to the broadcast hub like any other observer
// and fans entries out to sinks off the publishing goroutine.
package activity

import (
	"errors"
	"time"
)

// ErrBackpressure is returned when the pipeline queue is full.
var ErrBackpressure = errors.New("activity pipeline backpressure: queue full")

// Entry is one line of marketplace activity.
type Entry struct {
	Type    string    `json:"type"`
	Summary string    `json:"summary"`
	Subject string    `json:"subject"`
	Amount  string    `json:"amount,omitempty"`
	At      time.Time `json:"at"`
}

// Sink receives processed entries.
type Sink interface {
	Consume(Entry) error
}
