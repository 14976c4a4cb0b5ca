// Package events fans operation events out to live subscribers and to NATS.
package events

import "time"

// Status is the phase of an operation.
type Status string

const (
	StatusStarted   Status = "started"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Event describes one phase of one operation against the browser.
// Seq increases by one per operation and is shared by its started and finished events.
type Event struct {
	Seq        uint64    `json:"seq"`
	Operation  string    `json:"operation"`
	Status     Status    `json:"status"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Time       time.Time `json:"time"`
}

// Finished reports whether the event closes its operation.
func (e Event) Finished() bool {
	return e.Status == StatusSucceeded || e.Status == StatusFailed
}

// Notifier receives events. Notify must not block.
type Notifier interface {
	Notify(event Event)
}

// Multi fans an event out to several notifiers in order.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(event Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(event)
		}
	}
}

// Discard drops every event.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Notify(Event) {}
