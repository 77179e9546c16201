// Package notify posts pipeline summaries to chat platforms (Slack,
// Discord). Delivery is best effort: a failed post never fails the job
// that produced it.
package notify

import (
	"context"
	"errors"
)

// Notifier delivers a message to one chat destination.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Message is a chat post: fallback text plus structured events.
type Message struct {
	Text   string
	Events []Event
}

// Event is one formatted attachment in a message.
type Event struct {
	Title    string
	Body     string
	Severity string // "info", "warning", "error", "success"
	Color    string // sidebar color, e.g. "#36a64f"
	Fields   []Field
}

// Field is a key-value pair shown with an event.
type Field struct {
	Name  string
	Value string
	Short bool // render side by side
}

// Multi sends to every notifier and joins their errors.
type Multi []Notifier

// Send delivers msg to each notifier in turn.
func (m Multi) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Enabled reports whether any notifier is configured.
func (m Multi) Enabled() bool {
	for _, n := range m {
		if n != nil {
			return true
		}
	}
	return false
}
