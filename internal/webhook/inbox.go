package webhook

import (
	"context"
	"errors"
	"time"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
)

var ErrEventNotFound = errors.New("webhook event not found")

type State string

const (
	StatePending   State = "pending"
	StateProcessed State = "processed"
	StateDead      State = "dead"
)

// InboxEvent is a verified event together with its processing history.
type InboxEvent struct {
	Event      domain.Event `json:"event"`
	State      State        `json:"state"`
	Attempts   int          `json:"attempts"`
	LastError  string       `json:"last_error,omitempty"`
	ReceivedAt time.Time    `json:"received_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Inbox durably records verified events so an acknowledged delivery is never
// lost, and remembers which provider event ids were already processed.
type Inbox interface {
	// Enqueue stores ev as pending. It reports false when the id is already known.
	Enqueue(ctx context.Context, ev *domain.Event) (bool, error)
	Get(ctx context.Context, id string) (*InboxEvent, error)
	Pending(ctx context.Context, limit int) ([]*InboxEvent, error)
	Seen(ctx context.Context, id string) (bool, error)
	MarkProcessed(ctx context.Context, id string) error
	// MarkFailed records a failed attempt and parks the event as dead once
	// maxAttempts is reached. It reports whether the event is now dead.
	MarkFailed(ctx context.Context, id string, cause error, maxAttempts int) (bool, error)
	Close() error
}

func recordFailure(ev *InboxEvent, cause error, maxAttempts int, now time.Time) {
	ev.Attempts++
	if cause != nil {
		ev.LastError = cause.Error()
	}
	ev.UpdatedAt = now
	if maxAttempts > 0 && ev.Attempts >= maxAttempts {
		ev.State = StateDead
	}
}
