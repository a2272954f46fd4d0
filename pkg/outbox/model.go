package outbox

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// Event is one message waiting to be relayed. AggregateID becomes the
// message key.
type Event struct {
	ID          int64
	AggregateID string
	Type        string
	Payload     []byte
	Headers     map[string]string
	Traceparent string
	CreatedAt   time.Time
	Status      Status
	RetryCount  int
	LastError   *string
}
