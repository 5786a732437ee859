package domain

import "time"

type InboxMessageStatus string

const (
	InboxStatusNew       InboxMessageStatus = "NEW"
	InboxStatusProcessed InboxMessageStatus = "PROCESSED"
	InboxStatusFailed    InboxMessageStatus = "FAILED"
)

// InboxMessage records a received webhook event. Its ID is unique, which is
// what makes delivery idempotent across restarts and concurrent deliveries.
type InboxMessage struct {
	ID          string
	EventType   string
	Reference   string
	Payload     []byte
	Status      InboxMessageStatus
	Attempts    int
	LastError   string
	ReceivedAt  time.Time
	ProcessedAt *time.Time
}
