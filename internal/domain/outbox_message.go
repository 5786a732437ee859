package domain

import "time"

type OutboxMessageStatus string

const (
	OutboxStatusPending OutboxMessageStatus = "PENDING"
	OutboxStatusSent    OutboxMessageStatus = "SENT"
	OutboxStatusFailed  OutboxMessageStatus = "FAILED"
)

const (
	MessageTypeReceiptEmail      = "receipt_email"
	MessageTypeDonationCompleted = "donation_completed"
	MessageTypeDonationFailed    = "donation_failed"
	MessageTypeAnalyticsEvent    = "analytics_event"
	MessageTypeCampaignCredit    = "campaign_credit"
)

// OutboxMessage is a side effect waiting to be delivered. DedupKey is unique,
// so enqueueing the same side effect twice keeps a single row.
type OutboxMessage struct {
	ID            string
	AggregateID   string
	MessageType   string
	Topic         string
	Key           string
	Payload       []byte
	DedupKey      string
	Status        OutboxMessageStatus
	Attempts      int
	LastError     string
	NextAttemptAt time.Time
	CreatedAt     time.Time
	SentAt        *time.Time
}
