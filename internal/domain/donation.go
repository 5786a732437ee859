package domain

import (
	"encoding/json"
	"time"
)

type DonationStatus string

const (
	DonationStatusPending   DonationStatus = "PENDING"
	DonationStatusPaid      DonationStatus = "PAID"
	DonationStatusFailed    DonationStatus = "FAILED"
	DonationStatusCancelled DonationStatus = "CANCELLED"
)

const (
	DefaultDonationType = "General Donation"
	DefaultCampaign     = "General"
	SponsorshipType     = "SPONSORSHIP"
)

// Donation is a persisted donation attempt keyed by its gateway reference.
type Donation struct {
	Reference       string
	Email           string
	AmountMinor     int64
	Currency        string
	Status          DonationStatus
	Anonymous       bool
	DonationType    string
	Campaign        string
	DonorName       string
	Metadata        json.RawMessage
	PaymentChannel  string
	GatewayResponse string
	EventID         string
	CreatedAt       time.Time
	VerifiedAt      *time.Time
	PaidAt          *time.Time
	UpdatedAt       time.Time
}

// VerifiedTransaction is the client-facing view of a successful verification.
type VerifiedTransaction struct {
	Reference       string          `json:"reference"`
	Amount          float64         `json:"amount"`
	Currency        string          `json:"currency"`
	Email           string          `json:"email"`
	Status          string          `json:"status"`
	PaidAt          *time.Time      `json:"paid_at"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	Channel         string          `json:"channel"`
	GatewayResponse string          `json:"gateway_response"`
	DonationType    string          `json:"donation_type"`
}

// ReceiptPayload is the outbox payload for a donor receipt email.
type ReceiptPayload struct {
	Email        string     `json:"email"`
	Amount       float64    `json:"amount"`
	Currency     string     `json:"currency"`
	Reference    string     `json:"reference"`
	DonationType string     `json:"donation_type"`
	DonorName    string     `json:"donor_name,omitempty"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
}

// DonationEvent is published to the analytics topic.
type DonationEvent struct {
	Event        string    `json:"event"`
	Reference    string    `json:"reference"`
	Amount       float64   `json:"amount"`
	Currency     string    `json:"currency"`
	DonationType string    `json:"donation_type"`
	Campaign     string    `json:"campaign"`
	Channel      string    `json:"channel,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// CampaignCredit retries a campaign total update that failed while its paid
// donation was being stored.
type CampaignCredit struct {
	Reference    string    `json:"reference"`
	AmountMinor  int64     `json:"amount_minor"`
	Currency     string    `json:"currency"`
	DonationType string    `json:"donation_type"`
	Campaign     string    `json:"campaign"`
	PaidAt       time.Time `json:"paid_at"`
}
