package domain

import "time"

type ContributionSource string

const (
	ContributionSourceDonation   ContributionSource = "donation"
	ContributionSourceAdjustment ContributionSource = "adjustment"
)

type Campaign struct {
	ID                  string
	Name                string
	BudgetMinor         int64
	SeedMinor           int64
	AmountReceivedMinor int64
	UpdatedAt           time.Time
}

// Contribution is a ledger row; Reference is unique so each donation counts once.
type Contribution struct {
	Reference   string
	CampaignID  string
	AmountMinor int64
	Source      ContributionSource
	CreatedAt   time.Time
}
