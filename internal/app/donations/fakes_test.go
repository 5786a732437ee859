package donations

import (
	"context"
	"encoding/json"
	"time"

	"donations/internal/app/campaigns"
	"donations/internal/domain"
	"donations/internal/infrastructure/paystack"
)

const testSecret = "sk_test_secret"

type fakeGateway struct {
	secret      string
	initReqs    []paystack.InitializeRequest
	verifyCalls int
	txn         *paystack.Transaction
	err         error
}

func (f *fakeGateway) SecretKey() string { return f.secret }

func (f *fakeGateway) InitializeTransaction(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeData, error) {
	f.initReqs = append(f.initReqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &paystack.InitializeData{
		AuthorizationURL: "https://checkout.paystack.com/abc",
		AccessCode:       "abc",
		Reference:        req.Reference,
	}, nil
}

func (f *fakeGateway) VerifyTransaction(ctx context.Context, reference string) (*paystack.Transaction, error) {
	f.verifyCalls++
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.txn
	return &cp, nil
}

type fakeDonationsRepo struct {
	rows    map[string]domain.Donation
	upserts int
	err     error
}

func newFakeDonationsRepo() *fakeDonationsRepo {
	return &fakeDonationsRepo{rows: map[string]domain.Donation{}}
}

func (f *fakeDonationsRepo) UpsertTx(ctx context.Context, q domain.Querier, d *domain.Donation) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if existing, ok := f.rows[d.Reference]; ok && existing.Status == domain.DonationStatusPaid && d.Status != domain.DonationStatusPaid {
		return false, nil
	}
	f.upserts++
	f.rows[d.Reference] = *d
	return true, nil
}

func (f *fakeDonationsRepo) GetByReference(ctx context.Context, q domain.Querier, reference string) (*domain.Donation, error) {
	d, ok := f.rows[reference]
	if !ok {
		return nil, domain.ErrDonationNotFound
	}
	return &d, nil
}

type fakeInboxRepo struct {
	rows   map[string]domain.InboxMessage
	failed map[string]string
}

func newFakeInboxRepo() *fakeInboxRepo {
	return &fakeInboxRepo{rows: map[string]domain.InboxMessage{}, failed: map[string]string{}}
}

func (f *fakeInboxRepo) CreateMessageTx(ctx context.Context, q domain.Querier, msg *domain.InboxMessage) error {
	if existing, ok := f.rows[msg.ID]; ok && existing.Status != domain.InboxStatusFailed {
		return domain.ErrMessageAlreadyProcessed
	}
	f.rows[msg.ID] = *msg
	return nil
}

func (f *fakeInboxRepo) UpdateStatusTx(ctx context.Context, q domain.Querier, id string, status domain.InboxMessageStatus) error {
	row := f.rows[id]
	row.Status = status
	f.rows[id] = row
	return nil
}

func (f *fakeInboxRepo) MarkFailed(ctx context.Context, q domain.Querier, msg *domain.InboxMessage, reason string) error {
	row := *msg
	row.Status = domain.InboxStatusFailed
	row.LastError = reason
	row.Attempts++
	f.rows[msg.ID] = row
	f.failed[msg.ID] = reason
	return nil
}

func (f *fakeInboxRepo) GetFailedMessages(ctx context.Context, q domain.Querier, limit int) ([]domain.InboxMessage, error) {
	var out []domain.InboxMessage
	for _, row := range f.rows {
		if row.Status == domain.InboxStatusFailed {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeInboxRepo) DeleteProcessedBefore(ctx context.Context, q domain.Querier, cutoff time.Time) (int64, error) {
	return 0, nil
}

type fakeOutboxRepo struct {
	messages map[string]domain.OutboxMessage
}

func newFakeOutboxRepo() *fakeOutboxRepo {
	return &fakeOutboxRepo{messages: map[string]domain.OutboxMessage{}}
}

func (f *fakeOutboxRepo) CreateMessageTx(ctx context.Context, q domain.Querier, msg *domain.OutboxMessage) (bool, error) {
	if _, ok := f.messages[msg.DedupKey]; ok {
		return false, nil
	}
	f.messages[msg.DedupKey] = *msg
	return true, nil
}

func (f *fakeOutboxRepo) GetPendingMessagesTx(ctx context.Context, q domain.Querier, now time.Time, limit int) ([]domain.OutboxMessage, error) {
	return nil, nil
}

func (f *fakeOutboxRepo) LeaseMessagesTx(ctx context.Context, q domain.Querier, ids []string, until time.Time) error {
	return nil
}

func (f *fakeOutboxRepo) MarkMessageSentTx(ctx context.Context, q domain.Querier, id string, sentAt time.Time) error {
	return nil
}

func (f *fakeOutboxRepo) MarkMessageRetryTx(ctx context.Context, q domain.Querier, id string, attempts int, next time.Time, lastErr string, status domain.OutboxMessageStatus) error {
	return nil
}

func (f *fakeOutboxRepo) countType(messageType string) int {
	n := 0
	for _, m := range f.messages {
		if m.MessageType == messageType {
			n++
		}
	}
	return n
}

type fakeCampaigns struct {
	name   string
	ledger map[string]int64
	total  int64
	err    error
}

func newFakeCampaigns() *fakeCampaigns {
	return &fakeCampaigns{name: "2nd Tunis International Open Championships", ledger: map[string]int64{}}
}

func (f *fakeCampaigns) Ensure(ctx context.Context) error { return nil }

func (f *fakeCampaigns) Get(ctx context.Context) (*campaigns.Summary, error) {
	return &campaigns.Summary{}, nil
}

func (f *fakeCampaigns) Add(ctx context.Context, amountGHS float64, reference string) (*campaigns.AdjustResult, error) {
	return &campaigns.AdjustResult{}, nil
}

func (f *fakeCampaigns) Reconcile(ctx context.Context) (int64, int64, error) {
	return f.total, f.total, nil
}

func (f *fakeCampaigns) CreditDonation(ctx context.Context, credit domain.CampaignCredit) error {
	md := domain.DonationMetadata{DonationType: credit.DonationType, Campaign: credit.Campaign}
	_, err := f.RecordDonationTx(ctx, nil, credit.Reference, credit.AmountMinor, credit.Currency, md, credit.PaidAt)
	return err
}

func (f *fakeCampaigns) RecordDonationTx(ctx context.Context, q domain.Querier, reference string, amountMinor int64, currency string, md domain.DonationMetadata, now time.Time) (bool, error) {
	if !md.IsTrackedCampaign(f.name) {
		return false, nil
	}
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.ledger[reference]; ok {
		return false, nil
	}
	f.ledger[reference] = amountMinor
	f.total += amountMinor
	return true, nil
}

func paidTransaction(reference string) *paystack.Transaction {
	paidAt := time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC)
	return &paystack.Transaction{
		ID:              42,
		Reference:       reference,
		Amount:          5000,
		Currency:        "GHS",
		Status:          "success",
		Channel:         "mobile_money",
		GatewayResponse: "Approved",
		PaidAt:          &paidAt,
		Customer:        paystack.Customer{Email: "donor@example.com"},
		Metadata:        json.RawMessage(`{"donation_type":"SPONSORSHIP","campaign":"2nd Tunis International Open Championships","donor_name":"Ama","anonymous":false}`),
	}
}

func webhookBody(event string, txn *paystack.Transaction) []byte {
	data, _ := json.Marshal(map[string]any{"event": event, "data": txn})
	return data
}
