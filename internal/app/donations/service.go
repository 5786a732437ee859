package donations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"donations/internal/app/campaigns"
	"donations/internal/domain"
	"donations/internal/infrastructure/cache"
	"donations/internal/infrastructure/paystack"
	"donations/internal/repository/donations_repo"
	"donations/internal/repository/inbox_repo"
	"donations/internal/repository/outbox_repo"
	"donations/internal/util"
)

const liveKeyPrefix = "sk_live_"

// Gateway is the subset of the Paystack client the service calls.
type Gateway interface {
	SecretKey() string
	InitializeTransaction(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeData, error)
	VerifyTransaction(ctx context.Context, reference string) (*paystack.Transaction, error)
}

type Settings struct {
	Environment     string
	SiteURL         string
	DefaultCurrency string
	MinAmount       float64
	MaxAmount       float64
	VerifyCacheTTL  time.Duration
	AnalyticsTopic  string
}

type InitializeInput struct {
	Amount    float64
	Email     string
	Currency  string
	Name      string
	Anonymous bool
	Metadata  map[string]any
}

type InitializeResult struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// VerifyResult carries the client view of a verification. Paid is false when
// the gateway reports any status other than success; Transaction then holds
// only reference, status and gateway response.
type VerifyResult struct {
	Paid        bool
	Cached      bool
	Transaction *domain.VerifiedTransaction
}

type DonationService interface {
	Initialize(ctx context.Context, in InitializeInput) (*InitializeResult, error)
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error)
	ReplayFailed(ctx context.Context, limit int) (*ReplayReport, error)
}

type donationService struct {
	db            *sql.DB
	gateway       Gateway
	donationsRepo donations_repo.DonationRepository
	inboxRepo     inbox_repo.InboxRepository
	outboxRepo    outbox_repo.OutboxRepository
	campaigns     campaigns.CampaignService
	cache         cache.VerificationCache
	validator     *RequestValidator
	settings      Settings
	logger        *zap.Logger
	now           func() time.Time
}

func NewDonationService(
	db *sql.DB,
	gateway Gateway,
	donationsRepo donations_repo.DonationRepository,
	inboxRepo inbox_repo.InboxRepository,
	outboxRepo outbox_repo.OutboxRepository,
	campaignService campaigns.CampaignService,
	verificationCache cache.VerificationCache,
	settings Settings,
	logger *zap.Logger,
) DonationService {
	if settings.DefaultCurrency == "" {
		settings.DefaultCurrency = domain.DefaultCurrency
	}
	return &donationService{
		db:            db,
		gateway:       gateway,
		donationsRepo: donationsRepo,
		inboxRepo:     inboxRepo,
		outboxRepo:    outboxRepo,
		campaigns:     campaignService,
		cache:         verificationCache,
		validator:     NewRequestValidator(settings.MinAmount, settings.MaxAmount),
		settings:      settings,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *donationService) Initialize(ctx context.Context, in InitializeInput) (*InitializeResult, error) {
	secretKey := s.gateway.SecretKey()
	if secretKey == "" {
		s.logger.Error("Paystack secret key is not configured")
		return nil, domain.ErrNotConfigured
	}
	if strings.EqualFold(s.settings.Environment, "production") && !strings.HasPrefix(secretKey, liveKeyPrefix) {
		s.logger.Error("Test Paystack key used in production")
		return nil, domain.ErrInvalidConfiguration
	}

	if err := s.validator.ValidateInitialize(in); err != nil {
		return nil, err
	}

	reference := util.GenerateReference(s.now())
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.settings.DefaultCurrency
	}
	metadata := buildInitializeMetadata(in)

	data, err := s.gateway.InitializeTransaction(ctx, paystack.InitializeRequest{
		Email:       strings.TrimSpace(in.Email),
		Amount:      domain.ToMinorUnits(in.Amount),
		Currency:    currency,
		Reference:   reference,
		CallbackURL: s.callbackURL(reference),
		Metadata:    metadata,
	})
	if err != nil {
		s.logger.Error("Failed to initialize transaction", zap.String("reference", reference), zap.Error(err))
		return nil, err
	}

	s.logger.Info("Transaction initialized",
		zap.String("reference", reference),
		zap.Float64("amount", in.Amount),
		zap.String("currency", currency),
		zap.Any("donation_type", metadata["donation_type"]),
	)

	return &InitializeResult{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        reference,
	}, nil
}

func (s *donationService) callbackURL(reference string) string {
	return fmt.Sprintf("%s/donate/success?ref=%s", s.settings.SiteURL, url.QueryEscape(reference))
}

// buildInitializeMetadata merges the caller's metadata with the donation fields
// and the dashboard custom fields. Donation fields override caller keys.
func buildInitializeMetadata(in InitializeInput) map[string]any {
	metadata := make(map[string]any, len(in.Metadata)+5)
	for k, v := range in.Metadata {
		metadata[k] = v
	}

	donationType := stringValue(in.Metadata["donation_type"], domain.DefaultDonationType)
	campaign := stringValue(in.Metadata["campaign"], domain.DefaultCampaign)
	name := strings.TrimSpace(in.Name)

	metadata["donation_type"] = donationType
	metadata["campaign"] = campaign
	metadata["anonymous"] = in.Anonymous
	if name != "" {
		metadata["donor_name"] = name
	} else {
		metadata["donor_name"] = nil
	}

	anonymous := "No"
	if in.Anonymous {
		anonymous = "Yes"
	}
	fields := []domain.CustomField{
		{DisplayName: "Donation Type", VariableName: "donation_type", Value: donationType},
		{DisplayName: "Campaign", VariableName: "campaign", Value: campaign},
	}
	if name != "" {
		fields = append(fields, domain.CustomField{DisplayName: "Donor Name", VariableName: "donor_name", Value: name})
	}
	fields = append(fields, domain.CustomField{DisplayName: "Anonymous", VariableName: "anonymous", Value: anonymous})
	metadata["custom_fields"] = fields

	return metadata
}

func stringValue(v any, fallback string) string {
	if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
		return s
	}
	return fallback
}

func (s *donationService) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	reference = strings.TrimSpace(reference)
	if err := s.validator.ValidateReference(reference); err != nil {
		return nil, err
	}
	if s.gateway.SecretKey() == "" {
		s.logger.Error("Paystack secret key is not configured")
		return nil, domain.ErrNotConfigured
	}

	if cached, ok, err := s.cache.Get(ctx, reference); err != nil {
		s.logger.Warn("Verification cache read failed", zap.String("reference", reference), zap.Error(err))
	} else if ok {
		s.logger.Info("Returning cached verification", zap.String("reference", reference))
		return &VerifyResult{Paid: true, Cached: true, Transaction: cached}, nil
	}

	if stored, err := s.donationsRepo.GetByReference(ctx, s.db, reference); err == nil {
		if stored.Status == domain.DonationStatusPaid {
			verified := verifiedFromDonation(stored)
			s.fillCache(ctx, verified)
			s.logger.Info("Returning stored verification", zap.String("reference", reference))
			return &VerifyResult{Paid: true, Cached: true, Transaction: verified}, nil
		}
	} else if !errors.Is(err, domain.ErrDonationNotFound) {
		s.logger.Warn("Stored donation lookup failed", zap.String("reference", reference), zap.Error(err))
	}

	txn, err := s.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		s.logger.Error("Paystack verification failed", zap.String("reference", reference), zap.Error(err))
		return nil, err
	}
	if txn.Reference == "" || txn.Amount == 0 {
		return nil, domain.ErrInvalidTransactionData
	}

	if txn.Status != "success" {
		s.logger.Info("Transaction not successful", zap.String("reference", reference), zap.String("status", txn.Status))
		return &VerifyResult{
			Paid: false,
			Transaction: &domain.VerifiedTransaction{
				Reference:       txn.Reference,
				Status:          txn.Status,
				GatewayResponse: txn.GatewayResponse,
			},
		}, nil
	}

	md := domain.ParseMetadata(txn.Metadata)
	now := s.now()
	if err := s.inTx(ctx, func(tx *sql.Tx) error {
		return s.recordPaidTx(ctx, tx, txn, md, "", now)
	}); err != nil {
		s.logger.Error("Failed to persist verified donation", zap.String("reference", reference), zap.Error(err))
		return nil, fmt.Errorf("failed to persist verified donation: %w", err)
	}

	verified := verifiedFromTransaction(txn, md)
	s.logger.Info("transaction log",
		zap.String("reference", verified.Reference),
		zap.Float64("amount", verified.Amount),
		zap.String("currency", verified.Currency),
		zap.String("email", verified.Email),
		zap.String("channel", verified.Channel),
		zap.String("donation_type", verified.DonationType),
		zap.Time("verified_at", now),
	)
	s.fillCache(ctx, verified)

	return &VerifyResult{Paid: true, Transaction: verified}, nil
}

func (s *donationService) fillCache(ctx context.Context, verified *domain.VerifiedTransaction) {
	if err := s.cache.Set(ctx, verified.Reference, verified, s.settings.VerifyCacheTTL); err != nil {
		s.logger.Warn("Verification cache write failed", zap.String("reference", verified.Reference), zap.Error(err))
	}
}

// inTx runs fn in a transaction, rolling back on error or panic.
func (s *donationService) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Recovered panic in transaction, rolling back", zap.Any("panic", r))
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("Failed to roll back transaction", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func verifiedFromTransaction(txn *paystack.Transaction, md domain.DonationMetadata) *domain.VerifiedTransaction {
	return &domain.VerifiedTransaction{
		Reference:       txn.Reference,
		Amount:          domain.FromMinorUnits(txn.Amount),
		Currency:        txn.Currency,
		Email:           txn.Customer.PrimaryEmail(),
		Status:          txn.Status,
		PaidAt:          txn.PaidAt,
		Metadata:        txn.Metadata,
		Channel:         txn.Channel,
		GatewayResponse: txn.GatewayResponse,
		DonationType:    md.DonationType,
	}
}

func verifiedFromDonation(d *domain.Donation) *domain.VerifiedTransaction {
	return &domain.VerifiedTransaction{
		Reference:       d.Reference,
		Amount:          domain.FromMinorUnits(d.AmountMinor),
		Currency:        d.Currency,
		Email:           d.Email,
		Status:          "success",
		PaidAt:          d.PaidAt,
		Metadata:        d.Metadata,
		Channel:         d.PaymentChannel,
		GatewayResponse: d.GatewayResponse,
		DonationType:    d.DonationType,
	}
}
