package donations_http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"donations/internal/app/campaigns"
	"donations/internal/app/donations"
	"donations/internal/domain"
	"donations/internal/infrastructure/paystack"
)

type fakeDonationService struct {
	initRes    *donations.InitializeResult
	verifyRes  *donations.VerifyResult
	webhookRes *donations.WebhookResult
	err        error
	signature  string
}

func (f *fakeDonationService) Initialize(ctx context.Context, in donations.InitializeInput) (*donations.InitializeResult, error) {
	return f.initRes, f.err
}

func (f *fakeDonationService) Verify(ctx context.Context, reference string) (*donations.VerifyResult, error) {
	return f.verifyRes, f.err
}

func (f *fakeDonationService) HandleWebhook(ctx context.Context, body []byte, signature string) (*donations.WebhookResult, error) {
	f.signature = signature
	return f.webhookRes, f.err
}

func (f *fakeDonationService) ReplayFailed(ctx context.Context, limit int) (*donations.ReplayReport, error) {
	return &donations.ReplayReport{}, nil
}

type fakeCampaignService struct {
	summary *campaigns.Summary
	adjust  *campaigns.AdjustResult
	err     error
	added   []float64
}

func (f *fakeCampaignService) Ensure(ctx context.Context) error { return nil }

func (f *fakeCampaignService) Get(ctx context.Context) (*campaigns.Summary, error) {
	return f.summary, f.err
}

func (f *fakeCampaignService) Add(ctx context.Context, amountGHS float64, reference string) (*campaigns.AdjustResult, error) {
	f.added = append(f.added, amountGHS)
	return f.adjust, f.err
}

func (f *fakeCampaignService) Reconcile(ctx context.Context) (int64, int64, error) { return 0, 0, nil }

func (f *fakeCampaignService) CreditDonation(ctx context.Context, credit domain.CampaignCredit) error {
	return nil
}

func (f *fakeCampaignService) RecordDonationTx(ctx context.Context, q domain.Querier, reference string, amountMinor int64, currency string, md domain.DonationMetadata, now time.Time) (bool, error) {
	return false, nil
}

type fakeProducer struct {
	topics []string
	err    error
}

func (f *fakeProducer) Produce(ctx context.Context, key, topic string, value []byte) error {
	f.topics = append(f.topics, topic)
	return f.err
}

func (f *fakeProducer) Close() error { return nil }

func newTestRouter(d *fakeDonationService, c *fakeCampaignService, p *fakeProducer) http.Handler {
	r := chi.NewRouter()
	RegisterRoutes(r, RouterDeps{
		Donations:      d,
		Campaigns:      c,
		Analytics:      p,
		AnalyticsTopic: "donation_events",
	}, zap.NewNop())
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestInitializeHandler(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"validation", domain.NewValidationError("Invalid email address"), http.StatusBadRequest, "Invalid email address"},
		{"not configured", domain.ErrNotConfigured, http.StatusInternalServerError, "Payment gateway not configured"},
		{"test key in production", domain.ErrInvalidConfiguration, http.StatusInternalServerError, "Invalid payment configuration"},
		{"timeout", domain.ErrGatewayTimeout, http.StatusGatewayTimeout, "Payment gateway timeout. Please try again."},
		{"gateway rejection", &paystack.GatewayError{StatusCode: 401, Message: "Invalid key"}, http.StatusUnauthorized, "Invalid key"},
		{"malformed gateway body", domain.ErrInvalidGatewayResponse, http.StatusInternalServerError, "Invalid response from payment gateway"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestRouter(&fakeDonationService{err: tc.err}, &fakeCampaignService{}, &fakeProducer{})

			rec, body := doJSON(t, h, http.MethodPost, "/api/donations/initialize", map[string]any{"amount": 50, "email": "a@b.co"}, nil)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tc.message, body["message"])
		})
	}

	t.Run("success", func(t *testing.T) {
		svc := &fakeDonationService{initRes: &donations.InitializeResult{
			AuthorizationURL: "https://checkout.paystack.com/x",
			AccessCode:       "x",
			Reference:        "GKF_1_ABC",
		}}
		h := newTestRouter(svc, &fakeCampaignService{}, &fakeProducer{})

		rec, body := doJSON(t, h, http.MethodPost, "/api/donations/initialize", map[string]any{"amount": 50, "email": "a@b.co"}, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, body["success"])
		data := body["data"].(map[string]any)
		assert.Equal(t, "GKF_1_ABC", data["reference"])
		assert.Equal(t, "https://checkout.paystack.com/x", data["authorization_url"])
	})
}

func TestVerifyHandler(t *testing.T) {
	t.Run("paid", func(t *testing.T) {
		svc := &fakeDonationService{verifyRes: &donations.VerifyResult{
			Paid:   true,
			Cached: true,
			Transaction: &domain.VerifiedTransaction{
				Reference:    "GKF_1_ABC",
				Amount:       50,
				Status:       "success",
				DonationType: "General Donation",
			},
		}}
		h := newTestRouter(svc, &fakeCampaignService{}, &fakeProducer{})

		rec, body := doJSON(t, h, http.MethodPost, "/api/paystack/verify", map[string]any{"reference": "GKF_1_ABC"}, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, body["cached"])
		txn := body["transaction"].(map[string]any)
		assert.Equal(t, 50.0, txn["amount"])
	})

	t.Run("not successful", func(t *testing.T) {
		svc := &fakeDonationService{verifyRes: &donations.VerifyResult{
			Transaction: &domain.VerifiedTransaction{Reference: "GKF_1_ABC", Status: "abandoned"},
		}}
		h := newTestRouter(svc, &fakeCampaignService{}, &fakeProducer{})

		rec, body := doJSON(t, h, http.MethodPost, "/api/paystack/verify", map[string]any{"reference": "GKF_1_ABC"}, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "Transaction abandoned", body["message"])
	})

	errCases := []struct {
		err     error
		status  int
		message string
	}{
		{domain.NewValidationError("Invalid transaction reference"), http.StatusBadRequest, "Invalid transaction reference"},
		{domain.ErrNotConfigured, http.StatusInternalServerError, "Server configuration error"},
		{domain.ErrGatewayTimeout, http.StatusGatewayTimeout, "Verification timeout. Please try again."},
		{&paystack.GatewayError{StatusCode: 404, Message: "Transaction reference not found"}, http.StatusNotFound, "Transaction reference not found"},
		{domain.ErrInvalidTransactionData, http.StatusInternalServerError, "Invalid transaction data received"},
	}
	for _, tc := range errCases {
		t.Run(tc.message, func(t *testing.T) {
			h := newTestRouter(&fakeDonationService{err: tc.err}, &fakeCampaignService{}, &fakeProducer{})

			rec, body := doJSON(t, h, http.MethodPost, "/api/paystack/verify", map[string]any{"reference": "GKF_1"}, nil)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.message, body["message"])
		})
	}
}

func TestWebhookHandler(t *testing.T) {
	t.Run("passes signature header", func(t *testing.T) {
		svc := &fakeDonationService{webhookRes: &donations.WebhookResult{EventID: "charge.success:GKF_1", ProcessingTime: 3 * time.Millisecond}}
		h := newTestRouter(svc, &fakeCampaignService{}, &fakeProducer{})

		rec, body := doJSON(t, h, http.MethodPost, "/api/paystack/webhook", map[string]any{"event": "charge.success"}, map[string]string{paystack.SignatureHeader: "abc"})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "abc", svc.signature)
		assert.Equal(t, "Webhook processed", body["message"])
		assert.Equal(t, "charge.success:GKF_1", body["event_id"])
		assert.Equal(t, 3.0, body["processing_time_ms"])
	})

	t.Run("duplicate", func(t *testing.T) {
		svc := &fakeDonationService{webhookRes: &donations.WebhookResult{EventID: "charge.success:GKF_1", Duplicate: true}}
		h := newTestRouter(svc, &fakeCampaignService{}, &fakeProducer{})

		rec, body := doJSON(t, h, http.MethodPost, "/api/paystack/webhook", map[string]any{}, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Event already processed", body["message"])
	})

	t.Run("processing failure still acknowledged", func(t *testing.T) {
		svc := &fakeDonationService{webhookRes: &donations.WebhookResult{Failed: true}}
		h := newTestRouter(svc, &fakeCampaignService{}, &fakeProducer{})

		rec, body := doJSON(t, h, http.MethodPost, "/api/paystack/webhook", map[string]any{}, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "Webhook processing error (logged)", body["message"])
	})

	for _, tc := range []struct {
		err     error
		message string
	}{
		{domain.ErrMissingSignature, "Missing signature"},
		{domain.ErrInvalidSignature, "Invalid signature"},
	} {
		t.Run(tc.message, func(t *testing.T) {
			h := newTestRouter(&fakeDonationService{err: tc.err}, &fakeCampaignService{}, &fakeProducer{})

			rec, body := doJSON(t, h, http.MethodPost, "/api/paystack/webhook", map[string]any{}, nil)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tc.message, body["message"])
		})
	}
}

func TestCampaignHandlers(t *testing.T) {
	t.Run("get", func(t *testing.T) {
		svc := &fakeCampaignService{summary: &campaigns.Summary{
			CampaignID:     "tunis-open-2026",
			Name:           "2nd Tunis International Open Championships",
			AmountReceived: campaigns.Amounts{GHS: 1101.98, USD: 100.18},
			Budget:         campaigns.Amounts{GHS: 192500, USD: 17500},
			Progress:       0.57,
		}}
		h := newTestRouter(&fakeDonationService{}, svc, &fakeProducer{})

		rec, body := doJSON(t, h, http.MethodGet, "/api/sponsorship/total", nil, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		received := body["amountReceived"].(map[string]any)
		assert.Equal(t, 1101.98, received["ghs"])
		assert.Equal(t, 0.57, body["progress"])
	})

	t.Run("post", func(t *testing.T) {
		svc := &fakeCampaignService{adjust: &campaigns.AdjustResult{Applied: true, Reference: "ADJ_1", Total: campaigns.Amounts{GHS: 1201.98}}}
		h := newTestRouter(&fakeDonationService{}, svc, &fakeProducer{})

		rec, body := doJSON(t, h, http.MethodPost, "/api/sponsorship/total", map[string]any{"amountGHS": 100}, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, body["applied"])
		assert.Equal(t, []float64{100}, svc.added)
	})

	t.Run("post without amount", func(t *testing.T) {
		h := newTestRouter(&fakeDonationService{}, &fakeCampaignService{}, &fakeProducer{})

		rec, body := doJSON(t, h, http.MethodPost, "/api/sponsorship/total", map[string]any{"amount": 100}, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid amount", body["message"])
	})

	t.Run("post below zero", func(t *testing.T) {
		h := newTestRouter(&fakeDonationService{}, &fakeCampaignService{err: domain.ErrNegativeTotal}, &fakeProducer{})

		rec, _ := doJSON(t, h, http.MethodPost, "/api/sponsorship/total", map[string]any{"amountGHS": -5000}, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAnalyticsHandler(t *testing.T) {
	t.Run("publishes", func(t *testing.T) {
		producer := &fakeProducer{}
		h := newTestRouter(&fakeDonationService{}, &fakeCampaignService{}, producer)

		rec, body := doJSON(t, h, http.MethodPost, "/api/analytics/track", map[string]any{"event": "donate_click", "timestamp": "2026-10-01T10:00:00Z"}, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, []string{"donation_events"}, producer.topics)
	})

	t.Run("rejects missing timestamp", func(t *testing.T) {
		producer := &fakeProducer{}
		h := newTestRouter(&fakeDonationService{}, &fakeCampaignService{}, producer)

		rec, body := doJSON(t, h, http.MethodPost, "/api/analytics/track", map[string]any{"event": "donate_click"}, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid event structure", body["message"])
		assert.Empty(t, producer.topics)
	})
}

func TestHealth(t *testing.T) {
	h := newTestRouter(&fakeDonationService{}, &fakeCampaignService{}, &fakeProducer{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
