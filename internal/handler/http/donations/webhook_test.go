package donations_http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"donations/internal/app/campaigns"
	"donations/internal/app/donations"
	"donations/internal/infrastructure/cache"
	"donations/internal/infrastructure/paystack"
	campaign_postgres "donations/internal/repository/campaign_repo/postgres"
	donations_postgres "donations/internal/repository/donations_repo/postgres"
	inbox_postgres "donations/internal/repository/inbox_repo/postgres"
	outbox_postgres "donations/internal/repository/outbox_repo/postgres"
)

const webhookSecret = "sk_test_webhook"

func TestWebhookHandler_MalformedSignedBodyAcknowledged(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	logger := zap.NewNop()
	campaignSvc := campaigns.NewCampaignService(db, campaign_postgres.NewCampaignRepository(), campaigns.Settings{ID: "tunis-open-2026"}, logger)
	svc := donations.NewDonationService(
		db,
		paystack.NewClient("http://127.0.0.1:0", webhookSecret, time.Second, logger),
		donations_postgres.NewDonationRepository(),
		inbox_postgres.NewInboxRepository(),
		outbox_postgres.NewOutboxRepository(),
		campaignSvc,
		cache.NewMemoryCache(),
		donations.Settings{Environment: "development", MinAmount: 1, MaxAmount: 1000000},
		logger,
	)

	r := chi.NewRouter()
	RegisterRoutes(r, RouterDeps{Donations: svc, Campaigns: campaignSvc, Analytics: &fakeProducer{}}, logger)

	payload := []byte(`{"event":"charge.success","data":`)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO inbox_messages")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodPost, "/api/paystack/webhook", bytes.NewReader(payload))
	req.Header.Set(paystack.SignatureHeader, paystack.Sign(webhookSecret, payload))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Webhook processing error (logged)", body["message"])
	require.NoError(t, mock.ExpectationsWereMet())
}
