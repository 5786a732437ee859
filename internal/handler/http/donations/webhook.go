package donations_http

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"donations/internal/app/donations"
	"donations/internal/domain"
	"donations/internal/infrastructure/paystack"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	service donations.DonationService
	logger  *zap.Logger
}

func NewWebhookHandler(s donations.DonationService, l *zap.Logger) *WebhookHandler {
	return &WebhookHandler{service: s, logger: l}
}

type WebhookResponse struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	EventID          string `json:"event_id,omitempty"`
	ProcessingTimeMs *int64 `json:"processing_time_ms,omitempty"`
}

func (h *WebhookHandler) PaystackWebhookHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn("Failed to read webhook body", zap.Error(err))
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.service.HandleWebhook(r.Context(), body, r.Header.Get(paystack.SignatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrMissingSignature):
			writeError(w, h.logger, http.StatusUnauthorized, "Missing signature")
		case errors.Is(err, domain.ErrInvalidSignature):
			writeError(w, h.logger, http.StatusUnauthorized, "Invalid signature")
		case errors.Is(err, domain.ErrNotConfigured):
			writeError(w, h.logger, http.StatusInternalServerError, "Server configuration error")
		default:
			h.logger.Error("Unexpected webhook error", zap.Error(err))
			writeError(w, h.logger, http.StatusOK, "Webhook processing error (logged)")
		}
		return
	}

	switch {
	case res.Duplicate:
		writeJSON(w, h.logger, http.StatusOK, WebhookResponse{Success: true, Message: "Event already processed", EventID: res.EventID})
	case res.Failed:
		writeError(w, h.logger, http.StatusOK, "Webhook processing error (logged)")
	default:
		elapsed := res.ProcessingTime.Milliseconds()
		writeJSON(w, h.logger, http.StatusOK, WebhookResponse{
			Success:          true,
			Message:          "Webhook processed",
			EventID:          res.EventID,
			ProcessingTimeMs: &elapsed,
		})
	}
}
