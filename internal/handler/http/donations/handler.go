package donations_http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"donations/internal/app/donations"
	"donations/internal/domain"
	"donations/internal/infrastructure/paystack"
)

type DonationHandler struct {
	service donations.DonationService
	logger  *zap.Logger
}

func NewDonationHandler(s donations.DonationService, l *zap.Logger) *DonationHandler {
	return &DonationHandler{service: s, logger: l}
}

type InitializeRequest struct {
	Amount    float64        `json:"amount"`
	Email     string         `json:"email"`
	Currency  string         `json:"currency"`
	Name      string         `json:"name"`
	Anonymous bool           `json:"anonymous"`
	Metadata  map[string]any `json:"metadata"`
}

type InitializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type InitializeResponse struct {
	Success bool           `json:"success"`
	Data    InitializeData `json:"data"`
}

type VerifyRequest struct {
	Reference string `json:"reference"`
}

type VerifyResponse struct {
	Success     bool                        `json:"success"`
	Message     string                      `json:"message,omitempty"`
	Cached      bool                        `json:"cached,omitempty"`
	Transaction *domain.VerifiedTransaction `json:"transaction,omitempty"`
}

type FailedTransaction struct {
	Reference       string `json:"reference"`
	Status          string `json:"status"`
	GatewayResponse string `json:"gateway_response"`
}

type VerifyFailedResponse struct {
	Success     bool              `json:"success"`
	Message     string            `json:"message"`
	Transaction FailedTransaction `json:"transaction"`
}

func (h *DonationHandler) InitializeHandler(w http.ResponseWriter, r *http.Request) {
	var req InitializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid request body for initialize", zap.Error(err))
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.service.Initialize(r.Context(), donations.InitializeInput{
		Amount:    req.Amount,
		Email:     req.Email,
		Currency:  req.Currency,
		Name:      req.Name,
		Anonymous: req.Anonymous,
		Metadata:  req.Metadata,
	})
	if err != nil {
		status, message := initializeErrorStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Donation initialization failed", zap.Error(err))
		}
		writeError(w, h.logger, status, message)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, InitializeResponse{
		Success: true,
		Data: InitializeData{
			AuthorizationURL: res.AuthorizationURL,
			AccessCode:       res.AccessCode,
			Reference:        res.Reference,
		},
	})
}

func (h *DonationHandler) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid request body for verify", zap.Error(err))
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.service.Verify(r.Context(), req.Reference)
	if err != nil {
		status, message := verifyErrorStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Donation verification failed", zap.String("reference", req.Reference), zap.Error(err))
		}
		writeError(w, h.logger, status, message)
		return
	}

	if !res.Paid {
		writeJSON(w, h.logger, http.StatusOK, VerifyFailedResponse{
			Success: false,
			Message: "Transaction " + res.Transaction.Status,
			Transaction: FailedTransaction{
				Reference:       res.Transaction.Reference,
				Status:          res.Transaction.Status,
				GatewayResponse: res.Transaction.GatewayResponse,
			},
		})
		return
	}

	writeJSON(w, h.logger, http.StatusOK, VerifyResponse{
		Success:     true,
		Cached:      res.Cached,
		Transaction: res.Transaction,
	})
}

func initializeErrorStatus(err error) (int, string) {
	var validationErr *domain.ValidationError
	var gatewayErr *paystack.GatewayError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, validationErr.Message
	case errors.Is(err, domain.ErrNotConfigured):
		return http.StatusInternalServerError, "Payment gateway not configured"
	case errors.Is(err, domain.ErrInvalidConfiguration):
		return http.StatusInternalServerError, "Invalid payment configuration"
	case errors.Is(err, domain.ErrGatewayTimeout):
		return http.StatusGatewayTimeout, "Payment gateway timeout. Please try again."
	case errors.As(err, &gatewayErr):
		return gatewayStatus(gatewayErr), orDefault(gatewayErr.Message, "Failed to initialize payment")
	case errors.Is(err, domain.ErrInvalidGatewayResponse):
		return http.StatusInternalServerError, "Invalid response from payment gateway"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func verifyErrorStatus(err error) (int, string) {
	var validationErr *domain.ValidationError
	var gatewayErr *paystack.GatewayError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, validationErr.Message
	case errors.Is(err, domain.ErrNotConfigured):
		return http.StatusInternalServerError, "Server configuration error"
	case errors.Is(err, domain.ErrGatewayTimeout):
		return http.StatusGatewayTimeout, "Verification timeout. Please try again."
	case errors.As(err, &gatewayErr):
		return gatewayStatus(gatewayErr), orDefault(gatewayErr.Message, "Transaction verification failed")
	case errors.Is(err, domain.ErrInvalidTransactionData):
		return http.StatusInternalServerError, "Invalid transaction data received"
	case errors.Is(err, domain.ErrInvalidGatewayResponse):
		return http.StatusInternalServerError, "Invalid response from payment gateway"
	default:
		return http.StatusInternalServerError, "Internal server error during verification"
	}
}

func gatewayStatus(err *paystack.GatewayError) int {
	if err.StatusCode < http.StatusBadRequest {
		return http.StatusBadGateway
	}
	return err.StatusCode
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
