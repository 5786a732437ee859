package donations_http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"donations/internal/app/campaigns"
	"donations/internal/domain"
)

type CampaignHandler struct {
	service campaigns.CampaignService
	logger  *zap.Logger
}

func NewCampaignHandler(s campaigns.CampaignService, l *zap.Logger) *CampaignHandler {
	return &CampaignHandler{service: s, logger: l}
}

type CampaignTotalResponse struct {
	Success        bool              `json:"success"`
	Campaign       string            `json:"campaign"`
	CampaignID     string            `json:"campaignId"`
	AmountReceived campaigns.Amounts `json:"amountReceived"`
	Budget         campaigns.Amounts `json:"budget"`
	Outstanding    campaigns.Amounts `json:"outstanding"`
	Progress       float64           `json:"progress"`
	Presets        []float64         `json:"presets,omitempty"`
	LastUpdated    string            `json:"lastUpdated"`
}

type UpdateTotalRequest struct {
	AmountGHS *float64 `json:"amountGHS"`
	Reference string   `json:"reference"`
}

type UpdateTotalResponse struct {
	Success   bool              `json:"success"`
	Applied   bool              `json:"applied"`
	Reference string            `json:"reference"`
	Total     campaigns.Amounts `json:"total"`
}

func (h *CampaignHandler) GetTotalHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Get(r.Context())
	if err != nil {
		h.logger.Error("Failed to get campaign total", zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to get sponsorship total")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, CampaignTotalResponse{
		Success:        true,
		Campaign:       summary.Name,
		CampaignID:     summary.CampaignID,
		AmountReceived: summary.AmountReceived,
		Budget:         summary.Budget,
		Outstanding:    summary.Outstanding,
		Progress:       summary.Progress,
		Presets:        summary.Presets,
		LastUpdated:    summary.UpdatedAt.Format(time.RFC3339),
	})
}

func (h *CampaignHandler) UpdateTotalHandler(w http.ResponseWriter, r *http.Request) {
	var req UpdateTotalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AmountGHS == nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid amount")
		return
	}

	res, err := h.service.Add(r.Context(), *req.AmountGHS, req.Reference)
	if err != nil {
		var validationErr *domain.ValidationError
		switch {
		case errors.As(err, &validationErr):
			writeError(w, h.logger, http.StatusBadRequest, validationErr.Message)
		case errors.Is(err, domain.ErrNegativeTotal):
			writeError(w, h.logger, http.StatusBadRequest, "Campaign total cannot go below zero")
		default:
			h.logger.Error("Failed to update campaign total", zap.Error(err))
			writeError(w, h.logger, http.StatusInternalServerError, "Failed to update sponsorship total")
		}
		return
	}

	writeJSON(w, h.logger, http.StatusOK, UpdateTotalResponse{
		Success:   true,
		Applied:   res.Applied,
		Reference: res.Reference,
		Total:     res.Total,
	})
}
