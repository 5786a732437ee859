package donations_http

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	kafka_infra "donations/internal/infrastructure/kafka"
)

// AnalyticsHandler accepts client-side events and forwards them to the analytics topic.
type AnalyticsHandler struct {
	producer kafka_infra.Producer
	topic    string
	logger   *zap.Logger
}

func NewAnalyticsHandler(p kafka_infra.Producer, topic string, l *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{producer: p, topic: topic, logger: l}
}

func (h *AnalyticsHandler) TrackHandler(w http.ResponseWriter, r *http.Request) {
	var event map[string]any
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid event structure")
		return
	}
	name, ok := event["event"].(string)
	if !ok || name == "" || isEmpty(event["timestamp"]) {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid event structure")
		return
	}

	h.logger.Info("Analytics event", zap.String("event", name), zap.Any("payload", event))

	payload, err := json.Marshal(event)
	if err != nil {
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to track event")
		return
	}
	if err := h.producer.Produce(r.Context(), name, h.topic, payload); err != nil {
		h.logger.Error("Failed to publish analytics event", zap.String("event", name), zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to track event")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]bool{"success": true})
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case float64:
		return t == 0
	case bool:
		return !t
	default:
		return false
	}
}
