package donations_http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"donations/internal/app/campaigns"
	"donations/internal/app/donations"
	"donations/internal/handler/http/middlewares"
	kafka_infra "donations/internal/infrastructure/kafka"
)

type RouterDeps struct {
	Donations      donations.DonationService
	Campaigns      campaigns.CampaignService
	Analytics      kafka_infra.Producer
	AnalyticsTopic string
	RateLimiter    *middlewares.RateLimiter
	AdminJWTSecret string
}

func RegisterRoutes(r chi.Router, deps RouterDeps, l *zap.Logger) {
	donationHandler := NewDonationHandler(deps.Donations, l.With(zap.String("component", "DonationHTTPHandler")))
	webhookHandler := NewWebhookHandler(deps.Donations, l.With(zap.String("component", "WebhookHTTPHandler")))
	campaignHandler := NewCampaignHandler(deps.Campaigns, l.With(zap.String("component", "CampaignHTTPHandler")))
	analyticsHandler := NewAnalyticsHandler(deps.Analytics, deps.AnalyticsTopic, l.With(zap.String("component", "AnalyticsHTTPHandler")))

	limit := func(next http.Handler) http.Handler { return next }
	if deps.RateLimiter != nil {
		limit = deps.RateLimiter.Middleware
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Donations service is healthy!"))
	})

	r.Route("/api", func(r chi.Router) {
		r.With(limit).Post("/donations/initialize", donationHandler.InitializeHandler)

		r.Route("/paystack", func(r chi.Router) {
			r.With(limit).Post("/verify", donationHandler.VerifyHandler)
			r.Post("/webhook", webhookHandler.PaystackWebhookHandler)
		})

		r.Route("/sponsorship/total", func(r chi.Router) {
			r.Get("/", campaignHandler.GetTotalHandler)
			r.With(middlewares.AdminJWT(deps.AdminJWTSecret)).Post("/", campaignHandler.UpdateTotalHandler)
		})

		r.With(limit).Post("/analytics/track", analyticsHandler.TrackHandler)
	})
}
