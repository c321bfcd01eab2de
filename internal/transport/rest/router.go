package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/frahmantamala/payment-reconciliation/internal/intent"
	"github.com/frahmantamala/payment-reconciliation/internal/ledger"
	"github.com/frahmantamala/payment-reconciliation/internal/reconciliation"
	"github.com/frahmantamala/payment-reconciliation/internal/transport/middleware"
	"github.com/frahmantamala/payment-reconciliation/internal/transport/swagger"
)

type RouterConfig struct {
	AllowedOrigins     string
	ServiceTokenSecret string
	OpenAPIPath        string
}

func RegisterAllRoutes(
	router *chi.Mux,
	db *sql.DB,
	intentHandler *intent.Handler,
	ledgerHandler *ledger.Handler,
	webhookHandler *reconciliation.WebhookHandler,
	config RouterConfig,
	logger *slog.Logger,
) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.CORSWithOrigins(config.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))

	if config.OpenAPIPath != "" {
		router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, config.OpenAPIPath)
		})
		router.Handle("/swagger/*", swagger.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// provider webhook is unauthenticated here; the provider has no
		// signing scheme and retries on non-2xx
		if webhookHandler != nil {
			r.Post("/provider/webhook", webhookHandler.HandleProviderWebhook)
		}

		// bot-facing API behind the service token
		r.Group(func(pr chi.Router) {
			pr.Use(middleware.ServiceAuth(config.ServiceTokenSecret, logger))

			if intentHandler != nil {
				pr.Route("/intents", func(ir chi.Router) {
					ir.Post("/", intentHandler.CreateIntent)
					ir.Get("/{intentID}", intentHandler.GetIntent)
				})
			}

			if ledgerHandler != nil {
				pr.Get("/accounts/{userRef}/balance", ledgerHandler.GetBalance)
			}
		})
	})
}
