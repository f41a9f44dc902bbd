// Package handler is the serverless entry point. The platform calls Handler
// once per request and may keep the process warm between requests, so the
// coordinator and router live for the life of the process.
package handler

import (
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"github.com/tinyland-inc/sellerbot/pkg/app"
	"github.com/tinyland-inc/sellerbot/pkg/config"
	"github.com/tinyland-inc/sellerbot/pkg/health"
	"github.com/tinyland-inc/sellerbot/pkg/logger"
	"github.com/tinyland-inc/sellerbot/pkg/webhook"
)

var (
	once   sync.Once
	router *mux.Router
)

func setup() {
	hook, err := config.WebhookFromEnv()
	if err != nil {
		logger.ErrorCF("api", "Webhook settings unreadable, using defaults", map[string]any{"error": err})
		hook = config.DefaultConfig().Webhook
	}

	coordinator := app.NewCoordinator(config.LoadFromEnv, app.Options{})
	router = webhook.NewRouter(hook.Path, coordinator, webhook.WithSecretToken(hook.SecretToken))
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		health.WriteJSON(w, http.StatusNotFound, webhook.Response{Status: "error", Message: "not found"})
	})
}

// Handler serves the webhook route plus /ping, /health and /.
func Handler(w http.ResponseWriter, r *http.Request) {
	once.Do(setup)
	router.ServeHTTP(w, r)
}
