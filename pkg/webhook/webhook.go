// Package webhook is the HTTP entry point for Telegram updates.
package webhook

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tinyland-inc/sellerbot/pkg/health"
	"github.com/tinyland-inc/sellerbot/pkg/logger"
	"github.com/tinyland-inc/sellerbot/pkg/session"
)

const (
	// SecretHeader carries the secret_token given to setWebhook.
	SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

	defaultMaxBody = 1 << 20
)

// Dispatcher consumes one raw update. *session.Coordinator implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, raw []byte) error
}

type Response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

var (
	okResponse          = Response{Status: "ok"}
	invalidJSONResponse = Response{Status: "error", Message: "invalid json"}
)

type Option func(*handler)

// WithSecretToken rejects requests whose secret header does not match token.
// An empty token disables the check.
func WithSecretToken(token string) Option {
	return func(h *handler) { h.secret = token }
}

func WithMaxBodyBytes(n int64) Option {
	return func(h *handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

type handler struct {
	dispatcher Dispatcher
	secret     string
	maxBody    int64
}

// NewHandler answers GET with a health status and feeds POST bodies to d.
func NewHandler(d Dispatcher, opts ...Option) http.Handler {
	h := &handler{dispatcher: d, maxBody: defaultMaxBody}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		health.WriteJSON(w, http.StatusOK, okResponse)
		return
	case http.MethodPost:
	default:
		w.Header().Set("Allow", "GET, HEAD, POST")
		health.WriteJSON(w, http.StatusMethodNotAllowed, Response{Status: "error", Message: "method not allowed"})
		return
	}

	if h.secret != "" {
		got := r.Header.Get(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			logger.WarnCF("webhook", "Rejected update with bad secret token", map[string]any{
				"remote": r.RemoteAddr,
			})
			health.WriteJSON(w, http.StatusUnauthorized, Response{Status: "error", Message: "unauthorized"})
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		logger.WarnCF("webhook", "Could not read update body", map[string]any{"error": err})
		health.WriteJSON(w, http.StatusBadRequest, invalidJSONResponse)
		return
	}

	if err := h.dispatcher.Dispatch(r.Context(), body); err != nil {
		if errors.Is(err, session.ErrMalformedEvent) {
			health.WriteJSON(w, http.StatusBadRequest, invalidJSONResponse)
			return
		}
		logger.ErrorCF("webhook", "Update processing failed", map[string]any{"error": err})
		health.WriteJSON(w, http.StatusInternalServerError, Response{Status: "error", Message: err.Error()})
		return
	}

	health.WriteJSON(w, http.StatusOK, okResponse)
}

// Register mounts the webhook at path together with /ping, an index at / and
// /health unless the router already serves one.
func Register(router *mux.Router, path string, d Dispatcher, opts ...Option) {
	router.Handle(path, NewHandler(d, opts...)).Methods(http.MethodGet, http.MethodHead, http.MethodPost)

	router.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "pong")
	}).Methods(http.MethodGet, http.MethodHead)

	if router.Get(health.RouteHealth) == nil {
		router.HandleFunc("/health", health.NewChecker().LivenessHandler()).
			Methods(http.MethodGet, http.MethodHead).
			Name(health.RouteHealth)
	}

	router.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		health.WriteJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "sellerbot",
			"webhook": path,
		})
	}).Methods(http.MethodGet, http.MethodHead)
}

// NewRouter is a standalone router for serverless entry points.
func NewRouter(path string, d Dispatcher, opts ...Option) *mux.Router {
	router := mux.NewRouter()
	Register(router, path, d, opts...)
	return router
}
