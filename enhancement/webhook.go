package enhancement

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/storage"
)

// SecretHeader carries the shared webhook secret.
const SecretHeader = "X-Webhook-Secret"

// WebhookOption configures the webhook handler.
type WebhookOption func(*webhook)

// WithSecret requires every request to present secret in SecretHeader.
func WithSecret(secret string) WebhookOption {
	return func(h *webhook) {
		h.secret = secret
	}
}

// WithWebhookLogger sets the logger used by the handler.
func WithWebhookLogger(logger *slog.Logger) WebhookOption {
	return func(h *webhook) {
		h.logger = logger
	}
}

type webhook struct {
	manager *Manager
	secret  string
	logger  *slog.Logger
}

// NewWebhookHandler returns a router that accepts status reports at
// POST /batches/{jobID}/status.
func NewWebhookHandler(manager *Manager, opts ...WebhookOption) http.Handler {
	h := &webhook{manager: manager, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "enhancement-webhook")

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/batches/{jobID}/status", h.handleStatus)
	return r
}

func (h *webhook) handleStatus(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(SecretHeader)), []byte(h.secret)) != 1 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	jobID := chi.URLParam(r, "jobID")

	var report StatusReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	job, err := h.manager.Apply(r.Context(), jobID, report)
	switch {
	case errors.Is(err, core.ErrUnknownJobStatus):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "job not found", http.StatusNotFound)
		return
	case err != nil:
		h.logger.Error("applying status report failed", "job_id", jobID, "error", err)
		http.Error(w, "failed to apply status", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(job)
}
