package http

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	deliveryapp "warehouse-sentinel/internal/delivery/application"
	delivery "warehouse-sentinel/internal/delivery/domain"
)

// WebhookHandler ingests provider delivery-status callbacks. Providers
// authenticate with a shared token; operator JWTs never reach this path.
type WebhookHandler struct {
	service *deliveryapp.Service
	token   string
	logger  zerolog.Logger
}

// NewWebhookHandler constructs a webhook handler.
func NewWebhookHandler(service *deliveryapp.Service, token string, logger zerolog.Logger) (*WebhookHandler, error) {
	if service == nil {
		return nil, errors.New("webhook handler: nil service")
	}
	return &WebhookHandler{service: service, token: token, logger: logger}, nil
}

// ServeHTTP handles POST /webhooks/delivery.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.token != "" && !h.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var update delivery.StatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	if err := h.service.ApplyStatusUpdate(r.Context(), update); err != nil {
		h.logger.Warn().
			Str("provider_message_id", update.MessageID).
			Err(err).
			Msg("status callback rejected")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *WebhookHandler) authorized(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) == 1
}
