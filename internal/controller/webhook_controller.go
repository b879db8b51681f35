package controller

import (
	"errors"
	"io"
	"net/http"

	domainErrors "github.com/cassiomorais/paysecure/internal/domain/errors"
	"github.com/cassiomorais/paysecure/internal/webhook"
)

// WebhookController receives gateway webhook deliveries.
type WebhookController struct {
	dispatcher *webhook.Dispatcher
}

func NewWebhookController(dispatcher *webhook.Dispatcher) *WebhookController {
	return &WebhookController{dispatcher: dispatcher}
}

// Receive handles POST /api/v1/webhooks/payment. The raw body is passed to the
// dispatcher untouched since the signature covers its exact bytes.
func (h *WebhookController) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, domainErrors.NewValidationError("body", "webhook body too large"))
			return
		}
		writeError(w, r, domainErrors.NewValidationError("body", "unreadable body"))
		return
	}

	res, err := h.dispatcher.Dispatch(r.Context(), body, r.Header)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FromWebhookResult(res))
}
