package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/adiga-code/SimConnect/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type WebhookHandler struct {
	webhookService service.WebhookService
}

type WebhookResponse struct {
	Accepted bool `json:"accepted"`
}

// IngestWebhook takes a vendor callback and feeds it through the ingestion
// pipeline. Only payloads that cannot be parsed at all are rejected; a parsed
// callback that matches no pending order is acknowledged with accepted=false
// so the vendor does not keep retrying it.
func (w *WebhookHandler) IngestWebhook(writer http.ResponseWriter, req *http.Request) {
	vendor := chi.URLParam(req, "vendor")
	payload, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return
	}
	accepted, err := w.webhookService.ProcessWebhook(req.Context(), vendor, payload)
	if errors.Is(err, service.ErrMalformedPayload) {
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return
	} else if err != nil {
		zap.L().Error("webhook processing error", zap.String("vendor", vendor), zap.Error(err))
		http.Error(writer, "Internal server error", http.StatusInternalServerError)
		return
	}
	marshalResponse(writer, http.StatusOK, WebhookResponse{Accepted: accepted})
}
