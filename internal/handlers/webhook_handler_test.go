package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/adiga-code/SimConnect/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestWebhook(t *testing.T) {
	tests := []struct {
		name           string
		payload        string
		webhookService *mockWebhookService
		wantStatus     int
		wantAccepted   bool
	}{
		{
			name:           "Matched callback",
			payload:        "{\"order_id\": \"order-1\",\"text\": \"Your code is 48213\"}",
			webhookService: &mockWebhookService{accepted: true},
			wantStatus:     200,
			wantAccepted:   true,
		},
		{
			name:           "Unmatched callback is acknowledged",
			payload:        "{\"phone\": \"+79161234567\",\"text\": \"Your code is 48213\"}",
			webhookService: &mockWebhookService{accepted: false},
			wantStatus:     200,
		},
		{
			name:           "Malformed payload",
			payload:        "not json",
			webhookService: &mockWebhookService{err: fmt.Errorf("%w: bad json", service.ErrMalformedPayload)},
			wantStatus:     400,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(nil, &mockOrderService{}, tt.webhookService)

			request := httptest.NewRequest(http.MethodPost, "/api/webhook/sms/smsactivate", bytes.NewBufferString(tt.payload))
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, request)

			assert.Equal(t, tt.wantStatus, resp.Code)
			if resp.Code == http.StatusOK {
				var got WebhookResponse
				require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
				assert.Equal(t, tt.wantAccepted, got.Accepted)
			}
		})
	}
}
