package service

import (
	"context"
	"testing"
	"time"

	"github.com/adiga-code/SimConnect/internal"
	"github.com/adiga-code/SimConnect/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWebhookService(t *testing.T) (*WebhookServiceImpl, internal.Order, *memUserStorage) {
	t.Helper()
	users := newMemUserStorage(map[internal.UserID]int64{1: 2000})
	orders := newMemOrderStorage(users)
	orderService := &OrderServiceImpl{
		Orders:       orders,
		Users:        users,
		Catalog:      newMemCatalogStorage(),
		Provider:     &stubProvider{phoneNumber: "+79161234567", externalID: "ext-1"},
		Hub:          notify.NewHub(),
		OrderTimeout: 15 * time.Minute,
	}
	order, err := orderService.CreateOrder(context.Background(), 1, "id", "tg")
	require.NoError(t, err)
	return &WebhookServiceImpl{Orders: orders, OrderService: orderService}, order, users
}

func TestProcessWebhookByOrderID(t *testing.T) {
	svc, order, _ := newTestWebhookService(t)

	payload := []byte(`{"order_id": "` + string(order.ID) + `", "phone": "+79161234567", "text": "Your code: 48213"}`)
	accepted, err := svc.ProcessWebhook(context.Background(), "smsactivate", payload)
	require.NoError(t, err)
	assert.True(t, accepted)

	got, err := svc.Orders.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, internal.OrderReceived, got.Status)

	messages, err := svc.Orders.GetOrderMessages(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "48213", messages[0].Code)
	assert.Equal(t, "Your code: 48213", messages[0].Text)
}

func TestProcessWebhookByExternalID(t *testing.T) {
	svc, order, _ := newTestWebhookService(t)

	payload := []byte(`{"activation_id": "ext-1", "phone": "+79161234567", "text": "48213 is your code"}`)
	accepted, err := svc.ProcessWebhook(context.Background(), "smsactivate", payload)
	require.NoError(t, err)
	assert.True(t, accepted)

	got, err := svc.Orders.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, internal.OrderReceived, got.Status)
}

func TestProcessWebhookByPhoneFallback(t *testing.T) {
	svc, order, _ := newTestWebhookService(t)

	// Vendor formatting is normalized before the lookup.
	payload := []byte(`{"phone": "+7 916 123-45-67", "text": "Your code: 48213"}`)
	accepted, err := svc.ProcessWebhook(context.Background(), "smsactivate", payload)
	require.NoError(t, err)
	assert.True(t, accepted)

	got, err := svc.Orders.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, internal.OrderReceived, got.Status)
}

func TestProcessWebhookStructuredCodeWins(t *testing.T) {
	svc, order, _ := newTestWebhookService(t)

	payload := []byte(`{"order_id": "` + string(order.ID) + `", "phone": "+79161234567", "text": "Your code: 48213", "code": "99999"}`)
	accepted, err := svc.ProcessWebhook(context.Background(), "smsactivate", payload)
	require.NoError(t, err)
	require.True(t, accepted)

	messages, err := svc.Orders.GetOrderMessages(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "99999", messages[0].Code)
}

func TestProcessWebhookMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{
			name:    "Not JSON",
			payload: "not json",
		},
		{
			name:    "No phone",
			payload: `{"text": "Your code: 48213"}`,
		},
		{
			name:    "Order reference without phone",
			payload: `{"order_id": "some-id", "text": "Your code: 48213"}`,
		},
		{
			name:    "No text",
			payload: `{"order_id": "some-id", "phone": "+79161234567"}`,
		},
		{
			name:    "Invalid phone",
			payload: `{"phone": "12345", "text": "Your code: 48213"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newTestWebhookService(t)

			accepted, err := svc.ProcessWebhook(context.Background(), "smsactivate", []byte(tt.payload))
			assert.ErrorIs(t, err, ErrMalformedPayload)
			assert.False(t, accepted)
		})
	}
}

func TestProcessWebhookUnmatchedOrder(t *testing.T) {
	svc, _, _ := newTestWebhookService(t)

	// A vendor activation id is not a uuid; the lookup must still fall
	// through the whole chain without failing the exact-id query.
	payload := []byte(`{"order_id": "635486", "phone": "+79990000000", "text": "Your code: 48213"}`)
	accepted, err := svc.ProcessWebhook(context.Background(), "smsactivate", payload)
	require.NoError(t, err)
	assert.False(t, accepted)
}

func TestProcessWebhookNonUUIDRefMatchesExternalID(t *testing.T) {
	svc, order, _ := newTestWebhookService(t)

	// The fake vendor posts its own order id, which never parses as a uuid.
	payload := []byte(`{"external_order_id": "ext-1", "phone": "+79161234567", "text": "Your code: 48213"}`)
	accepted, err := svc.ProcessWebhook(context.Background(), "fake", payload)
	require.NoError(t, err)
	assert.True(t, accepted)

	got, err := svc.Orders.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, internal.OrderReceived, got.Status)
}

func TestProcessWebhookVendorTimestamp(t *testing.T) {
	svc, order, _ := newTestWebhookService(t)

	stamp := time.Date(2026, 8, 30, 12, 15, 0, 0, time.UTC)
	payload := []byte(`{"order_id": "` + string(order.ID) + `", "phone": "+79161234567", ` +
		`"text": "Your code: 48213", "received_at": "` + stamp.Format(time.RFC3339) + `"}`)
	accepted, err := svc.ProcessWebhook(context.Background(), "smsactivate", payload)
	require.NoError(t, err)
	require.True(t, accepted)

	messages, err := svc.Orders.GetOrderMessages(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.True(t, messages[0].ReceivedAt.Equal(stamp))
}

func TestProcessWebhookDuplicateSuppressed(t *testing.T) {
	svc, order, users := newTestWebhookService(t)

	payload := []byte(`{"order_id": "` + string(order.ID) + `", "phone": "+79161234567", "text": "Your  code:  48213"}`)
	accepted, err := svc.ProcessWebhook(context.Background(), "smsactivate", payload)
	require.NoError(t, err)
	require.True(t, accepted)

	// The retry differs only in whitespace; sanitizing makes it byte-identical.
	retry := []byte(`{"order_id": "` + string(order.ID) + `", "phone": "+79161234567", "text": "Your code: 48213"}`)
	accepted, err = svc.ProcessWebhook(context.Background(), "smsactivate", retry)
	require.NoError(t, err)
	assert.False(t, accepted)

	messages, err := svc.Orders.GetOrderMessages(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Len(t, messages, 1)

	// The captured price was not refunded by the retry.
	balance, err := users.GetBalance(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance.Current)
}

func TestProcessWebhookWithoutCodeStillStores(t *testing.T) {
	svc, order, _ := newTestWebhookService(t)

	payload := []byte(`{"order_id": "` + string(order.ID) + `", "phone": "+79161234567", "text": "Welcome, call 123"}`)
	accepted, err := svc.ProcessWebhook(context.Background(), "smsactivate", payload)
	require.NoError(t, err)
	assert.True(t, accepted)

	messages, err := svc.Orders.GetOrderMessages(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Empty(t, messages[0].Code)
}
