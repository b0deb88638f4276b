package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adiga-code/SimConnect/internal"
	"github.com/adiga-code/SimConnect/internal/metrics"
	"github.com/adiga-code/SimConnect/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrMalformedPayload marks a callback that could not be parsed at all. It is
// terminal for that single callback only.
var ErrMalformedPayload = errors.New("malformed webhook payload")

// webhookData is the normalized shape every vendor payload is reduced to
// before touching the lifecycle engine.
type webhookData struct {
	OrderRef    string
	PhoneNumber string
	Text        string
	Code        string
	ReceivedAt  time.Time
}

// Field aliases accepted for the generic payload shape. Per-vendor payloads
// differ only in field names, so translation is a lookup across aliases.
var (
	orderRefFields   = []string{"order_id", "orderId", "id", "external_order_id", "activation_id", "activationId"}
	phoneFields      = []string{"phone_number", "phoneNumber", "phone", "number"}
	textFields       = []string{"message_text", "text", "message", "sms"}
	codeFields       = []string{"code"}
	receivedAtFields = []string{"received_at", "receivedAt", "timestamp", "date"}
)

var knownVendors = map[string]bool{
	"smsactivate": true,
	"fake":        true,
}

// WebhookService turns untrusted vendor callbacks into validated state
// transitions. It never mutates orders itself; every transition goes through
// the lifecycle engine.
type WebhookService interface {
	ProcessWebhook(ctx context.Context, vendorName string, payload []byte) (bool, error)
}

type WebhookServiceImpl struct {
	Orders       storage.OrderStorage
	OrderService OrderService
}

var _ WebhookService = (*WebhookServiceImpl)(nil)

// ProcessWebhook reports whether the callback applied a transition. A
// callback that cannot be matched to a pending order is dropped without
// error: acknowledging it avoids vendor retry storms.
func (w *WebhookServiceImpl) ProcessWebhook(ctx context.Context, vendorName string, payload []byte) (bool, error) {
	if !knownVendors[vendorName] {
		// Unknown vendors get the generic field translation.
		zap.L().Info("webhook from unknown vendor", zap.String("vendor", vendorName))
	}
	data, err := parseWebhookPayload(vendorName, payload)
	if err != nil {
		metrics.WebhooksRejectedTotal.WithLabelValues("malformed").Inc()
		zap.L().Warn("malformed webhook payload", zap.String("vendor", vendorName), zap.Error(err))
		return false, err
	}

	order, err := w.findOrder(ctx, data)
	if errors.Is(err, storage.ErrNotFound) {
		metrics.WebhooksRejectedTotal.WithLabelValues("order_not_found").Inc()
		zap.L().Warn("webhook does not match any order",
			zap.String("vendor", vendorName),
			zap.String("order_ref", data.OrderRef),
			zap.String("phone", data.PhoneNumber))
		return false, nil
	} else if err != nil {
		return false, err
	}

	applied, err := w.OrderService.ApplyMessage(ctx, order, data.Text, data.Code, data.ReceivedAt)
	if err != nil {
		return false, err
	}
	if applied {
		metrics.WebhooksAcceptedTotal.Inc()
	} else {
		metrics.WebhooksRejectedTotal.WithLabelValues("suppressed").Inc()
	}
	return applied, nil
}

// parseWebhookPayload runs the stateless part of the pipeline: vendor field
// translation, phone validation, text sanitizing, and code extraction.
func parseWebhookPayload(vendorName string, payload []byte) (webhookData, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return webhookData{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	data := webhookData{
		OrderRef:    firstStringField(raw, orderRefFields),
		PhoneNumber: firstStringField(raw, phoneFields),
		Text:        firstStringField(raw, textFields),
		Code:        firstStringField(raw, codeFields),
	}
	if data.PhoneNumber == "" {
		return webhookData{}, fmt.Errorf("%w: no phone number", ErrMalformedPayload)
	}
	if data.Text == "" {
		return webhookData{}, fmt.Errorf("%w: no message text", ErrMalformedPayload)
	}
	normalized, ok := NormalizePhoneNumber(data.PhoneNumber)
	if !ok {
		return webhookData{}, fmt.Errorf("%w: invalid phone number %q", ErrMalformedPayload, data.PhoneNumber)
	}
	data.PhoneNumber = normalized
	if stamp := firstStringField(raw, receivedAtFields); stamp != "" {
		if parsed, err := time.Parse(time.RFC3339, stamp); err == nil {
			data.ReceivedAt = parsed
		}
	}
	data.Text = SanitizeMessageText(data.Text)
	// A structured vendor code wins over text mining.
	if !ValidCode(data.Code) {
		data.Code = ExtractVerificationCode(data.Text)
	}
	return data, nil
}

// findOrder resolves the callback to an order: exact id first, then the
// vendor's external id, then the first pending order on the phone number.
// The phone fallback is best-effort only.
func (w *WebhookServiceImpl) findOrder(ctx context.Context, data webhookData) (internal.Order, error) {
	if data.OrderRef != "" {
		// The id column is a uuid. A vendor activation id would not parse
		// there, so only uuid-shaped refs get the exact lookup.
		if uuid.Validate(data.OrderRef) == nil {
			order, err := w.Orders.GetOrder(ctx, internal.OrderID(data.OrderRef))
			if err == nil {
				return order, nil
			}
			if !errors.Is(err, storage.ErrNotFound) {
				return internal.Order{}, err
			}
		}
		order, err := w.Orders.GetOrderByExternalID(ctx, data.OrderRef)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return internal.Order{}, err
		}
	}
	if data.PhoneNumber != "" {
		return w.Orders.GetPendingOrderByPhone(ctx, data.PhoneNumber)
	}
	return internal.Order{}, storage.ErrNotFound
}

// firstStringField returns the first non-empty alias value, stringifying
// numeric ids the way vendors tend to send them.
func firstStringField(raw map[string]any, fields []string) string {
	for _, field := range fields {
		value, ok := raw[field]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}
