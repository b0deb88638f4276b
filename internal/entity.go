package internal

import "time"

type UserID int

type Token string

type OrderID string

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderReceived  OrderStatus = "received"
	OrderExpired   OrderStatus = "expired"
	OrderCancelled OrderStatus = "cancelled"
)

// IsTerminal reports whether the status has no outgoing transitions.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderReceived || s == OrderExpired || s == OrderCancelled
}

// Order is one rental of a virtual phone number. Price is in kopecks and is
// fixed at creation. ExternalOrderID is the vendor-side identifier used to
// correlate webhooks; once set it is never changed.
type Order struct {
	ID              OrderID     `json:"id"`
	PhoneNumber     string      `json:"phone_number"`
	CountryID       string      `json:"country_id"`
	ServiceID       string      `json:"service_id"`
	UserID          UserID      `json:"-"`
	Price           int64       `json:"price"`
	Status          OrderStatus `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
	ExpiresAt       time.Time   `json:"expires_at"`
	ExternalOrderID string      `json:"-"`
}

// Message is one SMS received for an order. Code is empty when no
// verification code could be extracted from the text.
type Message struct {
	ID         string    `json:"id"`
	OrderID    OrderID   `json:"order_id"`
	Text       string    `json:"text"`
	Code       string    `json:"code,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

type Country struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	PriceFrom int64  `json:"price_from"`
	Available bool   `json:"available"`
}

type Service struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	PriceFrom int64  `json:"price_from"`
	Available bool   `json:"available"`
}

type Balance struct {
	Current int64 `json:"current"`
}

type EventType string

const (
	EventOrderStatusUpdated EventType = "order_status_updated"
	EventSMSReceived        EventType = "sms_received"
)

type OrderStatusEvent struct {
	OrderID OrderID     `json:"order_id"`
	Status  OrderStatus `json:"status"`
	Message string      `json:"message"`
}

type SMSReceivedEvent struct {
	OrderID OrderID `json:"order_id"`
	Text    string  `json:"text"`
	Code    string  `json:"code"`
	HasCode bool    `json:"has_code"`
}
