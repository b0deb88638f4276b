package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// ReserveResult is a number reservation confirmed by the vendor. Price may be
// zero when the vendor does not report a cost.
type ReserveResult struct {
	PhoneNumber     string
	ExternalOrderID string
	Price           int64
}

type SMS struct {
	Text       string
	ReceivedAt time.Time
}

// Provider is the uniform contract over upstream virtual-number vendors.
// Implementations normalize vendor-specific status and error vocabularies
// into *Error so callers never branch on vendor identity.
type Provider interface {
	Name() string
	GetAvailableCount(ctx context.Context, countryCode, serviceCode string) (int, error)
	ReserveNumber(ctx context.Context, countryCode, serviceCode string) (ReserveResult, error)
	// PollMessages is the manual-refresh path; webhooks are primary.
	PollMessages(ctx context.Context, externalOrderID string) ([]SMS, error)
	// CancelReservation is best-effort: vendors answering "already finished"
	// or "already cancelled" are treated as success.
	CancelReservation(ctx context.Context, externalOrderID string) error
	GetBalance(ctx context.Context) (float64, error)
}

// Error is a normalized upstream failure. Retryable failures are transient
// vendor conditions (no numbers right now, connectivity); non-retryable ones
// are account or request problems.
type Error struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider error %s: %s", e.Code, e.Message)
}

type Config struct {
	APIKey string
	APIURL string
	Client *http.Client
}

// New resolves the configured vendor implementation once at startup.
func New(name string, cfg Config) (Provider, error) {
	switch name {
	case "smsactivate":
		return NewSMSActivate(cfg), nil
	case "fake":
		return NewFake(), nil
	default:
		return nil, fmt.Errorf("unknown sms provider: %s", name)
	}
}
