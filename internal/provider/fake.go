package provider

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	fakePrice        = 1500
	fakeMessageDelay = 10 * time.Second
	fakeSMSText      = "Your verification code: 48213"
)

type fakeOrder struct {
	phoneNumber string
	cancelled   bool
	createdAt   time.Time
	timer       *time.Timer
}

// Fake is the deterministic in-memory vendor used by integration tests and
// local runs without network access. It fabricates a number immediately and
// emits one synthetic verification SMS after MessageDelay, either through the
// OnMessage callback (wire it to the webhook pipeline) or through
// PollMessages.
type Fake struct {
	// OnMessage, when set, receives (externalOrderID, phoneNumber, text)
	// for every synthetic SMS.
	OnMessage    func(externalOrderID, phoneNumber, text string)
	MessageDelay time.Duration

	mu     sync.Mutex
	seq    int
	orders map[string]*fakeOrder
}

var _ Provider = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{
		MessageDelay: fakeMessageDelay,
		orders:       make(map[string]*fakeOrder),
	}
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) GetAvailableCount(ctx context.Context, countryCode, serviceCode string) (int, error) {
	return 100, nil
}

func (f *Fake) ReserveNumber(ctx context.Context, countryCode, serviceCode string) (ReserveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	externalID := fmt.Sprintf("fake_order_%d", f.seq)
	phone := fmt.Sprintf("+7900%07d", f.seq)
	order := &fakeOrder{phoneNumber: phone, createdAt: time.Now()}
	f.orders[externalID] = order
	order.timer = time.AfterFunc(f.MessageDelay, func() {
		f.deliverMessage(externalID)
	})
	return ReserveResult{PhoneNumber: phone, ExternalOrderID: externalID, Price: fakePrice}, nil
}

func (f *Fake) PollMessages(ctx context.Context, externalOrderID string) ([]SMS, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[externalOrderID]
	if !ok {
		return nil, &Error{Code: "NO_ACTIVATION", Message: "unknown order", Retryable: false}
	}
	if order.cancelled || time.Since(order.createdAt) < f.MessageDelay {
		return nil, nil
	}
	return []SMS{{Text: fakeSMSText, ReceivedAt: order.createdAt.Add(f.MessageDelay)}}, nil
}

func (f *Fake) CancelReservation(ctx context.Context, externalOrderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[externalOrderID]
	if !ok {
		// Already finished on the vendor side counts as success.
		return nil
	}
	order.cancelled = true
	if order.timer != nil {
		order.timer.Stop()
	}
	return nil
}

func (f *Fake) GetBalance(ctx context.Context) (float64, error) {
	return 100.50, nil
}

func (f *Fake) deliverMessage(externalOrderID string) {
	f.mu.Lock()
	order, ok := f.orders[externalOrderID]
	if !ok || order.cancelled {
		f.mu.Unlock()
		return
	}
	callback := f.OnMessage
	phone := order.phoneNumber
	f.mu.Unlock()
	if callback != nil {
		callback(externalOrderID, phone, fakeSMSText)
	}
}
