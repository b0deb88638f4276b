package service

import (
	"context"
	"sync"
	"time"

	"github.com/adiga-code/SimConnect/internal"
	"github.com/adiga-code/SimConnect/internal/storage"
	"go.uber.org/zap"
)

const (
	// DefaultSweepInterval bounds how stale a missed expiration can get:
	// a pending order whose deadline passed while the process was down is
	// expired at most one sweep later.
	DefaultSweepInterval = time.Minute

	expireTimeout = 5 * time.Second
)

// Expirer is the single idempotent operation both producers (per-order
// timers and the sweep) funnel into.
type Expirer interface {
	ExpireOrder(ctx context.Context, orderID internal.OrderID) (bool, error)
}

// ExpiryWorker arms a one-shot timer per pending order and additionally
// sweeps for past-due pending orders on a fixed interval. The sweep catches
// timers lost to a restart; the state check in ExpireOrder makes the overlap
// harmless.
type ExpiryWorker struct {
	expirer       Expirer
	store         storage.OrderStorage
	sweepInterval time.Duration

	mu     sync.Mutex
	timers map[internal.OrderID]*time.Timer
}

func NewExpiryWorker(expirer Expirer, store storage.OrderStorage, sweepInterval time.Duration) *ExpiryWorker {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	return &ExpiryWorker{
		expirer:       expirer,
		store:         store,
		sweepInterval: sweepInterval,
		timers:        make(map[internal.OrderID]*time.Timer),
	}
}

var _ Scheduler = (*ExpiryWorker)(nil)

// Schedule arms the expiration check for one order. Re-scheduling an already
// tracked order resets its timer.
func (w *ExpiryWorker) Schedule(orderID internal.OrderID, at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.timers[orderID]; ok {
		timer.Stop()
	}
	w.timers[orderID] = time.AfterFunc(time.Until(at), func() {
		w.fire(orderID)
	})
}

// Restore re-arms timers for every order that was pending before a restart.
// Past-due orders get a timer that fires immediately.
func (w *ExpiryWorker) Restore(ctx context.Context) error {
	orders, err := w.store.GetPendingOrders(ctx)
	if err != nil {
		return err
	}
	for _, order := range orders {
		w.Schedule(order.ID, order.ExpiresAt)
	}
	if len(orders) > 0 {
		zap.L().Info("restored expiration timers", zap.Int("count", len(orders)))
	}
	return nil
}

func (w *ExpiryWorker) Run(ctx context.Context) {
	sweepTick := time.NewTicker(w.sweepInterval)
	defer sweepTick.Stop()
	for {
		select {
		case <-sweepTick.C:
			w.sweep(ctx)
		case <-ctx.Done():
			w.stopTimers()
			return
		}
	}
}

func (w *ExpiryWorker) fire(orderID internal.OrderID) {
	w.mu.Lock()
	delete(w.timers, orderID)
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), expireTimeout)
	defer cancel()
	_, err := w.expirer.ExpireOrder(ctx, orderID)
	if err != nil {
		// The sweep retries on the next cycle.
		zap.L().Error("expire order error", zap.String("order_id", string(orderID)), zap.Error(err))
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	due, err := w.store.GetDuePendingOrders(ctx, time.Now())
	if err != nil {
		zap.L().Error("get due pending orders error", zap.Error(err))
		return
	}
	for _, order := range due {
		_, err := w.expirer.ExpireOrder(ctx, order.ID)
		if err != nil {
			zap.L().Error("sweep expire order error", zap.String("order_id", string(order.ID)), zap.Error(err))
		}
	}
}

func (w *ExpiryWorker) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, timer := range w.timers {
		timer.Stop()
		delete(w.timers, id)
	}
}
