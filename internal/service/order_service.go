package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adiga-code/SimConnect/internal"
	"github.com/adiga-code/SimConnect/internal/metrics"
	"github.com/adiga-code/SimConnect/internal/notify"
	"github.com/adiga-code/SimConnect/internal/provider"
	"github.com/adiga-code/SimConnect/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrCountryNotFound   = errors.New("country not found")
	ErrServiceNotFound   = errors.New("service not found")
	ErrUnavailable       = errors.New("country or service is not available")
	ErrInsufficientFunds = errors.New("there are not enough funds on the account")
	ErrOrderNotFound     = errors.New("order not found")
	ErrProvider          = errors.New("sms provider error")
)

const (
	cancelledMessage = "Order cancelled, funds returned"
	expiredMessage   = "Waiting time is over, funds returned"
	receivedMessage  = "SMS code received"
)

// Scheduler arms a one-shot expiration check for an order.
type Scheduler interface {
	Schedule(orderID internal.OrderID, at time.Time)
}

// OrderService owns the order state machine and the balance escrow. Every
// mutation of an order or of a user's balance goes through here; the
// check-and-transition itself is serialized per order by the storage layer.
type OrderService interface {
	CreateOrder(ctx context.Context, userID internal.UserID, countryID, serviceID string) (internal.Order, error)
	CancelOrder(ctx context.Context, orderID internal.OrderID, userID internal.UserID) (bool, error)
	ExpireOrder(ctx context.Context, orderID internal.OrderID) (bool, error)
	ApplyMessage(ctx context.Context, order internal.Order, text, code string, receivedAt time.Time) (bool, error)
	GetOrder(ctx context.Context, orderID internal.OrderID, userID internal.UserID) (internal.Order, error)
	GetUserOrders(ctx context.Context, userID internal.UserID) ([]internal.Order, error)
	GetOrderMessages(ctx context.Context, orderID internal.OrderID, userID internal.UserID) ([]internal.Message, error)
	GetBalance(ctx context.Context, userID internal.UserID) (internal.Balance, error)
}

type OrderServiceImpl struct {
	Orders       storage.OrderStorage
	Users        storage.UserStorage
	Catalog      storage.CatalogStorage
	Provider     provider.Provider
	Hub          *notify.Hub
	OrderTimeout time.Duration
	Scheduler    Scheduler
}

var _ OrderService = (*OrderServiceImpl)(nil)

func (o *OrderServiceImpl) CreateOrder(ctx context.Context, userID internal.UserID, countryID, serviceID string) (internal.Order, error) {
	country, err := o.Catalog.GetCountry(ctx, countryID)
	if errors.Is(err, storage.ErrNotFound) {
		return internal.Order{}, ErrCountryNotFound
	} else if err != nil {
		return internal.Order{}, err
	}
	svc, err := o.Catalog.GetService(ctx, serviceID)
	if errors.Is(err, storage.ErrNotFound) {
		return internal.Order{}, ErrServiceNotFound
	} else if err != nil {
		return internal.Order{}, err
	}
	if !country.Available || !svc.Available {
		return internal.Order{}, ErrUnavailable
	}
	price := country.PriceFrom
	if svc.PriceFrom > price {
		price = svc.PriceFrom
	}
	balance, err := o.Users.GetBalance(ctx, userID)
	if err != nil {
		return internal.Order{}, err
	}
	if balance.Current < price {
		return internal.Order{}, ErrInsufficientFunds
	}

	// Reserve first: a failed reservation must not touch the balance.
	reserved, err := o.Provider.ReserveNumber(ctx, country.Code, svc.Name)
	if err != nil {
		zap.L().Error("number reservation failed",
			zap.String("country", countryID), zap.String("service", serviceID), zap.Error(err))
		return internal.Order{}, fmt.Errorf("%w: %w", ErrProvider, err)
	}

	now := time.Now()
	order := internal.Order{
		ID:              internal.OrderID(uuid.NewString()),
		PhoneNumber:     reserved.PhoneNumber,
		CountryID:       countryID,
		ServiceID:       serviceID,
		UserID:          userID,
		Price:           price,
		Status:          internal.OrderPending,
		CreatedAt:       now,
		ExpiresAt:       now.Add(o.OrderTimeout),
		ExternalOrderID: reserved.ExternalOrderID,
	}
	err = o.Orders.CreateOrderWithDebit(ctx, order)
	if err != nil {
		// The number is already held upstream; let it go before failing.
		o.releaseNumber(ctx, order)
		if errors.Is(err, storage.ErrInsufficientFunds) {
			return internal.Order{}, ErrInsufficientFunds
		}
		return internal.Order{}, err
	}
	if o.Scheduler != nil {
		o.Scheduler.Schedule(order.ID, order.ExpiresAt)
	}
	metrics.OrdersCreatedTotal.Inc()
	zap.L().Info("order created",
		zap.String("order_id", string(order.ID)),
		zap.String("phone", order.PhoneNumber),
		zap.Int64("price", order.Price))
	return order, nil
}

func (o *OrderServiceImpl) CancelOrder(ctx context.Context, orderID internal.OrderID, userID internal.UserID) (bool, error) {
	// Order ids are uuids; anything else cannot name an existing order.
	if uuid.Validate(string(orderID)) != nil {
		return false, nil
	}
	order, err := o.Orders.GetOrder(ctx, orderID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if order.UserID != userID || order.Status != internal.OrderPending {
		return false, nil
	}
	o.releaseNumber(ctx, order)
	applied, err := o.Orders.FinishOrderWithRefund(ctx, orderID, internal.OrderCancelled)
	if err != nil {
		return false, err
	}
	if !applied {
		// Lost the race against a webhook or the expiry timer.
		return false, nil
	}
	metrics.OrdersFinishedTotal.WithLabelValues(string(internal.OrderCancelled)).Inc()
	zap.L().Info("order cancelled", zap.String("order_id", string(orderID)))
	o.publishStatus(order.UserID, orderID, internal.OrderCancelled, cancelledMessage)
	return true, nil
}

// ExpireOrder is invoked by the per-order timer and by the periodic sweep.
// Both may call it for the same order; only the first to observe pending
// refunds.
func (o *OrderServiceImpl) ExpireOrder(ctx context.Context, orderID internal.OrderID) (bool, error) {
	if uuid.Validate(string(orderID)) != nil {
		return false, nil
	}
	order, err := o.Orders.GetOrder(ctx, orderID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if order.Status != internal.OrderPending {
		return false, nil
	}
	applied, err := o.Orders.FinishOrderWithRefund(ctx, orderID, internal.OrderExpired)
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}
	o.releaseNumber(ctx, order)
	metrics.OrdersFinishedTotal.WithLabelValues(string(internal.OrderExpired)).Inc()
	zap.L().Info("order expired", zap.String("order_id", string(orderID)))
	o.publishStatus(order.UserID, orderID, internal.OrderExpired, expiredMessage)
	return true, nil
}

// ApplyMessage stores the SMS and moves the order to received, capturing the
// escrowed price. Duplicate texts and terminal orders are suppressed, not
// errors: a late webhook after expiry is normal operation. A zero receivedAt
// means the vendor did not supply one and the message is stamped on arrival.
func (o *OrderServiceImpl) ApplyMessage(ctx context.Context, order internal.Order, text, code string, receivedAt time.Time) (bool, error) {
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	message := internal.Message{
		ID:         uuid.NewString(),
		OrderID:    order.ID,
		Text:       text,
		Code:       code,
		ReceivedAt: receivedAt,
	}
	result, err := o.Orders.ApplyMessage(ctx, message)
	if err != nil {
		return false, err
	}
	switch result {
	case storage.TransitionDuplicate:
		zap.L().Info("duplicate message ignored", zap.String("order_id", string(order.ID)))
		return false, nil
	case storage.TransitionNotPending:
		zap.L().Info("message for non-pending order ignored",
			zap.String("order_id", string(order.ID)), zap.String("status", string(order.Status)))
		return false, nil
	}
	metrics.OrdersFinishedTotal.WithLabelValues(string(internal.OrderReceived)).Inc()
	zap.L().Info("sms applied", zap.String("order_id", string(order.ID)), zap.Bool("has_code", code != ""))
	o.publish(order.UserID, internal.EventSMSReceived, internal.SMSReceivedEvent{
		OrderID: order.ID,
		Text:    text,
		Code:    code,
		HasCode: code != "",
	})
	o.publishStatus(order.UserID, order.ID, internal.OrderReceived, receivedMessage)
	return true, nil
}

func (o *OrderServiceImpl) GetOrder(ctx context.Context, orderID internal.OrderID, userID internal.UserID) (internal.Order, error) {
	if uuid.Validate(string(orderID)) != nil {
		return internal.Order{}, ErrOrderNotFound
	}
	order, err := o.Orders.GetOrder(ctx, orderID)
	if errors.Is(err, storage.ErrNotFound) {
		return internal.Order{}, ErrOrderNotFound
	} else if err != nil {
		return internal.Order{}, err
	}
	if order.UserID != userID {
		return internal.Order{}, ErrOrderNotFound
	}
	return order, nil
}

func (o *OrderServiceImpl) GetUserOrders(ctx context.Context, userID internal.UserID) ([]internal.Order, error) {
	return o.Orders.GetOrdersByUser(ctx, userID)
}

func (o *OrderServiceImpl) GetOrderMessages(ctx context.Context, orderID internal.OrderID, userID internal.UserID) ([]internal.Message, error) {
	_, err := o.GetOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	return o.Orders.GetOrderMessages(ctx, orderID)
}

func (o *OrderServiceImpl) GetBalance(ctx context.Context, userID internal.UserID) (internal.Balance, error) {
	return o.Users.GetBalance(ctx, userID)
}

// releaseNumber is best-effort: an upstream release failure must never block
// the refund.
func (o *OrderServiceImpl) releaseNumber(ctx context.Context, order internal.Order) {
	if order.ExternalOrderID == "" {
		return
	}
	err := o.Provider.CancelReservation(ctx, order.ExternalOrderID)
	if err != nil {
		zap.L().Warn("failed to release number at provider",
			zap.String("order_id", string(order.ID)),
			zap.String("external_order_id", order.ExternalOrderID),
			zap.Error(err))
	}
}

func (o *OrderServiceImpl) publishStatus(userID internal.UserID, orderID internal.OrderID, status internal.OrderStatus, message string) {
	o.publish(userID, internal.EventOrderStatusUpdated, internal.OrderStatusEvent{
		OrderID: orderID,
		Status:  status,
		Message: message,
	})
}

func (o *OrderServiceImpl) publish(userID internal.UserID, eventType internal.EventType, data any) {
	if o.Hub == nil {
		return
	}
	o.Hub.Publish(userID, eventType, data)
	metrics.EventsPublishedTotal.Inc()
}
