package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adiga-code/SimConnect/internal"
	"github.com/adiga-code/SimConnect/internal/provider"
	"github.com/adiga-code/SimConnect/internal/storage"
	"github.com/google/uuid"
)

type memUserStorage struct {
	mu       sync.Mutex
	balances map[internal.UserID]int64
}

func newMemUserStorage(balances map[internal.UserID]int64) *memUserStorage {
	return &memUserStorage{balances: balances}
}

func (m *memUserStorage) AddUser(_ context.Context, _ string, _ string) (internal.UserID, error) {
	return 0, nil
}

func (m *memUserStorage) GetUser(_ context.Context, _ string) (internal.UserID, string, error) {
	return 0, "", storage.ErrNotFound
}

func (m *memUserStorage) GetBalance(_ context.Context, userID internal.UserID) (internal.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[userID]
	if !ok {
		return internal.Balance{}, storage.ErrNotFound
	}
	return internal.Balance{Current: balance}, nil
}

func (m *memUserStorage) AdjustBalance(_ context.Context, userID internal.UserID, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] += delta
	return nil
}

func (m *memUserStorage) Close() {
}

var _ storage.UserStorage = (*memUserStorage)(nil)

type memCatalogStorage struct {
	countries map[string]internal.Country
	services  map[string]internal.Service
}

func newMemCatalogStorage() *memCatalogStorage {
	return &memCatalogStorage{
		countries: map[string]internal.Country{
			"ru": {ID: "ru", Name: "Russia", Code: "7", PriceFrom: 2000, Available: true},
			"id": {ID: "id", Name: "Indonesia", Code: "62", PriceFrom: 1000, Available: true},
			"xx": {ID: "xx", Name: "Closed", Code: "1", PriceFrom: 500, Available: false},
		},
		services: map[string]internal.Service{
			"tg": {ID: "tg", Name: "Telegram", PriceFrom: 1500, Available: true},
			"vk": {ID: "vk", Name: "VK", PriceFrom: 1000, Available: true},
		},
	}
}

func (m *memCatalogStorage) GetCountry(_ context.Context, id string) (internal.Country, error) {
	country, ok := m.countries[id]
	if !ok {
		return internal.Country{}, storage.ErrNotFound
	}
	return country, nil
}

func (m *memCatalogStorage) GetService(_ context.Context, id string) (internal.Service, error) {
	svc, ok := m.services[id]
	if !ok {
		return internal.Service{}, storage.ErrNotFound
	}
	return svc, nil
}

func (m *memCatalogStorage) Close() {
}

var _ storage.CatalogStorage = (*memCatalogStorage)(nil)

// memOrderStorage mirrors the transactional semantics of the database
// implementation: debit rolls back when the insert cannot happen, refund and
// capture are decided under the same lock as the status check.
type memOrderStorage struct {
	mu       sync.Mutex
	users    *memUserStorage
	orders   map[internal.OrderID]internal.Order
	messages map[internal.OrderID][]internal.Message
}

func newMemOrderStorage(users *memUserStorage) *memOrderStorage {
	return &memOrderStorage{
		users:    users,
		orders:   make(map[internal.OrderID]internal.Order),
		messages: make(map[internal.OrderID][]internal.Message),
	}
}

func (m *memOrderStorage) CreateOrderWithDebit(_ context.Context, order internal.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users.mu.Lock()
	defer m.users.mu.Unlock()
	if m.users.balances[order.UserID] < order.Price {
		return storage.ErrInsufficientFunds
	}
	m.users.balances[order.UserID] -= order.Price
	m.orders[order.ID] = order
	return nil
}

func (m *memOrderStorage) GetOrder(_ context.Context, id internal.OrderID) (internal.Order, error) {
	// The real id column is a uuid; a non-uuid argument fails the query
	// instead of returning an empty result.
	if uuid.Validate(string(id)) != nil {
		return internal.Order{}, fmt.Errorf("invalid input syntax for type uuid: %q", id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return internal.Order{}, storage.ErrNotFound
	}
	return order, nil
}

func (m *memOrderStorage) GetOrderByExternalID(_ context.Context, externalID string) (internal.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, order := range m.orders {
		if order.ExternalOrderID == externalID {
			return order, nil
		}
	}
	return internal.Order{}, storage.ErrNotFound
}

func (m *memOrderStorage) GetPendingOrderByPhone(_ context.Context, phoneNumber string) (internal.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, order := range m.orders {
		if order.PhoneNumber == phoneNumber && order.Status == internal.OrderPending {
			return order, nil
		}
	}
	return internal.Order{}, storage.ErrNotFound
}

func (m *memOrderStorage) GetOrdersByUser(_ context.Context, userID internal.UserID) ([]internal.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var orders []internal.Order
	for _, order := range m.orders {
		if order.UserID == userID {
			orders = append(orders, order)
		}
	}
	return orders, nil
}

func (m *memOrderStorage) GetPendingOrders(_ context.Context) ([]internal.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var orders []internal.Order
	for _, order := range m.orders {
		if order.Status == internal.OrderPending {
			orders = append(orders, order)
		}
	}
	return orders, nil
}

func (m *memOrderStorage) GetDuePendingOrders(_ context.Context, now time.Time) ([]internal.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var orders []internal.Order
	for _, order := range m.orders {
		if order.Status == internal.OrderPending && !order.ExpiresAt.After(now) {
			orders = append(orders, order)
		}
	}
	return orders, nil
}

func (m *memOrderStorage) ApplyMessage(_ context.Context, message internal.Message) (storage.TransitionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[message.OrderID]
	if !ok {
		return 0, storage.ErrNotFound
	}
	if order.Status != internal.OrderPending {
		return storage.TransitionNotPending, nil
	}
	for _, stored := range m.messages[message.OrderID] {
		if stored.Text == message.Text {
			return storage.TransitionDuplicate, nil
		}
	}
	m.messages[message.OrderID] = append(m.messages[message.OrderID], message)
	order.Status = internal.OrderReceived
	m.orders[message.OrderID] = order
	return storage.TransitionApplied, nil
}

func (m *memOrderStorage) FinishOrderWithRefund(_ context.Context, id internal.OrderID, status internal.OrderStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return false, storage.ErrNotFound
	}
	if order.Status != internal.OrderPending {
		return false, nil
	}
	order.Status = status
	m.orders[id] = order
	m.users.mu.Lock()
	m.users.balances[order.UserID] += order.Price
	m.users.mu.Unlock()
	return true, nil
}

func (m *memOrderStorage) GetOrderMessages(_ context.Context, id internal.OrderID) ([]internal.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.messages[id], nil
}

func (m *memOrderStorage) Close() {
}

var _ storage.OrderStorage = (*memOrderStorage)(nil)

type stubProvider struct {
	mu          sync.Mutex
	reserveErr  error
	reserved    int
	cancelled   []string
	phoneNumber string
	externalID  string
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) GetAvailableCount(_ context.Context, _, _ string) (int, error) {
	return 1, nil
}

func (s *stubProvider) ReserveNumber(_ context.Context, _, _ string) (provider.ReserveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reserveErr != nil {
		return provider.ReserveResult{}, s.reserveErr
	}
	s.reserved++
	return provider.ReserveResult{PhoneNumber: s.phoneNumber, ExternalOrderID: s.externalID}, nil
}

func (s *stubProvider) PollMessages(_ context.Context, _ string) ([]provider.SMS, error) {
	return nil, nil
}

func (s *stubProvider) CancelReservation(_ context.Context, externalOrderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, externalOrderID)
	return nil
}

func (s *stubProvider) GetBalance(_ context.Context) (float64, error) {
	return 0, nil
}

var _ provider.Provider = (*stubProvider)(nil)

type recordingScheduler struct {
	mu        sync.Mutex
	scheduled []internal.OrderID
}

func (r *recordingScheduler) Schedule(orderID internal.OrderID, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduled = append(r.scheduled, orderID)
}
