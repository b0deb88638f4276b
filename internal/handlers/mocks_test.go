package handlers

import (
	"context"
	"time"

	"github.com/adiga-code/SimConnect/internal"
	"github.com/adiga-code/SimConnect/internal/notify"
	"github.com/adiga-code/SimConnect/internal/service"
	"github.com/adiga-code/SimConnect/internal/storage"
	"github.com/go-chi/chi/v5"
)

func newTestRouter(authService service.AuthService, orderService service.OrderService, webhookService service.WebhookService) chi.Router {
	return NewRouter(authService, orderService, webhookService, notify.NewHub(), 30*time.Second)
}

type mockUserStorage struct {
	userID     internal.UserID
	balance    int64
	loginPass  map[string]string
	addUserErr error
	getUserErr error
}

func (m *mockUserStorage) AddUser(_ context.Context, login string, hashedPass string) (internal.UserID, error) {
	m.loginPass[login] = hashedPass
	return m.userID, m.addUserErr
}

func (m *mockUserStorage) GetUser(_ context.Context, login string) (internal.UserID, string, error) {
	return m.userID, m.loginPass[login], m.getUserErr
}

func (m *mockUserStorage) GetBalance(_ context.Context, _ internal.UserID) (internal.Balance, error) {
	return internal.Balance{Current: m.balance}, nil
}

func (m *mockUserStorage) AdjustBalance(_ context.Context, _ internal.UserID, delta int64) error {
	m.balance += delta
	return nil
}

func (m *mockUserStorage) Close() {
}

var _ storage.UserStorage = (*mockUserStorage)(nil)

type mockOrderService struct {
	order      internal.Order
	orders     []internal.Order
	messages   []internal.Message
	balance    internal.Balance
	cancelled  bool
	createErr  error
	getErr     error
	cancelErr  error
	lastUserID internal.UserID
}

func (m *mockOrderService) CreateOrder(_ context.Context, userID internal.UserID, _, _ string) (internal.Order, error) {
	m.lastUserID = userID
	return m.order, m.createErr
}

func (m *mockOrderService) CancelOrder(_ context.Context, _ internal.OrderID, userID internal.UserID) (bool, error) {
	m.lastUserID = userID
	return m.cancelled, m.cancelErr
}

func (m *mockOrderService) ExpireOrder(_ context.Context, _ internal.OrderID) (bool, error) {
	return false, nil
}

func (m *mockOrderService) ApplyMessage(_ context.Context, _ internal.Order, _, _ string, _ time.Time) (bool, error) {
	return false, nil
}

func (m *mockOrderService) GetOrder(_ context.Context, _ internal.OrderID, userID internal.UserID) (internal.Order, error) {
	m.lastUserID = userID
	return m.order, m.getErr
}

func (m *mockOrderService) GetUserOrders(_ context.Context, _ internal.UserID) ([]internal.Order, error) {
	return m.orders, nil
}

func (m *mockOrderService) GetOrderMessages(_ context.Context, _ internal.OrderID, _ internal.UserID) ([]internal.Message, error) {
	return m.messages, m.getErr
}

func (m *mockOrderService) GetBalance(_ context.Context, _ internal.UserID) (internal.Balance, error) {
	return m.balance, nil
}

var _ service.OrderService = (*mockOrderService)(nil)

type mockWebhookService struct {
	accepted bool
	err      error
}

func (m *mockWebhookService) ProcessWebhook(_ context.Context, _ string, _ []byte) (bool, error) {
	return m.accepted, m.err
}

var _ service.WebhookService = (*mockWebhookService)(nil)
