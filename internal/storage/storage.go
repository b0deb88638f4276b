package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/adiga-code/SimConnect/internal"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// TransitionResult reports the outcome of a check-and-transition on an order.
// NotPending is not an error: terminal orders normally outlive late webhooks
// and timers.
type TransitionResult int

const (
	TransitionApplied TransitionResult = iota
	TransitionDuplicate
	TransitionNotPending
)

type UserStorage interface {
	AddUser(ctx context.Context, login string, hashedPass string) (internal.UserID, error)
	GetUser(ctx context.Context, login string) (internal.UserID, string, error)
	GetBalance(ctx context.Context, userID internal.UserID) (internal.Balance, error)
	AdjustBalance(ctx context.Context, userID internal.UserID, delta int64) error
	Close()
}

type CatalogStorage interface {
	GetCountry(ctx context.Context, id string) (internal.Country, error)
	GetService(ctx context.Context, id string) (internal.Service, error)
	Close()
}

type OrderStorage interface {
	// CreateOrderWithDebit inserts the order and debits its price from the
	// owner's balance in one transaction. Returns ErrInsufficientFunds
	// without inserting when current balance < order price.
	CreateOrderWithDebit(ctx context.Context, order internal.Order) error
	GetOrder(ctx context.Context, id internal.OrderID) (internal.Order, error)
	GetOrderByExternalID(ctx context.Context, externalID string) (internal.Order, error)
	GetPendingOrderByPhone(ctx context.Context, phoneNumber string) (internal.Order, error)
	GetOrdersByUser(ctx context.Context, userID internal.UserID) ([]internal.Order, error)
	GetPendingOrders(ctx context.Context) ([]internal.Order, error)
	GetDuePendingOrders(ctx context.Context, now time.Time) ([]internal.Order, error)
	// ApplyMessage locks the order row, verifies it is still pending, drops
	// duplicates by stored text, then stores the message and transitions the
	// order to received. The escrowed price is captured (no refund).
	ApplyMessage(ctx context.Context, message internal.Message) (TransitionResult, error)
	// FinishOrderWithRefund locks the order row and, only if it is still
	// pending, sets the given terminal status and credits the price back to
	// the owner's balance. Reports whether the transition was applied.
	FinishOrderWithRefund(ctx context.Context, id internal.OrderID, status internal.OrderStatus) (bool, error)
	GetOrderMessages(ctx context.Context, orderID internal.OrderID) ([]internal.Message, error)
	Close()
}

func DoMigrations(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithDatabaseInstance("file://./migrations", "postgres", driver)
	if err != nil {
		return err
	}
	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
