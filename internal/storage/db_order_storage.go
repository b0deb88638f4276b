package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/adiga-code/SimConnect/internal"
)

type DBOrderStorage struct {
	db                   *sql.DB
	debitBalance         *sql.Stmt
	insertOrder          *sql.Stmt
	getOrder             *sql.Stmt
	getOrderByExternalID *sql.Stmt
	getPendingByPhone    *sql.Stmt
	getOrdersByUser      *sql.Stmt
	getPendingOrders     *sql.Stmt
	getDuePendingOrders  *sql.Stmt
	lockOrder            *sql.Stmt
	countSameMessage     *sql.Stmt
	insertMessage        *sql.Stmt
	setOrderStatus       *sql.Stmt
	creditBalance        *sql.Stmt
	getMessagesByOrder   *sql.Stmt
}

var _ OrderStorage = (*DBOrderStorage)(nil)

const orderColumns = "id, phone_number, country_id, service_id, user_id, price, status, created_at, expires_at, external_order_id"

func NewDBOrderStorage(db *sql.DB) (*DBOrderStorage, error) {
	stmtDebitBalance, err := db.Prepare("UPDATE users SET balance = balance - $2 WHERE id = $1 AND balance >= $2 RETURNING id")
	if err != nil {
		return nil, err
	}
	stmtInsertOrder, err := db.Prepare(`
		INSERT INTO orders (id, phone_number, country_id, service_id, user_id, price, status, created_at, expires_at, external_order_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`)
	if err != nil {
		return nil, err
	}
	stmtGetOrder, err := db.Prepare("SELECT " + orderColumns + " FROM orders WHERE id = $1")
	if err != nil {
		return nil, err
	}
	stmtGetOrderByExternalID, err := db.Prepare("SELECT " + orderColumns + " FROM orders WHERE external_order_id = $1")
	if err != nil {
		return nil, err
	}
	stmtGetPendingByPhone, err := db.Prepare("SELECT " + orderColumns + " FROM orders WHERE phone_number = $1 AND status = $2 ORDER BY created_at LIMIT 1")
	if err != nil {
		return nil, err
	}
	stmtGetOrdersByUser, err := db.Prepare("SELECT " + orderColumns + " FROM orders WHERE user_id = $1 ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	stmtGetPendingOrders, err := db.Prepare("SELECT " + orderColumns + " FROM orders WHERE status = $1")
	if err != nil {
		return nil, err
	}
	stmtGetDuePendingOrders, err := db.Prepare("SELECT " + orderColumns + " FROM orders WHERE status = $1 AND expires_at <= $2")
	if err != nil {
		return nil, err
	}
	stmtLockOrder, err := db.Prepare("SELECT user_id, price, status FROM orders WHERE id = $1 FOR UPDATE")
	if err != nil {
		return nil, err
	}
	stmtCountSameMessage, err := db.Prepare("SELECT count(*) FROM messages WHERE order_id = $1 AND text = $2")
	if err != nil {
		return nil, err
	}
	stmtInsertMessage, err := db.Prepare("INSERT INTO messages (id, order_id, text, code, received_at) VALUES ($1, $2, $3, $4, $5)")
	if err != nil {
		return nil, err
	}
	stmtSetOrderStatus, err := db.Prepare("UPDATE orders SET status = $1 WHERE id = $2")
	if err != nil {
		return nil, err
	}
	stmtCreditBalance, err := db.Prepare("UPDATE users SET balance = balance + $2 WHERE id = $1")
	if err != nil {
		return nil, err
	}
	stmtGetMessagesByOrder, err := db.Prepare("SELECT id, order_id, text, code, received_at FROM messages WHERE order_id = $1 ORDER BY received_at DESC")
	if err != nil {
		return nil, err
	}
	return &DBOrderStorage{
		db:                   db,
		debitBalance:         stmtDebitBalance,
		insertOrder:          stmtInsertOrder,
		getOrder:             stmtGetOrder,
		getOrderByExternalID: stmtGetOrderByExternalID,
		getPendingByPhone:    stmtGetPendingByPhone,
		getOrdersByUser:      stmtGetOrdersByUser,
		getPendingOrders:     stmtGetPendingOrders,
		getDuePendingOrders:  stmtGetDuePendingOrders,
		lockOrder:            stmtLockOrder,
		countSameMessage:     stmtCountSameMessage,
		insertMessage:        stmtInsertMessage,
		setOrderStatus:       stmtSetOrderStatus,
		creditBalance:        stmtCreditBalance,
		getMessagesByOrder:   stmtGetMessagesByOrder,
	}, nil
}

func (d *DBOrderStorage) Close() {
	d.debitBalance.Close()
	d.insertOrder.Close()
	d.getOrder.Close()
	d.getOrderByExternalID.Close()
	d.getPendingByPhone.Close()
	d.getOrdersByUser.Close()
	d.getPendingOrders.Close()
	d.getDuePendingOrders.Close()
	d.lockOrder.Close()
	d.countSameMessage.Close()
	d.insertMessage.Close()
	d.setOrderStatus.Close()
	d.creditBalance.Close()
	d.getMessagesByOrder.Close()
}

func (d *DBOrderStorage) CreateOrderWithDebit(ctx context.Context, order internal.Order) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction error: %w", err)
	}
	defer tx.Rollback()
	txDebitStmt := tx.StmtContext(ctx, d.debitBalance)
	row := txDebitStmt.QueryRowContext(ctx, order.UserID, order.Price)
	var id internal.UserID
	err = row.Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrInsufficientFunds
	} else if err != nil {
		return fmt.Errorf("debit balance error: %w", err)
	}
	txInsertStmt := tx.StmtContext(ctx, d.insertOrder)
	_, err = txInsertStmt.ExecContext(ctx,
		order.ID, order.PhoneNumber, order.CountryID, order.ServiceID, order.UserID,
		order.Price, order.Status, order.CreatedAt, order.ExpiresAt, order.ExternalOrderID,
	)
	if err != nil {
		return fmt.Errorf("insert order error: %w", err)
	}
	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit error: %w", err)
	}
	return nil
}

func (d *DBOrderStorage) GetOrder(ctx context.Context, id internal.OrderID) (internal.Order, error) {
	return scanOrder(d.getOrder.QueryRowContext(ctx, id))
}

func (d *DBOrderStorage) GetOrderByExternalID(ctx context.Context, externalID string) (internal.Order, error) {
	return scanOrder(d.getOrderByExternalID.QueryRowContext(ctx, externalID))
}

func (d *DBOrderStorage) GetPendingOrderByPhone(ctx context.Context, phoneNumber string) (internal.Order, error) {
	return scanOrder(d.getPendingByPhone.QueryRowContext(ctx, phoneNumber, internal.OrderPending))
}

func (d *DBOrderStorage) GetOrdersByUser(ctx context.Context, userID internal.UserID) ([]internal.Order, error) {
	rows, err := d.getOrdersByUser.QueryContext(ctx, userID)
	if err != nil {
		return nil, err
	}
	return scanOrders(rows)
}

func (d *DBOrderStorage) GetPendingOrders(ctx context.Context) ([]internal.Order, error) {
	rows, err := d.getPendingOrders.QueryContext(ctx, internal.OrderPending)
	if err != nil {
		return nil, err
	}
	return scanOrders(rows)
}

func (d *DBOrderStorage) GetDuePendingOrders(ctx context.Context, now time.Time) ([]internal.Order, error) {
	rows, err := d.getDuePendingOrders.QueryContext(ctx, internal.OrderPending, now)
	if err != nil {
		return nil, err
	}
	return scanOrders(rows)
}

// ApplyMessage serializes the pending->received transition on the order row
// lock, so a racing cancel or expiry observes the terminal state instead of
// double-applying.
func (d *DBOrderStorage) ApplyMessage(ctx context.Context, message internal.Message) (TransitionResult, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return TransitionNotPending, fmt.Errorf("begin transaction error: %w", err)
	}
	defer tx.Rollback()
	var userID internal.UserID
	var price int64
	var status internal.OrderStatus
	row := tx.StmtContext(ctx, d.lockOrder).QueryRowContext(ctx, message.OrderID)
	err = row.Scan(&userID, &price, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return TransitionNotPending, ErrNotFound
	} else if err != nil {
		return TransitionNotPending, fmt.Errorf("lock order error: %w", err)
	}
	if status != internal.OrderPending {
		return TransitionNotPending, nil
	}
	var same int
	row = tx.StmtContext(ctx, d.countSameMessage).QueryRowContext(ctx, message.OrderID, message.Text)
	if err := row.Scan(&same); err != nil {
		return TransitionNotPending, fmt.Errorf("check duplicate message error: %w", err)
	}
	if same > 0 {
		return TransitionDuplicate, nil
	}
	_, err = tx.StmtContext(ctx, d.insertMessage).ExecContext(ctx,
		message.ID, message.OrderID, message.Text, message.Code, message.ReceivedAt)
	if err != nil {
		return TransitionNotPending, fmt.Errorf("insert message error: %w", err)
	}
	_, err = tx.StmtContext(ctx, d.setOrderStatus).ExecContext(ctx, internal.OrderReceived, message.OrderID)
	if err != nil {
		return TransitionNotPending, fmt.Errorf("update order status error: %w", err)
	}
	err = tx.Commit()
	if err != nil {
		return TransitionNotPending, fmt.Errorf("commit error: %w", err)
	}
	return TransitionApplied, nil
}

func (d *DBOrderStorage) FinishOrderWithRefund(ctx context.Context, id internal.OrderID, status internal.OrderStatus) (bool, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin transaction error: %w", err)
	}
	defer tx.Rollback()
	var userID internal.UserID
	var price int64
	var current internal.OrderStatus
	row := tx.StmtContext(ctx, d.lockOrder).QueryRowContext(ctx, id)
	err = row.Scan(&userID, &price, &current)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	} else if err != nil {
		return false, fmt.Errorf("lock order error: %w", err)
	}
	if current != internal.OrderPending {
		return false, nil
	}
	_, err = tx.StmtContext(ctx, d.setOrderStatus).ExecContext(ctx, status, id)
	if err != nil {
		return false, fmt.Errorf("update order status error: %w", err)
	}
	_, err = tx.StmtContext(ctx, d.creditBalance).ExecContext(ctx, userID, price)
	if err != nil {
		return false, fmt.Errorf("credit balance error: %w", err)
	}
	err = tx.Commit()
	if err != nil {
		return false, fmt.Errorf("commit error: %w", err)
	}
	return true, nil
}

func (d *DBOrderStorage) GetOrderMessages(ctx context.Context, orderID internal.OrderID) ([]internal.Message, error) {
	rows, err := d.getMessagesByOrder.QueryContext(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var messages []internal.Message
	for rows.Next() {
		var m internal.Message
		var code sql.NullString
		err = rows.Scan(&m.ID, &m.OrderID, &m.Text, &code, &m.ReceivedAt)
		if err != nil {
			return nil, err
		}
		m.Code = code.String
		messages = append(messages, m)
	}
	err = rows.Err()
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func scanOrder(row *sql.Row) (internal.Order, error) {
	var o internal.Order
	var externalID sql.NullString
	err := row.Scan(&o.ID, &o.PhoneNumber, &o.CountryID, &o.ServiceID, &o.UserID,
		&o.Price, &o.Status, &o.CreatedAt, &o.ExpiresAt, &externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return o, ErrNotFound
	} else if err != nil {
		return o, fmt.Errorf("get order error: %w", err)
	}
	o.ExternalOrderID = externalID.String
	return o, nil
}

func scanOrders(rows *sql.Rows) ([]internal.Order, error) {
	defer rows.Close()
	var orders []internal.Order
	for rows.Next() {
		var o internal.Order
		var externalID sql.NullString
		err := rows.Scan(&o.ID, &o.PhoneNumber, &o.CountryID, &o.ServiceID, &o.UserID,
			&o.Price, &o.Status, &o.CreatedAt, &o.ExpiresAt, &externalID)
		if err != nil {
			return nil, err
		}
		o.ExternalOrderID = externalID.String
		orders = append(orders, o)
	}
	err := rows.Err()
	if err != nil {
		return nil, err
	}
	return orders, nil
}
