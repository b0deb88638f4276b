package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/adiga-code/SimConnect/internal"
)

type DBUserStorage struct {
	db             *sql.DB
	insertUser     *sql.Stmt
	getUserByLogin *sql.Stmt
	getBalance     *sql.Stmt
	adjustBalance  *sql.Stmt
}

var _ UserStorage = (*DBUserStorage)(nil)

func NewDBUserStorage(db *sql.DB) (*DBUserStorage, error) {
	stmtInsertUser, err := db.Prepare("INSERT INTO users (login, password, balance) VALUES ($1, $2, 0) ON CONFLICT DO NOTHING RETURNING id")
	if err != nil {
		return nil, err
	}
	stmtGetUserByLogin, err := db.Prepare("SELECT id, password FROM users WHERE login = $1")
	if err != nil {
		return nil, err
	}
	stmtGetBalance, err := db.Prepare("SELECT balance FROM users WHERE id = $1")
	if err != nil {
		return nil, err
	}
	stmtAdjustBalance, err := db.Prepare("UPDATE users SET balance = balance + $2 WHERE id = $1 RETURNING id")
	if err != nil {
		return nil, err
	}
	return &DBUserStorage{
		db:             db,
		insertUser:     stmtInsertUser,
		getUserByLogin: stmtGetUserByLogin,
		getBalance:     stmtGetBalance,
		adjustBalance:  stmtAdjustBalance,
	}, nil
}

func (d *DBUserStorage) Close() {
	d.insertUser.Close()
	d.getUserByLogin.Close()
	d.getBalance.Close()
	d.adjustBalance.Close()
}

func (d *DBUserStorage) AddUser(ctx context.Context, login string, hashedPass string) (internal.UserID, error) {
	row := d.insertUser.QueryRowContext(ctx, login, hashedPass)
	var id internal.UserID
	err := row.Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrAlreadyExists
	} else if err != nil {
		return 0, fmt.Errorf("insert user error: %w", err)
	}
	return id, nil
}

func (d *DBUserStorage) GetUser(ctx context.Context, login string) (internal.UserID, string, error) {
	row := d.getUserByLogin.QueryRowContext(ctx, login)
	var id internal.UserID
	var pass string
	err := row.Scan(&id, &pass)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", ErrNotFound
	} else if err != nil {
		return 0, "", fmt.Errorf("get user error: %w", err)
	}
	return id, pass, nil
}

func (d *DBUserStorage) GetBalance(ctx context.Context, userID internal.UserID) (internal.Balance, error) {
	row := d.getBalance.QueryRowContext(ctx, userID)
	var balance internal.Balance
	err := row.Scan(&balance.Current)
	if errors.Is(err, sql.ErrNoRows) {
		return balance, ErrNotFound
	} else if err != nil {
		return balance, fmt.Errorf("get balance error: %w", err)
	}
	return balance, nil
}

func (d *DBUserStorage) AdjustBalance(ctx context.Context, userID internal.UserID, delta int64) error {
	row := d.adjustBalance.QueryRowContext(ctx, userID, delta)
	var id internal.UserID
	err := row.Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	} else if err != nil {
		return fmt.Errorf("adjust balance error: %w", err)
	}
	return nil
}
