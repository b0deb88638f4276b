package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/adiga-code/SimConnect/internal"
)

type DBCatalogStorage struct {
	db         *sql.DB
	getCountry *sql.Stmt
	getService *sql.Stmt
}

var _ CatalogStorage = (*DBCatalogStorage)(nil)

func NewDBCatalogStorage(db *sql.DB) (*DBCatalogStorage, error) {
	stmtGetCountry, err := db.Prepare("SELECT id, name, code, price_from, available FROM countries WHERE id = $1")
	if err != nil {
		return nil, err
	}
	stmtGetService, err := db.Prepare("SELECT id, name, price_from, available FROM services WHERE id = $1")
	if err != nil {
		return nil, err
	}
	return &DBCatalogStorage{
		db:         db,
		getCountry: stmtGetCountry,
		getService: stmtGetService,
	}, nil
}

func (d *DBCatalogStorage) Close() {
	d.getCountry.Close()
	d.getService.Close()
}

func (d *DBCatalogStorage) GetCountry(ctx context.Context, id string) (internal.Country, error) {
	row := d.getCountry.QueryRowContext(ctx, id)
	var c internal.Country
	err := row.Scan(&c.ID, &c.Name, &c.Code, &c.PriceFrom, &c.Available)
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	} else if err != nil {
		return c, fmt.Errorf("get country error: %w", err)
	}
	return c, nil
}

func (d *DBCatalogStorage) GetService(ctx context.Context, id string) (internal.Service, error) {
	row := d.getService.QueryRowContext(ctx, id)
	var s internal.Service
	err := row.Scan(&s.ID, &s.Name, &s.PriceFrom, &s.Available)
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrNotFound
	} else if err != nil {
		return s, fmt.Errorf("get service error: %w", err)
	}
	return s, nil
}
