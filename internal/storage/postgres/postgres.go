// Package postgres opens a PostgreSQL-backed storage.Store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/mmynk/storefront/internal/storage/sqlstore"
)

// errCodeUniqueViolation is the SQLSTATE for unique_violation.
const errCodeUniqueViolation = "23505"

// Dialect is the PostgreSQL flavour of the shared SQL. Cart rows are locked
// with SELECT ... FOR UPDATE and reads use a repeatable-read snapshot.
var Dialect = sqlstore.Dialect{
	Name:              "postgres",
	Rebind:            sqlstore.RebindDollar,
	ForUpdate:         " FOR UPDATE",
	IsUniqueViolation: isUniqueViolation,
	ViewOptions:       &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true},
}

// New connects to dsn, verifies the connection and runs migrations.
func New(ctx context.Context, dsn string) (*sqlstore.Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return sqlstore.New(db, Dialect), nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == errCodeUniqueViolation
	}
	return false
}
