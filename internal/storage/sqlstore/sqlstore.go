// Package sqlstore implements storage.Store on top of database/sql.
//
// The SQL is shared between backends; a Dialect supplies the few pieces
// that differ (placeholder style, row locking and constraint error
// detection).
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/mmynk/storefront/internal/storage"
)

// Ensure Store implements storage.Store
var _ storage.Store = (*Store)(nil)

// Dialect describes a SQL backend.
type Dialect struct {
	// Name is used in logs and errors.
	Name string

	// Rebind rewrites ?-style placeholders for the backend. Nil keeps them.
	Rebind func(query string) string

	// ForUpdate is appended to SELECTs that must lock the row.
	ForUpdate string

	// IsUniqueViolation reports whether err is a unique constraint failure.
	IsUniqueViolation func(err error) bool

	// ViewOptions are the options for read-only transactions.
	ViewOptions *sql.TxOptions
}

// Store implements storage.Store with a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps an open database. The schema must already exist.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// DB exposes the underlying handle for migrations and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InTx runs fn inside a read-write transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.run(ctx, nil, fn)
}

// View runs fn inside a transaction intended for reads.
func (s *Store) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.run(ctx, s.dialect.ViewOptions, fn)
}

func (s *Store) run(ctx context.Context, opts *sql.TxOptions, fn func(tx storage.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txn{tx: tx, dialect: &s.dialect}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return s.dialect.wrap(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// txn implements storage.Tx.
type txn struct {
	tx      *sql.Tx
	dialect *Dialect
}

func (t *txn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := t.tx.ExecContext(ctx, t.dialect.rebind(query), args...)
	return res, t.dialect.wrap(err)
}

func (t *txn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, t.dialect.rebind(query), args...)
}

func (t *txn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.dialect.rebind(query), args...)
}

func (d *Dialect) rebind(query string) string {
	if d.Rebind == nil {
		return query
	}
	return d.Rebind(query)
}

// wrap marks unique violations with storage.ErrConflict.
func (d *Dialect) wrap(err error) error {
	if err == nil {
		return nil
	}
	if d.IsUniqueViolation != nil && d.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %v", storage.ErrConflict, err)
	}
	return err
}

// RebindDollar converts ? placeholders to $1, $2, ... as used by Postgres.
// Queries in this package never contain a literal question mark.
func RebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// placeholders returns "?, ?, ..." with n entries.
// Used for building IN clauses with multiple placeholders.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}
