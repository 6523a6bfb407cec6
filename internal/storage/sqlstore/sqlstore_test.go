package sqlstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mmynk/storefront/internal/storage"
)

func TestRebindDollar(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"no placeholders", "SELECT 1", "SELECT 1"},
		{"single", "SELECT * FROM carts WHERE id = ?", "SELECT * FROM carts WHERE id = $1"},
		{"many", "INSERT INTO t (a, b, c) VALUES (?, ?, ?)", "INSERT INTO t (a, b, c) VALUES ($1, $2, $3)"},
		{"more than nine", placeholders(10), "$1, $2, $3, $4, $5, $6, $7, $8, $9, $10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RebindDollar(tt.query))
		})
	}
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}

func TestDialectWrap(t *testing.T) {
	unique := errors.New("duplicate")
	d := Dialect{IsUniqueViolation: func(err error) bool { return errors.Is(err, unique) }}

	assert.NoError(t, d.wrap(nil))
	assert.ErrorIs(t, d.wrap(fmt.Errorf("insert: %w", unique)), storage.ErrConflict)

	other := errors.New("disk full")
	wrapped := d.wrap(other)
	assert.Equal(t, other, wrapped)
	assert.False(t, errors.Is(wrapped, storage.ErrConflict))
}
