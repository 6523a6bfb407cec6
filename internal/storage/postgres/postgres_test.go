package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("duplicate key"), false},
		{"unique violation", &pq.Error{Code: "23505"}, true},
		{"wrapped unique violation", fmt.Errorf("insert: %w", &pq.Error{Code: "23505"}), true},
		{"foreign key violation", &pq.Error{Code: "23503"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueViolation(tt.err))
		})
	}
}

func TestDialect(t *testing.T) {
	assert.Equal(t, "SELECT id FROM carts WHERE id = $1", Dialect.Rebind("SELECT id FROM carts WHERE id = ?"))
	assert.Equal(t, " FOR UPDATE", Dialect.ForUpdate)
	assert.True(t, Dialect.ViewOptions.ReadOnly)
}
