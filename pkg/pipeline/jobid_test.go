package pipeline

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEventKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{"plain", "uploads/orders.csv", "uploads/orders.csv"},
		{"plus is space", "uploads/my+file.csv", "uploads/my file.csv"},
		{"percent escape", "uploads/report%3A2024.csv", "uploads/report:2024.csv"},
		{"malformed escape falls back", "uploads/bad%zz.csv", "uploads/bad%zz.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeEventKey(tt.key))
		})
	}
}

func TestDeriveJobID(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{"simple", "uploads/orders.csv", "orders"},
		{"nested prefix", "uploads/2024/08/orders.csv", "orders"},
		{"no extension", "uploads/orders", "orders"},
		{"dotted name keeps inner dots", "uploads/daily.orders.csv", "daily.orders"},
		{"no prefix", "orders.csv", "orders"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveJobID(tt.key))
		})
	}
}

func TestDeriveJobIDEmptyBase(t *testing.T) {
	for _, key := range []string{"", "/", "uploads/.csv"} {
		id := DeriveJobID(key)
		require.NotEmpty(t, id, "key %q", key)
		_, err := uuid.Parse(id)
		assert.NoError(t, err, "key %q should fall back to a random id", key)
	}
}

func TestDeriveJobIDStable(t *testing.T) {
	assert.Equal(t, DeriveJobID("uploads/orders.csv"), DeriveJobID("uploads/orders.csv"))
}
