package dbutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDialect(t *testing.T) {
	tests := []struct {
		in      string
		want    Dialect
		wantErr bool
	}{
		{"", Postgres, false},
		{"postgres", Postgres, false},
		{"PostgreSQL", Postgres, false},
		{"sqlite", SQLite, false},
		{"sqlite3", SQLite, false},
		{"mysql", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDialect(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRebind(t *testing.T) {
	q := "SELECT body FROM t WHERE name = ? AND note <> '?' AND v > ?"
	assert.Equal(t, q, SQLite.Rebind(q))
	assert.Equal(t, "SELECT body FROM t WHERE name = $1 AND note <> '?' AND v > $2", Postgres.Rebind(q))
}

func TestOpenSQLite(t *testing.T) {
	db, err := Open(context.Background(), SQLite, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	var one int
	require.NoError(t, db.QueryRow("SELECT 1").Scan(&one))
	assert.Equal(t, 1, one)
}
