package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericRoundTrip(t *testing.T) {
	for _, s := range []string{"0", "1012.04", "0.0001", "123456789.1234", "-5.5"} {
		t.Run(s, func(t *testing.T) {
			in := decimal.RequireFromString(s)
			n, err := decimalToNumeric(in)
			require.NoError(t, err)

			out, err := pgNumericToDecimal(n)
			require.NoError(t, err)
			assert.True(t, in.Equal(out), "want %s got %s", in, out)
		})
	}
}

func TestPgNumericToDecimal_Null(t *testing.T) {
	n, err := decimalToNumeric(decimal.Zero)
	require.NoError(t, err)
	n.Valid = false

	out, err := pgNumericToDecimal(n)
	require.NoError(t, err)
	assert.True(t, out.IsZero())
}

func TestNullText(t *testing.T) {
	assert.False(t, nullText("").Valid)
	assert.Equal(t, "abc", nullText("abc").String)
	assert.True(t, nullText("abc").Valid)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
}

func TestLoadMigrations_Ordered(t *testing.T) {
	migrations, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	for i, m := range migrations {
		assert.NotEmpty(t, m.sql, m.name)
		if i > 0 {
			assert.Greater(t, m.version, migrations[i-1].version)
		}
	}
	assert.Equal(t, 1, migrations[0].version)
}
