package repositories

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendvoice/question-engine/pkg/models"
	"github.com/lendvoice/question-engine/pkg/rules"
)

func TestColumnNamesAreCanonicalFieldNames(t *testing.T) {
	// Row maps key by the canonical field form of the column name, which for
	// snake_case columns is the column name itself. Rules compiled from
	// "Citizenship Type is ..." must join these keys directly.
	for _, column := range []string{
		"citizenship_type",
		"proposal_pid",
		"zip_code",
		"pid",
		"first_name",
		"annual_income_usd",
	} {
		assert.Equal(t, column, rules.NormalizeFieldName(column), "column %q", column)
	}
}

func TestColumnValue(t *testing.T) {
	v, err := columnValue(nil)
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	v, err = columnValue("CONVENTIONAL")
	require.NoError(t, err)
	assert.Equal(t, models.String("CONVENTIONAL"), v)

	v, err = columnValue(int64(42))
	require.NoError(t, err)
	assert.Equal(t, models.Number(42), v)

	v, err = columnValue(true)
	require.NoError(t, err)
	assert.Equal(t, models.Bool(true), v)

	ts := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	v, err = columnValue(ts)
	require.NoError(t, err)
	assert.Equal(t, models.String("2025-06-01T12:30:00Z"), v)

	v, err = columnValue([]byte("raw"))
	require.NoError(t, err)
	assert.Equal(t, models.String("raw"), v)
}
