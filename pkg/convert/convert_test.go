package convert

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateHeader(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantMissing []string
	}{
		{
			name:  "all required columns",
			input: "id,value,timestamp\n",
		},
		{
			name:  "extra columns allowed",
			input: "region,id,value,timestamp,notes\n",
		},
		{
			name:        "missing timestamp",
			input:       "id,value\n1,10\n",
			wantMissing: []string{"timestamp"},
		},
		{
			name:        "missing value and timestamp",
			input:       "id\n",
			wantMissing: []string{"value", "timestamp"},
		},
		{
			name:        "missing all",
			input:       "a,b,c\n",
			wantMissing: []string{"id", "value", "timestamp"},
		},
		{
			name:        "case sensitive match",
			input:       "ID,Value,timestamp\n",
			wantMissing: []string{"id", "value"},
		},
		{
			name:        "empty file",
			input:       "",
			wantMissing: []string{"id", "value", "timestamp"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHeader(strings.NewReader(tt.input))
			if tt.wantMissing == nil {
				assert.NoError(t, err)
				return
			}
			var se *StructuralError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.wantMissing, se.Missing)
			assert.True(t, IsStructural(err))
		})
	}
}

func TestValidateHeaderReadsOnlyHeader(t *testing.T) {
	// Data rows after the header may be garbage; header-only validation
	// must not touch them.
	input := "id,value,timestamp\n\"unterminated quote\n"
	err := ValidateHeader(strings.NewReader(input))
	assert.NoError(t, err)
}

func TestConvert(t *testing.T) {
	t.Run("single valid row", func(t *testing.T) {
		res, err := Convert(strings.NewReader("id,value,timestamp\n1,10,2024-01-01T00:00:00Z\n"))
		require.NoError(t, err)

		assert.Equal(t, 1, res.RowCount)
		assert.Equal(t, 0, res.ErrorCount)
		require.Len(t, res.Records, 1)
		assert.Equal(t, Record{ID: "1", Value: "10", Timestamp: "2024-01-01T00:00:00Z"}, res.Records[0])
	})

	t.Run("empty required field counts as error", func(t *testing.T) {
		res, err := Convert(strings.NewReader("id,value,timestamp\n1,,2024-01-01T00:00:00Z\n"))
		require.NoError(t, err)

		assert.Equal(t, 1, res.RowCount)
		assert.Equal(t, 1, res.ErrorCount)
		assert.Empty(t, res.Records)
	})

	t.Run("short row counts as error", func(t *testing.T) {
		res, err := Convert(strings.NewReader("id,value,timestamp\n1,10\n2,20,2024-01-02T00:00:00Z\n"))
		require.NoError(t, err)

		assert.Equal(t, 2, res.RowCount)
		assert.Equal(t, 1, res.ErrorCount)
		require.Len(t, res.Records, 1)
		assert.Equal(t, "2", res.Records[0].ID)
	})

	t.Run("invalid rows do not abort later rows", func(t *testing.T) {
		input := "id,value,timestamp\n" +
			"1,10,2024-01-01T00:00:00Z\n" +
			",20,2024-01-02T00:00:00Z\n" +
			"3,30,2024-01-03T00:00:00Z\n"
		res, err := Convert(strings.NewReader(input))
		require.NoError(t, err)

		assert.Equal(t, 3, res.RowCount)
		assert.Equal(t, 1, res.ErrorCount)
		require.Len(t, res.Records, 2)
		assert.Equal(t, "1", res.Records[0].ID)
		assert.Equal(t, "3", res.Records[1].ID)
	})

	t.Run("input order preserved", func(t *testing.T) {
		input := "id,value,timestamp\n" +
			"b,2,t2\n" +
			"a,1,t1\n" +
			"c,3,t3\n"
		res, err := Convert(strings.NewReader(input))
		require.NoError(t, err)

		ids := make([]string, 0, len(res.Records))
		for _, r := range res.Records {
			ids = append(ids, r.ID)
		}
		assert.Equal(t, []string{"b", "a", "c"}, ids)
	})

	t.Run("columns resolved by name not position", func(t *testing.T) {
		res, err := Convert(strings.NewReader("timestamp,id,value\n2024-01-01T00:00:00Z,7,42\n"))
		require.NoError(t, err)

		require.Len(t, res.Records, 1)
		assert.Equal(t, Record{ID: "7", Value: "42", Timestamp: "2024-01-01T00:00:00Z"}, res.Records[0])
	})

	t.Run("value is passed through without coercion", func(t *testing.T) {
		res, err := Convert(strings.NewReader("id,value,timestamp\n1,0010.50,2024-01-01T00:00:00Z\n"))
		require.NoError(t, err)
		assert.Equal(t, "0010.50", res.Records[0].Value)
	})

	t.Run("duplicate header column last occurrence wins", func(t *testing.T) {
		res, err := Convert(strings.NewReader("id,value,value,timestamp\n1,first,second,t1\n"))
		require.NoError(t, err)

		require.Len(t, res.Records, 1)
		assert.Equal(t, "second", res.Records[0].Value)
	})

	t.Run("duplicate header with empty last occurrence rejects row", func(t *testing.T) {
		res, err := Convert(strings.NewReader("id,value,value,timestamp\n1,first,,t1\n"))
		require.NoError(t, err)

		assert.Equal(t, 1, res.RowCount)
		assert.Equal(t, 1, res.ErrorCount)
		assert.Empty(t, res.Records)
	})

	t.Run("missing column is fatal", func(t *testing.T) {
		_, err := Convert(strings.NewReader("id,value\n1,10\n"))
		var se *StructuralError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, []string{"timestamp"}, se.Missing)
	})

	t.Run("header only no data rows", func(t *testing.T) {
		res, err := Convert(strings.NewReader("id,value,timestamp\n"))
		require.NoError(t, err)
		assert.Equal(t, 0, res.RowCount)
		assert.Equal(t, 0, res.ErrorCount)
		assert.NotNil(t, res.Records)
		assert.Empty(t, res.Records)
	})
}

func TestConvertDeterministic(t *testing.T) {
	input := "id,value,timestamp\n" +
		"1,10,2024-01-01T00:00:00Z\n" +
		",bad,\n" +
		"2,20,2024-01-02T00:00:00Z\n"

	first, err := Convert(strings.NewReader(input))
	require.NoError(t, err)
	second, err := Convert(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestConvertRowCountInvariant(t *testing.T) {
	// rowCount = len(records) + errorCount for any input.
	inputs := []string{
		"id,value,timestamp\n",
		"id,value,timestamp\n1,10,t\n",
		"id,value,timestamp\n1,10,t\n,,\n2,20,t\n",
		"id,value,timestamp\n,,\n,,\n",
	}
	for _, input := range inputs {
		res, err := Convert(strings.NewReader(input))
		require.NoError(t, err)
		assert.Equal(t, res.RowCount, len(res.Records)+res.ErrorCount)
	}
}
