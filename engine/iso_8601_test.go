package engine

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewISO8601Duration(t *testing.T) {
	assert := assert.New(t)

	dueAt := time.Date(2026, 2, 27, 8, 30, 0, 0, time.UTC)

	t.Run("calculates due time", func(t *testing.T) {
		tests := []struct {
			value    string
			expected time.Time
		}{
			{"", dueAt},
			{"PT30S", time.Date(2026, 2, 27, 8, 30, 30, 0, time.UTC)},
			{"PT15M", time.Date(2026, 2, 27, 8, 45, 0, 0, time.UTC)},
			{"PT2H", time.Date(2026, 2, 27, 10, 30, 0, 0, time.UTC)},
			{"PT150M", time.Date(2026, 2, 27, 11, 0, 0, 0, time.UTC)},
			{"P2D", time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)},
			{"P1W", time.Date(2026, 3, 6, 8, 30, 0, 0, time.UTC)},
			{"P1M", time.Date(2026, 3, 27, 8, 30, 0, 0, time.UTC)},
			{"P1Y", time.Date(2027, 2, 27, 8, 30, 0, 0, time.UTC)},
			{"P1DT12H", time.Date(2026, 2, 28, 20, 30, 0, 0, time.UTC)},
			{"P1Y2M3DT4H5M6S", time.Date(2027, 4, 30, 12, 35, 6, 0, time.UTC)},
		}

		for _, test := range tests {
			t.Run(test.value, func(t *testing.T) {
				d, err := NewISO8601Duration(test.value)
				require.NoError(t, err)
				assert.Equal(test.expected, d.Calculate(dueAt))
			})
		}
	})

	t.Run("returns error when value is invalid", func(t *testing.T) {
		values := []string{
			"P",
			"PT",
			"T",
			"30S",
			"PT30",
			"PTS",
			"P1T",
			"P1DT",
			"P2W1D",
			"P2WT1H",
			"PT1S1M",
			"-PT1S",
			"1 minute",
		}

		for _, value := range values {
			t.Run(value, func(t *testing.T) {
				_, err := NewISO8601Duration(value)
				assert.ErrorContains(err, "invalid ISO 8601 duration")
			})
		}
	})

	t.Run("unparsable duration returns time", func(t *testing.T) {
		assert.Equal(dueAt, ISO8601Duration("P").Calculate(dueAt))
	})
}

func TestISO8601DurationJSON(t *testing.T) {
	assert := assert.New(t)

	var cmd LockExternalTasksCmd

	// when
	err := json.Unmarshal([]byte(`{"lockDuration":"PT10M"}`), &cmd)

	// then
	require.NoError(t, err)
	assert.Equal(ISO8601Duration("PT10M"), cmd.LockDuration)

	t.Run("null is zero", func(t *testing.T) {
		var cmd LockExternalTasksCmd
		require.NoError(t, json.Unmarshal([]byte(`{"lockDuration":null}`), &cmd))
		assert.True(cmd.LockDuration.IsZero())
	})

	t.Run("returns error when value is no string", func(t *testing.T) {
		var cmd LockExternalTasksCmd
		assert.Error(json.Unmarshal([]byte(`{"lockDuration":60}`), &cmd))
	})
}
