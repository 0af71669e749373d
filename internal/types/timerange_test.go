package types

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeRange(t *testing.T) {
	testCases := []struct {
		input    string
		expected TimeRange
	}{
		{"", AllTime},
		{"all", AllTime},
		{"ALL", AllTime},
		{"30d", Last30Days},
		{"month", Last30Days},
		{"7d", Last7Days},
		{" week ", Last7Days},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseTimeRange(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}

	_, err := ParseTimeRange("90d")
	assert.True(t, errors.Is(err, ErrInvalidTimeRange))
}

func TestLast7DaysBoundary(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	w := Last7Days.Resolve(now, time.UTC)
	lower := now.Add(-7 * 24 * time.Hour)

	assert.True(t, w.Contains(lower), "lower bound is inclusive")
	assert.False(t, w.Contains(lower.Add(-time.Second)), "one second before the lower bound is excluded")
	assert.True(t, w.Contains(now), "upper bound is inclusive")
	assert.False(t, w.Contains(now.Add(time.Second)), "after the query time is excluded")
}

func TestLast30DaysResolve(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	w := Last30Days.Resolve(now, time.UTC)
	assert.Equal(t, now.Add(-30*24*time.Hour), w.Start)
	assert.Equal(t, now, w.End)
}

func TestAllTimeIsUnbounded(t *testing.T) {
	w := AllTime.Resolve(time.Now(), nil)
	assert.True(t, w.Unbounded())
	assert.True(t, w.Contains(time.Unix(0, 0)))
	assert.True(t, w.Contains(time.Now().Add(1000*time.Hour)))
}

func TestCustomRangeWholeDays(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	tr, err := ParseDateRange("2025-06-01", "20250603", loc)
	require.NoError(t, err)
	require.Equal(t, RangeCustom, tr.Kind)

	w := tr.Resolve(time.Now(), loc)
	assert.True(t, w.Contains(time.Date(2025, 6, 1, 0, 0, 0, 0, loc)))
	assert.False(t, w.Contains(time.Date(2025, 5, 31, 23, 59, 59, 0, loc)))
	assert.True(t, w.Contains(time.Date(2025, 6, 3, 23, 59, 59, 999999999, loc)))
	assert.False(t, w.Contains(time.Date(2025, 6, 4, 0, 0, 0, 0, loc)))
}

func TestParseDateRangeErrors(t *testing.T) {
	_, err := ParseDateRange("2025-13-01", "", time.UTC)
	assert.ErrorIs(t, err, ErrInvalidTimeRange)

	_, err = ParseDateRange("2025-06-05", "2025-06-01", time.UTC)
	assert.ErrorIs(t, err, ErrInvalidTimeRange)

	tr, err := ParseDateRange("", "2025-06-01", time.UTC)
	require.NoError(t, err)
	w := tr.Resolve(time.Now(), time.UTC)
	assert.True(t, w.Start.IsZero())
	assert.False(t, w.End.IsZero())
}

func TestNextCyclesPresets(t *testing.T) {
	assert.Equal(t, Last30Days, AllTime.Next())
	assert.Equal(t, Last7Days, Last30Days.Next())
	assert.Equal(t, AllTime, Last7Days.Next())
	assert.Equal(t, AllTime, CustomRange(time.Now(), time.Now()).Next())
}

func TestErrorSummaryMerge(t *testing.T) {
	a := ErrorSummary{ParseErrors: 1, UnpricedModels: []string{"zeta"}}
	a.Merge(ErrorSummary{ParseErrors: 2, Duplicates: 3, UnpricedModels: []string{"alpha", "zeta"}})

	assert.Equal(t, 3, a.ParseErrors)
	assert.Equal(t, 3, a.Duplicates)
	assert.Equal(t, []string{"alpha", "zeta"}, a.UnpricedModels)
	assert.True(t, a.HasProblems())
}
