package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestChallengeInWindow(t *testing.T) {
	start := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	ch := &Challenge{StartDate: start, EndDate: WindowEnd(start, 5)}

	require.False(t, ch.InWindow(time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)))
	require.True(t, ch.InWindow(start))
	require.True(t, ch.InWindow(time.Date(2026, 3, 15, 18, 0, 0, 0, time.UTC)))
	require.False(t, ch.InWindow(ch.EndDate))

	// 非 UTC 的日期按其日历日比较
	shanghai := time.FixedZone("CST", 8*3600)
	require.True(t, ch.InWindow(time.Date(2026, 3, 11, 1, 0, 0, 0, shanghai)))
}
