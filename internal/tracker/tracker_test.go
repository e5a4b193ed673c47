package tracker

import (
	"testing"
	"time"

	"eo-trader/internal/storage"
	"eo-trader/pkg/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result(n int, won bool) types.SignalResult {
	return types.SignalResult{
		SignalID:   "sig",
		Asset:      "EURUSD",
		Direction:  types.SignalCall,
		EntryPrice: decimal.NewFromFloat(1.1),
		ExitPrice:  decimal.NewFromFloat(1.2),
		ResolvedAt: time.Now().Add(time.Duration(n) * time.Minute),
		Won:        won,
	}
}

func TestUpdateStats(t *testing.T) {
	store := storage.NewMemoryStorage(10)
	tr := NewResultTracker(store, nil, time.Minute)

	// W W L W W: 4 wins, best streak 2, current streak 2.
	for i, won := range []bool{true, true, false, true, true} {
		store.StoreResult(result(i, won))
	}

	tr.UpdateStats("EURUSD")

	stats := store.GetStats("EURUSD")
	require.NotNil(t, stats)
	assert.Equal(t, 5, stats.TotalSignals)
	assert.Equal(t, 4, stats.Wins)
	assert.Equal(t, 1, stats.Losses)
	assert.InDelta(t, 80.0, stats.WinRate, 1e-9)
	assert.Equal(t, 2, stats.BestStreak)
	assert.Equal(t, 2, stats.CurrentStreak)
	assert.Len(t, stats.RecentResults, 5)
}

func TestUpdateStatsNoResults(t *testing.T) {
	store := storage.NewMemoryStorage(10)
	tr := NewResultTracker(store, nil, time.Minute)

	tr.UpdateStats("EURUSD")
	assert.Equal(t, 0, store.GetStats("EURUSD").TotalSignals)
}

func TestLossEndsCurrentStreak(t *testing.T) {
	store := storage.NewMemoryStorage(10)
	tr := NewResultTracker(store, nil, time.Minute)

	for i, won := range []bool{true, true, true, false} {
		store.StoreResult(result(i, won))
	}

	tr.UpdateStats("EURUSD")

	stats := store.GetStats("EURUSD")
	assert.Equal(t, 3, stats.BestStreak)
	assert.Equal(t, 0, stats.CurrentStreak)
}
