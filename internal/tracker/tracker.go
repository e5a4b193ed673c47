// Package tracker resolves issued signals against the price at expiry
// and maintains per-asset performance statistics.
package tracker

import (
	"time"

	"eo-trader/internal/storage"
	"eo-trader/pkg/types"

	"github.com/rs/zerolog/log"
)

// ResultTracker tracks signal outcomes. A call wins when the price at
// expiry is above the entry price, a put when it is below.
type ResultTracker struct {
	storage *storage.MemoryStorage
	db      *storage.SQLiteDB
	window  time.Duration
}

// NewResultTracker creates a tracker resolving signals after the given
// window. db may be nil when persistence is disabled.
func NewResultTracker(store *storage.MemoryStorage, db *storage.SQLiteDB, window time.Duration) *ResultTracker {
	return &ResultTracker{
		storage: store,
		db:      db,
		window:  window,
	}
}

// Track schedules outcome resolution for a freshly issued signal.
func (t *ResultTracker) Track(signal types.TradeSignal) {
	go t.resolveLater(signal)
}

func (t *ResultTracker) resolveLater(signal types.TradeSignal) {
	time.Sleep(t.window)

	exitPrice := t.storage.GetLatestPrice(signal.Asset)
	if exitPrice.IsZero() {
		log.Warn().Str("asset", signal.Asset).Str("signal", signal.ID).
			Msg("no price available at expiry, skipping result")
		return
	}

	won := false
	switch signal.Direction {
	case types.SignalCall:
		won = exitPrice.GreaterThan(signal.Price)
	case types.SignalPut:
		won = exitPrice.LessThan(signal.Price)
	}

	result := types.SignalResult{
		SignalID:    signal.ID,
		Asset:       signal.Asset,
		Direction:   signal.Direction,
		EntryPrice:  signal.Price,
		ExitPrice:   exitPrice,
		IssuedAt:    signal.IssuedAt,
		ResolvedAt:  time.Now(),
		Won:         won,
		PriceChange: exitPrice.Sub(signal.Price),
	}

	t.storage.StoreResult(result)
	if t.db != nil {
		if err := t.db.SaveResult(result); err != nil {
			log.Error().Err(err).Str("signal", signal.ID).Msg("failed to persist result")
		}
	}

	log.Info().
		Str("asset", signal.Asset).
		Str("direction", string(signal.Direction)).
		Str("entry", signal.Price.String()).
		Str("exit", exitPrice.String()).
		Bool("won", won).
		Msg("signal resolved")

	t.UpdateStats(signal.Asset)
}

// UpdateStats recalculates statistics for an asset from its results.
func (t *ResultTracker) UpdateStats(asset string) {
	results := t.storage.GetResults(asset)
	if len(results) == 0 {
		return
	}

	wins := 0
	currentStreak := 0
	bestStreak := 0
	tempStreak := 0

	for i, result := range results {
		if result.Won {
			wins++
			tempStreak++
			if tempStreak > bestStreak {
				bestStreak = tempStreak
			}
		} else {
			tempStreak = 0
		}

		if i == len(results)-1 {
			currentStreak = tempStreak
		}
	}

	recentCount := 20
	if len(results) < recentCount {
		recentCount = len(results)
	}

	t.storage.UpdateStats(asset, types.Stats{
		Asset:         asset,
		TotalSignals:  len(results),
		Wins:          wins,
		Losses:        len(results) - wins,
		WinRate:       float64(wins) / float64(len(results)) * 100,
		BestStreak:    bestStreak,
		CurrentStreak: currentStreak,
		LastUpdated:   time.Now(),
		RecentResults: results[len(results)-recentCount:],
	})
}

// RecalculateAll refreshes statistics for every asset with results.
func (t *ResultTracker) RecalculateAll(assets []string) {
	for _, asset := range assets {
		t.UpdateStats(asset)
	}
}
