package storage

import (
	"sync"
	"time"

	"eo-trader/pkg/types"

	"github.com/shopspring/decimal"
)

// MemoryStorage keeps the bounded rolling analysis window in memory:
// recent closed candles, issued signals, tracked results and stats.
// Open candles are never stored here; the aggregator owns them.
type MemoryStorage struct {
	candles    map[string]map[types.Timeframe][]types.Candle
	signals    map[string][]types.TradeSignal
	results    map[string][]types.SignalResult
	stats      map[string]*types.Stats
	lastPrice  map[string]decimal.Decimal
	trend      map[string]types.TrendState
	mu         sync.RWMutex
	maxCandles int
}

// NewMemoryStorage creates a store keeping at most maxCandles closed
// candles per asset and timeframe.
func NewMemoryStorage(maxCandles int) *MemoryStorage {
	return &MemoryStorage{
		candles:    make(map[string]map[types.Timeframe][]types.Candle),
		signals:    make(map[string][]types.TradeSignal),
		results:    make(map[string][]types.SignalResult),
		stats:      make(map[string]*types.Stats),
		lastPrice:  make(map[string]decimal.Decimal),
		trend:      make(map[string]types.TrendState),
		maxCandles: maxCandles,
	}
}

// AddCandle records a closed candle and trims the rolling window.
func (s *MemoryStorage) AddCandle(candle types.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byTimeframe, ok := s.candles[candle.Asset]
	if !ok {
		byTimeframe = make(map[types.Timeframe][]types.Candle)
		s.candles[candle.Asset] = byTimeframe
	}

	window := append(byTimeframe[candle.Timeframe], candle)
	if len(window) > s.maxCandles {
		window = window[len(window)-s.maxCandles:]
	}
	byTimeframe[candle.Timeframe] = window

	if candle.Timeframe == types.TimeframeFine {
		s.lastPrice[candle.Asset] = candle.Close
	}
}

// GetCandles returns the last n closed candles for an asset and timeframe.
func (s *MemoryStorage) GetCandles(asset string, tf types.Timeframe, n int) []types.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	window := s.candles[asset][tf]
	if len(window) > n {
		window = window[len(window)-n:]
	}
	return append([]types.Candle{}, window...)
}

// SetLatestPrice records the most recent traded price for an asset.
func (s *MemoryStorage) SetLatestPrice(asset string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPrice[asset] = price
}

// GetLatestPrice returns the most recent price, zero when unknown.
func (s *MemoryStorage) GetLatestPrice(asset string) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastPrice[asset]
}

// SetTrend records the latest trend state for an asset.
func (s *MemoryStorage) SetTrend(state types.TrendState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trend[state.Asset] = state
}

// GetTrend returns the latest trend state for an asset.
func (s *MemoryStorage) GetTrend(asset string) (types.TrendState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.trend[asset]
	return state, ok
}

// StoreSignal records an issued signal.
func (s *MemoryStorage) StoreSignal(signal types.TradeSignal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals[signal.Asset] = append(s.signals[signal.Asset], signal)
}

// GetSignals returns all recorded signals for an asset.
func (s *MemoryStorage) GetSignals(asset string) []types.TradeSignal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.TradeSignal{}, s.signals[asset]...)
}

// StoreResult records a tracked signal outcome.
func (s *MemoryStorage) StoreResult(result types.SignalResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.Asset] = append(s.results[result.Asset], result)
}

// GetResults returns all tracked outcomes for an asset.
func (s *MemoryStorage) GetResults(asset string) []types.SignalResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.SignalResult{}, s.results[asset]...)
}

// UpdateStats replaces the statistics for an asset.
func (s *MemoryStorage) UpdateStats(asset string, stats types.Stats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[asset] = &stats
}

// GetStats returns statistics for an asset.
func (s *MemoryStorage) GetStats(asset string) *types.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if stats, ok := s.stats[asset]; ok {
		statsCopy := *stats
		return &statsCopy
	}
	return &types.Stats{Asset: asset, LastUpdated: time.Now()}
}

// GetAllStats returns statistics for every asset that has any.
func (s *MemoryStorage) GetAllStats() map[string]*types.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make(map[string]*types.Stats, len(s.stats))
	for asset, stats := range s.stats {
		statsCopy := *stats
		all[asset] = &statsCopy
	}
	return all
}

// Cleanup drops signals and results older than the retention window.
func (s *MemoryStorage) Cleanup(keepHours int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-time.Duration(keepHours) * time.Hour)

	for asset, signals := range s.signals {
		kept := signals[:0]
		for _, signal := range signals {
			if signal.IssuedAt.After(cutoff) {
				kept = append(kept, signal)
			}
		}
		s.signals[asset] = kept
	}

	for asset, results := range s.results {
		kept := results[:0]
		for _, result := range results {
			if result.ResolvedAt.After(cutoff) {
				kept = append(kept, result)
			}
		}
		s.results[asset] = kept
	}
}
