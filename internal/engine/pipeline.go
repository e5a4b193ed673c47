package engine

import (
	"fmt"
	"sync"
	"time"

	"eo-trader/internal/candles"
	"eo-trader/internal/patterns"
	"eo-trader/internal/trend"
	"eo-trader/pkg/types"
)

// Result carries everything one tick (or boundary flush) produced.
type Result struct {
	Closed  []types.Candle
	Trend   *types.TrendState
	Wicks   []types.WickEvent
	Signals []types.TradeSignal
}

// Pipeline is the strictly ordered per-asset processing chain:
// aggregate, classify, detect, decide. All mutable state is owned by
// one pipeline instance; a mutex serializes callers so processing order
// equals arrival order.
type Pipeline struct {
	mu sync.Mutex

	asset      string
	aggregator *candles.Aggregator
	classifier *trend.Classifier
	detector   *patterns.Detector
	decision   *DecisionEngine

	staleAfter  time.Duration
	lastArrival time.Time
	lastTick    time.Time
}

// NewPipeline wires the components for one asset from the pipeline
// configuration.
func NewPipeline(asset string, cfg types.PipelineConfig) *Pipeline {
	return &Pipeline{
		asset:      asset,
		aggregator: candles.NewAggregator(asset, cfg.Fine(), cfg.Mid(), cfg.Coarse()),
		classifier: trend.NewClassifier(asset, cfg.TrendConfirmationCount),
		detector:   patterns.NewDetector(cfg.WickRatioThreshold, cfg.MinAbsoluteWick),
		decision:   NewDecisionEngine(asset, cfg.Cooldown()),
		staleAfter: time.Duration(cfg.StaleAfterIntervals) * cfg.Fine(),
	}
}

// OnTick processes one raw tick. The tick timestamp is the logical
// clock for every downstream transition, so replaying a recorded stream
// yields identical signals.
func (p *Pipeline) OnTick(tick types.Tick) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	closed, err := p.aggregator.Ingest(tick)
	if err != nil {
		return Result{}, err
	}

	p.lastArrival = time.Now()
	p.lastTick = tick.Timestamp
	return p.dispatch(closed, tick.Timestamp), nil
}

// FlushElapsed seals candles whose close boundary elapsed without a
// follow-up tick and runs the same downstream dispatch. now is wall
// time; it is translated onto the tick clock first.
func (p *Pipeline) FlushElapsed(now time.Time) Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	logical := p.tickClock(now)
	return p.dispatch(p.aggregator.CloseElapsed(logical), logical)
}

// tickClock maps a wall-clock instant onto the tick clock: the last tick
// timestamp plus the wall time elapsed since it arrived. Broker epochs
// may be skewed against local time, and cooldown windows are measured in
// tick time, so flush and read paths must not compare raw wall time
// against them.
func (p *Pipeline) tickClock(now time.Time) time.Time {
	if p.lastArrival.IsZero() {
		return now
	}
	return p.lastTick.Add(now.Sub(p.lastArrival))
}

// dispatch routes closed candles to the classifier and detector in
// emission order and collects any signals the decision engine emits.
func (p *Pipeline) dispatch(closed []types.Candle, now time.Time) Result {
	result := Result{Closed: closed}

	for _, candle := range closed {
		switch candle.Timeframe {
		case types.TimeframeCoarse:
			state := p.classifier.OnCoarseClosed(candle)
			p.decision.OnTrend(state, now)
			result.Trend = &state

		case types.TimeframeFine:
			event := p.detector.OnFineClosed(candle)
			if event == nil {
				continue
			}
			result.Wicks = append(result.Wicks, *event)
			if signal := p.decision.OnWick(*event, candle.Close, now); signal != nil {
				result.Signals = append(result.Signals, *signal)
			}
		}
	}

	return result
}

// TrendState returns the current trend belief.
func (p *Pipeline) TrendState() types.TrendState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.classifier.State()
}

// DecisionState returns the current machine state as of the wall-clock
// instant now.
func (p *Pipeline) DecisionState(now time.Time) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.decision.State(p.tickClock(now))
}

// Stale reports whether no tick arrived within the staleness window.
// The trend state is deliberately kept across short gaps; the caller
// decides whether prolonged staleness warrants a Reset.
func (p *Pipeline) Stale(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.lastArrival.IsZero() && now.Sub(p.lastArrival) > p.staleAfter
}

// Reset clears trend and decision state after prolonged staleness or a
// session restart. Aggregation state is kept: open buckets still seal
// correctly when the feed resumes.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.classifier.Reset()
	p.decision.Reset()
}

// Manager owns one pipeline per tracked asset. Distinct assets share no
// mutable state and may be processed concurrently.
type Manager struct {
	pipelines map[string]*Pipeline
}

// NewManager creates a pipeline for each configured asset.
func NewManager(assets []string, cfg types.PipelineConfig) *Manager {
	pipelines := make(map[string]*Pipeline, len(assets))
	for _, asset := range assets {
		pipelines[asset] = NewPipeline(asset, cfg)
	}
	return &Manager{pipelines: pipelines}
}

// OnTick routes a tick to its asset pipeline.
func (m *Manager) OnTick(tick types.Tick) (Result, error) {
	pipeline, ok := m.pipelines[tick.Asset]
	if !ok {
		return Result{}, fmt.Errorf("no pipeline for asset %q", tick.Asset)
	}
	return pipeline.OnTick(tick)
}

// FlushElapsed runs the boundary flush on every pipeline and returns the
// per-asset results.
func (m *Manager) FlushElapsed(now time.Time) map[string]Result {
	results := make(map[string]Result)
	for asset, pipeline := range m.pipelines {
		result := pipeline.FlushElapsed(now)
		if len(result.Closed) > 0 {
			results[asset] = result
		}
	}
	return results
}

// Pipeline returns the pipeline for an asset.
func (m *Manager) Pipeline(asset string) (*Pipeline, bool) {
	pipeline, ok := m.pipelines[asset]
	return pipeline, ok
}

// Assets lists the tracked assets.
func (m *Manager) Assets() []string {
	assets := make([]string, 0, len(m.pipelines))
	for asset := range m.pipelines {
		assets = append(assets, asset)
	}
	return assets
}

// StaleAssets lists assets whose feed went quiet past the staleness
// window.
func (m *Manager) StaleAssets(now time.Time) []string {
	var stale []string
	for asset, pipeline := range m.pipelines {
		if pipeline.Stale(now) {
			stale = append(stale, asset)
		}
	}
	return stale
}
