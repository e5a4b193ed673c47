// Package candles folds the raw fine-grained candle stream into aligned,
// closed candles at the fine, mid and coarse timeframes.
//
// Mid and coarse candles are built by folding closed fine candles, never
// directly from raw ticks, so the three timeframes always agree.
package candles

import (
	"errors"
	"fmt"
	"time"

	"eo-trader/pkg/types"

	"github.com/shopspring/decimal"
)

var (
	// ErrMalformedTick marks a tick that failed basic sanity checks.
	// The tick is rejected and aggregator state is untouched.
	ErrMalformedTick = errors.New("malformed tick")

	// ErrLateTick marks a tick whose bucket precedes the currently open
	// bucket or falls into one that was already sealed. Expected under
	// network jitter; rejected without mutation.
	ErrLateTick = errors.New("late tick")
)

// Aggregator owns the in-progress candles for a single asset. Closed
// candles are handed out by value and never re-opened.
type Aggregator struct {
	asset  string
	fine   time.Duration
	mid    time.Duration
	coarse time.Duration

	openFine   *types.Candle
	openMid    *types.Candle
	openCoarse *types.Candle

	// sealedThrough is the start of the latest fine bucket whose data is
	// final. Survives boundary flushes, where openFine goes nil.
	sealedThrough time.Time
}

// NewAggregator creates an aggregator for one asset. Durations must be
// strictly increasing and nest exactly; config validation guarantees it.
func NewAggregator(asset string, fine, mid, coarse time.Duration) *Aggregator {
	return &Aggregator{
		asset:  asset,
		fine:   fine,
		mid:    mid,
		coarse: coarse,
	}
}

// Ingest applies one raw tick and returns any candles it closed in
// chronological close order: a mid or coarse candle sealed by a fine
// closure ends earlier and precedes it. Per-tick errors are local: the
// caller logs them and keeps feeding.
func (a *Aggregator) Ingest(tick types.Tick) ([]types.Candle, error) {
	if err := validateTick(tick); err != nil {
		return nil, err
	}

	bucket := tick.Timestamp.Truncate(a.fine)

	if a.openFine != nil {
		if bucket.Before(a.openFine.BucketStart) {
			return nil, fmt.Errorf("%w: %s bucket %s precedes open bucket %s",
				ErrLateTick, a.asset, bucket.Format(time.RFC3339), a.openFine.BucketStart.Format(time.RFC3339))
		}
	} else if !bucket.After(a.sealedThrough) {
		// No open candle after a boundary flush, but sealed buckets stay
		// final: a jittered tick must not re-create one.
		return nil, fmt.Errorf("%w: %s bucket %s already sealed",
			ErrLateTick, a.asset, bucket.Format(time.RFC3339))
	}

	var closed []types.Candle

	if a.openFine == nil || bucket.After(a.openFine.BucketStart) {
		// Gap buckets with no ticks are skipped, not synthesized.
		closed = a.sealFine(closed)
		a.openFine = newCandle(a.asset, types.TimeframeFine, bucket, tick.Open, tick.High, tick.Low, tick.Close)
	} else {
		mergeTick(a.openFine, tick)
	}

	return closed, nil
}

// CloseElapsed seals any open candle whose close boundary has elapsed
// without a follow-up tick and returns the sealed candles.
func (a *Aggregator) CloseElapsed(now time.Time) []types.Candle {
	var closed []types.Candle

	if a.openFine != nil && !now.Before(a.openFine.BucketStart.Add(a.fine)) {
		closed = a.sealFine(closed)
	}
	if a.openMid != nil && !now.Before(a.openMid.BucketStart.Add(a.mid)) {
		a.markSealed(a.openMid.BucketStart.Add(a.mid - a.fine))
		closed = append(closed, seal(a.openMid))
		a.openMid = nil
	}
	if a.openCoarse != nil && !now.Before(a.openCoarse.BucketStart.Add(a.coarse)) {
		a.markSealed(a.openCoarse.BucketStart.Add(a.coarse - a.fine))
		closed = append(closed, seal(a.openCoarse))
		a.openCoarse = nil
	}

	return closed
}

// sealFine closes the open fine candle, folds it into the mid and coarse
// aggregation paths and appends everything that closed.
func (a *Aggregator) sealFine(closed []types.Candle) []types.Candle {
	if a.openFine == nil {
		return closed
	}

	fine := seal(a.openFine)
	a.openFine = nil
	a.markSealed(fine.BucketStart)

	var sealedMid, sealedCoarse *types.Candle
	a.openMid, sealedMid = fold(a.openMid, fine, types.TimeframeMid, a.mid)
	a.openCoarse, sealedCoarse = fold(a.openCoarse, fine, types.TimeframeCoarse, a.coarse)

	// Sealed coarser candles end at the fine candle's bucket start, so
	// they go out first to keep close order chronological.
	if sealedMid != nil {
		closed = append(closed, *sealedMid)
	}
	if sealedCoarse != nil {
		closed = append(closed, *sealedCoarse)
	}

	return append(closed, fine)
}

// markSealed advances the sealed watermark. Sealing a mid or coarse
// candle directly finalizes every fine bucket inside its window, so the
// watermark moves to the last of them.
func (a *Aggregator) markSealed(bucket time.Time) {
	if bucket.After(a.sealedThrough) {
		a.sealedThrough = bucket
	}
}

// fold merges a closed fine candle into the open candle of a coarser
// timeframe, sealing the previous one when the fine candle starts a new
// coarser bucket.
func fold(open *types.Candle, fine types.Candle, tf types.Timeframe, d time.Duration) (*types.Candle, *types.Candle) {
	bucket := fine.BucketStart.Truncate(d)

	if open == nil {
		return newCandle(fine.Asset, tf, bucket, fine.Open, fine.High, fine.Low, fine.Close), nil
	}

	if bucket.Equal(open.BucketStart) {
		open.High = decimal.Max(open.High, fine.High)
		open.Low = decimal.Min(open.Low, fine.Low)
		open.Close = fine.Close
		return open, nil
	}

	sealed := seal(open)
	return newCandle(fine.Asset, tf, bucket, fine.Open, fine.High, fine.Low, fine.Close), &sealed
}

func newCandle(asset string, tf types.Timeframe, bucket time.Time, open, high, low, close_ decimal.Decimal) *types.Candle {
	return &types.Candle{
		Asset:       asset,
		Timeframe:   tf,
		BucketStart: bucket,
		Open:        open,
		High:        high,
		Low:         low,
		Close:       close_,
	}
}

func mergeTick(c *types.Candle, tick types.Tick) {
	c.High = decimal.Max(c.High, tick.High)
	c.Low = decimal.Min(c.Low, tick.Low)
	c.Close = tick.Close
}

func seal(c *types.Candle) types.Candle {
	c.Closed = true
	return *c
}

func validateTick(tick types.Tick) error {
	if tick.Asset == "" {
		return fmt.Errorf("%w: missing asset", ErrMalformedTick)
	}
	if tick.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrMalformedTick)
	}
	for _, p := range []decimal.Decimal{tick.Open, tick.High, tick.Low, tick.Close} {
		if !p.IsPositive() {
			return fmt.Errorf("%w: non-positive price %s", ErrMalformedTick, p)
		}
	}
	if tick.High.LessThan(decimal.Max(tick.Open, tick.Close)) {
		return fmt.Errorf("%w: high %s below body", ErrMalformedTick, tick.High)
	}
	if tick.Low.GreaterThan(decimal.Min(tick.Open, tick.Close)) {
		return fmt.Errorf("%w: low %s above body", ErrMalformedTick, tick.Low)
	}
	return nil
}
