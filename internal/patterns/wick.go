// Package patterns detects long-wick reversal patterns on closed fine
// candles.
package patterns

import (
	"eo-trader/pkg/types"

	"github.com/shopspring/decimal"
)

// epsilon guards the wick/body comparison against doji candles whose
// body is effectively zero.
var epsilon = decimal.New(1, -9)

// Detector computes wick ratios for one asset and emits a WickEvent when
// one wick dominates the candle.
type Detector struct {
	ratioThreshold  decimal.Decimal
	minAbsoluteWick decimal.Decimal
}

// NewDetector creates a detector. ratioThreshold is the minimum
// wick-to-body ratio; minAbsoluteWick is the absolute wick length a doji
// candle needs to qualify.
func NewDetector(ratioThreshold, minAbsoluteWick float64) *Detector {
	return &Detector{
		ratioThreshold:  decimal.NewFromFloat(ratioThreshold),
		minAbsoluteWick: decimal.NewFromFloat(minAbsoluteWick),
	}
}

// OnFineClosed inspects one closed fine candle and returns a WickEvent,
// or nil when neither wick qualifies. At most one kind is ever emitted
// for a single candle.
func (d *Detector) OnFineClosed(candle types.Candle) *types.WickEvent {
	body := candle.Body()
	tail := candle.Tail()
	head := candle.Head()

	if tail.GreaterThan(head) && d.isLong(tail, body) {
		return d.event(candle, types.WickLongTail, tail, body)
	}
	if head.GreaterThan(tail) && d.isLong(head, body) {
		return d.event(candle, types.WickLongHead, head, body)
	}
	return nil
}

// isLong reports whether a wick dominates the body. Doji candles (body
// below epsilon) qualify only in absolute terms.
func (d *Detector) isLong(wick, body decimal.Decimal) bool {
	if body.LessThanOrEqual(epsilon) {
		return wick.GreaterThanOrEqual(d.minAbsoluteWick) && d.minAbsoluteWick.IsPositive()
	}
	return wick.GreaterThanOrEqual(d.ratioThreshold.Mul(body))
}

func (d *Detector) event(candle types.Candle, kind types.WickKind, wick, body decimal.Decimal) *types.WickEvent {
	ratio, _ := wick.Div(decimal.Max(body, epsilon)).Float64()
	return &types.WickEvent{
		Asset:       candle.Asset,
		Kind:        kind,
		Ratio:       ratio,
		BucketStart: candle.BucketStart,
	}
}
