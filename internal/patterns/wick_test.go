package patterns

import (
	"testing"
	"time"

	"eo-trader/pkg/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fine(open, high, low, close_ float64) types.Candle {
	return types.Candle{
		Asset:       "EURUSD",
		Timeframe:   types.TimeframeFine,
		BucketStart: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Open:        decimal.NewFromFloat(open),
		High:        decimal.NewFromFloat(high),
		Low:         decimal.NewFromFloat(low),
		Close:       decimal.NewFromFloat(close_),
		Closed:      true,
	}
}

func TestOnFineClosed(t *testing.T) {
	tests := []struct {
		name   string
		candle types.Candle
		want   types.WickKind // "" means no event
	}{
		// body 1, tail 5, head 0.5: tail is 5x body and dominates.
		{"long tail", fine(100, 101.5, 95, 101), types.WickLongTail},
		// Mirror image of the long tail case.
		{"long head", fine(101, 106, 99.5, 100), types.WickLongHead},
		// body 1, tail 1.5: below the 2x ratio threshold.
		{"tail below threshold", fine(100, 101.2, 98.5, 101), ""},
		// Both wicks long but equal: neither dominates, no event.
		{"symmetric wicks", fine(100, 103.5, 97.5, 101), ""},
		// Both wicks clear the ratio; only the dominant head is reported.
		{"head outgrows qualifying tail", fine(100, 104, 97.5, 101), types.WickLongHead},
		{"marubozu", fine(100, 101, 100, 101), ""},
	}

	d := NewDetector(2.0, 0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := d.OnFineClosed(tt.candle)
			if tt.want == "" {
				assert.Nil(t, event)
				return
			}
			require.NotNil(t, event)
			assert.Equal(t, tt.want, event.Kind)
			assert.Equal(t, tt.candle.Asset, event.Asset)
			assert.Equal(t, tt.candle.BucketStart, event.BucketStart)
		})
	}
}

func TestRatioIsWickOverBody(t *testing.T) {
	d := NewDetector(2.0, 0)

	event := d.OnFineClosed(fine(100, 101.5, 95, 101))
	require.NotNil(t, event)
	assert.InDelta(t, 5.0, event.Ratio, 1e-9)
}

func TestDojiUsesAbsoluteWickFloor(t *testing.T) {
	// Zero body: the ratio rule is meaningless, only the absolute floor
	// can qualify the wick.
	doji := fine(100, 100.01, 99.99, 100)

	t.Run("no floor configured", func(t *testing.T) {
		d := NewDetector(2.0, 0)
		assert.Nil(t, d.OnFineClosed(doji))
	})

	t.Run("wick below floor", func(t *testing.T) {
		d := NewDetector(2.0, 0.05)
		assert.Nil(t, d.OnFineClosed(fine(100, 100.01, 99.97, 100)))
	})

	t.Run("wick above floor", func(t *testing.T) {
		d := NewDetector(2.0, 0.05)
		event := d.OnFineClosed(fine(100, 100.01, 99.9, 100))
		require.NotNil(t, event)
		assert.Equal(t, types.WickLongTail, event.Kind)
	})
}

func TestNeverBothKindsForOneCandle(t *testing.T) {
	d := NewDetector(0.5, 0)

	// With a permissive threshold both wicks qualify on ratio; only the
	// dominant one is reported.
	event := d.OnFineClosed(fine(100, 102, 97, 101))
	require.NotNil(t, event)
	assert.Equal(t, types.WickLongTail, event.Kind)

	event = d.OnFineClosed(fine(101, 104, 99, 100))
	require.NotNil(t, event)
	assert.Equal(t, types.WickLongHead, event.Kind)
}
