package candles

import (
	"testing"
	"time"

	"eo-trader/pkg/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestAggregator() *Aggregator {
	return NewAggregator("EURUSD", 10*time.Second, time.Minute, 5*time.Minute)
}

func tick(ts time.Time, open, high, low, close_ float64) types.Tick {
	return types.Tick{
		Asset:     "EURUSD",
		Timestamp: ts,
		Open:      decimal.NewFromFloat(open),
		High:      decimal.NewFromFloat(high),
		Low:       decimal.NewFromFloat(low),
		Close:     decimal.NewFromFloat(close_),
	}
}

func flat(ts time.Time, price float64) types.Tick {
	return tick(ts, price, price, price, price)
}

func TestIngestMergesSameBucket(t *testing.T) {
	agg := newTestAggregator()

	closed, err := agg.Ingest(tick(t0, 100, 101, 99, 100.5))
	require.NoError(t, err)
	assert.Empty(t, closed)

	// Same 10s bucket: open fixed, extremes widened, close replaced.
	closed, err = agg.Ingest(tick(t0.Add(4*time.Second), 100.5, 102, 98, 101))
	require.NoError(t, err)
	assert.Empty(t, closed)

	// First tick of the next bucket seals the previous one.
	closed, err = agg.Ingest(flat(t0.Add(10*time.Second), 101))
	require.NoError(t, err)
	require.Len(t, closed, 1)

	fine := closed[0]
	assert.Equal(t, types.TimeframeFine, fine.Timeframe)
	assert.True(t, fine.Closed)
	assert.Equal(t, t0, fine.BucketStart)
	assert.True(t, fine.Open.Equal(decimal.NewFromFloat(100)))
	assert.True(t, fine.High.Equal(decimal.NewFromFloat(102)))
	assert.True(t, fine.Low.Equal(decimal.NewFromFloat(98)))
	assert.True(t, fine.Close.Equal(decimal.NewFromFloat(101)))
}

func TestIngestOneCandlePerBucket(t *testing.T) {
	agg := newTestAggregator()

	var closed []types.Candle
	for i := 0; i < 8; i++ {
		out, err := agg.Ingest(flat(t0.Add(time.Duration(i)*10*time.Second), 100))
		require.NoError(t, err)
		closed = append(closed, out...)
	}

	// 8 ticks in 8 distinct buckets close the first 7; candle 8 stays open.
	fine := filter(closed, types.TimeframeFine)
	require.Len(t, fine, 7)
	for i, c := range fine {
		assert.Equal(t, t0.Add(time.Duration(i)*10*time.Second), c.BucketStart)
		assert.True(t, c.Closed)
	}

	mid := filter(closed, types.TimeframeMid)
	require.Len(t, mid, 1)
	assert.Equal(t, t0, mid[0].BucketStart)
}

func TestIngestBucketAlignment(t *testing.T) {
	agg := newTestAggregator()

	// Unaligned timestamp lands in the floor bucket.
	_, err := agg.Ingest(flat(t0.Add(13*time.Second), 100))
	require.NoError(t, err)

	closed, err := agg.Ingest(flat(t0.Add(20*time.Second), 100))
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, t0.Add(10*time.Second), closed[0].BucketStart)
}

func TestIngestLateTickRejectedWithoutMutation(t *testing.T) {
	agg := newTestAggregator()

	_, err := agg.Ingest(tick(t0.Add(30*time.Second), 100, 101, 99, 100))
	require.NoError(t, err)

	// Bucket strictly before the open bucket.
	closed, err := agg.Ingest(flat(t0.Add(15*time.Second), 50))
	require.ErrorIs(t, err, ErrLateTick)
	assert.Empty(t, closed)

	// The open candle was untouched: sealing it shows the original OHLC.
	closed, err = agg.Ingest(flat(t0.Add(40*time.Second), 100))
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.True(t, closed[0].Low.Equal(decimal.NewFromFloat(99)))
}

func TestIngestLateTickAfterBoundaryFlush(t *testing.T) {
	agg := newTestAggregator()

	_, err := agg.Ingest(flat(t0, 100))
	require.NoError(t, err)

	closed := agg.CloseElapsed(t0.Add(10 * time.Second))
	require.Len(t, closed, 1)
	require.Equal(t, t0, closed[0].BucketStart)

	// No candle is open after the flush, but the sealed bucket stays
	// final: a jittered tick for it must not re-create the candle.
	out, err := agg.Ingest(flat(t0.Add(2*time.Second), 50))
	require.ErrorIs(t, err, ErrLateTick)
	assert.Empty(t, out)

	// The next bucket opens normally and exactly one candle ever exists
	// for each completed bucket.
	out, err = agg.Ingest(flat(t0.Add(10*time.Second), 100))
	require.NoError(t, err)
	assert.Empty(t, out)

	closed = agg.CloseElapsed(t0.Add(20 * time.Second))
	require.Len(t, closed, 1)
	assert.Equal(t, t0.Add(10*time.Second), closed[0].BucketStart)
}

func TestIngestRejectsTickIntoFlushedMidBucket(t *testing.T) {
	agg := newTestAggregator()

	_, err := agg.Ingest(flat(t0, 100))
	require.NoError(t, err)

	// Long silence: the flush seals the fine candle and the whole first
	// mid bucket.
	closed := agg.CloseElapsed(t0.Add(2 * time.Minute))
	require.Len(t, closed, 2)
	assert.Equal(t, types.TimeframeFine, closed[0].Timeframe)
	assert.Equal(t, types.TimeframeMid, closed[1].Timeframe)

	// A fine bucket inside the sealed mid window would regress the mid
	// stream, so the tick is late.
	_, err = agg.Ingest(flat(t0.Add(30*time.Second), 100))
	require.ErrorIs(t, err, ErrLateTick)

	// The first bucket of the next mid window is accepted.
	_, err = agg.Ingest(flat(t0.Add(time.Minute), 100))
	require.NoError(t, err)
}

func TestIngestMalformedTickRejected(t *testing.T) {
	tests := []struct {
		name string
		tick types.Tick
	}{
		{"missing asset", types.Tick{Timestamp: t0, Open: decimal.NewFromInt(1), High: decimal.NewFromInt(1), Low: decimal.NewFromInt(1), Close: decimal.NewFromInt(1)}},
		{"zero timestamp", tick(time.Time{}, 100, 101, 99, 100)},
		{"non-positive price", tick(t0, 100, 101, -1, 100)},
		{"high below body", tick(t0, 100, 99, 98, 100)},
		{"low above body", tick(t0, 100, 101, 100.5, 100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := newTestAggregator()
			closed, err := agg.Ingest(tt.tick)
			require.ErrorIs(t, err, ErrMalformedTick)
			assert.Empty(t, closed)

			// Errors never poison the stream: a valid tick still works.
			_, err = agg.Ingest(flat(t0, 100))
			assert.NoError(t, err)
		})
	}
}

func TestIngestSkipsGapBuckets(t *testing.T) {
	agg := newTestAggregator()

	_, err := agg.Ingest(flat(t0, 100))
	require.NoError(t, err)

	// Jump over three empty buckets. Only the candle that actually had
	// ticks closes; nothing is synthesized for the gap.
	closed, err := agg.Ingest(flat(t0.Add(40*time.Second), 101))
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, t0, closed[0].BucketStart)
}

func TestMidAndCoarseFoldFromFineCandles(t *testing.T) {
	agg := newTestAggregator()

	// One tick per fine bucket across a full 5m coarse bucket, prices
	// shaped so each timeframe's OHLC is distinguishable.
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = 100 + float64(i%7)
	}
	prices[0] = 100  // coarse open
	prices[12] = 120 // coarse high
	prices[17] = 90  // coarse low
	prices[29] = 105 // coarse close

	var closed []types.Candle
	for i, p := range prices {
		out, err := agg.Ingest(flat(t0.Add(time.Duration(i)*10*time.Second), p))
		require.NoError(t, err)
		closed = append(closed, out...)
	}

	// The coarse candle seals once the first fine candle of the next
	// coarse bucket closes, so two more ticks are needed.
	for _, offset := range []time.Duration{5 * time.Minute, 5*time.Minute + 10*time.Second} {
		out, err := agg.Ingest(flat(t0.Add(offset), 105))
		require.NoError(t, err)
		closed = append(closed, out...)
	}

	mids := filter(closed, types.TimeframeMid)
	require.Len(t, mids, 5)
	for i, m := range mids {
		assert.Equal(t, t0.Add(time.Duration(i)*time.Minute), m.BucketStart)
	}
	// Third minute covers indices 12..17: high 120, low 90.
	assert.True(t, mids[2].High.Equal(decimal.NewFromFloat(120)))
	assert.True(t, mids[2].Low.Equal(decimal.NewFromFloat(90)))

	coarse := filter(closed, types.TimeframeCoarse)
	require.Len(t, coarse, 1)
	c := coarse[0]
	assert.Equal(t, t0, c.BucketStart)
	assert.True(t, c.Open.Equal(decimal.NewFromFloat(100)))
	assert.True(t, c.High.Equal(decimal.NewFromFloat(120)))
	assert.True(t, c.Low.Equal(decimal.NewFromFloat(90)))
	assert.True(t, c.Close.Equal(decimal.NewFromFloat(105)))
}

func TestSealedCoarserCandlesPrecedeTheFineCandle(t *testing.T) {
	agg := newTestAggregator()

	for i := 0; i < 30; i++ {
		_, err := agg.Ingest(flat(t0.Add(time.Duration(i)*10*time.Second), 100))
		require.NoError(t, err)
	}

	// Tick 31 closes the last fine candle of the coarse bucket; tick 32
	// closes the first fine candle of the next one, sealing mid + coarse.
	_, err := agg.Ingest(flat(t0.Add(5*time.Minute), 100))
	require.NoError(t, err)
	closed, err := agg.Ingest(flat(t0.Add(5*time.Minute+10*time.Second), 100))
	require.NoError(t, err)

	require.Len(t, closed, 3)
	assert.Equal(t, types.TimeframeMid, closed[0].Timeframe)
	assert.Equal(t, types.TimeframeCoarse, closed[1].Timeframe)
	assert.Equal(t, types.TimeframeFine, closed[2].Timeframe)
}

func TestCloseElapsedSealsWithoutFollowUpTick(t *testing.T) {
	agg := newTestAggregator()

	_, err := agg.Ingest(tick(t0, 100, 101, 99, 100.5))
	require.NoError(t, err)

	// Boundary not reached yet.
	assert.Empty(t, agg.CloseElapsed(t0.Add(9*time.Second)))

	closed := agg.CloseElapsed(t0.Add(10 * time.Second))
	require.Len(t, closed, 1)
	assert.Equal(t, types.TimeframeFine, closed[0].Timeframe)
	assert.True(t, closed[0].Closed)

	// Idempotent: nothing left to seal until the mid boundary.
	assert.Empty(t, agg.CloseElapsed(t0.Add(11*time.Second)))

	closed = agg.CloseElapsed(t0.Add(time.Minute))
	require.Len(t, closed, 1)
	assert.Equal(t, types.TimeframeMid, closed[0].Timeframe)

	closed = agg.CloseElapsed(t0.Add(5 * time.Minute))
	require.Len(t, closed, 1)
	assert.Equal(t, types.TimeframeCoarse, closed[0].Timeframe)
}

func filter(candles []types.Candle, tf types.Timeframe) []types.Candle {
	var out []types.Candle
	for _, c := range candles {
		if c.Timeframe == tf {
			out = append(out, c)
		}
	}
	return out
}
