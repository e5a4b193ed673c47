// Package trend classifies market direction from closed coarse candles
// using a swing-high/low confirmation streak.
package trend

import (
	"eo-trader/pkg/types"

	"github.com/shopspring/decimal"
)

// Classifier maintains rolling swing state for one asset. It is updated
// exactly once per newly closed coarse candle and persists until Reset.
type Classifier struct {
	asset        string
	confirmation int

	seeded    bool
	swingHigh decimal.Decimal
	swingLow  decimal.Decimal

	upStreak   int
	downStreak int
	direction  types.TrendDirection
}

// NewClassifier creates a classifier requiring the given number of
// consecutive confirming candles before a direction is declared.
func NewClassifier(asset string, confirmation int) *Classifier {
	return &Classifier{
		asset:        asset,
		confirmation: confirmation,
		direction:    types.TrendNone,
	}
}

// OnCoarseClosed folds one closed coarse candle into the swing state and
// returns the resulting trend.
func (c *Classifier) OnCoarseClosed(candle types.Candle) types.TrendState {
	if !c.seeded {
		// First candle only seeds the swing extremes.
		c.swingHigh = candle.High
		c.swingLow = candle.Low
		c.seeded = true
		return c.state(candle)
	}

	higherHigh := candle.High.GreaterThan(c.swingHigh)
	higherLow := candle.Low.GreaterThan(c.swingLow)
	lowerHigh := candle.High.LessThan(c.swingHigh)
	lowerLow := candle.Low.LessThan(c.swingLow)

	switch {
	case higherHigh && higherLow:
		c.upStreak++
		c.downStreak = 0
		if c.direction == types.TrendDown {
			// Contradicting bar: back to none pending fresh confirmation.
			c.direction = types.TrendNone
		}
		c.swingHigh = candle.High
		c.swingLow = candle.Low

	case lowerHigh && lowerLow:
		c.downStreak++
		c.upStreak = 0
		if c.direction == types.TrendUp {
			c.direction = types.TrendNone
		}
		c.swingHigh = candle.High
		c.swingLow = candle.Low

	default:
		// Mixed or equal extremes: ambiguous bar, streaks and swings
		// held over unchanged.
	}

	if c.upStreak >= c.confirmation {
		c.direction = types.TrendUp
	} else if c.downStreak >= c.confirmation {
		c.direction = types.TrendDown
	}

	return c.state(candle)
}

// State returns the current trend without consuming a candle.
func (c *Classifier) State() types.TrendState {
	return types.TrendState{
		Asset:         c.asset,
		Direction:     c.direction,
		Streak:        c.streak(),
		LastSwingHigh: c.swingHigh,
		LastSwingLow:  c.swingLow,
	}
}

// Reset restores the initial state, e.g. on session restart.
func (c *Classifier) Reset() {
	c.seeded = false
	c.swingHigh = decimal.Zero
	c.swingLow = decimal.Zero
	c.upStreak = 0
	c.downStreak = 0
	c.direction = types.TrendNone
}

func (c *Classifier) state(candle types.Candle) types.TrendState {
	s := c.State()
	s.UpdatedAt = candle.BucketStart
	return s
}

func (c *Classifier) streak() int {
	if c.downStreak > c.upStreak {
		return c.downStreak
	}
	return c.upStreak
}
