// Package engine combines trend state and wick events into trade signals
// under a per-asset Idle/Armed/Cooldown state machine.
package engine

import (
	"time"

	"eo-trader/pkg/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// State is the decision machine state for one asset.
type State string

const (
	StateIdle     State = "idle"
	StateArmed    State = "armed"
	StateCooldown State = "cooldown"
)

// DecisionEngine emits at most one trade signal per cooldown window.
// All transitions take an explicit now so the machine can be driven by
// the tick clock; it never reads the wall clock itself.
type DecisionEngine struct {
	asset    string
	cooldown time.Duration

	state         State
	armed         types.TrendDirection
	cooldownUntil time.Time
	lastTrend     types.TrendState
}

// NewDecisionEngine creates an engine in the Idle state.
func NewDecisionEngine(asset string, cooldown time.Duration) *DecisionEngine {
	return &DecisionEngine{
		asset:    asset,
		cooldown: cooldown,
		state:    StateIdle,
	}
}

// OnTrend applies a trend update. An active direction arms the machine,
// None or a flip while armed disarms it without a signal. During
// cooldown the update is observed but causes no transition.
func (e *DecisionEngine) OnTrend(ts types.TrendState, now time.Time) {
	e.expireCooldown(now)
	e.lastTrend = ts

	if e.state == StateCooldown {
		return
	}

	switch ts.Direction {
	case types.TrendNone:
		e.state = StateIdle
	case types.TrendUp, types.TrendDown:
		if e.state == StateArmed && e.armed != ts.Direction {
			// Trend flipped while armed: disarm, re-arm on the next update.
			e.state = StateIdle
			return
		}
		e.state = StateArmed
		e.armed = ts.Direction
	}
}

// OnWick applies a wick event at the given entry price. A confirming
// event while armed emits a signal and starts the cooldown; anything
// else returns nil.
func (e *DecisionEngine) OnWick(ev types.WickEvent, price decimal.Decimal, now time.Time) *types.TradeSignal {
	e.expireCooldown(now)

	if e.state != StateArmed || !confirms(e.armed, ev.Kind) {
		return nil
	}

	direction := types.SignalCall
	if e.armed == types.TrendDown {
		direction = types.SignalPut
	}

	signal := &types.TradeSignal{
		ID:        uuid.New().String(),
		Asset:     e.asset,
		Direction: direction,
		Price:     price,
		IssuedAt:  now,
		Basis: types.SignalBasis{
			Trend: e.armed,
			Wick:  ev,
		},
	}

	e.state = StateCooldown
	e.cooldownUntil = now.Add(e.cooldown)

	return signal
}

// State returns the current machine state after expiring a finished
// cooldown against now.
func (e *DecisionEngine) State(now time.Time) State {
	e.expireCooldown(now)
	return e.state
}

// CooldownUntil returns the end of the active cooldown window, zero when
// none is active.
func (e *DecisionEngine) CooldownUntil() time.Time {
	if e.state != StateCooldown {
		return time.Time{}
	}
	return e.cooldownUntil
}

// Reset forces the machine back to Idle, e.g. after prolonged feed
// staleness.
func (e *DecisionEngine) Reset() {
	e.state = StateIdle
	e.armed = ""
	e.cooldownUntil = time.Time{}
	e.lastTrend = types.TrendState{}
}

// expireCooldown leaves cooldown once it elapsed, re-arming directly
// when the trend is still active.
func (e *DecisionEngine) expireCooldown(now time.Time) {
	if e.state != StateCooldown || now.Before(e.cooldownUntil) {
		return
	}

	if e.lastTrend.Direction == types.TrendUp || e.lastTrend.Direction == types.TrendDown {
		e.state = StateArmed
		e.armed = e.lastTrend.Direction
		return
	}
	e.state = StateIdle
}

// confirms reports whether a wick event confirms the armed direction:
// a long tail confirms Up (call), a long head confirms Down (put).
func confirms(dir types.TrendDirection, kind types.WickKind) bool {
	return (dir == types.TrendUp && kind == types.WickLongTail) ||
		(dir == types.TrendDown && kind == types.WickLongHead)
}
