// Package market_hours implements the exchange-open oracle (C9): it
// interprets a broker's trading-schedule RPC response to answer "is this
// exchange open right now", with a pluggable closure-behavior policy for
// the scheduler to act on.
package market_hours

import (
	"github.com/vvolkov/rebalancer/internal/domain"
)

// State is the oracle's verdict for one point in time.
type State int

const (
	// StateUnknown is returned on RPC failure; callers coerce it to
	// closed unless their policy says otherwise.
	StateUnknown State = iota
	StateOpen
	StateClosed
)

// IsOpen answers "is schedule's exchange open at instant now (unix
// seconds)". A day is open iff it is flagged IsTradingDay and now falls in
// [startTime, endTime). If no matching day is found, or schedule is nil
// (RPC failure upstream), returns StateUnknown.
func IsOpen(schedule *domain.TradingSchedule, now int64) State {
	if schedule == nil {
		return StateUnknown
	}
	for _, day := range schedule.Days {
		if now >= day.StartTime && now < day.EndTime {
			if day.IsTradingDay {
				return StateOpen
			}
			return StateClosed
		}
	}
	return StateUnknown
}

// ClosureBehaviorMode selects what the scheduler does on a non-open tick.
type ClosureBehaviorMode string

const (
	// SkipIteration sleeps and continues without running the engine.
	SkipIteration ClosureBehaviorMode = "skip_iteration"
	// UpdateIterationResult runs the engine on stale prices and emits
	// telemetry, but does not place orders.
	UpdateIterationResult ClosureBehaviorMode = "update_iteration_result"
	// ForceOrders attempts orders regardless of the gate.
	ForceOrders ClosureBehaviorMode = "force_orders"
)

// ExchangeClosureBehavior is the per-account policy for non-open ticks.
type ExchangeClosureBehavior struct {
	Mode ClosureBehaviorMode
}

// ShouldRunEngine reports whether the scheduler should run C3-C7 at all
// for this tick, given the oracle's state and the configured closure
// behavior. StateUnknown is treated like StateClosed.
func ShouldRunEngine(state State, behavior ExchangeClosureBehavior) bool {
	if state == StateOpen {
		return true
	}
	return behavior.Mode == UpdateIterationResult || behavior.Mode == ForceOrders
}

// ShouldSubmitOrders reports whether the scheduler should submit the
// generated orders to the broker for this tick.
func ShouldSubmitOrders(state State, behavior ExchangeClosureBehavior) bool {
	if state == StateOpen {
		return true
	}
	return behavior.Mode == ForceOrders
}
