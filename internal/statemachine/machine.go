// Package statemachine drives a single Setup candidate through its
// ten-state lifecycle and maintains the indexed pool of all candidates
// currently in flight. Grounded on the teacher's scanner/live orbit
// (internal/scanner/live.go tracked per-market state transitions the
// same way: a narrow callback interface rather than a cyclic reference
// back into the owner), generalized from "one market's fill state" to
// "one setup's six-stage pattern state".
package statemachine

import (
	"time"

	"github.com/benagen/slobtrading/internal/domain"
)

// Callbacks is the narrow interface a Machine uses to reach outside
// itself — persistence and metrics — instead of holding a reference
// back to its owning SetupTracker.
type Callbacks interface {
	Persist(setup domain.Setup) error
	EmitTransition(setup domain.Setup, from, to domain.SetupState)
}

// Machine owns exactly one Setup's lifecycle from LSE_READY through a
// terminal state.
type Machine struct {
	setup domain.Setup
	cb    Callbacks
}

// New returns a Machine in state LSEReady for a freshly spawned setup
// candidate (LSE established, not yet LIQ1).
func New(setup domain.Setup, cb Callbacks) *Machine {
	if setup.State == "" {
		setup.State = domain.StateLSEReady
	}
	return &Machine{setup: setup, cb: cb}
}

// Setup returns the current (possibly just-transitioned) Setup record.
func (m *Machine) Setup() domain.Setup {
	return m.setup
}

// Terminal reports whether this machine has reached COMPLETED or
// INVALIDATED and should be evicted from the tracker's active pool.
func (m *Machine) Terminal() bool {
	return m.setup.State.Terminal()
}

// transition moves to next, stamps LastUpdated, persists, and notifies
// the callback — every state change in the machine goes through this
// single path so no transition escapes a persistence write.
func (m *Machine) transition(next domain.SetupState, now time.Time) error {
	from := m.setup.State
	m.setup.State = next
	m.setup.LastUpdated = now
	if err := m.cb.Persist(m.setup); err != nil {
		return err
	}
	m.cb.EmitTransition(m.setup, from, next)
	return nil
}

// Invalidate moves the machine straight to INVALIDATED with the given
// reason, from any non-terminal state — the "Any → INVALIDATED" edge.
func (m *Machine) Invalidate(reason domain.InvalidationReason, now time.Time) error {
	if m.setup.State.Terminal() {
		return nil
	}
	m.setup.Invalidation = reason
	m.setup.InvalidatedAt = now
	return m.transition(domain.StateInvalidated, now)
}

// AdvanceToLIQ1 moves LSE_READY -> LIQ1_DETECTED once PatternFinder
// reports a detected sweep against the session's LSE.
func (m *Machine) AdvanceToLIQ1(liq1 domain.LiquidityEvent, liq1Time time.Time, dir domain.Direction, now time.Time) error {
	if m.setup.State != domain.StateLSEReady {
		return nil
	}
	m.setup.Direction = dir
	m.setup.LIQ1 = liq1
	m.setup.LIQ1Time = liq1Time
	return m.transition(domain.StateLIQ1Detected, now)
}

// AdvanceToConsolidationForming moves LIQ1_DETECTED ->
// CONSOLIDATION_FORMING once a window begins accumulating.
func (m *Machine) AdvanceToConsolidationForming(now time.Time) error {
	if m.setup.State != domain.StateLIQ1Detected {
		return nil
	}
	return m.transition(domain.StateConsolidationForming, now)
}

// AdvanceToConsolidationConfirmed moves CONSOLIDATION_FORMING ->
// CONSOLIDATION_CONFIRMED once ConsolidationDetector accepts a window.
func (m *Machine) AdvanceToConsolidationConfirmed(consol domain.Consolidation, now time.Time) error {
	if m.setup.State != domain.StateConsolidationForming {
		return nil
	}
	m.setup.Consolidation = consol
	return m.transition(domain.StateConsolidationConfirmed, now)
}

// AdvanceToNoWickSweepFound moves CONSOLIDATION_CONFIRMED ->
// NOWICK_SWEEP_FOUND on the first qualifying combined sweep+no-wick bar.
func (m *Machine) AdvanceToNoWickSweepFound(liq2 domain.LiquidityEvent, noWick domain.NoWickResult, liq2Time time.Time, now time.Time) error {
	if m.setup.State != domain.StateConsolidationConfirmed {
		return nil
	}
	m.setup.LIQ2 = liq2
	m.setup.NoWick = noWick
	m.setup.LIQ2Time = liq2Time
	return m.transition(domain.StateNoWickSweepFound, now)
}

// AdvanceToEntryArmed moves NOWICK_SWEEP_FOUND -> ENTRY_ARMED on the
// first qualifying entry-trigger bar, filling in the full bracket.
func (m *Machine) AdvanceToEntryArmed(s domain.Setup, now time.Time) error {
	if m.setup.State != domain.StateNoWickSweepFound {
		return nil
	}
	id := m.setup.ID
	createdAt := m.setup.CreatedAt
	m.setup = s
	m.setup.ID = id
	m.setup.CreatedAt = createdAt
	return m.transition(domain.StateEntryArmed, now)
}

// AdvanceToOrderSubmitted moves ENTRY_ARMED -> ORDER_SUBMITTED after
// the ML gate passes, RiskManager sizes a non-zero position, and
// OrderExecutor accepts the bracket.
func (m *Machine) AdvanceToOrderSubmitted(now time.Time) error {
	if m.setup.State != domain.StateEntryArmed {
		return nil
	}
	return m.transition(domain.StateOrderSubmitted, now)
}

// AdvanceToInTrade moves ORDER_SUBMITTED -> IN_TRADE on fill
// confirmation.
func (m *Machine) AdvanceToInTrade(now time.Time) error {
	if m.setup.State != domain.StateOrderSubmitted {
		return nil
	}
	return m.transition(domain.StateInTrade, now)
}

// Complete moves IN_TRADE -> COMPLETED on SL fill, TP fill, EOD
// liquidation, or an external-close observation.
func (m *Machine) Complete(now time.Time) error {
	if m.setup.State != domain.StateInTrade {
		return nil
	}
	return m.transition(domain.StateCompleted, now)
}
