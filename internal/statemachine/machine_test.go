package statemachine_test

import (
	"testing"
	"time"

	"github.com/benagen/slobtrading/internal/domain"
	"github.com/benagen/slobtrading/internal/statemachine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCallbacks struct {
	persisted   []domain.Setup
	transitions []string
}

func (r *recordingCallbacks) Persist(setup domain.Setup) error {
	r.persisted = append(r.persisted, setup)
	return nil
}

func (r *recordingCallbacks) EmitTransition(setup domain.Setup, from, to domain.SetupState) {
	r.transitions = append(r.transitions, string(from)+"->"+string(to))
}

func TestMachine_FullHappyPathTransitions(t *testing.T) {
	cb := &recordingCallbacks{}
	m := statemachine.New(domain.Setup{ID: "abc123"}, cb)
	now := time.Unix(1000, 0)

	require.NoError(t, m.AdvanceToLIQ1(domain.LiquidityEvent{Idx: 5, Level: 100}, now, domain.Short, now))
	assert.Equal(t, domain.StateLIQ1Detected, m.Setup().State)

	require.NoError(t, m.AdvanceToConsolidationForming(now))
	assert.Equal(t, domain.StateConsolidationForming, m.Setup().State)

	require.NoError(t, m.AdvanceToConsolidationConfirmed(domain.Consolidation{Start: 5, End: 15}, now))
	assert.Equal(t, domain.StateConsolidationConfirmed, m.Setup().State)

	require.NoError(t, m.AdvanceToNoWickSweepFound(domain.LiquidityEvent{Idx: 20}, domain.NoWickResult{Idx: 20, Qualifies: true}, now, now))
	assert.Equal(t, domain.StateNoWickSweepFound, m.Setup().State)

	require.NoError(t, m.AdvanceToEntryArmed(domain.Setup{ID: "abc123", EntryIdx: 22, EntryPrice: 99}, now))
	assert.Equal(t, domain.StateEntryArmed, m.Setup().State)
	assert.Equal(t, 22, m.Setup().EntryIdx)

	require.NoError(t, m.AdvanceToOrderSubmitted(now))
	require.NoError(t, m.AdvanceToInTrade(now))
	require.NoError(t, m.Complete(now))

	assert.True(t, m.Terminal())
	assert.Len(t, cb.persisted, 8)
	assert.Equal(t, 8, len(cb.transitions))
}

func TestMachine_InvalidateFromAnyNonTerminalState(t *testing.T) {
	cb := &recordingCallbacks{}
	m := statemachine.New(domain.Setup{ID: "xyz"}, cb)
	now := time.Unix(2000, 0)

	require.NoError(t, m.Invalidate(domain.ReasonNoConsolidation, now))

	assert.True(t, m.Terminal())
	assert.Equal(t, domain.ReasonNoConsolidation, m.Setup().Invalidation)
}

func TestMachine_InvalidateIsNoOpOnceTerminal(t *testing.T) {
	cb := &recordingCallbacks{}
	m := statemachine.New(domain.Setup{ID: "xyz"}, cb)
	now := time.Unix(3000, 0)

	require.NoError(t, m.Invalidate(domain.ReasonNoLIQ1, now))
	require.NoError(t, m.Invalidate(domain.ReasonMLSkip, now))

	assert.Equal(t, domain.ReasonNoLIQ1, m.Setup().Invalidation)
	assert.Len(t, cb.persisted, 1)
}

func TestMachine_SkipsTransitionFromWrongState(t *testing.T) {
	cb := &recordingCallbacks{}
	m := statemachine.New(domain.Setup{ID: "abc"}, cb)
	now := time.Unix(4000, 0)

	require.NoError(t, m.AdvanceToInTrade(now)) // not ORDER_SUBMITTED yet
	assert.Equal(t, domain.StateLSEReady, m.Setup().State)
	assert.Empty(t, cb.persisted)
}
