package statemachine

import (
	"time"

	"github.com/benagen/slobtrading/internal/barstore"
	"github.com/benagen/slobtrading/internal/domain"
	"github.com/benagen/slobtrading/internal/pattern"
)

// Tracker maintains the indexed pool of active Machines, by setup id
// and by session date, and is the single point that spawns new
// Machines when PatternFinder signals a viable setup. Grounded on the
// "index by id, fan out in arrival order, evict on terminal state"
// shape of the teacher's market-scanning loop in internal/scanner/live.go.
type Tracker struct {
	byID      map[string]*Machine
	bySession map[time.Time][]string
	cb        Callbacks
	finder    *pattern.Finder
	newID     func() string
}

// New returns an empty Tracker. newID mints setup ids (normally
// uuid.NewString); it is injected so tests can supply deterministic ids.
func New(finder *pattern.Finder, cb Callbacks, newID func() string) *Tracker {
	return &Tracker{
		byID:      make(map[string]*Machine),
		bySession: make(map[time.Time][]string),
		cb:        cb,
		finder:    finder,
		newID:     newID,
	}
}

// Active returns every non-terminal Machine currently tracked, in
// insertion order within each session.
func (t *Tracker) Active() []*Machine {
	out := make([]*Machine, 0, len(t.byID))
	for _, ids := range t.bySession {
		for _, id := range ids {
			if m, ok := t.byID[id]; ok && !m.Terminal() {
				out = append(out, m)
			}
		}
	}
	return out
}

// Get returns the Machine for a setup id, if tracked.
func (t *Tracker) Get(id string) (*Machine, bool) {
	m, ok := t.byID[id]
	return m, ok
}

// ScanSessionOpen asks PatternFinder for a viable setup over
// [dayStart, dayEnd) and, if one is found, spawns and registers a new
// Machine for it. PatternFinder's FindSetups already encodes the full
// LIQ1->entry pipeline in one pass (§4.3-4.9); the Machine it produces
// starts pre-advanced to ENTRY_ARMED, with the intermediate transitions
// replayed through Callbacks so persistence sees every stage.
func (t *Tracker) ScanSessionOpen(store *barstore.Store, dayStart, dayEnd int, dayMidnight time.Time) []*Machine {
	setups := t.finder.FindSetups(store, dayStart, dayEnd, dayMidnight)
	var spawned []*Machine
	for _, s := range setups {
		s.ID = t.newID()
		s.CreatedAt = dayMidnight
		m := t.spawnThroughPipeline(s, dayMidnight)
		spawned = append(spawned, m)
	}
	return spawned
}

// spawnThroughPipeline creates a Machine at LSE_READY and replays every
// intermediate transition up to ENTRY_ARMED, since FindSetups resolves
// the whole pipeline in one deterministic pass rather than incrementally
// across bar arrivals (backtest/live parity per §4.16).
func (t *Tracker) spawnThroughPipeline(s domain.Setup, now time.Time) *Machine {
	seed := domain.Setup{ID: s.ID, CreatedAt: s.CreatedAt, State: domain.StateLSEReady, SessionDate: s.SessionDate}
	m := New(seed, t.cb)

	_ = m.AdvanceToLIQ1(s.LIQ1, s.LIQ1Time, s.Direction, now)
	_ = m.AdvanceToConsolidationForming(now)
	_ = m.AdvanceToConsolidationConfirmed(s.Consolidation, now)
	_ = m.AdvanceToNoWickSweepFound(s.LIQ2, s.NoWick, s.LIQ2Time, now)
	_ = m.AdvanceToEntryArmed(s, now)

	t.byID[s.ID] = m
	t.bySession[s.SessionDate] = append(t.bySession[s.SessionDate], s.ID)
	return m
}

// Restore re-registers a Machine for a setup loaded from persistence at
// whatever state it was saved in, bypassing the pipeline replay
// ScanSessionOpen does for freshly-found setups. Used by the recovery
// layer on startup to repopulate the active pool from StatePersistence
// without re-running PatternFinder or re-persisting every intermediate
// transition.
func (t *Tracker) Restore(setup domain.Setup) *Machine {
	m := New(setup, t.cb)
	t.byID[setup.ID] = m
	t.bySession[setup.SessionDate] = append(t.bySession[setup.SessionDate], setup.ID)
	return m
}

// Sweep evicts every terminal Machine from the active pool. Call once
// per closed bar after every active Machine has settled.
func (t *Tracker) Sweep() {
	for day, ids := range t.bySession {
		kept := ids[:0]
		for _, id := range ids {
			m, ok := t.byID[id]
			if !ok {
				continue
			}
			if m.Terminal() {
				delete(t.byID, id)
				continue
			}
			kept = append(kept, id)
		}
		if len(kept) == 0 {
			delete(t.bySession, day)
		} else {
			t.bySession[day] = kept
		}
	}
}
