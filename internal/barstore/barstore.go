// Package barstore holds the append-only ordered sequence of one-minute
// bars every other pattern component reads from. Grounded on the
// teacher's append-only, cache-warmed SQLiteStorage shape
// (internal/adapters/storage/sqlite.go), generalized from a market-cache
// to an in-memory time series since bars are not a changing snapshot —
// they are immutable, append-only history.
package barstore

import (
	"sort"
	"time"

	"github.com/benagen/slobtrading/internal/domain"
)

// Store is an append-only ordered sequence of Bars with O(1) tail access
// and O(log n) access by timestamp. Duplicate-timestamp bars are
// silently dropped (idempotent append). Bars are never mutated once
// appended.
type Store struct {
	bars []domain.Bar
	idx  map[int64]int // unix-second timestamp -> index, for idempotent append checks
}

// New returns an empty Store.
func New() *Store {
	return &Store{idx: make(map[int64]int)}
}

// Append adds bar to the store. If a bar with the same timestamp already
// exists, the append is a silent no-op (idempotent).
func (s *Store) Append(bar domain.Bar) {
	key := bar.Timestamp.Unix()
	if _, exists := s.idx[key]; exists {
		return
	}
	s.idx[key] = len(s.bars)
	s.bars = append(s.bars, bar)
}

// Len returns the number of bars held.
func (s *Store) Len() int {
	return len(s.bars)
}

// At returns the bar at index i.
func (s *Store) At(i int) domain.Bar {
	return s.bars[i]
}

// Last returns the most recently appended bar and true, or the zero value
// and false if the store is empty.
func (s *Store) Last() (domain.Bar, bool) {
	if len(s.bars) == 0 {
		return domain.Bar{}, false
	}
	return s.bars[len(s.bars)-1], true
}

// LastN returns up to the last n bars, oldest first.
func (s *Store) LastN(n int) []domain.Bar {
	if n <= 0 {
		return nil
	}
	start := len(s.bars) - n
	if start < 0 {
		start = 0
	}
	out := make([]domain.Bar, len(s.bars)-start)
	copy(out, s.bars[start:])
	return out
}

// Slice returns the half-open index range [start, end), clamped to bounds.
func (s *Store) Slice(start, end int) []domain.Bar {
	if start < 0 {
		start = 0
	}
	if end > len(s.bars) {
		end = len(s.bars)
	}
	if start >= end {
		return nil
	}
	out := make([]domain.Bar, end-start)
	copy(out, s.bars[start:end])
	return out
}

// RangeByTime returns all bars with t0 <= Timestamp < t1.
func (s *Store) RangeByTime(t0, t1 time.Time) []domain.Bar {
	lo := sort.Search(len(s.bars), func(i int) bool { return !s.bars[i].Timestamp.Before(t0) })
	hi := sort.Search(len(s.bars), func(i int) bool { return !s.bars[i].Timestamp.Before(t1) })
	return s.Slice(lo, hi)
}

// IndexAtOrAfter returns the index of the first bar with Timestamp >= t,
// or Len() if none.
func (s *Store) IndexAtOrAfter(t time.Time) int {
	return sort.Search(len(s.bars), func(i int) bool { return !s.bars[i].Timestamp.Before(t) })
}
