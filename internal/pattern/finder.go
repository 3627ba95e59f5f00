package pattern

import (
	"time"

	"github.com/benagen/slobtrading/internal/barstore"
	"github.com/benagen/slobtrading/internal/domain"
)

// Config bundles every sub-detector's parameters plus the session clock
// and entry-trigger bounds that PatternFinder itself owns.
type Config struct {
	OpeningStart time.Duration // offset from session midnight, UTC
	OpeningEnd   time.Duration

	Consolidation ConsolidationConfig
	NoWick        NoWickConfig
	Liquidity     LiquidityConfig

	MaxSweepWindow       int
	MaxEntryWait         int
	MaxRetracementPoints float64
	StopBuffer           float64
	SpikeClampMultiple   float64
}

// Finder is a pure driver: every lookup at bar i uses only bars <= i, so
// replacing any bar after i cannot change a result already emitted.
type Finder struct {
	cfg Config
}

// New returns a Finder with the given configuration.
func New(cfg Config) *Finder {
	return &Finder{cfg: cfg}
}

// FindSetups walks the bars in [dayStart, dayEnd) — one session day — and
// emits zero or more Setups. dayMidnight is the UTC instant the opening
// window offsets are measured from.
func (f *Finder) FindSetups(store *barstore.Store, dayStart, dayEnd int, dayMidnight time.Time) []domain.Setup {
	openStart := dayMidnight.Add(f.cfg.OpeningStart)
	openEnd := dayMidnight.Add(f.cfg.OpeningEnd)

	lseHigh, lseLow, openWindowOK := f.establishLSE(store, dayStart, dayEnd, openStart, openEnd)
	if !openWindowOK {
		return nil
	}

	scanStart := store.IndexAtOrAfter(openEnd)
	if scanStart < dayStart {
		scanStart = dayStart
	}

	liq1Idx, dir, liq1Signal, ok := f.findLIQ1(store, scanStart, dayEnd, lseHigh, lseLow)
	if !ok {
		return nil
	}

	consol, ok := FindConsolidation(store, liq1Idx+1, f.cfg.Consolidation)
	if !ok {
		return nil
	}

	liq2Idx, noWick, liq2Signal, ok := f.findLIQ2(store, consol, dir)
	if !ok {
		return nil
	}

	triggerIdx, ok := f.findEntryTrigger(store, liq2Idx, noWick, dir, dayEnd)
	if !ok {
		return nil
	}

	entryIdx := triggerIdx + 1
	if entryIdx >= store.Len() || entryIdx >= dayEnd {
		return nil
	}
	entryBar := store.At(entryIdx)
	entryPrice := entryBar.Open

	sl, tp := f.buildStopAndTarget(store, liq2Idx, dir, lseHigh, lseLow)

	var risk, reward float64
	if dir == domain.Short {
		risk = sl - entryPrice
		reward = entryPrice - tp
	} else {
		risk = entryPrice - sl
		reward = tp - entryPrice
	}

	setup := domain.Setup{
		Direction:     dir,
		State:         StateAfterEntryArmed,
		SessionDate:   dayMidnight,
		LSEHigh:       lseHigh,
		LSELow:        lseLow,
		LIQ1:          domain.LiquidityEvent{Idx: liq1Idx, Level: lseLevel(dir, lseHigh, lseLow), Confidence: liq1Signal.Score},
		LIQ1Time:      store.At(liq1Idx).Timestamp,
		Consolidation: consol,
		LIQ2:          domain.LiquidityEvent{Idx: liq2Idx, Level: consol.FarExtreme(dir), Confidence: liq2Signal.Score},
		NoWick:        noWick,
		LIQ2Time:      store.At(liq2Idx).Timestamp,
		EntryTriggerIdx:  triggerIdx,
		EntryTriggerTime: store.At(triggerIdx).Timestamp,
		EntryIdx:         entryIdx,
		EntryTime:        entryBar.Timestamp,
		EntryPrice:       entryPrice,
		SLPrice:          sl,
		TPPrice:          tp,
		RiskPoints:       risk,
		RewardPoints:     reward,
		RiskRewardRatio:  safeRatio(reward, risk),
		CreatedAt:        entryBar.Timestamp,
		LastUpdated:      entryBar.Timestamp,
	}

	return []domain.Setup{setup}
}

// StateAfterEntryArmed is the state a Setup carries when FindSetups
// returns it — the bracket has not yet been submitted, so callers feed it
// through a SetupStateMachine (or treat it as armed directly in
// backtest replay).
const StateAfterEntryArmed = domain.StateEntryArmed

func lseLevel(dir domain.Direction, high, low float64) float64 {
	if dir == domain.Short {
		return high
	}
	return low
}

func safeRatio(reward, risk float64) float64 {
	if risk <= 0 {
		return 0
	}
	return reward / risk
}

// establishLSE takes the session high/low over the opening window. If the
// window is absent from this day's bars, ok is false.
func (f *Finder) establishLSE(store *barstore.Store, dayStart, dayEnd int, openStart, openEnd time.Time) (high, low float64, ok bool) {
	lo := store.IndexAtOrAfter(openStart)
	if lo < dayStart {
		lo = dayStart
	}
	hi := store.IndexAtOrAfter(openEnd)
	if hi > dayEnd {
		hi = dayEnd
	}
	if hi <= lo {
		return 0, 0, false
	}
	window := store.Slice(lo, hi)
	high, low = windowHighLow(window)
	return high, low, true
}

// findLIQ1 scans strictly after the opening window for the first bar
// where LiquidityDetector confirms an up-break of lseHigh (SHORT
// candidate) or a down-break of lseLow (LONG candidate). Direction is
// whichever breaks first; at a tie on the same bar, SHORT (up-break) is
// checked first, matching the source's scan order (spec §9 Open
// Questions: both directions are not scanned independently to exhaustion).
func (f *Finder) findLIQ1(store *barstore.Store, start, end int, lseHigh, lseLow float64) (idx int, dir domain.Direction, signal domain.LiquiditySignal, ok bool) {
	if end > store.Len() {
		end = store.Len()
	}
	for i := start; i < end; i++ {
		upSignal := Detect(store, i, lseHigh, BreakUp, f.cfg.Liquidity)
		if upSignal.Detected {
			return i, domain.Short, upSignal, true
		}
		downSignal := Detect(store, i, lseLow, BreakDown, f.cfg.Liquidity)
		if downSignal.Detected {
			return i, domain.Long, downSignal, true
		}
	}
	return 0, "", domain.LiquiditySignal{}, false
}

// findLIQ2 scans from consol.End forward up to MaxSweepWindow bars for
// the single combined sweep+no-wick bar.
func (f *Finder) findLIQ2(store *barstore.Store, consol domain.Consolidation, dir domain.Direction) (idx int, noWick domain.NoWickResult, signal domain.LiquiditySignal, ok bool) {
	start := consol.End
	end := start + f.cfg.MaxSweepWindow
	if end > store.Len() {
		end = store.Len()
	}
	extreme := consol.FarExtreme(dir)
	breakDir := BreakUp
	if dir == domain.Long {
		breakDir = BreakDown
	}

	for i := start; i < end; i++ {
		bar := store.At(i)
		directionOK := (dir == domain.Short && bar.Bullish()) || (dir == domain.Long && bar.Bearish())
		if !directionOK {
			continue
		}
		nw := Classify(store, i, dir, f.cfg.NoWick)
		if !nw.Qualifies {
			continue
		}
		sig := Detect(store, i, extreme, breakDir, f.cfg.Liquidity)
		if !sig.Detected {
			continue
		}
		return i, nw, sig, true
	}
	return 0, domain.NoWickResult{}, domain.LiquiditySignal{}, false
}

// findEntryTrigger scans from liq2Idx forward up to MaxEntryWait bars.
// Invalidates (returns ok=false) if the bar moves more than
// MaxRetracementPoints against the no-wick extreme on the wrong side.
func (f *Finder) findEntryTrigger(store *barstore.Store, liq2Idx int, noWick domain.NoWickResult, dir domain.Direction, dayEnd int) (idx int, ok bool) {
	noWickBar := store.At(liq2Idx)
	end := liq2Idx + 1 + f.cfg.MaxEntryWait
	if end > store.Len() {
		end = store.Len()
	}
	if end > dayEnd {
		end = dayEnd
	}

	for i := liq2Idx + 1; i < end; i++ {
		bar := store.At(i)

		if dir == domain.Short {
			if bar.High-noWickBar.High > f.cfg.MaxRetracementPoints {
				return 0, false
			}
		} else {
			if noWickBar.Low-bar.Low > f.cfg.MaxRetracementPoints {
				return 0, false
			}
		}

		crossedBack := (dir == domain.Short && bar.Close < noWickBar.Open) || (dir == domain.Long && bar.Close > noWickBar.Open)
		ownBodyOK := (dir == domain.Short && bar.Bearish()) || (dir == domain.Long && bar.Bullish())
		if crossedBack && ownBodyOK {
			return i, true
		}
	}
	return 0, false
}

// buildStopAndTarget computes SL/TP per the spike-clamp rule: the stop
// sits at the opposite extreme of LIQ2 plus a buffer, unless LIQ2's
// dominant wick exceeds SpikeClampMultiple times its body — in which case
// the stop clamps to the body extreme instead of the wick extreme.
func (f *Finder) buildStopAndTarget(store *barstore.Store, liq2Idx int, dir domain.Direction, lseHigh, lseLow float64) (sl, tp float64) {
	bar := store.At(liq2Idx)

	if dir == domain.Short {
		tp = lseLow
		wickExtreme := bar.High
		bodyExtreme := max(bar.Open, bar.Close)
		if bar.UpperWick() > f.cfg.SpikeClampMultiple*bar.Body() {
			sl = bodyExtreme + f.cfg.StopBuffer
		} else {
			sl = wickExtreme + f.cfg.StopBuffer
		}
		return sl, tp
	}

	tp = lseHigh
	wickExtreme := bar.Low
	bodyExtreme := min(bar.Open, bar.Close)
	if bar.LowerWick() > f.cfg.SpikeClampMultiple*bar.Body() {
		sl = bodyExtreme - f.cfg.StopBuffer
	} else {
		sl = wickExtreme - f.cfg.StopBuffer
	}
	return sl, tp
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
