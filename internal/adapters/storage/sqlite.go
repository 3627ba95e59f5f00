// Package storage is the StatePersistence adapter: a schema-versioned,
// WAL-backed SQLite store for active setups, trades, session state, and
// shadow predictions (spec §4.15). Grounded on the teacher's
// SQLiteStorage (internal/adapters/storage/sqlite.go): numbered,
// idempotent (IF NOT EXISTS) migrations applied in one transaction at
// startup, indices on the columns the consuming queries actually filter
// on, and modernc.org/sqlite as the pure-Go driver.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/benagen/slobtrading/internal/domain"
	"github.com/benagen/slobtrading/internal/errs"
)

// migrations is the linear, numbered sequence applied at startup. Every
// statement is idempotent so re-applying the full sequence twice yields
// the same schema (spec §8's idempotent-persistence invariant).
var migrations = []struct {
	version     int
	description string
	stmt        string
}{
	{1, "schema_version table", `
CREATE TABLE IF NOT EXISTS schema_version (
    version     INTEGER PRIMARY KEY,
    applied_at  DATETIME NOT NULL,
    description TEXT NOT NULL
);`},
	{2, "active_setups table", `
CREATE TABLE IF NOT EXISTS active_setups (
    id               TEXT PRIMARY KEY,
    state            TEXT NOT NULL,
    symbol           TEXT NOT NULL,
    direction        TEXT NOT NULL,
    created_at       DATETIME NOT NULL,
    last_updated     DATETIME NOT NULL,
    lse_high         REAL NOT NULL DEFAULT 0,
    lse_low          REAL NOT NULL DEFAULT 0,
    liq1_idx         INTEGER NOT NULL DEFAULT 0,
    liq1_time        DATETIME,
    liq1_level       REAL NOT NULL DEFAULT 0,
    liq1_confidence  REAL NOT NULL DEFAULT 0,
    consol_start     INTEGER NOT NULL DEFAULT 0,
    consol_end       INTEGER NOT NULL DEFAULT 0,
    consol_high      REAL NOT NULL DEFAULT 0,
    consol_low       REAL NOT NULL DEFAULT 0,
    nowick_idx       INTEGER NOT NULL DEFAULT 0,
    nowick_score     REAL NOT NULL DEFAULT 0,
    liq2_time        DATETIME,
    liq2_level       REAL NOT NULL DEFAULT 0,
    liq2_confidence  REAL NOT NULL DEFAULT 0,
    entry_trigger_idx  INTEGER NOT NULL DEFAULT 0,
    entry_idx        INTEGER NOT NULL DEFAULT 0,
    entry_time       DATETIME,
    entry_price      REAL NOT NULL DEFAULT 0,
    sl_price         REAL NOT NULL DEFAULT 0,
    tp_price         REAL NOT NULL DEFAULT 0,
    risk_points      REAL NOT NULL DEFAULT 0,
    reward_points    REAL NOT NULL DEFAULT 0,
    risk_reward_ratio REAL NOT NULL DEFAULT 0,
    invalidation     TEXT NOT NULL DEFAULT '',
    invalidated_at   DATETIME,
    raw_json         TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS active_setups_state ON active_setups(state);
CREATE INDEX IF NOT EXISTS active_setups_created_at ON active_setups(created_at);
`},
	{3, "trades table", `
CREATE TABLE IF NOT EXISTS trades (
    setup_id     TEXT PRIMARY KEY,
    entry_time   DATETIME NOT NULL,
    entry_price  REAL NOT NULL,
    exit_time    DATETIME,
    exit_price   REAL NOT NULL DEFAULT 0,
    exit_reason  TEXT NOT NULL DEFAULT '',
    size         INTEGER NOT NULL DEFAULT 0,
    pnl_points   REAL NOT NULL DEFAULT 0,
    pnl_cash     REAL NOT NULL DEFAULT 0,
    result       TEXT NOT NULL DEFAULT 'OPEN'
);
CREATE INDEX IF NOT EXISTS trades_entry_time ON trades(entry_time);
CREATE INDEX IF NOT EXISTS trades_result ON trades(result);
`},
	{4, "session_state table", `
CREATE TABLE IF NOT EXISTS session_state (
    date             DATE PRIMARY KEY,
    started_at       DATETIME,
    ended_at         DATETIME,
    starting_capital REAL NOT NULL DEFAULT 0,
    ending_capital   REAL NOT NULL DEFAULT 0,
    setups_found     INTEGER NOT NULL DEFAULT 0,
    trades_taken     INTEGER NOT NULL DEFAULT 0,
    daily_pnl        REAL NOT NULL DEFAULT 0,
    safe_mode        INTEGER NOT NULL DEFAULT 0
);
`},
	{5, "shadow_predictions table", `
CREATE TABLE IF NOT EXISTS shadow_predictions (
    setup_id       TEXT PRIMARY KEY,
    ml_probability REAL NOT NULL DEFAULT 0,
    ml_decision    TEXT NOT NULL DEFAULT '',
    rule_decision  TEXT NOT NULL DEFAULT '',
    agreement      INTEGER NOT NULL DEFAULT 0,
    actual_outcome TEXT NOT NULL DEFAULT 'OPEN',
    actual_pnl     REAL NOT NULL DEFAULT 0,
    predicted_at   DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS shadow_predictions_agreement ON shadow_predictions(agreement);
CREATE INDEX IF NOT EXISTS shadow_predictions_predicted_at ON shadow_predictions(predicted_at);
`},
}

// Store is the WAL-backed SQLite StatePersistence adapter. A single
// writer (the engine loop) is assumed; readers (dashboard, analysis
// CLIs) may open independent connections per spec §5.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at dsn, enables
// WAL mode, and applies every pending migration inside one transaction.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errs.Wrap(errs.StorageCorruption, "open database", err)
	}
	db.SetMaxOpenConns(1) // single-writer model per spec §5

	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return nil, errs.Wrap(errs.StorageCorruption, "enable WAL", err)
	}

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.StorageCorruption, "begin migration tx", err)
	}
	defer tx.Rollback()

	for _, m := range migrations {
		if _, err := tx.ExecContext(ctx, m.stmt); err != nil {
			return errs.Wrap(errs.StorageCorruption, fmt.Sprintf("migration %d (%s)", m.version, m.description), err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO schema_version (version, applied_at, description)
			VALUES (?, ?, ?)
			ON CONFLICT(version) DO NOTHING`,
			m.version, time.Now().UTC(), m.description); err != nil {
			return errs.Wrap(errs.StorageCorruption, "record migration", err)
		}
	}
	return tx.Commit()
}

// SaveSetup upserts the full flattened Setup record plus a raw JSON
// column for forward-compatibility, per spec §4.15's active_setups
// schema. Called at every SetupStateMachine transition.
func (s *Store) SaveSetup(ctx context.Context, symbol string, setup domain.Setup) error {
	raw, err := json.Marshal(setup)
	if err != nil {
		return fmt.Errorf("storage.SaveSetup: marshal raw: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO active_setups (
			id, state, symbol, direction, created_at, last_updated,
			lse_high, lse_low,
			liq1_idx, liq1_time, liq1_level, liq1_confidence,
			consol_start, consol_end, consol_high, consol_low,
			nowick_idx, nowick_score, liq2_time, liq2_level, liq2_confidence,
			entry_trigger_idx, entry_idx, entry_time, entry_price,
			sl_price, tp_price, risk_points, reward_points, risk_reward_ratio,
			invalidation, invalidated_at, raw_json
		) VALUES (?,?,?,?,?,?, ?,?, ?,?,?,?, ?,?,?,?, ?,?,?,?,?, ?,?,?,?, ?,?,?,?,?, ?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			state=excluded.state, last_updated=excluded.last_updated,
			lse_high=excluded.lse_high, lse_low=excluded.lse_low,
			liq1_idx=excluded.liq1_idx, liq1_time=excluded.liq1_time,
			liq1_level=excluded.liq1_level, liq1_confidence=excluded.liq1_confidence,
			consol_start=excluded.consol_start, consol_end=excluded.consol_end,
			consol_high=excluded.consol_high, consol_low=excluded.consol_low,
			nowick_idx=excluded.nowick_idx, nowick_score=excluded.nowick_score,
			liq2_time=excluded.liq2_time, liq2_level=excluded.liq2_level, liq2_confidence=excluded.liq2_confidence,
			entry_trigger_idx=excluded.entry_trigger_idx, entry_idx=excluded.entry_idx,
			entry_time=excluded.entry_time, entry_price=excluded.entry_price,
			sl_price=excluded.sl_price, tp_price=excluded.tp_price,
			risk_points=excluded.risk_points, reward_points=excluded.reward_points,
			risk_reward_ratio=excluded.risk_reward_ratio,
			invalidation=excluded.invalidation, invalidated_at=excluded.invalidated_at,
			raw_json=excluded.raw_json`,
		setup.ID, string(setup.State), symbol, string(setup.Direction), setup.CreatedAt, setup.LastUpdated,
		setup.LSEHigh, setup.LSELow,
		setup.LIQ1.Idx, nullTime(setup.LIQ1Time), setup.LIQ1.Level, setup.LIQ1.Confidence,
		setup.Consolidation.Start, setup.Consolidation.End, setup.Consolidation.High, setup.Consolidation.Low,
		setup.NoWick.Idx, setup.NoWick.Score, nullTime(setup.LIQ2Time), setup.LIQ2.Level, setup.LIQ2.Confidence,
		setup.EntryTriggerIdx, setup.EntryIdx, nullTime(setup.EntryTime), setup.EntryPrice,
		setup.SLPrice, setup.TPPrice, setup.RiskPoints, setup.RewardPoints, setup.RiskRewardRatio,
		string(setup.Invalidation), nullTime(setup.InvalidatedAt), string(raw),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveSetup: %w", err)
	}
	return nil
}

// LoadSetup returns the setup previously saved under id, decoded from
// its raw JSON column so every observable field round-trips byte-equal
// (spec §8's persist/load round-trip law).
func (s *Store) LoadSetup(ctx context.Context, id string) (domain.Setup, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT raw_json FROM active_setups WHERE id = ?`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return domain.Setup{}, fmt.Errorf("storage.LoadSetup: setup %q not found", id)
	}
	if err != nil {
		return domain.Setup{}, fmt.Errorf("storage.LoadSetup: %w", err)
	}
	var setup domain.Setup
	if err := json.Unmarshal([]byte(raw), &setup); err != nil {
		return domain.Setup{}, fmt.Errorf("storage.LoadSetup: unmarshal: %w", err)
	}
	return setup, nil
}

// ActiveSetups returns every setup not in a terminal state, for recovery
// on restart.
func (s *Store) ActiveSetups(ctx context.Context) ([]domain.Setup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT raw_json FROM active_setups
		WHERE state NOT IN (?, ?)`,
		string(domain.StateCompleted), string(domain.StateInvalidated))
	if err != nil {
		return nil, fmt.Errorf("storage.ActiveSetups: %w", err)
	}
	defer rows.Close()

	var out []domain.Setup
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("storage.ActiveSetups: scan: %w", err)
		}
		var setup domain.Setup
		if err := json.Unmarshal([]byte(raw), &setup); err != nil {
			return nil, fmt.Errorf("storage.ActiveSetups: unmarshal: %w", err)
		}
		out = append(out, setup)
	}
	return out, rows.Err()
}

// SaveTrade upserts a Trade record keyed by setup id.
func (s *Store) SaveTrade(ctx context.Context, t domain.Trade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (setup_id, entry_time, entry_price, exit_time, exit_price, exit_reason, size, pnl_points, pnl_cash, result)
		VALUES (?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(setup_id) DO UPDATE SET
			exit_time=excluded.exit_time, exit_price=excluded.exit_price, exit_reason=excluded.exit_reason,
			pnl_points=excluded.pnl_points, pnl_cash=excluded.pnl_cash, result=excluded.result`,
		t.SetupID, t.EntryTime, t.EntryPrice, nullTime(t.ExitTime), t.ExitPrice, string(t.ExitReason),
		t.Size, t.PnLPoints, t.PnLCash, string(t.Result),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveTrade: %w", err)
	}
	return nil
}

// Trades returns every trade in the store ordered by entry time.
func (s *Store) Trades(ctx context.Context) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT setup_id, entry_time, entry_price, exit_time, exit_price, exit_reason, size, pnl_points, pnl_cash, result
		FROM trades ORDER BY entry_time`)
	if err != nil {
		return nil, fmt.Errorf("storage.Trades: %w", err)
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var exitTime sql.NullTime
		var exitReason, result string
		if err := rows.Scan(&t.SetupID, &t.EntryTime, &t.EntryPrice, &exitTime, &t.ExitPrice, &exitReason, &t.Size, &t.PnLPoints, &t.PnLCash, &result); err != nil {
			return nil, fmt.Errorf("storage.Trades: scan: %w", err)
		}
		if exitTime.Valid {
			t.ExitTime = exitTime.Time
		}
		t.ExitReason = domain.ExitReason(exitReason)
		t.Result = domain.TradeResult(result)
		out = append(out, t)
	}
	return out, rows.Err()
}

// SaveSession upserts the daily Session metadata record.
func (s *Store) SaveSession(ctx context.Context, sess domain.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_state (date, started_at, ended_at, starting_capital, ending_capital, setups_found, trades_taken, daily_pnl, safe_mode)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(date) DO UPDATE SET
			ended_at=excluded.ended_at, ending_capital=excluded.ending_capital,
			setups_found=excluded.setups_found, trades_taken=excluded.trades_taken,
			daily_pnl=excluded.daily_pnl, safe_mode=excluded.safe_mode`,
		sess.Date, nullTime(sess.StartedAt), nullTime(sess.EndedAt), sess.StartingCapital, sess.EndingCapital,
		sess.SetupsFound, sess.TradesTaken, sess.DailyPnL, boolToInt(sess.SafeMode),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveSession: %w", err)
	}
	return nil
}

// SaveShadowPrediction upserts a ShadowPrediction, recorded for every
// setup even when ML filtering is off (spec §3's shadow-mode contract).
func (s *Store) SaveShadowPrediction(ctx context.Context, p domain.ShadowPrediction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shadow_predictions (setup_id, ml_probability, ml_decision, rule_decision, agreement, actual_outcome, actual_pnl, predicted_at)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(setup_id) DO UPDATE SET
			actual_outcome=excluded.actual_outcome, actual_pnl=excluded.actual_pnl`,
		p.SetupID, p.MLProbability, string(p.MLDecision), string(p.RuleDecision), boolToInt(p.Agreement),
		string(p.ActualOutcome), p.ActualPnL, p.PredictedAt,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveShadowPrediction: %w", err)
	}
	return nil
}

// ShadowAgreementStats reports how often the ML gate's decision agreed
// with the rule-only decision over the last `days` days, and the
// resolved-outcome win rate split by decision — the core query behind
// the shadow-mode analyzer CLI (spec §11).
type ShadowAgreementStats struct {
	Total          int
	Agreements     int
	TakeWinRate    float64
	SkipAvoidedLossRate float64
}

// ShadowAgreement computes ShadowAgreementStats over predictions made in
// the last `days` days.
func (s *Store) ShadowAgreement(ctx context.Context, days int) (ShadowAgreementStats, error) {
	since := time.Now().UTC().AddDate(0, 0, -days)

	rows, err := s.db.QueryContext(ctx, `
		SELECT ml_decision, agreement, actual_outcome
		FROM shadow_predictions
		WHERE predicted_at >= ?`, since)
	if err != nil {
		return ShadowAgreementStats{}, fmt.Errorf("storage.ShadowAgreement: %w", err)
	}
	defer rows.Close()

	var stats ShadowAgreementStats
	var takeWins, takeTotal, skipLossesAvoided, skipTotal int
	for rows.Next() {
		var decision, outcome string
		var agreement int
		if err := rows.Scan(&decision, &agreement, &outcome); err != nil {
			return ShadowAgreementStats{}, fmt.Errorf("storage.ShadowAgreement: scan: %w", err)
		}
		stats.Total++
		if agreement != 0 {
			stats.Agreements++
		}
		if decision == string(domain.DecisionTake) {
			takeTotal++
			if outcome == string(domain.ResultWin) {
				takeWins++
			}
		} else {
			skipTotal++
			if outcome == string(domain.ResultLoss) {
				skipLossesAvoided++
			}
		}
	}
	if takeTotal > 0 {
		stats.TakeWinRate = float64(takeWins) / float64(takeTotal)
	}
	if skipTotal > 0 {
		stats.SkipAvoidedLossRate = float64(skipLossesAvoided) / float64(skipTotal)
	}
	return stats, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
