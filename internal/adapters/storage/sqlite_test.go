package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benagen/slobtrading/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleSetup(id string) domain.Setup {
	now := time.Date(2026, 3, 10, 9, 45, 0, 0, time.UTC)
	return domain.Setup{
		ID:        id,
		Direction: domain.Short,
		State:     domain.StateEntryArmed,
		LSEHigh:   100.5,
		LSELow:    99.5,
		LIQ1:      domain.LiquidityEvent{Idx: 12, Level: 100.75, Confidence: 0.82},
		LIQ1Time:  now.Add(5 * time.Minute),
		Consolidation: domain.Consolidation{
			Start: 12, End: 20, High: 100.6, Low: 100.2,
		},
		LIQ2:     domain.LiquidityEvent{Idx: 22, Level: 100.65, Confidence: 0.91},
		NoWick:   domain.NoWickResult{Idx: 22, Qualifies: true, Score: 0.77},
		LIQ2Time: now.Add(20 * time.Minute),

		EntryTriggerIdx: 23,
		EntryIdx:        24,
		EntryTime:       now.Add(24 * time.Minute),
		EntryPrice:      100.4,
		SLPrice:         100.7,
		TPPrice:         99.8,

		RiskPoints:      0.3,
		RewardPoints:    0.6,
		RiskRewardRatio: 2.0,

		CreatedAt:   now,
		LastUpdated: now.Add(24 * time.Minute),
	}
}

func TestStore_SaveAndLoadSetup(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	setup := sampleSetup("setup-1")
	require.NoError(t, s.SaveSetup(ctx, "MES", setup))

	got, err := s.LoadSetup(ctx, "setup-1")
	require.NoError(t, err)
	assert.Equal(t, setup.ID, got.ID)
	assert.Equal(t, setup.Direction, got.Direction)
	assert.Equal(t, setup.EntryPrice, got.EntryPrice)
	assert.Equal(t, setup.SLPrice, got.SLPrice)
	assert.Equal(t, setup.TPPrice, got.TPPrice)
	assert.Equal(t, setup.RiskRewardRatio, got.RiskRewardRatio)
}

func TestStore_SaveSetup_UpsertUpdatesState(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	setup := sampleSetup("setup-2")
	require.NoError(t, s.SaveSetup(ctx, "MES", setup))

	setup.State = domain.StateCompleted
	setup.Invalidation = domain.ReasonNone
	require.NoError(t, s.SaveSetup(ctx, "MES", setup))

	got, err := s.LoadSetup(ctx, "setup-2")
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, got.State)
}

func TestStore_ActiveSetups_ExcludesTerminal(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	active := sampleSetup("active-1")
	active.State = domain.StateEntryArmed
	require.NoError(t, s.SaveSetup(ctx, "MES", active))

	done := sampleSetup("done-1")
	done.State = domain.StateCompleted
	require.NoError(t, s.SaveSetup(ctx, "MES", done))

	invalid := sampleSetup("invalid-1")
	invalid.State = domain.StateInvalidated
	require.NoError(t, s.SaveSetup(ctx, "MES", invalid))

	setups, err := s.ActiveSetups(ctx)
	require.NoError(t, err)
	require.Len(t, setups, 1)
	assert.Equal(t, "active-1", setups[0].ID)
}

func TestStore_SaveAndListTrades(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	trade := domain.Trade{
		SetupID:    "setup-1",
		EntryTime:  time.Date(2026, 3, 10, 9, 50, 0, 0, time.UTC),
		EntryPrice: 100.4,
		Size:       2,
		Result:     domain.ResultOpen,
	}
	require.NoError(t, s.SaveTrade(ctx, trade))

	trade.ExitTime = trade.EntryTime.Add(10 * time.Minute)
	trade.ExitPrice = 99.8
	trade.ExitReason = domain.ExitTP
	trade.PnLPoints = 0.6
	trade.PnLCash = 60
	trade.Result = domain.ResultWin
	require.NoError(t, s.SaveTrade(ctx, trade))

	trades, err := s.Trades(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, domain.ResultWin, trades[0].Result)
	assert.Equal(t, domain.ExitTP, trades[0].ExitReason)
	assert.Equal(t, 60.0, trades[0].PnLCash)
}

func TestStore_SaveSession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	sess := domain.Session{
		Date:            date,
		StartedAt:       date.Add(9*time.Hour + 30*time.Minute),
		StartingCapital: 50000,
		SetupsFound:     3,
	}
	require.NoError(t, s.SaveSession(ctx, sess))

	sess.EndedAt = date.Add(16 * time.Hour)
	sess.EndingCapital = 50250
	sess.TradesTaken = 1
	sess.DailyPnL = 250
	require.NoError(t, s.SaveSession(ctx, sess))
}

func TestStore_ShadowAgreement(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	preds := []domain.ShadowPrediction{
		{SetupID: "s1", MLDecision: domain.DecisionTake, RuleDecision: domain.DecisionTake, Agreement: true, ActualOutcome: domain.ResultWin, PredictedAt: now},
		{SetupID: "s2", MLDecision: domain.DecisionTake, RuleDecision: domain.DecisionTake, Agreement: true, ActualOutcome: domain.ResultLoss, PredictedAt: now},
		{SetupID: "s3", MLDecision: domain.DecisionSkip, RuleDecision: domain.DecisionTake, Agreement: false, ActualOutcome: domain.ResultLoss, PredictedAt: now},
	}
	for _, p := range preds {
		require.NoError(t, s.SaveShadowPrediction(ctx, p))
	}

	stats, err := s.ShadowAgreement(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Agreements)
	assert.InDelta(t, 0.5, stats.TakeWinRate, 1e-9)
	assert.InDelta(t, 1.0, stats.SkipAvoidedLossRate, 1e-9)
}
