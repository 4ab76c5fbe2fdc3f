package usecase

import (
	"context"
	"testing"

	"github.com/fieldpulse/liveactivity/internal/domain/league"
	"github.com/fieldpulse/liveactivity/internal/domain/stats"
	"github.com/fieldpulse/liveactivity/internal/infrastructure/repository/memory"
	"github.com/fieldpulse/liveactivity/internal/platform/logging"
	"github.com/stretchr/testify/require"
)

func TestChangeDetector_FirstCycleAlwaysPushes(t *testing.T) {
	t.Parallel()

	history := memory.NewHistoryRepository()
	detector := NewChangeDetector(history, logging.NewNop())

	decision, err := detector.Evaluate(context.Background(), ChangeInput{
		DeviceID: "d1",
		Current:  stats.Aggregate{ScoredTotal: 10.5},
		Scores:   map[string]float64{"p1": 10.5},
	})
	require.NoError(t, err)
	require.True(t, decision.ShouldPush)
	require.False(t, decision.IsAlert)
	require.Empty(t, decision.Message)
}

func TestChangeDetector_NoPushBelowEpsilon(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	history := memory.NewHistoryRepository()
	detector := NewChangeDetector(history, logging.NewNop())

	require.NoError(t, history.SavePreviousAggregate(ctx, "d1", stats.Aggregate{ScoredTotal: 10.5, ProjectedTotal: 100}))
	require.NoError(t, history.SavePreviousPlayerScores(ctx, "d1", map[string]float64{"p1": 10.5}))

	decision, err := detector.Evaluate(ctx, ChangeInput{
		DeviceID: "d1",
		Current:  stats.Aggregate{ScoredTotal: 10.505, ProjectedTotal: 100.004},
		Scores:   map[string]float64{"p1": 10.505},
	})
	require.NoError(t, err)
	require.False(t, decision.ShouldPush)

	// the per-player table is updated even when no push goes out
	scores, err := history.PreviousPlayerScores(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, 10.505, scores["p1"])

	// the aggregate baseline stays so sub-epsilon drift can accumulate
	agg, ok, err := history.PreviousAggregate(ctx, "d1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 10.5, agg.ScoredTotal)
}

func TestChangeDetector_HighlightWithoutAlert(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	history := memory.NewHistoryRepository()
	detector := NewChangeDetector(history, logging.NewNop())

	require.NoError(t, history.SavePreviousAggregate(ctx, "d1", stats.Aggregate{ScoredTotal: 10}))
	require.NoError(t, history.SavePreviousPlayerScores(ctx, "d1", map[string]float64{"p1": 10}))

	decision, err := detector.Evaluate(ctx, ChangeInput{
		DeviceID: "d1",
		Current:  stats.Aggregate{ScoredTotal: 11.2},
		Scores:   map[string]float64{"p1": 11.2},
		Catalog:  map[string]league.PlayerInfo{"p1": {FullName: "Patrick Mahomes"}},
	})
	require.NoError(t, err)
	require.True(t, decision.ShouldPush)
	require.False(t, decision.IsAlert)
	require.Equal(t, "Patrick Mahomes +1.2 pts", decision.Message)
}

func TestChangeDetector_BigJumpRaisesAlert(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	history := memory.NewHistoryRepository()
	detector := NewChangeDetector(history, logging.NewNop())

	require.NoError(t, history.SavePreviousAggregate(ctx, "d1", stats.Aggregate{ScoredTotal: 10}))
	require.NoError(t, history.SavePreviousPlayerScores(ctx, "d1", map[string]float64{"p1": 10, "p2": 3}))

	decision, err := detector.Evaluate(ctx, ChangeInput{
		DeviceID: "d1",
		Current:  stats.Aggregate{ScoredTotal: 14},
		Scores:   map[string]float64{"p1": 14, "p2": 3.2},
		Catalog:  map[string]league.PlayerInfo{"p1": {FullName: "Josh Allen"}},
	})
	require.NoError(t, err)
	require.True(t, decision.ShouldPush)
	require.True(t, decision.IsAlert)
	require.Equal(t, "Josh Allen +4.0 pts", decision.Message)
}

func TestChangeDetector_TagsOpponentHighlights(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	history := memory.NewHistoryRepository()
	detector := NewChangeDetector(history, logging.NewNop())

	require.NoError(t, history.SavePreviousAggregate(ctx, "d1", stats.Aggregate{ScoredTotal: 10, ProjectedTotal: 90}))
	require.NoError(t, history.SavePreviousPlayerScores(ctx, "d1", map[string]float64{"opp1": 6}))

	decision, err := detector.Evaluate(ctx, ChangeInput{
		DeviceID:    "d1",
		Current:     stats.Aggregate{ScoredTotal: 10, ProjectedTotal: 90.5},
		Scores:      map[string]float64{"opp1": 9.5},
		OpponentIDs: map[string]struct{}{"opp1": {}},
		Catalog:     map[string]league.PlayerInfo{"opp1": {FullName: "Tyreek Hill"}},
	})
	require.NoError(t, err)
	require.True(t, decision.ShouldPush)
	require.True(t, decision.IsAlert)
	require.Equal(t, "Tyreek Hill +3.5 pts (opponent)", decision.Message)
}

func TestChangeDetector_PlayerDeltaPushesWithUnchangedAggregate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	history := memory.NewHistoryRepository()
	detector := NewChangeDetector(history, logging.NewNop())

	// the aggregate covers only the device's own lineup, so an opponent
	// score move leaves it untouched
	require.NoError(t, history.SavePreviousAggregate(ctx, "d1", stats.Aggregate{ScoredTotal: 10, ProjectedTotal: 90}))
	require.NoError(t, history.SavePreviousPlayerScores(ctx, "d1", map[string]float64{"opp1": 6}))

	decision, err := detector.Evaluate(ctx, ChangeInput{
		DeviceID:    "d1",
		Current:     stats.Aggregate{ScoredTotal: 10, ProjectedTotal: 90},
		Scores:      map[string]float64{"opp1": 10},
		OpponentIDs: map[string]struct{}{"opp1": {}},
		Catalog:     map[string]league.PlayerInfo{"opp1": {FullName: "Tyreek Hill"}},
	})
	require.NoError(t, err)
	require.True(t, decision.ShouldPush, "player delta alone must push")
	require.True(t, decision.IsAlert, "delta of 3.0 or more always raises an alert")
	require.Equal(t, "Tyreek Hill +4.0 pts (opponent)", decision.Message)
}

func TestChangeDetector_OwnPlayerDeltaBelowAlertPushesSilently(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	history := memory.NewHistoryRepository()
	detector := NewChangeDetector(history, logging.NewNop())

	require.NoError(t, history.SavePreviousAggregate(ctx, "d1", stats.Aggregate{ScoredTotal: 10}))
	require.NoError(t, history.SavePreviousPlayerScores(ctx, "d1", map[string]float64{"p1": 9.8}))

	decision, err := detector.Evaluate(ctx, ChangeInput{
		DeviceID: "d1",
		Current:  stats.Aggregate{ScoredTotal: 10},
		Scores:   map[string]float64{"p1": 10},
		Catalog:  map[string]league.PlayerInfo{"p1": {FullName: "Patrick Mahomes"}},
	})
	require.NoError(t, err)
	require.True(t, decision.ShouldPush)
	require.False(t, decision.IsAlert)
	require.Equal(t, "Patrick Mahomes +0.2 pts", decision.Message)
}

func TestChangeDetector_SmallPlayerMovesHaveNoHighlight(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	history := memory.NewHistoryRepository()
	detector := NewChangeDetector(history, logging.NewNop())

	require.NoError(t, history.SavePreviousAggregate(ctx, "d1", stats.Aggregate{ScoredTotal: 10}))
	require.NoError(t, history.SavePreviousPlayerScores(ctx, "d1", map[string]float64{"p1": 10}))

	decision, err := detector.Evaluate(ctx, ChangeInput{
		DeviceID: "d1",
		Current:  stats.Aggregate{ScoredTotal: 10.05},
		Scores:   map[string]float64{"p1": 10.05},
	})
	require.NoError(t, err)
	require.True(t, decision.ShouldPush)
	require.Empty(t, decision.Message)
}
