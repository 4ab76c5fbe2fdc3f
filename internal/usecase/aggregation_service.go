package usecase

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fieldpulse/liveactivity/internal/domain/league"
	"github.com/fieldpulse/liveactivity/internal/domain/stats"
	"github.com/fieldpulse/liveactivity/internal/domain/subscription"
	"github.com/fieldpulse/liveactivity/internal/platform/logging"
)

// MatchupDataSource is the slice of remote data the aggregator needs.
type MatchupDataSource interface {
	Rosters(ctx context.Context, leagueID string) ([]league.Roster, error)
	Users(ctx context.Context, leagueID string) ([]league.Member, error)
	LeagueInfo(ctx context.Context, leagueID string) (league.Info, error)
	Matchups(ctx context.Context, leagueID string, week int) ([]league.Matchup, error)
	SeasonState(ctx context.Context) (league.SeasonState, error)
	PlayerStats(ctx context.Context, playerIDs []string, season string, week int) (map[string]stats.PlayerLine, error)
}

// MatchupContext is a device's resolved weekly matchup: both starter sets
// plus the display names the push payload carries.
type MatchupContext struct {
	Starters         stats.StarterSet
	TeamName         string
	OpponentTeamName string
	LeagueName       string
}

// AggregationService owns the process-wide statistics snapshot and computes
// per-device aggregates from it. The snapshot is replaced wholesale via an
// atomic pointer so a rebuild never tears a concurrent read.
type AggregationService struct {
	data    MatchupDataSource
	devices subscription.Repository
	history stats.HistoryRepository
	logger  *logging.Logger

	snapshot atomic.Pointer[stats.Snapshot]
	now      func() time.Time
}

func NewAggregationService(data MatchupDataSource, devices subscription.Repository, history stats.HistoryRepository, logger *logging.Logger) *AggregationService {
	if logger == nil {
		logger = logging.Default()
	}
	s := &AggregationService{
		data:    data,
		devices: devices,
		history: history,
		logger:  logger,
		now:     time.Now,
	}
	s.snapshot.Store(stats.NewSnapshot(nil, time.Time{}))
	return s
}

func (s *AggregationService) Snapshot() *stats.Snapshot {
	return s.snapshot.Load()
}

// RebuildSnapshot collects the union of starter ids across every device with
// an active session, issues one batched stats fetch, and swaps the table in.
// Devices whose matchup cannot be resolved are skipped, not fatal.
func (s *AggregationService) RebuildSnapshot(ctx context.Context) error {
	ctx, span := startUsecaseSpan(ctx, "aggregation.rebuild_snapshot")
	defer span.End()

	devices, err := s.devices.List(ctx)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}

	idSet := make(map[string]struct{})
	for _, device := range devices {
		if !device.SessionActive() {
			continue
		}
		starters, err := s.StartersFor(ctx, device)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping device in snapshot rebuild", "device_id", device.DeviceID, "error", err)
			continue
		}
		for _, id := range starters.Combined() {
			idSet[id] = struct{}{}
		}
	}

	if len(idSet) == 0 {
		s.snapshot.Store(stats.NewSnapshot(nil, s.now()))
		return nil
	}

	state, err := s.data.SeasonState(ctx)
	if err != nil {
		return fmt.Errorf("season state: %w", err)
	}

	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}

	lines, err := s.data.PlayerStats(ctx, ids, state.Season, state.Week)
	if err != nil {
		return fmt.Errorf("player stats: %w", err)
	}

	s.snapshot.Store(stats.NewSnapshot(lines, s.now()))
	s.logger.DebugContext(ctx, "snapshot rebuilt", "players", len(lines), "devices", len(devices))
	return nil
}

// Aggregate computes a device's current totals against the live snapshot.
// It never mutates comparison state, so callers may invoke it freely.
func (s *AggregationService) Aggregate(ctx context.Context, deviceID string) (stats.Aggregate, error) {
	device, ok, err := s.devices.Get(ctx, deviceID)
	if err != nil {
		return stats.Aggregate{}, err
	}
	if !ok {
		return stats.Aggregate{}, fmt.Errorf("%w: device %s", ErrNotFound, deviceID)
	}

	starters, err := s.StartersFor(ctx, device)
	if err != nil {
		return stats.Aggregate{}, err
	}
	return s.AggregateOf(starters.Own), nil
}

// AggregateOf sums the snapshot lines for the given player ids. Players the
// snapshot does not know contribute zero.
func (s *AggregationService) AggregateOf(playerIDs []string) stats.Aggregate {
	snapshot := s.snapshot.Load()

	var agg stats.Aggregate
	for _, id := range playerIDs {
		line, _ := snapshot.Line(id)
		agg.ScoredTotal += line.Scored
		agg.ProjectedTotal += line.Projected
	}
	agg.ScoredTotal = stats.Round2(agg.ScoredTotal)
	agg.ProjectedTotal = stats.Round2(agg.ProjectedTotal)
	return agg
}

// PlayerScores returns the per-player scored points for the ids, from the
// current snapshot.
func (s *AggregationService) PlayerScores(playerIDs []string) map[string]float64 {
	snapshot := s.snapshot.Load()

	out := make(map[string]float64, len(playerIDs))
	for _, id := range playerIDs {
		line, _ := snapshot.Line(id)
		out[id] = line.Scored
	}
	return out
}

// StartersFor returns the cached starter set for the device, resolving and
// persisting the matchup on first use.
func (s *AggregationService) StartersFor(ctx context.Context, device subscription.Device) (stats.StarterSet, error) {
	starters, ok, err := s.history.Starters(ctx, device.DeviceID)
	if err != nil {
		return stats.StarterSet{}, err
	}
	if ok {
		return starters, nil
	}

	matchup, err := s.ResolveMatchup(ctx, device)
	if err != nil {
		return stats.StarterSet{}, err
	}
	if err := s.history.SaveStarters(ctx, device.DeviceID, matchup.Starters); err != nil {
		return stats.StarterSet{}, err
	}
	return matchup.Starters, nil
}

// ResolveMatchup determines the device's current weekly matchup from the
// league rosters, the week's pairings, and the member list.
func (s *AggregationService) ResolveMatchup(ctx context.Context, device subscription.Device) (MatchupContext, error) {
	ctx, span := startUsecaseSpan(ctx, "aggregation.resolve_matchup")
	defer span.End()

	rosters, err := s.data.Rosters(ctx, device.LeagueID)
	if err != nil {
		return MatchupContext{}, err
	}

	var own *league.Roster
	for i := range rosters {
		if rosters[i].OwnerID == device.UserID {
			own = &rosters[i]
			break
		}
	}
	if own == nil {
		return MatchupContext{}, fmt.Errorf("%w: user %s has no roster in league %s", ErrNotFound, device.UserID, device.LeagueID)
	}

	state, err := s.data.SeasonState(ctx)
	if err != nil {
		return MatchupContext{}, err
	}

	matchups, err := s.data.Matchups(ctx, device.LeagueID, state.Week)
	if err != nil {
		return MatchupContext{}, err
	}

	ownMatchupID := 0
	for _, m := range matchups {
		if m.RosterID == own.RosterID {
			ownMatchupID = m.MatchupID
			break
		}
	}

	var opponent *league.Roster
	if ownMatchupID != 0 {
		for _, m := range matchups {
			if m.MatchupID != ownMatchupID || m.RosterID == own.RosterID {
				continue
			}
			for i := range rosters {
				if rosters[i].RosterID == m.RosterID {
					opponent = &rosters[i]
					break
				}
			}
			break
		}
	}

	ctxOut := MatchupContext{
		Starters: stats.StarterSet{Own: append([]string(nil), own.Starters...)},
		TeamName: "My Team",
	}
	if opponent != nil {
		ctxOut.Starters.Opponent = append([]string(nil), opponent.Starters...)
	}

	members, err := s.data.Users(ctx, device.LeagueID)
	if err != nil {
		s.logger.WarnContext(ctx, "league members unavailable, using default team names", "league_id", device.LeagueID, "error", err)
	} else {
		for _, member := range members {
			if member.UserID == device.UserID {
				ctxOut.TeamName = member.DisplayNameOrDefault("My Team")
			}
			if opponent != nil && member.UserID == opponent.OwnerID {
				ctxOut.OpponentTeamName = member.DisplayNameOrDefault("Opponent")
			}
		}
	}
	if opponent != nil && ctxOut.OpponentTeamName == "" {
		ctxOut.OpponentTeamName = "Opponent"
	}

	if info, err := s.data.LeagueInfo(ctx, device.LeagueID); err == nil {
		ctxOut.LeagueName = info.Name
	} else {
		s.logger.WarnContext(ctx, "league info unavailable", "league_id", device.LeagueID, "error", err)
	}

	return ctxOut, nil
}
