package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldpulse/liveactivity/internal/domain/league"
	"github.com/fieldpulse/liveactivity/internal/domain/schedule"
	"github.com/fieldpulse/liveactivity/internal/domain/stats"
	"github.com/fieldpulse/liveactivity/internal/platform/cache"
	"github.com/fieldpulse/liveactivity/internal/platform/logging"
)

// LeagueHost is the league-host API surface the service depends on.
type LeagueHost interface {
	GetRosters(ctx context.Context, leagueID string) ([]league.Roster, error)
	GetUsers(ctx context.Context, leagueID string) ([]league.Member, error)
	GetLeagueInfo(ctx context.Context, leagueID string) (league.Info, error)
	GetMatchups(ctx context.Context, leagueID string, week int) ([]league.Matchup, error)
	GetSeasonState(ctx context.Context) (league.SeasonState, error)
	GetPlayerCatalog(ctx context.Context) (map[string]league.PlayerInfo, error)
	GetPlayerStats(ctx context.Context, playerIDs []string, season string, week int) (map[string]stats.PlayerLine, error)
}

// ScheduleProvider returns the current week's real-world game schedule.
type ScheduleProvider interface {
	GetScoreboard(ctx context.Context) ([]schedule.Game, error)
}

type RemoteDataConfig struct {
	RostersTTL     time.Duration
	UsersTTL       time.Duration
	LeagueTTL      time.Duration
	MatchupsTTL    time.Duration
	SeasonStateTTL time.Duration
	CatalogTTL     time.Duration
	GamesTTL       time.Duration
}

func DefaultRemoteDataConfig() RemoteDataConfig {
	return RemoteDataConfig{
		RostersTTL:     10 * time.Minute,
		UsersTTL:       30 * time.Minute,
		LeagueTTL:      24 * time.Hour,
		MatchupsTTL:    10 * time.Minute,
		SeasonStateTTL: 24 * time.Hour,
		CatalogTTL:     24 * time.Hour,
		GamesTTL:       24 * time.Hour,
	}
}

// RemoteDataService fronts every upstream read with a per-entity TTL cache.
// Expired entries are refreshed through a single flight; when a refresh
// fails the previous value is served stale so one upstream outage does not
// blank out running sessions.
type RemoteDataService struct {
	host     LeagueHost
	schedule ScheduleProvider
	logger   *logging.Logger

	rosters     *cache.Store
	users       *cache.Store
	leagues     *cache.Store
	matchups    *cache.Store
	seasonState *cache.Store
	catalog     *cache.Store
	games       *cache.Store
}

func NewRemoteDataService(host LeagueHost, scheduleProvider ScheduleProvider, cfg RemoteDataConfig, logger *logging.Logger) *RemoteDataService {
	if logger == nil {
		logger = logging.Default()
	}
	defaults := DefaultRemoteDataConfig()
	if cfg.RostersTTL <= 0 {
		cfg.RostersTTL = defaults.RostersTTL
	}
	if cfg.UsersTTL <= 0 {
		cfg.UsersTTL = defaults.UsersTTL
	}
	if cfg.LeagueTTL <= 0 {
		cfg.LeagueTTL = defaults.LeagueTTL
	}
	if cfg.MatchupsTTL <= 0 {
		cfg.MatchupsTTL = defaults.MatchupsTTL
	}
	if cfg.SeasonStateTTL <= 0 {
		cfg.SeasonStateTTL = defaults.SeasonStateTTL
	}
	if cfg.CatalogTTL <= 0 {
		cfg.CatalogTTL = defaults.CatalogTTL
	}
	if cfg.GamesTTL <= 0 {
		cfg.GamesTTL = defaults.GamesTTL
	}

	return &RemoteDataService{
		host:        host,
		schedule:    scheduleProvider,
		logger:      logger,
		rosters:     cache.NewStore(cfg.RostersTTL),
		users:       cache.NewStore(cfg.UsersTTL),
		leagues:     cache.NewStore(cfg.LeagueTTL),
		matchups:    cache.NewStore(cfg.MatchupsTTL),
		seasonState: cache.NewStore(cfg.SeasonStateTTL),
		catalog:     cache.NewStore(cfg.CatalogTTL),
		games:       cache.NewStore(cfg.GamesTTL),
	}
}

func (s *RemoteDataService) Rosters(ctx context.Context, leagueID string) ([]league.Roster, error) {
	value, err := fetchCached(ctx, s, s.rosters, "rosters", leagueID, func(ctx context.Context) (any, error) {
		return s.host.GetRosters(ctx, leagueID)
	})
	if err != nil {
		return nil, err
	}
	return value.([]league.Roster), nil
}

func (s *RemoteDataService) Users(ctx context.Context, leagueID string) ([]league.Member, error) {
	value, err := fetchCached(ctx, s, s.users, "users", leagueID, func(ctx context.Context) (any, error) {
		return s.host.GetUsers(ctx, leagueID)
	})
	if err != nil {
		return nil, err
	}
	return value.([]league.Member), nil
}

func (s *RemoteDataService) LeagueInfo(ctx context.Context, leagueID string) (league.Info, error) {
	value, err := fetchCached(ctx, s, s.leagues, "league", leagueID, func(ctx context.Context) (any, error) {
		return s.host.GetLeagueInfo(ctx, leagueID)
	})
	if err != nil {
		return league.Info{}, err
	}
	return value.(league.Info), nil
}

func (s *RemoteDataService) Matchups(ctx context.Context, leagueID string, week int) ([]league.Matchup, error) {
	key := fmt.Sprintf("%s/%d", leagueID, week)
	value, err := fetchCached(ctx, s, s.matchups, "matchups", key, func(ctx context.Context) (any, error) {
		return s.host.GetMatchups(ctx, leagueID, week)
	})
	if err != nil {
		return nil, err
	}
	return value.([]league.Matchup), nil
}

func (s *RemoteDataService) SeasonState(ctx context.Context) (league.SeasonState, error) {
	value, err := fetchCached(ctx, s, s.seasonState, "season_state", "nfl", func(ctx context.Context) (any, error) {
		return s.host.GetSeasonState(ctx)
	})
	if err != nil {
		return league.SeasonState{}, err
	}
	return value.(league.SeasonState), nil
}

func (s *RemoteDataService) PlayerCatalog(ctx context.Context) (map[string]league.PlayerInfo, error) {
	value, err := fetchCached(ctx, s, s.catalog, "player_catalog", "nfl", func(ctx context.Context) (any, error) {
		return s.host.GetPlayerCatalog(ctx)
	})
	if err != nil {
		return nil, err
	}
	return value.(map[string]league.PlayerInfo), nil
}

func (s *RemoteDataService) Games(ctx context.Context) ([]schedule.Game, error) {
	value, err := fetchCached(ctx, s, s.games, "games", "scoreboard", func(ctx context.Context) (any, error) {
		return s.schedule.GetScoreboard(ctx)
	})
	if err != nil {
		return nil, err
	}
	return value.([]schedule.Game), nil
}

// RefreshGames bypasses the TTL and replaces the cached scoreboard. The old
// value stays in place when the fetch fails.
func (s *RemoteDataService) RefreshGames(ctx context.Context) ([]schedule.Game, error) {
	games, err := s.schedule.GetScoreboard(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "scoreboard refresh failed, keeping previous", "error", err)
		return s.Games(ctx)
	}
	s.games.Set(ctx, "scoreboard", games)
	return games, nil
}

// RefreshCatalog forces a full player-catalog reload.
func (s *RemoteDataService) RefreshCatalog(ctx context.Context) error {
	catalog, err := s.host.GetPlayerCatalog(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "player catalog refresh failed, keeping previous", "error", err)
		return nil
	}
	s.catalog.Set(ctx, "nfl", catalog)
	s.logger.InfoContext(ctx, "player catalog refreshed", "players", len(catalog))
	return nil
}

// TeamOf maps a player id to its NFL team abbreviation via the reference
// catalog. Unknown players map to the empty string.
func (s *RemoteDataService) TeamOf(ctx context.Context, playerID string) (string, error) {
	catalog, err := s.PlayerCatalog(ctx)
	if err != nil {
		return "", err
	}
	return catalog[playerID].Team, nil
}

// PlayerStats is not cached: it is the one batched stats round trip issued
// per poll cycle and must reflect live scores.
func (s *RemoteDataService) PlayerStats(ctx context.Context, playerIDs []string, season string, week int) (map[string]stats.PlayerLine, error) {
	lines, err := s.host.GetPlayerStats(ctx, playerIDs, season, week)
	if err != nil {
		return nil, fmt.Errorf("%w: player stats: %v", ErrDataUnavailable, err)
	}
	return lines, nil
}

func fetchCached(ctx context.Context, s *RemoteDataService, store *cache.Store, entity, key string, loader func(context.Context) (any, error)) (any, error) {
	value, stale, err := store.GetOrRefresh(ctx, key, loader)
	if err != nil {
		return nil, fmt.Errorf("%w: %s key=%s: %v", ErrDataUnavailable, entity, key, err)
	}
	if stale {
		s.logger.WarnContext(ctx, "stale data served", "entity", entity, "key", key)
	}
	return value, nil
}
