package sleeper

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/fieldpulse/liveactivity/internal/domain/league"
	"github.com/fieldpulse/liveactivity/internal/domain/stats"
	"github.com/fieldpulse/liveactivity/internal/platform/logging"
	"github.com/fieldpulse/liveactivity/internal/platform/resilience"
)

const (
	defaultBaseURL = "https://api.sleeper.app/v1"
	sport          = "nfl"
	scoringKey     = "pts_ppr"
)

var errSleeperTransient = crerr.New("sleeper transient failure")

type ClientConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	Timeout        time.Duration
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
}

// Client is the league-host API client: rosters, members, matchups, the
// season state, the player reference catalog, and the batched stat lines.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	logger         *logging.Logger
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
	flight         resilience.SingleFlight
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = 30 * time.Second
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)

	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		logger:         logger,
		breaker:        resilience.NewCircuitBreaker(breakerCfg.FailureThreshold, breakerCfg.OpenTimeout, breakerCfg.HalfOpenMaxReq),
		circuitEnabled: breakerCfg.Enabled,
	}
}

func (c *Client) GetRosters(ctx context.Context, leagueID string) ([]league.Roster, error) {
	if strings.TrimSpace(leagueID) == "" {
		return nil, crerr.New("league id is required")
	}

	var raw []rosterEnvelope
	if err := c.doJSON(ctx, "/league/"+leagueID+"/rosters", &raw); err != nil {
		return nil, fmt.Errorf("fetch rosters league=%s: %w", leagueID, err)
	}

	out := make([]league.Roster, 0, len(raw))
	for _, item := range raw {
		out = append(out, league.Roster{
			RosterID: item.RosterID,
			OwnerID:  item.OwnerID,
			Starters: compactIDs(item.Starters),
			Players:  compactIDs(item.Players),
		})
	}
	return out, nil
}

func (c *Client) GetUsers(ctx context.Context, leagueID string) ([]league.Member, error) {
	if strings.TrimSpace(leagueID) == "" {
		return nil, crerr.New("league id is required")
	}

	var raw []userEnvelope
	if err := c.doJSON(ctx, "/league/"+leagueID+"/users", &raw); err != nil {
		return nil, fmt.Errorf("fetch users league=%s: %w", leagueID, err)
	}

	out := make([]league.Member, 0, len(raw))
	for _, item := range raw {
		out = append(out, league.Member{
			UserID:      item.UserID,
			DisplayName: item.DisplayName,
			TeamName:    item.Metadata.TeamName,
			Avatar:      item.Avatar,
		})
	}
	return out, nil
}

func (c *Client) GetLeagueInfo(ctx context.Context, leagueID string) (league.Info, error) {
	if strings.TrimSpace(leagueID) == "" {
		return league.Info{}, crerr.New("league id is required")
	}

	var raw leagueEnvelope
	if err := c.doJSON(ctx, "/league/"+leagueID, &raw); err != nil {
		return league.Info{}, fmt.Errorf("fetch league info league=%s: %w", leagueID, err)
	}

	return league.Info{
		LeagueID: raw.LeagueID,
		Name:     raw.Name,
		Season:   raw.Season,
	}, nil
}

func (c *Client) GetMatchups(ctx context.Context, leagueID string, week int) ([]league.Matchup, error) {
	if strings.TrimSpace(leagueID) == "" {
		return nil, crerr.New("league id is required")
	}
	if week <= 0 {
		return nil, crerr.Newf("week must be greater than zero, got %d", week)
	}

	var raw []matchupEnvelope
	if err := c.doJSON(ctx, "/league/"+leagueID+"/matchups/"+strconv.Itoa(week), &raw); err != nil {
		return nil, fmt.Errorf("fetch matchups league=%s week=%d: %w", leagueID, week, err)
	}

	out := make([]league.Matchup, 0, len(raw))
	for _, item := range raw {
		out = append(out, league.Matchup{
			RosterID:  item.RosterID,
			MatchupID: item.MatchupID,
			Points:    item.Points,
		})
	}
	return out, nil
}

func (c *Client) GetSeasonState(ctx context.Context) (league.SeasonState, error) {
	var raw stateEnvelope
	if err := c.doJSON(ctx, "/state/"+sport, &raw); err != nil {
		return league.SeasonState{}, fmt.Errorf("fetch season state: %w", err)
	}
	if raw.Week <= 0 {
		raw.Week = 1
	}

	return league.SeasonState{Season: raw.Season, Week: raw.Week}, nil
}

// GetPlayerCatalog fetches the full reference catalog (several MB upstream)
// filtered down to the fields the service uses.
func (c *Client) GetPlayerCatalog(ctx context.Context) (map[string]league.PlayerInfo, error) {
	var raw map[string]catalogEnvelope
	if err := c.doJSON(ctx, "/players/"+sport, &raw); err != nil {
		return nil, fmt.Errorf("fetch player catalog: %w", err)
	}

	out := make(map[string]league.PlayerInfo, len(raw))
	for id, item := range raw {
		out[id] = league.PlayerInfo{
			FullName:  item.FullName,
			FirstName: item.FirstName,
			LastName:  item.LastName,
			Team:      item.Team,
			Position:  item.Position,
			Number:    item.Number,
		}
	}
	return out, nil
}

// GetPlayerStats issues the two batched stat queries for the week (actuals
// and projections) and returns lines for the requested player ids only.
// This is the single upstream stats round-trip per poll cycle.
func (c *Client) GetPlayerStats(ctx context.Context, playerIDs []string, season string, week int) (map[string]stats.PlayerLine, error) {
	if len(playerIDs) == 0 {
		return map[string]stats.PlayerLine{}, nil
	}
	if strings.TrimSpace(season) == "" || week <= 0 {
		return nil, crerr.Newf("season/week are required, got season=%q week=%d", season, week)
	}

	weekPath := season + "/" + strconv.Itoa(week)

	var scored map[string]map[string]float64
	if err := c.doJSON(ctx, "/stats/"+sport+"/regular/"+weekPath, &scored); err != nil {
		return nil, fmt.Errorf("fetch player stats season=%s week=%d: %w", season, week, err)
	}

	var projected map[string]map[string]float64
	if err := c.doJSON(ctx, "/projections/"+sport+"/regular/"+weekPath, &projected); err != nil {
		return nil, fmt.Errorf("fetch player projections season=%s week=%d: %w", season, week, err)
	}

	out := make(map[string]stats.PlayerLine, len(playerIDs))
	for _, id := range playerIDs {
		if id == "" {
			continue
		}
		line := stats.PlayerLine{}
		if row, ok := scored[id]; ok {
			line.Scored = row[scoringKey]
		}
		if row, ok := projected[id]; ok {
			line.Projected = row[scoringKey]
		}
		out[id] = line
	}
	return out, nil
}

func (c *Client) doJSON(ctx context.Context, path string, out any) error {
	if c.circuitEnabled {
		if err := c.breaker.Allow(); err != nil {
			c.logger.WarnContext(ctx, "sleeper circuit breaker rejected request", "path", path, "state", c.breaker.State())
			return fmt.Errorf("sleeper is temporarily unavailable: %w", err)
		}
	}

	// the shared fetch outlives the first caller: its cancellation must not
	// fail every goroutine waiting on the same key
	sharedCtx := context.WithoutCancel(ctx)
	body, err, _ := c.flight.Do(path, func() (any, error) {
		return c.fetch(sharedCtx, path)
	})
	c.recordCircuitResult(err)
	if err != nil {
		return err
	}

	if err := sonic.Unmarshal(body.([]byte), out); err != nil {
		return crerr.Wrapf(err, "decode sleeper response path=%s", path)
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, crerr.Wrapf(err, "create sleeper request path=%s", path)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: call sleeper path=%s: %v", errSleeperTransient, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode/100 != 2 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if isRetryableStatus(resp.StatusCode) {
			return nil, fmt.Errorf("%w: sleeper status=%d path=%s body=%s", errSleeperTransient, resp.StatusCode, path, strings.TrimSpace(string(raw)))
		}
		return nil, fmt.Errorf("sleeper status=%d path=%s body=%s", resp.StatusCode, path, strings.TrimSpace(string(raw)))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read sleeper response path=%s: %v", errSleeperTransient, path, err)
	}
	return raw, nil
}

func (c *Client) recordCircuitResult(err error) {
	if !c.circuitEnabled || c.breaker == nil {
		return
	}
	if err != nil && stderrors.Is(err, errSleeperTransient) {
		c.breaker.RecordFailure()
		return
	}
	c.breaker.RecordSuccess()
}

func isRetryableStatus(statusCode int) bool {
	return statusCode == http.StatusRequestTimeout ||
		statusCode == http.StatusTooManyRequests ||
		statusCode >= http.StatusInternalServerError
}

func compactIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		// the host pads empty lineup slots with "0"
		if id == "" || id == "0" {
			continue
		}
		out = append(out, id)
	}
	return out
}

type rosterEnvelope struct {
	RosterID int      `json:"roster_id"`
	OwnerID  string   `json:"owner_id"`
	Starters []string `json:"starters"`
	Players  []string `json:"players"`
}

type userEnvelope struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar"`
	Metadata    struct {
		TeamName string `json:"team_name"`
	} `json:"metadata"`
}

type leagueEnvelope struct {
	LeagueID string `json:"league_id"`
	Name     string `json:"name"`
	Season   string `json:"season"`
}

type matchupEnvelope struct {
	RosterID  int     `json:"roster_id"`
	MatchupID int     `json:"matchup_id"`
	Points    float64 `json:"points"`
}

type stateEnvelope struct {
	Week   int    `json:"week"`
	Season string `json:"season"`
}

type catalogEnvelope struct {
	FullName  string `json:"full_name"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Team      string `json:"team"`
	Position  string `json:"position"`
	Number    int    `json:"number"`
}
