package espnapi

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/fieldpulse/liveactivity/internal/domain/schedule"
	"github.com/fieldpulse/liveactivity/internal/platform/logging"
	"github.com/fieldpulse/liveactivity/internal/platform/resilience"
)

const defaultBaseURL = "https://site.api.espn.com/apis/site/v2/sports/football/nfl"

var errESPNTransient = crerr.New("espn transient failure")

type ClientConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	Timeout        time.Duration
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
}

// Client fetches the weekly scoreboard used for session start/end decisions.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	logger         *logging.Logger
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
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
		httpClient.Timeout = 15 * time.Second
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

// GetScoreboard returns the current week's games with normalized statuses.
// Games with unparseable kickoff times are dropped rather than failing the
// whole refresh.
func (c *Client) GetScoreboard(ctx context.Context) ([]schedule.Game, error) {
	if c.circuitEnabled {
		if err := c.breaker.Allow(); err != nil {
			c.logger.WarnContext(ctx, "espn circuit breaker rejected request", "state", c.breaker.State())
			return nil, fmt.Errorf("espn is temporarily unavailable: %w", err)
		}
	}

	raw, err := c.fetch(ctx, "/scoreboard")
	c.recordCircuitResult(err)
	if err != nil {
		return nil, err
	}

	var envelope scoreboardEnvelope
	if err := sonic.Unmarshal(raw, &envelope); err != nil {
		return nil, crerr.Wrap(err, "decode espn scoreboard")
	}

	games := make([]schedule.Game, 0, len(envelope.Events))
	for _, event := range envelope.Events {
		if len(event.Competitions) == 0 {
			continue
		}

		startTime, err := time.Parse(time.RFC3339, normalizeESPNDate(event.Date))
		if err != nil {
			c.logger.WarnContext(ctx, "skipping espn event with bad date", "event", event.ShortName, "date", event.Date)
			continue
		}

		competition := event.Competitions[0]
		teams := make([]string, 0, len(competition.Competitors))
		for _, competitor := range competition.Competitors {
			if abbr := strings.TrimSpace(competitor.Team.Abbreviation); abbr != "" {
				teams = append(teams, abbr)
			}
		}

		games = append(games, schedule.Game{
			Name:      event.ShortName,
			Teams:     teams,
			StartTime: startTime,
			Status:    schedule.NormalizeStatus(event.Status.Type.State),
		})
	}
	return games, nil
}

func (c *Client) fetch(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, crerr.Wrapf(err, "create espn request path=%s", path)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: call espn path=%s: %v", errESPNTransient, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: espn status=%d body=%s", errESPNTransient, resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return nil, fmt.Errorf("espn status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read espn response: %v", errESPNTransient, err)
	}
	return body, nil
}

func (c *Client) recordCircuitResult(err error) {
	if !c.circuitEnabled || c.breaker == nil {
		return
	}
	if err != nil && stderrors.Is(err, errESPNTransient) {
		c.breaker.RecordFailure()
		return
	}
	c.breaker.RecordSuccess()
}

// normalizeESPNDate widens the "2006-01-02T15:04Z" shape ESPN emits into
// full RFC3339.
func normalizeESPNDate(raw string) string {
	if len(raw) == len("2006-01-02T15:04Z") && strings.HasSuffix(raw, "Z") {
		return strings.TrimSuffix(raw, "Z") + ":00Z"
	}
	return raw
}

type scoreboardEnvelope struct {
	Events []struct {
		ShortName string `json:"shortName"`
		Date      string `json:"date"`
		Status    struct {
			Type struct {
				State string `json:"state"`
			} `json:"type"`
		} `json:"status"`
		Competitions []struct {
			Competitors []struct {
				Team struct {
					Abbreviation string `json:"abbreviation"`
				} `json:"team"`
			} `json:"competitors"`
		} `json:"competitions"`
	} `json:"events"`
}
