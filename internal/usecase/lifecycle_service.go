package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fieldpulse/liveactivity/internal/domain/schedule"
	"github.com/fieldpulse/liveactivity/internal/domain/stats"
	"github.com/fieldpulse/liveactivity/internal/domain/subscription"
	"github.com/fieldpulse/liveactivity/internal/platform/logging"
)

type LifecycleConfig struct {
	// StartLeadWindow is how far before kickoff a session may start.
	StartLeadWindow time.Duration

	// Session ceilings by day: Sunday hosts games from early afternoon
	// through the night game, so it gets the widest window.
	MaxSessionSunday  time.Duration
	MaxSessionGameDay time.Duration
	MaxSessionDefault time.Duration
}

func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		StartLeadWindow:   5 * time.Minute,
		MaxSessionSunday:  16 * time.Hour,
		MaxSessionGameDay: 8 * time.Hour,
		MaxSessionDefault: 6 * time.Hour,
	}
}

type RegisterInput struct {
	DeviceID          string
	UserID            string
	LeagueID          string
	NotificationToken string
	SessionStartToken string
}

// SessionStatus is the device view exposed over the API.
type SessionStatus struct {
	DeviceID         string
	State            subscription.SessionState
	SessionStartedAt time.Time
	LastUpdatedAt    time.Time
	Aggregate        stats.Aggregate
}

// LifecycleService owns session state transitions: registration, automatic
// start when a monitored game approaches, automatic end when every monitored
// game finishes or the session outlives its ceiling, and heartbeat
// reconciliation against what the client reports.
type LifecycleService struct {
	cfg        LifecycleConfig
	devices    subscription.Repository
	history    stats.HistoryRepository
	aggregator *AggregationService
	games      GameSource
	dispatch   *DispatchService
	logger     *logging.Logger
	now        func() time.Time
}

// GameSource provides the scoreboard and the player-to-team mapping.
type GameSource interface {
	Games(ctx context.Context) ([]schedule.Game, error)
	TeamOf(ctx context.Context, playerID string) (string, error)
}

func NewLifecycleService(
	cfg LifecycleConfig,
	devices subscription.Repository,
	history stats.HistoryRepository,
	aggregator *AggregationService,
	games GameSource,
	dispatch *DispatchService,
	logger *logging.Logger,
) *LifecycleService {
	if logger == nil {
		logger = logging.Default()
	}
	defaults := DefaultLifecycleConfig()
	if cfg.StartLeadWindow <= 0 {
		cfg.StartLeadWindow = defaults.StartLeadWindow
	}
	if cfg.MaxSessionSunday <= 0 {
		cfg.MaxSessionSunday = defaults.MaxSessionSunday
	}
	if cfg.MaxSessionGameDay <= 0 {
		cfg.MaxSessionGameDay = defaults.MaxSessionGameDay
	}
	if cfg.MaxSessionDefault <= 0 {
		cfg.MaxSessionDefault = defaults.MaxSessionDefault
	}

	return &LifecycleService{
		cfg:        cfg,
		devices:    devices,
		history:    history,
		aggregator: aggregator,
		games:      games,
		dispatch:   dispatch,
		logger:     logger,
		now:        time.Now,
	}
}

// RegisterDevice records or refreshes a device registration. Session state
// survives re-registration so a client restart does not kill a running
// session.
func (s *LifecycleService) RegisterDevice(ctx context.Context, in RegisterInput) error {
	ctx, span := startUsecaseSpan(ctx, "lifecycle.register_device")
	defer span.End()

	if strings.TrimSpace(in.DeviceID) == "" || strings.TrimSpace(in.UserID) == "" || strings.TrimSpace(in.LeagueID) == "" {
		return fmt.Errorf("%w: device_id, user_id and league_id are required", ErrInvalidInput)
	}

	existing, found, err := s.devices.Get(ctx, in.DeviceID)
	if err != nil {
		return err
	}

	device := subscription.Device{
		DeviceID:          in.DeviceID,
		UserID:            in.UserID,
		LeagueID:          in.LeagueID,
		NotificationToken: in.NotificationToken,
		SessionStartToken: in.SessionStartToken,
		State:             subscription.StateInactive,
		LastUpdatedAt:     s.now(),
	}
	if found {
		device.State = existing.State
		device.SessionStartedAt = existing.SessionStartedAt
		device.SessionUpdateToken = existing.SessionUpdateToken
		if in.NotificationToken == "" {
			device.NotificationToken = existing.NotificationToken
		}
		if in.SessionStartToken == "" {
			device.SessionStartToken = existing.SessionStartToken
		}
		// league or user change invalidates the cached matchup
		if existing.UserID != in.UserID || existing.LeagueID != in.LeagueID {
			if err := s.history.Clear(ctx, in.DeviceID); err != nil {
				return err
			}
		}
	}

	if err := s.devices.Upsert(ctx, device); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "device registered", "device_id", in.DeviceID, "league_id", in.LeagueID)
	return nil
}

// RegisterSessionToken stores the update token the client minted after
// starting the activity locally, and adopts the session as active without
// sending a start push.
func (s *LifecycleService) RegisterSessionToken(ctx context.Context, deviceID, updateToken string) error {
	ctx, span := startUsecaseSpan(ctx, "lifecycle.register_session_token")
	defer span.End()

	if strings.TrimSpace(deviceID) == "" || strings.TrimSpace(updateToken) == "" {
		return fmt.Errorf("%w: device_id and token are required", ErrInvalidInput)
	}

	device, found, err := s.devices.Get(ctx, deviceID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: device %s", ErrNotFound, deviceID)
	}

	device.SessionUpdateToken = updateToken
	device.LastUpdatedAt = s.now()
	if !device.SessionActive() {
		device.State = subscription.StateActive
		device.SessionStartedAt = s.now()
		s.logger.InfoContext(ctx, "adopted client-started session", "device_id", deviceID)
	}

	return s.devices.Upsert(ctx, device)
}

// OnHeartbeat reconciles the server's session state with what the client
// reports. It is idempotent: agreeing states only bump the timestamp.
func (s *LifecycleService) OnHeartbeat(ctx context.Context, deviceID string, clientActive bool) error {
	ctx, span := startUsecaseSpan(ctx, "lifecycle.heartbeat")
	defer span.End()

	device, found, err := s.devices.Get(ctx, deviceID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: device %s", ErrNotFound, deviceID)
	}

	switch {
	case clientActive && !device.SessionActive():
		device.State = subscription.StateActive
		device.SessionStartedAt = s.now()
		s.logger.InfoContext(ctx, "heartbeat adopted session", "device_id", deviceID)
	case !clientActive && device.SessionActive():
		s.logger.InfoContext(ctx, "heartbeat ended stale session", "device_id", deviceID)
		return s.endSession(ctx, device, false)
	}

	device.LastUpdatedAt = s.now()
	return s.devices.Upsert(ctx, device)
}

// CheckAndStartSessions starts a session for every registered device with a
// monitored game live or starting within the lead window. Devices already
// active get an update naming the soon-starting games instead of a second
// start; a game that is merely live does not re-trigger that update.
func (s *LifecycleService) CheckAndStartSessions(ctx context.Context) error {
	ctx, span := startUsecaseSpan(ctx, "lifecycle.check_and_start")
	defer span.End()

	devices, err := s.devices.List(ctx)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		return nil
	}

	games, err := s.games.Games(ctx)
	if err != nil {
		return err
	}
	now := s.now()

	for _, device := range devices {
		relevant, err := s.relevantGames(ctx, device, games)
		if err != nil {
			s.logger.WarnContext(ctx, "session start check skipped device", "device_id", device.DeviceID, "error", err)
			continue
		}

		var starting []schedule.Game
		var live *schedule.Game
		for i := range relevant {
			switch {
			case relevant[i].StartsWithin(now, s.cfg.StartLeadWindow):
				starting = append(starting, relevant[i])
			case live == nil && schedule.IsLiveStatus(relevant[i].Status):
				live = &relevant[i]
			}
		}

		if device.SessionActive() {
			// only a game entering the lead window warrants a nudge; a
			// game already live would repeat the same update every check
			if len(starting) > 0 {
				s.pushGameStartingUpdate(ctx, device, starting)
			}
			continue
		}

		trigger := live
		if len(starting) > 0 {
			trigger = &starting[0]
		}
		if trigger == nil {
			continue
		}
		if err := s.startSession(ctx, device, *trigger); err != nil {
			s.logger.WarnContext(ctx, "session start failed", "device_id", device.DeviceID, "error", err)
		}
	}
	return nil
}

// CheckAndEndSessions ends every active session whose monitored games all
// finished. A device with no monitored games keeps its session; only a
// populated, fully finished set ends it.
func (s *LifecycleService) CheckAndEndSessions(ctx context.Context) error {
	ctx, span := startUsecaseSpan(ctx, "lifecycle.check_and_end")
	defer span.End()

	devices, err := s.devices.List(ctx)
	if err != nil {
		return err
	}

	var games []schedule.Game
	gamesLoaded := false

	for _, device := range devices {
		if !device.SessionActive() {
			continue
		}
		if !gamesLoaded {
			games, err = s.games.Games(ctx)
			if err != nil {
				return err
			}
			gamesLoaded = true
		}

		relevant, err := s.relevantGames(ctx, device, games)
		if err != nil {
			s.logger.WarnContext(ctx, "session end check skipped device", "device_id", device.DeviceID, "error", err)
			continue
		}
		if len(relevant) == 0 {
			continue
		}

		allFinished := true
		for _, game := range relevant {
			if !schedule.IsFinishedStatus(game.Status) {
				allFinished = false
				break
			}
		}
		if !allFinished {
			continue
		}

		s.logger.InfoContext(ctx, "all monitored games finished, ending session", "device_id", device.DeviceID)
		if err := s.endSession(ctx, device, true); err != nil {
			s.logger.WarnContext(ctx, "session end failed", "device_id", device.DeviceID, "error", err)
		}
	}
	return nil
}

// EndExpiredSessions force-ends sessions that outlived the day's ceiling,
// catching sessions orphaned by missed end conditions.
func (s *LifecycleService) EndExpiredSessions(ctx context.Context) error {
	ctx, span := startUsecaseSpan(ctx, "lifecycle.end_expired")
	defer span.End()

	devices, err := s.devices.List(ctx)
	if err != nil {
		return err
	}
	now := s.now()
	ceiling := s.sessionCeiling(now)

	for _, device := range devices {
		if !device.SessionActive() || device.SessionStartedAt.IsZero() {
			continue
		}
		if now.Sub(device.SessionStartedAt) <= ceiling {
			continue
		}

		s.logger.InfoContext(ctx, "session exceeded ceiling, force ending",
			"device_id", device.DeviceID,
			"started_at", device.SessionStartedAt,
			"ceiling", ceiling.String(),
		)
		if err := s.endSession(ctx, device, true); err != nil {
			s.logger.WarnContext(ctx, "forced session end failed", "device_id", device.DeviceID, "error", err)
		}
	}
	return nil
}

// ForceStartSession starts a session on demand, bypassing schedule checks.
func (s *LifecycleService) ForceStartSession(ctx context.Context, deviceID string) error {
	device, found, err := s.devices.Get(ctx, deviceID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: device %s", ErrNotFound, deviceID)
	}
	if device.SessionActive() {
		return nil
	}
	return s.startSession(ctx, device, schedule.Game{Status: schedule.StatusLive})
}

// ForceEndSession ends a session on demand.
func (s *LifecycleService) ForceEndSession(ctx context.Context, deviceID string) error {
	device, found, err := s.devices.Get(ctx, deviceID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: device %s", ErrNotFound, deviceID)
	}
	if !device.SessionActive() {
		return nil
	}
	return s.endSession(ctx, device, true)
}

// Unregister removes the device and all of its comparison state.
func (s *LifecycleService) Unregister(ctx context.Context, deviceID string) error {
	if err := s.history.Clear(ctx, deviceID); err != nil {
		return err
	}
	return s.devices.Delete(ctx, deviceID)
}

// ListDevices returns every registration, ordered by device id.
func (s *LifecycleService) ListDevices(ctx context.Context) ([]subscription.Device, error) {
	return s.devices.List(ctx)
}

// Status returns the device's session view including its current aggregate.
func (s *LifecycleService) Status(ctx context.Context, deviceID string) (SessionStatus, error) {
	device, found, err := s.devices.Get(ctx, deviceID)
	if err != nil {
		return SessionStatus{}, err
	}
	if !found {
		return SessionStatus{}, fmt.Errorf("%w: device %s", ErrNotFound, deviceID)
	}

	status := SessionStatus{
		DeviceID:         device.DeviceID,
		State:            device.State,
		SessionStartedAt: device.SessionStartedAt,
		LastUpdatedAt:    device.LastUpdatedAt,
	}
	if agg, err := s.aggregator.Aggregate(ctx, deviceID); err == nil {
		status.Aggregate = agg
	}
	return status, nil
}

// AnyMonitoredGameLive reports whether any active device monitors a game
// currently live. The ending checker only runs while this holds.
func (s *LifecycleService) AnyMonitoredGameLive(ctx context.Context) bool {
	devices, err := s.devices.List(ctx)
	if err != nil {
		return false
	}

	var games []schedule.Game
	gamesLoaded := false
	for _, device := range devices {
		if !device.SessionActive() {
			continue
		}
		if !gamesLoaded {
			games, err = s.games.Games(ctx)
			if err != nil {
				return false
			}
			gamesLoaded = true
		}

		relevant, err := s.relevantGames(ctx, device, games)
		if err != nil {
			continue
		}
		for _, game := range relevant {
			if schedule.IsLiveStatus(game.Status) {
				return true
			}
		}
	}
	return false
}

func (s *LifecycleService) startSession(ctx context.Context, device subscription.Device, trigger schedule.Game) error {
	matchup, err := s.aggregator.ResolveMatchup(ctx, device)
	if err != nil {
		return err
	}
	if err := s.history.SaveStarters(ctx, device.DeviceID, matchup.Starters); err != nil {
		return err
	}

	device.State = subscription.StateActive
	device.SessionStartedAt = s.now()
	device.LastUpdatedAt = device.SessionStartedAt
	if err := s.devices.Upsert(ctx, device); err != nil {
		return err
	}

	content := s.buildContent(matchup, schedule.StatusLive)
	payload, err := BuildStartPayload(content, s.now())
	if err != nil {
		return err
	}

	token := device.SessionStartToken
	if token == "" {
		token = device.NotificationToken
	}
	if token == "" {
		s.logger.WarnContext(ctx, "session started without a push token", "device_id", device.DeviceID)
		return nil
	}

	if err := s.dispatch.Enqueue(DispatchJob{
		DeviceID: device.DeviceID,
		Token:    token,
		Kind:     PushStart,
		Payload:  payload,
	}); err != nil {
		s.logger.WarnContext(ctx, "start push not queued", "device_id", device.DeviceID, "error", err)
	}

	s.logger.InfoContext(ctx, "session started",
		"device_id", device.DeviceID,
		"game", trigger.Name,
	)
	return nil
}

// endSession transitions the device to inactive and clears its comparison
// state. The registration itself survives so the next game day can start a
// fresh session. The end push is best-effort.
func (s *LifecycleService) endSession(ctx context.Context, device subscription.Device, sendPush bool) error {
	if sendPush {
		s.pushEnd(ctx, device)
	}

	device.State = subscription.StateInactive
	device.SessionStartedAt = time.Time{}
	device.SessionUpdateToken = ""
	device.LastUpdatedAt = s.now()
	if err := s.devices.Upsert(ctx, device); err != nil {
		return err
	}

	if err := s.history.Clear(ctx, device.DeviceID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "session ended", "device_id", device.DeviceID)
	return nil
}

func (s *LifecycleService) pushEnd(ctx context.Context, device subscription.Device) {
	starters, err := s.aggregator.StartersFor(ctx, device)
	if err != nil {
		s.logger.WarnContext(ctx, "end push without final totals", "device_id", device.DeviceID, "error", err)
	}

	content := ActivityContent{
		TotalPoints:        s.aggregator.AggregateOf(starters.Own).ScoredTotal,
		OpponentPoints:     s.aggregator.AggregateOf(starters.Opponent).ScoredTotal,
		ActivePlayersCount: len(starters.Own),
		GameStatus:         "Final",
	}
	payload, err := BuildEndPayload(content, s.now())
	if err != nil {
		s.logger.WarnContext(ctx, "end payload build failed", "device_id", device.DeviceID, "error", err)
		return
	}

	token := device.PushToken()
	if token == "" {
		return
	}
	if err := s.dispatch.Enqueue(DispatchJob{
		DeviceID: device.DeviceID,
		Token:    token,
		Kind:     PushEnd,
		Payload:  payload,
	}); err != nil {
		s.logger.WarnContext(ctx, "end push not queued", "device_id", device.DeviceID, "error", err)
	}
}

func (s *LifecycleService) pushGameStartingUpdate(ctx context.Context, device subscription.Device, starting []schedule.Game) {
	matchup, err := s.aggregator.ResolveMatchup(ctx, device)
	if err != nil {
		s.logger.WarnContext(ctx, "game-starting update skipped", "device_id", device.DeviceID, "error", err)
		return
	}

	names := make([]string, len(starting))
	for i, game := range starting {
		names[i] = game.Name
	}
	message := strings.Join(names, ", ") + " starting soon"

	content := s.buildContent(matchup, schedule.StatusLive)
	content.Message = message
	payload, err := BuildUpdatePayload(content, message, s.now())
	if err != nil {
		s.logger.WarnContext(ctx, "game-starting payload build failed", "device_id", device.DeviceID, "error", err)
		return
	}

	token := device.PushToken()
	if token == "" {
		return
	}
	if err := s.dispatch.Enqueue(DispatchJob{
		DeviceID: device.DeviceID,
		Token:    token,
		Kind:     PushUpdate,
		Payload:  payload,
	}); err != nil {
		s.logger.WarnContext(ctx, "game-starting update not queued", "device_id", device.DeviceID, "error", err)
	}
}

// PushScoreUpdate queues a content refresh for an active session. The
// message lands in the content state; alert additionally raises a banner.
func (s *LifecycleService) PushScoreUpdate(ctx context.Context, device subscription.Device, message string, alert bool) error {
	matchup, err := s.aggregator.ResolveMatchup(ctx, device)
	if err != nil {
		return err
	}

	content := s.buildContent(matchup, schedule.StatusLive)
	content.Message = message
	alertMessage := ""
	if alert {
		alertMessage = message
	}

	payload, err := BuildUpdatePayload(content, alertMessage, s.now())
	if err != nil {
		return err
	}

	token := device.PushToken()
	if token == "" {
		return fmt.Errorf("%w: device %s has no push token", ErrInvalidInput, device.DeviceID)
	}

	return s.dispatch.Enqueue(DispatchJob{
		DeviceID: device.DeviceID,
		Token:    token,
		Kind:     PushUpdate,
		Payload:  payload,
	})
}

func (s *LifecycleService) buildContent(matchup MatchupContext, gameStatus string) ActivityContent {
	return ActivityContent{
		TotalPoints:        s.aggregator.AggregateOf(matchup.Starters.Own).ScoredTotal,
		OpponentPoints:     s.aggregator.AggregateOf(matchup.Starters.Opponent).ScoredTotal,
		ActivePlayersCount: len(matchup.Starters.Own),
		TeamName:           matchup.TeamName,
		OpponentTeamName:   matchup.OpponentTeamName,
		LeagueName:         matchup.LeagueName,
		GameStatus:         gameStatus,
	}
}

// relevantGames filters the scoreboard to games featuring any starter's NFL
// team, own lineup and opponent lineup alike.
func (s *LifecycleService) relevantGames(ctx context.Context, device subscription.Device, games []schedule.Game) ([]schedule.Game, error) {
	starters, err := s.aggregator.StartersFor(ctx, device)
	if err != nil {
		return nil, err
	}

	teams := make(map[string]struct{})
	for _, id := range starters.Combined() {
		team, err := s.games.TeamOf(ctx, id)
		if err != nil {
			return nil, err
		}
		if team = strings.ToUpper(strings.TrimSpace(team)); team != "" {
			teams[team] = struct{}{}
		}
	}

	out := make([]schedule.Game, 0, len(games))
	for _, game := range games {
		for team := range teams {
			if game.HasTeam(team) {
				out = append(out, game)
				break
			}
		}
	}
	return out, nil
}

func (s *LifecycleService) sessionCeiling(now time.Time) time.Duration {
	switch now.Weekday() {
	case time.Sunday:
		return s.cfg.MaxSessionSunday
	case time.Monday, time.Thursday:
		return s.cfg.MaxSessionGameDay
	default:
		return s.cfg.MaxSessionDefault
	}
}
