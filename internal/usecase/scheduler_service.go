package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fieldpulse/liveactivity/internal/domain/league"
	"github.com/fieldpulse/liveactivity/internal/domain/schedule"
	"github.com/fieldpulse/liveactivity/internal/domain/subscription"
	"github.com/fieldpulse/liveactivity/internal/platform/logging"
	"github.com/panjf2000/ants/v2"
	"github.com/sourcegraph/conc"
)

type SchedulerConfig struct {
	PollInterval        time.Duration
	StartCheckInterval  time.Duration
	EndingCheckInterval time.Duration
	RefreshInterval     time.Duration
	AggregationWorkers  int
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		PollInterval:        30 * time.Second,
		StartCheckInterval:  5 * time.Minute,
		EndingCheckInterval: time.Minute,
		RefreshInterval:     24 * time.Hour,
		AggregationWorkers:  8,
	}
}

// CatalogSource is the scheduler's slice of remote data: the reference
// catalog for highlight names plus the forced daily refreshes.
type CatalogSource interface {
	PlayerCatalog(ctx context.Context) (map[string]league.PlayerInfo, error)
	RefreshGames(ctx context.Context) ([]schedule.Game, error)
	RefreshCatalog(ctx context.Context) error
}

// SchedulerService drives the periodic work: the 30-second score poll, the
// session start checker, the daily data refresh, and an ending checker that
// only runs while a monitored game is live.
type SchedulerService struct {
	cfg        SchedulerConfig
	devices    subscription.Repository
	aggregator *AggregationService
	detector   *ChangeDetector
	lifecycle  *LifecycleService
	remote     CatalogSource
	logger     *logging.Logger

	pool         *ants.Pool
	loops        conc.WaitGroup
	cancel       context.CancelFunc
	endingActive atomic.Bool
	started      atomic.Bool
}

func NewSchedulerService(
	cfg SchedulerConfig,
	devices subscription.Repository,
	aggregator *AggregationService,
	detector *ChangeDetector,
	lifecycle *LifecycleService,
	remote CatalogSource,
	logger *logging.Logger,
) (*SchedulerService, error) {
	if logger == nil {
		logger = logging.Default()
	}
	defaults := DefaultSchedulerConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.StartCheckInterval <= 0 {
		cfg.StartCheckInterval = defaults.StartCheckInterval
	}
	if cfg.EndingCheckInterval <= 0 {
		cfg.EndingCheckInterval = defaults.EndingCheckInterval
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = defaults.RefreshInterval
	}
	if cfg.AggregationWorkers <= 0 {
		cfg.AggregationWorkers = defaults.AggregationWorkers
	}

	pool, err := ants.NewPool(cfg.AggregationWorkers, ants.WithNonblocking(false))
	if err != nil {
		return nil, err
	}

	return &SchedulerService{
		cfg:        cfg,
		devices:    devices,
		aggregator: aggregator,
		detector:   detector,
		lifecycle:  lifecycle,
		remote:     remote,
		logger:     logger,
		pool:       pool,
	}, nil
}

// Start launches the scheduler loops. The first refresh runs immediately so
// the scoreboard and catalog are warm before the first poll.
func (s *SchedulerService) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.refresh(ctx)

	s.loops.Go(func() { s.pollLoop(ctx) })
	s.loops.Go(func() { s.startCheckLoop(ctx) })
	s.loops.Go(func() { s.refreshLoop(ctx) })
}

func (s *SchedulerService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.loops.Wait()
	s.pool.Release()
}

func (s *SchedulerService) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runPollCycle(ctx)
		}
	}
}

func (s *SchedulerService) startCheckLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.StartCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.lifecycle.CheckAndStartSessions(ctx); err != nil {
				s.logger.WarnContext(ctx, "session start check failed", "error", err)
			}
			if err := s.lifecycle.EndExpiredSessions(ctx); err != nil {
				s.logger.WarnContext(ctx, "expired session sweep failed", "error", err)
			}
			s.ensureEndingChecker(ctx)
		}
	}
}

func (s *SchedulerService) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

func (s *SchedulerService) refresh(ctx context.Context) {
	if _, err := s.remote.RefreshGames(ctx); err != nil {
		s.logger.WarnContext(ctx, "scoreboard refresh failed", "error", err)
	}
	if err := s.remote.RefreshCatalog(ctx); err != nil {
		s.logger.WarnContext(ctx, "catalog refresh failed", "error", err)
	}
}

// runPollCycle rebuilds the statistics snapshot once, then fans device
// evaluation out over the worker pool. A failure on one device never blocks
// the rest.
func (s *SchedulerService) runPollCycle(ctx context.Context) {
	devices, err := s.devices.List(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "poll cycle could not list devices", "error", err)
		return
	}

	active := devices[:0]
	for _, device := range devices {
		if device.SessionActive() {
			active = append(active, device)
		}
	}
	if len(active) == 0 {
		return
	}

	if err := s.aggregator.RebuildSnapshot(ctx); err != nil {
		s.logger.WarnContext(ctx, "snapshot rebuild failed, skipping cycle", "error", err)
		return
	}

	catalog, err := s.remote.PlayerCatalog(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "catalog unavailable for poll cycle", "error", err)
		catalog = nil
	}

	var wg sync.WaitGroup
	for _, device := range active {
		device := device
		wg.Add(1)
		if err := s.pool.Submit(func() {
			defer wg.Done()
			s.pollDevice(ctx, device, catalog)
		}); err != nil {
			wg.Done()
			s.logger.WarnContext(ctx, "poll task rejected", "device_id", device.DeviceID, "error", err)
		}
	}
	wg.Wait()

	s.ensureEndingChecker(ctx)
}

func (s *SchedulerService) pollDevice(ctx context.Context, device subscription.Device, catalog map[string]league.PlayerInfo) {
	starters, err := s.aggregator.StartersFor(ctx, device)
	if err != nil {
		s.logger.WarnContext(ctx, "poll skipped device", "device_id", device.DeviceID, "error", err)
		return
	}

	opponentIDs := make(map[string]struct{}, len(starters.Opponent))
	for _, id := range starters.Opponent {
		opponentIDs[id] = struct{}{}
	}

	decision, err := s.detector.Evaluate(ctx, ChangeInput{
		DeviceID:    device.DeviceID,
		Current:     s.aggregator.AggregateOf(starters.Own),
		Scores:      s.aggregator.PlayerScores(starters.Combined()),
		OpponentIDs: opponentIDs,
		Catalog:     catalog,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "change evaluation failed", "device_id", device.DeviceID, "error", err)
		return
	}
	if !decision.ShouldPush {
		return
	}

	if err := s.lifecycle.PushScoreUpdate(ctx, device, decision.Message, decision.IsAlert); err != nil {
		s.logger.WarnContext(ctx, "score update not sent", "device_id", device.DeviceID, "error", err)
	}
}

// ensureEndingChecker runs the end-condition loop only while a monitored
// game is live; the loop retires itself once nothing is live anymore.
func (s *SchedulerService) ensureEndingChecker(ctx context.Context) {
	if !s.lifecycle.AnyMonitoredGameLive(ctx) {
		return
	}
	if !s.endingActive.CompareAndSwap(false, true) {
		return
	}

	s.logger.InfoContext(ctx, "ending checker started")
	s.loops.Go(func() {
		defer s.endingActive.Store(false)

		ticker := time.NewTicker(s.cfg.EndingCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.lifecycle.CheckAndEndSessions(ctx); err != nil {
					s.logger.WarnContext(ctx, "session end check failed", "error", err)
				}
				if !s.lifecycle.AnyMonitoredGameLive(ctx) {
					s.logger.InfoContext(ctx, "ending checker stopped, no live games")
					return
				}
			}
		}
	})
}
