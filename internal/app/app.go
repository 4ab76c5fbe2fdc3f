package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fieldpulse/liveactivity/external/apns"
	"github.com/fieldpulse/liveactivity/external/espnapi"
	"github.com/fieldpulse/liveactivity/external/sleeper"
	"github.com/fieldpulse/liveactivity/internal/config"
	"github.com/fieldpulse/liveactivity/internal/infrastructure/repository/memory"
	"github.com/fieldpulse/liveactivity/internal/interfaces/httpapi"
	"github.com/fieldpulse/liveactivity/internal/observability"
	"github.com/fieldpulse/liveactivity/internal/platform/logging"
	"github.com/fieldpulse/liveactivity/internal/platform/resilience"
	"github.com/fieldpulse/liveactivity/internal/usecase"
)

// App wires the service together and owns its lifecycle.
type App struct {
	cfg    config.Config
	logger *logging.Logger

	server    *http.Server
	pprofSrv  *http.Server
	dispatch  *usecase.DispatchService
	scheduler *usecase.SchedulerService

	shutdownTracing func(context.Context) error
	stopProfiler    func() error
}

func New(cfg config.Config, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Default()
	}

	shutdownTracing, err := observability.InitUptrace(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init uptrace: %w", err)
	}
	stopProfiler, err := observability.InitPyroscope(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init pyroscope: %w", err)
	}
	pprofSrv, err := observability.StartPprofServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("start pprof: %w", err)
	}

	apnsClient, err := apns.NewClient(apns.Config{
		KeyPath:    cfg.APNSKeyPath,
		KeyID:      cfg.APNSKeyID,
		TeamID:     cfg.APNSTeamID,
		Topic:      cfg.APNSTopic,
		UseSandbox: cfg.APNSUseSandbox,
		Timeout:    cfg.APNSTimeout,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build apns client: %w", err)
	}

	sleeperClient := sleeper.NewClient(sleeper.ClientConfig{
		BaseURL: cfg.SleeperBaseURL,
		Timeout: cfg.SleeperTimeout,
		Logger:  logger,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.SleeperCircuitEnabled,
			FailureThreshold: cfg.SleeperCircuitFailureCount,
			OpenTimeout:      cfg.SleeperCircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.SleeperCircuitHalfOpenMaxReq,
		},
	})

	espnClient := espnapi.NewClient(espnapi.ClientConfig{
		BaseURL: cfg.ESPNBaseURL,
		Timeout: cfg.ESPNTimeout,
		Logger:  logger,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.ESPNCircuitEnabled,
			FailureThreshold: cfg.ESPNCircuitFailureCount,
			OpenTimeout:      cfg.ESPNCircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.ESPNCircuitHalfOpenMaxReq,
		},
	})

	deviceRepo := memory.NewSubscriptionRepository()
	historyRepo := memory.NewHistoryRepository()

	remote := usecase.NewRemoteDataService(sleeperClient, espnClient, usecase.RemoteDataConfig{
		RostersTTL:     cfg.RostersTTL,
		UsersTTL:       cfg.UsersTTL,
		LeagueTTL:      cfg.LeagueTTL,
		MatchupsTTL:    cfg.MatchupsTTL,
		SeasonStateTTL: cfg.SeasonStateTTL,
		CatalogTTL:     cfg.CatalogTTL,
		GamesTTL:       cfg.GamesTTL,
	}, logger)

	aggregator := usecase.NewAggregationService(remote, deviceRepo, historyRepo, logger)
	detector := usecase.NewChangeDetector(historyRepo, logger)

	dispatch := usecase.NewDispatchService(pushChannel{client: apnsClient}, usecase.DispatchConfig{
		QueueSize:   cfg.DispatchQueueSize,
		SendTimeout: cfg.DispatchSendTimeout,
		MaxAttempts: cfg.DispatchMaxAttempts,
		RetryBase:   cfg.DispatchRetryBase,
	}, logger)

	lifecycle := usecase.NewLifecycleService(usecase.LifecycleConfig{
		StartLeadWindow:   cfg.StartLeadWindow,
		MaxSessionSunday:  cfg.MaxSessionSunday,
		MaxSessionGameDay: cfg.MaxSessionGameDay,
		MaxSessionDefault: cfg.MaxSessionDefault,
	}, deviceRepo, historyRepo, aggregator, remote, dispatch, logger)

	scheduler, err := usecase.NewSchedulerService(usecase.SchedulerConfig{
		PollInterval:        cfg.PollInterval,
		StartCheckInterval:  cfg.StartCheckInterval,
		EndingCheckInterval: cfg.EndingCheckInterval,
		RefreshInterval:     cfg.RefreshInterval,
		AggregationWorkers:  cfg.AggregationWorkers,
	}, deviceRepo, aggregator, detector, lifecycle, remote, logger)
	if err != nil {
		return nil, fmt.Errorf("build scheduler: %w", err)
	}

	handler := httpapi.NewHandler(lifecycle, aggregator, remote, logger)
	router := httpapi.NewRouter(handler, logger, cfg.CORSAllowedOrigins)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if server.Addr == "" {
		return nil, fmt.Errorf("http server addr cannot be empty")
	}

	return &App{
		cfg:             cfg,
		logger:          logger,
		server:          server,
		pprofSrv:        pprofSrv,
		dispatch:        dispatch,
		scheduler:       scheduler,
		shutdownTracing: shutdownTracing,
		stopProfiler:    stopProfiler,
	}, nil
}

// Run starts the dispatcher, the scheduler loops and the HTTP server, then
// blocks until ctx is cancelled and shuts everything down in reverse order.
func (a *App) Run(ctx context.Context) error {
	a.dispatch.Start()
	a.scheduler.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server starting", "addr", a.cfg.HTTPAddr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a.scheduler.Stop()
	a.dispatch.Stop()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := observability.StopPprofServer(a.pprofSrv, a.logger, 5*time.Second); err != nil {
		a.logger.Warn("pprof shutdown failed", "error", err)
	}
	if err := a.stopProfiler(); err != nil {
		a.logger.Warn("profiler shutdown failed", "error", err)
	}
	if err := a.shutdownTracing(shutdownCtx); err != nil {
		a.logger.Warn("tracing shutdown failed", "error", err)
	}

	a.logger.Info("service stopped")
	return nil
}

// pushChannel adapts the APNs client to the dispatcher's channel contract.
type pushChannel struct {
	client *apns.Client
}

func (p pushChannel) Send(ctx context.Context, token string, payload []byte, kind usecase.PushKind) (usecase.PushResult, error) {
	result, err := p.client.Send(ctx, token, payload, apns.Kind(kind))
	if err != nil {
		return usecase.PushResult{}, err
	}
	return usecase.PushResult{Successful: result.Successful, Description: result.Description}, nil
}

func (p pushChannel) Reinitialize() error {
	return p.client.Reinitialize()
}
