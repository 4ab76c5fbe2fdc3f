package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/fieldpulse/liveactivity/internal/platform/logging"
)

type PushKind string

const (
	PushStart  PushKind = "start"
	PushUpdate PushKind = "update"
	PushEnd    PushKind = "end"
)

// PushResult reports what the push provider said about one send.
type PushResult struct {
	Successful  bool
	Description string
}

// PushChannel is the delivery channel for live-activity pushes.
// Reinitialize tears the channel down and rebuilds it after transport-level
// failures.
type PushChannel interface {
	Send(ctx context.Context, token string, payload []byte, kind PushKind) (PushResult, error)
	Reinitialize() error
}

// DispatchJob is one queued push.
type DispatchJob struct {
	DeviceID string
	Token    string
	Kind     PushKind
	Payload  []byte
}

type DispatchConfig struct {
	QueueSize   int
	SendTimeout time.Duration
	MaxAttempts int
	RetryBase   time.Duration
}

func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		QueueSize:   256,
		SendTimeout: 30 * time.Second,
		MaxAttempts: 3,
		RetryBase:   time.Second,
	}
}

// DispatchService serializes all outbound pushes through one worker
// goroutine and a bounded queue. Update pushes are retried with exponential
// backoff and one channel reinitialization before the final attempt; start
// and end pushes are best-effort single shots. Delivery failures are logged
// and never roll back session state.
type DispatchService struct {
	channel PushChannel
	logger  *logging.Logger
	cfg     DispatchConfig

	jobs     chan DispatchJob
	stopOnce sync.Once
	done     chan struct{}

	mu      sync.Mutex
	stopped bool
}

func NewDispatchService(channel PushChannel, cfg DispatchConfig, logger *logging.Logger) *DispatchService {
	if logger == nil {
		logger = logging.Default()
	}
	defaults := DefaultDispatchConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaults.SendTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaults.RetryBase
	}

	return &DispatchService{
		channel: channel,
		logger:  logger,
		cfg:     cfg,
		jobs:    make(chan DispatchJob, cfg.QueueSize),
		done:    make(chan struct{}),
	}
}

// Start launches the single dispatch worker.
func (s *DispatchService) Start() {
	go s.worker()
}

// Stop drains the queue and waits for the worker to finish.
func (s *DispatchService) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		close(s.jobs)
	})
	<-s.done
}

// Enqueue adds a job without blocking. A full queue rejects the job; the
// next poll cycle will carry fresher state anyway.
func (s *DispatchService) Enqueue(job DispatchJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("%w: dispatcher stopped", ErrQueueFull)
	}

	select {
	case s.jobs <- job:
		return nil
	default:
		s.logger.Warn("dispatch queue full, dropping push", "device_id", job.DeviceID, "kind", string(job.Kind))
		return ErrQueueFull
	}
}

func (s *DispatchService) worker() {
	defer close(s.done)

	for job := range s.jobs {
		s.process(job)
	}
}

func (s *DispatchService) process(job DispatchJob) {
	var err error
	if job.Kind == PushUpdate {
		err = s.sendWithRetry(job)
	} else {
		err = s.sendOnce(job)
	}
	if err != nil {
		s.logger.Error("push delivery failed",
			"device_id", job.DeviceID,
			"kind", string(job.Kind),
			"error", err,
		)
	}
}

func (s *DispatchService) sendOnce(job DispatchJob) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SendTimeout)
	defer cancel()

	result, err := s.channel.Send(ctx, job.Token, job.Payload, job.Kind)
	if err != nil {
		return err
	}
	if !result.Successful {
		return fmt.Errorf("%w: %s", ErrDeliveryFailed, result.Description)
	}
	return nil
}

func (s *DispatchService) sendWithRetry(job DispatchJob) error {
	attempt := 0
	operation := func() error {
		attempt++

		err := s.sendOnce(job)
		if err == nil {
			return nil
		}

		// a provider rejection will not heal on retry
		if errors.Is(err, ErrDeliveryFailed) {
			return backoff.Permanent(err)
		}

		// rebuild the channel once before the last attempt
		if attempt == s.cfg.MaxAttempts-1 {
			if reinitErr := s.channel.Reinitialize(); reinitErr != nil {
				s.logger.Warn("channel reinitialization failed", "error", reinitErr)
			}
		}

		s.logger.Warn("push attempt failed, retrying",
			"device_id", job.DeviceID,
			"attempt", attempt,
			"error", err,
		)
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.cfg.RetryBase
	policy.Multiplier = 2
	policy.RandomizationFactor = 0

	return backoff.Retry(operation, backoff.WithMaxRetries(policy, uint64(s.cfg.MaxAttempts-1)))
}
