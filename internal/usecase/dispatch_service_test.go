package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fieldpulse/liveactivity/internal/platform/logging"
	"github.com/stretchr/testify/require"
)

type fakePushChannel struct {
	mu        sync.Mutex
	sends     []DispatchJob
	reinits   int
	responses []func() (PushResult, error)
}

func (f *fakePushChannel) Send(_ context.Context, token string, payload []byte, kind PushKind) (PushResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sends = append(f.sends, DispatchJob{Token: token, Payload: payload, Kind: kind})
	if len(f.responses) == 0 {
		return PushResult{Successful: true}, nil
	}
	next := f.responses[0]
	f.responses = f.responses[1:]
	return next()
}

func (f *fakePushChannel) Reinitialize() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reinits++
	return nil
}

func (f *fakePushChannel) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func (f *fakePushChannel) reinitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reinits
}

func testDispatchConfig() DispatchConfig {
	return DispatchConfig{
		QueueSize:   8,
		SendTimeout: time.Second,
		MaxAttempts: 3,
		RetryBase:   time.Millisecond,
	}
}

func TestDispatchService_DeliversQueuedJob(t *testing.T) {
	t.Parallel()

	channel := &fakePushChannel{}
	svc := NewDispatchService(channel, testDispatchConfig(), logging.NewNop())
	svc.Start()

	require.NoError(t, svc.Enqueue(DispatchJob{DeviceID: "d1", Token: "tok", Kind: PushUpdate, Payload: []byte("{}")}))
	svc.Stop()

	require.Equal(t, 1, channel.sendCount())
	require.Equal(t, 0, channel.reinitCount())
}

func TestDispatchService_RetriesTransientUpdateFailures(t *testing.T) {
	t.Parallel()

	errNetwork := errors.New("connection reset")
	channel := &fakePushChannel{
		responses: []func() (PushResult, error){
			func() (PushResult, error) { return PushResult{}, errNetwork },
			func() (PushResult, error) { return PushResult{}, errNetwork },
			func() (PushResult, error) { return PushResult{Successful: true}, nil },
		},
	}
	svc := NewDispatchService(channel, testDispatchConfig(), logging.NewNop())
	svc.Start()

	require.NoError(t, svc.Enqueue(DispatchJob{DeviceID: "d1", Token: "tok", Kind: PushUpdate}))
	svc.Stop()

	require.Equal(t, 3, channel.sendCount())
	// the channel is rebuilt once before the final attempt
	require.Equal(t, 1, channel.reinitCount())
}

func TestDispatchService_DoesNotRetryProviderRejections(t *testing.T) {
	t.Parallel()

	channel := &fakePushChannel{
		responses: []func() (PushResult, error){
			func() (PushResult, error) { return PushResult{Successful: false, Description: "BadDeviceToken"}, nil },
		},
	}
	svc := NewDispatchService(channel, testDispatchConfig(), logging.NewNop())
	svc.Start()

	require.NoError(t, svc.Enqueue(DispatchJob{DeviceID: "d1", Token: "tok", Kind: PushUpdate}))
	svc.Stop()

	require.Equal(t, 1, channel.sendCount())
	require.Equal(t, 0, channel.reinitCount())
}

func TestDispatchService_StartAndEndAreSingleShot(t *testing.T) {
	t.Parallel()

	errNetwork := errors.New("timeout")
	channel := &fakePushChannel{
		responses: []func() (PushResult, error){
			func() (PushResult, error) { return PushResult{}, errNetwork },
			func() (PushResult, error) { return PushResult{}, errNetwork },
		},
	}
	svc := NewDispatchService(channel, testDispatchConfig(), logging.NewNop())
	svc.Start()

	require.NoError(t, svc.Enqueue(DispatchJob{DeviceID: "d1", Token: "tok", Kind: PushStart}))
	require.NoError(t, svc.Enqueue(DispatchJob{DeviceID: "d1", Token: "tok", Kind: PushEnd}))
	svc.Stop()

	require.Equal(t, 2, channel.sendCount())
	require.Equal(t, 0, channel.reinitCount())
}

func TestDispatchService_RejectsWhenQueueFull(t *testing.T) {
	t.Parallel()

	cfg := testDispatchConfig()
	cfg.QueueSize = 1

	// never started, so the queue fills immediately
	svc := NewDispatchService(&fakePushChannel{}, cfg, logging.NewNop())

	require.NoError(t, svc.Enqueue(DispatchJob{DeviceID: "d1", Kind: PushUpdate}))
	err := svc.Enqueue(DispatchJob{DeviceID: "d2", Kind: PushUpdate})
	require.ErrorIs(t, err, ErrQueueFull)
}

func TestDispatchService_RejectsAfterStop(t *testing.T) {
	t.Parallel()

	svc := NewDispatchService(&fakePushChannel{}, testDispatchConfig(), logging.NewNop())
	svc.Start()
	svc.Stop()

	err := svc.Enqueue(DispatchJob{DeviceID: "d1", Kind: PushUpdate})
	require.ErrorIs(t, err, ErrQueueFull)
}
