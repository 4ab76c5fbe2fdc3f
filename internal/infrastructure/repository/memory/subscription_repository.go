package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/fieldpulse/liveactivity/internal/domain/subscription"
)

// SubscriptionRepository is the in-process registry of registered devices.
// Session state is intentionally not persisted across restarts.
type SubscriptionRepository struct {
	mu    sync.RWMutex
	items map[string]subscription.Device
}

func NewSubscriptionRepository() *SubscriptionRepository {
	return &SubscriptionRepository{items: make(map[string]subscription.Device)}
}

func (r *SubscriptionRepository) Upsert(_ context.Context, device subscription.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[device.DeviceID] = device
	return nil
}

func (r *SubscriptionRepository) Get(_ context.Context, deviceID string) (subscription.Device, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, ok := r.items[deviceID]
	if !ok {
		return subscription.Device{}, false, nil
	}

	return device, true, nil
}

func (r *SubscriptionRepository) List(_ context.Context) ([]subscription.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]subscription.Device, 0, len(r.items))
	for _, device := range r.items {
		out = append(out, device)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DeviceID < out[j].DeviceID
	})

	return out, nil
}

func (r *SubscriptionRepository) Delete(_ context.Context, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.items, deviceID)
	return nil
}
