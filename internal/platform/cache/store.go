package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fieldpulse/liveactivity/internal/platform/resilience"
)

type entry struct {
	value     any
	fetchedAt time.Time
}

// Store is a TTL cache that prefers availability over freshness: when a
// refresh fails and a previously loaded value exists, the stale value is
// served instead of an error. Expired entries are kept for that purpose.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	flight  resilience.SingleFlight
	now     func() time.Time
}

func NewStore(ttl time.Duration) *Store {
	return &Store{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached value only while it is fresh.
func (s *Store) Get(_ context.Context, key string) (any, bool) {
	if key == "" {
		return nil, false
	}

	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if s.expired(e) {
		return nil, false
	}

	return e.value, true
}

// GetStale returns the cached value regardless of age.
func (s *Store) GetStale(key string) (any, bool) {
	if key == "" {
		return nil, false
	}

	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	return e.value, true
}

func (s *Store) Set(_ context.Context, key string, value any) {
	if key == "" {
		return
	}

	s.mu.Lock()
	s.entries[key] = entry{
		value:     value,
		fetchedAt: s.now(),
	}
	s.mu.Unlock()
}

func (s *Store) Delete(_ context.Context, key string) {
	if key == "" {
		return
	}

	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// GetOrRefresh returns the cached value while fresh; otherwise it invokes
// loader through a single-flight group so concurrent callers for the same
// key await one fetch. When the loader fails and a stale value exists, that
// value is returned with stale=true and a nil error. The error is non-nil
// only when the loader failed and nothing was ever cached.
func (s *Store) GetOrRefresh(ctx context.Context, key string, loader func(context.Context) (any, error)) (value any, stale bool, err error) {
	if loader == nil {
		return nil, false, fmt.Errorf("loader is required")
	}
	if key == "" {
		v, lerr := loader(ctx)
		return v, false, lerr
	}

	if v, ok := s.Get(ctx, key); ok {
		return v, false, nil
	}

	type refreshResult struct {
		value any
		stale bool
	}

	out, err, _ := s.flight.Do(key, func() (any, error) {
		if cached, ok := s.Get(ctx, key); ok {
			return refreshResult{value: cached}, nil
		}

		loaded, loadErr := loader(ctx)
		if loadErr != nil {
			if prev, ok := s.GetStale(key); ok {
				return refreshResult{value: prev, stale: true}, nil
			}
			return nil, loadErr
		}
		s.Set(ctx, key, loaded)
		return refreshResult{value: loaded}, nil
	})
	if err != nil {
		return nil, false, err
	}

	res := out.(refreshResult)
	return res.value, res.stale, nil
}

// SetClock overrides the time source; tests only.
func (s *Store) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *Store) expired(e entry) bool {
	if s.ttl <= 0 {
		return false
	}
	return !e.fetchedAt.Add(s.ttl).After(s.now())
}
