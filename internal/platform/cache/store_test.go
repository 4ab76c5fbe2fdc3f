package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var errLoaderFailed = errors.New("loader failed")

func TestStore_GetOrRefresh_UsesSingleFlight(t *testing.T) {
	t.Parallel()

	store := NewStore(time.Minute)
	var calls atomic.Int32

	loader := func(context.Context) (any, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return "value", nil
	}

	const workers = 32
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(workers)
	errCh := make(chan error, workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			v, _, err := store.GetOrRefresh(context.Background(), "same-key", loader)
			if err != nil {
				errCh <- err
				return
			}
			if got, _ := v.(string); got != "value" {
				errCh <- errors.New("unexpected loaded value")
			}
		}()
	}

	close(start)
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if got := calls.Load(); got != 1 {
		t.Fatalf("loader called %d times, want 1", got)
	}
}

func TestStore_GetOrRefresh_UsesCachedValueWhileFresh(t *testing.T) {
	t.Parallel()

	store := NewStore(time.Minute)
	var calls atomic.Int32

	loader := func(context.Context) (any, error) {
		calls.Add(1)
		return "cached", nil
	}

	if _, _, err := store.GetOrRefresh(context.Background(), "k", loader); err != nil {
		t.Fatalf("first GetOrRefresh error: %v", err)
	}
	if _, _, err := store.GetOrRefresh(context.Background(), "k", loader); err != nil {
		t.Fatalf("second GetOrRefresh error: %v", err)
	}

	if got := calls.Load(); got != 1 {
		t.Fatalf("loader called %d times, want 1", got)
	}
}

func TestStore_GetOrRefresh_RefreshesAfterTTL(t *testing.T) {
	t.Parallel()

	store := NewStore(time.Minute)
	now := time.Now()
	store.SetClock(func() time.Time { return now })

	var calls atomic.Int32
	loader := func(context.Context) (any, error) {
		calls.Add(1)
		return calls.Load(), nil
	}

	if _, _, err := store.GetOrRefresh(context.Background(), "k", loader); err != nil {
		t.Fatalf("GetOrRefresh error: %v", err)
	}

	now = now.Add(61 * time.Second)

	v, stale, err := store.GetOrRefresh(context.Background(), "k", loader)
	if err != nil {
		t.Fatalf("GetOrRefresh after expiry error: %v", err)
	}
	if stale {
		t.Fatal("fresh reload reported as stale")
	}
	if got := v.(int32); got != 2 {
		t.Fatalf("got value %d, want reloaded value 2", got)
	}
}

func TestStore_GetOrRefresh_ServesStaleOnLoaderFailure(t *testing.T) {
	t.Parallel()

	store := NewStore(time.Minute)
	now := time.Now()
	store.SetClock(func() time.Time { return now })

	if _, _, err := store.GetOrRefresh(context.Background(), "k", func(context.Context) (any, error) {
		return "old", nil
	}); err != nil {
		t.Fatalf("seed load error: %v", err)
	}

	now = now.Add(2 * time.Minute)

	v, stale, err := store.GetOrRefresh(context.Background(), "k", func(context.Context) (any, error) {
		return nil, errLoaderFailed
	})
	if err != nil {
		t.Fatalf("expected stale fallback, got error: %v", err)
	}
	if !stale {
		t.Fatal("expected stale=true")
	}
	if got := v.(string); got != "old" {
		t.Fatalf("got %q, want stale value \"old\"", got)
	}
}

func TestStore_GetOrRefresh_PropagatesErrorWithoutHistory(t *testing.T) {
	t.Parallel()

	store := NewStore(time.Minute)

	_, _, err := store.GetOrRefresh(context.Background(), "missing", func(context.Context) (any, error) {
		return nil, errLoaderFailed
	})
	if !errors.Is(err, errLoaderFailed) {
		t.Fatalf("got error %v, want %v", err, errLoaderFailed)
	}
}

func TestStore_Get_HidesExpiredEntries(t *testing.T) {
	t.Parallel()

	store := NewStore(time.Minute)
	now := time.Now()
	store.SetClock(func() time.Time { return now })

	store.Set(context.Background(), "k", "v")

	if _, ok := store.Get(context.Background(), "k"); !ok {
		t.Fatal("fresh entry not returned")
	}

	now = now.Add(61 * time.Second)

	if _, ok := store.Get(context.Background(), "k"); ok {
		t.Fatal("expired entry returned by Get")
	}
	if v, ok := store.GetStale("k"); !ok || v.(string) != "v" {
		t.Fatal("expired entry should remain reachable via GetStale")
	}
}
