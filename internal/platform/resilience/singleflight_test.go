package resilience

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSingleFlight_DeduplicatesConcurrentCalls(t *testing.T) {
	t.Parallel()

	var flight SingleFlight
	var calls atomic.Int32

	const workers = 16
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(workers)

	var sharedCount atomic.Int32
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			v, err, shared := flight.Do("key", func() (any, error) {
				calls.Add(1)
				time.Sleep(20 * time.Millisecond)
				return 42, nil
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if v.(int) != 42 {
				t.Errorf("got %v, want 42", v)
			}
			if shared {
				sharedCount.Add(1)
			}
		}()
	}

	close(start)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("fn called %d times, want 1", got)
	}
	if sharedCount.Load() == 0 {
		t.Fatal("expected at least one shared result")
	}
}

func TestSingleFlight_DifferentKeysRunIndependently(t *testing.T) {
	t.Parallel()

	var flight SingleFlight
	var calls atomic.Int32

	fn := func() (any, error) {
		calls.Add(1)
		return nil, nil
	}

	if _, err, _ := flight.Do("a", fn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err, _ := flight.Do("b", fn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := calls.Load(); got != 2 {
		t.Fatalf("fn called %d times, want 2", got)
	}
}

func TestSingleFlight_PropagatesErrorToAllWaiters(t *testing.T) {
	t.Parallel()

	var flight SingleFlight
	errBoom := errors.New("boom")

	_, err, _ := flight.Do("key", func() (any, error) {
		return nil, errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("got %v, want %v", err, errBoom)
	}

	// a later call with the same key runs fresh
	v, err, _ := flight.Do("key", func() (any, error) {
		return "ok", nil
	})
	if err != nil || v.(string) != "ok" {
		t.Fatalf("got (%v, %v), want (ok, nil)", v, err)
	}
}
