package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func countingLoader(calls *atomic.Int64) Loader[string] {
	return func(ctx context.Context, key string) (string, error) {
		n := calls.Add(1)
		return key + "#" + string(rune('0'+n)), nil
	}
}

func TestGetCachesUntilInvalidated(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	c := New("users", countingLoader(&calls))
	ctx := context.Background()

	v1, _ := c.Get(ctx, "alice")
	v2, _ := c.Get(ctx, "alice")
	if v1 != v2 || calls.Load() != 1 {
		t.Fatalf("Get twice = %q, %q with %d loads; want one load", v1, v2, calls.Load())
	}

	c.Invalidate("alice")
	v3, _ := c.Get(ctx, "alice")
	if v3 == v1 {
		t.Fatalf("Get after Invalidate returned stale value %q", v3)
	}
	if calls.Load() != 2 {
		t.Fatalf("loads = %d, want 2", calls.Load())
	}
}

func TestInvalidateIsScopedToKey(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	c := New("users", countingLoader(&calls))
	ctx := context.Background()
	_, _ = c.Get(ctx, "alice")
	_, _ = c.Get(ctx, "bob")

	c.Invalidate("alice")
	if _, ok := c.Peek("alice"); ok {
		t.Fatalf("alice still cached after Invalidate")
	}
	if _, ok := c.Peek("bob"); !ok {
		t.Fatalf("bob dropped by Invalidate(alice)")
	}

	c.InvalidateAll()
	if c.Len() != 0 {
		t.Fatalf("Len after InvalidateAll = %d, want 0", c.Len())
	}
}

func TestInvalidateUnknownKeyIsNoop(t *testing.T) {
	t.Parallel()

	c := New("filters", countingLoader(new(atomic.Int64)))
	c.Invalidate("missing")
	c.InvalidateAll()
	c.InvalidateAll()
	if c.Len() != 0 {
		t.Fatalf("Len = %d, want 0", c.Len())
	}
}

func TestLoadOverlappingInvalidationIsReloaded(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int64
	var evicted []int
	var mu sync.Mutex
	c := New[int]("policy", func(ctx context.Context, key string) (int, error) {
		n := calls.Add(1)
		if n == 1 {
			close(started)
			<-release
		}
		return int(n), nil
	}, WithOnEvict(func(_ string, v int) {
		mu.Lock()
		evicted = append(evicted, v)
		mu.Unlock()
	}))
	ctx := context.Background()

	done := make(chan int)
	go func() {
		v, _ := c.Get(ctx, "readers")
		done <- v
	}()
	<-started
	c.Invalidate("readers")
	close(release)

	if v := <-done; v != 2 {
		t.Fatalf("in-flight Get = %d, want the reloaded value 2", v)
	}
	if v, ok := c.Peek("readers"); !ok || v != 2 {
		t.Fatalf("Peek = %d, %v; want 2 stored", v, ok)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(evicted) != 1 || evicted[0] != 1 {
		t.Fatalf("evicted = %v, want only the stale value 1", evicted)
	}
}

func TestInvalidateDoesNotRetainGenerations(t *testing.T) {
	t.Parallel()

	c := New[int]("users", func(ctx context.Context, key string) (int, error) { return 1, nil })
	for i := 0; i < 100; i++ {
		c.Invalidate(fmt.Sprintf("users/u%d.yaml", i))
	}
	if _, err := c.Get(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}
	c.Invalidate("alice")
	if n := c.generations(); n != 0 {
		t.Fatalf("generations = %d after idle invalidations, want 0", n)
	}
}

func TestConcurrentMissesShareLoad(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var calls atomic.Int64
	c := New[string]("storages", func(ctx context.Context, key string) (string, error) {
		calls.Add(1)
		<-release
		return "v", nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Get(context.Background(), "default")
		}()
	}
	close(release)
	wg.Wait()
	if n := calls.Load(); n < 1 || n > 8 {
		t.Fatalf("loads = %d", n)
	}
	if _, ok := c.Peek("default"); !ok {
		t.Fatalf("value not cached")
	}
}

func TestLoadErrorIsNotCached(t *testing.T) {
	t.Parallel()

	fail := true
	c := New[string]("users", func(ctx context.Context, key string) (string, error) {
		if fail {
			return "", errors.New("boom")
		}
		return "ok", nil
	})
	if _, err := c.Get(context.Background(), "alice"); err == nil {
		t.Fatalf("Get err = nil, want boom")
	}
	fail = false
	if v, err := c.Get(context.Background(), "alice"); err != nil || v != "ok" {
		t.Fatalf("Get = %q, %v; want ok", v, err)
	}
}

func TestOnEvict(t *testing.T) {
	t.Parallel()

	var evicted []string
	c := New[string]("storages",
		func(ctx context.Context, key string) (string, error) { return key, nil },
		WithOnEvict[string](func(key string, v string) { evicted = append(evicted, key) }),
	)
	ctx := context.Background()
	_, _ = c.Get(ctx, "a")
	_, _ = c.Get(ctx, "b")
	c.Invalidate("a")
	c.Invalidate("a")
	c.InvalidateAll()
	if len(evicted) != 2 {
		t.Fatalf("evicted = %v, want a then b", evicted)
	}
}

func TestNop(t *testing.T) {
	t.Parallel()

	var c Cleanable = Nop{}
	c.Invalidate("anything")
	c.InvalidateAll()
}
