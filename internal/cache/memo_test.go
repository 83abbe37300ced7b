package cache

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGenerateKey(t *testing.T) {
	a := GenerateKey("order_list", 1, "pending")
	b := GenerateKey("order_list", 1, "pending")
	if a != b {
		t.Errorf("Keys should be deterministic: %s != %s", a, b)
	}
	if len(a) != 32 {
		t.Errorf("Expected 32 hex chars, got %d", len(a))
	}

	if GenerateKey("order_list", 1, "done") == a {
		t.Error("Different arguments should produce different keys")
	}
	if GenerateKey("order_stats", 1, "pending") == a {
		t.Error("Different prefixes should produce different keys")
	}
}

func TestMemoizer_CachesResult(t *testing.T) {
	store, mock := newTestStore[int](t, 10)
	memo, err := NewMemoizer(store, "memo:", time.Minute)
	if err != nil {
		t.Fatalf("NewMemoizer failed: %v", err)
	}

	calls := 0
	compute := func() (int, error) {
		calls++
		return 42, nil
	}

	for i := 0; i < 3; i++ {
		v, err := memo.Do("answer", compute)
		if err != nil || v != 42 {
			t.Fatalf("Do returned %d, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}

	mock.Add(time.Minute)
	if _, err := memo.Do("answer", compute); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected recompute after TTL, got %d calls", calls)
	}
}

func TestMemoizer_ErrorsNotCached(t *testing.T) {
	store, _ := newTestStore[string](t, 10)
	memo, _ := NewMemoizer(store, "memo:", time.Minute)

	boom := errors.New("boom")
	if _, err := memo.Do("k", func() (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}
	if store.Len() != 0 {
		t.Error("Failed results must not be cached")
	}

	v, err := memo.Do("k", func() (string, error) { return "ok", nil })
	if err != nil || v != "ok" {
		t.Errorf("Expected ok after failure, got %q, %v", v, err)
	}
}

func TestMemoizer_SharesInFlightCalls(t *testing.T) {
	store, _ := newTestStore[int](t, 10)
	memo, _ := NewMemoizer(store, "memo:", time.Minute)

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func() (int, error) {
		calls.Add(1)
		<-release
		return 7, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = memo.Do("slow", compute)
		}(i)
	}

	// Give every goroutine time to join the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("Expected 1 shared call, got %d", got)
	}
	for i, v := range results {
		if v != 7 {
			t.Errorf("Result %d: got %d, want 7", i, v)
		}
	}
}

func TestMemoizer_Invalidate(t *testing.T) {
	store, _ := newTestStore[int](t, 10)
	memo, _ := NewMemoizer(store, "memo:", time.Minute)

	n := 0
	compute := func() (int, error) {
		n++
		return n, nil
	}

	_, _ = memo.Do("a", compute)
	_, _ = memo.Do("b", compute)

	memo.Invalidate("a")
	if v, _ := memo.Do("a", compute); v != 3 {
		t.Errorf("Expected recompute for a, got %d", v)
	}

	if n := memo.InvalidateAll(); n != 2 {
		t.Errorf("Expected 2 invalidated, got %d", n)
	}
	if store.Len() != 0 {
		t.Errorf("InvalidateAll should drop every memoized value, len=%d", store.Len())
	}
}

func TestMemoizer_InvalidatePrefix(t *testing.T) {
	store, _ := newTestStore[int](t, 10)
	memo, _ := NewMemoizer(store, "memo:", time.Minute)
	other, _ := NewMemoizer(store, "reports:", time.Minute)

	value := func() (int, error) { return 1, nil }
	_, _ = memo.Do("order_list:1", value)
	_, _ = memo.Do("order_list:2", value)
	_, _ = memo.Do("order_stats", value)
	_, _ = other.Do("order_list:1", value)
	store.Set("session", 9)

	if n := memo.InvalidatePrefix("order_list:"); n != 2 {
		t.Errorf("Expected 2 invalidated, got %d", n)
	}
	want := []string{"memo:order_stats", "reports:order_list:1", "session"}
	if got := store.Keys(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Keys after prefix invalidation: got %v, want %v", got, want)
	}

	if n := memo.InvalidateAll(); n != 1 {
		t.Errorf("Expected 1 invalidated, got %d", n)
	}
	want = []string{"reports:order_list:1", "session"}
	if got := store.Keys(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("InvalidateAll must keep entries it did not write: got %v, want %v", got, want)
	}
}

func TestMemoizer_InvalidateDuringCall(t *testing.T) {
	store, _ := newTestStore[int](t, 10)
	memo, _ := NewMemoizer(store, "memo:", time.Minute)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan int)
	go func() {
		v, _ := memo.Do("k", func() (int, error) {
			close(started)
			<-release
			return 1, nil
		})
		done <- v
	}()

	<-started
	memo.Invalidate("k")
	close(release)

	if v := <-done; v != 1 {
		t.Errorf("In-flight caller should still get its result, got %d", v)
	}
	if _, ok := store.Get("memo:k"); ok {
		t.Error("Result computed before Invalidate must not be cached")
	}

	v, err := memo.Do("k", func() (int, error) { return 2, nil })
	if err != nil || v != 2 {
		t.Fatalf("Expected fresh value 2, got %d, %v", v, err)
	}
	if got, ok := store.Get("memo:k"); !ok || got != 2 {
		t.Errorf("Fresh value should be cached, got %d (found=%v)", got, ok)
	}
}

func TestNewMemoizer_NegativeTTL(t *testing.T) {
	store, _ := newTestStore[int](t, 10)
	if _, err := NewMemoizer(store, "memo:", -time.Second); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
}
