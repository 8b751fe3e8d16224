package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vklemos/alicerce/internal/core/domain"
)

func newTestStore() (*Store, *time.Time) {
	s := New()
	current := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return current }
	return s, &current
}

func TestIncrWindow(t *testing.T) {
	s, clock := newTestStore()

	for i := int64(1); i <= 3; i++ {
		count, resetAt := s.IncrWindow("rl:a", time.Minute)
		if count != i {
			t.Errorf("IncrWindow() count = %d, want %d", count, i)
		}
		if want := clock.Add(time.Minute); !resetAt.Equal(want) {
			t.Errorf("IncrWindow() resetAt = %v, want %v", resetAt, want)
		}
	}

	*clock = clock.Add(61 * time.Second)

	count, _ := s.IncrWindow("rl:a", time.Minute)
	if count != 1 {
		t.Errorf("IncrWindow() count after window reset = %d, want 1", count)
	}
}

func TestSetNX(t *testing.T) {
	s, clock := newTestStore()

	if !s.SetNX("idem:a", time.Hour) {
		t.Error("first SetNX = false, want true")
	}
	if s.SetNX("idem:a", time.Hour) {
		t.Error("second SetNX = true, want false")
	}

	*clock = clock.Add(2 * time.Hour)

	if !s.SetNX("idem:a", time.Hour) {
		t.Error("SetNX after expiry = false, want true")
	}
}

func TestIncrByAndGet(t *testing.T) {
	s, clock := newTestStore()

	if got := s.IncrBy("usage:a", 3, time.Hour); got != 3 {
		t.Errorf("IncrBy() = %d, want 3", got)
	}
	if got := s.IncrBy("usage:a", 2, time.Hour); got != 5 {
		t.Errorf("IncrBy() = %d, want 5", got)
	}
	if got, ok := s.Get("usage:a"); !ok || got != 5 {
		t.Errorf("Get() = %d, %v, want 5, true", got, ok)
	}

	*clock = clock.Add(2 * time.Hour)

	if _, ok := s.Get("usage:a"); ok {
		t.Error("Get() found an expired counter")
	}
	if got := s.IncrBy("usage:a", 1, time.Hour); got != 1 {
		t.Errorf("IncrBy() after expiry = %d, want 1", got)
	}
}

func TestQueueFIFO(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	for _, payload := range []string{"a", "b", "c"} {
		if err := s.Push(ctx, domain.QueueStandard, []byte(payload)); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}

	if n, _ := s.Length(ctx, domain.QueueStandard); n != 3 {
		t.Errorf("Length() = %d, want 3", n)
	}

	for _, want := range []string{"a", "b", "c"} {
		payload, found, err := s.Pop(ctx, domain.QueueStandard)
		if err != nil || !found {
			t.Fatalf("Pop() = %v, %v", found, err)
		}
		if string(payload) != want {
			t.Errorf("Pop() = %q, want %q", payload, want)
		}
	}

	if _, found, _ := s.Pop(ctx, domain.QueueStandard); found {
		t.Error("Pop() on empty queue reported found")
	}
}

func TestDeadLetterAndRetries(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	if err := s.PushDead(ctx, []byte("dead-1")); err != nil {
		t.Fatalf("PushDead() error = %v", err)
	}
	entry := domain.RetryEntry{JobID: "j-1", Queue: domain.QueueLow, Retries: 1}
	if err := s.RecordRetry(ctx, entry); err != nil {
		t.Fatalf("RecordRetry() error = %v", err)
	}

	dead := s.DeadLetters()
	if len(dead) != 1 || string(dead[0]) != "dead-1" {
		t.Errorf("DeadLetters() = %v", dead)
	}
	retries := s.RetryEntries()
	if len(retries) != 1 || retries[0].JobID != "j-1" {
		t.Errorf("RetryEntries() = %v", retries)
	}
}

func TestConcurrentIncrements(t *testing.T) {
	s := New()

	const goroutines = 16
	const perGoroutine = 50

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				s.IncrWindow("rl:conc", time.Minute)
				s.IncrBy("usage:conc", 1, time.Hour)
			}
		}()
	}
	wg.Wait()

	if got, _ := s.Get("usage:conc"); got != goroutines*perGoroutine {
		t.Errorf("Get() = %d, want %d", got, goroutines*perGoroutine)
	}
	count, _ := s.IncrWindow("rl:conc", time.Minute)
	if count != goroutines*perGoroutine+1 {
		t.Errorf("IncrWindow() = %d, want %d", count, goroutines*perGoroutine+1)
	}
}

func TestSweepRemovesExpiredEntries(t *testing.T) {
	s, clock := newTestStore()

	for i := 0; i < 10; i++ {
		s.IncrWindow("rl:old"+string(rune('a'+i)), time.Minute)
	}
	*clock = clock.Add(2 * time.Minute)

	// Qualquer escrita varre entradas expiradas dentro do orçamento.
	s.IncrWindow("rl:new", time.Minute)

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.windows) != 1 {
		t.Errorf("windows after sweep = %d, want 1", len(s.windows))
	}
}
