package guard

import (
	"sync"
	"testing"
	"time"
)

func TestRateLimiterRejectsRequestOverLimit(t *testing.T) {
	l := NewRateLimiter(500, time.Minute)
	start := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	for i := 1; i <= 500; i++ {
		if ok, _ := l.Admit("10.0.0.1", start.Add(time.Duration(i)*time.Millisecond)); !ok {
			t.Fatalf("request %d should be admitted", i)
		}
	}
	ok, retry := l.Admit("10.0.0.1", start.Add(30*time.Second))
	if ok {
		t.Fatalf("501st request should be rejected")
	}
	if retry != 30*time.Second {
		t.Fatalf("retry after = %v, want 30s", retry)
	}

	// Another IP has its own window
	if ok, _ := l.Admit("10.0.0.2", start.Add(30*time.Second)); !ok {
		t.Fatalf("independent IP should be admitted")
	}
}

func TestRateLimiterResetsAfterWindow(t *testing.T) {
	l := NewRateLimiter(2, time.Minute)
	start := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	l.Admit("ip", start)
	l.Admit("ip", start)
	if ok, _ := l.Admit("ip", start.Add(time.Second)); ok {
		t.Fatalf("third request should be rejected")
	}
	if ok, _ := l.Admit("ip", start.Add(time.Minute)); !ok {
		t.Fatalf("first request of the new window should be admitted")
	}
	if ok, _ := l.Admit("ip", start.Add(time.Minute+time.Second)); !ok {
		t.Fatalf("second request of the new window should be admitted")
	}
}

func TestRateLimiterSweep(t *testing.T) {
	l := NewRateLimiter(10, time.Minute)
	now := time.Now()
	l.Admit("a", now)
	l.Admit("b", now.Add(50*time.Second))
	if removed := l.Sweep(now.Add(70 * time.Second)); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
}

func TestRateLimiterConcurrentAdmit(t *testing.T) {
	l := NewRateLimiter(100, time.Hour)
	now := time.Now()

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Admit("shared", now); ok {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if admitted != 100 {
		t.Fatalf("admitted = %d, want exactly 100", admitted)
	}
}
