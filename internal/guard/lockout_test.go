package guard

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestLockoutBlacklistsAfterMaxFailures(t *testing.T) {
	g := NewLockoutGuard()
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	for i := 1; i < DefaultMaxFailedAttempts; i++ {
		if g.RecordFailure("1.2.3.4", now.Add(time.Duration(i)*time.Minute)) {
			t.Fatalf("failure %d should not blacklist yet", i)
		}
	}
	if !g.RecordFailure("1.2.3.4", now.Add(10*time.Minute)) {
		t.Fatalf("fifth failure should blacklist")
	}
	if !g.IsBlocked("1.2.3.4", now.Add(24*time.Hour)) {
		t.Fatalf("blacklist should not expire without a TTL")
	}

	g.Clear("1.2.3.4")
	if !g.IsBlocked("1.2.3.4", now.Add(48*time.Hour)) {
		t.Fatalf("Clear must not lift the blacklist")
	}
}

func TestLockoutWindowRestarts(t *testing.T) {
	g := NewLockoutGuard()
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		g.RecordFailure("ip", now)
	}
	// Window elapsed: counting restarts at one
	if g.RecordFailure("ip", now.Add(15*time.Minute)) {
		t.Fatalf("failure after the window should start a new count")
	}
	if g.IsBlocked("ip", now.Add(15*time.Minute)) {
		t.Fatalf("ip should not be blocked")
	}
}

func TestLockoutClearResetsCount(t *testing.T) {
	g := NewLockoutGuard(WithMaxAttempts(3))
	now := time.Now()

	g.RecordFailure("ip", now)
	g.RecordFailure("ip", now)
	g.Clear("ip")
	if g.RecordFailure("ip", now) {
		t.Fatalf("count should restart after a successful login")
	}
}

func TestLockoutBlacklistTTL(t *testing.T) {
	g := NewLockoutGuard(WithMaxAttempts(1), WithBlacklistTTL(time.Hour))
	now := time.Now()

	g.RecordFailure("ip", now)
	if !g.IsBlocked("ip", now.Add(59*time.Minute)) {
		t.Fatalf("should still be blocked inside the TTL")
	}
	if g.IsBlocked("ip", now.Add(time.Hour)) {
		t.Fatalf("entry should expire at the TTL")
	}
}

func TestLockoutReleaseAndList(t *testing.T) {
	g := NewLockoutGuard(WithMaxAttempts(1))
	now := time.Now()

	g.RecordFailure("b", now.Add(time.Second))
	g.RecordFailure("a", now)

	blocked := g.Blocked(now.Add(time.Minute))
	if len(blocked) != 2 || blocked[0].IP != "a" || blocked[1].IP != "b" {
		t.Fatalf("blocked = %+v", blocked)
	}
	if !g.Release("a") {
		t.Fatalf("Release should report the entry existed")
	}
	if g.Release("a") {
		t.Fatalf("second Release should report absence")
	}
	if g.IsBlocked("a", now) {
		t.Fatalf("released ip still blocked")
	}
}

func TestLockoutConcurrentFailures(t *testing.T) {
	g := NewLockoutGuard()
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ip := fmt.Sprintf("10.0.0.%d", i%5)
			g.RecordFailure(ip, now)
			g.IsBlocked(ip, now)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 5; i++ {
		if !g.IsBlocked(fmt.Sprintf("10.0.0.%d", i), now) {
			t.Fatalf("10.0.0.%d received 10 failures and must be blocked", i)
		}
	}
}
