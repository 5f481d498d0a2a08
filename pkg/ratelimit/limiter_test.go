package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAllowConsumesBurst(t *testing.T) {
	l := New(10, 3)

	for i := 0; i < 3; i++ {
		if !l.Allow() {
			t.Fatalf("request %d should be allowed within burst", i)
		}
	}
	if l.Allow() {
		t.Error("request beyond burst should be rejected")
	}
}

func TestWaitBlocksUntilRefill(t *testing.T) {
	l := New(100, 1) // refill за ~10ms
	if !l.Allow() {
		t.Fatal("first token expected")
	}

	start := time.Now()
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 5*time.Millisecond {
		t.Errorf("Wait returned too early: %v", elapsed)
	}
}

func TestWaitCancelledContext(t *testing.T) {
	l := New(0.1, 1) // очень медленный refill
	l.Allow()        // опустошаем ведро

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx); err == nil {
		t.Error("expected context error")
	}
}

func TestNewClampsBadArguments(t *testing.T) {
	l := New(-1, -1)
	if l.rate <= 0 || l.burst < l.rate {
		t.Errorf("invalid defaults: rate=%v burst=%v", l.rate, l.burst)
	}
}
