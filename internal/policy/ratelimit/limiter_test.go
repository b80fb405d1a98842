package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLimiter_WaitPacesSameKey(t *testing.T) {
	l := New(Config{RPS: 10, Burst: 1})
	ctx := context.Background()

	if err := l.Wait(ctx, "tranco"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 10 RPS with burst 1 leaves ~100ms until the next token.
	start := time.Now()
	if err := l.Wait(ctx, "tranco"); err != nil {
		t.Fatal(err)
	}
	if dur := time.Since(start); dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}
}

func TestLimiter_DifferentKeys(t *testing.T) {
	l := New(Config{RPS: 1, Burst: 1})
	ctx := context.Background()

	if err := l.Wait(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := l.Wait(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Errorf("key b blocked unexpectedly")
	}
}

func TestLimiter_FailsFastPastDeadline(t *testing.T) {
	l := New(Config{RPS: 0.1, Burst: 1})
	if err := l.Wait(context.Background(), "slow"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := l.Wait(ctx, "slow")
	if !errors.Is(err, ErrLimited) {
		t.Fatalf("expected ErrLimited, got %v", err)
	}
	if time.Since(start) > 40*time.Millisecond {
		t.Errorf("expected immediate failure, waited %v", time.Since(start))
	}
}

func TestLimiter_DisabledWhenRPSZero(t *testing.T) {
	l := New(Config{})
	for i := 0; i < 5; i++ {
		if err := l.Wait(context.Background(), "any"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}
