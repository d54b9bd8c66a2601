package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucket(t *testing.T) {
	tb := NewTokenBucket(5, time.Second, 5)

	for i := 0; i < 5; i++ {
		if !tb.Allow() {
			t.Errorf("Expected token %d to be available", i+1)
		}
	}

	if tb.Allow() {
		t.Error("Expected no more tokens to be available")
	}

	time.Sleep(300 * time.Millisecond)
	if !tb.Allow() {
		t.Error("Expected a token to be refilled after waiting")
	}

	for tb.Allow() {
	}
	tb.Reset()
	for i := 0; i < 5; i++ {
		if !tb.Allow() {
			t.Errorf("Expected token %d to be available after reset", i+1)
		}
	}
}

func TestTokenBucketWait(t *testing.T) {
	tb := NewTokenBucket(20, time.Second, 1)

	if !tb.Allow() {
		t.Fatal("Expected first token to be available")
	}

	start := time.Now()
	if err := tb.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Expected Wait to block for about 50ms, got %s", elapsed)
	}
}

func TestTokenBucketWaitCancelled(t *testing.T) {
	tb := NewPerMinute(1, 1)
	tb.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := tb.Wait(ctx); err == nil {
		t.Error("Expected Wait to fail when the context cannot be satisfied")
	}
}

func TestNewTokenBucketDefaults(t *testing.T) {
	tb := NewTokenBucket(0, time.Second, 0)
	if !tb.Allow() {
		t.Error("Expected a burst of at least one")
	}
}

func TestUnlimited(t *testing.T) {
	var l Limiter = Unlimited{}
	for i := 0; i < 1000; i++ {
		if !l.Allow() {
			t.Fatal("Unlimited should always allow")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Wait(ctx); err == nil {
		t.Error("Expected cancelled context to surface")
	}
}
