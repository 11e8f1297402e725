package cache

import (
	"context"
	"testing"
)

func TestMemStoreRoundTrip(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "what time is it", "be helpful"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	if err := s.Set(ctx, "what time is it", "be helpful", "it is noon"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok, err := s.Get(ctx, "what time is it", "be helpful")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got != "it is noon" {
		t.Errorf("got %q", got)
	}
}

func TestMemStoreDistinguishesSystemPrompt(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	s.Set(ctx, "hello", "prompt A", "response A")

	if _, ok, _ := s.Get(ctx, "hello", "prompt B"); ok {
		t.Error("expected miss for a different system prompt")
	}
}

func TestKeyFormat(t *testing.T) {
	k := key("query", "prompt")
	if len(k) < len("cache:v1:") || k[:9] != "cache:v1:" {
		t.Errorf("key %q does not have expected cache:v1: prefix", k)
	}
}
