package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/rbaliyan/smsbox/store"
	"github.com/rbaliyan/smsbox/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s := New()
		if err := s.Connect(context.Background()); err != nil {
			t.Fatalf("connect: %v", err)
		}
		t.Cleanup(func() { _ = s.Close(context.Background()) })
		return s
	})
}

func TestConnectLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.Get(ctx, "x"); !errors.Is(err, store.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected before connect, got %v", err)
	}
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := s.Connect(ctx); !errors.Is(err, store.ErrAlreadyConnected) {
		t.Fatalf("expected ErrAlreadyConnected, got %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := s.Count(ctx, nil); !errors.Is(err, store.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after close, got %v", err)
	}
}

func TestCreatedAtIsMonotonic(t *testing.T) {
	s := New()
	_ = s.Connect(context.Background())

	prev := s.now()
	for range 1000 {
		next := s.now()
		if !next.After(prev) {
			t.Fatalf("clock went backwards or stalled: %v then %v", prev, next)
		}
		prev = next
	}
}
