package job

import (
	"context"
	"testing"
	"time"

	"signal-relay/internal/session"

	"go.opentelemetry.io/otel/trace"
)

func TestSessionSweeperTickFloor(t *testing.T) {
	s := NewSessionSweeper(nil, session.NewMemoryStore(), 10*time.Second)
	if s.tick != time.Minute {
		t.Fatalf("expected one minute floor, got %v", s.tick)
	}
	s = NewSessionSweeper(nil, session.NewMemoryStore(), 2*time.Hour)
	if s.tick != 30*time.Minute {
		t.Fatalf("expected ttl/4, got %v", s.tick)
	}
}

func TestSessionSweeperRemovesIdleSessions(t *testing.T) {
	store := session.NewMemoryStore()
	ctx := context.Background()
	if err := store.Save(ctx, session.New(1)); err != nil {
		t.Fatalf("save: %v", err)
	}

	s := NewSessionSweeper(trace.NewNoopTracerProvider().Tracer("test"), store, time.Nanosecond)
	time.Sleep(time.Millisecond)
	s.sweep(ctx)

	if store.Len() != 0 {
		t.Fatalf("expected idle session removed, %d left", store.Len())
	}
}

func TestSessionSweeperStopsOnCancel(t *testing.T) {
	s := NewSessionSweeper(nil, session.NewMemoryStore(), time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
