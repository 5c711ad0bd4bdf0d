package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type stubPruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (s *stubPruner) DeleteDeliveriesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cutoffs = append(s.cutoffs, cutoff)
	return 3, s.err
}

func (s *stubPruner) calls() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.cutoffs...)
}

func TestDeliveryRetentionPrunesOnStart(t *testing.T) {
	stub := &stubPruner{}
	job := NewDeliveryRetention(trace.NewNoopTracerProvider().Tracer("test"), stub, 30*24*time.Hour)
	fixed := time.Date(2024, 5, 31, 12, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return fixed }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for len(stub.calls()) == 0 {
		select {
		case <-deadline:
			t.Fatal("expected prune to run on start")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("retention job did not stop")
	}

	want := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if got := stub.calls()[0]; !got.Equal(want) {
		t.Fatalf("expected cutoff %v, got %v", want, got)
	}
}

func TestDeliveryRetentionSurvivesErrors(t *testing.T) {
	stub := &stubPruner{err: errors.New("db down")}
	job := NewDeliveryRetention(trace.NewNoopTracerProvider().Tracer("test"), stub, time.Hour)
	job.runOnce(context.Background())
	if len(stub.calls()) != 1 {
		t.Fatalf("expected one prune attempt, got %d", len(stub.calls()))
	}
}

func TestDeliveryRetentionDisabled(t *testing.T) {
	stub := &stubPruner{}
	job := NewDeliveryRetention(trace.NewNoopTracerProvider().Tracer("test"), stub, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	job.Start(ctx)

	if len(stub.calls()) != 0 {
		t.Fatalf("disabled job must not prune, got %d calls", len(stub.calls()))
	}
}
