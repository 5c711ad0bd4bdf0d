package service

import (
	"context"
	"errors"
	"testing"

	"signal-relay/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type stubDistributor struct {
	calls  int
	last   domain.NormalizedSignal
	result domain.DistributionResult
	err    error
}

func (s *stubDistributor) Distribute(ctx context.Context, sig domain.NormalizedSignal) (domain.DistributionResult, error) {
	s.calls++
	s.last = sig
	return s.result, s.err
}

type stubArchive struct {
	inserted  []domain.NormalizedSignal
	insertErr error
	recent    []domain.ArchivedSignal
	lastLimit int
}

func (s *stubArchive) InsertSignal(ctx context.Context, sig domain.NormalizedSignal) error {
	s.inserted = append(s.inserted, sig)
	return s.insertErr
}

func (s *stubArchive) ListRecent(ctx context.Context, limit int) ([]domain.ArchivedSignal, error) {
	s.lastLimit = limit
	return s.recent, nil
}

func testTracer() trace.Tracer {
	return trace.NewNoopTracerProvider().Tracer("test")
}

func TestSubmitSignalRejectsInvalidPayload(t *testing.T) {
	dist := &stubDistributor{}
	svc := NewSignalService(testTracer(), dist, nil)

	res, err := svc.SubmitSignal(context.Background(), map[string]any{"price": "1.1"})
	if !errors.Is(err, domain.ErrInvalidSignal) {
		t.Fatalf("expected ErrInvalidSignal, got %v", err)
	}
	if res.Accepted || res.RecipientsNotified != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if dist.calls != 0 {
		t.Fatal("distributor must not be reached for invalid payloads")
	}
}

func TestSubmitSignalDistributesAndArchives(t *testing.T) {
	dist := &stubDistributor{result: domain.DistributionResult{Sent: 2, Recipients: 3}}
	archive := &stubArchive{}
	svc := NewSignalService(testTracer(), dist, archive)

	res, err := svc.SubmitSignal(context.Background(), map[string]any{
		"instrument": "XAUUSD",
		"price":      "2350.50",
		"sl":         "2360.00",
		"tp1":        "2340.00",
		"interval":   "15",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Accepted || res.RecipientsNotified != 2 || res.SignalID == "" {
		t.Fatalf("unexpected result %+v", res)
	}
	if dist.last.Direction != domain.DirectionSell || dist.last.Market != domain.MarketCommodities {
		t.Fatalf("unexpected distributed signal %+v", dist.last)
	}
	if len(archive.inserted) != 1 || archive.inserted[0].ID != res.SignalID {
		t.Fatalf("expected archived signal, got %+v", archive.inserted)
	}
}

func TestSubmitSignalArchiveFailureDoesNotBlockDistribution(t *testing.T) {
	dist := &stubDistributor{result: domain.DistributionResult{Sent: 1, Recipients: 1}}
	archive := &stubArchive{insertErr: errors.New("db down")}
	svc := NewSignalService(testTracer(), dist, archive)

	res, err := svc.SubmitSignal(context.Background(), map[string]any{
		"instrument": "EURUSD", "direction": "buy", "entry": "1.0850",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dist.calls != 1 || res.RecipientsNotified != 1 {
		t.Fatalf("expected distribution despite archive failure, got %+v", res)
	}
}

func TestSubmitSignalZeroRecipientsIsSuccess(t *testing.T) {
	svc := NewSignalService(testTracer(), &stubDistributor{}, nil)
	res, err := svc.SubmitSignal(context.Background(), map[string]any{
		"instrument": "BTCUSD", "direction": "SELL", "entry": 42000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Accepted || res.RecipientsNotified != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRecentSignalsRequiresArchive(t *testing.T) {
	svc := NewSignalService(testTracer(), &stubDistributor{}, nil)
	if _, err := svc.RecentSignals(context.Background(), 10); !errors.Is(err, ErrArchiveDisabled) {
		t.Fatalf("expected ErrArchiveDisabled, got %v", err)
	}

	archive := &stubArchive{recent: []domain.ArchivedSignal{{Deliveries: 3}}}
	svc = NewSignalService(testTracer(), &stubDistributor{}, archive)
	out, err := svc.RecentSignals(context.Background(), 10)
	if err != nil || len(out) != 1 || archive.lastLimit != 10 {
		t.Fatalf("unexpected recent result %+v %v", out, err)
	}
}
