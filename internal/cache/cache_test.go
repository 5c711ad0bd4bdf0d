package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"signal-relay/internal/domain"
	"signal-relay/internal/session"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestSignalRegistryInsertsOnce(t *testing.T) {
	mr, client := newTestClient(t)
	reg := NewSignalRegistry(client, trace.NewNoopTracerProvider().Tracer("cache-test"), time.Hour)
	ctx := context.Background()

	first := domain.NormalizedSignal{ID: "EURUSD_BUY_1h_1", Instrument: "EURUSD", Entry: "1.1"}
	inserted, err := reg.Put(ctx, 42, first)
	if err != nil || !inserted {
		t.Fatalf("expected first put to insert, got %v %v", inserted, err)
	}

	second := first
	second.Entry = "9.9"
	inserted, err = reg.Put(ctx, 42, second)
	if err != nil || inserted {
		t.Fatalf("expected second put to be ignored, got %v %v", inserted, err)
	}

	got, err := reg.Get(ctx, 42, first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Entry != "1.1" {
		t.Fatalf("entry was overwritten: %s", got.Entry)
	}

	if _, err := reg.Get(ctx, 43, first.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other recipient, got %v", err)
	}

	mr.FastForward(2 * time.Hour)
	if _, err := reg.Get(ctx, 42, first.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected entry to expire, got %v", err)
	}
}

func TestSessionStoreRoundTrip(t *testing.T) {
	mr, client := newTestClient(t)
	store := NewSessionStore(client, 30*time.Minute)
	ctx := context.Background()

	fresh, err := store.Load(ctx, 7)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fresh.State != session.StateMenu || fresh.ConversationID != 7 {
		t.Fatalf("unexpected fresh session %+v", fresh)
	}

	fresh.EnterSignalRoot("XAUUSD", "XAUUSD_SELL_15m_1", domain.Timeframe15m, "msg")
	if err := store.Save(ctx, fresh); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load(ctx, 7)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.SignalIDBackup != "XAUUSD_SELL_15m_1" || loaded.State != session.StateChooseAnalysis {
		t.Fatalf("session not persisted: %+v", loaded)
	}
	if loaded.UpdatedAt.IsZero() {
		t.Fatal("expected UpdatedAt to be stamped")
	}

	mr.FastForward(31 * time.Minute)
	expired, err := store.Load(ctx, 7)
	if err != nil {
		t.Fatalf("load after ttl: %v", err)
	}
	if expired.FromSignal {
		t.Fatal("expected idle session to expire")
	}
}

type countingSentiment struct{ calls int }

func (c *countingSentiment) Sentiment(_ context.Context, instrument string) (string, error) {
	c.calls++
	return "bullish on " + instrument, nil
}

type failingCalendar struct{}

func (failingCalendar) Events(context.Context, time.Time) ([]domain.CalendarEvent, error) {
	return nil, domain.ErrProviderUnavailable
}

func TestProviderCacheMemoizesSentiment(t *testing.T) {
	_, client := newTestClient(t)
	src := &countingSentiment{}
	pc := NewProviderCache(client, time.Minute, src, failingCalendar{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := pc.Sentiment(ctx, "eurusd")
		if err != nil {
			t.Fatalf("sentiment: %v", err)
		}
		if got != "bullish on eurusd" {
			t.Fatalf("unexpected sentiment %q", got)
		}
	}
	if src.calls != 1 {
		t.Fatalf("expected one upstream call, got %d", src.calls)
	}
}

func TestProviderCacheDoesNotStoreFailures(t *testing.T) {
	mr, client := newTestClient(t)
	pc := NewProviderCache(client, time.Minute, nil, failingCalendar{})

	_, err := pc.Events(context.Background(), time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if mr.Exists("provider:calendar:2024-03-01") {
		t.Fatal("failure must not be cached")
	}

	if _, err := pc.Sentiment(context.Background(), "EURUSD"); !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected unavailable without a source, got %v", err)
	}
}

func TestProviderCacheFallsThroughWhenRedisIsDown(t *testing.T) {
	mr, client := newTestClient(t)
	src := &countingSentiment{}
	pc := NewProviderCache(client, time.Minute, src, nil)
	mr.Close()

	got, err := pc.Sentiment(context.Background(), "BTCUSD")
	if err != nil {
		t.Fatalf("expected source answer despite redis outage: %v", err)
	}
	if got != "bullish on BTCUSD" || src.calls != 1 {
		t.Fatalf("unexpected result %q calls=%d", got, src.calls)
	}
}

func TestInitRedisWithMiniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	defer func() {
		if Client != nil {
			_ = Client.Close()
			Client = nil
		}
	}()

	if err := InitRedis(context.Background(), "redis://"+mr.Addr()+"/0"); err != nil {
		t.Fatalf("init redis: %v", err)
	}
	if Client == nil {
		t.Fatal("expected shared client")
	}
}

func TestRedisOptions(t *testing.T) {
	opts, err := redisOptions("")
	if err != nil || opts.Addr != "localhost:6379" {
		t.Fatalf("unexpected default options %+v %v", opts, err)
	}
	if _, err := redisOptions("redis://:bad@host:notaport"); err == nil {
		t.Fatal("expected url parse error")
	}
}
