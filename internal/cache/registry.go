package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"signal-relay/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

const registryKeyPrefix = "signal-registry"

// SignalRegistry shares delivered signals across bot replicas. SETNX gives per-key
// insert-once semantics; ttl 0 keeps entries until removed externally.
type SignalRegistry struct {
	client redis.Cmdable
	tracer trace.Tracer
	ttl    time.Duration
}

func NewSignalRegistry(client redis.Cmdable, tracer trace.Tracer, ttl time.Duration) *SignalRegistry {
	return &SignalRegistry{client: client, tracer: tracer, ttl: ttl}
}

func (r *SignalRegistry) Put(ctx context.Context, recipient int64, sig domain.NormalizedSignal) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "signal-registry.put")
	defer span.End()

	data, err := json.Marshal(sig)
	if err != nil {
		return false, fmt.Errorf("encode registry entry: %w", err)
	}
	inserted, err := r.client.SetNX(ctx, registryKey(recipient, sig.ID), data, r.ttl).Result()
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("registry put: %w", err)
	}
	return inserted, nil
}

func (r *SignalRegistry) Get(ctx context.Context, recipient int64, signalID string) (*domain.NormalizedSignal, error) {
	ctx, span := r.tracer.Start(ctx, "signal-registry.get")
	defer span.End()

	data, err := r.client.Get(ctx, registryKey(recipient, signalID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("registry get: %w", err)
	}
	var sig domain.NormalizedSignal
	if err := json.Unmarshal(data, &sig); err != nil {
		return nil, fmt.Errorf("decode registry entry: %w", err)
	}
	return &sig, nil
}

func registryKey(recipient int64, signalID string) string {
	return fmt.Sprintf("%s:%d:%s", registryKeyPrefix, recipient, signalID)
}
