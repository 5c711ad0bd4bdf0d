package service

import (
	"context"
	"fmt"

	"signal-relay/internal/domain"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

type AccountStore interface {
	SubscribersFor(ctx context.Context, instrument string, tf domain.Timeframe) ([]int64, error)
	IsActive(ctx context.Context, userID int64) (bool, error)
	HasFailedPayment(ctx context.Context, userID int64) (bool, error)
}

// SubscriberResolver turns an instrument into the chat ids entitled to its signals.
type SubscriberResolver struct {
	tracer   trace.Tracer
	accounts AccountStore
}

func NewSubscriberResolver(tracer trace.Tracer, accounts AccountStore) *SubscriberResolver {
	return &SubscriberResolver{tracer: tracer, accounts: accounts}
}

// Resolve returns eligible subscribers in first-seen order without duplicates. When the
// store cannot be queried it returns an empty slice and the error; a failed eligibility
// check only drops that user.
func (r *SubscriberResolver) Resolve(ctx context.Context, instrument string, tf domain.Timeframe) ([]int64, error) {
	if r == nil || r.accounts == nil {
		return []int64{}, nil
	}

	ctx, span := r.tracer.Start(ctx, "subscriber-resolver.resolve")
	defer span.End()

	candidates, err := r.accounts.SubscribersFor(ctx, instrument, tf)
	if err != nil {
		span.RecordError(err)
		return []int64{}, fmt.Errorf("subscribers for %s: %w: %w", instrument, domain.ErrProviderUnavailable, err)
	}

	seen := make(map[int64]struct{}, len(candidates))
	out := make([]int64, 0, len(candidates))
	for _, id := range candidates {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		ok, err := r.Eligible(ctx, id)
		if err != nil {
			log.Warn().Err(err).Int64("user_id", id).Str("instrument", instrument).Msg("skipping subscriber with unknown eligibility")
			continue
		}
		if ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// Eligible reports whether the user is active and has no failed payment.
func (r *SubscriberResolver) Eligible(ctx context.Context, userID int64) (bool, error) {
	if r == nil || r.accounts == nil {
		return false, fmt.Errorf("account store: %w", domain.ErrProviderUnavailable)
	}
	active, err := r.accounts.IsActive(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("is active %d: %w", userID, err)
	}
	if !active {
		return false, nil
	}
	failed, err := r.accounts.HasFailedPayment(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("payment status %d: %w", userID, err)
	}
	return !failed, nil
}
