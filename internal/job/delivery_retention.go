package job

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

const deliveryRetentionTick = time.Hour

type DeliveryPruner interface {
	DeleteDeliveriesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// DeliveryRetention prunes delivery rows older than the retention window once an hour.
type DeliveryRetention struct {
	tracer    trace.Tracer
	pruner    DeliveryPruner
	retention time.Duration
	tick      time.Duration
	now       func() time.Time
}

func NewDeliveryRetention(tracer trace.Tracer, pruner DeliveryPruner, retention time.Duration) *DeliveryRetention {
	return &DeliveryRetention{
		tracer:    tracer,
		pruner:    pruner,
		retention: retention,
		tick:      deliveryRetentionTick,
		now:       time.Now,
	}
}

// Start blocks until ctx is cancelled. A nil pruner or a non-positive retention
// disables the job.
func (j *DeliveryRetention) Start(ctx context.Context) {
	if j == nil || j.pruner == nil || j.retention <= 0 {
		<-ctx.Done()
		return
	}

	log.Info().Dur("retention", j.retention).Msg("delivery retention starting")
	ticker := time.NewTicker(j.tick)
	defer ticker.Stop()

	j.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("delivery retention stopped")
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *DeliveryRetention) runOnce(ctx context.Context) {
	if j.tracer != nil {
		var span trace.Span
		ctx, span = j.tracer.Start(ctx, "delivery-retention.prune")
		defer span.End()
	}
	cutoff := j.now().Add(-j.retention)
	deleted, err := j.pruner.DeleteDeliveriesBefore(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("delivery retention failed")
		return
	}
	if deleted > 0 {
		log.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("pruned deliveries")
	}
}
