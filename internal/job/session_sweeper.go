package job

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

type SessionSweepable interface {
	Sweep(ctx context.Context, idle time.Duration) (int, error)
}

// SessionSweeper drops conversation sessions idle for longer than ttl. Only the
// in-memory store needs it; Redis-backed sessions expire on their own.
type SessionSweeper struct {
	tracer trace.Tracer
	store  SessionSweepable
	ttl    time.Duration
	tick   time.Duration
}

func NewSessionSweeper(tracer trace.Tracer, store SessionSweepable, ttl time.Duration) *SessionSweeper {
	tick := ttl / 4
	if tick < time.Minute {
		tick = time.Minute
	}
	return &SessionSweeper{tracer: tracer, store: store, ttl: ttl, tick: tick}
}

// Start blocks until ctx is cancelled.
func (s *SessionSweeper) Start(ctx context.Context) {
	if s == nil || s.store == nil || s.ttl <= 0 {
		<-ctx.Done()
		return
	}

	log.Info().Dur("ttl", s.ttl).Dur("every", s.tick).Msg("session sweeper starting")
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("session sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *SessionSweeper) sweep(ctx context.Context) {
	if s.tracer != nil {
		var span trace.Span
		ctx, span = s.tracer.Start(ctx, "session-sweeper.sweep")
		defer span.End()
	}
	n, err := s.store.Sweep(ctx, s.ttl)
	if err != nil {
		log.Error().Err(err).Msg("session sweep failed")
		return
	}
	if n > 0 {
		log.Debug().Int("removed", n).Msg("swept idle sessions")
	}
}
