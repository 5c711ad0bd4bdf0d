package bot

import (
	"context"
	"sync"
	"time"

	"signal-relay/internal/chat"
	"signal-relay/internal/domain"
	"signal-relay/internal/signal"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	defaultDistributionConcurrency = 8
	defaultSendTimeout             = 10 * time.Second
)

type messageSender interface {
	Send(ctx context.Context, chatID int64, content chat.Content) (chat.MessageRef, error)
}

type SubscriberSource interface {
	Resolve(ctx context.Context, instrument string, tf domain.Timeframe) ([]int64, error)
}

// SignalRegistry keeps delivered signals addressable per recipient.
type SignalRegistry interface {
	Put(ctx context.Context, recipient int64, sig domain.NormalizedSignal) (bool, error)
	Get(ctx context.Context, recipient int64, signalID string) (*domain.NormalizedSignal, error)
}

type DeliveryArchive interface {
	RecordDeliveries(ctx context.Context, deliveries []domain.Delivery) error
}

type DistributorConfig struct {
	Operators   []int64
	Concurrency int
	SendTimeout time.Duration
}

// SignalDistributor fans a normalized signal out to operators and subscribers.
type SignalDistributor struct {
	tracer   trace.Tracer
	sender   messageSender
	resolver SubscriberSource
	registry SignalRegistry
	archive  DeliveryArchive

	operators   []int64
	concurrency int
	sendTimeout time.Duration
	now         func() time.Time
}

// NewSignalDistributor wires a distributor. resolver and archive may be nil.
func NewSignalDistributor(tracer trace.Tracer, sender messageSender, resolver SubscriberSource, registry SignalRegistry, archive DeliveryArchive, cfg DistributorConfig) *SignalDistributor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultDistributionConcurrency
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	return &SignalDistributor{
		tracer:      tracer,
		sender:      sender,
		resolver:    resolver,
		registry:    registry,
		archive:     archive,
		operators:   append([]int64(nil), cfg.Operators...),
		concurrency: cfg.Concurrency,
		sendTimeout: cfg.SendTimeout,
		now:         time.Now,
	}
}

// Distribute sends sig to every recipient once. Per-recipient failures are logged and
// skipped, so the only outcome is a count of successful sends.
func (d *SignalDistributor) Distribute(ctx context.Context, sig domain.NormalizedSignal) (domain.DistributionResult, error) {
	ctx, span := d.tracer.Start(ctx, "signal-distributor.distribute", trace.WithAttributes(
		attribute.String("signal_id", sig.ID),
		attribute.String("instrument", sig.Instrument),
	))
	defer span.End()

	if sig.RawMessage == "" {
		sig.RawMessage = signal.Format(sig)
	}

	recipients := d.recipients(ctx, sig)
	span.SetAttributes(attribute.Int("recipients", len(recipients)))
	if len(recipients) == 0 {
		log.Info().Str("signal_id", sig.ID).Msg("no recipients for signal")
		return domain.DistributionResult{}, nil
	}

	content := chat.Text(sig.RawMessage, analyzeKeyboard(sig))

	var (
		mu        sync.Mutex
		delivered = make([]domain.Delivery, 0, len(recipients))
		g         errgroup.Group
	)
	g.SetLimit(d.concurrency)
	for _, recipient := range recipients {
		g.Go(func() error {
			if !d.deliver(ctx, recipient, sig, content) {
				return nil
			}
			mu.Lock()
			delivered = append(delivered, domain.Delivery{SignalID: sig.ID, RecipientID: recipient, DeliveredAt: d.now().UTC()})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if d.archive != nil && len(delivered) > 0 {
		if err := d.archive.RecordDeliveries(ctx, delivered); err != nil {
			log.Warn().Err(err).Str("signal_id", sig.ID).Msg("failed to archive deliveries")
		}
	}

	result := domain.DistributionResult{Sent: len(delivered), Recipients: len(recipients)}
	log.Info().
		Str("signal_id", sig.ID).
		Int("sent", result.Sent).
		Int("recipients", result.Recipients).
		Msg("signal distributed")
	return result, nil
}

// recipients lists operators first, then resolved subscribers, without duplicates.
func (d *SignalDistributor) recipients(ctx context.Context, sig domain.NormalizedSignal) []int64 {
	out := make([]int64, 0, len(d.operators))
	seen := make(map[int64]struct{}, len(d.operators))
	add := func(ids []int64) {
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	add(d.operators)

	if d.resolver == nil {
		return out
	}
	subscribers, err := d.resolver.Resolve(ctx, sig.Instrument, sig.Timeframe)
	if err != nil {
		log.Warn().Err(err).Str("signal_id", sig.ID).Msg("subscriber resolution failed, sending to operators only")
	}
	add(subscribers)
	return out
}

// deliver sends to one recipient and registers the signal for it afterwards.
func (d *SignalDistributor) deliver(ctx context.Context, recipient int64, sig domain.NormalizedSignal, content chat.Content) bool {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	if _, err := d.sender.Send(sendCtx, recipient, content); err != nil {
		log.Warn().Err(err).Int64("chat_id", recipient).Str("signal_id", sig.ID).Msg("signal delivery failed")
		return false
	}
	if d.registry != nil {
		if _, err := d.registry.Put(ctx, recipient, sig); err != nil {
			log.Warn().Err(err).Int64("chat_id", recipient).Str("signal_id", sig.ID).Msg("failed to register delivered signal")
		}
	}
	return true
}
