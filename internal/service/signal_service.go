package service

import (
	"context"
	"errors"
	"fmt"

	"signal-relay/internal/domain"
	"signal-relay/internal/signal"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

var ErrArchiveDisabled = errors.New("signal archive is not configured")

type Distributor interface {
	Distribute(ctx context.Context, sig domain.NormalizedSignal) (domain.DistributionResult, error)
}

type SignalArchive interface {
	InsertSignal(ctx context.Context, sig domain.NormalizedSignal) error
	ListRecent(ctx context.Context, limit int) ([]domain.ArchivedSignal, error)
}

// SignalService is the ingestion entry point shared by the webhook and the tool server.
type SignalService struct {
	tracer      trace.Tracer
	distributor Distributor
	archive     SignalArchive
}

func NewSignalService(tracer trace.Tracer, distributor Distributor, archive SignalArchive) *SignalService {
	return &SignalService{tracer: tracer, distributor: distributor, archive: archive}
}

// SubmitSignal normalizes payload and fans it out. Invalid payloads are rejected with
// domain.ErrInvalidSignal before anything is sent.
func (s *SignalService) SubmitSignal(ctx context.Context, payload map[string]any) (domain.SubmitResult, error) {
	ctx, span := s.tracer.Start(ctx, "signal-service.submit-signal")
	defer span.End()

	sig, err := signal.Normalize(payload)
	if err != nil {
		return domain.SubmitResult{Accepted: false}, err
	}
	if s.distributor == nil {
		return domain.SubmitResult{Accepted: false, SignalID: sig.ID}, fmt.Errorf("signal service is not fully initialized")
	}

	logger := log.With().Str("signal_id", sig.ID).Str("instrument", sig.Instrument).Logger()
	if s.archive != nil {
		if err := s.archive.InsertSignal(ctx, *sig); err != nil {
			logger.Warn().Err(err).Msg("failed to archive signal")
		}
	}

	res, err := s.distributor.Distribute(ctx, *sig)
	if err != nil {
		span.RecordError(err)
		return domain.SubmitResult{Accepted: true, RecipientsNotified: res.Sent, SignalID: sig.ID}, fmt.Errorf("distribute %s: %w", sig.ID, err)
	}

	logger.Info().Int("sent", res.Sent).Int("recipients", res.Recipients).Msg("signal distributed")
	return domain.SubmitResult{Accepted: true, RecipientsNotified: res.Sent, SignalID: sig.ID}, nil
}

func (s *SignalService) RecentSignals(ctx context.Context, limit int) ([]domain.ArchivedSignal, error) {
	ctx, span := s.tracer.Start(ctx, "signal-service.recent-signals")
	defer span.End()

	if s.archive == nil {
		return nil, ErrArchiveDisabled
	}
	out, err := s.archive.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent signals: %w", err)
	}
	return out, nil
}
