package repository

import (
	"context"
	"fmt"
	"time"

	"signal-relay/internal/domain"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
)

const archiveSchema = `
CREATE TABLE IF NOT EXISTS signals (
    id                 TEXT PRIMARY KEY,
    instrument         TEXT NOT NULL,
    direction          TEXT NOT NULL,
    entry              TEXT NOT NULL,
    stop_loss          TEXT NOT NULL DEFAULT '',
    take_profit_levels TEXT[] NOT NULL DEFAULT '{}',
    timeframe          TEXT NOT NULL DEFAULT '',
    raw_timeframe      TEXT NOT NULL DEFAULT '',
    market             TEXT NOT NULL,
    sentiment_verdict  TEXT NOT NULL DEFAULT '',
    strategy           TEXT NOT NULL DEFAULT '',
    created_at         TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_signals_created_at ON signals (created_at DESC);

CREATE TABLE IF NOT EXISTS signal_deliveries (
    signal_id    TEXT NOT NULL REFERENCES signals(id) ON DELETE CASCADE,
    recipient_id BIGINT NOT NULL,
    delivered_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (signal_id, recipient_id)
);

CREATE INDEX IF NOT EXISTS idx_signal_deliveries_delivered_at ON signal_deliveries (delivered_at);
`

// SignalArchive keeps an audit trail of accepted signals and who received them.
type SignalArchive struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewSignalArchive(pool PgxPool, tracer trace.Tracer) *SignalArchive {
	return &SignalArchive{pool: pool, tracer: tracer}
}

func (r *SignalArchive) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "signal-archive.run-migrations")
	defer span.End()

	if _, err := r.pool.Exec(ctx, archiveSchema); err != nil {
		return fmt.Errorf("archive migrations: %w", err)
	}
	return nil
}

func (r *SignalArchive) InsertSignal(ctx context.Context, sig domain.NormalizedSignal) error {
	_, span := r.tracer.Start(ctx, "signal-archive.insert-signal")
	defer span.End()

	levels := sig.TakeProfitLevels
	if levels == nil {
		levels = []string{}
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO signals (id, instrument, direction, entry, stop_loss, take_profit_levels,
		                      timeframe, raw_timeframe, market, sentiment_verdict, strategy, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO NOTHING`,
		sig.ID,
		sig.Instrument,
		string(sig.Direction),
		sig.Entry,
		sig.StopLoss,
		levels,
		sig.Timeframe.String(),
		sig.RawTimeframe,
		string(sig.Market),
		sig.SentimentVerdict,
		sig.Strategy,
		sig.CreatedAt.UTC(),
	)
	return err
}

func (r *SignalArchive) RecordDeliveries(ctx context.Context, deliveries []domain.Delivery) error {
	if len(deliveries) == 0 {
		return nil
	}

	_, span := r.tracer.Start(ctx, "signal-archive.record-deliveries")
	defer span.End()

	batch := &pgx.Batch{}
	for _, d := range deliveries {
		batch.Queue(
			`INSERT INTO signal_deliveries (signal_id, recipient_id, delivered_at)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (signal_id, recipient_id) DO NOTHING`,
			d.SignalID, d.RecipientID, d.DeliveredAt.UTC(),
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range deliveries {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (r *SignalArchive) ListRecent(ctx context.Context, limit int) ([]domain.ArchivedSignal, error) {
	_, span := r.tracer.Start(ctx, "signal-archive.list-recent")
	defer span.End()

	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.instrument, s.direction, s.entry, s.stop_loss, s.take_profit_levels,
		        s.timeframe, s.raw_timeframe, s.market, s.sentiment_verdict, s.strategy, s.created_at,
		        COUNT(d.recipient_id)
		 FROM signals s
		 LEFT JOIN signal_deliveries d ON d.signal_id = s.id
		 GROUP BY s.id
		 ORDER BY s.created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ArchivedSignal, 0, limit)
	for rows.Next() {
		var a domain.ArchivedSignal
		var direction, timeframe, market string
		var deliveries int64
		if err := rows.Scan(
			&a.ID,
			&a.Instrument,
			&direction,
			&a.Entry,
			&a.StopLoss,
			&a.TakeProfitLevels,
			&timeframe,
			&a.RawTimeframe,
			&market,
			&a.SentimentVerdict,
			&a.Strategy,
			&a.CreatedAt,
			&deliveries,
		); err != nil {
			return nil, err
		}
		a.Direction = domain.Direction(direction)
		a.Timeframe = domain.Timeframe(timeframe)
		a.Market = domain.Market(market)
		a.CreatedAt = a.CreatedAt.UTC()
		if len(a.TakeProfitLevels) > 0 {
			a.TakeProfit = a.TakeProfitLevels[0]
		}
		a.Deliveries = int(deliveries)
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteDeliveriesBefore prunes delivery rows older than cutoff and returns how many went.
func (r *SignalArchive) DeleteDeliveriesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	_, span := r.tracer.Start(ctx, "signal-archive.delete-deliveries-before")
	defer span.End()

	tag, err := r.pool.Exec(ctx,
		`DELETE FROM signal_deliveries WHERE delivered_at < $1`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
