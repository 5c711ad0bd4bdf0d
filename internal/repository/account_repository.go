package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"signal-relay/internal/domain"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
)

const accountSchema = `
CREATE TABLE IF NOT EXISTS users (
    id             BIGINT PRIMARY KEY,
    is_active      BOOLEAN NOT NULL DEFAULT FALSE,
    payment_failed BOOLEAN NOT NULL DEFAULT FALSE,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

ALTER TABLE users ADD COLUMN IF NOT EXISTS subscription_ends_at TIMESTAMPTZ;

CREATE TABLE IF NOT EXISTS signal_subscriptions (
    user_id    BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    instrument TEXT NOT NULL,
    timeframe  TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, instrument, timeframe)
);

CREATE INDEX IF NOT EXISTS idx_signal_subscriptions_instrument
    ON signal_subscriptions (instrument, timeframe);
`

// AccountRepository owns users and their signal subscriptions.
type AccountRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewAccountRepository(pool PgxPool, tracer trace.Tracer) *AccountRepository {
	return &AccountRepository{pool: pool, tracer: tracer}
}

func (r *AccountRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "account-repo.run-migrations")
	defer span.End()

	if _, err := r.pool.Exec(ctx, accountSchema); err != nil {
		return fmt.Errorf("account migrations: %w", err)
	}
	return nil
}

// EnsureUser creates an inactive user row if none exists.
func (r *AccountRepository) EnsureUser(ctx context.Context, userID int64) error {
	_, span := r.tracer.Start(ctx, "account-repo.ensure-user")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`,
		userID,
	)
	return err
}

func (r *AccountRepository) IsActive(ctx context.Context, userID int64) (bool, error) {
	_, span := r.tracer.Start(ctx, "account-repo.is-active")
	defer span.End()

	return r.flag(ctx,
		`SELECT is_active AND (subscription_ends_at IS NULL OR subscription_ends_at > NOW())
		 FROM users WHERE id = $1`,
		userID,
	)
}

func (r *AccountRepository) HasFailedPayment(ctx context.Context, userID int64) (bool, error) {
	_, span := r.tracer.Start(ctx, "account-repo.has-failed-payment")
	defer span.End()

	return r.flag(ctx, `SELECT payment_failed FROM users WHERE id = $1`, userID)
}

// SetSubscription activates or deactivates a user until endsAt and clears any failed
// payment. The user row is created when missing.
func (r *AccountRepository) SetSubscription(ctx context.Context, userID int64, active bool, endsAt time.Time) error {
	_, span := r.tracer.Start(ctx, "account-repo.set-subscription")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, is_active, payment_failed, subscription_ends_at)
		 VALUES ($1, $2, FALSE, $3)
		 ON CONFLICT (id) DO UPDATE
		 SET is_active = EXCLUDED.is_active,
		     payment_failed = FALSE,
		     subscription_ends_at = EXCLUDED.subscription_ends_at,
		     updated_at = NOW()`,
		userID, active, endsAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("set subscription for %d: %w", userID, err)
	}
	return nil
}

// SetPaymentFailed records the outcome of the user's last payment.
func (r *AccountRepository) SetPaymentFailed(ctx context.Context, userID int64, failed bool) error {
	_, span := r.tracer.Start(ctx, "account-repo.set-payment-failed")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, payment_failed)
		 VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE
		 SET payment_failed = EXCLUDED.payment_failed,
		     updated_at = NOW()`,
		userID, failed,
	)
	if err != nil {
		return fmt.Errorf("set payment failed for %d: %w", userID, err)
	}
	return nil
}

// Unknown users are neither active nor failed.
func (r *AccountRepository) flag(ctx context.Context, query string, userID int64) (bool, error) {
	var v bool
	err := r.pool.QueryRow(ctx, query, userID).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v, nil
}

// SubscribersFor lists users subscribed to instrument. A subscription without a
// timeframe matches every timeframe, and so does a signal without one.
func (r *AccountRepository) SubscribersFor(ctx context.Context, instrument string, tf domain.Timeframe) ([]int64, error) {
	_, span := r.tracer.Start(ctx, "account-repo.subscribers-for")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT user_id
		 FROM signal_subscriptions
		 WHERE instrument = $1
		   AND ($2 = '' OR timeframe = '' OR timeframe = $2)
		 ORDER BY created_at ASC, user_id ASC`,
		strings.ToUpper(instrument), tf.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *AccountRepository) AddSubscription(ctx context.Context, userID int64, instrument string, tf domain.Timeframe) error {
	_, span := r.tracer.Start(ctx, "account-repo.add-subscription")
	defer span.End()

	batch := &pgx.Batch{}
	batch.Queue(`INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, userID)
	batch.Queue(
		`INSERT INTO signal_subscriptions (user_id, instrument, timeframe)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, instrument, timeframe) DO NOTHING`,
		userID, strings.ToUpper(instrument), tf.String(),
	)

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (r *AccountRepository) ListSubscriptions(ctx context.Context, userID int64) ([]domain.Subscription, error) {
	_, span := r.tracer.Start(ctx, "account-repo.list-subscriptions")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT user_id, instrument, timeframe, created_at
		 FROM signal_subscriptions
		 WHERE user_id = $1
		 ORDER BY instrument ASC, timeframe ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		var s domain.Subscription
		var tf string
		if err := rows.Scan(&s.UserID, &s.Instrument, &tf, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Timeframe = domain.Timeframe(tf)
		s.CreatedAt = s.CreatedAt.UTC()
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// RemoveSubscription drops every timeframe the user follows for instrument.
func (r *AccountRepository) RemoveSubscription(ctx context.Context, userID int64, instrument string) (bool, error) {
	_, span := r.tracer.Start(ctx, "account-repo.remove-subscription")
	defer span.End()

	tag, err := r.pool.Exec(ctx,
		`DELETE FROM signal_subscriptions WHERE user_id = $1 AND instrument = $2`,
		userID, strings.ToUpper(instrument),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
