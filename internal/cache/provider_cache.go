package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"signal-relay/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type SentimentSource interface {
	Sentiment(ctx context.Context, instrument string) (string, error)
}

type CalendarSource interface {
	Events(ctx context.Context, day time.Time) ([]domain.CalendarEvent, error)
}

// ProviderCache memoizes slow provider answers in Redis. Redis errors never fail the
// call; the source is asked instead.
type ProviderCache struct {
	client    redis.Cmdable
	ttl       time.Duration
	sentiment SentimentSource
	calendar  CalendarSource
}

func NewProviderCache(client redis.Cmdable, ttl time.Duration, sentiment SentimentSource, calendar CalendarSource) *ProviderCache {
	return &ProviderCache{client: client, ttl: ttl, sentiment: sentiment, calendar: calendar}
}

func (p *ProviderCache) Sentiment(ctx context.Context, instrument string) (string, error) {
	if p.sentiment == nil {
		return "", fmt.Errorf("sentiment: %w", domain.ErrProviderUnavailable)
	}
	key := "provider:sentiment:" + strings.ToUpper(instrument)
	return getOrLoad(ctx, p.client, key, p.ttl, func(ctx context.Context) (string, error) {
		return p.sentiment.Sentiment(ctx, instrument)
	})
}

func (p *ProviderCache) Events(ctx context.Context, day time.Time) ([]domain.CalendarEvent, error) {
	if p.calendar == nil {
		return nil, fmt.Errorf("calendar: %w", domain.ErrProviderUnavailable)
	}
	key := "provider:calendar:" + day.UTC().Format("2006-01-02")
	return getOrLoad(ctx, p.client, key, p.ttl, func(ctx context.Context) ([]domain.CalendarEvent, error) {
		return p.calendar.Events(ctx, day)
	})
}

func getOrLoad[T any](ctx context.Context, client redis.Cmdable, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	data, err := client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached T
		if jsonErr := json.Unmarshal(data, &cached); jsonErr == nil {
			return cached, nil
		}
		log.Debug().Str("key", key).Msg("discarding undecodable cache entry")
	case !errors.Is(err, redis.Nil):
		log.Debug().Err(err).Str("key", key).Msg("provider cache read failed")
	}

	value, err := load(ctx)
	if err != nil {
		return value, err
	}
	encoded, err := json.Marshal(value)
	if err == nil {
		err = client.Set(ctx, key, encoded, ttl).Err()
	}
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("provider cache write failed")
	}
	return value, nil
}
