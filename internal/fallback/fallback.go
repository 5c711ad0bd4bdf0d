// Package fallback runs an ordered list of strategies and stops at the first success.
package fallback

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrSkipped is returned by a step whose precondition did not hold.
var ErrSkipped = errors.New("step skipped")

// ErrExhausted wraps the last failure when no step succeeded.
var ErrExhausted = errors.New("all strategies failed")

// Step is one strategy. When is consulted with the previous step's error; a nil When
// always runs.
type Step[T any] struct {
	Name string
	When func(prev error) bool
	Run  func(ctx context.Context) (T, error)
}

// Chain is an ordered list of steps sharing a logger.
type Chain[T any] struct {
	name   string
	steps  []Step[T]
	logger zerolog.Logger
}

func New[T any](name string, logger zerolog.Logger, steps ...Step[T]) *Chain[T] {
	return &Chain[T]{name: name, steps: steps, logger: logger}
}

// Run attempts each step in order. Intermediate failures are logged at decreasing
// severity (warn, info, then debug); only the final failure is returned.
func (c *Chain[T]) Run(ctx context.Context) (T, error) {
	var (
		zero    T
		lastErr error
		tried   int
	)
	for _, step := range c.steps {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		if step.When != nil && !step.When(lastErr) {
			continue
		}
		out, err := step.Run(ctx)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, ErrSkipped) {
			continue
		}
		c.logger.WithLevel(levelFor(tried)).
			Err(err).
			Str("chain", c.name).
			Str("step", step.Name).
			Msg("fallback step failed")
		lastErr = err
		tried++
	}
	if lastErr == nil {
		lastErr = ErrSkipped
	}
	return zero, fmt.Errorf("%s: %w: %w", c.name, ErrExhausted, lastErr)
}

func levelFor(attempt int) zerolog.Level {
	switch attempt {
	case 0:
		return zerolog.WarnLevel
	case 1:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}

// First is a convenience for a one-off chain.
func First[T any](ctx context.Context, name string, logger zerolog.Logger, steps ...Step[T]) (T, error) {
	return New(name, logger, steps...).Run(ctx)
}
