package fallback

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainStopsAtFirstSuccess(t *testing.T) {
	var calls []string
	step := func(name string, err error) Step[string] {
		return Step[string]{Name: name, Run: func(context.Context) (string, error) {
			calls = append(calls, name)
			return name, err
		}}
	}

	out, err := First(context.Background(), "test", zerolog.Nop(),
		step("a", errors.New("boom")),
		step("b", nil),
		step("c", nil),
	)
	require.NoError(t, err)
	assert.Equal(t, "b", out)
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestChainReturnsLastFailure(t *testing.T) {
	last := errors.New("last")
	_, err := First(context.Background(), "test", zerolog.Nop(),
		Step[int]{Name: "a", Run: func(context.Context) (int, error) { return 0, errors.New("first") }},
		Step[int]{Name: "b", Run: func(context.Context) (int, error) { return 0, last }},
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, last)
}

func TestChainWhenGuardsOnPreviousError(t *testing.T) {
	special := errors.New("special")
	ran := false
	out, err := First(context.Background(), "test", zerolog.Nop(),
		Step[string]{Name: "a", Run: func(context.Context) (string, error) { return "", errors.New("other") }},
		Step[string]{
			Name: "b",
			When: func(prev error) bool { return errors.Is(prev, special) },
			Run: func(context.Context) (string, error) {
				ran = true
				return "b", nil
			},
		},
		Step[string]{Name: "c", Run: func(context.Context) (string, error) { return "c", nil }},
	)
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Equal(t, "c", out)
}

func TestChainSkippedStepsDoNotCountAsFailures(t *testing.T) {
	_, err := First(context.Background(), "test", zerolog.Nop(),
		Step[string]{Name: "a", Run: func(context.Context) (string, error) { return "", ErrSkipped }},
	)
	assert.ErrorIs(t, err, ErrSkipped)
}

func TestChainLogsAtDecreasingSeverity(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	fail := func(context.Context) (int, error) { return 0, errors.New("x") }

	_, _ = First(context.Background(), "test", logger,
		Step[int]{Name: "a", Run: fail},
		Step[int]{Name: "b", Run: fail},
		Step[int]{Name: "c", Run: fail},
	)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"level":"warn"`)
	assert.Contains(t, lines[1], `"level":"info"`)
	assert.Contains(t, lines[2], `"level":"debug"`)
}

func TestChainHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := First(ctx, "test", zerolog.Nop(),
		Step[int]{Name: "a", Run: func(context.Context) (int, error) { return 1, nil }},
	)
	assert.ErrorIs(t, err, context.Canceled)
}
