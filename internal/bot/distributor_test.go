package bot

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"signal-relay/internal/chat"
	"signal-relay/internal/chat/chattest"
	"signal-relay/internal/domain"
	"signal-relay/internal/registry"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSignal() domain.NormalizedSignal {
	return domain.NormalizedSignal{
		ID:               "EURUSD_BUY_1h_1714564800000",
		Instrument:       "EURUSD",
		Direction:        domain.DirectionBuy,
		Entry:            "1.0850",
		StopLoss:         "1.0800",
		TakeProfit:       "1.0900",
		TakeProfitLevels: []string{"1.0900"},
		Timeframe:        domain.Timeframe1h,
		Market:           domain.MarketForex,
		CreatedAt:        time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

type stubResolver struct {
	ids []int64
	err error
}

func (s stubResolver) Resolve(ctx context.Context, instrument string, tf domain.Timeframe) ([]int64, error) {
	return s.ids, s.err
}

type stubDeliveryArchive struct {
	deliveries []domain.Delivery
}

func (s *stubDeliveryArchive) RecordDeliveries(ctx context.Context, deliveries []domain.Delivery) error {
	s.deliveries = append(s.deliveries, deliveries...)
	return nil
}

func newTestDistributor(tr *chattest.Transport, resolver SubscriberSource, reg SignalRegistry, archive DeliveryArchive, operators ...int64) *SignalDistributor {
	renderer := chat.NewRenderer(tr, zerolog.Nop(), time.Second)
	return NewSignalDistributor(testTracer(), renderer, resolver, reg, archive, DistributorConfig{Operators: operators, Concurrency: 2})
}

func TestDistributeSendsOperatorsAndSubscribersOnce(t *testing.T) {
	tr := chattest.New()
	reg := registry.NewMemory()
	archive := &stubDeliveryArchive{}
	d := newTestDistributor(tr, stubResolver{ids: []int64{10, 20, 10}}, reg, archive, 1, 10)

	result, err := d.Distribute(context.Background(), testSignal())
	require.NoError(t, err)
	assert.Equal(t, domain.DistributionResult{Sent: 3, Recipients: 3}, result)

	for _, id := range []int64{1, 10, 20} {
		msgs := tr.Visible(id)
		require.Len(t, msgs, 1, "chat %d", id)
		assert.Contains(t, msgs[0].Text, "<b>Instrument:</b> EURUSD")
		assert.True(t, chattest.HasButton(msgs[0].Keyboard, "analyze_from_signal_EURUSD_EURUSD_BUY_1h_1714564800000"))

		stored, err := reg.Get(context.Background(), id, "EURUSD_BUY_1h_1714564800000")
		require.NoError(t, err)
		assert.Equal(t, msgs[0].Text, stored.RawMessage)
	}
	assert.Len(t, archive.deliveries, 3)
}

func TestDistributeSkipsFailedRecipient(t *testing.T) {
	tr := chattest.New()
	tr.FailSend[20] = errors.New("Forbidden: bot was blocked by the user")
	reg := registry.NewMemory()
	d := newTestDistributor(tr, stubResolver{ids: []int64{10, 20}}, reg, nil)

	result, err := d.Distribute(context.Background(), testSignal())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 2, result.Recipients)

	_, err = reg.Get(context.Background(), 20, testSignal().ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 1, reg.Len())
}

func TestDistributeFallsBackToOperatorsWhenResolverFails(t *testing.T) {
	tr := chattest.New()
	resolver := stubResolver{ids: []int64{}, err: fmt.Errorf("db down: %w", domain.ErrProviderUnavailable)}
	d := newTestDistributor(tr, resolver, registry.NewMemory(), nil, 7)

	result, err := d.Distribute(context.Background(), testSignal())
	require.NoError(t, err)
	assert.Equal(t, domain.DistributionResult{Sent: 1, Recipients: 1}, result)
	assert.Len(t, tr.Visible(7), 1)
}

func TestDistributeWithoutRecipients(t *testing.T) {
	tr := chattest.New()
	d := newTestDistributor(tr, stubResolver{}, registry.NewMemory(), nil)

	result, err := d.Distribute(context.Background(), testSignal())
	require.NoError(t, err)
	assert.Equal(t, domain.DistributionResult{}, result)
	assert.Empty(t, tr.Calls)
}

func TestDistributeKeepsPresetRawMessage(t *testing.T) {
	tr := chattest.New()
	sig := testSignal()
	sig.RawMessage = "<b>Instrument:</b> EURUSD preset"
	d := newTestDistributor(tr, nil, nil, nil, 3)

	_, err := d.Distribute(context.Background(), sig)
	require.NoError(t, err)
	msg, ok := tr.Last(3)
	require.True(t, ok)
	assert.Equal(t, sig.RawMessage, msg.Text)
}
