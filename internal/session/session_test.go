package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"signal-relay/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnterSignalRootSameSignalKeepsBackups(t *testing.T) {
	c := New(1)
	c.EnterSignalRoot("EURUSD", "EURUSD_BUY_1h_1", domain.Timeframe1h, "original text")
	c.SignalInstrument = "GBPUSD"

	c.EnterSignalRoot("EURUSD", "EURUSD_BUY_1h_1", domain.Timeframe1h, "re-rendered analysis text")

	assert.Equal(t, "original text", c.OriginalSignalMessage)
	assert.Equal(t, "EURUSD_BUY_1h_1", c.SignalIDBackup)
	assert.Equal(t, "EURUSD", c.SignalInstrument)
	assert.True(t, c.FromSignal)
	assert.Equal(t, StateChooseAnalysis, c.State)
}

func TestEnterSignalRootDifferentSignalReplacesAllBackups(t *testing.T) {
	c := New(1)
	c.EnterSignalRoot("EURUSD", "EURUSD_BUY_1h_1", domain.Timeframe1h, "first")
	c.EnterSignalRoot("XAUUSD", "XAUUSD_SELL_15m_2", domain.Timeframe15m, "second")

	assert.Equal(t, "XAUUSD_SELL_15m_2", c.SignalIDBackup)
	assert.Equal(t, "XAUUSD", c.SignalInstrumentBackup)
	assert.Equal(t, domain.Timeframe15m, c.SignalTimeframeBackup)
	assert.Equal(t, "second", c.OriginalSignalMessage)
}

func TestEnterSignalRootClearsWorkingSelection(t *testing.T) {
	c := New(1)
	c.CurrentMarket = domain.MarketCrypto
	c.CurrentAnalysisType = domain.AnalysisCalendar
	c.IsSignalsContext = true

	c.EnterSignalRoot("EURUSD", "id", domain.Timeframe1h, "msg")
	assert.Empty(t, c.CurrentMarket)
	assert.Empty(t, c.CurrentAnalysisType)
	assert.False(t, c.IsSignalsContext)
	assert.Equal(t, int64(1), c.ConversationID)
}

func TestClearToMenuDropsBackups(t *testing.T) {
	c := New(9)
	c.EnterSignalRoot("EURUSD", "id", domain.Timeframe1h, "msg")
	epoch := c.Epoch

	c.ClearToMenu()
	assert.Equal(t, int64(9), c.ConversationID)
	assert.Equal(t, StateMenu, c.State)
	assert.Empty(t, c.SignalIDBackup)
	assert.Empty(t, c.OriginalSignalMessage)
	assert.False(t, c.FromSignal)
	assert.Greater(t, c.Epoch, epoch)
}

func TestClearToSignalsMenuKeepsBackups(t *testing.T) {
	c := New(9)
	c.EnterSignalRoot("EURUSD", "id", domain.Timeframe1h, "msg")
	c.CurrentAnalysisType = domain.AnalysisTechnical

	c.ClearToSignalsMenu()
	assert.True(t, c.IsSignalsContext)
	assert.Equal(t, StateChooseSignals, c.State)
	assert.Empty(t, c.CurrentInstrument)
	assert.Empty(t, c.CurrentAnalysisType)
	assert.Equal(t, "id", c.SignalIDBackup)
	assert.Equal(t, "msg", c.OriginalSignalMessage)
}

func TestRestoreSignalRoot(t *testing.T) {
	c := New(1)
	c.EnterSignalRoot("EURUSD", "id", domain.Timeframe4h, "msg")
	c.SignalID = ""
	c.CurrentInstrument = "GBPUSD"

	c.RestoreSignalRoot()
	assert.Equal(t, "id", c.SignalID)
	assert.Equal(t, "EURUSD", c.CurrentInstrument)
	assert.Equal(t, domain.Timeframe4h, c.CurrentTimeframe)
}

func TestGuardDetectsMovedSession(t *testing.T) {
	c := New(1)
	c.EnterSignalRoot("EURUSD", "id", domain.Timeframe1h, "msg")
	g := c.Guard()
	assert.True(t, c.Matches(g))

	c.ClearToMenu()
	assert.False(t, c.Matches(g))
}

func TestBeginTurnInvalidatesGuard(t *testing.T) {
	c := New(1)
	c.CurrentInstrument = "EURUSD"
	g := c.Guard()

	c.BeginTurn()
	assert.False(t, c.Matches(g))
	assert.Equal(t, "EURUSD", c.CurrentInstrument)
}

func TestExtractInstrument(t *testing.T) {
	cases := map[string]string{
		"<b>Instrument:</b> EURUSD\n<b>Action:</b> BUY": "EURUSD",
		"New signal\nInstrument: xauusd\nAction: SELL":  "XAUUSD",
		"Instrument:US30": "US30",
	}
	for msg, want := range cases {
		got, ok := ExtractInstrument(msg)
		require.True(t, ok, msg)
		assert.Equal(t, want, got)
	}
	_, ok := ExtractInstrument("no instrument here")
	assert.False(t, ok)
}

func TestMemoryStoreRoundTripAndSweep(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	c, err := store.Load(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, StateMenu, c.State)

	c.CurrentInstrument = "EURUSD"
	require.NoError(t, store.Save(ctx, c))
	c.CurrentInstrument = "mutated after save"

	loaded, err := store.Load(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "EURUSD", loaded.CurrentInstrument)

	now = now.Add(2 * time.Hour)
	removed, err := store.Sweep(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, store.Len())
}

func TestLockerSerializesConversation(t *testing.T) {
	locker := NewLocker()
	var inFlight, maxInFlight int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locker.Lock(1)
			defer unlock()
			n := atomic.AddInt32(&inFlight, 1)
			for {
				m := atomic.LoadInt32(&maxInFlight)
				if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInFlight)
	assert.Empty(t, locker.locks)
}
