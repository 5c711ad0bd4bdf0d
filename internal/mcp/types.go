package mcp

import (
	"fmt"
	"strings"
	"time"

	"signal-relay/internal/domain"
	"signal-relay/internal/signal"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 200
)

type signalsSubmitInput struct {
	Instrument       string `json:"instrument" jsonschema:"instrument symbol (e.g. EURUSD, XAUUSD, BTCUSD)"`
	Direction        string `json:"direction" jsonschema:"BUY or SELL"`
	Entry            string `json:"entry" jsonschema:"entry price"`
	StopLoss         string `json:"stop_loss,omitempty" jsonschema:"optional stop loss"`
	TP1              string `json:"tp1,omitempty" jsonschema:"optional first take profit"`
	TP2              string `json:"tp2,omitempty" jsonschema:"optional second take profit"`
	TP3              string `json:"tp3,omitempty" jsonschema:"optional third take profit"`
	Timeframe        string `json:"timeframe,omitempty" jsonschema:"optional timeframe: 1m, 15m, 1h, 4h, H1, 240 ..."`
	Strategy         string `json:"strategy,omitempty" jsonschema:"optional strategy name"`
	SentimentVerdict string `json:"sentiment_verdict,omitempty" jsonschema:"optional sentiment line shown under the signal"`
}

type signalsSubmitOutput struct {
	Accepted           bool   `json:"accepted"`
	RecipientsNotified int    `json:"recipients_notified"`
	SignalID           string `json:"signal_id,omitempty"`
}

type signalsRecentInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"number of signals to return, max 200"`
}

type signalsRecentOutput struct {
	Signals []recentSignal `json:"signals"`
}

type recentSignal struct {
	ID               string    `json:"id"`
	Instrument       string    `json:"instrument"`
	Direction        string    `json:"direction"`
	Entry            string    `json:"entry"`
	StopLoss         string    `json:"stop_loss,omitempty"`
	TakeProfitLevels []string  `json:"take_profit_levels,omitempty"`
	Timeframe        string    `json:"timeframe,omitempty"`
	Market           string    `json:"market"`
	CreatedAt        time.Time `json:"created_at"`
	Deliveries       int       `json:"deliveries"`
}

func toRecent(list []domain.ArchivedSignal) signalsRecentOutput {
	out := signalsRecentOutput{Signals: make([]recentSignal, 0, len(list))}
	for _, s := range list {
		out.Signals = append(out.Signals, recentSignal{
			ID:               s.ID,
			Instrument:       s.Instrument,
			Direction:        string(s.Direction),
			Entry:            s.Entry,
			StopLoss:         s.StopLoss,
			TakeProfitLevels: s.TakeProfitLevels,
			Timeframe:        s.TimeframeLabel(),
			Market:           string(s.Market),
			CreatedAt:        s.CreatedAt,
			Deliveries:       s.Deliveries,
		})
	}
	return out
}

type signalClassifyInput struct {
	Instrument string `json:"instrument" jsonschema:"instrument symbol (e.g. EURUSD)"`
}

type signalClassifyOutput struct {
	Instrument       string   `json:"instrument"`
	Market           string   `json:"market"`
	DefaultTimeframe string   `json:"default_timeframe"`
	Currencies       []string `json:"currencies"`
}

type instrumentsOutput struct {
	Markets map[domain.Market][]string `json:"markets"`
}

// payload turns tool arguments into the webhook payload shape so both entry points share
// one normalizer.
func (in signalsSubmitInput) payload() map[string]any {
	out := make(map[string]any)
	set := func(key, value string) {
		if v := strings.TrimSpace(value); v != "" {
			out[key] = v
		}
	}
	set("instrument", in.Instrument)
	set("direction", in.Direction)
	set("entry", in.Entry)
	set("stop_loss", in.StopLoss)
	set("tp1", in.TP1)
	set("tp2", in.TP2)
	set("tp3", in.TP3)
	set("timeframe", in.Timeframe)
	set("strategy", in.Strategy)
	set("sentiment_verdict", in.SentimentVerdict)
	return out
}

func normalizeInstrument(instrument string) (string, error) {
	instrument = strings.ToUpper(strings.TrimSpace(instrument))
	if instrument == "" {
		return "", fmt.Errorf("instrument is required")
	}
	for _, r := range instrument {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("unsupported instrument: %s", instrument)
		}
	}
	return instrument, nil
}

func normalizeRecentLimit(limit int) int {
	if limit <= 0 {
		return defaultRecentLimit
	}
	if limit > maxRecentLimit {
		return maxRecentLimit
	}
	return limit
}

func classify(instrument string) (signalClassifyOutput, error) {
	instrument, err := normalizeInstrument(instrument)
	if err != nil {
		return signalClassifyOutput{}, err
	}
	return signalClassifyOutput{
		Instrument:       instrument,
		Market:           string(signal.Classify(instrument)),
		DefaultTimeframe: domain.DefaultSignalTimeframe(instrument).String(),
		Currencies:       domain.InstrumentCurrencies(instrument),
	}, nil
}

func marketInstruments() instrumentsOutput {
	out := instrumentsOutput{Markets: make(map[domain.Market][]string, len(domain.Markets))}
	for _, m := range domain.Markets {
		out.Markets[m] = append([]string(nil), domain.MarketInstruments[m]...)
	}
	return out
}
