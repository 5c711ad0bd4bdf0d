package domain

import "time"

type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

func (d Direction) IsValid() bool {
	return d == DirectionBuy || d == DirectionSell
}

type Market string

const (
	MarketForex       Market = "forex"
	MarketCrypto      Market = "crypto"
	MarketCommodities Market = "commodities"
	MarketIndices     Market = "indices"
)

var Markets = []Market{MarketForex, MarketCrypto, MarketCommodities, MarketIndices}

func ParseMarket(s string) (Market, bool) {
	for _, m := range Markets {
		if string(m) == s {
			return m, true
		}
	}
	return "", false
}

// MaxTakeProfitLevels caps tp1..tp3.
const MaxTakeProfitLevels = 3

// NormalizedSignal is the canonical form of an inbound signal. It is built once at
// ingestion; only RawMessage is filled later, before fan-out.
type NormalizedSignal struct {
	ID               string    `json:"id" validate:"required"`
	Instrument       string    `json:"instrument" validate:"required,alphanum,uppercase"`
	Direction        Direction `json:"direction" validate:"required,oneof=BUY SELL"`
	Entry            string    `json:"entry" validate:"required"`
	StopLoss         string    `json:"stop_loss,omitempty"`
	TakeProfit       string    `json:"take_profit,omitempty"`
	TakeProfitLevels []string  `json:"take_profit_levels,omitempty" validate:"max=3"`
	Timeframe        Timeframe `json:"timeframe,omitempty"`
	RawTimeframe     string    `json:"raw_timeframe,omitempty"`
	Market           Market    `json:"market" validate:"required,oneof=forex crypto commodities indices"`
	SentimentVerdict string    `json:"sentiment_verdict,omitempty"`
	Strategy         string    `json:"strategy,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	RawMessage       string    `json:"raw_message,omitempty"`
}

// TimeframeLabel is what users see: the source token when one was sent, otherwise the
// canonical form.
func (s NormalizedSignal) TimeframeLabel() string {
	if s.RawTimeframe != "" {
		return s.RawTimeframe
	}
	return s.Timeframe.String()
}

type DistributionResult struct {
	Sent       int `json:"sent"`
	Recipients int `json:"recipients"`
}

type SubmitResult struct {
	Accepted           bool   `json:"accepted"`
	RecipientsNotified int    `json:"recipients_notified"`
	SignalID           string `json:"signal_id,omitempty"`
}

// Delivery is one successful send of a signal to a recipient.
type Delivery struct {
	SignalID    string    `json:"signal_id"`
	RecipientID int64     `json:"recipient_id"`
	DeliveredAt time.Time `json:"delivered_at"`
}

type Subscription struct {
	UserID     int64     `json:"user_id"`
	Instrument string    `json:"instrument"`
	Timeframe  Timeframe `json:"timeframe"`
	CreatedAt  time.Time `json:"created_at"`
}

type AnalysisType string

const (
	AnalysisTechnical AnalysisType = "technical"
	AnalysisSentiment AnalysisType = "sentiment"
	AnalysisCalendar  AnalysisType = "calendar"
)

type Impact string

const (
	ImpactHigh   Impact = "High"
	ImpactMedium Impact = "Medium"
	ImpactLow    Impact = "Low"
)

type CalendarEvent struct {
	Time     time.Time `json:"time"`
	Country  string    `json:"country"`
	Currency string    `json:"currency"`
	Title    string    `json:"title"`
	Impact   Impact    `json:"impact"`
}

type Chart struct {
	Image    []byte
	MimeType string
	URL      string
}

// ArchivedSignal is a stored signal with its delivery count.
type ArchivedSignal struct {
	NormalizedSignal
	Deliveries int `json:"deliveries"`
}
