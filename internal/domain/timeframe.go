package domain

import "strings"

// Timeframe is the canonical lowercase candle interval ("15m", "1h", "4h", "1d").
// Inbound tokens use two conventions ("H1"/"M15" and "1h"/"15m"); ParseTimeframe is
// the only place that maps between them.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
	Timeframe1w  Timeframe = "1w"
)

var timeframeAliases = map[string]Timeframe{
	"1m": Timeframe1m, "m1": Timeframe1m, "1": Timeframe1m,
	"5m": Timeframe5m, "m5": Timeframe5m, "5": Timeframe5m,
	"15m": Timeframe15m, "m15": Timeframe15m, "15": Timeframe15m,
	"30m": Timeframe30m, "m30": Timeframe30m, "30": Timeframe30m,
	"1h": Timeframe1h, "h1": Timeframe1h, "60": Timeframe1h,
	"4h": Timeframe4h, "h4": Timeframe4h, "240": Timeframe4h,
	"1d": Timeframe1d, "d1": Timeframe1d, "d": Timeframe1d,
	"1w": Timeframe1w, "w1": Timeframe1w, "w": Timeframe1w,
}

var timeframeDisplay = map[Timeframe]string{
	Timeframe1m:  "1 Minute",
	Timeframe5m:  "5 Minutes",
	Timeframe15m: "15 Minutes",
	Timeframe30m: "30 Minutes",
	Timeframe1h:  "1 Hour",
	Timeframe4h:  "4 Hours",
	Timeframe1d:  "1 Day",
	Timeframe1w:  "1 Week",
}

var timeframeBroker = map[Timeframe]string{
	Timeframe1m:  "M1",
	Timeframe5m:  "M5",
	Timeframe15m: "M15",
	Timeframe30m: "M30",
	Timeframe1h:  "H1",
	Timeframe4h:  "H4",
	Timeframe1d:  "D1",
	Timeframe1w:  "W1",
}

// ParseTimeframe accepts either casing convention plus bare minute counts.
func ParseTimeframe(raw string) (Timeframe, bool) {
	tf, ok := timeframeAliases[strings.ToLower(strings.TrimSpace(raw))]
	return tf, ok
}

func (t Timeframe) String() string { return string(t) }

// Display returns a human label, e.g. "4 Hours".
func (t Timeframe) Display() string {
	if label, ok := timeframeDisplay[t]; ok {
		return label
	}
	return string(t)
}

// BrokerToken returns the uppercase form ("H4") used by chart symbols and legacy subscriptions.
func (t Timeframe) BrokerToken() string {
	if tok, ok := timeframeBroker[t]; ok {
		return tok
	}
	return strings.ToUpper(string(t))
}

func (t Timeframe) IsZero() bool { return t == "" }

// StyleTimeframes maps trading styles offered in the technical analysis flow.
var StyleTimeframes = map[string]Timeframe{
	"test":     Timeframe1m,
	"scalp":    Timeframe15m,
	"intraday": Timeframe1h,
	"swing":    Timeframe4h,
}

var Styles = []string{"test", "scalp", "intraday", "swing"}
