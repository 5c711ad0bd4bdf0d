package signal

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"signal-relay/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type payloadShape int

const (
	// shapePriceStop carries price/sl/tp1..tp3/interval; direction is inferred.
	shapePriceStop payloadShape = iota
	// shapeDirection carries direction/entry/stop_loss/take_profit/timeframe.
	shapeDirection
)

func detectShape(payload map[string]any) payloadShape {
	if _, ok := field(payload, "direction"); ok {
		return shapeDirection
	}
	if _, ok := field(payload, "entry"); ok {
		return shapeDirection
	}
	return shapePriceStop
}

// Normalize converts an inbound webhook payload into a NormalizedSignal stamped with the
// current time.
func Normalize(payload map[string]any) (*domain.NormalizedSignal, error) {
	return NormalizeAt(payload, time.Now())
}

// NormalizeAt is Normalize with an explicit creation time.
func NormalizeAt(payload map[string]any, now time.Time) (*domain.NormalizedSignal, error) {
	rawInstrument, ok := field(payload, "instrument")
	if !ok {
		return nil, invalid("missing instrument")
	}
	instrument, ok := CanonicalInstrument(rawInstrument)
	if !ok {
		return nil, invalid(fmt.Sprintf("instrument %q is not a ticker symbol", rawInstrument))
	}

	var (
		sig *domain.NormalizedSignal
		err error
	)
	switch detectShape(payload) {
	case shapeDirection:
		sig, err = fromDirectionShape(payload)
	default:
		sig, err = fromPriceStopShape(payload)
	}
	if err != nil {
		return nil, err
	}

	sig.Instrument = instrument
	sig.Market = Classify(instrument)
	sig.CreatedAt = now.UTC()
	if len(sig.TakeProfitLevels) > 0 {
		sig.TakeProfit = sig.TakeProfitLevels[0]
	}
	if tf, ok := domain.ParseTimeframe(sig.RawTimeframe); ok {
		sig.Timeframe = tf
	}
	sig.SentimentVerdict, _ = field(payload, "sentiment_verdict")
	sig.Strategy, _ = field(payload, "strategy")
	sig.ID = NewID(sig.Instrument, sig.Direction, sig.Timeframe, sig.RawTimeframe, sig.CreatedAt)

	if err := validate.Struct(sig); err != nil {
		return nil, invalid(err.Error())
	}
	return sig, nil
}

func fromPriceStopShape(payload map[string]any) (*domain.NormalizedSignal, error) {
	price, err := decimalField(payload, "price")
	if err != nil {
		return nil, err
	}
	if price == "" {
		return nil, invalid("missing price")
	}
	sl, err := decimalField(payload, "sl")
	if err != nil {
		return nil, err
	}
	levels, err := takeProfitLevels(payload, "")
	if err != nil {
		return nil, err
	}

	direction := domain.DirectionBuy
	if sl != "" && decimal.RequireFromString(sl).GreaterThan(decimal.RequireFromString(price)) {
		direction = domain.DirectionSell
	}
	interval, _ := field(payload, "interval")

	return &domain.NormalizedSignal{
		Direction:        direction,
		Entry:            price,
		StopLoss:         sl,
		TakeProfitLevels: levels,
		RawTimeframe:     interval,
	}, nil
}

func fromDirectionShape(payload map[string]any) (*domain.NormalizedSignal, error) {
	rawDirection, ok := field(payload, "direction")
	if !ok {
		return nil, invalid("missing direction")
	}
	direction := domain.Direction(strings.ToUpper(rawDirection))
	if !direction.IsValid() {
		return nil, invalid("unsupported direction " + rawDirection)
	}
	entry, err := decimalField(payload, "entry")
	if err != nil {
		return nil, err
	}
	if entry == "" {
		return nil, invalid("missing entry")
	}
	sl, err := decimalField(payload, "stop_loss")
	if err != nil {
		return nil, err
	}
	fallbackTP, err := decimalField(payload, "take_profit")
	if err != nil {
		return nil, err
	}
	levels, err := takeProfitLevels(payload, fallbackTP)
	if err != nil {
		return nil, err
	}
	timeframe, _ := field(payload, "timeframe")

	return &domain.NormalizedSignal{
		Direction:        direction,
		Entry:            entry,
		StopLoss:         sl,
		TakeProfitLevels: levels,
		RawTimeframe:     timeframe,
	}, nil
}

// CanonicalInstrument reduces a feed symbol to its bare ticker: the exchange prefix
// ("OANDA:XAUUSD") and pair separators ("EUR/USD", "EUR_USD", "BTC-USD") are dropped and
// the result upper-cased. Anything left that is not A-Z or 0-9 is rejected.
func CanonicalInstrument(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.ToUpper(instrumentSeparators.Replace(s))
	if s == "" {
		return "", false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", false
		}
	}
	return s, true
}

var instrumentSeparators = strings.NewReplacer("/", "", "_", "", "-", "")

// takeProfitLevels collects tp1..tp3 in order. fallbackTP stands in for tp1 only.
func takeProfitLevels(payload map[string]any, fallbackTP string) ([]string, error) {
	var levels []string
	for i := 1; i <= domain.MaxTakeProfitLevels; i++ {
		tp, err := decimalField(payload, fmt.Sprintf("tp%d", i))
		if err != nil {
			return nil, err
		}
		if tp == "" && i == 1 {
			tp = fallbackTP
		}
		if tp != "" {
			levels = append(levels, tp)
		}
	}
	return levels, nil
}

// field returns a payload value as trimmed text. Numbers keep their source digits when
// the payload was decoded with UseNumber.
func field(payload map[string]any, key string) (string, bool) {
	v, ok := payload[key]
	if !ok || v == nil {
		return "", false
	}
	var s string
	switch val := v.(type) {
	case string:
		s = val
	case json.Number:
		s = val.String()
	case float64:
		s = strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		s = strconv.Itoa(val)
	case int64:
		s = strconv.FormatInt(val, 10)
	default:
		s = fmt.Sprint(val)
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

func decimalField(payload map[string]any, key string) (string, error) {
	s, ok := field(payload, key)
	if !ok {
		return "", nil
	}
	if _, err := decimal.NewFromString(s); err != nil {
		return "", invalid(fmt.Sprintf("%s is not numeric: %q", key, s))
	}
	return s, nil
}

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidSignal, reason)
}
