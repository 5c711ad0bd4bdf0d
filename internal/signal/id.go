package signal

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"signal-relay/internal/domain"
)

// NewID builds "{INSTRUMENT}_{DIRECTION}_{timeframe}_{unixmillis}". Signals created in
// the same millisecond for the same instrument, direction and timeframe share an id.
func NewID(instrument string, direction domain.Direction, tf domain.Timeframe, rawTimeframe string, at time.Time) string {
	token := tf.String()
	if token == "" {
		token = idToken(rawTimeframe)
	}
	return fmt.Sprintf("%s_%s_%s_%d", instrument, direction, token, at.UnixMilli())
}

func idToken(raw string) string {
	raw = strings.Map(func(r rune) rune {
		if r == '_' || r == ' ' {
			return -1
		}
		return r
	}, raw)
	if raw == "" {
		return "na"
	}
	return raw
}

// IDParts is what can be read back out of a signal id.
type IDParts struct {
	Instrument string
	Direction  domain.Direction
	Timeframe  string
	CreatedAt  time.Time
}

// ParseID splits an id produced by NewID.
func ParseID(id string) (IDParts, bool) {
	parts := strings.Split(id, "_")
	if len(parts) != 4 {
		return IDParts{}, false
	}
	ms, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return IDParts{}, false
	}
	dir := domain.Direction(parts[1])
	if !dir.IsValid() || parts[0] == "" {
		return IDParts{}, false
	}
	return IDParts{
		Instrument: parts[0],
		Direction:  dir,
		Timeframe:  parts[2],
		CreatedAt:  time.UnixMilli(ms).UTC(),
	}, true
}
