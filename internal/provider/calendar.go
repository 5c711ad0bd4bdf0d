package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"signal-relay/internal/domain"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const DefaultCalendarURL = "https://economic-calendar.tradingview.com/events"

// calendarCountries lists the economies behind the major currencies.
var calendarCountries = map[string]string{
	"US": "USD",
	"EU": "EUR",
	"GB": "GBP",
	"JP": "JPY",
	"CH": "CHF",
	"AU": "AUD",
	"NZ": "NZD",
	"CA": "CAD",
}

// TradingViewCalendar reads the public TradingView economic calendar feed.
type TradingViewCalendar struct {
	tracer  trace.Tracer
	http    httpClient
	baseURL string
}

func NewTradingViewCalendar(tracer trace.Tracer, baseURL string, timeout time.Duration) *TradingViewCalendar {
	if baseURL == "" {
		baseURL = DefaultCalendarURL
	}
	return &TradingViewCalendar{tracer: tracer, http: newHTTPClient(timeout), baseURL: baseURL}
}

type calendarResponse struct {
	Status string          `json:"status"`
	Result []calendarEvent `json:"result"`
}

type calendarEvent struct {
	Title      string      `json:"title"`
	Country    string      `json:"country"`
	Currency   string      `json:"currency"`
	Importance json.Number `json:"importance"`
	Date       string      `json:"date"`
}

// Events returns the events scheduled on day (UTC) for the major economies, sorted by time.
func (c *TradingViewCalendar) Events(ctx context.Context, day time.Time) ([]domain.CalendarEvent, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24*time.Hour - time.Millisecond)

	ctx, span := c.tracer.Start(ctx, "tradingview-calendar.events", trace.WithAttributes(
		attribute.String("day", start.Format("2006-01-02")),
	))
	defer span.End()

	countries := make([]string, 0, len(calendarCountries))
	for code := range calendarCountries {
		countries = append(countries, code)
	}
	sort.Strings(countries)

	data, _, err := c.http.do(ctx, request{
		method: http.MethodGet,
		url:    c.baseURL,
		query: url.Values{
			"from":      {start.Format("2006-01-02T15:04:05.000Z")},
			"to":        {end.Format("2006-01-02T15:04:05.000Z")},
			"countries": {strings.Join(countries, ",")},
		},
		headers: map[string]string{
			"Accept":  "application/json",
			"Origin":  "https://www.tradingview.com",
			"Referer": "https://www.tradingview.com/economic-calendar/",
		},
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("calendar %s: %w", start.Format("2006-01-02"), err)
	}

	var resp calendarResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("calendar decode: %w: %w", domain.ErrProviderUnavailable, err)
	}

	events := make([]domain.CalendarEvent, 0, len(resp.Result))
	skipped := 0
	for _, raw := range resp.Result {
		ev, ok := toCalendarEvent(raw)
		if !ok {
			skipped++
			continue
		}
		events = append(events, ev)
	}
	if skipped > 0 {
		log.Debug().Int("skipped", skipped).Msg("calendar events without known country or date")
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].Time.Before(events[j].Time) })
	return events, nil
}

func toCalendarEvent(raw calendarEvent) (domain.CalendarEvent, bool) {
	currency := strings.ToUpper(raw.Currency)
	if currency == "" {
		currency = calendarCountries[strings.ToUpper(raw.Country)]
	}
	if currency == "" {
		return domain.CalendarEvent{}, false
	}
	at, err := time.Parse(time.RFC3339, raw.Date)
	if err != nil {
		return domain.CalendarEvent{}, false
	}
	return domain.CalendarEvent{
		Time:     at.UTC(),
		Country:  strings.ToUpper(raw.Country),
		Currency: currency,
		Title:    strings.TrimSpace(raw.Title),
		Impact:   impactFor(raw.Importance),
	}, true
}

// TradingView encodes importance as -1, 0, 1.
func impactFor(n json.Number) domain.Impact {
	v, err := n.Int64()
	if err != nil {
		return domain.ImpactLow
	}
	switch {
	case v >= 1:
		return domain.ImpactHigh
	case v == 0:
		return domain.ImpactMedium
	default:
		return domain.ImpactLow
	}
}
