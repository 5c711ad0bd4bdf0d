package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"signal-relay/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const DefaultChartImgURL = "https://api.chart-img.com"

// tradingViewSymbols overrides the exchange prefix for instruments that do not trade
// under the generic forex feed.
var tradingViewSymbols = map[string]string{
	"XAUUSD": "OANDA:XAUUSD",
	"XAGUSD": "OANDA:XAGUSD",
	"USOIL":  "TVC:USOIL",
	"UKOIL":  "TVC:UKOIL",
	"XTIUSD": "TVC:USOIL",
	"XBRUSD": "TVC:UKOIL",
	"WTIUSD": "TVC:USOIL",
	"BCOUSD": "TVC:UKOIL",
	"US30":   "CAPITALCOM:US30",
	"US500":  "CAPITALCOM:US500",
	"US100":  "CAPITALCOM:US100",
	"UK100":  "CAPITALCOM:UK100",
	"DE40":   "CAPITALCOM:DE40",
	"FR40":   "CAPITALCOM:FR40",
	"JP225":  "CAPITALCOM:J225",
	"AU200":  "CAPITALCOM:AU200",
	"HK50":   "CAPITALCOM:HK50",
}

var chartIntervals = map[domain.Timeframe]string{
	domain.Timeframe1m:  "1m",
	domain.Timeframe5m:  "5m",
	domain.Timeframe15m: "15m",
	domain.Timeframe30m: "30m",
	domain.Timeframe1h:  "1h",
	domain.Timeframe4h:  "4h",
	domain.Timeframe1d:  "1D",
	domain.Timeframe1w:  "1W",
}

// ChartImg renders TradingView snapshots through chart-img.com.
type ChartImg struct {
	tracer  trace.Tracer
	http    httpClient
	baseURL string
	apiKey  string
}

func NewChartImg(tracer trace.Tracer, baseURL, apiKey string, timeout time.Duration) *ChartImg {
	if baseURL == "" {
		baseURL = DefaultChartImgURL
	}
	return &ChartImg{
		tracer:  tracer,
		http:    newHTTPClient(timeout),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

type chartRequest struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	Theme    string `json:"theme"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

func (c *ChartImg) Chart(ctx context.Context, instrument string, tf domain.Timeframe) (*domain.Chart, error) {
	ctx, span := c.tracer.Start(ctx, "chart-img.chart", trace.WithAttributes(
		attribute.String("instrument", instrument),
		attribute.String("timeframe", tf.String()),
	))
	defer span.End()

	interval, ok := chartIntervals[tf]
	if !ok {
		interval = "1h"
	}

	data, contentType, err := c.http.do(ctx, request{
		method:  http.MethodPost,
		url:     c.baseURL + "/v2/tradingview/advanced-chart",
		headers: map[string]string{"x-api-key": c.apiKey},
		body: chartRequest{
			Symbol:   TradingViewSymbol(instrument),
			Interval: interval,
			Theme:    "dark",
			Width:    1280,
			Height:   720,
		},
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("chart %s %s: %w", instrument, tf, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("chart %s %s: %w: empty image", instrument, tf, domain.ErrProviderUnavailable)
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return &domain.Chart{Image: data, MimeType: contentType}, nil
}

// TradingViewSymbol maps an instrument to the exchange-qualified symbol chart-img expects.
func TradingViewSymbol(instrument string) string {
	instrument = strings.ToUpper(strings.TrimSpace(instrument))
	if s, ok := tradingViewSymbols[instrument]; ok {
		return s
	}
	for _, base := range domain.CryptoBases {
		if strings.HasPrefix(instrument, base) {
			return "BINANCE:" + strings.TrimSuffix(instrument, "USD") + "USDT"
		}
	}
	return "FX:" + instrument
}
