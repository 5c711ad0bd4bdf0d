package mcp

import (
	"testing"

	"signal-relay/internal/domain"
)

func TestNormalizeInstrument(t *testing.T) {
	s, err := normalizeInstrument(" eurusd ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != "EURUSD" {
		t.Fatalf("expected EURUSD, got %s", s)
	}

	for _, bad := range []string{"", "EUR/USD", "eur usd"} {
		if _, err := normalizeInstrument(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestNormalizeRecentLimit(t *testing.T) {
	cases := map[int]int{0: defaultRecentLimit, -5: defaultRecentLimit, 10: 10, 999: maxRecentLimit}
	for in, want := range cases {
		if got := normalizeRecentLimit(in); got != want {
			t.Fatalf("normalizeRecentLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestSubmitInputPayload(t *testing.T) {
	p := signalsSubmitInput{Instrument: "BTCUSD", Direction: "sell", Entry: " 64000 ", TP2: "60000"}.payload()
	if len(p) != 4 {
		t.Fatalf("expected 4 keys, got %+v", p)
	}
	if p["entry"] != "64000" || p["tp2"] != "60000" {
		t.Fatalf("unexpected payload %+v", p)
	}
}

func TestClassify(t *testing.T) {
	out, err := classify("btcusd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Market != string(domain.MarketCrypto) {
		t.Fatalf("expected crypto, got %s", out.Market)
	}
	if len(out.Currencies) == 0 {
		t.Fatal("expected currencies")
	}
}
