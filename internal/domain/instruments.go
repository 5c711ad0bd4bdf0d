package domain

var CommodityInstruments = []string{"XAUUSD", "XAGUSD", "WTIUSD", "BCOUSD", "USOIL", "UKOIL", "XTIUSD", "XBRUSD"}

// CryptoBases are matched as substrings, so "BTCEUR" and "ETHBTC" are both crypto.
var CryptoBases = []string{"BTC", "ETH", "XRP", "SOL", "BNB", "ADA", "DOT", "LINK"}

var IndexInstruments = []string{"US30", "US500", "US100", "UK100", "DE40", "FR40", "JP225", "AU200", "HK50"}

// MarketInstruments lists what the menus offer per market.
var MarketInstruments = map[Market][]string{
	MarketForex:       {"EURUSD", "GBPUSD", "USDJPY", "AUDUSD", "USDCAD", "EURGBP"},
	MarketCrypto:      {"BTCUSD", "ETHUSD", "XRPUSD", "SOLUSD", "BNBUSD", "DOTUSD"},
	MarketCommodities: {"XAUUSD", "XAGUSD", "USOIL"},
	MarketIndices:     {"US30", "US500", "US100", "UK100", "DE40"},
}

// InstrumentLabels overrides button captions.
var InstrumentLabels = map[string]string{
	"XAUUSD": "GOLD",
	"XAGUSD": "SILVER",
	"USOIL":  "OIL",
}

var MajorCurrencies = []string{"USD", "EUR", "GBP", "JPY", "CHF", "AUD", "NZD", "CAD"}

var instrumentCurrencies = map[string][]string{
	"EURUSD": {"EUR", "USD"},
	"GBPUSD": {"GBP", "USD"},
	"USDJPY": {"USD", "JPY"},
	"USDCHF": {"USD", "CHF"},
	"AUDUSD": {"AUD", "USD"},
	"NZDUSD": {"NZD", "USD"},
	"USDCAD": {"USD", "CAD"},
	"EURGBP": {"EUR", "GBP"},
	"EURJPY": {"EUR", "JPY"},
	"GBPJPY": {"GBP", "JPY"},
	"US30":   {"USD"},
	"US100":  {"USD"},
	"US500":  {"USD"},
	"UK100":  {"GBP"},
	"DE40":   {"EUR"},
	"FR40":   {"EUR"},
	"JP225":  {"JPY"},
	"AU200":  {"AUD"},
	"HK50":   {"HKD"},
	"XAUUSD": {"USD", "XAU"},
	"XAGUSD": {"USD", "XAG"},
	"USOIL":  {"USD"},
	"UKOIL":  {"USD", "GBP"},
	"BTCUSD": {"USD", "BTC"},
	"ETHUSD": {"USD", "ETH"},
	"XRPUSD": {"USD", "XRP"},
}

// InstrumentCurrencies returns the currencies whose calendar events move an instrument.
// Unknown six-letter codes are split into base/quote; anything else falls back to the majors.
func InstrumentCurrencies(instrument string) []string {
	if cur, ok := instrumentCurrencies[instrument]; ok {
		return append([]string(nil), cur...)
	}
	if len(instrument) == 6 {
		return []string{instrument[:3], instrument[3:]}
	}
	return append([]string(nil), MajorCurrencies...)
}

var defaultSignalTimeframes = map[string]Timeframe{
	"AUDJPY": Timeframe1h, "AUDCHF": Timeframe1h, "EURCAD": Timeframe1h, "EURGBP": Timeframe1h,
	"GBPCHF": Timeframe1h, "HK50": Timeframe1h, "NZDJPY": Timeframe1h, "USDCHF": Timeframe1h,
	"USDJPY": Timeframe1h, "XRPUSD": Timeframe1h,

	"AUDCAD": Timeframe4h, "AU200": Timeframe4h, "CADCHF": Timeframe4h, "EURCHF": Timeframe4h,
	"EURUSD": Timeframe4h, "GBPCAD": Timeframe4h, "LINKUSD": Timeframe4h, "NZDCHF": Timeframe4h,

	"DOGEUSD": Timeframe15m, "GBPNZD": Timeframe15m, "NZDUSD": Timeframe15m, "SOLUSD": Timeframe15m,
	"UK100": Timeframe15m, "XAUUSD": Timeframe15m, "XAGUSD": Timeframe15m,

	"BNBUSD": Timeframe30m, "DOTUSD": Timeframe30m, "ETHUSD": Timeframe30m, "EURAUD": Timeframe30m,
	"EURJPY": Timeframe30m, "GBPAUD": Timeframe30m, "GBPUSD": Timeframe30m, "NZDCAD": Timeframe30m,
	"US30": Timeframe30m, "US500": Timeframe30m, "USDCAD": Timeframe30m, "XLMUSD": Timeframe30m,
	"XTIUSD": Timeframe30m, "DE40": Timeframe30m, "BTCUSD": Timeframe30m, "US100": Timeframe30m,
	"USOIL": Timeframe30m,
}

// DefaultSignalTimeframe is the timeframe a new subscription listens on.
func DefaultSignalTimeframe(instrument string) Timeframe {
	if tf, ok := defaultSignalTimeframes[instrument]; ok {
		return tf
	}
	return Timeframe1h
}
