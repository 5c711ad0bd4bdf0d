package bot

import (
	"strings"

	"signal-relay/internal/chat"
	"signal-relay/internal/domain"
	"signal-relay/internal/session"
)

// Callback tokens carried by inline buttons.
const (
	tokenMenuAnalyse         = "menu_analyse"
	tokenMenuSignals         = "menu_signals"
	tokenAnalysisTechnical   = "analysis_technical"
	tokenAnalysisSentiment   = "analysis_sentiment"
	tokenAnalysisCalendar    = "analysis_calendar"
	tokenSignalTechnical     = "signal_technical"
	tokenSignalSentiment     = "signal_sentiment"
	tokenSignalCalendar      = "signal_calendar"
	tokenSignalsAdd          = "signals_add"
	tokenSignalsManage       = "signals_manage"
	tokenBackMenu            = "back_menu"
	tokenBackAnalysis        = "back_analysis"
	tokenBackToAnalysis      = "back_to_analysis"
	tokenBackMarket          = "back_market"
	tokenBackInstrument      = "back_instrument"
	tokenBackSignals         = "back_signals"
	tokenBackToSignal        = "back_to_signal"
	tokenBackToSignalAnalyze = "back_to_signal_analysis"

	prefixMarket       = "market_"
	prefixInstrument   = "instrument_"
	prefixStyle        = "style_"
	prefixAnalyze      = "analyze_from_signal_"
	prefixRemoveSignal = "remove_signal_"

	// Telegram caps callback_data at 64 bytes.
	maxCallbackData = 64
)

// Instrument button actions.
const (
	actionChart     = "chart"
	actionSentiment = "sentiment"
	actionCalendar  = "calendar"
	actionSignals   = "signals"
)

const backButton = "⬅️ Back"

func startKeyboard() chat.Keyboard {
	return chat.Keyboard{
		chat.Row(chat.CallbackButton("🔍 Analyze Market", tokenMenuAnalyse)),
		chat.Row(chat.CallbackButton("📊 Trading Signals", tokenMenuSignals)),
	}
}

func analysisKeyboard() chat.Keyboard {
	return chat.Keyboard{
		chat.Row(chat.CallbackButton("📈 Technical Analysis", tokenAnalysisTechnical)),
		chat.Row(chat.CallbackButton("🧠 Market Sentiment", tokenAnalysisSentiment)),
		chat.Row(chat.CallbackButton("📅 Economic Calendar", tokenAnalysisCalendar)),
		chat.Row(chat.CallbackButton(backButton, tokenBackMenu)),
	}
}

func signalAnalysisKeyboard() chat.Keyboard {
	return chat.Keyboard{
		chat.Row(chat.CallbackButton("📈 Technical Analysis", tokenSignalTechnical)),
		chat.Row(chat.CallbackButton("🧠 Market Sentiment", tokenSignalSentiment)),
		chat.Row(chat.CallbackButton("📅 Economic Calendar", tokenSignalCalendar)),
		chat.Row(chat.CallbackButton(backButton, tokenBackToSignal)),
	}
}

func signalsKeyboard() chat.Keyboard {
	return chat.Keyboard{
		chat.Row(chat.CallbackButton("➕ Add New Pairs", tokenSignalsAdd)),
		chat.Row(chat.CallbackButton("⚙️ Manage Signals", tokenSignalsManage)),
		chat.Row(chat.CallbackButton(backButton, tokenBackMenu)),
	}
}

var marketLabels = map[domain.Market]string{
	domain.MarketForex:       "Forex",
	domain.MarketCrypto:      "Crypto",
	domain.MarketCommodities: "Commodities",
	domain.MarketIndices:     "Indices",
}

// marketKeyboard lists the markets; in the signals context buttons subscribe instead of analyze.
func marketKeyboard(signalsContext bool) chat.Keyboard {
	suffix, back := "", tokenBackAnalysis
	if signalsContext {
		suffix, back = "_"+actionSignals, tokenBackSignals
	}
	kb := make(chat.Keyboard, 0, len(domain.Markets)+1)
	for _, m := range domain.Markets {
		kb = append(kb, chat.Row(chat.CallbackButton(marketLabels[m], prefixMarket+string(m)+suffix)))
	}
	return append(kb, chat.Row(chat.CallbackButton(backButton, back)))
}

func instrumentKeyboard(market domain.Market, action string) chat.Keyboard {
	instruments := domain.MarketInstruments[market]
	kb := make(chat.Keyboard, 0, len(instruments)/3+2)
	var row []chat.Button
	for _, inst := range instruments {
		label := inst
		if l, ok := domain.InstrumentLabels[inst]; ok {
			label = l
		}
		row = append(row, chat.CallbackButton(label, prefixInstrument+inst+"_"+action))
		if len(row) == 3 {
			kb = append(kb, row)
			row = nil
		}
	}
	if len(row) > 0 {
		kb = append(kb, row)
	}
	return append(kb, chat.Row(chat.CallbackButton(backButton, tokenBackMarket)))
}

var styleLabels = map[string]string{
	"test":     "⚡ Test (1m)",
	"scalp":    "🏃 Scalp (15m)",
	"intraday": "📊 Intraday (1h)",
	"swing":    "🌊 Swing (4h)",
}

func styleKeyboard() chat.Keyboard {
	kb := make(chat.Keyboard, 0, len(domain.Styles)+1)
	for _, style := range domain.Styles {
		kb = append(kb, chat.Row(chat.CallbackButton(styleLabels[style], prefixStyle+style)))
	}
	return append(kb, chat.Row(chat.CallbackButton(backButton, tokenBackInstrument)))
}

// resultKeyboard leads back to wherever the result was requested from.
func resultKeyboard(s *session.Context) chat.Keyboard {
	if s.FromSignal {
		return chat.Keyboard{chat.Row(chat.CallbackButton(backButton, tokenBackToSignalAnalyze))}
	}
	return chat.Keyboard{chat.Row(chat.CallbackButton(backButton, tokenBackInstrument))}
}

func backToMenuKeyboard() chat.Keyboard {
	return chat.Keyboard{chat.Row(chat.CallbackButton(backButton, tokenBackMenu))}
}

func backToSignalsKeyboard() chat.Keyboard {
	return chat.Keyboard{chat.Row(chat.CallbackButton(backButton, tokenBackSignals))}
}

// errorKeyboard picks the back target for a failure in state.
func errorKeyboard(s *session.Context) chat.Keyboard {
	switch {
	case s == nil:
		return backToMenuKeyboard()
	case s.FromSignal:
		return chat.Keyboard{chat.Row(chat.CallbackButton(backButton, tokenBackToSignalAnalyze))}
	case s.IsSignalsContext:
		return backToSignalsKeyboard()
	default:
		return backToMenuKeyboard()
	}
}

func manageKeyboard(subs []domain.Subscription) chat.Keyboard {
	kb := make(chat.Keyboard, 0, len(subs)+1)
	seen := make(map[string]struct{}, len(subs))
	for _, sub := range subs {
		if _, dup := seen[sub.Instrument]; dup {
			continue
		}
		seen[sub.Instrument] = struct{}{}
		kb = append(kb, chat.Row(chat.CallbackButton("🗑 "+sub.Instrument, prefixRemoveSignal+sub.Instrument)))
	}
	return append(kb, chat.Row(chat.CallbackButton(backButton, tokenBackSignals)))
}

func reactivateKeyboard(url string) chat.Keyboard {
	if url == "" {
		return nil
	}
	return chat.Keyboard{chat.Row(chat.URLButton("🔄 Reactivate Subscription", url))}
}

func subscribeKeyboard(url string) chat.Keyboard {
	if url == "" {
		return nil
	}
	return chat.Keyboard{chat.Row(chat.URLButton("🔥 Subscribe", url))}
}

// analyzeKeyboard is attached to every delivered signal.
func analyzeKeyboard(sig domain.NormalizedSignal) chat.Keyboard {
	return chat.Keyboard{chat.Row(chat.CallbackButton("🔍 Analyze Market", analyzeToken(sig.Instrument, sig.ID)))}
}

// analyzeToken encodes the signal root. Ids that would overflow callback data are left
// out; the instrument alone still roots the session.
func analyzeToken(instrument, signalID string) string {
	token := prefixAnalyze + instrument + "_" + signalID
	if len(token) > maxCallbackData {
		return prefixAnalyze + instrument
	}
	return token
}

func parseAnalyzeToken(token string) (instrument, signalID string, ok bool) {
	rest, found := strings.CutPrefix(token, prefixAnalyze)
	if !found || rest == "" {
		return "", "", false
	}
	instrument, signalID, _ = strings.Cut(rest, "_")
	if instrument == "" {
		return "", "", false
	}
	return strings.ToUpper(instrument), signalID, true
}

// parseInstrumentToken splits instrument_{SYM}_{action}.
func parseInstrumentToken(token string) (instrument, action string, ok bool) {
	rest, found := strings.CutPrefix(token, prefixInstrument)
	if !found {
		return "", "", false
	}
	i := strings.LastIndex(rest, "_")
	if i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	instrument, action = strings.ToUpper(rest[:i]), rest[i+1:]
	switch action {
	case actionChart, actionSentiment, actionCalendar, actionSignals:
		return instrument, action, true
	}
	return "", "", false
}

// parseMarketToken splits market_{market}[_{suffix}].
func parseMarketToken(token string) (market domain.Market, suffix string, ok bool) {
	rest, found := strings.CutPrefix(token, prefixMarket)
	if !found {
		return "", "", false
	}
	name, suffix, _ := strings.Cut(rest, "_")
	m, valid := domain.ParseMarket(name)
	if !valid {
		return "", "", false
	}
	switch suffix {
	case "", actionSignals, actionSentiment, actionCalendar, actionChart:
		return m, suffix, true
	}
	return "", "", false
}
