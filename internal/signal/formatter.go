package signal

import (
	"fmt"
	"html"
	"strings"

	"signal-relay/internal/domain"

	"github.com/rs/zerolog/log"
)

const (
	defaultStrategy = "TradingView Signal"
	missingVerdict  = "AI analysis could not be completed."
	divider         = "————————————————————"
)

// Format renders the Telegram HTML body for a signal. Every payload field is escaped.
// It never panics; on failure it falls back to a one-line summary.
func Format(sig domain.NormalizedSignal) (out string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("signal_id", sig.ID).Interface("panic", r).Msg("signal formatting failed")
			out = fallbackMessage(sig)
		}
	}()

	var b strings.Builder
	b.WriteString("<b>🎯 New Trading Signal 🎯</b>\n\n")
	fmt.Fprintf(&b, "<b>Instrument:</b> %s\n", html.EscapeString(sig.Instrument))
	fmt.Fprintf(&b, "<b>Action:</b> %s %s\n\n", sig.Direction, directionGlyph(sig.Direction))
	fmt.Fprintf(&b, "<b>Entry Price:</b> %s\n", html.EscapeString(sig.Entry))
	if sig.StopLoss != "" {
		fmt.Fprintf(&b, "<b>Stop Loss:</b> %s 🔴\n", html.EscapeString(sig.StopLoss))
	}
	for i, tp := range sig.TakeProfitLevels {
		fmt.Fprintf(&b, "<b>Take Profit %d:</b> %s 🎯\n", i+1, html.EscapeString(tp))
	}
	fmt.Fprintf(&b, "\n%s\n", html.EscapeString(sig.TimeframeLabel()))
	strategy := sig.Strategy
	if strategy == "" {
		strategy = defaultStrategy
	}
	b.WriteString(html.EscapeString(strategy) + "\n\n")
	b.WriteString(divider + "\n\n")
	b.WriteString("• Position size: 1-2% max\n")
	b.WriteString("• Use proper stop loss\n")
	b.WriteString("• Follow your trading plan\n\n")
	b.WriteString(divider + "\n\n")
	b.WriteString("<b>🤖 SigmaPips AI Verdict:</b>\n\n")
	b.WriteString(FormatVerdict(sig.SentimentVerdict))
	return b.String()
}

// FormatVerdict prefixes a sentiment verdict with its glyph. The verdict is escaped
// for HTML.
func FormatVerdict(verdict string) string {
	if strings.TrimSpace(verdict) == "" {
		return missingVerdict
	}
	lower := strings.ToLower(verdict)
	verdict = html.EscapeString(verdict)
	switch {
	case strings.Contains(lower, "does not align"), strings.Contains(lower, "contradicts"):
		return "❌ " + verdict
	case strings.Contains(lower, "aligns"):
		return "✅ " + verdict
	default:
		return verdict
	}
}

func directionGlyph(d domain.Direction) string {
	if d == domain.DirectionSell {
		return "🔴"
	}
	return "🟢"
}

func fallbackMessage(sig domain.NormalizedSignal) string {
	return fmt.Sprintf("New %s %s Signal", html.EscapeString(sig.Instrument), sig.Direction)
}
