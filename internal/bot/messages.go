package bot

import (
	"fmt"
	"html"
	"slices"
	"strings"

	"signal-relay/internal/chat"
	"signal-relay/internal/domain"
)

const (
	welcomeMessage = `🚀 <b>Sigmapips AI - Main Menu</b> 🚀

Choose an option to access advanced trading support:

📊 Services:
• <b>Technical Analysis</b> – Real-time chart analysis and key levels
• <b>Market Sentiment</b> – Understand market trends and sentiment
• <b>Economic Calendar</b> – Stay updated on market-moving events
• <b>Trading Signals</b> – Get precise entry/exit points for your favorite pairs

Select your option to continue:`

	paymentFailedMessage = `❗ <b>Subscription Payment Failed</b> ❗

Your subscription payment could not be processed and your service has been deactivated.

To continue using Sigmapips AI and receive trading signals, please reactivate your subscription by clicking the button below.`

	subscriptionMessage = `🚀 <b>Welcome to Sigmapips AI!</b> 🚀

To access all features, you need an active subscription:

📊 <b>Trading Signals</b>
• Access to all trading signals (Forex, Crypto, Commodities, Indices)
• Advanced timeframe analysis (1m, 15m, 1h, 4h)
• Detailed chart analysis for each signal

Click the button below to subscribe:`

	helpMessage = `Available commands:
/menu - Show main menu
/start - Show main menu
/help - Show this help message`

	chooseAnalysisMessage   = "Select your analysis type:"
	chooseSignalsMessage    = "What would you like to do with trading signals?"
	chooseMarketMessage     = "Select a market:"
	chooseStyleMessage      = "Select your trading style:"
	signalAnalysisMessage   = "<b>%s</b>: choose the analysis you want for this signal."
	genericErrorMessage     = "An error occurred processing your request. Please try again."
	unrecognizedMessage     = "Sorry, I did not recognize that action."
	instrumentMissMessage   = "Could not find the instrument for this signal. Please choose an analysis type again."
	detailsMissingMessage   = "Signal details are no longer available."
	providerFailedMessage   = "⚠️ %s is temporarily unavailable for %s. Please try again later."
	noSubscriptionsMessage  = "You have no signal subscriptions yet."
	subscriptionsHeader     = "<b>Your signal subscriptions:</b>\n\n"
	subscribedMessage       = "✅ Subscribed to <b>%s</b> signals (%s)."
	unsubscribedMessage     = "Removed <b>%s</b> from your signals."
	emptyCalendarMessage    = "No economic events found for today."
	calendarHeader          = "<b>📅 Economic Calendar</b>\n\n"
	calendarLegend          = "<b>Impact:</b> 🔴 High   🟠 Medium   🟢 Low\n\n"
	chooseInstrumentMessage = "Select an instrument:"
	loadingCaption          = "⏳ %s for <b>%s</b> is loading..."
)

var impactEmoji = map[domain.Impact]string{
	domain.ImpactHigh:   "🔴",
	domain.ImpactMedium: "🟠",
	domain.ImpactLow:    "🟢",
}

var analysisTitles = map[domain.AnalysisType]string{
	domain.AnalysisTechnical: "Technical analysis",
	domain.AnalysisSentiment: "Market sentiment",
	domain.AnalysisCalendar:  "The economic calendar",
}

// formatCalendar renders events in time order. Events for the instrument's currencies
// are marked and their country shown in bold.
func formatCalendar(events []domain.CalendarEvent, instrument string) string {
	if len(events) == 0 {
		return calendarHeader + emptyCalendarMessage
	}
	relevant := domain.InstrumentCurrencies(instrument)

	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b domain.CalendarEvent) int { return a.Time.Compare(b.Time) })

	var sb strings.Builder
	sb.WriteString(calendarHeader)
	if instrument != "" {
		fmt.Fprintf(&sb, "<b>%s</b>\n\n", html.EscapeString(instrument))
	}
	sb.WriteString(calendarLegend)
	for _, ev := range sorted {
		country := html.EscapeString(ev.Currency)
		prefix := ""
		if slices.Contains(relevant, ev.Currency) {
			country = "<b>" + country + "</b>"
			prefix = "➤ "
		}
		fmt.Fprintf(&sb, "%s%s - 「%s」 - %s %s\n",
			prefix, ev.Time.UTC().Format("15:04"), country, html.EscapeString(ev.Title), impactEmoji[ev.Impact])
	}
	return strings.TrimRight(sb.String(), "\n")
}

// formatSentiment wraps provider output; only the formatting tags Telegram supports survive.
func formatSentiment(instrument, body string) string {
	return fmt.Sprintf("<b>🧠 Market Sentiment: %s</b>\n\n%s", html.EscapeString(instrument), chat.SanitizeHTML(body))
}

func formatTechnicalCaption(instrument string, tf domain.Timeframe, summary string) string {
	header := fmt.Sprintf("<b>📈 %s - %s</b>", html.EscapeString(instrument), tf.Display())
	if summary == "" {
		return header
	}
	return header + "\n\n" + chat.SanitizeHTML(summary)
}

func formatSubscriptions(subs []domain.Subscription) string {
	if len(subs) == 0 {
		return noSubscriptionsMessage
	}
	var sb strings.Builder
	sb.WriteString(subscriptionsHeader)
	for _, s := range subs {
		tf := "all timeframes"
		if !s.Timeframe.IsZero() {
			tf = s.Timeframe.Display()
		}
		fmt.Fprintf(&sb, "• %s (%s)\n", html.EscapeString(s.Instrument), tf)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func providerFailed(kind domain.AnalysisType, instrument string) string {
	return fmt.Sprintf(providerFailedMessage, analysisTitles[kind], html.EscapeString(instrument))
}
