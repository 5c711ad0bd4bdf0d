// Package session holds per-conversation navigation state.
package session

import (
	"regexp"
	"strings"
	"time"

	"signal-relay/internal/domain"
)

type State string

const (
	StateMenu             State = "MENU"
	StateChooseAnalysis   State = "CHOOSE_ANALYSIS"
	StateChooseSignals    State = "CHOOSE_SIGNALS"
	StateChooseMarket     State = "CHOOSE_MARKET"
	StateChooseInstrument State = "CHOOSE_INSTRUMENT"
	StateChooseStyle      State = "CHOOSE_STYLE"
	StateShowResult       State = "SHOW_RESULT"
	StateSignalDetails    State = "SIGNAL_DETAILS"
)

// Context is the navigation state of one conversation. Live signal fields may change
// during a sub-flow; the *Backup fields and OriginalSignalMessage change only when a new
// signal root is entered or the session is cleared to the menu.
type Context struct {
	ConversationID int64 `json:"conversation_id"`
	State          State `json:"state"`

	CurrentInstrument   string              `json:"current_instrument,omitempty"`
	CurrentMarket       domain.Market       `json:"current_market,omitempty"`
	CurrentAnalysisType domain.AnalysisType `json:"current_analysis_type,omitempty"`
	CurrentTimeframe    domain.Timeframe    `json:"current_timeframe,omitempty"`

	FromSignal       bool `json:"from_signal"`
	IsSignalsContext bool `json:"is_signals_context"`

	SignalID         string `json:"signal_id,omitempty"`
	SignalInstrument string `json:"signal_instrument,omitempty"`

	SignalIDBackup         string           `json:"signal_id_backup,omitempty"`
	SignalInstrumentBackup string           `json:"signal_instrument_backup,omitempty"`
	SignalTimeframeBackup  domain.Timeframe `json:"signal_timeframe_backup,omitempty"`
	OriginalSignalMessage  string           `json:"original_signal_message,omitempty"`

	// Epoch increases on every handled action and whenever the session is re-rooted or
	// cleared.
	Epoch     uint64    `json:"epoch"`
	UpdatedAt time.Time `json:"updated_at"`
}

func New(conversationID int64) *Context {
	return &Context{ConversationID: conversationID, State: StateMenu}
}

// ClearToMenu resets everything, backups included.
func (c *Context) ClearToMenu() {
	*c = Context{ConversationID: c.ConversationID, State: StateMenu, Epoch: c.Epoch + 1}
}

// ClearToSignalsMenu resets the working selection but keeps the signal backups so a
// later return to the signal still works.
func (c *Context) ClearToSignalsMenu() {
	kept := Context{
		ConversationID:         c.ConversationID,
		State:                  StateChooseSignals,
		IsSignalsContext:       true,
		SignalIDBackup:         c.SignalIDBackup,
		SignalInstrumentBackup: c.SignalInstrumentBackup,
		SignalTimeframeBackup:  c.SignalTimeframeBackup,
		OriginalSignalMessage:  c.OriginalSignalMessage,
		Epoch:                  c.Epoch + 1,
	}
	*c = kept
}

// EnterSignalRoot roots the session at a delivered signal. Re-entering the same signal
// leaves the backups as first captured; a different signal replaces all four together.
func (c *Context) EnterSignalRoot(instrument, signalID string, timeframe domain.Timeframe, message string) {
	backups := [4]string{c.SignalIDBackup, c.SignalInstrumentBackup, string(c.SignalTimeframeBackup), c.OriginalSignalMessage}
	sameRoot := signalID != "" && c.SignalIDBackup == signalID

	*c = Context{ConversationID: c.ConversationID, Epoch: c.Epoch + 1}
	c.State = StateChooseAnalysis
	c.FromSignal = true
	c.SignalID = signalID
	c.SignalInstrument = instrument
	c.CurrentInstrument = instrument
	c.CurrentTimeframe = timeframe

	if sameRoot {
		c.SignalIDBackup = backups[0]
		c.SignalInstrumentBackup = firstNonEmpty(backups[1], instrument)
		c.SignalTimeframeBackup = domain.Timeframe(firstNonEmpty(backups[2], string(timeframe)))
		c.OriginalSignalMessage = firstNonEmpty(backups[3], message)
		return
	}
	c.SignalIDBackup = signalID
	c.SignalInstrumentBackup = instrument
	c.SignalTimeframeBackup = timeframe
	c.OriginalSignalMessage = message
}

// RestoreSignalRoot copies the backups into the live fields, e.g. after returning to
// the signal from a sub-flow.
func (c *Context) RestoreSignalRoot() {
	c.FromSignal = true
	c.IsSignalsContext = false
	c.SignalID = c.SignalIDBackup
	c.SignalInstrument = c.SignalInstrumentBackup
	c.CurrentInstrument = c.SignalInstrumentBackup
	c.CurrentTimeframe = c.SignalTimeframeBackup
	c.CurrentAnalysisType = ""
}

// BeginTurn marks the start of a new user action. A result guarded before the turn no
// longer matches once the turn is saved.
func (c *Context) BeginTurn() {
	c.Epoch++
}

// IsSignalRooted reports whether there is any signal to return to.
func (c *Context) IsSignalRooted() bool {
	return c.FromSignal || c.SignalIDBackup != "" || c.OriginalSignalMessage != ""
}

// Guard captures what a slow provider call was issued for.
type Guard struct {
	Epoch      uint64
	SignalID   string
	Instrument string
}

func (c *Context) Guard() Guard {
	return Guard{Epoch: c.Epoch, SignalID: c.SignalID, Instrument: c.CurrentInstrument}
}

// Matches reports whether the session is still where the guarded call left it.
func (c *Context) Matches(g Guard) bool {
	return c.Epoch == g.Epoch && c.SignalID == g.SignalID && c.CurrentInstrument == g.Instrument
}

var instrumentPattern = regexp.MustCompile(`Instrument:(?:\s*</b>)?\s*([A-Za-z0-9]+)`)

// ExtractInstrument finds the "Instrument: XYZ" line of a rendered signal.
func ExtractInstrument(message string) (string, bool) {
	m := instrumentPattern.FindStringSubmatch(message)
	if len(m) < 2 {
		return "", false
	}
	return strings.ToUpper(m[1]), true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
