package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"runtime/debug"
	"strings"
	"time"

	"signal-relay/internal/chat"
	"signal-relay/internal/domain"
	"signal-relay/internal/fallback"
	"signal-relay/internal/session"
	"signal-relay/internal/signal"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultProviderTimeout = 30 * time.Second

// Action is one button press in a conversation. Message is the message carrying the
// button; its Text is the plain text or caption as the platform reports it.
type Action struct {
	ConversationID int64
	UserID         int64
	Token          string
	Message        chat.MessageRef

	held *heldLock
}

// heldLock is the conversation lock owned by one HandleAction call. Slow provider calls
// release it so a newer action can move the session on.
type heldLock struct {
	locker *session.Locker
	id     int64
	unlock func()
}

func (h *heldLock) acquire() {
	if h != nil && h.unlock == nil {
		h.unlock = h.locker.Lock(h.id)
	}
}

func (h *heldLock) release() {
	if h != nil && h.unlock != nil {
		h.unlock()
		h.unlock = nil
	}
}

type SessionStore interface {
	Load(ctx context.Context, conversationID int64) (*session.Context, error)
	Save(ctx context.Context, c *session.Context) error
}

type screen interface {
	Render(ctx context.Context, chatID int64, target chat.MessageRef, content chat.Content) (chat.MessageRef, error)
	Send(ctx context.Context, chatID int64, content chat.Content) (chat.MessageRef, error)
}

type ChartProvider interface {
	Chart(ctx context.Context, instrument string, tf domain.Timeframe) (*domain.Chart, error)
}

type TechnicalAnalyst interface {
	TechnicalSummary(ctx context.Context, instrument string, tf domain.Timeframe) (string, error)
}

type SentimentProvider interface {
	Sentiment(ctx context.Context, instrument string) (string, error)
}

type CalendarProvider interface {
	Events(ctx context.Context, day time.Time) ([]domain.CalendarEvent, error)
}

type SubscriptionStore interface {
	AddSubscription(ctx context.Context, userID int64, instrument string, tf domain.Timeframe) error
	ListSubscriptions(ctx context.Context, userID int64) ([]domain.Subscription, error)
	RemoveSubscription(ctx context.Context, userID int64, instrument string) (bool, error)
}

// UserRegistrar records users the first time they open the bot.
type UserRegistrar interface {
	EnsureUser(ctx context.Context, userID int64) error
}

// Gate decides whether a user may use subscriber-only features.
type Gate interface {
	Eligible(ctx context.Context, userID int64) (bool, error)
}

// Providers are optional; a missing one reports the analysis as unavailable.
type Providers struct {
	Chart     ChartProvider
	Technical TechnicalAnalyst
	Sentiment SentimentProvider
	Calendar  CalendarProvider
}

type MachineDeps struct {
	Tracer        trace.Tracer
	Logger        zerolog.Logger
	Sessions      SessionStore
	Locker        *session.Locker
	Screen        screen
	Registry      SignalRegistry
	Providers     Providers
	Subscriptions SubscriptionStore
	Gate          Gate
	Users         UserRegistrar

	RequireSubscription bool
	SubscribeURL        string
	ProviderTimeout     time.Duration
	// LoadingAnimationURL is shown while a provider call runs; empty disables it.
	LoadingAnimationURL string
}

// Machine drives the inline-keyboard conversation.
type Machine struct {
	tracer        trace.Tracer
	logger        zerolog.Logger
	sessions      SessionStore
	locker        *session.Locker
	screen        screen
	registry      SignalRegistry
	providers     Providers
	subscriptions SubscriptionStore
	gate          Gate
	users         UserRegistrar

	requireSubscription bool
	subscribeURL        string
	providerTimeout     time.Duration
	loadingURL          string
	now                 func() time.Time

	exact map[string]handlerFunc
}

type handlerFunc func(ctx context.Context, a Action, s *session.Context) (session.State, error)

func NewMachine(deps MachineDeps) *Machine {
	if deps.ProviderTimeout <= 0 {
		deps.ProviderTimeout = defaultProviderTimeout
	}
	if deps.Locker == nil {
		deps.Locker = session.NewLocker()
	}
	if deps.Sessions == nil {
		deps.Sessions = session.NewMemoryStore()
	}
	m := &Machine{
		tracer:              deps.Tracer,
		logger:              deps.Logger,
		sessions:            deps.Sessions,
		locker:              deps.Locker,
		screen:              deps.Screen,
		registry:            deps.Registry,
		providers:           deps.Providers,
		subscriptions:       deps.Subscriptions,
		gate:                deps.Gate,
		users:               deps.Users,
		requireSubscription: deps.RequireSubscription,
		subscribeURL:        deps.SubscribeURL,
		providerTimeout:     deps.ProviderTimeout,
		loadingURL:          deps.LoadingAnimationURL,
		now:                 time.Now,
	}
	m.exact = map[string]handlerFunc{
		tokenMenuAnalyse:         m.menuAnalyse,
		tokenMenuSignals:         m.menuSignals,
		tokenAnalysisTechnical:   m.chooseAnalysis(domain.AnalysisTechnical),
		tokenAnalysisSentiment:   m.chooseAnalysis(domain.AnalysisSentiment),
		tokenAnalysisCalendar:    m.chooseAnalysis(domain.AnalysisCalendar),
		tokenSignalTechnical:     m.signalAnalysis(domain.AnalysisTechnical),
		tokenSignalSentiment:     m.signalAnalysis(domain.AnalysisSentiment),
		tokenSignalCalendar:      m.signalAnalysis(domain.AnalysisCalendar),
		tokenSignalsAdd:          m.signalsAdd,
		tokenSignalsManage:       m.signalsManage,
		tokenBackMenu:            m.backMenu,
		tokenBackAnalysis:        m.backAnalysis,
		tokenBackToAnalysis:      m.backAnalysis,
		tokenBackMarket:          m.backMarket,
		tokenBackInstrument:      m.backInstrument,
		tokenBackSignals:         m.backSignals,
		tokenBackToSignal:        m.backToSignal,
		tokenBackToSignalAnalyze: m.backToSignalAnalysis,
	}
	return m
}

// HandleAction applies one button press and returns the resulting state. It never
// panics; failures reset the conversation to the menu with an error message.
func (m *Machine) HandleAction(ctx context.Context, a Action) (state session.State) {
	a.held = &heldLock{locker: m.locker, id: a.ConversationID}
	a.held.acquire()
	defer a.held.release()

	ctx, span := m.tracer.Start(ctx, "conversation.handle-action", trace.WithAttributes(
		attribute.Int64("chat_id", a.ConversationID),
		attribute.String("token", a.Token),
	))
	defer span.End()

	s, err := m.sessions.Load(ctx, a.ConversationID)
	if err != nil {
		m.logger.Warn().Err(err).Int64("chat_id", a.ConversationID).Msg("session load failed, starting fresh")
		s = session.New(a.ConversationID)
	}
	s.BeginTurn()

	defer func() {
		if r := recover(); r != nil {
			a.held.acquire()
			m.logger.Error().
				Int64("chat_id", a.ConversationID).
				Str("token", a.Token).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("conversation handler panicked")
			state = m.fail(ctx, a, s)
		}
	}()

	state, err = m.dispatch(ctx, a, s)
	if err != nil {
		span.RecordError(err)
		m.logger.Error().Err(err).Int64("chat_id", a.ConversationID).Str("token", a.Token).Msg("conversation action failed")
		return m.fail(ctx, a, s)
	}
	span.SetAttributes(attribute.String("state", string(state)))
	return state
}

// ShowMenu answers /start and /menu with a fresh main menu, or the subscription prompt
// when the user is not entitled.
func (m *Machine) ShowMenu(ctx context.Context, conversationID, userID int64) session.State {
	unlock := m.locker.Lock(conversationID)
	defer unlock()

	if m.users != nil {
		if err := m.users.EnsureUser(ctx, userID); err != nil {
			m.logger.Warn().Err(err).Int64("user_id", userID).Msg("user registration failed")
		}
	}

	s, err := m.sessions.Load(ctx, conversationID)
	if err != nil {
		s = session.New(conversationID)
	}
	s.ClearToMenu()
	if err := m.sessions.Save(ctx, s); err != nil {
		m.logger.Warn().Err(err).Int64("chat_id", conversationID).Msg("session save failed")
	}

	content := chat.Text(welcomeMessage, startKeyboard())
	if !m.entitled(ctx, userID) {
		content = chat.Text(subscriptionMessage, subscribeKeyboard(m.subscribeURL))
	}
	if _, err := m.screen.Send(ctx, conversationID, content); err != nil {
		m.logger.Error().Err(err).Int64("chat_id", conversationID).Msg("failed to send menu")
	}
	return session.StateMenu
}

func (m *Machine) dispatch(ctx context.Context, a Action, s *session.Context) (session.State, error) {
	if h, ok := m.exact[a.Token]; ok {
		return h(ctx, a, s)
	}
	switch {
	case strings.HasPrefix(a.Token, prefixAnalyze):
		return m.analyzeFromSignal(ctx, a, s)
	case strings.HasPrefix(a.Token, prefixMarket):
		return m.chooseMarket(ctx, a, s)
	case strings.HasPrefix(a.Token, prefixInstrument):
		return m.chooseInstrument(ctx, a, s)
	case strings.HasPrefix(a.Token, prefixStyle):
		return m.chooseStyle(ctx, a, s)
	case strings.HasPrefix(a.Token, prefixRemoveSignal):
		return m.removeSignal(ctx, a, s)
	}
	return m.unrecognized(ctx, a, s)
}

// show renders content over the action's message and persists the new state.
func (m *Machine) show(ctx context.Context, a Action, s *session.Context, state session.State, content chat.Content) (session.State, error) {
	s.State = state
	if _, err := m.screen.Render(ctx, a.ConversationID, a.Message, content); err != nil {
		return state, fmt.Errorf("render %s: %w", state, err)
	}
	if err := m.sessions.Save(ctx, s); err != nil {
		return state, fmt.Errorf("save session: %w", err)
	}
	return state, nil
}

func (m *Machine) fail(ctx context.Context, a Action, s *session.Context) session.State {
	s.ClearToMenu()
	if err := m.sessions.Save(ctx, s); err != nil {
		m.logger.Warn().Err(err).Int64("chat_id", a.ConversationID).Msg("session reset failed")
	}
	if _, err := m.screen.Render(ctx, a.ConversationID, a.Message, chat.Text(genericErrorMessage, backToMenuKeyboard())); err != nil {
		m.logger.Error().Err(err).Int64("chat_id", a.ConversationID).Msg("failed to show error message")
	}
	return session.StateMenu
}

func (m *Machine) unrecognized(ctx context.Context, a Action, s *session.Context) (session.State, error) {
	m.logger.Info().Int64("chat_id", a.ConversationID).Str("token", a.Token).Msg("unrecognized action")
	if _, err := m.screen.Send(ctx, a.ConversationID, chat.Text(unrecognizedMessage, errorKeyboard(s))); err != nil {
		m.logger.Warn().Err(err).Int64("chat_id", a.ConversationID).Msg("failed to reply to unrecognized action")
	}
	return s.State, nil
}

func (m *Machine) entitled(ctx context.Context, userID int64) bool {
	if !m.requireSubscription {
		return true
	}
	if m.gate == nil {
		return false
	}
	ok, err := m.gate.Eligible(ctx, userID)
	if err != nil {
		m.logger.Warn().Err(err).Int64("user_id", userID).Msg("subscription check failed")
		return false
	}
	return ok
}

func (m *Machine) subscriptionPrompt(ctx context.Context, a Action, s *session.Context) (session.State, error) {
	s.ClearToMenu()
	kb := subscribeKeyboard(m.subscribeURL)
	kb = append(kb, backToMenuKeyboard()...)
	return m.show(ctx, a, s, session.StateMenu, chat.Text(subscriptionMessage, kb))
}

func (m *Machine) menuAnalyse(ctx context.Context, a Action, s *session.Context) (session.State, error) {
	s.ClearToMenu()
	return m.show(ctx, a, s, session.StateChooseAnalysis, chat.Text(chooseAnalysisMessage, analysisKeyboard()))
}

func (m *Machine) menuSignals(ctx context.Context, a Action, s *session.Context) (session.State, error) {
	if !m.entitled(ctx, a.UserID) {
		return m.subscriptionPrompt(ctx, a, s)
	}
	s.ClearToSignalsMenu()
	return m.show(ctx, a, s, session.StateChooseSignals, chat.Text(chooseSignalsMessage, signalsKeyboard()))
}

func (m *Machine) backMenu(ctx context.Context, a Action, s *session.Context) (session.State, error) {
	s.ClearToMenu()
	return m.show(ctx, a, s, session.StateMenu, chat.Text(welcomeMessage, startKeyboard()))
}

func (m *Machine) backSignals(ctx context.Context, a Action, s *session.Context) (session.State, error) {
	s.ClearToSignalsMenu()
	return m.show(ctx, a, s, session.StateChooseSignals, chat.Text(chooseSignalsMessage, signalsKeyboard()))
}

// chooseAnalysis starts an analysis. A signal-rooted session already knows its
// instrument and runs the analysis straight away.
func (m *Machine) chooseAnalysis(kind domain.AnalysisType) handlerFunc {
	return func(ctx context.Context, a Action, s *session.Context) (session.State, error) {
		if s.FromSignal && s.CurrentInstrument != "" {
			return m.runAnalysis(ctx, a, s, kind, s.CurrentInstrument, m.signalTimeframe(s))
		}
		s.FromSignal = false
		s.IsSignalsContext = false
		s.CurrentAnalysisType = kind
		s.CurrentInstrument = ""
		return m.show(ctx, a, s, session.StateChooseMarket, chat.Text(chooseMarketMessage, marketKeyboard(false)))
	}
}

func (m *Machine) backAnalysis(ctx context.Context, a Action, s *session.Context) (session.State, error) {
	if s.FromSignal {
		return m.backToSignalAnalysis(ctx, a, s)
	}
	s.CurrentAnalysisType = ""
	s.CurrentInstrument = ""
	s.CurrentMarket = ""
	return m.show(ctx, a, s, session.StateChooseAnalysis, chat.Text(chooseAnalysisMessage, analysisKeyboard()))
}

func (m *Machine) chooseMarket(ctx context.Context, a Action, s *session.Context) (session.State, error) {
	market, suffix, ok := parseMarketToken(a.Token)
	if !ok {
		return m.unrecognized(ctx, a, s)
	}
	if suffix == actionSignals {
		s.IsSignalsContext = true
	} else if suffix != "" {
		s.CurrentAnalysisType = analysisFor(suffix)
	}
	s.CurrentMarket = market
	return m.show(ctx, a, s, session.StateChooseInstrument,
		chat.Text(chooseInstrumentMessage, instrumentKeyboard(market, m.instrumentAction(s))))
}

func (m *Machine) backMarket(ctx context.Context, a Action, s *session.Context) (session.State, error) {
	s.CurrentInstrument = ""
	return m.show(ctx, a, s, session.StateChooseMarket, chat.Text(chooseMarketMessage, marketKeyboard(s.IsSignalsContext)))
}

func (m *Machine) chooseInstrument(ctx context.Context, a Action, s *session.Context) (session.State, error) {
	instrument, action, ok := parseInstrumentToken(a.Token)
	if !ok {
		return m.unrecognized(ctx, a, s)
	}
	if s.CurrentMarket == "" {
		s.CurrentMarket = signal.Classify(instrument)
	}
	s.CurrentInstrument = instrument

	switch action {
	case actionChart:
		s.CurrentAnalysisType = domain.AnalysisTechnical
		return m.show(ctx, a, s, session.StateChooseStyle, chat.Text(chooseStyleMessage, styleKeyboard()))
	case actionSentiment:
		return m.runAnalysis(ctx, a, s, domain.AnalysisSentiment, instrument, "")
	case actionCalendar:
		return m.runAnalysis(ctx, a, s, domain.AnalysisCalendar, instrument, "")
	default:
		return m.subscribe(ctx, a, s, instrument)
	}
}

func (m *Machine) backInstrument(ctx context.Context, a Action, s *session.Context) (session.State, error) {
	if s.FromSignal {
		return m.backToSignalAnalysis(ctx, a, s)
	}
	market := s.CurrentMarket
	if market == "" && s.CurrentInstrument != "" {
		market = signal.Classify(s.CurrentInstrument)
	}
	if market == "" {
		return m.backMarket(ctx, a, s)
	}
	s.CurrentMarket = market
	return m.show(ctx, a, s, session.StateChooseInstrument,
		chat.Text(chooseInstrumentMessage, instrumentKeyboard(market, m.instrumentAction(s))))
}

func (m *Machine) chooseStyle(ctx context.Context, a Action, s *session.Context) (session.State, error) {
	style := strings.TrimPrefix(a.Token, prefixStyle)
	tf, ok := domain.StyleTimeframes[style]
	if !ok {
		return m.unrecognized(ctx, a, s)
	}
	if s.CurrentInstrument == "" {
		return m.recoveryMiss(ctx, a, s)
	}
	return m.runAnalysis(ctx, a, s, domain.AnalysisTechnical, s.CurrentInstrument, tf)
}

// analyzeFromSignal roots the session at the delivered signal the button belongs to.
func (m *Machine) analyzeFromSignal(ctx context.Context, a Action, s *session.Context) (session.State, error) {
	instrument, signalID, ok := parseAnalyzeToken(a.Token)
	if !ok {
		return m.unrecognized(ctx, a, s)
	}

	message := html.EscapeString(a.Message.Text)
	var tf domain.Timeframe
	if sig := m.lookupSignal(ctx, a.ConversationID, signalID); sig != nil {
		message = sig.RawMessage
		if message == "" {
			message = signal.Format(*sig)
		}
		tf = sig.Timeframe
	}
	if tf.IsZero() {
		if parts, ok := signal.ParseID(signalID); ok {
			tf, _ = domain.ParseTimeframe(parts.Timeframe)
		}
	}
	if tf.IsZero() {
		tf = domain.DefaultSignalTimeframe(instrument)
	}

	s.EnterSignalRoot(instrument, signalID, tf, message)
	s.CurrentMarket = signal.Classify(instrument)
	return m.show(ctx, a, s, session.StateChooseAnalysis,
		chat.Text(fmt.Sprintf(signalAnalysisMessage, html.EscapeString(instrument)), signalAnalysisKeyboard()))
}

func (m *Machine) signalAnalysis(kind domain.AnalysisType) handlerFunc {
	return func(ctx context.Context, a Action, s *session.Context) (session.State, error) {
		instrument, err := m.recoverInstrument(ctx, s)
		if err != nil {
			return m.recoveryMiss(ctx, a, s)
		}
		s.FromSignal = true
		s.IsSignalsContext = false
		return m.runAnalysis(ctx, a, s, kind, instrument, m.signalTimeframe(s))
	}
}

func (m *Machine) backToSignalAnalysis(ctx context.Context, a Action, s *session.Context) (session.State, error) {
	instrument, err := m.recoverInstrument(ctx, s)
	if err != nil {
		return m.recoveryMiss(ctx, a, s)
	}
	s.RestoreSignalRoot()
	s.SignalInstrument = instrument
	s.CurrentInstrument = instrument
	s.CurrentMarket = signal.Classify(instrument)
	return m.show(ctx, a, s, session.StateChooseAnalysis,
		chat.Text(fmt.Sprintf(signalAnalysisMessage, html.EscapeString(instrument)), signalAnalysisKeyboard()))
}

// backToSignal re-sends the delivered signal as a fresh message.
func (m *Machine) backToSignal(ctx context.Context, a Action, s *session.Context) (session.State, error) {
	text := s.OriginalSignalMessage
	var kb chat.Keyboard
	if sig := m.lookupSignal(ctx, a.ConversationID, s.SignalIDBackup); sig != nil {
		text = sig.RawMessage
		if text == "" {
			text = signal.Format(*sig)
		}
		kb = analyzeKeyboard(*sig)
	}

	if text == "" {
		return m.show(ctx, a, s, session.StateSignalDetails, chat.Fresh(detailsMissingMessage, nil, backToMenuKeyboard()))
	}
	s.RestoreSignalRoot()
	if kb == nil {
		instrument := s.SignalInstrumentBackup
		if instrument == "" {
			instrument, _ = session.ExtractInstrument(text)
		}
		kb = chat.Keyboard{chat.Row(chat.CallbackButton("🔍 Analyze Market", analyzeToken(instrument, s.SignalIDBackup)))}
	}
	return m.show(ctx, a, s, session.StateSignalDetails, chat.Fresh(text, nil, kb))
}

func (m *Machine) recoveryMiss(ctx context.Context, a Action, s *session.Context) (session.State, error) {
	m.logger.Info().Int64("chat_id", a.ConversationID).Str("token", a.Token).Msg("no instrument to recover")
	s.FromSignal = false
	s.CurrentInstrument = ""
	return m.show(ctx, a, s, session.StateChooseAnalysis, chat.Text(instrumentMissMessage, analysisKeyboard()))
}

// recoverInstrument finds the signal's instrument: live field, then backup, then the
// original message text. A hit from the message is written back to the live fields.
func (m *Machine) recoverInstrument(ctx context.Context, s *session.Context) (string, error) {
	instrument, err := fallback.First(ctx, "recover-instrument", m.logger,
		fallback.Step[string]{
			Name: "live",
			Run: func(context.Context) (string, error) {
				if s.SignalInstrument != "" {
					return s.SignalInstrument, nil
				}
				if s.FromSignal && s.CurrentInstrument != "" {
					return s.CurrentInstrument, nil
				}
				return "", fallback.ErrSkipped
			},
		},
		fallback.Step[string]{
			Name: "backup",
			Run: func(context.Context) (string, error) {
				if s.SignalInstrumentBackup == "" {
					return "", fallback.ErrSkipped
				}
				return s.SignalInstrumentBackup, nil
			},
		},
		fallback.Step[string]{
			Name: "original-message",
			Run: func(context.Context) (string, error) {
				found, ok := session.ExtractInstrument(s.OriginalSignalMessage)
				if !ok {
					return "", fallback.ErrSkipped
				}
				s.SignalInstrument = found
				return found, nil
			},
		},
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrRecoveryMiss, err)
	}
	s.CurrentInstrument = instrument
	return instrument, nil
}

func (m *Machine) signalTimeframe(s *session.Context) domain.Timeframe {
	switch {
	case !s.CurrentTimeframe.IsZero():
		return s.CurrentTimeframe
	case !s.SignalTimeframeBackup.IsZero():
		return s.SignalTimeframeBackup
	default:
		return domain.DefaultSignalTimeframe(s.CurrentInstrument)
	}
}

func (m *Machine) lookupSignal(ctx context.Context, recipient int64, signalID string) *domain.NormalizedSignal {
	if m.registry == nil || signalID == "" {
		return nil
	}
	sig, err := m.registry.Get(ctx, recipient, signalID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			m.logger.Warn().Err(err).Int64("chat_id", recipient).Str("signal_id", signalID).Msg("signal registry lookup failed")
		}
		return nil
	}
	return sig
}

// runAnalysis calls the provider for kind and shows the result. The session is saved and
// the conversation unlocked for the duration of the call; a result that comes back after
// another action moved the session on is dropped.
func (m *Machine) runAnalysis(ctx context.Context, a Action, s *session.Context, kind domain.AnalysisType, instrument string, tf domain.Timeframe) (session.State, error) {
	s.CurrentAnalysisType = kind
	s.CurrentInstrument = instrument
	if !tf.IsZero() {
		s.CurrentTimeframe = tf
	}
	loading := m.showLoading(ctx, &a, kind, instrument)
	if err := m.sessions.Save(ctx, s); err != nil {
		return s.State, fmt.Errorf("save session: %w", err)
	}
	guard := s.Guard()

	ctx, span := m.tracer.Start(ctx, "conversation.analysis", trace.WithAttributes(
		attribute.String("analysis", string(kind)),
		attribute.String("instrument", instrument),
	))
	defer span.End()

	a.held.release()
	pctx, cancel := context.WithTimeout(ctx, m.providerTimeout)
	content, err := m.analysisContent(pctx, s, kind, instrument, tf)
	cancel()
	a.held.acquire()

	if current, ok := m.stillCurrent(ctx, a.ConversationID, guard); !ok {
		m.logger.Info().Int64("chat_id", a.ConversationID).Str("instrument", instrument).Msg("dropping stale analysis result")
		return current, nil
	}
	if err != nil {
		span.RecordError(err)
		m.logger.Warn().Err(err).Int64("chat_id", a.ConversationID).Str("instrument", instrument).Str("analysis", string(kind)).Msg("analysis unavailable")
		content = chat.Text(providerFailed(kind, instrument), resultKeyboard(s))
	}
	if loading && content.Kind == chat.KindText {
		content = chat.Fresh(content.Text, nil, content.Keyboard)
	}
	return m.show(ctx, a, s, session.StateShowResult, content)
}

// showLoading puts the loading animation over the action's message and points the
// action at it, so the result replaces the animation.
func (m *Machine) showLoading(ctx context.Context, a *Action, kind domain.AnalysisType, instrument string) bool {
	if m.loadingURL == "" {
		return false
	}
	media := chat.Media{Kind: chat.MediaAnimation, URL: m.loadingURL, FileName: "loading.gif"}
	ref, err := m.screen.Render(ctx, a.ConversationID, a.Message,
		chat.Photo(media, fmt.Sprintf(loadingCaption, analysisTitles[kind], html.EscapeString(instrument)), nil))
	if err != nil {
		m.logger.Debug().Err(err).Int64("chat_id", a.ConversationID).Msg("loading animation not shown")
		return false
	}
	a.Message = ref
	return true
}

func (m *Machine) stillCurrent(ctx context.Context, conversationID int64, g session.Guard) (session.State, bool) {
	stored, err := m.sessions.Load(ctx, conversationID)
	if err != nil {
		return "", true
	}
	return stored.State, stored.Matches(g)
}

func (m *Machine) analysisContent(ctx context.Context, s *session.Context, kind domain.AnalysisType, instrument string, tf domain.Timeframe) (chat.Content, error) {
	kb := resultKeyboard(s)
	switch kind {
	case domain.AnalysisTechnical:
		if m.providers.Chart == nil {
			return chat.Content{}, fmt.Errorf("chart provider: %w", domain.ErrProviderUnavailable)
		}
		if tf.IsZero() {
			tf = domain.DefaultSignalTimeframe(instrument)
		}
		c, err := m.providers.Chart.Chart(ctx, instrument, tf)
		if err != nil {
			return chat.Content{}, err
		}
		summary := ""
		if m.providers.Technical != nil {
			if summary, err = m.providers.Technical.TechnicalSummary(ctx, instrument, tf); err != nil {
				m.logger.Debug().Err(err).Str("instrument", instrument).Msg("technical summary unavailable")
				summary = ""
			}
		}
		media := chat.Media{Kind: chat.MediaPhoto, Bytes: c.Image, URL: c.URL, FileName: strings.ToLower(instrument) + ".png"}
		return chat.Photo(media, formatTechnicalCaption(instrument, tf, summary), kb), nil

	case domain.AnalysisSentiment:
		if m.providers.Sentiment == nil {
			return chat.Content{}, fmt.Errorf("sentiment provider: %w", domain.ErrProviderUnavailable)
		}
		body, err := m.providers.Sentiment.Sentiment(ctx, instrument)
		if err != nil {
			return chat.Content{}, err
		}
		return chat.Text(formatSentiment(instrument, body), kb), nil

	case domain.AnalysisCalendar:
		if m.providers.Calendar == nil {
			return chat.Content{}, fmt.Errorf("calendar provider: %w", domain.ErrProviderUnavailable)
		}
		events, err := m.providers.Calendar.Events(ctx, m.now().UTC())
		if err != nil {
			return chat.Content{}, err
		}
		return chat.Text(formatCalendar(events, instrument), kb), nil
	}
	return chat.Content{}, fmt.Errorf("unknown analysis %q", kind)
}

func (m *Machine) subscribe(ctx context.Context, a Action, s *session.Context, instrument string) (session.State, error) {
	if !m.entitled(ctx, a.UserID) {
		return m.subscriptionPrompt(ctx, a, s)
	}
	s.ClearToSignalsMenu()
	if m.subscriptions == nil {
		return m.show(ctx, a, s, session.StateChooseSignals, chat.Text(genericErrorMessage, signalsKeyboard()))
	}
	tf := domain.DefaultSignalTimeframe(instrument)
	if err := m.subscriptions.AddSubscription(ctx, a.UserID, instrument, tf); err != nil {
		m.logger.Warn().Err(err).Int64("user_id", a.UserID).Str("instrument", instrument).Msg("subscription failed")
		return m.show(ctx, a, s, session.StateChooseSignals, chat.Text(genericErrorMessage, signalsKeyboard()))
	}
	text := fmt.Sprintf(subscribedMessage, html.EscapeString(instrument), tf.Display()) + "\n\n" + chooseSignalsMessage
	return m.show(ctx, a, s, session.StateChooseSignals, chat.Text(text, signalsKeyboard()))
}

func (m *Machine) signalsAdd(ctx context.Context, a Action, s *session.Context) (session.State, error) {
	if !m.entitled(ctx, a.UserID) {
		return m.subscriptionPrompt(ctx, a, s)
	}
	s.IsSignalsContext = true
	s.CurrentMarket = ""
	s.CurrentInstrument = ""
	return m.show(ctx, a, s, session.StateChooseMarket, chat.Text(chooseMarketMessage, marketKeyboard(true)))
}

func (m *Machine) signalsManage(ctx context.Context, a Action, s *session.Context) (session.State, error) {
	return m.listSubscriptions(ctx, a, s, "")
}

func (m *Machine) removeSignal(ctx context.Context, a Action, s *session.Context) (session.State, error) {
	instrument := strings.ToUpper(strings.TrimPrefix(a.Token, prefixRemoveSignal))
	if instrument == "" {
		return m.unrecognized(ctx, a, s)
	}
	if m.subscriptions == nil {
		return m.listSubscriptions(ctx, a, s, "")
	}
	removed, err := m.subscriptions.RemoveSubscription(ctx, a.UserID, instrument)
	if err != nil {
		m.logger.Warn().Err(err).Int64("user_id", a.UserID).Str("instrument", instrument).Msg("unsubscribe failed")
		return m.show(ctx, a, s, session.StateChooseSignals, chat.Text(genericErrorMessage, backToSignalsKeyboard()))
	}
	notice := ""
	if removed {
		notice = fmt.Sprintf(unsubscribedMessage, html.EscapeString(instrument))
	}
	return m.listSubscriptions(ctx, a, s, notice)
}

func (m *Machine) listSubscriptions(ctx context.Context, a Action, s *session.Context, notice string) (session.State, error) {
	s.IsSignalsContext = true
	if m.subscriptions == nil {
		return m.show(ctx, a, s, session.StateChooseSignals, chat.Text(genericErrorMessage, backToSignalsKeyboard()))
	}
	subs, err := m.subscriptions.ListSubscriptions(ctx, a.UserID)
	if err != nil {
		m.logger.Warn().Err(err).Int64("user_id", a.UserID).Msg("listing subscriptions failed")
		return m.show(ctx, a, s, session.StateChooseSignals, chat.Text(genericErrorMessage, backToSignalsKeyboard()))
	}
	text := formatSubscriptions(subs)
	if notice != "" {
		text = notice + "\n\n" + text
	}
	return m.show(ctx, a, s, session.StateChooseSignals, chat.Text(text, manageKeyboard(subs)))
}

// instrumentAction picks what the instrument buttons do in the current context.
func (m *Machine) instrumentAction(s *session.Context) string {
	if s.IsSignalsContext {
		return actionSignals
	}
	switch s.CurrentAnalysisType {
	case domain.AnalysisSentiment:
		return actionSentiment
	case domain.AnalysisCalendar:
		return actionCalendar
	default:
		return actionChart
	}
}

func analysisFor(action string) domain.AnalysisType {
	switch action {
	case actionSentiment:
		return domain.AnalysisSentiment
	case actionCalendar:
		return domain.AnalysisCalendar
	default:
		return domain.AnalysisTechnical
	}
}
