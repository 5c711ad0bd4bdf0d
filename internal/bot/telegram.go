package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"signal-relay/internal/chat"
	"signal-relay/internal/session"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"
)

const defaultPollTimeout = 10 * time.Second

var ErrNoToken = errors.New("telegram bot token not set")

type handlerRegistrar interface {
	Handle(endpoint interface{}, h tele.HandlerFunc, m ...tele.MiddlewareFunc)
}

// conversation is what the Telegram handlers drive.
type conversation interface {
	HandleAction(ctx context.Context, a Action) session.State
	ShowMenu(ctx context.Context, conversationID, userID int64) session.State
}

// operatorCommands are the account commands restricted to operators.
type operatorCommands interface {
	Allowed(userID int64) bool
	SetSubscription(ctx context.Context, args []string) string
	SetPaymentFailed(ctx context.Context, args []string) string
}

// NewTelegramBot creates a long-polling bot. It does not start polling.
func NewTelegramBot(token string) (*tele.Bot, error) {
	if token == "" {
		return nil, ErrNoToken
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: defaultPollTimeout},
		OnError: func(err error, c tele.Context) {
			log.Error().Err(err).Msg("telegram handler error")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return b, nil
}

// RegisterHandlers binds the commands and inline-button callbacks to the conversation.
// The operator commands are registered only when ops is set.
func RegisterHandlers(r handlerRegistrar, conv conversation, ops operatorCommands) {
	menu := func(c tele.Context) error {
		if c.Chat() == nil || c.Sender() == nil {
			return nil
		}
		conv.ShowMenu(context.Background(), c.Chat().ID, c.Sender().ID)
		return nil
	}
	r.Handle("/start", menu)
	r.Handle("/menu", menu)
	r.Handle("/help", func(c tele.Context) error {
		return c.Send(helpMessage)
	})
	r.Handle(tele.OnCallback, callbackHandler(conv))
	if ops != nil {
		r.Handle("/set_subscription", operatorHandler(ops, ops.SetSubscription))
		r.Handle("/set_payment_failed", operatorHandler(ops, ops.SetPaymentFailed))
	}
}

// operatorHandler ignores everyone but operators so the commands stay unadvertised.
func operatorHandler(ops operatorCommands, run func(context.Context, []string) string) tele.HandlerFunc {
	return func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil || !ops.Allowed(sender.ID) {
			if sender != nil {
				log.Warn().Int64("user_id", sender.ID).Msg("operator command from non-operator")
			}
			return nil
		}
		return c.Send(run(context.Background(), c.Args()))
	}
}

func callbackHandler(conv conversation) tele.HandlerFunc {
	return func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil {
			return nil
		}
		if err := c.Respond(); err != nil {
			log.Debug().Err(err).Msg("callback acknowledge failed")
		}

		action, ok := actionFromCallback(cb, c.Sender())
		if !ok {
			return nil
		}
		state := conv.HandleAction(context.Background(), action)
		log.Debug().Int64("chat_id", action.ConversationID).Str("token", action.Token).Str("state", string(state)).Msg("callback handled")
		return nil
	}
}

// actionFromCallback needs the message the button was on; inline-mode callbacks have none.
func actionFromCallback(cb *tele.Callback, sender *tele.User) (Action, bool) {
	if cb.Message == nil || cb.Message.Chat == nil {
		return Action{}, false
	}
	a := Action{
		ConversationID: cb.Message.Chat.ID,
		UserID:         cb.Message.Chat.ID,
		Token:          cb.Data,
		Message:        refFromMessage(cb.Message, chat.MessageRef{ChatID: cb.Message.Chat.ID}),
	}
	if sender != nil {
		a.UserID = sender.ID
	}
	return a, true
}
