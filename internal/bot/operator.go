package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"signal-relay/internal/chat"

	"github.com/rs/zerolog"
)

const (
	setSubscriptionUsage  = "Usage: /set_subscription [chat_id] [active|inactive] [days]"
	setPaymentFailedUsage = "Usage: /set_payment_failed [chat_id] [true|false]"
)

// AccountAdmin changes a user's entitlement.
type AccountAdmin interface {
	SetSubscription(ctx context.Context, userID int64, active bool, endsAt time.Time) error
	SetPaymentFailed(ctx context.Context, userID int64, failed bool) error
}

type notifier interface {
	Send(ctx context.Context, chatID int64, content chat.Content) (chat.MessageRef, error)
}

// Operator runs the account commands only operators may issue. Each command returns
// the reply for the operator.
type Operator struct {
	accounts      AccountAdmin
	notify        notifier
	operators     map[int64]bool
	reactivateURL string
	logger        zerolog.Logger
	now           func() time.Time
}

func NewOperator(accounts AccountAdmin, notify notifier, operators []int64, reactivateURL string, logger zerolog.Logger) *Operator {
	allowed := make(map[int64]bool, len(operators))
	for _, id := range operators {
		allowed[id] = true
	}
	return &Operator{
		accounts:      accounts,
		notify:        notify,
		operators:     allowed,
		reactivateURL: reactivateURL,
		logger:        logger,
		now:           time.Now,
	}
}

func (o *Operator) Allowed(userID int64) bool {
	return o.operators[userID]
}

// SetSubscription handles: <chat_id> active <days> | <chat_id> inactive.
func (o *Operator) SetSubscription(ctx context.Context, args []string) string {
	if len(args) < 2 {
		return setSubscriptionUsage
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "Invalid arguments. Chat ID and days must be numbers."
	}

	now := o.now().UTC()
	var (
		active bool
		endsAt time.Time
		reply  string
	)
	switch strings.ToLower(args[1]) {
	case "active":
		if len(args) < 3 {
			return setSubscriptionUsage
		}
		days, err := strconv.Atoi(args[2])
		if err != nil {
			return "Invalid arguments. Chat ID and days must be numbers."
		}
		if days <= 0 {
			return "Days must be a positive number."
		}
		active, endsAt = true, now.AddDate(0, 0, days)
		reply = fmt.Sprintf("✅ Subscription set to ACTIVE for user %d for %d days.", userID, days)
	case "inactive":
		endsAt = now.Add(-24 * time.Hour)
		reply = fmt.Sprintf("✅ Subscription set to INACTIVE for user %d.", userID)
	default:
		return "Status must be 'active' or 'inactive'"
	}

	if err := o.accounts.SetSubscription(ctx, userID, active, endsAt); err != nil {
		o.logger.Error().Err(err).Int64("user_id", userID).Msg("set subscription failed")
		return fmt.Sprintf("❌ Could not update the subscription for user %d", userID)
	}
	o.logger.Info().Int64("user_id", userID).Bool("active", active).Time("ends_at", endsAt).Msg("subscription set by operator")
	return reply
}

// SetPaymentFailed handles: <chat_id> true|false. Marking a payment failed also tells
// the user how to reactivate.
func (o *Operator) SetPaymentFailed(ctx context.Context, args []string) string {
	if len(args) < 2 {
		return setPaymentFailedUsage
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "Invalid arguments. Chat ID must be a number."
	}
	var failed bool
	switch strings.ToLower(args[1]) {
	case "true":
		failed = true
	case "false":
	default:
		return "Status must be 'true' or 'false'"
	}

	status := "NOT FAILED"
	if failed {
		status = "FAILED"
	}
	if err := o.accounts.SetPaymentFailed(ctx, userID, failed); err != nil {
		o.logger.Error().Err(err).Int64("user_id", userID).Msg("set payment failed status failed")
		return fmt.Sprintf("❌ Could not set payment status to %s for user %d", status, userID)
	}
	o.logger.Info().Int64("user_id", userID).Bool("payment_failed", failed).Msg("payment status set by operator")

	reply := fmt.Sprintf("✅ Payment status set to %s for user %d", status, userID)
	if failed && o.notify != nil {
		if _, err := o.notify.Send(ctx, userID, chat.Text(paymentFailedMessage, reactivateKeyboard(o.reactivateURL))); err != nil {
			o.logger.Warn().Err(err).Int64("user_id", userID).Msg("payment failed notice not delivered")
			reply += "\n⚠️ The user could not be notified."
		}
	}
	return reply
}
