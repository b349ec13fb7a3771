package mailer

import (
	"context"

	"github.com/iliyamo/tour-booking/internal/logger"
)

// LogMailer writes messages to the log instead of sending them. It is the
// development default.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, msg Message) error {
	logger.Ctx(ctx).Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Str("text", msg.Text).
		Msg("email (log driver)")
	return nil
}
