package mailer

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/iliyamo/tour-booking/internal/apperr"
	"github.com/iliyamo/tour-booking/internal/logger"
)

// Breaker stops calling a failing mail provider for a while after five
// consecutive failures.  Every failure it returns is an Upstream error.
type Breaker struct {
	next Mailer
	cb   *gobreaker.CircuitBreaker[struct{}]
}

func NewBreaker(name string, next Mailer) *Breaker {
	return &Breaker{
		next: next,
		cb: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        "mail-" + name,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Ctx(context.Background()).Warn().
					Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
					Msg("mail breaker state changed")
			},
		}),
	}
}

func (b *Breaker) Send(ctx context.Context, msg Message) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.Send(ctx, msg)
	})
	if err != nil {
		return apperr.Wrap(err, apperr.Upstream, "There was an error sending the email. Try again later!")
	}
	return nil
}
