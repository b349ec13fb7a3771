// Package service holds the application operations that span several
// repositories or talk to integrations: authentication, rating rollups and
// background job publishing.
package service

import (
	"context"
	"time"

	"github.com/iliyamo/tour-booking/internal/logger"
	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/queue"
)

// Notifier publishes domain events as background jobs.  Publishing errors
// are logged and returned so callers may ignore them without interrupting
// the request.
type Notifier struct {
	Publisher queue.Publisher
}

func NewNotifier(p queue.Publisher) *Notifier {
	return &Notifier{Publisher: p}
}

// WelcomeEmail enqueues the welcome email for a new user.  url is the
// account page.
func (n *Notifier) WelcomeEmail(ctx context.Context, u *model.User, url string) error {
	err := n.publish(ctx, queue.QueueWelcomeEmail, queue.WelcomeEmailEvent{
		UserID: u.ID,
		Email:  u.Email,
		Name:   u.Name,
		URL:    url,
	})
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Uint64("user_id", u.ID).Msg("welcome email not enqueued")
	}
	return err
}

// BookingCreated enqueues the booking log line and confirmation email.
func (n *Notifier) BookingCreated(ctx context.Context, b *model.Booking, u *model.User, url string) error {
	ev := queue.BookingCreatedEvent{
		BookingID: b.ID,
		UserID:    b.UserID,
		TourID:    b.TourID,
		TourName:  b.TourName,
		Price:     b.Price,
		URL:       url,
		CreatedAt: b.CreatedAt,
	}
	if b.SessionID != nil {
		ev.SessionID = *b.SessionID
	}
	if u != nil {
		ev.Email = u.Email
		ev.Name = u.Name
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	err := n.publish(ctx, queue.QueueBookingCreated, ev)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Uint64("booking_id", b.ID).Msg("booking.created not enqueued")
	}
	return err
}

func (n *Notifier) publish(ctx context.Context, name string, ev any) error {
	if n == nil || n.Publisher == nil {
		return nil
	}
	return n.Publisher.Publish(ctx, name, ev)
}
