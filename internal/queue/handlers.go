package queue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"

	"github.com/iliyamo/tour-booking/internal/mailer"
)

// NewJobHandlers returns the handlers for every queue.  Booking lines are
// appended to booking.log under logDir.
func NewJobHandlers(m mailer.Mailer, logDir string) Handlers {
	return Handlers{
		QueueWelcomeEmail:   welcomeHandler(m),
		QueueBookingCreated: bookingHandler(m, logDir),
	}
}

func welcomeHandler(m mailer.Mailer) Handler {
	return func(ctx context.Context, body []byte) error {
		var ev WelcomeEmailEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		return mailer.NewEmail(m, ev.Email, ev.Name, ev.URL).SendWelcome(ctx)
	}
}

func bookingHandler(m mailer.Mailer, logDir string) Handler {
	return func(ctx context.Context, body []byte) error {
		var ev BookingCreatedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		if err := appendBookingLine(logDir, ev); err != nil {
			return err
		}
		if ev.Email == "" {
			return nil
		}
		return mailer.NewEmail(m, ev.Email, ev.Name, ev.URL).SendBookingConfirmation(ctx, ev.TourName, ev.Price)
	}
}

func bookingLine(ev BookingCreatedEvent) string {
	return fmt.Sprintf("[%s] Booking created | booking_id=%d | user_id=%d | tour_id=%d | tour=%q | price=%.2f | session=%s\n",
		ev.CreatedAt.UTC().Format(time.RFC3339), ev.BookingID, ev.UserID, ev.TourID, ev.TourName, ev.Price, ev.SessionID)
}

func appendBookingLine(logDir string, ev BookingCreatedEvent) error {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(logDir, "booking.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(bookingLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
