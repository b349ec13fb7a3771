// Package queue defines the background jobs exchanged over the message
// broker, the publishers that enqueue them and the consumer that runs them.
package queue

import "time"

// Queue names. Both queues are durable.
const (
	QueueWelcomeEmail   = "email.welcome"
	QueueBookingCreated = "booking.created"
)

// WelcomeEmailEvent is published after a successful signup.
type WelcomeEmailEvent struct {
	UserID uint64 `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	// URL is the account page linked from the email.
	URL string `json:"url"`
}

// BookingCreatedEvent is published when a paid checkout has been recorded.
// It carries enough for the consumer to log and notify without reading the
// database.
type BookingCreatedEvent struct {
	BookingID uint64    `json:"booking_id"`
	UserID    uint64    `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	TourID    uint64    `json:"tour_id"`
	TourName  string    `json:"tour_name"`
	Price     float64   `json:"price"`
	SessionID string    `json:"session_id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}
