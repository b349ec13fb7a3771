package model

import "time"

// Booking records a paid tour purchase.
//
// Fields:
//  ID        – primary key identifier.
//  TourID    – booked tour.
//  UserID    – buyer.
//  Price     – price paid at checkout.
//  Paid      – false when an admin recorded an unpaid booking.
//  SessionID – checkout session that produced the booking (nullable).
type Booking struct {
	ID        uint64    `json:"id"`
	TourID    uint64    `json:"tour" validate:"required"`
	UserID    uint64    `json:"user" validate:"required"`
	Price     float64   `json:"price" validate:"required,gt=0"`
	Paid      bool      `json:"paid"`
	SessionID *string   `json:"sessionId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Version   uint32    `json:"version"`

	// TourName is filled on reads that join the tour.
	TourName string `json:"tourName,omitempty"`
}
