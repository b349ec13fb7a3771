package model

import "time"

// Review records a user's rating of a tour.  At most one review exists per
// (tour, user) pair; the reviews table enforces it with a unique index.
type Review struct {
	ID        uint64    `json:"id"`
	Review    string    `json:"review" validate:"required,max=1000"`
	Rating    int       `json:"rating" validate:"required,min=1,max=5"`
	TourID    uint64    `json:"tour"`
	User      UserRef   `json:"user"`
	CreatedAt time.Time `json:"createdAt"`
	Version   uint32    `json:"version"`
}
