package model

import (
	"time"

	json "github.com/goccy/go-json"
)

// Difficulty levels accepted for a tour.
const (
	DifficultyEasy      = "easy"
	DifficultyMedium    = "medium"
	DifficultyDifficult = "difficult"
)

// DefaultRatingsAverage is the aggregate a tour carries while it has no reviews.
const DefaultRatingsAverage = 4.5

// GeoPoint is a GeoJSON point with descriptive data.  Coordinates are
// [longitude, latitude].
type GeoPoint struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates" validate:"omitempty,len=2"`
	Address     string    `json:"address,omitempty"`
	Description string    `json:"description,omitempty"`
	Day         int       `json:"day,omitempty"`
}

// Lng returns the longitude, or 0 when no coordinates are set.
func (p GeoPoint) Lng() float64 {
	if len(p.Coordinates) != 2 {
		return 0
	}
	return p.Coordinates[0]
}

// Lat returns the latitude, or 0 when no coordinates are set.
func (p GeoPoint) Lat() float64 {
	if len(p.Coordinates) != 2 {
		return 0
	}
	return p.Coordinates[1]
}

// Tour mirrors the `tours` table together with its start dates
// (tour_start_dates) and guides (tour_guides).
//
// RatingsAverage and RatingsQuantity are derived from reviews and are
// never taken from request bodies.  Slug is recomputed from Name on every
// save.  SecretTour rows never appear in public lookups.
type Tour struct {
	ID              uint64      `json:"id"`
	Name            string      `json:"name" validate:"required,min=10,max=40"`
	Slug            string      `json:"slug"`
	Duration        int         `json:"duration" validate:"required,gt=0"`
	MaxGroupSize    int         `json:"maxGroupSize" validate:"required,gt=0"`
	Difficulty      string      `json:"difficulty" validate:"required,oneof=easy medium difficult"`
	RatingsAverage  float64     `json:"ratingsAverage" validate:"gte=1,lte=5"`
	RatingsQuantity int         `json:"ratingsQuantity" validate:"gte=0"`
	Price           float64     `json:"price" validate:"required,gt=0"`
	PriceDiscount   *float64    `json:"priceDiscount,omitempty" validate:"omitempty,gte=0"`
	Summary         string      `json:"summary" validate:"required"`
	Description     string      `json:"description" validate:"required"`
	ImageCover      string      `json:"imageCover" validate:"required"`
	Images          []string    `json:"images"`
	StartDates      []time.Time `json:"startDates"`
	StartLocation   *GeoPoint   `json:"startLocation,omitempty"`
	Locations       []GeoPoint  `json:"locations" validate:"dive"`
	Guides          []UserRef   `json:"guides"`
	SecretTour      bool        `json:"secretTour,omitempty"`
	Version         uint32      `json:"version"`
	CreatedAt       time.Time   `json:"-"`

	// Reviews is only filled when a single tour is read.
	Reviews []Review `json:"reviews,omitempty"`
}

// DurationWeeks is derived on read and never stored.
func (t Tour) DurationWeeks() float64 {
	return float64(t.Duration) / 7
}

// GuideIDs returns the referenced guide identities.
func (t Tour) GuideIDs() []uint64 {
	ids := make([]uint64, 0, len(t.Guides))
	for _, g := range t.Guides {
		if g.ID != 0 {
			ids = append(ids, g.ID)
		}
	}
	return ids
}

func (t Tour) MarshalJSON() ([]byte, error) {
	type alias Tour
	return json.Marshal(struct {
		alias
		DurationWeeks float64 `json:"durationWeeks"`
	}{alias(t), t.DurationWeeks()})
}

// TourStats is one row of the difficulty breakdown.
type TourStats struct {
	Difficulty string  `json:"difficulty"`
	NumTours   int     `json:"numTours"`
	NumRatings int     `json:"numRatings"`
	AvgRating  float64 `json:"avgRating"`
	AvgPrice   float64 `json:"avgPrice"`
	MinPrice   float64 `json:"minPrice"`
	MaxPrice   float64 `json:"maxPrice"`
}

// MonthlyPlan is one month of tour starts for a year.
type MonthlyPlan struct {
	Month         int      `json:"month"`
	NumTourStarts int      `json:"numTourStarts"`
	Tours         []string `json:"tours"`
}

// TourDistance is the distance from a point to a tour's start location,
// expressed in the requested unit.
type TourDistance struct {
	ID       uint64  `json:"id"`
	Name     string  `json:"name"`
	Distance float64 `json:"distance"`
}
