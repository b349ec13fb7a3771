package service

import (
	"context"

	"github.com/iliyamo/tour-booking/internal/logger"
	"github.com/iliyamo/tour-booking/internal/metrics"
	"github.com/iliyamo/tour-booking/internal/repository"
)

type ratingSource interface {
	CalcAverageRatings(ctx context.Context, tourID uint64) (repository.RatingAggregate, error)
}

type ratingSink interface {
	UpdateRatings(ctx context.Context, id uint64, quantity int, average float64) error
}

type aggregateCache interface {
	Evict(ctx context.Context) error
}

// RatingService keeps a tour's rating aggregate in step with its reviews.
// Recompute runs after the review write commits, so a concurrent read of
// the tour may briefly see the previous aggregate.
type RatingService struct {
	Reviews ratingSource
	Tours   ratingSink
	Cache   aggregateCache // may be nil
}

func NewRatingService(reviews ratingSource, tours ratingSink, cache aggregateCache) *RatingService {
	return &RatingService{Reviews: reviews, Tours: tours, Cache: cache}
}

// Recompute stores the count and average of the tour's reviews, then
// drops the cached aggregates that were computed from the old ratings.
func (s *RatingService) Recompute(ctx context.Context, tourID uint64) error {
	agg, err := s.Reviews.CalcAverageRatings(ctx, tourID)
	if err == nil {
		err = s.Tours.UpdateRatings(ctx, tourID, agg.Quantity, agg.Average)
	}
	metrics.RecordRatingRecompute(err)
	if err != nil {
		return err
	}
	if s.Cache != nil {
		if err := s.Cache.Evict(ctx); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Uint64("tour_id", tourID).Msg("could not evict tour aggregates")
		}
	}
	return nil
}
