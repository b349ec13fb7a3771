package repository

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/query"
)

// ReviewSchema declares the filterable and sortable review fields.
var ReviewSchema = &query.Schema{
	IDColumn: "r.id",
	Hidden:   []string{"version"},
	Fields: map[string]query.Field{
		"rating":    {Column: "r.rating", Kind: query.Number, Multi: true},
		"tour":      {Column: "r.tour_id", Kind: query.Number, Multi: true},
		"user":      {Column: "r.user_id", Kind: query.Number},
		"createdAt": {Column: "r.created_at", Kind: query.Time},
	},
}

// Reviews are returned with their author's name and photo.
const reviewSelect = "SELECT r.id, r.review, r.rating, r.tour_id, r.user_id, COALESCE(u.name, ''), " +
	"COALESCE(u.photo, ''), r.version, r.created_at FROM reviews r LEFT JOIN users u ON u.id = r.user_id"

// RatingAggregate is the rating rollup of one tour.
type RatingAggregate struct {
	Quantity int
	Average  float64
}

// ReviewRepo reads and writes the reviews table.
type ReviewRepo struct{ DB *sql.DB }

func NewReviewRepo(db *sql.DB) *ReviewRepo { return &ReviewRepo{DB: db} }

func scanReview(s rowScanner) (*model.Review, error) {
	var rv model.Review
	err := s.Scan(&rv.ID, &rv.Review, &rv.Rating, &rv.TourID, &rv.User.ID, &rv.User.Name,
		&rv.User.Photo, &rv.Version, &rv.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rv, nil
}

// Create inserts a review. A second review of the same tour by the same
// user fails with the driver's duplicate entry error.
func (r *ReviewRepo) Create(ctx context.Context, rv *model.Review) error {
	rv.Review = strings.TrimSpace(rv.Review)
	rv.CreatedAt = time.Now().UTC().Truncate(time.Second)
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO reviews (review, rating, tour_id, user_id, created_at) VALUES (?,?,?,?,?)",
		rv.Review, rv.Rating, rv.TourID, rv.User.ID, rv.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rv.ID = uint64(id)
	return nil
}

// FindByID fetches a review with its author.
func (r *ReviewRepo) FindByID(ctx context.Context, id uint64) (*model.Review, error) {
	rv, err := scanReview(r.DB.QueryRowContext(ctx, reviewSelect+" WHERE r.id = ? LIMIT 1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rv, err
}

// Find lists reviews matching f.
func (r *ReviewRepo) Find(ctx context.Context, f *query.Features) ([]model.Review, error) {
	q, args, err := f.Build(reviewSelect)
	if err != nil {
		return nil, err
	}
	return r.list(ctx, q, args...)
}

// FindByTour lists the reviews of a tour, newest first.
func (r *ReviewRepo) FindByTour(ctx context.Context, tourID uint64) ([]model.Review, error) {
	return r.list(ctx, reviewSelect+" WHERE r.tour_id = ? ORDER BY r.created_at DESC, r.id DESC", tourID)
}

func (r *ReviewRepo) list(ctx context.Context, q string, args ...any) ([]model.Review, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	reviews := []model.Review{}
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, *rv)
	}
	return reviews, rows.Err()
}

// Update saves the text and rating of a review and bumps its version.
func (r *ReviewRepo) Update(ctx context.Context, rv *model.Review) error {
	rv.Review = strings.TrimSpace(rv.Review)
	res, err := r.DB.ExecContext(ctx,
		"UPDATE reviews SET review = ?, rating = ?, version = version + 1 WHERE id = ? AND version = ?",
		rv.Review, rv.Rating, rv.ID, rv.Version)
	if err != nil {
		return err
	}
	if err := expectVersion(res); err != nil {
		return err
	}
	rv.Version++
	return nil
}

// DeleteByID removes a review.
func (r *ReviewRepo) DeleteByID(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM reviews WHERE id = ?", id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// CalcAverageRatings computes the rating rollup of a tour. The average is
// rounded to two decimals; a tour without reviews gets 0 and the default
// average.
func (r *ReviewRepo) CalcAverageRatings(ctx context.Context, tourID uint64) (RatingAggregate, error) {
	var (
		n   int
		avg sql.NullFloat64
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*), AVG(rating) FROM reviews WHERE tour_id = ?", tourID).Scan(&n, &avg)
	if err != nil {
		return RatingAggregate{}, err
	}
	if n == 0 || !avg.Valid {
		return RatingAggregate{Quantity: 0, Average: model.DefaultRatingsAverage}, nil
	}
	return RatingAggregate{Quantity: n, Average: math.Round(avg.Float64*100) / 100}, nil
}
