package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/query"
)

// BookingSchema declares the filterable and sortable booking fields.
var BookingSchema = &query.Schema{
	IDColumn: "b.id",
	Hidden:   []string{"version"},
	Fields: map[string]query.Field{
		"tour":      {Column: "b.tour_id", Kind: query.Number, Multi: true},
		"user":      {Column: "b.user_id", Kind: query.Number, Multi: true},
		"price":     {Column: "b.price", Kind: query.Number},
		"paid":      {Column: "b.paid", Kind: query.Bool},
		"createdAt": {Column: "b.created_at", Kind: query.Time},
	},
}

const bookingSelect = "SELECT b.id, b.tour_id, b.user_id, b.price, b.paid, b.stripe_session_id, b.version, " +
	"b.created_at, COALESCE(t.name, '') FROM bookings b LEFT JOIN tours t ON t.id = b.tour_id"

// BookingRepo reads and writes the bookings table.
type BookingRepo struct{ DB *sql.DB }

func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{DB: db} }

func scanBooking(s rowScanner) (*model.Booking, error) {
	var (
		b       model.Booking
		session sql.NullString
	)
	err := s.Scan(&b.ID, &b.TourID, &b.UserID, &b.Price, &b.Paid, &session, &b.Version, &b.CreatedAt, &b.TourName)
	if err != nil {
		return nil, err
	}
	if session.Valid {
		s := session.String
		b.SessionID = &s
	}
	return &b, nil
}

// Create inserts a booking. Replaying a checkout session fails with the
// driver's duplicate entry error on stripe_session_id.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
	b.CreatedAt = time.Now().UTC().Truncate(time.Second)
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO bookings (tour_id, user_id, price, paid, stripe_session_id, created_at) VALUES (?,?,?,?,?,?)",
		b.TourID, b.UserID, b.Price, b.Paid, b.SessionID, b.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	return nil
}

// FindByID fetches a booking.
func (r *BookingRepo) FindByID(ctx context.Context, id uint64) (*model.Booking, error) {
	b, err := scanBooking(r.DB.QueryRowContext(ctx, bookingSelect+" WHERE b.id = ? LIMIT 1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

// Find lists bookings matching f.
func (r *BookingRepo) Find(ctx context.Context, f *query.Features) ([]model.Booking, error) {
	q, args, err := f.Build(bookingSelect)
	if err != nil {
		return nil, err
	}
	return r.list(ctx, q, args...)
}

// FindByUser lists a user's bookings, newest first.
func (r *BookingRepo) FindByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	return r.list(ctx, bookingSelect+" WHERE b.user_id = ? ORDER BY b.created_at DESC, b.id DESC", userID)
}

func (r *BookingRepo) list(ctx context.Context, q string, args ...any) ([]model.Booking, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	bookings := []model.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

// Update saves a booking and bumps its version.
func (r *BookingRepo) Update(ctx context.Context, b *model.Booking) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE bookings SET tour_id = ?, user_id = ?, price = ?, paid = ?, version = version + 1 WHERE id = ? AND version = ?",
		b.TourID, b.UserID, b.Price, b.Paid, b.ID, b.Version)
	if err != nil {
		return err
	}
	if err := expectVersion(res); err != nil {
		return err
	}
	b.Version++
	return nil
}

// DeleteByID removes a booking.
func (r *BookingRepo) DeleteByID(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM bookings WHERE id = ?", id)
	if err != nil {
		return err
	}
	return expectOne(res)
}
