package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/query"
	"github.com/iliyamo/tour-booking/internal/utils"
)

// TourSchema declares the filterable and sortable tour fields. Repeated
// parameters are accepted for the numeric fields and difficulty.
var TourSchema = &query.Schema{
	IDColumn: "t.id",
	Hidden:   []string{"version"},
	Fields: map[string]query.Field{
		"name":            {Column: "t.name"},
		"slug":            {Column: "t.slug"},
		"duration":        {Column: "t.duration", Kind: query.Number, Multi: true},
		"maxGroupSize":    {Column: "t.max_group_size", Kind: query.Number, Multi: true},
		"difficulty":      {Column: "t.difficulty", Multi: true},
		"ratingsAverage":  {Column: "t.ratings_average", Kind: query.Number, Multi: true},
		"ratingsQuantity": {Column: "t.ratings_quantity", Kind: query.Number, Multi: true},
		"price":           {Column: "t.price", Kind: query.Number, Multi: true},
		"priceDiscount":   {Column: "t.price_discount", Kind: query.Number},
		"summary":         {Column: "t.summary"},
		"createdAt":       {Column: "t.created_at", Kind: query.Time},
	},
}

const tourColumns = "t.id, t.name, t.slug, t.duration, t.max_group_size, t.difficulty, " +
	"t.ratings_average, t.ratings_quantity, t.price, t.price_discount, t.summary, t.description, " +
	"t.image_cover, t.images, t.start_location_lng, t.start_location_lat, t.start_location_address, " +
	"t.start_location_description, t.locations, t.secret_tour, t.version, t.created_at"

// Distance conversions for geo queries.
const (
	MetersPerMile = 1609.344
	MetersPerKm   = 1000.0
)

// TourRepo persists tours with their start dates and guides. Secret tours
// are invisible to every read.
type TourRepo struct{ DB *sql.DB }

func NewTourRepo(db *sql.DB) *TourRepo { return &TourRepo{DB: db} }

func scanTour(s rowScanner) (*model.Tour, error) {
	var (
		t                 model.Tour
		discount          sql.NullFloat64
		images, locations []byte
		lng, lat          sql.NullFloat64
		addr, desc        sql.NullString
	)
	err := s.Scan(&t.ID, &t.Name, &t.Slug, &t.Duration, &t.MaxGroupSize, &t.Difficulty,
		&t.RatingsAverage, &t.RatingsQuantity, &t.Price, &discount, &t.Summary, &t.Description,
		&t.ImageCover, &images, &lng, &lat, &addr, &desc, &locations, &t.SecretTour, &t.Version, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	if discount.Valid {
		d := discount.Float64
		t.PriceDiscount = &d
	}
	t.Images = []string{}
	if len(images) > 0 {
		if err := json.Unmarshal(images, &t.Images); err != nil {
			return nil, err
		}
	}
	t.Locations = []model.GeoPoint{}
	if len(locations) > 0 {
		if err := json.Unmarshal(locations, &t.Locations); err != nil {
			return nil, err
		}
	}
	if lng.Valid && lat.Valid {
		t.StartLocation = &model.GeoPoint{
			Type:        "Point",
			Coordinates: []float64{lng.Float64, lat.Float64},
			Address:     addr.String,
			Description: desc.String,
		}
	}
	t.StartDates = []time.Time{}
	t.Guides = []model.UserRef{}
	return &t, nil
}

// tourValues returns the column values written by insert and update.
func tourValues(t *model.Tour) ([]any, error) {
	images, err := json.Marshal(nonNilStrings(t.Images))
	if err != nil {
		return nil, err
	}
	if t.Locations == nil {
		t.Locations = []model.GeoPoint{}
	}
	for i := range t.Locations {
		if t.Locations[i].Type == "" {
			t.Locations[i].Type = "Point"
		}
	}
	locations, err := json.Marshal(t.Locations)
	if err != nil {
		return nil, err
	}
	var lng, lat, addr, desc any
	if t.StartLocation != nil && len(t.StartLocation.Coordinates) == 2 {
		t.StartLocation.Type = "Point"
		lng, lat = t.StartLocation.Lng(), t.StartLocation.Lat()
		addr, desc = t.StartLocation.Address, t.StartLocation.Description
	}
	return []any{t.Name, t.Slug, t.Duration, t.MaxGroupSize, t.Difficulty, t.RatingsAverage,
		t.RatingsQuantity, t.Price, t.PriceDiscount, t.Summary, t.Description, t.ImageCover,
		string(images), lng, lat, addr, desc, string(locations), t.SecretTour}, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// prepareSave trims the name and recomputes the slug.
func prepareSave(t *model.Tour) {
	t.Name = strings.TrimSpace(t.Name)
	t.Slug = utils.Slugify(t.Name)
}

// Create inserts a tour with its start dates and guides in one transaction.
func (r *TourRepo) Create(ctx context.Context, t *model.Tour) error {
	prepareSave(t)
	vals, err := tourValues(t)
	if err != nil {
		return err
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO tours (name, slug, duration, max_group_size, difficulty, ratings_average, ratings_quantity, "+
			"price, price_discount, summary, description, image_cover, images, start_location_lng, "+
			"start_location_lat, start_location_address, start_location_description, locations, secret_tour) "+
			"VALUES ("+placeholders(len(vals))+")", vals...)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	if err := writeRelations(ctx, tx, t); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	t.CreatedAt = time.Now().UTC()
	return nil
}

func writeRelations(ctx context.Context, tx *sql.Tx, t *model.Tour) error {
	if len(t.StartDates) > 0 {
		args := make([]any, 0, 2*len(t.StartDates))
		rows := make([]string, 0, len(t.StartDates))
		for _, d := range t.StartDates {
			rows = append(rows, "(?,?)")
			args = append(args, t.ID, d.UTC())
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT IGNORE INTO tour_start_dates (tour_id, starts_at) VALUES "+strings.Join(rows, ","), args...); err != nil {
			return err
		}
	}
	if ids := t.GuideIDs(); len(ids) > 0 {
		args := make([]any, 0, 3*len(ids))
		rows := make([]string, 0, len(ids))
		for i, gid := range ids {
			rows = append(rows, "(?,?,?)")
			args = append(args, t.ID, gid, i)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT IGNORE INTO tour_guides (tour_id, user_id, position) VALUES "+strings.Join(rows, ","), args...); err != nil {
			return err
		}
	}
	return nil
}

// FindByID fetches a public tour with its start dates and guides.
func (r *TourRepo) FindByID(ctx context.Context, id uint64) (*model.Tour, error) {
	return r.one(ctx, "t.id = ?", id)
}

// FindBySlug fetches a public tour by slug.
func (r *TourRepo) FindBySlug(ctx context.Context, slug string) (*model.Tour, error) {
	return r.one(ctx, "t.slug = ?", slug)
}

func (r *TourRepo) one(ctx context.Context, where string, args ...any) (*model.Tour, error) {
	t, err := scanTour(r.DB.QueryRowContext(ctx,
		"SELECT "+tourColumns+" FROM tours t WHERE t.secret_tour = 0 AND "+where+" LIMIT 1", args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	tours := []model.Tour{*t}
	if err := r.loadRelations(ctx, tours); err != nil {
		return nil, err
	}
	return &tours[0], nil
}

// Find lists public tours matching f.
func (r *TourRepo) Find(ctx context.Context, f *query.Features) ([]model.Tour, error) {
	q, args, err := f.Where("t.secret_tour = ?", false).Build("SELECT " + tourColumns + " FROM tours t")
	if err != nil {
		return nil, err
	}
	return r.list(ctx, q, args...)
}

func (r *TourRepo) list(ctx context.Context, q string, args ...any) ([]model.Tour, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tours := []model.Tour{}
	for rows.Next() {
		t, err := scanTour(rows)
		if err != nil {
			return nil, err
		}
		tours = append(tours, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadRelations(ctx, tours); err != nil {
		return nil, err
	}
	return tours, nil
}

// loadRelations fills start dates and expanded guides for tours.
func (r *TourRepo) loadRelations(ctx context.Context, tours []model.Tour) error {
	if len(tours) == 0 {
		return nil
	}
	index := make(map[uint64]int, len(tours))
	args := make([]any, len(tours))
	for i, t := range tours {
		index[t.ID] = i
		args[i] = t.ID
	}
	in := placeholders(len(tours))

	rows, err := r.DB.QueryContext(ctx,
		"SELECT tour_id, starts_at FROM tour_start_dates WHERE tour_id IN ("+in+") ORDER BY tour_id, starts_at", args...)
	if err != nil {
		return err
	}
	for rows.Next() {
		var (
			tid uint64
			at  time.Time
		)
		if err := rows.Scan(&tid, &at); err != nil {
			rows.Close()
			return err
		}
		if i, ok := index[tid]; ok {
			tours[i].StartDates = append(tours[i].StartDates, at)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	rows, err = r.DB.QueryContext(ctx,
		"SELECT g.tour_id, u.id, u.name, u.email, u.photo, u.role FROM tour_guides g "+
			"JOIN users u ON u.id = g.user_id AND u.active = 1 "+
			"WHERE g.tour_id IN ("+in+") ORDER BY g.tour_id, g.position", args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			tid uint64
			g   model.UserRef
		)
		if err := rows.Scan(&tid, &g.ID, &g.Name, &g.Email, &g.Photo, &g.Role); err != nil {
			return err
		}
		if i, ok := index[tid]; ok {
			tours[i].Guides = append(tours[i].Guides, g)
		}
	}
	return rows.Err()
}

// Update saves t, replacing its start dates and guides, and bumps its
// version. Rating aggregates are left untouched; see UpdateRatings.
func (r *TourRepo) Update(ctx context.Context, t *model.Tour) error {
	prepareSave(t)
	vals, err := tourValues(t)
	if err != nil {
		return err
	}
	// the rating columns are skipped
	vals = append(vals[:5:5], vals[7:]...)
	vals = append(vals, t.ID, t.Version)

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"UPDATE tours SET name = ?, slug = ?, duration = ?, max_group_size = ?, difficulty = ?, "+
			"price = ?, price_discount = ?, summary = ?, description = ?, image_cover = ?, images = ?, "+
			"start_location_lng = ?, start_location_lat = ?, start_location_address = ?, "+
			"start_location_description = ?, locations = ?, secret_tour = ?, version = version + 1 "+
			"WHERE id = ? AND version = ?", vals...)
	if err != nil {
		return err
	}
	if err := expectVersion(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM tour_start_dates WHERE tour_id = ?", t.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM tour_guides WHERE tour_id = ?", t.ID); err != nil {
		return err
	}
	if err := writeRelations(ctx, tx, t); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	t.Version++
	return nil
}

// DeleteByID removes a tour; its dates, guides, reviews and bookings
// cascade.
func (r *TourRepo) DeleteByID(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM tours WHERE id = ?", id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// UpdateRatings stores a recomputed rating aggregate.
func (r *TourRepo) UpdateRatings(ctx context.Context, id uint64, quantity int, average float64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE tours SET ratings_quantity = ?, ratings_average = ? WHERE id = ?", quantity, average, id)
	return err
}

// Stats groups the well rated tours (average >= 4.5) by difficulty,
// cheapest group first.
func (r *TourRepo) Stats(ctx context.Context) ([]model.TourStats, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT UPPER(difficulty) AS difficulty, COUNT(*) AS num_tours, COALESCE(SUM(ratings_quantity), 0), "+
			"AVG(ratings_average), AVG(price) AS avg_price, MIN(price), MAX(price) "+
			"FROM tours WHERE ratings_average >= ? AND secret_tour = 0 "+
			"GROUP BY UPPER(difficulty) ORDER BY avg_price ASC", 4.5)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	stats := []model.TourStats{}
	for rows.Next() {
		var s model.TourStats
		if err := rows.Scan(&s.Difficulty, &s.NumTours, &s.NumRatings, &s.AvgRating, &s.AvgPrice, &s.MinPrice, &s.MaxPrice); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// MonthlyPlan counts the tour starts of each month of year, busiest month
// first.
func (r *TourRepo) MonthlyPlan(ctx context.Context, year int) ([]model.MonthlyPlan, error) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)
	rows, err := r.DB.QueryContext(ctx,
		"SELECT MONTH(d.starts_at) AS month, COUNT(*) AS num_tour_starts, JSON_ARRAYAGG(t.name) "+
			"FROM tour_start_dates d JOIN tours t ON t.id = d.tour_id "+
			"WHERE d.starts_at >= ? AND d.starts_at < ? AND t.secret_tour = 0 "+
			"GROUP BY month ORDER BY num_tour_starts DESC, month ASC LIMIT 12", from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	plan := []model.MonthlyPlan{}
	for rows.Next() {
		var (
			p     model.MonthlyPlan
			names []byte
		)
		if err := rows.Scan(&p.Month, &p.NumTourStarts, &names); err != nil {
			return nil, err
		}
		p.Tours = []string{}
		if len(names) > 0 {
			if err := json.Unmarshal(names, &p.Tours); err != nil {
				return nil, err
			}
		}
		plan = append(plan, p)
	}
	return plan, rows.Err()
}

// Within lists public tours whose start location lies within radius
// meters of (lat, lng).
func (r *TourRepo) Within(ctx context.Context, lat, lng, radius float64) ([]model.Tour, error) {
	return r.list(ctx,
		"SELECT "+tourColumns+" FROM tours t WHERE t.secret_tour = 0 AND t.start_location_lng IS NOT NULL "+
			"AND ST_Distance_Sphere(POINT(t.start_location_lng, t.start_location_lat), POINT(?, ?)) <= ? "+
			"ORDER BY t.id ASC", lng, lat, radius)
}

// Distances returns every public tour with its distance from (lat, lng),
// in meters scaled by multiplier, nearest first.
func (r *TourRepo) Distances(ctx context.Context, lat, lng, multiplier float64) ([]model.TourDistance, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT t.id, t.name, ST_Distance_Sphere(POINT(t.start_location_lng, t.start_location_lat), POINT(?, ?)) * ? AS distance "+
			"FROM tours t WHERE t.secret_tour = 0 AND t.start_location_lng IS NOT NULL ORDER BY distance ASC", lng, lat, multiplier)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.TourDistance{}
	for rows.Next() {
		var d model.TourDistance
		if err := rows.Scan(&d.ID, &d.Name, &d.Distance); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
