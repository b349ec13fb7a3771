package handler

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/tour-booking/internal/mailer"
	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/payment"
	"github.com/iliyamo/tour-booking/internal/query"
	"github.com/iliyamo/tour-booking/internal/repository"
	"github.com/iliyamo/tour-booking/internal/utils"
)

// ----- tours -----

type fakeTours struct {
	mu   sync.Mutex
	rows map[uint64]*model.Tour
	next uint64

	lastRadius     float64
	lastMultiplier float64
	lastYear       int
}

func newFakeTours(tours ...model.Tour) *fakeTours {
	f := &fakeTours{rows: map[uint64]*model.Tour{}}
	for i := range tours {
		t := tours[i]
		_ = f.Create(context.Background(), &t)
	}
	return f
}

func (f *fakeTours) Create(_ context.Context, t *model.Tour) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.Name == t.Name {
			return &mysql.MySQLError{Number: 1062, Message: "Duplicate entry '" + t.Name + "' for key 'tours.name'"}
		}
	}
	f.next++
	t.ID = f.next
	t.Slug = utils.Slugify(t.Name)
	cp := *t
	f.rows[t.ID] = &cp
	return nil
}

func (f *fakeTours) FindByID(_ context.Context, id uint64) (*model.Tour, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.rows[id]
	if !ok || t.SecretTour {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTours) FindBySlug(_ context.Context, slug string) (*model.Tour, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.rows {
		if t.Slug == slug && !t.SecretTour {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeTours) Find(_ context.Context, q *query.Features) ([]model.Tour, error) {
	if err := q.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Tour{}
	for _, t := range f.rows {
		if !t.SecretTour {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if q.Paginated() && len(out) > q.Limit() {
		out = out[:q.Limit()]
	}
	return out, nil
}

func (f *fakeTours) Update(_ context.Context, t *model.Tour) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.rows[t.ID]
	if !ok || cur.Version != t.Version {
		return repository.ErrConflict
	}
	t.Version++
	t.Slug = utils.Slugify(t.Name)
	cp := *t
	f.rows[t.ID] = &cp
	return nil
}

func (f *fakeTours) DeleteByID(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeTours) Stats(context.Context) ([]model.TourStats, error) {
	return []model.TourStats{{Difficulty: "EASY", NumTours: 2, AvgPrice: 997}}, nil
}

func (f *fakeTours) MonthlyPlan(_ context.Context, year int) ([]model.MonthlyPlan, error) {
	f.lastYear = year
	return []model.MonthlyPlan{{Month: 7, NumTourStarts: 3, Tours: []string{"The Forest Hiker"}}}, nil
}

func (f *fakeTours) Within(_ context.Context, _, _, radius float64) ([]model.Tour, error) {
	f.lastRadius = radius
	return []model.Tour{{ID: 1, Name: "The Forest Hiker"}}, nil
}

func (f *fakeTours) Distances(_ context.Context, _, _, multiplier float64) ([]model.TourDistance, error) {
	f.lastMultiplier = multiplier
	return []model.TourDistance{{ID: 1, Name: "The Forest Hiker", Distance: 40.5}}, nil
}

// ----- users -----

type fakeUsers struct {
	mu   sync.Mutex
	rows map[uint64]*model.User
	next uint64
}

func newFakeUsers(users ...*model.User) *fakeUsers {
	f := &fakeUsers{rows: map[uint64]*model.User{}}
	for _, u := range users {
		if u.ID > f.next {
			f.next = u.ID
		}
		u.Active = true
		f.rows[u.ID] = u
	}
	return f
}

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.Email == u.Email {
			return &mysql.MySQLError{Number: 1062, Message: "Duplicate entry '" + u.Email + "' for key 'users.email'"}
		}
	}
	f.next++
	u.ID = f.next
	u.Active = true
	if u.Photo == "" {
		u.Photo = model.DefaultPhoto
	}
	cp := *u
	f.rows[u.ID] = &cp
	return nil
}

func (f *fakeUsers) FindByID(_ context.Context, id uint64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.rows[id]
	if !ok || !u.Active {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.rows {
		if u.Email == strings.ToLower(email) && u.Active {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) FindByResetToken(_ context.Context, hash string, now time.Time) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.rows {
		if u.PasswordResetToken != nil && *u.PasswordResetToken == hash && u.PasswordResetExpires.After(now) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) FindByIDs(_ context.Context, ids []uint64) (map[uint64]*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[uint64]*model.User{}
	for _, id := range ids {
		if u, ok := f.rows[id]; ok && u.Active {
			cp := *u
			out[id] = &cp
		}
	}
	return out, nil
}

func (f *fakeUsers) Find(context.Context, *query.Features) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.User{}
	for _, u := range f.rows {
		if u.Active {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeUsers) Update(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.rows[u.ID]
	if !ok || cur.Version != u.Version {
		return repository.ErrConflict
	}
	cur.Name, cur.Email, cur.Photo, cur.Role = u.Name, u.Email, u.Photo, u.Role
	cur.Version++
	u.Version++
	return nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, id uint64, hash string, changedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.rows[id]
	u.PasswordHash = hash
	u.PasswordChangedAt = &changedAt
	u.PasswordResetToken, u.PasswordResetExpires = nil, nil
	return nil
}

func (f *fakeUsers) RedeemResetToken(_ context.Context, id uint64, token, hash string, changedAt, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.rows[id]
	if u == nil || u.PasswordResetToken == nil || *u.PasswordResetToken != token || !u.PasswordResetExpires.After(now) {
		return repository.ErrNotFound
	}
	u.PasswordHash = hash
	u.PasswordChangedAt = &changedAt
	u.PasswordResetToken, u.PasswordResetExpires = nil, nil
	return nil
}

func (f *fakeUsers) SetResetToken(_ context.Context, id uint64, hash *string, expires *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[id].PasswordResetToken = hash
	f.rows[id].PasswordResetExpires = expires
	return nil
}

func (f *fakeUsers) Deactivate(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.rows[id]
	if !ok || !u.Active {
		return repository.ErrNotFound
	}
	u.Active = false
	return nil
}

func (f *fakeUsers) DeleteByID(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.rows, id)
	return nil
}

// ----- reviews -----

type fakeReviews struct {
	mu   sync.Mutex
	rows map[uint64]*model.Review
	next uint64

	lastScope []string
}

func newFakeReviews() *fakeReviews { return &fakeReviews{rows: map[uint64]*model.Review{}} }

func (f *fakeReviews) Create(_ context.Context, rv *model.Review) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.TourID == rv.TourID && r.User.ID == rv.User.ID {
			return &mysql.MySQLError{Number: 1062, Message: "Duplicate entry '3-5' for key 'reviews.tour_user'"}
		}
	}
	f.next++
	rv.ID = f.next
	cp := *rv
	f.rows[rv.ID] = &cp
	return nil
}

func (f *fakeReviews) FindByID(_ context.Context, id uint64) (*model.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rv, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rv
	return &cp, nil
}

func (f *fakeReviews) Find(_ context.Context, q *query.Features) ([]model.Review, error) {
	conds, args := q.Conditions()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastScope = conds
	out := []model.Review{}
	for _, rv := range f.rows {
		if len(args) > 0 && conds[0] == "r.tour_id = ?" && rv.TourID != args[0].(uint64) {
			continue
		}
		out = append(out, *rv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeReviews) FindByTour(ctx context.Context, tourID uint64) ([]model.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Review{}
	for _, rv := range f.rows {
		if rv.TourID == tourID {
			out = append(out, *rv)
		}
	}
	return out, nil
}

func (f *fakeReviews) Update(_ context.Context, rv *model.Review) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rv.Version++
	cp := *rv
	f.rows[rv.ID] = &cp
	return nil
}

func (f *fakeReviews) DeleteByID(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.rows, id)
	return nil
}

type recordedRatings struct {
	mu    sync.Mutex
	tours []uint64
}

func (r *recordedRatings) Recompute(_ context.Context, tourID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tours = append(r.tours, tourID)
	return nil
}

// ----- bookings -----

type fakeBookings struct {
	mu   sync.Mutex
	rows map[uint64]*model.Booking
	next uint64
}

func newFakeBookings() *fakeBookings { return &fakeBookings{rows: map[uint64]*model.Booking{}} }

func (f *fakeBookings) Create(_ context.Context, b *model.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b.SessionID != nil {
		for _, r := range f.rows {
			if r.SessionID != nil && *r.SessionID == *b.SessionID {
				return &mysql.MySQLError{Number: 1062, Message: "Duplicate entry '" + *b.SessionID + "' for key 'bookings.stripe_session_id'"}
			}
		}
	}
	f.next++
	b.ID = f.next
	b.CreatedAt = time.Now().UTC()
	cp := *b
	f.rows[b.ID] = &cp
	return nil
}

func (f *fakeBookings) FindByID(_ context.Context, id uint64) (*model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBookings) Find(context.Context, *query.Features) ([]model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Booking{}
	for _, b := range f.rows {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeBookings) FindByUser(_ context.Context, userID uint64) ([]model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Booking{}
	for _, b := range f.rows {
		if b.UserID == userID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeBookings) Update(_ context.Context, b *model.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b.Version++
	cp := *b
	f.rows[b.ID] = &cp
	return nil
}

func (f *fakeBookings) DeleteByID(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.rows, id)
	return nil
}

// ----- integrations -----

type fakeCheckout struct {
	completed *payment.CompletedCheckout
	err       error
	orders    []payment.Order
}

func (f *fakeCheckout) CreateSession(_ context.Context, o payment.Order) (*payment.Session, error) {
	f.orders = append(f.orders, o)
	return &payment.Session{ID: "cs_test_1", URL: "https://checkout.example/cs_test_1"}, nil
}

func (f *fakeCheckout) ParseWebhook([]byte, string) (*payment.CompletedCheckout, error) {
	return f.completed, f.err
}

type recordedPublisher struct {
	mu     sync.Mutex
	queues []string
	events []any
}

func (p *recordedPublisher) Publish(_ context.Context, queue string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queues = append(p.queues, queue)
	p.events = append(p.events, event)
	return nil
}

type outbox struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (o *outbox) Send(_ context.Context, msg mailer.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

// countingEvictor counts cache evictions.
type countingEvictor struct{ n int }

func (c *countingEvictor) Evict(context.Context) error {
	c.n++
	return nil
}
