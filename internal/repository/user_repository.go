package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/query"
)

// UserSchema declares the filterable and sortable user fields.
var UserSchema = &query.Schema{
	IDColumn: "id",
	Hidden:   []string{"version"},
	Fields: map[string]query.Field{
		"name":      {Column: "name"},
		"email":     {Column: "email"},
		"role":      {Column: "role", Multi: true},
		"photo":     {Column: "photo"},
		"createdAt": {Column: "created_at", Kind: query.Time},
	},
}

const userColumns = "id, name, email, photo, role, password_hash, password_changed_at, " +
	"password_reset_token, password_reset_expires, active, version, created_at"

// UserRepo reads and writes the users table. Every lookup ignores rows
// whose active flag was cleared by a self-service delete.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*model.User, error) {
	var (
		u         model.User
		changedAt sql.NullTime
		token     sql.NullString
		expires   sql.NullTime
	)
	err := s.Scan(&u.ID, &u.Name, &u.Email, &u.Photo, &u.Role, &u.PasswordHash, &changedAt,
		&token, &expires, &u.Active, &u.Version, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	if changedAt.Valid {
		t := changedAt.Time
		u.PasswordChangedAt = &t
	}
	if token.Valid {
		s := token.String
		u.PasswordResetToken = &s
	}
	if expires.Valid {
		t := expires.Time
		u.PasswordResetExpires = &t
	}
	return &u, nil
}

func (r *UserRepo) one(ctx context.Context, where string, args ...any) (*model.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE active = 1 AND "+where+" LIMIT 1", args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// Create inserts a user with an already hashed password and fills its ID.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Photo == "" {
		u.Photo = model.DefaultPhoto
	}
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	u.Active = true
	u.CreatedAt = time.Now().UTC().Truncate(time.Second)
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (name, email, photo, role, password_hash, password_changed_at, created_at) VALUES (?,?,?,?,?,?,?)",
		u.Name, u.Email, u.Photo, u.Role, u.PasswordHash, u.PasswordChangedAt, u.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	return nil
}

// FindByID fetches an active user by id.
func (r *UserRepo) FindByID(ctx context.Context, id uint64) (*model.User, error) {
	return r.one(ctx, "id = ?", id)
}

// FindByEmail fetches an active user by normalized email.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.one(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

// FindByResetToken fetches the active user holding the hashed reset token,
// provided it has not expired at now.
func (r *UserRepo) FindByResetToken(ctx context.Context, hash string, now time.Time) (*model.User, error) {
	return r.one(ctx, "password_reset_token = ? AND password_reset_expires > ?", hash, now.UTC())
}

// FindByIDs returns the active users among ids, keyed by id.
func (r *UserRepo) FindByIDs(ctx context.Context, ids []uint64) (map[uint64]*model.User, error) {
	out := make(map[uint64]*model.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE active = 1 AND id IN ("+placeholders(len(ids))+")", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out[u.ID] = u
	}
	return out, rows.Err()
}

// Find lists active users matching f.
func (r *UserRepo) Find(ctx context.Context, f *query.Features) ([]model.User, error) {
	q, args, err := f.Where("active = ?", true).Build("SELECT " + userColumns + " FROM users")
	if err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// Update saves the profile fields of u and bumps its version. Credentials
// are only written by UpdatePassword and SetResetToken.
func (r *UserRepo) Update(ctx context.Context, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET name = ?, email = ?, photo = ?, role = ?, version = version + 1 WHERE id = ? AND active = 1 AND version = ?",
		u.Name, u.Email, u.Photo, u.Role, u.ID, u.Version)
	if err != nil {
		return err
	}
	if err := expectVersion(res); err != nil {
		return err
	}
	u.Version++
	return nil
}

// UpdatePassword stores a new hash, stamps the change time and clears any
// pending reset token.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, hash string, changedAt time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash = ?, password_changed_at = ?, password_reset_token = NULL, password_reset_expires = NULL WHERE id = ? AND active = 1",
		hash, changedAt.UTC(), id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// RedeemResetToken sets a new password only while the reset token is still
// stored and unexpired, and clears it in the same statement.  A second
// redemption of the same token touches no row and returns ErrNotFound.
func (r *UserRepo) RedeemResetToken(ctx context.Context, id uint64, token, hash string, changedAt, now time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash = ?, password_changed_at = ?, password_reset_token = NULL, password_reset_expires = NULL "+
			"WHERE id = ? AND password_reset_token = ? AND password_reset_expires > ? AND active = 1",
		hash, changedAt.UTC(), id, token, now.UTC())
	if err != nil {
		return err
	}
	return expectOne(res)
}

// SetResetToken stores (or with nil values clears) the hashed reset token.
func (r *UserRepo) SetResetToken(ctx context.Context, id uint64, hash *string, expires *time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_reset_token = ?, password_reset_expires = ? WHERE id = ?",
		hash, expires, id)
	return err
}

// Deactivate soft deletes a user.
func (r *UserRepo) Deactivate(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET active = 0 WHERE id = ? AND active = 1", id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// DeleteByID removes a user row.
func (r *UserRepo) DeleteByID(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// expectVersion maps a versioned write that touched no row to ErrConflict.
func expectVersion(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// expectOne maps a write that touched no row to ErrNotFound.
func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
