package model

import (
	"strconv"
	"time"

	json "github.com/goccy/go-json"
)

// Roles a user can hold.  The set is closed; the users.role column is an
// ENUM with the same values.
const (
	RoleAdmin     = "admin"
	RoleUser      = "user"
	RoleGuide     = "guide"
	RoleLeadGuide = "lead-guide"
)

// DefaultPhoto is stored for users that never uploaded a picture.
const DefaultPhoto = "default.jpg"

// User represents a row in the `users` table.  Credential columns carry
// json:"-" so that no response ever includes the password hash or the
// reset token, whichever handler serializes the struct.
//
// Fields:
//  ID                   – primary key identifier.
//  Name, Email          – profile; email is unique and stored lowercased.
//  Photo                – file name of the profile picture.
//  Role                 – one of admin, user, guide, lead-guide.
//  PasswordHash         – bcrypt hash.
//  PasswordChangedAt    – set whenever the password changes after signup.
//  PasswordResetToken   – SHA‑256 hex digest of the pending reset token.
//  PasswordResetExpires – expiry of the pending reset token.
//  Active               – false once the user deleted their account.
type User struct {
	ID                   uint64     `json:"id"`
	Name                 string     `json:"name" validate:"required,max=100"`
	Email                string     `json:"email" validate:"required,email,max=255"`
	Photo                string     `json:"photo"`
	Role                 string     `json:"role" validate:"required,oneof=admin user guide lead-guide"`
	PasswordHash         string     `json:"-"`
	PasswordChangedAt    *time.Time `json:"-"`
	PasswordResetToken   *string    `json:"-"`
	PasswordResetExpires *time.Time `json:"-"`
	Active               bool       `json:"-"`
	Version              uint32     `json:"version"`
	CreatedAt            time.Time  `json:"createdAt"`
}

// UserRef is a reference to a user that is serialized as an object once
// expanded.  Clients may send either the bare id (5 or "5") or an object
// with an "id" key.
type UserRef struct {
	ID    uint64 `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Photo string `json:"photo,omitempty"`
	Role  string `json:"role,omitempty"`
}

// RefOf builds a fully expanded reference from a user.
func RefOf(u *User) UserRef {
	return UserRef{ID: u.ID, Name: u.Name, Email: u.Email, Photo: u.Photo, Role: u.Role}
}

func (r *UserRef) UnmarshalJSON(b []byte) error {
	var n uint64
	if err := json.Unmarshal(b, &n); err == nil {
		*r = UserRef{ID: n}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return err
		}
		*r = UserRef{ID: id}
		return nil
	}
	type plain UserRef
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*r = UserRef(p)
	return nil
}
