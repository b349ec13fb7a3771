package utils // package utils provides helper functions for token creation and hashing

import (
	"crypto/rand"   // secure random number generation
	"crypto/sha256" // SHA‑256 hashing for password reset tokens
	"encoding/hex"  // hex encoding and decoding functions
	"errors"
	"strconv"
	"time" // time utilities for generating expirations

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// ResetTokenTTL is how long a password reset token stays valid.
const ResetTokenTTL = 10 * time.Minute

// SessionToken represents a signed JWT session token along with its expiry.
// The same string is returned in the response body and stored in the `jwt`
// cookie.
type SessionToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// Claims are the verified contents of a session token.
type Claims struct {
	UserID   uint64
	IssuedAt time.Time
	Expires  time.Time
}

// ResetToken is a single-use password reset token.  Raw goes into the
// emailed link; only Hash is stored.
type ResetToken struct {
	Raw     string
	Hash    string
	Expires time.Time
}

var errMissingSubject = errors.New("token has no subject")

// NewSessionToken builds and signs an HS256 JWT for a user.  The JWT
// carries the subject (sub), expiration (exp) and issued at (iat) claims.
// The role is not embedded: it is read from the user row on every request
// so that role changes take effect immediately.
func NewSessionToken(secret string, userID uint64, ttl time.Duration, now time.Time) (SessionToken, error) {
	now = now.UTC()
	exp := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return SessionToken{}, err
	}
	return SessionToken{Token: signed, Exp: exp}, nil
}

// ParseSessionToken verifies the signature and expiry of raw and returns
// its claims.  Only HMAC signing methods are accepted.  Errors are the jwt
// package's own so that callers can tell expired tokens from forged ones.
func ParseSessionToken(secret, raw string) (Claims, error) {
	var rc jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &rc, func(t *jwt.Token) (interface{}, error) {
		// Type assert the signing method to HMAC; reject others.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired(), jwt.WithIssuedAt())
	if err != nil {
		return Claims{}, err
	}
	id, err := strconv.ParseUint(rc.Subject, 10, 64)
	if err != nil || id == 0 {
		return Claims{}, errors.Join(jwt.ErrTokenInvalidClaims, errMissingSubject)
	}
	out := Claims{UserID: id}
	if rc.IssuedAt != nil {
		out.IssuedAt = rc.IssuedAt.Time
	}
	if rc.ExpiresAt != nil {
		out.Expires = rc.ExpiresAt.Time
	}
	return out, nil
}

// ChangedPasswordAfter reports whether the password was changed after a
// token issued at issuedAt.  JWT timestamps have second resolution, so a
// token issued in the second of the change still counts as newer.
func ChangedPasswordAfter(changedAt *time.Time, issuedAt time.Time) bool {
	if changedAt == nil {
		return false
	}
	return issuedAt.Unix() < changedAt.Unix()
}

// NewResetToken returns a fresh reset token valid for ResetTokenTTL.
func NewResetToken(now time.Time) (ResetToken, error) {
	// 32 bytes -> 64 hex chars
	raw, err := randomHex(32)
	if err != nil {
		return ResetToken{}, err
	}
	return ResetToken{
		Raw:     raw,
		Hash:    HashToken(raw),
		Expires: now.UTC().Add(ResetTokenTTL),
	}, nil
}

// HashToken returns the SHA‑256 hash of a raw token as a hex string.
// Storing only the hash in the database prevents a leaked row from being
// replayed as a reset link.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// randomHex returns a hex‑encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
