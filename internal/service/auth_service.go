package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/tour-booking/internal/apperr"
	"github.com/iliyamo/tour-booking/internal/config"
	"github.com/iliyamo/tour-booking/internal/logger"
	"github.com/iliyamo/tour-booking/internal/mailer"
	"github.com/iliyamo/tour-booking/internal/metrics"
	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/repository"
	"github.com/iliyamo/tour-booking/internal/utils"
	"github.com/iliyamo/tour-booking/internal/validation"
)

// UserStore is the part of the user repository authentication needs.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	FindByID(ctx context.Context, id uint64) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByResetToken(ctx context.Context, hash string, now time.Time) (*model.User, error)
	UpdatePassword(ctx context.Context, id uint64, hash string, changedAt time.Time) error
	RedeemResetToken(ctx context.Context, id uint64, token, hash string, changedAt, now time.Time) error
	SetResetToken(ctx context.Context, id uint64, hash *string, expires *time.Time) error
}

// SignupInput is the body of POST /users/signup.
type SignupInput struct {
	Name            string `json:"name" validate:"required,max=100"`
	Email           string `json:"email" validate:"required,email,max=255"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

type passwordInput struct {
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

// Messages shared with the middleware.
const (
	MsgIncorrectCredentials = "Incorrect email or password"
	MsgUserGone             = "The user belonging to this token no longer exists."
	MsgPasswordChanged      = "User recently changed password! Please log in again."
	MsgTokenInvalid         = "Token is invalid or has expired"
	MsgEmailFailed          = "There was an error sending the email. Try again later!"
)

// AuthService implements signup, login, session verification and the
// password reset lifecycle.
type AuthService struct {
	Users      UserStore
	Mailer     mailer.Mailer
	Events     *Notifier
	Secret     string
	TokenTTL   time.Duration
	BcryptCost int
	Now        func() time.Time
}

func NewAuthService(cfg config.Config, users UserStore, m mailer.Mailer, events *Notifier) *AuthService {
	return &AuthService{
		Users:      users,
		Mailer:     m,
		Events:     events,
		Secret:     cfg.JWTSecret,
		TokenTTL:   cfg.JWTExpiresIn,
		BcryptCost: cfg.BcryptCost,
		Now:        time.Now,
	}
}

func (s *AuthService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// Signup creates a regular user and enqueues the welcome email.  The role
// is always user; elevated roles are granted by an admin.
func (s *AuthService) Signup(ctx context.Context, in SignupInput, accountURL string) (*model.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	hash, err := utils.HashPassword(in.Password, s.BcryptCost)
	if err != nil {
		return nil, err
	}
	u := &model.User{
		Name:         in.Name,
		Email:        in.Email,
		Role:         model.RoleUser,
		PasswordHash: hash,
	}
	if err := s.Users.Create(ctx, u); err != nil {
		return nil, err
	}
	_ = s.Events.WelcomeEmail(ctx, u, accountURL)
	return u, nil
}

// Login checks credentials.  Unknown email and wrong password fail the
// same way.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.User, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, apperr.New(apperr.BadRequest, "Please provide email and password!")
	}
	u, err := s.Users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		metrics.RecordAuthFailure("credentials")
		return nil, apperr.New(apperr.Authentication, MsgIncorrectCredentials)
	}
	if err != nil {
		return nil, err
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		metrics.RecordAuthFailure("credentials")
		return nil, apperr.New(apperr.Authentication, MsgIncorrectCredentials)
	}
	return u, nil
}

// IssueSession signs a session token for u.
func (s *AuthService) IssueSession(u *model.User) (utils.SessionToken, error) {
	return utils.NewSessionToken(s.Secret, u.ID, s.TokenTTL, s.now())
}

// Authenticate verifies a session token and loads its user.  A token
// issued before the user's last password change is rejected.
func (s *AuthService) Authenticate(ctx context.Context, raw string) (*model.User, error) {
	claims, err := utils.ParseSessionToken(s.Secret, raw)
	if err != nil {
		metrics.RecordAuthFailure("token")
		return nil, apperr.Classify(err)
	}
	u, err := s.Users.FindByID(ctx, claims.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		metrics.RecordAuthFailure("user_gone")
		return nil, apperr.New(apperr.Authentication, MsgUserGone)
	}
	if err != nil {
		return nil, err
	}
	if utils.ChangedPasswordAfter(u.PasswordChangedAt, claims.IssuedAt) {
		metrics.RecordAuthFailure("password_changed")
		return nil, apperr.New(apperr.Authentication, MsgPasswordChanged)
	}
	return u, nil
}

// ForgotPassword stores a fresh reset token and mails its link.  resetURL
// turns the raw token into the link.  If the mail cannot be sent the token
// is cleared again so no unusable token stays valid.
func (s *AuthService) ForgotPassword(ctx context.Context, email string, resetURL func(raw string) string) error {
	if strings.TrimSpace(email) == "" {
		return apperr.New(apperr.BadRequest, "Please provide your email address.")
	}
	u, err := s.Users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.New(apperr.NotFound, "There is no user with email address.")
	}
	if err != nil {
		return err
	}

	tok, err := utils.NewResetToken(s.now())
	if err != nil {
		return err
	}
	if err := s.Users.SetResetToken(ctx, u.ID, &tok.Hash, &tok.Expires); err != nil {
		return err
	}

	sendErr := mailer.NewEmail(s.Mailer, u.Email, u.Name, resetURL(tok.Raw)).SendPasswordReset(ctx)
	if sendErr == nil {
		return nil
	}
	if err := s.Users.SetResetToken(ctx, u.ID, nil, nil); err != nil {
		logger.Ctx(ctx).Error().Err(err).Uint64("user_id", u.ID).Msg("could not clear reset token")
	}
	return apperr.Wrap(sendErr, apperr.Upstream, MsgEmailFailed).WithStatus(500)
}

// ResetPassword redeems a reset token.  The password write is conditional
// on the token still being stored, so of two concurrent redemptions only
// one succeeds.
func (s *AuthService) ResetPassword(ctx context.Context, raw, password, confirm string) (*model.User, error) {
	token := utils.HashToken(raw)
	u, err := s.Users.FindByResetToken(ctx, token, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.New(apperr.BadRequest, MsgTokenInvalid)
	}
	if err != nil {
		return nil, err
	}
	err = s.commitPassword(u, password, confirm, func(hash string, changedAt time.Time) error {
		return s.Users.RedeemResetToken(ctx, u.ID, token, hash, changedAt, s.now())
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.New(apperr.BadRequest, MsgTokenInvalid)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// UpdatePassword changes the password of a logged in user after checking
// the current one.
func (s *AuthService) UpdatePassword(ctx context.Context, userID uint64, current, password, confirm string) (*model.User, error) {
	if current == "" || password == "" || confirm == "" {
		return nil, apperr.New(apperr.BadRequest, "Please provide passwordCurrent, password and passwordConfirm.")
	}
	u, err := s.Users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.New(apperr.Authentication, MsgUserGone)
	}
	if err != nil {
		return nil, err
	}
	if !utils.VerifyPassword(u.PasswordHash, current) {
		metrics.RecordAuthFailure("credentials")
		return nil, apperr.New(apperr.Authentication, "Your current password is wrong.")
	}
	err = s.commitPassword(u, password, confirm, func(hash string, changedAt time.Time) error {
		return s.Users.UpdatePassword(ctx, u.ID, hash, changedAt)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// commitPassword validates and hashes the new password, then hands it to
// write.  Tokens issued earlier than the second of the change stop
// verifying.
func (s *AuthService) commitPassword(u *model.User, password, confirm string, write func(hash string, changedAt time.Time) error) error {
	if err := validation.Struct(passwordInput{Password: password, PasswordConfirm: confirm}); err != nil {
		return err
	}
	hash, err := utils.HashPassword(password, s.BcryptCost)
	if err != nil {
		return err
	}
	changedAt := s.now()
	if err := write(hash, changedAt); err != nil {
		return err
	}
	u.PasswordHash = hash
	u.PasswordChangedAt = &changedAt
	u.PasswordResetToken = nil
	u.PasswordResetExpires = nil
	return nil
}
