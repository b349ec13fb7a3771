package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/apperr"
	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/repository"
	"github.com/iliyamo/tour-booking/internal/utils"
	"github.com/iliyamo/tour-booking/internal/validation"
)

const msgNotForPasswords = "This route is not for password updates. Please use /updateMyPassword."

// UserStore is the user repository as seen by the handlers.
type UserStore interface {
	Store[model.User]
	Deactivate(ctx context.Context, id uint64) error
}

// UserHandler serves the profile routes and the admin user routes.
type UserHandler struct {
	*Resource[model.User]
	Users      UserStore
	BcryptCost int
}

func NewUserHandler(users UserStore, bcryptCost int) *UserHandler {
	h := &UserHandler{Users: users, BcryptCost: bcryptCost}
	h.Resource = &Resource[model.User]{
		Store:   users,
		Schema:  repository.UserSchema,
		Prepare: restoreUser,
	}
	return h
}

// restoreUser keeps credentials and account state out of admin patches.
func restoreUser(_ echo.Context, u, prev *model.User) error {
	if prev == nil {
		return nil
	}
	u.ID = prev.ID
	u.PasswordHash = prev.PasswordHash
	u.PasswordChangedAt = prev.PasswordChangedAt
	u.PasswordResetToken = prev.PasswordResetToken
	u.PasswordResetExpires = prev.PasswordResetExpires
	u.Active = prev.Active
	u.CreatedAt = prev.CreatedAt
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Photo == "" {
		u.Photo = model.DefaultPhoto
	}
	return nil
}

type createUserReq struct {
	Name            string `json:"name" validate:"required,max=100"`
	Email           string `json:"email" validate:"required,email,max=255"`
	Role            string `json:"role" validate:"omitempty,oneof=admin user guide lead-guide"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

// CreateUser lets an admin create an account with any role.
func (h *UserHandler) CreateUser(c echo.Context) error {
	var req createUserReq
	if err := bindBody(c, &req); err != nil {
		return err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Role == "" {
		req.Role = model.RoleUser
	}
	if err := validation.Struct(req); err != nil {
		return err
	}
	hash, err := utils.HashPassword(req.Password, h.BcryptCost)
	if err != nil {
		return err
	}
	u := &model.User{Name: req.Name, Email: req.Email, Role: req.Role, PasswordHash: hash}

	ctx, cancel := dbContext(c)
	defer cancel()
	if err := h.Users.Create(ctx, u); err != nil {
		return err
	}
	return document(c, http.StatusCreated, u)
}

// GetMe returns the logged in user.
func (h *UserHandler) GetMe(c echo.Context) error {
	me, err := currentUser(c)
	if err != nil {
		return err
	}
	return h.getByID(c, me.ID)
}

type updateMeReq struct {
	Name            *string `json:"name"`
	Email           *string `json:"email"`
	Password        *string `json:"password"`
	PasswordConfirm *string `json:"passwordConfirm"`
}

// UpdateMe changes the name and email of the logged in user.  Any other
// field in the body is ignored.
func (h *UserHandler) UpdateMe(c echo.Context) error {
	me, err := currentUser(c)
	if err != nil {
		return err
	}
	var req updateMeReq
	if err := bindBody(c, &req); err != nil {
		return err
	}
	if req.Password != nil || req.PasswordConfirm != nil {
		return apperr.New(apperr.BadRequest, msgNotForPasswords)
	}

	ctx, cancel := dbContext(c)
	defer cancel()
	u, err := h.Users.FindByID(ctx, me.ID)
	if err != nil {
		return err
	}
	if req.Name != nil {
		u.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		u.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if err := c.Validate(u); err != nil {
		return err
	}
	if err := h.Users.Update(ctx, u); err != nil {
		return err
	}
	return success(c, http.StatusOK, echo.Map{"user": u})
}

// DeleteMe deactivates the logged in user.  The row stays; the account
// disappears from every lookup.
func (h *UserHandler) DeleteMe(c echo.Context) error {
	me, err := currentUser(c)
	if err != nil {
		return err
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	if err := h.Users.Deactivate(ctx, me.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
