package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/config"
	"github.com/iliyamo/tour-booking/internal/middleware"
	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/service"
)

// logoutCookieTTL is how long the loggedout sentinel cookie lives.
const logoutCookieTTL = 10 * time.Second

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg  config.Config
	Auth *service.AuthService
}

func NewAuthHandler(cfg config.Config, auth *service.AuthService) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Auth: auth}
}

// ----- DTOs -----

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotReq struct {
	Email string `json:"email"`
}

type resetReq struct {
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

type updatePasswordReq struct {
	PasswordCurrent string `json:"passwordCurrent"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

// Signup creates a user and logs them in.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req service.SignupInput
	if err := bindBody(c, &req); err != nil {
		return err
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	u, err := h.Auth.Signup(ctx, req, baseURL(c, h.Cfg.BaseURL)+"/me")
	if err != nil {
		return err
	}
	return h.sendToken(c, u, http.StatusCreated)
}

// Login checks credentials and issues the session.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bindBody(c, &req); err != nil {
		return err
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	u, err := h.Auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		return err
	}
	return h.sendToken(c, u, http.StatusOK)
}

// Logout overwrites the session cookie with a short-lived sentinel.
func (h *AuthHandler) Logout(c echo.Context) error {
	c.SetCookie(&http.Cookie{
		Name:     middleware.CookieName,
		Value:    middleware.LoggedOut,
		Path:     "/",
		Expires:  time.Now().Add(logoutCookieTTL),
		HttpOnly: true,
		Secure:   secureRequest(c),
		SameSite: http.SameSiteLaxMode,
	})
	return c.JSON(http.StatusOK, echo.Map{"status": "success"})
}

// ForgotPassword mails a reset link to the account's address.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotReq
	if err := bindBody(c, &req); err != nil {
		return err
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	base := baseURL(c, h.Cfg.BaseURL)
	err := h.Auth.ForgotPassword(ctx, req.Email, func(raw string) string {
		return base + "/api/v1/users/resetPassword/" + raw
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "success", "message": "Token sent to email!"})
}

// ResetPassword redeems the emailed token and logs the user in.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetReq
	if err := bindBody(c, &req); err != nil {
		return err
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	u, err := h.Auth.ResetPassword(ctx, c.Param("token"), req.Password, req.PasswordConfirm)
	if err != nil {
		return err
	}
	return h.sendToken(c, u, http.StatusOK)
}

// UpdatePassword changes the password of the logged in user and reissues
// the session, since older tokens stop verifying.
func (h *AuthHandler) UpdatePassword(c echo.Context) error {
	me, err := currentUser(c)
	if err != nil {
		return err
	}
	var req updatePasswordReq
	if err := bindBody(c, &req); err != nil {
		return err
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	u, err := h.Auth.UpdatePassword(ctx, me.ID, req.PasswordCurrent, req.Password, req.PasswordConfirm)
	if err != nil {
		return err
	}
	return h.sendToken(c, u, http.StatusOK)
}

// sendToken signs a session, sets the jwt cookie and returns
// {status, token, data:{user}}.
func (h *AuthHandler) sendToken(c echo.Context, u *model.User, status int) error {
	tok, err := h.Auth.IssueSession(u)
	if err != nil {
		return err
	}
	expires := time.Now().Add(h.Cfg.CookieExpiresIn)
	if h.Cfg.CookieExpiresIn <= 0 {
		expires = tok.Exp
	}
	c.SetCookie(&http.Cookie{
		Name:     middleware.CookieName,
		Value:    tok.Token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secureRequest(c),
		SameSite: http.SameSiteLaxMode,
	})
	return c.JSON(status, echo.Map{
		"status": "success",
		"token":  tok.Token,
		"data":   echo.Map{"user": u},
	})
}

// secureRequest reports whether the client connection is HTTPS, directly
// or through a proxy.
func secureRequest(c echo.Context) bool {
	return c.IsTLS() || strings.EqualFold(c.Request().Header.Get(echo.HeaderXForwardedProto), "https")
}
