package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/octobees/lead-capture/internal/dto"
	"github.com/octobees/lead-capture/internal/middleware"
	"github.com/octobees/lead-capture/internal/service"
)

// AuthHandler exposes admin login and logout.
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Login handles POST /admin/login requests.
func (h *AuthHandler) Login(c echo.Context) error {
	var req dto.LoginRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "invalid payload")
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return Error(c, http.StatusBadRequest, "username and password are required")
	}

	session, err := h.authService.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return Error(c, http.StatusUnauthorized, "invalid credentials")
		}
		return Error(c, http.StatusInternalServerError, "unable to authenticate")
	}

	c.SetCookie(sessionCookie(c, session.Token, session.ExpiresAt))
	return Success(c, http.StatusOK, "login successful", dto.LoginResponse{
		AccessToken: session.Token,
		ExpiresAt:   session.ExpiresAt,
	})
}

// Logout handles POST /admin/logout requests.
func (h *AuthHandler) Logout(c echo.Context) error {
	cookie := sessionCookie(c, "", time.Unix(0, 0))
	cookie.MaxAge = -1
	c.SetCookie(cookie)
	return Success(c, http.StatusOK, "logged out", nil)
}

func sessionCookie(c echo.Context, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   c.Scheme() == "https",
		SameSite: http.SameSiteLaxMode,
	}
}
