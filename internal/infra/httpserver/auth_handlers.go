package httpserver

import (
	"encoding/json"
	"net/http"

	appauth "github.com/depscan-io/depscan/internal/application/auth"
	"github.com/depscan-io/depscan/internal/middleware"
)

// POST /api/auth/register
func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) error {
	var cmd appauth.RegisterCommand
	if err := json.NewDecoder(req.Body).Decode(&cmd); err != nil {
		return badRequest("invalid request body")
	}
	if err := middleware.ValidateUsername(cmd.Username); err != nil {
		return badRequest(err.Error())
	}
	if err := middleware.ValidateEmail(cmd.Email); err != nil {
		return badRequest(err.Error())
	}

	user, err := r.authSvc.Register(req.Context(), cmd)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, user)
}

// POST /api/auth/login
func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) error {
	var cmd appauth.LoginCommand
	if err := json.NewDecoder(req.Body).Decode(&cmd); err != nil {
		return badRequest("invalid request body")
	}

	session, err := r.authSvc.Login(req.Context(), cmd)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return writeJSON(w, http.StatusOK, session)
}

// POST /api/auth/logout
// Tokens are stateless; logout just clears the cookie.
func (r *Router) handleLogout(w http.ResponseWriter, req *http.Request) error {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// GET /api/auth/profile
func (r *Router) handleProfile(w http.ResponseWriter, req *http.Request) error {
	user, err := r.authSvc.Profile(req.Context(), middleware.GetUserID(req.Context()))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, user)
}
