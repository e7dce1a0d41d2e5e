package handlers

import (
	"errors"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/citylore/server/internal/api/middleware"
	"github.com/citylore/server/internal/api/problem"
	"github.com/citylore/server/internal/auth"
	"github.com/citylore/server/internal/storage"
)

type AuthHandler struct {
	admins storage.AdminRepository
	jwt    *auth.JWTManager
	expiry time.Duration
	env    string
}

func NewAuthHandler(admins storage.AdminRepository, jwt *auth.JWTManager, expiry time.Duration, env string) *AuthHandler {
	return &AuthHandler{admins: admins, jwt: jwt, expiry: expiry, env: env}
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int    `json:"expires_in"`
}

// Login handles POST /api/admin/login. The response is identical for an
// unknown username and a wrong password.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, h.env, &req) {
		return
	}

	admin, err := h.admins.GetByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, storage.ErrAdminNotFound) {
			h.writeRejected(w, r)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Login failed", err, h.env)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(req.Password)) != nil {
		h.writeRejected(w, r)
		return
	}

	token, err := h.jwt.Generate(admin.Username, middleware.RoleAdmin)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Issuing token failed", err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int(h.expiry.Seconds()),
	})
}

func (h *AuthHandler) writeRejected(w http.ResponseWriter, r *http.Request) {
	problem.Write(w, r, http.StatusUnauthorized, "https://citylore.app/problems/unauthorized",
		"Invalid credentials", nil, h.env,
		problem.WithDetail("username or password is incorrect"))
}
