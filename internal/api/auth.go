package api

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/erazemk/zaloga/internal/auth"
	"github.com/erazemk/zaloga/internal/model"
	"github.com/erazemk/zaloga/internal/notify"
	"github.com/erazemk/zaloga/internal/store"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	DB        *sql.DB
	JWTSecret string
	TokenTTL  time.Duration
	Notifier  notify.Notifier
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type verifyRequest struct {
	Email string `json:"email" validate:"required"`
	Code  string `json:"code" validate:"required,len=5,numeric"`
}

type resendRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

// Register handles POST /api/auth/register. The account starts unverified
// and a code is sent to the given address.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !bindAndValidate(w, r, &req) {
		return
	}

	existing, err := store.GetUserByEmail(r.Context(), h.DB, req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if existing != nil {
		jsonError(w, http.StatusConflict, "email already registered")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	code, err := auth.GenerateVerificationCode()
	if err != nil {
		writeError(w, r, err)
		return
	}

	user, err := store.CreateUser(r.Context(), h.DB, req.Email, hash, model.RoleCustomer, code)
	if err != nil {
		jsonError(w, http.StatusConflict, "email already registered")
		return
	}

	h.sendCode(r, user.Email, code)

	slog.Info("user registered", "user", user.Email)
	jsonResponse(w, http.StatusCreated, user)
}

func (h *AuthHandler) sendCode(r *http.Request, email, code string) {
	msg := notify.Message{
		To:      email,
		Subject: "Verify your account",
		Body:    fmt.Sprintf("Your verification code is %s.", code),
	}
	if err := h.Notifier.Send(r.Context(), msg); err != nil {
		slog.Error("failed to send verification code", "user", email, "error", err)
	}
}

// Resend handles POST /api/auth/resend. A fresh code replaces the pending one.
func (h *AuthHandler) Resend(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if !bindAndValidate(w, r, &req) {
		return
	}

	user, err := store.GetUserByEmail(r.Context(), h.DB, req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user == nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}
	if user.Verified {
		jsonError(w, http.StatusBadRequest, "account already verified")
		return
	}

	code, err := auth.GenerateVerificationCode()
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok, err := store.SetVerificationCode(r.Context(), h.DB, user.ID, code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		jsonError(w, http.StatusBadRequest, "account already verified")
		return
	}
	h.sendCode(r, user.Email, code)

	slog.Info("verification code resent", "user", user.Email)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "verification code sent"})
}

// Verify handles POST /api/auth/verify.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !bindAndValidate(w, r, &req) {
		return
	}

	ok, err := store.VerifyUser(r.Context(), h.DB, req.Email, req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid verification code")
		return
	}

	slog.Info("user verified", "user", req.Email)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "account verified"})
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !bindAndValidate(w, r, &req) {
		return
	}

	user, err := store.GetUserByEmail(r.Context(), h.DB, req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		slog.Warn("login failed", "user", req.Email, "remote", r.RemoteAddr)
		jsonError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if !user.Verified {
		jsonError(w, http.StatusForbidden, "account not verified")
		return
	}

	token, err := auth.GenerateToken(h.JWTSecret, h.TokenTTL, user.ID, user.Email, user.Role)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	slog.Info("user logged in", "user", user.Email, "role", user.Role)
	jsonResponse(w, http.StatusOK, loginResponse{Token: token})
}

// Logout handles POST /api/auth/logout by revoking the presented token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	expires := time.Now().Add(h.TokenTTL)
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	if err := store.RevokeToken(r.Context(), h.DB, claims.ID, expires); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("user logged out", "user", claims.Email)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// ChangePassword handles PUT /api/auth/password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req changePasswordRequest
	if !bindAndValidate(w, r, &req) {
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, claims.UserID)
	if err != nil || user == nil {
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.CurrentPassword) {
		jsonError(w, http.StatusUnauthorized, "current password is incorrect")
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := store.UpdateUserPassword(r.Context(), h.DB, claims.UserID, hash); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("user changed own password", "user", claims.Email)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "password updated"})
}
