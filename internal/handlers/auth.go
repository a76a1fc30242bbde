// Package handlers implements the HTTP login API that fronts the token
// service for clients that acquire tokens out of band of the native
// protocol.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aura-assist/gateway/internal/audit"
	"github.com/aura-assist/gateway/internal/services"
	"github.com/aura-assist/gateway/types"
)

// AuthHandler provides the login, logout, and refresh endpoints.
type AuthHandler struct {
	users *services.UserService
	audit audit.Recorder
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(users *services.UserService, recorder audit.Recorder) *AuthHandler {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &AuthHandler{users: users, audit: recorder}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, users *services.UserService, recorder audit.Recorder) {
	handler := NewAuthHandler(users, recorder)

	r.Post("/login", handler.Login)
	r.Post("/logout", handler.Logout)
	r.Post("/refresh", handler.Refresh)
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Success      bool             `json:"success"`
	Token        string           `json:"token"`
	RefreshToken string           `json:"refresh_token"`
	User         types.PublicUser `json:"user"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type RefreshResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
}

// Login verifies credentials and returns an access and refresh token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	remote := clientIP(r)
	result, err := h.users.Login(r.Context(), req.Username, req.Password, remote)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidCredentials):
			h.recordFailure(r.Context(), req.Username, remote, "invalid credentials")
			writeError(w, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, services.ErrUserInactive):
			h.recordFailure(r.Context(), req.Username, remote, "account inactive")
			writeError(w, http.StatusForbidden, "account inactive")
		default:
			writeError(w, http.StatusInternalServerError, "failed to authenticate")
		}
		return
	}

	h.audit.Record(r.Context(), audit.Event{
		Kind:     audit.EventLogin,
		UserID:   result.User.ID,
		Username: result.User.Username,
		RemoteIP: remote,
	})
	writeJSON(w, http.StatusOK, LoginResponse{
		Success:      true,
		Token:        result.AccessToken,
		RefreshToken: result.RefreshToken,
		User:         result.User.Public(),
	})
}

// Logout revokes the session behind the bearer token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	tokenString, err := bearerToken(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.users.Logout(r.Context(), tokenString); err != nil {
		// An unknown jti means the session is already gone; logout is
		// idempotent from the client's point of view.
		h.audit.Record(r.Context(), audit.Event{
			Kind:     audit.EventLogout,
			RemoteIP: clientIP(r),
			Detail:   "no live session",
		})
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	}

	h.audit.Record(r.Context(), audit.Event{
		Kind:     audit.EventLogout,
		RemoteIP: clientIP(r),
	})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Refresh exchanges a refresh token for a fresh access token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, http.StatusBadRequest, "missing refresh token")
		return
	}

	accessToken, err := h.users.Refresh(r.Context(), req.RefreshToken, clientIP(r))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUserInactive):
			writeError(w, http.StatusForbidden, "account inactive")
		case errors.Is(err, services.ErrSessionRevoked),
			errors.Is(err, services.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
		default:
			// Includes token verification failures.
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
		}
		return
	}

	h.audit.Record(r.Context(), audit.Event{
		Kind:     audit.EventTokenRefreshed,
		RemoteIP: clientIP(r),
	})
	writeJSON(w, http.StatusOK, RefreshResponse{Success: true, Token: accessToken})
}

func (h *AuthHandler) recordFailure(ctx context.Context, username, remote, detail string) {
	h.audit.Record(ctx, audit.Event{
		Kind:     audit.EventLoginFailed,
		Username: username,
		RemoteIP: remote,
		Detail:   detail,
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
