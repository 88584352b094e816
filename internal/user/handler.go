package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
)

// SessionIssuer mints a session once credentials are verified.
type SessionIssuer interface {
	SignIn(ctx context.Context, subjectID string) (*auth.Session, error)
}

// Handler exposes HTTP endpoints for user operations (signup / signin).
type Handler struct {
	svc      *UserService
	sessions SessionIssuer
	logger   *zap.SugaredLogger
}

func NewHandler(svc *UserService, sessions SessionIssuer, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, sessions: sessions, logger: logger}
}

// CredentialsRequest is the body of both signup and signin.
type CredentialsRequest struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

// TokenPairResponse carries a freshly issued pair.
type TokenPairResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid signup payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	u, err := h.svc.SignUp(r.Context(), req.ID, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, ErrUserExists):
			h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		default:
			h.logger.Warnw("signup failed", "err", err)
			h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "signup failed"})
		}
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("User with id: %s has been created", u.ID)})
}

func (h *Handler) Signin(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid signin payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	u, err := h.svc.Authenticate(r.Context(), req.ID, req.Password)
	if err != nil {
		h.logger.Debugw("signin failed", "err", err)
		switch {
		case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrBadCredentials):
			h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		default:
			h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "signin failed"})
		}
		return
	}
	sess, err := h.sessions.SignIn(r.Context(), u.ID)
	if err != nil {
		h.logger.Errorw("issue session failed", "subject", u.ID, "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "signin failed"})
		return
	}
	h.writeJSON(w, http.StatusOK, TokenPairResponse{AccessToken: sess.AccessToken, RefreshToken: sess.RefreshToken})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
