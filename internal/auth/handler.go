package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// Handler exposes the session endpoints that need a bearer token. Routes
// must be wrapped with Authenticate for the matching role and RequireSubject.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type tokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// NewToken rotates the refresh token that authenticated the request.
func (h *Handler) NewToken(w http.ResponseWriter, r *http.Request) {
	subject, _ := SubjectFromContext(r.Context())
	refresh, _ := BearerFromContext(r.Context())

	sess, err := h.svc.Refresh(r.Context(), subject, refresh)
	if err != nil {
		switch {
		case errors.Is(err, ErrSubjectNotFound):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "user not found"})
		case errors.Is(err, ErrSessionNotFound):
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		default:
			h.logger.Errorw("refresh failed", "subject", subject, "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "refresh failed"})
		}
		return
	}
	writeJSON(w, http.StatusOK, tokenPair{AccessToken: sess.AccessToken, RefreshToken: sess.RefreshToken})
}

// Info returns the identity behind the access token.
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	subject, _ := SubjectFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"id": subject})
}

// Logout ends the session of the access token that authenticated the request.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	access, _ := BearerFromContext(r.Context())
	if err := h.svc.Logout(r.Context(), access); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
			return
		}
		h.logger.Errorw("logout failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "logout failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Success logout"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
