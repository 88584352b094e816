package router

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user"
)

const prefix = "/pitchfork-api-auth"

// statusRecorder captures status and size for request logs.
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.size += n
	return n, err
}

// LoggingMiddleware logs every request. Server errors go out at warn level,
// everything else at debug. Authorization headers are never logged.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			log := logger.Debugw
			if rec.status >= http.StatusInternalServerError {
				log = logger.Warnw
			}
			log("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", rec.status,
				"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
				"size", rec.size,
			)
		})
	}
}

// SecurityHeadersMiddleware sets headers suited to a JSON-only API.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cache-Control", "no-store")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			if r.TLS != nil {
				h.Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Deps are the handlers and services mounted by RegisterRoutes.
type Deps struct {
	Logger  *zap.SugaredLogger
	Users   *user.Handler
	Auth    *auth.Handler
	Tokens  auth.Identifier
	Metrics http.Handler
}

// RegisterRoutes mounts the API on a stdlib ServeMux.
func RegisterRoutes(d Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+prefix+"/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics)
	}

	access := func(h http.HandlerFunc) http.Handler {
		return auth.Authenticate(d.Tokens, token.RoleAccess)(auth.RequireSubject(h))
	}
	refresh := func(h http.HandlerFunc) http.Handler {
		return auth.Authenticate(d.Tokens, token.RoleRefresh)(auth.RequireSubject(h))
	}

	mux.HandleFunc("POST "+prefix+"/signup", d.Users.Signup)
	mux.HandleFunc("POST "+prefix+"/signin", d.Users.Signin)
	mux.Handle("POST "+prefix+"/signin/new_token", refresh(d.Auth.NewToken))
	mux.Handle("GET "+prefix+"/info", access(d.Auth.Info))
	mux.Handle("GET "+prefix+"/logout", access(d.Auth.Logout))

	return LoggingMiddleware(d.Logger)(SecurityHeadersMiddleware()(mux))
}
