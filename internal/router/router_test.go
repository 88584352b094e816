package router_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
	authrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/auth/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/repo"
)

func newServer(t *testing.T) (*httptest.Server, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core).Sugar()

	codec, err := token.NewCodec(token.Config{AccessSecret: []byte("a"), RefreshSecret: []byte("r")}, nil)
	require.NoError(t, err)
	users := user.NewUserService(userrepo.NewMemoryUserRepo(), user.BcryptHasher{Cost: bcrypt.MinCost})
	m := metrics.New()
	svc, err := auth.NewService(auth.Dependencies{
		Codec:      codec,
		Sessions:   authrepo.NewMemorySessionStore(),
		Blacklist:  authrepo.NewMemoryBlacklist(),
		Subjects:   users,
		AccessTTL:  10 * time.Minute,
		RefreshTTL: time.Hour,
		Logger:     logger,
		Metrics:    m,
	})
	require.NoError(t, err)

	h := router.RegisterRoutes(router.Deps{
		Logger:  logger,
		Users:   user.NewHandler(users, svc, logger),
		Auth:    auth.NewHandler(svc, logger),
		Tokens:  svc,
		Metrics: m.Handler(),
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, logs
}

func call(t *testing.T, srv *httptest.Server, method, path, bearer, body string) (int, map[string]string) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+"/pitchfork-api-auth"+path, strings.NewReader(body))
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]string{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	srv, _ := newServer(t)
	creds := `{"id":"+79998887766","password":"secret"}`

	code, body := call(t, srv, http.MethodPost, "/signup", "", creds)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "User with id: +79998887766 has been created", body["message"])

	code, _ = call(t, srv, http.MethodPost, "/signup", "", creds)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = call(t, srv, http.MethodPost, "/signin", "", `{"id":"+79998887766","password":"nope"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, pair := call(t, srv, http.MethodPost, "/signin", "", creds)
	require.Equal(t, http.StatusOK, code)

	code, body = call(t, srv, http.MethodGet, "/info", pair["accessToken"], "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "+79998887766", body["id"])

	code, next := call(t, srv, http.MethodPost, "/signin/new_token", pair["refreshToken"], "")
	require.Equal(t, http.StatusOK, code)

	code, _ = call(t, srv, http.MethodGet, "/info", pair["accessToken"], "")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body = call(t, srv, http.MethodGet, "/logout", next["accessToken"], "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Success logout", body["message"])

	code, _ = call(t, srv, http.MethodPost, "/signin/new_token", next["refreshToken"], "")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestHealthMetricsAndHeaders(t *testing.T) {
	srv, logs := newServer(t)

	resp, err := srv.Client().Get(srv.URL + "/pitchfork-api-auth/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	resp, err = srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	reqs := logs.FilterMessage("http request").All()
	require.NotEmpty(t, reqs)
	assert.Equal(t, "/pitchfork-api-auth/health", reqs[0].ContextMap()["path"])
}
