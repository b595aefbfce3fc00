package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"gitea.com/go-chi/session"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/blogem/gitlab-login/userctx"
)

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", ClientIP(r))

	r.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "203.0.113.5", ClientIP(r))
}

func TestRequestLogger_OmitsQuery(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	handler := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/user/login/gitlab/callback?code=secret", nil))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "/user/login/gitlab/callback", fields["path"])
	assert.EqualValues(t, http.StatusTeapot, fields["status"])
}

func newSessionRouter(t *testing.T) *chi.Mux {
	sessionHandler, err := session.Sessioner(session.Options{
		Provider:    "memory",
		CookieName:  "test_session",
		Gclifetime:  3600,
		Maxlifetime: 3600,
	})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(sessionHandler)
	return r
}

func TestRequireAuth_RedirectsAnonymous(t *testing.T) {
	r := newSessionRouter(t)
	r.With(RequireAuth).Get("/account", func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/account", nil))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/user/login", rec.Header().Get("Location"))
}

func TestRequireAuth_SetsUserContext(t *testing.T) {
	r := newSessionRouter(t)
	r.Get("/login", func(w http.ResponseWriter, r *http.Request) {
		sess := session.GetSession(r)
		_ = sess.Set(sessionUserID, "42")
		_ = sess.Set(sessionUserEmail, "john@example.com")
	})
	r.With(RequireAuth).Get("/account", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "42", userctx.GetUserID(r.Context()))
		assert.Equal(t, "john@example.com", userctx.GetUserEmail(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	})

	login := httptest.NewRecorder()
	r.ServeHTTP(login, httptest.NewRequest(http.MethodGet, "/login", nil))

	req := httptest.NewRequest(http.MethodGet, "/account", nil)
	for _, c := range login.Result().Cookies() {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}
