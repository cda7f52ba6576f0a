package handlers_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"

	"github.com/geocoder89/memberhub/internal/auth"
	"github.com/geocoder89/memberhub/internal/domain/user"
	"github.com/geocoder89/memberhub/internal/http/handlers"
	"github.com/geocoder89/memberhub/internal/http/middlewares"
	"github.com/geocoder89/memberhub/internal/repo/memory"
	"github.com/geocoder89/memberhub/internal/security"
	"github.com/geocoder89/memberhub/internal/session"
)

// Make sure Gin does not spam the console during the test

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeFlow struct {
	signUpFn func(ctx context.Context, sess *session.Session, raw map[string]any) (*session.Session, error)
	loginFn  func(ctx context.Context, sess *session.Session, raw map[string]any) (*session.Session, error)
	logoutFn func(ctx context.Context, sess *session.Session) error
}

func (f *fakeFlow) SignUpForm(ctx context.Context, sess *session.Session, raw map[string]any) (*session.Session, error) {
	if f.signUpFn != nil {
		return f.signUpFn(ctx, sess, raw)
	}
	return &session.Session{ID: "sid", Authenticated: true}, nil
}

func (f *fakeFlow) LoginForm(ctx context.Context, sess *session.Session, raw map[string]any) (*session.Session, error) {
	if f.loginFn != nil {
		return f.loginFn(ctx, sess, raw)
	}
	return &session.Session{ID: "sid", Authenticated: true}, nil
}

func (f *fakeFlow) Logout(ctx context.Context, sess *session.Session) error {
	if f.logoutFn != nil {
		return f.logoutFn(ctx, sess)
	}
	return nil
}

type fakeSigner struct{}

func (fakeSigner) CookieValue(s *session.Session) (string, error) {
	return "signed-" + s.ID, nil
}

type fakeAdmin struct {
	listFn    func(ctx context.Context, sess *session.Session) ([]user.User, error)
	promoteFn func(ctx context.Context, sess *session.Session, id string) error
}

func (f *fakeAdmin) ListUsers(ctx context.Context, sess *session.Session) ([]user.User, error) {
	if f.listFn != nil {
		return f.listFn(ctx, sess)
	}
	return nil, nil
}

func (f *fakeAdmin) Promote(ctx context.Context, sess *session.Session, id string) error {
	if f.promoteFn != nil {
		return f.promoteFn(ctx, sess, id)
	}
	return nil
}

func (f *fakeAdmin) Demote(ctx context.Context, sess *session.Session, id string) error {
	return nil
}

type fakeLookup struct {
	calls int
}

func (f *fakeLookup) LookupByName(ctx context.Context, raw any) (auth.LookupResult, error) {
	if err := auth.LookupRule.Check("user", raw); err != nil {
		return auth.LookupResult{}, err
	}
	f.calls++
	return auth.LookupResult{Name: raw.(string), Matches: 1}, nil
}

func newEngine(sess *session.Session) *gin.Engine {
	r := gin.New()
	r.SetHTMLTemplate(handlers.Templates())
	r.Use(func(c *gin.Context) {
		c.Set(middlewares.CtxSession, sess)
		c.Next()
	})
	r.NoRoute(handlers.NotFound)
	return r
}

func postForm(r http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestSubmitUser_Success(t *testing.T) {
	var gotRaw map[string]any
	flow := &fakeFlow{
		signUpFn: func(ctx context.Context, sess *session.Session, raw map[string]any) (*session.Session, error) {
			gotRaw = raw
			return &session.Session{ID: "fresh", Authenticated: true, Name: "Alice"}, nil
		},
	}

	r := newEngine(&session.Session{})
	h := handlers.NewAuthHandler(flow, handlers.NewSessionCookie(fakeSigner{}, time.Hour, true))
	r.POST("/submitUser", h.SubmitUser)

	w := postForm(r, "/submitUser", url.Values{
		"name":     {"Alice"},
		"email":    {"a@example.com"},
		"password": {"pw12345"},
	})

	if w.Code != http.StatusFound {
		t.Fatalf("expected status %d, got %d", http.StatusFound, w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/members" {
		t.Fatalf("expected redirect to /members, got %q", loc)
	}
	if gotRaw["name"] != "Alice" || gotRaw["email"] != "a@example.com" {
		t.Fatalf("unexpected raw input: %#v", gotRaw)
	}

	cookie := w.Header().Get("Set-Cookie")
	for _, want := range []string{"session_id=signed-fresh", "HttpOnly", "SameSite=Lax", "Secure", "Max-Age=3600"} {
		if !strings.Contains(cookie, want) {
			t.Fatalf("expected cookie to contain %q, got %q", want, cookie)
		}
	}
}

func TestSubmitUser_Errors(t *testing.T) {
	tests := []struct {
		name       string
		form       url.Values
		wantStatus int
		wantBody   string
	}{
		{
			name:       "password too long",
			form:       url.Values{"name": {"Alice"}, "email": {"a@example.com"}, "password": {"123456789012345678901"}},
			wantStatus: http.StatusBadRequest,
			wantBody:   "length must be less than or equal to 20 characters long",
		},
		{
			name:       "missing name",
			form:       url.Values{"email": {"a@example.com"}, "password": {"pw"}},
			wantStatus: http.StatusBadRequest,
			wantBody:   "is required",
		},
		{
			name:       "operator object",
			form:       url.Values{"name": {"Alice"}, "email[$ne]": {"x"}, "password": {"pw"}},
			wantStatus: http.StatusBadRequest,
			wantBody:   "A NoSQL injection attack was detected!!",
		},
		{
			name:       "email taken",
			form:       url.Values{"name": {"Alice"}, "email": {"taken@example.com"}, "password": {"pw"}},
			wantStatus: http.StatusConflict,
			wantBody:   "already registered",
		},
		{
			name:       "store fault",
			form:       url.Values{"name": {"Alice"}, "email": {"fault@example.com"}, "password": {"pw"}},
			wantStatus: http.StatusInternalServerError,
			wantBody:   "Something went wrong",
		},
	}

	flow := &fakeFlow{
		signUpFn: func(ctx context.Context, sess *session.Session, raw map[string]any) (*session.Session, error) {
			in, err := auth.ParseSignUp(raw)
			if err != nil {
				return nil, err
			}
			switch in.Email {
			case "taken@example.com":
				return nil, auth.ErrEmailTaken
			case "fault@example.com":
				return nil, errors.New("connection refused")
			}
			return &session.Session{ID: "x"}, nil
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newEngine(&session.Session{})
			h := handlers.NewAuthHandler(flow, handlers.NewSessionCookie(fakeSigner{}, time.Hour, false))
			r.POST("/submitUser", h.SubmitUser)

			w := postForm(r, "/submitUser", tt.form)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Fatalf("expected body to contain %q, got %s", tt.wantBody, w.Body.String())
			}
			if w.Header().Get("Set-Cookie") != "" {
				t.Fatal("expected no session cookie on failure")
			}
		})
	}
}

func TestSubmitUser_PasswordPastHashLimit(t *testing.T) {
	users := memory.NewUsersRepo()
	store := session.NewMemoryStore(0)
	t.Cleanup(func() { _ = store.Close() })

	sessions := session.NewManager(store, session.NewSigner("test-secret"), time.Hour)
	svc := auth.NewService(users, security.NewHasherWithCost(bcrypt.MinCost), sessions,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	r := newEngine(sessions.Anonymous())
	h := handlers.NewAuthHandler(svc, handlers.NewSessionCookie(sessions, time.Hour, false))
	r.POST("/submitUser", h.SubmitUser)

	// 20 characters, 80 bytes
	w := postForm(r, "/submitUser", url.Values{
		"name":     {"Alice"},
		"email":    {"a@example.com"},
		"password": {strings.Repeat("😀", 20)},
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if !strings.Contains(w.Body.String(), "must not be longer than 72 bytes") {
		t.Fatalf("expected byte limit message, got %s", w.Body.String())
	}

	all, err := users.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Fatalf("expected no user to be stored, got %d", len(all))
	}
	if store.Len() != 0 {
		t.Fatalf("expected no session to be saved, got %d", store.Len())
	}
}

func TestSessionFault_RendersFaultPage(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	r := gin.New()
	r.SetHTMLTemplate(handlers.Templates())
	r.Use(func(c *gin.Context) {
		handlers.SessionFault(c, errors.New("redis down"))
	})
	r.GET("/members", func(c *gin.Context) {
		t.Fatal("expected the page handler not to run")
	})

	w := get(r, "/members")

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
	if !strings.Contains(w.Body.String(), "Something went wrong") {
		t.Fatalf("expected the generic fault page, got %s", w.Body.String())
	}
	if !strings.Contains(logs.String(), "store_fault=true") {
		t.Fatalf("expected the log line to flag a store fault, got %s", logs.String())
	}
}

func TestRenderFault_SeparatesStoreFaults(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	r := newEngine(&session.Session{})
	r.GET("/store", func(c *gin.Context) {
		handlers.RenderFault(c, "members", oops.Code(auth.CodeStoreFault).Wrap(errors.New("timeout")))
	})
	r.GET("/other", func(c *gin.Context) {
		handlers.RenderFault(c, "set session cookie", errors.New("no id"))
	})

	if w := get(r, "/store"); w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
	if !strings.Contains(logs.String(), `msg="store unavailable"`) || !strings.Contains(logs.String(), "store_fault=true") {
		t.Fatalf("expected a store fault log line, got %s", logs.String())
	}

	logs.Reset()
	if w := get(r, "/other"); w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
	if !strings.Contains(logs.String(), `msg="request failed"`) || !strings.Contains(logs.String(), "store_fault=false") {
		t.Fatalf("expected an unexpected-error log line, got %s", logs.String())
	}
}

func TestLoggingIn_FailuresRedirectToLogin(t *testing.T) {
	tests := []struct {
		name    string
		form    url.Values
		loginFn func(ctx context.Context, sess *session.Session, raw map[string]any) (*session.Session, error)
		want    string
	}{
		{
			name: "incorrect password",
			form: url.Values{"email": {"a@example.com"}, "password": {"wrong"}},
			loginFn: func(ctx context.Context, sess *session.Session, raw map[string]any) (*session.Session, error) {
				return nil, auth.ErrIncorrectPassword
			},
			want: "/login?error=incorrect+password",
		},
		{
			name: "user not found",
			form: url.Values{"email": {"nobody@example.com"}, "password": {"pw"}},
			loginFn: func(ctx context.Context, sess *session.Session, raw map[string]any) (*session.Session, error) {
				return nil, auth.ErrUserNotFound
			},
			want: "/login?error=user+not+found",
		},
		{
			name: "operator object in password",
			form: url.Values{"email": {"a@example.com"}, "password[$ne]": {"x"}},
			loginFn: func(ctx context.Context, sess *session.Session, raw map[string]any) (*session.Session, error) {
				_, err := auth.ParseLogin(raw)
				return nil, err
			},
			want: "/login?" + url.Values{"error": {"A NoSQL injection attack was detected!!"}}.Encode(),
		},
		{
			name: "malformed email",
			form: url.Values{"email": {"nope"}, "password": {"pw"}},
			loginFn: func(ctx context.Context, sess *session.Session, raw map[string]any) (*session.Session, error) {
				_, err := auth.ParseLogin(raw)
				return nil, err
			},
			want: "/login?" + url.Values{"error": {`"email" must be a valid email`}}.Encode(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newEngine(&session.Session{})
			h := handlers.NewAuthHandler(&fakeFlow{loginFn: tt.loginFn}, handlers.NewSessionCookie(fakeSigner{}, time.Hour, false))
			r.POST("/loggingin", h.LoggingIn)

			w := postForm(r, "/loggingin", tt.form)

			if w.Code != http.StatusFound {
				t.Fatalf("expected status %d, got %d", http.StatusFound, w.Code)
			}
			if loc := w.Header().Get("Location"); loc != tt.want {
				t.Fatalf("expected redirect to %q, got %q", tt.want, loc)
			}
		})
	}
}

func TestLoginPage_ShowsError(t *testing.T) {
	r := newEngine(&session.Session{})
	h := handlers.NewAuthHandler(&fakeFlow{}, handlers.NewSessionCookie(fakeSigner{}, time.Hour, false))
	r.GET("/login", h.LoginPage)

	w := get(r, "/login?error=incorrect+password")

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if !strings.Contains(w.Body.String(), "incorrect password") {
		t.Fatalf("expected error in body, got %s", w.Body.String())
	}
}

func TestLogout_ClearsCookie(t *testing.T) {
	destroyed := false
	flow := &fakeFlow{
		logoutFn: func(ctx context.Context, sess *session.Session) error {
			destroyed = true
			return nil
		},
	}

	r := newEngine(&session.Session{ID: "sid", Key: "k", Authenticated: true})
	h := handlers.NewAuthHandler(flow, handlers.NewSessionCookie(fakeSigner{}, time.Hour, false))
	r.POST("/logout", h.Logout)

	w := postForm(r, "/logout", url.Values{})

	if !destroyed {
		t.Fatal("expected session to be destroyed")
	}
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect to /, got %d %q", w.Code, w.Header().Get("Location"))
	}
	if !strings.Contains(w.Header().Get("Set-Cookie"), "Max-Age=0") {
		t.Fatalf("expected expired cookie, got %q", w.Header().Get("Set-Cookie"))
	}
}

func TestAdmin_Outcomes(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		admin      *fakeAdmin
		wantStatus int
		wantBody   string
		wantLoc    string
	}{
		{
			name: "listing",
			path: "/admin",
			admin: &fakeAdmin{listFn: func(ctx context.Context, sess *session.Session) ([]user.User, error) {
				return []user.User{
					{ID: "u1", Name: "Alice", Email: "a@example.com", Role: user.RoleUser},
					{ID: "u2", Name: "Root", Email: "root@example.com", Role: user.RoleAdmin},
				}, nil
			}},
			wantStatus: http.StatusOK,
			wantBody:   "/admin/promote/u1",
		},
		{
			name: "non admin",
			path: "/admin",
			admin: &fakeAdmin{listFn: func(ctx context.Context, sess *session.Session) ([]user.User, error) {
				return nil, auth.ErrForbidden
			}},
			wantStatus: http.StatusOK,
			wantBody:   "not authorized",
		},
		{
			name: "anonymous",
			path: "/admin",
			admin: &fakeAdmin{listFn: func(ctx context.Context, sess *session.Session) ([]user.User, error) {
				return nil, auth.ErrNotAuthenticated
			}},
			wantStatus: http.StatusFound,
			wantLoc:    "/",
		},
		{
			name:       "promote",
			path:       "/admin/promote/u1",
			admin:      &fakeAdmin{},
			wantStatus: http.StatusFound,
			wantLoc:    "/admin",
		},
		{
			name: "promote missing user",
			path: "/admin/promote/nope",
			admin: &fakeAdmin{promoteFn: func(ctx context.Context, sess *session.Session, id string) error {
				return user.ErrNotFound
			}},
			wantStatus: http.StatusNotFound,
			wantBody:   "user not found",
		},
		{
			name: "promote forbidden",
			path: "/admin/promote/u1",
			admin: &fakeAdmin{promoteFn: func(ctx context.Context, sess *session.Session, id string) error {
				return auth.ErrForbidden
			}},
			wantStatus: http.StatusOK,
			wantBody:   "not authorized",
		},
		{
			name: "store fault",
			path: "/admin",
			admin: &fakeAdmin{listFn: func(ctx context.Context, sess *session.Session) ([]user.User, error) {
				return nil, errors.New("connection refused")
			}},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newEngine(&session.Session{Authenticated: true, Role: user.RoleAdmin})
			h := handlers.NewAdminHandler(tt.admin)
			r.GET("/admin", h.Admin)
			r.GET("/admin/promote/:userId", h.Promote)

			w := get(r, tt.path)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if tt.wantBody != "" && !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Fatalf("expected body to contain %q, got %s", tt.wantBody, w.Body.String())
			}
			if tt.wantLoc != "" && w.Header().Get("Location") != tt.wantLoc {
				t.Fatalf("expected redirect to %q, got %q", tt.wantLoc, w.Header().Get("Location"))
			}
		})
	}
}

func TestLookup_ByName(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantBody  string
		wantCalls int
	}{
		{name: "plain name", query: "?user=alice", wantCode: http.StatusOK, wantBody: "Hello alice", wantCalls: 1},
		{name: "operator object", query: "?user[$ne]=alice", wantCode: http.StatusBadRequest, wantBody: "A NoSQL injection attack was detected!!"},
		{name: "array", query: "?user[]=a&user[]=b", wantCode: http.StatusBadRequest, wantBody: "A NoSQL injection attack was detected!!"},
		{name: "repeated key", query: "?user=a&user=b", wantCode: http.StatusBadRequest, wantBody: "A NoSQL injection attack was detected!!"},
		{name: "too long", query: "?user=abcdefghijklmnopqrstu", wantCode: http.StatusBadRequest, wantBody: "A NoSQL injection attack was detected!!"},
		{name: "missing", query: "", wantCode: http.StatusOK, wantBody: "no user provided"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := &fakeLookup{}
			r := newEngine(&session.Session{})
			r.GET("/nosql-injection", handlers.NewLookupHandler(lookup).ByName)

			w := get(r, "/nosql-injection"+tt.query)

			if w.Code != tt.wantCode {
				t.Fatalf("expected status %d, got %d", tt.wantCode, w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Fatalf("expected body to contain %q, got %s", tt.wantBody, w.Body.String())
			}
			if lookup.calls != tt.wantCalls {
				t.Fatalf("expected %d store lookups, got %d", tt.wantCalls, lookup.calls)
			}
		})
	}
}

func TestNotFound(t *testing.T) {
	r := newEngine(&session.Session{})

	w := get(r, "/cat/1")

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	if !strings.Contains(w.Body.String(), "Page not found - 404") {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name         string
		checks       map[string]handlers.Pinger
		shuttingDown bool
		wantCode     int
	}{
		{
			name: "all stores up",
			checks: map[string]handlers.Pinger{
				"users":    func(context.Context) error { return nil },
				"sessions": func(context.Context) error { return nil },
			},
			wantCode: http.StatusOK,
		},
		{
			name: "session store down",
			checks: map[string]handlers.Pinger{
				"users":    func(context.Context) error { return nil },
				"sessions": func(context.Context) error { return errors.New("dial tcp: connection refused") },
			},
			wantCode: http.StatusServiceUnavailable,
		},
		{
			name: "draining",
			checks: map[string]handlers.Pinger{
				"users": func(context.Context) error { return nil },
			},
			shuttingDown: true,
			wantCode:     http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			h := handlers.NewHealthHandler(tt.checks).WithShutdown(func() bool { return tt.shuttingDown })
			r.GET("/readyz", h.Readyz)

			w := get(r, "/readyz")

			if w.Code != tt.wantCode {
				t.Fatalf("expected status %d, got %d", tt.wantCode, w.Code)
			}
		})
	}
}
