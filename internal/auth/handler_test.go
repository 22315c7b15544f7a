package auth_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/stewardhq/steward/internal/auth"
	"github.com/stewardhq/steward/internal/shared"
	_ "github.com/stewardhq/steward/testing"
)

type stubRepo struct {
	user     *auth.User
	sessions map[string]int64
}

func newStubRepo(user *auth.User) *stubRepo {
	return &stubRepo{user: user, sessions: make(map[string]int64)}
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrInvalidCredentials
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

func (s *stubRepo) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func newAuthRouter(t *testing.T, repo auth.Repository) (http.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })
	sessions := shared.NewSessionManager(redisClient, "test_session", time.Hour, false)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := auth.NewHandler(logger, auth.NewService(repo), sessions)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess, err := sessions.Load(req.Context(), req)
			if err != nil {
				t.Fatalf("load session: %v", err)
			}
			ctx := shared.ContextWithSession(req.Context(), sess)
			// Commit before the first byte, like the production stack does.
			cw := &commitWriter{ResponseWriter: w, commit: func() {
				if err := sessions.Commit(ctx, w, sess); err != nil {
					t.Errorf("commit session: %v", err)
				}
			}}
			next.ServeHTTP(cw, req.WithContext(ctx))
			cw.flush()
		})
	})
	r.Route("/auth", handler.MountRoutes)
	return r, sessions
}

type commitWriter struct {
	http.ResponseWriter
	commit    func()
	committed bool
}

func (w *commitWriter) WriteHeader(code int) {
	w.flush()
	w.ResponseWriter.WriteHeader(code)
}

func (w *commitWriter) Write(b []byte) (int, error) {
	w.flush()
	return w.ResponseWriter.Write(b)
}

func (w *commitWriter) flush() {
	if !w.committed {
		w.committed = true
		w.commit()
	}
}

func activeUser(t *testing.T, password string) *auth.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &auth.User{ID: 1, Email: "admin@steward.local", PasswordHash: string(hashed), IsActive: true}
}

func TestLoginSuccess(t *testing.T) {
	repo := newStubRepo(activeUser(t, "correct-horse"))
	router, sessions := newAuthRouter(t, repo)

	body := `{"email":"admin@steward.local","password":"correct-horse"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", res.Code, res.Body)
	}
	var resp struct {
		UserID int64  `json:"user_id"`
		Email  string `json:"email"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.UserID != 1 || resp.Email != "admin@steward.local" {
		t.Fatalf("response = %+v", resp)
	}

	var sessionCookie *http.Cookie
	for _, c := range res.Result().Cookies() {
		if c.Name == sessions.CookieName() {
			sessionCookie = c
		}
	}
	if sessionCookie == nil || sessionCookie.Value == "" {
		t.Fatal("session cookie not set")
	}
	if len(repo.sessions) != 1 {
		t.Fatal("session metadata not registered")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	repo := newStubRepo(activeUser(t, "correct-horse"))
	router, _ := newAuthRouter(t, repo)

	body := `{"email":"admin@steward.local","password":"battery-staple"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", res.Code)
	}
}

func TestLoginInactiveAccountLooksLikeBadCredentials(t *testing.T) {
	user := activeUser(t, "correct-horse")
	user.IsActive = false
	router, _ := newAuthRouter(t, newStubRepo(user))

	body := `{"email":"admin@steward.local","password":"correct-horse"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", res.Code)
	}
}

func TestLoginValidation(t *testing.T) {
	router, _ := newAuthRouter(t, newStubRepo(nil))

	for _, body := range []string{
		`{"email":"not-an-email","password":"longenough"}`,
		`{"email":"a@b.test","password":"short"}`,
		`{"email":`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		res := httptest.NewRecorder()
		router.ServeHTTP(res, req)
		if res.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d, want 400", body, res.Code)
		}
	}
}

func TestLogoutAndMe(t *testing.T) {
	repo := newStubRepo(activeUser(t, "correct-horse"))
	router, sessions := newAuthRouter(t, repo)

	login := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"admin@steward.local","password":"correct-horse"}`))
	login.Header.Set("Content-Type", "application/json")
	loginRes := httptest.NewRecorder()
	router.ServeHTTP(loginRes, login)
	if loginRes.Code != http.StatusOK {
		t.Fatalf("login status = %d", loginRes.Code)
	}

	var cookie *http.Cookie
	for _, c := range loginRes.Result().Cookies() {
		if c.Name == sessions.CookieName() {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("no session cookie after login")
	}

	me := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	me.AddCookie(cookie)
	meRes := httptest.NewRecorder()
	router.ServeHTTP(meRes, me)
	if meRes.Code != http.StatusOK {
		t.Fatalf("me status = %d: %s", meRes.Code, meRes.Body)
	}

	logout := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	logout.AddCookie(cookie)
	logoutRes := httptest.NewRecorder()
	router.ServeHTTP(logoutRes, logout)
	if logoutRes.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d", logoutRes.Code)
	}
	if len(repo.sessions) != 0 {
		t.Fatal("session metadata not removed on logout")
	}

	// The destroyed session no longer answers /me.
	meAgain := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	meAgain.AddCookie(cookie)
	meAgainRes := httptest.NewRecorder()
	router.ServeHTTP(meAgainRes, meAgain)
	if meAgainRes.Code != http.StatusUnauthorized {
		t.Fatalf("me after logout status = %d, want 401", meAgainRes.Code)
	}
}
