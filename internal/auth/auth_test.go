package auth

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

func newEnv(t *testing.T, password string) *Authenv {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return &Authenv{JWTkey: []byte("test-key"), PasswordHash: string(hash), Logger: zerolog.Nop()}
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

func TestAuthDisabledPassesThrough(t *testing.T) {
	env := &Authenv{JWTkey: []byte("k"), Logger: zerolog.Nop()}
	rec := httptest.NewRecorder()
	env.AuthMiddleware(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/actions/run", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
}

func TestAuthMiddlewareRejectsWithoutSession(t *testing.T) {
	env := newEnv(t, "secret")
	rec := httptest.NewRecorder()
	env.AuthMiddleware(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/actions/run", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"error"`) {
		t.Fatalf("expected json error body, got %q", rec.Body.String())
	}
}

func TestLoginSetsSessionCookie(t *testing.T) {
	env := newEnv(t, "secret")

	form := url.Values{"password": {"wrong"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.LoginHandler(rec, req)
	if loc := rec.Header().Get("Location"); loc != "/login?error=1" {
		t.Fatalf("wrong password must redirect back, got %q", loc)
	}

	form.Set("password", "secret")
	req = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	env.LoginHandler(rec, req)
	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == CookieName {
			session = c
		}
	}
	if session == nil || session.Value == "" || !session.HttpOnly {
		t.Fatalf("expected session cookie, got %+v", rec.Result().Cookies())
	}

	req = httptest.NewRequest(http.MethodPost, "/actions/run", nil)
	req.AddCookie(session)
	rec = httptest.NewRecorder()
	env.AuthMiddleware(okHandler).ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("valid session must pass, got %d", rec.Code)
	}
}

func TestTokenFromOtherKeyRejected(t *testing.T) {
	env := newEnv(t, "secret")
	other := &Authenv{JWTkey: []byte("other"), PasswordHash: env.PasswordHash, Logger: zerolog.Nop()}
	rec := httptest.NewRecorder()
	if err := other.addCookie(rec); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(rec.Result().Cookies()[0])
	if env.LoggedIn(req) {
		t.Fatal("token signed with another key must be rejected")
	}
}

func TestLimitMiddleware(t *testing.T) {
	l := NewIPRateLimiter(1, 2)
	h := l.LimitMiddleware(okHandler)
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/actions/run", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusNoContent || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}

	req := httptest.NewRequest(http.MethodPost, "/actions/run", nil)
	req.RemoteAddr = "10.0.0.2:5000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("other clients keep their own budget, got %d", rec.Code)
	}
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("pw")
	if err != nil {
		t.Fatal(err)
	}
	env := &Authenv{PasswordHash: hash}
	if !env.CheckPassword("pw") || env.CheckPassword("nope") {
		t.Fatal("hash does not round-trip")
	}
}
