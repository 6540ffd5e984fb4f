package auth

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

const (
	CookieName  = "session_token"
	sessionTTL  = 12 * time.Hour
	operatorSub = "operator"
)

// Authenv guards the action endpoints behind a single operator password.
// An empty PasswordHash disables authentication.
type Authenv struct {
	JWTkey       []byte
	PasswordHash string
	// SecureCookie marks the session cookie HTTPS-only.
	SecureCookie bool
	Logger       zerolog.Logger
}

type IPRateLimiter struct {
	ips map[string]*rate.Limiter
	mu  sync.RWMutex
	r   rate.Limit
	b   int
}

type Loginrequest struct {
	Password string `json:"password"`
}

// NewKey returns key as bytes, or a random key when key is empty.
// A random key invalidates sessions on restart.
func NewKey(key string) []byte {
	if key != "" {
		return []byte(key)
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		ips: make(map[string]*rate.Limiter),
		r:   r,
		b:   b,
	}
}

func (i *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	limiter, exists := i.ips[ip]
	if !exists {
		limiter = rate.NewLimiter(i.r, i.b)
		i.ips[ip] = limiter
	}
	return limiter
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// LimitMiddleware rejects clients that exceed the per-IP rate.
func (i *IPRateLimiter) LimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !i.getLimiter(clientIP(r)).Allow() {
			writeJSONError(w, http.StatusTooManyRequests, "Too Many Requests. Try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func (env *Authenv) Enabled() bool { return env.PasswordHash != "" }

// CheckPassword compares password with the configured operator hash.
func (env *Authenv) CheckPassword(password string) bool {
	if !env.Enabled() || password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(env.PasswordHash), []byte(password)) == nil
}

func (env *Authenv) isValidToken(tokenString string) bool {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return env.JWTkey, nil
	})
	if err != nil {
		env.Logger.Debug().Err(err).Msg("session token rejected")
		return false
	}
	sub, err := token.Claims.GetSubject()
	return token.Valid && err == nil && sub == operatorSub
}

// LoggedIn reports whether r carries a valid operator session. Always true
// when authentication is disabled.
func (env *Authenv) LoggedIn(r *http.Request) bool {
	if !env.Enabled() {
		return true
	}
	cookie, err := r.Cookie(CookieName)
	return err == nil && env.isValidToken(cookie.Value)
}

// AuthMiddleware answers 401 JSON to requests without an operator session.
func (env *Authenv) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !env.LoggedIn(r) {
			writeJSONError(w, http.StatusUnauthorized, "Login required.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (env *Authenv) RedirectIfLoggedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if env.Enabled() && env.LoggedIn(r) {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (env *Authenv) addCookie(w http.ResponseWriter) error {
	expiration := time.Now().Add(sessionTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   operatorSub,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(expiration),
	})
	tokenString, err := token.SignedString(env.JWTkey)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    tokenString,
		Expires:  expiration,
		Path:     "/",
		HttpOnly: true,
		Secure:   env.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

var errBadRequest = errors.New("invalid request payload")

func readPassword(r *http.Request) (string, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req Loginrequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", errBadRequest
		}
		return req.Password, nil
	}
	if err := r.ParseForm(); err != nil {
		return "", errBadRequest
	}
	return r.PostFormValue("password"), nil
}

func wantsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

// LoginHandler checks the operator password and sets the session cookie.
// Form posts are redirected; JSON posts get a status code.
func (env *Authenv) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if !env.Enabled() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	password, err := readPassword(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if !env.CheckPassword(password) {
		env.Logger.Warn().Str("ip", clientIP(r)).Msg("operator login failed")
		if wantsJSON(r) {
			writeJSONError(w, http.StatusUnauthorized, "Invalid password")
			return
		}
		http.Redirect(w, r, "/login?error=1", http.StatusSeeOther)
		return
	}
	if err := env.addCookie(w); err != nil {
		env.Logger.Error().Err(err).Msg("sign session token")
		writeJSONError(w, http.StatusInternalServerError, "Could not create session")
		return
	}
	env.Logger.Info().Str("ip", clientIP(r)).Msg("operator logged in")
	if wantsJSON(r) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Authentication successful"))
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (env *Authenv) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   env.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
