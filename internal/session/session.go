// Package session turns the "platform" cookie into an explicit Identity.
//
// Sessions are HS256 JWTs, so nothing is stored server side; logging out
// expires the cookie on the client.
package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const CookieName = "platform"

var ErrNoSession = errors.New("session: not logged in")

// Identity is the authenticated caller handed to the ledger.
type Identity struct {
	AccountID string
	UserName  string
}

type claims struct {
	UserName string `json:"user_name"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

func NewManager(secret string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithSecureCookies marks issued cookies Secure (HTTPS deployments).
func (m *Manager) WithSecureCookies(secure bool) *Manager {
	m.secure = secure
	return m
}

// Issue signs a token for the identity.
func (m *Manager) Issue(id Identity) (string, time.Time, error) {
	now := m.now()
	expires := now.Add(m.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserName: id.UserName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.AccountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// Parse validates the signature and expiry of a token.
func (m *Manager) Parse(tokenString string) (Identity, error) {
	var c claims
	_, err := jwt.ParseWithClaims(tokenString, &c, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return Identity{}, ErrNoSession
	}
	if c.Subject == "" {
		return Identity{}, ErrNoSession
	}
	return Identity{AccountID: c.Subject, UserName: c.UserName}, nil
}

// Login writes the session cookie.
func (m *Manager) Login(w http.ResponseWriter, id Identity) error {
	token, expires, err := m.Issue(id)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Logout expires the session cookie.
func (m *Manager) Logout(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Resolve reads the identity from the request cookie.
func (m *Manager) Resolve(r *http.Request) (Identity, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return Identity{}, ErrNoSession
	}
	return m.Parse(cookie.Value)
}

type contextKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity stored by Middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// Middleware resolves the cookie and stores the identity in the request
// context. Requests without a valid session are passed to onMissing.
func (m *Manager) Middleware(onMissing http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := m.Resolve(r)
			if err != nil {
				onMissing(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
