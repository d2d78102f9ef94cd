// Package auth resolves the identity behind an incoming connection.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingName  = errors.New("identity has no name")
)

// Identity is a signed-in user. A nil *Identity means the caller is anonymous.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Resolver extracts the identity from an HTTP request before it is upgraded.
// It returns (nil, nil) for anonymous requests.
type Resolver interface {
	Resolve(r *http.Request) (*Identity, error)
}

// Anonymous treats every request as anonymous.
type Anonymous struct{}

func (Anonymous) Resolve(*http.Request) (*Identity, error) { return nil, nil }

const (
	// QueryParam and CookieName are the non-header token locations; browsers
	// cannot set headers on a WebSocket handshake.
	QueryParam = "token"
	CookieName = "session"
)

type claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// JWTResolver issues and verifies HS256 identity tokens.
type JWTResolver struct {
	secret []byte
	now    func() time.Time
}

func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret), now: time.Now}
}

// Issue signs a token for identity valid for ttl.
func (j *JWTResolver) Issue(identity Identity, ttl time.Duration) (string, error) {
	if identity.Name == "" {
		return "", ErrMissingName
	}
	now := j.now()
	c := claims{
		Name: identity.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and returns its identity.
func (j *JWTResolver) Verify(token string) (*Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return j.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(j.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || c.Subject == "" || c.Name == "" {
		return nil, ErrInvalidToken
	}
	return &Identity{ID: c.Subject, Name: c.Name}, nil
}

// Resolve looks for a token in the Authorization header, then the token
// query parameter, then the session cookie.
func (j *JWTResolver) Resolve(r *http.Request) (*Identity, error) {
	token := TokenFrom(r)
	if token == "" {
		return nil, nil
	}
	return j.Verify(token)
}

// TokenFrom returns the raw token carried by r, or "".
func TokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if token := r.URL.Query().Get(QueryParam); token != "" {
		return token
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}
