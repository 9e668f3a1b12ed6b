package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// CookieName carries the signed session token.
	CookieName = "vaxtrax_session"
	issuer     = "vaxtrax"
	defaultTTL = 12 * time.Hour
)

// Session is the authenticated principal attached to a request.
type Session struct {
	ID        string
	Email     string
	Name      string
	Role      Role
	ExpiresAt time.Time
}

// HasRole reports whether the session holds any of roles.
func (s Session) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if s.Role == r {
			return true
		}
	}
	return false
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// Sessions issues and verifies HS256 session tokens.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	secure bool
}

// SessionOption customises Sessions.
type SessionOption func(*Sessions)

// WithNow overrides the clock used for issuing and validating tokens.
func WithNow(now func() time.Time) SessionOption {
	return func(s *Sessions) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSecureCookie marks the session cookie Secure.
func WithSecureCookie(secure bool) SessionOption {
	return func(s *Sessions) { s.secure = secure }
}

// NewSessions requires a non-empty signing secret. A non-positive ttl
// selects twelve hours.
func NewSessions(secret []byte, ttl time.Duration, opts ...SessionOption) (*Sessions, error) {
	if len(secret) == 0 {
		return nil, errors.New("session secret required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	s := &Sessions{secret: append([]byte(nil), secret...), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue signs a token for u.
func (s *Sessions) Issue(u User) (string, Session, error) {
	now := s.now().UTC()
	sess := Session{
		ID:        uuid.NewString(),
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		ExpiresAt: now.Add(s.ttl).Truncate(time.Second),
	}
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   sess.Email,
			ID:        sess.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
		Name: sess.Name,
		Role: sess.Role,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", Session{}, fmt.Errorf("sign session: %w", err)
	}
	return token, sess, nil
}

// Parse verifies token and returns its session.
func (s *Sessions) Parse(token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, ErrUnauthenticated
	}
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if !claims.Role.Valid() || claims.Subject == "" {
		return Session{}, fmt.Errorf("%w: malformed claims", ErrUnauthenticated)
	}
	return Session{
		ID:        claims.ID,
		Email:     claims.Subject,
		Name:      claims.Name,
		Role:      claims.Role,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}

// SetCookie writes token as an HTTP-only session cookie.
func (s *Sessions) SetCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func (s *Sessions) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// FromRequest reads the session from the cookie, falling back to a bearer
// Authorization header when the cookie is missing or no longer valid.
func (s *Sessions) FromRequest(r *http.Request) (Session, error) {
	cookieErr := ErrUnauthenticated
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		sess, err := s.Parse(c.Value)
		if err == nil {
			return sess, nil
		}
		cookieErr = err
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return s.Parse(strings.TrimPrefix(h, "Bearer "))
	}
	return Session{}, cookieErr
}

type sessionKey struct{}

// WithSession attaches sess to ctx.
func WithSession(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

// FromContext returns the session attached by Middleware.
func FromContext(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(sessionKey{}).(Session)
	return sess, ok
}

// Middleware attaches a valid session to the request context. Requests
// without one pass through unauthenticated.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sess, err := s.FromRequest(r); err == nil {
			r = r.WithContext(WithSession(r.Context(), sess))
		}
		next.ServeHTTP(w, r)
	})
}

// Authorize returns the request session when it holds one of roles. With no
// roles any authenticated session passes.
func Authorize(ctx context.Context, roles ...Role) (Session, error) {
	sess, ok := FromContext(ctx)
	if !ok {
		return Session{}, ErrUnauthenticated
	}
	if len(roles) > 0 && !sess.HasRole(roles...) {
		return Session{}, ErrForbidden
	}
	return sess, nil
}
