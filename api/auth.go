/*
auth.go - Bearer token verification and role checks

PURPOSE:
  Verifies HS256 JWTs on every /api request and enforces per-route roles.
  Tokens are issued elsewhere; this service only checks them.

CLAIMS:
  sub       user id
  username  display name
  role      manager | caretaker | parent | guest
  exp       expiry (required)

REVOCATION:
  Logout puts the token into a TokenStore until it would have expired.
  MemoryTokenStore is enough for one process; a shared deployment needs a
  store every instance can see.

SEE ALSO:
  - server.go: Which routes require which roles
*/
package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/attendance"
)

// Claims is the JWT payload.
type Claims struct {
	Username string          `json:"username"`
	Role     attendance.Role `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller, stored in the request context.
type Principal struct {
	UserID   string
	Username string
	Role     attendance.Role
	Token    string
	Expires  time.Time
}

type principalKey struct{}

// PrincipalFrom returns the caller attached by Authenticator.Middleware.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// =============================================================================
// TOKEN STORE
// =============================================================================

// TokenStore records revoked tokens.
type TokenStore interface {
	Revoke(ctx context.Context, token string, until time.Time) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// MemoryTokenStore is a process-local TokenStore. Entries are pruned once
// their token has expired anyway.
type MemoryTokenStore struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{revoked: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryTokenStore) Revoke(_ context.Context, token string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prune()
	m.revoked[token] = until
	return nil
}

func (m *MemoryTokenStore) IsRevoked(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.revoked[token]
	return ok && m.now().Before(until), nil
}

func (m *MemoryTokenStore) prune() {
	now := m.now()
	for tok, until := range m.revoked {
		if !now.Before(until) {
			delete(m.revoked, tok)
		}
	}
}

// =============================================================================
// AUTHENTICATOR
// =============================================================================

var (
	errMissingToken = errors.New("missing bearer token")
	errRevokedToken = errors.New("token has been revoked")
)

// Authenticator verifies bearer tokens. With Enabled false every request
// runs as an anonymous manager, for local development.
type Authenticator struct {
	Secret  []byte
	Tokens  TokenStore
	Enabled bool
}

func NewAuthenticator(secret string, tokens TokenStore, enabled bool) *Authenticator {
	if tokens == nil {
		tokens = NewMemoryTokenStore()
	}
	return &Authenticator{Secret: []byte(secret), Tokens: tokens, Enabled: enabled}
}

// Middleware rejects requests without a valid, unrevoked token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled {
			p := Principal{UserID: "anonymous", Username: "anonymous", Role: attendance.RoleManager}
			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
			return
		}

		p, err := a.Verify(r.Context(), bearerToken(r))
		if err != nil {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}

// Verify parses and checks a raw token.
func (a *Authenticator) Verify(ctx context.Context, raw string) (Principal, error) {
	if raw == "" {
		return Principal{}, errMissingToken
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Principal{}, errors.Wrap(err, "invalid token")
	}

	revoked, err := a.Tokens.IsRevoked(ctx, raw)
	if err != nil {
		return Principal{}, errors.Wrap(err, "checking revocation")
	}
	if revoked {
		return Principal{}, errRevokedToken
	}

	p := Principal{UserID: claims.Subject, Username: claims.Username, Role: claims.Role, Token: raw}
	if claims.ExpiresAt != nil {
		p.Expires = claims.ExpiresAt.Time
	}
	return p, nil
}

// Sign issues a token for claims. Used by tests and tooling; the login flow
// lives outside this service.
func (a *Authenticator) Sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
}

// RequireRoles lets a request through only if the caller has one of roles.
func RequireRoles(roles ...attendance.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized", errMissingToken)
				return
			}
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, codeForbidden, "Forbidden", nil)
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
