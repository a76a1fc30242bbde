// Package token issues and verifies the signed tokens used by the
// authentication handshake and the login API. Tokens are HS256 JWTs with
// a random jti claim that binds each token to a revocable session row.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/aura-assist/gateway/types"
)

const (
	// DefaultAccessTTL is the lifetime of an access token.
	DefaultAccessTTL = time.Hour
	// DefaultRefreshTTL is the lifetime of a refresh token.
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

var (
	// ErrInvalidToken covers signature mismatch, malformed tokens, and
	// expired tokens. Verification fails closed.
	ErrInvalidToken = errors.New("token: invalid or expired token")
	// ErrWrongKind is returned when an access verification receives a
	// refresh token or vice versa.
	ErrWrongKind = errors.New("token: wrong token kind")
)

// Claims is the on-wire claim set. It embeds the registered claims and
// adds the identity and authorization facts the handshake needs.
type Claims struct {
	jwt.RegisteredClaims
	UserID      string   `json:"user_id"`
	Username    string   `json:"username"`
	Email       string   `json:"email,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	Kind        string   `json:"kind"`
}

// Issued describes a freshly minted token.
type Issued struct {
	Token     string
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Service signs and verifies tokens with a server-held secret. The
// secret is injected at construction from configuration; it is never
// generated at process start, so a restart does not invalidate
// outstanding tokens.
type Service struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithAccessTTL overrides the access token lifetime.
func WithAccessTTL(d time.Duration) Option {
	return func(s *Service) { s.accessTTL = d }
}

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(d time.Duration) Option {
	return func(s *Service) { s.refreshTTL = d }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService constructs a Service. The secret must be non-empty.
func NewService(secret []byte, opts ...Option) (*Service, error) {
	if len(secret) == 0 {
		return nil, errors.New("token: signing secret is required")
	}
	s := &Service{
		secret:     secret,
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IssueAccess mints an access token carrying the supplied identity,
// roles, and permissions.
func (s *Service) IssueAccess(userID, username, email string, roles, permissions []string) (Issued, error) {
	return s.issue(Claims{
		UserID:      userID,
		Username:    username,
		Email:       email,
		Roles:       roles,
		Permissions: permissions,
		Kind:        types.TokenKindAccess,
	}, s.accessTTL)
}

// IssueRefresh mints a long-lived refresh token. Refresh tokens carry no
// permission claims; privilege is re-resolved from the credential store
// at refresh time.
func (s *Service) IssueRefresh(userID, username string) (Issued, error) {
	return s.issue(Claims{
		UserID:   userID,
		Username: username,
		Kind:     types.TokenKindRefresh,
	}, s.refreshTTL)
}

func (s *Service) issue(claims Claims, ttl time.Duration) (Issued, error) {
	now := s.now()
	jti := uuid.NewString()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        jti,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Issued{}, fmt.Errorf("token: sign: %w", err)
	}
	return Issued{
		Token:     signed,
		JTI:       jti,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// Verify checks the signature, expiry, and kind of tokenString and
// returns the decoded payload. kind must be types.TokenKindAccess or
// types.TokenKindRefresh; a token of the other kind is rejected.
func (s *Service) Verify(tokenString, kind string) (types.TokenPayload, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return types.TokenPayload{}, ErrInvalidToken
	}
	if claims.Kind != kind {
		return types.TokenPayload{}, ErrWrongKind
	}
	return payloadFromClaims(claims), nil
}

// Peek decodes the claims without checking the signature. It exists only
// to extract identifying claims (the jti) for logout and refresh flows
// and must never feed an authorization decision.
func (s *Service) Peek(tokenString string) (types.TokenPayload, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return types.TokenPayload{}, ErrInvalidToken
	}
	return payloadFromClaims(claims), nil
}

func payloadFromClaims(claims *Claims) types.TokenPayload {
	payload := types.TokenPayload{
		UserID:      claims.UserID,
		Username:    claims.Username,
		Email:       claims.Email,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
		JTI:         claims.ID,
		Kind:        claims.Kind,
	}
	if claims.IssuedAt != nil {
		payload.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		payload.ExpiresAt = claims.ExpiresAt.Time
	}
	return payload
}
