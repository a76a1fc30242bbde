// Package services implements the account and session use-cases on top
// of the credential store and the token service.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/aura-assist/gateway/internal/authz"
	"github.com/aura-assist/gateway/internal/store"
	"github.com/aura-assist/gateway/internal/token"
	"github.com/aura-assist/gateway/types"
)

var (
	// ErrInvalidCredentials is returned for unknown usernames and wrong
	// passwords alike, so callers cannot probe for account existence.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrUserInactive is returned when a deactivated account attempts any
	// authenticated operation.
	ErrUserInactive = errors.New("user account inactive")
	// ErrSessionRevoked is returned when a structurally valid token's
	// session row no longer exists (logout or sweep).
	ErrSessionRevoked = errors.New("session revoked")
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	Delete(ctx context.Context, id string) error
	Roles(ctx context.Context, userID string) ([]string, error)
	Permissions(ctx context.Context, userID string) ([]string, error)
}

// SessionRepository defines persistence operations for sessions.
type SessionRepository interface {
	Create(ctx context.Context, session types.Session) (types.Session, error)
	GetByJTI(ctx context.Context, jti string) (types.Session, error)
	Touch(ctx context.Context, jti string, at time.Time) error
	DeleteByJTI(ctx context.Context, jti string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// UserService encapsulates account and session use-cases.
type UserService struct {
	users    UserRepository
	sessions SessionRepository
	tokens   *token.Service
}

func NewUserService(users UserRepository, sessions SessionRepository, tokens *token.Service) *UserService {
	return &UserService{users: users, sessions: sessions, tokens: tokens}
}

// CreateUser provisions a new account. The password is hashed with
// bcrypt before storage; the plaintext is never persisted or logged.
func (s *UserService) CreateUser(ctx context.Context, username, email, password, role string, isAdmin bool) (types.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return types.User{}, errors.New("username, email, and password are required")
	}
	if role == "" {
		role = authz.RoleUser
	}
	if isAdmin && role == authz.RoleUser {
		role = authz.RoleAdmin
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	return s.users.Create(ctx, types.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hashed),
		Role:         role,
		IsActive:     true,
		IsAdmin:      isAdmin,
	})
}

// VerifyPassword checks a plaintext password against the user's stored
// hash. bcrypt's comparison is constant-time.
func (s *UserService) VerifyPassword(user types.User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

// LoginResult carries the outcome of a successful login.
type LoginResult struct {
	User         types.User
	AccessToken  string
	RefreshToken string
}

// Login authenticates credentials and issues an access and a refresh
// token, each backed by its own session row.
func (s *UserService) Login(ctx context.Context, username, password, ipAddress string) (LoginResult, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if !user.IsActive {
		return LoginResult{}, ErrUserInactive
	}
	if !s.VerifyPassword(user, password) {
		return LoginResult{}, ErrInvalidCredentials
	}

	roles, permissions, err := s.resolvePrivilege(ctx, user)
	if err != nil {
		return LoginResult{}, err
	}

	access, err := s.tokens.IssueAccess(user.ID, user.Username, user.Email, roles, permissions)
	if err != nil {
		return LoginResult{}, err
	}
	refresh, err := s.tokens.IssueRefresh(user.ID, user.Username)
	if err != nil {
		return LoginResult{}, err
	}

	for _, issued := range []token.Issued{access, refresh} {
		if _, err := s.createSession(ctx, user.ID, issued, ipAddress); err != nil {
			return LoginResult{}, err
		}
	}

	return LoginResult{User: user, AccessToken: access.Token, RefreshToken: refresh.Token}, nil
}

// Refresh validates a refresh token and mints a new access token. Roles
// and permissions are re-resolved from the store rather than copied from
// the refresh token, so privilege never outlives a role change.
func (s *UserService) Refresh(ctx context.Context, refreshToken, ipAddress string) (string, error) {
	payload, err := s.tokens.Verify(refreshToken, types.TokenKindRefresh)
	if err != nil {
		return "", err
	}
	if _, err := s.sessions.GetByJTI(ctx, payload.JTI); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrSessionRevoked
		}
		return "", err
	}

	user, err := s.users.GetByID(ctx, payload.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if !user.IsActive {
		return "", ErrUserInactive
	}

	roles, permissions, err := s.resolvePrivilege(ctx, user)
	if err != nil {
		return "", err
	}

	access, err := s.tokens.IssueAccess(user.ID, user.Username, user.Email, roles, permissions)
	if err != nil {
		return "", err
	}
	if _, err := s.createSession(ctx, user.ID, access, ipAddress); err != nil {
		return "", err
	}
	_ = s.sessions.Touch(ctx, payload.JTI, time.Now())

	return access.Token, nil
}

// Logout revokes the session behind the supplied token. The token is
// only peeked, not verified: an expired token can still be logged out,
// and the jti is never used for an authorization decision.
func (s *UserService) Logout(ctx context.Context, tokenString string) error {
	payload, err := s.tokens.Peek(tokenString)
	if err != nil {
		return err
	}
	return s.sessions.DeleteByJTI(ctx, payload.JTI)
}

// Authenticate verifies an access token and resolves it to a connection
// context. The user is re-fetched so a deactivated account fails even
// with a structurally valid token, and the session row is checked so
// logout revokes outstanding tokens. A store failure here is an
// authentication failure, never a bypass.
func (s *UserService) Authenticate(ctx context.Context, accessToken string) (types.ConnectionContext, error) {
	payload, err := s.tokens.Verify(accessToken, types.TokenKindAccess)
	if err != nil {
		return types.ConnectionContext{}, err
	}
	if _, err := s.sessions.GetByJTI(ctx, payload.JTI); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.ConnectionContext{}, ErrSessionRevoked
		}
		return types.ConnectionContext{}, err
	}

	user, err := s.users.GetByID(ctx, payload.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.ConnectionContext{}, ErrInvalidCredentials
		}
		return types.ConnectionContext{}, err
	}
	if !user.IsActive {
		return types.ConnectionContext{}, ErrUserInactive
	}
	_ = s.sessions.Touch(ctx, payload.JTI, time.Now())

	isAdmin := user.IsAdmin
	for _, role := range payload.Roles {
		if role == authz.RoleAdmin {
			isAdmin = true
		}
	}

	return types.ConnectionContext{
		UserID:      user.ID,
		Username:    user.Username,
		Email:       user.Email,
		Roles:       payload.Roles,
		Permissions: payload.Permissions,
		IsAdmin:     isAdmin,
	}, nil
}

// Deactivate flips the account's active flag off, which blocks future
// logins and token verifications.
func (s *UserService) Deactivate(ctx context.Context, userID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	user.IsActive = false
	_, err = s.users.Update(ctx, user)
	return err
}

// CleanupExpiredSessions sweeps sessions past their expiry.
func (s *UserService) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx, time.Now())
}

// resolvePrivilege computes the user's current roles and permissions:
// the role tag's static permission set, any store-assigned extra roles
// and permissions, and the admin wildcard for admin accounts.
func (s *UserService) resolvePrivilege(ctx context.Context, user types.User) ([]string, []string, error) {
	roles := []string{user.Role}
	permissions := authz.RolePermissions(user.Role)

	extraRoles, err := s.users.Roles(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	for _, role := range extraRoles {
		if !contains(roles, role) {
			roles = append(roles, role)
		}
	}

	extraPerms, err := s.users.Permissions(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	for _, perm := range extraPerms {
		if !contains(permissions, perm) {
			permissions = append(permissions, perm)
		}
	}

	if user.IsAdmin {
		if !contains(roles, authz.RoleAdmin) {
			roles = append(roles, authz.RoleAdmin)
		}
		if !contains(permissions, "admin:*") {
			permissions = append(permissions, "admin:*")
		}
	}

	return roles, permissions, nil
}

func (s *UserService) createSession(ctx context.Context, userID string, issued token.Issued, ipAddress string) (types.Session, error) {
	return s.sessions.Create(ctx, types.Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		TokenJTI:     issued.JTI,
		CreatedAt:    issued.IssuedAt,
		ExpiresAt:    issued.ExpiresAt,
		LastActivity: issued.IssuedAt,
		IPAddress:    ipAddress,
	})
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}
