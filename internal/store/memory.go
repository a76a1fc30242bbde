package store

import (
	"context"
	"sync"
	"time"

	"github.com/aura-assist/gateway/types"
)

// MemoryStore is an in-memory implementation of the user and session
// repositories. It backs unit tests and database-less development. A
// single coarse lock serializes every operation; volumes are small and
// operations are sub-millisecond, so contention is not a concern.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]types.User    // by user id
	sessions  map[string]types.Session // by token jti
	userRoles map[string][]string      // user id -> assigned role names
	userPerms map[string][]string      // user id -> granted permission names
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]types.User),
		sessions:  make(map[string]types.Session),
		userRoles: make(map[string][]string),
		userPerms: make(map[string][]string),
	}
}

// Users returns the user repository view of the store.
func (m *MemoryStore) Users() *MemoryUserRepository {
	return &MemoryUserRepository{store: m}
}

// Sessions returns the session repository view of the store.
func (m *MemoryStore) Sessions() *MemorySessionRepository {
	return &MemorySessionRepository{store: m}
}

// MemoryUserRepository implements the user repository over a MemoryStore.
type MemoryUserRepository struct {
	store *MemoryStore
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (types.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	user, ok := r.store.users[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

func (r *MemoryUserRepository) GetByUsername(_ context.Context, username string) (types.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, user := range r.store.users {
		if user.Username == username {
			return user, nil
		}
	}
	return types.User{}, ErrNotFound
}

func (r *MemoryUserRepository) Create(_ context.Context, user types.User) (types.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.users[user.ID]; ok {
		return types.User{}, ErrDuplicate
	}
	for _, existing := range r.store.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return types.User{}, ErrDuplicate
		}
	}
	user.CreatedAt = time.Now()
	r.store.users[user.ID] = user
	return user, nil
}

func (r *MemoryUserRepository) Update(_ context.Context, user types.User) (types.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	existing, ok := r.store.users[user.ID]
	if !ok {
		return types.User{}, ErrNotFound
	}
	existing.Email = user.Email
	existing.Role = user.Role
	existing.IsActive = user.IsActive
	existing.IsAdmin = user.IsAdmin
	r.store.users[user.ID] = existing
	return existing, nil
}

func (r *MemoryUserRepository) Delete(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.users[id]; !ok {
		return ErrNotFound
	}
	delete(r.store.users, id)
	delete(r.store.userRoles, id)
	delete(r.store.userPerms, id)
	// Cascade: sessions of the deleted user go with it.
	for jti, session := range r.store.sessions {
		if session.UserID == id {
			delete(r.store.sessions, jti)
		}
	}
	return nil
}

func (r *MemoryUserRepository) Roles(_ context.Context, userID string) ([]string, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return append([]string(nil), r.store.userRoles[userID]...), nil
}

func (r *MemoryUserRepository) Permissions(_ context.Context, userID string) ([]string, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return append([]string(nil), r.store.userPerms[userID]...), nil
}

// AssignRole records an extra role assignment for the user. Test helper
// mirroring the user_roles association table.
func (r *MemoryUserRepository) AssignRole(userID, role string) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.userRoles[userID] = append(r.store.userRoles[userID], role)
}

// GrantPermission records an extra permission grant for the user. Test
// helper mirroring the role_permissions association table.
func (r *MemoryUserRepository) GrantPermission(userID, permission string) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.userPerms[userID] = append(r.store.userPerms[userID], permission)
}

// MemorySessionRepository implements the session repository over a
// MemoryStore.
type MemorySessionRepository struct {
	store *MemoryStore
}

func (r *MemorySessionRepository) Create(_ context.Context, session types.Session) (types.Session, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.sessions[session.TokenJTI]; ok {
		return types.Session{}, ErrDuplicate
	}
	r.store.sessions[session.TokenJTI] = session
	return session, nil
}

func (r *MemorySessionRepository) GetByJTI(_ context.Context, jti string) (types.Session, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	session, ok := r.store.sessions[jti]
	if !ok {
		return types.Session{}, ErrNotFound
	}
	return session, nil
}

func (r *MemorySessionRepository) Touch(_ context.Context, jti string, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	session, ok := r.store.sessions[jti]
	if !ok {
		return nil
	}
	session.LastActivity = at
	r.store.sessions[jti] = session
	return nil
}

func (r *MemorySessionRepository) DeleteByJTI(_ context.Context, jti string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.sessions[jti]; !ok {
		return ErrNotFound
	}
	delete(r.store.sessions, jti)
	return nil
}

func (r *MemorySessionRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var deleted int64
	for jti, session := range r.store.sessions {
		if session.ExpiresAt.Before(now) {
			delete(r.store.sessions, jti)
			deleted++
		}
	}
	return deleted, nil
}
