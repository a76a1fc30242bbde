package types

import "time"

// User represents an account in the system.
// It contains identity, role, and audit metadata.
type User struct {
	// ID is the unique identifier of the user (UUID).
	ID string `json:"user_id" db:"user_id"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username"`

	// Email is the user's email address.
	Email string `json:"email" db:"email"`

	// Role indicates the user's authorization level within the
	// system (e.g., "admin", "user", "guest", "restricted").
	Role string `json:"role" db:"role"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// IsActive reports whether the account may authenticate.
	// Deactivated accounts fail authentication even with a structurally
	// valid token.
	IsActive bool `json:"is_active" db:"is_active"`

	// IsAdmin marks accounts with full administrative access.
	IsAdmin bool `json:"is_admin" db:"is_admin"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// PublicUser is the API-safe projection of a User.
type PublicUser struct {
	ID       string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	IsAdmin  bool   `json:"is_admin"`
}

// Public returns the API-safe projection of the user.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
		IsAdmin:  u.IsAdmin,
	}
}
