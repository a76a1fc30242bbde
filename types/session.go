package types

import "time"

// Session links one issued token (by its jti claim) to a revocable
// server-side row. A session lives from token issuance until explicit
// logout, the expiry sweep, or deletion of the owning user.
type Session struct {
	// ID is the unique identifier of the session (UUID).
	ID string `json:"session_id" db:"session_id"`

	// UserID is the owning user's id.
	UserID string `json:"user_id" db:"user_id"`

	// TokenJTI is the jti claim of the access or refresh token this
	// session was created for. At most one session exists per jti.
	TokenJTI string `json:"token_jti" db:"token_jti"`

	// CreatedAt is when the token was issued.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// ExpiresAt mirrors the token's exp claim; the sweep removes
	// sessions past this instant.
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`

	// LastActivity is updated when the session's token is used.
	LastActivity time.Time `json:"last_activity" db:"last_activity"`

	// IPAddress is the origin address recorded at issuance, if known.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`
}
