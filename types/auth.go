package types

import "time"

// Token kinds carried in the "kind" claim. Verification is kind-checked:
// an access verification rejects a refresh token and vice versa.
const (
	TokenKindAccess  = "access"
	TokenKindRefresh = "refresh"
)

// TokenPayload is the decoded claim set of a verified token. It is
// reconstructed on every verification call and never cached beyond the
// scope of one request.
type TokenPayload struct {
	UserID      string
	Username    string
	Email       string
	Roles       []string
	Permissions []string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	JTI         string
	Kind        string
}

// ConnectionContext holds the resolved identity and authorization facts
// for one live, authenticated connection. It is created once per
// successful handshake and immutable for the life of the connection.
type ConnectionContext struct {
	UserID      string
	Username    string
	Email       string
	Roles       []string
	Permissions []string
	IsAdmin     bool
}

// HasRole reports whether the connection carries the named role.
func (c ConnectionContext) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HistoryMessage is one entry returned by the conversational history
// store, which this layer consumes as an external collaborator.
type HistoryMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
