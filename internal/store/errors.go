package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a uniqueness constraint (username,
// email, or token jti) would be violated. Surfaced to callers of user
// creation rather than swallowed.
var ErrDuplicate = errors.New("duplicate record")
