// Package audit records security-relevant events: logins, logouts,
// authentication failures, and permission denials. Events flow through a
// message queue to an archiver that batches them into object storage.
// Recording is best-effort; a broken pipeline never blocks or fails an
// authentication path.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/aura-assist/gateway/internal/mq"
)

// Event kinds.
const (
	EventLogin            = "login"
	EventLoginFailed      = "login_failed"
	EventLogout           = "logout"
	EventTokenRefreshed   = "token_refreshed"
	EventAuthSuccess      = "auth_success"
	EventAuthFailure      = "auth_failure"
	EventPermissionDenied = "permission_denied"
)

// Event is one audit record.
type Event struct {
	Kind      string    `json:"kind"`
	UserID    string    `json:"user_id,omitempty"`
	Username  string    `json:"username,omitempty"`
	RemoteIP  string    `json:"remote_ip,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Recorder accepts audit events.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// NopRecorder drops every event. It is the default when no queue backend
// is configured.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Event) {}

// QueueRecorder publishes events to a message queue channel. Publish
// failures are logged and swallowed.
type QueueRecorder struct {
	backend mq.Backend
	channel string
	log     zerolog.Logger
}

// NewQueueRecorder constructs a recorder publishing to the named channel.
func NewQueueRecorder(backend mq.Backend, channel string, log zerolog.Logger) *QueueRecorder {
	return &QueueRecorder{backend: backend, channel: channel, log: log}
}

// Record publishes the event. The timestamp is stamped here if the
// caller left it zero.
func (r *QueueRecorder) Record(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		r.log.Error().Err(err).Str("kind", event.Kind).Msg("marshal audit event")
		return
	}

	attrs := map[string]string{"kind": event.Kind}
	if _, err := r.backend.Publish(ctx, r.channel, data, attrs); err != nil {
		r.log.Warn().Err(err).Str("kind", event.Kind).Msg("publish audit event")
	}
}
