package server

import (
	"context"
	"errors"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/aura-assist/gateway/internal/audit"
	"github.com/aura-assist/gateway/internal/authz"
	"github.com/aura-assist/gateway/internal/protocol"
	"github.com/aura-assist/gateway/internal/services"
	"github.com/aura-assist/gateway/internal/token"
	"github.com/aura-assist/gateway/types"
)

const (
	// DefaultHandshakeTimeout bounds the wait for the auth-request frame.
	DefaultHandshakeTimeout = 10 * time.Second
	// MaxTokenBytes is the sanity bound on an auth-request payload. Larger
	// payloads are rejected without ever reaching token verification.
	MaxTokenBytes = 10 * 1024
)

// ErrHandshakeFailed is returned for every rejected handshake. The
// client-visible reason travels in the auth-failure frame; the log
// carries the detail.
var ErrHandshakeFailed = errors.New("server: authentication handshake failed")

// AuthService resolves a bearer token to a connection context. Implemented
// by services.UserService.
type AuthService interface {
	Authenticate(ctx context.Context, accessToken string) (types.ConnectionContext, error)
}

// Authenticator drives the per-connection authentication handshake:
// exactly one auth-request frame, answered with auth-success or
// auth-failure, before any data frame is processed.
type Authenticator struct {
	auth     AuthService
	required bool
	timeout  time.Duration
	audit    audit.Recorder
	log      zerolog.Logger
}

// NewAuthenticator constructs an Authenticator. When required is false
// every connection is granted a synthetic all-permission context; this
// exists for closed-network deployments only and is logged loudly.
func NewAuthenticator(auth AuthService, required bool, timeout time.Duration, recorder audit.Recorder, log zerolog.Logger) *Authenticator {
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &Authenticator{auth: auth, required: required, timeout: timeout, audit: recorder, log: log}
}

// Handshake runs the state machine over nc. dec carries any bytes the
// caller already read; bytes beyond the auth-request frame stay buffered
// in it for the data loop. The read deadline is widened for the exchange
// and cleared again on every exit path.
func (a *Authenticator) Handshake(ctx context.Context, nc net.Conn, dec *protocol.Decoder) (types.ConnectionContext, error) {
	remote := remoteIP(nc)

	if !a.required {
		a.log.Warn().
			Str("remote", remote).
			Msg("authentication disabled, granting all-permission context")
		return types.ConnectionContext{
			Username:    "anonymous",
			Roles:       []string{authz.RoleAdmin},
			Permissions: []string{authz.WildcardAll},
			IsAdmin:     true,
		}, nil
	}

	if err := nc.SetReadDeadline(time.Now().Add(a.timeout)); err != nil {
		return types.ConnectionContext{}, err
	}
	defer func() {
		_ = nc.SetReadDeadline(time.Time{})
	}()

	frame, err := a.readFrame(nc, dec)
	if err != nil {
		if isTimeout(err) {
			a.reject(ctx, nc, remote, "authentication timeout")
			return types.ConnectionContext{}, ErrHandshakeFailed
		}
		return types.ConnectionContext{}, err
	}

	if frame.Marker != protocol.MarkerAuthRequest {
		a.reject(ctx, nc, remote, "authentication required")
		return types.ConnectionContext{}, ErrHandshakeFailed
	}
	if len(frame.Payload) > MaxTokenBytes {
		a.reject(ctx, nc, remote, "token too large")
		return types.ConnectionContext{}, ErrHandshakeFailed
	}

	authCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	connCtx, err := a.auth.Authenticate(authCtx, string(frame.Payload))
	if err != nil {
		a.reject(ctx, nc, remote, failureReason(err))
		return types.ConnectionContext{}, ErrHandshakeFailed
	}

	if err := writeRaw(nc, protocol.EncodeFrame(protocol.MarkerAuthSuccess, []byte(connCtx.UserID))); err != nil {
		return types.ConnectionContext{}, err
	}

	a.log.Info().
		Str("remote", remote).
		Str("user_id", connCtx.UserID).
		Str("username", connCtx.Username).
		Msg("connection authenticated")
	a.audit.Record(ctx, audit.Event{
		Kind:     audit.EventAuthSuccess,
		UserID:   connCtx.UserID,
		Username: connCtx.Username,
		RemoteIP: remote,
	})
	return connCtx, nil
}

// readFrame reads until one complete frame is buffered or the deadline
// expires.
func (a *Authenticator) readFrame(nc net.Conn, dec *protocol.Decoder) (protocol.Frame, error) {
	buf := make([]byte, 4096)
	for {
		frame, ok, err := dec.Next()
		if err != nil {
			return protocol.Frame{}, err
		}
		if ok {
			return frame, nil
		}

		n, err := nc.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n])
			continue
		}
		if err != nil {
			return protocol.Frame{}, err
		}
	}
}

func (a *Authenticator) reject(ctx context.Context, nc net.Conn, remote, reason string) {
	a.log.Info().Str("remote", remote).Str("reason", reason).Msg("handshake rejected")
	a.audit.Record(ctx, audit.Event{
		Kind:     audit.EventAuthFailure,
		RemoteIP: remote,
		Detail:   reason,
	})
	_ = writeRaw(nc, protocol.EncodeFrame(protocol.MarkerAuthFailure, []byte(reason)))
}

// failureReason maps an authentication error to the client-visible
// message. Internal store failures collapse to a generic message; the
// handshake still fails, never bypasses.
func failureReason(err error) string {
	switch {
	case errors.Is(err, token.ErrInvalidToken):
		return "invalid or expired token"
	case errors.Is(err, token.ErrWrongKind):
		return "invalid or expired token"
	case errors.Is(err, services.ErrSessionRevoked):
		return "session revoked"
	case errors.Is(err, services.ErrUserInactive):
		return "user account inactive"
	case errors.Is(err, services.ErrInvalidCredentials):
		return "unknown user"
	default:
		return "authentication failed"
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}

func writeRaw(nc net.Conn, data []byte) error {
	_, err := nc.Write(data)
	return err
}

func remoteIP(nc net.Conn) string {
	addr := nc.RemoteAddr()
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
