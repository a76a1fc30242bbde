package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aura-assist/gateway/internal/authz"
	"github.com/aura-assist/gateway/internal/protocol"
	"github.com/aura-assist/gateway/internal/services"
	"github.com/aura-assist/gateway/internal/store"
	"github.com/aura-assist/gateway/internal/token"
	"github.com/aura-assist/gateway/types"
)

type handshakeFixture struct {
	svc         *services.UserService
	users       *store.MemoryUserRepository
	user        types.User
	accessToken string
}

func newHandshakeFixture(t *testing.T) *handshakeFixture {
	t.Helper()
	ctx := context.Background()

	tokens, err := token.NewService([]byte("test-secret"))
	require.NoError(t, err)

	mem := store.NewMemoryStore()
	svc := services.NewUserService(mem.Users(), mem.Sessions(), tokens)

	user, err := svc.CreateUser(ctx, "alice", "alice@example.test", "s3cret-pass", "", false)
	require.NoError(t, err)

	result, err := svc.Login(ctx, "alice", "s3cret-pass", "")
	require.NoError(t, err)

	return &handshakeFixture{svc: svc, users: mem.Users(), user: user, accessToken: result.AccessToken}
}

func (f *handshakeFixture) authenticator() *Authenticator {
	return NewAuthenticator(f.svc, true, time.Second, nil, zerolog.Nop())
}

// runHandshake drives Handshake on the server end of a pipe and returns
// the result through channels so the test can act as the client.
func runHandshake(a *Authenticator) (client net.Conn, result chan types.ConnectionContext, errs chan error) {
	client, srv := net.Pipe()
	result = make(chan types.ConnectionContext, 1)
	errs = make(chan error, 1)
	go func() {
		dec := &protocol.Decoder{}
		connCtx, err := a.Handshake(context.Background(), srv, dec)
		if err != nil {
			errs <- err
			return
		}
		result <- connCtx
	}()
	return client, result, errs
}

// readFrame reads one complete frame from the client end.
func readFrame(t *testing.T, nc net.Conn) protocol.Frame {
	t.Helper()
	dec := &protocol.Decoder{}
	buf := make([]byte, 4096)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if frame, ok, err := dec.Next(); err != nil {
			t.Fatalf("decode frame: %v", err)
		} else if ok {
			return frame
		}
		require.NoError(t, nc.SetReadDeadline(deadline))
		n, err := nc.Read(buf)
		require.NoError(t, err)
		dec.Feed(buf[:n])
	}
}

func TestHandshakeSuccess(t *testing.T) {
	fx := newHandshakeFixture(t)
	client, result, errs := runHandshake(fx.authenticator())
	defer client.Close()

	_, err := client.Write(protocol.EncodeFrame(protocol.MarkerAuthRequest, []byte(fx.accessToken)))
	require.NoError(t, err)

	frame := readFrame(t, client)
	require.Equal(t, protocol.MarkerAuthSuccess, frame.Marker)
	require.Equal(t, fx.user.ID, string(frame.Payload))

	select {
	case connCtx := <-result:
		require.Equal(t, fx.user.ID, connCtx.UserID)
		require.Contains(t, connCtx.Roles, authz.RoleUser)
	case err := <-errs:
		t.Fatalf("handshake failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("handshake did not complete")
	}
}

func TestHandshakeRejectsDataBeforeAuth(t *testing.T) {
	fx := newHandshakeFixture(t)
	client, _, errs := runHandshake(fx.authenticator())
	defer client.Close()

	// A text frame instead of the auth request must be rejected, never
	// buffered into post-auth dispatch.
	_, err := client.Write(protocol.EncodeFrame(protocol.MarkerText, []byte("hello")))
	require.NoError(t, err)

	frame := readFrame(t, client)
	require.Equal(t, protocol.MarkerAuthFailure, frame.Marker)
	require.Equal(t, "authentication required", string(frame.Payload))
	require.ErrorIs(t, <-errs, ErrHandshakeFailed)
}

func TestHandshakeRejectsOversizedToken(t *testing.T) {
	fx := newHandshakeFixture(t)
	client, _, errs := runHandshake(fx.authenticator())
	defer client.Close()

	_, err := client.Write(protocol.EncodeFrame(protocol.MarkerAuthRequest, make([]byte, MaxTokenBytes+1)))
	require.NoError(t, err)

	frame := readFrame(t, client)
	require.Equal(t, protocol.MarkerAuthFailure, frame.Marker)
	require.Equal(t, "token too large", string(frame.Payload))
	require.ErrorIs(t, <-errs, ErrHandshakeFailed)
}

func TestHandshakeRejectsInvalidToken(t *testing.T) {
	fx := newHandshakeFixture(t)
	client, _, errs := runHandshake(fx.authenticator())
	defer client.Close()

	_, err := client.Write(protocol.EncodeFrame(protocol.MarkerAuthRequest, []byte("garbage")))
	require.NoError(t, err)

	frame := readFrame(t, client)
	require.Equal(t, protocol.MarkerAuthFailure, frame.Marker)
	require.Equal(t, "invalid or expired token", string(frame.Payload))
	require.ErrorIs(t, <-errs, ErrHandshakeFailed)
}

func TestHandshakeRejectsInactiveUser(t *testing.T) {
	fx := newHandshakeFixture(t)
	require.NoError(t, fx.svc.Deactivate(context.Background(), fx.user.ID))

	client, _, errs := runHandshake(fx.authenticator())
	defer client.Close()

	_, err := client.Write(protocol.EncodeFrame(protocol.MarkerAuthRequest, []byte(fx.accessToken)))
	require.NoError(t, err)

	frame := readFrame(t, client)
	require.Equal(t, protocol.MarkerAuthFailure, frame.Marker)
	require.Equal(t, "user account inactive", string(frame.Payload))
	require.ErrorIs(t, <-errs, ErrHandshakeFailed)
}

func TestHandshakeRejectsRevokedToken(t *testing.T) {
	fx := newHandshakeFixture(t)
	require.NoError(t, fx.svc.Logout(context.Background(), fx.accessToken))

	client, _, errs := runHandshake(fx.authenticator())
	defer client.Close()

	_, err := client.Write(protocol.EncodeFrame(protocol.MarkerAuthRequest, []byte(fx.accessToken)))
	require.NoError(t, err)

	frame := readFrame(t, client)
	require.Equal(t, protocol.MarkerAuthFailure, frame.Marker)
	require.Equal(t, "session revoked", string(frame.Payload))
	require.ErrorIs(t, <-errs, ErrHandshakeFailed)
}

func TestHandshakeTimeout(t *testing.T) {
	fx := newHandshakeFixture(t)
	a := NewAuthenticator(fx.svc, true, 50*time.Millisecond, nil, zerolog.Nop())
	client, _, errs := runHandshake(a)
	defer client.Close()

	frame := readFrame(t, client)
	require.Equal(t, protocol.MarkerAuthFailure, frame.Marker)
	require.Equal(t, "authentication timeout", string(frame.Payload))
	require.ErrorIs(t, <-errs, ErrHandshakeFailed)
}

func TestHandshakeDisabledGrantsSyntheticContext(t *testing.T) {
	fx := newHandshakeFixture(t)
	a := NewAuthenticator(fx.svc, false, time.Second, nil, zerolog.Nop())
	client, result, errs := runHandshake(a)
	defer client.Close()

	select {
	case connCtx := <-result:
		require.True(t, connCtx.IsAdmin)
		require.Contains(t, connCtx.Permissions, authz.WildcardAll)
		require.True(t, authz.ContextHasPermission(connCtx, string(authz.PermManageUsers)))
	case err := <-errs:
		t.Fatalf("handshake failed: %v", err)
	case <-time.After(time.Second):
		t.Fatal("handshake did not complete")
	}
}
