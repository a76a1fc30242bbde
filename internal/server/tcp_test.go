package server

import (
	"context"
	"fmt"
	"net"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aura-assist/gateway/internal/authz"
	"github.com/aura-assist/gateway/internal/protocol"
	"github.com/aura-assist/gateway/types"
)

type echoResponder struct{}

func (echoResponder) Respond(_ context.Context, _ types.ConnectionContext, message string) (string, error) {
	return "echo: " + message, nil
}

type fixedTranscriber struct {
	transcript string
}

func (f fixedTranscriber) Transcribe(context.Context, protocol.AudioMeta, []byte) (string, error) {
	return f.transcript, nil
}

type fixedHistory struct {
	messages []types.HistoryMessage
}

func (f fixedHistory) Messages(_ context.Context, _ string, offset, limit int) ([]types.HistoryMessage, bool, error) {
	if offset >= len(f.messages) {
		return nil, false, nil
	}
	end := offset + limit
	if end > len(f.messages) {
		end = len(f.messages)
	}
	return f.messages[offset:end], end < len(f.messages), nil
}

func userContext() types.ConnectionContext {
	return types.ConnectionContext{
		UserID:      "u-1",
		Username:    "alice",
		Roles:       []string{authz.RoleUser},
		Permissions: authz.RolePermissions(authz.RoleUser),
	}
}

func restrictedContext() types.ConnectionContext {
	return types.ConnectionContext{
		UserID:      "u-2",
		Username:    "intruder",
		Roles:       []string{authz.RoleRestricted},
		Permissions: authz.RolePermissions(authz.RoleRestricted),
	}
}

// dispatchFrame runs one frame through the server's dispatch path over a
// pipe and returns the frames written back.
func dispatchFrame(t *testing.T, s *TCPServer, connCtx types.ConnectionContext, frame protocol.Frame, replies int) []protocol.Frame {
	t.Helper()

	client, srv := net.Pipe()
	defer client.Close()
	defer srv.Close()

	c := &conn{nc: srv}
	errs := make(chan error, 1)
	go func() {
		errs <- s.dispatch(context.Background(), c, connCtx, frame)
	}()

	var frames []protocol.Frame
	for i := 0; i < replies; i++ {
		frames = append(frames, readFrame(t, client))
	}
	require.NoError(t, <-errs)
	return frames
}

func newTestTCPServer(opts ...TCPOption) *TCPServer {
	return NewTCPServer("", nil, echoResponder{}, zerolog.Nop(), opts...)
}

func TestDispatchText(t *testing.T) {
	s := newTestTCPServer()

	frames := dispatchFrame(t, s, userContext(), protocol.Frame{
		Marker:  protocol.MarkerText,
		Payload: []byte("hello"),
	}, 1)

	require.Equal(t, protocol.MarkerAssistantText, frames[0].Marker)
	require.Equal(t, "echo: hello", string(frames[0].Payload))
}

func TestDispatchAudioTranscribesThenResponds(t *testing.T) {
	s := newTestTCPServer(WithTranscriber(fixedTranscriber{transcript: "turn on the lights"}))

	payload, err := protocol.EncodeAudioInPayload(protocol.AudioMeta{SampleRate: 16000}, []byte{1, 2, 3, 4})
	require.NoError(t, err)

	frames := dispatchFrame(t, s, userContext(), protocol.Frame{
		Marker:  protocol.MarkerAudioIn,
		Payload: payload,
	}, 2)

	require.Equal(t, protocol.MarkerTranscription, frames[0].Marker)
	require.Equal(t, "turn on the lights", string(frames[0].Payload))
	require.Equal(t, protocol.MarkerAssistantText, frames[1].Marker)
	require.Equal(t, "echo: turn on the lights", string(frames[1].Payload))
}

func TestDispatchHistory(t *testing.T) {
	history := fixedHistory{messages: []types.HistoryMessage{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi there"},
		{Role: "user", Content: "bye"},
	}}
	s := newTestTCPServer(WithHistoryStore(history))

	reqPayload, err := protocol.EncodeHistoryRequest(protocol.HistoryRequest{Offset: 0, Limit: 2})
	require.NoError(t, err)

	frames := dispatchFrame(t, s, userContext(), protocol.Frame{
		Marker:  protocol.MarkerHistoryRequest,
		Payload: reqPayload,
	}, 1)

	require.Equal(t, protocol.MarkerHistoryResponse, frames[0].Marker)
	resp, err := protocol.DecodeHistoryResponse(frames[0].Payload)
	require.NoError(t, err)
	require.Len(t, resp.Messages, 2)
	require.True(t, resp.HasMore)
	require.Equal(t, "hello", resp.Messages[0].Content)
}

func TestDispatchHistoryDeniedForRestrictedRole(t *testing.T) {
	s := newTestTCPServer(WithHistoryStore(fixedHistory{}))

	reqPayload, err := protocol.EncodeHistoryRequest(protocol.HistoryRequest{Limit: 10})
	require.NoError(t, err)

	frames := dispatchFrame(t, s, restrictedContext(), protocol.Frame{
		Marker:  protocol.MarkerHistoryRequest,
		Payload: reqPayload,
	}, 1)

	// Denial answers with a refusal, not a history response, and the
	// session stays up.
	require.Equal(t, protocol.MarkerAssistantText, frames[0].Marker)
	require.Contains(t, string(frames[0].Payload), "permission")
}

func TestDispatchKeepaliveEcho(t *testing.T) {
	s := newTestTCPServer()

	frames := dispatchFrame(t, s, userContext(), protocol.Frame{
		Marker: protocol.MarkerKeepalive,
	}, 1)

	require.Equal(t, protocol.MarkerKeepalive, frames[0].Marker)
	require.Empty(t, frames[0].Payload)
}

func TestDispatchUnknownSentinelDropsConnection(t *testing.T) {
	s := newTestTCPServer()

	client, srv := net.Pipe()
	defer client.Close()
	defer srv.Close()

	c := &conn{nc: srv}
	err := s.dispatch(context.Background(), c, userContext(), protocol.Frame{Marker: 0xFFFFFFF0})
	require.Error(t, err)
	require.Equal(t, fmt.Sprintf("unknown marker 0x%08X", uint32(0xFFFFFFF0)), err.Error())
}

func TestDispatchStopFrameIgnored(t *testing.T) {
	s := newTestTCPServer()

	client, srv := net.Pipe()
	defer client.Close()
	defer srv.Close()

	c := &conn{nc: srv}
	require.NoError(t, s.dispatch(context.Background(), c, userContext(), protocol.Frame{}))
}
