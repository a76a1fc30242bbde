// Package server implements the native TCP endpoint: the framed
// protocol accept loop, the per-connection authentication handshake, and
// post-auth dispatch of text, audio, and control frames into the
// assistant collaborators.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aura-assist/gateway/internal/audit"
	"github.com/aura-assist/gateway/internal/authz"
	"github.com/aura-assist/gateway/internal/protocol"
	"github.com/aura-assist/gateway/types"
)

const (
	// readPollInterval is the steady-state read deadline. A timed-out
	// read means "no data yet"; the loop re-checks shutdown and polls
	// again.
	readPollInterval = 500 * time.Millisecond
	// keepaliveInterval paces server-initiated keepalive frames.
	keepaliveInterval = 30 * time.Second
)

// Responder produces the assistant's reply to a user message. The AI
// pipeline behind it is out of scope here.
type Responder interface {
	Respond(ctx context.Context, connCtx types.ConnectionContext, message string) (string, error)
}

// Transcriber converts client audio into text. Speech recognition is an
// external collaborator.
type Transcriber interface {
	Transcribe(ctx context.Context, meta protocol.AudioMeta, pcm []byte) (string, error)
}

// HistoryStore serves conversational history pages.
type HistoryStore interface {
	Messages(ctx context.Context, userID string, offset, limit int) ([]types.HistoryMessage, bool, error)
}

// TCPServer accepts native framed-protocol connections.
type TCPServer struct {
	addr          string
	authenticator *Authenticator
	responder     Responder
	transcriber   Transcriber
	history       HistoryStore
	audit         audit.Recorder
	log           zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[*conn]struct{}
	wg       sync.WaitGroup
}

// TCPOption customizes a TCPServer.
type TCPOption func(*TCPServer)

// WithTranscriber attaches a speech-to-text collaborator. Without one,
// audio frames are rejected with a protocol-level refusal.
func WithTranscriber(t Transcriber) TCPOption {
	return func(s *TCPServer) { s.transcriber = t }
}

// WithHistoryStore attaches a conversational history collaborator.
func WithHistoryStore(h HistoryStore) TCPOption {
	return func(s *TCPServer) { s.history = h }
}

// WithAuditRecorder attaches an audit event recorder.
func WithAuditRecorder(r audit.Recorder) TCPOption {
	return func(s *TCPServer) { s.audit = r }
}

// NewTCPServer constructs the native protocol server.
func NewTCPServer(addr string, authenticator *Authenticator, responder Responder, log zerolog.Logger, opts ...TCPOption) *TCPServer {
	s := &TCPServer{
		addr:          addr,
		authenticator: authenticator,
		responder:     responder,
		audit:         audit.NopRecorder{},
		log:           log,
		conns:         make(map[*conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run listens and serves until ctx is canceled, then closes the listener
// and every live connection and waits for the handlers to drain.
func (s *TCPServer) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.log.Info().Str("addr", s.addr).Msg("protocol server listening")

	go func() {
		<-ctx.Done()
		_ = listener.Close()
		s.closeAll()
	}()

	for {
		nc, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			s.log.Warn().Err(err).Msg("accept failed")
			continue
		}
		c := s.track(nc)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, c)
		}()
	}

	s.wg.Wait()
	return nil
}

func (s *TCPServer) track(nc net.Conn) *conn {
	c := &conn{nc: nc}
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	return c
}

func (s *TCPServer) untrack(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func (s *TCPServer) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.nc.Close()
	}
}

func (s *TCPServer) handle(ctx context.Context, c *conn) {
	remote := remoteIP(c.nc)
	defer func() {
		_ = c.nc.Close()
		s.untrack(c)
		s.log.Debug().Str("remote", remote).Msg("connection closed")
	}()

	connCtx, err := s.authenticator.Handshake(ctx, c.nc, &c.dec)
	if err != nil {
		if !errors.Is(err, ErrHandshakeFailed) && !isClosedConn(err) {
			s.log.Warn().Err(err).Str("remote", remote).Msg("handshake error")
		}
		return
	}

	keepaliveCtx, stopKeepalive := context.WithCancel(ctx)
	defer stopKeepalive()
	go s.keepaliveLoop(keepaliveCtx, c)

	buf := make([]byte, 32*1024)
	for {
		if ctx.Err() != nil {
			return
		}

		_ = c.nc.SetReadDeadline(time.Now().Add(readPollInterval))
		n, err := c.nc.Read(buf)
		if n > 0 {
			c.dec.Feed(buf[:n])
		}
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if !errors.Is(err, io.EOF) && !isClosedConn(err) {
				s.log.Warn().Err(err).Str("remote", remote).Msg("read failed")
			}
			return
		}

		for {
			frame, ok, err := c.dec.Next()
			if err != nil {
				s.log.Warn().Err(err).Str("remote", remote).Msg("protocol error, dropping connection")
				return
			}
			if !ok {
				break
			}
			if err := s.dispatch(ctx, c, connCtx, frame); err != nil {
				s.log.Warn().Err(err).Str("remote", remote).Str("user_id", connCtx.UserID).Msg("dispatch failed")
				return
			}
		}
	}
}

func (s *TCPServer) keepaliveLoop(ctx context.Context, c *conn) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.writeFrame(protocol.EncodeFrame(protocol.MarkerKeepalive, nil)); err != nil {
				return
			}
		}
	}
}

// dispatch routes one authenticated frame. A returned error drops the
// connection; permission denials and collaborator failures answer the
// client and keep the session alive.
func (s *TCPServer) dispatch(ctx context.Context, c *conn, connCtx types.ConnectionContext, frame protocol.Frame) error {
	switch frame.Marker {
	case protocol.MarkerText:
		return s.handleText(ctx, c, connCtx, string(frame.Payload))

	case protocol.MarkerAudioIn:
		return s.handleAudio(ctx, c, connCtx, frame.Payload)

	case protocol.MarkerHistoryRequest:
		return s.handleHistory(ctx, c, connCtx, frame.Payload)

	case protocol.MarkerKeepalive:
		return c.writeFrame(protocol.EncodeFrame(protocol.MarkerKeepalive, nil))

	case protocol.MarkerAuthRequest:
		// Already authenticated; re-auth on a live connection is not
		// supported.
		return c.writeFrame(protocol.EncodeFrame(protocol.MarkerAuthFailure, []byte("already authenticated")))

	default:
		if frame.Marker == 0 {
			// Client-originated stop/bare-audio frames carry no meaning
			// here; native clients send audio as MarkerAudioIn.
			return nil
		}
		return fmt.Errorf("unknown marker 0x%08X", frame.Marker)
	}
}

func (s *TCPServer) handleText(ctx context.Context, c *conn, connCtx types.ConnectionContext, message string) error {
	if !s.permit(ctx, c, connCtx, string(authz.PermChat), "chat message") {
		return nil
	}

	reply, err := s.responder.Respond(ctx, connCtx, message)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", connCtx.UserID).Msg("responder failed")
		return c.writeFrame(protocol.EncodeFrame(protocol.MarkerAssistantText, []byte("Sorry, I could not process that.")))
	}
	return c.writeFrame(protocol.EncodeFrame(protocol.MarkerAssistantText, []byte(reply)))
}

func (s *TCPServer) handleAudio(ctx context.Context, c *conn, connCtx types.ConnectionContext, payload []byte) error {
	if !s.permit(ctx, c, connCtx, string(authz.PermChat), "audio message") {
		return nil
	}
	if s.transcriber == nil {
		return c.writeFrame(protocol.EncodeFrame(protocol.MarkerAssistantText, []byte("Audio input is not available.")))
	}

	meta, pcm, err := protocol.DecodeAudioInPayload(payload)
	if err != nil {
		return fmt.Errorf("audio payload: %w", err)
	}

	transcript, err := s.transcriber.Transcribe(ctx, meta, pcm)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", connCtx.UserID).Msg("transcription failed")
		return c.writeFrame(protocol.EncodeFrame(protocol.MarkerAssistantText, []byte("Sorry, I could not understand that.")))
	}

	// Echo the transcription, then answer it like typed text.
	if err := c.writeFrame(protocol.EncodeFrame(protocol.MarkerTranscription, []byte(transcript))); err != nil {
		return err
	}
	return s.handleText(ctx, c, connCtx, transcript)
}

func (s *TCPServer) handleHistory(ctx context.Context, c *conn, connCtx types.ConnectionContext, payload []byte) error {
	if !s.permit(ctx, c, connCtx, string(authz.PermViewMemory), "history request") {
		return nil
	}

	req, err := protocol.DecodeHistoryRequest(payload)
	if err != nil {
		return fmt.Errorf("history request payload: %w", err)
	}
	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 50
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	resp := protocol.HistoryResponse{}
	if s.history != nil {
		messages, hasMore, err := s.history.Messages(ctx, connCtx.UserID, req.Offset, req.Limit)
		if err != nil {
			s.log.Error().Err(err).Str("user_id", connCtx.UserID).Msg("history lookup failed")
		} else {
			resp.Messages = messages
			resp.HasMore = hasMore
		}
	}

	data, err := protocol.EncodeHistoryResponse(resp)
	if err != nil {
		return err
	}
	return c.writeFrame(protocol.EncodeFrame(protocol.MarkerHistoryResponse, data))
}

// permit checks the connection context for a permission. On denial it
// answers with a refusal, records an audit event, and reports false; the
// connection stays up.
func (s *TCPServer) permit(ctx context.Context, c *conn, connCtx types.ConnectionContext, permission, action string) bool {
	if authz.ContextHasPermission(connCtx, permission) {
		return true
	}

	s.log.Info().
		Str("user_id", connCtx.UserID).
		Str("action", action).
		Str("permission", permission).
		Msg("permission denied")
	s.audit.Record(ctx, audit.Event{
		Kind:   audit.EventPermissionDenied,
		UserID: connCtx.UserID,
		Detail: fmt.Sprintf("%s requires %s", action, permission),
	})
	_ = c.writeFrame(protocol.EncodeFrame(protocol.MarkerAssistantText, []byte("You do not have permission to do that.")))
	return false
}

// conn pairs a net.Conn with a frame decoder and a write lock. Frames
// are produced by the dispatch path and the keepalive loop concurrently;
// every write goes through the lock.
type conn struct {
	nc      net.Conn
	dec     protocol.Decoder
	writeMu sync.Mutex
}

func (c *conn) writeFrame(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.nc.Write(data)
	return err
}

func isClosedConn(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
