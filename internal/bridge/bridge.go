package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/aura-assist/gateway/internal/protocol"
)

const backendDialTimeout = 5 * time.Second

// Server upgrades WebSocket clients and pairs each with a backend TCP
// connection.
type Server struct {
	backendAddr string
	upgrader    websocket.Upgrader
	log         zerolog.Logger

	mu       sync.Mutex
	sessions map[*Session]struct{}
}

// NewServer constructs a bridge server targeting the native protocol
// endpoint at backendAddr.
func NewServer(backendAddr string, log zerolog.Logger) *Server {
	return &Server{
		backendAddr: backendAddr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 * 1024,
			WriteBufferSize: 32 * 1024,
			// Browser clients connect from arbitrary origins; the
			// backend handshake is the authentication boundary.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log:      log,
		sessions: make(map[*Session]struct{}),
	}
}

// ServeHTTP upgrades the request and runs the session until either side
// disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	backend, err := net.DialTimeout("tcp", s.backendAddr, backendDialTimeout)
	if err != nil {
		s.log.Error().Err(err).Str("backend", s.backendAddr).Msg("backend dial failed")
		_ = ws.WriteMessage(websocket.TextMessage, errorJSON("backend unavailable"))
		_ = ws.Close()
		return
	}

	session := newSession(ws, backend, s.log.With().Str("remote", r.RemoteAddr).Logger())
	s.mu.Lock()
	s.sessions[session] = struct{}{}
	s.mu.Unlock()

	session.run()

	s.mu.Lock()
	delete(s.sessions, session)
	s.mu.Unlock()
}

// Run serves WebSocket upgrades on addr until ctx is canceled, then
// tears down every live session.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{Addr: addr, Handler: s}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)

		s.mu.Lock()
		for session := range s.sessions {
			session.close()
		}
		s.mu.Unlock()
	}()

	s.log.Info().Str("addr", addr).Str("backend", s.backendAddr).Msg("bridge listening")
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Session pairs one WebSocket client with one backend TCP connection and
// runs the two forwarding loops.
type Session struct {
	ws      *websocket.Conn
	backend net.Conn
	log     zerolog.Logger

	wsWriteMu sync.Mutex
	closeOnce sync.Once

	// Latched from auth_response by the outbound loop; read only for
	// logging.
	authenticated bool
	userID        string
}

func newSession(ws *websocket.Conn, backend net.Conn, log zerolog.Logger) *Session {
	return &Session{ws: ws, backend: backend, log: log}
}

// run drives both forwarding loops; it returns when the session is torn
// down. Either loop exiting tears down the other.
func (s *Session) run() {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer s.close()
		s.inboundLoop()
	}()
	go func() {
		defer wg.Done()
		defer s.close()
		s.outboundLoop()
	}()
	wg.Wait()
	s.log.Debug().Str("user_id", s.userID).Msg("bridge session ended")
}

// close tears down both sides. Safe to call from either loop, any number
// of times.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		if s.backend != nil {
			_ = s.backend.Close()
		}
		if s.ws != nil {
			_ = s.ws.Close()
		}
	})
}

// inboundLoop forwards client JSON messages to the backend as frames. A
// single bad message gets a JSON error reply; only transport failures
// end the loop.
func (s *Session) inboundLoop() {
	for {
		kind, data, err := s.ws.ReadMessage()
		if err != nil {
			if !isExpectedClose(err) {
				s.log.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}
		if kind != websocket.TextMessage {
			s.writeClient(errorJSON("expected a text message"))
			continue
		}

		frame, err := ClientToFrame(data)
		if err != nil {
			s.log.Debug().Err(err).Msg("untranslatable client message")
			s.writeClient(errorJSON(clientErrorText(err)))
			continue
		}

		if _, err := s.backend.Write(frame); err != nil {
			s.log.Warn().Err(err).Msg("backend write failed")
			return
		}
	}
}

// outboundLoop forwards complete backend frames to the client as JSON,
// latching identity from auth responses along the way.
func (s *Session) outboundLoop() {
	dec := &protocol.Decoder{}
	buf := make([]byte, 32*1024)
	for {
		for {
			frame, ok, err := dec.Next()
			if err != nil {
				s.log.Warn().Err(err).Msg("backend protocol error")
				return
			}
			if !ok {
				break
			}
			if err := s.forwardFrame(frame); err != nil {
				return
			}
		}

		n, err := s.backend.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.log.Warn().Err(err).Msg("backend read failed")
			}
			return
		}
	}
}

func (s *Session) forwardFrame(frame protocol.Frame) error {
	data, ok, err := FrameToClient(frame)
	if err != nil {
		s.log.Warn().Err(err).Msg("untranslatable backend frame")
		return err
	}
	if !ok {
		return nil
	}

	s.latchAuth(data)

	if err := s.writeClient(data); err != nil {
		s.log.Warn().Err(err).Msg("websocket write failed")
		return err
	}
	return nil
}

// latchAuth records the session identity carried by an auth_response so
// session-end logs can name the user.
func (s *Session) latchAuth(data []byte) {
	var resp authResponse
	if err := json.Unmarshal(data, &resp); err != nil || resp.Type != TypeAuthResponse {
		return
	}
	if resp.Status == "ok" {
		s.authenticated = true
		s.userID = resp.UserID
		s.log.Info().Str("user_id", resp.UserID).Msg("bridge session authenticated")
	}
}

func (s *Session) writeClient(data []byte) error {
	s.wsWriteMu.Lock()
	defer s.wsWriteMu.Unlock()
	return s.ws.WriteMessage(websocket.TextMessage, data)
}

func clientErrorText(err error) string {
	if errors.Is(err, ErrUnknownMessageType) {
		return "unknown message type"
	}
	return fmt.Sprintf("bad message: %v", err)
}

func isExpectedClose(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	return errors.Is(err, net.ErrClosed)
}
