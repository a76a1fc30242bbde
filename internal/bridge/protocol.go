// Package bridge exposes the native framed protocol to browser clients
// as JSON over WebSocket. Each client connection is paired with one
// backend TCP connection; the bridge translates in both directions and
// makes no authorization decisions of its own.
package bridge

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aura-assist/gateway/internal/protocol"
)

// Client message types accepted over the WebSocket.
const (
	TypeAuth           = "auth"
	TypeText           = "text"
	TypeAudio          = "audio"
	TypeHistoryRequest = "history_request"
)

// Server message types sent over the WebSocket.
const (
	TypeAuthResponse    = "auth_response"
	TypeTranscription   = "transcription"
	TypeHistoryResponse = "history_response"
	TypeStopPlayback    = "stop_playback"
	TypeError           = "error"
)

// ErrUnknownMessageType reports a client message whose type tag is not
// one of the known kinds.
var ErrUnknownMessageType = errors.New("bridge: unknown message type")

// clientMessage is the closed set of inbound message shapes. The type
// tag selects which fields are meaningful.
type clientMessage struct {
	Type       string `json:"type"`
	Token      string `json:"token,omitempty"`
	Message    string `json:"message,omitempty"`
	Data       string `json:"data,omitempty"`
	Format     string `json:"format,omitempty"`
	SampleRate int    `json:"sampleRate,omitempty"`
	Offset     int    `json:"offset,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// authResponse is the outbound auth_response shape, also inspected by
// the session to latch identity for logging.
type authResponse struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	UserID string `json:"user_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

type textMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type transcriptionMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type audioMessage struct {
	Type       string `json:"type"`
	Format     string `json:"format"`
	SampleRate uint32 `json:"sampleRate"`
	Data       string `json:"data"`
}

type historyResponseMessage struct {
	Type string `json:"type"`
	protocol.HistoryResponse
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ClientToFrame translates one inbound JSON message into the native
// frame bytes to forward. Malformed JSON and unknown type tags return an
// error and no frame.
func ClientToFrame(data []byte) ([]byte, error) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("bridge: malformed message: %w", err)
	}

	switch msg.Type {
	case TypeAuth:
		return protocol.EncodeFrame(protocol.MarkerAuthRequest, []byte(msg.Token)), nil

	case TypeText:
		return protocol.EncodeFrame(protocol.MarkerText, []byte(msg.Message)), nil

	case TypeAudio:
		pcm, err := base64.StdEncoding.DecodeString(msg.Data)
		if err != nil {
			return nil, fmt.Errorf("bridge: invalid audio data: %w", err)
		}
		payload, err := protocol.EncodeAudioInPayload(protocol.AudioMeta{
			Format:     msg.Format,
			SampleRate: msg.SampleRate,
		}, pcm)
		if err != nil {
			return nil, err
		}
		return protocol.EncodeFrame(protocol.MarkerAudioIn, payload), nil

	case TypeHistoryRequest:
		payload, err := protocol.EncodeHistoryRequest(protocol.HistoryRequest{
			Offset: msg.Offset,
			Limit:  msg.Limit,
		})
		if err != nil {
			return nil, err
		}
		return protocol.EncodeFrame(protocol.MarkerHistoryRequest, payload), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, msg.Type)
	}
}

// FrameToClient translates one backend frame into the JSON message to
// forward. ok is false for frames the bridge consumes itself
// (keepalive). Unknown sentinel markers are an error.
func FrameToClient(frame protocol.Frame) (data []byte, ok bool, err error) {
	switch {
	case frame.Marker == protocol.MarkerAssistantText:
		data, err = json.Marshal(textMessage{Type: TypeText, Message: string(frame.Payload)})

	case frame.Marker == protocol.MarkerTranscription:
		data, err = json.Marshal(transcriptionMessage{Type: TypeTranscription, Text: string(frame.Payload)})

	case frame.Marker == protocol.MarkerAuthSuccess:
		data, err = json.Marshal(authResponse{Type: TypeAuthResponse, Status: "ok", UserID: string(frame.Payload)})

	case frame.Marker == protocol.MarkerAuthFailure:
		data, err = json.Marshal(authResponse{Type: TypeAuthResponse, Status: "error", Error: string(frame.Payload)})

	case frame.Marker == protocol.MarkerHistoryResponse:
		resp, derr := protocol.DecodeHistoryResponse(frame.Payload)
		if derr != nil {
			return nil, false, derr
		}
		data, err = json.Marshal(historyResponseMessage{Type: TypeHistoryResponse, HistoryResponse: resp})

	case frame.Marker == protocol.MarkerKeepalive:
		return nil, false, nil

	case frame.IsStop():
		data, err = json.Marshal(map[string]string{"type": TypeStopPlayback})

	case frame.IsAudio():
		data, err = json.Marshal(audioMessage{
			Type:       TypeAudio,
			Format:     protocol.DefaultAudioFormat,
			SampleRate: frame.SampleRate,
			Data:       base64.StdEncoding.EncodeToString(frame.Payload),
		})

	default:
		return nil, false, fmt.Errorf("bridge: unknown backend marker 0x%08X", frame.Marker)
	}

	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// errorJSON builds the JSON error reply sent for a single bad client
// message.
func errorJSON(message string) []byte {
	data, err := json.Marshal(errorMessage{Type: TypeError, Message: message})
	if err != nil {
		return []byte(`{"type":"error","message":"internal error"}`)
	}
	return data
}
