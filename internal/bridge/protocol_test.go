package bridge

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aura-assist/gateway/internal/protocol"
)

func decodeSingleFrame(t *testing.T, data []byte) protocol.Frame {
	t.Helper()
	frame, n, err := protocol.DecodeFrame(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	return frame
}

func TestClientTextToFrame(t *testing.T) {
	data, err := ClientToFrame([]byte(`{"type":"text","message":"hello"}`))
	require.NoError(t, err)

	frame := decodeSingleFrame(t, data)
	require.Equal(t, protocol.MarkerText, frame.Marker)
	require.Equal(t, "hello", string(frame.Payload))
}

func TestClientAuthToFrame(t *testing.T) {
	data, err := ClientToFrame([]byte(`{"type":"auth","token":"jwt-goes-here"}`))
	require.NoError(t, err)

	frame := decodeSingleFrame(t, data)
	require.Equal(t, protocol.MarkerAuthRequest, frame.Marker)
	require.Equal(t, "jwt-goes-here", string(frame.Payload))
}

func TestClientAudioToFrame(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	msg := map[string]any{
		"type":       "audio",
		"data":       base64.StdEncoding.EncodeToString(pcm),
		"format":     "pcm_s16le",
		"sampleRate": 16000,
	}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	data, err := ClientToFrame(raw)
	require.NoError(t, err)

	frame := decodeSingleFrame(t, data)
	require.Equal(t, protocol.MarkerAudioIn, frame.Marker)

	meta, gotPCM, err := protocol.DecodeAudioInPayload(frame.Payload)
	require.NoError(t, err)
	require.Equal(t, "pcm_s16le", meta.Format)
	require.Equal(t, 16000, meta.SampleRate)
	require.Equal(t, pcm, gotPCM)
}

func TestClientHistoryRequestToFrame(t *testing.T) {
	data, err := ClientToFrame([]byte(`{"type":"history_request","offset":10,"limit":20}`))
	require.NoError(t, err)

	frame := decodeSingleFrame(t, data)
	require.Equal(t, protocol.MarkerHistoryRequest, frame.Marker)

	req, err := protocol.DecodeHistoryRequest(frame.Payload)
	require.NoError(t, err)
	require.Equal(t, 10, req.Offset)
	require.Equal(t, 20, req.Limit)
}

func TestClientUnknownTypeProducesNoFrame(t *testing.T) {
	data, err := ClientToFrame([]byte(`{"type":"bogus"}`))
	require.ErrorIs(t, err, ErrUnknownMessageType)
	require.Nil(t, data)
}

func TestClientMalformedJSON(t *testing.T) {
	data, err := ClientToFrame([]byte(`{not json`))
	require.Error(t, err)
	require.Nil(t, data)
}

func TestClientInvalidBase64Audio(t *testing.T) {
	data, err := ClientToFrame([]byte(`{"type":"audio","data":"!!not base64!!"}`))
	require.Error(t, err)
	require.Nil(t, data)
}

func TestAssistantTextFrameToClient(t *testing.T) {
	data, ok, err := FrameToClient(protocol.Frame{
		Marker:  protocol.MarkerAssistantText,
		Payload: []byte("hi there"),
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"type":"text","message":"hi there"}`, string(data))
}

func TestTranscriptionFrameToClient(t *testing.T) {
	data, ok, err := FrameToClient(protocol.Frame{
		Marker:  protocol.MarkerTranscription,
		Payload: []byte("turn on the lights"),
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"type":"transcription","text":"turn on the lights"}`, string(data))
}

func TestAuthFramesToClient(t *testing.T) {
	data, ok, err := FrameToClient(protocol.Frame{
		Marker:  protocol.MarkerAuthSuccess,
		Payload: []byte("u-1"),
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"type":"auth_response","status":"ok","user_id":"u-1"}`, string(data))

	data, ok, err = FrameToClient(protocol.Frame{
		Marker:  protocol.MarkerAuthFailure,
		Payload: []byte("invalid or expired token"),
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"type":"auth_response","status":"error","error":"invalid or expired token"}`, string(data))
}

func TestAudioFrameToClient(t *testing.T) {
	pcm := []byte{0xAA, 0xBB, 0xCC}
	data, ok, err := FrameToClient(protocol.Frame{SampleRate: 22050, Payload: pcm})
	require.NoError(t, err)
	require.True(t, ok)

	var msg audioMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	require.Equal(t, TypeAudio, msg.Type)
	require.Equal(t, protocol.DefaultAudioFormat, msg.Format)
	require.EqualValues(t, 22050, msg.SampleRate)

	decoded, err := base64.StdEncoding.DecodeString(msg.Data)
	require.NoError(t, err)
	require.Equal(t, pcm, decoded)
}

func TestStopFrameToClient(t *testing.T) {
	data, ok, err := FrameToClient(protocol.Frame{})
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"type":"stop_playback"}`, string(data))
}

func TestKeepaliveFrameSwallowed(t *testing.T) {
	data, ok, err := FrameToClient(protocol.Frame{Marker: protocol.MarkerKeepalive})
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, data)
}

func TestUnknownSentinelFrameToClient(t *testing.T) {
	_, ok, err := FrameToClient(protocol.Frame{Marker: 0xFFFFFFF0})
	require.Error(t, err)
	require.False(t, ok)
}

func TestHistoryResponseFrameToClient(t *testing.T) {
	payload, err := protocol.EncodeHistoryResponse(protocol.HistoryResponse{HasMore: true})
	require.NoError(t, err)

	data, ok, err := FrameToClient(protocol.Frame{
		Marker:  protocol.MarkerHistoryResponse,
		Payload: payload,
	})
	require.NoError(t, err)
	require.True(t, ok)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, TypeHistoryResponse, decoded["type"])
	require.Equal(t, true, decoded["has_more"])
}
