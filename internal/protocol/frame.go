// Package protocol implements the framed binary message format shared by
// every TCP-speaking endpoint. A frame is an 8-byte little-endian header
// followed by a payload: [marker:uint32][length:uint32][payload:length].
//
// The top of the 32-bit marker space (0xFFFFFFF0 and above) is reserved
// for sentinel markers. Any other value in the first header word is an
// audio frame, where the first word is the payload length and the second
// word is the sample rate in Hz. Audio payloads are raw 16-bit
// little-endian PCM. A zero-length audio frame does not mean "empty
// chunk"; it instructs the receiver to clear any pending playback.
package protocol

import (
	"encoding/binary"
	"errors"
)

// Sentinel markers. These can never collide with an audio payload length
// because real audio chunks are far below the reserved band.
const (
	MarkerText            uint32 = 0xFFFFFFFF // text from client
	MarkerAssistantText   uint32 = 0xFFFFFFFE // assistant text to client
	MarkerTranscription   uint32 = 0xFFFFFFFD // user speech transcription to client
	MarkerKeepalive       uint32 = 0xFFFFFFFC
	MarkerAuthRequest     uint32 = 0xFFFFFFFB // payload: UTF-8 bearer token
	MarkerAuthSuccess     uint32 = 0xFFFFFFFA // payload: UTF-8 user id
	MarkerAuthFailure     uint32 = 0xFFFFFFF9 // payload: UTF-8 error message
	MarkerHistoryRequest  uint32 = 0xFFFFFFF8 // payload: JSON {offset, limit}
	MarkerHistoryResponse uint32 = 0xFFFFFFF7 // payload: JSON {messages, has_more}
	MarkerAudioIn         uint32 = 0xFFFFFFF6 // payload: metadata-prefixed PCM, see audio.go

	sentinelBase uint32 = 0xFFFFFFF0
)

// HeaderSize is the fixed size of a frame header on the wire.
const HeaderSize = 8

// MaxPayload bounds the declared payload length of any frame. Anything
// larger is treated as a protocol error rather than an allocation request.
const MaxPayload = 16 << 20

var (
	// ErrFrameTooLarge reports a declared payload length above MaxPayload.
	ErrFrameTooLarge = errors.New("protocol: frame payload exceeds limit")
)

// IsSentinel reports whether v is in the reserved marker band.
func IsSentinel(v uint32) bool {
	return v >= sentinelBase
}

// Frame is one decoded unit of wire transmission.
//
// For sentinel frames Marker holds the sentinel value. For audio frames
// Marker is zero and SampleRate describes the payload. The stop-playback
// control is an audio frame with an empty payload.
type Frame struct {
	Marker     uint32
	SampleRate uint32
	Payload    []byte
}

// IsAudio reports whether the frame carries a PCM chunk.
func (f Frame) IsAudio() bool {
	return f.Marker == 0 && len(f.Payload) > 0
}

// IsStop reports whether the frame is the stop-playback control.
func (f Frame) IsStop() bool {
	return f.Marker == 0 && len(f.Payload) == 0
}

// EncodeFrame encodes a sentinel frame.
func EncodeFrame(marker uint32, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], marker)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf
}

// EncodeAudioFrame encodes a PCM chunk with its sample rate in the
// header's second word.
func EncodeAudioFrame(sampleRate uint32, pcm []byte) []byte {
	buf := make([]byte, HeaderSize+len(pcm))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(pcm)))
	binary.LittleEndian.PutUint32(buf[4:8], sampleRate)
	copy(buf[HeaderSize:], pcm)
	return buf
}

// EncodeStop encodes the stop-playback control frame.
func EncodeStop() []byte {
	return make([]byte, HeaderSize)
}

// Encode serializes the frame using the layout matching its kind.
func (f Frame) Encode() []byte {
	if f.Marker != 0 {
		return EncodeFrame(f.Marker, f.Payload)
	}
	if len(f.Payload) == 0 {
		return EncodeStop()
	}
	return EncodeAudioFrame(f.SampleRate, f.Payload)
}

// DecodeFrame attempts to decode one frame from the front of buf. It
// returns the frame and the number of bytes consumed. When buf does not
// yet hold a complete frame it returns n == 0 with a nil error; the
// caller should read more bytes and retry. No partial payload is ever
// returned.
func DecodeFrame(buf []byte) (Frame, int, error) {
	if len(buf) < HeaderSize {
		return Frame{}, 0, nil
	}

	w1 := binary.LittleEndian.Uint32(buf[0:4])
	w2 := binary.LittleEndian.Uint32(buf[4:8])

	var length uint32
	frame := Frame{}
	if IsSentinel(w1) {
		frame.Marker = w1
		length = w2
	} else {
		// Audio path: first word is the payload length, second the
		// sample rate. Includes the zero-length stop control.
		frame.SampleRate = w2
		length = w1
	}

	if length > MaxPayload {
		return Frame{}, 0, ErrFrameTooLarge
	}
	total := HeaderSize + int(length)
	if len(buf) < total {
		return Frame{}, 0, nil
	}

	if length > 0 {
		frame.Payload = make([]byte, length)
		copy(frame.Payload, buf[HeaderSize:total])
	}
	return frame, total, nil
}

// Decoder accumulates stream bytes and yields complete frames. Callers
// append newly read bytes with Feed and drain frames with Next until it
// reports no frame available.
type Decoder struct {
	buf []byte
}

// Feed appends newly read bytes to the accumulation buffer.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Next decodes the next complete frame, if one is buffered. ok is false
// when more bytes are needed.
func (d *Decoder) Next() (frame Frame, ok bool, err error) {
	frame, n, err := DecodeFrame(d.buf)
	if err != nil {
		return Frame{}, false, err
	}
	if n == 0 {
		return Frame{}, false, nil
	}
	d.buf = d.buf[n:]
	return frame, true, nil
}

// Buffered returns the number of undecoded bytes held by the decoder.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}
