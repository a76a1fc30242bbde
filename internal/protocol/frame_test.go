package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

var sentinels = []uint32{
	MarkerText,
	MarkerAssistantText,
	MarkerTranscription,
	MarkerKeepalive,
	MarkerAuthRequest,
	MarkerAuthSuccess,
	MarkerAuthFailure,
	MarkerHistoryRequest,
	MarkerHistoryResponse,
	MarkerAudioIn,
}

func TestSentinelRoundTrip(t *testing.T) {
	for _, marker := range sentinels {
		for n := 0; n <= 64; n++ {
			payload := bytes.Repeat([]byte{0xA5}, n)
			encoded := EncodeFrame(marker, payload)

			frame, consumed, err := DecodeFrame(encoded)
			require.NoError(t, err)
			require.Equal(t, len(encoded), consumed)
			require.Equal(t, marker, frame.Marker)
			require.Equal(t, n, len(frame.Payload))
			if n > 0 {
				require.Equal(t, payload, frame.Payload)
			}
			require.False(t, frame.IsAudio())
			require.False(t, frame.IsStop())
		}
	}
}

func TestAudioRoundTrip(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6}
	encoded := EncodeAudioFrame(16000, pcm)

	frame, consumed, err := DecodeFrame(encoded)
	require.NoError(t, err)
	require.Equal(t, len(encoded), consumed)
	require.True(t, frame.IsAudio())
	require.Equal(t, uint32(16000), frame.SampleRate)
	require.Equal(t, pcm, frame.Payload)
}

func TestStopPlayback(t *testing.T) {
	frame, consumed, err := DecodeFrame(EncodeStop())
	require.NoError(t, err)
	require.Equal(t, HeaderSize, consumed)
	require.True(t, frame.IsStop())
	require.False(t, frame.IsAudio())
}

func TestZeroLengthAudioIsStop(t *testing.T) {
	// Zero-length payload with a sample rate still means "clear pending
	// playback", not "empty audio chunk".
	frame, consumed, err := DecodeFrame(EncodeAudioFrame(22050, nil))
	require.NoError(t, err)
	require.Equal(t, HeaderSize, consumed)
	require.True(t, frame.IsStop())
}

func TestPartialFrameNeverDecodes(t *testing.T) {
	payload := []byte("some payload bytes worth framing")
	encoded := EncodeFrame(MarkerText, payload)

	// Feeding any byte-wise split must not yield a frame until the final
	// byte arrives.
	for cut := 0; cut < len(encoded); cut++ {
		var d Decoder
		d.Feed(encoded[:cut])
		_, ok, err := d.Next()
		require.NoError(t, err)
		require.False(t, ok, "decoded a frame from %d of %d bytes", cut, len(encoded))

		d.Feed(encoded[cut:])
		frame, ok, err := d.Next()
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, MarkerText, frame.Marker)
		require.Equal(t, payload, frame.Payload)
	}
}

func TestDecoderDrainsBackToBackFrames(t *testing.T) {
	var stream []byte
	stream = append(stream, EncodeFrame(MarkerText, []byte("one"))...)
	stream = append(stream, EncodeAudioFrame(48000, []byte{9, 9})...)
	stream = append(stream, EncodeFrame(MarkerKeepalive, nil)...)

	var d Decoder
	d.Feed(stream)

	frame, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, MarkerText, frame.Marker)

	frame, ok, err = d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, frame.IsAudio())
	require.Equal(t, uint32(48000), frame.SampleRate)

	frame, ok, err = d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, MarkerKeepalive, frame.Marker)

	_, ok, err = d.Next()
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, d.Buffered())
}

func TestSentinelBandExcludesAudioLengths(t *testing.T) {
	for _, marker := range sentinels {
		require.True(t, IsSentinel(marker))
	}
	require.False(t, IsSentinel(0))
	require.False(t, IsSentinel(MaxPayload))
}

func TestOversizedFrameRejected(t *testing.T) {
	encoded := EncodeFrame(MarkerText, nil)
	// Corrupt the length word to an absurd value.
	encoded[4] = 0xFF
	encoded[5] = 0xFF
	encoded[6] = 0xFF
	encoded[7] = 0x7F

	_, _, err := DecodeFrame(encoded)
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestAudioInPayloadRoundTrip(t *testing.T) {
	pcm := []byte{0, 1, 0, 2, 0, 3}
	payload, err := EncodeAudioInPayload(AudioMeta{Format: "pcm_s16le", SampleRate: 16000}, pcm)
	require.NoError(t, err)

	meta, got, err := DecodeAudioInPayload(payload)
	require.NoError(t, err)
	require.Equal(t, "pcm_s16le", meta.Format)
	require.Equal(t, 16000, meta.SampleRate)
	require.Equal(t, pcm, got)
}

func TestAudioInPayloadDefaultsFormat(t *testing.T) {
	payload, err := EncodeAudioInPayload(AudioMeta{SampleRate: 24000}, []byte{1})
	require.NoError(t, err)

	meta, _, err := DecodeAudioInPayload(payload)
	require.NoError(t, err)
	require.Equal(t, DefaultAudioFormat, meta.Format)
}

func TestAudioInPayloadTruncatedMetadata(t *testing.T) {
	payload, err := EncodeAudioInPayload(AudioMeta{SampleRate: 16000}, []byte{1, 2})
	require.NoError(t, err)

	_, _, err = DecodeAudioInPayload(payload[:3])
	require.Error(t, err)

	// Metadata length pointing past the end of the payload.
	payload[0], payload[1], payload[2], payload[3] = 0xFF, 0xFF, 0xFF, 0xFF
	_, _, err = DecodeAudioInPayload(payload)
	require.Error(t, err)
}
