package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

// AudioMeta describes a client-submitted audio chunk. It rides inside
// MarkerAudioIn payloads so that format information travels with the
// bytes; server-to-client audio instead carries the sample rate in the
// frame header.
type AudioMeta struct {
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`
}

// DefaultAudioFormat is assumed when a client omits the format field.
const DefaultAudioFormat = "pcm_s16le"

var errAudioPayloadShort = errors.New("protocol: audio payload too short")

// EncodeAudioInPayload packs metadata and raw PCM into one MarkerAudioIn
// payload: [metaLen:uint32 big-endian][metadata JSON][pcm]. The length
// prefix is big-endian for compatibility with the bridge's sub-protocol.
func EncodeAudioInPayload(meta AudioMeta, pcm []byte) ([]byte, error) {
	if meta.Format == "" {
		meta.Format = DefaultAudioFormat
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal audio metadata: %w", err)
	}
	buf := make([]byte, 4+len(metaJSON)+len(pcm))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(metaJSON)))
	copy(buf[4:], metaJSON)
	copy(buf[4+len(metaJSON):], pcm)
	return buf, nil
}

// DecodeAudioInPayload splits a MarkerAudioIn payload into its metadata
// and PCM bytes.
func DecodeAudioInPayload(payload []byte) (AudioMeta, []byte, error) {
	if len(payload) < 4 {
		return AudioMeta{}, nil, errAudioPayloadShort
	}
	metaLen := binary.BigEndian.Uint32(payload[0:4])
	if int(metaLen) > len(payload)-4 {
		return AudioMeta{}, nil, errAudioPayloadShort
	}
	var meta AudioMeta
	if err := json.Unmarshal(payload[4:4+metaLen], &meta); err != nil {
		return AudioMeta{}, nil, fmt.Errorf("protocol: unmarshal audio metadata: %w", err)
	}
	if meta.Format == "" {
		meta.Format = DefaultAudioFormat
	}
	return meta, payload[4+metaLen:], nil
}
