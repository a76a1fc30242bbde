package protocol

import (
	"encoding/json"

	"github.com/aura-assist/gateway/types"
)

// HistoryRequest is the JSON payload of a MarkerHistoryRequest frame.
type HistoryRequest struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// HistoryResponse is the JSON payload of a MarkerHistoryResponse frame.
type HistoryResponse struct {
	Messages []types.HistoryMessage `json:"messages"`
	HasMore  bool                   `json:"has_more"`
}

// EncodeHistoryRequest serializes a history request payload.
func EncodeHistoryRequest(req HistoryRequest) ([]byte, error) {
	return json.Marshal(req)
}

// DecodeHistoryRequest parses a MarkerHistoryRequest payload.
func DecodeHistoryRequest(payload []byte) (HistoryRequest, error) {
	var req HistoryRequest
	err := json.Unmarshal(payload, &req)
	return req, err
}

// EncodeHistoryResponse serializes a history response payload. A nil
// message slice encodes as an empty array, not null.
func EncodeHistoryResponse(resp HistoryResponse) ([]byte, error) {
	if resp.Messages == nil {
		resp.Messages = []types.HistoryMessage{}
	}
	return json.Marshal(resp)
}

// DecodeHistoryResponse parses a MarkerHistoryResponse payload.
func DecodeHistoryResponse(payload []byte) (HistoryResponse, error) {
	var resp HistoryResponse
	err := json.Unmarshal(payload, &resp)
	return resp, err
}
