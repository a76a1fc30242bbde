// Package assist is the client-side boundary to the assistant response
// pipeline, which runs as a separate service. The gateway forwards user
// messages and returns replies; nothing about response generation lives
// here.
package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aura-assist/gateway/types"
)

const defaultTimeout = 30 * time.Second

// Client forwards user messages to the assistant pipeline over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs a Client for the pipeline at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

type respondRequest struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

type respondResponse struct {
	Reply string `json:"reply"`
}

// Respond submits the message on the user's behalf and returns the
// assistant's reply.
func (c *Client) Respond(ctx context.Context, connCtx types.ConnectionContext, message string) (string, error) {
	body, err := json.Marshal(respondRequest{
		UserID:   connCtx.UserID,
		Username: connCtx.Username,
		Message:  message,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/respond", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("assist: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("assist: pipeline returned %d: %s", resp.StatusCode, body)
	}

	var decoded respondResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("assist: decode reply: %w", err)
	}
	return decoded.Reply, nil
}

// Unavailable is a Responder used when no pipeline is configured. It
// answers every message with a fixed notice.
type Unavailable struct{}

func (Unavailable) Respond(context.Context, types.ConnectionContext, string) (string, error) {
	return "The assistant is not available right now.", nil
}
