// Package rooms is the request/response client for room creation and
// lookup, a collaborator of the realtime engine rather than part of it.
package rooms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const requestTimeout = 10 * time.Second

// Client talks to the rooms API.
type Client struct {
	logger  zerolog.Logger
	baseURL string
	http    *http.Client
}

// NewClient creates a rooms API client for the given base URL.
func NewClient(baseURL string, logger zerolog.Logger) *Client {
	return &Client{
		logger:  logger.With().Str("component", "rooms").Logger(),
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// Create asks the server for a fresh room and returns its id.
func (c *Client) Create(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/rooms/create", nil)
	if err != nil {
		return "", fmt.Errorf("build create-room request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("create room: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("create room: unexpected status %s", resp.Status)
	}

	var body struct {
		RoomID string `json:"room_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode create-room response: %w", err)
	}
	if body.RoomID == "" {
		return "", fmt.Errorf("create room: empty room id in response")
	}

	c.logger.Debug().Str("room_id", body.RoomID).Msg("room created")
	return body.RoomID, nil
}
