package meeting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"liveclass/internal/classes"
)

// Client calls an external meeting service that owns the rooms.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

var _ classes.RoomProvider = (*Client)(nil)

// New creates a client. With skip set no request is made and mock rooms are returned.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type createRoomRequest struct {
	ClassID   string    `json:"class_id"`
	Title     string    `json:"title"`
	Program   string    `json:"program"`
	StartTime time.Time `json:"start_time"`
	Duration  int       `json:"duration"`
}

// CreateRoom asks the meeting service for a new room.
func (c *Client) CreateRoom(ctx context.Context, s classes.Session) (classes.Room, error) {
	if c.Skip {
		id := "mock-" + uuid.NewString()
		return classes.Room{ID: id, Link: "https://meet.example.invalid/" + id}, nil
	}

	body, _ := json.Marshal(createRoomRequest{
		ClassID:   s.ID,
		Title:     s.Title,
		Program:   s.Program,
		StartTime: s.StartTime,
		Duration:  s.Duration,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/rooms", bytes.NewReader(body))
	if err != nil {
		return classes.Room{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return classes.Room{}, fmt.Errorf("meeting service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return classes.Room{}, fmt.Errorf("meeting service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out struct {
		MeetingID string `json:"meeting_id"`
		JoinURL   string `json:"join_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return classes.Room{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.MeetingID == "" || out.JoinURL == "" {
		return classes.Room{}, fmt.Errorf("meeting service returned an incomplete room")
	}
	return classes.Room{ID: out.MeetingID, Link: out.JoinURL}, nil
}

// Health checks if the meeting service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("meeting service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("meeting service unhealthy: %s", resp.Status)
	}
	return nil
}
