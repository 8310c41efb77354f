package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// VideoClient talks to the video rendering service: submitting a render job
// over REST as an (image URL, audio URL, quality) triple, polling for
// completion, and dialing its WebSocket for live avatar sessions.
type VideoClient struct {
	baseURL     string
	wsBaseURL   string
	apiKey      string
	httpClient  *http.Client
	dialTimeout time.Duration
}

// NewVideoClient constructs a VideoClient.
func NewVideoClient(baseURL, wsBaseURL, apiKey string, httpClient *http.Client, dialTimeout time.Duration) *VideoClient {
	return &VideoClient{baseURL: baseURL, wsBaseURL: wsBaseURL, apiKey: apiKey, httpClient: httpClient, dialTimeout: dialTimeout}
}

// EnqueueResponse is video-svc's acknowledgement of a submitted render job.
type EnqueueResponse struct {
	TaskID string `json:"task_id"`
}

// Enqueue submits a video render job as (image_url, audio_url, quality) and
// returns the upstream task ID a VideoJobRunner will poll or wait for a
// callback on.
func (c *VideoClient) Enqueue(ctx context.Context, imageURL, audioURL, quality string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"image_url": imageURL,
		"audio_url": audioURL,
		"quality":   quality,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal video enqueue request: %w", err)
	}

	resp, err := doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/render", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("X-API-Key", c.apiKey)
		}
		return c.httpClient.Do(req)
	})
	if err != nil {
		return "", fmt.Errorf("video enqueue request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("video-svc rejected render request with status %d: %s", resp.StatusCode, msg)
	}

	var ack EnqueueResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return "", fmt.Errorf("failed to decode video-svc enqueue response: %w", err)
	}
	return ack.TaskID, nil
}

// PollResult is the outcome of one status poll.
type PollResult struct {
	Done  bool
	Error string
	Video []byte
}

// PollStatus checks video-svc for a task's completion. When the task is
// done, video-svc's response content-type switches from JSON status to the
// raw video/mp4 body, which is how this method tells "still working" from
// "here is the artifact" without a separate download call.
func (c *VideoClient) PollStatus(ctx context.Context, taskID string) (PollResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/render/%s", c.baseURL, taskID), nil)
	if err != nil {
		return PollResult{}, err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return PollResult{}, fmt.Errorf("video status poll failed: %w", err)
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if contentType == "video/mp4" {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return PollResult{}, fmt.Errorf("failed to read video artifact body: %w", err)
		}
		return PollResult{Done: true, Video: data}, nil
	}

	var status struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return PollResult{}, fmt.Errorf("failed to decode video status response: %w", err)
	}
	if status.Status == "failed" {
		return PollResult{Done: true, Error: status.Error}, nil
	}
	return PollResult{Done: false}, nil
}

// VideoConn wraps a live WebSocket connection to video-svc for avatar
// video mode (frames driven in lockstep with voice-svc's audio stream).
type VideoConn struct {
	conn *websocket.Conn
}

// Dial opens a WebSocket connection to video-svc for a live session.
func (c *VideoClient) Dial(ctx context.Context, sessionID string) (*VideoConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.dialTimeout}
	header := http.Header{}
	if c.apiKey != "" {
		header.Set("X-API-Key", c.apiKey)
	}
	conn, _, err := dialer.DialContext(ctx, c.wsBaseURL+"?session_id="+sessionID, header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial video-svc: %w", err)
	}
	return &VideoConn{conn: conn}, nil
}

// SendAudioChunk forwards one binary audio frame to video-svc for lip-sync rendering.
func (vc *VideoConn) SendAudioChunk(chunk []byte) error {
	return vc.conn.WriteMessage(websocket.BinaryMessage, chunk)
}

// ReadFrame blocks for the next rendered video frame from video-svc.
func (vc *VideoConn) ReadFrame() (int, []byte, error) {
	return vc.conn.ReadMessage()
}

// Close closes the underlying connection.
func (vc *VideoConn) Close() error {
	return vc.conn.Close()
}
