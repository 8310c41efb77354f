package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"avatarbackend/internal/models"

	"github.com/gorilla/websocket"
)

// VoiceClient talks to the voice synthesis service both over a one-shot
// REST call (AudioJobRunner) and over a long-lived WebSocket connection
// for live conversation mode (SessionMediator).
type VoiceClient struct {
	xttsBaseURL string
	wsBaseURL   string
	httpClient  *http.Client
	dialTimeout time.Duration
}

// NewVoiceClient constructs a VoiceClient.
func NewVoiceClient(xttsBaseURL, wsBaseURL string, httpClient *http.Client, dialTimeout time.Duration) *VoiceClient {
	return &VoiceClient{xttsBaseURL: xttsBaseURL, wsBaseURL: wsBaseURL, httpClient: httpClient, dialTimeout: dialTimeout}
}

// SynthesizeRequest is the REST payload for a one-shot synthesis call.
type SynthesizeRequest struct {
	Text          string `json:"text"`
	VoiceCloneURL string `json:"voice_clone_url"`
	Language      string `json:"language"`
}

// Synthesize sends text to XTTS and returns the generated audio bytes.
// Retries on 502/503/504/429 with exponential backoff.
func (c *VoiceClient) Synthesize(ctx context.Context, req SynthesizeRequest) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal synthesize request: %w", err)
	}

	resp, err := doWithRetry(ctx, func() (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.xttsBaseURL+"/tts", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		return c.httpClient.Do(httpReq)
	})
	if err != nil {
		return nil, fmt.Errorf("voice synthesis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("voice synthesis rejected with status %d: %s", resp.StatusCode, msg)
	}
	return io.ReadAll(resp.Body)
}

// VoiceConn wraps a live WebSocket connection to voice-svc for the duration
// of a conversation Session.
type VoiceConn struct {
	conn *websocket.Conn
}

// Dial opens a WebSocket connection to voice-svc and sends the initial
// handshake frame authenticated with an HMAC token minted by auth.AuthService.
func (c *VoiceClient) Dial(ctx context.Context, authToken string, init models.VoiceInitMessage) (*VoiceConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.dialTimeout}
	header := http.Header{}
	header.Set("Authorization", authToken)

	conn, _, err := dialer.DialContext(ctx, c.wsBaseURL, header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial voice-svc: %w", err)
	}

	if err := conn.WriteJSON(init); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send voice-svc handshake: %w", err)
	}

	return &VoiceConn{conn: conn}, nil
}

// SendText asks voice-svc to speak the given text.
func (vc *VoiceConn) SendText(text string) error {
	return vc.conn.WriteJSON(models.VoiceControlMessage{Type: "text_to_speak", Text: text})
}

// SendStop interrupts voice-svc's current utterance, used when the user
// starts talking over the avatar (barge-in).
func (vc *VoiceConn) SendStop() error {
	return vc.conn.WriteJSON(models.VoiceControlMessage{Type: "stop_speaking"})
}

// ReadMessage blocks for the next frame from voice-svc, returning the
// message type (websocket.TextMessage or websocket.BinaryMessage) and payload.
func (vc *VoiceConn) ReadMessage() (int, []byte, error) {
	return vc.conn.ReadMessage()
}

// Close closes the underlying connection.
func (vc *VoiceConn) Close() error {
	return vc.conn.Close()
}
