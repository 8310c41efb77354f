package clients

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// LLMClient sends a user turn plus persona/history context to the
// conversational backend and streams back the model's reply text.
type LLMClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewLLMClient constructs an LLMClient.
func NewLLMClient(baseURL string, httpClient *http.Client) *LLMClient {
	return &LLMClient{baseURL: baseURL, httpClient: httpClient}
}

// TurnRequest is the payload for one conversational turn.
type TurnRequest struct {
	PersonaPrompt string   `json:"persona_prompt"`
	History       []string `json:"history"`
	UserText      string   `json:"user_text"`
	Language      string   `json:"language"`
}

// streamChunk is one SSE event emitted by the LLM backend's streaming endpoint.
type streamChunk struct {
	Delta string `json:"delta"`
	Done  bool   `json:"done"`
}

// StreamTurn sends a turn and invokes onDelta for each incremental piece of
// the model's reply as it streams in, returning the full concatenated text
// once the stream ends.
//
// The backend frames each SSE event as "data: <json>\n\n"; splitOnDoubleNewline
// turns that into discrete bufio.Scanner tokens the same way a browser's
// EventSource would.
func (c *LLMClient) StreamTurn(ctx context.Context, req TurnRequest, onDelta func(string)) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal turn request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/turn/stream", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("llm turn request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm backend rejected turn request with status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(splitOnDoubleNewline)

	var full bytes.Buffer
	for scanner.Scan() {
		event := bytes.TrimSpace(scanner.Bytes())
		data := bytes.TrimPrefix(event, []byte("data: "))
		if len(data) == 0 {
			continue
		}

		var chunk streamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			continue
		}
		if chunk.Delta != "" {
			full.WriteString(chunk.Delta)
			onDelta(chunk.Delta)
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return full.String(), fmt.Errorf("error reading llm stream: %w", err)
	}

	return full.String(), nil
}

// splitOnDoubleNewline is a bufio.SplitFunc that breaks a stream into
// tokens on "\n\n", the SSE event boundary.
func splitOnDoubleNewline(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.Index(data, []byte("\n\n")); i >= 0 {
		return i + 2, data[0:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
