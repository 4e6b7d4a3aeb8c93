package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tutorhub/pkg/types"
)

// Client calls the external tutoring-answer service and the voice synthesis
// service over HTTP JSON. Both calls carry a hard timeout: the state machine
// relies on every generation attempt resolving within a bound.
type Client struct {
	generateURL string
	voiceURL    string
	httpClient  *http.Client
}

// NewClient creates a client. timeout bounds each request end to end.
func NewClient(generateURL, voiceURL string, timeout time.Duration) *Client {
	return &Client{
		generateURL: generateURL,
		voiceURL:    voiceURL,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Question string          `json:"question"`
	Context  []types.QAEntry `json:"context,omitempty"`
}

type synthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// Generate asks the answer service for an explanation given the question
// and the bounded recent-exchange context.
func (c *Client) Generate(ctx context.Context, question string, recent []types.QAEntry) (*types.AIAnswer, error) {
	var answer types.AIAnswer
	if err := c.post(ctx, c.generateURL, generateRequest{Question: question, Context: recent}, &answer); err != nil {
		return nil, fmt.Errorf("answer generation failed: %w", err)
	}
	return &answer, nil
}

// Synthesize turns answer text into an audio reference.
func (c *Client) Synthesize(ctx context.Context, text, voice string) (*types.VoiceReply, error) {
	var reply types.VoiceReply
	if err := c.post(ctx, c.voiceURL, synthesizeRequest{Text: text, Voice: voice}, &reply); err != nil {
		return nil, fmt.Errorf("voice synthesis failed: %w", err)
	}
	if reply.Text == "" {
		reply.Text = text
	}
	if reply.Voice == "" {
		reply.Voice = voice
	}
	return &reply, nil
}

func (c *Client) post(ctx context.Context, url string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
