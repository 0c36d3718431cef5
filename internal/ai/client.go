package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultEndpoint = "https://api.perplexity.ai/chat/completions"
	DefaultModel    = "sonar"
	DefaultTimeout  = 30 * time.Second

	maxTokens   = 500
	temperature = 0.7
	retryDelay  = 500 * time.Millisecond
	maxErrBody  = 400
)

// Client sends one user message to an OpenAI-compatible chat completions
// endpoint and returns the generated reply.
type Client struct {
	apiKey     string
	endpoint   string
	model      string
	maxRetries int
	retryDelay time.Duration
	http       *http.Client
}

// NewClient builds a Client. timeout bounds each attempt; maxRetries is the
// number of extra attempts made after a transient failure.
func NewClient(apiKey, endpoint, model string, timeout time.Duration, maxRetries int) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		apiKey:     apiKey,
		endpoint:   endpoint,
		model:      model,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		http:       &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends message as the only user turn, preceded by the fixed
// instruction. Accumulated history is not transmitted.
func (c *Client) Complete(ctx context.Context, message string) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: Instruction},
			{Role: "user", Content: message},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling completion request: %w", err)
	}
	log.Debugf("ai: sending request to %s: %s", c.endpoint, payload)

	for attempt := 0; ; attempt++ {
		reply, err := c.chatCompletion(ctx, payload)
		if err == nil {
			return reply, nil
		}

		ce := ClassifyError(err)
		if !ce.Retryable || attempt >= c.maxRetries || ctx.Err() != nil {
			return "", err
		}
		log.Warnf("ai: attempt %d failed (%s), retrying: %v", attempt+1, ce.Type, err)

		select {
		case <-ctx.Done():
			return "", err
		case <-time.After(c.retryDelay):
		}
	}
}

func (c *Client) chatCompletion(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading completion response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{Code: resp.StatusCode, Body: truncate(string(body), maxErrBody)}
	}
	log.Debugf("ai: received response: %s", body)

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == nil {
		return "", fmt.Errorf("%w: missing choices[0].message.content", ErrMalformedResponse)
	}
	return *parsed.Choices[0].Message.Content, nil
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
