package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrUnknownAction is returned for a processing action the service does not
// support.
var ErrUnknownAction = errors.New("unknown processing action")

// Fixed prompt per processing action. The output is read on a small device
// display, so every prompt asks for short, structured text.
var actionPrompts = map[string]string{
	"summary": `Summarize the key points from this transcript in 3-5 bullet points.
Be concise - each point should be one line.
Focus on the most important information.`,

	"minutes": `Convert this transcript into formal meeting minutes with the following sections:
- **Attendees** (if mentioned)
- **Discussion Points**
- **Decisions Made**
- **Action Items**

Be concise and professional. Format for easy reading on a small screen.`,

	"todos": `Extract actionable to-do items from this transcript.
Format as a checklist with [ ] for each item.
Include who is responsible if mentioned.
Only include clear, actionable tasks.`,
}

const systemPrompt = "You are a concise note-taking assistant for a tiny screen device."

// Config holds chat-completion client settings.
type Config struct {
	Endpoint  string        // chat completions URL
	APIKey    string        // bearer token
	Model     string        // model name, default gpt-4o-mini
	MaxTokens int           // completion budget, default 500
	Timeout   time.Duration // per-request timeout
}

// Client turns finished transcripts into summaries, meeting minutes or to-do
// lists via a chat-completions API.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an LLM processing client.
func NewClient(config Config, logger *slog.Logger) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("llm endpoint is required")
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("llm api key is required")
	}
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 500
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
	}, nil
}

// Actions lists the supported processing actions.
func Actions() []string {
	actions := make([]string, 0, len(actionPrompts))
	for action := range actionPrompts {
		actions = append(actions, action)
	}
	return actions
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Process runs one action (summary, minutes or todos) over a transcript and
// returns the model's text.
func (c *Client) Process(ctx context.Context, action, transcript string) (string, error) {
	prompt, ok := actionPrompts[action]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if strings.TrimSpace(transcript) == "" {
		return "", fmt.Errorf("transcript is empty")
	}

	reqBody := chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt + "\n\nTranscript:\n" + transcript},
		},
		MaxTokens: c.config.MaxTokens,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read chat response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse chat response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("chat API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat response contained no choices")
	}

	result := parsed.Choices[0].Message.Content

	c.logger.Info("Transcript processed",
		slog.String("action", action),
		slog.String("model", c.config.Model),
		slog.Int("transcript_chars", len(transcript)),
		slog.Int("result_chars", len(result)),
		slog.Duration("elapsed", time.Since(start)),
	)

	return result, nil
}
