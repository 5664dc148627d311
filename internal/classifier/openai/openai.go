package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/SilentInt/HamsterWallet/internal/classifier"
	"github.com/SilentInt/HamsterWallet/internal/taxonomy"

	"resty.dev/v3"
)

// Client calls an OpenAI-compatible chat completions endpoint to classify
// item batches against the current taxonomy.
type Client struct {
	http        *resty.Client
	model       string
	temperature float64
}

// Config holds the classifier endpoint settings.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

func NewClient(cfg Config) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Authorization", "Bearer "+cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:        httpClient,
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}
}

func (c *Client) Close() error {
	return c.http.Close()
}

// Wire types for the chat completions API.
type (
	chatMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	chatRequest struct {
		Model       string        `json:"model"`
		Messages    []chatMessage `json:"messages"`
		Temperature float64       `json:"temperature"`
	}

	chatResponse struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	// batchReply is the structured payload the model is asked to emit.
	batchReply struct {
		Success bool                  `json:"success"`
		Results []classifier.Proposal `json:"results"`
		Error   string                `json:"error,omitempty"`
	}
)

// ClassifyBatch sends one batch of items plus the flattened taxonomy and
// decodes the per-item proposals. Any malformed, empty, or declared-failure
// reply is reported as an error; callers account the whole batch as failed
// and move on.
func (c *Client) ClassifyBatch(ctx context.Context, items []classifier.ItemPayload, tax []taxonomy.TaxonomyEntry) ([]classifier.Proposal, error) {
	prompt, err := buildPrompt(tax)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal items: %w", err)
	}

	req := chatRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []chatMessage{
			{Role: "system", Content: prompt},
			{Role: "user", Content: string(payload)},
		},
	}

	var reply chatResponse
	resp, err := c.http.R().
		WithContext(ctx).
		SetBody(req).
		SetResult(&reply).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("classifier request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("classifier returned status %d", resp.StatusCode())
	}
	if len(reply.Choices) == 0 {
		return nil, errors.New("classifier returned no choices")
	}

	content := reply.Choices[0].Message.Content
	proposals, err := decodeReply(content)
	if err != nil {
		slog.DebugContext(ctx, "Unusable classifier reply", "error", err, "content_len", len(content))
		return nil, err
	}
	return proposals, nil
}

// decodeReply parses the model output into typed proposals. The model is told
// to emit bare JSON but routinely wraps it in markdown fences anyway.
func decodeReply(content string) ([]classifier.Proposal, error) {
	cleaned := stripFences(content)
	if strings.TrimSpace(cleaned) == "" {
		return nil, errors.New("empty classifier reply")
	}

	var reply batchReply
	if err := json.Unmarshal([]byte(cleaned), &reply); err != nil {
		return nil, fmt.Errorf("decode classifier reply: %w", err)
	}
	if !reply.Success {
		if reply.Error != "" {
			return nil, fmt.Errorf("classifier declared failure: %s", reply.Error)
		}
		return nil, errors.New("classifier declared failure")
	}
	if len(reply.Results) == 0 {
		return nil, errors.New("classifier returned no results")
	}
	return reply.Results, nil
}

// stripFences removes a surrounding markdown code fence, if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

const promptHeader = `You are a product classification assistant for a personal expense tracker.

You receive a JSON array of shopping items, each with "id", "name_native" and
"name_local". Assign every item the single best matching category from the
category table below, always choosing the deepest applicable node.

Respond with exactly one JSON object, no markdown fences, no commentary:
{"success": true, "results": [{"item_id": <id>, "category_id": <category id>, "category_name": "<name>", "reason": "<short justification>"}]}

Rules:
- "category_id" must be an id present in the category table. Never invent ids.
- Include one entry per input item. Do not skip items.
- If you cannot classify the batch at all, respond {"success": false, "error": "<why>"}.

Category table (id, level, path):
`

func buildPrompt(tax []taxonomy.TaxonomyEntry) (string, error) {
	if len(tax) == 0 {
		return "", errors.New("empty taxonomy")
	}
	var b strings.Builder
	b.WriteString(promptHeader)
	for _, entry := range tax {
		fmt.Fprintf(&b, "%d\t%d\t%s\n", entry.ID, entry.Level, entry.Path)
	}
	return b.String(), nil
}
