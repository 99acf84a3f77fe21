// Package notion pushes stored insights into a Notion workspace as pages
// under a configured parent page.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	defaultAPIURL  = "https://api.notion.com/v1"
	notionVersion  = "2022-06-28"
	maxRetries     = 4
	textChunkLimit = 2000 // Notion caps rich text content per block
)

type Client struct {
	token      string
	parentPage string
	client     *http.Client
	apiURL     string
	logger     *slog.Logger
}

func NewClient(token, parentPage string, logger *slog.Logger) *Client {
	return &Client{
		token:      token,
		parentPage: parentPage,
		client:     &http.Client{Timeout: 15 * time.Second},
		apiURL:     defaultAPIURL,
		logger:     logger,
	}
}

// Enabled reports whether the client is configured for outbound sync.
func (c *Client) Enabled() bool {
	return c.token != "" && c.parentPage != ""
}

// Block is one Notion content block in API shape.
type Block map[string]any

// Paragraph builds paragraph blocks, splitting text at the per-block rich
// text limit.
func Paragraph(text string) []Block {
	var blocks []Block
	for _, chunk := range chunk(text, textChunkLimit) {
		blocks = append(blocks, Block{
			"object": "block",
			"type":   "paragraph",
			"paragraph": map[string]any{
				"rich_text": richText(chunk),
			},
		})
	}
	return blocks
}

// Code builds a code block. Notion rejects unknown languages, so anything
// outside its list is sent as plain text.
func Code(language, content string) Block {
	if language == "" {
		language = "plain text"
	}
	return Block{
		"object": "block",
		"type":   "code",
		"code": map[string]any{
			"rich_text": richText(truncateText(content, textChunkLimit)),
			"language":  language,
		},
	}
}

// Heading builds an H2 block.
func Heading(text string) Block {
	return Block{
		"object": "block",
		"type":   "heading_2",
		"heading_2": map[string]any{
			"rich_text": richText(truncateText(text, textChunkLimit)),
		},
	}
}

// CreatePage creates a page under the configured parent and returns its ID.
// Rate limits and transient server errors are retried with backoff,
// honoring Retry-After.
func (c *Client) CreatePage(ctx context.Context, title string, children []Block) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"parent": map[string]any{"page_id": c.parentPage},
		"properties": map[string]any{
			"title": map[string]any{
				"title": richText(truncateText(title, textChunkLimit)),
			},
		},
		"children": children,
	})
	if err != nil {
		return "", fmt.Errorf("marshal page: %w", err)
	}

	operation := func() (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/pages", bytes.NewReader(payload))
		if err != nil {
			return "", backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Notion-Version", notionVersion)

		resp, err := c.client.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", err
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			seconds, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
			if seconds <= 0 {
				seconds = 1
			}
			c.logger.Warn("notion rate limited", "retry_after", seconds)
			return "", backoff.RetryAfter(seconds)
		case resp.StatusCode >= 500:
			return "", fmt.Errorf("notion server error: %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			return "", backoff.Permanent(fmt.Errorf("notion error %d: %s", resp.StatusCode, body))
		}

		var page struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return "", backoff.Permanent(fmt.Errorf("parse page response: %w", err))
		}
		return page.ID, nil
	}

	pageID, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxRetries),
	)
	if err != nil {
		return "", fmt.Errorf("create notion page: %w", err)
	}
	return pageID, nil
}

func richText(text string) []map[string]any {
	return []map[string]any{
		{"type": "text", "text": map[string]any{"content": text}},
	}
}

func chunk(text string, size int) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	var out []string
	for len(runes) > size {
		out = append(out, string(runes[:size]))
		runes = runes[size:]
	}
	return append(out, string(runes))
}

func truncateText(text string, size int) string {
	if r := []rune(text); len(r) > size {
		return string(r[:size])
	}
	return text
}
