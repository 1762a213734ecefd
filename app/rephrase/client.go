package rephrase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/mkoval/feedrelay/app/feed"
)

const promptPrefix = "Rewrite the following news article into a concise, engaging social media post. " +
	"Include emojis only if appropriate. Keep URLs intact.\n\n"

// Client rewrites feed items through an OpenAI-compatible chat-completion
// endpoint, rotating across the key pool on transient failures.
type Client struct {
	pool    *KeyPool
	clients []*openai.Client
	model   string
}

func NewClient(baseURL string, keys []string, model string, pool *KeyPool) *Client {
	clients := make([]*openai.Client, 0, len(keys))
	for _, key := range keys {
		config := openai.DefaultConfig(key)
		if baseURL != "" {
			config.BaseURL = baseURL
		}
		clients = append(clients, openai.NewClientWithConfig(config))
	}

	return &Client{
		pool:    pool,
		clients: clients,
		model:   model,
	}
}

// Run rewrites one item into social-ready copy. It attempts up to the
// pool size, cooling down rate-limited slots and exhausting unauthorized
// ones; it fails when no slot remains available for this item.
func (c *Client) Run(ctx context.Context, item feed.Item) (RephrasedContent, error) {
	sourceText := buildSourceText(item)
	if sourceText == "" {
		return RephrasedContent{}, fmt.Errorf("item %s has no text to rewrite", item.ID)
	}

	var lastErr error
	for attempt := 0; attempt < c.pool.Size(); attempt++ {
		idx, _, err := c.pool.Acquire()
		if err != nil {
			if lastErr != nil {
				return RephrasedContent{}, fmt.Errorf("%w (last failure: %v)", err, lastErr)
			}
			return RephrasedContent{}, err
		}

		resp, err := c.clients[idx].CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: promptPrefix + sourceText,
				},
			},
			MaxTokens: 220,
		})
		if err != nil {
			if ctx.Err() != nil {
				return RephrasedContent{}, ctx.Err()
			}

			lastErr = err
			switch classifyError(err) {
			case failureUnauthorized:
				slog.Warn("Rephrase key unauthorized, removing from rotation", "slot", idx)
				c.pool.Exhaust(idx)
			case failureTransient:
				slog.Warn("Rephrase call failed, cooling down key", "slot", idx, "error", err)
				c.pool.ReportFailure(idx)
			default:
				return RephrasedContent{}, fmt.Errorf("rephrase provider rejected request: %w", err)
			}
			continue
		}

		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			lastErr = fmt.Errorf("empty response from provider")
			c.pool.ReportFailure(idx)
			continue
		}

		c.pool.ReportSuccess(idx)
		return RephrasedContent{
			Text:         strings.TrimSpace(resp.Choices[0].Message.Content),
			SourceItemID: item.ID,
		}, nil
	}

	return RephrasedContent{}, fmt.Errorf("%w (last failure: %v)", ErrKeysExhausted, lastErr)
}

type failureKind int

const (
	failureTransient failureKind = iota
	failureUnauthorized
	failureHard
)

func classifyError(err error) failureKind {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden:
			return failureUnauthorized
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500:
			return failureTransient
		default:
			return failureHard
		}
	}

	// Network-level failures are retryable on another key
	return failureTransient
}

// buildSourceText assembles the original text handed to the model.
func buildSourceText(item feed.Item) string {
	var parts []string
	if item.Title != "" {
		parts = append(parts, item.Title)
	}
	if item.Summary != "" {
		parts = append(parts, item.Summary)
	}
	if item.Link != "" {
		parts = append(parts, "Read more: "+item.Link)
	}
	return strings.Join(parts, "\n\n")
}
