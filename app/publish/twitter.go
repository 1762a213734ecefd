package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mkoval/feedrelay/app/feed"
	"github.com/mkoval/feedrelay/app/rephrase"
)

const defaultTwitterURL = "https://api.twitter.com"

var _ PlatformClient = (*TwitterClient)(nil)

// TwitterClient posts text tweets for one bearer token, appending the
// item link when present.
type TwitterClient struct {
	bearerToken string
	baseURL     string
	httpClient  *http.Client
}

func NewTwitterClient(bearerToken string, httpClient *http.Client) *TwitterClient {
	return &TwitterClient{
		bearerToken: bearerToken,
		baseURL:     defaultTwitterURL,
		httpClient:  httpClient,
	}
}

func (c *TwitterClient) Destination() Destination {
	return Destination{
		Platform:   PlatformTwitter,
		AccountRef: maskToken(c.bearerToken),
		Enabled:    true,
	}
}

func (c *TwitterClient) Post(ctx context.Context, content rephrase.RephrasedContent, item feed.Item) error {
	text := content.Text
	if item.Link != "" {
		text = text + "\n\n" + item.Link
	}

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("failed to encode tweet: %w", err)
	}

	resp, err := postWithRetry(ctx, c.httpClient, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/2/tweets", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("tweet failed for token %s: %w", maskToken(c.bearerToken), err)
	}
	defer resp.Body.Close()

	var payload struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := decodeBody(resp, &payload); err != nil {
		return fmt.Errorf("failed to decode twitter response: %w", err)
	}
	if payload.Data.ID == "" {
		return fmt.Errorf("twitter returned no tweet id for token %s", maskToken(c.bearerToken))
	}

	return nil
}

// maskToken keeps only the last four characters for logs and account refs.
func maskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return "****" + token[len(token)-4:]
}
