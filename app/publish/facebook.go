package publish

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mkoval/feedrelay/app/feed"
	"github.com/mkoval/feedrelay/app/rephrase"
)

const defaultGraphURL = "https://graph.facebook.com"

var _ PlatformClient = (*FacebookClient)(nil)

// FacebookClient posts photo-with-caption updates to one Facebook page.
// The Graph photos endpoint requires an image, so items without one are
// rejected before any request goes out.
type FacebookClient struct {
	pageID      string
	accessToken string
	baseURL     string
	httpClient  *http.Client
}

func NewFacebookClient(pageID, accessToken string, httpClient *http.Client) *FacebookClient {
	return &FacebookClient{
		pageID:      pageID,
		accessToken: accessToken,
		baseURL:     defaultGraphURL,
		httpClient:  httpClient,
	}
}

func (c *FacebookClient) Destination() Destination {
	return Destination{
		Platform:   PlatformFacebook,
		AccountRef: c.pageID,
		Enabled:    true,
	}
}

func (c *FacebookClient) Post(ctx context.Context, content rephrase.RephrasedContent, item feed.Item) error {
	if item.ImageURL == "" {
		return fmt.Errorf("item %s has no image for a photo post", item.ID)
	}

	form := url.Values{}
	form.Set("url", item.ImageURL)
	form.Set("caption", content.Text)
	form.Set("access_token", c.accessToken)

	endpoint := fmt.Sprintf("%s/%s/photos", c.baseURL, c.pageID)

	resp, err := postWithRetry(ctx, c.httpClient, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("facebook post failed for page %s: %w", c.pageID, err)
	}
	defer resp.Body.Close()

	var payload struct {
		ID string `json:"id"`
	}
	if err := decodeBody(resp, &payload); err != nil {
		return fmt.Errorf("failed to decode facebook response: %w", err)
	}
	if payload.ID == "" {
		return fmt.Errorf("facebook returned no post id for page %s", c.pageID)
	}

	return nil
}
