package websub

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Client manages push subscriptions with a WebSub hub (Superfeedr-style
// basic auth over form-encoded subscribe requests).
type Client struct {
	hubURL     string
	user       string
	password   string
	userAgent  string
	httpClient *http.Client
}

func NewClient(hubURL, user, password, userAgent string, httpClient *http.Client) *Client {
	return &Client{
		hubURL:     strings.TrimRight(hubURL, "/"),
		user:       user,
		password:   password,
		userAgent:  userAgent,
		httpClient: httpClient,
	}
}

// Subscribe requests a push subscription for the topic. The hub verifies
// the callback out-of-band; 202 means verification is pending, 204 means
// the subscription is active.
func (c *Client) Subscribe(ctx context.Context, topicURL, callbackURL, secret string, leaseSeconds int) error {
	params := url.Values{}
	params.Set("hub.mode", "subscribe")
	params.Set("hub.topic", topicURL)
	params.Set("hub.callback", callbackURL)
	params.Set("hub.verify", "async")
	params.Set("hub.lease_seconds", strconv.Itoa(leaseSeconds))
	if secret != "" {
		params.Set("hub.secret", secret)
	}

	if err := c.request(ctx, params); err != nil {
		return fmt.Errorf("subscribe failed for %s: %w", topicURL, err)
	}

	slog.Info("Subscription requested", "topic", topicURL, "lease_seconds", leaseSeconds)
	return nil
}

// Unsubscribe removes the push subscription for the topic.
func (c *Client) Unsubscribe(ctx context.Context, topicURL, callbackURL string) error {
	params := url.Values{}
	params.Set("hub.mode", "unsubscribe")
	params.Set("hub.topic", topicURL)
	params.Set("hub.callback", callbackURL)

	if err := c.request(ctx, params); err != nil {
		return fmt.Errorf("unsubscribe failed for %s: %w", topicURL, err)
	}

	slog.Info("Unsubscribed", "topic", topicURL)
	return nil
}

func (c *Client) request(ctx context.Context, params url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.hubURL, strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.SetBasicAuth(c.user, c.password)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("hub request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted, http.StatusNoContent:
		return nil
	case http.StatusUnauthorized:
		return fmt.Errorf("hub rejected credentials")
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return fmt.Errorf("hub returned %d: %s", resp.StatusCode, string(body))
	}
}

// VerifySignature checks an X-Hub-Signature header ("sha1=..." or
// "sha256=...") against the payload using the topic's shared secret.
func VerifySignature(payload []byte, header, secret string) bool {
	if header == "" || secret == "" {
		return false
	}

	algo, signature, found := strings.Cut(header, "=")
	if !found {
		return false
	}

	var mac hash.Hash
	switch algo {
	case "sha1":
		mac = hmac.New(sha1.New, []byte(secret))
	case "sha256":
		mac = hmac.New(sha256.New, []byte(secret))
	default:
		return false
	}

	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
