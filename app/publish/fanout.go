package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mkoval/feedrelay/app/feed"
	"github.com/mkoval/feedrelay/app/rephrase"
)

const maxPublishAttempts = 3

// Fanout posts rewritten content to every enabled destination. Each
// destination is attempted independently and concurrently; one failing
// account never blocks the others, and the fanout as a whole never
// returns an error.
type Fanout struct {
	clients []PlatformClient
	timeout time.Duration
}

func NewFanout(clients []PlatformClient, timeout time.Duration) *Fanout {
	return &Fanout{
		clients: clients,
		timeout: timeout,
	}
}

func (f *Fanout) DestinationCount() int {
	return len(f.clients)
}

func (f *Fanout) Run(ctx context.Context, content rephrase.RephrasedContent, item feed.Item) []Result {
	var enabled []PlatformClient
	for _, client := range f.clients {
		if client.Destination().Enabled {
			enabled = append(enabled, client)
		}
	}

	fanoutCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	results := make([]Result, len(enabled))
	var wg sync.WaitGroup

	for i, client := range enabled {
		wg.Add(1)
		go func(i int, client PlatformClient) {
			defer wg.Done()

			dest := client.Destination()
			err := client.Post(fanoutCtx, content, item)
			if err != nil {
				slog.Warn("Publish attempt failed",
					"platform", string(dest.Platform),
					"account", dest.AccountRef,
					"item", item.ID,
					"error", err)
			} else {
				slog.Info("Published item",
					"platform", string(dest.Platform),
					"account", dest.AccountRef,
					"item", item.ID)
			}

			results[i] = Result{
				Destination: dest,
				Success:     err == nil,
				Err:         err,
			}
		}(i, client)
	}

	wg.Wait()
	return results
}

// postWithRetry issues the request with a bounded number of retries for
// transient failures (network errors, 5xx). Client errors fail
// immediately.
func postWithRetry(ctx context.Context, httpClient *http.Client, build func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= maxPublishAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt-1) * time.Second):
			}
		}

		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d %s", resp.StatusCode, string(body))
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, fmt.Errorf("client error: %d %s", resp.StatusCode, string(body))
		}

		return resp, nil
	}

	return nil, fmt.Errorf("all %d attempts failed: %w", maxPublishAttempts, lastErr)
}

func decodeBody(resp *http.Response, target any) error {
	return json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(target)
}
