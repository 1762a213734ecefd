package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/mkoval/feedrelay/app/database"
	"github.com/mkoval/feedrelay/app/feed"
	"github.com/mkoval/feedrelay/app/publish"
	"github.com/mkoval/feedrelay/app/rephrase"
	"github.com/mkoval/feedrelay/app/tasks"
)

const samplePayload = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Example Feed</title>
    <item>
      <guid>item-100</guid>
      <title>Breaking news</title>
      <link>https://example.com/articles/100</link>
      <description>Something happened.</description>
    </item>
  </channel>
</rss>`

type fakeDedupStore struct {
	claims    []string
	claimFail bool
	seen      map[string]bool
}

func (s *fakeDedupStore) Claim(itemID string, _ time.Duration) (bool, error) {
	s.claims = append(s.claims, itemID)
	if s.seen[itemID] {
		return false, nil
	}
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	s.seen[itemID] = true
	return true, nil
}

func (s *fakeDedupStore) Commit(string, time.Duration) error { return nil }
func (s *fakeDedupStore) Release(string) error               { return nil }

func (s *fakeDedupStore) HasSeen(itemID string) (bool, error) { return s.seen[itemID], nil }

func (s *fakeDedupStore) GetRecord(string) (*database.DedupRecord, error) { return nil, nil }
func (s *fakeDedupStore) Sweep() (int64, error)                           { return 0, nil }
func (s *fakeDedupStore) Count() (int, error)                             { return len(s.seen), nil }

type fakeScheduler struct {
	enqueued []tasks.TaskInterface
}

func (s *fakeScheduler) Start() {}
func (s *fakeScheduler) Stop()  {}

func (s *fakeScheduler) EnqueueTask(task tasks.TaskInterface) {
	s.enqueued = append(s.enqueued, task)
}

func newTestConfigCache(t *testing.T, secret string) *feed.ConfigCache {
	t.Helper()

	dir := t.TempDir()
	content := "url: https://example.com/feed.xml\nsettings:\n  enabled: true\n"
	if secret != "" {
		content += "  secret: " + secret + "\n"
	}
	if err := os.WriteFile(filepath.Join(dir, "example.yml"), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cache := feed.NewConfigCache(dir)
	if err := cache.Run(); err != nil {
		t.Fatalf("Failed to load configs: %v", err)
	}

	return cache
}

func newTestHandler(t *testing.T, secret string) (*Handler, *fakeDedupStore, *fakeScheduler) {
	t.Helper()

	store := &fakeDedupStore{seen: make(map[string]bool)}
	scheduler := &fakeScheduler{}
	pool := rephrase.NewKeyPool([]string{"test-key"}, time.Minute)
	fanout := publish.NewFanout(nil, 5*time.Second)
	limiter := rate.NewLimiter(rate.Inf, 1)

	handler := NewHandler(newTestConfigCache(t, secret), feed.NewParser(), store,
		scheduler, nil, pool, fanout, limiter, 5*time.Minute, time.Hour)

	return handler, store, scheduler
}

func performRequest(handler *Handler, method, target string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	router := NewServer(handler)
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyIntentEchoesChallenge(t *testing.T) {
	handler, _, _ := newTestHandler(t, "")

	w := performRequest(handler, "GET",
		"/webhook?hub.mode=subscribe&hub.topic=https%3A%2F%2Fexample.com%2Ffeed.xml&hub.challenge=abc123", nil, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	if w.Body.String() != "abc123" {
		t.Errorf("Expected challenge echoed verbatim, got '%s'", w.Body.String())
	}
}

func TestVerifyIntentUnknownTopic(t *testing.T) {
	handler, _, _ := newTestHandler(t, "")

	w := performRequest(handler, "GET",
		"/webhook?hub.mode=subscribe&hub.topic=https%3A%2F%2Funknown.example.com%2Ffeed&hub.challenge=abc123", nil, nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestVerifyIntentBadMode(t *testing.T) {
	handler, _, _ := newTestHandler(t, "")

	w := performRequest(handler, "GET",
		"/webhook?hub.mode=publish&hub.topic=https%3A%2F%2Fexample.com%2Ffeed.xml&hub.challenge=abc123", nil, nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestVerifyIntentMissingChallenge(t *testing.T) {
	handler, _, _ := newTestHandler(t, "")

	w := performRequest(handler, "GET",
		"/webhook?hub.mode=subscribe&hub.topic=https%3A%2F%2Fexample.com%2Ffeed.xml", nil, nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestHandleNotificationEnqueuesNewItems(t *testing.T) {
	handler, store, scheduler := newTestHandler(t, "")

	w := performRequest(handler, "POST", "/webhook", []byte(samplePayload), nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	if len(store.claims) != 1 || store.claims[0] != "item-100" {
		t.Errorf("Expected claim for 'item-100', got %v", store.claims)
	}

	if len(scheduler.enqueued) != 1 {
		t.Fatalf("Expected 1 enqueued task, got %d", len(scheduler.enqueued))
	}

	if scheduler.enqueued[0].GetType() != tasks.TaskTypePublishItem {
		t.Errorf("Expected publish item task, got '%s'", scheduler.enqueued[0].GetType())
	}
}

func TestHandleNotificationSkipsDuplicates(t *testing.T) {
	handler, _, scheduler := newTestHandler(t, "")

	first := performRequest(handler, "POST", "/webhook", []byte(samplePayload), nil)
	second := performRequest(handler, "POST", "/webhook", []byte(samplePayload), nil)

	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("Expected both deliveries acknowledged, got %d and %d", first.Code, second.Code)
	}

	if len(scheduler.enqueued) != 1 {
		t.Errorf("Expected duplicate delivery to enqueue nothing, got %d tasks", len(scheduler.enqueued))
	}
}

func TestHandleNotificationRejectsBadSignature(t *testing.T) {
	handler, _, scheduler := newTestHandler(t, "topic-secret")

	w := performRequest(handler, "POST", "/webhook", []byte(samplePayload), map[string]string{
		"X-Hub-Signature": "sha256=deadbeef",
	})

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}

	if len(scheduler.enqueued) != 0 {
		t.Errorf("Expected no enqueued tasks, got %d", len(scheduler.enqueued))
	}
}

func TestHandleNotificationRejectsMissingSignature(t *testing.T) {
	handler, _, _ := newTestHandler(t, "topic-secret")

	w := performRequest(handler, "POST", "/webhook", []byte(samplePayload), nil)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestHandleNotificationAcceptsValidSignature(t *testing.T) {
	handler, _, scheduler := newTestHandler(t, "topic-secret")

	payload := []byte(samplePayload)
	w := performRequest(handler, "POST", "/webhook", payload, map[string]string{
		"X-Hub-Signature": sign(payload, "topic-secret"),
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	if len(scheduler.enqueued) != 1 {
		t.Errorf("Expected 1 enqueued task, got %d", len(scheduler.enqueued))
	}
}

func TestHandleNotificationRejectsOversizePayload(t *testing.T) {
	handler, _, scheduler := newTestHandler(t, "")

	oversized := bytes.Repeat([]byte("x"), 2<<20+1)
	w := performRequest(handler, "POST", "/webhook", oversized, nil)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status 413, got %d", w.Code)
	}

	if len(scheduler.enqueued) != 0 {
		t.Errorf("Expected no enqueued tasks, got %d", len(scheduler.enqueued))
	}
}

func TestHandleNotificationRejectsUnparseablePayload(t *testing.T) {
	handler, _, scheduler := newTestHandler(t, "")

	w := performRequest(handler, "POST", "/webhook", []byte("this is not a feed"), nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}

	if len(scheduler.enqueued) != 0 {
		t.Errorf("Expected no enqueued tasks, got %d", len(scheduler.enqueued))
	}
}

func TestGetHealth(t *testing.T) {
	handler, _, _ := newTestHandler(t, "")

	w := performRequest(handler, "GET", "/health", nil, nil)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestGetStats(t *testing.T) {
	handler, _, _ := newTestHandler(t, "")

	w := performRequest(handler, "GET", "/stats", nil, nil)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}
