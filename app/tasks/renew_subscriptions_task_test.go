package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/mkoval/feedrelay/app/feed"
)

type subscribeCall struct {
	topicURL     string
	callbackURL  string
	secret       string
	leaseSeconds int
}

type fakeSubscriber struct {
	calls   []subscribeCall
	failFor map[string]error
}

func (s *fakeSubscriber) Subscribe(_ context.Context, topicURL, callbackURL, secret string, leaseSeconds int) error {
	s.calls = append(s.calls, subscribeCall{topicURL, callbackURL, secret, leaseSeconds})
	if err, ok := s.failFor[topicURL]; ok {
		return err
	}
	return nil
}

type fakeConfigCache struct {
	configs map[string]*feed.Config
}

func (c *fakeConfigCache) GetEnabledConfigs() map[string]*feed.Config {
	return c.configs
}

func TestRenewSubscriptionsTaskSubscribesEnabledTopics(t *testing.T) {
	subscriber := &fakeSubscriber{}
	cache := &fakeConfigCache{configs: map[string]*feed.Config{
		"tech":   {Name: "tech", URL: "https://example.com/tech.xml", Settings: feed.ConfigSettings{Enabled: true, Secret: "s3cret"}},
		"sports": {Name: "sports", URL: "https://example.com/sports.xml", Settings: feed.ConfigSettings{Enabled: true, LeaseSeconds: 3600}},
	}}

	task := NewRenewSubscriptionsTask(subscriber, cache, "https://relay.example.com/webhook", 86400)

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(subscriber.calls) != 2 {
		t.Fatalf("Expected 2 subscribe calls, got %d", len(subscriber.calls))
	}

	byTopic := make(map[string]subscribeCall)
	for _, call := range subscriber.calls {
		byTopic[call.topicURL] = call
	}

	tech := byTopic["https://example.com/tech.xml"]
	if tech.callbackURL != "https://relay.example.com/webhook" {
		t.Errorf("Expected callback URL 'https://relay.example.com/webhook', got '%s'", tech.callbackURL)
	}

	if tech.secret != "s3cret" {
		t.Errorf("Expected secret 's3cret', got '%s'", tech.secret)
	}

	if tech.leaseSeconds != 86400 {
		t.Errorf("Expected default lease 86400, got %d", tech.leaseSeconds)
	}

	if byTopic["https://example.com/sports.xml"].leaseSeconds != 3600 {
		t.Errorf("Expected per-topic lease 3600, got %d", byTopic["https://example.com/sports.xml"].leaseSeconds)
	}
}

func TestRenewSubscriptionsTaskContinuesAfterFailure(t *testing.T) {
	subscriber := &fakeSubscriber{failFor: map[string]error{
		"https://example.com/tech.xml": errors.New("hub rejected subscription"),
	}}
	cache := &fakeConfigCache{configs: map[string]*feed.Config{
		"tech":   {Name: "tech", URL: "https://example.com/tech.xml", Settings: feed.ConfigSettings{Enabled: true}},
		"sports": {Name: "sports", URL: "https://example.com/sports.xml", Settings: feed.ConfigSettings{Enabled: true}},
	}}

	task := NewRenewSubscriptionsTask(subscriber, cache, "https://relay.example.com/webhook", 86400)

	if err := task.Execute(context.Background()); err == nil {
		t.Fatal("Expected error, got nil")
	}

	if len(subscriber.calls) != 2 {
		t.Errorf("Expected both topics attempted, got %d calls", len(subscriber.calls))
	}
}

func TestRenewSubscriptionsTaskRequiresCallbackURL(t *testing.T) {
	task := NewRenewSubscriptionsTask(&fakeSubscriber{}, &fakeConfigCache{}, "", 86400)

	if err := task.Execute(context.Background()); err == nil {
		t.Fatal("Expected error, got nil")
	}
}
