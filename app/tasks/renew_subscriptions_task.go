package tasks

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
)

type RenewSubscriptionsTask struct {
	Task
	subscriber   SubscriberInterface
	configCache  ConfigCacheInterface
	callbackURL  string
	leaseSeconds int
}

var _ TaskInterface = (*RenewSubscriptionsTask)(nil)

func NewRenewSubscriptionsTask(subscriber SubscriberInterface, configCache ConfigCacheInterface, callbackURL string, leaseSeconds int) *RenewSubscriptionsTask {
	return &RenewSubscriptionsTask{
		Task:         NewTask(TaskTypeRenewSubscriptions, "all"),
		subscriber:   subscriber,
		configCache:  configCache,
		callbackURL:  callbackURL,
		leaseSeconds: leaseSeconds,
	}
}

func (t *RenewSubscriptionsTask) Execute(ctx context.Context) error {
	if t.callbackURL == "" {
		return fmt.Errorf("callback URL is not configured")
	}

	configs := t.configCache.GetEnabledConfigs()

	failed := 0
	for _, config := range configs {
		lease := cmp.Or(config.Settings.LeaseSeconds, t.leaseSeconds)

		if err := t.subscriber.Subscribe(ctx, config.URL, t.callbackURL, config.Settings.Secret, lease); err != nil {
			slog.Error("Failed to renew subscription", "topic", config.URL, "error", err)
			failed++
			continue
		}

		slog.Debug("Subscription renewed", "topic", config.URL, "lease_seconds", lease)
	}

	if failed > 0 {
		return fmt.Errorf("renewing subscriptions: %d of %d failed", failed, len(configs))
	}

	slog.Info("Subscriptions renewed", "count", len(configs))

	return nil
}
