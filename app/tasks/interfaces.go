package tasks

import (
	"context"

	"github.com/mkoval/feedrelay/app/feed"
	"github.com/mkoval/feedrelay/app/publish"
	"github.com/mkoval/feedrelay/app/rephrase"
)

type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface)
}

type RephraserInterface interface {
	Run(ctx context.Context, item feed.Item) (rephrase.RephrasedContent, error)
}

type FanoutInterface interface {
	Run(ctx context.Context, content rephrase.RephrasedContent, item feed.Item) []publish.Result
}

type SubscriberInterface interface {
	Subscribe(ctx context.Context, topicURL string, callbackURL string, secret string, leaseSeconds int) error
}

type ConfigCacheInterface interface {
	GetEnabledConfigs() map[string]*feed.Config
}
