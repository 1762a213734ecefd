package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/mkoval/feedrelay/app/database"
	"github.com/mkoval/feedrelay/app/feed"
)

// PublishItemTask carries one claimed feed item through rewrite and fanout.
// It never retries: a failed rewrite releases the dedup claim so the item can
// be processed again on hub redelivery.
type PublishItemTask struct {
	Task
	Item       feed.Item
	rephraser  RephraserInterface
	fanout     FanoutInterface
	dedupStore database.DedupStore
	limiter    *rate.Limiter
	dedupTTL   time.Duration
}

var _ TaskInterface = (*PublishItemTask)(nil)

func NewPublishItemTask(item feed.Item, rephraser RephraserInterface, fanout FanoutInterface, dedupStore database.DedupStore, limiter *rate.Limiter, dedupTTL time.Duration) *PublishItemTask {
	task := NewTask(TaskTypePublishItem, item.ID)
	task.MaxRetries = 0

	return &PublishItemTask{
		Task:       task,
		Item:       item,
		rephraser:  rephraser,
		fanout:     fanout,
		dedupStore: dedupStore,
		limiter:    limiter,
		dedupTTL:   dedupTTL,
	}
}

func (t *PublishItemTask) Execute(ctx context.Context) error {
	if err := t.limiter.Wait(ctx); err != nil {
		t.release()
		return fmt.Errorf("waiting for rate limiter: %w", err)
	}

	content, err := t.rephraser.Run(ctx, t.Item)
	if err != nil {
		t.release()
		return fmt.Errorf("rewriting item '%s': %w", t.Item.ID, err)
	}

	if err := t.dedupStore.Commit(t.Item.ID, t.dedupTTL); err != nil {
		return fmt.Errorf("committing dedup record for item '%s': %w", t.Item.ID, err)
	}

	results := t.fanout.Run(ctx, content, t.Item)

	succeeded := 0
	for _, result := range results {
		if result.Success {
			succeeded++
		}
	}

	slog.Info("Item published", "item_id", t.Item.ID, "title", t.Item.Title, "succeeded", succeeded, "destinations", len(results))

	return nil
}

// OnDrop releases the dedup claim when the scheduler cannot accept the
// task, so a hub redelivery retries the item right away.
func (t *PublishItemTask) OnDrop() {
	t.release()
}

func (t *PublishItemTask) release() {
	if err := t.dedupStore.Release(t.Item.ID); err != nil {
		slog.Error("Failed to release dedup claim", "item_id", t.Item.ID, "error", err)
	}
}
