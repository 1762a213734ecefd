package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mkoval/feedrelay/app/database"
)

type SweepDedupTask struct {
	Task
	dedupStore database.DedupStore
}

var _ TaskInterface = (*SweepDedupTask)(nil)

func NewSweepDedupTask(dedupStore database.DedupStore) *SweepDedupTask {
	return &SweepDedupTask{
		Task:       NewTask(TaskTypeSweepDedup, "seen_items"),
		dedupStore: dedupStore,
	}
}

func (t *SweepDedupTask) Execute(_ context.Context) error {
	removed, err := t.dedupStore.Sweep()
	if err != nil {
		return fmt.Errorf("sweeping expired dedup records: %w", err)
	}

	if removed > 0 {
		slog.Info("Swept expired dedup records", "removed", removed)
	}

	return nil
}
