package database

import (
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestRepository(t *testing.T) *DedupRepository {
	t.Helper()

	db, err := NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return NewDedupRepository(db)
}

func TestClaimThenHasSeen(t *testing.T) {
	repo := newTestRepository(t)

	claimed, err := repo.Claim("item-1", time.Hour)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if !claimed {
		t.Fatal("Expected first claim to win")
	}

	seen, err := repo.HasSeen("item-1")
	if err != nil {
		t.Fatalf("HasSeen failed: %v", err)
	}
	if !seen {
		t.Error("Expected item to be seen after claim")
	}

	seen, err = repo.HasSeen("item-2")
	if err != nil {
		t.Fatalf("HasSeen failed: %v", err)
	}
	if seen {
		t.Error("Expected unclaimed item to be unseen")
	}
}

func TestClaimDuplicate(t *testing.T) {
	repo := newTestRepository(t)

	if claimed, _ := repo.Claim("item-1", time.Hour); !claimed {
		t.Fatal("Expected first claim to win")
	}
	if claimed, _ := repo.Claim("item-1", time.Hour); claimed {
		t.Error("Expected second claim for live record to lose")
	}
}

func TestClaimAfterExpiry(t *testing.T) {
	repo := newTestRepository(t)

	current := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return current }

	if claimed, _ := repo.Claim("item-1", time.Hour); !claimed {
		t.Fatal("Expected first claim to win")
	}

	// Before TTL expiry the item stays seen
	current = current.Add(30 * time.Minute)
	if seen, _ := repo.HasSeen("item-1"); !seen {
		t.Error("Expected item to be seen before TTL expiry")
	}

	// After expiry it is logically unseen and can be reclaimed
	current = current.Add(2 * time.Hour)
	if seen, _ := repo.HasSeen("item-1"); seen {
		t.Error("Expected item to be unseen after TTL expiry")
	}
	if claimed, _ := repo.Claim("item-1", time.Hour); !claimed {
		t.Error("Expected expired record to be reclaimable")
	}
}

func TestClaimConcurrent(t *testing.T) {
	repo := newTestRepository(t)

	const workers = 8
	var wg sync.WaitGroup
	wins := make(chan bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := repo.Claim("contested-item", time.Hour)
			if err != nil {
				t.Errorf("Claim failed: %v", err)
				return
			}
			if claimed {
				wins <- true
			}
		}()
	}

	wg.Wait()
	close(wins)

	winners := 0
	for range wins {
		winners++
	}
	if winners != 1 {
		t.Errorf("Expected exactly 1 winning claim, got %d", winners)
	}
}

func TestReleaseMakesItemUnseen(t *testing.T) {
	repo := newTestRepository(t)

	if claimed, _ := repo.Claim("item-1", time.Hour); !claimed {
		t.Fatal("Expected claim to win")
	}
	if err := repo.Release("item-1"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	if seen, _ := repo.HasSeen("item-1"); seen {
		t.Error("Expected released item to be unseen")
	}
	if claimed, _ := repo.Claim("item-1", time.Hour); !claimed {
		t.Error("Expected released item to be reclaimable")
	}
}

func TestCommitExtendsExpiry(t *testing.T) {
	repo := newTestRepository(t)

	current := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return current }

	if claimed, _ := repo.Claim("item-1", 5*time.Minute); !claimed {
		t.Fatal("Expected claim to win")
	}
	if err := repo.Commit("item-1", 24*time.Hour); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	record, err := repo.GetRecord("item-1")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if record == nil {
		t.Fatal("Expected record to exist")
	}

	want := current.Add(24 * time.Hour)
	if !record.ExpiresAt.Equal(want) {
		t.Errorf("Expected expiry %v, got %v", want, record.ExpiresAt)
	}

	// The claim-TTL window has passed but the committed record holds
	current = current.Add(time.Hour)
	if seen, _ := repo.HasSeen("item-1"); !seen {
		t.Error("Expected committed item to stay seen past the claim window")
	}
}

func TestSweep(t *testing.T) {
	repo := newTestRepository(t)

	current := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return current }

	repo.Claim("old-1", time.Minute)
	repo.Claim("old-2", time.Minute)
	repo.Claim("fresh", 24*time.Hour)

	current = current.Add(time.Hour)

	removed, err := repo.Sweep()
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 swept records, got %d", removed)
	}

	count, err := repo.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 live record, got %d", count)
	}
}
