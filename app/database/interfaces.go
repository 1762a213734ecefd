package database

import (
	"time"
)

// DedupStore is the persistent already-processed set with TTL semantics.
// Claim/Commit/Release implement the two-phase record lifecycle: Claim
// wins or loses atomically under concurrent deliveries, Release drops the
// claim when rewriting fails, Commit extends it to the full TTL once the
// item has been rewritten.
type DedupStore interface {
	Claim(itemID string, ttl time.Duration) (bool, error)
	Commit(itemID string, ttl time.Duration) error
	Release(itemID string) error

	HasSeen(itemID string) (bool, error)
	GetRecord(itemID string) (*DedupRecord, error)

	Sweep() (int64, error)
	Count() (int, error)
}
