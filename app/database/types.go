package database

import (
	"time"
)

// DedupRecord marks an item as published (or currently being published).
// A live record blocks any further publish attempt for the same item
// until expires_at passes.
type DedupRecord struct {
	ItemID      string
	FirstSeenAt time.Time
	ExpiresAt   time.Time
}
