package database

import (
	"database/sql"
	"fmt"
	"time"
)

var _ DedupStore = (*DedupRepository)(nil)

// DedupRepository persists seen-item records in SQLite.
type DedupRepository struct {
	db  *DB
	now func() time.Time
}

func NewDedupRepository(db *DB) *DedupRepository {
	return &DedupRepository{
		db:  db,
		now: time.Now,
	}
}

// Claim records the item as in-flight if no live record exists. The
// single upsert statement makes the check-then-set atomic: of two
// concurrent deliveries for the same item, exactly one gets true.
// A physically present but expired record is treated as not seen and
// taken over.
func (r *DedupRepository) Claim(itemID string, ttl time.Duration) (bool, error) {
	now := r.now().UTC().Unix()
	expiresAt := now + int64(ttl.Seconds())

	result, err := r.db.Exec(`
		INSERT INTO seen_items (item_id, first_seen_at, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			first_seen_at = excluded.first_seen_at,
			expires_at = excluded.expires_at
		WHERE seen_items.expires_at <= excluded.first_seen_at
	`, itemID, now, expiresAt)
	if err != nil {
		return false, fmt.Errorf("failed to claim item: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}

	return affected > 0, nil
}

// Commit extends an existing record to the full TTL.
func (r *DedupRepository) Commit(itemID string, ttl time.Duration) error {
	expiresAt := r.now().UTC().Unix() + int64(ttl.Seconds())

	_, err := r.db.Exec(`
		UPDATE seen_items SET expires_at = ? WHERE item_id = ?
	`, expiresAt, itemID)
	if err != nil {
		return fmt.Errorf("failed to commit item: %w", err)
	}

	return nil
}

// Release drops the record so a later redelivery can retry the item.
func (r *DedupRepository) Release(itemID string) error {
	_, err := r.db.Exec(`DELETE FROM seen_items WHERE item_id = ?`, itemID)
	if err != nil {
		return fmt.Errorf("failed to release item: %w", err)
	}

	return nil
}

// HasSeen reports whether a live (unexpired) record exists for the item.
func (r *DedupRepository) HasSeen(itemID string) (bool, error) {
	var one int
	err := r.db.QueryRow(`
		SELECT 1 FROM seen_items WHERE item_id = ? AND expires_at > ?
	`, itemID, r.now().UTC().Unix()).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check item: %w", err)
	}

	return true, nil
}

func (r *DedupRepository) GetRecord(itemID string) (*DedupRecord, error) {
	var firstSeen, expires int64
	err := r.db.QueryRow(`
		SELECT first_seen_at, expires_at FROM seen_items WHERE item_id = ?
	`, itemID).Scan(&firstSeen, &expires)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	return &DedupRecord{
		ItemID:      itemID,
		FirstSeenAt: time.Unix(firstSeen, 0).UTC(),
		ExpiresAt:   time.Unix(expires, 0).UTC(),
	}, nil
}

// Sweep removes physically expired rows to bound storage growth.
func (r *DedupRepository) Sweep() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM seen_items WHERE expires_at <= ?`, r.now().UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired records: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read sweep result: %w", err)
	}

	return removed, nil
}

// Count returns the number of live records.
func (r *DedupRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM seen_items WHERE expires_at > ?
	`, r.now().UTC().Unix()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}

	return count, nil
}
