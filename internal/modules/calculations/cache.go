// Package calculations caches expensive numerical results keyed by a hash
// of their inputs. Values are serialized with msgpack and stored in the
// calc_cache table so repeated requests with identical inputs skip the
// solver entirely.
package calculations

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Cache is a msgpack-over-SQLite result cache.
type Cache struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewCache creates a calculation cache over the given database.
func NewCache(db *sql.DB, log zerolog.Logger) *Cache {
	return &Cache{
		db:  db,
		log: log.With().Str("component", "calc_cache").Logger(),
	}
}

// Key derives a cache key from the operation name and its input parts. The
// key is the first 16 bytes of a SHA-256 over the joined parts, hex encoded.
func Key(operation string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(operation))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// Get loads a cached value into out. Returns false on a miss; decode
// failures evict the entry and count as a miss.
func (c *Cache) Get(key string, out interface{}) (bool, error) {
	var blob []byte
	err := c.db.QueryRow("SELECT value FROM calc_cache WHERE key = ?", key).Scan(&blob)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query cache: %w", err)
	}

	if err := msgpack.Unmarshal(blob, out); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Evicting undecodable cache entry")
		_ = c.Delete(key)
		return false, nil
	}
	return true, nil
}

// Set stores a value under key, replacing any existing entry.
func (c *Cache) Set(key string, value interface{}) error {
	blob, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}

	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO calc_cache (key, value, created_at) VALUES (?, ?, ?)",
		key, blob, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store cache value: %w", err)
	}
	return nil
}

// Delete removes a single entry.
func (c *Cache) Delete(key string) error {
	_, err := c.db.Exec("DELETE FROM calc_cache WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// PurgeOlderThan removes entries created before the cutoff and returns the
// number evicted. Run from scheduled maintenance.
func (c *Cache) PurgeOlderThan(cutoff time.Time) (int64, error) {
	res, err := c.db.Exec("DELETE FROM calc_cache WHERE created_at < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		c.log.Debug().Int64("evicted", n).Msg("Purged stale cache entries")
	}
	return n, nil
}

// Count returns the number of cached entries.
func (c *Cache) Count() (int, error) {
	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM calc_cache").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return n, nil
}
