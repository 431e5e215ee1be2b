// Package sigcache persists resolved signatures in a local SQLite database
// so repeated runs over an unchanged declaration graph skip resolution
// entirely. Entries are keyed by declaration name; the stored fingerprint
// invalidates an entry whenever the declaration, its parents, or the
// capability registry change.
package sigcache

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS signatures (
	decl        TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL,
	payload     BLOB NOT NULL,
	resolved_at INTEGER NOT NULL
);
`

// Cache is a SQLite-backed signature store. It is safe for concurrent use;
// database/sql serializes access to the underlying connection pool.
type Cache struct {
	db *sql.DB
}

// Open creates or opens the cache database at path. Use ":memory:" for an
// ephemeral cache in tests.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening signature cache %s", path)
	}
	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent resolution.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "initializing signature cache %s", path)
	}
	return &Cache{db: db}, nil
}

// Get returns the cached payload for decl if its fingerprint matches.
// A stale entry is a miss, not an error.
func (c *Cache) Get(ctx context.Context, decl, fingerprint string) ([]byte, bool, error) {
	var stored string
	var payload []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT fingerprint, payload FROM signatures WHERE decl = ?`, decl,
	).Scan(&stored, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "reading cached signature for %s", decl)
	}
	if stored != fingerprint {
		return nil, false, nil
	}
	return payload, true, nil
}

// Put stores or replaces the payload for decl under the given fingerprint.
func (c *Cache) Put(ctx context.Context, decl, fingerprint string, payload []byte) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO signatures (decl, fingerprint, payload, resolved_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(decl) DO UPDATE SET
		   fingerprint = excluded.fingerprint,
		   payload     = excluded.payload,
		   resolved_at = excluded.resolved_at`,
		decl, fingerprint, payload, time.Now().Unix())
	if err != nil {
		return errors.Wrapf(err, "writing cached signature for %s", decl)
	}
	return nil
}

// Purge drops every entry. Useful after a registry change when fingerprints
// alone should already invalidate, but the table would otherwise grow with
// dead rows.
func (c *Cache) Purge(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM signatures`)
	return errors.Wrap(err, "purging signature cache")
}

// Len reports the number of stored signatures.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM signatures`).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "counting cached signatures")
	}
	return n, nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}
