package dbexec

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// VersionInfo describes the connected database build.
type VersionInfo struct {
	Version string
	Edition string
}

// ParseVersion builds a VersionInfo from a bare version string, deriving
// the edition from markers embedded in the string itself. Used for
// configured version overrides where no version comment is available.
func ParseVersion(version string) VersionInfo {
	return VersionInfo{Version: version, Edition: editionFromComment(version)}
}

// editionFromComment maps the server's version comment onto a short edition
// label understood by the query planner.
func editionFromComment(comment string) string {
	switch {
	case strings.Contains(comment, "TiDB"):
		return "tidb"
	case strings.Contains(comment, "MariaDB"):
		return "mariadb"
	default:
		return "mysql"
	}
}

// VersionCache lazily caches the database version and edition. Once
// populated the value is never re-fetched unless explicitly cleared or
// overridden, trading a small staleness risk for avoiding a metadata query
// per request. Construct one per wrapper so tests get isolated instances.
type VersionCache struct {
	mu   sync.Mutex
	info *VersionInfo
}

// NewVersionCache creates an empty cache.
func NewVersionCache() *VersionCache {
	return &VersionCache{}
}

// Set stores an explicit version, bypassing the metadata query on all
// subsequent reads.
func (c *VersionCache) Set(info VersionInfo) {
	c.mu.Lock()
	c.info = &info
	c.mu.Unlock()
}

// Clear discards the cached version so the next Get re-queries.
func (c *VersionCache) Clear() {
	c.mu.Lock()
	c.info = nil
	c.mu.Unlock()
}

// Get returns the cached version info, querying the executor on first use.
// Query failures propagate to the caller as infrastructure failures; the
// cache stays empty so a later request can retry.
func (c *VersionCache) Get(ctx context.Context, exec QueryExecutor) (VersionInfo, error) {
	c.mu.Lock()
	if c.info != nil {
		info := *c.info
		c.mu.Unlock()
		return info, nil
	}
	c.mu.Unlock()

	info, err := queryVersion(ctx, exec)
	if err != nil {
		return VersionInfo{}, err
	}

	c.mu.Lock()
	// Last writer wins on a concurrent first access; the query is idempotent.
	c.info = &info
	c.mu.Unlock()
	return info, nil
}

func queryVersion(ctx context.Context, exec QueryExecutor) (VersionInfo, error) {
	rows, err := exec.QueryContext(ctx, "SELECT VERSION(), @@version_comment")
	if err != nil {
		return VersionInfo{}, fmt.Errorf("dbexec: version query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return VersionInfo{}, fmt.Errorf("dbexec: version query failed: %w", err)
		}
		return VersionInfo{}, fmt.Errorf("dbexec: version query returned no rows")
	}

	var version, comment string
	if err := rows.Scan(&version, &comment); err != nil {
		return VersionInfo{}, fmt.Errorf("dbexec: version scan failed: %w", err)
	}
	return VersionInfo{Version: version, Edition: editionFromComment(comment)}, nil
}
