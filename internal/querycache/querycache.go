// Package querycache caches SQL query results keyed by a normalized
// fingerprint of the statement and its parameters, and supports
// invalidating every cached result that touched a given table.
package querycache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/allaspectsdev/webcore/internal/cache"
)

// Entry is one cached query result.
type Entry struct {
	Result    []byte
	RowCount  int
	Tables    []string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Config controls which queries get cached.
type Config struct {
	MaxEntries              int
	DefaultTTL              time.Duration
	CacheSelectOnly         bool
	MinExecutionTime        time.Duration
	MaxResultSizeBytes      int
	NormalizeParameters     bool
	EnableTableInvalidation bool
}

// DefaultConfig matches the reference implementation's defaults.
func DefaultConfig() Config {
	return Config{
		MaxEntries:              500,
		DefaultTTL:              time.Minute,
		CacheSelectOnly:         true,
		MinExecutionTime:        5 * time.Millisecond,
		MaxResultSizeBytes:      1 << 20, // 1 MiB
		NormalizeParameters:     true,
		EnableTableInvalidation: true,
	}
}

// Overflow is the disk-backed tier consulted when a key has aged out of
// the in-memory LRU, and written through to on every Store call so a
// process restart doesn't cold-start the cache. Grounded on
// internal/store's query_cache table.
type Overflow interface {
	Get(key string) (result []byte, rowCount int, expiresAt time.Time, err error)
	Set(key, queryHash string, result []byte, rowCount int, expiresAt time.Time) error
}

// Cache caches query results and tracks, per table, which cache keys
// touched it so a write to that table can invalidate exactly those
// entries.
type Cache struct {
	entries    *cache.LRUCache[string, *Entry]
	mu         sync.RWMutex
	tableIndex map[string]map[string]struct{} // table -> set of cache keys
	cfg        Config
	overflow   Overflow
}

// New builds a Cache from cfg.
func New(cfg Config) *Cache {
	return &Cache{
		entries:    cache.NewLRUCache[string, *Entry](cfg.MaxEntries, cfg.DefaultTTL),
		tableIndex: make(map[string]map[string]struct{}),
		cfg:        cfg,
	}
}

// SetOverflow attaches a disk-backed overflow tier. Pass nil to disable it.
func (c *Cache) SetOverflow(o Overflow) {
	c.mu.Lock()
	c.overflow = o
	c.mu.Unlock()
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func normalizeQuery(query string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(query, " "))
}

// GenerateCacheKey fingerprints a query and its bound parameters.
func (c *Cache) GenerateCacheKey(query string, params []any) string {
	normalized := normalizeQuery(query)
	if !c.cfg.NormalizeParameters {
		normalized = query
	}

	var b strings.Builder
	b.WriteString(strings.ToLower(normalized))
	for _, p := range params {
		b.WriteByte('\x00')
		fmt.Fprintf(&b, "%v", p)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// ShouldCache decides whether a query's result is worth caching, given how
// long it took to execute and how large the serialized result is.
func (c *Cache) ShouldCache(query string, execDuration time.Duration, resultSizeBytes int) bool {
	if c.cfg.CacheSelectOnly {
		trimmed := strings.TrimSpace(strings.ToUpper(query))
		if !strings.HasPrefix(trimmed, "SELECT") {
			return false
		}
	}
	if execDuration < c.cfg.MinExecutionTime {
		return false
	}
	if c.cfg.MaxResultSizeBytes > 0 && resultSizeBytes > c.cfg.MaxResultSizeBytes {
		return false
	}
	return true
}

// Store caches a query result under its fingerprint and indexes it by
// every table the query touches, so InvalidateTable can find it later.
// If an overflow tier is attached, the entry is written through to disk
// as well. Store defers to ShouldCache first and silently does nothing
// if the query or result isn't eligible.
func (c *Cache) Store(query string, params []any, execDuration time.Duration, result []byte, rowCount int) {
	if !c.ShouldCache(query, execDuration, len(result)) {
		return
	}

	key := c.GenerateCacheKey(query, params)
	tables := ExtractTableNames(query)
	expiresAt := time.Now().Add(c.cfg.DefaultTTL)

	c.entries.Set(key, &Entry{
		Result:    result,
		RowCount:  rowCount,
		Tables:    tables,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
	})

	c.mu.Lock()
	overflow := c.overflow
	if c.cfg.EnableTableInvalidation {
		for _, t := range tables {
			set, ok := c.tableIndex[t]
			if !ok {
				set = make(map[string]struct{})
				c.tableIndex[t] = set
			}
			set[key] = struct{}{}
		}
	}
	c.mu.Unlock()

	if overflow != nil {
		_ = overflow.Set(key, key, result, rowCount, expiresAt)
	}
}

// Get returns the cached result for query+params, checking the
// in-memory tier first and falling back to the overflow tier (if
// attached) on a miss.
func (c *Cache) Get(query string, params []any) (*Entry, bool) {
	key := c.GenerateCacheKey(query, params)
	if e, ok := c.entries.Get(key); ok {
		return e, true
	}

	c.mu.RLock()
	overflow := c.overflow
	c.mu.RUnlock()
	if overflow == nil {
		return nil, false
	}

	result, rowCount, expiresAt, err := overflow.Get(key)
	if err != nil || time.Now().After(expiresAt) {
		return nil, false
	}

	e := &Entry{Result: result, RowCount: rowCount, ExpiresAt: expiresAt}
	c.entries.Set(key, e)
	return e, true
}

// InvalidateTable removes every cached entry known to have touched table
// and returns how many entries were removed.
func (c *Cache) InvalidateTable(table string) int {
	c.mu.Lock()
	keys, ok := c.tableIndex[table]
	delete(c.tableIndex, table)
	c.mu.Unlock()

	if !ok {
		return 0
	}
	for key := range keys {
		c.entries.Delete(key)
	}
	return len(keys)
}

// Stats wraps the underlying LRUCache stats with the number of distinct
// tables currently tracked for invalidation.
type Stats struct {
	cache.Stats
	CachedTables int `json:"cached_tables"`
}

// Stats returns a point-in-time snapshot.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	tables := len(c.tableIndex)
	c.mu.RUnlock()
	return Stats{Stats: c.entries.Stats(), CachedTables: tables}
}

var tableNameRe = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bFROM\s+([a-zA-Z_][a-zA-Z0-9_]*)`),
	regexp.MustCompile(`(?i)\bJOIN\s+([a-zA-Z_][a-zA-Z0-9_]*)`),
	regexp.MustCompile(`(?i)\bUPDATE\s+([a-zA-Z_][a-zA-Z0-9_]*)`),
	regexp.MustCompile(`(?i)\bINTO\s+([a-zA-Z_][a-zA-Z0-9_]*)`),
	regexp.MustCompile(`(?i)\bTABLE\s+([a-zA-Z_][a-zA-Z0-9_]*)`),
}

// sqlKeywords excludes common reserved words from the fallback table-name
// scan, so "SELECT * FROM x WHERE y = 1" doesn't report WHERE as a table.
var sqlKeywords = map[string]bool{
	"select": true, "from": true, "where": true, "join": true, "inner": true,
	"left": true, "right": true, "outer": true, "on": true, "and": true,
	"or": true, "not": true, "in": true, "as": true, "order": true, "by": true,
	"group": true, "having": true, "limit": true, "offset": true, "insert": true,
	"into": true, "values": true, "update": true, "set": true, "delete": true,
	"table": true, "create": true, "drop": true, "alter": true, "union": true,
	"all": true, "distinct": true, "null": true, "is": true, "like": true,
	"between": true, "exists": true, "case": true, "when": true, "then": true,
	"else": true, "end": true, "asc": true, "desc": true,
}

var wordRe = regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)

// ExtractTableNames conservatively finds table names referenced by a SQL
// statement: it first tries keyword-anchored patterns (FROM/JOIN/UPDATE/
// INTO/TABLE), then falls back to scanning remaining identifiers and
// excluding known keywords, deduplicating and sorting the result.
func ExtractTableNames(query string) []string {
	found := make(map[string]struct{})

	for _, re := range tableNameRe {
		for _, m := range re.FindAllStringSubmatch(query, -1) {
			found[strings.ToLower(m[1])] = struct{}{}
		}
	}

	if len(found) == 0 {
		for _, word := range wordRe.FindAllString(query, -1) {
			lower := strings.ToLower(word)
			if sqlKeywords[lower] {
				continue
			}
			found[lower] = struct{}{}
		}
	}

	names := make([]string, 0, len(found))
	for t := range found {
		names = append(names, t)
	}
	sort.Strings(names)
	return names
}
