package espresso

// StatementCache memoizes classification per line index. Programs are
// immutable for the lifetime of an interpreter, so an entry never goes stale.
// Only successful classifications are cached.
type StatementCache struct {
	entries map[int]Statement
	hits    int64
	misses  int64
}

// NewStatementCache creates an empty cache.
func NewStatementCache() *StatementCache {
	return &StatementCache{entries: make(map[int]Statement)}
}

// Get returns the cached statement for line index idx.
func (c *StatementCache) Get(idx int) (Statement, bool) {
	stmt, ok := c.entries[idx]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return stmt, ok
}

// Put stores the classification of line index idx.
func (c *StatementCache) Put(idx int, stmt Statement) {
	c.entries[idx] = stmt
}

// Stats returns hit and miss counts.
func (c *StatementCache) Stats() (hits, misses int64) {
	return c.hits, c.misses
}
