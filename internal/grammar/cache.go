package grammar

import (
	"sync"

	"github.com/rs/zerolog"
)

// Cache compiles each distinct grammar text once and hands out independent
// cursors over the shared rule table.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*Rules
	log     zerolog.Logger
	hits    int
	misses  int
}

func NewCache(log zerolog.Logger) *Cache {
	return &Cache{entries: make(map[string]*Rules), log: log}
}

// Parse returns a fresh handle for src, compiling it on first use. Texts that
// differ only in line endings or surrounding whitespace share one entry.
// Failed compilations are not cached.
func (c *Cache) Parse(src string) (*Handle, error) {
	k := Normalize(src)
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.entries[k]; ok {
		c.hits++
		return NewHandle(r), nil
	}
	r, err := Compile(k)
	if err != nil {
		c.log.Warn().Err(err).Msg("grammar compile failed")
		return nil, err
	}
	c.misses++
	c.entries[k] = r
	c.log.Debug().Int("rules", r.Len()).Int("entries", len(c.entries)).Msg("grammar compiled")
	return NewHandle(r), nil
}

// Len returns the number of cached grammars.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns cache hit and miss counts.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Purge drops every cached grammar. Outstanding handles keep working.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Rules)
}
