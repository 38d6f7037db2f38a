package store

import "sync"

// defaultCacheCap bounds the total number of cached fact lookups across all
// sessions. Past the cap the cache is cleared wholesale; entries are small and
// rebuilt on the next read, so simple beats clever here.
const defaultCacheCap = 4096

// factCache is a per-session read cache over the fact index. Negative results
// are cached too (present == false) so repeated misses skip the database.
type factCache struct {
	mu    sync.Mutex
	cap   int
	count int
	data  map[string]map[string]cachedFact
}

type cachedFact struct {
	fact    Fact
	present bool
}

func newFactCache(capacity int) *factCache {
	return &factCache{
		cap:  capacity,
		data: make(map[string]map[string]cachedFact),
	}
}

func (c *factCache) get(sessionID, key string) (Fact, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	session, ok := c.data[sessionID]
	if !ok {
		return Fact{}, false, false
	}
	entry, ok := session[key]
	if !ok {
		return Fact{}, false, false
	}
	return entry.fact, entry.present, true
}

func (c *factCache) put(sessionID, key string, fact Fact, present bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count >= c.cap {
		c.data = make(map[string]map[string]cachedFact)
		c.count = 0
	}
	session, ok := c.data[sessionID]
	if !ok {
		session = make(map[string]cachedFact)
		c.data[sessionID] = session
	}
	if _, exists := session[key]; !exists {
		c.count++
	}
	session[key] = cachedFact{fact: fact, present: present}
}

// invalidate drops every cached lookup for the session. Called on any fact or
// profile write so readers never see a stale value after their own write.
func (c *factCache) invalidate(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if session, ok := c.data[sessionID]; ok {
		c.count -= len(session)
		delete(c.data, sessionID)
	}
}
