package presence

import (
	"fmt"
	"sort"
)

// Category names.
const (
	CategoryDevice       = "device"
	CategoryState        = "state"
	CategoryNote         = "note"
	CategoryCalendarData = "calendarData"
)

// Publication container numbers used by state and device categories.
const (
	containerEndpoint uint32 = 2
	containerSelf     uint32 = 3
	containerPrivate  uint32 = 1
)

// PubKey identifies one publication slot on the server.
type PubKey struct {
	Category  string
	Instance  uint32
	Container uint32
}

func (k PubKey) String() string {
	return fmt.Sprintf("<%s><%d><%d>", k.Category, k.Instance, k.Container)
}

// Publication is the cached copy of a server-side publication.
// Only the payload fields relevant to its category are set.
type Publication struct {
	Key     PubKey
	Version uint32

	Availability  int
	CalEventHash  string
	Note          string
	WorkingHours  string
	FreeBusyStart string
	FreeBusy      string

	// Unconfirmed marks content the server rejected; builders re-emit it.
	Unconfirmed bool
	// Cleared marks a slot this endpoint has cleared.
	Cleared bool
}

// Cache holds every publication this endpoint tracks, keyed by PubKey.
// It is not safe for concurrent use.
type Cache struct {
	entries map[PubKey]*Publication
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[PubKey]*Publication)}
}

// Get returns the cached publication for key, or nil.
func (c *Cache) Get(key PubKey) *Publication {
	return c.entries[key]
}

// Version returns the cached version for key, or 0 when absent.
func (c *Cache) Version(key PubKey) uint32 {
	if p := c.entries[key]; p != nil {
		return p.Version
	}
	return 0
}

// Put stores p, replacing any entry with the same key.
func (c *Cache) Put(p *Publication) {
	c.entries[p.Key] = p
}

// DropCategory removes every entry of a category.
func (c *Cache) DropCategory(category string) {
	for k := range c.entries {
		if k.Category == category {
			delete(c.entries, k)
		}
	}
}

// DropContainer removes every entry of a category within one container.
func (c *Cache) DropContainer(category string, container uint32) {
	for k := range c.entries {
		if k.Category == category && k.Container == container {
			delete(c.entries, k)
		}
	}
}

// CorrectVersion applies the server's version v to key after a request
// carrying version sent was rejected. While the entry still holds sent, v
// replaces it even when lower. An entry that moved past sent only rises. A
// missing entry is created with no payload.
func (c *Cache) CorrectVersion(key PubKey, sent, v uint32) {
	p := c.entries[key]
	if p == nil {
		c.entries[key] = &Publication{Key: key, Version: v}
		return
	}
	if p.Version == sent || v > p.Version {
		p.Version = v
	}
}

// restore puts back an entry saved before a failed send. A nil entry removes
// the key.
func (c *Cache) restore(key PubKey, p *Publication) {
	if p == nil {
		delete(c.entries, key)
		return
	}
	c.entries[key] = p
}

// MarkUnconfirmed flags the entry for key, if any.
func (c *Cache) MarkUnconfirmed(key PubKey) {
	if p := c.entries[key]; p != nil {
		p.Unconfirmed = true
	}
}

// Keys returns all cached keys in a stable order.
func (c *Cache) Keys() []PubKey {
	keys := make([]PubKey, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Instance != b.Instance {
			return a.Instance < b.Instance
		}
		return a.Container < b.Container
	})
	return keys
}

// Len returns the number of cached entries.
func (c *Cache) Len() int { return len(c.entries) }
