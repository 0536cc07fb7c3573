package notify

import "container/list"

// idCache is an LRU set of notification identifiers. It bounds the
// process-lifetime known-id state for very long sessions; with a
// non-positive capacity it never evicts.
type idCache struct {
	capacity int
	order    *list.List // front = most recently seen
	items    map[string]*list.Element
}

func newIDCache(capacity int) *idCache {
	return &idCache{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

// Contains reports whether id is in the set
func (c *idCache) Contains(id string) bool {
	_, ok := c.items[id]
	return ok
}

// Add inserts id, refreshing its recency and evicting the oldest entry
// when over capacity
func (c *idCache) Add(id string) {
	if elem, ok := c.items[id]; ok {
		c.order.MoveToFront(elem)
		return
	}

	c.items[id] = c.order.PushFront(id)

	if c.capacity > 0 && c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(string))
		}
	}
}

// Len returns the number of ids in the set
func (c *idCache) Len() int {
	return c.order.Len()
}

// Clear empties the set
func (c *idCache) Clear() {
	c.order.Init()
	c.items = make(map[string]*list.Element)
}
