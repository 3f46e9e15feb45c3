package rms

// headerCache is a direct-mapped cache of recently touched record block
// headers, keyed by record id.
//
// Slot i holds at most one header, for some id with id % len(slots) == i.
// A slot holding a different id is a miss; inserting always overwrites.
// Every miss falls back to walking the record chain, so a stale or evicted
// entry costs a walk, never a wrong answer, as long as callers invalidate
// an id whenever its block moves or is freed.
type headerCache struct {
	slots  []blockHeader
	hits   uint64
	misses uint64
}

func newHeaderCache(size int) *headerCache {
	return &headerCache{slots: make([]blockHeader, size)}
}

func (c *headerCache) slot(id RecordID) int {
	return int(id) % len(c.slots)
}

// get returns the cached header for id.
func (c *headerCache) get(id RecordID) (blockHeader, bool) {
	if id < 1 {
		return blockHeader{}, false
	}

	b := c.slots[c.slot(id)]
	if b.ID != id {
		c.misses++

		return blockHeader{}, false
	}

	c.hits++

	return b, true
}

// insert caches a record block header, evicting whatever shared its slot.
// Free blocks are never cached.
func (c *headerCache) insert(b blockHeader) {
	if b.ID < 1 {
		return
	}

	c.slots[c.slot(b.ID)] = b
}

// invalidate drops id's entry if it is the one currently cached.
func (c *headerCache) invalidate(id RecordID) {
	if id < 1 {
		return
	}

	i := c.slot(id)
	if c.slots[i].ID == id {
		c.slots[i] = blockHeader{}
	}
}

// reset drops every entry. Used after compaction moves blocks.
func (c *headerCache) reset() {
	clear(c.slots)
}
