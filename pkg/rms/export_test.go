package rms

// Export internal functions and variables for testing.
// This file is only compiled during tests.

// OpenCountForTesting returns how many handles are open on the store
// identified by (app, name). Returns (count, exists).
func OpenCountForTesting(r *Registry, app AppID, name string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rs, ok := r.stores[Identity{Owner: app, Name: name}]
	if !ok {
		return 0, false
	}

	return rs.opens, true
}

// SameInstanceForTesting reports whether two handles share one instance.
func SameInstanceForTesting(a, b *Store) bool {
	return a.rs == b.rs
}

// ListenerCountForTesting returns the number of listeners on s's instance.
func ListenerCountForTesting(s *Store) int {
	s.rs.mu.Lock()
	defer s.rs.mu.Unlock()

	return len(s.rs.notify.listeners)
}

// RecordOffsetForTesting returns the block offset of record id.
func RecordOffsetForTesting(s *Store, id RecordID) (BlockOffset, error) {
	rs, err := s.acquire()
	if err != nil {
		return 0, err
	}
	defer rs.mu.Unlock()

	b, err := rs.findRecord(id)
	if err != nil {
		return 0, err
	}

	return b.Offset, nil
}

// FirstFreeForTesting returns the head of the free list.
func FirstFreeForTesting(s *Store) BlockOffset {
	s.rs.mu.Lock()
	defer s.rs.mu.Unlock()

	return s.rs.hdr.FirstFree
}

// StorePathForTesting returns the canonical file path of (app, name).
func StorePathForTesting(r *Registry, app AppID, name string) string {
	return storePath(r.dir, Identity{Owner: app, Name: name})
}

// EscapeNameForTesting exposes the file name escape.
func EscapeNameForTesting(s string) string {
	return escapeName(s)
}

// UnescapeNameForTesting exposes the inverse of EscapeNameForTesting.
func UnescapeNameForTesting(s string) (string, bool) {
	return unescapeName(s)
}

// AllocationSizeForTesting exposes the block size rounding.
func AllocationSizeForTesting(payloadLen int) (int32, bool) {
	return allocationSize(payloadLen)
}

// Format constants.
const (
	HeaderSizeForTesting      = headerSize
	BlockHeaderSizeForTesting = blockHeaderSize
	AllocUnitForTesting       = allocUnit
	SignatureForTesting       = signature
)

// HeaderCacheForTesting wraps the header cache for black-box tests.
type HeaderCacheForTesting struct {
	c *headerCache
}

// NewHeaderCacheForTesting returns an empty cache with size slots.
func NewHeaderCacheForTesting(size int) *HeaderCacheForTesting {
	return &HeaderCacheForTesting{c: newHeaderCache(size)}
}

// Insert caches a record block header for id at off.
func (h *HeaderCacheForTesting) Insert(id RecordID, off BlockOffset) {
	h.c.insert(blockHeader{ID: id, Offset: off, Size: allocUnit * 2})
}

// Get returns the cached offset for id.
func (h *HeaderCacheForTesting) Get(id RecordID) (BlockOffset, bool) {
	b, ok := h.c.get(id)

	return b.Offset, ok
}

// Invalidate drops id if it is cached.
func (h *HeaderCacheForTesting) Invalidate(id RecordID) {
	h.c.invalidate(id)
}

// Reset drops every entry.
func (h *HeaderCacheForTesting) Reset() {
	h.c.reset()
}

// Stats returns (hits, misses).
func (h *HeaderCacheForTesting) Stats() (uint64, uint64) {
	return h.c.hits, h.c.misses
}
