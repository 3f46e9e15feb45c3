package rms

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

// Store is one open handle on a record store.
//
// Handles opened for the same identity share a single store instance, so
// every handle observes every other handle's changes immediately. Each
// handle must be closed exactly once; the instance is finalized when its
// last handle closes.
//
// All methods are safe for concurrent use. Every method on a closed handle
// returns [ErrNotOpen].
type Store struct {
	rs     *recordStore
	reg    *Registry
	caller AppID
	closed atomic.Bool
}

// acquire locks the instance. Callers must unlock rs.mu when err is nil.
func (s *Store) acquire() (*recordStore, error) {
	rs := s.rs

	rs.mu.Lock()

	if s.closed.Load() || rs.closed {
		rs.mu.Unlock()

		return nil, ErrNotOpen
	}

	return rs, nil
}

// checkWrite reports whether this handle may mutate the store.
func (s *Store) checkWrite(rs *recordStore) error {
	if s.caller == rs.id.Owner || rs.hdr.AuthMode == AuthAny {
		return nil
	}

	return fmt.Errorf("%s writing %s (mode %v): %w", s.caller, rs.id, rs.hdr.AuthMode, ErrUnauthorized)
}

// Identity returns the store's owner and name. It is valid after Close.
func (s *Store) Identity() Identity {
	return s.rs.id
}

// Name returns the store name. It is valid after Close.
func (s *Store) Name() string {
	return s.rs.id.Name
}

// Add stores a copy of data as a new record and returns its id.
//
// Ids are issued in increasing order and never reused. A nil or empty
// slice adds a zero-length record.
//
// Possible errors: [ErrNotOpen], [ErrUnauthorized], [ErrFull], [ErrIO],
// [ErrCorrupt].
func (s *Store) Add(data []byte) (RecordID, error) {
	rs, err := s.acquire()
	if err != nil {
		return 0, err
	}
	defer rs.mu.Unlock()

	err = s.checkWrite(rs)
	if err != nil {
		return 0, err
	}

	if rs.hdr.NextID == math.MaxInt32 {
		return 0, fmt.Errorf("record ids exhausted: %w", ErrFull)
	}

	id := RecordID(rs.hdr.NextID)
	saved := rs.hdr

	b, err := rs.allocate(id, len(data))
	if err == nil {
		err = rs.writePayload(&b, data)
	}

	if err == nil {
		err = rs.writeBlockHeader(&b)
	}

	if err != nil {
		rs.rollback(saved, err)

		return 0, err
	}

	rs.cache.insert(b)
	rs.hdr.NumLive++
	rs.hdr.NextID++
	rs.touch()

	err = rs.flush()
	if err != nil {
		return 0, err
	}

	rs.notify.recordAdded(s, id)

	return id, nil
}

// Delete removes record id. The id is never issued again.
//
// Possible errors: [ErrNotOpen], [ErrUnauthorized], [ErrInvalidRecordID],
// [ErrIO], [ErrCorrupt].
func (s *Store) Delete(id RecordID) error {
	rs, err := s.acquire()
	if err != nil {
		return err
	}
	defer rs.mu.Unlock()

	err = s.checkWrite(rs)
	if err != nil {
		return err
	}

	b, err := rs.findRecord(id)
	if err != nil {
		return err
	}

	saved := rs.hdr

	err = rs.free(b)
	if err != nil {
		rs.rollback(saved, err)

		return err
	}

	rs.hdr.NumLive--
	rs.touch()

	err = rs.flush()
	if err != nil {
		return err
	}

	rs.notify.recordDeleted(s, id)

	return nil
}

// Set replaces the payload of record id with a copy of data.
//
// A payload that fits the record's current block is rewritten in place.
// Otherwise the record moves to a newly allocated block under the same id
// and the old block is freed.
//
// Possible errors: [ErrNotOpen], [ErrUnauthorized], [ErrInvalidRecordID],
// [ErrFull], [ErrIO], [ErrCorrupt].
func (s *Store) Set(id RecordID, data []byte) error {
	rs, err := s.acquire()
	if err != nil {
		return err
	}
	defer rs.mu.Unlock()

	err = s.checkWrite(rs)
	if err != nil {
		return err
	}

	old, err := rs.findRecord(id)
	if err != nil {
		return err
	}

	if len(data) <= old.capacity() {
		err = rs.setInPlace(old, data)
	} else {
		err = rs.relocate(old, data)
	}

	if err != nil {
		return err
	}

	rs.touch()

	err = rs.flush()
	if err != nil {
		return err
	}

	rs.notify.recordChanged(s, id)

	return nil
}

func (rs *recordStore) setInPlace(b blockHeader, data []byte) error {
	b.DataLen = int32(len(data))

	err := rs.writePayload(&b, data)
	if err == nil {
		err = rs.writeBlockHeader(&b)
	}

	if err != nil {
		// The payload may be partially overwritten; nothing to restore.
		rs.cache.invalidate(b.ID)

		return err
	}

	rs.cache.insert(b)

	return nil
}

// relocate moves record old.ID into a new block holding data.
//
// If freeing the old block fails after the new one is committed, both
// blocks carry the id on disk until the store is deleted.
func (rs *recordStore) relocate(old blockHeader, data []byte) error {
	saved := rs.hdr

	b, err := rs.allocate(old.ID, len(data))
	if err == nil {
		err = rs.writePayload(&b, data)
	}

	if err == nil {
		err = rs.writeBlockHeader(&b)
	}

	if err != nil {
		rs.rollback(saved, err)

		return err
	}

	// Splitting the reused block may have relinked old.
	cur, err := rs.readBlockHeader(old.Offset)
	if err == nil {
		err = rs.free(cur)
	}

	if err != nil {
		rs.cache.invalidate(old.ID)

		return err
	}

	rs.cache.insert(b)

	return nil
}

// Get returns a copy of record id's payload. A zero-length record yields
// a nil slice.
//
// Possible errors: [ErrNotOpen], [ErrInvalidRecordID], [ErrIO],
// [ErrCorrupt].
func (s *Store) Get(id RecordID) ([]byte, error) {
	rs, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer rs.mu.Unlock()

	b, err := rs.findRecord(id)
	if err != nil {
		return nil, err
	}

	if b.DataLen == 0 {
		return nil, nil
	}

	buf := make([]byte, b.DataLen)

	err = rs.readAt(buf, b.Offset.payload())
	if err != nil {
		return nil, err
	}

	return buf, nil
}

// GetInto copies record id's payload into buf starting at offset and
// returns the number of bytes copied.
//
// Returns [ErrInvalidInput] if offset is outside buf or the payload does
// not fit in buf[offset:].
func (s *Store) GetInto(id RecordID, buf []byte, offset int) (int, error) {
	if offset < 0 || offset > len(buf) {
		return 0, fmt.Errorf("offset %d outside buffer of %d bytes: %w", offset, len(buf), ErrInvalidInput)
	}

	rs, err := s.acquire()
	if err != nil {
		return 0, err
	}
	defer rs.mu.Unlock()

	b, err := rs.findRecord(id)
	if err != nil {
		return 0, err
	}

	n := int(b.DataLen)
	if n > len(buf)-offset {
		return 0, fmt.Errorf("record %d is %d bytes, buffer has room for %d: %w", id, n, len(buf)-offset, ErrInvalidInput)
	}

	err = rs.readAt(buf[offset:offset+n], b.Offset.payload())
	if err != nil {
		return 0, err
	}

	return n, nil
}

// Size returns the payload length of record id.
func (s *Store) Size(id RecordID) (int, error) {
	rs, err := s.acquire()
	if err != nil {
		return 0, err
	}
	defer rs.mu.Unlock()

	b, err := rs.findRecord(id)
	if err != nil {
		return 0, err
	}

	return int(b.DataLen), nil
}

// Count returns the number of live records.
func (s *Store) Count() (int, error) {
	rs, err := s.acquire()
	if err != nil {
		return 0, err
	}
	defer rs.mu.Unlock()

	return int(rs.hdr.NumLive), nil
}

// TotalBytes returns the size of the store in bytes: the header plus every
// block, free ones included.
func (s *Store) TotalBytes() (int, error) {
	rs, err := s.acquire()
	if err != nil {
		return 0, err
	}
	defer rs.mu.Unlock()

	return int(rs.hdr.DataEnd), nil
}

// BytesAvailable returns the largest payload that could be appended right
// now without exceeding the space limit. Free blocks are not counted.
func (s *Store) BytesAvailable() (int, error) {
	rs, err := s.acquire()
	if err != nil {
		return 0, err
	}
	defer rs.mu.Unlock()

	avail, err := rs.spaceAvailable()
	if err != nil {
		return 0, err
	}

	room := avail/allocUnit*allocUnit - blockHeaderSize

	return int(max(room, 0)), nil
}

// Version returns the store's modification counter. It increases by one on
// every successful Add, Set or Delete and starts at -1.
func (s *Store) Version() (int, error) {
	rs, err := s.acquire()
	if err != nil {
		return 0, err
	}
	defer rs.mu.Unlock()

	return int(rs.hdr.Version), nil
}

// LastModified returns the time of the last successful mutation, or of
// creation if there was none.
func (s *Store) LastModified() (time.Time, error) {
	rs, err := s.acquire()
	if err != nil {
		return time.Time{}, err
	}
	defer rs.mu.Unlock()

	return time.UnixMilli(rs.hdr.LastModified), nil
}

// NextID returns the id the next Add will issue.
func (s *Store) NextID() (RecordID, error) {
	rs, err := s.acquire()
	if err != nil {
		return 0, err
	}
	defer rs.mu.Unlock()

	return RecordID(rs.hdr.NextID), nil
}

// Mode returns the persisted authorization mode.
func (s *Store) Mode() (AuthMode, error) {
	rs, err := s.acquire()
	if err != nil {
		return 0, err
	}
	defer rs.mu.Unlock()

	return rs.hdr.AuthMode, nil
}

// SetMode changes who may open and write the store. Only the owning
// application may call it. See [Registry.SetMode].
func (s *Store) SetMode(mode AuthMode, writable bool) error {
	return s.reg.SetMode(s, mode, writable)
}

// AllIDs returns the ids of every live record. The order is unspecified.
func (s *Store) AllIDs() ([]RecordID, error) {
	rs, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer rs.mu.Unlock()

	ids := make([]RecordID, 0, rs.hdr.NumLive)

	err = rs.walkBlocks(func(b blockHeader) bool {
		if !b.isFree() {
			ids = append(ids, b.ID)
		}

		return true
	})
	if err != nil {
		return nil, err
	}

	if len(ids) != int(rs.hdr.NumLive) {
		return nil, fmt.Errorf("chain holds %d records, header says %d: %w", len(ids), rs.hdr.NumLive, ErrCorrupt)
	}

	return ids, nil
}

// Info returns a snapshot of the store header and its space usage.
func (s *Store) Info() (Info, error) {
	rs, err := s.acquire()
	if err != nil {
		return Info{}, err
	}
	defer rs.mu.Unlock()

	blocks, bytes, err := rs.freeStats()
	if err != nil {
		return Info{}, err
	}

	return Info{
		Identity:     rs.id,
		AuthMode:     rs.hdr.AuthMode,
		Version:      int(rs.hdr.Version),
		Count:        int(rs.hdr.NumLive),
		NextID:       RecordID(rs.hdr.NextID),
		TotalBytes:   int(rs.hdr.DataEnd),
		DataStart:    rs.hdr.DataStart,
		DataEnd:      rs.hdr.DataEnd,
		FirstRecord:  rs.hdr.FirstRecord,
		FreeBlocks:   blocks,
		FreeBytes:    bytes,
		LastModified: time.UnixMilli(rs.hdr.LastModified),
		CacheHits:    rs.cache.hits,
		CacheMisses:  rs.cache.misses,
	}, nil
}

// Compact removes free space from the store now instead of at the last
// close. Record ids and contents are unchanged and the version is not
// bumped. Requires write access.
func (s *Store) Compact() error {
	rs, err := s.acquire()
	if err != nil {
		return err
	}
	defer rs.mu.Unlock()

	err = s.checkWrite(rs)
	if err != nil {
		return err
	}

	if rs.hdr.FirstFree == NoBlock {
		return nil
	}

	err = rs.compact()
	if err != nil {
		return err
	}

	return rs.flush()
}

// AddListener registers l for change notifications on this store. All
// handles of the store share one listener list. Adding a listener twice
// has no effect.
//
// Returns [ErrInvalidInput] if l is nil or its dynamic type is not
// comparable.
func (s *Store) AddListener(l Listener) error {
	if !comparableListener(l) {
		return fmt.Errorf("listener %T is not comparable: %w", l, ErrInvalidInput)
	}

	rs, err := s.acquire()
	if err != nil {
		return err
	}
	defer rs.mu.Unlock()

	rs.notify.add(l)

	return nil
}

// RemoveListener unregisters l. Removing a listener that was never added
// has no effect.
func (s *Store) RemoveListener(l Listener) error {
	rs, err := s.acquire()
	if err != nil {
		return err
	}
	defer rs.mu.Unlock()

	if comparableListener(l) {
		rs.notify.remove(l)
	}

	return nil
}

// Close releases this handle. See [Registry.Close].
func (s *Store) Close() error {
	return s.reg.Close(s)
}

