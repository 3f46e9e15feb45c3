package rms

import (
	"fmt"
	"math"
	"path/filepath"
)

// Space management.
//
// The data region is a sequence of contiguous blocks from DataStart to
// DataEnd. Every block links (Next) to the block physically before it, so
// the record chain starting at FirstRecord visits every block from the end
// of the file back to DataStart. Free blocks stay on that chain and are
// additionally linked through the free list starting at FirstFree.
// FirstRecord is always the block ending at DataEnd.

// readBlockHeader reads and validates the block header at off.
func (rs *recordStore) readBlockHeader(off BlockOffset) (blockHeader, error) {
	if off == NoBlock || !rs.hdr.inData(off) {
		return blockHeader{}, fmt.Errorf("block offset %d outside data region: %w", off, ErrCorrupt)
	}

	buf := make([]byte, blockHeaderSize)

	err := rs.readAt(buf, int64(off))
	if err != nil {
		return blockHeader{}, err
	}

	return decodeBlockHeader(buf, off, &rs.hdr)
}

func (rs *recordStore) writeBlockHeader(b *blockHeader) error {
	return rs.writeAt(encodeBlockHeader(b), int64(b.Offset))
}

// writePayload writes data into b's payload area, zero-filling the rest of
// the block so the file always covers every block up to DataEnd.
func (rs *recordStore) writePayload(b *blockHeader, data []byte) error {
	if b.capacity() == 0 {
		return nil
	}

	buf := make([]byte, b.capacity())
	copy(buf, data)

	return rs.writeAt(buf, b.Offset.payload())
}

// maxSteps bounds free-list walks, which unlike the record chain are not
// ordered by offset.
func (rs *recordStore) maxSteps() int {
	return int(rs.hdr.DataEnd-rs.hdr.DataStart)/allocUnit + 1
}

// spaceAvailable returns how many bytes the data region may still grow by:
// the filesystem's free space, capped by the quota and the int32 format.
func (rs *recordStore) spaceAvailable() (int64, error) {
	avail, err := rs.fsys.SpaceAvailable(filepath.Dir(rs.path))
	if err != nil {
		return 0, fmt.Errorf("%w: query free space: %w", ErrIO, err)
	}

	if rs.quota > 0 {
		avail = min(avail, rs.quota-int64(rs.hdr.DataEnd))
	}

	avail = min(avail, math.MaxInt32-int64(rs.hdr.DataEnd))

	return max(avail, 0), nil
}

// allocate reserves a block for payloadLen bytes and tags it with id.
//
// The free list is searched first-fit. A fitting block is split when it is
// more than one allocation unit plus a header larger than needed; otherwise
// it is used whole. With no fit, a new block is appended at DataEnd and
// becomes the head of the record chain.
//
// The returned header is not written. Callers write the payload and then
// commit the header with writeBlockHeader, so a failure before the commit
// never leaves a tagged record block on disk.
func (rs *recordStore) allocate(id RecordID, payloadLen int) (blockHeader, error) {
	need, ok := allocationSize(payloadLen)
	if !ok {
		return blockHeader{}, fmt.Errorf("payload of %d bytes: %w", payloadLen, ErrFull)
	}

	fit, found, err := rs.firstFit(need)
	if err != nil {
		return blockHeader{}, err
	}

	if found {
		err = rs.removeFreeBlock(fit.Offset)
		if err != nil {
			return blockHeader{}, err
		}

		if fit.Size-need > allocUnit+blockHeaderSize {
			err = rs.split(&fit, need)
			if err != nil {
				return blockHeader{}, err
			}
		}

		fit.ID = id
		fit.DataLen = int32(payloadLen)

		return fit, nil
	}

	avail, err := rs.spaceAvailable()
	if err != nil {
		return blockHeader{}, err
	}

	if int64(need) > avail {
		return blockHeader{}, fmt.Errorf("need %d bytes, %d available: %w", need, avail, ErrFull)
	}

	b := blockHeader{
		Offset:  rs.hdr.DataEnd,
		ID:      id,
		Next:    rs.hdr.FirstRecord,
		Size:    need,
		DataLen: int32(payloadLen),
	}

	rs.hdr.DataEnd = b.end()
	rs.hdr.FirstRecord = b.Offset

	return b, nil
}

// firstFit returns the first free block of at least need bytes.
func (rs *recordStore) firstFit(need int32) (blockHeader, bool, error) {
	off := rs.hdr.FirstFree

	for range rs.maxSteps() {
		if off == NoBlock {
			return blockHeader{}, false, nil
		}

		b, err := rs.readBlockHeader(off)
		if err != nil {
			return blockHeader{}, false, err
		}

		if !b.isFree() {
			return blockHeader{}, false, fmt.Errorf("free list reaches record block at %d: %w", off, ErrCorrupt)
		}

		if b.Size >= need {
			return b, true, nil
		}

		off = b.nextFree()
	}

	return blockHeader{}, false, fmt.Errorf("free list cycle: %w", ErrCorrupt)
}

// removeFreeBlock unlinks the free block at target from the free list.
func (rs *recordStore) removeFreeBlock(target BlockOffset) error {
	var prev blockHeader

	hasPrev := false
	off := rs.hdr.FirstFree

	for range rs.maxSteps() {
		if off == NoBlock {
			break
		}

		b, err := rs.readBlockHeader(off)
		if err != nil {
			return err
		}

		if off == target {
			if !hasPrev {
				rs.hdr.FirstFree = b.nextFree()

				return nil
			}

			prev.setNextFree(b.nextFree())

			return rs.writeBlockHeader(&prev)
		}

		prev = b
		hasPrev = true
		off = b.nextFree()
	}

	return fmt.Errorf("free block %d not on free list: %w", target, ErrCorrupt)
}

// split shrinks b to need bytes and pushes the remainder onto the free
// list. The remainder is linked into the record chain between b and the
// block that follows it.
func (rs *recordStore) split(b *blockHeader, need int32) error {
	rem := blockHeader{
		Offset: b.Offset.add(need),
		ID:     freeBlockID,
		Next:   b.Offset,
		Size:   b.Size - need,
	}

	after := b.end()
	if after < rs.hdr.DataEnd {
		nb, err := rs.readBlockHeader(after)
		if err != nil {
			return err
		}

		nb.Next = rem.Offset

		err = rs.writeBlockHeader(&nb)
		if err != nil {
			return err
		}

		rs.cache.invalidate(nb.ID)
	} else {
		rs.hdr.FirstRecord = rem.Offset
	}

	b.Size = need

	return rs.pushFree(&rem)
}

// pushFree turns b into a free block at the head of the free list.
func (rs *recordStore) pushFree(b *blockHeader) error {
	b.ID = freeBlockID
	b.setNextFree(rs.hdr.FirstFree)

	err := rs.writeBlockHeader(b)
	if err != nil {
		return err
	}

	rs.hdr.FirstFree = b.Offset

	return nil
}

// free releases a record block. The head of the record chain is the last
// block in the file, so dropping it just retracts DataEnd and no free
// block is created. Any other block joins the free list.
func (rs *recordStore) free(b blockHeader) error {
	rs.cache.invalidate(b.ID)

	if b.Offset == rs.hdr.FirstRecord && b.end() == rs.hdr.DataEnd {
		rs.hdr.FirstRecord = b.Next
		rs.hdr.DataEnd = b.Offset

		return nil
	}

	return rs.pushFree(&b)
}

// walkBlocks visits every block on the record chain, newest first, until
// fn returns false. Chain links strictly decrease, so the walk terminates.
func (rs *recordStore) walkBlocks(fn func(b blockHeader) bool) error {
	for off := rs.hdr.FirstRecord; off != NoBlock; {
		b, err := rs.readBlockHeader(off)
		if err != nil {
			return err
		}

		if !fn(b) {
			return nil
		}

		off = b.Next
	}

	return nil
}

// findRecord returns the live block holding id, consulting the header
// cache before walking the record chain.
func (rs *recordStore) findRecord(id RecordID) (blockHeader, error) {
	if id < 1 || int64(id) >= int64(rs.hdr.NextID) || rs.hdr.NumLive == 0 {
		return blockHeader{}, fmt.Errorf("record %d: %w", id, ErrInvalidRecordID)
	}

	if b, ok := rs.cache.get(id); ok {
		return b, nil
	}

	var found blockHeader

	err := rs.walkBlocks(func(b blockHeader) bool {
		if b.ID == id {
			found = b

			return false
		}

		return true
	})
	if err != nil {
		return blockHeader{}, err
	}

	if found.ID != id {
		return blockHeader{}, fmt.Errorf("record %d: %w", id, ErrInvalidRecordID)
	}

	rs.cache.insert(found)

	return found, nil
}

// freeStats walks the free list.
func (rs *recordStore) freeStats() (blocks, bytes int, err error) {
	off := rs.hdr.FirstFree

	for range rs.maxSteps() {
		if off == NoBlock {
			return blocks, bytes, nil
		}

		b, err := rs.readBlockHeader(off)
		if err != nil {
			return 0, 0, err
		}

		blocks++
		bytes += int(b.Size)
		off = b.nextFree()
	}

	return 0, 0, fmt.Errorf("free list cycle: %w", ErrCorrupt)
}
