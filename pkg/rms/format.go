package rms

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// File format constants shared by the allocator and the metadata layer.
const (
	// signature identifies a record store file.
	signature = "midp-rms"

	// headerSize is the fixed size of the store header at offset 0.
	headerSize = 48

	// blockHeaderSize is the fixed size of every block header.
	blockHeaderSize = 16

	// allocUnit is the granularity of every block size.
	allocUnit = 16

	// freeBlockID marks a block on the free list.
	freeBlockID = -1

	// compactChunk is the copy buffer size used when compaction moves blocks.
	compactChunk = 512

	// maxNameRunes is the longest store name accepted.
	maxNameRunes = 32
)

// Header field offsets (bytes from file start).
const (
	offSignature    = 0  // [8]byte
	offNumLive      = 8  // int32
	offAuthMode     = 12 // int32
	offVersion      = 16 // int32
	offNextID       = 20 // int32
	offFirstRecord  = 24 // int32
	offFirstFree    = 28 // int32
	offLastModified = 32 // int64, unix milliseconds
	offDataStart    = 40 // int32
	offDataEnd      = 44 // int32
)

// Block header field offsets (bytes from block start).
const (
	offBlockID      = 0  // int32, freeBlockID for free blocks
	offBlockNext    = 4  // int32, previous block in the record chain
	offBlockSize    = 8  // int32
	offBlockDataLen = 12 // int32, payload length or next free block
)

// initialVersion is the version of a store that has never been mutated.
// The first add, set or delete yields version 0.
const initialVersion = -1

// BlockOffset is the absolute file position of a block header.
//
// It is deliberately distinct from sizes, ids and lengths: offsets are only
// produced by the allocator and the metadata layer and only combined with
// block sizes through [BlockOffset.add].
type BlockOffset int32

// NoBlock terminates the record chain and the free list. Offset 0 always
// lies inside the store header, so no block can live there.
const NoBlock BlockOffset = 0

func (o BlockOffset) add(size int32) BlockOffset {
	return o + BlockOffset(size)
}

// payload returns the file position of the block's first payload byte.
func (o BlockOffset) payload() int64 {
	return int64(o) + blockHeaderSize
}

// allocationSize returns the block size needed for payloadLen bytes: the
// header plus payload, rounded up to the allocation unit. The second result
// is false if the size does not fit the on-disk int32 fields.
func allocationSize(payloadLen int) (int32, bool) {
	if payloadLen < 0 {
		return 0, false
	}

	n := int64(blockHeaderSize) + int64(payloadLen)
	n = (n + allocUnit - 1) / allocUnit * allocUnit

	if n > math.MaxInt32 {
		return 0, false
	}

	return int32(n), true
}

// storeHeader is the decoded 48-byte store header.
type storeHeader struct {
	NumLive      int32
	AuthMode     AuthMode
	Version      int32
	NextID       int32
	FirstRecord  BlockOffset
	FirstFree    BlockOffset
	LastModified int64
	DataStart    BlockOffset
	DataEnd      BlockOffset
}

// newStoreHeader returns the header of an empty store.
func newStoreHeader(mode AuthMode, nowMillis int64) storeHeader {
	return storeHeader{
		AuthMode:     mode,
		Version:      initialVersion,
		NextID:       1,
		FirstRecord:  NoBlock,
		FirstFree:    NoBlock,
		LastModified: nowMillis,
		DataStart:    headerSize,
		DataEnd:      headerSize,
	}
}

// encodeStoreHeader serializes the header to a 48-byte big-endian slice.
func encodeStoreHeader(h *storeHeader) []byte {
	buf := make([]byte, headerSize)

	copy(buf[offSignature:], signature)
	binary.BigEndian.PutUint32(buf[offNumLive:], uint32(h.NumLive))
	binary.BigEndian.PutUint32(buf[offAuthMode:], uint32(h.AuthMode))
	binary.BigEndian.PutUint32(buf[offVersion:], uint32(h.Version))
	binary.BigEndian.PutUint32(buf[offNextID:], uint32(h.NextID))
	binary.BigEndian.PutUint32(buf[offFirstRecord:], uint32(h.FirstRecord))
	binary.BigEndian.PutUint32(buf[offFirstFree:], uint32(h.FirstFree))
	binary.BigEndian.PutUint64(buf[offLastModified:], uint64(h.LastModified))
	binary.BigEndian.PutUint32(buf[offDataStart:], uint32(h.DataStart))
	binary.BigEndian.PutUint32(buf[offDataEnd:], uint32(h.DataEnd))

	return buf
}

// decodeStoreHeader parses and validates a store header.
// fileSize is the current length of the backing file.
//
// Returns [ErrCorrupt] if the signature does not match or any field is out
// of range.
func decodeStoreHeader(buf []byte, fileSize int64) (storeHeader, error) {
	if len(buf) < headerSize {
		return storeHeader{}, fmt.Errorf("header is %d bytes, want %d: %w", len(buf), headerSize, ErrCorrupt)
	}

	if !bytes.Equal(buf[offSignature:offSignature+len(signature)], []byte(signature)) {
		return storeHeader{}, fmt.Errorf("signature mismatch: %w", ErrCorrupt)
	}

	be := binary.BigEndian
	h := storeHeader{
		NumLive:      int32(be.Uint32(buf[offNumLive:])),
		AuthMode:     AuthMode(int32(be.Uint32(buf[offAuthMode:]))),
		Version:      int32(be.Uint32(buf[offVersion:])),
		NextID:       int32(be.Uint32(buf[offNextID:])),
		FirstRecord:  BlockOffset(int32(be.Uint32(buf[offFirstRecord:]))),
		FirstFree:    BlockOffset(int32(be.Uint32(buf[offFirstFree:]))),
		LastModified: int64(be.Uint64(buf[offLastModified:])),
		DataStart:    BlockOffset(int32(be.Uint32(buf[offDataStart:]))),
		DataEnd:      BlockOffset(int32(be.Uint32(buf[offDataEnd:]))),
	}

	switch {
	case !h.AuthMode.valid():
		return storeHeader{}, fmt.Errorf("auth mode %d: %w", h.AuthMode, ErrCorrupt)
	case h.NumLive < 0:
		return storeHeader{}, fmt.Errorf("record count %d: %w", h.NumLive, ErrCorrupt)
	case h.NextID < 1 || h.NumLive > h.NextID-1:
		return storeHeader{}, fmt.Errorf("next id %d with %d records: %w", h.NextID, h.NumLive, ErrCorrupt)
	case h.DataStart != headerSize:
		return storeHeader{}, fmt.Errorf("data start %d: %w", h.DataStart, ErrCorrupt)
	case h.DataEnd < h.DataStart || int64(h.DataEnd) > fileSize:
		return storeHeader{}, fmt.Errorf("data end %d outside [%d,%d]: %w", h.DataEnd, h.DataStart, fileSize, ErrCorrupt)
	case !h.inData(h.FirstRecord):
		return storeHeader{}, fmt.Errorf("first record offset %d: %w", h.FirstRecord, ErrCorrupt)
	case !h.inData(h.FirstFree):
		return storeHeader{}, fmt.Errorf("first free offset %d: %w", h.FirstFree, ErrCorrupt)
	}

	return h, nil
}

// inData reports whether off is NoBlock or a plausible block position.
func (h *storeHeader) inData(off BlockOffset) bool {
	if off == NoBlock {
		return true
	}

	return off >= h.DataStart && off < h.DataEnd && (off-h.DataStart)%allocUnit == 0
}

// blockHeader is the decoded 16-byte header of a block, plus its position.
//
// For a record block DataLen is the payload length. For a free block
// (ID == freeBlockID) the same field holds the offset of the next free
// block; use [blockHeader.nextFree].
type blockHeader struct {
	Offset  BlockOffset
	ID      RecordID
	Next    BlockOffset
	Size    int32
	DataLen int32
}

func (b *blockHeader) isFree() bool {
	return b.ID == freeBlockID
}

func (b *blockHeader) nextFree() BlockOffset {
	return BlockOffset(b.DataLen)
}

func (b *blockHeader) setNextFree(off BlockOffset) {
	b.DataLen = int32(off)
}

// capacity returns the largest payload the block can hold.
func (b *blockHeader) capacity() int {
	return int(b.Size) - blockHeaderSize
}

// end returns the offset just past the block.
func (b *blockHeader) end() BlockOffset {
	return b.Offset.add(b.Size)
}

func encodeBlockHeader(b *blockHeader) []byte {
	buf := make([]byte, blockHeaderSize)

	binary.BigEndian.PutUint32(buf[offBlockID:], uint32(int32(b.ID)))
	binary.BigEndian.PutUint32(buf[offBlockNext:], uint32(b.Next))
	binary.BigEndian.PutUint32(buf[offBlockSize:], uint32(b.Size))
	binary.BigEndian.PutUint32(buf[offBlockDataLen:], uint32(b.DataLen))

	return buf
}

// decodeBlockHeader parses the block header read at off and validates it
// against the store extent in h.
func decodeBlockHeader(buf []byte, off BlockOffset, h *storeHeader) (blockHeader, error) {
	be := binary.BigEndian
	b := blockHeader{
		Offset:  off,
		ID:      RecordID(int32(be.Uint32(buf[offBlockID:]))),
		Next:    BlockOffset(int32(be.Uint32(buf[offBlockNext:]))),
		Size:    int32(be.Uint32(buf[offBlockSize:])),
		DataLen: int32(be.Uint32(buf[offBlockDataLen:])),
	}

	switch {
	case b.ID == 0 || b.ID < freeBlockID:
		return blockHeader{}, fmt.Errorf("block at %d has id %d: %w", off, b.ID, ErrCorrupt)
	case b.Size < blockHeaderSize || b.Size%allocUnit != 0:
		return blockHeader{}, fmt.Errorf("block at %d has size %d: %w", off, b.Size, ErrCorrupt)
	case int64(off)+int64(b.Size) > int64(h.DataEnd):
		return blockHeader{}, fmt.Errorf("block at %d size %d overruns data end %d: %w", off, b.Size, h.DataEnd, ErrCorrupt)
	case b.Next != NoBlock && (b.Next >= off || !h.inData(b.Next)):
		return blockHeader{}, fmt.Errorf("block at %d links to %d: %w", off, b.Next, ErrCorrupt)
	case b.isFree() && !h.inData(b.nextFree()):
		return blockHeader{}, fmt.Errorf("free block at %d links to %d: %w", off, b.nextFree(), ErrCorrupt)
	case !b.isFree() && (b.DataLen < 0 || int(b.DataLen) > b.capacity()):
		return blockHeader{}, fmt.Errorf("block at %d holds %d bytes in %d: %w", off, b.DataLen, b.Size, ErrCorrupt)
	}

	return b, nil
}
