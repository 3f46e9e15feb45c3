package rms

import "errors"

// Sentinel errors returned by rms operations.
//
// Callers should use [errors.Is] to check error types:
//
//	if errors.Is(err, rms.ErrNotFound) {
//	    // create the store instead
//	}
var (
	// ErrNotOpen indicates the [Store] handle was closed, or the store
	// instance behind it was finalized by its last close.
	//
	// This is a programming error.
	ErrNotOpen = errors.New("rms: not open")

	// ErrNotFound indicates an existing store was requested but its
	// backing file does not exist.
	ErrNotFound = errors.New("rms: store not found")

	// ErrFull indicates there is not enough space to allocate a block.
	//
	// The space limit is the smaller of the filesystem's free space and the
	// configured quota. Deleting records frees space for reuse.
	ErrFull = errors.New("rms: full")

	// ErrInvalidRecordID indicates the record id is non-positive, was never
	// issued, was deleted, or the store holds no records.
	ErrInvalidRecordID = errors.New("rms: invalid record id")

	// ErrUnauthorized indicates the caller does not own the store and the
	// store's authorization mode does not permit the requested access.
	ErrUnauthorized = errors.New("rms: unauthorized")

	// ErrCorrupt indicates the backing file is damaged: the signature does
	// not match, header fields are out of range, or a block chain is broken.
	//
	// Recovery: delete the store and recreate it.
	ErrCorrupt = errors.New("rms: corrupt")

	// ErrIO wraps failures of the underlying file. The original error stays
	// reachable through [errors.Is] and [errors.As].
	ErrIO = errors.New("rms: i/o failure")

	// ErrInvalidInput indicates invalid arguments: malformed store or
	// application names, bad buffer bounds, or an unknown auth mode.
	//
	// This is a programming error.
	ErrInvalidInput = errors.New("rms: invalid input")

	// ErrStoreOpen indicates a store cannot be deleted because at least one
	// handle to it is still open.
	ErrStoreOpen = errors.New("rms: store is open")
)
