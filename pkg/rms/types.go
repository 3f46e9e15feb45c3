package rms

import (
	"fmt"
	"time"
)

// RecordID is the stable handle of a record within one store.
//
// Ids are issued 1, 2, 3, ... and are never reused, even after the record
// holding one is deleted.
type RecordID int

// AppID identifies the application suite that owns a store.
type AppID struct {
	Vendor string
	Suite  string
}

func (a AppID) String() string {
	return a.Vendor + "/" + a.Suite
}

// Identity is the canonical identity of a store: its owning application
// plus its name. At most one live store instance exists per identity.
type Identity struct {
	Owner AppID
	Name  string
}

func (id Identity) String() string {
	return id.Owner.String() + "/" + id.Name
}

// AuthMode controls whether applications other than the owner may open a
// store, and whether they may write to it.
type AuthMode int32

const (
	// AuthPrivate allows access by the owning application only.
	AuthPrivate AuthMode = 0

	// AuthAny allows any application to open the store. Whether
	// non-owners may write is selected by the writable flag of
	// [Store.SetMode]; the persisted value for read-only sharing is
	// [AuthAnyReadOnly].
	AuthAny AuthMode = 1

	// AuthAnyReadOnly allows any application to open and read the store.
	// Only the owner may write.
	AuthAnyReadOnly AuthMode = 2
)

func (m AuthMode) valid() bool {
	return m == AuthPrivate || m == AuthAny || m == AuthAnyReadOnly
}

func (m AuthMode) String() string {
	switch m {
	case AuthPrivate:
		return "private"
	case AuthAny:
		return "any"
	case AuthAnyReadOnly:
		return "any-read-only"
	default:
		return fmt.Sprintf("AuthMode(%d)", int32(m))
	}
}

// resolveAuthMode maps the (mode, writable) pair of the public API to the
// persisted mode.
func resolveAuthMode(mode AuthMode, writable bool) (AuthMode, error) {
	switch mode {
	case AuthPrivate:
		return AuthPrivate, nil
	case AuthAny:
		if writable {
			return AuthAny, nil
		}

		return AuthAnyReadOnly, nil
	default:
		return 0, fmt.Errorf("auth mode %v: %w", mode, ErrInvalidInput)
	}
}

// Info is a consistent snapshot of a store's header and space usage.
type Info struct {
	Identity     Identity
	AuthMode     AuthMode
	Version      int
	Count        int
	NextID       RecordID
	TotalBytes   int
	DataStart    BlockOffset
	DataEnd      BlockOffset
	FirstRecord  BlockOffset
	FreeBlocks   int
	FreeBytes    int
	LastModified time.Time
	CacheHits    uint64
	CacheMisses  uint64
}
