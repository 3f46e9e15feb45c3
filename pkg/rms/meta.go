package rms

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/calvinalkan/rms/pkg/fs"
)

// recordStore is the single live instance behind every [Store] handle for
// one backing file. All fields except opens are guarded by mu; opens is
// guarded by the owning Registry's mutex.
type recordStore struct {
	mu sync.Mutex

	id     Identity
	path   string
	fsys   fs.FS
	file   fs.File
	hdr    storeHeader
	cache  *headerCache
	notify notifier
	quota  int64
	now    func() time.Time
	log    zerolog.Logger

	opens  int
	closed bool
}

// initialize writes the header of a brand-new store.
func (rs *recordStore) initialize(mode AuthMode) error {
	rs.hdr = newStoreHeader(mode, rs.now().UnixMilli())

	return rs.flush()
}

// load reads and validates the header of an existing store.
func (rs *recordStore) load() error {
	info, err := rs.file.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat %s: %w", ErrIO, rs.path, err)
	}

	if info.Size() < headerSize {
		return fmt.Errorf("file size %d is less than header size %d: %w", info.Size(), headerSize, ErrCorrupt)
	}

	buf := make([]byte, headerSize)

	err = rs.readAt(buf, 0)
	if err != nil {
		return err
	}

	h, err := decodeStoreHeader(buf, info.Size())
	if err != nil {
		return err
	}

	rs.hdr = h

	return nil
}

// flush writes every header field at offset 0. A crash between a block
// write and the following flush can leave the two inconsistent.
func (rs *recordStore) flush() error {
	return rs.writeAt(encodeStoreHeader(&rs.hdr), 0)
}

// touch records a successful mutation.
func (rs *recordStore) touch() {
	rs.hdr.Version++
	rs.hdr.LastModified = rs.now().UnixMilli()
}

// rollback restores the header captured before a failed mutation. Blocks
// already unlinked on disk stay unreachable until the next compaction.
func (rs *recordStore) rollback(saved storeHeader, cause error) {
	rs.hdr = saved
	rs.cache.reset()

	rs.log.Warn().Err(cause).Msg("mutation failed, header restored")
}

// closeFile finalizes the store after its last handle closed: compact if
// the free list is non-empty, flush, truncate to the data extent, and
// release the file.
func (rs *recordStore) closeFile() error {
	var errs []error

	if rs.hdr.FirstFree != NoBlock {
		err := rs.compact()
		if err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		err := rs.flush()
		if err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		err := rs.file.Truncate(int64(rs.hdr.DataEnd))
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: truncate %s: %w", ErrIO, rs.path, err))
		}
	}

	err := rs.file.Close()
	if err != nil {
		errs = append(errs, fmt.Errorf("%w: close %s: %w", ErrIO, rs.path, err))
	}

	return errors.Join(errs...)
}

// readAt fills buf from off. A short read means the file ends inside a
// region the header claims, which is corruption rather than an I/O fault.
func (rs *recordStore) readAt(buf []byte, off int64) error {
	n, err := rs.file.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}

	if err == nil || errors.Is(err, io.EOF) {
		return fmt.Errorf("short read of %d/%d bytes at %d: %w", n, len(buf), off, ErrCorrupt)
	}

	return fmt.Errorf("%w: read %s at %d: %w", ErrIO, rs.path, off, err)
}

func (rs *recordStore) writeAt(buf []byte, off int64) error {
	_, err := rs.file.WriteAt(buf, off)
	if err != nil {
		return fmt.Errorf("%w: write %s at %d: %w", ErrIO, rs.path, off, err)
	}

	return nil
}
