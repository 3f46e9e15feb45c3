package rms

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/calvinalkan/rms/pkg/fs"
)

// DefaultHeaderCacheSize is the number of record headers cached per store
// when [Options.HeaderCacheSize] is zero.
const DefaultHeaderCacheSize = 16

// Options configures a [Registry].
type Options struct {
	// Dir is the root directory holding every application's stores.
	// Required.
	Dir string

	// FS is the filesystem stores live on. Defaults to [fs.NewReal].
	FS fs.FS

	// HeaderCacheSize is the number of record headers each open store
	// caches. Defaults to [DefaultHeaderCacheSize].
	HeaderCacheSize int

	// QuotaBytes caps the file size of each store. Zero means no cap
	// beyond the filesystem's free space.
	QuotaBytes int64

	// Logger receives structured diagnostics. Nil disables logging.
	Logger *zerolog.Logger

	// Now returns the current time for lastModified stamps. Defaults to
	// [time.Now].
	Now func() time.Time
}

// Registry maps store identities to their single live instance and tracks
// how many handles each instance has open.
//
// Lock order: the registry mutex is always taken before a store's mutex.
type Registry struct {
	dir       string
	fsys      fs.FS
	cacheSize int
	quota     int64
	log       zerolog.Logger
	now       func() time.Time

	mu     sync.Mutex
	stores map[Identity]*recordStore
}

// NewRegistry returns a registry rooted at opts.Dir.
func NewRegistry(opts Options) (*Registry, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("store directory is required: %w", ErrInvalidInput)
	}

	if opts.HeaderCacheSize < 0 {
		return nil, fmt.Errorf("header cache size %d: %w", opts.HeaderCacheSize, ErrInvalidInput)
	}

	if opts.QuotaBytes < 0 {
		return nil, fmt.Errorf("quota %d: %w", opts.QuotaBytes, ErrInvalidInput)
	}

	r := &Registry{
		dir:       opts.Dir,
		fsys:      opts.FS,
		cacheSize: opts.HeaderCacheSize,
		quota:     opts.QuotaBytes,
		log:       zerolog.Nop(),
		now:       opts.Now,
		stores:    make(map[Identity]*recordStore),
	}

	if r.fsys == nil {
		r.fsys = fs.NewReal()
	}

	if r.cacheSize == 0 {
		r.cacheSize = DefaultHeaderCacheSize
	}

	if opts.Logger != nil {
		r.log = *opts.Logger
	}

	if r.now == nil {
		r.now = time.Now
	}

	return r, nil
}

// Dir returns the registry's root directory.
func (r *Registry) Dir() string {
	return r.dir
}

// OpenOwn opens the store name owned by app, creating it when create is
// true and no file exists yet. mode and writable set the authorization
// mode of a newly created store and are ignored otherwise.
//
// Opening an identity that is already open returns a new handle on the
// same instance.
//
// Possible errors: [ErrInvalidInput], [ErrNotFound], [ErrCorrupt],
// [ErrFull], [ErrIO].
func (r *Registry) OpenOwn(app AppID, name string, create bool, mode AuthMode, writable bool) (*Store, error) {
	persisted, err := resolveAuthMode(mode, writable)
	if err != nil {
		return nil, err
	}

	id, err := newIdentity(app, name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rs, ok := r.stores[id]
	if !ok {
		rs, err = r.openFile(id, create, persisted)
		if err != nil {
			return nil, err
		}

		r.stores[id] = rs
	}

	return r.newHandle(rs, app), nil
}

// OpenPrivate opens an existing store owned by app without creating it.
func (r *Registry) OpenPrivate(app AppID, name string) (*Store, error) {
	return r.OpenOwn(app, name, false, AuthPrivate, false)
}

// OpenShared opens the existing store name owned by owner on behalf of
// caller. A caller that is the owner gets an ordinary own open. Any other
// caller needs the store's mode to be [AuthAny] or [AuthAnyReadOnly].
//
// Possible errors: [ErrInvalidInput], [ErrNotFound], [ErrUnauthorized],
// [ErrCorrupt], [ErrIO].
func (r *Registry) OpenShared(caller AppID, name string, owner AppID) (*Store, error) {
	if caller == owner {
		return r.OpenPrivate(caller, name)
	}

	if caller.Vendor == "" || caller.Suite == "" {
		return nil, fmt.Errorf("application %q: vendor and suite must be non-empty: %w", caller, ErrInvalidInput)
	}

	id, err := newIdentity(owner, name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if rs, ok := r.stores[id]; ok {
		rs.mu.Lock()
		mode := rs.hdr.AuthMode
		rs.mu.Unlock()

		if mode == AuthPrivate {
			return nil, fmt.Errorf("%s opening %s: %w", caller, id, ErrUnauthorized)
		}

		return r.newHandle(rs, caller), nil
	}

	rs, err := r.openFile(id, false, AuthPrivate)
	if err != nil {
		return nil, err
	}

	if rs.hdr.AuthMode == AuthPrivate {
		// Loaded only to read the mode; nothing was changed.
		closeErr := rs.file.Close()
		if closeErr != nil {
			rs.log.Debug().Err(closeErr).Msg("closing store refused to shared open")
		}

		return nil, fmt.Errorf("%s opening %s: %w", caller, id, ErrUnauthorized)
	}

	r.stores[id] = rs

	return r.newHandle(rs, caller), nil
}

// SetMode changes the authorization mode of the store behind s. Only the
// owning application may change it. The mode is persisted immediately and
// does not count as a mutation.
//
// Handles already open by other applications stay open; the new mode
// governs their subsequent writes and any later opens.
//
// Possible errors: [ErrNotOpen], [ErrUnauthorized], [ErrInvalidInput],
// [ErrIO].
func (r *Registry) SetMode(s *Store, mode AuthMode, writable bool) error {
	persisted, err := resolveAuthMode(mode, writable)
	if err != nil {
		return err
	}

	rs, err := s.acquire()
	if err != nil {
		return err
	}
	defer rs.mu.Unlock()

	if s.caller != rs.id.Owner {
		return fmt.Errorf("%s changing mode of %s: %w", s.caller, rs.id, ErrUnauthorized)
	}

	prev := rs.hdr.AuthMode
	rs.hdr.AuthMode = persisted

	err = rs.flush()
	if err != nil {
		rs.hdr.AuthMode = prev

		return err
	}

	rs.log.Info().Stringer("from", prev).Stringer("to", persisted).Msg("auth mode changed")

	return nil
}

// Close releases handle s. Closing the last handle of a store finalizes
// it: listeners are dropped, free space is compacted away, and the file is
// truncated and closed. Even if finalizing fails the handle and instance
// are gone.
//
// Returns [ErrNotOpen] if s was already closed.
func (r *Registry) Close(s *Store) error {
	if s.reg != r {
		return fmt.Errorf("store handle belongs to another registry: %w", ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !s.closed.CompareAndSwap(false, true) {
		return ErrNotOpen
	}

	rs := s.rs

	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.opens--
	if rs.opens > 0 {
		return nil
	}

	delete(r.stores, rs.id)

	rs.closed = true
	rs.notify.clear()

	err := rs.closeFile()
	if err != nil {
		rs.log.Warn().Err(err).Msg("store finalized with errors")

		return err
	}

	rs.log.Debug().Int32("size", int32(rs.hdr.DataEnd)).Msg("store closed")

	return nil
}

// Delete removes the store name owned by app.
//
// Possible errors: [ErrInvalidInput], [ErrStoreOpen], [ErrNotFound],
// [ErrIO].
func (r *Registry) Delete(app AppID, name string) error {
	id, err := newIdentity(app, name)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if rs, ok := r.stores[id]; ok && rs.opens > 0 {
		return fmt.Errorf("%s has %d open handles: %w", id, rs.opens, ErrStoreOpen)
	}

	path := storePath(r.dir, id)

	exists, err := r.fsys.Exists(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrIO, path, err)
	}

	if !exists {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}

	err = r.fsys.Remove(path)
	if err != nil {
		return fmt.Errorf("%w: remove %s: %w", ErrIO, path, err)
	}

	r.log.Info().Stringer("store", id).Msg("store deleted")

	return nil
}

// ListNames returns the names of every store owned by app, sorted.
func (r *Registry) ListNames(app AppID) ([]string, error) {
	if app.Vendor == "" || app.Suite == "" {
		return nil, fmt.Errorf("application %q: vendor and suite must be non-empty: %w", app, ErrInvalidInput)
	}

	dir := appDir(r.dir, app)

	entries, err := r.fsys.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", ErrIO, dir, err)
	}

	var names []string

	for _, e := range entries {
		base, ok := strings.CutSuffix(e.Name(), storeExt)
		if e.IsDir() || !ok {
			continue
		}

		name, ok := unescapeName(base)
		if !ok {
			continue
		}

		names = append(names, name)
	}

	slices.Sort(names)

	return names, nil
}

// newHandle registers one more open of rs. Callers hold r.mu.
func (r *Registry) newHandle(rs *recordStore, caller AppID) *Store {
	rs.opens++

	return &Store{rs: rs, reg: r, caller: caller}
}

// openFile creates or loads the backing file of id. Callers hold r.mu.
// A failed create leaves no file behind.
func (r *Registry) openFile(id Identity, create bool, mode AuthMode) (*recordStore, error) {
	path := storePath(r.dir, id)

	exists, err := r.fsys.Exists(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrIO, path, err)
	}

	rs := &recordStore{
		id:    id,
		path:  path,
		fsys:  r.fsys,
		cache: newHeaderCache(r.cacheSize),
		quota: r.quota,
		now:   r.now,
		log:   r.log.With().Stringer("store", id).Logger(),
	}

	switch {
	case exists:
		err = r.load(rs)
	case create:
		err = r.create(rs, mode)
	default:
		err = fmt.Errorf("%s: %w", id, ErrNotFound)
	}

	if err != nil {
		return nil, err
	}

	return rs, nil
}

func (r *Registry) load(rs *recordStore) error {
	f, err := r.fsys.OpenFile(rs.path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrIO, rs.path, err)
	}

	rs.file = f

	err = rs.load()
	if err != nil {
		_ = f.Close()

		if errors.Is(err, ErrCorrupt) {
			rs.log.Warn().Err(err).Msg("store file is corrupt")
		}

		return err
	}

	rs.log.Debug().
		Int32("records", rs.hdr.NumLive).
		Int32("version", rs.hdr.Version).
		Msg("store loaded")

	return nil
}

func (r *Registry) create(rs *recordStore, mode AuthMode) error {
	dir := appDir(r.dir, rs.id.Owner)

	err := r.fsys.MkdirAll(dir, 0o755)
	if err != nil {
		return fmt.Errorf("%w: mkdir %s: %w", ErrIO, dir, err)
	}

	avail, err := r.fsys.SpaceAvailable(dir)
	if err != nil {
		return fmt.Errorf("%w: query free space: %w", ErrIO, err)
	}

	if avail < headerSize || r.quota > 0 && r.quota < headerSize {
		return fmt.Errorf("no room for a store header: %w", ErrFull)
	}

	f, err := r.fsys.OpenFile(rs.path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrIO, rs.path, err)
	}

	rs.file = f

	err = rs.initialize(mode)
	if err != nil {
		return errors.Join(err, f.Close(), r.fsys.Remove(rs.path))
	}

	rs.log.Info().Stringer("mode", mode).Msg("store created")

	return nil
}
