package fs

import (
	"errors"
	"math/rand/v2"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
)

// ChaosConfig controls fault injection probabilities.
// Each rate is a float64 from 0.0 (never) to 1.0 (always).
//
// The zero value disables all fault injection. Partially initialized configs
// only inject faults for the specified rates; unset fields default to 0.0.
type ChaosConfig struct {
	// ReadFailRate controls how often File.Read and File.ReadAt fail,
	// returning zero bytes and EIO.
	ReadFailRate float64

	// WriteFailRate controls how often File.Write and File.WriteAt fail
	// entirely, writing zero bytes and returning EIO, ENOSPC or EDQUOT.
	WriteFailRate float64

	// PartialWriteRate controls how often File.WriteAt writes only a prefix
	// of the buffer before failing with EIO.
	PartialWriteRate float64

	// TruncateFailRate controls how often File.Truncate fails with EIO.
	TruncateFailRate float64

	// SyncFailRate controls how often File.Sync fails with EIO.
	SyncFailRate float64

	// CloseFailRate controls how often File.Close reports EIO. The
	// underlying file is always closed.
	CloseFailRate float64

	// OpenFailRate controls how often FS.OpenFile fails with EACCES, EIO
	// or EMFILE.
	OpenFailRate float64

	// RemoveFailRate controls how often FS.Remove fails with EACCES or EIO.
	RemoveFailRate float64

	// SpaceFailRate controls how often FS.SpaceAvailable fails with EIO.
	SpaceFailRate float64
}

// ChaosMode controls how [Chaos] behaves.
type ChaosMode uint8

const (
	// ChaosModeActive enables fault-rate injection.
	// This is the default mode for a new [Chaos].
	ChaosModeActive ChaosMode = iota

	// ChaosModeNoOp passes every operation directly to the underlying FS.
	ChaosModeNoOp
)

// ChaosStats contains counts of injected faults.
type ChaosStats struct {
	OpenFails     int64
	ReadFails     int64
	WriteFails    int64
	PartialWrites int64
	TruncateFails int64
	SyncFails     int64
	CloseFails    int64
	RemoveFails   int64
	SpaceFails    int64
}

// chaosError marks an error as intentionally injected by [Chaos].
//
// It wraps the underlying error so errors.Is/As continue to work.
type chaosError struct {
	Err error
}

func (e *chaosError) Error() string {
	return "chaos: " + e.Err.Error()
}

func (e *chaosError) Unwrap() error {
	return e.Err
}

// IsChaosErr reports whether err (or any wrapped error) was injected by [Chaos].
// Returns false if err is nil.
func IsChaosErr(err error) bool {
	var injected *chaosError

	return errors.As(err, &injected)
}

// Chaos wraps an [FS] and injects failures for testing.
//
// Injected errors are [*fs.PathError] values carrying a real [syscall.Errno]
// wrapped in a marker type, so [errors.Is] against errno values keeps working
// and [IsChaosErr] can tell injected failures from real ones. Chaos never
// injects ENOENT; any not-exist result comes from the wrapped [FS].
//
// Use [Chaos.SetMode] to switch injection off between phases of a test.
type Chaos struct {
	fs     FS
	rng    *rand.Rand
	config ChaosConfig
	mode   atomic.Uint32

	rngMu sync.Mutex

	openFails     atomic.Int64
	readFails     atomic.Int64
	writeFails    atomic.Int64
	partialWrites atomic.Int64
	truncateFails atomic.Int64
	syncFails     atomic.Int64
	closeFails    atomic.Int64
	removeFails   atomic.Int64
	spaceFails    atomic.Int64
}

// NewChaos creates a new [Chaos] filesystem wrapping the given [FS].
// The seed controls random fault injection for reproducibility.
// Panics if underlying is nil.
func NewChaos(underlying FS, seed int64, config *ChaosConfig) *Chaos {
	if underlying == nil {
		panic("underlying fs is nil")
	}

	cfg := ChaosConfig{}
	if config != nil {
		cfg = *config
	}

	return &Chaos{
		fs:     underlying,
		rng:    rand.New(rand.NewPCG(uint64(seed), uint64(seed))), //nolint:gosec // deterministic test rng
		config: cfg,
	}
}

// SetMode updates [Chaos] behavior. Safe to call concurrently with
// filesystem operations.
func (c *Chaos) SetMode(m ChaosMode) { c.mode.Store(uint32(m)) }

// Stats returns the current fault injection counts.
func (c *Chaos) Stats() ChaosStats {
	return ChaosStats{
		OpenFails:     c.openFails.Load(),
		ReadFails:     c.readFails.Load(),
		WriteFails:    c.writeFails.Load(),
		PartialWrites: c.partialWrites.Load(),
		TruncateFails: c.truncateFails.Load(),
		SyncFails:     c.syncFails.Load(),
		CloseFails:    c.closeFails.Load(),
		RemoveFails:   c.removeFails.Load(),
		SpaceFails:    c.spaceFails.Load(),
	}
}

// TotalFaults returns the total number of injected faults.
func (c *Chaos) TotalFaults() int64 {
	s := c.Stats()

	return s.OpenFails + s.ReadFails + s.WriteFails + s.PartialWrites +
		s.TruncateFails + s.SyncFails + s.CloseFails + s.RemoveFails + s.SpaceFails
}

// OpenFile opens a file with fault injection.
func (c *Chaos) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	if c.should(c.config.OpenFailRate) {
		c.openFails.Add(1)

		return nil, c.inject("open", path, syscall.EACCES, syscall.EIO, syscall.EMFILE)
	}

	f, err := c.fs.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}

	return &chaosFile{f: f, path: path, chaos: c}, nil
}

// ReadFile is a passthrough; whole-file reads are not fault injected.
func (c *Chaos) ReadFile(path string) ([]byte, error) {
	return c.fs.ReadFile(path)
}

// WriteFileAtomic fails with the write fault rate, leaving path untouched.
func (c *Chaos) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if c.should(c.config.WriteFailRate) {
		c.writeFails.Add(1)

		return c.inject("write", path, syscall.EIO, syscall.ENOSPC)
	}

	return c.fs.WriteFileAtomic(path, data, perm)
}

// ReadDir is a passthrough.
func (c *Chaos) ReadDir(path string) ([]os.DirEntry, error) {
	return c.fs.ReadDir(path)
}

// MkdirAll is a passthrough.
func (c *Chaos) MkdirAll(path string, perm os.FileMode) error {
	return c.fs.MkdirAll(path, perm)
}

// Stat is a passthrough.
func (c *Chaos) Stat(path string) (os.FileInfo, error) {
	return c.fs.Stat(path)
}

// Exists is a passthrough.
func (c *Chaos) Exists(path string) (bool, error) {
	return c.fs.Exists(path)
}

// Remove removes a file with fault injection.
func (c *Chaos) Remove(path string) error {
	if c.should(c.config.RemoveFailRate) {
		c.removeFails.Add(1)

		return c.inject("remove", path, syscall.EACCES, syscall.EIO)
	}

	return c.fs.Remove(path)
}

// SpaceAvailable queries free space with fault injection.
func (c *Chaos) SpaceAvailable(path string) (int64, error) {
	if c.should(c.config.SpaceFailRate) {
		c.spaceFails.Add(1)

		return 0, c.inject("statfs", path, syscall.EIO)
	}

	return c.fs.SpaceAvailable(path)
}

func (c *Chaos) should(rate float64) bool {
	if ChaosMode(c.mode.Load()) == ChaosModeNoOp || rate <= 0 {
		return false
	}

	if rate >= 1 {
		return true
	}

	c.rngMu.Lock()
	defer c.rngMu.Unlock()

	return c.rng.Float64() < rate
}

func (c *Chaos) randIntn(n int) int {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()

	return c.rng.IntN(n)
}

func (c *Chaos) inject(op, path string, errs ...syscall.Errno) error {
	errno := errs[c.randIntn(len(errs))]

	return &chaosError{Err: &os.PathError{Op: op, Path: path, Err: errno}}
}

// chaosFile wraps a [File] and injects per-call failures.
type chaosFile struct {
	f     File
	path  string
	chaos *Chaos
}

func (cf *chaosFile) Read(buf []byte) (int, error) {
	if cf.chaos.should(cf.chaos.config.ReadFailRate) {
		cf.chaos.readFails.Add(1)

		return 0, cf.chaos.inject("read", cf.path, syscall.EIO)
	}

	return cf.f.Read(buf)
}

func (cf *chaosFile) ReadAt(buf []byte, off int64) (int, error) {
	if cf.chaos.should(cf.chaos.config.ReadFailRate) {
		cf.chaos.readFails.Add(1)

		return 0, cf.chaos.inject("read", cf.path, syscall.EIO)
	}

	return cf.f.ReadAt(buf, off)
}

func (cf *chaosFile) Write(data []byte) (int, error) {
	if cf.chaos.should(cf.chaos.config.WriteFailRate) {
		cf.chaos.writeFails.Add(1)

		return 0, cf.chaos.inject("write", cf.path, syscall.EIO, syscall.ENOSPC, syscall.EDQUOT)
	}

	return cf.f.Write(data)
}

func (cf *chaosFile) WriteAt(data []byte, off int64) (int, error) {
	if cf.chaos.should(cf.chaos.config.WriteFailRate) {
		cf.chaos.writeFails.Add(1)

		return 0, cf.chaos.inject("write", cf.path, syscall.EIO, syscall.ENOSPC, syscall.EDQUOT)
	}

	if len(data) > 1 && cf.chaos.should(cf.chaos.config.PartialWriteRate) {
		cf.chaos.partialWrites.Add(1)
		cutoff := cf.chaos.randIntn(len(data)-1) + 1 // [1, len(data)-1]

		wrote, err := cf.f.WriteAt(data[:cutoff], off)
		if err != nil {
			return wrote, err
		}

		return wrote, cf.chaos.inject("write", cf.path, syscall.EIO)
	}

	return cf.f.WriteAt(data, off)
}

func (cf *chaosFile) Seek(offset int64, whence int) (int64, error) {
	return cf.f.Seek(offset, whence)
}

func (cf *chaosFile) Stat() (os.FileInfo, error) {
	return cf.f.Stat()
}

func (cf *chaosFile) Sync() error {
	if cf.chaos.should(cf.chaos.config.SyncFailRate) {
		cf.chaos.syncFails.Add(1)

		return cf.chaos.inject("sync", cf.path, syscall.EIO)
	}

	return cf.f.Sync()
}

func (cf *chaosFile) Truncate(size int64) error {
	if cf.chaos.should(cf.chaos.config.TruncateFailRate) {
		cf.chaos.truncateFails.Add(1)

		return cf.chaos.inject("truncate", cf.path, syscall.EIO)
	}

	return cf.f.Truncate(size)
}

func (cf *chaosFile) Close() error {
	err := cf.f.Close()
	if err != nil {
		return err
	}

	if cf.chaos.should(cf.chaos.config.CloseFailRate) {
		cf.chaos.closeFails.Add(1)

		return cf.chaos.inject("close", cf.path, syscall.EIO)
	}

	return nil
}

// Compile-time interface checks.
var (
	_ FS   = (*Chaos)(nil)
	_ File = (*chaosFile)(nil)
)
