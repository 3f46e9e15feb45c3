package fs

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

func Test_Chaos_WriteAt_Fails_With_Errno_When_Rate_Is_One(t *testing.T) {
	t.Parallel()

	chaos := NewChaos(NewReal(), 1, &ChaosConfig{WriteFailRate: 1})
	path := filepath.Join(t.TempDir(), "w.rms")

	f, err := chaos.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	defer f.Close()

	n, err := f.WriteAt([]byte("abc"), 0)
	if err == nil {
		t.Fatal("expected injected write failure")
	}

	if n != 0 {
		t.Fatalf("n=%d, want 0", n)
	}

	if !IsChaosErr(err) {
		t.Fatalf("IsChaosErr(%v)=false, want true", err)
	}

	var errno syscall.Errno
	if !errors.As(err, &errno) {
		t.Fatalf("err=%v does not carry a syscall.Errno", err)
	}

	if got := chaos.Stats().WriteFails; got != 1 {
		t.Fatalf("WriteFails=%d, want 1", got)
	}
}

func Test_Chaos_NoOp_Mode_Passes_Through(t *testing.T) {
	t.Parallel()

	chaos := NewChaos(NewReal(), 1, &ChaosConfig{
		WriteFailRate:    1,
		ReadFailRate:     1,
		TruncateFailRate: 1,
		SpaceFailRate:    1,
	})
	chaos.SetMode(ChaosModeNoOp)

	dir := t.TempDir()
	path := filepath.Join(dir, "noop.rms")

	f, err := chaos.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	defer f.Close()

	if _, err := f.WriteAt([]byte("abc"), 0); err != nil {
		t.Fatalf("write at: %v", err)
	}

	buf := make([]byte, 3)
	if _, err := f.ReadAt(buf, 0); err != nil {
		t.Fatalf("read at: %v", err)
	}

	if err := f.Truncate(1); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	if _, err := chaos.SpaceAvailable(dir); err != nil {
		t.Fatalf("space available: %v", err)
	}

	if got := chaos.TotalFaults(); got != 0 {
		t.Fatalf("TotalFaults=%d, want 0", got)
	}
}

func Test_Chaos_Partial_WriteAt_Writes_Prefix_Then_Fails(t *testing.T) {
	t.Parallel()

	chaos := NewChaos(NewReal(), 7, &ChaosConfig{PartialWriteRate: 1})
	path := filepath.Join(t.TempDir(), "partial.rms")

	f, err := chaos.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	defer f.Close()

	data := []byte("0123456789")

	n, err := f.WriteAt(data, 0)
	if err == nil {
		t.Fatal("expected partial write error")
	}

	if n < 1 || n >= len(data) {
		t.Fatalf("n=%d, want in [1,%d)", n, len(data))
	}

	info, statErr := f.Stat()
	if statErr != nil {
		t.Fatalf("stat: %v", statErr)
	}

	if got, want := info.Size(), int64(n); got != want {
		t.Fatalf("size=%d, want=%d", got, want)
	}
}

func Test_Chaos_Never_Injects_NotExist(t *testing.T) {
	t.Parallel()

	chaos := NewChaos(NewReal(), 3, &ChaosConfig{OpenFailRate: 1, RemoveFailRate: 1})
	path := filepath.Join(t.TempDir(), "x.rms")

	for range 20 {
		_, err := chaos.OpenFile(path, os.O_RDONLY, 0)
		if errors.Is(err, os.ErrNotExist) {
			t.Fatal("open injected ENOENT")
		}

		err = chaos.Remove(path)
		if errors.Is(err, os.ErrNotExist) {
			t.Fatal("remove injected ENOENT")
		}
	}
}
