package rms_test

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/rms/pkg/rms"
)

var (
	appA = rms.AppID{Vendor: "acme", Suite: "notes"}
	appB = rms.AppID{Vendor: "globex", Suite: "reader"}
)

// fixedClock returns a clock that advances one second per call.
func fixedClock() func() time.Time {
	t := time.UnixMilli(1_700_000_000_000)

	return func() time.Time {
		t = t.Add(time.Second)

		return t
	}
}

func newRegistry(tb testing.TB, opts rms.Options) *rms.Registry {
	tb.Helper()

	if opts.Dir == "" {
		opts.Dir = tb.TempDir()
	}

	if opts.Now == nil {
		opts.Now = fixedClock()
	}

	reg, err := rms.NewRegistry(opts)
	require.NoError(tb, err)

	return reg
}

// createStore opens (creating) a private store owned by appA.
func createStore(tb testing.TB, reg *rms.Registry, name string) *rms.Store {
	tb.Helper()

	s, err := reg.OpenOwn(appA, name, true, rms.AuthPrivate, false)
	require.NoError(tb, err)

	return s
}

// openOwn opens an existing store owned by appA.
func openOwn(tb testing.TB, reg *rms.Registry, name string) *rms.Store {
	tb.Helper()

	s, err := reg.OpenPrivate(appA, name)
	require.NoError(tb, err)

	return s
}

func mustAdd(tb testing.TB, s *rms.Store, data string) rms.RecordID {
	tb.Helper()

	id, err := s.Add([]byte(data))
	require.NoError(tb, err)

	return id
}

func mustGet(tb testing.TB, s *rms.Store, id rms.RecordID) string {
	tb.Helper()

	data, err := s.Get(id)
	require.NoError(tb, err)

	return string(data)
}

func mustCount(tb testing.TB, s *rms.Store) int {
	tb.Helper()

	n, err := s.Count()
	require.NoError(tb, err)

	return n
}

func mustVersion(tb testing.TB, s *rms.Store) int {
	tb.Helper()

	v, err := s.Version()
	require.NoError(tb, err)

	return v
}

func mustTotal(tb testing.TB, s *rms.Store) int {
	tb.Helper()

	n, err := s.TotalBytes()
	require.NoError(tb, err)

	return n
}

// recordingListener collects notifications as "added:1" style strings.
type recordingListener struct {
	events []string
}

func (l *recordingListener) RecordAdded(_ *rms.Store, id rms.RecordID) {
	l.events = append(l.events, "added:"+itoa(id))
}

func (l *recordingListener) RecordChanged(_ *rms.Store, id rms.RecordID) {
	l.events = append(l.events, "changed:"+itoa(id))
}

func (l *recordingListener) RecordDeleted(_ *rms.Store, id rms.RecordID) {
	l.events = append(l.events, "deleted:"+itoa(id))
}

func itoa(id rms.RecordID) string {
	return strconv.Itoa(int(id))
}
