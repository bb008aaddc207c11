package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	_, err = s.Get("minai_fs_v3")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put("minai_fs_v3", []byte(`{"a":1}`)))
	got, err := s.Get("minai_fs_v3")
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, string(got))

	if _, err := os.Stat(filepath.Join(dir, "minai_fs_v3.json.tmp")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temp file left behind: %v", err)
	}

	require.NoError(t, s.Delete("minai_fs_v3"))
	_, err = s.Get("minai_fs_v3")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, s.Delete("minai_fs_v3"), "deleting a missing key is not an error")
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"minai_fs_v3", "minai_fs_v3"},
		{"../../etc/passwd", "etc_passwd"},
		{"  ", "state"},
		{"chat session", "chat_session"},
	}
	for _, tt := range tests {
		if got := sanitizeKey(tt.in); got != tt.want {
			t.Errorf("sanitizeKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "minai.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.Get("k")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, s.Put("k", []byte("one")))
	require.NoError(t, s.Put("k", []byte("two")))
	got, err := s.Get("k")
	require.NoError(t, err)
	require.Equal(t, "two", string(got))
	require.NoError(t, s.Delete("k"))
	_, err = s.Get("k")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.RecordVisit("/home", Visit{Count: 1, LastVisit: 10}))
	require.NoError(t, s.RecordVisit("/home", Visit{Count: 2, LastVisit: 20}))
	visits, err := s.Visits()
	require.NoError(t, err)
	require.Equal(t, map[string]Visit{"/home": {Count: 2, LastVisit: 20}}, visits)
	require.NoError(t, s.ClearVisits())
	visits, err = s.Visits()
	require.NoError(t, err)
	require.Empty(t, visits)

	for _, line := range []string{"ls", "pwd", "cd /"} {
		require.NoError(t, s.AppendHistory(line))
	}
	lines, err := s.History(2)
	require.NoError(t, err)
	require.Equal(t, []string{"pwd", "cd /"}, lines)
	lines, err = s.History(0)
	require.NoError(t, err)
	require.Equal(t, []string{"ls", "pwd", "cd /"}, lines)
}

func TestKVFallbacks(t *testing.T) {
	mem := NewMemory()
	visits := VisitsFor(mem)
	require.NoError(t, visits.RecordVisit("/home", Visit{Count: 3, LastVisit: 5}))
	got, err := visits.Visits()
	require.NoError(t, err)
	require.Equal(t, 3, got["/home"].Count)

	hist := HistoryFor(mem)
	for i := 0; i < historyCap+5; i++ {
		require.NoError(t, hist.AppendHistory("echo"))
	}
	lines, err := hist.History(0)
	require.NoError(t, err)
	require.Len(t, lines, historyCap)

	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "x.db"))
	require.NoError(t, err)
	defer s.Close()
	if _, ok := VisitsFor(s).(*SQLiteStore); !ok {
		t.Fatalf("VisitsFor should use the native sqlite tables")
	}
}

func TestMemoryFailPuts(t *testing.T) {
	mem := NewMemory()
	boom := errors.New("disk full")
	mem.FailPuts(boom)
	require.ErrorIs(t, mem.Put("k", nil), boom)
	mem.FailPuts(nil)
	require.NoError(t, mem.Put("k", []byte("v")))
	require.Equal(t, 1, mem.Keys())
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open("redis", t.TempDir()); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
