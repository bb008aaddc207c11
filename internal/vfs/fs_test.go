package vfs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"minai/internal/store"
)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestFS(t *testing.T) (*FileSystem, *store.Memory, *testClock) {
	t.Helper()
	clock := &testClock{t: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)}
	mem := store.NewMemory()
	fs, err := Open(mem, WithClock(clock.now))
	require.NoError(t, err)
	return fs, mem, clock
}

func treeBytes(t *testing.T, fs *FileSystem) string {
	t.Helper()
	data, err := json.Marshal(fs.root)
	require.NoError(t, err)
	return string(data)
}

func TestOpenSeedsDefaultTree(t *testing.T) {
	fs, mem, _ := newTestFS(t)

	require.Equal(t, "/home", fs.Pwd())
	out, err := fs.Ls("/", ListOptions{})
	require.NoError(t, err)
	require.Equal(t, "README  home/  command/  configuration/", out)

	if _, err := mem.Get(StateKey); err != nil {
		t.Fatalf("default tree was not persisted: %v", err)
	}
	aliases, err := fs.Cat(AliasesPath)
	require.NoError(t, err)
	require.Contains(t, aliases, "ll=ls -la")
	stub, err := fs.Cat("/command/ls")
	require.NoError(t, err)
	require.Equal(t, "Binary file: ls", stub)
}

func TestCdRoundTrip(t *testing.T) {
	fs, _, _ := newTestFS(t)

	err := fs.Cd("-")
	require.True(t, IsKind(err, NoPreviousDirectory), "got %v", err)
	require.Equal(t, "No previous directory", err.Error())

	steps := []struct {
		path string
		want string
	}{
		{"/command", "/command"},
		{"..", "/"},
		{"configuration", "/configuration"},
		{"~", "/home"},
		{"../configuration/..", "/"},
		{"", "/home"},
	}
	for _, step := range steps {
		require.NoError(t, fs.Cd(step.path), "cd %q", step.path)
		require.Equal(t, step.want, fs.Pwd(), "after cd %q", step.path)

		abs, err := Resolve(fs.root, fs.Pwd(), nil)
		require.NoError(t, err)
		rel, err := Resolve(fs.root, "", fs.cwd)
		require.NoError(t, err)
		if abs.Node != rel.Node {
			t.Fatalf("pwd %s does not resolve back to the current node", fs.Pwd())
		}
	}

	require.NoError(t, fs.Cd("-"))
	require.Equal(t, "/", fs.Pwd())
	require.NoError(t, fs.Cd("-"))
	require.Equal(t, "/home", fs.Pwd())
}

func TestCdFailuresLeaveStateUnchanged(t *testing.T) {
	fs, _, _ := newTestFS(t)

	err := fs.Cd("welcome.txt")
	require.True(t, IsKind(err, NotADirectory), "got %v", err)
	require.Equal(t, "Not a directory: welcome.txt", err.Error())

	err = fs.Cd("/nowhere")
	require.True(t, IsKind(err, NotFound), "got %v", err)
	require.Equal(t, "/home", fs.Pwd())

	err = fs.Cd("-")
	require.True(t, IsKind(err, NoPreviousDirectory), "failed cd must not record a previous directory")
}

func TestLsFormats(t *testing.T) {
	fs, _, clock := newTestFS(t)

	out, err := fs.Ls("", ListOptions{})
	require.NoError(t, err)
	require.Equal(t, "welcome.txt", out)

	out, err = fs.Ls("", ListOptions{All: true})
	require.NoError(t, err)
	require.Equal(t, "../  ./  welcome.txt", out)

	out, err = fs.Ls("welcome.txt", ListOptions{})
	require.NoError(t, err)
	require.Equal(t, "welcome.txt", out, "listing a file returns its name")

	require.NoError(t, fs.Mkdir("notes"))
	require.NoError(t, fs.Write("notes/a.txt", "hello", false))
	out, err = fs.Ls("notes", ListOptions{Long: true})
	require.NoError(t, err)
	date := time.UnixMilli(clock.t.UnixMilli()).Format("1/2/2006, 3:04:05 PM")
	require.Equal(t, fmt.Sprintf("-rwxr-xr-x 1 user user      5 %s a.txt", date), out)

	out, err = fs.Ls("/", ListOptions{Long: true})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(strings.Split(out, "\n")[1], "drwxr-xr-x 1 user user   4096 "))

	_, err = fs.Ls("missing", ListOptions{})
	require.True(t, IsKind(err, NotFound))
}

func TestReadOnlyZonesRejectMutations(t *testing.T) {
	fs, mem, _ := newTestFS(t)
	require.NoError(t, fs.Write("/home/src.txt", "payload", false))

	paths := []string{"/command/ls", "/command/new", "/README", "/etc", "/command"}
	ops := map[string]func(p string) error{
		"mkdir": fs.Mkdir,
		"touch": fs.Touch,
		"rm":    func(p string) error { return fs.Rm(p, true) },
		"rmdir": fs.Rmdir,
		"write": func(p string) error { return fs.Write(p, "x", false) },
		"cp":    func(p string) error { return fs.Cp("/home/src.txt", p, true) },
	}

	for _, p := range paths {
		for name, op := range ops {
			before := treeBytes(t, fs)
			stored, err := mem.Get(StateKey)
			require.NoError(t, err)

			err = op(p)
			if !IsKind(err, PermissionDenied) {
				t.Fatalf("%s %s: expected PermissionDenied, got %v", name, p, err)
			}
			if after := treeBytes(t, fs); after != before {
				t.Fatalf("%s %s changed the tree", name, p)
			}
			again, err := mem.Get(StateKey)
			require.NoError(t, err)
			if string(again) != string(stored) {
				t.Fatalf("%s %s changed the persisted snapshot", name, p)
			}
		}
	}
}

func TestPermissionMessages(t *testing.T) {
	fs, _, _ := newTestFS(t)
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"mkdir", fs.Mkdir("/command/x"), "Permission denied: Cannot create directory in read-only location"},
		{"touch", fs.Touch("/README"), "Permission denied: Cannot modify read-only location"},
		{"rm", fs.Rm("/command/ls", false), "Permission denied: Cannot remove from read-only location"},
		{"cp", fs.Cp("/README", "/command", false), "Permission denied: Cannot copy to read-only location"},
		{"write", fs.Write("/x.txt", "x", false), "Permission denied: Read-only location"},
		{"rm zone root", fs.Rm("/home", true), "Permission denied: Cannot remove from read-only location"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.EqualError(t, tt.err, tt.want)
		})
	}
}

func TestReadonlyNodeInsideWritableZone(t *testing.T) {
	fs, _, _ := newTestFS(t)
	res, err := Resolve(fs.root, "/home/welcome.txt", nil)
	require.NoError(t, err)
	res.Node.Metadata.Readonly = true

	require.EqualError(t, fs.Touch("welcome.txt"), "Permission denied: welcome.txt is read-only")
	require.EqualError(t, fs.Rm("welcome.txt", false), "Permission denied: welcome.txt is read-only")
	require.EqualError(t, fs.Write("welcome.txt", "x", false), "Permission denied: Read-only file")
	require.EqualError(t, fs.Mv("welcome.txt", "w.txt"), "Permission denied: welcome.txt is read-only")
}

func TestTouchIsIdempotent(t *testing.T) {
	fs, _, clock := newTestFS(t)

	require.NoError(t, fs.Touch("a.txt"))
	first, err := fs.Stat("a.txt")
	require.NoError(t, err)
	require.False(t, first.Dir)
	require.Zero(t, first.Size)

	clock.advance(time.Minute)
	require.NoError(t, fs.Touch("a.txt"))
	second, err := fs.Stat("a.txt")
	require.NoError(t, err)

	content, err := fs.Cat("a.txt")
	require.NoError(t, err)
	require.Empty(t, content)
	require.Zero(t, second.Size)
	require.True(t, second.Modified.After(first.Modified))

	entries, err := fs.List("")
	require.NoError(t, err)
	count := 0
	for _, e := range entries {
		if e.Name == "a.txt" {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestMkdir(t *testing.T) {
	fs, _, _ := newTestFS(t)

	require.NoError(t, fs.Mkdir("projects"))
	require.True(t, fs.IsDir("/home/projects"))

	require.EqualError(t, fs.Mkdir("projects"), "Directory exists: projects")
	err := fs.Mkdir("missing/child")
	require.True(t, IsKind(err, NotFound), "got %v", err)
	require.NoError(t, fs.Mkdir("/configuration/extra"))
}

func TestRmAndRmdir(t *testing.T) {
	fs, _, _ := newTestFS(t)
	require.NoError(t, fs.Mkdir("d"))
	require.NoError(t, fs.Touch("d/f"))

	require.EqualError(t, fs.Rm("d", false), "Is a directory: d")
	require.EqualError(t, fs.Rmdir("d/f"), "Not a directory: d/f")

	before := treeBytes(t, fs)
	require.EqualError(t, fs.Rmdir("d"), "Directory not empty: d")
	require.Equal(t, before, treeBytes(t, fs))

	require.NoError(t, fs.Rm("d/f", false))
	require.NoError(t, fs.Rmdir("d"))
	require.False(t, fs.IsDir("d"))

	require.EqualError(t, fs.Rm("ghost", false), "No such file or directory: ghost")

	require.NoError(t, fs.Mkdir("deep"))
	require.NoError(t, fs.Mkdir("deep/er"))
	require.NoError(t, fs.Cd("deep/er"))
	require.NoError(t, fs.Rm("/home/deep", true))
	require.Equal(t, "/home", fs.Pwd(), "removing an ancestor of cwd returns home")
}

func TestCpDeepCopyIsolation(t *testing.T) {
	fs, _, _ := newTestFS(t)
	require.NoError(t, fs.Write("a.txt", "original", false))

	require.NoError(t, fs.Cp("a.txt", "b.txt", false))
	require.NoError(t, fs.Write("b.txt", "changed", false))

	a, err := fs.Cat("a.txt")
	require.NoError(t, err)
	require.Equal(t, "original", a)
	b, err := fs.Cat("b.txt")
	require.NoError(t, err)
	require.Equal(t, "changed", b)
}

func TestCpDirectories(t *testing.T) {
	fs, _, _ := newTestFS(t)
	require.NoError(t, fs.Mkdir("src"))
	require.NoError(t, fs.Write("src/one.txt", "1", false))
	require.NoError(t, fs.Mkdir("dst"))

	require.EqualError(t, fs.Cp("src", "dst", false), "Is a directory: src")

	require.NoError(t, fs.Cp("src", "dst", true))
	got, err := fs.Cat("dst/src/one.txt")
	require.NoError(t, err)
	require.Equal(t, "1", got)

	require.NoError(t, fs.Write("src/one.txt", "changed", false))
	got, err = fs.Cat("dst/src/one.txt")
	require.NoError(t, err)
	require.Equal(t, "1", got)

	require.NoError(t, fs.Cp("/README", "readme-copy", false))
	entry, err := fs.Stat("readme-copy")
	require.NoError(t, err)
	require.False(t, entry.Readonly, "copies out of the read-only tree are editable")
}

func TestCpRejectsRoot(t *testing.T) {
	fs, _, _ := newTestFS(t)
	before := treeBytes(t, fs)

	err := fs.Cp("/", "/home", true)
	var vErr *Error
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, InvalidDestination, vErr.Kind)
	require.Equal(t, before, treeBytes(t, fs))

	entries, err := fs.List("/home")
	require.NoError(t, err)
	for _, e := range entries {
		require.NotEqual(t, "/", e.Name)
	}
}

func TestMvRenameKeepsPosition(t *testing.T) {
	fs, _, _ := newTestFS(t)
	require.NoError(t, fs.Touch("b.txt"))
	require.NoError(t, fs.Touch("c.txt"))

	require.NoError(t, fs.Mv("b.txt", "renamed.txt"))
	out, err := fs.Ls("", ListOptions{})
	require.NoError(t, err)
	require.Equal(t, "welcome.txt  renamed.txt  c.txt", out)
}

func TestMvAcrossDirectories(t *testing.T) {
	fs, _, _ := newTestFS(t)
	require.NoError(t, fs.Mkdir("inbox"))
	require.NoError(t, fs.Write("note.txt", "hi", false))

	require.NoError(t, fs.Mv("note.txt", "inbox"))
	_, err := fs.Cat("note.txt")
	require.True(t, IsKind(err, NotFound))
	got, err := fs.Cat("inbox/note.txt")
	require.NoError(t, err)
	require.Equal(t, "hi", got)

	require.NoError(t, fs.Mv("inbox/note.txt", "/configuration/moved.txt"))
	got, err = fs.Cat("/configuration/moved.txt")
	require.NoError(t, err)
	require.Equal(t, "hi", got)
}

func TestMvRejectsBadDestinations(t *testing.T) {
	fs, _, _ := newTestFS(t)
	require.NoError(t, fs.Mkdir("a"))
	require.NoError(t, fs.Mkdir("a/b"))

	err := fs.Mv("a", "a/b")
	require.True(t, IsKind(err, InvalidDestination), "got %v", err)

	require.EqualError(t, fs.Mv("a", "/command"), "Permission denied: Cannot move to read-only location")
	require.EqualError(t, fs.Mv("/README", "/home"), "Permission denied: Cannot move from read-only location")
	require.True(t, IsKind(fs.Mv("a", "a"), InvalidDestination))

	require.NoError(t, fs.Touch("f"))
	require.NoError(t, fs.Mv("f", "f"))
}

func TestMvFollowsCwd(t *testing.T) {
	fs, _, _ := newTestFS(t)
	require.NoError(t, fs.Mkdir("old"))
	require.NoError(t, fs.Mkdir("old/inner"))
	require.NoError(t, fs.Mkdir("target"))
	require.NoError(t, fs.Cd("old/inner"))

	require.NoError(t, fs.Mv("/home/old", "/home/target"))
	require.Equal(t, "/home/target/old/inner", fs.Pwd())
}

func TestMvRenameFollowsCwd(t *testing.T) {
	fs, _, _ := newTestFS(t)
	require.NoError(t, fs.Mkdir("/home/a"))
	require.NoError(t, fs.Mkdir("/home/a/b"))
	require.NoError(t, fs.Cd("/home/a"))
	require.NoError(t, fs.Cd("b"))

	require.NoError(t, fs.Mv("/home/a", "/home/c"))
	require.Equal(t, "/home/c/b", fs.Pwd())
	require.NoError(t, fs.Touch("here.txt"))
	_, err := fs.Cat("/home/c/b/here.txt")
	require.NoError(t, err)

	require.NoError(t, fs.Cd("-"))
	require.Equal(t, "/home/c", fs.Pwd())
}

func TestMvRenameRollbackRestoresCwd(t *testing.T) {
	fs, mem, _ := newTestFS(t)
	require.NoError(t, fs.Mkdir("a"))
	require.NoError(t, fs.Cd("a"))

	mem.FailPuts(errors.New("quota exceeded"))
	require.Error(t, fs.Mv("/home/a", "/home/c"))
	require.Equal(t, "/home/a", fs.Pwd())
}

func TestPersistFailureRollsBack(t *testing.T) {
	fs, mem, _ := newTestFS(t)
	require.NoError(t, fs.Mkdir("keep"))
	require.NoError(t, fs.Write("keep/f.txt", "v1", false))
	before := treeBytes(t, fs)

	boom := errors.New("quota exceeded")
	mem.FailPuts(boom)

	mutations := map[string]func() error{
		"mkdir": func() error { return fs.Mkdir("new") },
		"touch": func() error { return fs.Touch("keep/f.txt") },
		"write": func() error { return fs.Write("keep/f.txt", "v2", true) },
		"rm":    func() error { return fs.Rm("keep", true) },
		"cp":    func() error { return fs.Cp("keep", "copy", true) },
		"mv":    func() error { return fs.Mv("keep/f.txt", "/configuration") },
		"ren":   func() error { return fs.Mv("keep", "kept") },
		"cd":    func() error { return fs.Cd("keep") },
	}
	for name, mutate := range mutations {
		err := mutate()
		if !errors.Is(err, boom) {
			t.Fatalf("%s: expected persistence error, got %v", name, err)
		}
		if diff := cmp.Diff(before, treeBytes(t, fs)); diff != "" {
			t.Fatalf("%s left a partial mutation (-want +got):\n%s", name, diff)
		}
		require.Equal(t, "/home", fs.Pwd(), name)
	}
}

func TestWriteOverwriteAndAppend(t *testing.T) {
	fs, _, _ := newTestFS(t)

	require.NoError(t, fs.Write("greeting.txt", "hello world", true))
	got, err := fs.Cat("greeting.txt")
	require.NoError(t, err)
	require.Equal(t, "hello world", got, "append to a new file just creates it")

	require.NoError(t, fs.Write("greeting.txt", "again", true))
	got, err = fs.Cat("greeting.txt")
	require.NoError(t, err)
	require.Equal(t, "hello world\nagain", got)

	require.NoError(t, fs.Write("greeting.txt", "fresh", false))
	got, err = fs.Cat("greeting.txt")
	require.NoError(t, err)
	require.Equal(t, "fresh", got)

	entry, err := fs.Stat("greeting.txt")
	require.NoError(t, err)
	require.Equal(t, len("fresh"), entry.Size)

	require.EqualError(t, fs.Write("/home", "x", false), "Is a directory: /home")
	_, err = fs.Cat("/home")
	require.EqualError(t, err, "Is a directory: /home")
}

func TestTree(t *testing.T) {
	fs, _, _ := newTestFS(t)
	require.NoError(t, fs.Mkdir("proj"))
	require.NoError(t, fs.Touch("proj/main.go"))
	require.NoError(t, fs.Mkdir("proj/docs"))
	require.NoError(t, fs.Touch("proj/docs/a.md"))

	out, err := fs.Tree("")
	require.NoError(t, err)
	want := strings.Join([]string{
		"├── welcome.txt",
		"└── proj/",
		"    ├── main.go",
		"    └── docs/",
		"        └── a.md",
	}, "\n")
	require.Equal(t, want, out)
}

func TestReopenRestoresState(t *testing.T) {
	fs, mem, _ := newTestFS(t)
	require.NoError(t, fs.Mkdir("work"))
	require.NoError(t, fs.Write("work/todo.txt", "ship it", false))
	require.NoError(t, fs.Cd("work"))

	reopened, err := Open(mem)
	require.NoError(t, err)
	require.Equal(t, "/home/work", reopened.Pwd())
	got, err := reopened.Cat("todo.txt")
	require.NoError(t, err)
	require.Equal(t, "ship it", got)

	require.NoError(t, reopened.Cd("-"))
	require.Equal(t, "/home", reopened.Pwd())
}

func TestOpenDiscardsCorruptSnapshot(t *testing.T) {
	mem := store.NewMemory()
	require.NoError(t, mem.Put(StateKey, []byte("{not json")))
	fs, err := Open(mem)
	require.NoError(t, err)
	require.Equal(t, "/home", fs.Pwd())
	_, err = fs.Cat("/home/welcome.txt")
	require.NoError(t, err)
}

func TestOpenKeepsBackupOfCorruptSnapshot(t *testing.T) {
	mem := store.NewMemory()
	require.NoError(t, mem.Put(StateKey, []byte("{not json")))
	_, err := Open(mem)
	require.NoError(t, err)

	backup, err := mem.Get(BackupKey)
	require.NoError(t, err)
	require.Equal(t, "{not json", string(backup))
}

type unreadableStore struct {
	*store.Memory
	err error
}

func (s unreadableStore) Get(string) ([]byte, error) { return nil, s.err }

func TestOpenFailsWhenSnapshotUnreadable(t *testing.T) {
	fs, mem, _ := newTestFS(t)
	require.NoError(t, fs.Write("precious.txt", "keep me", false))

	busy := errors.New("disk busy")
	_, err := Open(unreadableStore{Memory: mem, err: busy})
	require.ErrorIs(t, err, busy)

	reopened, err := Open(mem)
	require.NoError(t, err)
	got, err := reopened.Cat("/home/precious.txt")
	require.NoError(t, err)
	require.Equal(t, "keep me", got)
}

func TestReset(t *testing.T) {
	fs, mem, _ := newTestFS(t)
	require.NoError(t, fs.Write("scratch.txt", "x", false))
	require.NoError(t, fs.Cd("/configuration"))

	require.NoError(t, fs.Reset())
	require.Equal(t, "/home", fs.Pwd())
	_, err := fs.Cat("/home/scratch.txt")
	require.True(t, IsKind(err, NotFound))
	require.True(t, IsKind(fs.Cd("-"), NoPreviousDirectory))

	data, err := mem.Get(StateKey)
	require.NoError(t, err)
	require.NotContains(t, string(data), "scratch.txt")
}

func TestGlob(t *testing.T) {
	fs, _, _ := newTestFS(t)
	for _, name := range []string{"a.txt", "b.txt", "c.md", ".hidden.txt"} {
		require.NoError(t, fs.Touch(name))
	}

	got, err := fs.Glob("*.txt")
	require.NoError(t, err)
	require.Equal(t, []string{"welcome.txt", "a.txt", "b.txt"}, got)

	got, err = fs.Glob("/command/c?")
	require.NoError(t, err)
	require.Equal(t, []string{"/command/cd", "/command/cp"}, got)

	got, err = fs.Glob("plain.txt")
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = fs.Glob("*.go")
	require.NoError(t, err)
	require.Empty(t, got)
}
