package vfs

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"minai/internal/store"
)

// FileSystem owns the virtual tree and the session's path state. Every
// successful mutation is persisted before the call returns; a mutation whose
// persistence fails is rolled back.
type FileSystem struct {
	mu     sync.RWMutex
	root   *Node
	cwd    []string
	prev   []string // nil until the first directory change
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a FileSystem.
type Option func(*FileSystem)

// WithLogger sets the logger used for mutation and migration events.
func WithLogger(l *zap.Logger) Option {
	return func(fs *FileSystem) {
		if l != nil {
			fs.logger = l
		}
	}
}

// WithClock overrides the time source used for node metadata.
func WithClock(now func() time.Time) Option {
	return func(fs *FileSystem) {
		if now != nil {
			fs.now = now
		}
	}
}

// Open loads the filesystem persisted in s, migrating a legacy record if one
// exists, or seeds and persists the default tree.
func Open(s store.Store, opts ...Option) (*FileSystem, error) {
	fs := &FileSystem{
		store:  s,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(fs)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	found, err := fs.loadLocked()
	if err != nil && !found {
		fs.logger.Warn("discarding unreadable filesystem snapshot", zap.String("backup_key", BackupKey), zap.Error(err))
	} else if err != nil {
		return nil, err
	}
	if found {
		return fs, nil
	}
	fs.seedLocked()
	if err := fs.persistLocked(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileSystem) seedLocked() {
	fs.root = DefaultRoot(fs.now())
	fs.cwd = append([]string{}, HomeStack...)
	fs.prev = nil
}

// commitLocked persists the tree. On failure undo restores the pre-mutation
// state and the persistence error is returned.
func (fs *FileSystem) commitLocked(op, path string, undo func()) error {
	if err := fs.persistLocked(); err != nil {
		if undo != nil {
			undo()
		}
		fs.logger.Warn("filesystem mutation rolled back", zap.String("op", op), zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%s %s: %w", op, path, err)
	}
	fs.logger.Debug("filesystem mutation", zap.String("op", op), zap.String("path", path))
	return nil
}

// Pwd returns the absolute current directory.
func (fs *FileSystem) Pwd() string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return Join(fs.cwd)
}

// Cwd returns a copy of the current directory stack.
func (fs *FileSystem) Cwd() []string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return append([]string{}, fs.cwd...)
}

// Cd changes the current directory. An empty path or `~` goes home and `-`
// swaps with the previous directory.
func (fs *FileSystem) Cd(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	oldCwd, oldPrev := fs.cwd, fs.prev
	undo := func() { fs.cwd, fs.prev = oldCwd, oldPrev }

	switch path {
	case "", "~":
		fs.prev = append([]string{}, fs.cwd...)
		fs.cwd = append([]string{}, HomeStack...)
	case "-":
		if fs.prev == nil {
			return &Error{Kind: NoPreviousDirectory}
		}
		fs.cwd, fs.prev = fs.prev, fs.cwd
	default:
		res, err := Resolve(fs.root, path, fs.cwd)
		if err != nil {
			return err
		}
		if res.Node == nil {
			return errNotFound(res.Name)
		}
		if !res.Node.IsDir() {
			return errNotADirectory(path)
		}
		fs.prev = append([]string{}, fs.cwd...)
		fs.cwd = res.Stack
	}
	return fs.commitLocked("cd", path, undo)
}

// ListOptions selects ls output variants.
type ListOptions struct {
	All  bool // prepend the synthetic `..` and `.` entries
	Long bool // one permission/size/date line per entry
}

// Ls lists a directory, the current one when path is empty. Listing a file
// returns the file's name.
func (fs *FileSystem) Ls(path string, opts ListOptions) (string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	res, err := Resolve(fs.root, path, fs.cwd)
	if err != nil {
		return "", err
	}
	if res.Node == nil {
		return "", errNotFound(path)
	}
	if !res.Node.IsDir() {
		return res.Node.Name, nil
	}

	type entry struct {
		name string
		dir  bool
		meta Metadata
	}
	var entries []entry
	if opts.All {
		entries = append(entries,
			entry{name: "..", dir: true, meta: res.Node.Metadata},
			entry{name: ".", dir: true, meta: res.Node.Metadata})
	}
	for _, child := range res.Node.Children.Nodes() {
		entries = append(entries, entry{name: child.Name, dir: child.IsDir(), meta: child.Metadata})
	}

	if opts.Long {
		lines := make([]string, 0, len(entries))
		for _, e := range entries {
			kind, size := "-", e.meta.Size
			if e.dir {
				kind, size = "d", 4096
			}
			date := e.meta.ModifiedAt().Format("1/2/2006, 3:04:05 PM")
			lines = append(lines, fmt.Sprintf("%srwxr-xr-x 1 user user %6d %s %s", kind, size, date, e.name))
		}
		return strings.Join(lines, "\n"), nil
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.dir {
			names = append(names, e.name+"/")
			continue
		}
		names = append(names, e.name)
	}
	return strings.Join(names, "  "), nil
}

// Mkdir creates an empty directory.
func (fs *FileSystem) Mkdir(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if Classify(Normalize(path, fs.cwd)) == ZoneReadOnly {
		return errDenied("Cannot create directory in read-only location")
	}
	res, err := Resolve(fs.root, path, fs.cwd)
	if err != nil {
		return err
	}
	if res.Node != nil {
		return &Error{Kind: DirectoryExists, Path: path}
	}
	res.Parent.Children.Put(NewDir(res.Name, fs.now()))
	return fs.commitLocked("mkdir", path, func() { res.Parent.Children.Delete(res.Name) })
}

// Touch creates an empty file, or refreshes the modification time of an
// existing node.
func (fs *FileSystem) Touch(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if Classify(Normalize(path, fs.cwd)) == ZoneReadOnly {
		return errDenied("Cannot modify read-only location")
	}
	res, err := Resolve(fs.root, path, fs.cwd)
	if err != nil {
		return err
	}
	if res.Node != nil {
		if res.Node.Metadata.Readonly {
			return errReadonlyNode(path)
		}
		node, before := res.Node, res.Node.Metadata.Modified
		node.Metadata.Modified = fs.now().UnixMilli()
		return fs.commitLocked("touch", path, func() { node.Metadata.Modified = before })
	}
	res.Parent.Children.Put(NewFile(res.Name, "", fs.now()))
	return fs.commitLocked("touch", path, func() { res.Parent.Children.Delete(res.Name) })
}

// Rm removes a file, or a directory when recursive is set.
func (fs *FileSystem) Rm(path string, recursive bool) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if stack := Normalize(path, fs.cwd); Classify(stack) == ZoneReadOnly || len(stack) == 1 {
		return errDenied("Cannot remove from read-only location")
	}
	res, err := Resolve(fs.root, path, fs.cwd)
	if err != nil {
		return err
	}
	if res.Node == nil {
		return errNotFound(path)
	}
	if res.Node.Metadata.Readonly {
		return errReadonlyNode(path)
	}
	if res.Node.IsDir() && !recursive {
		return errIsADirectory(path)
	}
	return fs.detachLocked("rm", path, res)
}

// Rmdir removes an empty directory.
func (fs *FileSystem) Rmdir(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if stack := Normalize(path, fs.cwd); Classify(stack) == ZoneReadOnly || len(stack) == 1 {
		return errDenied("Cannot remove from read-only location")
	}
	res, err := Resolve(fs.root, path, fs.cwd)
	if err != nil {
		return err
	}
	if res.Node == nil {
		return errNotFound(path)
	}
	if !res.Node.IsDir() {
		return errNotADirectory(path)
	}
	if res.Node.Metadata.Readonly {
		return errReadonlyNode(path)
	}
	if res.Node.Children.Len() > 0 {
		return &Error{Kind: DirectoryNotEmpty, Path: path}
	}
	return fs.detachLocked("rmdir", path, res)
}

func (fs *FileSystem) detachLocked(op, path string, res Resolution) error {
	saved := res.Parent.Children.shallowCopy()
	res.Parent.Children.Delete(res.Name)

	// Removing a directory on the way to cwd would leave it dangling.
	cwd, prev := fs.cwd, fs.prev
	if hasPrefix(fs.cwd, res.Stack) {
		fs.cwd = append([]string{}, HomeStack...)
	}
	if fs.prev != nil && hasPrefix(fs.prev, res.Stack) {
		fs.prev = nil
	}
	return fs.commitLocked(op, path, func() {
		res.Parent.Children = saved
		fs.cwd, fs.prev = cwd, prev
	})
}

// Cp copies src to dest as an independent deep clone. Copying into an existing
// directory nests the copy under the source's name.
func (fs *FileSystem) Cp(src, dest string, recursive bool) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	source, err := Resolve(fs.root, src, fs.cwd)
	if err != nil {
		return err
	}
	if source.Node == nil {
		return errNotFound(src)
	}
	if source.Node.IsDir() && !recursive {
		return errIsADirectory(src)
	}
	if len(source.Stack) == 0 {
		return &Error{Kind: InvalidDestination, Path: dest, Detail: "cannot copy the root directory"}
	}

	destStack, err := fs.destinationLocked(dest, source.Name)
	if err != nil {
		return err
	}
	if Classify(destStack) == ZoneReadOnly {
		return errDenied("Cannot copy to read-only location")
	}
	target, err := resolveStack(fs.root, destStack)
	if err != nil {
		return err
	}
	if existing := target.Node; existing != nil {
		if existing.Metadata.Readonly {
			return errReadonlyNode(dest)
		}
		if source.Node.IsDir() && !existing.IsDir() {
			return errNotADirectory(dest)
		}
	}

	clone := source.Node.Clone()
	clone.Name = target.Name
	clearReadonly(clone)
	clone.Metadata.Modified = fs.now().UnixMilli()

	saved := target.Parent.Children.shallowCopy()
	target.Parent.Children.Put(clone)
	return fs.commitLocked("cp", dest, func() { target.Parent.Children = saved })
}

// Mv moves or renames src to dest. Within one directory it is a single rename;
// across directories the source is staged at the destination before it is
// detached, and a failed detach discards the staged copy.
func (fs *FileSystem) Mv(src, dest string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	srcStack := Normalize(src, fs.cwd)
	if Classify(srcStack) == ZoneReadOnly || len(srcStack) == 1 {
		return errDenied("Cannot move from read-only location")
	}
	source, err := resolveStack(fs.root, srcStack)
	if err != nil {
		return err
	}
	if source.Node == nil {
		return errNotFound(src)
	}
	if source.Node.Metadata.Readonly {
		return errReadonlyNode(src)
	}

	destStack, err := fs.destinationLocked(dest, source.Name)
	if err != nil {
		return err
	}
	if Classify(destStack) == ZoneReadOnly {
		return errDenied("Cannot move to read-only location")
	}
	if equalStack(destStack, srcStack) {
		return nil
	}
	if hasPrefix(destStack, srcStack) {
		return &Error{Kind: InvalidDestination, Path: dest, Detail: "cannot move a directory into itself"}
	}
	target, err := resolveStack(fs.root, destStack)
	if err != nil {
		return err
	}
	if existing := target.Node; existing != nil {
		if existing.Metadata.Readonly {
			return errReadonlyNode(dest)
		}
		if existing.IsDir() && !source.Node.IsDir() {
			return errIsADirectory(dest)
		}
	}

	now := fs.now().UnixMilli()
	node, modified := source.Node, source.Node.Metadata.Modified
	if target.Parent == source.Parent {
		saved := source.Parent.Children.shallowCopy()
		source.Parent.Children.Rename(source.Name, target.Name)
		node.Metadata.Modified = now
		restorePaths := fs.followMoveLocked(srcStack, destStack)
		return fs.commitLocked("mv", dest, func() {
			source.Parent.Children = saved
			node.Name = source.Name
			node.Metadata.Modified = modified
			restorePaths()
		})
	}

	srcSaved := source.Parent.Children.shallowCopy()
	destSaved := target.Parent.Children.shallowCopy()
	staged := node.Clone()
	staged.Name = target.Name
	staged.Metadata.Modified = now
	target.Parent.Children.Put(staged)
	if !source.Parent.Children.Delete(source.Name) {
		target.Parent.Children = destSaved
		return errNotFound(src)
	}

	restorePaths := fs.followMoveLocked(srcStack, destStack)
	return fs.commitLocked("mv", dest, func() {
		source.Parent.Children = srcSaved
		target.Parent.Children = destSaved
		restorePaths()
	})
}

// followMoveLocked rewrites the current and previous directories that lie at
// or under srcStack so they keep naming the moved node. The returned func
// restores both.
func (fs *FileSystem) followMoveLocked(srcStack, destStack []string) func() {
	cwd, prev := fs.cwd, fs.prev
	if hasPrefix(fs.cwd, srcStack) {
		fs.cwd = append(append([]string{}, destStack...), fs.cwd[len(srcStack):]...)
	}
	if fs.prev != nil && hasPrefix(fs.prev, srcStack) {
		fs.prev = append(append([]string{}, destStack...), fs.prev[len(srcStack):]...)
	}
	return func() { fs.cwd, fs.prev = cwd, prev }
}

// destinationLocked resolves the stack a cp/mv writes to: dest itself, or
// dest/name when dest is an existing directory.
func (fs *FileSystem) destinationLocked(dest, name string) ([]string, error) {
	stack := Normalize(dest, fs.cwd)
	res, err := resolveStack(fs.root, stack)
	if err != nil {
		return nil, err
	}
	if res.Node.IsDir() {
		return append(stack, name), nil
	}
	return stack, nil
}

// Cat returns a file's content.
func (fs *FileSystem) Cat(path string) (string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	res, err := Resolve(fs.root, path, fs.cwd)
	if err != nil {
		return "", err
	}
	if res.Node == nil {
		return "", errNotFound(path)
	}
	if res.Node.IsDir() {
		return "", errIsADirectory(path)
	}
	return res.Node.Content, nil
}

// Write stores content at path, creating the file when absent. Appending joins
// the old and new content with a newline.
func (fs *FileSystem) Write(path, content string, appendMode bool) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if Classify(Normalize(path, fs.cwd)) == ZoneReadOnly {
		return errDenied("Read-only location")
	}
	res, err := Resolve(fs.root, path, fs.cwd)
	if err != nil {
		return err
	}
	if res.Node == nil {
		res.Parent.Children.Put(NewFile(res.Name, content, fs.now()))
		return fs.commitLocked("write", path, func() { res.Parent.Children.Delete(res.Name) })
	}
	node := res.Node
	if node.IsDir() {
		return errIsADirectory(path)
	}
	if node.Metadata.Readonly {
		return errDenied("Read-only file")
	}
	before, meta := node.Content, node.Metadata
	next := content
	if appendMode {
		next = node.Content + "\n" + content
	}
	node.setContent(next, fs.now())
	return fs.commitLocked("write", path, func() {
		node.Content = before
		node.Metadata = meta
	})
}

// Tree renders the subtree at path (the current directory when empty) with
// box-drawing connectors in child insertion order.
func (fs *FileSystem) Tree(path string) (string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	res, err := Resolve(fs.root, path, fs.cwd)
	if err != nil {
		return "", err
	}
	if res.Node == nil {
		return "", errNotFound(path)
	}
	if !res.Node.IsDir() {
		return "", errNotADirectory(path)
	}
	var b strings.Builder
	renderTree(&b, res.Node, "")
	return strings.TrimSuffix(b.String(), "\n"), nil
}

func renderTree(b *strings.Builder, node *Node, prefix string) {
	children := node.Children.Nodes()
	for i, child := range children {
		last := i == len(children)-1
		connector, indent := "├── ", "│   "
		if last {
			connector, indent = "└── ", "    "
		}
		b.WriteString(prefix + connector + child.Name)
		if child.IsDir() {
			b.WriteString("/")
		}
		b.WriteString("\n")
		if child.IsDir() {
			renderTree(b, child, prefix+indent)
		}
	}
}

// Reset discards durable state and reseeds the default tree.
func (fs *FileSystem) Reset() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	for _, key := range []string{StateKey, LegacyStateKey} {
		if err := fs.store.Delete(key); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}
	fs.seedLocked()
	if err := fs.persistLocked(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	fs.logger.Info("filesystem reset to default tree")
	return nil
}

func clearReadonly(n *Node) {
	n.Metadata.Readonly = false
	for _, child := range n.Children.Nodes() {
		clearReadonly(child)
	}
}

func hasPrefix(stack, prefix []string) bool {
	if len(prefix) > len(stack) {
		return false
	}
	for i := range prefix {
		if stack[i] != prefix[i] {
			return false
		}
	}
	return true
}

func equalStack(a, b []string) bool {
	return len(a) == len(b) && hasPrefix(a, b)
}
