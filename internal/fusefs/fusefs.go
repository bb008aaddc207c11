// Package fusefs exposes the virtual tree as a read-only FUSE filesystem.
//
// Directories become directories and files become regular files holding the
// node content. Every lookup goes to the live tree, so changes made in the
// shell show up on the host without remounting.
package fusefs

import (
	"context"
	"errors"
	"fmt"
	"path"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"go.uber.org/zap"

	"minai/internal/vfs"
)

// Tree is the read side of the virtual filesystem.
type Tree interface {
	Stat(p string) (vfs.Entry, error)
	List(p string) ([]vfs.Entry, error)
	Cat(p string) (string, error)
}

// Config tunes the mount.
type Config struct {
	// CacheTimeout sets kernel entry/attr caching. Zero keeps every lookup live.
	CacheTimeout time.Duration
	Debug        bool
	Logger       *zap.Logger
}

func (c *Config) cacheTimeout() time.Duration {
	if c == nil {
		return 0
	}
	return c.CacheTimeout
}

func (c *Config) logger() *zap.Logger {
	if c == nil || c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// NewRoot returns the root node of the mounted tree.
func NewRoot(tree Tree, config *Config) fs.InodeEmbedder {
	return &node{tree: tree, path: "/", config: config}
}

// Mount serves tree at dir until ctx is cancelled or the filesystem is
// unmounted from outside.
func Mount(ctx context.Context, dir string, tree Tree, config *Config) error {
	timeout := config.cacheTimeout()
	opts := &fs.Options{}
	opts.Debug = config != nil && config.Debug
	opts.FsName = "minai"
	opts.Name = "minai"
	opts.Options = append(opts.Options, "ro")
	opts.EntryTimeout = &timeout
	opts.AttrTimeout = &timeout
	opts.NegativeTimeout = &timeout

	server, err := fs.Mount(dir, NewRoot(tree, config), opts)
	if err != nil {
		return fmt.Errorf("mount %s: %w", dir, err)
	}
	log := config.logger()
	log.Info("mounted", zap.String("dir", dir))

	done := make(chan struct{})
	go func() {
		server.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err := server.Unmount(); err != nil {
			log.Warn("unmount", zap.String("dir", dir), zap.Error(err))
		}
		<-done
	}
	log.Info("unmounted", zap.String("dir", dir))
	return nil
}

type node struct {
	fs.Inode
	tree   Tree
	path   string
	config *Config
}

var _ = (fs.NodeLookuper)((*node)(nil))
var _ = (fs.NodeReaddirer)((*node)(nil))
var _ = (fs.NodeGetattrer)((*node)(nil))
var _ = (fs.NodeOpener)((*node)(nil))
var _ = (fs.NodeReader)((*node)(nil))

func (n *node) child(name string) *node {
	return &node{tree: n.tree, path: path.Join(n.path, name), config: n.config}
}

func (n *node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	child := n.child(name)
	entry, err := n.tree.Stat(child.path)
	if err != nil {
		return nil, errno(err)
	}
	if st := child.fill(entry, &out.Attr); st != 0 {
		return nil, st
	}
	if timeout := n.config.cacheTimeout(); timeout > 0 {
		out.SetEntryTimeout(timeout)
		out.SetAttrTimeout(timeout)
	}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: modeOf(entry)}), 0
}

func (n *node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, err := n.tree.List(n.path)
	if err != nil {
		return nil, errno(err)
	}
	out := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, fuse.DirEntry{Name: e.Name, Mode: modeOf(e)})
	}
	return fs.NewListDirStream(out), 0
}

func (n *node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	entry, err := n.tree.Stat(n.path)
	if err != nil {
		return errno(err)
	}
	if timeout := n.config.cacheTimeout(); timeout > 0 {
		out.SetTimeout(timeout)
	}
	return n.fill(entry, &out.Attr)
}

// fill sets mode, size and times. File sizes come from the content so reads
// and stat agree.
func (n *node) fill(entry vfs.Entry, attr *fuse.Attr) syscall.Errno {
	if entry.Dir {
		attr.Mode = fuse.S_IFDIR | 0o555
	} else {
		content, err := n.tree.Cat(n.path)
		if err != nil {
			return errno(err)
		}
		attr.Mode = fuse.S_IFREG | 0o444
		attr.Size = uint64(len(content))
	}
	t := entry.Modified
	attr.Atime, attr.Mtime, attr.Ctime = uint64(t.Unix()), uint64(t.Unix()), uint64(t.Unix())
	attr.Atimensec, attr.Mtimensec, attr.Ctimensec = uint32(t.Nanosecond()), uint32(t.Nanosecond()), uint32(t.Nanosecond())
	return 0
}

func (n *node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR|syscall.O_APPEND|syscall.O_TRUNC) != 0 {
		return nil, 0, syscall.EROFS
	}
	if n.config.cacheTimeout() > 0 {
		return nil, fuse.FOPEN_KEEP_CACHE, 0
	}
	return nil, fuse.FOPEN_DIRECT_IO, 0
}

func (n *node) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	content, err := n.tree.Cat(n.path)
	if err != nil {
		return nil, errno(err)
	}
	return fuse.ReadResultData(readAt([]byte(content), dest, off)), 0
}

func modeOf(e vfs.Entry) uint32 {
	if e.Dir {
		return fuse.S_IFDIR
	}
	return fuse.S_IFREG
}

// errno maps filesystem errors onto FUSE status codes.
func errno(err error) syscall.Errno {
	var verr *vfs.Error
	if !errors.As(err, &verr) {
		return syscall.EIO
	}
	switch verr.Kind {
	case vfs.NotFound:
		return syscall.ENOENT
	case vfs.NotADirectory:
		return syscall.ENOTDIR
	case vfs.IsADirectory:
		return syscall.EISDIR
	case vfs.PermissionDenied:
		return syscall.EACCES
	default:
		return syscall.EIO
	}
}

func readAt(data, dest []byte, off int64) []byte {
	if off >= int64(len(data)) {
		return nil
	}
	n := copy(dest, data[off:])
	return dest[:n]
}
