package vfs

import (
	"path"
	"strings"
	"time"
)

// Entry is a read-only view of a node for callers outside the package.
type Entry struct {
	Name     string
	Dir      bool
	Size     int
	Modified time.Time
	Readonly bool
}

func entryOf(n *Node) Entry {
	return Entry{
		Name:     n.Name,
		Dir:      n.IsDir(),
		Size:     n.Metadata.Size,
		Modified: n.Metadata.ModifiedAt(),
		Readonly: n.Metadata.Readonly,
	}
}

// Stat describes the node at p.
func (fs *FileSystem) Stat(p string) (Entry, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	res, err := Resolve(fs.root, p, fs.cwd)
	if err != nil {
		return Entry{}, err
	}
	if res.Node == nil {
		return Entry{}, errNotFound(p)
	}
	return entryOf(res.Node), nil
}

// List returns the children of the directory at p in insertion order.
func (fs *FileSystem) List(p string) ([]Entry, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	res, err := Resolve(fs.root, p, fs.cwd)
	if err != nil {
		return nil, err
	}
	if res.Node == nil {
		return nil, errNotFound(p)
	}
	if !res.Node.IsDir() {
		return nil, errNotADirectory(p)
	}
	nodes := res.Node.Children.Nodes()
	out := make([]Entry, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, entryOf(n))
	}
	return out, nil
}

// IsDir reports whether p names an existing directory.
func (fs *FileSystem) IsDir(p string) bool {
	e, err := fs.Stat(p)
	return err == nil && e.Dir
}

// HasGlob reports whether s contains a wildcard understood by Glob.
func HasGlob(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

// Glob expands a pattern whose final segment carries wildcards against the
// directory named by the preceding segments. Matches keep the pattern's
// directory prefix and come back in child insertion order; hidden names only
// match a pattern that starts with a dot.
func (fs *FileSystem) Glob(pattern string) ([]string, error) {
	dir, base := "", pattern
	if i := strings.LastIndex(pattern, "/"); i >= 0 {
		dir, base = pattern[:i+1], pattern[i+1:]
	}
	if !HasGlob(base) {
		return nil, nil
	}
	if _, err := path.Match(base, ""); err != nil {
		return nil, err
	}

	lookup := strings.TrimSuffix(dir, "/")
	if dir == "/" {
		lookup = "/"
	}
	entries, err := fs.List(lookup)
	if err != nil {
		return nil, err
	}
	var matches []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name, ".") && !strings.HasPrefix(base, ".") {
			continue
		}
		if ok, _ := path.Match(base, e.Name); ok {
			matches = append(matches, dir+e.Name)
		}
	}
	return matches, nil
}
