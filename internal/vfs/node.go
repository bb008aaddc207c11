package vfs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// NodeType tags the two FsNode variants.
type NodeType string

const (
	TypeDir  NodeType = "dir"
	TypeFile NodeType = "file"
)

// Metadata carries bookkeeping for a node. Timestamps are unix milliseconds so
// snapshots stay compatible with the browser-era format.
type Metadata struct {
	Size     int   `json:"size"`
	Created  int64 `json:"created"`
	Modified int64 `json:"modified"`
	Readonly bool  `json:"readonly,omitempty"`
}

// CreatedAt returns the creation time.
func (m Metadata) CreatedAt() time.Time { return time.UnixMilli(m.Created) }

// ModifiedAt returns the last modification time.
func (m Metadata) ModifiedAt() time.Time { return time.UnixMilli(m.Modified) }

// Node is a directory or a file. Nodes never point at their parent; the tree is
// navigated from the root by segment name.
type Node struct {
	Type     NodeType  `json:"type"`
	Name     string    `json:"name"`
	Content  string    `json:"content,omitempty"`
	Children *Children `json:"children,omitempty"`
	Metadata Metadata  `json:"metadata"`
}

// NewDir returns an empty directory node stamped with now.
func NewDir(name string, now time.Time) *Node {
	ms := now.UnixMilli()
	return &Node{
		Type:     TypeDir,
		Name:     name,
		Children: NewChildren(),
		Metadata: Metadata{Created: ms, Modified: ms},
	}
}

// NewFile returns a file node holding content.
func NewFile(name, content string, now time.Time) *Node {
	ms := now.UnixMilli()
	return &Node{
		Type:     TypeFile,
		Name:     name,
		Content:  content,
		Metadata: Metadata{Size: len(content), Created: ms, Modified: ms},
	}
}

// IsDir reports whether n is a directory.
func (n *Node) IsDir() bool { return n != nil && n.Type == TypeDir }

// Child looks up a direct child by name.
func (n *Node) Child(name string) (*Node, bool) {
	if !n.IsDir() || n.Children == nil {
		return nil, false
	}
	return n.Children.Get(name)
}

// Clone returns a deep, independent copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	cp := *n
	if n.Children != nil {
		cp.Children = NewChildren()
		for _, name := range n.Children.Names() {
			child, _ := n.Children.Get(name)
			cp.Children.Put(child.Clone())
		}
	}
	return &cp
}

func (n *Node) setContent(content string, now time.Time) {
	n.Content = content
	n.Metadata.Size = len(content)
	n.Metadata.Modified = now.UnixMilli()
}

// Children is a name-keyed child set that remembers insertion order, so listings
// and tree renderings are deterministic.
type Children struct {
	order []string
	nodes map[string]*Node
}

// NewChildren returns an empty child set.
func NewChildren() *Children {
	return &Children{nodes: make(map[string]*Node)}
}

// Len returns the number of children.
func (c *Children) Len() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}

// Get returns the child called name.
func (c *Children) Get(name string) (*Node, bool) {
	if c == nil {
		return nil, false
	}
	n, ok := c.nodes[name]
	return n, ok
}

// Put inserts n under n.Name. Replacing an existing name keeps its position.
func (c *Children) Put(n *Node) {
	if _, exists := c.nodes[n.Name]; !exists {
		c.order = append(c.order, n.Name)
	}
	c.nodes[n.Name] = n
}

// Delete removes name and reports whether it was present.
func (c *Children) Delete(name string) bool {
	if _, ok := c.nodes[name]; !ok {
		return false
	}
	delete(c.nodes, name)
	for i, existing := range c.order {
		if existing == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

// Rename moves the entry old to name new in place. An existing entry called new
// is replaced.
func (c *Children) Rename(old, new string) bool {
	n, ok := c.nodes[old]
	if !ok {
		return false
	}
	if old == new {
		return true
	}
	if _, exists := c.nodes[new]; exists {
		c.Delete(new)
	}
	delete(c.nodes, old)
	for i, existing := range c.order {
		if existing == old {
			c.order[i] = new
			break
		}
	}
	n.Name = new
	c.nodes[new] = n
	return true
}

// shallowCopy returns a copy of the set that shares the child nodes.
func (c *Children) shallowCopy() *Children {
	cp := &Children{
		order: append([]string(nil), c.order...),
		nodes: make(map[string]*Node, len(c.nodes)),
	}
	for k, v := range c.nodes {
		cp.nodes[k] = v
	}
	return cp
}

// Names returns child names in insertion order.
func (c *Children) Names() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Nodes returns children in insertion order.
func (c *Children) Nodes() []*Node {
	if c == nil {
		return nil
	}
	out := make([]*Node, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.nodes[name])
	}
	return out
}

// MarshalJSON encodes the set as a JSON object whose keys follow insertion order.
func (c *Children) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range c.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(c.nodes[name])
		if err != nil {
			return nil, fmt.Errorf("encode child %s: %w", name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping the key order of the document.
func (c *Children) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("children: expected object, got %v", tok)
	}
	c.order = nil
	c.nodes = make(map[string]*Node)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok || key == "" {
			return fmt.Errorf("children: invalid key %v", tok)
		}
		var n Node
		if err := dec.Decode(&n); err != nil {
			return fmt.Errorf("decode child %s: %w", key, err)
		}
		n.Name = key
		if n.Type == TypeDir && n.Children == nil {
			n.Children = NewChildren()
		}
		c.Put(&n)
	}
	_, err = dec.Token()
	return err
}
