package vfs

import "strings"

// Zone is the path-prefix write policy of a location.
type Zone int

const (
	ZoneReadOnly Zone = iota
	ZoneWritable
)

func (z Zone) String() string {
	if z == ZoneWritable {
		return "writable"
	}
	return "read-only"
}

// HomeStack is where `~`, `cd` and fresh sessions land.
var HomeStack = []string{"home"}

// Classify returns the zone of an absolute segment stack. Root itself, the
// command tree, /README and any other top-level entry are read-only; home and
// configuration are writable.
func Classify(stack []string) Zone {
	if len(stack) == 0 {
		return ZoneReadOnly
	}
	switch stack[0] {
	case "home", "configuration":
		return ZoneWritable
	default:
		return ZoneReadOnly
	}
}

// Normalize replays path against cwd and returns the absolute segment stack.
// `.` is skipped, `..` pops (never past root) and `~` resets to /home.
func Normalize(path string, cwd []string) []string {
	var stack []string
	if !strings.HasPrefix(path, "/") {
		stack = append(stack, cwd...)
	}
	for _, seg := range strings.Split(path, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case "~":
			stack = append(stack[:0:0], HomeStack...)
		default:
			stack = append(stack, seg)
		}
	}
	return stack
}

// Join renders a segment stack as an absolute path.
func Join(stack []string) string {
	return "/" + strings.Join(stack, "/")
}

// Resolution is a successful path lookup. Node is nil when only the final
// segment is missing, which is the create-target case.
type Resolution struct {
	Node   *Node
	Parent *Node
	Name   string
	Stack  []string
}

// Resolve walks root along the stack derived from path and cwd. It never
// mutates the tree.
func Resolve(root *Node, path string, cwd []string) (Resolution, error) {
	return resolveStack(root, Normalize(path, cwd))
}

func resolveStack(root *Node, stack []string) (Resolution, error) {
	res := Resolution{Node: root, Name: "/", Stack: stack}
	current := root
	for i, seg := range stack {
		if !current.IsDir() {
			return Resolution{}, errNotADirectory(stack[i-1])
		}
		child, ok := current.Child(seg)
		res.Parent = current
		res.Name = seg
		if !ok {
			if i == len(stack)-1 {
				res.Node = nil
				return res, nil
			}
			return Resolution{}, errNotFound(seg)
		}
		current = child
		res.Node = child
	}
	return res, nil
}
