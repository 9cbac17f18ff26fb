package tree

import (
	"fmt"
	"strings"

	"github.com/cuemby/cyclone/pkg/types"
	"github.com/elliotchance/orderedmap"
)

// Node is one named position in a configuration tree. A Node either holds a
// typed Value (a leaf) or an ordered set of named children (a container);
// the two are not mutually exclusive on the struct but are by convention
// never populated at once by the builders in this package.
type Node struct {
	name     string
	parent   *Node
	value    *types.Value
	hasValue bool
	children *orderedmap.OrderedMap
}

// New creates an empty root node named "root".
func New() *Node {
	return &Node{name: "root", children: orderedmap.NewOrderedMap()}
}

// Name returns this node's key within its parent.
func (n *Node) Name() string { return n.name }

// Child returns (and, if create is true, lazily creates) the named child.
func (n *Node) Child(name string, create bool) (*Node, bool) {
	if n.children == nil {
		n.children = orderedmap.NewOrderedMap()
	}
	if c, ok := n.children.Get(name); ok {
		return c.(*Node), true
	}
	if !create {
		return nil, false
	}
	c := &Node{name: name, parent: n, children: orderedmap.NewOrderedMap()}
	n.children.Set(name, c)
	return c, true
}

// Children returns the direct children in insertion order.
func (n *Node) Children() []*Node {
	if n.children == nil {
		return nil
	}
	out := make([]*Node, 0, n.children.Len())
	for el := n.children.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*Node))
	}
	return out
}

// ChildNames returns the direct children's names in insertion order.
func (n *Node) ChildNames() []string {
	if n.children == nil {
		return nil
	}
	out := make([]string, 0, n.children.Len())
	for el := n.children.Front(); el != nil; el = el.Next() {
		out = append(out, el.Key.(string))
	}
	return out
}

// Root walks up to the tree's root node.
func (n *Node) Root() *Node {
	cur := n
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// Parent returns the parent node, or nil at the root.
func (n *Node) Parent() *Node { return n.parent }

// Path returns the absolute, "/"-joined path from root to this node.
func (n *Node) Path() string {
	if n.parent == nil {
		return "/"
	}
	var segs []string
	for cur := n; cur.parent != nil; cur = cur.parent {
		segs = append([]string{cur.name}, segs...)
	}
	return "/" + strings.Join(segs, "/")
}

// Move resolves an absolute ("/a/b"), relative ("a/b"), or special (".",
// "..") path starting from n, returning the target node. It never creates
// nodes.
func (n *Node) Move(path string) (*Node, error) {
	if path == "" || path == "." {
		return n, nil
	}
	cur := n
	if strings.HasPrefix(path, "/") {
		cur = n.Root()
		path = strings.TrimPrefix(path, "/")
		if path == "" {
			return cur, nil
		}
	}
	for _, seg := range strings.Split(path, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			if cur.parent == nil {
				return nil, fmt.Errorf("tree: move %q: above root", path)
			}
			cur = cur.parent
		default:
			c, ok := cur.Child(seg, false)
			if !ok {
				return nil, fmt.Errorf("tree: move %q: no child %q at %s", path, seg, cur.Path())
			}
			cur = c
		}
	}
	return cur, nil
}

// SetValue writes a typed leaf value at this node.
func (n *Node) SetValue(v types.Value) {
	n.value = &v
	n.hasValue = true
}

// Value reads the typed leaf value at this node.
func (n *Node) Value() (types.Value, bool) {
	if !n.hasValue {
		return types.Value{}, false
	}
	return *n.value, true
}

// IsLeaf reports whether this node holds a value rather than children.
func (n *Node) IsLeaf() bool { return n.hasValue }
