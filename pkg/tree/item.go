package tree

import (
	"github.com/grovetools/kw/pkg/models"
)

// Node is one item in a derivation forest. Children were derived from it.
type Node struct {
	Item *models.Item

	// Hierarchy
	Parent   *Node
	Children []*Node
}

// Build arranges items into a forest by their derivation relations. An
// item whose inputs are not among items becomes a root. An item derived
// from several inputs is placed under the first one present. Roots and
// children keep the order of items.
func Build(items []*models.Item) []*Node {
	nodes := make([]*Node, len(items))
	byIdentity := make(map[string]*Node, len(items))
	for i, item := range items {
		nodes[i] = &Node{Item: item}
		if _, seen := byIdentity[item.Identity]; !seen {
			byIdentity[item.Identity] = nodes[i]
		}
	}

	var roots []*Node
	for _, n := range nodes {
		parent := firstParent(n, byIdentity)
		if parent == nil {
			roots = append(roots, n)
			continue
		}
		n.Parent = parent
		parent.Children = append(parent.Children, n)
	}
	return roots
}

func firstParent(n *Node, byIdentity map[string]*Node) *Node {
	for _, id := range n.Item.Relations.DerivedFrom {
		p, ok := byIdentity[id]
		if !ok || p == n || p.isDescendantOf(n) {
			continue
		}
		return p
	}
	return nil
}

func (n *Node) isDescendantOf(ancestor *Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

// Walk visits the forest depth first, parents before children.
func Walk(roots []*Node, fn func(n *Node, depth int)) {
	var visit func(n *Node, depth int)
	visit = func(n *Node, depth int) {
		fn(n, depth)
		for _, c := range n.Children {
			visit(c, depth+1)
		}
	}
	for _, r := range roots {
		visit(r, 0)
	}
}

// Size returns the number of nodes in the subtree rooted at n.
func (n *Node) Size() int {
	size := 1
	for _, c := range n.Children {
		size += c.Size()
	}
	return size
}
