package structure

import (
	"fmt"
	"sort"
)

// Assemble converts a flat, ordered entry list into a nested tree with
// computed page ranges. Entries without a resolved physical index, or with
// one outside [1, totalPages], are dropped. Equal physical pages are ordered
// lexicographically by structure path, which puts a parent ("2") before its
// child ("2.1") when both start on the same page.
func Assemble(entries []Entry, totalPages int) []*Node {
	located := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.PhysicalIndex >= 1 && e.PhysicalIndex <= totalPages {
			located = append(located, e)
		}
	}
	sort.SliceStable(located, func(i, j int) bool {
		if located[i].PhysicalIndex != located[j].PhysicalIndex {
			return located[i].PhysicalIndex < located[j].PhysicalIndex
		}
		return located[i].StructurePath < located[j].StructurePath
	})

	type frame struct {
		depth int
		node  *Node
	}
	var roots []*Node
	var stack []frame

	for _, e := range located {
		depth := e.Depth()
		node := &Node{Title: e.Title, StartIndex: e.PhysicalIndex}
		// Pop until the stack top is a strict ancestor.
		for len(stack) > 0 && stack[len(stack)-1].depth >= depth {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			roots = append(roots, node)
		} else {
			parent := stack[len(stack)-1].node
			parent.Nodes = append(parent.Nodes, node)
		}
		stack = append(stack, frame{depth: depth, node: node})
	}

	computeEnds(roots, totalPages)
	return roots
}

// computeEnds stamps EndIndex on every sibling list: each node ends where the
// next sibling starts, the last sibling inherits the parent's end, and a
// node's end never precedes its start.
func computeEnds(siblings []*Node, parentEnd int) {
	for i, n := range siblings {
		if i+1 < len(siblings) {
			n.EndIndex = siblings[i+1].StartIndex - 1
		} else {
			n.EndIndex = parentEnd
		}
		if n.EndIndex < n.StartIndex {
			n.EndIndex = n.StartIndex
		}
		computeEnds(n.Nodes, n.EndIndex)
	}
}

// AssignNodeIDs stamps a zero-padded, strictly increasing identifier on every
// node in depth-first preorder: parent before children, children before
// following siblings.
func AssignNodeIDs(roots []*Node) {
	counter := 0
	var walk func(nodes []*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			counter++
			n.NodeID = fmt.Sprintf("%04d", counter)
			walk(n.Nodes)
		}
	}
	walk(roots)
}

// flatten returns all nodes in depth-first preorder.
func flatten(roots []*Node) []*Node {
	var out []*Node
	var walk func(nodes []*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			out = append(out, n)
			walk(n.Nodes)
		}
	}
	walk(roots)
	return out
}
