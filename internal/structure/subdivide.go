package structure

import (
	"context"

	"github.com/outlineworks/outliner/internal/pdftext"
)

// subdivide recursively repairs leaf nodes whose span exceeds the page or
// token thresholds by re-running the no-TOC generation strategy on just that
// node's page slice and attaching the resulting sub-tree as children.
// Existing children are descended first so nested oversized leaves are also
// repaired. Termination holds because every generated sub-entry covers a
// strictly smaller page range than its parent.
func (b *Builder) subdivide(ctx context.Context, nodes []*Node, pages []pdftext.Page, opts BuildOptions) {
	for _, n := range nodes {
		if len(n.Nodes) > 0 {
			b.subdivide(ctx, n.Nodes, pages, opts)
			continue
		}
		if !b.oversized(n, pages, opts) {
			continue
		}
		children := b.subdivideLeaf(ctx, n, pages, opts)
		if len(children) == 0 {
			continue
		}
		n.Nodes = children
		b.subdivide(ctx, n.Nodes, pages, opts)
	}
}

func (b *Builder) oversized(n *Node, pages []pdftext.Page, opts BuildOptions) bool {
	span := n.EndIndex - n.StartIndex + 1
	if span > opts.MaxPagesPerNode {
		return true
	}
	tokens := 0
	for i := n.StartIndex; i <= n.EndIndex && i <= len(pages); i++ {
		tokens += pages[i-1].TokenEstimate
	}
	return tokens > opts.MaxTokensPerNode
}

func (b *Builder) subdivideLeaf(ctx context.Context, n *Node, pages []pdftext.Page, opts BuildOptions) []*Node {
	if n.StartIndex < 1 || n.EndIndex > len(pages) {
		return nil
	}
	// The slice is renumbered from 1 so the oracle's page references stay
	// small and unambiguous; indices are shifted back afterwards.
	slice := make([]pdftext.Page, 0, n.EndIndex-n.StartIndex+1)
	for i := n.StartIndex; i <= n.EndIndex; i++ {
		p := pages[i-1]
		p.PageNum = i - n.StartIndex + 1
		slice = append(slice, p)
	}

	entries := b.generateEntries(ctx, slice, opts)
	if len(entries) == 0 {
		return nil
	}
	shift := n.StartIndex - 1
	for i := range entries {
		if entries[i].PhysicalIndex > 0 {
			entries[i].PhysicalIndex += shift
		}
	}

	children := Assemble(entries, n.EndIndex)
	if len(children) == 0 {
		return nil
	}
	// Children tile the parent's span: the first child absorbs any gap at
	// the front, Assemble already pins the last child to the parent's end.
	if children[0].StartIndex > n.StartIndex {
		children[0].StartIndex = n.StartIndex
	}
	// A lone child covering the parent's exact span would never shrink.
	if len(children) == 1 && children[0].StartIndex == n.StartIndex && children[0].EndIndex == n.EndIndex && len(children[0].Nodes) == 0 {
		return nil
	}
	return children
}
