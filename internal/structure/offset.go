package structure

import (
	"strings"

	"github.com/outlineworks/outliner/internal/pdftext"
)

// Page numbers printed inside a document rarely match physical PDF page
// indices (front matter shifts everything). A single global offset is
// recovered by finding, for the first entry whose title appears near its
// stated page, the physical page actually containing it.

const (
	offsetSearchBack    = 5
	offsetSearchForward = 20
	titleProbeLen       = 40
)

// ResolveOffset finds the global logical→physical offset for a TOC-derived
// entry list. It walks entries in order; for each one with a logical page it
// scans physical pages logical−5..logical+20 for the first ~40 characters of
// the title. The first hit decides the offset for the whole document. The
// second return is false when no entry matched anywhere in its window, in
// which case the offset defaults to zero.
func ResolveOffset(entries []Entry, pages []pdftext.Page) (int, bool) {
	for _, e := range entries {
		if e.LogicalPage <= 0 {
			continue
		}
		probe := titleProbe(e.Title)
		if probe == "" {
			continue
		}
		for delta := -offsetSearchBack; delta <= offsetSearchForward; delta++ {
			phys := e.LogicalPage + delta
			if phys < 1 || phys > len(pages) {
				continue
			}
			if strings.Contains(normalize(pages[phys-1].Text), probe) {
				return delta, true
			}
		}
	}
	return 0, false
}

// ApplyOffset returns a new entry list with the offset applied to every entry
// carrying a logical page. Entries without one are passed through untouched.
func ApplyOffset(entries []Entry, offset int) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		if e.LogicalPage > 0 {
			e.PhysicalIndex = e.LogicalPage + offset
		}
		out[i] = e
	}
	return out
}

func titleProbe(title string) string {
	return pdftext.Truncate(normalize(title), titleProbeLen)
}

// normalize lowercases and collapses whitespace so the probe survives line
// wrapping in the extracted page text.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
