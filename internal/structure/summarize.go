package structure

import (
	"context"
	"fmt"
	"strings"

	"github.com/outlineworks/outliner/internal/pdftext"
)

// Summaries and the document description are purely additive: a failed call
// leaves the field absent and never blocks tree validity.

const (
	summaryWindowChars   = 6000
	descriptionNodeLimit = 40
)

// summarizeNodes issues one concurrent call per node (depth-first order) to
// obtain short natural-language summaries from each node's page window.
func (b *Builder) summarizeNodes(ctx context.Context, roots []*Node, pages []pdftext.Page, opts BuildOptions) {
	nodes := flatten(roots)
	if len(nodes) == 0 {
		return
	}
	prompts := make([]string, len(nodes))
	for i, n := range nodes {
		prompts[i] = buildSummaryPrompt(n.Title, pageWindow(pages, n.StartIndex, n.EndIndex))
	}
	results := b.oracle.CallConcurrently(ctx, prompts, opts.Model, 1024, opts.MaxWorkers)
	for i, r := range results {
		if r.Err != nil {
			b.log.Warn("summary call failed", "title", nodes[i].Title, "error", r.Err)
			continue
		}
		if s := strings.TrimSpace(r.Text); s != "" {
			nodes[i].Summary = s
		}
	}
}

// describeDocument produces a one-sentence whole-document description from a
// compact rendering of the outline, bounded for prompt-size control.
func (b *Builder) describeDocument(ctx context.Context, docName string, roots []*Node, opts BuildOptions) string {
	nodes := flatten(roots)
	if len(nodes) > descriptionNodeLimit {
		nodes = nodes[:descriptionNodeLimit]
	}
	var sb strings.Builder
	for _, n := range nodes {
		fmt.Fprintf(&sb, "- %s (pages %d-%d)\n", n.Title, n.StartIndex, n.EndIndex)
	}
	resp, err := b.oracle.Call(ctx, buildDescriptionPrompt(docName, sb.String()), opts.Model, 256, nil)
	if err != nil {
		b.log.Warn("description call failed", "error", err)
		return ""
	}
	return strings.TrimSpace(resp)
}

func pageWindow(pages []pdftext.Page, start, end int) string {
	var sb strings.Builder
	for i := start; i <= end && i <= len(pages); i++ {
		if i < 1 {
			continue
		}
		sb.WriteString(pages[i-1].Text)
		sb.WriteString("\n")
		if sb.Len() >= summaryWindowChars {
			break
		}
	}
	return pdftext.Truncate(sb.String(), summaryWindowChars)
}
