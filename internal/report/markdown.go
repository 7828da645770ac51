package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"

	"github.com/outlineworks/outliner/internal/structure"
)

// WriteMarkdown renders a built tree as a human-readable outline document.
func WriteMarkdown(w io.Writer, tree *structure.Tree) error {
	md := markdown.NewMarkdown(w)

	md.H1(tree.DocName)
	if tree.DocDescription != "" {
		md.PlainText(tree.DocDescription)
		md.PlainText("")
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Total pages", strconv.Itoa(tree.TotalPages)},
			{"Model", tree.Model},
			{"Verification accuracy", fmt.Sprintf("%.2f", tree.VerificationAccuracy)},
			{"Build duration", fmt.Sprintf("%.1fs", tree.BuildDurationSeconds)},
			{"Page offset resolved", strconv.FormatBool(!tree.OffsetUnresolved)},
		},
	})

	md.H2("Outline")
	if len(tree.Structure) == 0 {
		md.PlainText("_No structure could be inferred._")
	} else {
		var sb strings.Builder
		writeNodes(&sb, tree.Structure, 0)
		md.PlainText(sb.String())
	}

	return md.Build()
}

func writeNodes(sb *strings.Builder, nodes []*structure.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, n := range nodes {
		fmt.Fprintf(sb, "%s- **%s** (pages %d–%d)\n", indent, n.Title, n.StartIndex, n.EndIndex)
		if n.Summary != "" {
			fmt.Fprintf(sb, "%s  %s\n", indent, n.Summary)
		}
		writeNodes(sb, n.Nodes, depth+1)
	}
}
