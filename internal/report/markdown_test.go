package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/outlineworks/outliner/internal/structure"
)

func TestWriteMarkdown(t *testing.T) {
	tree := &structure.Tree{
		DocName:              "Annual Report",
		DocDescription:       "A yearly summary of operations.",
		TotalPages:           30,
		Model:                "test-model",
		VerificationAccuracy: 0.85,
		BuildDurationSeconds: 12.3,
		Structure: []*structure.Node{
			{
				Title: "Overview", StartIndex: 1, EndIndex: 10, NodeID: "0001",
				Summary: "High level results.",
				Nodes: []*structure.Node{
					{Title: "Financials", StartIndex: 3, EndIndex: 10, NodeID: "0002"},
				},
			},
			{Title: "Outlook", StartIndex: 11, EndIndex: 30, NodeID: "0003"},
		},
	}

	var buf bytes.Buffer
	if err := WriteMarkdown(&buf, tree); err != nil {
		t.Fatalf("write markdown: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"# Annual Report",
		"A yearly summary of operations.",
		"## Outline",
		"- **Overview** (pages 1–10)",
		"High level results.",
		"  - **Financials** (pages 3–10)",
		"- **Outlook** (pages 11–30)",
		"0.85",
		"test-model",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q\n%s", want, out)
		}
	}
}

func TestWriteMarkdown_EmptyStructure(t *testing.T) {
	tree := &structure.Tree{DocName: "Empty", TotalPages: 0}

	var buf bytes.Buffer
	if err := WriteMarkdown(&buf, tree); err != nil {
		t.Fatalf("write markdown: %v", err)
	}
	if !strings.Contains(buf.String(), "No structure could be inferred") {
		t.Errorf("empty tree should note the missing outline:\n%s", buf.String())
	}
}

func TestWriteMarkdown_UnresolvedOffsetSurfaced(t *testing.T) {
	tree := &structure.Tree{
		DocName:          "Shifty",
		TotalPages:       5,
		OffsetUnresolved: true,
		Structure:        []*structure.Node{{Title: "Only", StartIndex: 1, EndIndex: 5, NodeID: "0001"}},
	}

	var buf bytes.Buffer
	if err := WriteMarkdown(&buf, tree); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Page offset resolved") || !strings.Contains(buf.String(), "false") {
		t.Errorf("unresolved offset not surfaced:\n%s", buf.String())
	}
}
