package structure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/outlineworks/outliner/internal/llm"
	"github.com/outlineworks/outliner/internal/pdftext"
)

// fakeOracle scripts oracle behavior by routing on prompt content. It keeps a
// call log so tests can assert which strategies ran.
type fakeOracle struct {
	mu      sync.Mutex
	handler func(prompt string, history []llm.Message) (string, bool, error)
	calls   []string
}

func (f *fakeOracle) record(prompt string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, prompt)
}

func (f *fakeOracle) countCalls(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.Contains(c, substr) {
			n++
		}
	}
	return n
}

func (f *fakeOracle) Call(ctx context.Context, prompt, model string, maxTokens int, history []llm.Message) (string, error) {
	text, _, err := f.CallWithStop(ctx, prompt, model, maxTokens, history)
	return text, err
}

func (f *fakeOracle) CallWithStop(ctx context.Context, prompt, model string, maxTokens int, history []llm.Message) (string, bool, error) {
	f.record(prompt)
	return f.handler(prompt, history)
}

func (f *fakeOracle) CallConcurrently(ctx context.Context, prompts []string, model string, maxTokens, maxWorkers int) []llm.Result {
	results := make([]llm.Result, len(prompts))
	for i, p := range prompts {
		text, err := f.Call(ctx, p, model, maxTokens, nil)
		results[i] = llm.Result{Text: text, Err: err}
	}
	return results
}

func testBuilder(oracle Oracle) *Builder {
	log := slog.New(slog.DiscardHandler)
	return NewBuilder(pdftext.NewExtractor(pdftext.DefaultConfig(), log), oracle, log)
}

func testOpts() BuildOptions {
	opts := DefaultBuildOptions()
	opts.DocName = "test-doc"
	opts.Model = "test-model"
	return opts
}

func promptKind(prompt string) string {
	switch {
	case strings.Contains(prompt, "Does this page contain a table of contents"):
		return "detect"
	case strings.Contains(prompt, "Reproduce the table of contents"):
		return "extract"
	case strings.Contains(prompt, "Do its entries carry explicit page numbers"):
		return "pagenums"
	case strings.Contains(prompt, "Convert this table of contents"):
		return "transform"
	case strings.Contains(prompt, "For every section that BEGINS"):
		return "locate"
	case strings.Contains(prompt, "Identify the hierarchical sections"):
		return "generate"
	case strings.Contains(prompt, "You are continuing a hierarchical outline"):
		return "continue"
	case strings.Contains(prompt, "start on this page"):
		return "verify"
	case strings.Contains(prompt, "Summarize the document section"):
		return "summary"
	case strings.Contains(prompt, "Describe what this document is"):
		return "describe"
	default:
		return "unknown"
	}
}

func TestBuild_ZeroPagesYieldsEmptyTree(t *testing.T) {
	oracle := &fakeOracle{handler: func(prompt string, _ []llm.Message) (string, bool, error) {
		t.Fatalf("oracle must not be called for an empty document, prompt: %s", prompt)
		return "", false, nil
	}}
	b := testBuilder(oracle)

	tree := b.BuildFromPages(context.Background(), nil, testOpts())
	if tree.TotalPages != 0 {
		t.Errorf("expected total_pages 0, got %d", tree.TotalPages)
	}
	if len(tree.Structure) != 0 {
		t.Errorf("expected empty structure, got %d roots", len(tree.Structure))
	}
	if tree.VerificationAccuracy != 0.0 {
		t.Errorf("expected accuracy 0.0, got %f", tree.VerificationAccuracy)
	}
}

func TestBuild_TOCWithPageNumbers(t *testing.T) {
	// Logical TOC pages are shifted by k=2 from physical pages. The logical
	// pages sit deep enough that the search window never reaches back to the
	// TOC page itself, which also lists the titles.
	const k = 2
	sections := map[int]string{
		11 + k: "Introduction",
		14 + k: "Methods",
	}
	pages := make([]pdftext.Page, 20)
	for i := range pages {
		text := fmt.Sprintf("body of page %d", i+1)
		if title, ok := sections[i+1]; ok {
			text = title + "\n" + text
		}
		if i == 0 {
			text = "Table of Contents\nIntroduction ... 11\nMethods ... 14"
		}
		pages[i] = pdftext.Page{PageNum: i + 1, Text: text, TokenEstimate: pdftext.EstimateTokens(text)}
	}

	oracle := &fakeOracle{}
	oracle.handler = func(prompt string, _ []llm.Message) (string, bool, error) {
		switch promptKind(prompt) {
		case "detect":
			if strings.Contains(prompt, "Table of Contents") {
				return "yes", false, nil
			}
			return "no", false, nil
		case "extract":
			return "Introduction ... 11\nMethods ... 14", false, nil
		case "pagenums":
			return "yes", false, nil
		case "transform":
			return `[{"structure": "1", "title": "Introduction", "page": 11},
				{"structure": "2", "title": "Methods", "page": 14}]`, false, nil
		case "verify":
			return "yes", false, nil
		default:
			return "", false, errors.New("unexpected prompt: " + promptKind(prompt))
		}
	}

	tree := testBuilder(oracle).BuildFromPages(context.Background(), pages, testOpts())

	if tree.VerificationAccuracy != 1.0 {
		t.Errorf("expected accuracy 1.0, got %f", tree.VerificationAccuracy)
	}
	if tree.OffsetUnresolved {
		t.Error("offset should have resolved")
	}
	if len(tree.Structure) != 2 {
		t.Fatalf("expected 2 roots, got %d", len(tree.Structure))
	}
	if tree.Structure[0].StartIndex != 11+k {
		t.Errorf("Introduction should start at physical %d, got %d", 11+k, tree.Structure[0].StartIndex)
	}
	if tree.Structure[1].StartIndex != 14+k {
		t.Errorf("Methods should start at physical %d, got %d", 14+k, tree.Structure[1].StartIndex)
	}
	if tree.Structure[1].EndIndex != 20 {
		t.Errorf("last root should end at 20, got %d", tree.Structure[1].EndIndex)
	}
	if tree.Structure[0].NodeID == "" {
		t.Error("node ids should be assigned")
	}
}

func TestBuild_LowConfidenceFallsBackOnce(t *testing.T) {
	pages := make([]pdftext.Page, 6)
	for i := range pages {
		text := fmt.Sprintf("page %d content", i+1)
		if i == 0 {
			text = "Table of Contents\nGhost Chapter ... 1"
		}
		pages[i] = pdftext.Page{PageNum: i + 1, Text: text, TokenEstimate: pdftext.EstimateTokens(text)}
	}

	oracle := &fakeOracle{}
	regenerated := false
	oracle.handler = func(prompt string, _ []llm.Message) (string, bool, error) {
		switch promptKind(prompt) {
		case "detect":
			if strings.Contains(prompt, "Table of Contents") {
				return "yes", false, nil
			}
			return "no", false, nil
		case "extract":
			return "Ghost Chapter ... 1", false, nil
		case "pagenums":
			return "no", false, nil
		case "transform":
			return `[{"structure": "1", "title": "Ghost Chapter"}]`, false, nil
		case "locate":
			return `[{"index": 0, "physical_index": 2}]`, false, nil
		case "generate":
			regenerated = true
			return `[{"structure": "1", "title": "Actual Content", "physical_index": 1}]`, false, nil
		case "verify":
			// First structure is wrong, regenerated one is right.
			if regenerated {
				return "yes", false, nil
			}
			return "no", false, nil
		default:
			return "", false, errors.New("unexpected prompt: " + promptKind(prompt))
		}
	}

	tree := testBuilder(oracle).BuildFromPages(context.Background(), pages, testOpts())

	if !regenerated {
		t.Fatal("expected fallback regeneration to run")
	}
	if got := oracle.countCalls("Identify the hierarchical sections"); got != 1 {
		t.Fatalf("expected exactly one regeneration attempt, got %d", got)
	}
	// The artifact reports the second attempt's accuracy, not the first.
	if tree.VerificationAccuracy != 1.0 {
		t.Errorf("expected accuracy 1.0 from second attempt, got %f", tree.VerificationAccuracy)
	}
	if len(tree.Structure) != 1 || tree.Structure[0].Title != "Actual Content" {
		t.Fatalf("expected regenerated structure, got %#v", tree.Structure)
	}
}

func TestBuild_OracleAlwaysFailingStillYieldsValidTree(t *testing.T) {
	pages := make([]pdftext.Page, 5)
	for i := range pages {
		text := fmt.Sprintf("page %d", i+1)
		pages[i] = pdftext.Page{PageNum: i + 1, Text: text, TokenEstimate: 1}
	}

	oracle := &fakeOracle{handler: func(string, []llm.Message) (string, bool, error) {
		return "", false, errors.New("llm call failed: retries exhausted")
	}}

	opts := testOpts()
	tree := testBuilder(oracle).BuildFromPages(context.Background(), pages, opts)

	if tree.TotalPages != 5 {
		t.Errorf("expected total_pages 5, got %d", tree.TotalPages)
	}
	if len(tree.Structure) != 1 {
		t.Fatalf("expected synthesized single root, got %d roots", len(tree.Structure))
	}
	root := tree.Structure[0]
	if root.Title != opts.DocName {
		t.Errorf("synthesized root should carry the document name, got %q", root.Title)
	}
	if root.StartIndex != 1 || root.EndIndex != 5 {
		t.Errorf("synthesized root should span the document, got [%d,%d]", root.StartIndex, root.EndIndex)
	}
	if tree.VerificationAccuracy != 0.0 {
		t.Errorf("expected accuracy 0.0, got %f", tree.VerificationAccuracy)
	}
}

func TestBuild_NoTOCUsesGeneration(t *testing.T) {
	pages := make([]pdftext.Page, 4)
	for i := range pages {
		text := fmt.Sprintf("plain page %d", i+1)
		pages[i] = pdftext.Page{PageNum: i + 1, Text: text, TokenEstimate: pdftext.EstimateTokens(text)}
	}

	oracle := &fakeOracle{}
	oracle.handler = func(prompt string, _ []llm.Message) (string, bool, error) {
		switch promptKind(prompt) {
		case "detect":
			return "no", false, nil
		case "generate":
			return `[{"structure": "1", "title": "Only Section", "physical_index": 1}]`, false, nil
		case "verify":
			return "yes", false, nil
		default:
			return "", false, errors.New("unexpected prompt: " + promptKind(prompt))
		}
	}

	tree := testBuilder(oracle).BuildFromPages(context.Background(), pages, testOpts())
	if len(tree.Structure) != 1 || tree.Structure[0].Title != "Only Section" {
		t.Fatalf("expected generated structure, got %#v", tree.Structure)
	}
	if got := oracle.countCalls("table of contents (a listing"); got != 4 {
		t.Errorf("expected 4 detection calls, got %d", got)
	}
}

func TestBuild_ModeBLocatesEntriesByGroup(t *testing.T) {
	pages := make([]pdftext.Page, 6)
	for i := range pages {
		text := fmt.Sprintf("content of page %d", i+1)
		if i == 0 {
			text = "Contents\nAlpha\nBeta"
		}
		pages[i] = pdftext.Page{PageNum: i + 1, Text: text, TokenEstimate: pdftext.EstimateTokens(text)}
	}

	oracle := &fakeOracle{}
	oracle.handler = func(prompt string, _ []llm.Message) (string, bool, error) {
		switch promptKind(prompt) {
		case "detect":
			if strings.Contains(prompt, "Contents") {
				return "yes", false, nil
			}
			return "no", false, nil
		case "extract":
			return "Alpha\nBeta", false, nil
		case "pagenums":
			return "no", false, nil
		case "transform":
			return `[{"structure": "1", "title": "Alpha"}, {"structure": "2", "title": "Beta"}]`, false, nil
		case "locate":
			return `[{"index": 0, "physical_index": 2}, {"index": 1, "physical_index": 5}]`, false, nil
		case "verify":
			return "yes", false, nil
		default:
			return "", false, errors.New("unexpected prompt: " + promptKind(prompt))
		}
	}

	tree := testBuilder(oracle).BuildFromPages(context.Background(), pages, testOpts())
	if len(tree.Structure) != 2 {
		t.Fatalf("expected 2 roots, got %d", len(tree.Structure))
	}
	if tree.Structure[0].StartIndex != 2 || tree.Structure[1].StartIndex != 5 {
		t.Errorf("expected located starts 2 and 5, got %d and %d",
			tree.Structure[0].StartIndex, tree.Structure[1].StartIndex)
	}
}

func TestBuild_SummariesAndDescription(t *testing.T) {
	pages := []pdftext.Page{
		{PageNum: 1, Text: "solo page", TokenEstimate: 2},
	}
	oracle := &fakeOracle{}
	oracle.handler = func(prompt string, _ []llm.Message) (string, bool, error) {
		switch promptKind(prompt) {
		case "detect":
			return "no", false, nil
		case "generate":
			return `[{"structure": "1", "title": "Solo", "physical_index": 1}]`, false, nil
		case "verify":
			return "yes", false, nil
		case "summary":
			return "A short summary.", false, nil
		case "describe":
			return "A one-page test document.", false, nil
		default:
			return "", false, errors.New("unexpected prompt: " + promptKind(prompt))
		}
	}

	opts := testOpts()
	opts.GenerateSummaries = true
	opts.GenerateDescription = true
	tree := testBuilder(oracle).BuildFromPages(context.Background(), pages, opts)

	if tree.Structure[0].Summary != "A short summary." {
		t.Errorf("expected summary, got %q", tree.Structure[0].Summary)
	}
	if tree.DocDescription != "A one-page test document." {
		t.Errorf("expected description, got %q", tree.DocDescription)
	}
}

func TestCallWithContinuation_AppendsTruncatedRemainder(t *testing.T) {
	first := `[{"structure": "1", "title": "Part`
	rest := ` One", "physical_index": 1}]`

	oracle := &fakeOracle{}
	oracle.handler = func(prompt string, history []llm.Message) (string, bool, error) {
		if len(history) == 0 {
			return first, true, nil
		}
		if history[len(history)-1].Content != first {
			t.Errorf("continuation history should carry the truncated text")
		}
		return rest, false, nil
	}

	b := testBuilder(oracle)
	text, err := b.callWithContinuation(context.Background(), "Identify the hierarchical sections test", testOpts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries := decodeEntries(text)
	if len(entries) != 1 || entries[0].Title != "Part One" {
		t.Fatalf("expected reassembled entry, got %#v", entries)
	}
}
