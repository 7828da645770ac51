package structure

import (
	"fmt"
	"strings"

	"github.com/outlineworks/outliner/internal/pdftext"
)

// Prompt builders for every oracle interaction. Each prompt that expects
// structured output spells the JSON shape out and demands JSON-only replies;
// the response parser still treats the output as untrusted.

const entrySchemaHint = `Each element must be an object with these fields:
- "structure": hierarchical section number such as "1", "1.2", "2.1.3" (string)
- "title": the section title exactly as written (string)`

func buildTOCDetectPrompt(page pdftext.Page) string {
	var sb strings.Builder
	sb.WriteString("You are looking at a single page of a document.\n")
	sb.WriteString("Does this page contain a table of contents (a listing of the document's sections or chapters)?\n")
	sb.WriteString("Reply with only \"yes\" or \"no\".\n\n")
	sb.WriteString(page.Text)
	return sb.String()
}

func buildTOCExtractPrompt(tocText string) string {
	var sb strings.Builder
	sb.WriteString("The following pages contain a document's table of contents.\n")
	sb.WriteString("Reproduce the table of contents content verbatim, keeping section numbers, titles and any page numbers. Output nothing else.\n\n")
	sb.WriteString(tocText)
	return sb.String()
}

func buildTOCPageNumbersPrompt(tocContent string) string {
	var sb strings.Builder
	sb.WriteString("Here is a document's table of contents.\n")
	sb.WriteString("Do its entries carry explicit page numbers?\n")
	sb.WriteString("Reply with only \"yes\" or \"no\".\n\n")
	sb.WriteString(tocContent)
	return sb.String()
}

func buildTOCTransformPrompt(tocContent string) string {
	var sb strings.Builder
	sb.WriteString("Convert this table of contents into a JSON array.\n")
	sb.WriteString(entrySchemaHint)
	sb.WriteString("\n- \"page\": the page number stated in the table of contents, or null if none (integer or null)\n")
	sb.WriteString("\nRespond with ONLY the JSON array, no other text.\n\n")
	sb.WriteString(tocContent)
	return sb.String()
}

func buildLocatePrompt(candidates []Entry, offsets []int, group []pdftext.Page) string {
	var sb strings.Builder
	sb.WriteString("Below is a consecutive slice of document pages, each wrapped in <physical_index_N> tags, followed by a numbered list of section titles.\n")
	sb.WriteString("For every section that BEGINS on one of these pages, report the page it begins on.\n")
	sb.WriteString("Respond with ONLY a JSON array of objects {\"index\": <candidate number>, \"physical_index\": <page number>}. Sections that do not begin here must be omitted.\n\n")
	writeTaggedPages(&sb, group)
	sb.WriteString("\nCandidate sections:\n")
	for i, c := range candidates {
		fmt.Fprintf(&sb, "%d. %s\n", offsets[i], c.Title)
	}
	return sb.String()
}

func buildGeneratePrompt(group []pdftext.Page) string {
	var sb strings.Builder
	sb.WriteString("Below is a consecutive slice of document pages, each wrapped in <physical_index_N> tags.\n")
	sb.WriteString("Identify the hierarchical sections that begin within these pages and emit a JSON array.\n")
	sb.WriteString(entrySchemaHint)
	sb.WriteString("\n- \"physical_index\": the tagged page number the section begins on (integer)\n")
	sb.WriteString("\nRespond with ONLY the JSON array, no other text.\n\n")
	writeTaggedPages(&sb, group)
	return sb.String()
}

func buildContinuePrompt(previousTail []Entry, group []pdftext.Page) string {
	var sb strings.Builder
	sb.WriteString("You are continuing a hierarchical outline of a document. The most recent entries generated so far are:\n\n")
	for _, e := range previousTail {
		fmt.Fprintf(&sb, "%s %s (physical_index %d)\n", e.StructurePath, e.Title, e.PhysicalIndex)
	}
	sb.WriteString("\nContinue the outline for the next slice of pages below, keeping the numbering scheme consistent with the entries above. Do not repeat entries already listed.\n")
	sb.WriteString(entrySchemaHint)
	sb.WriteString("\n- \"physical_index\": the tagged page number the section begins on (integer)\n")
	sb.WriteString("\nRespond with ONLY the JSON array, no other text.\n\n")
	writeTaggedPages(&sb, group)
	return sb.String()
}

func buildVerifyPrompt(title string, page pdftext.Page) string {
	var sb strings.Builder
	sb.WriteString("Here is the text of one document page.\n")
	fmt.Fprintf(&sb, "Does a section titled %q start on this page? A fuzzy match on the title is fine.\n", title)
	sb.WriteString("Reply with only \"yes\" or \"no\".\n\n")
	sb.WriteString(pdftext.Truncate(page.Text, 2000))
	return sb.String()
}

func buildSummaryPrompt(title, window string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Summarize the document section titled %q in two or three sentences, based on the text below. Reply with only the summary.\n\n", title)
	sb.WriteString(window)
	return sb.String()
}

func buildDescriptionPrompt(docName, outline string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Here is the outline of the document %q:\n\n", docName)
	sb.WriteString(outline)
	sb.WriteString("\nDescribe what this document is in one sentence. Reply with only that sentence.\n")
	return sb.String()
}

const continueInstruction = "Continue exactly where your previous answer stopped. Do not repeat any text you already produced."

func writeTaggedPages(sb *strings.Builder, group []pdftext.Page) {
	for _, p := range group {
		fmt.Fprintf(sb, "<physical_index_%d>\n%s\n</physical_index_%d>\n", p.PageNum, p.Text, p.PageNum)
	}
}

// isYes is the fuzzy yes/no read: any response whose leading text contains
// "yes" counts as affirmative.
func isYes(resp string) bool {
	return strings.Contains(strings.ToLower(resp), "yes")
}
