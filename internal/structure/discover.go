package structure

import (
	"context"
	"strings"

	"github.com/outlineworks/outliner/internal/llm"
	"github.com/outlineworks/outliner/internal/pdftext"
)

// Three mutually exclusive discovery strategies produce the flat entry list:
// a TOC with page numbers (offset resolution), a TOC without page numbers
// (groupwise section location), and no TOC at all (groupwise generation).
// Each build attempt runs exactly one strategy; a low-confidence attempt
// discards its entries and the fallback strategy starts fresh.

const (
	locateBatchSize  = 20
	continueTailSize = 10
)

// discovery is the per-build result of strategy selection.
type discovery struct {
	entries          []Entry
	tocDetected      bool
	offsetUnresolved bool
	// generated is true when the no-TOC strategy produced the entries, in
	// which case the verification gate has no further fallback to try.
	generated bool
}

// detectTOCPages asks the oracle, page by page over the leading pages,
// whether each contains a table of contents. Failed calls count as "no".
func (b *Builder) detectTOCPages(ctx context.Context, pages []pdftext.Page, opts BuildOptions) []pdftext.Page {
	limit := min(opts.TOCCheckPages, len(pages))
	var toc []pdftext.Page
	for _, page := range pages[:limit] {
		resp, err := b.oracle.Call(ctx, buildTOCDetectPrompt(page), opts.Model, 16, nil)
		if err != nil {
			b.log.Warn("toc detection call failed", "page", page.PageNum, "error", err)
			continue
		}
		if isYes(resp) {
			toc = append(toc, page)
		}
	}
	return toc
}

// discover selects and runs one strategy.
func (b *Builder) discover(ctx context.Context, pages []pdftext.Page, opts BuildOptions) discovery {
	tocPages := b.detectTOCPages(ctx, pages, opts)
	if len(tocPages) == 0 {
		b.log.Info("no toc detected, generating structure")
		return discovery{entries: b.generateEntries(ctx, pages, opts), generated: true}
	}

	var raw strings.Builder
	for _, p := range tocPages {
		raw.WriteString(p.Text)
		raw.WriteString("\n")
	}

	tocContent, err := b.callWithContinuation(ctx, buildTOCExtractPrompt(raw.String()), opts)
	if err != nil || strings.TrimSpace(tocContent) == "" {
		b.log.Warn("toc extraction failed, generating structure", "error", err)
		return discovery{tocDetected: true, generated: true, entries: b.generateEntries(ctx, pages, opts)}
	}

	hasPageNums := false
	if resp, err := b.oracle.Call(ctx, buildTOCPageNumbersPrompt(tocContent), opts.Model, 16, nil); err == nil {
		hasPageNums = isYes(resp)
	}

	entries := b.transformTOC(ctx, tocContent, opts)
	if len(entries) == 0 {
		b.log.Warn("toc transform yielded no entries, generating structure")
		return discovery{tocDetected: true, generated: true, entries: b.generateEntries(ctx, pages, opts)}
	}

	if hasPageNums {
		offset, resolved := ResolveOffset(entries, pages)
		if !resolved {
			b.log.Warn("page offset unresolved, assuming zero")
		}
		return discovery{
			entries:          ApplyOffset(entries, offset),
			tocDetected:      true,
			offsetUnresolved: !resolved,
		}
	}

	b.locateEntries(ctx, entries, pages, opts)
	return discovery{entries: entries, tocDetected: true}
}

// transformTOC turns verbatim TOC content into entries.
func (b *Builder) transformTOC(ctx context.Context, tocContent string, opts BuildOptions) []Entry {
	text, err := b.callWithContinuation(ctx, buildTOCTransformPrompt(tocContent), opts)
	if err != nil {
		b.log.Warn("toc transform call failed", "error", err)
		return nil
	}
	return decodeEntries(text)
}

// locateEntries resolves physical indices for TOC entries that carry no page
// numbers. The document is partitioned into token-bounded page groups; for
// each group the still-unlocated entries are offered in batches and the first
// physical page the oracle reports for an entry is recorded.
func (b *Builder) locateEntries(ctx context.Context, entries []Entry, pages []pdftext.Page, opts BuildOptions) {
	groups := groupPages(pages, opts.GroupTokenLimit)
	for _, group := range groups {
		unlocated := unlocatedIndices(entries)
		if len(unlocated) == 0 {
			return
		}
		for start := 0; start < len(unlocated); start += locateBatchSize {
			batch := unlocated[start:min(start+locateBatchSize, len(unlocated))]
			candidates := make([]Entry, len(batch))
			for i, idx := range batch {
				candidates[i] = entries[idx]
			}
			resp, err := b.oracle.Call(ctx, buildLocatePrompt(candidates, batch, group), opts.Model, opts.MaxTokensPerCall, nil)
			if err != nil {
				b.log.Warn("section location call failed", "error", err)
				continue
			}
			var hits []struct {
				Index         int `json:"index"`
				PhysicalIndex int `json:"physical_index"`
			}
			v := llm.ExtractJSON(resp)
			if v == nil || llm.DecodeJSON(v, &hits) != nil {
				continue
			}
			lo, hi := group[0].PageNum, group[len(group)-1].PageNum
			for _, h := range hits {
				if h.Index < 0 || h.Index >= len(entries) {
					continue
				}
				if h.PhysicalIndex < lo || h.PhysicalIndex > hi {
					continue
				}
				if entries[h.Index].PhysicalIndex == 0 {
					entries[h.Index].PhysicalIndex = h.PhysicalIndex
				}
			}
		}
	}
}

// generateEntries is the no-TOC strategy: hierarchical entries are generated
// group by group, each continuation keeping the numbering consistent with the
// tail of what was already produced.
func (b *Builder) generateEntries(ctx context.Context, pages []pdftext.Page, opts BuildOptions) []Entry {
	groups := groupPages(pages, opts.GroupTokenLimit)
	var all []Entry
	for i, group := range groups {
		var prompt string
		if i == 0 || len(all) == 0 {
			prompt = buildGeneratePrompt(group)
		} else {
			tail := all[max(0, len(all)-continueTailSize):]
			prompt = buildContinuePrompt(tail, group)
		}
		text, err := b.callWithContinuation(ctx, prompt, opts)
		if err != nil {
			b.log.Warn("structure generation call failed", "group", i, "error", err)
			continue
		}
		all = append(all, decodeEntries(text)...)
	}
	return all
}

// callWithContinuation issues a prompt and, when the reply was cut off by the
// length limit, asks once for the remainder with the prior exchange as
// history. A failed continuation leaves the truncated text as-is; the
// response parser's balanced-span scrape salvages what it can.
func (b *Builder) callWithContinuation(ctx context.Context, prompt string, opts BuildOptions) (string, error) {
	text, truncated, err := b.oracle.CallWithStop(ctx, prompt, opts.Model, opts.MaxTokensPerCall, nil)
	if err != nil {
		return "", err
	}
	if truncated {
		history := []llm.Message{
			{Role: "user", Content: prompt},
			{Role: "assistant", Content: text},
		}
		more, _, err := b.oracle.CallWithStop(ctx, continueInstruction, opts.Model, opts.MaxTokensPerCall, history)
		if err != nil {
			b.log.Warn("continuation call failed", "error", err)
		} else {
			text += more
		}
	}
	return text, nil
}

// decodeEntries parses oracle output into entries, dropping malformed
// elements rather than failing the batch.
func decodeEntries(text string) []Entry {
	v := llm.ExtractJSON(text)
	if v == nil {
		return nil
	}
	var wire []struct {
		Structure     string `json:"structure"`
		Title         string `json:"title"`
		Page          *int   `json:"page"`
		PhysicalIndex *int   `json:"physical_index"`
	}
	if err := llm.DecodeJSON(v, &wire); err != nil {
		return nil
	}
	entries := make([]Entry, 0, len(wire))
	for _, w := range wire {
		if strings.TrimSpace(w.Title) == "" {
			continue
		}
		e := Entry{StructurePath: w.Structure, Title: w.Title}
		if w.Page != nil {
			e.LogicalPage = *w.Page
		}
		if w.PhysicalIndex != nil {
			e.PhysicalIndex = *w.PhysicalIndex
		}
		entries = append(entries, e)
	}
	return entries
}

// groupPages partitions pages into consecutive groups whose summed token
// estimates stay under limit. A single page over the limit still gets its own
// group.
func groupPages(pages []pdftext.Page, limit int) [][]pdftext.Page {
	var groups [][]pdftext.Page
	var current []pdftext.Page
	tokens := 0
	for _, p := range pages {
		if len(current) > 0 && tokens+p.TokenEstimate > limit {
			groups = append(groups, current)
			current = nil
			tokens = 0
		}
		current = append(current, p)
		tokens += p.TokenEstimate
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

func unlocatedIndices(entries []Entry) []int {
	var out []int
	for i, e := range entries {
		if e.PhysicalIndex == 0 {
			out = append(out, i)
		}
	}
	return out
}
