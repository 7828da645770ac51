package structure

import (
	"context"
	"math/rand/v2"

	"github.com/outlineworks/outliner/internal/pdftext"
)

// verify statistically samples the entry list and asks the oracle whether
// each sampled section really starts on its assigned page. The returned
// accuracy is a confidence gate, not a correctness proof: it is the fraction
// of issued checks answered "yes". Entries whose physical index falls outside
// the document are un-verifiable and are excluded before sampling rather than
// counted as failures. No verifiable entries yields 0.0.
func (b *Builder) verify(ctx context.Context, entries []Entry, pages []pdftext.Page, opts BuildOptions) float64 {
	verifiable := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.PhysicalIndex >= 1 && e.PhysicalIndex <= len(pages) {
			verifiable = append(verifiable, e)
		}
	}
	if len(verifiable) == 0 {
		return 0.0
	}

	sampled := verifiable
	if len(verifiable) > opts.VerifySampleSize {
		perm := rand.Perm(len(verifiable))
		sampled = make([]Entry, 0, opts.VerifySampleSize)
		for _, idx := range perm[:opts.VerifySampleSize] {
			sampled = append(sampled, verifiable[idx])
		}
	}

	prompts := make([]string, len(sampled))
	for i, e := range sampled {
		prompts[i] = buildVerifyPrompt(e.Title, pages[e.PhysicalIndex-1])
	}

	results := b.oracle.CallConcurrently(ctx, prompts, opts.Model, 16, opts.MaxWorkers)
	confirmed := 0
	for i, r := range results {
		if r.Err != nil {
			b.log.Warn("verification call failed", "title", sampled[i].Title, "error", r.Err)
			continue
		}
		if isYes(r.Text) {
			confirmed++
		}
	}
	return float64(confirmed) / float64(len(prompts))
}
