package structure

import (
	"context"
	"log/slog"
	"time"

	"github.com/outlineworks/outliner/internal/pdftext"
)

// Builder infers a navigable section tree from raw PDF bytes, using the
// oracle as a fallible sub-routine. Nothing in a build raises a terminal
// error: every failure mode degrades the artifact (fewer entries, shallower
// tree, lower accuracy, missing summaries) but always yields a structurally
// valid Tree.
type Builder struct {
	extractor *pdftext.Extractor
	oracle    Oracle
	log       *slog.Logger
}

func NewBuilder(extractor *pdftext.Extractor, oracle Oracle, log *slog.Logger) *Builder {
	return &Builder{extractor: extractor, oracle: oracle, log: log}
}

// Build runs one synchronous document build to completion: extract pages,
// discover structure, verify, fall back once on low confidence, assemble,
// subdivide oversized leaves, assign ids, and optionally summarize.
func (b *Builder) Build(ctx context.Context, pdfBytes []byte, opts BuildOptions) *Tree {
	pages := b.extractor.Extract(pdfBytes)
	return b.BuildFromPages(ctx, pages, opts)
}

// BuildFromPages is Build minus extraction, for callers that already hold the
// page list.
func (b *Builder) BuildFromPages(ctx context.Context, pages []pdftext.Page, opts BuildOptions) *Tree {
	opts = opts.withDefaults()
	start := time.Now()

	tree := &Tree{
		DocName:    opts.DocName,
		Structure:  []*Node{},
		TotalPages: len(pages),
		Model:      opts.Model,
	}
	if len(pages) == 0 {
		// No extractable text. A well-formed empty tree, not an error.
		b.log.Warn("no extractable text", "doc", opts.DocName)
		tree.BuildDurationSeconds = time.Since(start).Seconds()
		return tree
	}

	disc := b.discover(ctx, pages, opts)
	accuracy := 0.0
	if len(disc.entries) > 0 {
		accuracy = b.verify(ctx, disc.entries, pages, opts)
	}

	// Low-confidence TOC-derived structures get exactly one regeneration via
	// the no-TOC strategy; the re-verified accuracy is what the artifact
	// reports, whatever it turns out to be.
	if disc.tocDetected && !disc.generated && accuracy < opts.VerifyThreshold {
		b.log.Info("low-confidence structure, regenerating",
			"accuracy", accuracy, "threshold", opts.VerifyThreshold)
		disc = discovery{
			entries:     b.generateEntries(ctx, pages, opts),
			tocDetected: disc.tocDetected,
			generated:   true,
		}
		accuracy = 0.0
		if len(disc.entries) > 0 {
			accuracy = b.verify(ctx, disc.entries, pages, opts)
		}
	}

	if !anyLocated(disc.entries) {
		// Downstream never special-cases "no structure": synthesize a single
		// root spanning the document.
		disc.entries = []Entry{{StructurePath: "1", Title: opts.DocName, PhysicalIndex: 1}}
	}

	roots := Assemble(disc.entries, len(pages))
	b.subdivide(ctx, roots, pages, opts)
	AssignNodeIDs(roots)

	if opts.GenerateSummaries {
		b.summarizeNodes(ctx, roots, pages, opts)
	}
	if opts.GenerateDescription {
		tree.DocDescription = b.describeDocument(ctx, opts.DocName, roots, opts)
	}

	tree.Structure = roots
	tree.VerificationAccuracy = accuracy
	tree.OffsetUnresolved = disc.offsetUnresolved
	tree.BuildDurationSeconds = time.Since(start).Seconds()
	return tree
}

func anyLocated(entries []Entry) bool {
	for _, e := range entries {
		if e.PhysicalIndex > 0 {
			return true
		}
	}
	return false
}
