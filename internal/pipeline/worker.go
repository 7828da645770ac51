package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/outlineworks/outliner/internal/config"
	"github.com/outlineworks/outliner/internal/store"
	"github.com/outlineworks/outliner/internal/structure"
)

// Worker runs a single outline build job to completion and persists the
// resulting tree.
type Worker struct {
	builder *structure.Builder
	store   *store.Store
	log     *slog.Logger
	cfg     config.Config
}

func NewWorker(builder *structure.Builder, st *store.Store, log *slog.Logger, cfg config.Config) *Worker {
	return &Worker{builder: builder, store: st, log: log, cfg: cfg}
}

// Process builds the tree for a job. A build never fails structurally; the
// only failure mode here is persistence.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "doc_id", job.DocID)

	job.SetStatus(StatusBuilding, "building")
	tree := w.builder.Build(ctx, job.FileData(), structure.BuildOptions{
		DocName:             job.DocName,
		Model:               w.cfg.AnthropicModel,
		TOCCheckPages:       w.cfg.TOCCheckPages,
		MaxPagesPerNode:     w.cfg.MaxPagesPerNode,
		MaxTokensPerNode:    w.cfg.MaxTokensPerNode,
		VerifySampleSize:    w.cfg.VerifySampleSize,
		VerifyThreshold:     w.cfg.VerifyThreshold,
		MaxWorkers:          w.cfg.MaxLLMWorkers,
		GenerateSummaries:   w.cfg.GenerateSummaries,
		GenerateDescription: w.cfg.GenerateDescription,
	})
	job.ReleaseFileData()

	if tree.TotalPages == 0 {
		log.Warn("no extractable text, storing empty tree")
		job.AddError("no extractable text")
	}
	job.SetResult(tree.TotalPages, countNodes(tree.Structure), tree.VerificationAccuracy, tree.OffsetUnresolved)

	job.SetStatus(StatusStoring, "storing")
	if err := w.store.SaveTree(ctx, job.DocID, tree); err != nil {
		log.Error("store failed", "error", err)
		job.AddError(fmt.Sprintf("store: %s", err))
		job.SetStatus(StatusFailed, "storing")
		return
	}

	log.Info("build complete",
		"total_pages", tree.TotalPages,
		"accuracy", tree.VerificationAccuracy,
		"duration_seconds", tree.BuildDurationSeconds)
	job.SetStatus(StatusCompleted, "done")
}

func countNodes(nodes []*structure.Node) int {
	n := len(nodes)
	for _, node := range nodes {
		n += countNodes(node.Nodes)
	}
	return n
}
