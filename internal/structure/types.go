package structure

import (
	"context"
	"strings"

	"github.com/outlineworks/outliner/internal/llm"
)

// Oracle is the LLM invocation primitive. It is treated as an unreliable
// black box: responses may be malformed, truncated, or wrong, so callers
// retry (inside the gateway), continue, and statistically verify rather than
// trust outright.
type Oracle interface {
	Call(ctx context.Context, prompt, model string, maxTokens int, history []llm.Message) (string, error)
	CallWithStop(ctx context.Context, prompt, model string, maxTokens int, history []llm.Message) (string, bool, error)
	CallConcurrently(ctx context.Context, prompts []string, model string, maxTokens, maxWorkers int) []llm.Result
}

// Entry is a flat, ordered outline candidate produced by one discovery
// strategy. PhysicalIndex is 0 until resolved (offset application or section
// location); LogicalPage is 0 when the source TOC stated none.
type Entry struct {
	StructurePath string `json:"structure"`
	Title         string `json:"title"`
	LogicalPage   int    `json:"page,omitempty"`
	PhysicalIndex int    `json:"physical_index,omitempty"`
}

// Depth is the nesting level implied by the structure path: "1" and an
// absent path are depth 0, "1.2" is depth 1, and so on.
func (e Entry) Depth() int {
	return strings.Count(e.StructurePath, ".")
}

// Node is one section of the assembled tree. StartIndex and EndIndex are
// inclusive 1-based physical page bounds.
type Node struct {
	Title      string  `json:"title"`
	StartIndex int     `json:"start_index"`
	EndIndex   int     `json:"end_index"`
	NodeID     string  `json:"node_id,omitempty"`
	Summary    string  `json:"summary,omitempty"`
	Nodes      []*Node `json:"nodes,omitempty"`
}

// Tree is the final build artifact, owned by the caller for persistence.
type Tree struct {
	DocName              string  `json:"doc_name"`
	DocDescription       string  `json:"doc_description,omitempty"`
	Structure            []*Node `json:"structure"`
	TotalPages           int     `json:"total_pages"`
	Model                string  `json:"model"`
	BuildDurationSeconds float64 `json:"build_duration_seconds"`
	VerificationAccuracy float64 `json:"verification_accuracy"`
	// OffsetUnresolved reports that TOC page numbers could not be anchored to
	// physical pages and a zero offset was assumed.
	OffsetUnresolved bool `json:"offset_unresolved,omitempty"`
}

// BuildOptions configures one build. All fields except DocName and Model are
// tuning knobs with defaults.
type BuildOptions struct {
	DocName string
	Model   string

	// TOCCheckPages is how many leading pages are scanned for a TOC.
	TOCCheckPages int
	// MaxPagesPerNode and MaxTokensPerNode bound a leaf's span before the
	// subdivider regenerates structure inside it.
	MaxPagesPerNode  int
	MaxTokensPerNode int
	// GroupTokenLimit bounds the page groups sent per prompt in the
	// no-TOC and section-location strategies.
	GroupTokenLimit int

	VerifySampleSize int
	VerifyThreshold  float64
	MaxWorkers       int
	MaxTokensPerCall int

	GenerateSummaries   bool
	GenerateDescription bool
}

// DefaultBuildOptions returns the reference configuration.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		TOCCheckPages:    20,
		MaxPagesPerNode:  20,
		MaxTokensPerNode: 20000,
		GroupTokenLimit:  16000,
		VerifySampleSize: 10,
		VerifyThreshold:  0.6,
		MaxWorkers:       5,
		MaxTokensPerCall: 8192,
	}
}

func (o BuildOptions) withDefaults() BuildOptions {
	def := DefaultBuildOptions()
	if o.TOCCheckPages <= 0 {
		o.TOCCheckPages = def.TOCCheckPages
	}
	if o.MaxPagesPerNode <= 0 {
		o.MaxPagesPerNode = def.MaxPagesPerNode
	}
	if o.MaxTokensPerNode <= 0 {
		o.MaxTokensPerNode = def.MaxTokensPerNode
	}
	if o.GroupTokenLimit <= 0 {
		o.GroupTokenLimit = def.GroupTokenLimit
	}
	if o.VerifySampleSize <= 0 {
		o.VerifySampleSize = def.VerifySampleSize
	}
	if o.VerifyThreshold <= 0 {
		o.VerifyThreshold = def.VerifyThreshold
	}
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = def.MaxWorkers
	}
	if o.MaxTokensPerCall <= 0 {
		o.MaxTokensPerCall = def.MaxTokensPerCall
	}
	return o
}
