package scalar

import (
	"context"
)

// Engine runs the payload scaling pipeline.
type Engine interface {
	// Analyze discovers the scalable entities of a payload template.
	Analyze(ctx context.Context, payload Document) ([]ScalableEntity, error)

	// Preview runs the full pipeline (structural rules, scaling, rule
	// application, reference resolution) without persisting anything.
	Preview(ctx context.Context, original Document, counts EntityCountMap, rules RuleSet) (*PipelineResult, error)

	// Generate runs the same pipeline; the result is recorded in history
	// and intended for persistence or export by the caller.
	Generate(ctx context.Context, original Document, counts EntityCountMap, rules RuleSet) (*PipelineResult, error)
}

// RuleStore persists rule-set documents keyed by an opaque identifier.
type RuleStore interface {
	Load(ctx context.Context, id string) (*RuleSetDocument, error)
	Save(ctx context.Context, doc *RuleSetDocument) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)

	// RuleHistory returns prior revisions of a rule set, newest first.
	RuleHistory(ctx context.Context, id string) ([]*RuleSetDocument, error)
}

// HistoryStore records generated responses, newest first, capped FIFO.
type HistoryStore interface {
	Record(ctx context.Context, record *GenerationRecord) error
	Responses(ctx context.Context, ruleSetID string) ([]*GenerationRecord, error)
}

// ReferenceProvider fetches live entities of one kind (project, account,
// cluster, subnet, image) from a control plane. Used only to seed leaf
// values into a template before the pipeline runs; the pipeline itself
// never touches the network.
type ReferenceProvider interface {
	Fetch(ctx context.Context, kind string) ([]ReferenceItem, error)
}

// Exporter ships a generated document to external storage.
type Exporter interface {
	Export(ctx context.Context, key string, result *PipelineResult) (string, error)
}
