package internal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mahino/scalar"
)

// Pipeline is the scaling engine: structural rule layer, scaling, rule
// application, and reference resolution, in that order. Each run is
// synchronous and pure with respect to its input document; every stage
// works on a deep copy, so concurrent runs need no synchronization.
type Pipeline struct {
	cfg     *scalar.Config
	policy  *BlueprintPolicy
	history scalar.HistoryStore
	logger  *zap.SugaredLogger
}

// NewPipeline builds the engine. history may be nil; Generate then skips
// recording.
func NewPipeline(cfg *scalar.Config, history scalar.HistoryStore, logger *zap.SugaredLogger) *Pipeline {
	if cfg == nil {
		cfg = scalar.DefaultConfig()
	}
	if logger == nil {
		logger = zap.S()
	}
	return &Pipeline{
		cfg:     cfg,
		policy:  NewBlueprintPolicy(cfg.Blueprint, logger),
		history: history,
		logger:  logger,
	}
}

// Analyze discovers the scalable entities of a payload template. For
// blueprint documents the policy's non-scalable arrays are hidden from
// the result.
func (p *Pipeline) Analyze(ctx context.Context, payload scalar.Document) ([]scalar.ScalableEntity, error) {
	if payload == nil {
		return nil, scalar.NewMalformedDocumentError("payload is nil", nil)
	}
	var exclude []scalar.EntityPath
	if p.cfg.Blueprint.Enabled && p.policy.IsBlueprint(payload) {
		exclude = p.policy.NonScalablePaths()
	}
	entities := DiscoverExcluding(payload, exclude)
	p.logger.Infow("analyzed payload", "entities", len(entities))
	return entities, nil
}

// Preview runs the full pipeline without recording anything.
func (p *Pipeline) Preview(ctx context.Context, original scalar.Document, counts scalar.EntityCountMap, rules scalar.RuleSet) (*scalar.PipelineResult, error) {
	return p.run(ctx, original, counts, rules)
}

// Generate runs the full pipeline and records the result in history.
func (p *Pipeline) Generate(ctx context.Context, original scalar.Document, counts scalar.EntityCountMap, rules scalar.RuleSet) (*scalar.PipelineResult, error) {
	result, err := p.run(ctx, original, counts, rules)
	if err != nil {
		return nil, err
	}
	if p.history != nil {
		record := &scalar.GenerationRecord{
			ID:        uuid.New().String(),
			Document:  result.Document,
			Warnings:  result.Warnings,
			CreatedAt: time.Now().Unix(),
		}
		if err := p.history.Record(ctx, record); err != nil {
			// History is best effort; the generated document is still good.
			p.logger.Errorw("failed to record generation history", "error", err)
		}
	}
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, original scalar.Document, counts scalar.EntityCountMap, rules scalar.RuleSet) (*scalar.PipelineResult, error) {
	if original == nil {
		return nil, scalar.NewMalformedDocumentError("document is nil", nil)
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	gen := NewIDGenerator()
	warnings := make([]scalar.Warning, 0)

	working := scalar.CopyDocument(original)
	isBlueprint := p.cfg.Blueprint.Enabled && p.policy.IsBlueprint(working)

	effectiveCounts := counts
	if isBlueprint {
		derived, w := p.policy.DeriveCounts(working, counts)
		effectiveCounts = derived
		warnings = append(warnings, w...)
	}

	scaleStart := time.Now()
	scaler := NewScaler(gen, p.cfg.Pipeline, p.logger)
	scaled, w := scaler.Scale(working, effectiveCounts)
	warnings = append(warnings, w...)
	EmitStageLatency(ctx, "scale", time.Since(scaleStart).Milliseconds())

	rulesStart := time.Now()
	applier := NewRuleApplier(p.logger)
	merged := rules.Merged()
	transformed, w := applier.Apply(scaled, merged)
	warnings = append(warnings, w...)
	EmitStageLatency(ctx, "rules", time.Since(rulesStart).Milliseconds())

	if isBlueprint {
		finishStart := time.Now()
		warnings = append(warnings, p.policy.Finish(transformed, gen)...)
		if p.cfg.Pipeline.RegenerateIDs {
			covered := coveredTargetPaths(merged)
			RegenerateUUIDs(transformed, gen, covered)
		}
		EmitStageLatency(ctx, "finish", time.Since(finishStart).Milliseconds())
	}
	EmitWarningCount(ctx, len(warnings))

	p.logger.Infow("pipeline completed",
		"blueprint", isBlueprint,
		"rules", len(merged),
		"warnings", len(warnings),
		"duration", time.Since(start))
	return &scalar.PipelineResult{Document: transformed, Warnings: warnings}, nil
}

// coveredTargetPaths collects the target paths of explicit reference
// mappings so uncovered-identifier regeneration leaves them alone.
func coveredTargetPaths(rules []scalar.Rule) *Set[string] {
	covered := NewSet[string]()
	for _, rule := range rules {
		if mapping, ok := rule.(scalar.ReferenceMappingRule); ok {
			covered.Add(mapping.TargetPath.String())
		}
	}
	return covered
}
