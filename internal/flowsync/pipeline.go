package flowsync

import (
	"errors"
	"fmt"
)

// Env carries the concrete values substituted for the environment macros.
type Env struct {
	AccountID  string
	Region     string
	InstanceID string
	Stage      string
}

// Stage rewrites a document's content. Stages are pure: the same content,
// environment and inventory always produce the same output.
type Stage func(content string, env Env, inv InventoryReader) (string, error)

// NamedStage pairs a stage with the name used in logs, spans and errors.
type NamedStage struct {
	Name string
	Fn   Stage
}

// Stage names for the deploy direction, in execution order.
const (
	StageObjectMap  = "object-map"
	StageCustom     = "custom"
	StageTokens     = "tokens"
	StagePlacehold  = "placeholders"
	StageMacros     = "macros"
	StageBotAlias   = "bot-alias"
	StageRegionNorm = "region-normalize"
)

// Pipeline is an ordered list of stages folded over a document's content.
type Pipeline struct {
	stages []NamedStage
}

// NewPipeline returns a pipeline that runs stages in the given order.
// Stages with a nil function are skipped.
func NewPipeline(stages ...NamedStage) *Pipeline {
	kept := make([]NamedStage, 0, len(stages))
	for _, s := range stages {
		if s.Fn != nil {
			kept = append(kept, s)
		}
	}
	return &Pipeline{stages: kept}
}

// StageNames returns the stage names in execution order.
func (p *Pipeline) StageNames() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name
	}
	return names
}

// Resolve runs every stage over content. The first failing stage stops the
// run; typed errors are annotated with the document name.
func (p *Pipeline) Resolve(document, content string, env Env, inv InventoryReader) (string, error) {
	for _, s := range p.stages {
		out, err := s.Fn(content, env, inv)
		if err != nil {
			annotateDocument(err, document)
			return "", fmt.Errorf("stage %s: %w", s.Name, err)
		}
		content = out
	}
	return content, nil
}

// StageOptions tunes the deploy pipeline.
type StageOptions struct {
	// Custom runs after the object map and before generic resolution.
	Custom Stage
	// InjectAll injects the whole inventory into the object map instead of
	// only the names the document references.
	InjectAll bool
	// PayloadLimit caps the serialized object map in bytes. Zero means
	// DefaultObjectMapLimit.
	PayloadLimit int
}

// DeployStages returns the deploy-direction stages in their fixed order.
func DeployStages(opts StageOptions) []NamedStage {
	limit := opts.PayloadLimit
	if limit <= 0 {
		limit = DefaultObjectMapLimit
	}
	return []NamedStage{
		{Name: StageObjectMap, Fn: objectMapStage(opts.InjectAll, limit)},
		{Name: StageCustom, Fn: opts.Custom},
		{Name: StageTokens, Fn: tokenStage},
		{Name: StagePlacehold, Fn: placeholderStage},
		{Name: StageMacros, Fn: macroStage},
		{Name: StageBotAlias, Fn: botAliasStage},
		{Name: StageRegionNorm, Fn: regionNormalizeStage},
	}
}

// NewDeployPipeline is shorthand for NewPipeline(DeployStages(opts)...).
func NewDeployPipeline(opts StageOptions) *Pipeline {
	return NewPipeline(DeployStages(opts)...)
}

// annotateDocument fills the Document field of typed resolution errors.
func annotateDocument(err error, document string) {
	var re *ResolutionError
	if errors.As(err, &re) && re.Document == "" {
		re.Document = document
	}
	var ce *CollisionError
	if errors.As(err, &ce) && ce.Document == "" {
		ce.Document = document
	}
	var fe *FormatError
	if errors.As(err, &fe) && fe.Document == "" {
		fe.Document = document
	}
	var le *LimitError
	if errors.As(err, &le) && le.Document == "" {
		le.Document = document
	}
}
