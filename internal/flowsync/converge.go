package flowsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// DeployOptions parameterizes one convergence run.
type DeployOptions struct {
	Capability string
	IVR        string
	Env        Env
	// Marker restricts updates to names with this suffix. Empty updates
	// every scoped name.
	Marker    string
	Inventory InventoryOptions
	Stages    StageOptions
	// Tags are added to every created resource.
	Tags map[string]string
	// FailFast aborts on the first document failure.
	FailFast bool
	// SkipUnchanged describes each resource before updating and skips it
	// when the live content already matches.
	SkipUnchanged bool
}

// Result reports what a run changed.
type Result struct {
	Plan     *Plan
	Created  []string
	Archived []string
	Updated  []string
	Skipped  []string
	Errors   []error
}

// Summary renders a one-line outcome.
func (r *Result) Summary() string {
	return fmt.Sprintf("Deploy: %d created, %d updated, %d unchanged, %d archived, %d failed",
		len(r.Created), len(r.Updated), len(r.Skipped), len(r.Archived), len(r.Errors))
}

// Driver converges an instance toward the desired documents.
type Driver struct {
	dir     directory
	store   DocumentStore
	log     *slog.Logger
	metrics *Metrics
}

// NewDriver returns a driver. A nil logger uses slog.Default().
func NewDriver(dir directory, store DocumentStore, log *slog.Logger, metrics *Metrics) *Driver {
	if log == nil {
		log = slog.Default()
	}
	return &Driver{dir: dir, store: store, log: log, metrics: metrics}
}

// Plan loads both sets and returns the plan without changing anything.
func (d *Driver) Plan(ctx context.Context, opts DeployOptions) (*Plan, error) {
	_, _, plan, err := d.load(ctx, opts)
	return plan, err
}

func (d *Driver) load(ctx context.Context, opts DeployOptions) (desired, actual Sets, plan *Plan, err error) {
	start := time.Now()
	ctx, span := startSpan(ctx, PhaseLoad, attribute.String("flowsync.capability", opts.Capability))
	defer func() {
		d.metrics.observePhase(PhaseLoad, start)
		endSpan(span, err)
	}()

	desired, err = loadDesired(ctx, d.store, callflowScope(opts.IVR, opts.Capability))
	if err != nil {
		return Sets{}, Sets{}, nil, err
	}
	actual, err = loadActual(ctx, d.dir)
	if err != nil {
		return Sets{}, Sets{}, nil, err
	}
	d.log.Info("sets loaded",
		"desired_flows", len(desired.Flows), "desired_modules", len(desired.Modules),
		"live_flows", len(actual.Flows), "live_modules", len(actual.Modules))

	plan, err = d.plan(ctx, opts, desired, actual)
	return desired, actual, plan, err
}

func (d *Driver) plan(ctx context.Context, opts DeployOptions, desired, actual Sets) (*Plan, error) {
	_, span := startSpan(ctx, PhasePlan)
	plan, err := BuildPlan(opts.Capability, desired, actual, opts.Marker)
	endSpan(span, err)
	if err != nil {
		return nil, err
	}
	d.log.Info(plan.Summary())
	return plan, nil
}

// Converge runs the full deploy: create skeletons for new resources,
// collect the inventory, archive orphans, then resolve and apply every
// managed document. Per-document failures are collected unless FailFast is
// set; the returned error joins them.
func (d *Driver) Converge(ctx context.Context, opts DeployOptions) (*Result, error) {
	desired, _, plan, err := d.load(ctx, opts)
	if err != nil {
		return nil, err
	}
	result := &Result{Plan: plan}

	if err := d.create(ctx, opts, plan, result); err != nil {
		return result, err
	}

	actual, err := loadActual(ctx, d.dir)
	if err != nil {
		return result, err
	}
	inv, _, err := NewCollector(d.dir, d.log, d.metrics).Collect(ctx, opts.Inventory)
	if err != nil {
		return result, err
	}

	// New skeletons are live now, so they plan as updates.
	replan, err := d.plan(ctx, opts, desired, actual)
	if err != nil {
		return result, err
	}
	if err := d.archive(ctx, replan, result); err != nil {
		return result, err
	}

	pipeline := NewDeployPipeline(opts.Stages)
	if err := d.update(ctx, opts, pipeline, inv, replan, result); err != nil {
		return result, err
	}

	d.log.Info(result.Summary())
	if len(result.Errors) > 0 {
		return result, fmt.Errorf("flowsync: %d document(s) failed: %w", len(result.Errors), errors.Join(result.Errors...))
	}
	return result, nil
}

// create provisions skeleton resources for every planned add. A create
// failure aborts the run: later phases depend on the resource existing.
func (d *Driver) create(ctx context.Context, opts DeployOptions, plan *Plan, result *Result) (err error) {
	start := time.Now()
	ctx, span := startSpan(ctx, PhaseCreate)
	defer func() {
		d.metrics.observePhase(PhaseCreate, start)
		endSpan(span, err)
	}()

	for _, r := range append(append([]Resource{}, plan.Modules.ToAdd...), plan.Flows.ToAdd...) {
		if err := ctx.Err(); err != nil {
			return err
		}
		content, err := skeletonContent(r)
		if err != nil {
			return err
		}
		spec := CreateSpec{
			Name:        r.Name,
			Type:        r.Type,
			Description: r.Description,
			Content:     content,
			Tags:        buildResourceTags(opts.IVR, opts.Tags, r.Tags),
		}
		if spec.Description == "" {
			spec.Description = defaultCreateDescription
		}
		if r.IsFlow() {
			_, _, err = d.dir.CreateFlow(ctx, spec)
		} else {
			_, _, err = d.dir.CreateModule(ctx, spec)
		}
		if err != nil {
			return newDeployError(ActionCreate, resTypeOf(r), r.Name, err)
		}
		d.metrics.change(resTypeOf(r), ActionCreate)
		d.log.Info("created skeleton", "resource_type", resTypeOf(r), "name", r.Name, "template", skeletonTemplate(r))
		result.Created = append(result.Created, r.Name)
	}
	return nil
}

// archive soft-deletes orphans. The first failure is logged and returned.
func (d *Driver) archive(ctx context.Context, plan *Plan, result *Result) (err error) {
	start := time.Now()
	ctx, span := startSpan(ctx, PhaseArchive)
	defer func() {
		d.metrics.observePhase(PhaseArchive, start)
		endSpan(span, err)
	}()

	for _, r := range append(append([]Resource{}, plan.Flows.ToArchive...), plan.Modules.ToArchive...) {
		if err := ctx.Err(); err != nil {
			return err
		}
		meta := Metadata{Name: archivedName(r.Name), State: stateArchived}
		if r.IsFlow() {
			meta.Description = orphanFlowDescription
			err = d.dir.UpdateFlowMetadata(ctx, r.ID, meta)
		} else {
			meta.Description = orphanModuleDescription
			err = d.dir.UpdateModuleMetadata(ctx, r.ID, meta)
		}
		if err != nil {
			de := newDeployError(ActionArchive, resTypeOf(r), r.Name, err)
			d.log.Error("archive failed", "name", r.Name, "error", de)
			return de
		}
		d.metrics.change(resTypeOf(r), ActionArchive)
		d.log.Info("archived orphan", "resource_type", resTypeOf(r), "name", r.Name, "renamed_to", meta.Name)
		result.Archived = append(result.Archived, r.Name)
	}
	return nil
}

// update resolves and applies every planned update, modules first.
func (d *Driver) update(
	ctx context.Context, opts DeployOptions, pipeline *Pipeline, inv InventoryReader, plan *Plan, result *Result,
) (err error) {
	start := time.Now()
	ctx, span := startSpan(ctx, PhaseUpdate)
	defer func() {
		d.metrics.observePhase(PhaseUpdate, start)
		endSpan(span, err)
	}()

	for _, r := range append(append([]Resource{}, plan.Modules.ToUpdate...), plan.Flows.ToUpdate...) {
		if err := ctx.Err(); err != nil {
			return err
		}
		skipped, docErr := d.applyOne(ctx, opts, pipeline, inv, r)
		switch {
		case docErr != nil:
			d.metrics.document(resTypeOf(r), outcomeFailed)
			d.log.Error("document failed", "name", r.Name, "error", docErr)
			result.Errors = append(result.Errors, docErr)
			if opts.FailFast {
				return fmt.Errorf("flowsync: %w", docErr)
			}
		case skipped:
			d.metrics.document(resTypeOf(r), outcomeResolved)
			result.Skipped = append(result.Skipped, r.Name)
		default:
			d.metrics.document(resTypeOf(r), outcomeResolved)
			d.metrics.change(resTypeOf(r), ActionUpdate)
			result.Updated = append(result.Updated, r.Name)
		}
	}
	return nil
}

// applyOne resolves one document and pushes its content and description.
func (d *Driver) applyOne(
	ctx context.Context, opts DeployOptions, pipeline *Pipeline, inv InventoryReader, r Resource,
) (skipped bool, err error) {
	ctx, span := startSpan(ctx, "document", documentAttrs(r)...)
	defer func() { endSpan(span, err) }()

	content, err := ResolveDocument(pipeline, r, opts.Env, inv)
	if err != nil {
		return false, err
	}

	if opts.SkipUnchanged {
		same, err := d.unchanged(ctx, r, content)
		if err != nil {
			return false, err
		}
		if same {
			d.log.Info("content unchanged", "name", r.Name)
			return true, nil
		}
	}

	description := r.Description
	if description == "" {
		description = defaultCreateDescription
	}
	if r.IsFlow() {
		if err := d.dir.UpdateFlowContent(ctx, r.ID, content); err != nil {
			return false, newDeployError(ActionUpdate, ResTypeFlow, r.Name, err)
		}
		if err := d.dir.UpdateFlowMetadata(ctx, r.ID, Metadata{Description: description}); err != nil {
			d.log.Warn("flow metadata update failed", "name", r.Name, "error", err)
		}
	} else {
		if err := d.dir.UpdateModuleContent(ctx, r.ID, content); err != nil {
			return false, newDeployError(ActionUpdate, ResTypeModule, r.Name, err)
		}
		if err := d.dir.UpdateModuleMetadata(ctx, r.ID, Metadata{Description: description}); err != nil {
			d.log.Warn("module metadata update failed", "name", r.Name, "error", err)
		}
	}
	d.log.Info("updated", "resource_type", resTypeOf(r), "name", r.Name, "bytes", len(content))
	return false, nil
}

// unchanged compares resolved content with the live resource.
func (d *Driver) unchanged(ctx context.Context, r Resource, content string) (bool, error) {
	var live *Resource
	var err error
	if r.IsFlow() {
		live, err = d.dir.DescribeFlow(ctx, r.ID)
	} else {
		live, err = d.dir.DescribeModule(ctx, r.ID)
	}
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, newDeployError("describe", resTypeOf(r), r.Name, err)
	}
	cleaned, err := CleanMetadata(live.Content)
	if err != nil {
		return false, nil
	}
	return cleaned == content, nil
}

// ResolveDocument runs the pipeline over r and cleans the resulting
// metadata, producing the content sent to the instance.
func ResolveDocument(pipeline *Pipeline, r Resource, env Env, inv InventoryReader) (string, error) {
	content, err := pipeline.Resolve(r.Name, r.Content, env, inv)
	if err != nil {
		return "", err
	}
	cleaned, err := CleanMetadata(content)
	if err != nil {
		annotateDocument(err, r.Name)
		return "", err
	}
	return cleaned, nil
}
