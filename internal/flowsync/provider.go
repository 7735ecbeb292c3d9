package flowsync

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
)

// directoryFactory creates a directory for the given config and instance.
type directoryFactory func(ctx context.Context, cfg *Config, instanceID string) (directory, error)

// storeFactory creates the document store for the given config.
type storeFactory func(ctx context.Context, cfg *Config) (DocumentStore, error)

// resolverFactory creates an environmentResolver for the given config.
type resolverFactory func(ctx context.Context, cfg *Config) (environmentResolver, error)

// Provider runs flowsync operations against an instance. It resolves the
// run environment, builds the collaborators and delegates to the driver,
// collector and exporter.
type Provider struct {
	directoryFunc directoryFactory
	storeFunc     storeFactory
	resolverFunc  resolverFactory

	log     *slog.Logger
	metrics *Metrics
}

// NewProvider creates a Provider with the real AWS client factories.
// Credentials are resolved via the standard aws-sdk-go-v2/config chain.
func NewProvider(log *slog.Logger, metrics *Metrics) *Provider {
	if log == nil {
		log = slog.Default()
	}
	return &Provider{
		directoryFunc: newRealDirectoryFactory,
		storeFunc:     newRealStoreFactory,
		resolverFunc:  newRealResolverFactory,
		log:           log,
		metrics:       metrics,
	}
}

func newRealDirectoryFactory(ctx context.Context, cfg *Config, instanceID string) (directory, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg.Region)
	if err != nil {
		return nil, err
	}
	return newRealDirectory(awsCfg, instanceID), nil
}

func newRealStoreFactory(ctx context.Context, cfg *Config) (DocumentStore, error) {
	if cfg.Bucket == "" {
		return NewDirStore(cfg.DocumentsDir), nil
	}
	awsCfg, err := loadAWSConfig(ctx, cfg.Region)
	if err != nil {
		return nil, err
	}
	return newRealStore(awsCfg, cfg.Bucket), nil
}

func newRealResolverFactory(ctx context.Context, cfg *Config) (environmentResolver, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg.Region)
	if err != nil {
		return nil, err
	}
	return newRealResolver(awsCfg), nil
}

// checkConfig validates cfg for op. Soft issues are left to Diagnose.
func (p *Provider) checkConfig(cfg *Config, op string) error {
	if errs := cfg.Validate(op); len(errs) > 0 {
		return fmt.Errorf("flowsync: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ResolveEnv fills the account and instance id when the config leaves them
// out: the account from the caller identity, the instance from its SSM
// parameter.
func (p *Provider) ResolveEnv(ctx context.Context, cfg *Config) (Env, error) {
	env := Env{
		AccountID:  cfg.AccountID,
		Region:     cfg.Region,
		InstanceID: cfg.InstanceID,
		Stage:      cfg.EffectiveStage(),
	}
	if env.AccountID != "" && env.InstanceID != "" {
		return env, nil
	}

	resolver, err := p.resolverFunc(ctx, cfg)
	if err != nil {
		return Env{}, fmt.Errorf("flowsync: %w", err)
	}
	if env.AccountID == "" {
		if env.AccountID, err = resolver.AccountID(ctx); err != nil {
			return Env{}, fmt.Errorf("flowsync: resolve account: %w", err)
		}
	}
	if env.InstanceID == "" {
		name := instanceIDParameter(cfg.Environment, cfg.RegionShort(), cfg.IVR)
		if env.InstanceID, err = resolver.Parameter(ctx, name); err != nil {
			return Env{}, fmt.Errorf("flowsync: resolve instance id: %w", err)
		}
	}
	p.log.Info("environment resolved", "account", env.AccountID, "region", env.Region,
		"instance", env.InstanceID, "stage", env.Stage)
	return env, nil
}

// setup validates cfg and builds the collaborators for op.
func (p *Provider) setup(ctx context.Context, cfg *Config, op string) (Env, directory, DocumentStore, error) {
	if err := p.checkConfig(cfg, op); err != nil {
		return Env{}, nil, nil, err
	}
	env, err := p.ResolveEnv(ctx, cfg)
	if err != nil {
		return Env{}, nil, nil, err
	}
	dir, err := p.directoryFunc(ctx, cfg, env.InstanceID)
	if err != nil {
		return Env{}, nil, nil, fmt.Errorf("flowsync: %w", err)
	}
	store, err := p.storeFunc(ctx, cfg)
	if err != nil {
		return Env{}, nil, nil, fmt.Errorf("flowsync: %w", err)
	}
	return env, dir, store, nil
}

// Plan loads the desired and live sets and returns the plan.
func (p *Provider) Plan(ctx context.Context, cfg *Config) (*Plan, error) {
	env, dir, store, err := p.setup(ctx, cfg, OpPlan)
	if err != nil {
		return nil, err
	}
	return NewDriver(dir, store, p.log, p.metrics).Plan(ctx, cfg.DeployOptions(env))
}

// Deploy converges the instance toward the stored documents.
func (p *Provider) Deploy(ctx context.Context, cfg *Config) (*Result, error) {
	env, dir, store, err := p.setup(ctx, cfg, OpDeploy)
	if err != nil {
		return nil, err
	}
	return NewDriver(dir, store, p.log, p.metrics).Converge(ctx, cfg.DeployOptions(env))
}

// Export writes the instance's filtered flows and modules to out. A nil
// out writes to the configured store.
func (p *Provider) Export(ctx context.Context, cfg *Config, out DocumentStore) (*ExportResult, error) {
	env, dir, store, err := p.setup(ctx, cfg, OpExport)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = store
	}
	return NewExporter(dir, out, env, p.log, p.metrics).Export(ctx, cfg.ExportOptions())
}

// Render resolves the capability's documents against the live inventory
// and writes the resolved documents to out, without touching the instance.
// Resolution failures are collected per document.
func (p *Provider) Render(ctx context.Context, cfg *Config, out DocumentStore) ([]string, error) {
	env, dir, store, err := p.setup(ctx, cfg, OpRender)
	if err != nil {
		return nil, err
	}
	opts := cfg.DeployOptions(env)
	desired, err := loadDesired(ctx, store, callflowScope(cfg.IVR, cfg.Capability))
	if err != nil {
		return nil, err
	}
	inv, _, err := NewCollector(dir, p.log, p.metrics).Collect(ctx, opts.Inventory)
	if err != nil {
		return nil, err
	}

	pipeline := NewDeployPipeline(opts.Stages)
	var keys []string
	var errs error
	for _, r := range append(append([]Resource{}, desired.Modules...), desired.Flows...) {
		content, err := ResolveDocument(pipeline, r, env, inv)
		if err != nil {
			p.metrics.document(resTypeOf(r), outcomeFailed)
			errs = combineErrors(errs, err)
			continue
		}
		p.metrics.document(resTypeOf(r), outcomeResolved)
		r.Content = content
		body, err := encodeDocument(r)
		if err != nil {
			return keys, err
		}
		key := path.Base(r.Key)
		if err := out.Write(ctx, key, body); err != nil {
			return keys, fmt.Errorf("write %s: %w", key, err)
		}
		keys = append(keys, key)
	}
	if errs != nil {
		return keys, fmt.Errorf("flowsync: render: %w", errs)
	}
	return keys, nil
}

// RenderReverse applies the export transform to one stored document body.
func (p *Provider) RenderReverse(ctx context.Context, cfg *Config, body []byte) ([]byte, []string, error) {
	env, dir, _, err := p.setup(ctx, cfg, OpExport)
	if err != nil {
		return nil, nil, err
	}
	doc, err := parseDocument("input", body)
	if err != nil {
		return nil, nil, err
	}
	cat, err := NewCollector(dir, p.log, p.metrics).Catalog(ctx)
	if err != nil {
		return nil, nil, err
	}
	content, warnings := ExportContent(doc.Content, env, NewReverseIndex(cat, cfg.Stages), doc.IsFlow())
	doc.Content = content
	out, err := encodeDocument(doc)
	return out, warnings, err
}
