package flowsync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Catalog is the raw listing of every resource kind the inventory is built
// from. The exporter reads it in the opposite direction.
type Catalog struct {
	Queues     []Summary
	Prompts    []Summary
	Hours      []Summary
	Functions  []Summary
	Flows      []Resource
	Modules    []Resource
	Assistants []Summary
	BotAliases []BotAlias
}

// InventoryOptions carries the environment facts needed to derive inventory
// keys and values.
type InventoryOptions struct {
	Region    string
	AccountID string
	// Stage selects the bot alias also registered under the bare bot name.
	Stage string
	// RegionShortNames overrides the region abbreviation table.
	RegionShortNames map[string]string
}

func (o InventoryOptions) regionShort() string {
	if short, ok := o.RegionShortNames[o.Region]; ok {
		return short
	}
	return defaultRegionShortNames[o.Region]
}

// Collector lists the resources of an instance and builds the inventory.
// It only reads and may be called any number of times.
type Collector struct {
	dir     directory
	log     *slog.Logger
	metrics *Metrics
}

// NewCollector returns a collector over dir. A nil logger uses
// slog.Default().
func NewCollector(dir directory, log *slog.Logger, metrics *Metrics) *Collector {
	if log == nil {
		log = slog.Default()
	}
	return &Collector{dir: dir, log: log, metrics: metrics}
}

// Catalog lists every resource kind. Any listing failure aborts the call.
func (c *Collector) Catalog(ctx context.Context) (*Catalog, error) {
	var cat Catalog
	var err error

	listings := []struct {
		resType string
		fn      func() error
	}{
		{"queue", func() (e error) { cat.Queues, e = c.dir.ListQueues(ctx); return }},
		{"prompt", func() (e error) { cat.Prompts, e = c.dir.ListPrompts(ctx); return }},
		{"hours_of_operation", func() (e error) { cat.Hours, e = c.dir.ListHoursOfOperation(ctx); return }},
		{"function", func() (e error) { cat.Functions, e = c.dir.ListFunctions(ctx); return }},
		{ResTypeFlow, func() (e error) { cat.Flows, e = c.dir.ListFlows(ctx); return }},
		{ResTypeModule, func() (e error) { cat.Modules, e = c.dir.ListModules(ctx); return }},
		{"assistant", func() (e error) { cat.Assistants, e = c.dir.ListAssistants(ctx); return }},
		{"bot_alias", func() (e error) { cat.BotAliases, e = c.dir.ListBotAliases(ctx); return }},
	}
	for _, l := range listings {
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		if err = l.fn(); err != nil {
			return nil, newDeployError("list", l.resType, "*", err)
		}
	}
	return &cat, nil
}

// Collect lists the instance and builds a fresh inventory from it.
func (c *Collector) Collect(ctx context.Context, opts InventoryOptions) (*Inventory, *Catalog, error) {
	start := time.Now()
	ctx, span := startSpan(ctx, PhaseCollect)
	defer c.metrics.observePhase(PhaseCollect, start)

	cat, err := c.Catalog(ctx)
	if err != nil {
		endSpan(span, err)
		return nil, nil, err
	}
	inv, err := BuildInventory(cat, opts)
	if err != nil {
		endSpan(span, err)
		return nil, nil, err
	}
	endSpan(span, nil)

	counts := inv.CountByKind()
	c.metrics.inventorySize(counts)
	c.log.Info("inventory collected", "entries", inv.Len(), "kinds", len(counts))
	for _, kind := range sortedKeys(counts) {
		c.log.Debug("inventory kind", "kind", kind, "entries", counts[kind])
	}
	return inv, cat, nil
}

// BuildInventory merges a catalog into an inventory in a fixed order:
// queues, prompts, hours, functions, flows, modules, assistants, then bot
// aliases. A name claimed by two kinds, or by two resources of one kind, is
// a CollisionError.
func BuildInventory(cat *Catalog, opts InventoryOptions) (*Inventory, error) {
	inv := NewInventory()
	add := func(kind, name, value string) error {
		if name == "" {
			return nil
		}
		return inv.Add(kind, name, value)
	}

	for _, q := range cat.Queues {
		if err := add(KindQueue, q.Name, q.ARN); err != nil {
			return nil, err
		}
	}
	for _, p := range cat.Prompts {
		name, _, _ := strings.Cut(p.Name, ".")
		if err := add(KindPrompt, name, p.ARN); err != nil {
			return nil, err
		}
	}
	for _, h := range cat.Hours {
		if err := add(KindHours, h.Name, h.ARN); err != nil {
			return nil, err
		}
	}

	suffix := ""
	if short := opts.regionShort(); short != "" {
		suffix = "-" + short
	}
	for _, fn := range cat.Functions {
		if err := add(KindFunction, fn.Name, fn.ARN); err != nil {
			return nil, err
		}
		if suffix != "" && strings.HasSuffix(fn.Name, suffix) {
			if err := add(KindFunction, strings.TrimSuffix(fn.Name, suffix), fn.ARN); err != nil {
				return nil, err
			}
		}
	}

	for _, f := range cat.Flows {
		if err := add(KindFlow, f.Name, f.ARN); err != nil {
			return nil, err
		}
	}
	for _, m := range cat.Modules {
		if m.State != "" && m.State != stateActive {
			continue
		}
		if err := add(KindModule, m.Name, m.ARN); err != nil {
			return nil, err
		}
	}
	for _, a := range cat.Assistants {
		if err := add(KindAssistant, a.Name, a.ID); err != nil {
			return nil, err
		}
	}

	stage := strings.ToLower(opts.Stage)
	for _, ba := range cat.BotAliases {
		value := botAliasARN(opts.Region, opts.AccountID, ba.BotID, ba.AliasID)
		keys := []string{ba.BotID + "/" + ba.AliasID, ba.BotName + "/" + ba.AliasName}
		alias := strings.ToLower(ba.AliasName)
		if alias == "current" || (stage != "" && alias == stage) {
			keys = append(keys, ba.BotName)
		}
		for _, key := range keys {
			if err := add(KindBotAlias, key, value); err != nil {
				return nil, err
			}
		}
	}
	return inv, nil
}

// botAliasARN renders the ARN Connect expects in a Lex V2 bot block.
func botAliasARN(region, account, botID, aliasID string) string {
	return fmt.Sprintf("arn:aws:lex:%s:%s:bot-alias/%s/%s", region, account, botID, aliasID)
}
