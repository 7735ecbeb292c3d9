package flowsync

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

// Placeholder letters written by export.
const (
	placeholderFlow      = "F"
	placeholderHours     = "H"
	placeholderModule    = "M"
	placeholderPrompt    = "P"
	placeholderQueue     = "Q"
	placeholderAssistant = "A"
)

func placeholder(letter, name string) string {
	return "${" + letter + ":" + name + ":" + letter + "}"
}

// placeholderSafe reports whether name can be written as a placeholder the
// deploy pipeline reads back verbatim. A "}" would end the placeholder early,
// and quotes, backslashes and control characters are escaped inside flow JSON.
func placeholderSafe(name string) bool {
	if name == "" {
		return false
	}
	for _, c := range name {
		if c == '}' || c == '"' || c == '\\' || c < 0x20 {
			return false
		}
	}
	return true
}

// instanceRefRE finds resource ids under the instance path once the instance
// id itself has been replaced by its macro.
var instanceRefRE = regexp.MustCompile(`/` + regexp.QuoteMeta(MacroInstance) +
	`/(operating-hours|prompt|queue|contact-flow)/([a-zA-Z0-9-]+)`)

// instanceRefLetters maps the path segment to its placeholder letter.
var instanceRefLetters = map[string]string{
	"operating-hours": placeholderHours,
	"prompt":          placeholderPrompt,
	"queue":           placeholderQueue,
	"contact-flow":    placeholderFlow,
}

// botRefRE matches a resolved bot alias path.
var botRefRE = regexp.MustCompile(`:bot-alias/([a-zA-Z0-9]+)/([a-zA-Z0-9]+)`)

// assistantRE matches a Q in Connect assistant ARN after macro replacement.
var assistantRE = regexp.MustCompile(`wisdom:` + regexp.QuoteMeta(MacroRegion) + `:` +
	regexp.QuoteMeta(MacroAccount) + `:assistant/([a-z0-9-]+)`)

// lambdaFunctionRE captures function names after account and region have
// been replaced.
var lambdaFunctionRE = regexp.MustCompile(`arn:aws:lambda:(?:` + regexp.QuoteMeta(MacroRegion) + `|` +
	regexp.QuoteMeta(regionAttribute) + `):` + regexp.QuoteMeta(MacroAccount) + `:function:([a-zA-Z0-9_-]+)`)

// ReverseIndex maps live identifiers back to names for export.
type ReverseIndex struct {
	Hours      map[string]string
	Prompts    map[string]string
	Queues     map[string]string
	Flows      map[string]string
	Modules    map[string]string
	Assistants map[string]string
	// BotAliases maps "botId/aliasId" to "botName/aliasName".
	BotAliases map[string]string
	// Stages are the deployment stage names stripped from function names.
	Stages []string
}

// NewReverseIndex builds the id → name maps from a catalog.
func NewReverseIndex(cat *Catalog, stages []string) *ReverseIndex {
	byID := func(items []Summary) map[string]string {
		m := make(map[string]string, len(items))
		for _, s := range items {
			m[s.ID] = s.Name
		}
		return m
	}
	resByID := func(items []Resource) map[string]string {
		m := make(map[string]string, len(items))
		for _, r := range items {
			m[r.ID] = r.Name
		}
		return m
	}
	bots := make(map[string]string, len(cat.BotAliases))
	for _, ba := range cat.BotAliases {
		bots[ba.BotID+"/"+ba.AliasID] = ba.BotName + "/" + ba.AliasName
	}
	return &ReverseIndex{
		Hours:      byID(cat.Hours),
		Prompts:    byID(cat.Prompts),
		Queues:     byID(cat.Queues),
		Flows:      resByID(cat.Flows),
		Modules:    resByID(cat.Modules),
		Assistants: byID(cat.Assistants),
		BotAliases: bots,
		Stages:     stages,
	}
}

func (r *ReverseIndex) byKind(segment string) map[string]string {
	switch segment {
	case "operating-hours":
		return r.Hours
	case "prompt":
		return r.Prompts
	case "queue":
		return r.Queues
	default:
		return r.Flows
	}
}

// ExportContent rewrites live flow content into its portable form: the
// inverse of the deploy pipeline. Identifiers with no known name are left
// in place and reported as warnings.
func ExportContent(content string, env Env, rev *ReverseIndex, isFlow bool) (string, []string) {
	var warnings []string

	for _, p := range [][2]string{
		{env.AccountID, MacroAccount},
		{env.Region, MacroRegion},
		{env.InstanceID, MacroInstance},
	} {
		if p[0] != "" {
			content = strings.ReplaceAll(content, p[0], p[1])
		}
	}

	content = stripLambdaStages(content, rev.Stages)

	if isFlow {
		for _, id := range sortedKeys(rev.Modules) {
			if id == "" || !strings.Contains(content, id) {
				continue
			}
			name := rev.Modules[id]
			if !placeholderSafe(name) {
				warnings = append(warnings, fmt.Sprintf("module %q cannot be a placeholder, id %s kept", name, id))
				continue
			}
			content = strings.ReplaceAll(content, id, placeholder(placeholderModule, name))
		}
	}

	seen := make(map[string]bool)
	for _, m := range instanceRefRE.FindAllStringSubmatch(content, -1) {
		segment, id := m[1], m[2]
		if seen[id] {
			continue
		}
		seen[id] = true
		name, ok := rev.byKind(segment)[id]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("no %s named for id %s", segment, id))
			continue
		}
		if !placeholderSafe(name) {
			warnings = append(warnings, fmt.Sprintf("%s %q cannot be a placeholder, id %s kept", segment, name, id))
			continue
		}
		content = strings.ReplaceAll(content, id, placeholder(instanceRefLetters[segment], name))
	}

	content = botRefRE.ReplaceAllStringFunc(content, func(match string) string {
		sub := botRefRE.FindStringSubmatch(match)
		name, ok := rev.BotAliases[sub[1]+"/"+sub[2]]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("no bot alias named for %s/%s", sub[1], sub[2]))
			return match
		}
		return ":bot-alias/" + name
	})

	content = assistantRE.ReplaceAllStringFunc(content, func(match string) string {
		id := assistantRE.FindStringSubmatch(match)[1]
		name, ok := rev.Assistants[id]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("no assistant named for id %s", id))
			return match
		}
		if !placeholderSafe(name) {
			warnings = append(warnings, fmt.Sprintf("assistant %q cannot be a placeholder, id %s kept", name, id))
			return match
		}
		return strings.TrimSuffix(match, id) + placeholder(placeholderAssistant, name)
	})

	return content, warnings
}

// stageRE builds the pattern locating a stage name as a prefix, infix or
// suffix segment of a function name.
func stageRE(stages []string) *regexp.Regexp {
	var quoted []string
	for _, s := range stages {
		if s != "" {
			quoted = append(quoted, regexp.QuoteMeta(s))
		}
	}
	if len(quoted) == 0 {
		return nil
	}
	alt := "(?:" + strings.Join(quoted, "|") + ")"
	return regexp.MustCompile("^" + alt + "-|-" + alt + "-|-" + alt + "$")
}

// stripLambdaStages replaces the stage segment of function names with the
// ${STAGE} macro. Only the first stage segment of a name is replaced. An
// empty stage list leaves content alone.
func stripLambdaStages(content string, stages []string) string {
	re := stageRE(stages)
	if re == nil {
		return content
	}
	return lambdaFunctionRE.ReplaceAllStringFunc(content, func(match string) string {
		name := lambdaFunctionRE.FindStringSubmatch(match)[1]
		loc := re.FindStringIndex(name)
		if loc == nil {
			return match
		}
		seg := name[loc[0]:loc[1]]
		var repl string
		switch {
		case strings.HasPrefix(seg, "-") && strings.HasSuffix(seg, "-"):
			repl = "-" + MacroStage + "-"
		case strings.HasPrefix(seg, "-"):
			repl = "-" + MacroStage
		default:
			repl = MacroStage + "-"
		}
		return strings.TrimSuffix(match, name) + name[:loc[0]] + repl + name[loc[1]:]
	})
}

// ExportOptions selects and places exported documents.
type ExportOptions struct {
	FlowFilters   []string
	ModuleFilters []string
	// Stages are stripped from function names; see stripLambdaStages.
	Stages []string
	// KeyPrefix is prepended to "<Name>.json". Defaults to "flows/".
	KeyPrefix string
}

// ExportResult lists what an export wrote.
type ExportResult struct {
	Keys     []string
	Warnings []string
}

// Exporter writes live flows and modules to a document store in portable
// form.
type Exporter struct {
	dir     directory
	store   DocumentStore
	env     Env
	log     *slog.Logger
	metrics *Metrics
}

// NewExporter returns an exporter reading from dir and writing to store.
func NewExporter(dir directory, store DocumentStore, env Env, log *slog.Logger, metrics *Metrics) *Exporter {
	if log == nil {
		log = slog.Default()
	}
	return &Exporter{dir: dir, store: store, env: env, log: log, metrics: metrics}
}

// Export describes every filtered module, then every filtered flow, and
// writes each as a document. Modules go first to match the order a deploy
// needs them in.
func (e *Exporter) Export(ctx context.Context, opts ExportOptions) (*ExportResult, error) {
	start := time.Now()
	ctx, span := startSpan(ctx, PhaseExport)
	defer e.metrics.observePhase(PhaseExport, start)

	cat, err := NewCollector(e.dir, e.log, e.metrics).Catalog(ctx)
	if err != nil {
		endSpan(span, err)
		return nil, err
	}
	rev := NewReverseIndex(cat, opts.Stages)
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "flows/"
	}

	result := &ExportResult{}
	for _, class := range []struct {
		items   []Resource
		filters []string
	}{
		{cat.Modules, opts.ModuleFilters},
		{cat.Flows, opts.FlowFilters},
	} {
		for _, item := range applyFilters(class.items, class.filters) {
			if err := ctx.Err(); err != nil {
				endSpan(span, err)
				return result, err
			}
			key, warnings, err := e.exportOne(ctx, item, rev, prefix)
			if err != nil {
				endSpan(span, err)
				return result, err
			}
			for _, w := range warnings {
				e.log.Warn("export left identifier unresolved", "document", item.Name, "detail", w)
				result.Warnings = append(result.Warnings, item.Name+": "+w)
			}
			result.Keys = append(result.Keys, key)
			e.log.Info("exported", "document", item.Name, "key", key)
		}
	}
	endSpan(span, nil)
	return result, nil
}

func (e *Exporter) exportOne(ctx context.Context, item Resource, rev *ReverseIndex, prefix string) (string, []string, error) {
	var live *Resource
	var err error
	if item.IsFlow() {
		live, err = e.dir.DescribeFlow(ctx, item.ID)
	} else {
		live, err = e.dir.DescribeModule(ctx, item.ID)
	}
	if err != nil {
		return "", nil, newDeployError("describe", resTypeOf(item), item.Name, err)
	}

	content, warnings := ExportContent(live.Content, e.env, rev, item.IsFlow())
	doc := Resource{
		Name:        live.Name,
		Type:        live.Type,
		Description: live.Description,
		Tags:        live.Tags,
		Content:     content,
	}
	body, err := encodeDocument(doc)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s: %w", doc.Name, err)
	}
	key := prefix + doc.Name + ".json"
	if err := e.store.Write(ctx, key, body); err != nil {
		return "", nil, fmt.Errorf("write %s: %w", key, err)
	}
	return key, warnings, nil
}
