package flowsync

import (
	"regexp"
	"strings"
)

// Macros substituted with environment values on deploy and restored on
// export.
const (
	MacroAccount  = "${ACCT_ID}"
	MacroRegion   = "${REGION}"
	MacroInstance = "${INSTANCE_ID}"
	MacroStage    = "${STAGE}"
)

// regionAttribute is the Connect system attribute that evaluates to the
// region a flow runs in.
const regionAttribute = "$.AwsRegion"

// kindToken describes one KIND#name token syntax.
type kindToken struct {
	kind string
	re   *regexp.Regexp
}

// kindTokens are resolved to the full inventory value (the ARN).
var kindTokens = []kindToken{
	{kind: KindPrompt, re: regexp.MustCompile(`PROMPT#([a-zA-Z0-9_]+)`)},
	{kind: KindQueue, re: regexp.MustCompile(`QUEUE#([a-zA-Z0-9_]+)`)},
	{kind: KindFunction, re: regexp.MustCompile(`FUNCTION#([a-zA-Z0-9_-]+)`)},
	{kind: KindFlow, re: regexp.MustCompile(`FLOW#([a-zA-Z0-9_' ]+)`)},
	{kind: KindHours, re: regexp.MustCompile(`HOURS#([a-zA-Z0-9_-]+)`)},
}

// placeholderRE matches anything shaped like ${K:...}. The name and the
// closing kind letter are split in parsePlaceholder, since Go's regexp has
// no backreferences.
var placeholderRE = regexp.MustCompile(`\$\{([FHMPQA]):([^}]*)\}`)

// placeholderKinds maps placeholder letters to inventory kinds.
var placeholderKinds = map[string]string{
	"F": KindFlow,
	"H": KindHours,
	"M": KindModule,
	"P": KindPrompt,
	"Q": KindQueue,
	"A": KindAssistant,
}

// botAliasRE captures the alias path after ":bot-alias/".
var botAliasRE = regexp.MustCompile(`:bot-alias/([a-zA-Z0-9_/-]+)`)

// regionARNRE matches function and bot ARNs with a concrete region.
var regionARNRE = regexp.MustCompile(`arn:aws:(lambda|lex):([a-z]{2}(?:-gov)?-[a-z]+-\d+):`)

// regionTemplate is the regionARNRE replacement; "$$" is a literal "$".
var regionTemplate = "arn:aws:${1}:" + strings.ReplaceAll(regionAttribute, "$", "$$") + ":"

// replaceMatches rewrites every match of re through fn. fn receives the
// submatches of one occurrence, so each occurrence resolves independently.
// The first error stops further rewriting and is returned.
func replaceMatches(content string, re *regexp.Regexp, fn func(sub []string) (string, error)) (string, error) {
	var firstErr error
	out := re.ReplaceAllStringFunc(content, func(match string) string {
		if firstErr != nil {
			return match
		}
		replacement, err := fn(re.FindStringSubmatch(match))
		if err != nil {
			firstErr = err
			return match
		}
		return replacement
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// declaredLookup parses content at most once to answer whether a name is a
// document-declared flow variable. Unparseable content declares nothing.
func declaredLookup(content string) func(name string) bool {
	var vars map[string]bool
	return func(name string) bool {
		if vars == nil {
			vars = map[string]bool{}
			if pf, err := parseFlow(content); err == nil {
				vars = pf.declaredVariables()
			}
		}
		return vars[name]
	}
}

// tokenStage resolves PROMPT#, QUEUE#, FUNCTION#, FLOW# and HOURS# tokens to
// full ARNs.
func tokenStage(content string, _ Env, inv InventoryReader) (string, error) {
	isDeclared := declaredLookup(content)
	for _, tok := range kindTokens {
		var err error
		content, err = replaceMatches(content, tok.re, func(sub []string) (string, error) {
			raw := sub[1]
			name := strings.TrimRight(raw, " ")
			trailing := raw[len(name):]
			if tok.kind == KindFlow {
				name = strings.ReplaceAll(name, "'", "")
			}
			value, ok := inv.Lookup(name)
			if !ok {
				if isDeclared(name) {
					return sub[0], nil
				}
				return "", &ResolutionError{Kind: tok.kind, Name: name}
			}
			return value + trailing, nil
		})
		if err != nil {
			return "", err
		}
	}
	return content, nil
}

// parsePlaceholder splits the submatches of placeholderRE into the kind
// letter and name. It fails when the closing letter is missing or differs
// from the opening one, or the name is empty.
func parsePlaceholder(sub []string) (letter, name string, ok bool) {
	i := strings.LastIndex(sub[2], ":")
	if i <= 0 || sub[2][i+1:] != sub[1] {
		return "", "", false
	}
	return sub[1], sub[2][:i], true
}

// placeholderStage resolves ${K:name:K} placeholders to the resource id,
// the last path segment of the inventory value. A malformed placeholder is
// a ResolutionError of kind placeholder.
func placeholderStage(content string, _ Env, inv InventoryReader) (string, error) {
	isDeclared := declaredLookup(content)
	return replaceMatches(content, placeholderRE, func(sub []string) (string, error) {
		letter, name, ok := parsePlaceholder(sub)
		if !ok {
			return "", &ResolutionError{Kind: KindPlaceholder, Name: sub[0]}
		}
		kind := placeholderKinds[letter]
		value, ok := lookupPlaceholder(inv, kind, name)
		if !ok {
			if isDeclared(name) {
				return sub[0], nil
			}
			return "", &ResolutionError{Kind: kind, Name: name}
		}
		return lastSegment(value), nil
	})
}

// lookupPlaceholder finds name in the inventory. Prompt names are stored
// without their file extension, so "greeting.wav" resolves as "greeting".
func lookupPlaceholder(inv InventoryReader, kind, name string) (string, bool) {
	if value, ok := inv.Lookup(name); ok {
		return value, true
	}
	if kind != KindPrompt {
		return "", false
	}
	if base, _, found := strings.Cut(name, "."); found {
		return inv.Lookup(base)
	}
	return "", false
}

// lastSegment returns the text after the final "/" of an ARN.
func lastSegment(arn string) string {
	if i := strings.LastIndex(arn, "/"); i >= 0 {
		return arn[i+1:]
	}
	return arn
}

// macroStage substitutes the environment macros. Empty environment values
// leave their macro in place.
func macroStage(content string, env Env, _ InventoryReader) (string, error) {
	var pairs []string
	for _, p := range [][2]string{
		{MacroAccount, env.AccountID},
		{MacroRegion, env.Region},
		{MacroInstance, env.InstanceID},
		{MacroStage, env.Stage},
	} {
		if p[1] != "" {
			pairs = append(pairs, p[0], p[1])
		}
	}
	if len(pairs) == 0 {
		return content, nil
	}
	return strings.NewReplacer(pairs...).Replace(content), nil
}

// botAliasStage rewrites ":bot-alias/<key>" to the alias path of the
// inventory value registered for key.
func botAliasStage(content string, _ Env, inv InventoryReader) (string, error) {
	return replaceMatches(content, botAliasRE, func(sub []string) (string, error) {
		value, ok := inv.Lookup(sub[1])
		if !ok {
			return "", &ResolutionError{Kind: KindBotAlias, Name: sub[1]}
		}
		_, alias, found := strings.Cut(value, "bot-alias/")
		if !found {
			return "", &ResolutionError{Kind: KindBotAlias, Name: sub[1]}
		}
		return ":bot-alias/" + alias, nil
	})
}

// regionNormalizeStage replaces the region of function and bot ARNs with
// the $.AwsRegion attribute so a flow keeps working when replicated to
// another region.
func regionNormalizeStage(content string, _ Env, _ InventoryReader) (string, error) {
	return regionARNRE.ReplaceAllString(content, regionTemplate), nil
}
