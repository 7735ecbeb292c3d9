package flowsync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
)

// objectMapIdentifier marks the action whose FlowAttributes receive the
// injected inventory.
const objectMapIdentifier = "FLOW_OBJECT_MAPS#"

// DefaultObjectMapLimit is the largest serialized object map, in bytes,
// that is injected into a flow.
const DefaultObjectMapLimit = 32000

// flowAttributeRE matches references to flow attributes in flow content.
var flowAttributeRE = regexp.MustCompile(`\$\.FlowAttributes\.([\[\]/a-zA-Z0-9'_-]+)`)

// flowAction is the subset of a flow action inspected for declared variables.
type flowAction struct {
	Identifier string `json:"Identifier"`
	Parameters struct {
		FlowAttributes map[string]json.RawMessage `json:"FlowAttributes"`
	} `json:"Parameters"`
}

// parsedFlow holds a flow document decoded just deep enough to rewrite the
// object map action without disturbing anything else.
type parsedFlow struct {
	root    map[string]json.RawMessage
	actions []json.RawMessage
}

func parseFlow(content string) (*parsedFlow, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &root); err != nil {
		return nil, err
	}
	if root == nil {
		return nil, fmt.Errorf("flow content is null")
	}
	pf := &parsedFlow{root: root}
	if raw, ok := root["Actions"]; ok {
		if err := json.Unmarshal(raw, &pf.actions); err != nil {
			return nil, fmt.Errorf("actions: %w", err)
		}
	}
	return pf, nil
}

// declaredVariables returns the FlowAttributes keys set by ordinary
// (non object-map) actions.
func (pf *parsedFlow) declaredVariables() map[string]bool {
	vars := make(map[string]bool)
	for _, raw := range pf.actions {
		var a flowAction
		if err := json.Unmarshal(raw, &a); err != nil {
			continue
		}
		if a.Identifier == objectMapIdentifier {
			continue
		}
		for k := range a.Parameters.FlowAttributes {
			vars[k] = true
		}
	}
	return vars
}

// objectMapIndex returns the index of the first object-map action, or -1.
func (pf *parsedFlow) objectMapIndex() int {
	for i, raw := range pf.actions {
		var a struct {
			Identifier string `json:"Identifier"`
		}
		if json.Unmarshal(raw, &a) == nil && a.Identifier == objectMapIdentifier {
			return i
		}
	}
	return -1
}

// setFlowAttributes replaces Parameters.FlowAttributes of action i.
func (pf *parsedFlow) setFlowAttributes(i int, payload []byte) error {
	var action map[string]json.RawMessage
	if err := json.Unmarshal(pf.actions[i], &action); err != nil {
		return err
	}
	params := make(map[string]json.RawMessage)
	if raw, ok := action["Parameters"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &params); err != nil {
			return fmt.Errorf("parameters: %w", err)
		}
	}
	params["FlowAttributes"] = payload

	var err error
	if action["Parameters"], err = marshalJSON(params); err != nil {
		return err
	}
	if pf.actions[i], err = marshalJSON(action); err != nil {
		return err
	}
	pf.root["Actions"], err = marshalJSON(pf.actions)
	return err
}

func (pf *parsedFlow) encode() (string, error) {
	b, err := marshalJSON(pf.root)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// marshalJSON encodes v compactly without HTML escaping, so ARNs and
// comparison operators in flow content survive untouched.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// flowAttributeRefs returns the distinct flow attribute names referenced in
// content, in order of first appearance.
func flowAttributeRefs(content string) []string {
	var refs []string
	seen := make(map[string]bool)
	for _, m := range flowAttributeRE.FindAllStringSubmatch(content, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			refs = append(refs, m[1])
		}
	}
	return refs
}

// objectMapEntry is one injected attribute.
type objectMapEntry struct {
	name  string
	value string
}

// buildObjectMap encodes entries as {"name":{"Value":"id"},...} preserving
// entry order.
func buildObjectMap(entries []objectMapEntry) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := marshalJSON(e.name)
		if err != nil {
			return nil, err
		}
		v, err := marshalJSON(map[string]string{"Value": e.value})
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// objectMapStage injects inventory entries into the object-map action.
func objectMapStage(injectAll bool, limit int) Stage {
	return func(content string, _ Env, inv InventoryReader) (string, error) {
		pf, err := parseFlow(content)
		if err != nil {
			return "", &FormatError{Cause: err}
		}
		declared := pf.declaredVariables()

		var entries []objectMapEntry
		injected := make(map[string]bool)
		add := func(name, value string) {
			if !injected[name] {
				injected[name] = true
				entries = append(entries, objectMapEntry{name: name, value: value})
			}
		}

		refs := flowAttributeRefs(content)
		for _, ref := range refs {
			value, ok := inv.Lookup(ref)
			if !ok {
				if declared[ref] {
					continue
				}
				return "", &ResolutionError{Kind: KindFlowAttribute, Name: ref}
			}
			add(ref, value)
		}
		if injectAll {
			for _, name := range inv.Names() {
				value, _ := inv.Lookup(name)
				add(name, value)
			}
		}

		var overlaps []string
		for name := range declared {
			if injected[name] {
				overlaps = append(overlaps, name)
			}
		}
		if len(overlaps) > 0 {
			sort.Strings(overlaps)
			return "", &CollisionError{Variables: overlaps}
		}

		idx := pf.objectMapIndex()
		if idx < 0 || len(entries) == 0 {
			return content, nil
		}

		payload, err := buildObjectMap(entries)
		if err != nil {
			return "", err
		}
		if len(payload) > limit {
			return "", &LimitError{Size: len(payload), Limit: limit}
		}
		if err := pf.setFlowAttributes(idx, payload); err != nil {
			return "", &FormatError{Cause: err}
		}
		return pf.encode()
	}
}

// CleanMetadata strips flow Metadata down to the keys Connect needs
// (entryPointPosition and ActionMetadata). The output is compact and
// deterministic, so cleaning already-clean content is a no-op.
func CleanMetadata(content string) (string, error) {
	pf, err := parseFlow(content)
	if err != nil {
		return "", &FormatError{Cause: err}
	}
	raw, ok := pf.root["Metadata"]
	if ok && string(raw) != "null" {
		var meta map[string]json.RawMessage
		if err := json.Unmarshal(raw, &meta); err != nil {
			return "", &FormatError{Cause: fmt.Errorf("metadata: %w", err)}
		}
		kept := make(map[string]json.RawMessage, 2)
		for _, k := range []string{"entryPointPosition", "ActionMetadata"} {
			if v, ok := meta[k]; ok {
				kept[k] = v
			}
		}
		if pf.root["Metadata"], err = marshalJSON(kept); err != nil {
			return "", err
		}
	}
	return pf.encode()
}
