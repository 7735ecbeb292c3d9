package flowsync

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Sets partitions resources into flows and modules.
type Sets struct {
	Flows   []Resource
	Modules []Resource
}

// Len returns the total number of resources.
func (s Sets) Len() int {
	return len(s.Flows) + len(s.Modules)
}

// splitByClass separates flows (typed) from modules (untyped).
func splitByClass(resources []Resource) Sets {
	var s Sets
	for _, r := range resources {
		if r.IsFlow() {
			s.Flows = append(s.Flows, r)
		} else {
			s.Modules = append(s.Modules, r)
		}
	}
	return s
}

// capabilityPrefix is the name prefix owned by a capability.
func capabilityPrefix(capability string) string {
	return capability + "_"
}

// DocumentScope tells the set builder where a capability's documents live.
type DocumentScope struct {
	// ListPrefix is passed to DocumentStore.List.
	ListPrefix string
	// KeyPrefix further restricts the listed keys.
	KeyPrefix string
	// Capability filters documents by name prefix.
	Capability string
}

// callflowScope is the S3 layout used by the release pipeline:
// {ivr}/callflows/{capability}...
func callflowScope(ivr, capability string) DocumentScope {
	base := ivr + "/callflows/"
	return DocumentScope{ListPrefix: base, KeyPrefix: base + capability, Capability: capability}
}

// loadDesired reads, parses and partitions the desired documents. It fails
// with NotFoundError when the scope yields nothing.
func loadDesired(ctx context.Context, store DocumentStore, scope DocumentScope) (Sets, error) {
	keys, err := store.List(ctx, scope.ListPrefix)
	if err != nil {
		return Sets{}, err
	}

	var docs []Resource
	seen := make(map[string]string)
	prefix := capabilityPrefix(scope.Capability)
	for _, key := range keys {
		if !strings.HasPrefix(key, scope.KeyPrefix) || !strings.HasSuffix(key, ".json") {
			continue
		}
		body, err := store.Read(ctx, key)
		if err != nil {
			return Sets{}, fmt.Errorf("read %s: %w", key, err)
		}
		doc, err := parseDocument(key, body)
		if err != nil {
			return Sets{}, err
		}
		if scope.Capability != "" && !strings.HasPrefix(doc.Name, prefix) {
			continue
		}
		if other, dup := seen[doc.Name]; dup {
			return Sets{}, &CollisionError{Name: doc.Name, Kinds: []string{other, key}}
		}
		seen[doc.Name] = key
		docs = append(docs, doc)
	}

	if len(docs) == 0 {
		where := scope.KeyPrefix
		if where == "" {
			where = "document store"
		}
		return Sets{}, &NotFoundError{What: fmt.Sprintf("documents for capability %q", scope.Capability), Where: where}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return splitByClass(docs), nil
}

// loadActual lists every flow and module on the instance, unfiltered.
func loadActual(ctx context.Context, dir flowDirectory) (Sets, error) {
	flows, err := dir.ListFlows(ctx)
	if err != nil {
		return Sets{}, newDeployError("list", ResTypeFlow, "*", err)
	}
	modules, err := dir.ListModules(ctx)
	if err != nil {
		return Sets{}, newDeployError("list", ResTypeModule, "*", err)
	}
	return Sets{Flows: flows, Modules: modules}, nil
}
