package flowsync

import (
	"slices"
	"sort"
	"strings"
)

// Release filter forms:
//
//	*         accept everything
//	name      accept an exact name
//	!name     reject an exact name
//	prefix*   accept names starting with prefix
//	!prefix*  reject names starting with prefix
//	!*        (alone) reject everything
//
// Names not matched by any filter are rejected. An empty filter list accepts
// everything.

// MatchFilter reports whether name passes filters.
func MatchFilter(name string, filters []string) bool {
	if name == "" {
		return false
	}
	if len(filters) == 0 {
		return true
	}
	sorted := slices.Clone(filters)
	sort.Strings(sorted)
	return matchSorted(name, sorted)
}

func matchSorted(name string, filters []string) bool {
	if slices.Contains(filters, "!"+name) {
		return false
	}
	if slices.Contains(filters, name) {
		return true
	}
	if len(filters) == 1 && filters[0] == "!*" {
		return false
	}
	for _, f := range filters {
		if f == "*" {
			return true
		}
		if f == "!*" || !strings.HasSuffix(f, "*") {
			continue
		}
		f = strings.TrimSuffix(f, "*")
		exclude := strings.HasPrefix(f, "!")
		prefix := strings.TrimPrefix(f, "!")
		if prefix == "" {
			continue
		}
		if strings.HasPrefix(name, prefix) {
			return !exclude
		}
	}
	return false
}

// applyFilters keeps the resources whose names pass filters, preserving
// order.
func applyFilters(resources []Resource, filters []string) []Resource {
	if len(filters) == 0 {
		return resources
	}
	sorted := slices.Clone(filters)
	sort.Strings(sorted)
	var kept []Resource
	for _, r := range resources {
		if r.Name != "" && matchSorted(r.Name, sorted) {
			kept = append(kept, r)
		}
	}
	return kept
}
