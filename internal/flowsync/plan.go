package flowsync

import (
	"fmt"
	"sort"
	"strings"
)

// Change actions reported by a plan.
const (
	ActionCreate  = "create"
	ActionUpdate  = "update"
	ActionArchive = "archive"
)

// Change is one line of a rendered plan.
type Change struct {
	Action       string
	ResourceType string
	Name         string
	Detail       string
}

// ClassPlan holds the reconciliation lists for one resource class. The three
// lists are disjoint and sorted by name.
type ClassPlan struct {
	ToAdd     []Resource
	ToUpdate  []Resource
	ToArchive []Resource
}

// Plan is the reconciliation plan for flows and modules.
type Plan struct {
	Flows   ClassPlan
	Modules ClassPlan
}

// PlanClass reconciles one class. actualAll is every live resource of the
// class on the instance; only the names carrying the capability prefix are
// candidates for update or archive. Updates are further restricted to names
// ending in marker, unless marker is empty.
func PlanClass(capability string, desired, actualAll []Resource, marker string) ClassPlan {
	prefix := capabilityPrefix(capability)

	desiredByName := make(map[string]Resource, len(desired))
	for _, d := range desired {
		desiredByName[d.Name] = d
	}
	actualNames := make(map[string]bool, len(actualAll))
	for _, a := range actualAll {
		actualNames[a.Name] = true
	}

	var plan ClassPlan
	for _, d := range desired {
		if !actualNames[d.Name] {
			plan.ToAdd = append(plan.ToAdd, d)
		}
	}
	for _, a := range actualAll {
		if !strings.HasPrefix(a.Name, prefix) {
			continue
		}
		d, wanted := desiredByName[a.Name]
		if !wanted {
			plan.ToArchive = append(plan.ToArchive, a)
			continue
		}
		if marker != "" && !strings.HasSuffix(a.Name, marker) {
			continue
		}
		plan.ToUpdate = append(plan.ToUpdate, mergeForUpdate(d, a))
	}

	sortByName(plan.ToAdd)
	sortByName(plan.ToUpdate)
	sortByName(plan.ToArchive)
	return plan
}

// mergeForUpdate takes the desired definition and the live identity.
func mergeForUpdate(desired, actual Resource) Resource {
	merged := desired
	merged.ID = actual.ID
	merged.ARN = actual.ARN
	merged.State = actual.State
	return merged
}

// BuildPlan checks desired against actual for type conflicts and then plans
// each class.
func BuildPlan(capability string, desired, actual Sets, marker string) (*Plan, error) {
	if err := checkTypes(desired, actual); err != nil {
		return nil, err
	}
	return &Plan{
		Flows:   PlanClass(capability, desired.Flows, actual.Flows, marker),
		Modules: PlanClass(capability, desired.Modules, actual.Modules, marker),
	}, nil
}

// checkTypes rejects a desired resource whose name is live with a different
// flow type, including a flow whose name is taken by a module and vice
// versa.
func checkTypes(desired, actual Sets) error {
	live := make(map[string]string, actual.Len())
	for _, a := range actual.Flows {
		live[a.Name] = a.Type
	}
	for _, a := range actual.Modules {
		live[a.Name] = ""
	}
	for _, group := range [][]Resource{desired.Flows, desired.Modules} {
		for _, d := range group {
			liveType, ok := live[d.Name]
			if ok && liveType != d.Type {
				return &TypeMismatchError{Name: d.Name, DesiredType: d.Type, ActualType: liveType}
			}
		}
	}
	return nil
}

// Summary renders the one-line plan summary.
func (p *Plan) Summary() string {
	return fmt.Sprintf("Plan: %d to create, %d to update, %d to archive",
		len(p.Flows.ToAdd)+len(p.Modules.ToAdd),
		len(p.Flows.ToUpdate)+len(p.Modules.ToUpdate),
		len(p.Flows.ToArchive)+len(p.Modules.ToArchive))
}

// Empty reports whether the plan changes nothing.
func (p *Plan) Empty() bool {
	return len(p.Changes()) == 0
}

// Changes lists every planned change, modules first since flows may
// reference them.
func (p *Plan) Changes() []Change {
	var changes []Change
	for _, class := range []struct {
		resType string
		plan    ClassPlan
	}{
		{ResTypeModule, p.Modules},
		{ResTypeFlow, p.Flows},
	} {
		for _, r := range class.plan.ToAdd {
			changes = append(changes, Change{
				Action: ActionCreate, ResourceType: class.resType, Name: r.Name,
				Detail: fmt.Sprintf("Create %s from skeleton %s", typeLabel(r.Type), skeletonTemplate(r)),
			})
		}
		for _, r := range class.plan.ToUpdate {
			changes = append(changes, Change{
				Action: ActionUpdate, ResourceType: class.resType, Name: r.Name,
				Detail: "Replace content with resolved document",
			})
		}
		for _, r := range class.plan.ToArchive {
			changes = append(changes, Change{
				Action: ActionArchive, ResourceType: class.resType, Name: r.Name,
				Detail: fmt.Sprintf("Rename to %s and set state %s", archivedName(r.Name), stateArchived),
			})
		}
	}
	return changes
}

func sortByName(rs []Resource) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].Name < rs[j].Name })
}
