package flowsync

import (
	"errors"
	"strings"
	"testing"
)

func names(rs []Resource) string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Name
	}
	return strings.Join(out, ",")
}

func flowRes(name string) Resource {
	return Resource{Name: name, Type: "CONTACT_FLOW", Content: "{}"}
}

func TestPlanClass_AcmeScenario(t *testing.T) {
	actual := []Resource{flowRes("acme_flowA"), flowRes("acme_flowB"), flowRes("other_flowX")}
	actual[0].ID = "id-a"
	desired := []Resource{flowRes("acme_flowA"), flowRes("acme_flowC")}

	plan := PlanClass("acme", desired, actual, "")
	if got := names(plan.ToAdd); got != "acme_flowC" {
		t.Errorf("ToAdd = %s", got)
	}
	if got := names(plan.ToUpdate); got != "acme_flowA" {
		t.Errorf("ToUpdate = %s", got)
	}
	if got := names(plan.ToArchive); got != "acme_flowB" {
		t.Errorf("ToArchive = %s", got)
	}
	if plan.ToUpdate[0].ID != "id-a" {
		t.Error("update should carry the live id")
	}
}

func TestPlanClass_ForeignCapabilityUntouched(t *testing.T) {
	actual := []Resource{flowRes("other_flowX"), flowRes("acmeish_flow")}
	plan := PlanClass("acme", nil, actual, "")
	if len(plan.ToArchive) != 0 || len(plan.ToUpdate) != 0 {
		t.Errorf("foreign flows must not be planned: %+v", plan)
	}
}

func TestPlanClass_MarkerRestrictsUpdates(t *testing.T) {
	actual := []Resource{flowRes("acme_main_AUTO"), flowRes("acme_manual")}
	desired := []Resource{flowRes("acme_main_AUTO"), flowRes("acme_manual")}

	plan := PlanClass("acme", desired, actual, DefaultManagedMarker)
	if got := names(plan.ToUpdate); got != "acme_main_AUTO" {
		t.Errorf("ToUpdate = %s", got)
	}
	if len(plan.ToArchive) != 0 {
		t.Errorf("desired names must not be archived: %s", names(plan.ToArchive))
	}
}

func TestPlanClass_DisjointAndSorted(t *testing.T) {
	actual := []Resource{flowRes("acme_b"), flowRes("acme_z"), flowRes("acme_a")}
	desired := []Resource{flowRes("acme_y"), flowRes("acme_b"), flowRes("acme_x"), flowRes("acme_a")}

	plan := PlanClass("acme", desired, actual, "")
	if got := names(plan.ToAdd); got != "acme_x,acme_y" {
		t.Errorf("ToAdd = %s", got)
	}
	if got := names(plan.ToUpdate); got != "acme_a,acme_b" {
		t.Errorf("ToUpdate = %s", got)
	}
	if got := names(plan.ToArchive); got != "acme_z" {
		t.Errorf("ToArchive = %s", got)
	}
}

func TestBuildPlan_TypeMismatch(t *testing.T) {
	desired := Sets{Flows: []Resource{{Name: "acme_whisper", Type: "AGENT_WHISPER"}}}
	actual := Sets{Flows: []Resource{{Name: "acme_whisper", Type: "CONTACT_FLOW"}}}
	_, err := BuildPlan("acme", desired, actual, "")
	var tm *TypeMismatchError
	if !errors.As(err, &tm) {
		t.Fatalf("expected TypeMismatchError, got %v", err)
	}
	if tm.DesiredType != "AGENT_WHISPER" || tm.ActualType != "CONTACT_FLOW" {
		t.Errorf("mismatch = %+v", tm)
	}
}

func TestBuildPlan_FlowNamedLikeModule(t *testing.T) {
	desired := Sets{Flows: []Resource{flowRes("acme_shared")}}
	actual := Sets{Modules: []Resource{{Name: "acme_shared"}}}
	_, err := BuildPlan("acme", desired, actual, "")
	var tm *TypeMismatchError
	if !errors.As(err, &tm) {
		t.Fatalf("expected TypeMismatchError, got %v", err)
	}
	if !strings.Contains(err.Error(), "MODULE") {
		t.Errorf("error should name the module type: %v", err)
	}
}

func TestPlan_SummaryAndChanges(t *testing.T) {
	desired := Sets{
		Flows:   []Resource{flowRes("acme_new"), {Name: "acme_w", Type: "CUSTOMER_WHISPER"}},
		Modules: []Resource{{Name: "acme_mod"}},
	}
	actual := Sets{
		Flows:   []Resource{flowRes("acme_old")},
		Modules: []Resource{{Name: "acme_mod", ID: "m1"}},
	}
	plan, err := BuildPlan("acme", desired, actual, "")
	if err != nil {
		t.Fatal(err)
	}
	if got := plan.Summary(); got != "Plan: 2 to create, 1 to update, 1 to archive" {
		t.Errorf("Summary = %q", got)
	}
	changes := plan.Changes()
	if len(changes) != 4 {
		t.Fatalf("got %d changes", len(changes))
	}
	if changes[0].ResourceType != ResTypeModule || changes[0].Action != ActionUpdate {
		t.Errorf("modules should be listed first, got %+v", changes[0])
	}
	var whisper, archive Change
	for _, c := range changes {
		switch c.Name {
		case "acme_w":
			whisper = c
		case "acme_old":
			archive = c
		}
	}
	if !strings.Contains(whisper.Detail, templateWhisper) {
		t.Errorf("whisper detail = %q", whisper.Detail)
	}
	if !strings.Contains(archive.Detail, "z_acme_old") {
		t.Errorf("archive detail = %q", archive.Detail)
	}
	if plan.Empty() {
		t.Error("plan should not be empty")
	}
}

func TestPlan_Empty(t *testing.T) {
	plan, err := BuildPlan("acme", Sets{}, Sets{Flows: []Resource{flowRes("other_x")}}, "")
	if err != nil {
		t.Fatal(err)
	}
	if !plan.Empty() {
		t.Errorf("expected empty plan, got %s", plan.Summary())
	}
}
