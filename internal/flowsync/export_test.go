package flowsync

import (
	"context"
	"strings"
	"testing"
)

func TestStripLambdaStages(t *testing.T) {
	const fn = "arn:aws:lambda:${REGION}:${ACCT_ID}:function:"
	tests := []struct {
		name   string
		in     string
		stages []string
		want   string
	}{
		{"suffix", fn + "lookup-dev", []string{"dev", "prod"}, fn + "lookup-${STAGE}"},
		{"prefix", fn + "dev-lookup", []string{"dev"}, fn + "${STAGE}-lookup"},
		{"infix", fn + "lookup-prod-use1", []string{"dev", "prod"}, fn + "lookup-${STAGE}-use1"},
		{"partial word untouched", fn + "developer-lookup", []string{"dev"}, fn + "developer-lookup"},
		{"no stages", fn + "lookup-dev", nil, fn + "lookup-dev"},
		{"normalized region", "arn:aws:lambda:$.AwsRegion:${ACCT_ID}:function:lookup-dev", []string{"dev"},
			"arn:aws:lambda:$.AwsRegion:${ACCT_ID}:function:lookup-${STAGE}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripLambdaStages(tt.in, tt.stages); got != tt.want {
				t.Errorf("got  %s\nwant %s", got, tt.want)
			}
		})
	}
}

func TestExportContent_UnknownIDWarns(t *testing.T) {
	content := `"arn:aws:connect:us-east-1:123456789012:instance/` + testInstance + `/queue/q-gone"`
	got, warnings := ExportContent(content, testEnv(), NewReverseIndex(&Catalog{}, nil), true)
	if len(warnings) != 1 || !strings.Contains(warnings[0], "q-gone") {
		t.Errorf("warnings = %v", warnings)
	}
	if !strings.Contains(got, "/${INSTANCE_ID}/queue/q-gone") {
		t.Errorf("unknown id should stay in place: %s", got)
	}
}

func TestExportContent_ModulesOnlyInFlows(t *testing.T) {
	rev := NewReverseIndex(&Catalog{Modules: []Resource{{ID: "module-9", Name: "acme_mod"}}}, nil)
	content := `{"FlowModuleId":"module-9"}`

	flow, _ := ExportContent(content, testEnv(), rev, true)
	if flow != `{"FlowModuleId":"${M:acme_mod:M}"}` {
		t.Errorf("flow = %s", flow)
	}
	module, _ := ExportContent(content, testEnv(), rev, false)
	if module != content {
		t.Errorf("module content should keep ids: %s", module)
	}
}

func TestExportContent_UnsafeNameKeepsID(t *testing.T) {
	rev := NewReverseIndex(&Catalog{
		Queues:  []Summary{{ID: "q-quoted", Name: `Say "hi"`}, {ID: "q-brace", Name: "a}b"}},
		Modules: []Resource{{ID: "module-7", Name: `mod\x`}},
	}, nil)
	content := `"/${INSTANCE_ID}/queue/q-quoted" "/${INSTANCE_ID}/queue/q-brace" "module-7"`

	got, warnings := ExportContent(content, testEnv(), rev, true)
	if got != content {
		t.Errorf("ids should stay in place: %s", got)
	}
	if len(warnings) != 3 {
		t.Errorf("warnings = %v", warnings)
	}
}

// seedRoundTrip populates dir with the resources a realistic flow refers to
// and returns the live flow.
func seedRoundTrip(dir *simulatedDirectory) *Resource {
	mod := dir.addModule("acme_mod", flowContent(`{"Identifier":"a1","Type":"EndFlowModuleExecution"}`))
	dir.addQueue("Support", "q-support")
	dir.addQueue("Support (EN)", "q-en")
	dir.addFunction("lookup-dev")
	dir.assistants = append(dir.assistants, Summary{ID: "asst-1", Name: "helper"})
	dir.botAliases = append(dir.botAliases, BotAlias{BotID: "B1", BotName: "Orders", AliasID: "A1", AliasName: "live"})

	inst := dir.instanceARN()
	content := flowContent(
		`{"Identifier":"a1","Type":"UpdateContactTargetQueue","Parameters":{"QueueId":"` + inst + `/queue/q-support"}},` +
			`{"Identifier":"a2","Type":"InvokeLambdaFunction","Parameters":{"LambdaFunctionARN":"arn:aws:lambda:us-east-1:123456789012:function:lookup-dev"}},` +
			`{"Identifier":"a3","Type":"InvokeFlowModule","Parameters":{"FlowModuleId":"` + mod.ID + `"}},` +
			`{"Identifier":"a4","Type":"ConnectParticipantWithLexBot","Parameters":{"LexV2Bot":{"AliasArn":"arn:aws:lex:us-east-1:123456789012:bot-alias/B1/A1"}}},` +
			`{"Identifier":"a5","Type":"CreateWisdomSession","Parameters":{"WisdomAssistantArn":"arn:aws:wisdom:us-east-1:123456789012:assistant/asst-1"}},` +
			`{"Identifier":"a6","Type":"UpdateContactTargetQueue","Parameters":{"QueueId":"` + inst + `/queue/q-en"}}`)
	return dir.addFlow("acme_main", "CONTACT_FLOW", content)
}

func TestExporter_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := newSimulatedDirectory()
	live := seedRoundTrip(dir)
	store := newMemStore()

	res, err := NewExporter(dir, store, testEnv(), discardLogger(), nil).Export(ctx, ExportOptions{Stages: []string{"dev", "prod"}})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}
	if len(res.Keys) != 2 || res.Keys[0] != "flows/acme_mod.json" || res.Keys[1] != "flows/acme_main.json" {
		t.Fatalf("keys = %v", res.Keys)
	}

	body, _ := store.Read(ctx, "flows/acme_main.json")
	doc, err := parseDocument("flows/acme_main.json", body)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"${Q:Support:Q}", "/queue/${Q:Support (EN):Q}", "${M:acme_mod:M}", "${A:helper:A}",
		"function:lookup-${STAGE}", ":bot-alias/Orders/live", "${ACCT_ID}"} {
		if !strings.Contains(doc.Content, want) {
			t.Errorf("exported content missing %s:\n%s", want, doc.Content)
		}
	}
	if strings.Contains(doc.Content, testAccount) || strings.Contains(doc.Content, testInstance) {
		t.Errorf("exported content still carries environment values:\n%s", doc.Content)
	}

	inv, _, err := NewCollector(dir, discardLogger(), nil).Collect(ctx, testInventoryOptions())
	if err != nil {
		t.Fatal(err)
	}
	deployed, err := ResolveDocument(NewDeployPipeline(StageOptions{}), doc, testEnv(), inv)
	if err != nil {
		t.Fatalf("ResolveDocument: %v", err)
	}
	normalized, _ := regionNormalizeStage(live.Content, testEnv(), inv)
	want, err := CleanMetadata(normalized)
	if err != nil {
		t.Fatal(err)
	}
	if deployed != want {
		t.Errorf("round trip mismatch\ngot  %s\nwant %s", deployed, want)
	}
}

func TestExporter_Filters(t *testing.T) {
	dir := newSimulatedDirectory()
	dir.addFlow("acme_main", "CONTACT_FLOW", flowContent(""))
	dir.addFlow("acme_test", "CONTACT_FLOW", flowContent(""))
	dir.addFlow("beta_main", "CONTACT_FLOW", flowContent(""))
	dir.addModule("acme_mod", flowContent(""))
	store := newMemStore()

	res, err := NewExporter(dir, store, testEnv(), discardLogger(), nil).Export(context.Background(), ExportOptions{
		FlowFilters:   []string{"acme_*", "!acme_test"},
		ModuleFilters: []string{"!*"},
		KeyPrefix:     "exports/",
	})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(res.Keys, ",") != "exports/acme_main.json" {
		t.Errorf("keys = %v", res.Keys)
	}
}

func TestExporter_DescribeFailure(t *testing.T) {
	dir := newSimulatedDirectory()
	dir.addFlow("acme_main", "CONTACT_FLOW", flowContent(""))
	dir.failures["describe:acme_main"] = errNotAuthorized

	_, err := NewExporter(dir, newMemStore(), testEnv(), discardLogger(), nil).Export(context.Background(), ExportOptions{})
	de := IsDeployError(err)
	if de == nil || de.Operation != "describe" || de.ResourceName != "acme_main" {
		t.Fatalf("expected describe DeployError, got %v", err)
	}
}
