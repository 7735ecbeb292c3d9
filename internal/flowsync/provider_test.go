package flowsync

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func testConfig() *Config {
	return &Config{
		Region:      testRegion,
		Environment: "dev",
		Capability:  "acme",
		IVR:         testIVR,
		Bucket:      "flow-docs",
	}
}

func seedProviderScenario(t *testing.T) (*simulatedDirectory, *memStore) {
	t.Helper()
	dir := newSimulatedDirectory()
	dir.addQueue("Support", "q-support")
	dir.addFlow("acme_main_AUTO", "CONTACT_FLOW", flowContent(""))
	dir.addFlow("acme_legacy", "CONTACT_FLOW", flowContent(""))

	store := newMemStore()
	content := flowContent(`{"Identifier":"a1","Parameters":{"QueueId":"QUEUE#Support"}}`)
	store.putDocument(t, Resource{Name: "acme_main_AUTO", Type: "CONTACT_FLOW", Content: content})
	store.putDocument(t, Resource{Name: "acme_manual", Type: "CONTACT_FLOW", Content: content})
	return dir, store
}

func TestProvider_ResolveEnvFromResolver(t *testing.T) {
	p := newSimulatedProvider(newSimulatedDirectory(), newMemStore())
	env, err := p.ResolveEnv(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("ResolveEnv: %v", err)
	}
	want := Env{AccountID: testAccount, Region: testRegion, InstanceID: testInstance, Stage: "dev"}
	if env != want {
		t.Errorf("env = %+v, want %+v", env, want)
	}
}

func TestProvider_ResolveEnvExplicit(t *testing.T) {
	p := newSimulatedProvider(newSimulatedDirectory(), newMemStore())
	p.resolverFunc = func(context.Context, *Config) (environmentResolver, error) {
		return nil, errors.New("resolver should not be built")
	}
	cfg := testConfig()
	cfg.AccountID = "999999999999"
	cfg.InstanceID = "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"
	cfg.Stage = "blue"

	env, err := p.ResolveEnv(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if env.AccountID != cfg.AccountID || env.InstanceID != cfg.InstanceID || env.Stage != "blue" {
		t.Errorf("env = %+v", env)
	}
}

func TestProvider_ResolveEnvMissingParameter(t *testing.T) {
	p := newSimulatedProvider(newSimulatedDirectory(), newMemStore())
	cfg := testConfig()
	cfg.IVR = "unknown"
	_, err := p.ResolveEnv(context.Background(), cfg)
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestProvider_Deploy(t *testing.T) {
	dir, store := seedProviderScenario(t)
	p := newSimulatedProvider(dir, store)

	res, err := p.Deploy(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if strings.Join(res.Created, ",") != "acme_manual" {
		t.Errorf("Created = %v", res.Created)
	}
	if strings.Join(res.Archived, ",") != "acme_legacy" {
		t.Errorf("Archived = %v", res.Archived)
	}
	// Only names carrying the default marker are updated.
	if strings.Join(res.Updated, ",") != "acme_main_AUTO" {
		t.Errorf("Updated = %v", res.Updated)
	}
}

func TestProvider_DeployInvalidConfig(t *testing.T) {
	p := newSimulatedProvider(newSimulatedDirectory(), newMemStore())
	cfg := testConfig()
	cfg.Capability = ""
	_, err := p.Deploy(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "capability is required") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestProvider_Plan(t *testing.T) {
	dir, store := seedProviderScenario(t)
	plan, err := newSimulatedProvider(dir, store).Plan(context.Background(), testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if plan.Summary() != "Plan: 1 to create, 1 to update, 1 to archive" {
		t.Errorf("Summary = %q", plan.Summary())
	}
}

func TestProvider_Render(t *testing.T) {
	dir, store := seedProviderScenario(t)
	out := newMemStore()
	keys, err := newSimulatedProvider(dir, store).Render(context.Background(), testConfig(), out)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Join(keys, ",") != "acme_main_AUTO.json,acme_manual.json" {
		t.Errorf("keys = %v", keys)
	}
	body, _ := out.Read(context.Background(), "acme_main_AUTO.json")
	doc, err := parseDocument("acme_main_AUTO.json", body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(doc.Content, dir.instanceARN()+"/queue/q-support") {
		t.Errorf("rendered content not resolved: %s", doc.Content)
	}
	if len(dir.flows) != 2 {
		t.Error("render must not create resources")
	}
}

func TestProvider_RenderCollectsFailures(t *testing.T) {
	dir, store := seedProviderScenario(t)
	store.putDocument(t, Resource{
		Name: "acme_broken", Type: "CONTACT_FLOW",
		Content: flowContent(`{"Identifier":"a1","Parameters":{"QueueId":"QUEUE#Nope"}}`),
	})
	out := newMemStore()
	keys, err := newSimulatedProvider(dir, store).Render(context.Background(), testConfig(), out)
	var re *ResolutionError
	if !errors.As(err, &re) || re.Name != "Nope" {
		t.Fatalf("expected ResolutionError, got %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("valid documents should still render, got %v", keys)
	}
}

func TestProvider_ExportAndReverse(t *testing.T) {
	dir := newSimulatedDirectory()
	seedRoundTrip(dir)
	cfg := testConfig()
	cfg.Stages = []string{"dev"}
	p := newSimulatedProvider(dir, newMemStore())

	out := newMemStore()
	res, err := p.Export(context.Background(), cfg, out)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(res.Keys) != 2 {
		t.Errorf("keys = %v", res.Keys)
	}

	live := dir.findByName(dir.flows, "acme_main")
	body, err := encodeDocument(*live)
	if err != nil {
		t.Fatal(err)
	}
	reversed, warnings, err := p.RenderReverse(context.Background(), cfg, body)
	if err != nil {
		t.Fatalf("RenderReverse: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v", warnings)
	}
	exported, _ := out.Read(context.Background(), "flows/acme_main.json")
	if string(reversed) != string(exported) {
		t.Errorf("reverse render differs from export\ngot  %s\nwant %s", reversed, exported)
	}
}
