package flowsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"testing"

	"github.com/aws/smithy-go"
)

const (
	testRegion   = "us-east-1"
	testAccount  = "123456789012"
	testInstance = "11111111-2222-3333-4444-555555555555"
	testIVR      = "ivr1"
)

var errNotAuthorized = &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "not authorized"}

func testEnv() Env {
	return Env{AccountID: testAccount, Region: testRegion, InstanceID: testInstance, Stage: "dev"}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// simulatedDirectory is an in-memory Connect instance plus the adjacent
// services the inventory reads from.
type simulatedDirectory struct {
	region     string
	accountID  string
	instanceID string

	flows   map[string]*Resource
	modules map[string]*Resource
	nextID  int

	queues     []Summary
	prompts    []Summary
	hours      []Summary
	functions  []Summary
	assistants []Summary
	botAliases []BotAlias

	// failures maps "operation:name" to the error that call returns.
	failures map[string]error
	calls    []string
}

func newSimulatedDirectory() *simulatedDirectory {
	return &simulatedDirectory{
		region:     testRegion,
		accountID:  testAccount,
		instanceID: testInstance,
		flows:      make(map[string]*Resource),
		modules:    make(map[string]*Resource),
		failures:   make(map[string]error),
	}
}

func (s *simulatedDirectory) instanceARN() string {
	return fmt.Sprintf("arn:aws:connect:%s:%s:instance/%s", s.region, s.accountID, s.instanceID)
}

func (s *simulatedDirectory) newID(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%04d", prefix, s.nextID)
}

func (s *simulatedDirectory) fail(op, name string) error {
	s.calls = append(s.calls, op+":"+name)
	return s.failures[op+":"+name]
}

// addFlow seeds a live flow and returns it.
func (s *simulatedDirectory) addFlow(name, typ, content string) *Resource {
	id := s.newID("flow")
	r := &Resource{
		ID: id, Name: name, Type: typ, Content: content, State: "ACTIVE",
		ARN: s.instanceARN() + "/contact-flow/" + id,
	}
	s.flows[id] = r
	return r
}

// addModule seeds a live module and returns it.
func (s *simulatedDirectory) addModule(name, content string) *Resource {
	id := s.newID("module")
	r := &Resource{
		ID: id, Name: name, Content: content, State: stateActive,
		ARN: s.instanceARN() + "/flow-module/" + id,
	}
	s.modules[id] = r
	return r
}

func (s *simulatedDirectory) addQueue(name, id string) {
	s.queues = append(s.queues, Summary{ID: id, Name: name, ARN: s.instanceARN() + "/queue/" + id})
}

func (s *simulatedDirectory) addPrompt(name, id string) {
	s.prompts = append(s.prompts, Summary{ID: id, Name: name, ARN: s.instanceARN() + "/prompt/" + id})
}

func (s *simulatedDirectory) addHours(name, id string) {
	s.hours = append(s.hours, Summary{ID: id, Name: name, ARN: s.instanceARN() + "/operating-hours/" + id})
}

func (s *simulatedDirectory) addFunction(name string) {
	s.functions = append(s.functions, Summary{
		ID: name, Name: name,
		ARN: fmt.Sprintf("arn:aws:lambda:%s:%s:function:%s", s.region, s.accountID, name),
	})
}

func (s *simulatedDirectory) findByName(set map[string]*Resource, name string) *Resource {
	for _, r := range set {
		if r.Name == name {
			return r
		}
	}
	return nil
}

func listSorted(set map[string]*Resource) []Resource {
	out := make([]Resource, 0, len(set))
	for _, r := range set {
		summary := *r
		summary.Content = ""
		summary.Description = ""
		summary.Tags = nil
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *simulatedDirectory) ListFlows(_ context.Context) ([]Resource, error) {
	if err := s.fail("list", ResTypeFlow); err != nil {
		return nil, err
	}
	return listSorted(s.flows), nil
}

func (s *simulatedDirectory) ListModules(_ context.Context) ([]Resource, error) {
	if err := s.fail("list", ResTypeModule); err != nil {
		return nil, err
	}
	return listSorted(s.modules), nil
}

func notFound(id string) error {
	return &smithy.GenericAPIError{Code: "ResourceNotFoundException", Message: id + " not found"}
}

func (s *simulatedDirectory) DescribeFlow(_ context.Context, id string) (*Resource, error) {
	r, ok := s.flows[id]
	if !ok {
		return nil, notFound(id)
	}
	if err := s.fail("describe", r.Name); err != nil {
		return nil, err
	}
	out := *r
	return &out, nil
}

func (s *simulatedDirectory) DescribeModule(_ context.Context, id string) (*Resource, error) {
	r, ok := s.modules[id]
	if !ok {
		return nil, notFound(id)
	}
	if err := s.fail("describe", r.Name); err != nil {
		return nil, err
	}
	out := *r
	return &out, nil
}

func (s *simulatedDirectory) CreateFlow(_ context.Context, spec CreateSpec) (string, string, error) {
	if err := s.fail("create", spec.Name); err != nil {
		return "", "", err
	}
	if s.findByName(s.flows, spec.Name) != nil {
		return "", "", &smithy.GenericAPIError{Code: "DuplicateResourceException", Message: spec.Name}
	}
	r := s.addFlow(spec.Name, spec.Type, spec.Content)
	r.Description = spec.Description
	r.Tags = spec.Tags
	return r.ID, r.ARN, nil
}

func (s *simulatedDirectory) CreateModule(_ context.Context, spec CreateSpec) (string, string, error) {
	if err := s.fail("create", spec.Name); err != nil {
		return "", "", err
	}
	if s.findByName(s.modules, spec.Name) != nil {
		return "", "", &smithy.GenericAPIError{Code: "DuplicateResourceException", Message: spec.Name}
	}
	r := s.addModule(spec.Name, spec.Content)
	r.Description = spec.Description
	r.Tags = spec.Tags
	return r.ID, r.ARN, nil
}

func (s *simulatedDirectory) UpdateFlowContent(_ context.Context, id, content string) error {
	r, ok := s.flows[id]
	if !ok {
		return notFound(id)
	}
	if err := s.fail("update", r.Name); err != nil {
		return err
	}
	r.Content = content
	return nil
}

func (s *simulatedDirectory) UpdateModuleContent(_ context.Context, id, content string) error {
	r, ok := s.modules[id]
	if !ok {
		return notFound(id)
	}
	if err := s.fail("update", r.Name); err != nil {
		return err
	}
	r.Content = content
	return nil
}

func applyMetadata(r *Resource, meta Metadata) {
	if meta.Name != "" {
		r.Name = meta.Name
	}
	if meta.Description != "" {
		r.Description = meta.Description
	}
	if meta.State != "" {
		r.State = meta.State
	}
}

func (s *simulatedDirectory) UpdateFlowMetadata(_ context.Context, id string, meta Metadata) error {
	r, ok := s.flows[id]
	if !ok {
		return notFound(id)
	}
	if err := s.fail("metadata", r.Name); err != nil {
		return err
	}
	applyMetadata(r, meta)
	return nil
}

func (s *simulatedDirectory) UpdateModuleMetadata(_ context.Context, id string, meta Metadata) error {
	r, ok := s.modules[id]
	if !ok {
		return notFound(id)
	}
	if err := s.fail("metadata", r.Name); err != nil {
		return err
	}
	applyMetadata(r, meta)
	return nil
}

func (s *simulatedDirectory) ListQueues(_ context.Context) ([]Summary, error) {
	return s.queues, s.fail("list", "queue")
}

func (s *simulatedDirectory) ListPrompts(_ context.Context) ([]Summary, error) {
	return s.prompts, s.fail("list", "prompt")
}

func (s *simulatedDirectory) ListHoursOfOperation(_ context.Context) ([]Summary, error) {
	return s.hours, s.fail("list", "hours_of_operation")
}

func (s *simulatedDirectory) ListFunctions(_ context.Context) ([]Summary, error) {
	return s.functions, s.fail("list", "function")
}

func (s *simulatedDirectory) ListBotAliases(_ context.Context) ([]BotAlias, error) {
	return s.botAliases, s.fail("list", "bot_alias")
}

func (s *simulatedDirectory) ListAssistants(_ context.Context) ([]Summary, error) {
	return s.assistants, s.fail("list", "assistant")
}

// memStore is an in-memory DocumentStore.
type memStore struct {
	objects map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (m *memStore) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memStore) Read(_ context.Context, key string) ([]byte, error) {
	body, ok := m.objects[key]
	if !ok {
		return nil, errors.New("no such key: " + key)
	}
	return body, nil
}

func (m *memStore) Write(_ context.Context, key string, body []byte) error {
	m.objects[key] = append([]byte(nil), body...)
	return nil
}

// putDocument stores a desired document under the callflow layout.
func (m *memStore) putDocument(t *testing.T, doc Resource) {
	t.Helper()
	body, err := encodeDocument(doc)
	if err != nil {
		t.Fatalf("encode %s: %v", doc.Name, err)
	}
	m.objects[testIVR+"/callflows/"+doc.Name+".json"] = body
}

// simulatedResolver answers account and parameter lookups from memory.
type simulatedResolver struct {
	account string
	params  map[string]string
}

func (r *simulatedResolver) AccountID(_ context.Context) (string, error) {
	return r.account, nil
}

func (r *simulatedResolver) Parameter(_ context.Context, name string) (string, error) {
	v, ok := r.params[name]
	if !ok {
		return "", &NotFoundError{What: "parameter " + name, Where: "SSM"}
	}
	return v, nil
}

// newSimulatedProvider creates a Provider wired with in-memory
// collaborators for unit testing. No AWS credentials are required.
func newSimulatedProvider(dir *simulatedDirectory, store *memStore) *Provider {
	return &Provider{
		directoryFunc: func(_ context.Context, _ *Config, _ string) (directory, error) {
			return dir, nil
		},
		storeFunc: func(_ context.Context, _ *Config) (DocumentStore, error) {
			return store, nil
		},
		resolverFunc: func(_ context.Context, _ *Config) (environmentResolver, error) {
			return &simulatedResolver{
				account: testAccount,
				params:  map[string]string{instanceIDParameter("dev", "use1", testIVR): testInstance},
			}, nil
		},
		log:     discardLogger(),
		metrics: NewMetrics(),
	}
}

// flowContent builds a minimal flow document with the given actions JSON.
func flowContent(actions string) string {
	return `{"Version":"2019-10-30","StartAction":"a1","Actions":[` + actions + `]}`
}
