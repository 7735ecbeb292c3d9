package flowsync

import "context"

// Summary is the listing view of an addressable resource.
type Summary struct {
	ID   string
	ARN  string
	Name string
}

// BotAlias is one alias of a Lex V2 bot.
type BotAlias struct {
	BotID     string
	BotName   string
	AliasID   string
	AliasName string
}

// CreateSpec describes a flow or module skeleton to create.
type CreateSpec struct {
	Name        string
	Type        string
	Description string
	Content     string
	Tags        map[string]string
}

// Metadata is the mutable metadata of a flow or module. Empty fields are
// left unchanged.
type Metadata struct {
	Name        string
	Description string
	State       string
}

// flowDirectory abstracts the Connect flow and flow-module APIs.
type flowDirectory interface {
	ListFlows(ctx context.Context) ([]Resource, error)
	ListModules(ctx context.Context) ([]Resource, error)
	DescribeFlow(ctx context.Context, id string) (*Resource, error)
	DescribeModule(ctx context.Context, id string) (*Resource, error)
	CreateFlow(ctx context.Context, spec CreateSpec) (id, arn string, err error)
	CreateModule(ctx context.Context, spec CreateSpec) (id, arn string, err error)
	UpdateFlowContent(ctx context.Context, id, content string) error
	UpdateFlowMetadata(ctx context.Context, id string, meta Metadata) error
	UpdateModuleContent(ctx context.Context, id, content string) error
	UpdateModuleMetadata(ctx context.Context, id string, meta Metadata) error
}

// resourceLister abstracts the read-only listings that feed the inventory.
type resourceLister interface {
	ListQueues(ctx context.Context) ([]Summary, error)
	ListPrompts(ctx context.Context) ([]Summary, error)
	ListHoursOfOperation(ctx context.Context) ([]Summary, error)
	ListFunctions(ctx context.Context) ([]Summary, error)
	ListBotAliases(ctx context.Context) ([]BotAlias, error)
	ListAssistants(ctx context.Context) ([]Summary, error)
}

// directory is everything the driver, collector and exporter need from the
// target environment.
type directory interface {
	flowDirectory
	resourceLister
}

// environmentResolver looks up run parameters the caller did not supply.
type environmentResolver interface {
	// AccountID returns the caller's AWS account.
	AccountID(ctx context.Context) (string, error)
	// Parameter reads an SSM parameter value.
	Parameter(ctx context.Context, name string) (string, error)
}
