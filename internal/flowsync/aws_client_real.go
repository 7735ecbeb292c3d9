package flowsync

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/connect"
	ctypes "github.com/aws/aws-sdk-go-v2/service/connect/types"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lexmodelsv2"
	"github.com/aws/aws-sdk-go-v2/service/qconnect"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// listPageSize is the MaxResults value used when listing Connect resources.
const listPageSize = 100

// Retry policy for every AWS client.
const (
	retryMaxAttempts = 4
	retryBaseDelay   = 100 * time.Millisecond
	retryStepDelay   = time.Second
)

// linearBackoff waits retryBaseDelay plus one retryStepDelay per attempt.
type linearBackoff struct{}

func (linearBackoff) BackoffDelay(attempt int, _ error) (time.Duration, error) {
	return retryBaseDelay + time.Duration(attempt)*retryStepDelay, nil
}

// loadAWSConfig resolves credentials through the default chain with the
// run's retry policy.
func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx,
		awscfg.WithRegion(region),
		awscfg.WithAppID(userAgent()),
		awscfg.WithRetryer(func() aws.Retryer {
			return retry.NewStandard(func(o *retry.StandardOptions) {
				o.MaxAttempts = retryMaxAttempts
				o.Backoff = linearBackoff{}
			})
		}),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	return cfg, nil
}

// realDirectory implements directory over the Connect, Lambda, Lex V2 and
// Q in Connect APIs.
type realDirectory struct {
	connect    *connect.Client
	lambda     *lambda.Client
	lex        *lexmodelsv2.Client
	qconnect   *qconnect.Client
	instanceID string
}

// newRealDirectory builds the clients for one instance.
func newRealDirectory(awsCfg aws.Config, instanceID string) *realDirectory {
	return &realDirectory{
		connect:    connect.NewFromConfig(awsCfg),
		lambda:     lambda.NewFromConfig(awsCfg),
		lex:        lexmodelsv2.NewFromConfig(awsCfg),
		qconnect:   qconnect.NewFromConfig(awsCfg),
		instanceID: instanceID,
	}
}

// ---------- flowDirectory implementation ----------

func (c *realDirectory) ListFlows(ctx context.Context) ([]Resource, error) {
	var out []Resource
	p := connect.NewListContactFlowsPaginator(c.connect, &connect.ListContactFlowsInput{
		InstanceId: aws.String(c.instanceID),
		MaxResults: aws.Int32(listPageSize),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, s := range page.ContactFlowSummaryList {
			out = append(out, Resource{
				ID:    aws.ToString(s.Id),
				ARN:   aws.ToString(s.Arn),
				Name:  aws.ToString(s.Name),
				Type:  string(s.ContactFlowType),
				State: string(s.ContactFlowState),
			})
		}
	}
	return out, nil
}

func (c *realDirectory) ListModules(ctx context.Context) ([]Resource, error) {
	var out []Resource
	p := connect.NewListContactFlowModulesPaginator(c.connect, &connect.ListContactFlowModulesInput{
		InstanceId: aws.String(c.instanceID),
		MaxResults: aws.Int32(listPageSize),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, s := range page.ContactFlowModulesSummaryList {
			out = append(out, Resource{
				ID:    aws.ToString(s.Id),
				ARN:   aws.ToString(s.Arn),
				Name:  aws.ToString(s.Name),
				State: string(s.State),
			})
		}
	}
	return out, nil
}

func (c *realDirectory) DescribeFlow(ctx context.Context, id string) (*Resource, error) {
	out, err := c.connect.DescribeContactFlow(ctx, &connect.DescribeContactFlowInput{
		InstanceId:    aws.String(c.instanceID),
		ContactFlowId: aws.String(id),
	})
	if err != nil {
		return nil, err
	}
	f := out.ContactFlow
	if f == nil {
		return nil, &NotFoundError{What: "flow " + id, Where: "instance " + c.instanceID}
	}
	return &Resource{
		ID:          aws.ToString(f.Id),
		ARN:         aws.ToString(f.Arn),
		Name:        aws.ToString(f.Name),
		Type:        string(f.Type),
		State:       string(f.State),
		Description: aws.ToString(f.Description),
		Tags:        f.Tags,
		Content:     aws.ToString(f.Content),
	}, nil
}

func (c *realDirectory) DescribeModule(ctx context.Context, id string) (*Resource, error) {
	out, err := c.connect.DescribeContactFlowModule(ctx, &connect.DescribeContactFlowModuleInput{
		InstanceId:          aws.String(c.instanceID),
		ContactFlowModuleId: aws.String(id),
	})
	if err != nil {
		return nil, err
	}
	m := out.ContactFlowModule
	if m == nil {
		return nil, &NotFoundError{What: "flow module " + id, Where: "instance " + c.instanceID}
	}
	return &Resource{
		ID:          aws.ToString(m.Id),
		ARN:         aws.ToString(m.Arn),
		Name:        aws.ToString(m.Name),
		State:       string(m.State),
		Description: aws.ToString(m.Description),
		Tags:        m.Tags,
		Content:     aws.ToString(m.Content),
	}, nil
}

func (c *realDirectory) CreateFlow(ctx context.Context, spec CreateSpec) (string, string, error) {
	out, err := c.connect.CreateContactFlow(ctx, &connect.CreateContactFlowInput{
		InstanceId:  aws.String(c.instanceID),
		Name:        aws.String(spec.Name),
		Type:        ctypes.ContactFlowType(spec.Type),
		Description: aws.String(spec.Description),
		Content:     aws.String(spec.Content),
		Tags:        spec.Tags,
	})
	if err != nil {
		return "", "", err
	}
	return aws.ToString(out.ContactFlowId), aws.ToString(out.ContactFlowArn), nil
}

func (c *realDirectory) CreateModule(ctx context.Context, spec CreateSpec) (string, string, error) {
	out, err := c.connect.CreateContactFlowModule(ctx, &connect.CreateContactFlowModuleInput{
		InstanceId:  aws.String(c.instanceID),
		Name:        aws.String(spec.Name),
		Description: aws.String(spec.Description),
		Content:     aws.String(spec.Content),
		Tags:        spec.Tags,
	})
	if err != nil {
		return "", "", err
	}
	return aws.ToString(out.Id), aws.ToString(out.Arn), nil
}

func (c *realDirectory) UpdateFlowContent(ctx context.Context, id, content string) error {
	_, err := c.connect.UpdateContactFlowContent(ctx, &connect.UpdateContactFlowContentInput{
		InstanceId:    aws.String(c.instanceID),
		ContactFlowId: aws.String(id),
		Content:       aws.String(content),
	})
	return err
}

func (c *realDirectory) UpdateFlowMetadata(ctx context.Context, id string, meta Metadata) error {
	_, err := c.connect.UpdateContactFlowMetadata(ctx, &connect.UpdateContactFlowMetadataInput{
		InstanceId:       aws.String(c.instanceID),
		ContactFlowId:    aws.String(id),
		Name:             optionalString(meta.Name),
		Description:      optionalString(meta.Description),
		ContactFlowState: ctypes.ContactFlowState(meta.State),
	})
	return err
}

func (c *realDirectory) UpdateModuleContent(ctx context.Context, id, content string) error {
	_, err := c.connect.UpdateContactFlowModuleContent(ctx, &connect.UpdateContactFlowModuleContentInput{
		InstanceId:          aws.String(c.instanceID),
		ContactFlowModuleId: aws.String(id),
		Content:             aws.String(content),
	})
	return err
}

func (c *realDirectory) UpdateModuleMetadata(ctx context.Context, id string, meta Metadata) error {
	_, err := c.connect.UpdateContactFlowModuleMetadata(ctx, &connect.UpdateContactFlowModuleMetadataInput{
		InstanceId:          aws.String(c.instanceID),
		ContactFlowModuleId: aws.String(id),
		Name:                optionalString(meta.Name),
		Description:         optionalString(meta.Description),
		State:               ctypes.ContactFlowModuleState(meta.State),
	})
	return err
}

// optionalString returns nil for "", so the API leaves the field alone.
func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}

// ---------- resourceLister implementation ----------

func (c *realDirectory) ListQueues(ctx context.Context) ([]Summary, error) {
	var out []Summary
	p := connect.NewListQueuesPaginator(c.connect, &connect.ListQueuesInput{
		InstanceId: aws.String(c.instanceID),
		QueueTypes: []ctypes.QueueType{ctypes.QueueTypeStandard},
		MaxResults: aws.Int32(listPageSize),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, s := range page.QueueSummaryList {
			out = append(out, Summary{ID: aws.ToString(s.Id), ARN: aws.ToString(s.Arn), Name: aws.ToString(s.Name)})
		}
	}
	return out, nil
}

func (c *realDirectory) ListPrompts(ctx context.Context) ([]Summary, error) {
	var out []Summary
	p := connect.NewListPromptsPaginator(c.connect, &connect.ListPromptsInput{
		InstanceId: aws.String(c.instanceID),
		MaxResults: aws.Int32(listPageSize),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, s := range page.PromptSummaryList {
			out = append(out, Summary{ID: aws.ToString(s.Id), ARN: aws.ToString(s.Arn), Name: aws.ToString(s.Name)})
		}
	}
	return out, nil
}

func (c *realDirectory) ListHoursOfOperation(ctx context.Context) ([]Summary, error) {
	var out []Summary
	p := connect.NewListHoursOfOperationsPaginator(c.connect, &connect.ListHoursOfOperationsInput{
		InstanceId: aws.String(c.instanceID),
		MaxResults: aws.Int32(listPageSize),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, s := range page.HoursOfOperationSummaryList {
			out = append(out, Summary{ID: aws.ToString(s.Id), ARN: aws.ToString(s.Arn), Name: aws.ToString(s.Name)})
		}
	}
	return out, nil
}

func (c *realDirectory) ListFunctions(ctx context.Context) ([]Summary, error) {
	var out []Summary
	p := lambda.NewListFunctionsPaginator(c.lambda, &lambda.ListFunctionsInput{})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, fn := range page.Functions {
			out = append(out, Summary{
				ID:   aws.ToString(fn.FunctionName),
				ARN:  aws.ToString(fn.FunctionArn),
				Name: aws.ToString(fn.FunctionName),
			})
		}
	}
	return out, nil
}

// ListBotAliases lists every Lex V2 bot and then each bot's aliases.
func (c *realDirectory) ListBotAliases(ctx context.Context) ([]BotAlias, error) {
	var out []BotAlias
	bots := lexmodelsv2.NewListBotsPaginator(c.lex, &lexmodelsv2.ListBotsInput{})
	for bots.HasMorePages() {
		page, err := bots.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, bot := range page.BotSummaries {
			botID := aws.ToString(bot.BotId)
			aliases := lexmodelsv2.NewListBotAliasesPaginator(c.lex, &lexmodelsv2.ListBotAliasesInput{
				BotId: aws.String(botID),
			})
			for aliases.HasMorePages() {
				ap, err := aliases.NextPage(ctx)
				if err != nil {
					return nil, fmt.Errorf("bot %s: %w", aws.ToString(bot.BotName), err)
				}
				for _, a := range ap.BotAliasSummaries {
					out = append(out, BotAlias{
						BotID:     botID,
						BotName:   aws.ToString(bot.BotName),
						AliasID:   aws.ToString(a.BotAliasId),
						AliasName: aws.ToString(a.BotAliasName),
					})
				}
			}
		}
	}
	return out, nil
}

func (c *realDirectory) ListAssistants(ctx context.Context) ([]Summary, error) {
	var out []Summary
	p := qconnect.NewListAssistantsPaginator(c.qconnect, &qconnect.ListAssistantsInput{})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, a := range page.AssistantSummaries {
			out = append(out, Summary{
				ID:   aws.ToString(a.AssistantId),
				ARN:  aws.ToString(a.AssistantArn),
				Name: aws.ToString(a.Name),
			})
		}
	}
	return out, nil
}

// ---------- environmentResolver implementation ----------

// realResolver looks up the account through STS and parameters through SSM.
type realResolver struct {
	sts *sts.Client
	ssm *ssm.Client
}

func newRealResolver(awsCfg aws.Config) *realResolver {
	return &realResolver{sts: sts.NewFromConfig(awsCfg), ssm: ssm.NewFromConfig(awsCfg)}
}

func (r *realResolver) AccountID(ctx context.Context) (string, error) {
	out, err := r.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("STS GetCallerIdentity: %w", err)
	}
	return aws.ToString(out.Account), nil
}

func (r *realResolver) Parameter(ctx context.Context, name string) (string, error) {
	out, err := r.ssm.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("SSM GetParameter %s: %w", name, err)
	}
	if out.Parameter == nil {
		return "", &NotFoundError{What: "parameter " + name, Where: "SSM"}
	}
	return aws.ToString(out.Parameter.Value), nil
}

// newRealStore returns the S3 store for bucket.
func newRealStore(awsCfg aws.Config, bucket string) *S3Store {
	return NewS3Store(s3.NewFromConfig(awsCfg), bucket)
}
