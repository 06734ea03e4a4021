package athena

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"
)

// ClientConfig holds AWS connection settings. When AccessKeyID is empty the
// SDK's default credential chain is used.
type ClientConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// api is the subset of *athena.Client used by Client.
type api interface {
	StartQueryExecution(ctx context.Context, in *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, in *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
	GetQueryResults(ctx context.Context, in *athena.GetQueryResultsInput, optFns ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error)
	StopQueryExecution(ctx context.Context, in *athena.StopQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StopQueryExecutionOutput, error)
}

// Client implements QueryService on top of the AWS SDK v2.
type Client struct {
	api api
}

var _ QueryService = (*Client)(nil)

// NewClient loads AWS configuration for cfg.Region and returns a Client.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("athena: load aws config: %w", err)
	}
	return &Client{api: athena.NewFromConfig(awsCfg)}, nil
}

// Start submits query and returns the execution id.
func (c *Client) Start(ctx context.Context, query string, ec ExecutionContext) (string, error) {
	in := &athena.StartQueryExecutionInput{
		QueryString:           aws.String(query),
		QueryExecutionContext: &types.QueryExecutionContext{},
	}
	if ec.Database != "" {
		in.QueryExecutionContext.Database = aws.String(ec.Database)
	}
	if ec.Catalog != "" {
		in.QueryExecutionContext.Catalog = aws.String(ec.Catalog)
	}
	if ec.Workgroup != "" {
		in.WorkGroup = aws.String(ec.Workgroup)
	}
	if ec.OutputLocation != "" {
		in.ResultConfiguration = &types.ResultConfiguration{OutputLocation: aws.String(ec.OutputLocation)}
	}

	out, err := c.api.StartQueryExecution(ctx, in)
	if err != nil {
		return "", err
	}
	id := aws.ToString(out.QueryExecutionId)
	if id == "" {
		return "", fmt.Errorf("athena: empty execution id")
	}
	return id, nil
}

// Status returns the execution state and, for failures, the reason.
func (c *Client) Status(ctx context.Context, executionID string) (Status, error) {
	out, err := c.api.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{
		QueryExecutionId: aws.String(executionID),
	})
	if err != nil {
		return Status{}, err
	}
	if out.QueryExecution == nil || out.QueryExecution.Status == nil {
		return Status{}, fmt.Errorf("athena: execution %s has no status", executionID)
	}
	st := out.QueryExecution.Status
	return Status{
		State:  State(st.State),
		Reason: aws.ToString(st.StateChangeReason),
	}, nil
}

// ResultsPage fetches one page of results.
func (c *Client) ResultsPage(ctx context.Context, executionID, nextToken string) (Page, error) {
	in := &athena.GetQueryResultsInput{QueryExecutionId: aws.String(executionID)}
	if nextToken != "" {
		in.NextToken = aws.String(nextToken)
	}
	out, err := c.api.GetQueryResults(ctx, in)
	if err != nil {
		return Page{}, err
	}
	var p Page
	if out.ResultSet != nil {
		p.Rows = make([][]*string, 0, len(out.ResultSet.Rows))
		for _, r := range out.ResultSet.Rows {
			cells := make([]*string, len(r.Data))
			for i, d := range r.Data {
				cells[i] = d.VarCharValue
			}
			p.Rows = append(p.Rows, cells)
		}
	}
	p.NextToken = aws.ToString(out.NextToken)
	return p, nil
}

// Stop cancels a running execution.
func (c *Client) Stop(ctx context.Context, executionID string) error {
	_, err := c.api.StopQueryExecution(ctx, &athena.StopQueryExecutionInput{
		QueryExecutionId: aws.String(executionID),
	})
	return err
}
