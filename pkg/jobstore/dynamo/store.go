// Package dynamo provides a DynamoDB-backed jobstore backend.
//
// This is the deployment-grade store: every stage invocation talks to the
// same table, keyed by jobId, using field-level UpdateItem expressions so
// redelivered invocations never clobber unrelated fields.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/threeoaks/csvpipe/pkg/jobstore"
)

// Config configures the DynamoDB store.
type Config struct {
	// Table is the DynamoDB table name (required).
	Table string

	// Region overrides the SDK default region resolution.
	Region string

	// Endpoint points the client at a DynamoDB-compatible endpoint
	// (dynamodb-local, moto). Empty uses AWS.
	Endpoint string

	// AccessKeyID / SecretAccessKey override the default credential
	// chain when both are set.
	AccessKeyID     string
	SecretAccessKey string
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Table) == "" {
		return errors.New("job table name is required")
	}
	return nil
}

// Store is a DynamoDB-backed jobstore.Store.
type Store struct {
	client *dynamodb.Client
	table  string
}

var _ jobstore.Store = (*Store)(nil)

// New creates a DynamoDB store using the SDK default credential chain
// unless explicit credentials are configured.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var clientOpts []func(*dynamodb.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return &Store{
		client: dynamodb.NewFromConfig(awsCfg, clientOpts...),
		table:  cfg.Table,
	}, nil
}

// NewFromClient wraps an existing client; used by integration tests.
func NewFromClient(client *dynamodb.Client, table string) *Store {
	return &Store{client: client, table: table}
}

func (s *Store) Create(ctx context.Context, job *jobstore.Job) error {
	if job == nil || strings.TrimSpace(job.JobID) == "" {
		return errors.New("job id is required")
	}

	item, err := attributevalue.MarshalMap(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.JobID, err)
	}

	// PutItem replaces any prior item for the same key: the documented
	// duplicate-upload overwrite semantics.
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("create job %s: %w", job.JobID, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, jobID string, upd jobstore.Update) error {
	if strings.TrimSpace(jobID) == "" {
		return errors.New("job id is required")
	}
	if upd.Empty() {
		return nil
	}

	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	var sets []string
	add := func(field string, value any) error {
		av, err := attributevalue.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", field, err)
		}
		nameTok := fmt.Sprintf("#k%d", len(sets))
		valTok := fmt.Sprintf(":v%d", len(sets))
		sets = append(sets, nameTok+" = "+valTok)
		names[nameTok] = field
		values[valTok] = av
		return nil
	}

	if upd.Status != nil {
		if err := add("status", string(*upd.Status)); err != nil {
			return err
		}
	}
	if upd.Message != nil {
		if err := add("message", *upd.Message); err != nil {
			return err
		}
	}
	if upd.RowCount != nil {
		if err := add("rowCount", *upd.RowCount); err != nil {
			return err
		}
	}
	if upd.ErrorCount != nil {
		if err := add("errorCount", *upd.ErrorCount); err != nil {
			return err
		}
	}
	if upd.OutputPrefix != nil {
		if err := add("outputPrefix", *upd.OutputPrefix); err != nil {
			return err
		}
	}
	if upd.FinishedAt != nil {
		if err := add("finishedAt", *upd.FinishedAt); err != nil {
			return err
		}
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       jobKey(jobID),
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(jobId)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return jobstore.ErrNotFound
		}
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, jobID string) (*jobstore.Job, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, errors.New("job id is required")
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            jobKey(jobID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	if len(out.Item) == 0 {
		return nil, jobstore.ErrNotFound
	}

	var job jobstore.Job
	if err := attributevalue.UnmarshalMap(out.Item, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", jobID, err)
	}
	return &job, nil
}

// Close satisfies jobstore.Store; the DynamoDB client needs no cleanup.
func (s *Store) Close() error {
	return nil
}

func jobKey(jobID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"jobId": &types.AttributeValueMemberS{Value: jobID},
	}
}
