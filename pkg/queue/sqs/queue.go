// Package sqs implements queue.Queue on AWS SQS.
package sqs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/threeoaks/csvpipe/pkg/queue"
)

// DefaultWaitTime is the long-poll duration when none is configured.
const DefaultWaitTime = 20 * time.Second

// Config configures the SQS queue.
type Config struct {
	// URL is the queue URL (required).
	URL string

	// Region overrides SDK region resolution.
	Region string

	// Endpoint points the client at an SQS-compatible endpoint
	// (ElasticMQ, moto). Empty uses AWS.
	Endpoint string

	// WaitTime is the Receive long-poll duration; zero uses DefaultWaitTime.
	WaitTime time.Duration

	// VisibilityTimeout overrides the queue's visibility timeout for
	// received messages; zero keeps the queue default.
	VisibilityTimeout time.Duration

	// AccessKeyID / SecretAccessKey override the default credential
	// chain when both are set.
	AccessKeyID     string
	SecretAccessKey string
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return errors.New("queue url is required")
	}
	return nil
}

// Queue implements queue.Queue on SQS.
type Queue struct {
	client     *sqs.Client
	url        string
	waitTime   time.Duration
	visibility time.Duration
}

var _ queue.Queue = (*Queue)(nil)

// New creates an SQS queue client using the SDK default credential chain
// unless explicit credentials are configured.
func New(ctx context.Context, cfg Config) (*Queue, error) {
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

	var clientOpts []func(*sqs.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	waitTime := cfg.WaitTime
	if waitTime <= 0 {
		waitTime = DefaultWaitTime
	}

	return &Queue{
		client:     sqs.NewFromConfig(awsCfg, clientOpts...),
		url:        cfg.URL,
		waitTime:   waitTime,
		visibility: cfg.VisibilityTimeout,
	}, nil
}

// NewFromClient wraps an existing client; used by integration tests.
func NewFromClient(client *sqs.Client, url string) *Queue {
	return &Queue{client: client, url: url, waitTime: time.Second}
}

func (q *Queue) Send(ctx context.Context, msg queue.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.url),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("send message for job %s: %w", msg.JobID, err)
	}
	return nil
}

func (q *Queue) Receive(ctx context.Context, max int) ([]queue.Delivery, error) {
	if max <= 0 {
		max = 1
	}
	if max > 10 {
		max = 10 // SQS batch ceiling
	}

	input := &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.url),
		MaxNumberOfMessages: int32(max),
		WaitTimeSeconds:     int32(q.waitTime / time.Second),
	}
	if q.visibility > 0 {
		input.VisibilityTimeout = int32(q.visibility / time.Second)
	}

	out, err := q.client.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("receive messages: %w", err)
	}

	deliveries := make([]queue.Delivery, 0, len(out.Messages))
	for _, m := range out.Messages {
		var msg queue.Message
		if err := json.Unmarshal([]byte(aws.ToString(m.Body)), &msg); err != nil {
			// A malformed body can never be processed; deleting it beats
			// redelivering it forever.
			_ = q.Delete(ctx, aws.ToString(m.ReceiptHandle))
			continue
		}
		deliveries = append(deliveries, queue.Delivery{
			Message: msg,
			Receipt: aws.ToString(m.ReceiptHandle),
		})
	}
	return deliveries, nil
}

func (q *Queue) Delete(ctx context.Context, receipt string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.url),
		ReceiptHandle: aws.String(receipt),
	})
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// Close satisfies queue.Queue; the SQS client needs no cleanup.
func (q *Queue) Close() error {
	return nil
}
