// Package dynamodb implements a Writer that stores transactions in an AWS
// DynamoDB table keyed by message ID.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/momosync/momosync/pkg/api"
	"github.com/momosync/momosync/pkg/writer/buffered"
)

// maxBatchItems is the BatchWriteItem request limit.
const maxBatchItems = 25

// API is the subset of the DynamoDB client used by the writer.
type API interface {
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// Config holds configuration for the DynamoDB writer.
type Config struct {
	// Region is the AWS region. Defaults to the SDK's resolved region.
	Region string
	// TableName is the target table. Its partition key must be "MessageID".
	TableName string
	// Endpoint overrides the service endpoint, e.g. for DynamoDB Local.
	Endpoint string
	// BatchSize is the number of transactions to buffer before writing.
	BatchSize int
	// FlushInterval is the interval between automatic flushes.
	FlushInterval time.Duration
	// RetryDelay is the base backoff for throttled or unprocessed writes.
	RetryDelay time.Duration
}

// item is the stored representation of a transaction.
type item struct {
	MessageID         string  `dynamodbav:"MessageID"`
	ID                string  `dynamodbav:"ID"`
	Amount            float64 `dynamodbav:"Amount"`
	Currency          string  `dynamodbav:"Currency"`
	Direction         string  `dynamodbav:"Direction"`
	Network           string  `dynamodbav:"Network"`
	Counterparty      string  `dynamodbav:"Counterparty,omitempty"`
	CounterpartyPhone string  `dynamodbav:"CounterpartyPhone,omitempty"`
	Reference         string  `dynamodbav:"Reference,omitempty"`
	Sender            string  `dynamodbav:"Sender,omitempty"`
	Message           string  `dynamodbav:"Message,omitempty"`
	Timestamp         string  `dynamodbav:"Timestamp"`
	Source            string  `dynamodbav:"Source,omitempty"`
	DeviceID          string  `dynamodbav:"DeviceID,omitempty"`
}

func toItem(t *api.Transaction) item {
	return item{
		MessageID:         t.MessageID,
		ID:                t.ID,
		Amount:            t.Amount,
		Currency:          t.Currency,
		Direction:         t.Direction,
		Network:           t.Network,
		Counterparty:      t.Counterparty,
		CounterpartyPhone: t.CounterpartyPhone,
		Reference:         t.Reference,
		Sender:            t.Sender,
		Message:           t.Message,
		Timestamp:         t.Timestamp,
		Source:            t.Source,
		DeviceID:          t.DeviceID,
	}
}

var errUnprocessed = errors.New("unprocessed items remain")

// Writer writes transactions to DynamoDB with buffered batching.
type Writer struct {
	client     API
	table      string
	retryDelay time.Duration
	logger     *slog.Logger
	buffered   *buffered.Writer
}

// New creates a DynamoDB writer using the default AWS credential chain.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Writer, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return NewWithClient(ctx, client, cfg, logger)
}

// NewWithClient creates a writer around an existing client and verifies
// that the table exists.
func NewWithClient(ctx context.Context, client API, cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TableName == "" {
		return nil, fmt.Errorf("dynamodb table name is required")
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}

	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(cfg.TableName)})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("table %s does not exist", cfg.TableName)
		}
		return nil, fmt.Errorf("describing table: %w", err)
	}

	w := &Writer{
		client:     client,
		table:      cfg.TableName,
		retryDelay: cfg.RetryDelay,
		logger:     logger,
	}
	w.buffered = buffered.New(w.flushBatch, buffered.Config{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
	}, logger.With("component", "dynamodb_buffer"))

	logger.Info("dynamodb writer initialized", "table", cfg.TableName)
	return w, nil
}

// Write consumes transactions from the input channel and stores them.
func (w *Writer) Write(ctx context.Context, in <-chan *api.Transaction, ackChan chan<- string) error {
	return w.buffered.Write(ctx, in, ackChan)
}

func (w *Writer) flushBatch(ctx context.Context, transactions []*api.Transaction) error {
	// Items sharing a key within one request are rejected; the last one wins.
	latest := make(map[string]types.WriteRequest, len(transactions))
	order := make([]string, 0, len(transactions))
	for _, t := range transactions {
		av, err := attributevalue.MarshalMap(toItem(t))
		if err != nil {
			return fmt.Errorf("marshaling transaction %s: %w", t.MessageID, err)
		}
		if _, seen := latest[t.MessageID]; !seen {
			order = append(order, t.MessageID)
		}
		latest[t.MessageID] = types.WriteRequest{PutRequest: &types.PutRequest{Item: av}}
	}

	requests := make([]types.WriteRequest, 0, len(order))
	for _, id := range order {
		requests = append(requests, latest[id])
	}

	for start := 0; start < len(requests); start += maxBatchItems {
		end := min(start+maxBatchItems, len(requests))
		if err := w.writeChunk(ctx, requests[start:end]); err != nil {
			return err
		}
	}

	w.logger.Info("wrote transaction batch", "count", len(requests))
	return nil
}

func (w *Writer) writeChunk(ctx context.Context, pending []types.WriteRequest) error {
	err := retry.Do(
		func() error {
			out, err := w.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{w.table: pending},
			})
			if err != nil {
				return err
			}
			pending = out.UnprocessedItems[w.table]
			if len(pending) > 0 {
				return errUnprocessed
			}
			return nil
		},
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(n uint, err error) {
			w.logger.Warn("dynamodb write throttled, will retry", "attempt", n+1, "pending", len(pending), "error", err)
		}),
		retry.Attempts(5),
		retry.Delay(w.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return fmt.Errorf("batch writing items: %w", err)
	}
	return nil
}

func isRetryable(err error) bool {
	if errors.Is(err, errUnprocessed) {
		return true
	}
	var throughput *types.ProvisionedThroughputExceededException
	var limit *types.RequestLimitExceeded
	return errors.As(err, &throughput) || errors.As(err, &limit)
}
