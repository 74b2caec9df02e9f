// Package admin tracks long-running administrative operations. Bulk slot
// maintenance runs asynchronously; the run record is what the admin UI polls
// for progress and the final report.
package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/salonflow/booking-platform/internal/lifecycle"
	"github.com/salonflow/booking-platform/pkg/logging"
)

const runTTL = 7 * 24 * time.Hour

// RunStatus represents the lifecycle of a bulk operation run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Bulk operation names recorded on run records.
const (
	OpRegenerate = "regenerate_slots"
	OpDelete     = "delete_available"
	OpBackfill   = "backfill_denormalization"
)

// ErrRunNotFound indicates the requested run ID does not exist.
var ErrRunNotFound = errors.New("admin: run not found")

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// RunRecord captures the persisted state of a bulk operation.
type RunRecord struct {
	RunID        string                 `dynamodbav:"runId" json:"runId"`
	BusinessID   string                 `dynamodbav:"businessId" json:"businessId"`
	Operation    string                 `dynamodbav:"operation" json:"operation"`
	Status       RunStatus              `dynamodbav:"status" json:"status"`
	FromDay      string                 `dynamodbav:"fromDay,omitempty" json:"fromDay,omitempty"`
	ToDay        string                 `dynamodbav:"toDay,omitempty" json:"toDay,omitempty"`
	Report       *lifecycle.BatchReport `dynamodbav:"report,omitempty" json:"report,omitempty"`
	ErrorMessage string                 `dynamodbav:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	CreatedAt    string                 `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt    string                 `dynamodbav:"updatedAt" json:"updatedAt"`
	ExpiresAt    int64                  `dynamodbav:"expiresAt,omitempty" json:"-"`
}

// RunStore persists bulk run records to DynamoDB.
type RunStore struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

// NewRunStore builds a store backed by the provided DynamoDB client.
func NewRunStore(client dynamoAPI, tableName string, logger *logging.Logger) *RunStore {
	if client == nil {
		panic("admin: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("admin: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RunStore{client: client, tableName: tableName, logger: logger}
}

// PutPending inserts a new pending run record.
func (s *RunStore) PutPending(ctx context.Context, run *RunRecord) error {
	if run == nil {
		return errors.New("admin: run cannot be nil")
	}
	now := time.Now().UTC()
	run.Status = RunStatusPending
	run.CreatedAt = now.Format(time.RFC3339Nano)
	run.UpdatedAt = run.CreatedAt
	if run.ExpiresAt == 0 {
		run.ExpiresAt = now.Add(runTTL).Unix()
	}

	item, err := attributevalue.MarshalMap(run)
	if err != nil {
		return fmt.Errorf("admin: failed to marshal run: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(runId)"),
	})
	if err != nil {
		return fmt.Errorf("admin: failed to persist run: %w", err)
	}
	return nil
}

// MarkCompleted updates a run with its final report.
func (s *RunStore) MarkCompleted(ctx context.Context, runID string, report *lifecycle.BatchReport) error {
	if runID == "" {
		return errors.New("admin: runID required")
	}
	if report == nil {
		report = &lifecycle.BatchReport{}
	}
	reportAttr, err := attributevalue.Marshal(report)
	if err != nil {
		return fmt.Errorf("admin: failed to marshal report: %w", err)
	}

	return s.updateRun(
		ctx,
		runID,
		map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: string(RunStatusCompleted)},
			":report":  reportAttr,
			":error":   &types.AttributeValueMemberS{Value: ""},
			":updated": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		map[string]string{
			"#status":  "status",
			"#report":  "report",
			"#error":   "errorMessage",
			"#updated": "updatedAt",
		},
		"SET #status = :status, #report = :report, #error = :error, #updated = :updated",
	)
}

// MarkFailed updates a run to the failed state. A partial report, if any, is
// preserved alongside the error.
func (s *RunStore) MarkFailed(ctx context.Context, runID string, errMsg string, report *lifecycle.BatchReport) error {
	if runID == "" {
		return errors.New("admin: runID required")
	}
	var reportAttr types.AttributeValue = &types.AttributeValueMemberNULL{Value: true}
	if report != nil {
		attr, err := attributevalue.Marshal(report)
		if err != nil {
			return fmt.Errorf("admin: failed to marshal report: %w", err)
		}
		reportAttr = attr
	}

	return s.updateRun(
		ctx,
		runID,
		map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: string(RunStatusFailed)},
			":report":  reportAttr,
			":error":   &types.AttributeValueMemberS{Value: errMsg},
			":updated": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		map[string]string{
			"#status":  "status",
			"#report":  "report",
			"#error":   "errorMessage",
			"#updated": "updatedAt",
		},
		"SET #status = :status, #report = :report, #error = :error, #updated = :updated",
	)
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	if runID == "" {
		return nil, errors.New("admin: runID required")
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"runId": &types.AttributeValueMemberS{Value: runID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("admin: failed to fetch run: %w", err)
	}
	if out.Item == nil {
		return nil, ErrRunNotFound
	}

	var run RunRecord
	if err := attributevalue.UnmarshalMap(out.Item, &run); err != nil {
		return nil, fmt.Errorf("admin: failed to decode run: %w", err)
	}
	return &run, nil
}

func (s *RunStore) updateRun(ctx context.Context, runID string, values map[string]types.AttributeValue, names map[string]string, expression string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"runId": &types.AttributeValueMemberS{Value: runID},
		},
		UpdateExpression:          aws.String(expression),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(runId)"),
	})
	if err != nil {
		return fmt.Errorf("admin: failed to update run %s: %w", runID, err)
	}
	return nil
}
