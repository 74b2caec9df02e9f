package admin

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/salonflow/booking-platform/internal/lifecycle"
	"github.com/salonflow/booking-platform/pkg/logging"
)

func TestRunStore_PutPendingPersistsDefaults(t *testing.T) {
	mock := &mockDynamo{}
	store := NewRunStore(mock, "admin_bulk_runs", logging.Default())

	run := &RunRecord{
		RunID:      "run-123",
		BusinessID: "biz-1",
		Operation:  OpRegenerate,
		FromDay:    "2026-03-02",
		ToDay:      "2026-03-06",
	}

	if err := store.PutPending(context.Background(), run); err != nil {
		t.Fatalf("PutPending returned error: %v", err)
	}

	if mock.putInput == nil {
		t.Fatalf("expected PutItem to be called")
	}

	var stored RunRecord
	if err := attributevalue.UnmarshalMap(mock.putInput.Item, &stored); err != nil {
		t.Fatalf("failed to unmarshal stored run: %v", err)
	}

	if stored.Status != RunStatusPending {
		t.Fatalf("expected status pending, got %s", stored.Status)
	}
	if stored.CreatedAt == "" || stored.UpdatedAt == "" {
		t.Fatal("expected timestamps to be populated")
	}
	if stored.ExpiresAt <= time.Now().Unix() {
		t.Fatal("expected TTL to be in the future")
	}

	if expr := mock.putInput.ConditionExpression; expr == nil || *expr != "attribute_not_exists(runId)" {
		t.Fatalf("expected condition expression to prevent overwrites, got %v", expr)
	}
}

func TestRunStore_PutPendingNilRun(t *testing.T) {
	store := NewRunStore(&mockDynamo{}, "admin_bulk_runs", logging.Default())
	if err := store.PutPending(context.Background(), nil); err == nil {
		t.Fatal("expected error when run is nil")
	}
}

func TestRunStore_MarkCompleted_UsesReservedAttributeNames(t *testing.T) {
	mock := &mockDynamo{}
	store := NewRunStore(mock, "admin_bulk_runs", logging.Default())

	report := &lifecycle.BatchReport{TotalProcessed: 80, Succeeded: 80}
	if err := store.MarkCompleted(context.Background(), "run-123", report); err != nil {
		t.Fatalf("MarkCompleted returned error: %v", err)
	}

	if len(mock.updateInputs) != 1 {
		t.Fatalf("expected 1 update call, got %d", len(mock.updateInputs))
	}

	update := mock.updateInputs[0]
	names := update.ExpressionAttributeNames
	if names["#report"] != "report" || names["#error"] != "errorMessage" {
		t.Fatalf("expected reserved attribute names to be aliased, got %v", names)
	}

	values := update.ExpressionAttributeValues
	status := values[":status"].(*types.AttributeValueMemberS).Value
	if status != string(RunStatusCompleted) {
		t.Fatalf("expected completed status, got %s", status)
	}
	if _, ok := values[":report"].(*types.AttributeValueMemberM); !ok {
		t.Fatalf("expected marshalled report attribute, got %T", values[":report"])
	}
}

func TestRunStore_MarkFailed_KeepsPartialReport(t *testing.T) {
	mock := &mockDynamo{}
	store := NewRunStore(mock, "admin_bulk_runs", logging.Default())

	partial := &lifecycle.BatchReport{TotalProcessed: 3, Succeeded: 2, Failed: 1}
	if err := store.MarkFailed(context.Background(), "run-123", "boom", partial); err != nil {
		t.Fatalf("MarkFailed returned error: %v", err)
	}

	update := mock.updateInputs[0]
	if _, ok := update.ExpressionAttributeValues[":report"].(*types.AttributeValueMemberM); !ok {
		t.Fatalf("expected partial report to be preserved, got %T", update.ExpressionAttributeValues[":report"])
	}
}

func TestRunStore_MarkFailed_NullReportWhenAbsent(t *testing.T) {
	mock := &mockDynamo{}
	store := NewRunStore(mock, "admin_bulk_runs", logging.Default())

	if err := store.MarkFailed(context.Background(), "run-123", "boom", nil); err != nil {
		t.Fatalf("MarkFailed returned error: %v", err)
	}

	update := mock.updateInputs[0]
	if _, ok := update.ExpressionAttributeValues[":report"].(*types.AttributeValueMemberNULL); !ok {
		t.Fatalf("expected report to be set to NULL, got %T", update.ExpressionAttributeValues[":report"])
	}
}

func TestRunStore_MarkCompleted_PropagatesError(t *testing.T) {
	mock := &mockDynamo{updateErr: errors.New("dynamo failed")}
	store := NewRunStore(mock, "admin_bulk_runs", logging.Default())

	err := store.MarkCompleted(context.Background(), "run-1", &lifecycle.BatchReport{})
	if err == nil || !strings.Contains(err.Error(), "dynamo failed") {
		t.Fatalf("expected dynamo error, got %v", err)
	}
}

func TestRunStore_GetRun_Success(t *testing.T) {
	mock := &mockDynamo{
		getOutput: &dynamodb.GetItemOutput{
			Item: map[string]types.AttributeValue{
				"runId":  &types.AttributeValueMemberS{Value: "run-42"},
				"status": &types.AttributeValueMemberS{Value: string(RunStatusPending)},
			},
		},
	}
	store := NewRunStore(mock, "admin_bulk_runs", logging.Default())

	run, err := store.GetRun(context.Background(), "run-42")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if run.RunID != "run-42" || run.Status != RunStatusPending {
		t.Fatalf("unexpected run result: %#v", run)
	}
}

func TestRunStore_GetRun_NotFound(t *testing.T) {
	mock := &mockDynamo{getOutput: &dynamodb.GetItemOutput{}}
	store := NewRunStore(mock, "admin_bulk_runs", logging.Default())

	_, err := store.GetRun(context.Background(), "run-42")
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestRunStore_GetRun_EmptyID(t *testing.T) {
	store := NewRunStore(&mockDynamo{}, "admin_bulk_runs", logging.Default())
	if _, err := store.GetRun(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty runID")
	}
}

type mockDynamo struct {
	putInput     *dynamodb.PutItemInput
	putErr       error
	updateInputs []*dynamodb.UpdateItemInput
	updateErr    error
	getOutput    *dynamodb.GetItemOutput
	getErr       error
}

func (m *mockDynamo) PutItem(_ context.Context, input *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.putInput = input
	return &dynamodb.PutItemOutput{}, m.putErr
}

func (m *mockDynamo) UpdateItem(_ context.Context, input *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	m.updateInputs = append(m.updateInputs, input)
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (m *mockDynamo) GetItem(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.getOutput == nil {
		return &dynamodb.GetItemOutput{}, nil
	}
	return m.getOutput, nil
}
