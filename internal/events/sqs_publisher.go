package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher delivers outbox entries to the notifier queue.
type SQSPublisher struct {
	client   sqsAPI
	queueURL string
}

// NewSQSPublisher creates a publisher backed by AWS/LocalStack SQS.
func NewSQSPublisher(client *sqs.Client, queueURL string) *SQSPublisher {
	if client == nil {
		panic("events: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("events: SQS queueURL cannot be empty")
	}
	return &SQSPublisher{client: client, queueURL: queueURL}
}

func newSQSPublisherWithAPI(client sqsAPI, queueURL string) *SQSPublisher {
	return &SQSPublisher{client: client, queueURL: queueURL}
}

// envelope is the wire shape consumed by the external notifier.
type envelope struct {
	EventID    string          `json:"event_id"`
	BusinessID string          `json:"business_id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
}

// Handle implements DeliveryHandler.
func (p *SQSPublisher) Handle(ctx context.Context, entry OutboxEntry) error {
	body, err := json.Marshal(envelope{
		EventID:    entry.ID.String(),
		BusinessID: entry.BusinessID,
		Type:       entry.Type,
		Payload:    entry.Payload,
	})
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("events: send SQS message: %w", err)
	}
	return nil
}
