// Package queue provides the SQS-based producer for the asynchronous
// notification dispatch path.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"telloo/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// DispatchPublisher serializes a DispatchMessage envelope and sends it to
// the dispatch queue, where cmd/email-worker consumes it. It implements
// types.DispatchPublisher.
type DispatchPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewDispatchPublisher creates a publisher targeting the given queue URL.
func NewDispatchPublisher(client SQSSender, queueURL string, logger *slog.Logger) *DispatchPublisher {
	return &DispatchPublisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

var _ types.DispatchPublisher = (*DispatchPublisher)(nil)

// Publish enqueues the event for asynchronous dispatch. The envelope's trace
// ID is taken from the request ID in the context when present so worker logs
// correlate with the publishing caller.
func (p *DispatchPublisher) Publish(ctx context.Context, event types.DispatchEvent) error {
	traceID := types.GetRequestID(ctx)
	if traceID == "" {
		traceID = uuid.New().String()
	}

	msg := types.DispatchMessage{
		TraceID: traceID,
		Event:   event,
		SentAt:  time.Now().UTC(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal DispatchMessage: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(event.Type)),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send DispatchMessage to %s: %w", p.queueURL, err)
	}

	p.logger.InfoContext(ctx, "dispatch message sent",
		"queue_url", p.queueURL,
		"trace_id", msg.TraceID,
		"event_type", string(event.Type),
		"post_id", event.PostID,
	)

	return nil
}
