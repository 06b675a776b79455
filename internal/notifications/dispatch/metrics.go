package dispatch

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"telloo/internal/types"
)

// Metric and dimension names emitted to CloudWatch.
const (
	metricDispatchSent    = "NotificationsSent"
	metricDispatchFailed  = "NotificationsFailed"
	metricDispatchLatency = "DispatchLatency"
	dimEventType          = "EventType"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics implements types.DispatchMetrics by emitting dispatch
// outcome metrics to AWS CloudWatch. Emission failures are logged, never
// propagated; telemetry must not affect delivery.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

var _ types.DispatchMetrics = (*CloudWatchMetrics)(nil)

// NewCloudWatchMetrics creates a CloudWatchMetrics publishing to the given
// namespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchMetrics {
	return &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordDispatch emits sent and failed counts with the EventType dimension.
func (m *CloudWatchMetrics) RecordDispatch(ctx context.Context, event types.EventType, sent, failed int) {
	dims := []cwtypes.Dimension{
		{
			Name:  aws.String(dimEventType),
			Value: aws.String(string(event)),
		},
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricDispatchSent),
				Value:      aws.Float64(float64(sent)),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: dims,
			},
			{
				MetricName: aws.String(metricDispatchFailed),
				Value:      aws.Float64(float64(failed)),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: dims,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record dispatch metrics",
			"error", err.Error(),
			"event_type", string(event),
		)
	}
}

// RecordLatency emits the dispatch duration in milliseconds with the
// EventType dimension.
func (m *CloudWatchMetrics) RecordLatency(ctx context.Context, event types.EventType, duration time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricDispatchLatency),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String(dimEventType),
						Value: aws.String(string(event)),
					},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record latency metric",
			"error", err.Error(),
			"event_type", string(event),
		)
	}
}

// NoopMetrics discards all telemetry. Used when metrics are disabled.
type NoopMetrics struct{}

var _ types.DispatchMetrics = NoopMetrics{}

func (NoopMetrics) RecordDispatch(context.Context, types.EventType, int, int) {}

func (NoopMetrics) RecordLatency(context.Context, types.EventType, time.Duration) {}
