// Package telemetry publishes report run metrics.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"safetyreports/internal/types"
)

// Metric names and dimensions.
const (
	MetricReportRun         = "ReportRun"
	MetricReportRunDuration = "ReportRunDuration"
	MetricReportSubmissions = "ReportSubmissions"

	DimFrequency = "Frequency"
	DimResult    = "Result"
	DimTrigger   = "Trigger"
)

// Run describes one finished schedule execution.
type Run struct {
	Frequency   types.Frequency
	Trigger     types.RunTrigger
	Status      types.RunStatus
	Duration    time.Duration
	Submissions int
}

// RunMetrics records the outcome of schedule executions. Implementations
// never fail the run: publishing errors are logged and dropped.
type RunMetrics interface {
	RecordRun(ctx context.Context, run Run)
}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchRunMetrics emits per-run metrics to CloudWatch:
//
//   - ReportRun: Dims {Frequency, Result, Trigger}, Count
//   - ReportRunDuration: Dims {Frequency}, Milliseconds
//   - ReportSubmissions: Dims {Frequency}, Count, successful runs only
type CloudWatchRunMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchRunMetrics creates a CloudWatchRunMetrics publishing to namespace.
func NewCloudWatchRunMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchRunMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchRunMetrics{client: client, namespace: namespace, logger: logger}
}

func (m *CloudWatchRunMetrics) RecordRun(ctx context.Context, run Run) {
	frequency := cwtypes.Dimension{Name: aws.String(DimFrequency), Value: aws.String(string(run.Frequency))}

	data := []cwtypes.MetricDatum{
		{
			MetricName: aws.String(MetricReportRun),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				frequency,
				{Name: aws.String(DimResult), Value: aws.String(string(run.Status))},
				{Name: aws.String(DimTrigger), Value: aws.String(string(run.Trigger))},
			},
		},
		{
			MetricName: aws.String(MetricReportRunDuration),
			Value:      aws.Float64(float64(run.Duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: []cwtypes.Dimension{frequency},
		},
	}
	if run.Status == types.RunStatusSuccess {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(MetricReportSubmissions),
			Value:      aws.Float64(float64(run.Submissions)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{frequency},
		})
	}

	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to record report run metric",
			"error", err.Error(),
			"frequency", string(run.Frequency),
			"result", string(run.Status),
		)
	}
}

// NopRunMetrics discards all metrics. Used when ENABLE_METRICS is false.
type NopRunMetrics struct{}

func (NopRunMetrics) RecordRun(context.Context, Run) {}

var (
	_ RunMetrics = (*CloudWatchRunMetrics)(nil)
	_ RunMetrics = NopRunMetrics{}
)
