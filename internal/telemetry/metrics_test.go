package telemetry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"safetyreports/internal/types"
)

// mockCloudWatchClient records PutMetricData calls for verification.
type mockCloudWatchClient struct {
	calls     []*cloudwatch.PutMetricDataInput
	returnErr error
}

func (m *mockCloudWatchClient) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.calls = append(m.calls, params)
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func assertDimension(t *testing.T, dims []cwtypes.Dimension, name, value string) {
	t.Helper()
	for _, d := range dims {
		if *d.Name == name {
			if *d.Value != value {
				t.Errorf("dimension %s = %q, want %q", name, *d.Value, value)
			}
			return
		}
	}
	t.Errorf("dimension %s not found", name)
}

func TestCloudWatchRunMetrics_SuccessfulRun(t *testing.T) {
	cw := &mockCloudWatchClient{}
	m := NewCloudWatchRunMetrics(cw, "SafetyReports", nil)

	m.RecordRun(context.Background(), Run{
		Frequency:   types.FrequencyWeekly,
		Trigger:     types.TriggerScheduled,
		Status:      types.RunStatusSuccess,
		Duration:    1500 * time.Millisecond,
		Submissions: 42,
	})

	if len(cw.calls) != 1 {
		t.Fatalf("expected 1 PutMetricData call, got %d", len(cw.calls))
	}
	input := cw.calls[0]
	if *input.Namespace != "SafetyReports" {
		t.Errorf("namespace = %q", *input.Namespace)
	}
	if len(input.MetricData) != 3 {
		t.Fatalf("expected 3 metric data, got %d", len(input.MetricData))
	}

	run := input.MetricData[0]
	if *run.MetricName != MetricReportRun || *run.Value != 1 || run.Unit != cwtypes.StandardUnitCount {
		t.Errorf("unexpected run datum: %s=%f %s", *run.MetricName, *run.Value, run.Unit)
	}
	assertDimension(t, run.Dimensions, DimFrequency, "weekly")
	assertDimension(t, run.Dimensions, DimResult, "success")
	assertDimension(t, run.Dimensions, DimTrigger, "scheduled")

	duration := input.MetricData[1]
	if *duration.Value != 1500 || duration.Unit != cwtypes.StandardUnitMilliseconds {
		t.Errorf("duration datum = %f %s", *duration.Value, duration.Unit)
	}

	subs := input.MetricData[2]
	if *subs.MetricName != MetricReportSubmissions || *subs.Value != 42 {
		t.Errorf("submissions datum = %s=%f", *subs.MetricName, *subs.Value)
	}
}

func TestCloudWatchRunMetrics_FailedRunOmitsSubmissions(t *testing.T) {
	cw := &mockCloudWatchClient{}
	m := NewCloudWatchRunMetrics(cw, "SafetyReports", nil)

	m.RecordRun(context.Background(), Run{
		Frequency: types.FrequencyDaily,
		Trigger:   types.TriggerManual,
		Status:    types.RunStatusFailed,
		Duration:  time.Second,
	})

	data := cw.calls[0].MetricData
	if len(data) != 2 {
		t.Fatalf("expected 2 metric data for a failed run, got %d", len(data))
	}
	assertDimension(t, data[0].Dimensions, DimResult, "failed")
}

func TestCloudWatchRunMetrics_ErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	cw := &mockCloudWatchClient{returnErr: errors.New("throttled")}
	m := NewCloudWatchRunMetrics(cw, "SafetyReports", slog.New(slog.NewTextHandler(&buf, nil)))

	m.RecordRun(context.Background(), Run{Frequency: types.FrequencyMonthly, Status: types.RunStatusSuccess})

	if !strings.Contains(buf.String(), "failed to record report run metric") {
		t.Errorf("expected error log, got %q", buf.String())
	}
}
