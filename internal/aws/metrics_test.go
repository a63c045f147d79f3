package aws

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
}

func (m *mockCloudWatch) PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.inputs = append(m.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestMetricsClient_RecordCount(t *testing.T) {
	cw := &mockCloudWatch{}
	m := NewMetricsClient(cw, "Test", true)

	require.NoError(t, m.RecordCount(context.Background(), MetricOrdersCreated, map[string]string{"Method": "pix", "Env": "test"}))
	require.NoError(t, m.RecordLatency(context.Background(), MetricHTTPLatency, 150*time.Millisecond, nil))

	require.Len(t, cw.inputs, 2)
	datum := cw.inputs[0].MetricData[0]
	assert.Equal(t, "Test", *cw.inputs[0].Namespace)
	assert.Equal(t, MetricOrdersCreated, *datum.MetricName)
	assert.Equal(t, types.StandardUnitCount, datum.Unit)
	require.Len(t, datum.Dimensions, 2)
	assert.Equal(t, "Env", *datum.Dimensions[0].Name)
	assert.Equal(t, 150.0, *cw.inputs[1].MetricData[0].Value)
}

func TestMetricsClient_DisabledIsNoop(t *testing.T) {
	cw := &mockCloudWatch{}
	m := NewMetricsClient(cw, "", false)
	require.NoError(t, m.RecordCount(context.Background(), MetricOrdersCreated, nil))
	assert.Empty(t, cw.inputs)

	var nilClient *MetricsClient
	assert.False(t, nilClient.IsEnabled())
	assert.NoError(t, nilClient.RecordCount(context.Background(), MetricOrdersCreated, nil))
}
