package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/trace/noop"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func newTestObserver(t *testing.T) (*Observer, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	obs, err := NewObserver(provider.Meter("test"), noop.NewTracerProvider().Tracer("test"))
	require.NoError(t, err)
	return obs, reader
}

func sumValue(t *testing.T, m metricdata.Metrics, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is %T", m.Name, m.Data)
	var total int64
	for _, dp := range sum.DataPoints {
		match := true
		for _, kv := range attrs {
			if v, ok := dp.Attributes.Value(kv.Key); !ok || v != kv.Value {
				match = false
				break
			}
		}
		if match {
			total += dp.Value
		}
	}
	return total
}

func TestObserverRecordsPeerSignals(t *testing.T) {
	obs, reader := newTestObserver(t)
	obs.ObserveConnect("a", TransportSSE, 10*time.Millisecond, nil)
	obs.ObserveConnect("b", TransportStdio, time.Millisecond, &ConnectError{Peer: "b", Err: errors.New("refused")})
	obs.ObserveDiscovery("a", 3, time.Millisecond, nil)

	metrics := collect(t, reader)
	connects := metrics["toolhub.peer.connects"]
	assert.EqualValues(t, 1, sumValue(t, connects, attribute.String("peer", "a"), attribute.Bool("success", true)))
	assert.EqualValues(t, 1, sumValue(t, connects,
		attribute.String("peer", "b"),
		attribute.Bool("success", false),
		attribute.String("error_code", "connect_failed"),
	))
	assert.EqualValues(t, 1, sumValue(t, metrics["toolhub.peer.discoveries"], attribute.Int("tools", 3)))
	_, ok := metrics["toolhub.latency"].Data.(metricdata.Histogram[float64])
	assert.True(t, ok)
}

func TestObserverRecordsCalls(t *testing.T) {
	obs, reader := newTestObserver(t)
	session := newFakeSession("echo")
	tool := NewRemoteTool("a", toolDefs("echo")[0], session)
	tool.observer = obs

	_, err := tool.Call(context.Background(), "{}")
	require.NoError(t, err)
	_, err = tool.Call(context.Background(), "[")
	require.Error(t, err)

	calls := collect(t, reader)["toolhub.tool.calls"]
	assert.EqualValues(t, 1, sumValue(t, calls, attribute.String("tool_name", "echo"), attribute.Bool("success", true)))
	assert.EqualValues(t, 1, sumValue(t, calls, attribute.String("error_code", "invalid_arguments")))
}

func TestNilObserverIsNoop(t *testing.T) {
	var obs *Observer
	obs.ObserveConnect("a", TransportSSE, time.Second, nil)
	obs.ObserveDiscovery("a", 1, time.Second, nil)
	ctx, done := obs.StartCall(context.Background(), "a", "echo")
	assert.NotNil(t, ctx)
	done(nil)
}
