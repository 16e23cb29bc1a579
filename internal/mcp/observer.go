package mcp

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Observer records peer and tool call signals into OpenTelemetry.
// A nil *Observer records nothing.
type Observer struct {
	tracer trace.Tracer

	connects    metric.Int64Counter
	discoveries metric.Int64Counter
	calls       metric.Int64Counter
	latency     metric.Float64Histogram
}

// NewObserver creates an observer bound to the provided meter and tracer.
// tracer may be nil.
func NewObserver(meter metric.Meter, tracer trace.Tracer) (*Observer, error) {
	connects, err := meter.Int64Counter(
		"toolhub.peer.connects",
		metric.WithDescription("Number of peer connection attempts"),
	)
	if err != nil {
		return nil, err
	}
	discoveries, err := meter.Int64Counter(
		"toolhub.peer.discoveries",
		metric.WithDescription("Number of tool catalog listings"),
	)
	if err != nil {
		return nil, err
	}
	calls, err := meter.Int64Counter(
		"toolhub.tool.calls",
		metric.WithDescription("Number of remote tool calls"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		"toolhub.latency",
		metric.WithDescription("Peer operation latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	return &Observer{
		tracer:      tracer,
		connects:    connects,
		discoveries: discoveries,
		calls:       calls,
		latency:     latency,
	}, nil
}

// ObserveConnect records one connection attempt.
func (o *Observer) ObserveConnect(peer string, transport TransportType, elapsed time.Duration, err error) {
	if o == nil {
		return
	}
	attrs := o.outcome([]attribute.KeyValue{
		attribute.String("peer", peer),
		attribute.String("transport", string(transport)),
		attribute.String("op", "connect"),
	}, err)
	ctx := context.Background()
	options := metric.WithAttributes(attrs...)
	o.connects.Add(ctx, 1, options)
	o.latency.Record(ctx, elapsed.Seconds(), options)
}

// ObserveDiscovery records one catalog listing.
func (o *Observer) ObserveDiscovery(peer string, tools int, elapsed time.Duration, err error) {
	if o == nil {
		return
	}
	attrs := o.outcome([]attribute.KeyValue{
		attribute.String("peer", peer),
		attribute.String("op", "discover"),
	}, err)
	ctx := context.Background()
	o.discoveries.Add(ctx, 1, metric.WithAttributes(append(attrs, attribute.Int("tools", tools))...))
	o.latency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
}

// StartCall opens a span for one tool call. The returned func must be
// called exactly once with the call outcome.
func (o *Observer) StartCall(ctx context.Context, peer, tool string) (context.Context, func(error)) {
	if o == nil {
		return ctx, func(error) {}
	}
	started := time.Now()
	base := []attribute.KeyValue{
		attribute.String("peer", peer),
		attribute.String("tool_name", tool),
	}
	var span trace.Span
	if o.tracer != nil {
		ctx, span = o.tracer.Start(ctx, "tool.call", trace.WithAttributes(base...))
	}
	return ctx, func(err error) {
		attrs := o.outcome(append(base, attribute.String("op", "call")), err)
		options := metric.WithAttributes(attrs...)
		o.calls.Add(context.Background(), 1, options)
		o.latency.Record(context.Background(), time.Since(started).Seconds(), options)
		if span == nil {
			return
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, Classify(err).Code)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

func (o *Observer) outcome(attrs []attribute.KeyValue, err error) []attribute.KeyValue {
	attrs = append(attrs, attribute.Bool("success", err == nil))
	if err != nil {
		attrs = append(attrs, attribute.String("error_code", Classify(err).Code))
	}
	return attrs
}
