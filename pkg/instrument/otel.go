package instrument

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/reago-dev/reago/pkg/reago"
)

// Default tracer name for reago models.
const defaultTracerName = "reago"

// OTelConfig configures the OpenTelemetry observer.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "reago").
	TracerName string

	// IncludeKeys includes the inferred dependency keys as a span
	// attribute. Enabled by default; disable if key names are sensitive.
	IncludeKeys bool

	// IncludeWrites records a span per cell write fan-out. Disabled by
	// default: on write-heavy models the span volume drowns the traces
	// that matter.
	IncludeWrites bool

	// tracer is the resolved tracer instance.
	tracer trace.Tracer
}

// OTelOption configures the OpenTelemetry observer.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithIncludeKeys controls recording dependency keys on spans.
func WithIncludeKeys(include bool) OTelOption {
	return func(c *OTelConfig) {
		c.IncludeKeys = include
	}
}

// WithIncludeWrites enables a span per write fan-out.
func WithIncludeWrites(include bool) OTelOption {
	return func(c *OTelConfig) {
		c.IncludeWrites = include
	}
}

func defaultOTelConfig() OTelConfig {
	return OTelConfig{
		TracerName:  defaultTracerName,
		IncludeKeys: true,
	}
}

// otelObserver implements reago.Observer with OpenTelemetry spans.
type otelObserver struct {
	config OTelConfig
}

// OTel creates an observer that records a span for every selector trial
// execution, and optionally for write fan-outs.
//
// The tracer uses the global OpenTelemetry tracer provider; configure it in
// main() before constructing models:
//
//	otel.SetTracerProvider(tp)
//	m, err := reago.New(record, reago.WithObserver(instrument.OTel()))
func OTel(opts ...OTelOption) reago.Observer {
	config := defaultOTelConfig()
	for _, opt := range opts {
		opt(&config)
	}
	config.tracer = otel.Tracer(config.TracerName)

	return &otelObserver{config: config}
}

func (o *otelObserver) CellWritten(string) {}

func (o *otelObserver) ListenersNotified(key string, count int) {
	if !o.config.IncludeWrites {
		return
	}

	_, span := o.config.tracer.Start(context.Background(), "reago.write",
		trace.WithAttributes(
			attribute.String("reago.key", key),
			attribute.Int("reago.listeners", count),
		))
	span.End()
}

// SelectorTraced records the completed trial execution as a span with
// explicit timestamps, since the observer is called after the fact.
func (o *otelObserver) SelectorTraced(selector string, keys []string, d time.Duration) {
	end := time.Now()
	start := end.Add(-d)

	attrs := []attribute.KeyValue{
		attribute.String("reago.selector", selector),
		attribute.Int("reago.dependency_count", len(keys)),
	}
	if o.config.IncludeKeys {
		attrs = append(attrs, attribute.String("reago.keys", strings.Join(keys, ",")))
	}

	_, span := o.config.tracer.Start(context.Background(), "reago.trace",
		trace.WithTimestamp(start),
		trace.WithAttributes(attrs...))
	span.End(trace.WithTimestamp(end))
}

func (o *otelObserver) MemoHit(selector string) {
	_, span := o.config.tracer.Start(context.Background(), "reago.memo_hit",
		trace.WithAttributes(attribute.String("reago.selector", selector)))
	span.End()
}
