// Package otel turns docdb events into OpenTelemetry spans.
package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	eventbus "github.com/hanpama/docdb/internal/eventbus"
	events "github.com/hanpama/docdb/internal/events"
	reqid "github.com/hanpama/docdb/internal/reqid"
)

const dbSystem = "arangodb"

// Setup configures an OTLP exporter and attaches span subscribers to bus.
// If endpoint is empty, no telemetry is configured.
func Setup(ctx context.Context, bus *eventbus.Bus, endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	unsubscribe := Register(bus, tp.Tracer("docdb"))
	return func(ctx context.Context) error {
		unsubscribe()
		return tp.Shutdown(ctx)
	}, nil
}

type subscriber struct {
	tracer    trace.Tracer
	httpSpans sync.Map // rid -> trace.Span
	dbSpans   sync.Map // rid -> trace.Span
	grpcSpans sync.Map // rid -> trace.Span
}

// Register subscribes span producers to bus and returns a function that
// removes them.
func Register(bus *eventbus.Bus, tracer trace.Tracer) (unsubscribe func()) {
	s := &subscriber{tracer: tracer}
	return s.register(bus)
}

func (s *subscriber) parent(ctx context.Context, rid string, spans ...*sync.Map) context.Context {
	for _, m := range spans {
		if v, ok := m.Load(rid); ok {
			return trace.ContextWithSpan(ctx, v.(trace.Span))
		}
	}
	return ctx
}

func (s *subscriber) register(bus *eventbus.Bus) func() {
	unsubs := []func(){
		eventbus.Subscribe(bus, func(ctx context.Context, e events.HTTPStart) {
			rid, _ := reqid.FromContext(ctx)
			_, span := s.tracer.Start(ctx, "http.request", trace.WithSpanKind(trace.SpanKindServer))
			span.SetAttributes(
				semconv.HTTPMethodKey.String(e.Method),
				attribute.String("http.target", e.Path),
			)
			s.httpSpans.Store(rid, span)
		}),

		eventbus.Subscribe(bus, func(ctx context.Context, e events.HTTPFinish) {
			rid, _ := reqid.FromContext(ctx)
			v, ok := s.httpSpans.LoadAndDelete(rid)
			if !ok {
				return
			}
			span := v.(trace.Span)
			span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
			span.End()
		}),

		eventbus.Subscribe(bus, func(ctx context.Context, e events.RequestStart) {
			rid, _ := reqid.FromContext(ctx)
			_, span := s.tracer.Start(ctx, "db.request", trace.WithSpanKind(trace.SpanKindClient))
			span.SetAttributes(
				semconv.DBSystemKey.String(dbSystem),
				semconv.DBNameKey.String(e.Database),
				semconv.DBOperationKey.String(e.Method+" "+e.Path),
			)
			s.dbSpans.Store(rid, span)
		}),

		eventbus.Subscribe(bus, func(ctx context.Context, e events.RequestFinish) {
			rid, _ := reqid.FromContext(ctx)
			v, ok := s.dbSpans.LoadAndDelete(rid)
			if !ok {
				return
			}
			span := v.(trace.Span)
			if e.Status != 0 {
				span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
			}
			if e.Err != nil {
				span.RecordError(e.Err)
				span.SetStatus(codes.Error, e.Err.Error())
			}
			span.End()
		}),

		eventbus.Subscribe(bus, func(ctx context.Context, e events.GRPCClientStart) {
			rid, _ := reqid.FromContext(ctx)
			_, span := s.tracer.Start(s.parent(ctx, rid, &s.dbSpans), "grpc.client", trace.WithSpanKind(trace.SpanKindClient))
			span.SetAttributes(
				semconv.RPCSystemGRPC,
				semconv.RPCMethodKey.String(e.Method),
				attribute.String("net.peer.name", e.Target),
			)
			s.grpcSpans.Store(rid, span)
		}),

		eventbus.Subscribe(bus, func(ctx context.Context, e events.GRPCClientFinish) {
			rid, _ := reqid.FromContext(ctx)
			v, ok := s.grpcSpans.LoadAndDelete(rid)
			if !ok {
				return
			}
			span := v.(trace.Span)
			span.SetAttributes(attribute.String("grpc.code", e.Code.String()))
			if e.Err != nil {
				span.RecordError(e.Err)
			}
			span.End()
		}),

		// Cursor events carry the caller's context, so they annotate
		// whatever span the caller has open.
		eventbus.Subscribe(bus, func(ctx context.Context, e events.CursorBatch) {
			trace.SpanFromContext(ctx).AddEvent("db.cursor.batch", trace.WithAttributes(
				attribute.String("db.cursor.id", e.CursorID),
				attribute.Int("db.cursor.items", e.Items),
				attribute.Bool("db.cursor.has_more", e.HasMore),
				attribute.Bool("db.cursor.cached", e.Cached),
			))
		}),

		eventbus.Subscribe(bus, func(ctx context.Context, e events.CursorRelease) {
			attrs := []attribute.KeyValue{attribute.String("db.cursor.id", e.CursorID)}
			if e.Err != nil {
				attrs = append(attrs, attribute.String("error", e.Err.Error()))
			}
			trace.SpanFromContext(ctx).AddEvent("db.cursor.release", trace.WithAttributes(attrs...))
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
