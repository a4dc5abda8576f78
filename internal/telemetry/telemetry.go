// Package telemetry wires OpenTelemetry tracing for the tutor.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// InstrumentationName is the tracer name used by every tutor component.
const InstrumentationName = "github.com/abhisek/tutorbot"

// Config selects the exporter.
type Config struct {
	// Exporter is "stdout" or "" (disabled).
	Exporter    string
	ServiceName string
	Version     string

	// Writer receives stdout exports; nil means os.Stderr so traces do
	// not interleave with console output.
	Writer io.Writer
}

// ConfigFromEnv reads TUTOR_TRACE.
func ConfigFromEnv(version string) Config {
	return Config{
		Exporter:    strings.ToLower(strings.TrimSpace(os.Getenv("TUTOR_TRACE"))),
		ServiceName: "tutorbot",
		Version:     version,
	}
}

// Init installs a global TracerProvider and returns its shutdown func.
// With tracing disabled the global no-op provider stays in place and the
// returned func does nothing.
func Init(ctx context.Context, cfg Config, log *zap.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = zap.NewNop()
	}
	noop := func(context.Context) error { return nil }

	switch cfg.Exporter {
	case "", "off", "none":
		return noop, nil
	case "stdout":
	default:
		return noop, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}

	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return noop, fmt.Errorf("stdout trace exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.Version),
	))
	if err != nil {
		log.Warn("otel resource init failed (continuing)", zap.Error(err))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	log.Info("otel tracing initialized", zap.String("exporter", cfg.Exporter))
	return tp.Shutdown, nil
}

// Tracer returns the tutor tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}
