package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	exporterNone = "none"
	exporterFile = "file"
)

type tracingConfig struct {
	// Exporter is "none" or "file". File spans go to traces.jsonl in the
	// log directory, rotated with the logs.
	Exporter    string  `yaml:"exporter" toml:"exporter"`
	SampleRatio float64 `yaml:"sampleRatio" toml:"sample_ratio"`
}

func (c tracingConfig) normalize() (tracingConfig, error) {
	if c.Exporter == "" {
		c.Exporter = exporterNone
	}
	if c.Exporter != exporterNone && c.Exporter != exporterFile {
		return c, fmt.Errorf("tracing exporter %q: want none or file", c.Exporter)
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return c, fmt.Errorf("tracing sampleRatio %v outside [0, 1]", c.SampleRatio)
	}
	if c.SampleRatio == 0 {
		c.SampleRatio = 1
	}
	return c, nil
}

// tracing owns the process tracer provider. shutdown flushes pending spans.
type tracing struct {
	provider trace.TracerProvider
	shutdown func(context.Context) error
}

// newTracing builds the provider described by cfg and installs it as the
// global otel provider. With the none exporter spans are dropped.
func newTracing(cfg config) (tracing, error) {
	if cfg.Tracing.Exporter != exporterFile {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return tracing{provider: tp, shutdown: func(context.Context) error { return nil }}, nil
	}
	out := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Logs.Directory, "traces.jsonl"),
		MaxSize:    cfg.Logs.MaxSizeMB,
		MaxAge:     cfg.Logs.MaxAgeDays,
		MaxBackups: cfg.Logs.MaxBackups,
		Compress:   cfg.Logs.Compress,
	}
	tp, err := newFileTracerProvider(out, cfg.Tracing.SampleRatio)
	if err != nil {
		out.Close()
		return tracing{}, err
	}
	otel.SetTracerProvider(tp)
	return tracing{
		provider: tp,
		shutdown: func(ctx context.Context) error {
			err := tp.Shutdown(ctx)
			if cerr := out.Close(); err == nil {
				err = cerr
			}
			return err
		},
	}, nil
}

func newFileTracerProvider(w io.Writer, ratio float64) (*sdktrace.TracerProvider, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	res := resource.NewSchemaless(attribute.String("service.name", "gfd"))
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	), nil
}
