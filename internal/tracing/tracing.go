// Package tracing provides a component that exports OpenTelemetry spans over
// OTLP gRPC for as long as it runs.
package tracing

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/moolen/jiotty/internal/integration"
	"github.com/moolen/jiotty/internal/lifecycle"
	"github.com/moolen/jiotty/internal/logging"
)

// ComponentType is the config type of the tracing exporter.
const ComponentType = "tracing"

// Version is reported as the service version.
var Version = "dev"

// Config holds tracing configuration
type Config struct {
	Endpoint      string  `mapstructure:"endpoint"`        // OTLP gRPC endpoint (e.g., "localhost:4317")
	Insecure      bool    `mapstructure:"insecure"`        // Plaintext connection, no TLS
	TLSCAPath     string  `mapstructure:"tls_ca_path"`     // CA certificate for TLS verification (optional)
	TLSSkipVerify bool    `mapstructure:"tls_skip_verify"` // Skip TLS certificate verification
	ServiceName   string  `mapstructure:"service_name"`
	SampleRatio   float64 `mapstructure:"sample_ratio"` // 0 means always sample
}

func init() {
	integration.MustRegisterFactory(ComponentType, integration.Factory{
		Version:     "1.0.0",
		Description: "OTLP gRPC span exporter",
		New:         newComponent,
	})
}

func newComponent(name string, settings map[string]interface{}, _ lifecycle.Control) (lifecycle.Component, error) {
	var cfg Config
	if err := integration.DecodeConfig(settings, &cfg); err != nil {
		return nil, fmt.Errorf("tracing %s: %w", name, err)
	}
	return NewTracingProvider(name, cfg)
}

// TracingProvider owns an OpenTelemetry TracerProvider and installs it as the
// global provider between Start and Stop.
type TracingProvider struct {
	name   string
	cfg    Config
	logger *logging.Logger

	mu             sync.Mutex
	tracerProvider *sdktrace.TracerProvider
	previous       trace.TracerProvider
}

// NewTracingProvider validates cfg. Nothing is dialled until Start.
func NewTracingProvider(name string, cfg Config) (*TracingProvider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("tracing %s: endpoint not configured", name)
	}
	if cfg.Insecure && (cfg.TLSCAPath != "" || cfg.TLSSkipVerify) {
		return nil, fmt.Errorf("tracing %s: insecure cannot be combined with TLS settings", name)
	}
	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		return nil, fmt.Errorf("tracing %s: sample_ratio must be between 0 and 1", name)
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "jiotty"
	}
	return &TracingProvider{
		name:   name,
		cfg:    cfg,
		logger: logging.GetLogger("tracing").WithField("component", name),
	}, nil
}

// Name implements lifecycle.Component.
func (tp *TracingProvider) Name() string { return tp.name }

func (tp *TracingProvider) dialOptions() ([]otlptracegrpc.Option, error) {
	var dialOptions []grpc.DialOption
	var otlpOptions []otlptracegrpc.Option

	switch {
	case tp.cfg.Insecure:
		dialOptions = append(dialOptions, grpc.WithTransportCredentials(insecure.NewCredentials()))
		otlpOptions = append(otlpOptions, otlptracegrpc.WithInsecure())
		tp.logger.Info("TLS disabled for tracing (insecure mode)")
	case tp.cfg.TLSSkipVerify:
		tlsConfig := &tls.Config{
			InsecureSkipVerify: true,
			MinVersion:         tls.VersionTLS12,
		}
		dialOptions = append(dialOptions, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
		tp.logger.Warn("TLS enabled for tracing with certificate verification disabled")
	case tp.cfg.TLSCAPath != "":
		caCert, err := os.ReadFile(tp.cfg.TLSCAPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to append CA certificate to pool")
		}
		tlsConfig := &tls.Config{
			RootCAs:    certPool,
			MinVersion: tls.VersionTLS12,
		}
		dialOptions = append(dialOptions, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
		tp.logger.Info("TLS enabled for tracing with CA from: %s", tp.cfg.TLSCAPath)
	default:
		dialOptions = append(dialOptions, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})))
	}

	otlpOptions = append(otlpOptions,
		otlptracegrpc.WithEndpoint(tp.cfg.Endpoint),
		otlptracegrpc.WithDialOption(dialOptions...),
	)
	return otlpOptions, nil
}

func (tp *TracingProvider) sampler() sdktrace.Sampler {
	if tp.cfg.SampleRatio == 0 || tp.cfg.SampleRatio == 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(tp.cfg.SampleRatio))
}

// Start creates the exporter and installs the tracer provider globally.
func (tp *TracingProvider) Start(ctx context.Context) error {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	if tp.tracerProvider != nil {
		return fmt.Errorf("tracing %s already started", tp.name)
	}

	opts, err := tp.dialOptions()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(
		ctx,
		resource.WithAttributes(
			semconv.ServiceName(tp.cfg.ServiceName),
			semconv.ServiceVersion(Version),
		),
	)
	if err != nil {
		_ = exporter.Shutdown(context.Background())
		return fmt.Errorf("failed to create resource: %w", err)
	}

	tp.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(tp.sampler()),
	)
	tp.previous = otel.GetTracerProvider()
	otel.SetTracerProvider(tp.tracerProvider)

	tp.logger.Info("Tracing initialized with endpoint: %s", tp.cfg.Endpoint)
	return nil
}

// Stop flushes pending spans and restores the previous global provider.
func (tp *TracingProvider) Stop(ctx context.Context) error {
	tp.mu.Lock()
	provider, previous := tp.tracerProvider, tp.previous
	tp.tracerProvider, tp.previous = nil, nil
	tp.mu.Unlock()

	if provider == nil {
		return nil
	}

	if otel.GetTracerProvider() == trace.TracerProvider(provider) && previous != nil {
		otel.SetTracerProvider(previous)
	}

	tp.logger.Info("Shutting down tracing provider...")
	if err := provider.Shutdown(ctx); err != nil {
		tp.logger.Error("Error shutting down tracer provider: %v", err)
		return err
	}
	tp.logger.Info("Tracing provider stopped")
	return nil
}

// Tracer returns a tracer from the active provider, or from the global one
// when stopped.
func (tp *TracingProvider) Tracer(name string) trace.Tracer {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	if tp.tracerProvider != nil {
		return tp.tracerProvider.Tracer(name)
	}
	return otel.GetTracerProvider().Tracer(name)
}

// Running reports whether the provider is installed.
func (tp *TracingProvider) Running() bool {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return tp.tracerProvider != nil
}
