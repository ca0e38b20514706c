package tracing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/moolen/jiotty/internal/integration"
)

func TestNewTracingProviderValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"missing endpoint", Config{}, "endpoint not configured"},
		{"insecure with CA", Config{Endpoint: "localhost:4317", Insecure: true, TLSCAPath: "/ca.crt"}, "cannot be combined"},
		{"insecure with skip verify", Config{Endpoint: "localhost:4317", Insecure: true, TLSSkipVerify: true}, "cannot be combined"},
		{"bad ratio", Config{Endpoint: "localhost:4317", SampleRatio: 2}, "sample_ratio"},
		{"insecure", Config{Endpoint: "localhost:4317", Insecure: true}, ""},
		{"skip verify", Config{Endpoint: "localhost:4317", TLSSkipVerify: true}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tp, err := NewTracingProvider("tracing", tt.cfg)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "jiotty", tp.cfg.ServiceName)
		})
	}
}

func TestStartFailsWithMissingCA(t *testing.T) {
	tp, err := NewTracingProvider("tracing", Config{
		Endpoint:  "localhost:4317",
		TLSCAPath: filepath.Join(t.TempDir(), "missing.crt"),
	})
	require.NoError(t, err)

	err = tp.Start(context.Background())
	assert.ErrorContains(t, err, "failed to read CA certificate")
	assert.False(t, tp.Running())
}

func TestStartFailsWithInvalidCA(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.crt")
	require.NoError(t, os.WriteFile(path, []byte("not a certificate"), 0o600))

	tp, err := NewTracingProvider("tracing", Config{Endpoint: "localhost:4317", TLSCAPath: path})
	require.NoError(t, err)

	assert.ErrorContains(t, tp.Start(context.Background()), "failed to append CA certificate")
}

func TestStartStopInstallsAndRestoresGlobalProvider(t *testing.T) {
	before := otel.GetTracerProvider()

	tp, err := NewTracingProvider("tracing", Config{Endpoint: "127.0.0.1:1", Insecure: true})
	require.NoError(t, err)

	require.NoError(t, tp.Start(context.Background()))
	assert.True(t, tp.Running())
	assert.NotSame(t, before, otel.GetTracerProvider())
	assert.ErrorContains(t, tp.Start(context.Background()), "already started")

	_, span := tp.Tracer("test").Start(context.Background(), "noop")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	// The endpoint is unreachable, so flushing may time out.
	_ = tp.Stop(ctx)

	assert.False(t, tp.Running())
	assert.Equal(t, before, otel.GetTracerProvider())
	assert.NoError(t, tp.Stop(context.Background()))
}

func TestStopWithoutStart(t *testing.T) {
	tp, err := NewTracingProvider("tracing", Config{Endpoint: "localhost:4317"})
	require.NoError(t, err)
	assert.NoError(t, tp.Stop(context.Background()))
}

func TestFactory(t *testing.T) {
	f, ok := integration.DefaultRegistry().Get(ComponentType)
	require.True(t, ok)

	c, err := f.New("otel", map[string]interface{}{
		"endpoint":     "localhost:4317",
		"insecure":     true,
		"service_name": "home",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "otel", c.Name())
	assert.Equal(t, "home", c.(*TracingProvider).cfg.ServiceName)

	_, err = f.New("otel", map[string]interface{}{}, nil)
	assert.ErrorContains(t, err, "endpoint not configured")
}
