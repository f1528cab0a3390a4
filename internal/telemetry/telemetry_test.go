package telemetry

import (
	"context"
	"net"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	collectormetricpb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	"google.golang.org/grpc"

	"archivist/internal/config"
)

func TestCountersCollectLocalSums(t *testing.T) {
	ctx := context.Background()
	p, err := New(ctx, "archivist-test", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(ctx) })
	assert.False(t, p.Exporting())

	counter, err := p.MeterProvider().Meter("test").Int64Counter("archivist.test.items")
	require.NoError(t, err)
	counter.Add(ctx, 2, metric.WithAttributes(attribute.String("status", "OK")))
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "FATAL")))
	counter.Add(ctx, 3, metric.WithAttributes(attribute.String("status", "OK")))

	counters, err := p.Counters(ctx)
	require.NoError(t, err)
	require.Len(t, counters, 2)
	assert.Equal(t, "status=FATAL", counters[0].Label())
	assert.Equal(t, int64(1), counters[0].Value)
	assert.Equal(t, "status=OK", counters[1].Label())
	assert.Equal(t, int64(5), counters[1].Value)
}

// metricsCollector is an in-process OTLP metrics endpoint that records the
// names of exported metrics.
type metricsCollector struct {
	collectormetricpb.UnimplementedMetricsServiceServer

	mu    sync.Mutex
	names []string
}

func (c *metricsCollector) Export(_ context.Context, req *collectormetricpb.ExportMetricsServiceRequest) (*collectormetricpb.ExportMetricsServiceResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rm := range req.GetResourceMetrics() {
		for _, sm := range rm.GetScopeMetrics() {
			for _, m := range sm.GetMetrics() {
				c.names = append(c.names, m.GetName())
			}
		}
	}
	return &collectormetricpb.ExportMetricsServiceResponse{}, nil
}

func (c *metricsCollector) exported() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.names)
}

func startCollector(t *testing.T) (string, *metricsCollector) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	collector := &metricsCollector{}
	srv := grpc.NewServer()
	collectormetricpb.RegisterMetricsServiceServer(srv, collector)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis.Addr().String(), collector
}

func TestNewWithEndpointExportsOnShutdown(t *testing.T) {
	endpoint, collector := startCollector(t)
	cfg := config.Default()
	cfg.Telemetry.OTLPEndpoint = endpoint
	cfg.Telemetry.Insecure = true

	ctx := context.Background()
	p, err := New(ctx, "archivist-test", &cfg)
	require.NoError(t, err)
	assert.True(t, p.Exporting())

	counter, err := p.MeterProvider().Meter("test").Int64Counter("archivist.test.exported")
	require.NoError(t, err)
	counter.Add(ctx, 1)

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(shutdownCtx))
	assert.Contains(t, collector.exported(), "archivist.test.exported")
}

func TestShutdownNilProvider(t *testing.T) {
	var p *Provider
	assert.NoError(t, p.Shutdown(context.Background()))
}
