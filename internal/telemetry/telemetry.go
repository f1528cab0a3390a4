// Package telemetry owns the process meter provider. A manual reader always
// backs local snapshots (run summaries, shutdown logs); an OTLP gRPC exporter
// is added when a collector endpoint is configured.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"

	"archivist/internal/config"
)

// Provider wraps the SDK meter provider and its local reader.
type Provider struct {
	mp     *sdkmetric.MeterProvider
	reader *sdkmetric.ManualReader
	export bool
}

// Counter is one collected int64 sum data point.
type Counter struct {
	Name       string
	Attributes map[string]string
	Value      int64
}

// New builds a provider for serviceName. With a nil cfg or no endpoint the
// provider only records locally.
func New(ctx context.Context, serviceName string, cfg *config.Config) (*Provider, error) {
	reader := sdkmetric.NewManualReader()
	opts := []sdkmetric.Option{sdkmetric.WithReader(reader)}

	attrs := []attribute.KeyValue{attribute.String("service.name", serviceName)}
	if host, err := os.Hostname(); err == nil && host != "" {
		attrs = append(attrs, attribute.String("service.instance.id", host))
	}
	res, err := resource.New(ctx, resource.WithFromEnv(), resource.WithAttributes(attrs...))
	if err != nil && res == nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}
	opts = append(opts, sdkmetric.WithResource(res))

	export := false
	if cfg != nil && cfg.Telemetry.OTLPEndpoint != "" {
		expOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Telemetry.OTLPEndpoint)}
		if cfg.Telemetry.Insecure {
			expOpts = append(expOpts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err := otlpmetricgrpc.New(ctx, expOpts...)
		if err != nil {
			return nil, fmt.Errorf("otlp metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.Telemetry.ExportInterval())),
		))
		export = true
	}

	return &Provider{mp: sdkmetric.NewMeterProvider(opts...), reader: reader, export: export}, nil
}

// Install makes p the global meter provider.
func (p *Provider) Install() {
	otel.SetMeterProvider(p.mp)
}

// MeterProvider returns the provider for explicit injection.
func (p *Provider) MeterProvider() metric.MeterProvider {
	return p.mp
}

// Exporting reports whether an OTLP exporter is attached.
func (p *Provider) Exporting() bool {
	return p.export
}

// Counters collects every int64 sum recorded so far, sorted by name.
func (p *Provider) Counters(ctx context.Context) ([]Counter, error) {
	var rm metricdata.ResourceMetrics
	if err := p.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collect metrics: %w", err)
	}
	var out []Counter
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				labels := make(map[string]string, dp.Attributes.Len())
				for _, kv := range dp.Attributes.ToSlice() {
					labels[string(kv.Key)] = kv.Value.Emit()
				}
				out = append(out, Counter{Name: m.Name, Attributes: labels, Value: dp.Value})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].Label() < out[j].Label()
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Label renders the attributes as k=v pairs in key order.
func (c Counter) Label() string {
	keys := make([]string, 0, len(c.Attributes))
	for k := range c.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+c.Attributes[k])
	}
	return strings.Join(parts, ",")
}

// Shutdown flushes exporters and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.mp == nil {
		return nil
	}
	if err := p.mp.Shutdown(ctx); err != nil && !errors.Is(err, sdkmetric.ErrReaderShutdown) {
		return err
	}
	return nil
}
