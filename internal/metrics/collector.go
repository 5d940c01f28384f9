package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"xray-profile/internal/domain"
)

// Module provides the metrics collector
var Module = fx.Options(
	fx.Provide(NewRegistry),
	fx.Provide(NewCollector),
	fx.Provide(func(c *Collector) domain.MetricsCollector { return c }),
)

func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

type Collector struct {
	logger          *zap.Logger
	registry        *prometheus.Registry
	datasetFetches  *prometheus.CounterVec
	datasetDuration *prometheus.HistogramVec
	datasetBytes    *prometheus.GaugeVec
	fetchRetries    *prometheus.CounterVec
	documentWrites  *prometheus.CounterVec
	linksImported   *prometheus.CounterVec
	decodeWarnings  *prometheus.CounterVec
	traffic         *prometheus.GaugeVec
}

func NewCollector(logger *zap.Logger, registry *prometheus.Registry) *Collector {
	factory := promauto.With(registry)

	return &Collector{
		logger:   logger,
		registry: registry,
		datasetFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xray_profile_dataset_fetches_total",
				Help: "Total number of dataset downloads",
			},
			[]string{"status", "dataset"},
		),
		datasetDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "xray_profile_dataset_fetch_duration_seconds",
				Help:    "Duration of dataset downloads",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"dataset"},
		),
		datasetBytes: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "xray_profile_dataset_bytes",
				Help: "Size of the last downloaded dataset file",
			},
			[]string{"dataset"},
		),
		fetchRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xray_profile_fetch_retries_total",
				Help: "Total number of HTTP fetch retries",
			},
			[]string{"host"},
		),
		documentWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xray_profile_document_writes_total",
				Help: "Total number of engine document writes",
			},
			[]string{"operation", "status"},
		),
		linksImported: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xray_profile_links_total",
				Help: "Share links processed, by outcome",
			},
			[]string{"source", "status"},
		),
		decodeWarnings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xray_profile_decode_warnings_total",
				Help: "Unknown protocols replaced by their default variant while decoding",
			},
			[]string{"protocol"},
		),
		traffic: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "xray_profile_traffic_bytes",
				Help: "Traffic counters reported by the engine",
			},
			[]string{"direction", "tag", "link"},
		),
	}
}

func (c *Collector) RecordDatasetFetch(result domain.FetchResult) {
	name := result.Dataset.Name
	c.datasetFetches.WithLabelValues(result.Status(), name).Inc()
	c.datasetDuration.WithLabelValues(name).Observe(result.Duration.Seconds())
	if result.Error == nil {
		c.datasetBytes.WithLabelValues(name).Set(float64(result.Bytes))
	}
}

func (c *Collector) RecordFetchRetry(host string) {
	c.fetchRetries.WithLabelValues(host).Inc()
}

func (c *Collector) RecordDocumentWrite(operation string, err error) {
	status := "Success"
	if err != nil {
		status = "Failed"
	}
	c.documentWrites.WithLabelValues(operation, status).Inc()
}

func (c *Collector) RecordLinksImported(source string, imported, failed int) {
	c.linksImported.WithLabelValues(source, "imported").Add(float64(imported))
	c.linksImported.WithLabelValues(source, "failed").Add(float64(failed))
}

func (c *Collector) RecordDecodeWarning(protocol string) {
	c.decodeWarnings.WithLabelValues(protocol).Inc()
}

func (c *Collector) RecordTraffic(direction, tag string, uplink, downlink int64) {
	c.traffic.WithLabelValues(direction, tag, "uplink").Set(float64(uplink))
	c.traffic.WithLabelValues(direction, tag, "downlink").Set(float64(downlink))
}

// WriteTextfile dumps every collected series to path for a node-exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	c.logger.Debug("metrics textfile written", zap.String("path", path))
	return nil
}
