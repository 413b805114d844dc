// Package observability bundles the sentinel's Prometheus metrics and
// provides the HTTP handler to expose them.
package observability

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relabs-tech/gnss_sentinel/internal/arbiter"
	"github.com/relabs-tech/gnss_sentinel/internal/detect"
)

// SentinelCollector bundles the detection pipeline metrics. It also
// satisfies ingest.Counters so the reader can report throughput.
type SentinelCollector struct {
	gatherer prometheus.Gatherer

	FixesDecoded       prometheus.Counter
	BatchesDecoded     prometheus.Counter
	SentencesRejected  prometheus.Counter
	Verdicts           *prometheus.CounterVec
	ReliableSatellites prometheus.Gauge
	FallbackMode       prometheus.Gauge
}

// NewSentinelCollector registers the sentinel metrics against the
// provided registerer, defaulting to the global Prometheus registry
// when nil.
func NewSentinelCollector(reg prometheus.Registerer) (*SentinelCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &SentinelCollector{gatherer: gatherer}

	var err error
	c.FixesDecoded, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_fixes_decoded_total",
		Help: "Position fixes decoded from the NMEA stream.",
	}))
	if err != nil {
		return nil, err
	}
	c.BatchesDecoded, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_satellite_batches_decoded_total",
		Help: "Complete satellites-in-view cycles assembled from GSV sentences.",
	}))
	if err != nil {
		return nil, err
	}
	c.SentencesRejected, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_sentences_rejected_total",
		Help: "Malformed or out-of-order sentences skipped by the ingest layer.",
	}))
	if err != nil {
		return nil, err
	}
	c.Verdicts, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_verdicts_total",
		Help: "Detector verdicts, labeled by detector and status.",
	}, []string{"detector", "status"}))
	if err != nil {
		return nil, err
	}
	c.ReliableSatellites, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_reliable_satellites",
		Help: "Reliable satellites in the latest constellation cycle.",
	}))
	if err != nil {
		return nil, err
	}
	c.FallbackMode, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_fallback_mode",
		Help: "1 once the fallback transition has fired, 0 while tracking.",
	}))
	if err != nil {
		return nil, err
	}

	return c, nil
}

// register attaches a collector to the registry, reusing the existing
// instance when one with the same descriptor is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, collector C) (C, error) {
	if err := reg.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return collector, err
	}
	return collector, nil
}

// Handler serves the metrics endpoint for this collector's registry.
func (c *SentinelCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// FixDecoded implements ingest.Counters.
func (c *SentinelCollector) FixDecoded() { c.FixesDecoded.Inc() }

// BatchDecoded implements ingest.Counters.
func (c *SentinelCollector) BatchDecoded() { c.BatchesDecoded.Inc() }

// SentenceRejected implements ingest.Counters.
func (c *SentinelCollector) SentenceRejected() { c.SentencesRejected.Inc() }

// ObserveVerdict records one classification outcome.
func (c *SentinelCollector) ObserveVerdict(detector string, v detect.Verdict) {
	c.Verdicts.WithLabelValues(detector, v.Status.String()).Inc()
	if detector == "constellation" {
		c.ReliableSatellites.Set(float64(v.Satellites))
	}
}

// Alert implements arbiter.Sink.
func (c *SentinelCollector) Alert(arbiter.Alert) {}

// ModeChanged implements arbiter.Sink.
func (c *SentinelCollector) ModeChanged(m arbiter.Mode) {
	if m == arbiter.ModeFallback {
		c.FallbackMode.Set(1)
	}
}
