package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/relabs-tech/gnss_sentinel/internal/arbiter"
	"github.com/relabs-tech/gnss_sentinel/internal/detect"
)

func TestNewSentinelCollectorRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewSentinelCollector(reg)
	if err != nil {
		t.Fatalf("NewSentinelCollector: %v", err)
	}

	c.FixDecoded()
	c.BatchDecoded()
	c.SentenceRejected()
	c.ObserveVerdict("speed", detect.Verdict{Status: detect.StatusNormal})
	c.ObserveVerdict("constellation", detect.Verdict{Status: detect.StatusNormal, Satellites: 6})
	c.ModeChanged(arbiter.ModeFallback)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"sentinel_fixes_decoded_total",
		"sentinel_satellite_batches_decoded_total",
		"sentinel_sentences_rejected_total",
		"sentinel_verdicts_total",
		"sentinel_reliable_satellites",
		"sentinel_fallback_mode",
	} {
		if !names[want] {
			t.Errorf("metric %s not gathered", want)
		}
	}
}

func TestNewSentinelCollectorDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewSentinelCollector(reg); err != nil {
		t.Fatal(err)
	}
	if _, err := NewSentinelCollector(reg); err != nil {
		t.Fatalf("re-registration should be tolerated: %v", err)
	}
}
