package detect

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/relabs-tech/gnss_sentinel/internal/gnss"
)

// ConstellationConfig holds the constellation classifier thresholds.
type ConstellationConfig struct {
	// SNRJump is the absolute SNR delta (dB-Hz) flagged as a jump.
	SNRJump float64 `koanf:"snr_jump"`
	// SNRJumpRelative scales the previous SNR into a relative jump floor,
	// making the check scale-sensitive for already-weak signals.
	SNRJumpRelative float64 `koanf:"snr_jump_relative"`
	// NewPRNs is how many brand-new satellites in one cycle count as a cause.
	NewPRNs int `koanf:"new_prns"`
	// LostPRNs is how many vanished satellites in one cycle count as a cause.
	LostPRNs int `koanf:"lost_prns"`
	// ShockPRNs is the new AND lost count that triggers an instant verdict,
	// bypassing the confirmation streak.
	ShockPRNs int `koanf:"shock_prns"`
	// ConfirmCount is the consecutive anomalous cycles required to escalate.
	ConfirmCount uint32 `koanf:"confirm_count"`
	// HistoryLength bounds the per-satellite SNR smoothing window.
	HistoryLength int `koanf:"history_length"`
	// SNRFloor is the minimum SNR (dB-Hz) for a satellite to count as reliable.
	SNRFloor float64 `koanf:"snr_floor"`
	// MinSatellites is the reliable-satellite count below which no analysis runs.
	MinSatellites int `koanf:"min_satellites"`
	// Warmup suppresses verdicts for this long after startup.
	Warmup time.Duration `koanf:"warmup"`
}

// DefaultConstellationConfig returns the field-tuned thresholds.
func DefaultConstellationConfig() ConstellationConfig {
	return ConstellationConfig{
		SNRJump:         6,
		SNRJumpRelative: 0.25,
		NewPRNs:         4,
		LostPRNs:        4,
		ShockPRNs:       5,
		ConfirmCount:    2,
		HistoryLength:   3,
		SNRFloor:        23,
		MinSatellites:   4,
		Warmup:          60 * time.Second,
	}
}

// ConstellationDetector classifies constellation-composition and SNR
// plausibility. Under real sky motion the visible set changes gradually;
// abrupt wholesale replacement of satellites, or synchronized SNR jumps,
// are the structural signature of a rebroadcast attack. A streak counter
// absorbs single noisy cycles; a severe enough one-shot shock bypasses it.
//
// Not safe for concurrent use; feed it from a single stream worker.
type ConstellationDetector struct {
	cfg ConstellationConfig

	history     map[int][]float64
	previous    map[int]float64
	streak      uint32
	warmupStart time.Time

	now func() time.Time
}

// NewConstellationDetector returns a detector with its warm-up window
// starting now.
func NewConstellationDetector(cfg ConstellationConfig) *ConstellationDetector {
	d := &ConstellationDetector{
		cfg:     cfg,
		history: make(map[int][]float64),
		now:     time.Now,
	}
	d.warmupStart = d.now()
	return d
}

// ObserveBatch consumes one satellites-in-view cycle and returns the
// verdict. Observations without an SNR are skipped; duplicate PRNs in a
// batch collapse to the last occurrence.
func (d *ConstellationDetector) ObserveBatch(batch []gnss.SatelliteObservation) Verdict {
	all := make(map[int]float64, len(batch))
	filtered := make(map[int]float64, len(batch))
	for _, sat := range batch {
		if !sat.HasSNR {
			continue
		}
		all[sat.PRN] = sat.SNR
		if sat.SNR >= d.cfg.SNRFloor {
			filtered[sat.PRN] = sat.SNR
		}
	}

	// During warm-up the SNR history still accumulates, so the warm-up
	// period doubles as history priming, but the comparison baseline is
	// left untouched.
	if d.now().Sub(d.warmupStart) < d.cfg.Warmup {
		d.updateHistory(all)
		return Verdict{Status: StatusStabilizing, Satellites: len(filtered)}
	}

	if len(filtered) < d.cfg.MinSatellites {
		return Verdict{Status: StatusInsufficientSatellites, Satellites: len(filtered)}
	}

	d.updateHistory(all)

	verdict := Verdict{Status: StatusNormal, Satellites: len(filtered)}
	if len(d.previous) > 0 {
		causes, shock := d.compare(d.previous, filtered)
		if len(causes) > 0 {
			d.streak++
		} else {
			d.streak = 0
		}
		if len(causes) > 0 && (d.streak >= d.cfg.ConfirmCount || shock) {
			verdict.Status = StatusSpoofingDetected
		}
		verdict.Causes = causes
	}

	// The baseline always advances, even on an alert cycle: the spoofed
	// state becomes the new "previous" rather than being rolled back.
	d.previous = filtered

	return verdict
}

// AveragedSNR returns the mean over each satellite's recent SNR window.
// Diagnostics only; comparisons run on the raw filtered sets.
func (d *ConstellationDetector) AveragedSNR() map[int]float64 {
	avg := make(map[int]float64, len(d.history))
	for prn, window := range d.history {
		if len(window) == 0 {
			continue
		}
		var sum float64
		for _, snr := range window {
			sum += snr
		}
		avg[prn] = sum / float64(len(window))
	}
	return avg
}

func (d *ConstellationDetector) updateHistory(all map[int]float64) {
	for prn, snr := range all {
		window := append(d.history[prn], snr)
		if len(window) > d.cfg.HistoryLength {
			window = window[len(window)-d.cfg.HistoryLength:]
		}
		d.history[prn] = window
	}
}

func (d *ConstellationDetector) compare(prev, curr map[int]float64) (causes []string, shock bool) {
	var added, lost []int
	for prn := range curr {
		if _, ok := prev[prn]; !ok {
			added = append(added, prn)
		}
	}
	for prn := range prev {
		if _, ok := curr[prn]; !ok {
			lost = append(lost, prn)
		}
	}
	sort.Ints(added)
	sort.Ints(lost)

	if len(added) >= d.cfg.NewPRNs {
		causes = append(causes, fmt.Sprintf("%d new satellites: %v", len(added), added))
	}
	if len(lost) >= d.cfg.LostPRNs {
		causes = append(causes, fmt.Sprintf("%d satellites disappeared: %v", len(lost), lost))
	}

	var common []int
	for prn := range curr {
		if _, ok := prev[prn]; ok {
			common = append(common, prn)
		}
	}
	sort.Ints(common)

	var jumps []string
	for _, prn := range common {
		delta := math.Abs(curr[prn] - prev[prn])
		if delta >= math.Max(d.cfg.SNRJump, d.cfg.SNRJumpRelative*prev[prn]) {
			jumps = append(jumps, fmt.Sprintf("PRN %d (Δ%.1f dB-Hz)", prn, delta))
		}
	}
	if len(jumps) > 0 {
		causes = append(causes, "SNR jumps: "+strings.Join(jumps, ", "))
	}

	if len(added) >= d.cfg.ShockPRNs && len(lost) >= d.cfg.ShockPRNs {
		shock = true
		causes = append(causes, "abrupt constellation replacement")
	}

	return causes, shock
}
