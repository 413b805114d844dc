package detect

import (
	"fmt"

	"github.com/relabs-tech/gnss_sentinel/internal/gnss"
)

// SpeedConfig holds the kinematic classifier thresholds.
type SpeedConfig struct {
	// StabilizationSpeed is the speed (m/s) the trajectory must stay under
	// to count toward stabilization, both at startup and after a suspect jump.
	StabilizationSpeed float64 `koanf:"stabilization_speed"`
	// SpoofSpeed is the speed (m/s) above which a fix pair is suspect.
	SpoofSpeed float64 `koanf:"spoof_speed"`
	// StabilizationCount is how many consecutive slow cycles are required
	// to stabilize, and to confirm a spoof after a suspect jump.
	StabilizationCount uint32 `koanf:"stabilization_count"`
	// MinJumpDistance is the minimum distance (m) a suspect jump must cover.
	// A high speed over a tiny distance is measurement noise, not a jump.
	MinJumpDistance float64 `koanf:"min_jump_distance"`
}

// DefaultSpeedConfig returns the field-tuned thresholds.
func DefaultSpeedConfig() SpeedConfig {
	return SpeedConfig{
		StabilizationSpeed: 8,
		SpoofSpeed:         6,
		StabilizationCount: 4,
		MinJumpDistance:    30,
	}
}

// SpeedDetector classifies the kinematic plausibility of consecutive
// position fixes. It encodes the signature of a spoofed jump-and-hold
// trajectory: a velocity spike over a real distance, followed by a return
// to plausible stillness. Sustained legitimate fast motion never
// re-stabilizes under the same reference and therefore never confirms.
//
// Not safe for concurrent use; feed it from a single stream worker.
type SpeedDetector struct {
	cfg SpeedConfig

	lastFix            *gnss.FixSample
	stabilized         bool
	stabilizationCount uint32
	suspect            bool
	postSuspectStable  uint32
	confirmed          bool
}

// NewSpeedDetector returns a detector in the stabilizing phase.
func NewSpeedDetector(cfg SpeedConfig) *SpeedDetector {
	return &SpeedDetector{cfg: cfg}
}

// Observe consumes one fix and returns the verdict for this cycle.
//
// A quality-0 fix returns StatusNoFix and changes no state: it is never
// taken as a reference point. The first usable fix is stored as the
// reference and yields StatusNormal, since no speed can be computed from a
// single sample. After a comparison the current fix always replaces the
// stored reference, whatever phase the state machine is in.
func (d *SpeedDetector) Observe(fix gnss.FixSample) Verdict {
	if !fix.HasFix() {
		return Verdict{Status: StatusNoFix}
	}

	if d.lastFix == nil {
		ref := fix
		d.lastFix = &ref
		return Verdict{Status: StatusNormal}
	}

	// Elapsed time between reference and current fix. Unordered timestamps
	// (receiver clock hiccup, midnight rollover) fail safe to one second so
	// the division below is never by zero.
	dt := fix.Time.Sub(d.lastFix.Time).Seconds()
	if dt <= 0 {
		dt = 1
	}

	dist := haversineMeters(d.lastFix.Latitude, d.lastFix.Longitude, fix.Latitude, fix.Longitude)
	speed := dist / dt

	verdict := d.classify(speed, dist)

	ref := fix
	d.lastFix = &ref
	return verdict
}

// classify runs the four phases in fixed priority order.
func (d *SpeedDetector) classify(speed, dist float64) Verdict {
	switch {
	case !d.stabilized:
		if speed < d.cfg.StabilizationSpeed {
			d.stabilizationCount++
			if d.stabilizationCount >= d.cfg.StabilizationCount {
				d.stabilized = true
			}
		}
		// The whole phase reports stabilizing, including the cycle that
		// completes it; detection starts on the next fix.
		return Verdict{Status: StatusStabilizing, Speed: speed}

	case !d.suspect:
		if speed > d.cfg.SpoofSpeed && dist > d.cfg.MinJumpDistance {
			d.suspect = true
			return Verdict{
				Status: StatusSpeedAnomaly,
				Speed:  speed,
				Causes: []string{fmt.Sprintf("speed anomaly: %.1f m/s over %.1f m", speed, dist)},
			}
		}
		return Verdict{Status: StatusNormal, Speed: speed}

	case !d.confirmed:
		if speed < d.cfg.StabilizationSpeed {
			d.postSuspectStable++
			if d.postSuspectStable >= d.cfg.StabilizationCount {
				d.confirmed = true
				return Verdict{
					Status: StatusSpoofConfirmed,
					Speed:  speed,
					Causes: []string{"trajectory re-stabilized after velocity jump"},
				}
			}
		}
		return Verdict{Status: StatusSpoofAnalysis, Speed: speed}

	default:
		return Verdict{Status: StatusNormal, Speed: speed}
	}
}
