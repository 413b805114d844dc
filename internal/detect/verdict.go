// Package detect holds the two stateful spoofing classifiers: one over
// derived kinematics (SpeedDetector) and one over constellation
// composition and SNR trajectories (ConstellationDetector). The detectors
// share no state; each verdict is a pure function of the current input
// plus the detector's own history.
package detect

// Status is the closed set of classifier outcomes.
type Status int

const (
	// StatusNoFix means the receiver had no satellite lock; expected, not an error.
	StatusNoFix Status = iota
	// StatusStabilizing is returned while a detector is still in its warm-up phase.
	StatusStabilizing
	// StatusNormal means nothing anomalous was observed this cycle.
	StatusNormal
	// StatusSpeedAnomaly flags an implausible velocity spike over a real distance.
	StatusSpeedAnomaly
	// StatusSpoofAnalysis means a speed anomaly was seen and the detector is
	// waiting for the trajectory to re-stabilize.
	StatusSpoofAnalysis
	// StatusSpoofConfirmed is the speed detector's terminal spoofing verdict.
	StatusSpoofConfirmed
	// StatusInsufficientSatellites means too few reliable satellites for
	// constellation analysis; expected during poor sky view.
	StatusInsufficientSatellites
	// StatusSpoofingDetected is the constellation detector's spoofing verdict.
	StatusSpoofingDetected
)

var statusNames = map[Status]string{
	StatusNoFix:                  "NO_FIX",
	StatusStabilizing:            "STABILIZING",
	StatusNormal:                 "NORMAL",
	StatusSpeedAnomaly:           "SPEED_ANOMALY",
	StatusSpoofAnalysis:          "SPOOFING_ANALYSIS",
	StatusSpoofConfirmed:         "SPOOFING_CONFIRMED",
	StatusInsufficientSatellites: "INSUFFICIENT_SATS",
	StatusSpoofingDetected:       "SPOOFING_DETECTED",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Confirmed reports whether the status is a confirmed spoofing verdict,
// i.e. one that may drive the fallback transition.
func (s Status) Confirmed() bool {
	return s == StatusSpoofConfirmed || s == StatusSpoofingDetected
}

// Verdict is the outcome of one classification cycle. It is a value,
// re-derived every cycle; callers must not retain references into Causes.
type Verdict struct {
	Status Status
	// Speed is the computed ground speed in m/s. Only meaningful for
	// verdicts from the speed detector.
	Speed float64
	// Satellites is the reliable satellite count this cycle. Only set by
	// the constellation detector.
	Satellites int
	// Causes holds human-readable reasons for an anomalous verdict.
	Causes []string
}
