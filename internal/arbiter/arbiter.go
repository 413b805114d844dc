// Package arbiter merges the two detector verdicts into the single
// authoritative navigation-mode decision.
package arbiter

import (
	"sync"
	"time"

	"github.com/relabs-tech/gnss_sentinel/internal/detect"
	"github.com/relabs-tech/gnss_sentinel/internal/gnss"
	"github.com/relabs-tech/gnss_sentinel/internal/logging"
)

// Mode is the process-wide navigation mode. The only transition is
// Tracking -> Fallback, exactly once per run.
type Mode int32

const (
	ModeTracking Mode = iota
	ModeFallback
)

func (m Mode) String() string {
	if m == ModeFallback {
		return "FALLBACK"
	}
	return "TRACKING"
}

// Alert is the one-shot spoofing notification handed to downstream sinks.
type Alert struct {
	// Kind is the confirming verdict's status name.
	Kind string `json:"kind"`
	// Causes are the detector's human-readable reasons, in order.
	Causes []string `json:"causes,omitempty"`
	// Time is the triggering timestamp.
	Time time.Time `json:"time"`
	// Handoff is the last known-good fix, the origin for fallback routing.
	Handoff *gnss.FixSample `json:"handoff,omitempty"`
	// SpoofProbability is the advisory classifier's latest score in [0,1],
	// zero when no scorer is attached. It never triggers on its own.
	SpoofProbability float64 `json:"spoof_probability,omitempty"`
}

// Sink receives arbitration events. Alert is delivered at most once per
// run, followed by the ModeChanged notification for the fallback
// transition. Implementations must not block.
type Sink interface {
	Alert(a Alert)
	ModeChanged(m Mode)
}

// Scorer is an optional advisory spoof-probability source, typically
// backed by an offline-trained classifier artifact. Its score is attached
// to alerts for diagnostics and is never the sole trigger.
type Scorer interface {
	Score(batch []gnss.SatelliteObservation) float64
}

// Config holds arbitration settings.
type Config struct {
	// GracePeriod suppresses mode transitions for this long after startup.
	// Confirmed verdicts inside the window are logged but advisory.
	GracePeriod time.Duration `koanf:"grace_period"`
}

// Controller owns both detectors and the mode flag. Either stream worker
// may drive the one-shot transition; the mode, hand-off fix, and last
// advisory score live behind a single mutex so the transition is
// check-and-set, performed at most once.
//
// After fallback the workers keep feeding the detectors; their verdicts
// are logged for diagnostics but can no longer change the mode.
type Controller struct {
	speed         *detect.SpeedDetector
	constellation *detect.ConstellationDetector
	grace         time.Duration
	start         time.Time
	scorer        Scorer
	sinks         []Sink

	now func() time.Time

	mu        sync.Mutex
	mode      Mode
	lastGood  *gnss.FixSample
	handoff   *gnss.FixSample
	lastScore float64
}

// New returns a controller in Tracking mode with its grace window
// starting now. Sinks and the scorer must be attached before the first
// observation is routed.
func New(cfg Config, speed *detect.SpeedDetector, constellation *detect.ConstellationDetector) *Controller {
	c := &Controller{
		speed:         speed,
		constellation: constellation,
		grace:         cfg.GracePeriod,
		now:           time.Now,
	}
	c.start = c.now()
	return c
}

// AddSink registers a downstream event receiver.
func (c *Controller) AddSink(s Sink) {
	c.sinks = append(c.sinks, s)
}

// SetScorer attaches the advisory classifier.
func (c *Controller) SetScorer(s Scorer) {
	c.scorer = s
}

// OnFix routes one position fix to the speed detector and applies its
// verdict.
func (c *Controller) OnFix(fix gnss.FixSample) detect.Verdict {
	v := c.speed.Observe(fix)

	// Fixes from the suspected spoofed trajectory are not known-good; the
	// hand-off point must predate the jump.
	if fix.HasFix() && !anomalous(v.Status) {
		sample := fix
		c.mu.Lock()
		c.lastGood = &sample
		c.mu.Unlock()
	}

	c.apply(v)
	return v
}

// OnSatelliteBatch routes one satellites-in-view cycle to the
// constellation detector and applies its verdict.
func (c *Controller) OnSatelliteBatch(batch []gnss.SatelliteObservation) detect.Verdict {
	if c.scorer != nil && len(batch) > 0 {
		score := c.scorer.Score(batch)
		c.mu.Lock()
		c.lastScore = score
		c.mu.Unlock()
	}

	v := c.constellation.ObserveBatch(batch)
	c.apply(v)
	return v
}

// Mode returns the current navigation mode. Once observed as Fallback it
// never reverts.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Handoff returns the fix recorded at the fallback transition, or nil
// while still tracking.
func (c *Controller) Handoff() *gnss.FixSample {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handoff
}

// apply performs the one-shot transition for a confirmed verdict.
func (c *Controller) apply(v detect.Verdict) {
	if !v.Status.Confirmed() {
		return
	}

	elapsed := c.now().Sub(c.start)

	c.mu.Lock()
	if c.mode == ModeFallback {
		c.mu.Unlock()
		logging.Debug().
			Str("verdict", v.Status.String()).
			Msg("confirmed verdict after fallback, advisory only")
		return
	}
	if elapsed < c.grace {
		c.mu.Unlock()
		logging.Warn().
			Str("verdict", v.Status.String()).
			Strs("causes", v.Causes).
			Dur("elapsed", elapsed).
			Msg("confirmed verdict inside startup grace period, suppressed")
		return
	}
	c.mode = ModeFallback
	c.handoff = c.lastGood
	handoff := c.handoff
	score := c.lastScore
	c.mu.Unlock()

	alert := Alert{
		Kind:             v.Status.String(),
		Causes:           v.Causes,
		Time:             c.now(),
		Handoff:          handoff,
		SpoofProbability: score,
	}

	logging.Error().
		Str("verdict", alert.Kind).
		Strs("causes", alert.Causes).
		Float64("spoof_probability", alert.SpoofProbability).
		Msg("spoofing confirmed, switching to fallback navigation")

	for _, s := range c.sinks {
		s.Alert(alert)
		s.ModeChanged(ModeFallback)
	}
}

// anomalous reports whether a speed verdict marks the fix itself as part
// of a suspect trajectory.
func anomalous(s detect.Status) bool {
	switch s {
	case detect.StatusSpeedAnomaly, detect.StatusSpoofAnalysis, detect.StatusSpoofConfirmed:
		return true
	}
	return false
}
