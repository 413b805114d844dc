// Package score consumes the artifact exported by the offline spoofing
// classifier pipeline. The pipeline trains on fixed-width rows of
// per-satellite carrier-to-noise, elevation, and azimuth features; the
// exported artifact carries the feature scaler and a logistic read-out
// distilled from the trained model. The resulting probability is an
// advisory third signal for the arbitration layer, never a trigger on
// its own.
package score

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/relabs-tech/gnss_sentinel/internal/gnss"
)

// Artifact is the on-disk scoring model. Features are laid out as
// SlotCount consecutive (cn0, elevation, azimuth) triples, matching the
// recorder's CSV column order.
type Artifact struct {
	SlotCount int       `json:"slot_count"`
	Means     []float64 `json:"means"`
	Stds      []float64 `json:"stds"`
	Weights   []float64 `json:"weights"`
	Bias      float64   `json:"bias"`
}

// Scorer evaluates satellite batches against a loaded artifact.
type Scorer struct {
	art Artifact
}

// New validates an artifact and returns a scorer over it.
func New(art Artifact) (*Scorer, error) {
	if art.SlotCount <= 0 {
		return nil, fmt.Errorf("score: slot_count must be positive, got %d", art.SlotCount)
	}
	want := 3 * art.SlotCount
	if len(art.Means) != want || len(art.Stds) != want || len(art.Weights) != want {
		return nil, fmt.Errorf("score: artifact arrays must have %d entries, got means=%d stds=%d weights=%d",
			want, len(art.Means), len(art.Stds), len(art.Weights))
	}
	return &Scorer{art: art}, nil
}

// Load reads a JSON artifact from disk.
func Load(path string) (*Scorer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("score: read artifact: %w", err)
	}
	var art Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("score: decode artifact: %w", err)
	}
	return New(art)
}

// Score returns the spoofed-probability in [0, 1] for one batch.
// Satellites beyond the slot count are dropped; missing slots are
// zero-padded, as in the training data.
func (s *Scorer) Score(batch []gnss.SatelliteObservation) float64 {
	features := make([]float64, 3*s.art.SlotCount)
	for i, sat := range batch {
		if i >= s.art.SlotCount {
			break
		}
		features[3*i] = sat.SNR
		features[3*i+1] = sat.Elevation
		features[3*i+2] = sat.Azimuth
	}

	z := s.art.Bias
	for i, f := range features {
		scaled := f - s.art.Means[i]
		if s.art.Stds[i] != 0 {
			scaled /= s.art.Stds[i]
		}
		z += s.art.Weights[i] * scaled
	}

	return 1 / (1 + math.Exp(-z))
}
