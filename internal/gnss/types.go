package gnss

import "time"

// Fix quality codes as reported in the GGA quality field.
const (
	QualityNoFix = 0
	QualityGPS   = 1
	QualityDGPS  = 2
)

// FixSample is a single resolved position report from the receiver,
// suitable for JSON and MQTT.
type FixSample struct {
	Latitude  float64   `json:"lat"`     // decimal degrees
	Longitude float64   `json:"lon"`     // decimal degrees
	Quality   int       `json:"quality"` // GGA fix quality, 0 = no fix
	Time      time.Time `json:"time"`
}

// HasFix reports whether the receiver had satellite lock for this sample.
func (f FixSample) HasFix() bool {
	return f.Quality != QualityNoFix
}

// SatelliteObservation is one satellite-in-view entry from a GSV cycle.
// Elevation and azimuth are carried for downstream consumers (feed,
// scorer); the constellation detector only looks at PRN and SNR.
type SatelliteObservation struct {
	PRN       int     `json:"prn"`
	SNR       float64 `json:"snr"` // dB-Hz
	HasSNR    bool    `json:"has_snr"`
	Elevation float64 `json:"elev"` // degrees above horizon
	Azimuth   float64 `json:"azim"` // degrees true
}
