// Package ingest turns a raw NMEA byte stream (serial port or recorded
// log) into the two parsed streams the detectors consume: position fixes
// from GGA sentences and satellites-in-view batches assembled from GSV
// cycles. The detectors never see raw or partially-parsed data.
package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"

	"github.com/relabs-tech/gnss_sentinel/internal/gnss"
	"github.com/relabs-tech/gnss_sentinel/internal/logging"
)

// ErrChannelLost marks a transport failure of the underlying stream. It
// is fatal to this stream only and is distinct from any spoofing verdict.
var ErrChannelLost = errors.New("ingest: transport lost")

// Counters receives ingest throughput events. All methods may be called
// from the reader goroutine only.
type Counters interface {
	FixDecoded()
	BatchDecoded()
	SentenceRejected()
}

// Reader splits one NMEA transport into the fix and satellite streams.
// Both channels are closed when Run returns.
type Reader struct {
	r        io.Reader
	counters Counters
	fixes    chan gnss.FixSample
	batches  chan []gnss.SatelliteObservation

	// GSV cycle under assembly.
	pending    []gnss.SatelliteObservation
	pendingMsg int64
	pendingOf  int64

	now func() time.Time
}

// NewReader wraps a raw sentence stream. counters may be nil.
func NewReader(r io.Reader, counters Counters) *Reader {
	return &Reader{
		r:        r,
		counters: counters,
		fixes:    make(chan gnss.FixSample, 16),
		batches:  make(chan []gnss.SatelliteObservation, 16),
		now:      time.Now,
	}
}

// Fixes is the position-fix stream, one sample per GGA sentence.
func (in *Reader) Fixes() <-chan gnss.FixSample {
	return in.fixes
}

// Batches is the satellites-in-view stream, one batch per complete GSV cycle.
func (in *Reader) Batches() <-chan []gnss.SatelliteObservation {
	return in.batches
}

// Run consumes the transport until EOF, cancellation, or a read failure.
// Malformed sentences are counted and skipped, never fatal. A clean EOF
// (end of a replay file) returns nil; a transport failure wraps
// ErrChannelLost.
func (in *Reader) Run(ctx context.Context) error {
	defer close(in.fixes)
	defer close(in.batches)

	scanner := bufio.NewScanner(in.r)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "$") {
			continue
		}

		sentence, err := nmea.Parse(line)
		if err != nil {
			in.rejected()
			logging.Debug().Err(err).Str("line", line).Msg("unparseable sentence")
			continue
		}

		switch sentence.DataType() {
		case nmea.TypeGGA:
			m := sentence.(nmea.GGA)
			fix := gnss.FixSample{
				Latitude:  m.Latitude,
				Longitude: m.Longitude,
				Quality:   qualityCode(m.FixQuality),
				Time:      sentenceTime(m.Time, in.now().UTC()),
			}
			if in.counters != nil {
				in.counters.FixDecoded()
			}
			select {
			case in.fixes <- fix:
			case <-ctx.Done():
				return ctx.Err()
			}

		case nmea.TypeGSV:
			m := sentence.(nmea.GSV)
			if batch, ok := in.collectGSV(m); ok {
				if in.counters != nil {
					in.counters.BatchDecoded()
				}
				select {
				case in.batches <- batch:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChannelLost, err)
	}
	return nil
}

// collectGSV folds one GSV part into the cycle under assembly and returns
// the completed batch once the last part arrives. Out-of-order parts
// discard the partial cycle.
func (in *Reader) collectGSV(m nmea.GSV) (batch []gnss.SatelliteObservation, ok bool) {
	if m.MessageNumber == 1 {
		in.pending = in.pending[:0]
		in.pendingMsg = 1
		in.pendingOf = m.TotalMessages
	} else if m.MessageNumber != in.pendingMsg+1 || m.TotalMessages != in.pendingOf {
		in.pending = nil
		in.pendingMsg = 0
		in.rejected()
		return nil, false
	} else {
		in.pendingMsg = m.MessageNumber
	}

	for _, info := range m.Info {
		if info.SVPRNNumber == 0 {
			continue
		}
		in.pending = append(in.pending, gnss.SatelliteObservation{
			PRN:       int(info.SVPRNNumber),
			SNR:       float64(info.SNR),
			HasSNR:    info.SNR > 0,
			Elevation: float64(info.Elevation),
			Azimuth:   float64(info.Azimuth),
		})
	}

	if m.MessageNumber == m.TotalMessages {
		batch = make([]gnss.SatelliteObservation, len(in.pending))
		copy(batch, in.pending)
		in.pending = in.pending[:0]
		in.pendingMsg = 0
		return batch, true
	}
	return nil, false
}

func (in *Reader) rejected() {
	if in.counters != nil {
		in.counters.SentenceRejected()
	}
}

// qualityCode converts the GGA quality field to its numeric code;
// anything unparseable counts as no fix.
func qualityCode(quality string) int {
	code, err := strconv.Atoi(quality)
	if err != nil || code < 0 {
		return gnss.QualityNoFix
	}
	return code
}

// sentenceTime combines the time-of-day from a sentence with today's UTC
// date, falling back to the wall clock when the field is absent.
func sentenceTime(t nmea.Time, now time.Time) time.Time {
	if !t.Valid {
		return now
	}
	return time.Date(now.Year(), now.Month(), now.Day(),
		t.Hour, t.Minute, t.Second, t.Millisecond*int(time.Millisecond), time.UTC)
}
