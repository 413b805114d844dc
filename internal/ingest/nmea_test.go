package ingest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/relabs-tech/gnss_sentinel/internal/gnss"
)

// line wraps an NMEA sentence body with the leading $ and its checksum.
func line(body string) string {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return fmt.Sprintf("$%s*%02X", body, sum)
}

type countingCounters struct {
	fixes, batches, rejected int
}

func (c *countingCounters) FixDecoded()       { c.fixes++ }
func (c *countingCounters) BatchDecoded()     { c.batches++ }
func (c *countingCounters) SentenceRejected() { c.rejected++ }

// runReader feeds the raw stream through a Reader and drains both channels.
func runReader(t *testing.T, raw string, counters Counters) ([]gnss.FixSample, [][]gnss.SatelliteObservation, error) {
	t.Helper()

	in := NewReader(strings.NewReader(raw), counters)
	errCh := make(chan error, 1)
	go func() { errCh <- in.Run(context.Background()) }()

	var fixes []gnss.FixSample
	var batches [][]gnss.SatelliteObservation
	fixCh, batchCh := in.Fixes(), in.Batches()
	for fixCh != nil || batchCh != nil {
		select {
		case f, ok := <-fixCh:
			if !ok {
				fixCh = nil
				continue
			}
			fixes = append(fixes, f)
		case b, ok := <-batchCh:
			if !ok {
				batchCh = nil
				continue
			}
			batches = append(batches, b)
		}
	}
	return fixes, batches, <-errCh
}

func TestReaderParsesGGA(t *testing.T) {
	raw := line("GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,") + "\r\n"

	counters := &countingCounters{}
	fixes, _, err := runReader(t, raw, counters)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(fixes) != 1 {
		t.Fatalf("got %d fixes, want 1", len(fixes))
	}

	fix := fixes[0]
	if !fix.HasFix() || fix.Quality != gnss.QualityGPS {
		t.Errorf("Quality = %d, want %d", fix.Quality, gnss.QualityGPS)
	}
	if math.Abs(fix.Latitude-48.1173) > 0.0001 {
		t.Errorf("Latitude = %.5f, want 48.1173", fix.Latitude)
	}
	if math.Abs(fix.Longitude-11.51667) > 0.0001 {
		t.Errorf("Longitude = %.5f, want 11.51667", fix.Longitude)
	}
	if fix.Time.Hour() != 12 || fix.Time.Minute() != 35 || fix.Time.Second() != 19 {
		t.Errorf("Time = %v, want 12:35:19", fix.Time)
	}
	if counters.fixes != 1 {
		t.Errorf("fix counter = %d, want 1", counters.fixes)
	}
}

func TestReaderNoFixQuality(t *testing.T) {
	raw := line("GPGGA,123519,4807.038,N,01131.000,E,0,00,,,M,,M,,") + "\r\n"

	fixes, _, err := runReader(t, raw, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(fixes) != 1 {
		t.Fatalf("got %d fixes, want 1", len(fixes))
	}
	if fixes[0].HasFix() {
		t.Error("quality-0 sentence should produce a no-fix sample")
	}
}

func TestReaderAssemblesGSVCycle(t *testing.T) {
	raw := strings.Join([]string{
		line("GPGSV,2,1,08,01,40,083,46,02,17,308,41,12,07,344,39,14,22,228,45"),
		line("GPGSV,2,2,08,19,13,291,,22,27,138,42,24,39,154,33,25,45,030,38"),
	}, "\r\n") + "\r\n"

	counters := &countingCounters{}
	_, batches, err := runReader(t, raw, counters)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1 (the cycle spans two parts)", len(batches))
	}

	batch := batches[0]
	if len(batch) != 8 {
		t.Fatalf("batch has %d satellites, want 8", len(batch))
	}
	if batch[0].PRN != 1 || batch[0].SNR != 46 || !batch[0].HasSNR {
		t.Errorf("first satellite = %+v, want PRN 1 SNR 46", batch[0])
	}
	if batch[0].Elevation != 40 || batch[0].Azimuth != 83 {
		t.Errorf("first satellite angles = %+v, want elev 40 azim 83", batch[0])
	}
	// PRN 19 reports no SNR; it is carried but flagged.
	if batch[4].PRN != 19 || batch[4].HasSNR {
		t.Errorf("fifth satellite = %+v, want PRN 19 without SNR", batch[4])
	}
	if counters.batches != 1 {
		t.Errorf("batch counter = %d, want 1", counters.batches)
	}
}

func TestReaderDiscardsOutOfOrderGSV(t *testing.T) {
	raw := strings.Join([]string{
		line("GPGSV,2,1,08,01,40,083,46,02,17,308,41,12,07,344,39,14,22,228,45"),
		// Part 2 never arrives; a fresh cycle starts instead.
		line("GPGSV,1,1,04,05,40,083,46,06,17,308,41,07,07,344,39,08,22,228,45"),
	}, "\r\n") + "\r\n"

	_, batches, err := runReader(t, raw, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}
	if len(batches[0]) != 4 || batches[0][0].PRN != 5 {
		t.Errorf("batch = %+v, want the fresh four-satellite cycle", batches[0])
	}
}

func TestReaderSkipsMalformedSentences(t *testing.T) {
	raw := strings.Join([]string{
		"$GPGGA,garbage*00",
		"not nmea at all",
		line("GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"),
	}, "\r\n") + "\r\n"

	counters := &countingCounters{}
	fixes, _, err := runReader(t, raw, counters)
	if err != nil {
		t.Fatalf("malformed input must not be fatal: %v", err)
	}
	if len(fixes) != 1 {
		t.Errorf("got %d fixes, want 1", len(fixes))
	}
	if counters.rejected != 1 {
		t.Errorf("rejected counter = %d, want 1 (non-$ lines are ignored silently)", counters.rejected)
	}
}

func TestReaderCleanEOF(t *testing.T) {
	_, _, err := runReader(t, "", nil)
	if err != nil {
		t.Fatalf("clean EOF should return nil, got %v", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("device unplugged")
}

func TestReaderTransportFailure(t *testing.T) {
	in := NewReader(failingReader{}, nil)
	err := in.Run(context.Background())
	if !errors.Is(err, ErrChannelLost) {
		t.Fatalf("got %v, want ErrChannelLost", err)
	}
}
