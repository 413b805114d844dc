package app

import (
	"context"
	"io"
	"sync"

	"github.com/relabs-tech/gnss_sentinel/internal/arbiter"
	"github.com/relabs-tech/gnss_sentinel/internal/feed"
	"github.com/relabs-tech/gnss_sentinel/internal/ingest"
	"github.com/relabs-tech/gnss_sentinel/internal/logging"
	"github.com/relabs-tech/gnss_sentinel/internal/observability"
	"github.com/relabs-tech/gnss_sentinel/internal/publish"
)

// pipelineService owns one NMEA transport end to end: open it, split it
// into the fix and satellite streams, and drive both through the
// arbitration controller. Implemented as a suture service so a lost
// serial port is reopened with backoff instead of killing the process.
type pipelineService struct {
	name    string
	open    func() (io.ReadCloser, error)
	ctrl    *arbiter.Controller
	metrics *observability.SentinelCollector
	pub     *publish.MQTTPublisher
	hub     *feed.Hub
}

func (s *pipelineService) String() string { return s.name }

func (s *pipelineService) Serve(ctx context.Context) error {
	src, err := s.open()
	if err != nil {
		return err
	}
	defer src.Close()

	// Serial reads have no deadline, so cancellation closes the port
	// out from under the scanner.
	go func() {
		<-ctx.Done()
		src.Close()
	}()

	reader := ingest.NewReader(src, s.metrics)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for fix := range reader.Fixes() {
			verdict := s.ctrl.OnFix(fix)
			if s.metrics != nil {
				s.metrics.ObserveVerdict("speed", verdict)
			}
			if s.pub != nil {
				s.pub.PublishFix(fix)
			}
			if s.hub != nil {
				s.hub.PublishFix(fix)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for batch := range reader.Batches() {
			verdict := s.ctrl.OnSatelliteBatch(batch)
			if s.metrics != nil {
				s.metrics.ObserveVerdict("constellation", verdict)
			}
		}
	}()

	err = reader.Run(ctx)
	wg.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		logging.Error().Err(err).Str("service", s.name).Msg("transport lost")
	}
	return err
}
