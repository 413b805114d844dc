package app

import (
	"bufio"
	"context"
	"io"
	"os"
	"time"

	"github.com/relabs-tech/gnss_sentinel/internal/arbiter"
	"github.com/relabs-tech/gnss_sentinel/internal/config"
	"github.com/relabs-tech/gnss_sentinel/internal/logging"
)

// RunReplay feeds a recorded NMEA log through the detection pipeline
// and reports the final navigation mode. delay paces the stream, one
// sentence per interval; zero replays as fast as the file reads.
func RunReplay(configPath, logPath string, delay time.Duration) (arbiter.Mode, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return arbiter.ModeTracking, err
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctrl, collector, _, _, err := buildController(cfg)
	if err != nil {
		return arbiter.ModeTracking, err
	}

	f, err := os.Open(logPath)
	if err != nil {
		return arbiter.ModeTracking, err
	}
	defer f.Close()

	ctx := context.Background()
	var src io.ReadCloser = f
	if delay > 0 {
		src = pacedStream(ctx, f, delay)
	}

	pipeline := &pipelineService{
		name:    "replay-pipeline",
		open:    func() (io.ReadCloser, error) { return src, nil },
		ctrl:    ctrl,
		metrics: collector,
	}

	if err := pipeline.Serve(ctx); err != nil {
		return ctrl.Mode(), err
	}

	mode := ctrl.Mode()
	logging.Info().
		Str("log", logPath).
		Str("mode", mode.String()).
		Msg("replay finished")
	if handoff := ctrl.Handoff(); handoff != nil {
		logging.Info().
			Float64("lat", handoff.Latitude).
			Float64("lon", handoff.Longitude).
			Time("time", handoff.Time).
			Msg("last trusted position")
	}
	return mode, nil
}

// pacedStream copies the log line by line with a fixed delay, so replay
// exercises the pipeline on something resembling the receiver cadence.
func pacedStream(ctx context.Context, r io.Reader, delay time.Duration) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		ticker := time.NewTicker(delay)
		defer ticker.Stop()

		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				pw.CloseWithError(ctx.Err())
				return
			case <-ticker.C:
			}
			if _, err := pw.Write(append(scanner.Bytes(), '\n')); err != nil {
				return
			}
		}
		pw.CloseWithError(scanner.Err())
	}()
	return pr
}
