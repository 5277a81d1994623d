package simulate

import (
	"context"
	"time"

	"github.com/zsiec/framesync/internal/logger"
	"github.com/zsiec/framesync/internal/playback/clock"
)

// audioPeriod is how often a real audio output reports its position.
const audioPeriod = 20 * time.Millisecond

// AudioDriver plays a silent stream in real time and publishes its position
// to the audio clock.
type AudioDriver struct {
	clock      *clock.AudioClock
	startDelay time.Duration
	duration   time.Duration
	period     time.Duration
	logger     logger.Logger
}

func NewAudioDriver(c *clock.AudioClock, startDelay, duration time.Duration, log logger.Logger) *AudioDriver {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &AudioDriver{
		clock:      c,
		startDelay: startDelay,
		duration:   duration,
		period:     audioPeriod,
		logger:     log.WithField("component", "audio"),
	}
}

// Run starts output after the configured delay and updates the clock until
// the stream ends or ctx is done. The clock keeps its last sample afterwards.
func (a *AudioDriver) Run(ctx context.Context) error {
	if a.startDelay > 0 {
		t := time.NewTimer(a.startDelay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil
		}
	}

	start := time.Now()
	a.clock.Set(0, start)
	a.logger.Debug("Audio output started")

	ticker := time.NewTicker(a.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			pos := now.Sub(start)
			if pos >= a.duration {
				a.logger.WithField("position", pos).Debug("Audio output finished")
				return nil
			}
			a.clock.Set(pos.Milliseconds(), now)
		}
	}
}
