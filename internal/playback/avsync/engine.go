// Package avsync decides, once per display refresh, which decoded frame to
// present so that video follows the audio clock.
package avsync

import (
	"context"
	"sync"
	"time"

	"github.com/zsiec/framesync/internal/config"
	apperrors "github.com/zsiec/framesync/internal/errors"
	"github.com/zsiec/framesync/internal/logger"
	"github.com/zsiec/framesync/internal/metrics"
	"github.com/zsiec/framesync/internal/playback/clock"
	"github.com/zsiec/framesync/internal/playback/frame"
	"github.com/zsiec/framesync/internal/playback/types"
	"golang.org/x/time/rate"
)

// FrameSource is the display side of a frame pool.
type FrameSource interface {
	NextTimestamp() (int64, bool)
	AcquireForDisplay(ctx context.Context, maxWait time.Duration) *frame.Frame
	ReleaseFromDisplay(f *frame.Frame, retain bool)
	ReadyCount() int
}

// WaitState explains why no frame was selected on the last tick.
type WaitState int

const (
	WaitNone WaitState = iota
	WaitVideoAheadOfAudio
	WaitNoAudio
	WaitNoVideo
)

func (w WaitState) String() string {
	switch w {
	case WaitNone:
		return "none"
	case WaitVideoAheadOfAudio:
		return "video_ahead_of_audio"
	case WaitNoAudio:
		return "no_audio"
	case WaitNoVideo:
		return "no_video"
	default:
		return "unknown"
	}
}

// Stats holds counters of the engine's decisions.
type Stats struct {
	Ticks           int64            `json:"ticks"`
	FramesShown     int64            `json:"frames_shown"`
	FramesDropped   int64            `json:"frames_dropped"`
	Waits           map[string]int64 `json:"waits"`
	WaitLogsEmitted int64            `json:"wait_logs_emitted"`
	LastDriftMs     int64            `json:"last_drift_ms"`
	ManualOffsetMs  int64            `json:"manual_offset_ms"`
	State           string           `json:"state"`
}

// Engine is the A/V sync decision logic. SelectFrameForDisplay is meant to be
// called from a single display goroutine; the accessors are safe to call
// from anywhere.
type Engine struct {
	source      FrameSource
	hasAudio    bool
	late        int64 // ms
	logInterval time.Duration
	logger      logger.Logger
	sampled     *logger.SampledLogger

	mu        sync.Mutex
	offset    int64 // ms
	state     WaitState
	waitSince time.Time
	limiter   *rate.Limiter
	stats     Stats
}

// NewEngine creates an engine presenting frames from source. hasAudio says
// whether the stream carries audio at all; without it frames are shown in
// order with no gating.
func NewEngine(source FrameSource, hasAudio bool, cfg config.SyncConfig, log logger.Logger) (*Engine, error) {
	if cfg.LateThreshold <= 0 {
		return nil, apperrors.NewValidationError("late threshold must be positive")
	}
	if cfg.WaitLogInterval <= 0 {
		return nil, apperrors.NewValidationError("wait log interval must be positive")
	}
	if log == nil {
		log = logger.NewNullLogger()
	}
	log = log.WithField("component", "avsync")

	return &Engine{
		source:      source,
		hasAudio:    hasAudio,
		late:        cfg.LateThreshold.Milliseconds(),
		logInterval: cfg.WaitLogInterval,
		logger:      log,
		sampled:     logger.NewPlaybackLogger(log),
		offset:      cfg.ManualOffset.Milliseconds(),
		limiter:     rate.NewLimiter(rate.Every(cfg.WaitLogInterval), 1),
		stats:       Stats{Waits: make(map[string]int64)},
	}, nil
}

// SelectFrameForDisplay returns the frame to present at now, or nil to keep
// showing the current picture. The caller owns the returned frame and must
// release it back to the source.
func (e *Engine) SelectFrameForDisplay(ctx context.Context, sample clock.Sample, now time.Time) *frame.Frame {
	e.mu.Lock()
	e.stats.Ticks++
	offset := e.offset
	e.mu.Unlock()

	audioValid := e.hasAudio && sample.Valid
	var audioTime int64
	if audioValid {
		audioTime = sample.At(now) + offset
	}
	videoTime, haveVideo := e.source.NextTimestamp()

	state := WaitNone
	if e.hasAudio {
		switch {
		case !audioValid:
			state = WaitNoAudio
		case !haveVideo:
			state = WaitNoVideo
		case videoTime != types.NoPTS && videoTime-audioTime > e.late:
			state = WaitVideoAheadOfAudio
		}
	}
	e.enterState(state, now, audioTime, videoTime)
	if state != WaitNone {
		return nil
	}

	// Frames committed while dropping are not chased
	ready := e.source.ReadyCount()
	f := e.source.AcquireForDisplay(ctx, 0)
	if f == nil {
		return nil
	}

	var dropped int64
	if e.hasAudio {
		for f.PTS != types.NoPTS && audioTime-f.PTS > e.late && dropped < int64(ready-1) {
			next := e.source.AcquireForDisplay(ctx, 0)
			if next == nil {
				break
			}
			e.source.ReleaseFromDisplay(f, false)
			metrics.IncrementFramesDropped()
			dropped++
			f = next
		}
	}

	e.mu.Lock()
	e.stats.FramesShown++
	e.stats.FramesDropped += dropped
	if e.hasAudio && f.PTS != types.NoPTS {
		e.stats.LastDriftMs = audioTime - f.PTS
	}
	drift := e.stats.LastDriftMs
	e.mu.Unlock()

	metrics.IncrementFramesShown()
	if e.hasAudio && f.PTS != types.NoPTS {
		metrics.RecordDrift(float64(drift))
	}
	if dropped > 0 {
		e.sampled.InfoWithCategory(logger.CategoryFrameDrop, "Dropped late frames", map[string]interface{}{
			"dropped":    dropped,
			"audio_ms":   audioTime,
			"pts":        f.PTS,
			"drift_ms":   drift,
			"ready_seen": ready,
		})
	}
	return f
}

// enterState records the tick's classification. The log limiter restarts on
// every transition, so the first tick of a new wait always logs.
func (e *Engine) enterState(state WaitState, now time.Time, audioTime, videoTime int64) {
	e.mu.Lock()
	prev := e.state
	since := e.waitSince
	changed := state != prev
	if changed {
		e.state = state
		e.waitSince = now
		e.limiter = rate.NewLimiter(rate.Every(e.logInterval), 1)
		if state != WaitNone {
			e.stats.Waits[state.String()]++
		}
	}
	emit := state != WaitNone && e.limiter.AllowN(now, 1)
	if emit {
		e.stats.WaitLogsEmitted++
	}
	waiting := now.Sub(e.waitSince)
	e.mu.Unlock()

	if changed && state != WaitNone {
		metrics.IncrementWaitStateEntered(state.String())
	}
	if changed && prev != WaitNone {
		e.logger.WithFields(map[string]interface{}{
			"state":     prev.String(),
			"waited_ms": now.Sub(since).Milliseconds(),
		}).Debug("Sync wait ended")
	}
	if !emit {
		return
	}

	fields := map[string]interface{}{
		"state":      state.String(),
		"waiting_ms": waiting.Milliseconds(),
	}
	if state == WaitVideoAheadOfAudio {
		fields["audio_ms"] = audioTime
		fields["video_ms"] = videoTime
	}
	e.logger.WithFields(fields).Debug("Waiting to present video")
}

// SetManualOffset adjusts the audio clock by d. Positive values make video
// run earlier.
func (e *Engine) SetManualOffset(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.offset = d.Milliseconds()
}

// ManualOffset returns the adjustment set with SetManualOffset.
func (e *Engine) ManualOffset() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return time.Duration(e.offset) * time.Millisecond
}

// State returns the wait state of the last tick.
func (e *Engine) State() WaitState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// HasAudio reports whether the engine gates on an audio clock.
func (e *Engine) HasAudio() bool {
	return e.hasAudio
}

// Stats returns a copy of the engine counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.stats
	s.Waits = make(map[string]int64, len(e.stats.Waits))
	for k, v := range e.stats.Waits {
		s.Waits[k] = v
	}
	s.ManualOffsetMs = e.offset
	s.State = e.state.String()
	return s
}
