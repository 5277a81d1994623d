package simulate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zsiec/framesync/internal/config"
	apperrors "github.com/zsiec/framesync/internal/errors"
	"github.com/zsiec/framesync/internal/logger"
	"github.com/zsiec/framesync/internal/metrics"
	"github.com/zsiec/framesync/internal/playback/accel"
	"github.com/zsiec/framesync/internal/playback/avsync"
	"github.com/zsiec/framesync/internal/playback/clock"
	"github.com/zsiec/framesync/internal/playback/player"
	"github.com/zsiec/framesync/internal/playback/pool"
	"golang.org/x/sync/errgroup"
)

// Session wires one pool, sync engine and presenter to a synthetic decoder
// and audio output.
type Session struct {
	ID        string
	Pool      *pool.Pool
	Engine    *avsync.Engine
	Clock     *clock.AudioClock
	Presenter *player.Presenter
	Registry  *accel.Registry
	Surfaces  *SurfaceBackend // nil unless simulation.accelerated

	cfg     config.SimulationConfig
	decoder *Decoder
	audio   *AudioDriver
	logger  logger.Logger

	restarts atomic.Int64
	running  atomic.Bool

	// resetCh hands pool resets to the decode loop while it runs.
	resetCh    chan resetRequest
	mu         sync.Mutex
	decodeDone chan struct{}

	positionGauge *metrics.Gauge
	refreshTicks  *metrics.Counter
}

// NewSession builds a session from cfg. budget may be nil.
func NewSession(cfg *config.Config, budget pool.Budget, log logger.Logger) (*Session, error) {
	if log == nil {
		log = logger.NewNullLogger()
	}

	id := uuid.New().String()
	log = logger.WithSession(log, id)

	registry := accel.NewRegistry(log)
	var surfaces *SurfaceBackend
	if cfg.Simulation.Accelerated {
		surfaces = NewSurfaceBackend()
		if err := registry.Register(surfaces); err != nil {
			return nil, err
		}
	}

	p := pool.New("video", cfg.Playback.Pool, registry, budget, log)

	engine, err := avsync.NewEngine(p, cfg.Simulation.Audio, cfg.Playback.Sync, log)
	if err != nil {
		return nil, err
	}

	audioClock := clock.New()
	var lookahead *player.Lookahead
	if cfg.Simulation.LookaheadFrames > 0 {
		lookahead = player.NewLookahead(p, cfg.Simulation.LookaheadFrames)
	}

	decoder, err := NewDecoder(p, cfg.Simulation, surfaces, log)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:        id,
		Pool:      p,
		Engine:    engine,
		Clock:     audioClock,
		Presenter: player.NewPresenter(p, engine, audioClock, lookahead, log),
		Registry:  registry,
		Surfaces:  surfaces,
		cfg:       cfg.Simulation,
		decoder:   decoder,
		resetCh:   make(chan resetRequest),
		logger:    log.WithField("component", "session"),
		positionGauge: metrics.NewGauge("framesync_session_position_frames",
			"Next picture index of the simulated decoder", nil),
		refreshTicks: metrics.NewCounter("framesync_session_refresh_ticks_total",
			"Display refresh ticks run by the simulator", nil),
	}
	if cfg.Simulation.Audio {
		s.audio = NewAudioDriver(audioClock, cfg.Simulation.AudioStartDelay, cfg.Simulation.Duration, log)
	}
	return s, nil
}

// Run plays the stream to the end or until ctx is done. A decoder that runs
// out of frames restarts from its current position after a pool reset, up to
// simulation.max_restarts times.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("session %s already running", s.ID)
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.logger.WithFields(map[string]interface{}{
		"frames":    s.decoder.Total(),
		"audio":     s.audio != nil,
		"lookahead": s.cfg.LookaheadFrames,
	}).Info("Playback session started")
	start := time.Now()

	decodeDone := make(chan struct{})
	s.mu.Lock()
	s.decodeDone = decodeDone
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(decodeDone)
		return s.decodeLoop(gctx)
	})
	if s.audio != nil {
		g.Go(func() error {
			return s.audio.Run(gctx)
		})
	}
	g.Go(func() error {
		// Display end stops the audio output too.
		defer cancel()
		return s.displayLoop(gctx)
	})

	err := g.Wait()
	s.Presenter.Teardown()

	frames, ticks := s.Presenter.Presented()
	fields := map[string]interface{}{
		"presented": frames,
		"ticks":     ticks,
		"decoded":   s.decoder.Decoded(),
		"restarts":  s.restarts.Load(),
		"elapsed":   time.Since(start).Round(time.Millisecond),
	}
	if err != nil {
		s.logger.WithFields(fields).WithError(err).Error("Playback session failed")
		return err
	}
	s.logger.WithFields(fields).Info("Playback session finished")
	return nil
}

type resetRequest struct {
	destroyAll bool
	done       chan struct{}
}

// Reset empties the pool without ending playback. A running decoder is
// stopped first, so no frame is recycled under it, and resumes from its
// current position afterwards.
func (s *Session) Reset(destroyAll bool) {
	s.mu.Lock()
	decodeDone := s.decodeDone
	s.mu.Unlock()

	if decodeDone != nil {
		req := resetRequest{destroyAll: destroyAll, done: make(chan struct{})}
		select {
		case s.resetCh <- req:
			<-req.done
			return
		case <-decodeDone:
		}
	}
	s.resetPool(destroyAll)
}

func (s *Session) resetPool(destroyAll bool) {
	if destroyAll {
		s.Presenter.Teardown()
	} else {
		s.Presenter.Restart()
	}
	s.logger.WithFields(map[string]interface{}{
		"destroy_all": destroyAll,
		"position":    s.decoder.Position(),
	}).Info("Frame pool reset")
}

// runDecoder runs the decoder until it returns or a reset arrives. The
// returned request is non-nil when the run was stopped for a reset.
func (s *Session) runDecoder(ctx context.Context) (*resetRequest, error) {
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- s.decoder.Run(runCtx) }()

	select {
	case err := <-errCh:
		return nil, err
	case req := <-s.resetCh:
		stop()
		return &req, <-errCh
	}
}

func (s *Session) decodeLoop(ctx context.Context) error {
	for {
		req, err := s.runDecoder(ctx)
		if req != nil {
			s.resetPool(req.destroyAll)
			close(req.done)
			if ctx.Err() != nil {
				return nil
			}
			if err == nil || IsShutdown(err) {
				if s.decoder.Done() {
					s.Presenter.SetDraining(true)
					return nil
				}
				continue
			}
		}

		switch {
		case err == nil:
			s.Presenter.SetDraining(true)
			return nil
		case ctx.Err() != nil:
			return nil
		case apperrors.IsType(err, apperrors.ErrorTypeResourceExhausted) && s.restarts.Load() < int64(s.cfg.MaxRestarts):
			n := s.restarts.Add(1)
			metrics.IncrementSessionRestarts()
			s.logger.WithFields(map[string]interface{}{
				"restart":  n,
				"position": s.decoder.Position(),
			}).WithError(err).Warn("Decoder starved, resetting pool")
			s.Presenter.Restart()
		default:
			return err
		}
	}
}

func (s *Session) displayLoop(ctx context.Context) error {
	interval := time.Duration(float64(time.Second) / s.cfg.RefreshRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.Presenter.Refresh(ctx, now)
			s.refreshTicks.Inc()
			s.positionGauge.Set(float64(s.decoder.Position()))

			if s.decoder.Done() && s.Pool.ReadyCount() == 0 {
				return nil
			}
		}
	}
}

// Restarts returns how many times the decoder was restarted.
func (s *Session) Restarts() int64 { return s.restarts.Load() }

// Decoder exposes the synthetic decoder for diagnostics.
func (s *Session) Decoder() *Decoder { return s.decoder }

// Running reports whether Run is in progress.
func (s *Session) Running() bool { return s.running.Load() }

// IsShutdown reports whether err only reflects ctx cancellation.
func IsShutdown(err error) bool {
	return errors.Is(err, context.Canceled) || apperrors.IsType(err, apperrors.ErrorTypeCancelled)
}
