// Package player drives the display side of playback: one Refresh per
// display tick.
package player

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zsiec/framesync/internal/logger"
	"github.com/zsiec/framesync/internal/playback/avsync"
	"github.com/zsiec/framesync/internal/playback/clock"
	"github.com/zsiec/framesync/internal/playback/frame"
)

// DisplayPool is the part of the frame pool the presenter uses.
type DisplayPool interface {
	avsync.FrameSource
	ReleaseFromDisplayed(f *frame.Frame)
	Reset(destroyAll bool)
}

// Presenter owns the frame currently on screen.
type Presenter struct {
	pool      DisplayPool
	engine    *avsync.Engine
	clock     *clock.AudioClock
	lookahead *Lookahead
	logger    logger.Logger

	draining atomic.Bool

	mu        sync.Mutex
	current   *frame.Frame
	presented int64
	refreshes int64
}

// NewPresenter creates a presenter. lookahead may be nil.
func NewPresenter(pool DisplayPool, engine *avsync.Engine, audio *clock.AudioClock, lookahead *Lookahead, log logger.Logger) *Presenter {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Presenter{
		pool:      pool,
		engine:    engine,
		clock:     audio,
		lookahead: lookahead,
		logger:    log.WithField("component", "presenter"),
	}
}

// SetDraining tells the presenter the decoder has no more frames coming.
func (p *Presenter) SetDraining(draining bool) {
	p.draining.Store(draining)
}

// Refresh runs one display tick. It returns the newly presented frame, or nil
// when the previous picture stays on screen. The replaced frame is handed to
// the lookahead when there is one, otherwise released to the pool.
func (p *Presenter) Refresh(ctx context.Context, now time.Time) *frame.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshes++

	next := p.engine.SelectFrameForDisplay(ctx, p.clock.Sample(), now)
	if next == nil {
		// End of stream: forget the audio position so a following sequence
		// re-syncs from scratch.
		if p.draining.Load() && p.pool.ReadyCount() == 0 && p.clock.Sample().Valid {
			p.clock.Clear()
			p.logger.Debug("Decoder drained, audio clock cleared")
		}
		return nil
	}

	p.releaseCurrentLocked()
	p.current = next
	p.presented++
	return next
}

func (p *Presenter) releaseCurrentLocked() {
	if p.current == nil {
		return
	}
	if p.lookahead != nil {
		p.lookahead.Push(p.current)
	} else {
		p.pool.ReleaseFromDisplay(p.current, false)
	}
	p.current = nil
}

// Current returns the frame on screen.
func (p *Presenter) Current() *frame.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Presented returns the number of frames put on screen and the number of
// refresh ticks run.
func (p *Presenter) Presented() (frames, ticks int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.presented, p.refreshes
}

// Teardown releases every frame the display side holds and empties the pool.
func (p *Presenter) Teardown() {
	p.resetPool(true)
}

// Restart hands back the display-side frames and resets the pool while
// keeping allocated frames for reuse. The presenter stays usable.
func (p *Presenter) Restart() {
	p.resetPool(false)
}

func (p *Presenter) resetPool(destroyAll bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil {
		p.pool.ReleaseFromDisplay(p.current, false)
		p.current = nil
	}
	if p.lookahead != nil {
		p.lookahead.Flush()
	}
	p.pool.Reset(destroyAll)
}
