package pool

import (
	"context"
	"time"

	apperrors "github.com/zsiec/framesync/internal/errors"
	"github.com/zsiec/framesync/internal/logger"
	"github.com/zsiec/framesync/internal/metrics"
	"github.com/zsiec/framesync/internal/playback/frame"
	"github.com/zsiec/framesync/internal/playback/types"
)

// AcquireForDecoding returns a frame for the decoder to fill. A new frame is
// allocated while below capacity, otherwise the oldest free frame is reused.
// When neither is possible it polls every DecodeRetry for up to DecodeWait
// and then fails with a resource exhaustion error. A cancelled ctx or a
// Reset during the wait ends it early with a cancellation error.
func (p *Pool) AcquireForDecoding(ctx context.Context) (*frame.Frame, error) {
	start := time.Now()
	deadline := start.Add(p.cfg.DecodeWait)

	var (
		gen       uint64
		wake      <-chan struct{}
		budgetErr error
		timer     *time.Timer
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for attempt := 0; ; attempt++ {
		p.mu.Lock()
		if attempt == 0 {
			gen, wake = p.generation, p.resetCh
		} else if p.generation != gen {
			p.mu.Unlock()
			return nil, apperrors.WrapCancelled(nil, "frame pool reset while waiting for a decode frame")
		}
		if p.format == types.PixelFormatNone {
			p.mu.Unlock()
			return nil, apperrors.NewFormatInvalidError("no frame format configured")
		}

		s, err := p.takeForDecodingLocked()
		if err != nil {
			budgetErr = err
		}
		if s != nil {
			p.publishLocked()
			p.mu.Unlock()
			metrics.RecordDecodeWait(p.name, time.Since(start).Seconds())
			return s.f, nil
		}
		p.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			waited := time.Since(start)
			metrics.RecordDecodeWait(p.name, waited.Seconds())
			metrics.IncrementDecodeExhausted(p.name)

			appErr := apperrors.NewResourceExhaustedError("no frame available for decoding").
				WithDetail("pool", p.name).
				WithDetail("waited_ms", waited.Milliseconds())
			if budgetErr != nil {
				appErr = appErr.WithDetail("memory", budgetErr.Error())
			}
			p.logger.WithFields(map[string]interface{}{
				"waited_ms": waited.Milliseconds(),
				"attempts":  attempt + 1,
			}).Error("Timed out waiting for a decode frame")
			return nil, appErr
		}

		if attempt > 0 {
			p.sampled.DebugWithCategory(logger.CategoryDecodeWait, "Waiting for a free decode frame", map[string]interface{}{
				"attempt":   attempt,
				"waited_ms": time.Since(start).Milliseconds(),
			})
		}

		delay := p.cfg.DecodeRetry
		if delay > remaining {
			delay = remaining
		}
		if timer == nil {
			timer = time.NewTimer(delay)
		} else {
			timer.Reset(delay)
		}

		select {
		case <-ctx.Done():
			return nil, apperrors.WrapCancelled(ctx.Err(), "decode frame wait cancelled")
		case <-wake:
			return nil, apperrors.WrapCancelled(nil, "frame pool reset while waiting for a decode frame")
		case <-timer.C:
		}
	}
}

// takeForDecodingLocked returns a slot now in Decoding, or nil. A non-nil
// error reports a budget refusal that prevented allocation.
func (p *Pool) takeForDecodingLocked() (*slot, error) {
	var budgetErr error
	if p.allocated < p.capacity {
		s, err := p.allocateLocked()
		if err == nil {
			return s, nil
		}
		budgetErr = err
	}

	if len(p.queues[StateUnused]) > 0 {
		s := p.slots[p.queues[StateUnused][0]]
		s.f.ResetMetadata()
		p.moveLocked(s, StateDecoding)
		return s, budgetErr
	}
	return nil, budgetErr
}

func (p *Pool) allocateLocked() (*slot, error) {
	if p.frameBytes > 0 && p.budget != nil {
		if err := p.budget.RequestMemory(p.name, p.frameBytes); err != nil {
			return nil, err
		}
	}

	p.nextID++
	f := frame.New(p.nextID)
	if err := f.Initialise(p.format, p.width, p.height, p.layout); err != nil {
		if p.frameBytes > 0 && p.budget != nil {
			p.budget.ReleaseMemory(p.name, p.frameBytes)
		}
		return nil, err
	}

	s := &slot{f: f, state: StateDecoding}
	if p.budget != nil {
		s.charged = p.frameBytes
	}
	p.slots[f.ID()] = s
	p.queues[StateDecoding] = append(p.queues[StateDecoding], f.ID())
	p.allocated++
	return s, nil
}

// AcquireForDisplay pops the oldest Ready frame into Displaying. With an
// empty Ready queue it polls every DisplayRetry for up to maxWait, capped at
// DisplayWaitMax. A nil frame means nothing is ready; it is not an error.
func (p *Pool) AcquireForDisplay(ctx context.Context, maxWait time.Duration) *frame.Frame {
	if maxWait > p.cfg.DisplayWaitMax {
		maxWait = p.cfg.DisplayWaitMax
	}
	deadline := time.Now().Add(maxWait)

	var (
		gen   uint64
		wake  <-chan struct{}
		timer *time.Timer
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for attempt := 0; ; attempt++ {
		p.mu.Lock()
		if attempt == 0 {
			gen, wake = p.generation, p.resetCh
		} else if p.generation != gen {
			p.mu.Unlock()
			return nil
		}
		if len(p.queues[StateReady]) > 0 {
			s := p.slots[p.queues[StateReady][0]]
			p.moveLocked(s, StateDisplaying)
			p.publishLocked()
			p.mu.Unlock()
			return s.f
		}
		p.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			if attempt > 0 {
				p.sampled.DebugWithCategory(logger.CategoryDisplayWait, "No frame ready for display", map[string]interface{}{
					"max_wait_ms": maxWait.Milliseconds(),
				})
			}
			return nil
		}

		delay := p.cfg.DisplayRetry
		if delay > remaining {
			delay = remaining
		}
		if timer == nil {
			timer = time.NewTimer(delay)
		} else {
			timer.Reset(delay)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-wake:
			return nil
		case <-timer.C:
		}
	}
}
