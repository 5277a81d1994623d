package pool

import (
	apperrors "github.com/zsiec/framesync/internal/errors"
	"github.com/zsiec/framesync/internal/logger"
	"github.com/zsiec/framesync/internal/metrics"
	"github.com/zsiec/framesync/internal/playback/frame"
)

const (
	opCommitDecoded        = "commit_decoded"
	opAbortDecoding        = "abort_decoding"
	opReleaseFromDecoder   = "release_from_decoder"
	opReleaseFromDisplay   = "release_from_display"
	opReleaseFromDisplayed = "release_from_displayed"
)

// CommitDecoded moves a filled frame from Decoding to the back of Ready and
// marks it as referenced by the decoder.
func (p *Pool) CommitDecoded(f *frame.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.expectLocked(opCommitDecoded, f, StateDecoding)
	if !ok {
		return
	}
	p.moveLocked(s, StateReady)
	s.decoded = true
	p.publishLocked()
}

// AbortDecoding returns a frame the decoder could not fill. It goes straight
// back to Unused, or is destroyed when marked for discard.
func (p *Pool) AbortDecoding(f *frame.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.expectLocked(opAbortDecoding, f, StateDecoding)
	if !ok {
		return
	}
	s.decoded = false
	p.recycleLocked(s)
	p.publishLocked()
}

// ReleaseFromDecoder drops the decoder's reference to f. A frame still in
// Decoding is treated as aborted; otherwise f is recycled once the display
// side has also finished with it.
func (p *Pool) ReleaseFromDecoder(f *frame.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.lookupLocked(opReleaseFromDecoder, f)
	if !ok {
		return
	}
	s.decoded = false
	if s.state == StateDecoding {
		p.recycleLocked(s)
	}
	p.reconcileLocked()
	p.publishLocked()
}

// ReleaseFromDisplay returns a presented frame. With retain set it stays in
// Displayed for a second-stage consumer, which must later call
// ReleaseFromDisplayed. Otherwise it moves to Reference and is recycled as
// soon as the decoder no longer references it.
func (p *Pool) ReleaseFromDisplay(f *frame.Frame, retain bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.expectLocked(opReleaseFromDisplay, f, StateDisplaying)
	if !ok {
		return
	}
	if retain {
		p.moveLocked(s, StateDisplayed)
	} else {
		p.moveLocked(s, StateReference)
		p.reconcileLocked()
	}
	p.publishLocked()
}

// ReleaseFromDisplayed is called by the second-stage consumer when it no
// longer needs f.
func (p *Pool) ReleaseFromDisplayed(f *frame.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.expectLocked(opReleaseFromDisplayed, f, StateDisplayed)
	if !ok {
		return
	}
	p.moveLocked(s, StateReference)
	p.reconcileLocked()
	p.publishLocked()
}

// lookupLocked finds the slot owning f. Frames this pool does not own, or
// has already destroyed, are reported and ignored.
func (p *Pool) lookupLocked(op string, f *frame.Frame) (*slot, bool) {
	if f == nil {
		return nil, false
	}
	s, ok := p.slots[f.ID()]
	if !ok || s.f != f {
		p.inconsistent++
		metrics.IncrementInconsistentRelease(p.name, op)
		p.sampled.WarnWithCategory(logger.CategoryInconsistentRelease, "Release of a frame not owned by this pool", map[string]interface{}{
			"op":       op,
			"frame_id": f.ID(),
		})
		return nil, false
	}
	return s, true
}

// expectLocked looks f up and reports it when it is not in want. The frame
// is still handed back so the caller moves it to its destination.
func (p *Pool) expectLocked(op string, f *frame.Frame, want State) (*slot, bool) {
	s, ok := p.lookupLocked(op, f)
	if !ok {
		return nil, false
	}
	if s.state != want {
		p.inconsistent++
		metrics.IncrementInconsistentRelease(p.name, op)
		appErr := apperrors.NewInconsistentReleaseError(op, want.String(), s.state.String())
		p.sampled.WarnWithCategory(logger.CategoryInconsistentRelease, appErr.Message, map[string]interface{}{
			"op":       op,
			"frame_id": f.ID(),
			"expected": want.String(),
			"actual":   s.state.String(),
		})
	}
	return s, true
}
