// Package pool hands decoded video frames between a decoder, a display
// consumer and secondary holders such as a deinterlacer.
//
// Every allocated frame is in exactly one of six states. A frame also carries
// a decoded mark from CommitDecoded until the decoder lets go of it with
// ReleaseFromDecoder; frames in Reference are only recycled once that mark is
// gone.
package pool

import (
	"slices"
	"sync"

	"github.com/zsiec/framesync/internal/config"
	apperrors "github.com/zsiec/framesync/internal/errors"
	"github.com/zsiec/framesync/internal/logger"
	"github.com/zsiec/framesync/internal/metrics"
	"github.com/zsiec/framesync/internal/playback/accel"
	"github.com/zsiec/framesync/internal/playback/frame"
	"github.com/zsiec/framesync/internal/playback/types"
)

// State is the membership set a frame currently belongs to.
type State int

const (
	StateUnused State = iota
	StateDecoding
	StateReady
	StateDisplaying
	StateDisplayed
	StateReference

	numStates
)

var stateNames = [numStates]string{"unused", "decoding", "ready", "displaying", "displayed", "reference"}

func (s State) String() string {
	if s < 0 || s >= numStates {
		return "invalid"
	}
	return stateNames[s]
}

// Budget accounts the CPU storage of allocated frames.
type Budget interface {
	RequestMemory(pool string, size int64) error
	ReleaseMemory(pool string, size int64)
}

type slot struct {
	f       *frame.Frame
	state   State
	decoded bool
	charged int64
}

// Pool owns a bounded set of frames. All membership changes happen under a
// single mutex; only the two acquire calls block, and never while holding it.
type Pool struct {
	name    string
	cfg     config.PoolConfig
	backend accel.Backend
	budget  Budget
	logger  logger.Logger
	sampled *logger.SampledLogger

	mu        sync.Mutex
	slots     map[uint64]*slot
	queues    [numStates][]uint64 // insertion ordered
	nextID    uint64
	allocated int
	capacity  int

	format     types.PixelFormat
	width      int
	height     int
	refs       int
	layout     *frame.Layout
	frameBytes int64

	generation uint64
	resetCh    chan struct{}

	inconsistent int64
	destroyed    int64
}

// New creates an empty pool. backend and budget may be nil.
func New(name string, cfg config.PoolConfig, backend accel.Backend, budget Budget, log logger.Logger) *Pool {
	if log == nil {
		log = logger.NewNullLogger()
	}
	if backend == nil {
		backend = accel.NewRegistry(log)
	}
	log = logger.WithPool(log, name)

	p := &Pool{
		name:     name,
		cfg:      cfg,
		backend:  backend,
		budget:   budget,
		logger:   log,
		sampled:  logger.NewPlaybackLogger(log),
		slots:    make(map[uint64]*slot),
		capacity: cfg.PoolCapacity(0),
		resetCh:  make(chan struct{}),
	}
	p.publishLocked()
	return p
}

// Name returns the pool name used in logs and metrics.
func (p *Pool) Name() string {
	return p.name
}

// SetFormat configures the geometry of frames handed to the decoder and the
// number of reference frames the decoder keeps. Invalid input is rejected
// with no state change.
//
// On a format or geometry change free frames are destroyed and frames held
// elsewhere are marked for destruction at their next release. When only the
// reference requirement shrinks, surplus frames are reclaimed starting with
// those furthest from active use.
func (p *Pool) SetFormat(format types.PixelFormat, width, height, referenceFrames int) error {
	if width < 1 || height < 1 {
		return apperrors.NewFormatInvalidError("frame dimensions must be positive").
			WithDetail("width", width).
			WithDetail("height", height)
	}
	if !format.Valid() {
		return apperrors.NewFormatInvalidError("unrecognized pixel format").
			WithDetail("format", format.String())
	}
	if referenceFrames < 0 {
		referenceFrames = 0
	}

	var override *frame.Layout
	if l, ok := p.backend.CustomSurfaceLayout(frame.Probe(format, width, height)); ok {
		override = &l
	}
	layout, err := frame.ComputeLayout(format, width, height, override)
	if err != nil {
		return apperrors.NewFormatInvalidError(err.Error())
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	geometryChanged := format != p.format || width != p.width || height != p.height
	capacity := p.cfg.PoolCapacity(referenceFrames)
	if !geometryChanged && capacity == p.capacity {
		p.refs = referenceFrames
		return nil
	}

	fields := map[string]interface{}{
		"format":       format.String(),
		"width":        width,
		"height":       height,
		"ref_frames":   referenceFrames,
		"capacity":     capacity,
		"old_capacity": p.capacity,
		"allocated":    p.allocated,
	}

	if geometryChanged {
		for _, id := range slices.Clone(p.queues[StateUnused]) {
			p.destroyLocked(p.slots[id], "format_change")
		}
		for st := StateDecoding; st < numStates; st++ {
			for _, id := range p.queues[st] {
				p.slots[id].f.SetDiscard()
			}
		}

		p.format = format
		p.width = width
		p.height = height
		p.layout = override
		p.frameBytes = 0
		if !layout.BackendOwned {
			p.frameBytes = int64(layout.Size)
		}
		p.sampled.InfoWithCategory(logger.CategoryFormatChange, "Frame format changed", fields)
	} else if capacity < p.capacity {
		p.shrinkLocked(capacity)
		p.sampled.InfoWithCategory(logger.CategoryFormatChange, "Reference frame requirement reduced", fields)
	}

	p.capacity = capacity
	p.refs = referenceFrames
	p.reconcileLocked()
	p.publishLocked()
	return nil
}

// shrinkLocked reclaims frames above capacity. Frames already marked for
// discard are not counted again. Decoding frames are never touched.
func (p *Pool) shrinkLocked(capacity int) {
	live := p.allocated
	for _, s := range p.slots {
		if s.f.Discard() {
			live--
		}
	}
	excess := live - capacity

	for _, st := range []State{StateReference, StateDisplayed, StateDisplaying, StateReady} {
		for _, id := range p.queues[st] {
			if excess <= 0 {
				return
			}
			if f := p.slots[id].f; !f.Discard() {
				f.SetDiscard()
				excess--
			}
		}
	}

	for _, id := range slices.Clone(p.queues[StateUnused]) {
		if excess <= 0 {
			return
		}
		p.destroyLocked(p.slots[id], "capacity_reduced")
		excess--
	}
}

// Reset moves every frame back to Unused and clears all decoded marks.
// Frames marked for discard are destroyed, as is every frame when destroyAll
// is set. Goroutines blocked in an acquire call return promptly.
func (p *Pool) Reset(destroyAll bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for st := StateDecoding; st < numStates; st++ {
		for _, id := range slices.Clone(p.queues[st]) {
			s := p.slots[id]
			s.decoded = false
			if destroyAll || s.f.Discard() {
				p.destroyLocked(s, "reset")
				continue
			}
			p.moveLocked(s, StateUnused)
			p.backend.ReleaseAcceleratedBuffer(s.f)
		}
	}

	for _, id := range slices.Clone(p.queues[StateUnused]) {
		s := p.slots[id]
		s.decoded = false
		if destroyAll || s.f.Discard() {
			p.destroyLocked(s, "reset")
		}
	}

	p.generation++
	close(p.resetCh)
	p.resetCh = make(chan struct{})

	p.logger.WithFields(map[string]interface{}{
		"destroy_all": destroyAll,
		"allocated":   p.allocated,
		"generation":  p.generation,
	}).Debug("Frame pool reset")
	p.publishLocked()
}

// Close destroys every frame.
func (p *Pool) Close() error {
	p.Reset(true)
	return nil
}

func (p *Pool) moveLocked(s *slot, to State) {
	q := p.queues[s.state]
	if i := slices.Index(q, s.f.ID()); i >= 0 {
		p.queues[s.state] = slices.Delete(q, i, i+1)
	}
	p.queues[to] = append(p.queues[to], s.f.ID())
	s.state = to
}

// recycleLocked returns a frame that nobody references to the free list, or
// destroys it when it is marked for discard.
func (p *Pool) recycleLocked(s *slot) {
	if s.f.Discard() {
		p.destroyLocked(s, "discard")
		return
	}
	p.moveLocked(s, StateUnused)
	p.backend.ReleaseAcceleratedBuffer(s.f)
}

func (p *Pool) destroyLocked(s *slot, reason string) {
	id := s.f.ID()
	q := p.queues[s.state]
	if i := slices.Index(q, id); i >= 0 {
		p.queues[s.state] = slices.Delete(q, i, i+1)
	}
	delete(p.slots, id)
	p.allocated--
	p.destroyed++

	p.backend.ReleaseAcceleratedBuffer(s.f)
	if s.charged > 0 && p.budget != nil {
		p.budget.ReleaseMemory(p.name, s.charged)
	}
	metrics.IncrementFramesDestroyed(p.name, reason)
}

// reconcileLocked recycles every Reference frame the decoder no longer
// tracks.
func (p *Pool) reconcileLocked() {
	for _, id := range slices.Clone(p.queues[StateReference]) {
		if s := p.slots[id]; !s.decoded {
			p.recycleLocked(s)
		}
	}
}

func (p *Pool) publishLocked() {
	for st := State(0); st < numStates; st++ {
		metrics.SetPoolFrames(p.name, st.String(), len(p.queues[st]))
	}
	metrics.SetPoolCapacity(p.name, p.capacity, p.allocated)
}
