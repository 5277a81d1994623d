package pool

import (
	"github.com/zsiec/framesync/internal/playback/frame"
	"github.com/zsiec/framesync/internal/playback/types"
)

// Status is a best-effort occupancy snapshot for diagnostics.
type Status struct {
	Unused int `json:"unused"` // free frames plus unallocated capacity
	InUse  int `json:"in_use"` // decoding or displaying
	Held   int `json:"held"`   // displayed or reference
}

// BufferStatus reports pool occupancy without blocking. It returns false if
// the pool lock is held by someone else.
func (p *Pool) BufferStatus() (Status, bool) {
	if !p.mu.TryLock() {
		return Status{}, false
	}
	defer p.mu.Unlock()

	// allocated stays above capacity after a shrink until the marked frames
	// are released.
	unallocated := max(p.capacity-p.allocated, 0)

	return Status{
		Unused: len(p.queues[StateUnused]) + unallocated,
		InUse:  len(p.queues[StateDecoding]) + len(p.queues[StateDisplaying]),
		Held:   len(p.queues[StateDisplayed]) + len(p.queues[StateReference]),
	}, true
}

// NextTimestamp peeks at the timestamp of the oldest Ready frame. It returns
// false only when Ready is empty; the timestamp itself may be types.NoPTS.
func (p *Pool) NextTimestamp() (int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.queues[StateReady]) == 0 {
		return types.NoPTS, false
	}
	return p.slots[p.queues[StateReady][0]].f.PTS, true
}

// ReadyCount returns the number of frames waiting for display.
func (p *Pool) ReadyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queues[StateReady])
}

// Capacity returns the current frame reservation.
func (p *Pool) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity
}

// Snapshot is a full view of the pool for debugging.
type Snapshot struct {
	Name            string         `json:"name"`
	Format          string         `json:"format"`
	Width           int            `json:"width"`
	Height          int            `json:"height"`
	ReferenceFrames int            `json:"reference_frames"`
	Capacity        int            `json:"capacity"`
	Allocated       int            `json:"allocated"`
	States          map[string]int `json:"states"`
	Decoded         int            `json:"decoded"`
	Discarding      int            `json:"discarding"`
	Inconsistent    int64          `json:"inconsistent_releases"`
	Destroyed       int64          `json:"destroyed"`
	Generation      uint64         `json:"generation"`
}

// Snapshot returns per-state counts and counters. Unlike BufferStatus it
// waits for the lock.
func (p *Pool) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := Snapshot{
		Name:            p.name,
		Format:          p.format.String(),
		Width:           p.width,
		Height:          p.height,
		ReferenceFrames: p.refs,
		Capacity:        p.capacity,
		Allocated:       p.allocated,
		States:          make(map[string]int, numStates),
		Inconsistent:    p.inconsistent,
		Destroyed:       p.destroyed,
		Generation:      p.generation,
	}
	for st := State(0); st < numStates; st++ {
		snap.States[st.String()] = len(p.queues[st])
	}
	for _, s := range p.slots {
		if s.decoded {
			snap.Decoded++
		}
		if s.f.Discard() {
			snap.Discarding++
		}
	}
	return snap
}

// StateOf reports which set f is in, or false when the pool does not own it.
func (p *Pool) StateOf(f *frame.Frame) (State, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.slots[f.ID()]
	if !ok || s.f != f {
		return 0, false
	}
	return s.state, true
}
