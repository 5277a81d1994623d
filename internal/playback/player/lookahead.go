package player

import (
	"sync"

	"github.com/zsiec/framesync/internal/playback/frame"
)

// displayReleaser is the part of the pool a second-stage consumer needs.
type displayReleaser interface {
	ReleaseFromDisplay(f *frame.Frame, retain bool)
	ReleaseFromDisplayed(f *frame.Frame)
}

// Lookahead keeps the most recently presented frames alive in the Displayed
// state, the way a deinterlacer holds the previous field.
type Lookahead struct {
	pool  displayReleaser
	depth int

	mu     sync.Mutex
	frames []*frame.Frame // oldest first
}

// NewLookahead keeps up to depth frames. depth is at least 1.
func NewLookahead(pool displayReleaser, depth int) *Lookahead {
	if depth < 1 {
		depth = 1
	}
	return &Lookahead{pool: pool, depth: depth}
}

// Push takes over a presented frame and lets go of the oldest one beyond
// depth.
func (l *Lookahead) Push(f *frame.Frame) {
	l.pool.ReleaseFromDisplay(f, true)

	l.mu.Lock()
	l.frames = append(l.frames, f)
	var evicted []*frame.Frame
	if n := len(l.frames) - l.depth; n > 0 {
		evicted = append(evicted, l.frames[:n]...)
		l.frames = append(l.frames[:0], l.frames[n:]...)
	}
	l.mu.Unlock()

	for _, old := range evicted {
		l.pool.ReleaseFromDisplayed(old)
	}
}

// Previous returns the most recently pushed frame, or nil.
func (l *Lookahead) Previous() *frame.Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.frames) == 0 {
		return nil
	}
	return l.frames[len(l.frames)-1]
}

func (l *Lookahead) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.frames)
}

// Flush releases every held frame.
func (l *Lookahead) Flush() {
	l.mu.Lock()
	held := l.frames
	l.frames = nil
	l.mu.Unlock()

	for _, f := range held {
		l.pool.ReleaseFromDisplayed(f)
	}
}
