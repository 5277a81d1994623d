package simulate

import (
	"sync"
	"sync/atomic"

	"github.com/zsiec/framesync/internal/playback/frame"
	"github.com/zsiec/framesync/internal/playback/types"
)

// SurfaceBackendName is the backend name carried by simulated surfaces.
const SurfaceBackendName = "simsurface"

// surface is a pretend device surface.
type surface struct {
	id uint64
}

func (s *surface) BackendName() string { return SurfaceBackendName }

// SurfaceBackend stands in for a hardware decoder: frames carry an opaque
// surface handle and no CPU pixel storage.
type SurfaceBackend struct {
	nextID   atomic.Uint64
	released atomic.Int64

	mu   sync.Mutex
	live map[uint64]struct{}
}

func NewSurfaceBackend() *SurfaceBackend {
	return &SurfaceBackend{live: make(map[uint64]struct{})}
}

func (b *SurfaceBackend) Name() string { return SurfaceBackendName }

// Attach gives f a fresh surface.
func (b *SurfaceBackend) Attach(f *frame.Frame) {
	s := &surface{id: b.nextID.Add(1)}
	b.mu.Lock()
	b.live[s.id] = struct{}{}
	b.mu.Unlock()
	f.Accel = s
}

func (b *SurfaceBackend) ReleaseAcceleratedBuffer(f *frame.Frame) {
	s, ok := f.Accel.(*surface)
	if !ok {
		return
	}
	b.mu.Lock()
	if _, live := b.live[s.id]; live {
		delete(b.live, s.id)
		b.released.Add(1)
	}
	b.mu.Unlock()
	f.Accel = nil
}

// CustomSurfaceLayout keeps the CPU pitches for reference but marks the
// storage as living on the device. Hardware formats are laid out as NV12.
func (b *SurfaceBackend) CustomSurfaceLayout(probe *frame.Frame) (frame.Layout, bool) {
	format := probe.Format
	if format.Hardware() {
		format = types.PixelFormatNV12
	}
	l, err := frame.ComputeLayout(format, probe.Width, probe.Height, nil)
	if err != nil {
		return frame.Layout{}, false
	}
	l.BackendOwned = true
	return l, true
}

// Live returns the number of surfaces attached and not yet released.
func (b *SurfaceBackend) Live() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.live)
}

// Released returns the number of surfaces released so far.
func (b *SurfaceBackend) Released() int64 {
	return b.released.Load()
}
