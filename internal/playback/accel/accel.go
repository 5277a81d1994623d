// Package accel routes hardware surface notifications from the frame pool to
// the acceleration backends that own the surfaces.
package accel

import (
	"fmt"
	"sync"

	"github.com/zsiec/framesync/internal/logger"
	"github.com/zsiec/framesync/internal/playback/frame"
)

// Backend owns device surfaces attached to frames.
type Backend interface {
	Name() string

	// ReleaseAcceleratedBuffer drops the device surface held by f. It is
	// called whenever f returns to the free list or is destroyed.
	ReleaseAcceleratedBuffer(f *frame.Frame)

	// CustomSurfaceLayout returns the plane layout the backend needs for
	// the geometry carried by probe, or false when it has no opinion.
	CustomSurfaceLayout(probe *frame.Frame) (frame.Layout, bool)
}

// Registry is a Backend that fans out to every registered backend.
type Registry struct {
	mu       sync.RWMutex
	backends []Backend
	byName   map[string]Backend
	logger   logger.Logger
}

func NewRegistry(log logger.Logger) *Registry {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Registry{
		byName: make(map[string]Backend),
		logger: log.WithField("component", "accel"),
	}
}

// Register adds b. Names must be unique.
func (r *Registry) Register(b Backend) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := b.Name()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("acceleration backend %q already registered", name)
	}
	r.byName[name] = b
	r.backends = append(r.backends, b)

	r.logger.WithField("backend", name).Debug("Registered acceleration backend")
	return nil
}

// Backends returns the registered backends in registration order.
func (r *Registry) Backends() []Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Backend, len(r.backends))
	copy(out, r.backends)
	return out
}

func (r *Registry) Name() string { return "registry" }

// ReleaseAcceleratedBuffer hands f to the backend named by its handle and
// detaches the handle. Frames without a handle are ignored.
func (r *Registry) ReleaseAcceleratedBuffer(f *frame.Frame) {
	if f == nil || f.Accel == nil {
		return
	}

	name := f.Accel.BackendName()
	r.mu.RLock()
	b, ok := r.byName[name]
	r.mu.RUnlock()

	if !ok {
		r.logger.WithFields(map[string]interface{}{
			"backend":  name,
			"frame_id": f.ID(),
		}).Warn("Surface owned by unknown backend, dropping handle")
	} else {
		b.ReleaseAcceleratedBuffer(f)
	}
	f.Accel = nil
}

// CustomSurfaceLayout asks each backend in registration order and returns the
// first layout offered.
func (r *Registry) CustomSurfaceLayout(probe *frame.Frame) (frame.Layout, bool) {
	for _, b := range r.Backends() {
		if l, ok := b.CustomSurfaceLayout(probe); ok {
			return l, true
		}
	}
	return frame.Layout{}, false
}
