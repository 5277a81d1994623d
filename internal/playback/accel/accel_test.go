package accel

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zsiec/framesync/internal/playback/frame"
	"github.com/zsiec/framesync/internal/playback/types"
)

type handle string

func (h handle) BackendName() string { return string(h) }

type fakeBackend struct {
	name   string
	layout *frame.Layout

	mu       sync.Mutex
	released []uint64
}

func (b *fakeBackend) Name() string { return b.name }

func (b *fakeBackend) ReleaseAcceleratedBuffer(f *frame.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.released = append(b.released, f.ID())
}

func (b *fakeBackend) CustomSurfaceLayout(probe *frame.Frame) (frame.Layout, bool) {
	if b.layout == nil || !probe.Format.Hardware() {
		return frame.Layout{}, false
	}
	return *b.layout, true
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(&fakeBackend{name: "vaapi"}))
	assert.Error(t, r.Register(&fakeBackend{name: "vaapi"}))
	assert.Len(t, r.Backends(), 1)
}

func TestRegistryRoutesRelease(t *testing.T) {
	r := NewRegistry(nil)
	a := &fakeBackend{name: "a"}
	b := &fakeBackend{name: "b"}
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))

	f := frame.New(7)
	f.Accel = handle("b")
	r.ReleaseAcceleratedBuffer(f)

	assert.Empty(t, a.released)
	assert.Equal(t, []uint64{7}, b.released)
	assert.Nil(t, f.Accel)

	// Second release is a no-op once the handle is gone
	r.ReleaseAcceleratedBuffer(f)
	assert.Len(t, b.released, 1)
}

func TestRegistryUnknownBackendDropsHandle(t *testing.T) {
	r := NewRegistry(nil)
	f := frame.New(1)
	f.Accel = handle("missing")

	r.ReleaseAcceleratedBuffer(f)
	assert.Nil(t, f.Accel)
	r.ReleaseAcceleratedBuffer(nil)
}

func TestRegistryLayoutOrder(t *testing.T) {
	first := &frame.Layout{Size: 1, BackendOwned: true}
	second := &frame.Layout{Size: 2, BackendOwned: true}

	r := NewRegistry(nil)
	require.NoError(t, r.Register(&fakeBackend{name: "none"}))
	require.NoError(t, r.Register(&fakeBackend{name: "first", layout: first}))
	require.NoError(t, r.Register(&fakeBackend{name: "second", layout: second}))

	l, ok := r.CustomSurfaceLayout(frame.Probe(types.PixelFormatVAAPI, 1920, 1080))
	require.True(t, ok)
	assert.Equal(t, 1, l.Size)

	_, ok = r.CustomSurfaceLayout(frame.Probe(types.PixelFormatYUV420P, 1920, 1080))
	assert.False(t, ok)
}
