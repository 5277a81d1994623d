package pool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zsiec/framesync/internal/config"
	apperrors "github.com/zsiec/framesync/internal/errors"
	"github.com/zsiec/framesync/internal/playback/frame"
	"github.com/zsiec/framesync/internal/playback/memory"
	"github.com/zsiec/framesync/internal/playback/types"
)

func testConfig() config.PoolConfig {
	return config.PoolConfig{
		DisplayFrames:   2,
		MinDecodeFrames: 2,
		DecodeWait:      50 * time.Millisecond,
		DecodeRetry:     5 * time.Millisecond,
		DisplayWaitMax:  100 * time.Millisecond,
		DisplayRetry:    2 * time.Millisecond,
	}
}

type surface string

func (s surface) BackendName() string { return string(s) }

type recordingBackend struct {
	layout *frame.Layout

	mu       sync.Mutex
	released []uint64
}

func (b *recordingBackend) Name() string { return "recording" }

func (b *recordingBackend) ReleaseAcceleratedBuffer(f *frame.Frame) {
	if f.Accel == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.released = append(b.released, f.ID())
	f.Accel = nil
}

func (b *recordingBackend) CustomSurfaceLayout(probe *frame.Frame) (frame.Layout, bool) {
	if b.layout == nil || !probe.Format.Hardware() {
		return frame.Layout{}, false
	}
	return *b.layout, true
}

func (b *recordingBackend) releasedIDs() []uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]uint64(nil), b.released...)
}

func newTestPool(t *testing.T, cfg config.PoolConfig) *Pool {
	t.Helper()
	p := New(t.Name(), cfg, nil, nil, nil)
	require.NoError(t, p.SetFormat(types.PixelFormatYUV420P, 64, 64, 2))
	return p
}

func acquire(t *testing.T, p *Pool) *frame.Frame {
	t.Helper()
	f, err := p.AcquireForDecoding(context.Background())
	require.NoError(t, err)
	require.NotNil(t, f)
	return f
}

// decode fills a frame and commits it to Ready.
func decode(t *testing.T, p *Pool, pts int64) *frame.Frame {
	t.Helper()
	f := acquire(t, p)
	f.PTS = pts
	p.CommitDecoded(f)
	return f
}

func assertState(t *testing.T, p *Pool, f *frame.Frame, want State) {
	t.Helper()
	got, ok := p.StateOf(f)
	require.True(t, ok, "frame %d not owned by pool", f.ID())
	assert.Equal(t, want, got, "frame %d", f.ID())
}

func assertPartition(t *testing.T, p *Pool) {
	t.Helper()
	snap := p.Snapshot()
	total := 0
	for _, n := range snap.States {
		total += n
	}
	assert.Equal(t, snap.Allocated, total, "every allocated frame is in exactly one set")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unused", StateUnused.String())
	assert.Equal(t, "reference", StateReference.String())
	assert.Equal(t, "invalid", State(42).String())
}

func TestAcquireForDecodingExhaustsCapacity(t *testing.T) {
	p := New(t.Name(), testConfig(), nil, nil, nil)
	require.NoError(t, p.SetFormat(types.PixelFormatYUV420P, 1920, 1080, 2))
	require.Equal(t, 4, p.Capacity())

	seen := make(map[*frame.Frame]bool)
	for i := 0; i < 4; i++ {
		f := acquire(t, p)
		assert.False(t, seen[f], "frames must be distinct")
		seen[f] = true
		assert.Equal(t, 1920, f.Width)
		assert.Equal(t, 1088, f.PaddedHeight)
	}

	snap := p.Snapshot()
	assert.Equal(t, 4, snap.Allocated)
	assert.Equal(t, 4, snap.States["decoding"])

	start := time.Now()
	f, err := p.AcquireForDecoding(context.Background())
	assert.Nil(t, f)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeResourceExhausted))
	assert.GreaterOrEqual(t, time.Since(start), testConfig().DecodeWait)
	assert.Equal(t, 4, p.Snapshot().Allocated)
}

func TestAcquireForDecodingWithoutFormat(t *testing.T) {
	p := New(t.Name(), testConfig(), nil, nil, nil)

	_, err := p.AcquireForDecoding(context.Background())
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeFormatInvalid))
}

func TestAcquireForDecodingReusesUnused(t *testing.T) {
	p := newTestPool(t, testConfig())

	frames := make([]*frame.Frame, 4)
	for i := range frames {
		frames[i] = acquire(t, p)
	}
	frames[2].PTS = 99
	frames[2].Interlaced = true
	p.AbortDecoding(frames[2])
	assertState(t, p, frames[2], StateUnused)

	f := acquire(t, p)
	assert.Same(t, frames[2], f)
	assert.Equal(t, types.NoPTS, f.PTS, "recycled frames start with clean metadata")
	assert.False(t, f.Interlaced)
	assert.Equal(t, 4, p.Snapshot().Allocated)
}

func TestAcquireForDecodingWaitsForRelease(t *testing.T) {
	cfg := testConfig()
	cfg.DecodeWait = 2 * time.Second
	p := newTestPool(t, cfg)

	frames := make([]*frame.Frame, 4)
	for i := range frames {
		frames[i] = acquire(t, p)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		p.AbortDecoding(frames[1])
	}()

	f, err := p.AcquireForDecoding(context.Background())
	require.NoError(t, err)
	assert.Same(t, frames[1], f)
}

func TestAcquireForDecodingCancelledByContext(t *testing.T) {
	cfg := testConfig()
	cfg.DecodeWait = 5 * time.Second
	p := newTestPool(t, cfg)
	for i := 0; i < 4; i++ {
		acquire(t, p)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.AcquireForDecoding(ctx)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeCancelled))
	assert.Less(t, time.Since(start), time.Second)
}

func TestResetWakesDecodeWaiter(t *testing.T) {
	cfg := testConfig()
	cfg.DecodeWait = 5 * time.Second
	p := newTestPool(t, cfg)
	for i := 0; i < 4; i++ {
		acquire(t, p)
	}

	done := make(chan error, 1)
	go func() {
		_, err := p.AcquireForDecoding(context.Background())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	p.Reset(false)

	select {
	case err := <-done:
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeCancelled))
	case <-time.After(time.Second):
		t.Fatal("waiter did not observe the reset")
	}

	snap := p.Snapshot()
	assert.Equal(t, 4, snap.States["unused"])
	assert.Equal(t, uint64(1), snap.Generation)
}

func TestCommitAndDisplayFIFO(t *testing.T) {
	p := newTestPool(t, testConfig())

	f1 := decode(t, p, 100)
	f2 := decode(t, p, 133)

	got := p.AcquireForDisplay(context.Background(), 0)
	require.NotNil(t, got)
	assert.Same(t, f1, got)
	assertState(t, p, f1, StateDisplaying)

	p.ReleaseFromDisplay(f1, false)
	assertState(t, p, f1, StateReference)

	status, ok := p.BufferStatus()
	require.True(t, ok)
	assert.Equal(t, Status{Unused: 2, InUse: 0, Held: 1}, status)

	got = p.AcquireForDisplay(context.Background(), 0)
	assert.Same(t, f2, got)
	assertPartition(t, p)
}

func TestNextTimestamp(t *testing.T) {
	p := newTestPool(t, testConfig())

	ts, ok := p.NextTimestamp()
	assert.False(t, ok)
	assert.Equal(t, types.NoPTS, ts)

	decode(t, p, 40)
	decode(t, p, 80)
	ts, ok = p.NextTimestamp()
	assert.True(t, ok)
	assert.Equal(t, int64(40), ts)
	assert.Equal(t, 2, p.ReadyCount(), "peeking does not consume")

	p.AcquireForDisplay(context.Background(), 0)
	ts, _ = p.NextTimestamp()
	assert.Equal(t, int64(80), ts)
}

func TestReleaseFromDecoderRecycles(t *testing.T) {
	p := newTestPool(t, testConfig())

	// Display finishes first; decoder releases later
	f1 := decode(t, p, 1)
	require.Same(t, f1, p.AcquireForDisplay(context.Background(), 0))
	p.ReleaseFromDisplay(f1, false)
	assertState(t, p, f1, StateReference)
	p.ReleaseFromDecoder(f1)
	assertState(t, p, f1, StateUnused)

	// Decoder releases first; display recycles directly
	f2 := decode(t, p, 2)
	p.ReleaseFromDecoder(f2)
	assertState(t, p, f2, StateReady)
	require.Same(t, f2, p.AcquireForDisplay(context.Background(), 0))
	p.ReleaseFromDisplay(f2, false)
	assertState(t, p, f2, StateUnused)

	// Release from decoder while still decoding aborts
	f3 := acquire(t, p)
	p.ReleaseFromDecoder(f3)
	assertState(t, p, f3, StateUnused)

	assert.Zero(t, p.Snapshot().Inconsistent)
	assertPartition(t, p)
}

func TestRetainedDisplayPath(t *testing.T) {
	p := newTestPool(t, testConfig())

	f := decode(t, p, 10)
	p.ReleaseFromDecoder(f)
	require.Same(t, f, p.AcquireForDisplay(context.Background(), 0))

	p.ReleaseFromDisplay(f, true)
	assertState(t, p, f, StateDisplayed)

	status, _ := p.BufferStatus()
	assert.Equal(t, 1, status.Held)

	p.ReleaseFromDisplayed(f)
	assertState(t, p, f, StateUnused)
}

func TestAbortDecodingDestroysDiscarded(t *testing.T) {
	p := newTestPool(t, testConfig())

	f := acquire(t, p)
	require.NoError(t, p.SetFormat(types.PixelFormatYUV420P, 128, 64, 2))
	assert.True(t, f.Discard())

	p.AbortDecoding(f)
	_, owned := p.StateOf(f)
	assert.False(t, owned)
	assert.Zero(t, p.Snapshot().Allocated)
}

func TestFormatChangeDiscardsLazily(t *testing.T) {
	p := newTestPool(t, testConfig())

	ref := decode(t, p, 1)
	require.Same(t, ref, p.AcquireForDisplay(context.Background(), 0))
	p.ReleaseFromDisplay(ref, false)
	ready := decode(t, p, 2)
	spare := acquire(t, p)
	p.AbortDecoding(spare)
	require.Equal(t, 3, p.Snapshot().Allocated)

	require.NoError(t, p.SetFormat(types.PixelFormatYUV420P, 320, 240, 2))

	_, owned := p.StateOf(spare)
	assert.False(t, owned, "unused frames are destroyed immediately")
	assertState(t, p, ref, StateReference)
	assertState(t, p, ready, StateReady)
	assert.True(t, ref.Discard())
	assert.True(t, ready.Discard())

	snap := p.Snapshot()
	assert.Equal(t, 2, snap.Allocated)
	assert.Equal(t, 2, snap.Discarding)

	p.ReleaseFromDecoder(ref)
	_, owned = p.StateOf(ref)
	assert.False(t, owned, "discarded frame destroyed on release")

	f := acquire(t, p)
	assert.Equal(t, 320, f.Width)
	assert.False(t, f.Discard())

	// The old-geometry frame still reaches the display before going away
	require.Same(t, ready, p.AcquireForDisplay(context.Background(), 0))
	p.ReleaseFromDecoder(ready)
	p.ReleaseFromDisplay(ready, false)
	_, owned = p.StateOf(ready)
	assert.False(t, owned)
	assertPartition(t, p)
}

func TestSetFormatUnchangedIsNoop(t *testing.T) {
	p := newTestPool(t, testConfig())
	f := acquire(t, p)

	require.NoError(t, p.SetFormat(types.PixelFormatYUV420P, 64, 64, 1))
	assert.False(t, f.Discard(), "reference count below the floor changes nothing")
	assert.Equal(t, 4, p.Capacity())
}

func TestSetFormatRejectsInvalid(t *testing.T) {
	p := newTestPool(t, testConfig())
	before := p.Snapshot()

	tests := []struct {
		name   string
		format types.PixelFormat
		w, h   int
	}{
		{"zero width", types.PixelFormatYUV420P, 0, 64},
		{"negative height", types.PixelFormatYUV420P, 64, -1},
		{"none format", types.PixelFormatNone, 64, 64},
		{"unknown format", types.PixelFormat(999), 64, 64},
		{"hardware without backend layout", types.PixelFormatVAAPI, 64, 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.SetFormat(tt.format, tt.w, tt.h, 2)
			assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeFormatInvalid))
		})
	}

	after := p.Snapshot()
	assert.Equal(t, before.Format, after.Format)
	assert.Equal(t, before.Width, after.Width)
	assert.Equal(t, before.Capacity, after.Capacity)
}

func TestReferenceShrinkPrefersReference(t *testing.T) {
	p := newTestPool(t, testConfig())
	require.NoError(t, p.SetFormat(types.PixelFormatYUV420P, 64, 64, 4))
	require.Equal(t, 6, p.Capacity())

	refA := decode(t, p, 1)
	refB := decode(t, p, 2)
	displayed := decode(t, p, 3)
	for _, f := range []*frame.Frame{refA, refB} {
		require.Same(t, f, p.AcquireForDisplay(context.Background(), 0))
		p.ReleaseFromDisplay(f, false)
	}
	require.Same(t, displayed, p.AcquireForDisplay(context.Background(), 0))
	p.ReleaseFromDisplay(displayed, true)
	ready := decode(t, p, 4)
	u1 := acquire(t, p)
	u2 := acquire(t, p)
	p.AbortDecoding(u1)
	p.AbortDecoding(u2)
	require.Equal(t, 6, p.Snapshot().Allocated)

	require.NoError(t, p.SetFormat(types.PixelFormatYUV420P, 64, 64, 2))
	assert.Equal(t, 4, p.Capacity())

	assert.True(t, refA.Discard())
	assert.True(t, refB.Discard())
	assert.False(t, displayed.Discard())
	assert.False(t, ready.Discard())
	assertState(t, p, u1, StateUnused)
	assertState(t, p, u2, StateUnused)

	p.ReleaseFromDecoder(refA)
	p.ReleaseFromDecoder(refB)
	assert.Equal(t, 4, p.Snapshot().Allocated)
	assertPartition(t, p)
}

func TestReferenceShrinkFallsThroughToUnused(t *testing.T) {
	p := newTestPool(t, testConfig())
	require.NoError(t, p.SetFormat(types.PixelFormatYUV420P, 64, 64, 5))
	require.Equal(t, 7, p.Capacity())

	ref := decode(t, p, 1)
	require.Same(t, ref, p.AcquireForDisplay(context.Background(), 0))
	p.ReleaseFromDisplay(ref, false)
	displayed := decode(t, p, 2)
	require.Same(t, displayed, p.AcquireForDisplay(context.Background(), 0))
	p.ReleaseFromDisplay(displayed, true)

	var spare []*frame.Frame
	for i := 0; i < 5; i++ {
		spare = append(spare, acquire(t, p))
	}
	for _, f := range spare {
		p.AbortDecoding(f)
	}
	require.Equal(t, 7, p.Snapshot().Allocated)

	require.NoError(t, p.SetFormat(types.PixelFormatYUV420P, 64, 64, 2))

	assert.True(t, ref.Discard())
	assert.True(t, displayed.Discard())
	snap := p.Snapshot()
	assert.Equal(t, 6, snap.Allocated)
	assert.Equal(t, 4, snap.States["unused"])
	_, owned := p.StateOf(spare[0])
	assert.False(t, owned, "oldest free frame reclaimed first")
}

func TestAcquireForDisplayBounds(t *testing.T) {
	p := newTestPool(t, testConfig())

	start := time.Now()
	assert.Nil(t, p.AcquireForDisplay(context.Background(), 0))
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	start = time.Now()
	assert.Nil(t, p.AcquireForDisplay(context.Background(), 10*time.Second))
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, testConfig().DisplayWaitMax)
	assert.Less(t, elapsed, time.Second, "wait is capped by DisplayWaitMax")
}

func TestAcquireForDisplayWaitsForCommit(t *testing.T) {
	p := newTestPool(t, testConfig())
	f := acquire(t, p)

	go func() {
		time.Sleep(10 * time.Millisecond)
		p.CommitDecoded(f)
	}()

	got := p.AcquireForDisplay(context.Background(), 100*time.Millisecond)
	assert.Same(t, f, got)
}

func TestResetWakesDisplayWaiter(t *testing.T) {
	cfg := testConfig()
	cfg.DisplayWaitMax = 5 * time.Second
	p := newTestPool(t, cfg)

	done := make(chan *frame.Frame, 1)
	go func() {
		done <- p.AcquireForDisplay(context.Background(), 5*time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	p.Reset(false)

	select {
	case f := <-done:
		assert.Nil(t, f)
	case <-time.After(time.Second):
		t.Fatal("display waiter did not observe the reset")
	}
}

func TestBufferStatusDoesNotBlock(t *testing.T) {
	p := newTestPool(t, testConfig())

	p.mu.Lock()
	_, ok := p.BufferStatus()
	p.mu.Unlock()
	assert.False(t, ok)

	status, ok := p.BufferStatus()
	assert.True(t, ok)
	assert.Equal(t, Status{Unused: 4}, status)
}

func TestBufferStatusAfterShrink(t *testing.T) {
	p := newTestPool(t, testConfig())
	require.NoError(t, p.SetFormat(types.PixelFormatYUV420P, 64, 64, 6))
	require.Equal(t, 8, p.Capacity())

	var frames []*frame.Frame
	for i := 0; i < 8; i++ {
		frames = append(frames, decode(t, p, int64(i)))
	}

	require.NoError(t, p.SetFormat(types.PixelFormatYUV420P, 64, 64, 2))
	require.Equal(t, 4, p.Capacity())
	snap := p.Snapshot()
	require.Equal(t, 8, snap.Allocated)
	require.Equal(t, 4, snap.Discarding)

	status, ok := p.BufferStatus()
	require.True(t, ok)
	assert.Equal(t, Status{}, status, "frames above capacity never count as free")

	// The oldest Ready frames were marked; releasing them brings the pool
	// back to capacity.
	for _, f := range frames[:4] {
		require.True(t, f.Discard())
		require.Same(t, f, p.AcquireForDisplay(context.Background(), 0))
		p.ReleaseFromDisplay(f, false)
		p.ReleaseFromDecoder(f)
	}
	assert.Equal(t, 4, p.Snapshot().Allocated)

	status, ok = p.BufferStatus()
	require.True(t, ok)
	assert.Equal(t, Status{}, status)

	f := frames[4]
	require.Same(t, f, p.AcquireForDisplay(context.Background(), 0))
	p.ReleaseFromDisplay(f, false)
	status, _ = p.BufferStatus()
	assert.Equal(t, Status{Held: 1}, status)

	p.ReleaseFromDecoder(f)
	status, _ = p.BufferStatus()
	assert.Equal(t, Status{Unused: 1}, status)
	assertPartition(t, p)
}

func TestResetDestroyAll(t *testing.T) {
	p := newTestPool(t, testConfig())
	decode(t, p, 1)
	acquire(t, p)

	p.Reset(false)
	snap := p.Snapshot()
	assert.Equal(t, 2, snap.States["unused"])
	assert.Zero(t, snap.Decoded)

	require.NoError(t, p.Close())
	snap = p.Snapshot()
	assert.Zero(t, snap.Allocated)
	assert.Equal(t, int64(2), snap.Destroyed)
}

func TestInconsistentReleaseStillMoves(t *testing.T) {
	p := newTestPool(t, testConfig())

	f := decode(t, p, 1)
	// Not in Displaying, but the release is honoured
	p.ReleaseFromDisplay(f, false)
	assertState(t, p, f, StateReference)
	assert.Equal(t, int64(1), p.Snapshot().Inconsistent)

	foreign := frame.New(12345)
	p.ReleaseFromDisplayed(foreign)
	p.CommitDecoded(nil)
	snap := p.Snapshot()
	assert.Equal(t, int64(2), snap.Inconsistent)
	assert.Equal(t, 1, snap.Allocated)

	// A frame from another pool with a colliding id is not adopted
	other := newTestPool(t, testConfig())
	impostor := acquire(t, other)
	require.Equal(t, f.ID(), impostor.ID())
	p.AbortDecoding(impostor)
	assertState(t, p, f, StateReference)
	assertPartition(t, p)
}

func TestAcceleratedBufferRelease(t *testing.T) {
	backend := &recordingBackend{}
	p := New(t.Name(), testConfig(), backend, nil, nil)
	require.NoError(t, p.SetFormat(types.PixelFormatYUV420P, 64, 64, 2))

	f1 := acquire(t, p)
	f1.Accel = surface("recording")
	p.AbortDecoding(f1)
	assert.Equal(t, []uint64{f1.ID()}, backend.releasedIDs())
	assert.Nil(t, f1.Accel)

	f2 := acquire(t, p)
	f2.Accel = surface("recording")
	p.CommitDecoded(f2)
	require.Same(t, f2, p.AcquireForDisplay(context.Background(), 0))
	p.ReleaseFromDisplay(f2, false)
	assert.Len(t, backend.releasedIDs(), 1, "still referenced by the decoder")

	p.ReleaseFromDecoder(f2)
	assert.Len(t, backend.releasedIDs(), 2)

	f3 := acquire(t, p)
	f3.Accel = surface("recording")
	p.Reset(true)
	assert.Len(t, backend.releasedIDs(), 3)
}

func TestBackendOwnedSurfaces(t *testing.T) {
	backend := &recordingBackend{
		layout: &frame.Layout{Pitches: [frame.MaxPlanes]int{2048, 2048}, BackendOwned: true},
	}
	p := New(t.Name(), testConfig(), backend, nil, nil)
	require.NoError(t, p.SetFormat(types.PixelFormatVAAPI, 1920, 1080, 2))

	f := acquire(t, p)
	assert.Nil(t, f.Buffer)
	assert.Equal(t, 2048, f.Pitches[0])
}

func TestMemoryBudget(t *testing.T) {
	frameBytes := int64(64 * 64 * 3 / 2)
	budget := memory.NewController(2*frameBytes, 2*frameBytes)
	p := New(t.Name(), testConfig(), nil, budget, nil)
	require.NoError(t, p.SetFormat(types.PixelFormatYUV420P, 64, 64, 2))

	f1 := acquire(t, p)
	acquire(t, p)
	assert.Equal(t, 2*frameBytes, budget.GetPoolUsage(t.Name()))

	_, err := p.AcquireForDecoding(context.Background())
	require.Error(t, err)
	appErr, ok := apperrors.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrorTypeResourceExhausted, appErr.Type)
	assert.Contains(t, appErr.Details, "memory")

	p.AbortDecoding(f1)
	assert.Same(t, f1, acquire(t, p), "free frames are reused without new charges")

	p.Reset(true)
	assert.Zero(t, budget.GetPoolUsage(t.Name()))
}

func TestConcurrentDecodeAndDisplay(t *testing.T) {
	cfg := testConfig()
	cfg.DisplayFrames = 3
	cfg.DecodeWait = 2 * time.Second
	p := newTestPool(t, cfg)

	const total = 200
	const refs = 2
	ctx := context.Background()
	stop := make(chan struct{})

	var wg sync.WaitGroup
	var decodeErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		var held []*frame.Frame
		for i := 0; i < total; i++ {
			f, err := p.AcquireForDecoding(ctx)
			if err != nil {
				decodeErr = err
				return
			}
			f.PTS = int64(i)
			p.CommitDecoded(f)
			held = append(held, f)
			if len(held) > refs {
				p.ReleaseFromDecoder(held[0])
				held = held[1:]
			}
		}
		for _, f := range held {
			p.ReleaseFromDecoder(f)
		}
	}()

	shown := make([]int64, 0, total)
	wg.Add(1)
	go func() {
		defer wg.Done()
		var prev *frame.Frame
		for len(shown) < total {
			f := p.AcquireForDisplay(ctx, 20*time.Millisecond)
			if f == nil {
				select {
				case <-stop:
					return
				default:
				}
				continue
			}
			shown = append(shown, f.PTS)
			if prev != nil {
				p.ReleaseFromDisplayed(prev)
			}
			p.ReleaseFromDisplay(f, true)
			prev = f
		}
		if prev != nil {
			p.ReleaseFromDisplayed(prev)
		}
	}()

	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		for {
			select {
			case <-stop:
				return
			default:
			}
			snap := p.Snapshot()
			sum := 0
			for _, n := range snap.States {
				sum += n
			}
			if sum != snap.Allocated || snap.Allocated > snap.Capacity {
				t.Errorf("partition broken: %+v", snap)
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(10 * time.Second):
		close(stop)
		t.Fatal("decode/display loop stalled")
	}
	close(stop)
	<-watchDone

	require.NoError(t, decodeErr)
	require.Len(t, shown, total)
	for i := range shown {
		assert.Equal(t, int64(i), shown[i], "ready queue is FIFO")
	}

	snap := p.Snapshot()
	assert.Equal(t, snap.Allocated, snap.States["unused"])
	assert.Zero(t, snap.Inconsistent)
	assert.Zero(t, snap.Decoded)
}
