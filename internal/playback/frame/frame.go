package frame

import (
	"fmt"
	"sync/atomic"

	"github.com/zsiec/framesync/internal/playback/types"
)

// MaxPlanes is the number of pitch/offset slots carried by a frame.
const MaxPlanes = 4

// ColorSpace tags the matrix coefficients of a YUV picture.
type ColorSpace string

const (
	ColorSpaceBT601  ColorSpace = "bt601"
	ColorSpaceBT709  ColorSpace = "bt709"
	ColorSpaceBT2020 ColorSpace = "bt2020"
)

// AcceleratedHandle is an opaque reference to a device surface. It belongs to
// the backend that created it; the pool only forwards release notifications.
type AcceleratedHandle interface {
	BackendName() string
}

// Layout describes plane geometry. A backend-owned layout means the pixels
// live on a device surface and the frame allocates no CPU storage.
type Layout struct {
	Pitches      [MaxPlanes]int
	Offsets      [MaxPlanes]int
	Size         int
	BackendOwned bool
}

// Frame is a single decoded-picture slot. Geometry is fixed by Initialise;
// the timing and picture metadata is written by the decoder between
// AcquireForDecoding and CommitDecoded.
type Frame struct {
	id uint64

	Format       types.PixelFormat
	Width        int
	Height       int
	PaddedWidth  int
	PaddedHeight int
	BitsPerPixel int
	Planes       int
	Size         int
	Pitches      [MaxPlanes]int
	Offsets      [MaxPlanes]int
	Buffer       []byte

	PTS           int64 // milliseconds, types.NoPTS when unknown
	DTS           int64
	FrameNumber   int64
	FrameRate     float64
	Interlaced    bool
	TopFieldFirst bool
	RepeatPicture bool
	FrameAspect   float64
	PixelAspect   float64
	ColorSpace    ColorSpace
	Corrupt       bool

	Accel AcceleratedHandle

	discard atomic.Bool
}

// New returns an empty frame with the given identity.
func New(id uint64) *Frame {
	f := &Frame{id: id}
	f.Reset()
	return f
}

// ID returns the arena key assigned by the owning pool.
func (f *Frame) ID() uint64 {
	return f.id
}

// Reset clears geometry, storage and metadata.
func (f *Frame) Reset() {
	f.Format = types.PixelFormatNone
	f.Width, f.Height = 0, 0
	f.PaddedWidth, f.PaddedHeight = 0, 0
	f.BitsPerPixel = 0
	f.Planes = 0
	f.Size = 0
	f.Pitches = [MaxPlanes]int{}
	f.Offsets = [MaxPlanes]int{}
	f.Buffer = nil
	f.Accel = nil
	f.discard.Store(false)
	f.ResetMetadata()
}

// ResetMetadata clears per-picture metadata but keeps geometry and storage,
// so a recycled frame does not leak the previous picture's timing.
func (f *Frame) ResetMetadata() {
	f.PTS = types.NoPTS
	f.DTS = types.NoPTS
	f.FrameNumber = 0
	f.FrameRate = 0
	f.Interlaced = false
	f.TopFieldFirst = false
	f.RepeatPicture = false
	f.FrameAspect = 0
	f.PixelAspect = 0
	f.ColorSpace = ColorSpaceBT709
	f.Corrupt = false
}

// Discard reports whether the frame is to be destroyed at its next release.
func (f *Frame) Discard() bool {
	return f.discard.Load()
}

// SetDiscard marks the frame for destruction at its next release.
func (f *Frame) SetDiscard() {
	f.discard.Store(true)
}

// Initialise sets the frame geometry for format at width x height. With a
// backend-owned override no CPU storage is allocated.
func (f *Frame) Initialise(format types.PixelFormat, width, height int, override *Layout) error {
	if f.Format != types.PixelFormatNone {
		f.Reset()
	}

	layout, err := ComputeLayout(format, width, height, override)
	if err != nil {
		return err
	}

	f.Format = format
	f.Width = width
	f.Height = height
	f.PaddedWidth = align16(width)
	f.PaddedHeight = align16(height)
	f.BitsPerPixel = format.BitsPerPixel()
	f.Planes = format.Planes()
	f.Size = layout.Size
	f.Pitches = layout.Pitches
	f.Offsets = layout.Offsets
	if !layout.BackendOwned {
		f.Buffer = make([]byte, layout.Size)
	}

	return nil
}

// Plane returns the bytes of plane i, or nil when the frame has no CPU
// storage or no such plane.
func (f *Frame) Plane(i int) []byte {
	if f.Buffer == nil || i < 0 || i >= f.Planes {
		return nil
	}
	end := len(f.Buffer)
	if i+1 < f.Planes {
		end = f.Offsets[i+1]
	}
	return f.Buffer[f.Offsets[i]:end]
}

func (f *Frame) String() string {
	return fmt.Sprintf("frame#%d %s %dx%d pts=%d", f.id, f.Format, f.Width, f.Height, f.PTS)
}

func align16(v int) int {
	return (v + 15) &^ 15
}
