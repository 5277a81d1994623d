package frame

import (
	"fmt"

	"github.com/zsiec/framesync/internal/playback/types"
)

// Probe returns a frame carrying the geometry of format at width x height
// without allocating storage. Backends inspect it to decide on a surface
// layout before any real frame exists.
func Probe(format types.PixelFormat, width, height int) *Frame {
	f := New(0)
	f.Format = format
	f.Width = width
	f.Height = height
	f.PaddedWidth = align16(width)
	f.PaddedHeight = align16(height)
	f.BitsPerPixel = format.BitsPerPixel()
	f.Planes = format.Planes()
	return f
}

// ComputeLayout validates the geometry and returns the plane layout on a
// 16-pixel aligned canvas. A non-nil override replaces the computed layout;
// hardware formats require one.
func ComputeLayout(format types.PixelFormat, width, height int, override *Layout) (Layout, error) {
	if width < 1 || height < 1 {
		return Layout{}, fmt.Errorf("invalid geometry %dx%d", width, height)
	}
	if !format.Valid() {
		return Layout{}, fmt.Errorf("unknown pixel format %s", format)
	}
	if override != nil {
		return *override, nil
	}
	if format.Hardware() {
		return Layout{}, fmt.Errorf("pixel format %s needs a surface layout from an acceleration backend", format)
	}

	w := align16(width)
	h := align16(height)
	luma := w * h

	var l Layout
	l.Size = luma * format.BitsPerPixel() / 8

	switch format.Planes() {
	case 1:
		pitch := w * format.BitsPerPixel() / 8
		for i := range l.Pitches {
			l.Pitches[i] = pitch
		}

	case 2:
		// Interleaved chroma at half height, full byte width
		l.Pitches = [MaxPlanes]int{w, w, w, w}
		l.Offsets = [MaxPlanes]int{0, luma, luma, luma}

	case 3:
		var chromaPitch, chromaSize int
		switch format {
		case types.PixelFormatYUV420P:
			chromaPitch, chromaSize = w/2, luma/4
		case types.PixelFormatYUV411P:
			chromaPitch, chromaSize = w/4, luma/4
		case types.PixelFormatYUV422P:
			chromaPitch, chromaSize = w/2, luma/2
		case types.PixelFormatYUV444P:
			chromaPitch, chromaSize = w, luma
		default:
			return Layout{}, fmt.Errorf("no planar layout for %s", format)
		}
		l.Pitches = [MaxPlanes]int{w, chromaPitch, chromaPitch, chromaPitch}
		l.Offsets = [MaxPlanes]int{0, luma, luma + chromaSize, luma + chromaSize}

	default:
		return Layout{}, fmt.Errorf("no layout for %s", format)
	}

	return l, nil
}
