package types

import (
	"fmt"
	"strings"
)

// PixelFormat identifies the memory layout of a decoded picture.
type PixelFormat int

const (
	PixelFormatNone PixelFormat = iota

	// Planar YUV
	PixelFormatYUV420P
	PixelFormatYUV411P
	PixelFormatYUV422P
	PixelFormatYUV444P

	// Semi-planar YUV
	PixelFormatNV12
	PixelFormatNV21

	// Packed
	PixelFormatYUYV422
	PixelFormatUYVY422
	PixelFormatRGB24
	PixelFormatBGR24
	PixelFormatRGBA
	PixelFormatBGRA
	PixelFormatARGB
	PixelFormatABGR
	PixelFormatGray8
	PixelFormatGray16LE
	PixelFormatGray16BE

	// Hardware surfaces. No CPU planes; an acceleration backend must supply
	// the layout.
	PixelFormatVAAPI
	PixelFormatVDPAU
	PixelFormatVideoToolbox
)

type pixelFormatInfo struct {
	name     string
	bpp      int
	planes   int
	hardware bool
}

var pixelFormats = map[PixelFormat]pixelFormatInfo{
	PixelFormatYUV420P:      {"yuv420p", 12, 3, false},
	PixelFormatYUV411P:      {"yuv411p", 12, 3, false},
	PixelFormatYUV422P:      {"yuv422p", 16, 3, false},
	PixelFormatYUV444P:      {"yuv444p", 24, 3, false},
	PixelFormatNV12:         {"nv12", 12, 2, false},
	PixelFormatNV21:         {"nv21", 12, 2, false},
	PixelFormatYUYV422:      {"yuyv422", 16, 1, false},
	PixelFormatUYVY422:      {"uyvy422", 16, 1, false},
	PixelFormatRGB24:        {"rgb24", 24, 1, false},
	PixelFormatBGR24:        {"bgr24", 24, 1, false},
	PixelFormatRGBA:         {"rgba", 32, 1, false},
	PixelFormatBGRA:         {"bgra", 32, 1, false},
	PixelFormatARGB:         {"argb", 32, 1, false},
	PixelFormatABGR:         {"abgr", 32, 1, false},
	PixelFormatGray8:        {"gray8", 8, 1, false},
	PixelFormatGray16LE:     {"gray16le", 16, 1, false},
	PixelFormatGray16BE:     {"gray16be", 16, 1, false},
	PixelFormatVAAPI:        {"vaapi", 0, 0, true},
	PixelFormatVDPAU:        {"vdpau", 0, 0, true},
	PixelFormatVideoToolbox: {"videotoolbox", 0, 0, true},
}

// String returns the conventional lower-case name of the format.
func (p PixelFormat) String() string {
	if info, ok := pixelFormats[p]; ok {
		return info.name
	}
	if p == PixelFormatNone {
		return "none"
	}
	return fmt.Sprintf("unknown(%d)", int(p))
}

// Valid reports whether p is a known format other than None.
func (p PixelFormat) Valid() bool {
	_, ok := pixelFormats[p]
	return ok
}

// BitsPerPixel returns the average storage bits per pixel, 0 for hardware
// formats.
func (p PixelFormat) BitsPerPixel() int {
	return pixelFormats[p].bpp
}

// Planes returns the number of CPU planes, 0 for hardware or unknown formats.
func (p PixelFormat) Planes() int {
	return pixelFormats[p].planes
}

// Hardware reports whether frames of this format live on a device surface.
func (p PixelFormat) Hardware() bool {
	return pixelFormats[p].hardware
}

// ParsePixelFormat maps a format name (case-insensitive) to a PixelFormat.
func ParsePixelFormat(name string) (PixelFormat, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for p, info := range pixelFormats {
		if info.name == name {
			return p, nil
		}
	}
	return PixelFormatNone, fmt.Errorf("unknown pixel format %q", name)
}
