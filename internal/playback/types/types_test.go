package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPixelFormatProperties(t *testing.T) {
	tests := []struct {
		format   PixelFormat
		name     string
		bpp      int
		planes   int
		hardware bool
	}{
		{PixelFormatYUV420P, "yuv420p", 12, 3, false},
		{PixelFormatYUV422P, "yuv422p", 16, 3, false},
		{PixelFormatNV12, "nv12", 12, 2, false},
		{PixelFormatUYVY422, "uyvy422", 16, 1, false},
		{PixelFormatBGRA, "bgra", 32, 1, false},
		{PixelFormatGray16LE, "gray16le", 16, 1, false},
		{PixelFormatVAAPI, "vaapi", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.format.Valid())
			assert.Equal(t, tt.name, tt.format.String())
			assert.Equal(t, tt.bpp, tt.format.BitsPerPixel())
			assert.Equal(t, tt.planes, tt.format.Planes())
			assert.Equal(t, tt.hardware, tt.format.Hardware())

			parsed, err := ParsePixelFormat(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.format, parsed)
		})
	}
}

func TestPixelFormatUnknown(t *testing.T) {
	assert.False(t, PixelFormatNone.Valid())
	assert.Equal(t, "none", PixelFormatNone.String())
	assert.False(t, PixelFormat(999).Valid())
	assert.Equal(t, 0, PixelFormat(999).Planes())

	_, err := ParsePixelFormat("yuv9000")
	assert.Error(t, err)

	p, err := ParsePixelFormat(" YUV420P ")
	require.NoError(t, err)
	assert.Equal(t, PixelFormatYUV420P, p)
}

func TestRational(t *testing.T) {
	assert.Equal(t, Rational{Num: 1, Den: 1}, NewRational(1, 0))
	assert.InDelta(t, 29.97, FrameRate29_97.Float64(), 0.001)
	assert.Equal(t, Rational{Num: 1001, Den: 30000}, FrameRate29_97.Invert())
	assert.False(t, Rational{Num: 1}.Valid())
	assert.Equal(t, "1/90000", TimeBase90kHz.String())

	assert.Equal(t, FrameRate29_97, FrameRateFromFloat(29.97))
	assert.Equal(t, FrameRate23_976, FrameRateFromFloat(23.976))
	assert.Equal(t, Rational{Num: 25000, Den: 1000}, FrameRateFromFloat(25))
}

func TestMillisecondConverter(t *testing.T) {
	conv, err := NewMillisecondConverter(TimeBase90kHz)
	require.NoError(t, err)

	assert.Equal(t, int64(0), conv.Convert(0))
	assert.Equal(t, int64(1000), conv.Convert(90000))
	// 3003 ticks is one 29.97fps frame: 33.366ms
	assert.Equal(t, int64(33), conv.Convert(3003))
	assert.Equal(t, int64(100), conv.Convert(9000))
	assert.Equal(t, NoPTS, conv.Convert(NoPTS))
	assert.Equal(t, TimeBase90kHz, conv.Source())
	assert.Equal(t, TimeBase1kHz, conv.Target())

	_, err = NewMillisecondConverter(Rational{Num: 1, Den: 0})
	assert.Error(t, err)
}

func TestTimeBaseConverterBetweenRates(t *testing.T) {
	conv, err := NewTimeBaseConverter(TimeBase48kHz, TimeBase90kHz)
	require.NoError(t, err)

	assert.Equal(t, int64(90000), conv.Convert(48000))
	assert.InDelta(t, 1.875, conv.Ratio(), 1e-12)
}
