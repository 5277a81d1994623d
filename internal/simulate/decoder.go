// Package simulate drives the playback library with a synthetic decoder and
// audio clock so the pool and sync engine can be observed without real media.
package simulate

import (
	"context"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/zsiec/framesync/internal/config"
	apperrors "github.com/zsiec/framesync/internal/errors"
	"github.com/zsiec/framesync/internal/logger"
	"github.com/zsiec/framesync/internal/playback/frame"
	"github.com/zsiec/framesync/internal/playback/types"
)

// DecodePool is the producer side of the frame pool.
type DecodePool interface {
	SetFormat(format types.PixelFormat, width, height, referenceFrames int) error
	AcquireForDecoding(ctx context.Context) (*frame.Frame, error)
	CommitDecoded(f *frame.Frame)
	AbortDecoding(f *frame.Frame)
	ReleaseFromDecoder(f *frame.Frame)
}

// Decoder produces a constant-rate picture sequence. It runs as fast as the
// pool hands out frames and keeps the last ReferenceFrames pictures as
// references, like an inter-frame codec.
type Decoder struct {
	pool     DecodePool
	cfg      config.SimulationConfig
	format   types.PixelFormat
	surfaces *SurfaceBackend // nil for CPU frames
	logger   logger.Logger

	rate       types.Rational
	toMillis   *types.TimeBaseConverter
	tracker    *frame.TimestampTracker
	total      int64
	frameTicks int64

	width   int
	height  int
	resized bool
	refs    []*frame.Frame

	position atomic.Int64
	decoded  atomic.Int64
	done     atomic.Bool
}

// NewDecoder validates the stream parameters in cfg. surfaces may be nil.
func NewDecoder(pool DecodePool, cfg config.SimulationConfig, surfaces *SurfaceBackend, log logger.Logger) (*Decoder, error) {
	if log == nil {
		log = logger.NewNullLogger()
	}
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}

	format, err := types.ParsePixelFormat(cfg.PixelFormat)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}
	if format.Hardware() && surfaces == nil {
		return nil, apperrors.NewValidationError("hardware pixel format " + format.String() + " requires simulation.accelerated")
	}

	tb := types.NewRational(1, cfg.TimeBase)
	toMillis, err := types.NewMillisecondConverter(tb)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}

	rate := types.FrameRateFromFloat(cfg.FrameRate)
	d := &Decoder{
		pool:     pool,
		cfg:      cfg,
		format:   format,
		surfaces: surfaces,
		logger:   log.WithField("component", "decoder"),
		rate:     rate,
		toMillis: toMillis,
		tracker:  frame.NewTimestampTracker(),
		total:    int64(cfg.Duration.Seconds() * rate.Float64()),
		width:    cfg.Width,
		height:   cfg.Height,
	}
	d.frameTicks = d.streamTimestamp(1)
	return d, nil
}

// Run decodes from the current position to the end of the stream. After an
// error it can be called again to resume where it stopped.
func (d *Decoder) Run(ctx context.Context) error {
	d.tracker.Reset()
	defer d.releaseReferences()

	if err := d.pool.SetFormat(d.format, d.width, d.height, d.cfg.ReferenceFrames); err != nil {
		return err
	}

	d.logger.WithFields(map[string]interface{}{
		"position": d.position.Load(),
		"frames":   d.total,
		"format":   d.format.String(),
		"width":    d.width,
		"height":   d.height,
	}).Debug("Decoding started")

	for n := d.position.Load(); n < d.total; n = d.position.Load() {
		if d.resizeDue(n) {
			if err := d.resize(); err != nil {
				return err
			}
		}
		if err := d.decodeOne(ctx, n); err != nil {
			return err
		}
		d.position.Add(1)
	}

	d.done.Store(true)
	d.logger.WithField("decoded", d.decoded.Load()).Debug("Decoding finished")
	return nil
}

func (d *Decoder) decodeOne(ctx context.Context, n int64) error {
	f, err := d.pool.AcquireForDecoding(ctx)
	if err != nil {
		return err
	}

	if d.cfg.DecodeJitter > 0 {
		t := time.NewTimer(rand.N(d.cfg.DecodeJitter))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			d.pool.AbortDecoding(f)
			return apperrors.WrapCancelled(ctx.Err(), "decode interrupted")
		}
	}

	pts := d.streamTimestamp(n)
	dts := types.NoPTS
	if n > 0 {
		dts = pts - d.frameTicks
	}

	f.PTS = d.toMillis.Convert(d.tracker.Select(pts, dts))
	f.DTS = d.toMillis.Convert(dts)
	f.FrameNumber = n
	f.FrameRate = d.rate.Float64()
	f.FrameAspect = float64(d.width) / float64(d.height)
	f.PixelAspect = 1
	f.ColorSpace = frame.ColorSpaceBT601
	if d.height >= 720 {
		f.ColorSpace = frame.ColorSpaceBT709
	}

	if luma := f.Plane(0); len(luma) > 0 {
		// Stamp the first row so consecutive pictures differ.
		row := luma[:min(len(luma), f.Pitches[0])]
		for i := range row {
			row[i] = byte(n)
		}
	}
	if d.surfaces != nil {
		d.surfaces.Attach(f)
	}

	d.pool.CommitDecoded(f)
	d.decoded.Add(1)
	d.holdReference(f)
	return nil
}

func (d *Decoder) holdReference(f *frame.Frame) {
	if d.cfg.ReferenceFrames == 0 {
		d.pool.ReleaseFromDecoder(f)
		return
	}
	d.refs = append(d.refs, f)
	if len(d.refs) > d.cfg.ReferenceFrames {
		d.pool.ReleaseFromDecoder(d.refs[0])
		d.refs = d.refs[1:]
	}
}

func (d *Decoder) releaseReferences() {
	for _, f := range d.refs {
		d.pool.ReleaseFromDecoder(f)
	}
	d.refs = nil
}

func (d *Decoder) resizeDue(n int64) bool {
	if d.resized || d.cfg.ResizeAfter <= 0 {
		return false
	}
	return d.toMillis.Convert(d.streamTimestamp(n)) >= d.cfg.ResizeAfter.Milliseconds()
}

// resize flushes the references and switches the pool to the new geometry.
func (d *Decoder) resize() error {
	d.releaseReferences()
	d.resized = true

	d.logger.WithFields(map[string]interface{}{
		"from": [2]int{d.width, d.height},
		"to":   [2]int{d.cfg.ResizeWidth, d.cfg.ResizeHeight},
	}).Info("Stream geometry changed")

	d.width, d.height = d.cfg.ResizeWidth, d.cfg.ResizeHeight
	return d.pool.SetFormat(d.format, d.width, d.height, d.cfg.ReferenceFrames)
}

// streamTimestamp returns the presentation time of picture n in stream ticks.
func (d *Decoder) streamTimestamp(n int64) int64 {
	return n * int64(d.cfg.TimeBase) * int64(d.rate.Den) / int64(d.rate.Num)
}

// Position returns the index of the next picture to decode.
func (d *Decoder) Position() int64 { return d.position.Load() }

// Decoded returns the number of pictures committed so far.
func (d *Decoder) Decoded() int64 { return d.decoded.Load() }

// Total returns the stream length in pictures.
func (d *Decoder) Total() int64 { return d.total }

// Done reports whether the whole stream has been decoded.
func (d *Decoder) Done() bool { return d.done.Load() }
