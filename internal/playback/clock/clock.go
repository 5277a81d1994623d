// Package clock holds the last known audio playback position.
package clock

import (
	"sync"
	"time"
)

// Sample is an audio position and the wall time it was observed at.
type Sample struct {
	Timestamp int64 // milliseconds
	SampledAt time.Time
	Valid     bool
}

// At projects the sample forward to now, in milliseconds.
func (s Sample) At(now time.Time) int64 {
	return s.Timestamp + now.Sub(s.SampledAt).Milliseconds()
}

// AudioClock is written by the audio output and read by the display tick.
type AudioClock struct {
	mu     sync.RWMutex
	sample Sample
}

func New() *AudioClock {
	return &AudioClock{}
}

// Set records that audio at ts (ms) was playing at time at.
func (c *AudioClock) Set(ts int64, at time.Time) {
	c.mu.Lock()
	c.sample = Sample{Timestamp: ts, SampledAt: at, Valid: true}
	c.mu.Unlock()
}

// Clear invalidates the clock, e.g. on seek or end of stream.
func (c *AudioClock) Clear() {
	c.mu.Lock()
	c.sample = Sample{}
	c.mu.Unlock()
}

// Sample returns the latest observation.
func (c *AudioClock) Sample() Sample {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sample
}
