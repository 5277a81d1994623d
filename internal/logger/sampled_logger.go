package logger

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Playback log categories. Categories without a sampler always log.
const (
	CategoryInconsistentRelease = "inconsistent_release"
	CategoryDecodeWait          = "decode_wait"
	CategoryDisplayWait         = "display_wait"
	CategoryFrameDrop           = "frame_drop"
	CategoryFormatChange        = "format_change"
	CategoryTelemetry           = "telemetry"
	CategoryRestart             = "restart"
)

// SampledLogger rate-limits high-frequency log categories. Each category
// allows a burst of messages per window and a fraction of the rest.
type SampledLogger struct {
	base     Logger
	samplers *samplerSet
}

type samplerSet struct {
	mu      sync.Mutex
	byName  map[string]*sampler
	nowFunc func() time.Time
}

type sampler struct {
	window     time.Duration
	burst      int
	sampleRate float64

	windowStart time.Time
	inWindow    int
	credit      float64

	total   int64
	logged  int64
	dropped int64
}

// SamplerStats holds statistics for a log sampler
type SamplerStats struct {
	Name    string  `json:"name"`
	Total   int64   `json:"total"`
	Logged  int64   `json:"logged"`
	Dropped int64   `json:"dropped"`
	Rate    float64 `json:"rate"`
}

// NewSampledLogger creates a sampled logger with no samplers configured.
func NewSampledLogger(base Logger) *SampledLogger {
	return &SampledLogger{
		base: base,
		samplers: &samplerSet{
			byName:  make(map[string]*sampler),
			nowFunc: time.Now,
		},
	}
}

// NewPlaybackLogger creates a sampled logger tuned for the frame pool and
// sync engine.
func NewPlaybackLogger(base Logger) *SampledLogger {
	return NewSampledLogger(base).
		// Caller bugs tend to repeat on every frame
		WithSampler(CategoryInconsistentRelease, time.Second, 5, 0.01).
		WithSampler(CategoryDecodeWait, time.Second, 2, 0.1).
		WithSampler(CategoryDisplayWait, time.Second, 2, 0.05).
		WithSampler(CategoryFrameDrop, 500*time.Millisecond, 3, 0.2).
		WithSampler(CategoryTelemetry, 5*time.Second, 1, 0)
}

// WithSampler configures sampling for a category. A sampleRate of 0 drops
// everything past the burst.
func (s *SampledLogger) WithSampler(name string, window time.Duration, burst int, sampleRate float64) *SampledLogger {
	s.samplers.mu.Lock()
	defer s.samplers.mu.Unlock()

	s.samplers.byName[name] = &sampler{
		window:     window,
		burst:      burst,
		sampleRate: sampleRate,
	}
	return s
}

func (s *SampledLogger) shouldLog(category string) (bool, map[string]interface{}) {
	set := s.samplers
	set.mu.Lock()
	defer set.mu.Unlock()

	sm, ok := set.byName[category]
	if !ok {
		return true, nil
	}

	now := set.nowFunc()
	sm.total++
	if now.Sub(sm.windowStart) >= sm.window {
		sm.windowStart = now
		sm.inWindow = 0
		sm.credit = 0
	}

	allow := false
	if sm.inWindow < sm.burst {
		sm.inWindow++
		allow = true
	} else if sm.sampleRate > 0 {
		sm.credit += sm.sampleRate
		if sm.credit >= 1 {
			sm.credit--
			allow = true
		}
	}

	if !allow {
		sm.dropped++
		return false, nil
	}
	sm.logged++

	var meta map[string]interface{}
	if sm.dropped > 0 {
		meta = map[string]interface{}{
			"sampled_total":   sm.total,
			"sampled_dropped": sm.dropped,
		}
	}
	return true, meta
}

// LogCategory logs msg at level if the category's sampler admits it.
func (s *SampledLogger) LogCategory(level logrus.Level, category, msg string, fields map[string]interface{}) {
	ok, meta := s.shouldLog(category)
	if !ok {
		return
	}

	merged := make(map[string]interface{}, len(fields)+len(meta)+1)
	for k, v := range fields {
		merged[k] = v
	}
	for k, v := range meta {
		merged[k] = v
	}
	merged["category"] = category
	s.base.WithFields(merged).Log(level, msg)
}

func (s *SampledLogger) DebugWithCategory(category, msg string, fields map[string]interface{}) {
	s.LogCategory(logrus.DebugLevel, category, msg, fields)
}

func (s *SampledLogger) InfoWithCategory(category, msg string, fields map[string]interface{}) {
	s.LogCategory(logrus.InfoLevel, category, msg, fields)
}

func (s *SampledLogger) WarnWithCategory(category, msg string, fields map[string]interface{}) {
	s.LogCategory(logrus.WarnLevel, category, msg, fields)
}

// ErrorWithCategory is never sampled.
func (s *SampledLogger) ErrorWithCategory(category, msg string, fields map[string]interface{}) {
	merged := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		merged[k] = v
	}
	merged["category"] = category
	s.base.WithFields(merged).Error(msg)
}

// Stats returns counters for every configured sampler.
func (s *SampledLogger) Stats() map[string]SamplerStats {
	s.samplers.mu.Lock()
	defer s.samplers.mu.Unlock()

	stats := make(map[string]SamplerStats, len(s.samplers.byName))
	for name, sm := range s.samplers.byName {
		st := SamplerStats{Name: name, Total: sm.total, Logged: sm.logged, Dropped: sm.dropped}
		if sm.total > 0 {
			st.Rate = float64(sm.logged) / float64(sm.total)
		}
		stats[name] = st
	}
	return stats
}

// Derived loggers share the parent's samplers.
func (s *SampledLogger) WithFields(fields map[string]interface{}) Logger {
	return &SampledLogger{base: s.base.WithFields(fields), samplers: s.samplers}
}

func (s *SampledLogger) WithField(key string, value interface{}) Logger {
	return &SampledLogger{base: s.base.WithField(key, value), samplers: s.samplers}
}

func (s *SampledLogger) WithError(err error) Logger {
	return &SampledLogger{base: s.base.WithError(err), samplers: s.samplers}
}

func (s *SampledLogger) Debug(args ...interface{}) { s.base.Debug(args...) }
func (s *SampledLogger) Info(args ...interface{})  { s.base.Info(args...) }
func (s *SampledLogger) Warn(args ...interface{})  { s.base.Warn(args...) }
func (s *SampledLogger) Error(args ...interface{}) { s.base.Error(args...) }
func (s *SampledLogger) Fatal(args ...interface{}) { s.base.Fatal(args...) }

func (s *SampledLogger) Log(level logrus.Level, args ...interface{}) {
	s.base.Log(level, args...)
}

func (s *SampledLogger) Debugf(format string, args ...interface{}) {
	s.base.Debugf(format, args...)
}

func (s *SampledLogger) Infof(format string, args ...interface{}) {
	s.base.Infof(format, args...)
}

func (s *SampledLogger) Warnf(format string, args ...interface{}) {
	s.base.Warnf(format, args...)
}

func (s *SampledLogger) Errorf(format string, args ...interface{}) {
	s.base.Errorf(format, args...)
}
