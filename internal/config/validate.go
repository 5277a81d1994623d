package config

import (
	"fmt"
	"strings"
)

func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if c.Redis.Enabled || c.Telemetry.Enabled {
		if err := c.Redis.Validate(); err != nil {
			return fmt.Errorf("redis config: %w", err)
		}
	}

	if c.Telemetry.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("telemetry config: telemetry requires redis.enabled")
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry config: %w", err)
	}

	if err := c.Playback.Validate(); err != nil {
		return fmt.Errorf("playback config: %w", err)
	}

	if err := c.Simulation.Validate(); err != nil {
		return fmt.Errorf("simulation config: %w", err)
	}

	return nil
}

func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"panic": true,
		"fatal": true,
		"error": true,
		"warn":  true,
		"info":  true,
		"debug": true,
		"trace": true,
	}

	if !validLevels[l.Level] {
		return fmt.Errorf("invalid log level: %s", l.Level)
	}

	if l.Format != "json" && l.Format != "text" {
		return fmt.Errorf("log format must be 'json' or 'text'")
	}

	if l.Output != "stdout" && l.Output != "stderr" {
		if l.MaxSize <= 0 {
			return fmt.Errorf("max_size must be positive for file output")
		}
		if l.MaxBackups < 0 {
			return fmt.Errorf("max_backups cannot be negative")
		}
		if l.MaxAge < 0 {
			return fmt.Errorf("max_age cannot be negative")
		}
	}

	return nil
}

func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.Port < 1 || m.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d", m.Port)
		}

		if m.Path == "" {
			return fmt.Errorf("metrics path cannot be empty")
		}

		if !strings.HasPrefix(m.Path, "/") {
			return fmt.Errorf("metrics path must start with '/'")
		}
	}

	return nil
}

func (s *ServerConfig) Validate() error {
	if !s.Enabled {
		return nil
	}

	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", s.Port)
	}

	if s.ReadTimeout <= 0 || s.WriteTimeout <= 0 {
		return fmt.Errorf("read_timeout and write_timeout must be positive")
	}

	if s.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}

	return nil
}

func (r *RedisConfig) Validate() error {
	if len(r.Addresses) == 0 {
		return fmt.Errorf("at least one Redis address is required")
	}

	if r.DB < 0 {
		return fmt.Errorf("invalid Redis database number: %d", r.DB)
	}

	if r.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative")
	}

	if r.PoolSize <= 0 {
		return fmt.Errorf("pool_size must be positive")
	}

	if r.MinIdleConns < 0 {
		return fmt.Errorf("min_idle_conns cannot be negative")
	}

	if r.MinIdleConns > r.PoolSize {
		return fmt.Errorf("min_idle_conns cannot be greater than pool_size")
	}

	return nil
}

func (t *TelemetryConfig) Validate() error {
	if !t.Enabled {
		return nil
	}

	if t.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}

	if t.TTL < t.Interval {
		return fmt.Errorf("ttl (%v) must not be shorter than interval (%v)", t.TTL, t.Interval)
	}

	if t.KeyPrefix == "" {
		return fmt.Errorf("key_prefix cannot be empty")
	}

	return nil
}

func (p *PlaybackConfig) Validate() error {
	if err := p.Pool.Validate(); err != nil {
		return fmt.Errorf("pool: %w", err)
	}

	if err := p.Sync.Validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	if err := p.Memory.Validate(); err != nil {
		return fmt.Errorf("memory: %w", err)
	}

	return nil
}

func (p *PoolConfig) Validate() error {
	if p.DisplayFrames < 1 {
		return fmt.Errorf("display_frames must be at least 1")
	}

	if p.MinDecodeFrames < 1 {
		return fmt.Errorf("min_decode_frames must be at least 1")
	}

	if p.DecodeRetry <= 0 || p.DisplayRetry <= 0 {
		return fmt.Errorf("decode_retry and display_retry must be positive")
	}

	if p.DecodeWait < p.DecodeRetry {
		return fmt.Errorf("decode_wait (%v) must be at least decode_retry (%v)", p.DecodeWait, p.DecodeRetry)
	}

	if p.DisplayWaitMax < 0 {
		return fmt.Errorf("display_wait_max cannot be negative")
	}

	return nil
}

func (s *SyncConfig) Validate() error {
	if s.LateThreshold <= 0 {
		return fmt.Errorf("late_threshold must be positive")
	}

	if s.WaitLogInterval <= 0 {
		return fmt.Errorf("wait_log_interval must be positive")
	}

	return nil
}

func (m *MemoryConfig) Validate() error {
	if m.MaxTotal == 0 {
		return nil
	}

	if m.MaxTotal < 0 {
		return fmt.Errorf("max_total cannot be negative")
	}

	if m.MaxPerPool <= 0 {
		return fmt.Errorf("max_per_pool must be positive when max_total is set")
	}

	if m.MaxPerPool > m.MaxTotal {
		return fmt.Errorf("max_per_pool (%d) cannot exceed max_total (%d)", m.MaxPerPool, m.MaxTotal)
	}

	return nil
}

func (s *SimulationConfig) Validate() error {
	if s.Width < 1 || s.Height < 1 {
		return fmt.Errorf("invalid geometry %dx%d", s.Width, s.Height)
	}

	if s.PixelFormat == "" {
		return fmt.Errorf("pixel_format cannot be empty")
	}

	if s.ReferenceFrames < 0 {
		return fmt.Errorf("reference_frames cannot be negative")
	}

	if s.FrameRate <= 0 || s.RefreshRate <= 0 {
		return fmt.Errorf("frame_rate and refresh_rate must be positive")
	}

	if s.TimeBase <= 0 {
		return fmt.Errorf("time_base must be positive")
	}

	if s.Duration <= 0 {
		return fmt.Errorf("duration must be positive")
	}

	if s.LookaheadFrames < 0 {
		return fmt.Errorf("lookahead_frames cannot be negative")
	}

	if s.MaxRestarts < 0 {
		return fmt.Errorf("max_restarts cannot be negative")
	}

	if s.ResizeAfter > 0 && (s.ResizeWidth < 1 || s.ResizeHeight < 1) {
		return fmt.Errorf("invalid resize geometry %dx%d", s.ResizeWidth, s.ResizeHeight)
	}

	return nil
}
