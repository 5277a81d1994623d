package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Server     ServerConfig     `mapstructure:"server"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Dashboard  DashboardConfig  `mapstructure:"dashboard"`
	Playback   PlaybackConfig   `mapstructure:"playback"`
	Simulation SimulationConfig `mapstructure:"simulation"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`   // json or text
	Output     string `mapstructure:"output"`   // stdout, stderr, or file path
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

// ServerConfig configures the plain HTTP diagnostics API.
type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	ListenAddr      string        `mapstructure:"listen_addr"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	DebugEndpoints  bool          `mapstructure:"debug_endpoints"` // allows reset/offset mutations
}

type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addresses    []string      `mapstructure:"addresses"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

// TelemetryConfig controls publishing of buffer status snapshots to Redis.
type TelemetryConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type DashboardConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

type PlaybackConfig struct {
	Pool   PoolConfig   `mapstructure:"pool"`
	Sync   SyncConfig   `mapstructure:"sync"`
	Memory MemoryConfig `mapstructure:"memory"`
}

// PoolConfig holds the frame pool capacity and wait tuning.
type PoolConfig struct {
	DisplayFrames   int           `mapstructure:"display_frames"`    // reserved for display
	MinDecodeFrames int           `mapstructure:"min_decode_frames"` // floor for the decoder reservation
	DecodeWait      time.Duration `mapstructure:"decode_wait"`       // bound for AcquireForDecoding
	DecodeRetry     time.Duration `mapstructure:"decode_retry"`
	DisplayWaitMax  time.Duration `mapstructure:"display_wait_max"` // cap for AcquireForDisplay
	DisplayRetry    time.Duration `mapstructure:"display_retry"`
}

// SyncConfig holds the A/V sync tuning.
type SyncConfig struct {
	LateThreshold   time.Duration `mapstructure:"late_threshold"`
	WaitLogInterval time.Duration `mapstructure:"wait_log_interval"`
	ManualOffset    time.Duration `mapstructure:"manual_offset"`
}

type MemoryConfig struct {
	MaxTotal   int64 `mapstructure:"max_total"`    // 0 disables accounting
	MaxPerPool int64 `mapstructure:"max_per_pool"` // bytes
}

// SimulationConfig drives the synthetic decoder and audio clock.
type SimulationConfig struct {
	PixelFormat     string        `mapstructure:"pixel_format"`
	Width           int           `mapstructure:"width"`
	Height          int           `mapstructure:"height"`
	ReferenceFrames int           `mapstructure:"reference_frames"`
	FrameRate       float64       `mapstructure:"frame_rate"`
	TimeBase        int           `mapstructure:"time_base"` // ticks per second of the synthetic stream
	Duration        time.Duration `mapstructure:"duration"`
	RefreshRate     float64       `mapstructure:"refresh_rate"`
	Audio           bool          `mapstructure:"audio"`
	AudioStartDelay time.Duration `mapstructure:"audio_start_delay"`
	DecodeJitter    time.Duration `mapstructure:"decode_jitter"`
	LookaheadFrames int           `mapstructure:"lookahead_frames"`
	Accelerated     bool          `mapstructure:"accelerated"`
	MaxRestarts     int           `mapstructure:"max_restarts"`
	ResizeAfter     time.Duration `mapstructure:"resize_after"` // 0 disables the mid-stream resize
	ResizeWidth     int           `mapstructure:"resize_width"`
	ResizeHeight    int           `mapstructure:"resize_height"`
}

// RegisterFlags declares the command-line overrides understood by Load.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("log-level", "", "Log level (trace, debug, info, warn, error)")
	fs.String("log-format", "", "Log format (json or text)")
	fs.Duration("duration", 0, "Simulated playback duration")
	fs.Bool("audio", true, "Simulate an audio stream")
	fs.Bool("tui", false, "Show the terminal dashboard")
	fs.Int("lookahead", 0, "Frames kept for the second-stage (deinterlace) consumer")
	fs.Duration("av-offset", 0, "Manual A/V sync adjustment")
}

var flagBindings = map[string]string{
	"logging.level":               "log-level",
	"logging.format":              "log-format",
	"simulation.duration":         "duration",
	"simulation.audio":            "audio",
	"dashboard.enabled":           "tui",
	"simulation.lookahead_frames": "lookahead",
	"playback.sync.manual_offset": "av-offset",
}

// Load reads configuration from configPath (optional), the environment and
// any flags in fs that were explicitly set.
func Load(configPath string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Environment variable override
	v.SetEnvPrefix("FRAMESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if fs != nil {
		for key, name := range flagBindings {
			flag := fs.Lookup(name)
			if flag == nil || !flag.Changed {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 30)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.port", 9090)

	// Diagnostics server defaults
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.listen_addr", "127.0.0.1")
	v.SetDefault("server.port", 8480)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("server.debug_endpoints", false)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addresses", []string{"localhost:6379"})
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 1)

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.interval", "1s")
	v.SetDefault("telemetry.key_prefix", "framesync:")
	v.SetDefault("telemetry.ttl", "30s")

	// Dashboard defaults
	v.SetDefault("dashboard.enabled", false)
	v.SetDefault("dashboard.refresh_interval", "200ms")

	// Pool defaults
	v.SetDefault("playback.pool.display_frames", 6)
	v.SetDefault("playback.pool.min_decode_frames", 2)
	v.SetDefault("playback.pool.decode_wait", "10s")
	v.SetDefault("playback.pool.decode_retry", "8ms")
	v.SetDefault("playback.pool.display_wait_max", "1s")
	v.SetDefault("playback.pool.display_retry", "4ms")

	// Sync defaults
	v.SetDefault("playback.sync.late_threshold", "50ms")
	v.SetDefault("playback.sync.wait_log_interval", "250ms")
	v.SetDefault("playback.sync.manual_offset", "0s")

	// Memory defaults (accounting off)
	v.SetDefault("playback.memory.max_total", 0)
	v.SetDefault("playback.memory.max_per_pool", 0)

	// Simulation defaults
	v.SetDefault("simulation.pixel_format", "yuv420p")
	v.SetDefault("simulation.width", 1920)
	v.SetDefault("simulation.height", 1080)
	v.SetDefault("simulation.reference_frames", 2)
	v.SetDefault("simulation.frame_rate", 29.97)
	v.SetDefault("simulation.time_base", 90000)
	v.SetDefault("simulation.duration", "10s")
	v.SetDefault("simulation.refresh_rate", 60.0)
	v.SetDefault("simulation.audio", true)
	v.SetDefault("simulation.audio_start_delay", "100ms")
	v.SetDefault("simulation.decode_jitter", "5ms")
	v.SetDefault("simulation.lookahead_frames", 0)
	v.SetDefault("simulation.accelerated", false)
	v.SetDefault("simulation.max_restarts", 3)
	v.SetDefault("simulation.resize_after", "0s")
	v.SetDefault("simulation.resize_width", 1280)
	v.SetDefault("simulation.resize_height", 720)
}

// PoolCapacity returns the number of frame slots the pool reserves for the
// given reference-frame requirement.
func (p *PoolConfig) PoolCapacity(referenceFrames int) int {
	decode := referenceFrames
	if decode < p.MinDecodeFrames {
		decode = p.MinDecodeFrames
	}
	return decode + p.DisplayFrames
}
