// Package telemetry publishes frame pool occupancy and sync state to Redis
// so external monitors can follow a playback session.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zsiec/framesync/internal/config"
	"github.com/zsiec/framesync/internal/logger"
	"github.com/zsiec/framesync/internal/metrics"
	"github.com/zsiec/framesync/internal/playback/avsync"
	"github.com/zsiec/framesync/internal/playback/pool"
	"golang.org/x/time/rate"
)

// StatusSource is the non-blocking occupancy view of a frame pool.
type StatusSource interface {
	BufferStatus() (pool.Status, bool)
}

// SyncSource reports sync engine counters.
type SyncSource interface {
	Stats() avsync.Stats
}

// Snapshot is one published sample.
type Snapshot struct {
	SessionID     string    `json:"session_id"`
	Unused        int       `json:"unused"`
	InUse         int       `json:"in_use"`
	Held          int       `json:"held"`
	WaitState     string    `json:"wait_state,omitempty"`
	FramesShown   int64     `json:"frames_shown"`
	FramesDropped int64     `json:"frames_dropped"`
	DriftMs       int64     `json:"drift_ms"`
	Timestamp     time.Time `json:"timestamp"`
}

// PublisherStats counts publish attempts.
type PublisherStats struct {
	Published int64 `json:"published"`
	Skipped   int64 `json:"skipped"` // pool busy
	Failed    int64 `json:"failed"`
}

// Publisher writes a snapshot hash per session with a TTL, keeps the session
// in an index set and broadcasts each snapshot on a channel.
type Publisher struct {
	client    redis.UniversalClient
	sessionID string
	pool      StatusSource
	sync      SyncSource
	prefix    string
	ttl       time.Duration
	interval  time.Duration
	logger    logger.Logger

	// Redis outages would otherwise log once per interval.
	errLimiter *rate.Limiter

	published atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
}

// NewPublisher creates a publisher. sync may be nil.
func NewPublisher(client redis.UniversalClient, sessionID string, pool StatusSource, sync SyncSource, cfg config.TelemetryConfig, log logger.Logger) *Publisher {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Publisher{
		client:     client,
		sessionID:  sessionID,
		pool:       pool,
		sync:       sync,
		prefix:     cfg.KeyPrefix,
		ttl:        cfg.TTL,
		interval:   cfg.Interval,
		logger:     logger.WithSession(log, sessionID).WithField("component", "telemetry"),
		errLimiter: rate.NewLimiter(rate.Every(30*time.Second), 1),
	}
}

// SessionKey is the hash holding the latest snapshot of this session.
func (p *Publisher) SessionKey() string {
	return p.prefix + "session:" + p.sessionID
}

// SessionsKey is the set of sessions that have published.
func (p *Publisher) SessionsKey() string {
	return p.prefix + "sessions"
}

// Channel carries every snapshot as JSON.
func (p *Publisher) Channel() string {
	return p.prefix + "status"
}

// PublishOnce publishes the current state. A pool that is busy is skipped
// rather than waited for.
func (p *Publisher) PublishOnce(ctx context.Context) error {
	status, ok := p.pool.BufferStatus()
	if !ok {
		p.skipped.Add(1)
		return nil
	}

	snap := Snapshot{
		SessionID: p.sessionID,
		Unused:    status.Unused,
		InUse:     status.InUse,
		Held:      status.Held,
		Timestamp: time.Now(),
	}
	if p.sync != nil {
		stats := p.sync.Stats()
		snap.WaitState = stats.State
		snap.FramesShown = stats.FramesShown
		snap.FramesDropped = stats.FramesDropped
		snap.DriftMs = stats.LastDriftMs
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	key := p.SessionKey()
	pipe := p.client.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"unused":         snap.Unused,
		"in_use":         snap.InUse,
		"held":           snap.Held,
		"wait_state":     snap.WaitState,
		"frames_shown":   snap.FramesShown,
		"frames_dropped": snap.FramesDropped,
		"drift_ms":       snap.DriftMs,
		"updated_at":     snap.Timestamp.UnixMilli(),
	})
	pipe.Expire(ctx, key, p.ttl)
	pipe.SAdd(ctx, p.SessionsKey(), p.sessionID)
	pipe.Publish(ctx, p.Channel(), data)

	if _, err := pipe.Exec(ctx); err != nil {
		p.failed.Add(1)
		metrics.IncrementTelemetryPublishErrors()
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	p.published.Add(1)
	return nil
}

// Run publishes every interval until ctx is done, then removes the session.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.WithFields(map[string]interface{}{
		"key":      p.SessionKey(),
		"interval": p.interval,
	}).Info("Telemetry publisher started")

	for {
		select {
		case <-ctx.Done():
			p.unregister()
			return nil
		case <-ticker.C:
			if err := p.PublishOnce(ctx); err != nil && ctx.Err() == nil && p.errLimiter.Allow() {
				p.logger.WithError(err).Warn("Telemetry publish failed")
			}
		}
	}
}

func (p *Publisher) unregister() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pipe := p.client.Pipeline()
	pipe.Del(ctx, p.SessionKey())
	pipe.SRem(ctx, p.SessionsKey(), p.sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		p.logger.WithError(err).Warn("Failed to remove telemetry session")
		return
	}
	p.logger.Debug("Telemetry session removed")
}

// Stats returns publish counters.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		Published: p.published.Load(),
		Skipped:   p.skipped.Load(),
		Failed:    p.failed.Load(),
	}
}
