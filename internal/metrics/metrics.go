package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Frame pool metrics
	poolFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "framesync_pool_frames",
		Help: "Frames per membership set",
	}, []string{"pool", "state"})

	poolCapacity = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "framesync_pool_capacity_frames",
		Help: "Reserved decode plus display frame slots",
	}, []string{"pool"})

	poolAllocated = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "framesync_pool_allocated_frames",
		Help: "Frames currently allocated",
	}, []string{"pool"})

	poolInconsistentReleases = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framesync_pool_inconsistent_releases_total",
		Help: "Release calls for frames outside their expected set",
	}, []string{"pool", "op"})

	poolDecodeExhausted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framesync_pool_decode_exhausted_total",
		Help: "Decode acquisitions that timed out without a frame",
	}, []string{"pool"})

	poolDecodeWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "framesync_pool_decode_wait_seconds",
		Help:    "Time spent waiting for a decode frame",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
	}, []string{"pool"})

	poolFramesDestroyed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framesync_pool_frames_destroyed_total",
		Help: "Frames destroyed by reason",
	}, []string{"pool", "reason"})

	// Sync engine metrics
	syncFramesShown = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framesync_sync_frames_shown_total",
		Help: "Frames selected for display",
	})

	syncFramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framesync_sync_frames_dropped_total",
		Help: "Stale frames dropped to catch up with audio",
	})

	syncWaitEntered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framesync_sync_wait_state_entered_total",
		Help: "Transitions into a wait state",
	}, []string{"state"})

	syncDrift = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "framesync_sync_drift_milliseconds",
		Help:    "Audio time minus presented frame timestamp",
		Buckets: []float64{-200, -100, -50, -25, -10, 0, 10, 25, 50, 100, 200, 500},
	})

	// Simulator metrics
	sessionRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framesync_session_restarts_total",
		Help: "Decode sessions restarted after resource exhaustion",
	})

	telemetryPublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framesync_telemetry_publish_errors_total",
		Help: "Failed buffer status publications",
	})
)

// SetPoolFrames records the size of one membership set.
func SetPoolFrames(pool, state string, count int) {
	poolFrames.WithLabelValues(pool, state).Set(float64(count))
}

// SetPoolCapacity records the reservation and allocation of a pool.
func SetPoolCapacity(pool string, capacity, allocated int) {
	poolCapacity.WithLabelValues(pool).Set(float64(capacity))
	poolAllocated.WithLabelValues(pool).Set(float64(allocated))
}

func IncrementInconsistentRelease(pool, op string) {
	poolInconsistentReleases.WithLabelValues(pool, op).Inc()
}

func IncrementDecodeExhausted(pool string) {
	poolDecodeExhausted.WithLabelValues(pool).Inc()
}

// RecordDecodeWait records how long an AcquireForDecoding call waited.
func RecordDecodeWait(pool string, seconds float64) {
	poolDecodeWait.WithLabelValues(pool).Observe(seconds)
}

func IncrementFramesDestroyed(pool, reason string) {
	poolFramesDestroyed.WithLabelValues(pool, reason).Inc()
}

func IncrementFramesShown() {
	syncFramesShown.Inc()
}

func IncrementFramesDropped() {
	syncFramesDropped.Inc()
}

func IncrementWaitStateEntered(state string) {
	syncWaitEntered.WithLabelValues(state).Inc()
}

// RecordDrift records the A/V drift of a presented frame in milliseconds.
func RecordDrift(ms float64) {
	syncDrift.Observe(ms)
}

func IncrementSessionRestarts() {
	sessionRestarts.Inc()
}

func IncrementTelemetryPublishErrors() {
	telemetryPublishErrors.Inc()
}
