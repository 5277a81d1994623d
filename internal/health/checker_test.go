package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zsiec/framesync/internal/logger"
)

// mockChecker is a mock implementation of Checker for testing
type mockChecker struct {
	name    string
	err     error
	delay   time.Duration
	details map[string]interface{}
	calls   atomic.Int32
}

func (m *mockChecker) Name() string {
	return m.name
}

func (m *mockChecker) Check(ctx context.Context) error {
	m.calls.Add(1)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.err
}

type detailedChecker struct {
	mockChecker
}

func (d *detailedChecker) Details() map[string]interface{} {
	return d.details
}

func TestManager(t *testing.T) {
	log := logger.NewNullLogger()

	t.Run("Register and RunChecks", func(t *testing.T) {
		manager := NewManager(log)
		manager.Register(&mockChecker{name: "checker1"})
		manager.Register(&mockChecker{name: "checker2", err: errors.New("checker2 failed")})
		manager.Register(&mockChecker{name: "checker3", err: Degraded(errors.New("running hot"))})

		results := manager.RunChecks(context.Background())
		require.Len(t, results, 3)

		assert.Equal(t, StatusOK, results["checker1"].Status)
		assert.Empty(t, results["checker1"].Message)

		assert.Equal(t, StatusDown, results["checker2"].Status)
		assert.Contains(t, results["checker2"].Message, "checker2 failed")

		assert.Equal(t, StatusDegraded, results["checker3"].Status)
		assert.Equal(t, "running hot", results["checker3"].Message)
	})

	t.Run("Details", func(t *testing.T) {
		manager := NewManager(nil)
		manager.Register(&detailedChecker{mockChecker{name: "pool", details: map[string]interface{}{"capacity": 8}}})

		results := manager.RunChecks(context.Background())
		assert.Equal(t, 8, results["pool"].Details["capacity"])
	})

	t.Run("GetResults returns copies", func(t *testing.T) {
		manager := NewManager(log)
		manager.Register(&mockChecker{name: "test"})
		manager.RunChecks(context.Background())

		results := manager.GetResults()
		require.Contains(t, results, "test")
		results["test"].Status = StatusDown
		assert.Equal(t, StatusOK, manager.GetResults()["test"].Status)
	})

	t.Run("GetOverallStatus", func(t *testing.T) {
		tests := []struct {
			name     string
			checkers []Checker
			want     Status
		}{
			{
				name:     "all healthy",
				checkers: []Checker{&mockChecker{name: "c1"}, &mockChecker{name: "c2"}},
				want:     StatusOK,
			},
			{
				name:     "one degraded",
				checkers: []Checker{&mockChecker{name: "c1"}, &mockChecker{name: "c2", err: Degraded(errors.New("slow"))}},
				want:     StatusDegraded,
			},
			{
				name: "down wins over degraded",
				checkers: []Checker{
					&mockChecker{name: "c1", err: Degraded(errors.New("slow"))},
					&mockChecker{name: "c2", err: errors.New("error")},
				},
				want: StatusDown,
			},
			{
				name: "no checkers",
				want: StatusDown,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				manager := NewManager(log)
				for _, checker := range tt.checkers {
					manager.Register(checker)
				}
				if len(tt.checkers) > 0 {
					manager.RunChecks(context.Background())
				}
				assert.Equal(t, tt.want, manager.GetOverallStatus())
			})
		}
	})

	t.Run("Timeout handling", func(t *testing.T) {
		manager := NewManager(log)
		manager.Register(&mockChecker{name: "slow-checker", delay: 10 * time.Second})

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		start := time.Now()
		results := manager.RunChecks(ctx)
		assert.Less(t, time.Since(start), 6*time.Second)

		check := results["slow-checker"]
		require.NotNil(t, check)
		assert.Equal(t, StatusDown, check.Status)
		assert.Contains(t, check.Message, "timed out")
	})
}

func TestDegradedUnwraps(t *testing.T) {
	base := errors.New("base")
	err := Degraded(base)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "base", err.Error())
}

func TestStartPeriodicChecks(t *testing.T) {
	manager := NewManager(logger.NewNullLogger())
	checker := &mockChecker{name: "counter"}
	manager.Register(checker)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		manager.StartPeriodicChecks(ctx, 20*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return checker.calls.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("periodic checks did not stop")
	}
}

func TestCheckDurationTracking(t *testing.T) {
	manager := NewManager(logger.NewNullLogger())
	manager.Register(&mockChecker{name: "delayed", delay: 50 * time.Millisecond})

	check := manager.RunChecks(context.Background())["delayed"]
	require.NotNil(t, check)
	assert.GreaterOrEqual(t, check.Duration, 50*time.Millisecond)
	assert.GreaterOrEqual(t, check.DurationMS, float64(50))
}
