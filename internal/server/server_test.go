package server

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zsiec/framesync/internal/config"
	"github.com/zsiec/framesync/internal/playback/avsync"
	"github.com/zsiec/framesync/internal/playback/pool"
)

type fakePool struct {
	status pool.Status
	busy   bool
	snap   pool.Snapshot
}

func (f *fakePool) BufferStatus() (pool.Status, bool) { return f.status, !f.busy }
func (f *fakePool) Snapshot() pool.Snapshot           { return f.snap }

type fakeSync struct {
	offset time.Duration
}

func (f *fakeSync) Stats() avsync.Stats {
	return avsync.Stats{FramesShown: 10, State: "none", ManualOffsetMs: f.offset.Milliseconds()}
}

func (f *fakeSync) SetManualOffset(d time.Duration) { f.offset = d }

func testServerConfig() *config.ServerConfig {
	return &config.ServerConfig{
		Enabled:         true,
		ListenAddr:      "127.0.0.1",
		Port:            8480,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		ShutdownTimeout: 2 * time.Second,
	}
}

func newTestServer(t *testing.T, cfg *config.ServerConfig) (*Server, *fakePool, *fakeSync, *[]bool) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	fp := &fakePool{
		status: pool.Status{Unused: 4, InUse: 1, Held: 2},
		snap:   pool.Snapshot{Name: "video", Format: "yuv420p", Capacity: 8},
	}
	fs := &fakeSync{}
	var resets []bool
	s := New(cfg, log, nil, fp, fs, func(destroyAll bool) {
		resets = append(resets, destroyAll)
	})
	return s, fp, fs, &resets
}

func TestNew(t *testing.T) {
	cfg := testServerConfig()
	s, _, _, _ := newTestServer(t, cfg)

	assert.Equal(t, cfg, s.config)
	assert.NotNil(t, s.router)
	assert.NotNil(t, s.healthMgr)
	assert.NotNil(t, s.errorHandler)
	assert.Equal(t, "127.0.0.1:8480", s.Addr())
	assert.Same(t, s.GetRouter(), s.Handler())
}

func TestServeAndShutdown(t *testing.T) {
	s, _, _, _ := newTestServer(t, testServerConfig())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/live"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestShutdownWithoutStart(t *testing.T) {
	s, _, _, _ := newTestServer(t, testServerConfig())
	assert.NoError(t, s.Shutdown())
}
