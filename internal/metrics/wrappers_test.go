package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewCounterReusesRegisteredCollector(t *testing.T) {
	labels := map[string]string{"session": "wrapper-test"}
	a := NewCounter("framesync_wrapper_test_total", "wrapper test", labels)
	b := NewCounter("framesync_wrapper_test_total", "wrapper test", labels)

	a.Inc()
	b.Add(2)

	assert.Equal(t, 3.0, testutil.ToFloat64(a.counter))
	assert.Same(t, a.counter, b.counter)
}

func TestGaugeAndHistogramWrappers(t *testing.T) {
	g := NewGauge("framesync_wrapper_gauge", "wrapper gauge", nil)
	g.Set(4)
	g.Inc()
	g.Dec()
	g.Dec()
	assert.Equal(t, 3.0, testutil.ToFloat64(g.gauge))

	h := NewHistogram("framesync_wrapper_histogram", "wrapper histogram", nil, []float64{1, 10})
	h.Observe(5)
	assert.Equal(t, 1, testutil.CollectAndCount(h.histogram))
}
