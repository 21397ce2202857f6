package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/berfenger/statesync2mqtt/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPromInstrument(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPromInstrument(reg)

	p.ObservePoll("a", 150*time.Millisecond, nil)
	p.ObservePoll("a", time.Second, fmt.Errorf("%w: timeout", domain.ErrPollFailure))
	p.ObservePoll("a", 0, domain.ErrPollInFlight)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.polls.WithLabelValues("a", RESULT_OK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.polls.WithLabelValues("a", RESULT_ERROR)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.polls.WithLabelValues("a", RESULT_IN_FLIGHT)))
	// coalesced polls do not fetch
	assert.Equal(t, 1, testutil.CollectAndCount(p.pollDuration))

	p.ObserveDiagnostic("a", "truncated")
	p.ObserveDiagnostic("a", "truncated")
	assert.Equal(t, 2.0, testutil.ToFloat64(p.diagnostics.WithLabelValues("a", "truncated")))

	p.SetConnected("a", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(p.connected.WithLabelValues("a")))
	p.SetConnected("a", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(p.connected.WithLabelValues("a")))

	p.ObserveSinkWrite("redis", nil)
	p.ObserveSinkWrite("redis", errors.New("down"))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.sinkWrites.WithLabelValues("redis", RESULT_ERROR)))
}
