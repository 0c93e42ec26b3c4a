package metrics

import (
	"errors"
	"testing"

	"github.com/jkaberg/robovac-hass/internal/sensors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestObservePoll(t *testing.T) {
	m := New()
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(m))

	st := sensors.State{UniqueID: "vac1_battery", DeviceID: "vac1", DeviceName: "Living Room", Value: intPtr(42), Available: true}
	m.ObservePoll(st, sensors.PollResult{Outcome: sensors.OutcomeReading, Value: 42})

	assert.Equal(t, 42.0, testutil.ToFloat64(m.batteryPercent.WithLabelValues("vac1", "Living Room")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.available.WithLabelValues("vac1", "Living Room")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.polls.WithLabelValues("vac1", "reading")))

	st.Available = false
	m.ObservePoll(st, sensors.PollResult{Outcome: sensors.OutcomeFailed, Err: errors.New("boom")})

	assert.Equal(t, 0.0, testutil.ToFloat64(m.available.WithLabelValues("vac1", "Living Room")))
	assert.Equal(t, 0, testutil.CollectAndCount(m.batteryPercent))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.polls.WithLabelValues("vac1", "failed")))
}
