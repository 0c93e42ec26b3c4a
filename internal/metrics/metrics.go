package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jkaberg/robovac-hass/internal/sensors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Metrics exports battery sensor state and poll outcomes.
type Metrics struct {
	batteryPercent *prometheus.GaugeVec
	available      *prometheus.GaugeVec
	polls          *prometheus.CounterVec
}

// New creates the battery metrics; register it on a prometheus.Registry.
func New() *Metrics {
	labels := []string{"device_id", "device_name"}
	return &Metrics{
		batteryPercent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "robovac_battery_percent",
			Help: "Battery percentage (0-100), only present while available",
		}, labels),
		available: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "robovac_battery_available",
			Help: "Whether the battery sensor is available (1=yes, 0=no)",
		}, labels),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "robovac_poll_total",
			Help: "Battery polls by outcome",
		}, []string{"device_id", "outcome"}),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.batteryPercent.Describe(ch)
	m.available.Describe(ch)
	m.polls.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.batteryPercent.Collect(ch)
	m.available.Collect(ch)
	m.polls.Collect(ch)
}

// ObservePoll records one poll and the state it left behind.
func (m *Metrics) ObservePoll(st sensors.State, res sensors.PollResult) {
	labels := prometheus.Labels{
		"device_id":   st.DeviceID,
		"device_name": st.DeviceName,
	}
	m.polls.WithLabelValues(st.DeviceID, res.Outcome.String()).Inc()

	if st.Available && st.Value != nil {
		m.available.With(labels).Set(1)
		m.batteryPercent.With(labels).Set(float64(*st.Value))
		return
	}
	m.available.With(labels).Set(0)
	m.batteryPercent.Delete(labels)
}

// Serve exposes reg on addr under /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry, logger *logrus.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.WithField("addr", addr).Info("Serving Prometheus metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
