// Package metrics exports Prometheus metrics for irrelayd.
package metrics

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"libdb.so/irrelay"
	"libdb.so/irrelay/relay"
)

// Metrics contains the Prometheus metrics of a relay node.
type Metrics struct {
	PacketsReceived  prometheus.Counter
	PacketsMalformed prometheus.Counter
	// Commands is partitioned by outcome.
	Commands       *prometheus.CounterVec
	TransmitErrors prometheus.Counter
	PulsesSent     prometheus.Histogram
	LastSequence   prometheus.Gauge
}

var (
	_ irrelay.Observer      = (*Metrics)(nil)
	_ relay.PacketObserver = (*Metrics)(nil)
)

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		PacketsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "irrelay_packets_received_total",
			Help: "Total number of UDP packets received",
		}),
		PacketsMalformed: factory.NewCounter(prometheus.CounterOpts{
			Name: "irrelay_packets_malformed_total",
			Help: "Total number of UDP packets that could not be decoded",
		}),
		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "irrelay_commands_total",
			Help: "Total number of commands handled, by outcome",
		}, []string{"outcome"}),
		TransmitErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "irrelay_transmit_errors_total",
			Help: "Total number of commands the transmitter failed to send",
		}),
		PulsesSent: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "irrelay_command_pulses",
			Help:    "Number of pulses and spaces in transmitted commands",
			Buckets: []float64{8, 50, 100, 150, 200, 250, 300},
		}),
		LastSequence: factory.NewGauge(prometheus.GaugeOpts{
			Name: "irrelay_last_sequence_number",
			Help: "Sequence number of the last admitted command",
		}),
	}

	// Export every outcome from the start.
	for _, outcome := range []irrelay.Outcome{irrelay.Transmitted, irrelay.Rejected, irrelay.Overflowed} {
		m.Commands.WithLabelValues(outcome.String())
	}

	return m
}

// ObservePacket implements [relay.PacketObserver].
func (m *Metrics) ObservePacket(malformed bool) {
	m.PacketsReceived.Inc()
	if malformed {
		m.PacketsMalformed.Inc()
	}
}

// ObserveCommand implements [irrelay.Observer].
func (m *Metrics) ObserveCommand(cmd irrelay.Command, outcome irrelay.Outcome, err error) {
	m.Commands.WithLabelValues(outcome.String()).Inc()

	if outcome == irrelay.Rejected {
		return
	}
	m.LastSequence.Set(float64(cmd.Sequence))

	if outcome == irrelay.Transmitted {
		m.PulsesSent.Observe(float64(len(cmd.Data)))
		if err != nil {
			m.TransmitErrors.Inc()
		}
	}
}

// Handler serves /metrics from gatherer and /status as the JSON status
// returned by status. Failed status writes are logged to logger.
func Handler(gatherer prometheus.Gatherer, status func() irrelay.Status, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status()); err != nil {
			logger.WarnContext(r.Context(),
				"cannot write status",
				"remote", r.RemoteAddr,
				"err", err)
		}
	})
	return mux
}
