package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	SendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpview_replicator_sends_total",
			Help: "Producer sends, by frame type (sync/diff).",
		},
		[]string{"identity", "frame_type"},
	)

	SendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bgpview_replicator_send_duration_seconds",
			Help:    "Wall-clock time to diff and publish one frame.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		},
		[]string{"identity", "frame_type"},
	)

	PfxRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpview_replicator_pfx_rows_total",
			Help: "Prefix rows emitted by the differ, by op.",
		},
		[]string{"identity", "op"},
	)

	BrokerIORetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpview_replicator_broker_io_retries_total",
			Help: "Transient broker I/O failures retried, by operation.",
		},
		[]string{"role", "op"},
	)

	BrokerIOFatalTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpview_replicator_broker_io_fatal_total",
			Help: "Broker I/O failures that exhausted retries.",
		},
		[]string{"role", "op"},
	)

	ReceiverStateTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpview_replicator_receiver_state_transitions_total",
			Help: "Consumer state-machine transitions, by destination state.",
		},
		[]string{"identity", "state"},
	)

	RewindsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpview_replicator_rewinds_total",
			Help: "Consumer rewinds to a prior sync due to parent-time mismatch.",
		},
		[]string{"identity"},
	)

	FilterAbortsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpview_replicator_filter_aborts_total",
			Help: "Sends aborted by a user filter callback.",
		},
		[]string{"identity"},
	)

	FrameLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bgpview_replicator_frame_lag_seconds",
			Help: "Consumer-observed lag between a frame's view time and wall-clock delivery time.",
		},
		[]string{"identity"},
	)

	MembersHeartbeatsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpview_replicator_members_heartbeats_total",
			Help: "Producer identity heartbeats appended to the members stream.",
		},
		[]string{"identity"},
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			SendsTotal,
			SendDuration,
			PfxRowsTotal,
			BrokerIORetriesTotal,
			BrokerIOFatalTotal,
			ReceiverStateTotal,
			RewindsTotal,
			FilterAbortsTotal,
			FrameLag,
			MembersHeartbeatsTotal,
		)
	})
}
