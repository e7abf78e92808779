package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PendingRequests tracks the number of requests awaiting a reply
	PendingRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arbor_pending_requests",
			Help: "Number of requests sent to nodes and not yet acknowledged",
		},
	)

	// RequestsTotal counts requests sent to the tree, by kind
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbor_requests_total",
			Help: "Total number of requests broadcast to direct children",
		},
		[]string{"kind"},
	)

	// RepliesTotal counts replies received, by kind and whether they matched a pending request
	RepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbor_replies_total",
			Help: "Total number of replies received from nodes",
		},
		[]string{"kind", "matched"},
	)

	// RequestTimeoutsTotal counts requests that expired without a reply
	RequestTimeoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbor_request_timeouts_total",
			Help: "Total number of requests that timed out",
		},
		[]string{"kind"},
	)

	// NodeSilenceTotal counts silence reports
	NodeSilenceTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arbor_node_silence_total",
			Help: "Total number of silence reports for nodes that missed their heartbeat window",
		},
	)

	// RegisteredNodes tracks the size of the registry, controller excluded
	RegisteredNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arbor_registered_nodes",
			Help: "Number of nodes known to the controller",
		},
	)
)

// RecordRequest records a request of kind sent to the tree
func RecordRequest(kind string) {
	RequestsTotal.WithLabelValues(kind).Inc()
}

// RecordReply records a reply and whether it resolved a pending request
func RecordReply(kind string, matched bool) {
	label := "false"
	if matched {
		label = "true"
	}
	RepliesTotal.WithLabelValues(kind, label).Inc()
}

// RecordTimeout records an expired request
func RecordTimeout(kind string) {
	RequestTimeoutsTotal.WithLabelValues(kind).Inc()
}

// RecordSilence records a node that missed its heartbeat window
func RecordSilence() {
	NodeSilenceTotal.Inc()
}

// SetPendingRequests sets the current number of outstanding requests
func SetPendingRequests(count int) {
	PendingRequests.Set(float64(count))
}

// SetRegisteredNodes sets the number of known nodes
func SetRegisteredNodes(count int) {
	RegisteredNodes.Set(float64(count))
}
