// Package metrics exposes Prometheus collectors for the chat pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSessions tracks currently connected WebSocket sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatsense_active_sessions",
		Help: "Number of currently connected sessions.",
	})

	// MessagesProcessed counts messages accepted, persisted, and broadcast.
	MessagesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsense_messages_processed_total",
		Help: "Total messages accepted through the full pipeline.",
	})

	// MessagesRejected counts rejected submissions by reason.
	MessagesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsense_messages_rejected_total",
		Help: "Total rejected message submissions, by reason.",
	}, []string{"reason"})

	// AnalyzerFailures counts analyzer calls that fell back to neutral
	// analysis.
	AnalyzerFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsense_analyzer_failures_total",
		Help: "Total analyzer calls that failed or timed out.",
	})

	// BroadcastsDropped counts events dropped because a session's outbound
	// buffer was full or closed.
	BroadcastsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsense_broadcasts_dropped_total",
		Help: "Total events dropped for slow or closed sessions.",
	})
)
