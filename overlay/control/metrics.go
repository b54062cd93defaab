package control

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Sessions     prometheus.Gauge
	Observers    prometheus.Gauge
	Commands     *prometheus.CounterVec
	ChatMessages *prometheus.CounterVec
	Rejected     prometheus.Counter
	Evicted      prometheus.Counter
	Dropped      prometheus.Counter
}

// NewMetrics registers the hub collectors on reg. A nil reg keeps them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "overlay", Name: "sessions",
			Help: "Registered client sessions.",
		}),
		Observers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "overlay", Name: "observers",
			Help: "Connected controller observers.",
		}),
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overlay", Name: "commands_total",
			Help: "Controller commands by kind and result.",
		}, []string{"kind", "result"}),
		ChatMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overlay", Name: "chat_messages_total",
			Help: "Chat messages by result.",
		}, []string{"result"}),
		Rejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: "overlay", Name: "sessions_rejected_total",
			Help: "Connections refused because the registry was full.",
		}),
		Evicted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "overlay", Name: "sessions_evicted_total",
			Help: "Sessions removed for inactivity.",
		}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "overlay", Name: "unknown_targets_total",
			Help: "Command sends dropped because the target was gone.",
		}),
	}
}
