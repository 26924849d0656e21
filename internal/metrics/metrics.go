package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duebot_messages_total",
			Help: "Queued message lifecycle counter by stage and template kind",
		},
		[]string{"stage", "kind"}, // queued|sent|error|skipped
	)

	JobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duebot_job_runs_total",
			Help: "Scheduler callback runs by job kind and outcome",
		},
		[]string{"kind", "outcome"}, // check|send|digest , ok|failed|locked
	)

	DigestSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duebot_digest_sent_total",
			Help: "Daily digest deliveries per outcome",
		},
		[]string{"outcome"}, // sent|empty|failed
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		MessagesTotal,
		JobRunsTotal,
		DigestSentTotal,
	)
}
