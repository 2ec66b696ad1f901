package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Queue and webhook counters, exposed on /metrics by the API process.
var (
	JobsClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hirestack_jobs_claimed_total",
		Help: "Provisioning jobs claimed by workers.",
	})

	JobsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hirestack_jobs_completed_total",
		Help: "Provisioning jobs completed successfully.",
	})

	JobsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hirestack_jobs_failed_total",
		Help: "Provisioning job failures, split by whether the failure was terminal.",
	}, []string{"terminal"})

	JobsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hirestack_jobs_reaped_total",
		Help: "Jobs with expired leases reset to pending by the reaper.",
	})

	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hirestack_webhook_events_total",
		Help: "Webhook deliveries by final event status (including duplicate).",
	}, []string{"status"})
)

// Handler returns the Prometheus scrape handler for mounting behind the
// fiber adaptor.
func Handler() http.Handler {
	return promhttp.Handler()
}
