package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "printgate_jobs_enqueued_total", Help: "Jobs admitted to a queue"},
		[]string{"printer"},
	)
	JobsEnqueuedOffline = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "printgate_jobs_enqueued_offline_total", Help: "Jobs held while the printer was offline"},
		[]string{"printer"},
	)
	JobsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "printgate_jobs_completed_total", Help: "Jobs printed successfully"},
		[]string{"printer"},
	)
	JobsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "printgate_jobs_failed_total", Help: "Jobs that ended in failure"},
		[]string{"printer"},
	)
	JobsExpired = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "printgate_jobs_expired_total", Help: "Offline-held jobs that expired before the printer returned"},
		[]string{"printer"},
	)
	JobsCancelled = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "printgate_jobs_cancelled_total", Help: "Jobs cancelled before printing"},
		[]string{"printer"},
	)
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "printgate_queue_depth", Help: "Pending jobs per queue, offline holds included"},
		[]string{"printer"},
	)
	QueueRejects = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "printgate_queue_rejects_total", Help: "Admissions rejected because the queue was full"},
		[]string{"printer"},
	)
	StatusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "printgate_printer_status_transitions_total", Help: "Printer status transitions seen by the health monitor"},
		[]string{"printer", "to"},
	)
	USBReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "printgate_usb_reconnects_total", Help: "USB reconnect attempts by the resilient adapter"},
		[]string{"printer"},
	)
)

// Handler exposes the /metrics endpoint with a singleton registration.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsEnqueued,
			JobsEnqueuedOffline,
			JobsCompleted,
			JobsFailed,
			JobsExpired,
			JobsCancelled,
			QueueDepth,
			QueueRejects,
			StatusTransitions,
			USBReconnects,
		)
	})
	return promhttp.Handler()
}
