package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Job lifecycle metrics
	JobsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orvdm_jobs_dispatched_total",
			Help: "Total number of jobs dispatched to a worker, by task name",
		},
		[]string{"task"},
	)

	JobsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orvdm_jobs_completed_total",
			Help: "Total number of jobs completed, by task name and verdict",
		},
		[]string{"task", "verdict"},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orvdm_job_duration_seconds",
			Help:    "Time from setRunning to final verdict, by task name",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600, 7200},
		},
		[]string{"task"},
	)

	WorkerCrashesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orvdm_worker_crashes_total",
			Help: "Total number of unhandled handler panics/errors caught by the worker runtime",
		},
		[]string{"task"},
	)

	// Transfer metrics
	TransferFilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orvdm_transfer_files_total",
			Help: "Total number of files classified by the transfer executor, by transfer name and class",
		},
		[]string{"transfer", "class"}, // class: new|updated|deleted|excluded
	)

	TransferBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orvdm_transfer_bytes_total",
			Help: "Total bytes reported transferred, by transfer name",
		},
		[]string{"transfer"},
	)

	TransferDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orvdm_transfer_duration_seconds",
			Help:    "Wall-clock duration of a transfer subprocess run, by transfer name and kind",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		},
		[]string{"transfer", "kind"},
	)

	FileListBuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orvdm_filelist_build_duration_seconds",
			Help:    "Time taken to enumerate and filter a source tree",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Index metrics
	MD5SummaryUpdateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orvdm_md5_summary_update_duration_seconds",
			Help:    "Time taken to update or rebuild the MD5 summary",
			Buckets: prometheus.DefBuckets,
		},
	)

	DashboardPluginFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orvdm_dashboard_plugin_failures_total",
			Help: "Total number of per-file data-dashboard plugin failures, by collection system",
		},
		[]string{"collection_system"},
	)

	DashboardUpdateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orvdm_dashboard_update_duration_seconds",
			Help:    "Time taken to update or rebuild the data-dashboard manifest",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Scheduler metrics
	SchedulerTicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orvdm_scheduler_ticks_total",
			Help: "Total number of scheduler ticks executed while this process held leadership",
		},
	)

	SchedulerIsLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orvdm_scheduler_is_leader",
			Help: "Whether this scheduler process currently holds Raft leadership (1) or not (0)",
		},
	)

	SchedulerTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orvdm_scheduler_tick_duration_seconds",
			Help:    "Time taken for one scheduler tick (submit + log purge)",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Size cacher metrics
	SizeCacherCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orvdm_size_cacher_cycles_total",
			Help: "Total number of size-cacher measurement cycles completed",
		},
	)

	SizeCacherFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orvdm_size_cacher_failures_total",
			Help: "Total number of size-cacher cycles that failed to read or post size",
		},
	)

	// Control-plane client metrics
	ControlPlaneRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orvdm_controlplane_requests_total",
			Help: "Total control-plane API requests by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	ControlPlaneRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orvdm_controlplane_request_duration_seconds",
			Help:    "Control-plane API request duration in seconds, by operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(
		JobsDispatchedTotal,
		JobsCompletedTotal,
		JobDuration,
		WorkerCrashesTotal,
		TransferFilesTotal,
		TransferBytesTotal,
		TransferDuration,
		FileListBuildDuration,
		MD5SummaryUpdateDuration,
		DashboardPluginFailuresTotal,
		DashboardUpdateDuration,
		SchedulerTicksTotal,
		SchedulerIsLeader,
		SchedulerTickDuration,
		SizeCacherCyclesTotal,
		SizeCacherFailuresTotal,
		ControlPlaneRequestsTotal,
		ControlPlaneRequestDuration,
	)
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations and observing the result into a histogram.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer starting now.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a histogram vector with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
