// infrastructure/metrics.go
package infrastructure

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vitovidale/autosplit-service/domain"
	"github.com/vitovidale/autosplit-service/usecase"
)

var (
	webhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autosplit_webhook_events_total",
		Help: "Inbound messaging events by kind and outcome.",
	}, []string{"kind", "outcome"})

	tasksHandledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autosplit_tasks_handled_total",
		Help: "Queue tasks handled by kind and outcome.",
	}, []string{"kind", "outcome"})

	jobsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autosplit_jobs_finished_total",
		Help: "Video jobs that reached a terminal status.",
	}, []string{"status"})

	compositionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "autosplit_composition_duration_seconds",
		Help:    "Time spent rendering a split composition.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	jobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "autosplit_job_duration_seconds",
		Help:    "Wall time from job creation to terminal status.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
)

func recordWebhookResults(results []usecase.EventResult) {
	for _, r := range results {
		webhookEventsTotal.WithLabelValues(string(r.Event.Kind), string(r.Outcome)).Inc()
	}
}

func recordTask(kind domain.TaskKind, outcome string) {
	tasksHandledTotal.WithLabelValues(string(kind), outcome).Inc()
}

// RecordJobFinished is installed as the task runner's job observer.
func RecordJobFinished(job *domain.VideoJob) {
	jobsFinishedTotal.WithLabelValues(string(job.Status)).Inc()
	if !job.CreatedAt.IsZero() {
		jobDuration.Observe(time.Since(job.CreatedAt).Seconds())
	}
}
