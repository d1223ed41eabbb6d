package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EmailsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsync_emails_processed_total",
			Help: "Emails processed by the sync pipeline, by outcome",
		},
		[]string{"status"}, // processed, duplicate, skipped, already_processed, error
	)

	DuplicatesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsync_duplicates_detected_total",
			Help: "Duplicates detected, by cascade level",
		},
		[]string{"level"}, // correlation_id, exact_match, temporal_range, recipient_proximity, content_similarity
	)

	ThreadsExpanded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailsync_threads_expanded_total",
			Help: "Thread expansions performed",
		},
	)

	MailboxFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailsync_mailbox_fetch_duration_seconds",
			Help:    "Mailbox fetch latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"folder", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailsync_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation", "table"},
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailsync_batch_duration_seconds",
			Help:    "Full batch invocation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)
)

// IncrementEmailProcessed counts a per-email outcome.
func IncrementEmailProcessed(status string) {
	EmailsProcessed.WithLabelValues(status).Inc()
}

// IncrementDuplicate counts a cascade hit at the given level.
func IncrementDuplicate(level string) {
	DuplicatesDetected.WithLabelValues(level).Inc()
}

// RecordMailboxFetch records a mailbox fetch observation.
func RecordMailboxFetch(folder, status string, duration time.Duration) {
	MailboxFetchDuration.WithLabelValues(folder, status).Observe(duration.Seconds())
}

// RecordDBQueryDuration records a repository query observation.
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}
