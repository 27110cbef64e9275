package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	UploadsAccepted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_admin_uploads_total",
			Help: "Recipient files accepted or rejected at upload",
		},
		[]string{"channel", "outcome"},
	)

	DecodeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_admin_decode_failures_total",
			Help: "Uploaded files the decoder could not read",
		},
		[]string{"kind"},
	)

	ValidationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notify_admin_validation_seconds",
			Help:    "Time spent validating a recipient file",
			Buckets: prometheus.DefBuckets,
		},
	)

	ValidatedRows = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_admin_validated_rows_total",
			Help: "Rows read by the recipient validator",
		},
	)

	JobsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_admin_jobs_created_total",
			Help: "Jobs the backend accepted",
		},
	)

	SendsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_admin_sends_rejected_total",
			Help: "Job or one-off sends rejected, by banner kind",
		},
		[]string{"kind"},
	)

	OneOffSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_admin_one_off_sent_total",
			Help: "One-off notifications the backend accepted",
		},
		[]string{"channel"},
	)

	BackendRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notify_admin_backend_request_seconds",
			Help:    "Notify API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "status"},
	)

	BlobOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_admin_blob_operations_total",
			Help: "Upload store operations",
		},
		[]string{"op", "status"},
	)

	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_admin_cache_lookups_total",
			Help: "Cache lookups by cache and result",
		},
		[]string{"cache", "result"},
	)

	HTTPRequests = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notify_admin_http_request_seconds",
			Help:    "Handled HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)
)

func Init() {
	prometheus.MustRegister(UploadsAccepted)
	prometheus.MustRegister(DecodeFailures)
	prometheus.MustRegister(ValidationDuration)
	prometheus.MustRegister(ValidatedRows)
	prometheus.MustRegister(JobsCreated)
	prometheus.MustRegister(SendsRejected)
	prometheus.MustRegister(OneOffSent)
	prometheus.MustRegister(BackendRequestDuration)
	prometheus.MustRegister(BlobOperations)
	prometheus.MustRegister(CacheLookups)
	prometheus.MustRegister(HTTPRequests)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func RecordBlobOp(op string, err error) {
	BlobOperations.WithLabelValues(op, status(err)).Inc()
}

func RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(cache, result).Inc()
}

func RecordBackendRequest(endpoint string, code int, start time.Time) {
	BackendRequestDuration.WithLabelValues(endpoint, statusClass(code)).Observe(time.Since(start).Seconds())
}

func RecordValidation(rows int, start time.Time) {
	ValidationDuration.Observe(time.Since(start).Seconds())
	ValidatedRows.Add(float64(rows))
}

func RecordHTTPRequest(method string, code int, d time.Duration) {
	HTTPRequests.WithLabelValues(method, statusClass(code)).Observe(d.Seconds())
}

// statusClass folds status codes into 2xx, 4xx and so on. Zero means the
// request never got a response.
func statusClass(code int) string {
	switch {
	case code == 0:
		return "none"
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	}
	return "5xx"
}
