// Package metrics provides Prometheus metrics for the retrieval engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Session metrics
	connectAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buscaboleto_sftp_connect_attempts_total",
			Help: "Total SFTP connection attempts",
		},
		[]string{"result"},
	)

	reconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "buscaboleto_sftp_reconnects_total",
			Help: "Total reconnection cycles triggered by a dead session",
		},
	)

	// Walk metrics
	walkDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "buscaboleto_remote_walk_duration_seconds",
			Help:    "Remote directory walk duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	walkFilesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "buscaboleto_remote_walk_files_total",
			Help: "Total files returned by remote walks",
		},
	)

	walkSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "buscaboleto_remote_walk_skipped_subtrees_total",
			Help: "Total subtrees skipped because listing them failed",
		},
	)

	// Transfer metrics
	downloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buscaboleto_downloads_total",
			Help: "Total single-file downloads",
		},
		[]string{"status"},
	)

	downloadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "buscaboleto_download_bytes_total",
			Help: "Total bytes downloaded from the remote server",
		},
	)

	archivesBuiltTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "buscaboleto_archives_built_total",
			Help: "Total batch archives written",
		},
	)

	archivedFilesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "buscaboleto_archived_files_total",
			Help: "Total files bundled into batch archives",
		},
	)

	// Search metrics
	searchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buscaboleto_searches_total",
			Help: "Total document searches",
		},
		[]string{"mode"},
	)

	// Tax document service metrics
	nfseRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buscaboleto_nfse_requests_total",
			Help: "Total tax document service requests",
		},
		[]string{"step", "status"},
	)

	nfseRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "buscaboleto_nfse_request_duration_seconds",
			Help:    "Tax document service request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"step"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordConnectAttempt records one connection attempt.
func RecordConnectAttempt(success bool) {
	result := "error"
	if success {
		result = "success"
	}
	connectAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordReconnect records one dead-session reconnect cycle.
func RecordReconnect() {
	reconnectsTotal.Inc()
}

// RecordWalk records one remote walk.
func RecordWalk(duration time.Duration, files, skipped int) {
	walkDuration.Observe(duration.Seconds())
	walkFilesTotal.Add(float64(files))
	walkSkippedTotal.Add(float64(skipped))
}

// RecordDownload records one single-file download.
func RecordDownload(bytes int64, success bool) {
	status := "error"
	if success {
		status = "success"
		downloadBytesTotal.Add(float64(bytes))
	}
	downloadsTotal.WithLabelValues(status).Inc()
}

// RecordArchive records one batch archive build.
func RecordArchive(files int) {
	archivesBuiltTotal.Inc()
	archivedFilesTotal.Add(float64(files))
}

// RecordSearch records one search by mode ("number" or "period").
func RecordSearch(mode string) {
	searchesTotal.WithLabelValues(mode).Inc()
}

// RecordNFSeRequest records one tax document service call.
func RecordNFSeRequest(step, status string, duration time.Duration) {
	nfseRequestsTotal.WithLabelValues(step, status).Inc()
	nfseRequestDuration.WithLabelValues(step).Observe(duration.Seconds())
}
