package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Attempts tracks yt-dlp invocations per client variant and outcome
	Attempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytaudio_attempts_total",
			Help: "Total number of yt-dlp invocations",
		},
		[]string{"variant", "outcome"},
	)

	// Failures tracks classified attempt failures
	Failures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytaudio_attempt_failures_total",
			Help: "Total number of failed attempts by failure kind",
		},
		[]string{"kind"},
	)

	// Downloads tracks orchestrated downloads by final result
	Downloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytaudio_downloads_total",
			Help: "Total number of orchestrated downloads",
		},
		[]string{"result"},
	)

	// DownloadDuration tracks end-to-end orchestration latency
	DownloadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ytaudio_download_duration_seconds",
			Help:    "Orchestrated download latency in seconds",
			Buckets: []float64{1, 2.5, 5, 10, 20, 40, 60, 120, 300, 600},
		},
		[]string{"result"},
	)

	// PacerWait tracks how long requests were held by the pacer
	PacerWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ytaudio_pacer_wait_seconds",
			Help:    "Time spent waiting for a pacing slot",
			Buckets: []float64{0, 0.5, 1, 2, 4, 8, 16, 32},
		},
	)

	// ActiveDownloads is the number of downloads in flight
	ActiveDownloads = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ytaudio_active_downloads",
			Help: "Downloads currently being orchestrated",
		},
	)
)
