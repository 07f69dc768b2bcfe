// Package metrics exposes prometheus instrumentation for transfers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UploadsTotal counts upload attempts by transport mode and outcome
	// (ok, size_limit, timeout, transport_error, error).
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tgvault",
		Subsystem: "transfer",
		Name:      "uploads_total",
		Help:      "Upload attempts by mode and outcome.",
	}, []string{"mode", "outcome"})

	// DownloadsTotal counts download attempts by transport mode and outcome.
	DownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tgvault",
		Subsystem: "transfer",
		Name:      "downloads_total",
		Help:      "Download attempts by mode and outcome.",
	}, []string{"mode", "outcome"})

	// BytesTotal counts payload bytes moved through the transports.
	BytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tgvault",
		Subsystem: "transfer",
		Name:      "bytes_total",
		Help:      "Payload bytes transferred by direction and mode.",
	}, []string{"direction", "mode"})
)
