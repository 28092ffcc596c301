package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Recognitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hrms",
		Name:      "recognitions_total",
		Help:      "Recognition attempts by outcome",
	}, []string{"outcome"})

	AttendanceTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hrms",
		Name:      "attendance_transitions_total",
		Help:      "Attendance ledger transitions",
	}, []string{"transition"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hrms",
		Name:      "inference_duration_seconds",
		Help:      "Duration of face inference stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	GallerySize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "hrms",
		Name:      "gallery_entries",
		Help:      "Number of known faces in the loaded gallery",
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hrms",
		Name:      "events_published_total",
		Help:      "Recognition events published to NATS",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hrms",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "hrms",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
