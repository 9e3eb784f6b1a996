package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Producer stream metrics
	LinesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_producer_lines_total",
			Help: "Total number of stdout lines read from the producer, by decoded kind",
		},
		[]string{"kind"},
	)

	StderrLines = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_producer_stderr_lines_total",
			Help: "Total number of diagnostic lines drained from the producer's stderr",
		},
	)

	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_producer_sessions_total",
			Help: "Total number of producer sessions, by outcome",
		},
		[]string{"outcome"},
	)

	SessionRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_producer_session_running",
			Help: "1 while a producer session is running",
		},
	)

	LinePanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_bridge_line_panics_total",
			Help: "Total number of panics recovered while handling a line",
		},
	)

	// Broadcast metrics
	Subscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_broadcast_subscribers",
			Help: "Number of connected subscribers",
		},
	)

	Broadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_broadcast_events_total",
			Help: "Total number of events published to subscribers",
		},
		[]string{"event"},
	)

	DeliveryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_broadcast_delivery_errors_total",
			Help: "Total number of failed per-subscriber deliveries",
		},
		[]string{"event"},
	)

	// Anomaly metrics
	AnomaliesExtracted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_anomalies_extracted_total",
			Help: "Total number of anomalies extracted from stats payloads",
		},
	)

	AnomalyParseErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_anomaly_parse_errors_total",
			Help: "Total number of stats payloads that could not be parsed for anomalies",
		},
	)

	// Storage metrics
	AnomaliesStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_anomalies_stored_total",
			Help: "Total number of anomalies persisted",
		},
	)

	StorageDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "monitor_storage_duration_seconds",
			Help:    "Duration of anomaly batch inserts in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	StorageErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_storage_errors_total",
			Help: "Total number of failed anomaly batch inserts",
		},
	)

	StatsErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_stats_errors_total",
			Help: "Total number of failed anomaly counter updates",
		},
	)

	// Process control metrics
	KillsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_process_kills_total",
			Help: "Total number of process kill requests, by result",
		},
		[]string{"result"},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"key"},
	)

	// Relay metrics
	RelayErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_relay_errors_total",
			Help: "Total number of failed NATS relay publishes",
		},
		[]string{"subject"},
	)
)
