package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/salsowa/smarthome-core/internal/hierarchy"
	"github.com/salsowa/smarthome-core/internal/telemetry"
)

const metricsNamespace = "smarthome"

// httpMetrics holds the Prometheus collectors owned by the server.
type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// newHTTPMetrics registers request metrics, runtime collectors and gauges
// computed from the server's dependencies on reg.
func newHTTPMetrics(reg *prometheus.Registry, s *Server) (*httpMetrics, error) {
	m := &httpMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route pattern and status.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	cs := []prometheus.Collector{
		m.requests,
		m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		&entityCollector{store: s.store},
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "websocket",
			Name:      "clients",
			Help:      "Connected WebSocket clients.",
		}, func() float64 { return float64(s.hub.ClientCount()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "websocket",
			Name:      "dropped_events_total",
			Help:      "Events not delivered because a client's send buffer was full.",
		}, func() float64 { return float64(s.hub.Dropped()) }),
	}
	if s.telemetry != nil {
		cs = append(cs, &telemetryCollector{source: s.telemetry})
	}

	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *httpMetrics) observe(method, route, status string, elapsed time.Duration) {
	m.requests.WithLabelValues(method, route, status).Inc()
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

var entitiesDesc = prometheus.NewDesc(
	prometheus.BuildFQName(metricsNamespace, "hierarchy", "entities"),
	"Live entities in the hierarchy store by kind.",
	[]string{"kind"}, nil,
)

// entityCollector reports store counts with a single Stats call per scrape.
type entityCollector struct {
	store *hierarchy.Store
}

func (c *entityCollector) Describe(ch chan<- *prometheus.Desc) { ch <- entitiesDesc }

func (c *entityCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.store.Stats()
	for _, kind := range hierarchy.Kinds {
		ch <- prometheus.MustNewConstMetric(entitiesDesc, prometheus.GaugeValue, float64(stats[kind]), string(kind))
	}
}

var reportsDesc = prometheus.NewDesc(
	prometheus.BuildFQName(metricsNamespace, "telemetry", "reports_total"),
	"MQTT device data reports by outcome.",
	[]string{"outcome"}, nil,
)

type telemetryCollector struct {
	source TelemetryStats
}

func (c *telemetryCollector) Describe(ch chan<- *prometheus.Desc) { ch <- reportsDesc }

func (c *telemetryCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.source.Stats()
	for outcome, v := range map[string]uint64{
		"received":       st.Received,
		"accepted":       st.Accepted,
		"malformed":      st.Malformed,
		"unknown_device": st.Unknown,
	} {
		ch <- prometheus.MustNewConstMetric(reportsDesc, prometheus.CounterValue, float64(v), outcome)
	}
}

// SystemMetrics is the JSON snapshot served at /api/v1/metrics.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	MQTT          MQTTMetrics      `json:"mqtt"`
	Entities      map[string]int   `json:"entities"`
	Telemetry     *telemetry.Stats `json:"telemetry,omitempty"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int    `json:"connected_clients"`
	DroppedEvents    uint64 `json:"dropped_events"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// DatabaseMetrics contains audit database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns a JSON snapshot for dashboards that do not scrape
// Prometheus.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
			DroppedEvents:    s.hub.Dropped(),
		},
		Entities: make(map[string]int),
	}

	if s.mqtt != nil {
		metrics.MQTT.Connected = s.mqtt.IsConnected()
	}

	for kind, n := range s.store.Stats() {
		metrics.Entities[string(kind)] = n
	}

	if s.telemetry != nil {
		st := s.telemetry.Stats()
		metrics.Telemetry = &st
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
