package core

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

// Counter is a monotonically increasing value. The zero value is usable.
type Counter struct {
	value int64
}

func (c *Counter) Inc()            { atomic.AddInt64(&c.value, 1) }
func (c *Counter) Add(delta int64) { atomic.AddInt64(&c.value, delta) }
func (c *Counter) Get() int64      { return atomic.LoadInt64(&c.value) }

// Gauge is a value that can go up and down. The zero value is usable.
type Gauge struct {
	value int64
}

func (g *Gauge) Set(value int64)   { atomic.StoreInt64(&g.value, value) }
func (g *Gauge) Inc()              { atomic.AddInt64(&g.value, 1) }
func (g *Gauge) Dec()              { atomic.AddInt64(&g.value, -1) }
func (g *Gauge) Add(delta int64)   { atomic.AddInt64(&g.value, delta) }
func (g *Gauge) Get() int64        { return atomic.LoadInt64(&g.value) }

// defaultBounds are cumulative histogram bounds in milliseconds, sized for
// page render and request latencies.
var defaultBounds = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// Histogram tracks a distribution over fixed cumulative buckets.
type Histogram struct {
	mu     sync.Mutex
	bounds []float64
	counts []int64
	sum    float64
	total  int64
}

// NewHistogram creates a histogram over the default latency buckets.
func NewHistogram() *Histogram {
	return &Histogram{
		bounds: defaultBounds,
		counts: make([]int64, len(defaultBounds)),
	}
}

// Observe records one value.
func (h *Histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += value
	h.total++
	for i, bound := range h.bounds {
		if value <= bound {
			h.counts[i]++
		}
	}
}

// GetBuckets returns the cumulative count per bucket bound.
func (h *Histogram) GetBuckets() map[float64]int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	buckets := make(map[float64]int64, len(h.bounds))
	for i, bound := range h.bounds {
		buckets[bound] = h.counts[i]
	}
	return buckets
}

func (h *Histogram) GetSum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

func (h *Histogram) GetCount() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

// Timer measures a duration and reports it to a histogram in milliseconds.
type Timer struct {
	start time.Time
	hist  *Histogram
}

func NewTimer(hist *Histogram) *Timer {
	return &Timer{start: time.Now(), hist: hist}
}

func (t *Timer) ObserveDuration() {
	t.hist.Observe(float64(time.Since(t.start).Nanoseconds()) / 1e6)
}

// MetricsCollector is a name-indexed registry of counters, gauges and
// histograms. Metrics are created lazily on first use.
type MetricsCollector struct {
	mu         sync.Mutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
	startTime  time.Time
}

// NewMetricsCollector creates an empty collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
		startTime:  time.Now(),
	}
}

// Counter returns the named counter, creating it on first use.
func (mc *MetricsCollector) Counter(name string) *Counter {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	c, ok := mc.counters[name]
	if !ok {
		c = &Counter{}
		mc.counters[name] = c
	}
	return c
}

// Gauge returns the named gauge, creating it on first use.
func (mc *MetricsCollector) Gauge(name string) *Gauge {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	g, ok := mc.gauges[name]
	if !ok {
		g = &Gauge{}
		mc.gauges[name] = g
	}
	return g
}

// Histogram returns the named histogram, creating it on first use.
func (mc *MetricsCollector) Histogram(name string) *Histogram {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	h, ok := mc.histograms[name]
	if !ok {
		h = NewHistogram()
		mc.histograms[name] = h
	}
	return h
}

// UpdateSystemMetrics refreshes the runtime gauges.
func (mc *MetricsCollector) UpdateSystemMetrics() {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	mc.Gauge("go_routines_count").Set(int64(runtime.NumGoroutine()))
	mc.Gauge("memory_usage_bytes").Set(int64(stats.Alloc))
	mc.Gauge("uptime_seconds").Set(int64(time.Since(mc.startTime).Seconds()))
}

// GetAllMetrics returns a snapshot of every registered metric by name.
func (mc *MetricsCollector) GetAllMetrics() map[string]interface{} {
	mc.UpdateSystemMetrics()

	mc.mu.Lock()
	defer mc.mu.Unlock()

	snapshot := make(map[string]interface{}, len(mc.counters)+len(mc.gauges)+len(mc.histograms))
	for name, c := range mc.counters {
		snapshot[name] = c.Get()
	}
	for name, g := range mc.gauges {
		snapshot[name] = g.Get()
	}
	for name, h := range mc.histograms {
		snapshot[name] = map[string]interface{}{
			"buckets": h.GetBuckets(),
			"sum":     h.GetSum(),
			"count":   h.GetCount(),
		}
	}
	return snapshot
}

// MetricsMiddleware collects per-request metrics for every route except
// /metrics itself.
func (mc *MetricsCollector) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		mc.Gauge("http_requests_in_flight").Inc()
		timer := NewTimer(mc.Histogram("http_request_duration_ms"))
		start := time.Now()

		c.Next()

		timer.ObserveDuration()
		mc.Gauge("http_requests_in_flight").Dec()
		mc.Counter("http_requests_total").Inc()

		if size := c.Writer.Size(); size > 0 {
			mc.Histogram("http_response_size_bytes").Observe(float64(size))
		}

		status := c.Writer.Status()
		if status >= 400 {
			mc.Counter("http_errors_total").Inc()
			if status == http.StatusNotFound {
				mc.Counter("route_not_found_total").Inc()
			}
		}

		if elapsed := time.Since(start); elapsed > time.Second {
			Info("Slow request: %s %s took %v", c.Request.Method, c.Request.URL.Path, elapsed)
		}
	}
}

// MetricsHandler serves the full metric snapshot as JSON.
func (mc *MetricsCollector) MetricsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"timestamp": time.Now(),
			"metrics":   mc.GetAllMetrics(),
		})
	}
}

// PrometheusHandler serves the snapshot in Prometheus text exposition format.
func (mc *MetricsCollector) PrometheusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		c.String(http.StatusOK, formatPrometheus(mc.GetAllMetrics()))
	}
}

func formatPrometheus(metrics map[string]interface{}) string {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		switch v := metrics[name].(type) {
		case int64:
			fmt.Fprintf(&b, "# TYPE %s gauge\n%s %d\n", name, name, v)
		case map[string]interface{}:
			buckets, ok := v["buckets"].(map[float64]int64)
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "# TYPE %s histogram\n", name)
			bounds := make([]float64, 0, len(buckets))
			for bound := range buckets {
				bounds = append(bounds, bound)
			}
			sort.Float64s(bounds)
			for _, bound := range bounds {
				fmt.Fprintf(&b, "%s_bucket{le=\"%.1f\"} %d\n", name, bound, buckets[bound])
			}
			fmt.Fprintf(&b, "%s_sum %.2f\n", name, v["sum"].(float64))
			fmt.Fprintf(&b, "%s_count %d\n", name, v["count"].(int64))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// StartMetricsCollector refreshes the runtime gauges until ctx ends.
func (mc *MetricsCollector) StartMetricsCollector(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mc.UpdateSystemMetrics()
		}
	}
}

// GlobalMetrics backs the /metrics endpoint.
var GlobalMetrics = NewMetricsCollector()

// Helpers used at the call sites so instrumented code stays short.

func RecordFileOperation()    { GlobalMetrics.Counter("file_operations_total").Inc() }
func RecordFileWatcherEvent() { GlobalMetrics.Counter("file_watcher_events_total").Inc() }
func RecordPluginError()      { GlobalMetrics.Counter("plugin_errors_total").Inc() }
func RecordPageServed()       { GlobalMetrics.Counter("pages_served_total").Inc() }
func RecordPageRendered()     { GlobalMetrics.Counter("pages_rendered_total").Inc() }
func RecordSearchQuery()      { GlobalMetrics.Counter("search_queries_total").Inc() }
func RecordRateLimitHit()     { GlobalMetrics.Counter("rate_limit_hits_total").Inc() }
func RecordRateLimitBlock()   { GlobalMetrics.Counter("rate_limit_blocks_total").Inc() }

func SetPostsCount(count int64)   { GlobalMetrics.Gauge("posts_indexed").Set(count) }
func SetFilesCount(count int64)   { GlobalMetrics.Gauge("files_total").Set(count) }
func SetRoutesCount(count int64)  { GlobalMetrics.Gauge("routes_total").Set(count) }
func SetPluginsCount(count int64) { GlobalMetrics.Gauge("plugins_registered").Set(count) }

func NewFileProcessingTimer() *Timer {
	return NewTimer(GlobalMetrics.Histogram("file_processing_duration_ms"))
}

func NewPluginExecutionTimer() *Timer {
	return NewTimer(GlobalMetrics.Histogram("plugin_execution_duration_ms"))
}

func NewRouteRebuildTimer() *Timer {
	return NewTimer(GlobalMetrics.Histogram("route_rebuild_duration_ms"))
}
