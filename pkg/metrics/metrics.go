package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 指标管理器
type Metrics struct {
	// HTTP请求指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 生成任务指标
	generationsTotal   *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	activeTasks        prometheus.Gauge

	// 模型与缓存指标
	modelLoadsTotal  *prometheus.CounterVec
	promptCacheTotal *prometheus.CounterVec

	// 导出指标
	exportsTotal   *prometheus.CounterVec
	exportDuration prometheus.Histogram
}

// NewMetrics 创建指标管理器
func NewMetrics() *Metrics {
	return &Metrics{
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		generationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicebox_generations_total",
				Help: "Total number of finished generation tasks",
			},
			[]string{"status", "model_size"},
		),
		generationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voicebox_generation_duration_seconds",
				Help:    "Wall-clock duration of generation tasks",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			},
			[]string{"model_size"},
		),
		activeTasks: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "voicebox_active_tasks",
				Help: "Number of tasks currently tracked by the task manager",
			},
		),
		modelLoadsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicebox_model_loads_total",
				Help: "Model load attempts by size and outcome",
			},
			[]string{"model_size", "outcome"},
		),
		promptCacheTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicebox_prompt_cache_total",
				Help: "Voice prompt cache lookups by outcome",
			},
			[]string{"outcome"}, // hit / miss
		),
		exportsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicebox_story_exports_total",
				Help: "Story export attempts by outcome",
			},
			[]string{"outcome"},
		),
		exportDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "voicebox_story_export_duration_seconds",
				Help:    "Story export render duration",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),
	}
}

func (m *Metrics) ObserveGeneration(status, modelSize string, elapsed time.Duration) {
	m.generationsTotal.WithLabelValues(status, modelSize).Inc()
	if status == "complete" {
		m.generationDuration.WithLabelValues(modelSize).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) SetActiveTasks(n int)            { m.activeTasks.Set(float64(n)) }
func (m *Metrics) ObserveModelLoad(size, out string) { m.modelLoadsTotal.WithLabelValues(size, out).Inc() }
func (m *Metrics) ObservePromptCache(outcome string) { m.promptCacheTotal.WithLabelValues(outcome).Inc() }

func (m *Metrics) ObserveExport(outcome string, elapsed time.Duration) {
	m.exportsTotal.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.exportDuration.Observe(elapsed.Seconds())
	}
}

// GinMiddleware HTTP 请求指标采集
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler 暴露 /metrics
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
