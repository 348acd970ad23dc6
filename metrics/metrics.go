// Package metrics 提供推荐子系统的 Prometheus 指标。
// 不强制注册：reg 传 nil 时采集器照常工作但不暴露，方便测试与库内嵌使用。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	cacheOps      *prometheus.CounterVec
	trainRuns     *prometheus.CounterVec
	trainDuration *prometheus.HistogramVec
	fallbacks     *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cacheOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "budrec",
			Name:      "cache_ops_total",
			Help:      "Recommendation cache operations by tier and result.",
		}, []string{"tier", "result"}),
		trainRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "budrec",
			Name:      "train_runs_total",
			Help:      "Training runs by content type and outcome.",
		}, []string{"content_type", "result"}),
		trainDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "budrec",
			Name:      "train_duration_seconds",
			Help:      "Wall time of full retrain runs.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"content_type"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "budrec",
			Name:      "popularity_fallbacks_total",
			Help:      "Serving requests answered by the popularity fallback.",
		}, []string{"content_type", "reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.cacheOps, m.trainRuns, m.trainDuration, m.fallbacks)
	}
	return m
}

// CacheOp 记录一次缓存操作。tier: shared/local，result: hit/miss/error。
func (m *Metrics) CacheOp(tier, result string) {
	if m == nil {
		return
	}
	m.cacheOps.WithLabelValues(tier, result).Inc()
}

// TrainRun 记录一次训练结果与耗时。
func (m *Metrics) TrainRun(contentType string, ok bool, dur time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.trainRuns.WithLabelValues(contentType, result).Inc()
	if ok {
		m.trainDuration.WithLabelValues(contentType).Observe(dur.Seconds())
	}
}

// Fallback 记录一次热门兜底。reason: untrained/cold_start/engine_error。
func (m *Metrics) Fallback(contentType, reason string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(contentType, reason).Inc()
}
