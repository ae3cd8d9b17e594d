package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registerOnce           sync.Once
	feedQueryRequests      *prometheus.CounterVec
	feedQueryDuration      *prometheus.HistogramVec
	interactionMutations   *prometheus.CounterVec
	counterIncrements      *prometheus.CounterVec
	defaultDurationBuckets = prometheus.DefBuckets
)

const (
	namespaceMetrics = "prompthub"
)

// MustRegister 初始化 Prometheus 指标并注册 Go 运行时采样器，需在应用启动阶段调用一次。
func MustRegister() {
	registerOnce.Do(func() {
		feedQueryRequests = registerCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespaceMetrics,
					Subsystem: "feed",
					Name:      "requests_total",
					Help:      "发现页查询次数，按缓存命中情况统计。",
				},
				[]string{"cache"},
			),
		)
		feedQueryDuration = registerHistogramVec(
			prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespaceMetrics,
					Subsystem: "feed",
					Name:      "duration_seconds",
					Help:      "发现页查询耗时，按缓存命中情况区分。",
					Buckets:   defaultDurationBuckets,
				},
				[]string{"cache"},
			),
		)
		interactionMutations = registerCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespaceMetrics,
					Subsystem: "interaction",
					Name:      "mutations_total",
					Help:      "点赞与收藏切换次数，按动作与结果拆分。",
				},
				[]string{"action", "result"},
			),
		)
		counterIncrements = registerCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespaceMetrics,
					Subsystem: "interaction",
					Name:      "counter_increments_total",
					Help:      "浏览与复制计数自增次数。",
				},
				[]string{"counter"},
			),
		)

		registerRuntimeCollectors()
	})
}

// ObserveFeedQuery 记录一次发现页查询的缓存结果与耗时。
func ObserveFeedQuery(cacheResult string, duration time.Duration) {
	if feedQueryRequests == nil || feedQueryDuration == nil {
		return
	}
	label := normalizeLabel(cacheResult, "unknown")
	feedQueryRequests.WithLabelValues(label).Inc()
	feedQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// RecordInteractionMutation 记录点赞/收藏切换的动作与结果分布。
func RecordInteractionMutation(action, result string) {
	if interactionMutations == nil {
		return
	}
	interactionMutations.WithLabelValues(
		normalizeLabel(action, "unknown"),
		normalizeLabel(result, "unknown"),
	).Inc()
}

// RecordCounterIncrement 记录浏览或复制计数自增。
func RecordCounterIncrement(counter string) {
	if counterIncrements == nil {
		return
	}
	counterIncrements.WithLabelValues(normalizeLabel(counter, "unknown")).Inc()
}

func normalizeLabel(value string, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func registerCounterVec(vec *prometheus.CounterVec) *prometheus.CounterVec {
	if err := prometheus.Register(vec); err != nil {
		if existing := alreadyRegisteredCounterVec(err); existing != nil {
			return existing
		}
		panic(err)
	}
	return vec
}

func registerHistogramVec(vec *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := prometheus.Register(vec); err != nil {
		if existing := alreadyRegisteredHistogramVec(err); existing != nil {
			return existing
		}
		panic(err)
	}
	return vec
}

func registerRuntimeCollectors() {
	if err := prometheus.Register(collectors.NewGoCollector()); err != nil {
		if !isAlreadyRegistered(err) {
			panic(err)
		}
	}
	if err := prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		if !isAlreadyRegistered(err) {
			panic(err)
		}
	}
}

func alreadyRegisteredCounterVec(err error) *prometheus.CounterVec {
	if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
		if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
			return existing
		}
	}
	return nil
}

func alreadyRegisteredHistogramVec(err error) *prometheus.HistogramVec {
	if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
		if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
			return existing
		}
	}
	return nil
}

func isAlreadyRegistered(err error) bool {
	_, ok := err.(prometheus.AlreadyRegisteredError)
	return ok
}
