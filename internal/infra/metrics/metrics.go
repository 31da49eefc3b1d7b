package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	PostsGeneratedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "posts_generated_total",
		Help: "Количество сгенерированных постов",
	}, []string{"source"})

	PostsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "posts_published_total",
		Help: "Количество опубликованных постов",
	}, []string{"source"})

	PublishDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "publish_duration_seconds",
		Help:    "Время полного цикла публикации поста",
		Buckets: prometheus.DefBuckets,
	})

	SchedulerRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_runs_total",
		Help: "Запуски запланированной публикации",
	}, []string{"status"})

	NullFlagsFixedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "posts_null_flags_fixed_total",
		Help: "Исправленные NULL-значения флага публикации",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60, 120},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	LLMGenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_generation_duration_seconds",
		Help:    "Длительность генерации ответа LLM",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	LLMTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Количество токенов, использованных LLM",
	}, []string{"model", "type"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		PostsGeneratedTotal,
		PostsPublishedTotal,
		PublishDurationSeconds,
		SchedulerRunsTotal,
		NullFlagsFixedTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
		LLMGenerationDuration,
		LLMTokensTotal,
	)
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveLLMGeneration записывает длительность и токены генерации LLM.
func ObserveLLMGeneration(model string, duration time.Duration, promptTokens, completionTokens, totalTokens int) {
	if model == "" {
		model = "unknown"
	}
	LLMGenerationDuration.WithLabelValues(model).Observe(duration.Seconds())
	if promptTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
	if totalTokens <= 0 {
		totalTokens = promptTokens + completionTokens
	}
	if totalTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "total").Add(float64(totalTokens))
	}
}

// IncGenerated увеличивает счётчик сгенерированных постов.
func IncGenerated(source string) {
	PostsGeneratedTotal.WithLabelValues(source).Inc()
}

// IncPublished увеличивает счётчик опубликованных постов.
func IncPublished(source string) {
	PostsPublishedTotal.WithLabelValues(source).Inc()
}

// IncSchedulerRun фиксирует исход запуска планировщика.
func IncSchedulerRun(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	SchedulerRunsTotal.WithLabelValues(status).Inc()
}
