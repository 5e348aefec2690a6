// Package metrics 提供 Prometheus 指标采集功能
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "z_image"
)

var (
	// HTTP 请求指标
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// 业务指标 - 图像精炼
	RefinementRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refine",
			Name:      "requests_total",
			Help:      "Total number of refinement requests by completion reason",
		},
		[]string{"reason"},
	)

	RefinementIterations = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "refine",
			Name:      "iterations",
			Help:      "Iterations consumed per refinement request",
			Buckets:   []float64{1, 2, 3, 4, 5, 7, 10, 15, 20},
		},
		[]string{"reason"},
	)

	RefinementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "refine",
			Name:      "duration_seconds",
			Help:      "Refinement request duration in seconds",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"reason"},
	)

	AggregateScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "refine",
			Name:      "aggregate_score",
			Help:      "Aggregate panel score per iteration",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	// 评审指标
	JudgeInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "judge",
			Name:      "invocations_total",
			Help:      "Total judge invocations by outcome",
		},
		[]string{"agent_type", "outcome"}, // outcome: ok/failed/timeout
	)

	JudgeScore = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "judge",
			Name:      "score",
			Help:      "Individual judge scores",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
		[]string{"agent_type"},
	)

	// LLM 指标
	LLMCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Total LLM calls by status",
		},
		[]string{"provider", "model", "status"}, // status: success/error
	)

	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "LLM call duration in seconds",
			Buckets:   []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"provider", "model"},
	)

	LLMTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_used_total",
			Help:      "Total tokens used for LLM calls",
		},
		[]string{"provider", "model", "type"}, // type: prompt/completion
	)

	EmbeddingTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "tokens_used_total",
			Help:      "Total tokens used for embedding calls",
		},
		[]string{"model"},
	)

	// 图像生成指标
	ImageGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "imagegen",
			Name:      "generations_total",
			Help:      "Total image generation calls by status",
		},
		[]string{"model", "status"},
	)

	ImageGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "imagegen",
			Name:      "duration_seconds",
			Help:      "Image generation call duration in seconds",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"model"},
	)

	// 成本指标
	EstimatedCostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cost",
			Name:      "estimated_usd_total",
			Help:      "Estimated spend in USD by resource kind",
		},
		[]string{"kind"}, // kind: llm_tokens/embedding_tokens/image_generations
	)

	// 检索指标
	RetrievalQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "queries_total",
			Help:      "Total retrieval queries by status",
		},
		[]string{"status"},
	)

	RetrievalChunksReturned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "chunks_returned",
			Help:      "Chunks returned per retrieval query",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
	)
)
