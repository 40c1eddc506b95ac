package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "contentflow"

var (
	// ─── API Gateway ─────────────────────────────────────────────────────────────

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Total HTTP requests, labelled by route pattern and status code.",
	}, []string{"route", "code"})

	// ─── Workflow engine ─────────────────────────────────────────────────────────

	WorkflowRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "runs_total",
		Help:      "Article workflow runs, labelled by outcome (success, failure, error).",
	}, []string{"outcome"})

	WorkflowDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "duration_seconds",
		Help:      "End-to-end article workflow time in seconds.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	TaskTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "task_transitions_total",
		Help:      "Persisted task status transitions, labelled by task type and new status.",
	}, []string{"type", "status"})

	CapabilityDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "capability_duration_seconds",
		Help:      "Capability execution time in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
	}, []string{"capability", "outcome"})

	BatchTopicsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "batch_topics_total",
		Help:      "Topics processed by batch runs, labelled by outcome.",
	}, []string{"outcome"})

	DrainTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "drain_tasks_total",
		Help:      "Pending tasks considered by the drainer, labelled by outcome (completed, failed, skipped, leased).",
	}, []string{"outcome"})

	StaleTasksReapedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "stale_tasks_reaped_total",
		Help:      "Running tasks failed because they exceeded the execution timeout.",
	})

	// ─── RAG ─────────────────────────────────────────────────────────────────────

	RAGQueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rag",
		Name:      "queries_total",
		Help:      "RAG queries, labelled by outcome.",
	}, []string{"outcome"})

	RAGConfidence = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "rag",
		Name:      "confidence",
		Help:      "Retrieval confidence of answered queries.",
		Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
	})

	RAGSourcesUsed = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "rag",
		Name:      "sources_used",
		Help:      "Number of resolved sources placed in the generation context.",
		Buckets:   []float64{0, 1, 2, 3, 4, 5},
	})

	// ─── LLM ─────────────────────────────────────────────────────────────────────

	LLMRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "llm",
		Name:      "requests_total",
		Help:      "Calls to the model provider, labelled by operation and outcome.",
	}, []string{"op", "outcome"})

	LLMRateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "llm",
		Name:      "rate_limited_total",
		Help:      "Generation calls rejected by the shared rate limiter.",
	})

	EmbeddingCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "llm",
		Name:      "embedding_cache_total",
		Help:      "Embedding cache lookups, labelled by result (hit, miss, error).",
	}, []string{"result"})

	// ─── Worker ──────────────────────────────────────────────────────────────────

	WorkerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "article_requests_total",
		Help:      "Article requests consumed from Kafka, labelled by outcome (processed, malformed, interrupted).",
	}, []string{"outcome"})

	WorkerRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "article_requests_in_flight",
		Help:      "Article requests currently being processed.",
	})

	// ─── Drainer ─────────────────────────────────────────────────────────────────

	DrainerTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "drainer",
		Name:      "ticks_total",
		Help:      "Scheduled drain ticks, labelled by result (leader, follower, error).",
	}, []string{"result"})
)
