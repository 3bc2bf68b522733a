package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SummarizeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "summaid_summarize_duration_seconds",
			Help:    "End-to-end summarization duration in seconds",
			Buckets: []float64{1, 2, 5, 10, 30, 60, 120},
		},
	)

	SummarizeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summaid_summarize_total",
			Help: "Total summarization runs by outcome",
		},
		[]string{"status"},
	)

	ExtractorOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summaid_extractor_outcomes_total",
			Help: "Per-extractor outcomes (success, timeout, error)",
		},
		[]string{"extractor", "outcome"},
	)

	RetrievalChunks = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "summaid_retrieval_chunks",
			Help:    "Number of evidence chunks returned per retrieval",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	SafetyChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summaid_safety_checks_total",
			Help: "Safety checks by verdict",
		},
		[]string{"verdict"},
	)

	ChatTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summaid_chat_total",
			Help: "Chat requests by outcome",
		},
		[]string{"status"},
	)

	DocumentsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "summaid_documents_ingested_total",
			Help: "Total report pages ingested",
		},
	)

	ChunksStored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "summaid_chunks_stored_total",
			Help: "Total chunks persisted with embeddings",
		},
	)

	EditsAppended = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "summaid_doctor_edits_total",
			Help: "Total clinician edit entries appended",
		},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summaid_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	EmbeddingCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "summaid_embedding_cache_hits_total",
			Help: "Embedding cache hits",
		},
	)

	EmbeddingCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "summaid_embedding_cache_misses_total",
			Help: "Embedding cache misses",
		},
	)
)

func Init() {
	prometheus.MustRegister(SummarizeDuration)
	prometheus.MustRegister(SummarizeTotal)
	prometheus.MustRegister(ExtractorOutcomes)
	prometheus.MustRegister(RetrievalChunks)
	prometheus.MustRegister(SafetyChecks)
	prometheus.MustRegister(ChatTotal)
	prometheus.MustRegister(DocumentsIngested)
	prometheus.MustRegister(ChunksStored)
	prometheus.MustRegister(EditsAppended)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(EmbeddingCacheHits)
	prometheus.MustRegister(EmbeddingCacheMisses)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
