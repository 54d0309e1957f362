package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexnote_http_requests_total",
		Help: "HTTP requests handled, by route and status class.",
	}, []string{"route", "status"})

	DocumentsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nexnote_documents_ingested_total",
		Help: "Uploaded documents that produced at least one stored chunk.",
	})

	ChunksEmbedded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nexnote_chunks_embedded_total",
		Help: "Chunks successfully embedded and upserted.",
	})

	EmbeddingFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nexnote_embedding_failures_total",
		Help: "Chunks skipped because embedding failed.",
	})

	GenerationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nexnote_generation_failures_total",
		Help: "Chat completions that degraded to a diagnostic answer.",
	})

	SearchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nexnote_search_failures_total",
		Help: "Knowledge base searches that degraded to empty results.",
	})
)
