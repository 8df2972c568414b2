package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ask pipeline outcome labels.
const (
	OutcomeAnswered           = "answered"
	OutcomeRefusedNoEvidence  = "refused_no_evidence"
	OutcomeRefusedUnsupported = "refused_unsupported"
	OutcomeError              = "error"
)

// Ask pipeline metrics.
var (
	AskRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "citedex",
			Name:      "ask_requests_total",
			Help:      "Total ask requests by outcome",
		},
		[]string{"outcome"},
	)

	RetrievalPassages = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "citedex",
			Name:      "retrieval_passages",
			Help:      "Number of passages surviving the similarity threshold gate",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
	)

	IngestedChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "citedex",
			Name:      "ingested_chunks_total",
			Help:      "Total chunks written to the vector index",
		},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers ask pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(AskRequestsTotal)
	prometheus.MustRegister(RetrievalPassages)
	prometheus.MustRegister(IngestedChunksTotal)
	pipelineMetricsRegistered = true
}
