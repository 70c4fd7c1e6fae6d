package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autofollow",
		Name:      "actions_total",
		Help:      "Relationship actions attempted, by result.",
	}, []string{"action", "result"})
	RejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autofollow",
		Name:      "filter_rejections_total",
		Help:      "Candidates rejected by the filter pipeline, by stage.",
	}, []string{"stage"})
	CandidatesExtracted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "autofollow",
		Name:      "candidates_extracted_total",
		Help:      "Candidates produced by the extractor.",
	})
	PaginationRounds = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autofollow",
		Name:      "pagination_rounds_total",
		Help:      "Pagination rounds, by outcome (fresh, idle).",
	}, []string{"outcome"})
	StorageFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "autofollow",
		Name:      "storage_write_failures_total",
		Help:      "Durable store writes that failed.",
	})
	NavigationRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "autofollow",
		Name:      "navigation_retries_total",
		Help:      "List-driven navigations retried after a location mismatch.",
	})
	Processed = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "autofollow",
		Name:      "run_processed",
		Help:      "Processed count of the active run.",
	})
)

var once sync.Once

// Init registers collectors; safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(ActionsTotal, RejectionsTotal, CandidatesExtracted,
			PaginationRounds, StorageFailures, NavigationRetries, Processed)
	})
}

// Handler returns the /metrics handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
