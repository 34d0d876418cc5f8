package processor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline Prometheus 指标
var (
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resume_scanner",
			Name:      "runs_total",
			Help:      "Total number of scan runs by final state and error kind",
		},
		[]string{"state", "kind"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "resume_scanner",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	PersistOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resume_scanner",
			Name:      "persist_outcomes_total",
			Help:      "Persistence outcomes by sink and outcome",
		},
		[]string{"sink", "outcome"},
	)

	ExtractionStrategyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resume_scanner",
			Name:      "extraction_strategy_total",
			Help:      "Text extraction attempts by strategy and result",
		},
		[]string{"strategy", "result"}, // "ok" / "failed"
	)
)

var registerOnce sync.Once

// RegisterMetrics 注册到默认 registry，只在 main 中调用一次
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(RunsTotal, StageDuration, PersistOutcomesTotal, ExtractionStrategyTotal)
	})
}
