package pipeline

import (
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	pipelinemetrics "github.com/Sagar7777521/retail-store-sample-app/pkg/metrics"
)

var (
	runDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "pipeline",
		Name:      "run_duration_seconds",
		Help:      "Duration of pipeline runs, in seconds.",
		Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 2400},
	}, []string{pipelinemetrics.LabelEvent, pipelinemetrics.LabelSuccess})

	unitOutcomes = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "pipeline",
		Name:      "unit_outcomes_total",
		Help:      "Count of unit outcomes, by stage reached.",
	}, []string{pipelinemetrics.LabelUnit, pipelinemetrics.LabelStatus})
)

// PushMetrics sends everything in the default registry to a
// Prometheus Pushgateway. Each run replaces the metrics of the last.
func PushMetrics(url, job string) error {
	return push.New(url, job).
		Gatherer(stdprometheus.DefaultGatherer).
		Push()
}
