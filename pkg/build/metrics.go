package build

import (
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	pipelinemetrics "github.com/Sagar7777521/retail-store-sample-app/pkg/metrics"
)

var buildDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
	Namespace: "pipeline",
	Subsystem: "build",
	Name:      "duration_seconds",
	Help:      "Duration of unit builds, in seconds.",
	Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
}, []string{pipelinemetrics.LabelUnit, pipelinemetrics.LabelSuccess})
