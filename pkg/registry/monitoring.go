package registry

// Monitoring middlewares for registry interfaces

import (
	"context"
	"strconv"
	"time"

	"github.com/go-kit/kit/metrics/prometheus"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	pipelinemetrics "github.com/Sagar7777521/retail-store-sample-app/pkg/metrics"
)

const (
	LabelRequestKind  = "kind"
	RequestKindWrite  = "write"
	RequestKindTag    = "tag"
	RequestKindDigest = "digest"
	RequestKindExists = "exists"
	RequestKindCreate = "create"
)

var (
	remoteDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "pipeline",
		Subsystem: "registry",
		Name:      "request_duration_seconds",
		Help:      "Duration of registry requests, in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
	}, []string{LabelRequestKind, pipelinemetrics.LabelSuccess})
	publishAttempts = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "pipeline",
		Subsystem: "registry",
		Name:      "publish_attempts_total",
		Help:      "Count of attempts to publish an artifact.",
	}, []string{pipelinemetrics.LabelUnit, pipelinemetrics.LabelSuccess})
)

func observe(kind string, start time.Time, err error) {
	remoteDuration.With(
		LabelRequestKind, kind,
		pipelinemetrics.LabelSuccess, strconv.FormatBool(err == nil),
	).Observe(time.Since(start).Seconds())
}

type instrumentedClient struct {
	next Client
}

func NewInstrumentedClient(next Client) Client {
	return &instrumentedClient{
		next: next,
	}
}

func (m *instrumentedClient) Write(ctx context.Context, tag name.Tag, img v1.Image) (err error) {
	start := time.Now()
	err = m.next.Write(ctx, tag, img)
	observe(RequestKindWrite, start, err)
	return
}

func (m *instrumentedClient) Tag(ctx context.Context, tag name.Tag, img v1.Image) (err error) {
	start := time.Now()
	err = m.next.Tag(ctx, tag, img)
	observe(RequestKindTag, start, err)
	return
}

func (m *instrumentedClient) Digest(ctx context.Context, ref name.Reference) (res v1.Hash, err error) {
	start := time.Now()
	res, err = m.next.Digest(ctx, ref)
	observe(RequestKindDigest, start, err)
	return
}

func (m *instrumentedClient) Recover(host string) {
	if r, ok := m.next.(recoverer); ok {
		r.Recover(host)
	}
}

type instrumentedRepositories struct {
	next Repositories
}

func NewInstrumentedRepositories(next Repositories) Repositories {
	return &instrumentedRepositories{
		next: next,
	}
}

func (m *instrumentedRepositories) Exists(ctx context.Context, name string) (ok bool, err error) {
	start := time.Now()
	ok, err = m.next.Exists(ctx, name)
	observe(RequestKindExists, start, err)
	return
}

func (m *instrumentedRepositories) Create(ctx context.Context, name string) (err error) {
	start := time.Now()
	err = m.next.Create(ctx, name)
	observe(RequestKindCreate, start, err)
	return
}
