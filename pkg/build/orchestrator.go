package build

import (
	"bytes"
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/go-kit/kit/log"

	"github.com/Sagar7777521/retail-store-sample-app/pkg/logstore"
	pipelinemetrics "github.com/Sagar7777521/retail-store-sample-app/pkg/metrics"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/unit"
)

const DefaultTimeout = 20 * time.Minute

// Orchestrator runs the builds of a set of units concurrently.
type Orchestrator struct {
	Builder   Builder
	LogStore  logstore.Store
	SourceDir string
	RunID     string
	Timeout   time.Duration
	Logger    log.Logger
}

func (o *Orchestrator) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}

// Run builds each unit at the revision given, and returns a result per
// unit name. A failed build does not stop the others.
func (o *Orchestrator) Run(ctx context.Context, units []unit.Unit, revision string) map[string]Result {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]Result, len(units))
	)
	for _, u := range units {
		wg.Add(1)
		go func(u unit.Unit) {
			defer wg.Done()
			res := o.build(ctx, u, revision)
			mu.Lock()
			results[u.Name] = res
			mu.Unlock()
		}(u)
	}
	wg.Wait()
	return results
}

func (o *Orchestrator) build(ctx context.Context, u unit.Unit, revision string) Result {
	logger := log.With(o.Logger, "unit", u.Name)
	ctx, cancel := context.WithTimeout(ctx, o.timeout())
	defer cancel()

	var output bytes.Buffer
	started := time.Now()
	logger.Log("info", "building", "revision", revision)
	artifact, err := o.Builder.Build(ctx, Request{
		Unit:      u,
		SourceDir: o.SourceDir,
		Revision:  revision,
		LogWriter: &output,
	})
	buildDuration.With(
		pipelinemetrics.LabelUnit, u.Name,
		pipelinemetrics.LabelSuccess, strconv.FormatBool(err == nil),
	).Observe(time.Since(started).Seconds())

	res := Result{Unit: u.Name, Status: StatusSuccess, Artifact: artifact}
	if o.LogStore != nil {
		ref, logErr := o.LogStore.Put(context.Background(), logstore.Key(o.RunID, u.Name), output.Bytes())
		if logErr != nil {
			logger.Log("warning", "storing build log failed", "err", logErr)
		}
		res.LogRef = ref
	}
	if err != nil {
		res.Status = StatusFailure
		res.Artifact = Artifact{}
		res.Err = &Error{Unit: u.Name, Diagnostic: tail(output.String(), diagnosticLines), Err: err}
		logger.Log("err", err, "log", res.LogRef)
		return res
	}
	logger.Log("info", "built", "digest", artifact.Digest, "took", time.Since(started))
	return res
}
