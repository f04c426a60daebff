// Package pipeline drives one invocation: detect the changed units,
// build them, publish what built, and record what was published in
// the deployment manifests with a single commit.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/uuid"

	"github.com/Sagar7777521/retail-store-sample-app/pkg/build"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/detect"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/gitops"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/manifest"
	pipelinemetrics "github.com/Sagar7777521/retail-store-sample-app/pkg/metrics"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/registry"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/trigger"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/unit"
)

type Detector interface {
	Detect(ctx context.Context, ev trigger.Event) (detect.ChangeSet, error)
}

type Builds interface {
	Run(ctx context.Context, units []unit.Unit, revision string) map[string]build.Result
}

type Publisher interface {
	Publish(ctx context.Context, u unit.Unit, img v1.Image, tag string) (registry.Location, error)
}

type Committer interface {
	Commit(ctx context.Context, req gitops.Request) (gitops.Result, error)
}

type Pipeline struct {
	RunID     string
	Detector  Detector
	Builds    Builds
	Publisher Publisher
	Committer Committer
	Units     unit.Set
	// WorkDir is the checkout the builds run from.
	WorkDir string
	// DryRun builds, but neither publishes nor commits.
	DryRun bool
	Logger log.Logger
}

// Run runs the pipeline for the event. The summary is always
// returned; the error is only for failures of the run as a whole,
// e.g., when detection or the manifest commit failed.
func (p *Pipeline) Run(ctx context.Context, ev trigger.Event) (*Summary, error) {
	runID := p.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	started := time.Now()
	s := newSummary(runID, ev, p.Units)
	logger := log.With(p.Logger, "run", runID)
	defer func() {
		runDuration.With(
			pipelinemetrics.LabelEvent, string(ev.Kind),
			pipelinemetrics.LabelSuccess, strconv.FormatBool(s.OK),
		).Observe(time.Since(started).Seconds())
	}()

	err := p.run(ctx, logger, ev, s)
	s.Err = err
	s.finish()
	for name, r := range s.Units {
		unitOutcomes.With(pipelinemetrics.LabelUnit, name, pipelinemetrics.LabelStatus, string(r.Status)).Add(1)
	}
	if s.OK {
		logger.Log("info", "run succeeded", "took", time.Since(started))
	} else {
		logger.Log("err", s.Error(), "took", time.Since(started))
	}
	return s, err
}

func (p *Pipeline) run(ctx context.Context, logger log.Logger, ev trigger.Event, s *Summary) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if ev.Kind == trigger.Manual {
		return fmt.Errorf("%s events are for infrastructure runs, not the build pipeline", ev.Kind)
	}
	logger.Log("info", "starting run", "event", ev)

	cs, err := p.Detector.Detect(ctx, ev)
	if err != nil {
		return err
	}
	s.Base, s.Head = cs.Base, cs.Head
	if cs.Skipped || cs.Empty() {
		logger.Log("info", "nothing to build", "skipped", cs.Skipped)
		return nil
	}

	var units []unit.Unit
	for _, name := range cs.Units() {
		if u, ok := p.Units.Get(name); ok {
			units = append(units, u)
		}
	}

	built := map[string]build.Artifact{}
	for name, res := range p.Builds.Run(ctx, units, cs.Head) {
		if res.Err != nil {
			s.Units[name] = UnitResult{Status: StatusBuildFailed, LogRef: res.LogRef, Error: res.Err.Error()}
			continue
		}
		built[name] = res.Artifact
		s.Units[name] = UnitResult{Status: StatusBuilt, Digest: res.Artifact.Digest.String(), LogRef: res.LogRef}
	}
	if ev.Kind == trigger.PullRequest || p.DryRun {
		logger.Log("info", "not publishing", "event", ev.Kind, "dry-run", p.DryRun)
		return nil
	}

	patches := p.publish(ctx, units, built, cs.Head, s)
	for _, name := range sortedNames(patches) {
		// a manifest that can't take the patch fails its unit only;
		// the others still get committed
		if err := manifest.Check(p.WorkDir, patches[name]); err != nil {
			r := s.Units[name]
			r.Status, r.Error = StatusManifestFailed, err.Error()
			s.Units[name] = r
			delete(patches, name)
		}
	}
	if len(patches) == 0 {
		return nil
	}

	req := gitops.Request{Revision: cs.Head, Branch: ev.Branch, Units: p.Units}
	for _, name := range sortedNames(patches) {
		req.Patches = append(req.Patches, patches[name])
	}
	res, err := p.Committer.Commit(ctx, req)
	for name := range patches {
		r := s.Units[name]
		if err != nil {
			r.Status, r.Error = StatusManifestFailed, err.Error()
		} else {
			r.Status = StatusManifestUpdated
		}
		s.Units[name] = r
	}
	if err != nil {
		return err
	}
	s.Commit = res.Revision
	return nil
}

// publish publishes every built artifact concurrently, and returns the
// manifest patches for those that made it.
func (p *Pipeline) publish(ctx context.Context, units []unit.Unit, built map[string]build.Artifact, tag string, s *Summary) map[string]manifest.Patch {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		patches = map[string]manifest.Patch{}
	)
	for _, u := range units {
		artifact, ok := built[u.Name]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(u unit.Unit, artifact build.Artifact) {
			defer wg.Done()
			loc, err := p.Publisher.Publish(ctx, u, artifact.Image, tag)

			mu.Lock()
			defer mu.Unlock()
			r := s.Units[u.Name]
			if err != nil {
				r.Status, r.Error = StatusPublishFailed, err.Error()
				s.Units[u.Name] = r
				return
			}
			r.Status = StatusPublished
			r.Image = loc.Repository + ":" + loc.Tag
			s.Units[u.Name] = r
			patches[u.Name] = manifest.NewImagePatch(u, loc.Repository, loc.Tag)
		}(u, artifact)
	}
	wg.Wait()
	return patches
}

func sortedNames(patches map[string]manifest.Patch) []string {
	names := make([]string, 0, len(patches))
	for name := range patches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
