package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/kit/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Sagar7777521/retail-store-sample-app/pkg/build"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/config"
	pipelineerr "github.com/Sagar7777521/retail-store-sample-app/pkg/errors"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/logstore"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/pipeline"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/trigger"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/unit"
)

type runOpts struct {
	*rootOpts
	event       eventOpts
	summaryFile string
}

func newRun(parent *rootOpts) *runOpts {
	return &runOpts{rootOpts: parent}
}

func (opts *runOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build, publish and record the units changed by the event.",
		Example: makeExample(
			"pipeline run --registry 123456789012.dkr.ecr.us-east-1.amazonaws.com",
			"pipeline run --dry-run --base HEAD~1 --head HEAD --branch main",
		),
		RunE: opts.RunE,
	}
	opts.event.addFlags(cmd.Flags())
	cmd.Flags().StringVar(&opts.summaryFile, "summary-file", "", "also write the run summary as JSON to this file")
	return cmd
}

func (opts *runOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return errorWantedNoArgs
	}
	ev, err := opts.event.event()
	if err != nil {
		return err
	}
	cfg := opts.config
	if cfg.GitBranch != "" {
		ev.Branch = cfg.GitBranch
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.New().String()
	logger := log.With(opts.logger, "run", runID)

	units, err := loadUnits(cfg)
	if err != nil {
		return err
	}
	store, err := newLogStore(ctx, cfg)
	if err != nil {
		return err
	}
	buildDir, err := ioutil.TempDir("", "pipeline-build")
	if err != nil {
		return err
	}
	defer os.RemoveAll(buildDir)

	p, err := newPipeline(ctx, cfg, ev, units, store, buildDir, runID, opts.logger)
	if err != nil {
		return err
	}
	summary, runErr := p.Run(ctx, ev)
	if err := pipeline.PrintSummary(cmd.OutOrStdout(), summary); err != nil {
		logger.Log("err", err)
	}
	if opts.summaryFile != "" {
		if err := writeSummary(opts.summaryFile, summary); err != nil {
			logger.Log("warning", "writing summary file failed", "err", err)
		}
	}
	if cfg.MetricsPushgateway != "" {
		if err := pipeline.PushMetrics(cfg.MetricsPushgateway, "pipeline"); err != nil {
			logger.Log("warning", "pushing metrics failed", "err", err)
		}
	}

	if runErr != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), pipelineerr.Describe(runErr))
		return runFailedError{runErr}
	}
	if !summary.OK {
		return runFailedError{summary}
	}
	return nil
}

// newPipeline wires the stages for one run. Components log with the
// run ID attached; the pipeline adds it to its own logger in Run.
func newPipeline(ctx context.Context, cfg config.Config, ev trigger.Event, units unit.Set, store logstore.Store, buildDir, runID string, base log.Logger) (*pipeline.Pipeline, error) {
	logger := log.With(base, "run", runID)
	p := &pipeline.Pipeline{
		RunID:    runID,
		Detector: newDetector(cfg, units, logger),
		Builds: &build.Orchestrator{
			Builder:   &build.DockerBuilder{Binary: cfg.DockerBinary, WorkDir: buildDir},
			LogStore:  store,
			SourceDir: cfg.WorkDir,
			RunID:     runID,
			Timeout:   cfg.BuildTimeout,
			Logger:    log.With(logger, "component", "build"),
		},
		Units:   units,
		WorkDir: cfg.WorkDir,
		DryRun:  cfg.DryRun,
		Logger:  base,
	}
	if ev.Kind == trigger.Push && !cfg.DryRun {
		var err error
		if p.Publisher, err = newPublisher(cfg, logger); err != nil {
			return nil, err
		}
		if p.Committer, err = newCommitter(ctx, cfg, logger); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func writeSummary(path string, s *pipeline.Summary) error {
	content, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, append(content, '\n'), 0644)
}
