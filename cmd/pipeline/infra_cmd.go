package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/kit/log"
	"github.com/spf13/cobra"

	"github.com/Sagar7777521/retail-store-sample-app/pkg/infra"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/trigger"
)

type infraOpts struct {
	*rootOpts
	event eventOpts
}

func newInfra(parent *rootOpts) *infraOpts {
	return &infraOpts{rootOpts: parent}
}

func (opts *infraOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "infra [plan|apply|destroy]",
		Short: "Run terraform against the infrastructure configuration.",
		Long: `Run terraform against the infrastructure configuration.

Without an argument, the operation is taken from the "operation" input
of the workflow_dispatch event that started the job.`,
		Example: makeExample(
			"pipeline infra plan",
			"pipeline infra apply --terraform-dir terraform/eks",
		),
		RunE: opts.RunE,
	}
	cmd.Flags().StringVar(&opts.event.name, "event-name", os.Getenv("GITHUB_EVENT_NAME"), "name of the GitHub event")
	cmd.Flags().StringVar(&opts.event.path, "event-path", os.Getenv("GITHUB_EVENT_PATH"), "path of the GitHub event payload")
	return cmd
}

func (opts *infraOpts) operation(args []string) (trigger.Operation, error) {
	switch len(args) {
	case 0:
	case 1:
		op, err := trigger.ParseOperation(args[0])
		if err != nil {
			return "", newUsageError(err.Error())
		}
		return op, nil
	default:
		return "", newUsageError("expected at most one argument, the operation")
	}
	if opts.event.name == "" || opts.event.path == "" {
		return "", newUsageError("no operation given, and no event to take it from")
	}
	ev, err := trigger.FromGitHubEvent(opts.event.name, opts.event.path)
	if err != nil {
		return "", err
	}
	if ev.Kind != trigger.Manual {
		return "", newUsageError("infrastructure runs are only started by hand; give the operation as an argument")
	}
	return ev.Operation, ev.Validate()
}

func (opts *infraOpts) RunE(cmd *cobra.Command, args []string) error {
	op, err := opts.operation(args)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := &infra.Runner{
		Dir:    inWorkDir(opts.config, opts.config.TerraformDir),
		Binary: opts.config.TerraformBinary,
		Out:    cmd.OutOrStdout(),
		Logger: log.With(opts.logger, "component", "infra"),
	}
	return runner.Run(ctx, op)
}
