package main

import (
	"io"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Sagar7777521/retail-store-sample-app/pkg/config"
)

type rootOpts struct {
	viper      *viper.Viper
	configFile string
	config     config.Config
	logger     log.Logger
}

func newRoot() *rootOpts {
	return &rootOpts{viper: viper.New()}
}

var rootLongHelp = strings.TrimSpace(`
pipeline builds the units of the repository that a change touched,
publishes their images, and commits the new image references to the
deployment manifests.

Workflow:
  pipeline detect                    # Which units did the event change?
  pipeline run                       # Build, publish and commit them.
  pipeline infra plan                # Plan the infrastructure.

The event is read from GITHUB_EVENT_NAME and GITHUB_EVENT_PATH, as set
in a GitHub Actions job. Every flag can also be given in the
environment, e.g., --git-branch as PIPELINE_GIT_BRANCH.
`)

func (opts *rootOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "pipeline",
		Long:              rootLongHelp,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: opts.PersistentPreRunE,
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "path to a config file")
	if err := config.DefineFlags(cmd.PersistentFlags(), opts.viper); err != nil {
		panic(err)
	}

	cmd.AddCommand(
		newRun(opts).Command(),
		newDetect(opts).Command(),
		newInfra(opts).Command(),
		newVersionCommand(),
	)
	return cmd
}

func (opts *rootOpts) PersistentPreRunE(cmd *cobra.Command, _ []string) error {
	var err error
	opts.config, err = config.Load(opts.viper, opts.configFile)
	if err != nil {
		return err
	}
	opts.logger = newLogger(opts.config.LogFormat, cmd.ErrOrStderr())
	return nil
}

func newLogger(format string, out io.Writer) log.Logger {
	var logger log.Logger
	if format == "json" {
		logger = log.NewJSONLogger(log.NewSyncWriter(out))
	} else {
		logger = log.NewLogfmtLogger(log.NewSyncWriter(out))
	}
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	logger = log.With(logger, "caller", log.DefaultCaller)
	return logger
}
