package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/Sagar7777521/retail-store-sample-app/pkg/config"
)

// version is set at link time with -ldflags "-X main.version=...".
var version string

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version of pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return errorWantedNoArgs
			}
			v := version
			if v == "" {
				v = "unversioned"
			}
			if long {
				fmt.Fprintf(cmd.OutOrStdout(), "pipeline %s (config %s, %s %s/%s)\n",
					v, config.ConfigVersion, runtime.Version(), runtime.GOOS, runtime.GOARCH)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "include the config file version and the Go toolchain")
	return cmd
}
