package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

type detectOpts struct {
	*rootOpts
	event  eventOpts
	output string
}

func newDetect(parent *rootOpts) *detectOpts {
	return &detectOpts{rootOpts: parent}
}

func (opts *detectOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "List the units changed by the event.",
		Example: makeExample(
			"pipeline detect",
			"pipeline detect --base HEAD~1 --head HEAD --branch main",
			"pipeline detect -o json",
		),
		RunE: opts.RunE,
	}
	opts.event.addFlags(cmd.Flags())
	cmd.Flags().StringVarP(&opts.output, "output", "o", "text", "output format (text or json)")
	return cmd
}

func (opts *detectOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return errorWantedNoArgs
	}
	if opts.output != "text" && opts.output != "json" {
		return newUsageError("output must be text or json")
	}
	ev, err := opts.event.event()
	if err != nil {
		return err
	}
	units, err := loadUnits(opts.config)
	if err != nil {
		return err
	}
	cs, err := newDetector(opts.config, units, opts.logger).Detect(context.Background(), ev)
	if err != nil {
		return withHelp(err)
	}

	out := cmd.OutOrStdout()
	if opts.output == "json" {
		names := cs.Units()
		if names == nil {
			names = []string{}
		}
		return json.NewEncoder(out).Encode(struct {
			Base    string   `json:"base"`
			Head    string   `json:"head"`
			Skipped bool     `json:"skipped"`
			Units   []string `json:"units"`
		}{cs.Base, cs.Head, cs.Skipped, names})
	}
	for _, name := range cs.Units() {
		fmt.Fprintln(out, name)
	}
	return nil
}
