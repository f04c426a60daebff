// Package infra runs the manual infrastructure flow: terraform plan,
// apply or destroy in the infrastructure directory. It shares nothing
// with the build pipeline.
package infra

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/Sagar7777521/retail-store-sample-app/pkg/trigger"
)

const defaultBinary = "terraform"

type Runner struct {
	Dir    string
	Binary string
	// Out receives terraform's output.
	Out    io.Writer
	Logger log.Logger
}

func (r *Runner) binary() string {
	if r.Binary == "" {
		return defaultBinary
	}
	return r.Binary
}

// Run initialises the working directory, then performs the operation.
func (r *Runner) Run(ctx context.Context, op trigger.Operation) error {
	args, err := operationArgs(op)
	if err != nil {
		return err
	}
	started := time.Now()
	if err := r.exec(ctx, "init", "-input=false", "-no-color"); err != nil {
		return err
	}
	if err := r.exec(ctx, args...); err != nil {
		return err
	}
	r.Logger.Log("info", "infrastructure run finished", "operation", op, "took", time.Since(started))
	return nil
}

func operationArgs(op trigger.Operation) ([]string, error) {
	switch op {
	case trigger.Plan:
		return []string{"plan", "-input=false", "-no-color"}, nil
	case trigger.Apply, trigger.Destroy:
		return []string{string(op), "-input=false", "-no-color", "-auto-approve"}, nil
	}
	return nil, fmt.Errorf("unknown operation %q", op)
}

func (r *Runner) exec(ctx context.Context, args ...string) error {
	out := r.Out
	if out == nil {
		out = ioutil.Discard
	}
	r.Logger.Log("info", "running terraform", "args", strings.Join(args, " "))
	c := exec.CommandContext(ctx, r.binary(), args...)
	c.Dir = r.Dir
	c.Stdout = out
	c.Stderr = out
	c.Env = append(os.Environ(), "TF_IN_AUTOMATION=1")
	if err := c.Run(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return errors.Wrapf(err, "terraform %s", args[0])
	}
	return nil
}
