package build

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/tarball"
	"github.com/pkg/errors"
)

const (
	defaultDockerBinary = "docker"
	localRepository     = "pipeline.local"
	revisionLabel       = "org.opencontainers.image.revision"
)

// DockerBuilder builds images with the docker CLI and exports them as
// tarballs under WorkDir, one directory per build.
type DockerBuilder struct {
	Binary  string
	WorkDir string
}

func (b *DockerBuilder) binary() string {
	if b.Binary == "" {
		return defaultDockerBinary
	}
	return b.Binary
}

func (b *DockerBuilder) Build(ctx context.Context, req Request) (Artifact, error) {
	out := req.LogWriter
	if out == nil {
		out = ioutil.Discard
	}
	dir, err := ioutil.TempDir(b.WorkDir, "build-"+req.Unit.Name+"-")
	if err != nil {
		return Artifact{}, errors.Wrap(err, "creating build directory")
	}

	tag, err := name.NewTag(fmt.Sprintf("%s/%s:%s", localRepository, req.Unit.Name, req.Revision))
	if err != nil {
		os.RemoveAll(dir)
		return Artifact{}, errors.Wrap(err, "local tag")
	}
	definition := filepath.Join(req.SourceDir, filepath.FromSlash(req.Unit.BuildDefinition))
	buildContext := filepath.Join(req.SourceDir, filepath.FromSlash(req.Unit.BuildContext))
	if err := b.exec(ctx, out, "build",
		"--file", definition,
		"--tag", tag.String(),
		"--label", revisionLabel+"="+req.Revision,
		buildContext); err != nil {
		os.RemoveAll(dir)
		return Artifact{}, err
	}

	archive := filepath.Join(dir, "image.tar")
	if err := b.exec(ctx, out, "save", "--output", archive, tag.String()); err != nil {
		os.RemoveAll(dir)
		return Artifact{}, err
	}
	img, err := tarball.ImageFromPath(archive, &tag)
	if err != nil {
		os.RemoveAll(dir)
		return Artifact{}, errors.Wrap(err, "loading built image")
	}
	digest, err := img.Digest()
	if err != nil {
		os.RemoveAll(dir)
		return Artifact{}, errors.Wrap(err, "computing image digest")
	}
	return Artifact{Image: img, Digest: digest}, nil
}

func (b *DockerBuilder) exec(ctx context.Context, out io.Writer, args ...string) error {
	fmt.Fprintf(out, "+ %s %s\n", b.binary(), strings.Join(args, " "))
	c := exec.CommandContext(ctx, b.binary(), args...)
	c.Stdout = out
	c.Stderr = out
	c.Env = append(os.Environ(), "DOCKER_CLI_HINTS=false")
	if err := c.Run(); err != nil {
		if ctx.Err() != nil {
			return errors.Wrapf(ctx.Err(), "%s %s", b.binary(), args[0])
		}
		return errors.Wrapf(err, "%s %s", b.binary(), args[0])
	}
	return nil
}
