// Package registry publishes built artifacts to the remote registry:
// it makes sure the unit's repository exists, uploads the image
// under the revision tag, confirms the upload, and moves `latest`.
package registry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	godigest "github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/wait"

	pipelinemetrics "github.com/Sagar7777521/retail-store-sample-app/pkg/metrics"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/unit"
)

const LatestTag = "latest"

// DefaultBackoff allows three attempts, five then ten seconds apart.
var DefaultBackoff = wait.Backoff{
	Duration: 5 * time.Second,
	Factor:   2,
	Steps:    3,
}

// Repositories manages the namespaces (repositories) of a registry.
type Repositories interface {
	Exists(ctx context.Context, name string) (bool, error)
	// Create creates the repository; it is not an error if it
	// already exists.
	Create(ctx context.Context, name string) error
}

// ImplicitRepositories is for registries that create a repository on
// the first push to it.
type ImplicitRepositories struct{}

func (ImplicitRepositories) Exists(ctx context.Context, name string) (bool, error) {
	return true, nil
}

func (ImplicitRepositories) Create(ctx context.Context, name string) error {
	return nil
}

type recoverer interface {
	Recover(host string)
}

// Location is where an artifact was published.
type Location struct {
	Repository string // <host>/<name>
	Tag        string
	Digest     string
}

func (l Location) String() string {
	return l.Repository + ":" + l.Tag + "@" + l.Digest
}

type Publisher struct {
	Host         string
	Insecure     bool // use plain HTTP
	Repositories Repositories
	Client       Client
	Backoff      wait.Backoff
	Logger       log.Logger
}

func (p *Publisher) backoff() wait.Backoff {
	if p.Backoff.Steps == 0 {
		return DefaultBackoff
	}
	return p.Backoff
}

// Publish uploads the unit's image under the tag given, then moves
// the latest tag to it. Transient failures are retried with
// exponential backoff; refusals are not.
func (p *Publisher) Publish(ctx context.Context, u unit.Unit, img v1.Image, tag string) (Location, error) {
	logger := log.With(p.Logger, "unit", u.Name)
	digest, err := img.Digest()
	if err != nil {
		return Location{}, &Error{Unit: u.Name, Op: "computing digest", Err: err}
	}

	var opts []name.Option
	if p.Insecure {
		opts = append(opts, name.Insecure)
	}
	repoName := p.Host + "/" + u.Repository
	revTag, err := name.NewTag(repoName+":"+tag, opts...)
	if err != nil {
		return Location{}, &Error{Unit: u.Name, Op: "parsing tag", Err: err}
	}
	latest := revTag.Context().Tag(LatestTag)

	// The repository check and the upload share one retry budget.
	// Attempts counts uploads only.
	var (
		ensured  bool
		attempts int
		lastErr  error
	)
	op := "ensuring repository " + u.Repository
	retry := func(err error) (bool, error) {
		lastErr = err
		if !IsTransient(err) {
			return false, err
		}
		logger.Log("warning", "transient publish failure", "op", op, "attempt", attempts, "err", err)
		return false, nil
	}
	err = wait.ExponentialBackoffWithContext(ctx, p.backoff(), func(ctx context.Context) (bool, error) {
		if !ensured {
			if err := p.ensureRepository(ctx, u.Repository); err != nil {
				return retry(err)
			}
			ensured = true
		}
		op = "publishing " + revTag.String()
		attempts++
		err := p.upload(ctx, revTag, latest, img, digest)
		publishAttempts.With(pipelinemetrics.LabelUnit, u.Name, pipelinemetrics.LabelSuccess, strconv.FormatBool(err == nil)).Add(1)
		if err != nil {
			return retry(err)
		}
		return true, nil
	})
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return Location{}, &Error{
			Unit:      u.Name,
			Op:        op,
			Transient: IsTransient(lastErr),
			Attempts:  attempts,
			Err:       lastErr,
		}
	}

	if r, ok := p.Client.(recoverer); ok {
		r.Recover(p.Host)
	}
	loc := Location{Repository: repoName, Tag: tag, Digest: digest.String()}
	logger.Log("info", "published", "location", loc.String(), "attempts", attempts)
	return loc, nil
}

func (p *Publisher) ensureRepository(ctx context.Context, repository string) error {
	ok, err := p.Repositories.Exists(ctx, repository)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	p.Logger.Log("info", "creating repository", "repository", repository)
	return p.Repositories.Create(ctx, repository)
}

func (p *Publisher) upload(ctx context.Context, revTag, latest name.Tag, img v1.Image, digest v1.Hash) error {
	if err := p.Client.Write(ctx, revTag, img); err != nil {
		return errors.Wrapf(err, "uploading %s", revTag)
	}
	got, err := p.Client.Digest(ctx, revTag)
	if err != nil {
		return errors.Wrapf(err, "confirming %s", revTag)
	}
	if err := sameDigest(digest, got); err != nil {
		return errors.Wrapf(err, "confirming %s", revTag)
	}
	if err := p.Client.Tag(ctx, latest, img); err != nil {
		return errors.Wrapf(err, "tagging %s", latest)
	}
	return nil
}

func sameDigest(want, got v1.Hash) error {
	w, err := godigest.Parse(want.String())
	if err != nil {
		return err
	}
	g, err := godigest.Parse(got.String())
	if err != nil {
		return errors.Wrap(err, "registry returned an invalid digest")
	}
	if w != g {
		return fmt.Errorf("registry has %s, expected %s", g, w)
	}
	return nil
}
