package gitops

import (
	"context"
	"strings"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pipelineerr "github.com/Sagar7777521/retail-store-sample-app/pkg/errors"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/git"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/git/gittest"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/manifest"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/trigger"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/unit"
)

const cartValues = `# cart service
image:
  repository: public.ecr.aws/aws-containers/retail-store-sample-cart
  tag: "0.7.0" # pinned
replicas: 2
`

const uiValues = `image:
  repository: public.ecr.aws/aws-containers/retail-store-sample-ui
  tag: 0.7.0
`

var (
	cart = unit.Unit{
		Name:            "cart",
		SourcePath:      "src/cart",
		Manifest:        "deploy/cart/values.yaml",
		RepositoryField: "image.repository",
		TagField:        "image.tag",
	}
	ui = unit.Unit{
		Name:            "ui",
		SourcePath:      "src/ui",
		Manifest:        "deploy/ui/values.yaml",
		RepositoryField: "image.repository",
		TagField:        "image.tag",
	}
	units = unit.NewSet(cart, ui)
)

const registryHost = "123456789012.dkr.ecr.us-east-1.amazonaws.com"

type fixture struct {
	committer *Committer
	bare      string
	revision  string
	// a clone standing in for other people pushing to the branch
	other string
}

func setup(t *testing.T) *fixture {
	remote, cleanup := gittest.Repo(t, map[string]string{
		"src/cart/main.go":        "package main\n",
		"src/ui/main.go":          "package main\n",
		"deploy/cart/values.yaml": cartValues,
		"deploy/ui/values.yaml":   uiValues,
		"README.md":               "# retail store\n",
	})
	t.Cleanup(cleanup)
	other, cleanupOther := gittest.Workspace(t, remote)
	t.Cleanup(cleanupOther)

	bare := strings.TrimPrefix(remote.URL, "file://")
	return &fixture{
		committer: &Committer{
			Remote: remote,
			Config: gittest.TestConfig,
			Filter: trigger.Filter{},
			Logger: log.NewNopLogger(),
		},
		bare:     bare,
		revision: gittest.Revision(t, bare, "HEAD"),
		other:    other,
	}
}

func (f *fixture) request(tag string, us ...unit.Unit) Request {
	req := Request{Revision: f.revision, Units: units}
	for _, u := range us {
		req.Patches = append(req.Patches, manifest.NewImagePatch(u, registryHost+"/retail-store-sample-"+u.Name, tag))
	}
	return req
}

func (f *fixture) pushOther(t *testing.T, files map[string]string, message string) string {
	rev := gittest.Commit(t, f.other, files, message)
	gittest.Push(t, f.other)
	return rev
}

func TestCommit(t *testing.T) {
	f := setup(t)

	res, err := f.committer.Commit(context.Background(), f.request(f.revision, cart, ui))
	require.NoError(t, err)
	assert.False(t, res.NoOp)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, gittest.Revision(t, f.bare, gittest.Branch), res.Revision)

	assert.Equal(t, `# cart service
image:
  repository: `+registryHost+`/retail-store-sample-cart
  tag: "`+f.revision+`" # pinned
replicas: 2
`, gittest.Show(t, f.bare, res.Revision, "deploy/cart/values.yaml"))
	assert.Contains(t, gittest.Show(t, f.bare, res.Revision, "deploy/ui/values.yaml"), "tag: "+f.revision+"\n")

	message := gittest.Message(t, f.bare, res.Revision)
	assert.Contains(t, message, "Update cart, ui to "+f.revision[:7])
	assert.Contains(t, message, f.revision)
	assert.True(t, trigger.Filter{}.Skip(message), message)
	// one commit on top of the revision
	assert.Equal(t, f.revision, gittest.Revision(t, f.bare, res.Revision+"^"))
}

func TestCommitNoOp(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.committer.Commit(ctx, f.request(f.revision, cart))
	require.NoError(t, err)

	res, err := f.committer.Commit(ctx, f.request(f.revision, cart))
	require.NoError(t, err)
	assert.True(t, res.NoOp)
	assert.Equal(t, first.Revision, gittest.Revision(t, f.bare, gittest.Branch))

	res, err = f.committer.Commit(ctx, Request{Revision: f.revision, Units: units})
	require.NoError(t, err)
	assert.True(t, res.NoOp)
}

func TestCommitStale(t *testing.T) {
	f := setup(t)
	newer := f.pushOther(t, map[string]string{"src/cart/main.go": "package main\n\nfunc main() {}\n"}, "Fix cart")

	_, err := f.committer.Commit(context.Background(), f.request(f.revision, cart))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStale), err.Error())
	assert.Equal(t, newer, gittest.Revision(t, f.bare, gittest.Branch), "nothing pushed")
}

func TestCommitNotInHistory(t *testing.T) {
	f := setup(t)
	req := f.request("abc", cart)
	req.Revision = strings.Repeat("1", 40)

	_, err := f.committer.Commit(context.Background(), req)
	assert.True(t, errors.Is(err, ErrStale))
}

func TestCommitIgnoresUnrelatedAndMarkedCommits(t *testing.T) {
	f := setup(t)
	f.pushOther(t, map[string]string{"src/ui/main.go": "package ui\n"}, "Change ui")
	f.pushOther(t, map[string]string{"src/cart/extra.txt": "generated\n"}, "Regenerate\n\n[skip ci]")

	res, err := f.committer.Commit(context.Background(), f.request(f.revision, cart))
	require.NoError(t, err)
	assert.False(t, res.NoOp)
	assert.Contains(t, gittest.Show(t, f.bare, res.Revision, "deploy/cart/values.yaml"), f.revision)
}

func TestCommitRetriesAfterLostRace(t *testing.T) {
	f := setup(t)
	f.committer.beforePush = func(attempt int) {
		if attempt == 1 {
			f.pushOther(t, map[string]string{"README.md": "# retail store sample\n"}, "Docs")
		}
	}

	res, err := f.committer.Commit(context.Background(), f.request(f.revision, cart))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	// the other commit survives, underneath ours
	assert.Equal(t, "# retail store sample\n", gittest.Show(t, f.bare, res.Revision, "README.md"))
	assert.Contains(t, gittest.Show(t, f.bare, res.Revision, "deploy/cart/values.yaml"), f.revision)
}

func TestCommitGivesUp(t *testing.T) {
	f := setup(t)
	pushes := 0
	f.committer.beforePush = func(attempt int) {
		pushes++
		f.pushOther(t, map[string]string{"README.md": strings.Repeat("#", pushes) + "\n"}, "Docs")
	}

	res, err := f.committer.Commit(context.Background(), f.request(f.revision, cart))
	require.Error(t, err)
	assert.Equal(t, DefaultAttempts, res.Attempts)
	assert.True(t, pipelineerr.IsUser(err))
	assert.Contains(t, pipelineerr.HelpText(err), gittest.Branch)
	var pushErr *git.PushError
	assert.True(t, errors.As(err, &pushErr))
}

func TestCommitStaleAfterLostRace(t *testing.T) {
	f := setup(t)
	f.committer.beforePush = func(attempt int) {
		if attempt == 1 {
			f.pushOther(t, map[string]string{"src/cart/main.go": "package cart\n"}, "Rewrite cart")
		}
	}

	res, err := f.committer.Commit(context.Background(), f.request(f.revision, cart))
	assert.True(t, errors.Is(err, ErrStale))
	assert.Equal(t, 2, res.Attempts)
}

func TestCommitFieldErrorAbortsEverything(t *testing.T) {
	f := setup(t)
	req := f.request(f.revision, cart, ui)
	req.Patches[1].Fields = append(req.Patches[1].Fields, manifest.FieldEdit{Path: "image.digest", Value: "sha256:abc"})
	before := gittest.Revision(t, f.bare, gittest.Branch)

	_, err := f.committer.Commit(context.Background(), req)
	var fieldErr *manifest.FieldError
	require.True(t, errors.As(err, &fieldErr), "%v", err)
	assert.Equal(t, "ui", fieldErr.Unit)
	assert.Equal(t, before, gittest.Revision(t, f.bare, gittest.Branch))
}

func TestCommitUnknownUnit(t *testing.T) {
	f := setup(t)
	req := f.request(f.revision, cart)
	req.Units = unit.NewSet(ui)

	_, err := f.committer.Commit(context.Background(), req)
	assert.Error(t, err)
}

func TestCommitCloneFailure(t *testing.T) {
	c := &Committer{
		Remote: git.Remote{URL: "file:///does/not/exist"},
		Config: gittest.TestConfig,
		Logger: log.NewNopLogger(),
	}
	_, err := c.Commit(context.Background(), Request{
		Revision: "abc",
		Units:    units,
		Patches:  []manifest.Patch{manifest.NewImagePatch(cart, "r", "t")},
	})
	require.Error(t, err)
	assert.True(t, pipelineerr.IsUser(err))
}
