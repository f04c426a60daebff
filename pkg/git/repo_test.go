package git_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sagar7777521/retail-store-sample-app/pkg/git"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/git/gittest"
)

func TestRepoChangedFiles(t *testing.T) {
	upstream, cleanup := gittest.Repo(t, map[string]string{
		"src/cart/main.go":   "package main\n",
		"src/cart/README.md": "cart\n",
		"src/ui/index.js":    "ui\n",
	})
	defer cleanup()
	dir, wsCleanup := gittest.Workspace(t, upstream)
	defer wsCleanup()

	base := gittest.Revision(t, dir, "HEAD")
	head := gittest.Commit(t, dir, map[string]string{
		"src/cart/main.go":   "package main // v2\n",
		"src/cart/README.md": "",
		"src/orders/app.py":  "print()\n",
	}, "Change cart and add orders")

	repo := git.NewRepo(dir)
	ctx := context.Background()

	files, err := repo.ChangedFiles(ctx, base, head)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"src/cart/main.go", "src/cart/README.md", "src/orders/app.py"}, files)

	unicode := gittest.Commit(t, dir, map[string]string{
		"src/cart/café.go":   "package main\n",
		"src/cart/a file.go": "package main\n",
	}, "Add files with unusual names")
	files, err = repo.ChangedFiles(ctx, head, unicode)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"src/cart/café.go", "src/cart/a file.go"}, files)

	files, err = repo.ChangedFiles(ctx, head, head)
	require.NoError(t, err)
	assert.Empty(t, files)

	msg, err := repo.CommitMessage(ctx, head)
	require.NoError(t, err)
	assert.Equal(t, "Change cart and add orders", msg)

	rev, err := repo.Revision(ctx, "HEAD~2")
	require.NoError(t, err)
	assert.Equal(t, base, rev)
}

func TestRepoRefExistsAndMergeBase(t *testing.T) {
	upstream, cleanup := gittest.Repo(t, map[string]string{"a.txt": "a\n"})
	defer cleanup()
	dir, wsCleanup := gittest.Workspace(t, upstream)
	defer wsCleanup()

	fork := gittest.Revision(t, dir, "HEAD")
	head := gittest.Commit(t, dir, map[string]string{"b.txt": "b\n"}, "Add b")

	repo := git.NewRepo(dir, git.Timeout(5e9))
	ctx := context.Background()

	ok, err := repo.RefExists(ctx, head)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.RefExists(ctx, "ffffffffffffffffffffffffffffffffffffffff")
	require.NoError(t, err)
	assert.False(t, ok)

	mb, err := repo.MergeBase(ctx, fork, head)
	require.NoError(t, err)
	assert.Equal(t, fork, mb)
}

func TestRepoRemoteURL(t *testing.T) {
	upstream, cleanup := gittest.Repo(t, map[string]string{"README.md": "# retail store\n"})
	defer cleanup()
	dir, wsCleanup := gittest.Workspace(t, upstream)
	defer wsCleanup()

	repo := git.NewRepo(dir)
	url, err := repo.RemoteURL(context.Background(), "origin")
	require.NoError(t, err)
	assert.Equal(t, upstream.URL, url)

	_, err = repo.RemoteURL(context.Background(), "nope")
	assert.Error(t, err)
}
