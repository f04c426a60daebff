// Package gittest creates throwaway git repositories for tests, using
// the git binary.
package gittest

import (
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sagar7777521/retail-store-sample-app/pkg/git"
)

const Branch = "master"

var TestConfig = git.Config{
	Branch:      Branch,
	UserName:    "example",
	UserEmail:   "example@example.com",
	SkipMessage: "\n\n[skip ci]",
}

// TempDir creates a temporary directory and returns it with a
// cleanup func.
func TempDir(t *testing.T) (string, func()) {
	dir, err := ioutil.TempDir("", "gittest")
	if err != nil {
		t.Fatal(err)
	}
	return dir, func() { os.RemoveAll(dir) }
}

// Repo creates a bare upstream repo whose branch has a single commit
// holding the files given, and returns it as a Remote along with a
// cleanup func.
func Repo(t *testing.T, files map[string]string) (git.Remote, func()) {
	newDir, cleanup := TempDir(t)

	filesDir := filepath.Join(newDir, "files")
	gitDir := filepath.Join(newDir, "git")
	if err := os.Mkdir(filesDir, 0755); err != nil {
		cleanup()
		t.Fatal(err)
	}
	for _, args := range [][]string{
		{"init", filesDir},
		{"-C", filesDir, "symbolic-ref", "HEAD", "refs/heads/" + Branch},
	} {
		if err := execCommand("git", args...); err != nil {
			cleanup()
			t.Fatal(err)
		}
	}
	configure(t, filesDir)
	Commit(t, filesDir, files, "Initial revision")

	if err := execCommand("git", "clone", "--bare", filesDir, gitDir); err != nil {
		cleanup()
		t.Fatal(err)
	}
	return git.Remote{URL: "file://" + gitDir}, cleanup
}

// Workspace clones the upstream into a new directory, the way a CI job
// checks out the repository, and returns the directory with a cleanup
// func.
func Workspace(t *testing.T, upstream git.Remote) (string, func()) {
	dir, cleanup := TempDir(t)
	if err := execCommand("git", "clone", "--branch", Branch, upstream.URL, dir); err != nil {
		cleanup()
		t.Fatal(err)
	}
	configure(t, dir)
	return dir, cleanup
}

// Commit writes the files given (an empty content deletes the file),
// commits everything and returns the new revision.
func Commit(t *testing.T, dir string, files map[string]string, message string) string {
	for name, content := range files {
		p := filepath.Join(dir, name)
		if content == "" {
			if err := os.Remove(p); err != nil {
				t.Fatal(err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := ioutil.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := execCommand("git", "-C", dir, "add", "--all"); err != nil {
		t.Fatal(err)
	}
	if err := execCommand("git", "-C", dir, "commit", "--allow-empty", "-m", message); err != nil {
		t.Fatal(err)
	}
	return Revision(t, dir, "HEAD")
}

// Push pushes the branch of the clone in dir to its origin.
func Push(t *testing.T, dir string) {
	if err := execCommand("git", "-C", dir, "push", "origin", Branch); err != nil {
		t.Fatal(err)
	}
}

func Revision(t *testing.T, dir, ref string) string {
	out, err := exec.Command("git", "-C", dir, "rev-parse", ref).Output()
	if err != nil {
		t.Fatal(err)
	}
	return strings.TrimSpace(string(out))
}

// Show returns the content of the file at the revision given.
func Show(t *testing.T, dir, rev, file string) string {
	out, err := exec.Command("git", "-C", dir, "show", rev+":"+file).Output()
	if err != nil {
		t.Fatal(err)
	}
	return string(out)
}

// Message returns the full commit message of the revision given.
func Message(t *testing.T, dir, rev string) string {
	out, err := exec.Command("git", "-C", dir, "log", "-1", "--format=%B", rev).Output()
	if err != nil {
		t.Fatal(err)
	}
	return strings.TrimSpace(string(out))
}

func configure(t *testing.T, dir string) {
	for k, v := range map[string]string{
		"user.email": TestConfig.UserEmail,
		"user.name":  TestConfig.UserName,
	} {
		if err := execCommand("git", "-C", dir, "config", "--local", k, v); err != nil {
			t.Fatal(err)
		}
	}
}

func execCommand(cmd string, args ...string) error {
	c := exec.Command(cmd, args...)
	c.Stderr = ioutil.Discard
	c.Stdout = ioutil.Discard
	return c.Run()
}
