// Package logstore keeps the diagnostic output of builds somewhere it
// can be looked at after the run, and hands back a reference to it.
package logstore

import (
	"context"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Store stores build logs.
type Store interface {
	// Put stores the content under the key, and returns a reference
	// to where it can be found.
	Put(ctx context.Context, key string, content []byte) (string, error)
}

// Key returns the key for the build log of a unit in a run.
func Key(runID, unit string) string {
	return path.Join("runs", runID, unit+".log")
}

// DirStore writes logs to files under a local directory, e.g., one
// the CI job uploads as an artifact.
type DirStore struct {
	Dir string
}

func (s DirStore) Put(ctx context.Context, key string, content []byte) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" || strings.HasSuffix(key, "/") {
		return "", errors.Errorf("invalid log key %q", key)
	}
	file := filepath.Join(s.Dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return "", errors.Wrap(err, "creating log directory")
	}
	if err := ioutil.WriteFile(file, content, 0644); err != nil {
		return "", errors.Wrap(err, "writing log")
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(abs), nil
}

// Discard stores nothing.
var Discard Store = discard{}

type discard struct{}

func (discard) Put(ctx context.Context, key string, content []byte) (string, error) {
	return "", nil
}
