// Package unit holds the static description of the deployable
// services in the repository. Units are read once per invocation and
// never change while the pipeline runs.
package unit

import (
	"path"
	"sort"
	"strings"

	"github.com/ryanuber/go-glob"
)

const (
	DefaultBuildDefinition = "Dockerfile"
	DefaultRepositoryField = "image.repository"
	DefaultTagField        = "image.tag"
)

// Unit is one independently buildable and deployable service.
type Unit struct {
	Name            string   `yaml:"name"`
	SourcePath      string   `yaml:"source"`
	BuildDefinition string   `yaml:"buildDefinition"`
	BuildContext    string   `yaml:"buildContext"`
	Manifest        string   `yaml:"manifest"`
	Repository      string   `yaml:"repository"`
	RepositoryField string   `yaml:"repositoryField"`
	TagField        string   `yaml:"tagField"`
	Ignore          []string `yaml:"ignore"`
}

// Owns reports whether a change to the repo-relative file given
// counts as a change to this unit.
func (u Unit) Owns(file string) bool {
	file = path.Clean(file)
	src := path.Clean(u.SourcePath)
	if src != "." && file != src && !strings.HasPrefix(file, src+"/") {
		return false
	}
	for _, pattern := range u.Ignore {
		if glob.Glob(pattern, file) {
			return false
		}
	}
	return true
}

// Set is an immutable collection of units, keyed by name.
type Set struct {
	byName map[string]Unit
	names  []string
}

func NewSet(units ...Unit) Set {
	s := Set{byName: make(map[string]Unit, len(units))}
	for _, u := range units {
		if _, ok := s.byName[u.Name]; !ok {
			s.names = append(s.names, u.Name)
		}
		s.byName[u.Name] = u
	}
	sort.Strings(s.names)
	return s
}

func (s Set) Get(name string) (Unit, bool) {
	u, ok := s.byName[name]
	return u, ok
}

// Names returns the unit names in sorted order.
func (s Set) Names() []string {
	return append([]string(nil), s.names...)
}

// Units returns the units sorted by name.
func (s Set) Units() []Unit {
	res := make([]Unit, 0, len(s.names))
	for _, n := range s.names {
		res = append(res, s.byName[n])
	}
	return res
}

func (s Set) Len() int {
	return len(s.names)
}
