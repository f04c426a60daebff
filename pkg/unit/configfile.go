package unit

import (
	"fmt"
	"io/ioutil"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	ConfigFilename = ".pipeline.yaml"
	ConfigVersion  = 1
)

// ConfigFile is the units file at the root of the repository.
type ConfigFile struct {
	Path             string `yaml:"-"`
	Version          int    `yaml:"version"`
	RepositoryPrefix string `yaml:"repositoryPrefix"`
	Units            []Unit `yaml:"units"`
}

// LoadConfigFile reads, defaults and validates the units file at the
// path given.
func LoadConfigFile(path string) (*ConfigFile, error) {
	fileBytes, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read: %s", err)
	}
	cf, err := ParseConfigFile(fileBytes)
	if err != nil {
		return nil, errors.Wrapf(err, "units file %s", path)
	}
	cf.Path = path
	return cf, nil
}

func ParseConfigFile(fileBytes []byte) (*ConfigFile, error) {
	var result ConfigFile
	if err := yaml.UnmarshalStrict(fileBytes, &result); err != nil {
		return nil, fmt.Errorf("cannot parse: %s", err)
	}
	if result.Version != ConfigVersion {
		return nil, errors.New("incorrect version, only version 1 is supported for now")
	}
	if len(result.Units) == 0 {
		return nil, errors.New("at least one unit must be defined")
	}
	seen := map[string]bool{}
	for i := range result.Units {
		u := &result.Units[i]
		u.applyDefaults(result.RepositoryPrefix)
		if err := u.validate(); err != nil {
			return nil, err
		}
		if seen[u.Name] {
			return nil, fmt.Errorf("unit %q is defined more than once", u.Name)
		}
		seen[u.Name] = true
	}
	return &result, nil
}

// Set returns the units of the file as a Set.
func (cf *ConfigFile) Set() Set {
	return NewSet(cf.Units...)
}

func (u *Unit) applyDefaults(repositoryPrefix string) {
	u.SourcePath = cleanRel(u.SourcePath)
	if u.BuildContext == "" {
		u.BuildContext = u.SourcePath
	}
	if u.BuildDefinition == "" {
		u.BuildDefinition = path.Join(u.BuildContext, DefaultBuildDefinition)
	}
	if u.Repository == "" {
		u.Repository = repositoryPrefix + u.Name
	}
	if u.RepositoryField == "" {
		u.RepositoryField = DefaultRepositoryField
	}
	if u.TagField == "" {
		u.TagField = DefaultTagField
	}
	u.BuildContext = cleanRel(u.BuildContext)
	u.BuildDefinition = cleanRel(u.BuildDefinition)
	u.Manifest = cleanRel(u.Manifest)
}

func (u Unit) validate() error {
	if u.Name == "" {
		return errors.New("unit without a name")
	}
	if u.SourcePath == "" {
		return fmt.Errorf("unit %q: source cannot be empty", u.Name)
	}
	if u.Manifest == "" {
		return fmt.Errorf("unit %q: manifest cannot be empty", u.Name)
	}
	for field, p := range map[string]string{
		"source":          u.SourcePath,
		"buildContext":    u.BuildContext,
		"buildDefinition": u.BuildDefinition,
		"manifest":        u.Manifest,
	} {
		if filepath.IsAbs(p) || p == ".." || strings.HasPrefix(p, "../") {
			return fmt.Errorf("unit %q: %s %q must be relative to the repository root", u.Name, field, p)
		}
	}
	return nil
}

func cleanRel(p string) string {
	if p == "" {
		return ""
	}
	return path.Clean(filepath.ToSlash(p))
}
