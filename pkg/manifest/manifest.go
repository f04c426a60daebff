// Package manifest makes field-scoped edits to deployment manifests:
// each edit replaces the value of one scalar field, found by its key
// path in the YAML tree, and leaves every other byte of the file as
// it was.
package manifest

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/Sagar7777521/retail-store-sample-app/pkg/unit"
)

// FieldEdit sets the scalar at Path (dot-separated keys, with
// numeric segments indexing sequences) to Value.
type FieldEdit struct {
	Path  string
	Value string
}

// Patch is the set of edits to make to one unit's manifest.
type Patch struct {
	Unit   string
	Path   string // repo-relative path of the manifest
	Fields []FieldEdit
}

// NewImagePatch returns the patch pointing the unit's manifest at the
// image repository and tag given.
func NewImagePatch(u unit.Unit, repository, tag string) Patch {
	return Patch{
		Unit: u.Name,
		Path: u.Manifest,
		Fields: []FieldEdit{
			{Path: u.RepositoryField, Value: repository},
			{Path: u.TagField, Value: tag},
		},
	}
}

// FieldError is returned when a field of a patch cannot be updated.
type FieldError struct {
	Unit  string
	File  string
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("unit %s: %s: field %s: %v", e.Unit, e.File, e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Update applies the edits to the manifest content given and returns
// the result, which has been checked to parse and to read back the
// new values.
func Update(content []byte, p Patch) ([]byte, error) {
	if _, err := parse(content); err != nil {
		return nil, &FieldError{Unit: p.Unit, File: p.Path, Err: errors.Wrap(err, "parsing manifest")}
	}
	out := content
	for _, f := range p.Fields {
		var err error
		if out, err = setField(out, f.Path, f.Value); err != nil {
			return nil, &FieldError{Unit: p.Unit, File: p.Path, Field: f.Path, Err: err}
		}
	}
	if err := verify(out, p); err != nil {
		return nil, err
	}
	return out, nil
}

func verify(content []byte, p Patch) error {
	doc, err := parse(content)
	if err != nil {
		return &FieldError{Unit: p.Unit, File: p.Path, Err: errors.Wrap(err, "updated manifest does not parse")}
	}
	for _, f := range p.Fields {
		got, err := readField(doc, f.Path)
		if err != nil {
			return &FieldError{Unit: p.Unit, File: p.Path, Field: f.Path, Err: errors.Wrap(err, "reading back updated value")}
		}
		if got != f.Value {
			return &FieldError{Unit: p.Unit, File: p.Path, Field: f.Path,
				Err: fmt.Errorf("updated value reads back as %q, expected %q", got, f.Value)}
		}
	}
	return nil
}

// Apply applies the patch to the manifest under root, replacing the
// file atomically. It reports whether the file changed; a manifest
// already holding the values is left untouched.
func Apply(root string, p Patch) (bool, error) {
	file := filepath.Join(root, filepath.FromSlash(p.Path))
	content, err := ioutil.ReadFile(file)
	if err != nil {
		return false, &FieldError{Unit: p.Unit, File: p.Path, Err: err}
	}
	out, err := Update(content, p)
	if err != nil {
		return false, err
	}
	if string(out) == string(content) {
		return false, nil
	}
	if err := writeFile(file, out); err != nil {
		return false, &FieldError{Unit: p.Unit, File: p.Path, Err: err}
	}
	return true, nil
}

// Check reports whether the patch would apply cleanly to the manifest
// under root, without changing it.
func Check(root string, p Patch) error {
	content, err := ioutil.ReadFile(filepath.Join(root, filepath.FromSlash(p.Path)))
	if err != nil {
		return &FieldError{Unit: p.Unit, File: p.Path, Err: err}
	}
	_, err = Update(content, p)
	return err
}

// writeFile replaces the file by renaming a temporary file over it,
// so readers see either the old or the new content.
func writeFile(file string, content []byte) error {
	info, err := os.Stat(file)
	if err != nil {
		return err
	}
	tmp, err := ioutil.TempFile(filepath.Dir(file), "."+filepath.Base(file)+".")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), info.Mode()); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), file)
}
