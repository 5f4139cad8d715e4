package profile

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the settings file looked up next to the executable
// and in the user config directory.
const DefaultFileName = "default.crs"

// File is a settings file: an ordered set of profiles.
//
// Files are YAML. JSON settings written by older releases load unchanged
// since YAML is a superset of JSON.
type File struct {
	Profiles []Raw `yaml:"Profiles"`
}

// Find returns the profile called name, case-insensitively.
func (f *File) Find(name string) (Raw, error) {
	for _, p := range f.Profiles {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return Raw{}, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Names lists the profile names in file order.
func (f *File) Names() []string {
	out := make([]string, 0, len(f.Profiles))
	for _, p := range f.Profiles {
		out = append(out, p.Name)
	}
	return out
}

// utf8BOM prefixes settings files written by older releases.
var utf8BOM = []byte("\xef\xbb\xbf")

// Decode parses a settings document.
func Decode(b []byte) (*File, error) {
	b = bytes.TrimPrefix(b, utf8BOM)

	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return &f, nil
}

// Load reads the settings file at path.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Decode(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Save writes f to path as YAML, creating the parent directory.
func Save(path string, f *File) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

// DefaultPaths returns the settings lookup order: next to the executable
// first, then <user config dir>/CoreRation.
func DefaultPaths() []string {
	var paths []string
	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exe), DefaultFileName))
	}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "CoreRation", DefaultFileName))
	}
	return paths
}

// LoadFirst loads the first existing file among paths and returns it with
// its path. Missing files are skipped; any other failure stops the search.
// With no file found it returns an empty File and an empty path.
func LoadFirst(paths ...string) (*File, string, error) {
	for _, p := range paths {
		f, err := Load(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, p, err
		}
		return f, p, nil
	}
	return &File{}, "", nil
}

// LoadDefault is LoadFirst over DefaultPaths.
func LoadDefault() (*File, string, error) {
	return LoadFirst(DefaultPaths()...)
}
