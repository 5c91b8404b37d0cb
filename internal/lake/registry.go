package lake

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Registry holds the configured lakes by key.
type Registry struct {
	lakes map[string]Lake
	order []string
}

// NewRegistry builds a registry. Keys must be unique and every lake needs a
// boundary asset or a loaded boundary.
func NewRegistry(lakes ...Lake) (*Registry, error) {
	r := &Registry{lakes: make(map[string]Lake, len(lakes))}
	for _, l := range lakes {
		if l.Key == "" {
			return nil, eris.Errorf("lake: %q has no key", l.Name)
		}
		if _, dup := r.lakes[l.Key]; dup {
			return nil, eris.Errorf("lake: duplicate key %q", l.Key)
		}
		if l.BoundaryAsset == "" && l.boundary == nil {
			return nil, eris.Errorf("lake: %s has neither a boundary asset nor a boundary file", l.Key)
		}
		if l.Name == "" {
			l.Name = l.Key
		}
		r.lakes[l.Key] = l
		r.order = append(r.order, l.Key)
	}
	return r, nil
}

// DefaultRegistry contains only the built-in Poyang Lake.
func DefaultRegistry() *Registry {
	r, _ := NewRegistry(Poyang())
	return r
}

// LoadRegistry reads lakes from a YAML file with a top-level "lakes" list.
// An empty path or a missing file yields the default registry. Relative
// boundary files resolve against the YAML file's directory.
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return DefaultRegistry(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultRegistry(), nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "lake: read registry %s", path)
	}

	var file struct {
		Lakes []Lake `yaml:"lakes"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrapf(err, "lake: parse registry %s", path)
	}
	if len(file.Lakes) == 0 {
		return nil, eris.Errorf("lake: registry %s lists no lakes", path)
	}

	dir := filepath.Dir(path)
	for i, l := range file.Lakes {
		if l.BoundaryFile == "" {
			continue
		}
		bf := l.BoundaryFile
		if !filepath.IsAbs(bf) {
			bf = filepath.Join(dir, bf)
		}
		g, err := LoadBoundary(bf)
		if err != nil {
			return nil, err
		}
		file.Lakes[i] = l.WithBoundary(g)
	}
	return NewRegistry(file.Lakes...)
}

// Get returns the lake with the given key.
func (r *Registry) Get(key string) (Lake, bool) {
	l, ok := r.lakes[key]
	return l, ok
}

// List returns the lakes in file order.
func (r *Registry) List() []Lake {
	out := make([]Lake, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.lakes[k])
	}
	return out
}

// Keys returns the sorted lake keys.
func (r *Registry) Keys() []string {
	keys := append([]string(nil), r.order...)
	sort.Strings(keys)
	return keys
}
