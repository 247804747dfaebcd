// Package yaml loads site definitions from YAML files.
//
// A file holds a defaults block merged into every site and a list of sites:
//
//	defaults:
//	  delay: 1.5s
//	  max_retries: 3
//	sites:
//	  - name: cadical
//	    list_url: https://example.com/jobs?page={page}
//	    ids: {pattern: 'job/(\d+)'}
//	    detail_url: https://example.com/job/{id}
//
// A sibling <name>.local.<ext> file, when present, overrides the main file:
// its defaults override the main defaults and each of its sites overrides
// the main site with the same name.
package yaml

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/fwojciec/sitediff"
	"github.com/fwojciec/sitediff/fs"
	"gopkg.in/yaml.v3"
)

// File is the on-disk layout of a site configuration file.
type File struct {
	Defaults sitediff.Site   `yaml:"defaults"`
	Sites    []sitediff.Site `yaml:"sites"`
}

// Parse decodes a configuration file. Unknown keys are rejected so typos
// do not silently fall back to defaults.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, sitediff.Errorf(sitediff.EINVALID, "parse config: %v", err)
	}
	return &f, nil
}

// Load reads path and its optional local override and returns the resolved
// sites: defaults merged in, zero-valued tuning filled, each one validated.
func Load(path string) ([]sitediff.Site, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sitediff.Errorf(sitediff.EINVALID, "read config: %v", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, err
	}

	local := LocalPath(path)
	data, err = os.ReadFile(local)
	switch {
	case err == nil:
		override, err := Parse(data)
		if err != nil {
			return nil, err
		}
		if err := f.Override(override); err != nil {
			return nil, err
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, sitediff.Errorf(sitediff.EINVALID, "read config: %v", err)
	}

	return f.Resolve()
}

// LocalPath returns the override file name for path:
// sites.yaml → sites.local.yaml.
func LocalPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".local" + ext
}

// Override applies o on top of f. Non-zero values in o win.
func (f *File) Override(o *File) error {
	if err := mergo.Merge(&f.Defaults, o.Defaults, mergo.WithOverride); err != nil {
		return sitediff.Errorf(sitediff.EINVALID, "merge defaults: %v", err)
	}
	for _, site := range o.Sites {
		i := f.index(site.Name)
		if i < 0 {
			f.Sites = append(f.Sites, site)
			continue
		}
		if err := mergo.Merge(&f.Sites[i], site, mergo.WithOverride); err != nil {
			return sitediff.Errorf(sitediff.EINVALID, "merge site %q: %v", site.Name, err)
		}
	}
	return nil
}

// Resolve merges the defaults into every site and validates the result.
// Site values always win over defaults.
func (f *File) Resolve() ([]sitediff.Site, error) {
	if len(f.Sites) == 0 {
		return nil, sitediff.Errorf(sitediff.EINVALID, "config defines no sites")
	}
	defaults := f.Defaults
	defaults.Name = ""

	seen := make(map[string]bool, len(f.Sites))
	files := make(map[string]string, len(f.Sites))
	sites := make([]sitediff.Site, 0, len(f.Sites))
	for i, s := range f.Sites {
		if err := mergo.Merge(&s, defaults); err != nil {
			return nil, sitediff.Errorf(sitediff.EINVALID, "site %d: merge defaults: %v", i, err)
		}
		s = s.WithDefaults()
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if seen[s.Name] {
			return nil, sitediff.Errorf(sitediff.EINVALID, "duplicate site %q", s.Name)
		}
		seen[s.Name] = true
		// State and record files are named after the site; names that map
		// to the same file, ignoring case, would share one history.
		file := strings.ToLower(fs.SiteFileName(s.Name, ""))
		if other, ok := files[file]; ok {
			return nil, sitediff.Errorf(sitediff.EINVALID, "sites %q and %q map to the same state file %q", other, s.Name, file)
		}
		files[file] = s.Name
		sites = append(sites, s)
	}
	return sites, nil
}

func (f *File) index(name string) int {
	for i, s := range f.Sites {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// Select returns the sites named in names, in config order. An empty names
// list selects every site.
func Select(sites []sitediff.Site, names ...string) ([]sitediff.Site, error) {
	if len(names) == 0 {
		return sites, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []sitediff.Site
	for _, s := range sites {
		if want[s.Name] {
			out = append(out, s)
			delete(want, s.Name)
		}
	}
	if len(want) > 0 {
		missing := make([]string, 0, len(want))
		for _, n := range names {
			if want[n] {
				missing = append(missing, n)
			}
		}
		return nil, sitediff.Errorf(sitediff.ENOTFOUND, "unknown site(s): %s", strings.Join(missing, ", "))
	}
	return out, nil
}

