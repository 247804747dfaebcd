// Package fs provides file-based crawl state and record output.
package fs

import (
	"os"
	"path/filepath"
	"strings"
)

// SiteFileName converts a site name into a safe file name with ext.
// Path separators and other unsafe characters become underscores.
// Example: "jobs/tokyo" → "jobs_tokyo.json"
func SiteFileName(site, ext string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, strings.TrimSpace(site))
	name = strings.Trim(name, ".")
	if name == "" {
		name = "_"
	}
	return name + ext
}

// writeFileAtomic writes data to a temporary file in the target directory and
// renames it over path, so readers see either the old or the new content.
func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
