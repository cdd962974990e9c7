package manifest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SchemaDirPaths returns absolute paths for the configured schema directories.
func (m *Manifest) SchemaDirPaths() []string {
	var paths []string
	for _, d := range m.Schemas.Dirs {
		paths = append(paths, filepath.Join(m.Dir, d))
	}
	return paths
}

// SchemaSources reads every configured .proto file. It returns the file
// contents and the sorted list of their keys. Files found under a schema
// directory are keyed by their slash-separated path relative to that
// directory, so imports between them resolve the way protoc -I would.
// Files listed individually are keyed relative to the manifest directory.
func (m *Manifest) SchemaSources() (map[string]string, []string, error) {
	sources := make(map[string]string)

	add := func(base, abs string) error {
		rel, err := filepath.Rel(base, abs)
		if err != nil {
			return fmt.Errorf("schema %s: %w", abs, err)
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return fmt.Errorf("cannot read schema %s: %w", abs, err)
		}
		sources[filepath.ToSlash(rel)] = string(data)
		return nil
	}

	for _, dir := range m.SchemaDirPaths() {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(path, ".proto") {
				return nil
			}
			return add(dir, path)
		})
		if err != nil {
			return nil, nil, fmt.Errorf("scanning schema dir %s: %w", dir, err)
		}
	}
	for _, f := range m.Schemas.Files {
		if !filepath.IsAbs(f) {
			f = filepath.Join(m.Dir, f)
		}
		if err := add(m.Dir, f); err != nil {
			return nil, nil, err
		}
	}

	names := make([]string, 0, len(sources))
	for n := range sources {
		names = append(names, n)
	}
	sort.Strings(names)
	return sources, names, nil
}
