package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Writer renders models for one CI provider.
type Writer interface {
	// Provider returns the provider name matched against Definition.Providers.
	Provider() string

	// Path returns the file the model is written to, relative to the
	// repository root.
	Path(m *Model) string

	// Render returns the file contents.
	Render(m *Model) ([]byte, error)
}

// FileResult reports the outcome of writing one generated file.
type FileResult struct {
	Path    string
	Changed bool
}

// WriteAll renders every model with every writer that wants it and writes
// the files under root. Absolute writer paths are used as is. Files whose
// contents are unchanged are left alone.
func WriteAll(root string, models []*Model, writers []Writer) ([]FileResult, error) {
	var results []FileResult
	for _, m := range models {
		for _, w := range writers {
			if !m.Wants(w.Provider()) {
				continue
			}
			data, err := w.Render(m)
			if err != nil {
				return results, fmt.Errorf("failed to render %s workflow %q: %w", w.Provider(), m.Name, err)
			}
			rel := w.Path(m)
			path := rel
			if !filepath.IsAbs(rel) {
				path = filepath.Join(root, rel)
			}
			changed, err := WriteFile(path, data)
			if err != nil {
				return results, err
			}
			results = append(results, FileResult{Path: rel, Changed: changed})
		}
	}
	return results, nil
}

// AnyChanged reports whether any result changed a file.
func AnyChanged(results []FileResult) bool {
	for _, r := range results {
		if r.Changed {
			return true
		}
	}
	return false
}

// WriteFile writes data to path atomically (write to temp, then rename) and
// reports whether the contents changed.
func WriteFile(path string, data []byte) (bool, error) {
	existing, err := os.ReadFile(path)
	switch {
	case err == nil && bytes.Equal(existing, data):
		return false, nil
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		// Clean up temp file on rename failure
		os.Remove(tmpPath)
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}
