package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// ArtifactStore stages artifacts on the local filesystem. Each artifact owns
// the directory <root>/<name>.
type ArtifactStore struct {
	root string
}

// NewArtifactStore creates a store rooted at root.
func NewArtifactStore(root string) *ArtifactStore {
	return &ArtifactStore{root: root}
}

// Root returns the staging root.
func (s *ArtifactStore) Root() string {
	return s.root
}

// Dir returns the staging directory of artifact name.
func (s *ArtifactStore) Dir(name string) string {
	return filepath.Join(s.root, name)
}

// Prepare recreates the staging directory of name, empty.
func (s *ArtifactStore) Prepare(name string) (string, error) {
	dir := s.Dir(name)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("failed to clear artifact %s: %w", name, err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create artifact %s: %w", name, err)
	}
	return dir, nil
}

// Exists reports whether the staging directory of name exists and is not empty.
func (s *ArtifactStore) Exists(name string) bool {
	entries, err := os.ReadDir(s.Dir(name))
	return err == nil && len(entries) > 0
}

// VariableSink is notified of every variable written during a run.
type VariableSink func(name, value string) error

// VariableStore holds variables written by targets during a run.
type VariableStore struct {
	mu     sync.Mutex
	values map[string]string
	sinks  []VariableSink
}

// NewVariableStore creates an empty store publishing to sinks.
func NewVariableStore(sinks ...VariableSink) *VariableStore {
	return &VariableStore{values: make(map[string]string), sinks: sinks}
}

// AddSink appends a sink.
func (s *VariableStore) AddSink(sink VariableSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// Write records a variable and publishes it to every sink. All sinks are
// notified even if one fails; the errors are joined.
func (s *VariableStore) Write(ctx context.Context, name, value string) error {
	if name == "" {
		return fmt.Errorf("variable name must not be empty")
	}

	s.mu.Lock()
	s.values[name] = value
	sinks := append([]VariableSink(nil), s.sinks...)
	s.mu.Unlock()

	var errs []error
	for _, sink := range sinks {
		if err := sink(name, value); err != nil {
			errs = append(errs, fmt.Errorf("publish variable %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Get returns a written variable.
func (s *VariableStore) Get(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[name]
	return v, ok
}

// Names returns written variable names, sorted.
func (s *VariableStore) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.values))
	for k := range s.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
