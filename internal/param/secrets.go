package param

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrSecretsUnavailable signals that a secret store cannot be reached in the
// current environment. The [Service] skips the secret source silently when a
// provider returns it.
var ErrSecretsUnavailable = errors.New("secret store unavailable")

// SecretProvider looks up secret values by parameter flag name.
//
// Lookup returns ("", false, nil) when the key is absent and
// [ErrSecretsUnavailable] when the store cannot be consulted at all.
type SecretProvider interface {
	Name() string
	Lookup(ctx context.Context, key string) (string, bool, error)
}

// FileSecretProvider reads a flat YAML map of secret values.
//
//	nuget-api-key: abc123
//	deploy-token: xyz
//
// The file is read once on first lookup. A missing file makes the provider
// unavailable rather than failing the run.
type FileSecretProvider struct {
	path string

	once    sync.Once
	values  map[string]string
	loadErr error
}

// NewFileSecretProvider creates a provider backed by the YAML file at path.
func NewFileSecretProvider(path string) *FileSecretProvider {
	return &FileSecretProvider{path: path}
}

// Name implements [SecretProvider].
func (p *FileSecretProvider) Name() string {
	return "file:" + p.path
}

// Lookup implements [SecretProvider].
func (p *FileSecretProvider) Lookup(ctx context.Context, key string) (string, bool, error) {
	p.once.Do(p.load)
	if p.loadErr != nil {
		return "", false, p.loadErr
	}
	v, ok := p.values[key]
	return v, ok, nil
}

func (p *FileSecretProvider) load() {
	if p.path == "" {
		p.loadErr = ErrSecretsUnavailable
		return
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			p.loadErr = fmt.Errorf("%w: %s not found", ErrSecretsUnavailable, p.path)
			return
		}
		p.loadErr = fmt.Errorf("failed to read secrets file: %w", err)
		return
	}

	values := make(map[string]string)
	if err := yaml.Unmarshal(data, &values); err != nil {
		p.loadErr = fmt.Errorf("failed to parse secrets file %s: %w", p.path, err)
		return
	}
	p.values = values
}
