package param

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"atom/internal/logging"
	"atom/internal/mask"
	"atom/internal/semver"
)

type resolution struct {
	value  string
	source Source
	found  bool
}

// Service resolves parameter values for a single run.
//
// Resolution results are cached by parameter name so that resolving the same
// parameter twice yields the same value; [Service.SetArgs] and
// [Service.SetVariable] invalidate the affected entries. Resolved secret values
// are registered with the run's masker.
type Service struct {
	mu sync.Mutex

	defs  map[string]Definition
	order []string

	args      map[string]string
	lookupEnv func(string) (string, bool)
	overlay   map[string]string
	providers []SecretProvider
	masker    *mask.Masker

	cache map[string]resolution
}

// NewService creates a Service that registers secret values with masker.
// A nil masker disables masking.
func NewService(masker *mask.Masker) *Service {
	return &Service{
		defs:      make(map[string]Definition),
		args:      make(map[string]string),
		lookupEnv: os.LookupEnv,
		overlay:   make(map[string]string),
		masker:    masker,
		cache:     make(map[string]resolution),
	}
}

// Register adds parameter definitions. Names must be unique.
func (s *Service) Register(defs ...Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range defs {
		if d.Name == "" {
			return fmt.Errorf("parameter name must not be empty")
		}
		if _, ok := s.defs[d.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateParam, d.Name)
		}
		s.defs[d.Name] = d
		s.order = append(s.order, d.Name)
	}
	return nil
}

// Definitions returns the registered definitions in registration order.
func (s *Service) Definitions() []Definition {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Definition, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.defs[name])
	}
	return out
}

// Definition returns the registered definition for name.
func (s *Service) Definition(name string) (Definition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.defs[name]
	return d, ok
}

// SetArgs replaces the command-line values, keyed by flag name.
func (s *Service) SetArgs(args map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.args = make(map[string]string, len(args))
	for k, v := range args {
		s.args[k] = v
	}
	s.cache = make(map[string]resolution)
}

// SetEnvLookup replaces the environment lookup, os.LookupEnv by default.
func (s *Service) SetEnvLookup(fn func(string) (string, bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookupEnv = fn
	s.cache = make(map[string]resolution)
}

// AddSecretProvider appends a secret store. Providers are asked in order.
func (s *Service) AddSecretProvider(p SecretProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers = append(s.providers, p)
	s.cache = make(map[string]resolution)
}

// SetVariable publishes a value produced by a target during this run. It
// shadows the process environment for the parameter of the same name (or the
// flag name derived from name when no such parameter exists).
func (s *Service) SetVariable(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	argName := name
	if d, ok := s.defs[name]; ok {
		argName = d.Arg()
		if d.IsSecret {
			s.masker.Register(value)
		}
	}
	s.overlay[EnvName(argName)] = value
	delete(s.cache, name)
}

// Resolve returns the value of d from the first enabled source that has one.
func (s *Service) Resolve(ctx context.Context, d Definition) (string, bool) {
	s.mu.Lock()
	if r, ok := s.cache[d.Name]; ok {
		s.mu.Unlock()
		return r.value, r.found
	}
	s.mu.Unlock()

	r := s.resolve(ctx, d)

	s.mu.Lock()
	s.cache[d.Name] = r
	s.mu.Unlock()

	if r.found && d.IsSecret {
		s.masker.Register(r.value)
	}
	if r.found {
		logging.FromContext(ctx).Debug("resolved parameter",
			zap.String("param", d.Name), zap.Stringer("source", r.source))
	}
	return r.value, r.found
}

func (s *Service) resolve(ctx context.Context, d Definition) resolution {
	sources := d.EffectiveSources()

	s.mu.Lock()
	cliValue := s.args[d.Arg()]
	envValue, envOK := s.overlay[d.EnvName()]
	lookupEnv := s.lookupEnv
	providers := append([]SecretProvider(nil), s.providers...)
	s.mu.Unlock()

	if sources.Has(SourceCommandLine) && cliValue != "" {
		return resolution{value: cliValue, source: SourceCommandLine, found: true}
	}

	if sources.Has(SourceEnvironmentVariable) {
		if !envOK && lookupEnv != nil {
			envValue, envOK = lookupEnv(d.EnvName())
		}
		if envOK && envValue != "" {
			return resolution{value: envValue, source: SourceEnvironmentVariable, found: true}
		}
	}

	if sources.Has(SourceSecret) {
		logger := logging.FromContext(ctx)
		for _, p := range providers {
			v, ok, err := p.Lookup(ctx, d.Arg())
			if errors.Is(err, ErrSecretsUnavailable) {
				logger.Debug("secret store unavailable, skipping",
					zap.String("provider", p.Name()), zap.String("param", d.Name))
				continue
			}
			if err != nil {
				logger.Warn("secret lookup failed",
					zap.String("provider", p.Name()), zap.String("param", d.Name), zap.Error(err))
				continue
			}
			if ok && v != "" {
				return resolution{value: v, source: SourceSecret, found: true}
			}
		}
	}

	if sources.Has(SourceDefault) && d.DefaultValue != "" {
		return resolution{value: d.DefaultValue, source: SourceDefault, found: true}
	}

	return resolution{}
}

// Get resolves a registered parameter by name.
func (s *Service) Get(ctx context.Context, name string) (string, bool, error) {
	d, ok := s.Definition(name)
	if !ok {
		return "", false, fmt.Errorf("%w: %s", ErrUnknownParam, name)
	}
	v, found := s.Resolve(ctx, d)
	return v, found, nil
}

// GetString resolves name, returning fallback when it has no value.
func (s *Service) GetString(ctx context.Context, name, fallback string) (string, error) {
	v, found, err := s.Get(ctx, name)
	if err != nil {
		return "", err
	}
	if !found {
		return fallback, nil
	}
	return v, nil
}

// GetBool resolves name as a boolean. A missing value is false.
func (s *Service) GetBool(ctx context.Context, name string) (bool, error) {
	v, found, err := s.Get(ctx, name)
	if err != nil || !found {
		return false, err
	}
	b, err := cast.ToBoolE(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("parameter %s: %w", name, err)
	}
	return b, nil
}

// GetInt resolves name as an integer. A missing value is 0.
func (s *Service) GetInt(ctx context.Context, name string) (int, error) {
	v, found, err := s.Get(ctx, name)
	if err != nil || !found {
		return 0, err
	}
	n, err := cast.ToIntE(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("parameter %s: %w", name, err)
	}
	return n, nil
}

// GetStrings resolves name as a comma-separated list. Blank items are dropped.
func (s *Service) GetStrings(ctx context.Context, name string) ([]string, error) {
	v, found, err := s.Get(ctx, name)
	if err != nil || !found {
		return nil, err
	}
	return SplitList(v), nil
}

// GetSemVer resolves name as a semantic version.
func (s *Service) GetSemVer(ctx context.Context, name string) (semver.SemVer, bool, error) {
	v, found, err := s.Get(ctx, name)
	if err != nil || !found {
		return semver.SemVer{}, false, err
	}
	parsed, err := semver.Parse(v)
	if err != nil {
		return semver.SemVer{}, false, fmt.Errorf("parameter %s: %w", name, err)
	}
	return parsed, true, nil
}

// SplitList splits a comma-separated value, trimming blanks.
func SplitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
