package param

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atom/internal/mask"
	"atom/internal/semver"
)

// MockSecretProvider is a map-backed [SecretProvider] recording lookups.
type MockSecretProvider struct {
	Values  map[string]string
	Err     error
	Lookups []string
}

func (m *MockSecretProvider) Name() string { return "mock" }

func (m *MockSecretProvider) Lookup(ctx context.Context, key string) (string, bool, error) {
	m.Lookups = append(m.Lookups, key)
	if m.Err != nil {
		return "", false, m.Err
	}
	v, ok := m.Values[key]
	return v, ok, nil
}

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func newTestService(t *testing.T, defs ...Definition) *Service {
	t.Helper()
	s := NewService(mask.New())
	s.SetEnvLookup(envMap(nil))
	require.NoError(t, s.Register(defs...))
	return s
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "NUGET_API_KEY", EnvName("nuget-api-key"))
	assert.Equal(t, "BUILD_VERSION", Definition{Name: "build.version"}.EnvName())
	assert.Equal(t, "RELEASE", Definition{Name: "ignored", ArgName: "release"}.EnvName())
}

func TestSource_String(t *testing.T) {
	assert.Equal(t, "cli|env|secret|default", SourceAll.String())
	assert.Equal(t, "env|default", (SourceEnvironmentVariable | SourceDefault).String())
	assert.Equal(t, "none", Source(0).String())
}

func TestService_Precedence(t *testing.T) {
	def := Definition{Name: "version", ArgName: "build-version", DefaultValue: "0.0.1"}

	tests := []struct {
		name    string
		sources Source
		args    map[string]string
		env     map[string]string
		secrets map[string]string
		want    string
		found   bool
	}{
		{
			name:    "cli beats everything",
			args:    map[string]string{"build-version": "1.0.0"},
			env:     map[string]string{"BUILD_VERSION": "2.0.0"},
			secrets: map[string]string{"build-version": "3.0.0"},
			want:    "1.0.0",
			found:   true,
		},
		{
			name:    "env beats secret",
			env:     map[string]string{"BUILD_VERSION": "2.0.0"},
			secrets: map[string]string{"build-version": "3.0.0"},
			want:    "2.0.0",
			found:   true,
		},
		{
			name:    "secret beats default",
			secrets: map[string]string{"build-version": "3.0.0"},
			want:    "3.0.0",
			found:   true,
		},
		{
			name:  "default last",
			want:  "0.0.1",
			found: true,
		},
		{
			name:    "disabled cli source is ignored",
			sources: SourceEnvironmentVariable,
			args:    map[string]string{"build-version": "1.0.0"},
			env:     map[string]string{"BUILD_VERSION": "2.0.0"},
			want:    "2.0.0",
			found:   true,
		},
		{
			name:    "empty values fall through",
			sources: SourceCommandLine | SourceEnvironmentVariable,
			args:    map[string]string{"build-version": ""},
			env:     map[string]string{"BUILD_VERSION": ""},
			found:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := def
			d.Sources = tt.sources
			s := newTestService(t, d)
			s.SetArgs(tt.args)
			s.SetEnvLookup(envMap(tt.env))
			s.AddSecretProvider(&MockSecretProvider{Values: tt.secrets})

			got, found := s.Resolve(context.Background(), d)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_Resolve_IsIdempotent(t *testing.T) {
	def := Definition{Name: "configuration", DefaultValue: "Debug"}
	s := newTestService(t, def)
	s.SetArgs(map[string]string{"configuration": "Release"})

	first, _ := s.Resolve(context.Background(), def)
	second, _ := s.Resolve(context.Background(), def)
	assert.Equal(t, "Release", first)
	assert.Equal(t, first, second)
}

func TestService_Resolve_CachesSecretLookups(t *testing.T) {
	def := Definition{Name: "token", Sources: SourceSecret, IsSecret: true}
	provider := &MockSecretProvider{Values: map[string]string{"token": "abc"}}
	s := newTestService(t, def)
	s.AddSecretProvider(provider)

	for i := 0; i < 3; i++ {
		v, found := s.Resolve(context.Background(), def)
		require.True(t, found)
		assert.Equal(t, "abc", v)
	}
	assert.Len(t, provider.Lookups, 1)
}

func TestService_SecretIsMasked(t *testing.T) {
	masker := mask.New()
	def := Definition{Name: "api-key", IsSecret: true}
	s := NewService(masker)
	s.SetEnvLookup(envMap(map[string]string{"API_KEY": "sk-live-123"}))
	require.NoError(t, s.Register(def))

	v, found := s.Resolve(context.Background(), def)
	require.True(t, found)
	assert.Equal(t, "sk-live-123", v)

	msg := masker.Mask("pushing with key sk-live-123")
	assert.NotContains(t, msg, "sk-live-123")
}

func TestService_UnavailableSecretStoreIsSkipped(t *testing.T) {
	def := Definition{Name: "token", DefaultValue: "fallback"}
	s := newTestService(t, def)
	s.AddSecretProvider(&MockSecretProvider{Err: ErrSecretsUnavailable})

	v, found := s.Resolve(context.Background(), def)
	assert.True(t, found)
	assert.Equal(t, "fallback", v)
}

func TestService_FailingSecretStoreFallsThrough(t *testing.T) {
	def := Definition{Name: "token", DefaultValue: "fallback"}
	s := newTestService(t, def)
	s.AddSecretProvider(&MockSecretProvider{Err: errors.New("boom")})

	v, _ := s.Resolve(context.Background(), def)
	assert.Equal(t, "fallback", v)
}

func TestService_SetVariableShadowsEnvironment(t *testing.T) {
	def := Definition{Name: "package-version", Sources: SourceEnvironmentVariable}
	s := newTestService(t, def)
	s.SetEnvLookup(envMap(map[string]string{"PACKAGE_VERSION": "from-env"}))

	v, _, err := s.Get(context.Background(), "package-version")
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)

	s.SetVariable("package-version", "1.4.0")
	v, _, err = s.Get(context.Background(), "package-version")
	require.NoError(t, err)
	assert.Equal(t, "1.4.0", v)
}

func TestService_Register_Duplicate(t *testing.T) {
	s := newTestService(t, Definition{Name: "a"})
	err := s.Register(Definition{Name: "a"})
	assert.ErrorIs(t, err, ErrDuplicateParam)
}

func TestService_Get_Unknown(t *testing.T) {
	s := newTestService(t)
	_, _, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownParam)
}

func TestService_TypedGetters(t *testing.T) {
	s := newTestService(t,
		Definition{Name: "flag"},
		Definition{Name: "count"},
		Definition{Name: "projects"},
		Definition{Name: "version"},
		Definition{Name: "bad-int"},
		Definition{Name: "missing"},
	)
	s.SetArgs(map[string]string{
		"flag":     "true",
		"count":    "42",
		"projects": "Api, Web,,Worker ",
		"version":  "v1.2.3-rc.1",
		"bad-int":  "forty",
	})
	ctx := context.Background()

	b, err := s.GetBool(ctx, "flag")
	require.NoError(t, err)
	assert.True(t, b)

	n, err := s.GetInt(ctx, "count")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	list, err := s.GetStrings(ctx, "projects")
	require.NoError(t, err)
	assert.Equal(t, []string{"Api", "Web", "Worker"}, list)

	v, found, err := s.GetSemVer(ctx, "version")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, semver.MustParse("1.2.3-rc.1"), v)

	_, err = s.GetInt(ctx, "bad-int")
	assert.Error(t, err)

	str, err := s.GetString(ctx, "missing", "dflt")
	require.NoError(t, err)
	assert.Equal(t, "dflt", str)

	b, err = s.GetBool(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, b)
}

func TestFileSecretProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("deploy-token: xyz\n"), 0600))

	p := NewFileSecretProvider(path)
	v, ok, err := p.Lookup(context.Background(), "deploy-token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "xyz", v)

	_, ok, err = p.Lookup(context.Background(), "other")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileSecretProvider_MissingFileIsUnavailable(t *testing.T) {
	p := NewFileSecretProvider(filepath.Join(t.TempDir(), "absent.yaml"))
	_, _, err := p.Lookup(context.Background(), "x")
	assert.ErrorIs(t, err, ErrSecretsUnavailable)

	_, _, err = NewFileSecretProvider("").Lookup(context.Background(), "x")
	assert.ErrorIs(t, err, ErrSecretsUnavailable)
}

func TestFileSecretProvider_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- not\n- a map\n"), 0600))

	_, _, err := NewFileSecretProvider(path).Lookup(context.Background(), "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSecretsUnavailable)
}
