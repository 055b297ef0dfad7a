// Package param declares build parameters and resolves their runtime values.
//
// A parameter is a named string value that may come from a command-line flag,
// an environment variable, a secret store or a literal default. Which sources
// are consulted is controlled per parameter by [Source] flags; the first
// consulted source yielding a non-empty value wins, in the fixed precedence
// order command line, environment, secret, default.
//
// Key types:
//   - [Definition] declares a parameter (name, flag name, sources, secrecy)
//   - [Service] resolves values, caches them per run and masks secrets
//   - [SecretProvider] is the pluggable secret-store backend
//   - [FileSecretProvider] reads secrets from a local YAML file
package param

import (
	"errors"
	"strings"
)

// ErrUnknownParam is returned when a parameter name has not been registered.
var ErrUnknownParam = errors.New("unknown parameter")

// ErrDuplicateParam is returned when a parameter name is registered twice.
var ErrDuplicateParam = errors.New("duplicate parameter")

// Source is a bit set of places a parameter value may be read from.
type Source int

const (
	// SourceCommandLine reads --<arg-name> flags.
	SourceCommandLine Source = 1 << iota
	// SourceEnvironmentVariable reads the variable named by [Definition.EnvName].
	SourceEnvironmentVariable
	// SourceSecret asks the configured [SecretProvider]s.
	SourceSecret
	// SourceDefault falls back to [Definition.DefaultValue].
	SourceDefault

	// SourceAll enables every source.
	SourceAll = SourceCommandLine | SourceEnvironmentVariable | SourceSecret | SourceDefault
)

// Has reports whether every flag in o is set in s.
func (s Source) Has(o Source) bool {
	return s&o == o
}

// String lists the enabled sources in precedence order, joined by "|".
func (s Source) String() string {
	if s == 0 {
		return "none"
	}
	var parts []string
	for _, src := range precedence {
		if s.Has(src.flag) {
			parts = append(parts, src.name)
		}
	}
	return strings.Join(parts, "|")
}

var precedence = []struct {
	flag Source
	name string
}{
	{SourceCommandLine, "cli"},
	{SourceEnvironmentVariable, "env"},
	{SourceSecret, "secret"},
	{SourceDefault, "default"},
}

// Definition declares a single build parameter.
type Definition struct {
	// Name is the unique lookup key used by targets.
	Name string

	// ArgName is the command-line flag name without leading dashes.
	// Defaults to Name when empty.
	ArgName string

	// Description is shown in --help output and workflow dispatch inputs.
	Description string

	// DefaultValue is used when no other enabled source has a value.
	DefaultValue string

	// Sources selects which sources are consulted. Zero means [SourceAll].
	Sources Source

	// IsSecret masks the resolved value everywhere and injects it into
	// generated workflows from the provider's secret store.
	IsSecret bool
}

// Arg returns the flag name, falling back to Name.
func (d Definition) Arg() string {
	if d.ArgName != "" {
		return d.ArgName
	}
	return d.Name
}

// EnvName returns the environment variable name derived from the flag name.
func (d Definition) EnvName() string {
	return EnvName(d.Arg())
}

// EffectiveSources returns Sources, treating zero as [SourceAll].
func (d Definition) EffectiveSources() Source {
	if d.Sources == 0 {
		return SourceAll
	}
	return d.Sources
}

// EnvName converts a flag name such as "nuget-api-key" into the environment
// variable form "NUGET_API_KEY". Used both for local lookup and for
// cross-job variable passing in generated workflows.
func EnvName(argName string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(argName))
}
