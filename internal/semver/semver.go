// Package semver provides an immutable semantic version value with total ordering.
//
// Validation and precedence are delegated to golang.org/x/mod/semver: major,
// minor and patch compare numerically, a version with a pre-release tag sorts
// below the same version without one, and pre-release identifiers compare
// dot-segment by dot-segment. Build metadata does not carry precedence in
// semantic versioning; [SemVer.Compare] still uses it as a final ordinal
// tiebreak so that the ordering is total and deterministic.
package semver

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// ErrInvalidVersion is returned by [Parse] for strings that are not valid
// semantic versions.
var ErrInvalidVersion = errors.New("invalid semantic version")

// SemVer is a parsed semantic version. The zero value is 0.0.0.
type SemVer struct {
	Major      int
	Minor      int
	Patch      int
	PreRelease string
	Metadata   string
}

// Parse parses s as a semantic version. A leading "v" is accepted and dropped.
// All three core fields are required; the "v1" and "v1.2" shorthands are
// rejected.
func Parse(s string) (SemVer, error) {
	canonical := "v" + strings.TrimPrefix(strings.TrimSpace(s), "v")
	if !semver.IsValid(canonical) {
		return SemVer{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}

	pre := semver.Prerelease(canonical)
	meta := semver.Build(canonical)
	core := strings.TrimSuffix(strings.TrimSuffix(canonical[1:], meta), pre)

	fields := strings.Split(core, ".")
	if len(fields) != 3 {
		return SemVer{}, fmt.Errorf("%w: %q needs major.minor.patch", ErrInvalidVersion, s)
	}

	var v SemVer
	var err error
	if v.Major, err = strconv.Atoi(fields[0]); err != nil {
		return SemVer{}, fmt.Errorf("%w: major %q out of range", ErrInvalidVersion, fields[0])
	}
	if v.Minor, err = strconv.Atoi(fields[1]); err != nil {
		return SemVer{}, fmt.Errorf("%w: minor %q out of range", ErrInvalidVersion, fields[1])
	}
	if v.Patch, err = strconv.Atoi(fields[2]); err != nil {
		return SemVer{}, fmt.Errorf("%w: patch %q out of range", ErrInvalidVersion, fields[2])
	}
	v.PreRelease = strings.TrimPrefix(pre, "-")
	v.Metadata = strings.TrimPrefix(meta, "+")
	return v, nil
}

// MustParse is like [Parse] but panics on error. Intended for constants in
// build definitions and tests.
func MustParse(s string) SemVer {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String formats the version as MAJOR.MINOR.PATCH[-PRERELEASE][+METADATA].
func (v SemVer) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.PreRelease != "" {
		sb.WriteByte('-')
		sb.WriteString(v.PreRelease)
	}
	if v.Metadata != "" {
		sb.WriteByte('+')
		sb.WriteString(v.Metadata)
	}
	return sb.String()
}

// IsPreRelease reports whether v carries a pre-release tag.
func (v SemVer) IsPreRelease() bool {
	return v.PreRelease != ""
}

// Compare returns -1, 0 or +1 when v sorts below, equal to or above o.
func (v SemVer) Compare(o SemVer) int {
	if c := semver.Compare("v"+v.String(), "v"+o.String()); c != 0 {
		return c
	}
	return strings.Compare(v.Metadata, o.Metadata)
}

// LessThan reports whether v sorts strictly below o.
func (v SemVer) LessThan(o SemVer) bool {
	return v.Compare(o) < 0
}

// Equal reports whether v and o are identical, metadata included.
func (v SemVer) Equal(o SemVer) bool {
	return v.Compare(o) == 0
}
