// Package mask scrubs registered secret values out of text before it reaches
// the console, log files or generated reports.
//
// A single [Masker] is created per run and shared by the param service (which
// registers resolved secret values), the logger and the report writers.
package mask

import (
	"sort"
	"strings"
	"sync"
)

// Token replaces every occurrence of a registered secret while no secret
// contains '*'. Otherwise the token is repeated from the first fill byte no
// registered secret contains, so a token can never combine with neighbouring
// text into a secret.
const Token = "*****"

const tokenLen = len(Token)

// fillBytes are tried in order before falling back to any printable byte.
const fillBytes = "*#~%^?!@$&+="

// Masker replaces registered secret values with a token.
// The zero value is ready to use and safe for concurrent use.
type Masker struct {
	mu       sync.RWMutex
	secrets  map[string]struct{}
	replacer *strings.Replacer
	// removeOnly is set when every printable byte occurs in some secret.
	// Secrets are then deleted repeatedly until none is left.
	removeOnly bool
}

// New creates an empty Masker.
func New() *Masker {
	return &Masker{}
}

// Register adds secret values to the mask set. Empty values are ignored.
func (m *Masker) Register(values ...string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	changed := false
	for _, v := range values {
		if v == "" {
			continue
		}
		if m.secrets == nil {
			m.secrets = make(map[string]struct{})
		}
		if _, ok := m.secrets[v]; ok {
			continue
		}
		m.secrets[v] = struct{}{}
		changed = true
	}
	if changed {
		m.replacer = m.buildReplacer()
	}
}

// Len returns the number of registered secrets.
func (m *Masker) Len() int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.secrets)
}

// Mask returns s with every registered secret replaced.
func (m *Masker) Mask(s string) string {
	if m == nil {
		return s
	}
	m.mu.RLock()
	r, removeOnly := m.replacer, m.removeOnly
	m.mu.RUnlock()

	if r == nil || s == "" {
		return s
	}
	if !removeOnly {
		return r.Replace(s)
	}
	for {
		out := r.Replace(s)
		if out == s {
			return out
		}
		s = out
	}
}

// buildReplacer orders secrets longest first so that a secret containing
// another secret is replaced as a whole. Caller holds the write lock.
func (m *Masker) buildReplacer() *strings.Replacer {
	values := make([]string, 0, len(m.secrets))
	for v := range m.secrets {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool {
		if len(values[i]) != len(values[j]) {
			return len(values[i]) > len(values[j])
		}
		return values[i] < values[j]
	})

	token := pickToken(values)
	m.removeOnly = token == ""

	pairs := make([]string, 0, len(values)*2)
	for _, v := range values {
		pairs = append(pairs, v, token)
	}
	return strings.NewReplacer(pairs...)
}

// pickToken returns a token built from a byte that occurs in none of values,
// or "" when every printable byte is taken.
func pickToken(values []string) string {
	var used [256]bool
	for _, v := range values {
		for i := 0; i < len(v); i++ {
			used[v[i]] = true
		}
	}
	for i := 0; i < len(fillBytes); i++ {
		if !used[fillBytes[i]] {
			return strings.Repeat(fillBytes[i:i+1], tokenLen)
		}
	}
	for b := byte('!'); b <= '~'; b++ {
		if !used[b] {
			return strings.Repeat(string(rune(b)), tokenLen)
		}
	}
	return ""
}
