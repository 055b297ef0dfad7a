package mask

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMasker_Mask(t *testing.T) {
	tests := []struct {
		name    string
		secrets []string
		input   string
		want    string
	}{
		{
			name:  "no secrets registered",
			input: "token=abc123",
			want:  "token=abc123",
		},
		{
			name:    "single secret",
			secrets: []string{"abc123"},
			input:   "token=abc123 again abc123",
			want:    "token=***** again *****",
		},
		{
			name:    "longest secret wins",
			secrets: []string{"pass", "password1"},
			input:   "password1 pass",
			want:    "***** *****",
		},
		{
			name:    "secret inside the mask token",
			secrets: []string{"**"},
			input:   "a**b",
			want:    "a#####b",
		},
		{
			name:    "secret ending in token byte",
			secrets: []string{"c*"},
			input:   "cc*",
			want:    "c#####",
		},
		{
			name:    "secret starting with token byte",
			secrets: []string{"*c"},
			input:   "*cc",
			want:    "#####c",
		},
		{
			name:    "secrets using both fill bytes",
			secrets: []string{"a*", "b#"},
			input:   "aa* bb#",
			want:    "a~~~~~ b~~~~~",
		},
		{
			name:    "empty secret ignored",
			secrets: []string{""},
			input:   "nothing to hide",
			want:    "nothing to hide",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			m.Register(tt.secrets...)
			assert.Equal(t, tt.want, m.Mask(tt.input))
		})
	}
}

func TestMasker_NeverLeaksRegisteredSecret(t *testing.T) {
	m := New()
	secrets := []string{"s3cr3t", "hunter2", "AKIAEXAMPLE", "x-y-z"}
	m.Register(secrets...)

	for _, s := range secrets {
		for _, format := range []string{"%s", "prefix-%s-suffix", "%s%s", "key=%s\nnext line %s"} {
			msg := fmt.Sprintf(format, s, s)
			assert.NotContains(t, m.Mask(msg), s)
		}
	}
}

// TestMasker_TokenEdgeSecretsNeverLeak masks every string over a small
// alphabet that shares bytes with the fill bytes.
func TestMasker_TokenEdgeSecretsNeverLeak(t *testing.T) {
	secretSets := [][]string{
		{"c*"},
		{"*c"},
		{"p@ss*", "*"},
		{"**", "#c", "c~"},
		{"c*#", "#*c"},
	}
	alphabet := []string{"c", "*", "#", "~"}

	inputs := []string{""}
	all := []string{}
	for n := 0; n < 6; n++ {
		var next []string
		for _, prefix := range inputs {
			for _, a := range alphabet {
				next = append(next, prefix+a)
			}
		}
		inputs = next
		all = append(all, next...)
	}

	for _, secrets := range secretSets {
		m := New()
		m.Register(secrets...)
		for _, in := range all {
			out := m.Mask(in)
			for _, secret := range secrets {
				if strings.Contains(out, secret) {
					t.Fatalf("secrets %q: Mask(%q) = %q still contains %q", secrets, in, out, secret)
				}
			}
		}
	}
}

func TestMasker_EveryPrintableByteTaken(t *testing.T) {
	var sb strings.Builder
	for b := byte('!'); b <= '~'; b++ {
		sb.WriteByte(b)
	}
	secret := sb.String()

	m := New()
	m.Register(secret, "ab")
	out := m.Mask("xaabb " + secret + " a" + secret + "b")

	assert.NotContains(t, out, secret)
	assert.NotContains(t, out, "ab")
}

func TestMasker_RegisterIsIdempotent(t *testing.T) {
	m := New()
	m.Register("one", "two")
	m.Register("two", "one")
	assert.Equal(t, 2, m.Len())
}

func TestMasker_NilIsPassthrough(t *testing.T) {
	var m *Masker
	assert.Equal(t, "plain", m.Mask("plain"))
}

func TestMasker_ConcurrentUse(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			secret := fmt.Sprintf("secret-%d", i)
			m.Register(secret)
			assert.NotContains(t, m.Mask("value "+secret), secret)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 8, m.Len())
}
