package codec

import (
	"regexp"

	"github.com/olc-dev/olc/internal/debug"
)

// Masker applies an ordered list of redaction patterns to text.
// Patterns that fail to compile are skipped with a logged warning so one bad
// user-supplied pattern does not disable masking entirely.
type Masker struct {
	patterns []*regexp.Regexp
}

// NewMasker compiles the given patterns into a Masker.
func NewMasker(patterns []string) *Masker {
	m := &Masker{patterns: make([]*regexp.Regexp, 0, len(patterns))}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			debug.Warn("codec", "invalid mask pattern %q: %v", p, err)
			continue
		}
		m.patterns = append(m.patterns, re)
	}
	return m
}

// Mask replaces every match of every pattern with the redaction token.
// There is no unmask operation.
func (m *Masker) Mask(text string) string {
	for _, re := range m.patterns {
		text = re.ReplaceAllString(text, RedactionToken)
	}
	return text
}

// MaskAll masks a slice of strings, returning a new slice.
func (m *Masker) MaskAll(texts []string) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = m.Mask(t)
	}
	return out
}
