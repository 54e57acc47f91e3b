// Package safety screens incoming questions and outgoing replies against a
// fixed blocklist of prohibited terms.
package safety

import (
	"regexp"
	"sort"
	"strings"

	"farm-advisor-go/pkg/textnorm"
)

// Redaction replaces blocked terms in outgoing text.
const Redaction = "[redacted]"

var redactionWord = regexp.MustCompile(`\bredacted\b`)

// DefaultBlocklist holds the prohibited terms and phrases. Matching is
// case-insensitive and on whole tokens, so "bomb" does not hit "bombyx".
var DefaultBlocklist = []string{
	"bomb",
	"explosive",
	"make poison",
	"poison someone",
	"poison my neighbor",
	"kill someone",
	"kill myself",
	"suicide",
	"terrorist",
	"meth",
	"cocaine",
}

// Filter is safe for concurrent use; it is immutable after construction.
type Filter struct {
	terms   []string
	pattern *regexp.Regexp
}

// NewFilter builds a filter over DefaultBlocklist plus any extra terms.
func NewFilter(extra ...string) *Filter {
	seen := make(map[string]struct{})
	var terms []string
	for _, t := range append(append([]string{}, DefaultBlocklist...), extra...) {
		t = textnorm.Normalize(t)
		// A term that can match the redaction marker would make sanitizing non-idempotent.
		if t == "" || redactionWord.MatchString(t) {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		terms = append(terms, t)
	}
	// Longest first so "make poison" is preferred over a shorter overlapping term.
	sort.SliceStable(terms, func(i, j int) bool { return len(terms[i]) > len(terms[j]) })

	alts := make([]string, len(terms))
	for i, t := range terms {
		// Phrases match across any run of whitespace.
		words := strings.Fields(t)
		for k, w := range words {
			words[k] = regexp.QuoteMeta(w)
		}
		alts[i] = strings.Join(words, `\s+`)
	}
	f := &Filter{terms: terms}
	if len(alts) > 0 {
		f.pattern = regexp.MustCompile(`(?i)\b(?:` + strings.Join(alts, "|") + `)\b`)
	}
	return f
}

// Terms returns the normalized blocklist.
func (f *Filter) Terms() []string {
	if f == nil {
		return nil
	}
	return append([]string(nil), f.terms...)
}

// ContainsBlocked reports whether text contains a blocked term. A nil filter
// treats every input as blocked.
func (f *Filter) ContainsBlocked(text string) bool {
	if f == nil {
		return true
	}
	if f.pattern == nil {
		return false
	}
	return f.pattern.MatchString(textnorm.Normalize(text))
}

// SanitizeOutput replaces each blocked term with Redaction. Applying it twice
// gives the same result as applying it once.
func (f *Filter) SanitizeOutput(text string) string {
	if f == nil || f.pattern == nil {
		return text
	}
	return f.pattern.ReplaceAllLiteralString(text, Redaction)
}
