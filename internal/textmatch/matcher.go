// Package textmatch provides name normalization and string similarity used
// by entity resolution and question deduplication. The Matcher is constructed
// once at startup and injected into the stages that need it.
package textmatch

import (
	"strings"
	"unicode"
)

var honorifics = map[string]bool{
	"mr":   true,
	"mrs":  true,
	"ms":   true,
	"dr":   true,
	"prof": true,
	"sir":  true,
}

// Matcher normalizes names and scores string similarity.
type Matcher struct{}

// NewMatcher creates a matcher.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// NormalizeName lowercases a name, strips honorifics and punctuation, and
// collapses whitespace. Used as the resolution key for entity mentions.
func (m *Matcher) NormalizeName(name string) string {
	fields := strings.Fields(stripPunct(strings.ToLower(name)))
	out := fields[:0]
	for i, f := range fields {
		if i == 0 && honorifics[f] && len(fields) > 1 {
			continue
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}

// NormalizeText lowercases text, strips punctuation, and collapses
// whitespace. Used for question dedup and gap content hashing.
func (m *Matcher) NormalizeText(text string) string {
	return strings.Join(strings.Fields(stripPunct(strings.ToLower(text))), " ")
}

// Ratio returns a similarity score in [0, 1] based on edit distance over the
// longer string. Identical strings score 1.0, disjoint strings approach 0.
func (m *Matcher) Ratio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1.0
	}
	return 1.0 - float64(editDistance(ra, rb))/float64(longest)
}

// editDistance computes Levenshtein distance with a two-row table.
func editDistance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func stripPunct(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return b.String()
}

func minInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
