// Package placeholder protects non-prose wikitext spans behind opaque tokens
// so a machine-translation engine cannot corrupt them, and restores the
// original spans afterwards.
//
// Protection is a single pass: an ordered list of matchers claims spans over
// text not already claimed by an earlier matcher, then the working text is
// rebuilt once as a sequence of literal and placeholder spans. Restoration
// resolves every recognized token and reports any token the engine dropped,
// duplicated, or invented; that report feeds QA.
package placeholder

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// Category classifies what kind of markup a protected span held.
type Category string

const (
	CategoryReference Category = "reference"
	CategoryComment   Category = "comment"
	CategoryCode      Category = "code"
	CategoryMagicWord Category = "magic_word"
	CategoryFileLink  Category = "file_link"
	CategoryTemplate  Category = "template"
	CategoryLink      Category = "link"
	CategoryURL       Category = "url"
)

// Span is one protected region: the token that stands in for it and the
// original text it must resolve back to.
type Span struct {
	Token    string
	Original string
	Category Category
}

// Map carries the ordered token table produced by Protect. Tokens are unique
// per map and resolve 1:1 back to their original spans.
type Map struct {
	prefix string
	spans  []Span
	index  map[string]int
}

// Result is the output of Protect.
type Result struct {
	// Working is the text handed to the translation engine.
	Working string
	// Map resolves tokens in the translated output back to original spans.
	Map *Map
	// Translatable reports whether any prose survives outside the protected
	// spans. A fully protected segment round-trips byte-identical and must
	// not be flagged as an engine no-op.
	Translatable bool
}

// Report describes how the engine treated the tokens.
type Report struct {
	// Missing lists tokens absent from the translated output.
	Missing []string
	// Duplicated lists tokens appearing more than once.
	Duplicated []string
	// Unrecognized lists token-shaped strings with no map entry. They are
	// left in place, never silently dropped.
	Unrecognized []string
	// Recovered counts resolved occurrences per category.
	Recovered map[Category]int
}

// Clean reports whether every token came back exactly once and nothing
// unrecognized appeared.
func (r Report) Clean() bool {
	return len(r.Missing) == 0 && len(r.Duplicated) == 0 && len(r.Unrecognized) == 0
}

// Options tunes protection behavior.
type Options struct {
	// ProtectLinks controls whether [[...]] links are tokenized. Callers that
	// tokenize links themselves (to rewrite targets per language) disable it.
	ProtectLinks bool
	// Prefix overrides the token prefix; mainly for tests. When empty a
	// collision-free prefix is chosen automatically.
	Prefix string
}

const defaultPrefix = "PH"

// Protect replaces protected spans in text with opaque tokens of the form
// __<prefix><n>__. If the source already contains a literal substring that
// collides with the token alphabet, a nonce-bearing prefix is chosen so
// unrelated text can never be corrupted on restore.
func Protect(text string, opts Options) Result {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = pickPrefix(text)
	}

	claims := claimSpans(text, opts.ProtectLinks)

	m := &Map{prefix: prefix, index: make(map[string]int)}
	var working strings.Builder
	last := 0
	for _, c := range claims {
		working.WriteString(text[last:c.start])
		token := m.add(text[c.start:c.end], c.category)
		working.WriteString(token)
		last = c.end
	}
	working.WriteString(text[last:])

	out := working.String()
	return Result{
		Working:      out,
		Map:          m,
		Translatable: hasProse(out, m),
	}
}

// Restore resolves every recognized token in translated back to its original
// span and reports tokens the engine lost, duplicated, or invented. It
// succeeds regardless of how the engine reordered or repeated tokens.
func Restore(translated string, m *Map) (string, Report) {
	report := Report{Recovered: make(map[Category]int)}
	if m == nil || len(m.spans) == 0 {
		return translated, report
	}

	seen := make(map[string]int, len(m.spans))
	restored := m.tokenPattern().ReplaceAllStringFunc(translated, func(token string) string {
		idx, ok := m.index[token]
		if !ok {
			report.Unrecognized = append(report.Unrecognized, token)
			return token
		}
		seen[token]++
		report.Recovered[m.spans[idx].Category]++
		return m.spans[idx].Original
	})

	for _, span := range m.spans {
		switch seen[span.Token] {
		case 0:
			report.Missing = append(report.Missing, span.Token)
		case 1:
		default:
			report.Duplicated = append(report.Duplicated, span.Token)
		}
	}
	return restored, report
}

// Spans returns the ordered protected spans.
func (m *Map) Spans() []Span {
	cp := make([]Span, len(m.spans))
	copy(cp, m.spans)
	return cp
}

// Len returns the number of protected spans.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.spans)
}

// Protected counts protected spans per category, the baseline for the QA
// structural round-trip check.
func (m *Map) Protected() map[Category]int {
	counts := make(map[Category]int, len(m.spans))
	for _, span := range m.spans {
		counts[span.Category]++
	}
	return counts
}

func (m *Map) add(original string, category Category) string {
	token := "__" + m.prefix + strconv.Itoa(len(m.spans)) + "__"
	m.index[token] = len(m.spans)
	m.spans = append(m.spans, Span{Token: token, Original: original, Category: category})
	return token
}

func (m *Map) tokenPattern() *regexp.Regexp {
	return regexp.MustCompile(`__` + regexp.QuoteMeta(m.prefix) + `\d+__`)
}

func pickPrefix(text string) string {
	if !strings.Contains(text, "__"+defaultPrefix) {
		return defaultPrefix
	}
	for {
		nonce := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
		prefix := defaultPrefix + nonce
		if !strings.Contains(text, "__"+prefix) {
			return prefix
		}
	}
}

func hasProse(working string, m *Map) bool {
	stripped := working
	if m != nil {
		stripped = m.tokenPattern().ReplaceAllString(working, "")
	}
	for _, r := range stripped {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
