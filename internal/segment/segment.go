// Package segment splits translation-marked wikitext into translatable units
// and fingerprints their content.
package segment

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	markerRe       = regexp.MustCompile(`<!--T:(\d+)-->`)
	translateTagRe = regexp.MustCompile(`</?translate>`)
	redirectRe     = regexp.MustCompile(`(?i)^\s*#redirect\b`)
)

// Segment is the smallest independently translatable piece of a page.
type Segment struct {
	Key  string
	Text string
}

// Split extracts translation units from wikitext carrying <!--T:n--> markers.
// Unit bodies are stripped of <translate> tags and trimmed; empty units are
// dropped and duplicate keys keep their first occurrence.
func Split(wikitext string) []Segment {
	matches := markerRe.FindAllStringSubmatchIndex(wikitext, -1)
	if len(matches) == 0 {
		return nil
	}

	segments := make([]Segment, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for i, match := range matches {
		start := match[1]
		end := len(wikitext)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		key := wikitext[match[2]:match[3]]
		if _, dup := seen[key]; dup {
			continue
		}
		cleaned := strings.TrimSpace(translateTagRe.ReplaceAllString(wikitext[start:end], ""))
		if cleaned == "" {
			continue
		}
		seen[key] = struct{}{}
		segments = append(segments, Segment{Key: key, Text: cleaned})
	}
	return segments
}

// SortByKey orders segments by their numeric unit key.
func SortByKey(segments []Segment) {
	sort.Slice(segments, func(i, j int) bool {
		a, _ := strconv.Atoi(segments[i].Key)
		b, _ := strconv.Atoi(segments[j].Key)
		return a < b
	})
}

// SortKeys orders raw unit keys numerically.
func SortKeys(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.Atoi(keys[i])
		b, _ := strconv.Atoi(keys[j])
		return a < b
	})
}

// Fingerprint returns the deterministic content hash used to detect whether a
// segment's source text changed. Leading/trailing whitespace is not part of
// the identity.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

// Assemble rebuilds a full page by substituting translated unit bodies at the
// marker positions of the source wikitext. Units without a translation render
// empty; <translate> tags are removed from the result.
func Assemble(wikitext string, translations map[string]string) string {
	matches := markerRe.FindAllStringSubmatchIndex(wikitext, -1)
	if len(matches) == 0 {
		return wikitext
	}

	var out strings.Builder
	cursor := 0
	for i, match := range matches {
		out.WriteString(wikitext[cursor:match[0]])
		key := wikitext[match[2]:match[3]]
		out.WriteString(translations[key])
		cursor = len(wikitext)
		if i+1 < len(matches) {
			cursor = matches[i+1][0]
		}
	}
	out.WriteString(wikitext[cursor:])

	combined := translateTagRe.ReplaceAllString(out.String(), "")
	return strings.TrimSpace(combined) + "\n"
}

// IsRedirect reports whether wikitext is a redirect page, which the pipeline
// never translates.
func IsRedirect(wikitext string) bool {
	return redirectRe.MatchString(strings.TrimPrefix(wikitext, "\uFEFF"))
}

// IsWrapped reports whether wikitext already carries translation markup.
func IsWrapped(wikitext string) bool {
	return strings.Contains(wikitext, "<translate>") && strings.Contains(wikitext, "</translate>")
}

// Wrap surrounds a page body with <translate> tags so the platform can mark
// it for translation.
func Wrap(wikitext string) string {
	body := strings.TrimRight(wikitext, "\n")
	return "<translate>\n" + body + "\n</translate>\n"
}
