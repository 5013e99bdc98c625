package placeholder

import (
	"regexp"
	"sort"
	"strings"
)

type claim struct {
	start    int
	end      int
	category Category
}

var (
	referencesBlockRe = regexp.MustCompile(`(?is)<references\b[^>]*>.*?</references>`)
	referencesSelfRe  = regexp.MustCompile(`(?i)<references\b[^>]*/\s*>`)
	refBlockRe        = regexp.MustCompile(`(?is)<ref\b[^>]*>.*?</ref>`)
	refSelfRe         = regexp.MustCompile(`(?i)<ref\b[^>]*/\s*>`)
	commentRe         = regexp.MustCompile(`(?s)<!--.*?-->`)
	codeRe            = regexp.MustCompile(`(?is)<code\b[^>]*>.*?</code>|<pre\b[^>]*>.*?</pre>|<nowiki\b[^>]*>.*?</nowiki>`)
	magicWordRe       = regexp.MustCompile(`__[A-Z0-9_]+__`)
	fileLinkRe        = regexp.MustCompile(`(?i)\[\[(?:File|Image):[^\]]+\]\]`)
	urlRe             = regexp.MustCompile(`https?://\S+`)
)

type regexMatcher struct {
	re       *regexp.Regexp
	category Category
}

// orderedMatchers is the protection priority: spans claimed by an earlier
// matcher are invisible to later ones.
var orderedMatchers = []regexMatcher{
	{referencesBlockRe, CategoryReference},
	{referencesSelfRe, CategoryReference},
	{refBlockRe, CategoryReference},
	{refSelfRe, CategoryReference},
	{commentRe, CategoryComment},
	{codeRe, CategoryCode},
	{magicWordRe, CategoryMagicWord},
	{fileLinkRe, CategoryFileLink},
}

// claimSpans runs every matcher over text and returns non-overlapping claims
// sorted by position.
func claimSpans(text string, protectLinks bool) []claim {
	var claims []claim

	for _, m := range orderedMatchers {
		for _, loc := range m.re.FindAllStringIndex(text, -1) {
			if overlapsAny(claims, loc[0], loc[1]) {
				continue
			}
			claims = append(claims, claim{start: loc[0], end: loc[1], category: m.category})
		}
	}

	for _, span := range extractBalanced(text, "{{", "}}") {
		if overlapsAny(claims, span[0], span[1]) {
			continue
		}
		claims = append(claims, claim{start: span[0], end: span[1], category: CategoryTemplate})
	}

	if protectLinks {
		for _, span := range extractBalanced(text, "[[", "]]") {
			if overlapsAny(claims, span[0], span[1]) {
				continue
			}
			claims = append(claims, claim{start: span[0], end: span[1], category: CategoryLink})
		}
	}

	for _, loc := range urlRe.FindAllStringIndex(text, -1) {
		if overlapsAny(claims, loc[0], loc[1]) {
			continue
		}
		claims = append(claims, claim{start: loc[0], end: loc[1], category: CategoryURL})
	}

	sort.Slice(claims, func(i, j int) bool { return claims[i].start < claims[j].start })
	return claims
}

func overlapsAny(claims []claim, start, end int) bool {
	for _, c := range claims {
		if start < c.end && end > c.start {
			return true
		}
	}
	return false
}

// extractBalanced finds top-level balanced openTok...closeTok spans. Nested
// pairs collapse into their outermost span; unbalanced openers claim nothing.
func extractBalanced(text, openTok, closeTok string) [][2]int {
	var spans [][2]int
	depth := 0
	start := -1
	i := 0
	for i < len(text) {
		if strings.HasPrefix(text[i:], openTok) {
			if depth == 0 {
				start = i
			}
			depth++
			i += len(openTok)
			continue
		}
		if depth > 0 && strings.HasPrefix(text[i:], closeTok) {
			depth--
			i += len(closeTok)
			if depth == 0 && start >= 0 {
				spans = append(spans, [2]int{start, i})
				start = -1
			}
			continue
		}
		i++
	}
	return spans
}
