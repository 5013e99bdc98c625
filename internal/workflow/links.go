package workflow

import (
	"regexp"
	"strings"
)

var internalLinkRe = regexp.MustCompile(`\[\[([^\[\]|]+)(?:\|([^\[\]]*))?\]\]`)

// rewriteLinks retargets safe internal links to the language subpage so a
// reader stays inside the translated tree. Namespaced links (File:,
// Category:, interwiki) and anchors are left alone.
func rewriteLinks(text, lang string) string {
	return internalLinkRe.ReplaceAllStringFunc(text, func(link string) string {
		groups := internalLinkRe.FindStringSubmatch(link)
		target := strings.TrimSpace(groups[1])
		display := groups[2]

		if target == "" || strings.Contains(target, ":") || strings.Contains(target, "#") {
			return link
		}
		if strings.HasSuffix(target, "/"+lang) {
			return link
		}

		if display == "" {
			display = target
		}
		return "[[" + target + "/" + lang + "|" + display + "]]"
	})
}
