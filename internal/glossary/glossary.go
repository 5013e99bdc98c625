// Package glossary loads the operator-maintained termbase file and syncs it
// into the store.
package glossary

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"wikiloom/internal/store"
)

// Entry is one termbase rule as written in the glossary file.
type Entry struct {
	Term      string `yaml:"term"`
	Preferred string `yaml:"preferred"`
	Forbidden bool   `yaml:"forbidden"`
}

// File is the on-disk glossary: termbase rules keyed by target language.
type File struct {
	Languages map[string][]Entry `yaml:"languages"`
}

// Load parses a glossary file. A missing path yields an empty glossary.
func Load(path string) (*File, error) {
	if path == "" {
		return &File{Languages: map[string][]Entry{}}, nil
	}
	payload, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &File{Languages: map[string][]Entry{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read glossary: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(payload, &file); err != nil {
		return nil, fmt.Errorf("parse glossary: %w", err)
	}
	if file.Languages == nil {
		file.Languages = map[string][]Entry{}
	}
	for lang, entries := range file.Languages {
		for i, entry := range entries {
			if strings.TrimSpace(entry.Term) == "" {
				return nil, fmt.Errorf("glossary %s[%d]: empty term", lang, i)
			}
			if entry.Forbidden && entry.Preferred != "" {
				return nil, fmt.Errorf("glossary %s: term %q is both forbidden and preferred", lang, entry.Term)
			}
		}
	}
	return &file, nil
}

// Terms returns the store entries for one language, sorted by term.
func (f *File) Terms(lang string) []store.TermEntry {
	entries := f.Languages[lang]
	terms := make([]store.TermEntry, 0, len(entries))
	for _, entry := range entries {
		terms = append(terms, store.TermEntry{
			Lang:      lang,
			Term:      strings.TrimSpace(entry.Term),
			Preferred: strings.TrimSpace(entry.Preferred),
			Forbidden: entry.Forbidden,
		})
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i].Term < terms[j].Term })
	return terms
}

// Sync replaces the stored termbase for every language present in the file
// plus the given targets, clearing targets the file no longer mentions.
func Sync(ctx context.Context, s *store.Store, file *File, targets []string) error {
	langs := map[string]struct{}{}
	for lang := range file.Languages {
		langs[lang] = struct{}{}
	}
	for _, lang := range targets {
		langs[lang] = struct{}{}
	}

	for lang := range langs {
		if err := s.ReplaceTermsForLang(ctx, lang, file.Terms(lang)); err != nil {
			return fmt.Errorf("sync glossary for %s: %w", lang, err)
		}
	}
	return nil
}
