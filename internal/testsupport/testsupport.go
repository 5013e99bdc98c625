// Package testsupport provides shared fixtures for package tests.
package testsupport

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"wikiloom/internal/config"
	"wikiloom/internal/mediawiki"
	"wikiloom/internal/store"
)

// ConfigOption customizes the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.ReportDir = filepath.Join(base, "reports")
	cfg.Languages.Source = "en"
	cfg.Languages.Targets = []string{"de", "fr"}
	cfg.Engine.Providers = []string{"mock"}
	cfg.Wiki.APIURL = "http://wiki.test/api.php"

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithTargets overrides the target languages on the test config.
func WithTargets(langs ...string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Languages.Targets = langs
	}
}

// NewStore opens a throwaway store under the test's temp directory.
func NewStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.OpenPath(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// FakeWiki is an in-memory platform client that records writes.
type FakeWiki struct {
	mu sync.Mutex

	Pages    map[string]mediawiki.Revision
	Meta     map[string]map[string]string
	Changes  []mediawiki.ChangeEvent
	Edits    []EditRecord
	Marked   []string
	EditErr  error
	UnitErrs map[string]error
}

// EditRecord is one captured write.
type EditRecord struct {
	Title   string
	Text    string
	Summary string
}

// NewFakeWiki builds an empty fake platform.
func NewFakeWiki() *FakeWiki {
	return &FakeWiki{
		Pages:    map[string]mediawiki.Revision{},
		Meta:     map[string]map[string]string{},
		UnitErrs: map[string]error{},
	}
}

var _ mediawiki.Client = (*FakeWiki)(nil)

// PageRevision implements mediawiki.Client.
func (f *FakeWiki) PageRevision(ctx context.Context, title string) (int64, error) {
	rev, err := f.PageWikitext(ctx, title)
	return rev.ID, err
}

// PageWikitext implements mediawiki.Client.
func (f *FakeWiki) PageWikitext(_ context.Context, title string) (mediawiki.Revision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rev, ok := f.Pages[title]
	if !ok {
		return mediawiki.Revision{}, mediawiki.ErrPageMissing
	}
	return rev, nil
}

// Edit implements mediawiki.Client.
func (f *FakeWiki) Edit(_ context.Context, title, text, summary string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.EditErr != nil {
		return f.EditErr
	}
	if err, ok := f.UnitErrs[title]; ok {
		return err
	}
	f.Edits = append(f.Edits, EditRecord{Title: title, Text: text, Summary: summary})
	rev := f.Pages[title]
	f.Pages[title] = mediawiki.Revision{Wikitext: text, ID: rev.ID + 1}
	return nil
}

// EditUnit implements mediawiki.Client.
func (f *FakeWiki) EditUnit(ctx context.Context, title, unitKey, lang, text, summary string) error {
	return f.Edit(ctx, mediawiki.UnitPageTitle(title, unitKey, lang), text, summary)
}

// Metadata implements mediawiki.Client.
func (f *FakeWiki) Metadata(_ context.Context, title string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	meta := map[string]string{}
	for k, v := range f.Meta[title] {
		meta[k] = v
	}
	return meta, nil
}

// WriteMetadata implements mediawiki.Client.
func (f *FakeWiki) WriteMetadata(_ context.Context, title string, meta map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := map[string]string{}
	for k, v := range meta {
		stored[k] = v
	}
	f.Meta[title] = stored
	return nil
}

// RecentChanges implements mediawiki.Client.
func (f *FakeWiki) RecentChanges(_ context.Context, since string, _ int) ([]mediawiki.ChangeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var events []mediawiki.ChangeEvent
	for _, event := range f.Changes {
		if since == "" || event.Timestamp > since {
			events = append(events, event)
		}
	}
	return events, nil
}

// AllPages implements mediawiki.Client.
func (f *FakeWiki) AllPages(context.Context, string, int) ([]mediawiki.PageInfo, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pages []mediawiki.PageInfo
	for title := range f.Pages {
		pages = append(pages, mediawiki.PageInfo{Title: title})
	}
	return pages, "", nil
}

// MarkForTranslation implements mediawiki.Client.
func (f *FakeWiki) MarkForTranslation(_ context.Context, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Marked = append(f.Marked, title)
	return nil
}

// UnitEdits returns the captured writes to translation unit pages of one
// page and language.
func (f *FakeWiki) UnitEdits(title, lang string) []EditRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := "Translations:" + title + "/"
	var edits []EditRecord
	for _, edit := range f.Edits {
		if len(edit.Title) > len(prefix) && edit.Title[:len(prefix)] == prefix &&
			edit.Title[len(edit.Title)-len(lang)-1:] == "/"+lang {
			edits = append(edits, edit)
		}
	}
	return edits
}
