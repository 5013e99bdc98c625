// Package mediawiki talks to a MediaWiki api.php endpoint with the
// Translate extension. The pipeline depends only on the Client interface;
// tests substitute fakes.
package mediawiki

import (
	"context"
	"errors"
	"fmt"
)

// PageInfo is one page listing entry.
type PageInfo struct {
	Title    string
	Revision int64
}

// ChangeEvent is one recent-changes entry.
type ChangeEvent struct {
	Title     string
	Revision  int64
	Timestamp string
}

// Revision is page content at a specific revision.
type Revision struct {
	Wikitext string
	ID       int64
}

// Client is the platform surface the pipeline uses.
type Client interface {
	// PageRevision returns the current revision id, or ErrPageMissing.
	PageRevision(ctx context.Context, title string) (int64, error)
	// PageWikitext fetches the page source and its revision id.
	PageWikitext(ctx context.Context, title string) (Revision, error)
	// Edit writes a full page.
	Edit(ctx context.Context, title, text, summary string) error
	// EditUnit writes one translation unit page
	// (Translations:<title>/<key>/<lang>).
	EditUnit(ctx context.Context, title, unitKey, lang, text, summary string) error
	// Metadata reads the bot's per-page bookkeeping subpage.
	Metadata(ctx context.Context, title string) (map[string]string, error)
	// WriteMetadata replaces the bookkeeping subpage.
	WriteMetadata(ctx context.Context, title string, meta map[string]string) error
	// RecentChanges lists edits since the given API timestamp, oldest first.
	RecentChanges(ctx context.Context, since string, limit int) ([]ChangeEvent, error)
	// AllPages walks the main namespace; cont is the continuation token,
	// empty on the first call and in the final result.
	AllPages(ctx context.Context, cont string, limit int) ([]PageInfo, string, error)
	// MarkForTranslation asks the Translate extension to (re)mark a page.
	MarkForTranslation(ctx context.Context, title string) error
}

// ErrPageMissing indicates the requested page does not exist.
var ErrPageMissing = errors.New("page does not exist")

// APIError is a structured error response from the platform.
type APIError struct {
	Code string
	Info string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %s: %s", e.Code, e.Info)
}

// RateLimitedError indicates the platform asked us to slow down.
type RateLimitedError struct {
	Cause error
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: %v", e.Cause)
}

func (e *RateLimitedError) Unwrap() error { return e.Cause }

// WriteConflictError indicates a concurrent edit beat ours.
type WriteConflictError struct {
	Title string
}

func (e *WriteConflictError) Error() string {
	return fmt.Sprintf("edit conflict on %s", e.Title)
}

// IsTransient reports whether a platform error is worth retrying.
func IsTransient(err error) bool {
	var rateLimited *RateLimitedError
	if errors.As(err, &rateLimited) {
		return true
	}
	var conflict *WriteConflictError
	if errors.As(err, &conflict) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "maxlag", "readonly", "internal_api_error_DBQueryError":
			return true
		}
		return false
	}
	// Plain transport failures (timeouts, resets) are transient.
	return err != nil && !errors.Is(err, ErrPageMissing)
}

// UnitPageTitle builds the Translations: subpage title of one unit.
func UnitPageTitle(title, unitKey, lang string) string {
	return "Translations:" + title + "/" + unitKey + "/" + lang
}

// MetadataPageTitle builds the bookkeeping subpage title.
func MetadataPageTitle(title string) string {
	return title + "/wikiloom.json"
}
