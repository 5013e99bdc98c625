// Package ingest discovers source pages, refreshes their stored segments,
// and queues translation work for languages whose state allows automated
// writes.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"wikiloom/internal/config"
	"wikiloom/internal/mediawiki"
	"wikiloom/internal/pagestate"
	"wikiloom/internal/segment"
	"wikiloom/internal/store"
)

// CursorRecentChanges names the progress marker for incremental ingestion.
const CursorRecentChanges = "recent_changes"

// Outcome summarizes what ingesting one page did.
type Outcome struct {
	Title string
	// Skipped explains why the page was not processed, empty otherwise.
	Skipped string
	// Wrapped reports whether the page was auto-wrapped for translation.
	Wrapped bool
	// ChangedKeys lists unit keys whose source content changed.
	ChangedKeys []string
	// Enqueued lists target languages a translate job was queued for.
	Enqueued []string
	// Outdated lists target languages whose reviewed/outdated state moved
	// to outdated instead of being queued.
	Outdated []string
}

// Ingestor wires the platform client to the store.
type Ingestor struct {
	store  *store.Store
	wiki   mediawiki.Client
	cfg    *config.Config
	logger *slog.Logger
}

// New builds an ingestor.
func New(s *store.Store, wiki mediawiki.Client, cfg *config.Config, logger *slog.Logger) *Ingestor {
	return &Ingestor{store: s, wiki: wiki, cfg: cfg, logger: logger}
}

// IngestTitle processes one page: skips redirects and non-content pages,
// wraps unwrapped pages when configured, refreshes stored segments, and
// queues translation jobs for every target whose state permits the bot to
// write.
func (in *Ingestor) IngestTitle(ctx context.Context, title string) (Outcome, error) {
	outcome := Outcome{Title: title}

	if skip := skipReason(title); skip != "" {
		outcome.Skipped = skip
		return outcome, nil
	}

	rev, err := in.wiki.PageWikitext(ctx, title)
	if err != nil {
		if errors.Is(err, mediawiki.ErrPageMissing) {
			outcome.Skipped = "page missing"
			return outcome, nil
		}
		return outcome, fmt.Errorf("fetch %s: %w", title, err)
	}

	if segment.IsRedirect(rev.Wikitext) {
		outcome.Skipped = "redirect"
		return outcome, nil
	}

	if !segment.IsWrapped(rev.Wikitext) {
		if !in.cfg.Wiki.AutoWrap {
			outcome.Skipped = "not marked for translation"
			return outcome, nil
		}
		if err := in.wiki.Edit(ctx, title, segment.Wrap(rev.Wikitext), "Wrap page for translation"); err != nil {
			return outcome, fmt.Errorf("wrap %s: %w", title, err)
		}
		if in.cfg.Wiki.MarkAction == "mark" {
			if err := in.wiki.MarkForTranslation(ctx, title); err != nil {
				return outcome, fmt.Errorf("mark %s for translation: %w", title, err)
			}
		} else {
			outcome.Skipped = "wrapped, awaiting manual translation marking"
			outcome.Wrapped = true
			return outcome, nil
		}
		outcome.Wrapped = true
		// The wrap edit creates the unit markers; refetch for the marked
		// revision.
		rev, err = in.wiki.PageWikitext(ctx, title)
		if err != nil {
			return outcome, fmt.Errorf("refetch %s: %w", title, err)
		}
	}

	units := segment.Split(rev.Wikitext)
	if len(units) == 0 {
		outcome.Skipped = "no translation units"
		return outcome, nil
	}

	known, err := in.store.GetPage(ctx, title)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return outcome, err
	}
	if known != nil && known.LastSourceRev == rev.ID {
		outcome.Skipped = "revision already ingested"
		return outcome, nil
	}

	changed, err := in.store.RefreshSegments(ctx, title, units)
	if err != nil {
		return outcome, err
	}
	outcome.ChangedKeys = changed

	err = in.store.UpsertPage(ctx, store.Page{
		Title:         title,
		SourceLang:    in.cfg.Languages.Source,
		LastSourceRev: rev.ID,
	})
	if err != nil {
		return outcome, err
	}

	if known != nil && len(changed) == 0 {
		// New revision without content changes (markup-only edit).
		return outcome, nil
	}

	sourceAdvanced := known != nil && len(changed) > 0
	for _, lang := range in.cfg.Languages.Targets {
		state, err := in.store.GetState(ctx, title, lang)
		if err != nil {
			return outcome, err
		}
		current := pagestate.Parse(state.State)

		if sourceAdvanced && current != pagestate.StateMachine {
			if _, err := in.store.ApplyStateEvent(ctx, title, lang, pagestate.EventSourceAdvanced, pagestate.ActorBot, rev.ID); err != nil {
				return outcome, err
			}
			outcome.Outdated = append(outcome.Outdated, lang)
			continue
		}
		if !current.AllowsAutomatedWrite() {
			outcome.Outdated = append(outcome.Outdated, lang)
			continue
		}

		_, err = in.store.Enqueue(ctx, store.JobTranslatePage, title, lang, 0)
		if err != nil && !errors.Is(err, store.ErrDuplicateQueued) {
			return outcome, err
		}
		if err == nil {
			outcome.Enqueued = append(outcome.Enqueued, lang)
		}
	}

	if len(outcome.Outdated) > 0 {
		// Metadata-only write: reviewers see the outdated flag while the
		// translated content stays untouched.
		if err := in.publishStates(ctx, title); err != nil {
			return outcome, err
		}
	}

	if in.logger != nil {
		in.logger.Info("page ingested",
			slog.String("page", title),
			slog.Int64("rev", rev.ID),
			slog.Int("changed_units", len(changed)),
			slog.Int("queued", len(outcome.Enqueued)))
	}
	return outcome, nil
}

// publishStates writes the page's current state map to the platform's
// bookkeeping subpage so it never lags behind a store-side transition.
func (in *Ingestor) publishStates(ctx context.Context, title string) error {
	states, err := in.store.ListStates(ctx, title)
	if err != nil {
		return err
	}
	current := map[string]string{}
	for _, state := range states {
		current[state.Lang] = state.State
	}
	if err := in.wiki.WriteMetadata(ctx, title, current); err != nil {
		return fmt.Errorf("publish state map for %s: %w", title, err)
	}
	return nil
}

// IngestRecentChanges processes pages edited since the stored cursor and
// advances it. Returns one outcome per distinct page.
func (in *Ingestor) IngestRecentChanges(ctx context.Context, limit int) ([]Outcome, error) {
	since, err := in.store.GetCursor(ctx, CursorRecentChanges)
	if err != nil {
		return nil, err
	}

	events, err := in.wiki.RecentChanges(ctx, since, limit)
	if err != nil {
		return nil, fmt.Errorf("recent changes: %w", err)
	}

	var outcomes []Outcome
	seen := map[string]struct{}{}
	lastTimestamp := since
	for _, event := range events {
		lastTimestamp = event.Timestamp
		if _, dup := seen[event.Title]; dup {
			continue
		}
		seen[event.Title] = struct{}{}

		outcome, err := in.IngestTitle(ctx, event.Title)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, outcome)
	}

	if lastTimestamp != since && lastTimestamp != "" {
		if err := in.store.SetCursor(ctx, CursorRecentChanges, lastTimestamp); err != nil {
			return outcomes, err
		}
	}
	return outcomes, nil
}

// IngestAll walks every content page on the platform.
func (in *Ingestor) IngestAll(ctx context.Context, batchSize int) ([]Outcome, error) {
	var outcomes []Outcome
	cont := ""
	for {
		pages, next, err := in.wiki.AllPages(ctx, cont, batchSize)
		if err != nil {
			return outcomes, fmt.Errorf("list pages: %w", err)
		}
		for _, page := range pages {
			outcome, err := in.IngestTitle(ctx, page.Title)
			if err != nil {
				return outcomes, err
			}
			outcomes = append(outcomes, outcome)
		}
		if next == "" {
			return outcomes, nil
		}
		cont = next
	}
}

// skipReason filters titles the pipeline never touches: non-content
// namespaces and the bot's own bookkeeping subpages.
func skipReason(title string) string {
	if idx := strings.Index(title, ":"); idx > 0 {
		return "non-content namespace"
	}
	if strings.HasSuffix(title, "/wikiloom.json") {
		return "bookkeeping subpage"
	}
	return ""
}
