package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"wikiloom/internal/cache"
	"wikiloom/internal/engine"
	"wikiloom/internal/mediawiki"
	"wikiloom/internal/pagestate"
	"wikiloom/internal/placeholder"
	"wikiloom/internal/qa"
	"wikiloom/internal/segment"
	"wikiloom/internal/store"
)

// translatePage runs the full pipeline for one page/language job: state
// lock, per-unit protect/cache/translate/restore, validation, partial
// publication of the passing units, then the state self-transition.
func (m *Manager) translatePage(ctx context.Context, rc RunContext, job *store.Job) error {
	state, err := m.store.GetState(ctx, job.PageTitle, job.Lang)
	if err != nil {
		return err
	}
	if !pagestate.Parse(state.State).AllowsAutomatedWrite() {
		return &abortError{reason: fmt.Sprintf("state %s blocks automated writes", state.State)}
	}

	page, err := m.store.GetPage(ctx, job.PageTitle)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &abortError{reason: "page not ingested"}
		}
		return err
	}

	segments, err := m.store.ListSegments(ctx, job.PageTitle)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return &abortError{reason: "no translation units"}
	}

	if rc.Mode == cache.ModeRefresh {
		if _, err := m.cache.Invalidate(ctx, job.PageTitle, job.Lang); err != nil {
			return err
		}
	}

	terms, err := m.store.TermsForLang(ctx, job.Lang)
	if err != nil {
		return err
	}
	glossaryHints := map[string]string{}
	for _, term := range terms {
		if !term.Forbidden && term.Preferred != "" {
			glossaryHints[term.Term] = term.Preferred
		}
	}

	published := map[string]string{}
	var sourceKeys, failedKeys []string
	var failures []string

	for _, seg := range segments {
		sourceKeys = append(sourceKeys, seg.SegmentKey)

		text, failure, err := m.translateUnit(ctx, rc, job, seg, terms, glossaryHints)
		if err != nil {
			return err
		}
		if failure != nil {
			failedKeys = append(failedKeys, seg.SegmentKey)
			failures = append(failures, failure.Error())
			continue
		}
		published[seg.SegmentKey] = text
	}

	if len(published) > 0 {
		firstKey := publishOrder(published)[0]
		published[firstKey] = m.decorateFirstUnit(ctx, rc, job, published[firstKey])
	}

	publishKeys := publishOrder(published)
	if pageFailure := qa.ValidatePage(job.PageTitle, job.Lang, sourceKeys, publishKeys, failedKeys); pageFailure != nil {
		return pageFailure
	}

	summary := fmt.Sprintf("Machine translation update (%s)", job.Lang)
	for _, key := range publishKeys {
		if err := m.wiki.EditUnit(ctx, job.PageTitle, key, job.Lang, published[key], summary); err != nil {
			if mediawiki.IsTransient(err) {
				return &transientError{cause: fmt.Errorf("publish %s/%s: %w", job.PageTitle, key, err)}
			}
			return fmt.Errorf("publish %s/%s: %w", job.PageTitle, key, err)
		}
	}

	if len(published) > 0 {
		if _, err := m.store.ApplyStateEvent(ctx, job.PageTitle, job.Lang, pagestate.EventTranslated, pagestate.ActorBot, page.LastSourceRev); err != nil {
			return err
		}
	}

	m.recordItem(ctx, rc, job, "published", fmt.Sprintf("%d/%d units", len(published), len(segments)))
	if m.logger != nil {
		m.logger.Info("page published",
			slog.String("page", job.PageTitle),
			slog.String("lang", job.Lang),
			slog.Int("published", len(published)),
			slog.Int("failed", len(failedKeys)))
	}

	if len(failures) > 0 {
		return fmt.Errorf("%d of %d units failed validation: %s",
			len(failedKeys), len(segments), strings.Join(failures, " | "))
	}
	return nil
}

// translateUnit produces the final text of one unit, or a validation
// failure. Engine and platform outages surface as transient errors.
func (m *Manager) translateUnit(ctx context.Context, rc RunContext, job *store.Job, seg store.SegmentRow, terms []store.TermEntry, glossaryHints map[string]string) (string, *qa.Failure, error) {
	key := cache.Key{
		PageTitle:   job.PageTitle,
		SegmentKey:  seg.SegmentKey,
		Lang:        job.Lang,
		Fingerprint: seg.Fingerprint,
	}

	hit, err := m.cache.Lookup(ctx, key, rc.Mode)
	if err != nil {
		if errors.Is(err, cache.ErrCacheOnlyMiss) {
			return "", &qa.Failure{
				PageTitle:  job.PageTitle,
				SegmentKey: seg.SegmentKey,
				Lang:       job.Lang,
				Reasons:    []qa.Reason{{Check: "cache_only", Detail: err.Error()}},
			}, nil
		}
		return "", nil, err
	}
	if hit != nil {
		if hit.Provenance == cache.ProvenanceContent {
			// Content-tier reuse may predate the current glossary; flag it
			// for review rather than refreshing silently.
			m.addGlossaryTask(ctx, job, seg.SegmentKey, store.GlossaryTask{
				Term:   "*",
				Detail: "content-fingerprint reuse from another page; verify against current glossary",
			})
		}
		return hit.Text, nil, nil
	}

	protected := placeholder.Protect(seg.SourceText, placeholder.Options{ProtectLinks: true})

	var restored string
	var report placeholder.Report
	if protected.Translatable {
		result, err := m.gateway.Translate(ctx, engine.Request{
			Text:       protected.Working,
			SourceLang: m.cfg.Languages.Source,
			TargetLang: job.Lang,
			Glossary:   glossaryHints,
		})
		if err != nil {
			if ctx.Err() != nil {
				return "", nil, ctx.Err()
			}
			if errors.Is(err, engine.ErrUnavailable) {
				return "", nil, &transientError{cause: err}
			}
			return "", nil, err
		}
		restored, report = placeholder.Restore(result.Text, protected.Map)
		engineID := result.EngineID

		// Validation runs on the restored text before link rewriting, so an
		// engine echoing the source back cannot hide behind the rewrite.
		unitResult := qa.ValidateUnit(qa.UnitInput{
			Source:       seg.SourceText,
			Restored:     restored,
			Report:       report,
			Translatable: true,
			Terms:        terms,
		})
		for _, task := range unitResult.TermTasks {
			m.addGlossaryTask(ctx, job, seg.SegmentKey, store.GlossaryTask{
				Term:   task.Term,
				Detail: task.Detail,
			})
		}

		status := store.QAPassed
		var failure *qa.Failure
		if !unitResult.Passed() {
			status = store.QAFailed
			failure = &qa.Failure{
				PageTitle:  job.PageTitle,
				SegmentKey: seg.SegmentKey,
				Lang:       job.Lang,
				Reasons:    unitResult.Reasons,
			}
		}
		final := restored
		if unitResult.Passed() {
			final = rewriteLinks(restored, job.Lang)
		}
		if err := m.cache.Store(ctx, key, final, engineID, status); err != nil {
			return "", nil, err
		}
		return final, failure, nil
	}

	// Pure markup: no engine call, the unit round-trips byte-identical.
	restored, _ = placeholder.Restore(protected.Working, protected.Map)
	if err := m.cache.Store(ctx, key, restored, "none", store.QAPassed); err != nil {
		return "", nil, err
	}
	return restored, nil, nil
}

// decorateFirstUnit prepends the DISPLAYTITLE directive and the machine
// translation disclaimer to the first published unit. Cache-only runs skip
// the title translation since it would call an engine.
func (m *Manager) decorateFirstUnit(ctx context.Context, rc RunContext, job *store.Job, text string) string {
	var parts []string

	if !strings.Contains(text, "{{DISPLAYTITLE:") && rc.Mode != cache.ModeCacheOnly {
		if title := m.translateTitle(ctx, job); title != "" && title != job.PageTitle {
			parts = append(parts, "{{DISPLAYTITLE:"+title+"}}")
		}
	}
	if marker := m.cfg.Wiki.DisclaimerMarker; marker != "" && !strings.Contains(text, "{{"+marker) {
		parts = append(parts, "{{"+marker+"|"+job.Lang+"}}")
	}

	if len(parts) == 0 {
		return text
	}
	return strings.Join(parts, "\n") + "\n" + text
}

func (m *Manager) translateTitle(ctx context.Context, job *store.Job) string {
	result, err := m.gateway.Translate(ctx, engine.Request{
		Text:       job.PageTitle,
		SourceLang: m.cfg.Languages.Source,
		TargetLang: job.Lang,
	})
	if err != nil {
		if m.logger != nil {
			m.logger.Warn("title translation failed",
				slog.String("page", job.PageTitle),
				slog.Any("error", err))
		}
		return ""
	}
	return strings.TrimSpace(result.Text)
}

func (m *Manager) addGlossaryTask(ctx context.Context, job *store.Job, segmentKey string, task store.GlossaryTask) {
	task.PageTitle = job.PageTitle
	task.Lang = job.Lang
	task.SegmentKey = segmentKey
	if _, err := m.store.AddGlossaryTask(ctx, task); err != nil && m.logger != nil {
		m.logger.Error("record glossary task failed", slog.Any("error", err))
	}
}

func publishOrder(published map[string]string) []string {
	keys := make([]string, 0, len(published))
	for key := range published {
		keys = append(keys, key)
	}
	segment.SortKeys(keys)
	return keys
}
