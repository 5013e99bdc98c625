package workflow

import (
	"context"
	"fmt"

	"wikiloom/internal/mediawiki"
	"wikiloom/internal/pagestate"
	"wikiloom/internal/store"
)

// syncStatus reconciles the stored translation state with the review status
// reviewers record on the platform's bookkeeping subpage, then publishes the
// resulting state map back.
func (m *Manager) syncStatus(ctx context.Context, rc RunContext, job *store.Job) error {
	meta, err := m.wiki.Metadata(ctx, job.PageTitle)
	if err != nil {
		if mediawiki.IsTransient(err) {
			return &transientError{cause: fmt.Errorf("read metadata: %w", err)}
		}
		return fmt.Errorf("read metadata: %w", err)
	}

	changed := false
	for _, lang := range m.cfg.Languages.Targets {
		if pagestate.Parse(meta[lang]) != pagestate.StateReviewed {
			continue
		}
		state, err := m.store.GetState(ctx, job.PageTitle, lang)
		if err != nil {
			return err
		}
		if state.State == string(pagestate.StateReviewed) {
			continue
		}
		if state.State == string(pagestate.StateOutdated) {
			// The platform note predates the source change that outdated
			// this pair; the write-back below replaces it. A human must
			// re-review the new revision before reviewed is adopted again.
			continue
		}
		// A reviewer approved this translation on the platform.
		if _, err := m.store.ApplyStateEvent(ctx, job.PageTitle, lang, pagestate.EventHumanReviewed, pagestate.ActorHuman, 0); err != nil {
			return err
		}
		changed = true
	}

	states, err := m.store.ListStates(ctx, job.PageTitle)
	if err != nil {
		return err
	}
	current := map[string]string{}
	for _, state := range states {
		current[state.Lang] = state.State
	}

	stale := false
	for lang, value := range current {
		if meta[lang] != value {
			stale = true
			break
		}
	}
	if stale {
		if err := m.wiki.WriteMetadata(ctx, job.PageTitle, current); err != nil {
			if mediawiki.IsTransient(err) {
				return &transientError{cause: fmt.Errorf("write metadata: %w", err)}
			}
			return fmt.Errorf("write metadata: %w", err)
		}
		changed = true
	}

	if changed {
		m.recordItem(ctx, rc, job, "synced", "")
	}
	return nil
}
